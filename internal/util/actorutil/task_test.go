package actorutil

import (
	"errors"
	"testing"
	"time"

	"github.com/asynkron/protoactor-go/actor"
	"github.com/stretchr/testify/assert"
)

type taskResult struct {
	Value string
	Err   error
}

func runTask(t *testing.T, start func(ctx actor.Context)) (taskResult, bool) {
	as := actor.NewActorSystem()
	defer as.Shutdown()

	out := make(chan taskResult, 1)
	as.Root.Spawn(actor.PropsFromFunc(func(ctx actor.Context) {
		switch msg := ctx.Message().(type) {
		case *actor.Started:
			start(ctx)
		case taskResult:
			out <- msg
		}
	}))

	select {
	case r := <-out:
		return r, true
	case <-time.After(500 * time.Millisecond):
		return taskResult{}, false
	}
}

func TestBackgroundTaskSendsResult(t *testing.T) {
	r, ok := runTask(t, func(ctx actor.Context) {
		NewBackgroundTask(ctx, func() (*taskResult, error) {
			return &taskResult{Value: "done"}, nil
		}).PipeToAsync(ctx.Self())
	})
	assert.True(t, ok)
	assert.Equal(t, "done", r.Value)
}

func TestBackgroundTaskRecoversErrors(t *testing.T) {
	boom := errors.New("boom")
	r, ok := runTask(t, func(ctx actor.Context) {
		NewBackgroundTask(ctx, func() (*taskResult, error) {
			return nil, boom
		}).Recover(func(err error) taskResult {
			return taskResult{Err: err}
		}).PipeToAsync(ctx.Self())
	})
	assert.True(t, ok)
	assert.ErrorContains(t, r.Err, boom.Error())
}

func TestBackgroundTaskTimesOut(t *testing.T) {
	r, ok := runTask(t, func(ctx actor.Context) {
		NewBackgroundTask(ctx, func() (*taskResult, error) {
			time.Sleep(time.Second)
			return &taskResult{Value: "late"}, nil
		}).WithTimeout(50 * time.Millisecond).Recover(func(err error) taskResult {
			return taskResult{Err: err}
		}).PipeToAsync(ctx.Self())
	})
	assert.True(t, ok)
	assert.Error(t, r.Err)
	assert.Empty(t, r.Value)
}

func TestBackgroundTaskDropsUnrecoveredErrors(t *testing.T) {
	_, ok := runTask(t, func(ctx actor.Context) {
		NewBackgroundTask(ctx, func() (*taskResult, error) {
			return nil, errors.New("boom")
		}).PipeToAsync(ctx.Self())
	})
	assert.False(t, ok)
}
