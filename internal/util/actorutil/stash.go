package actorutil

import (
	"fmt"

	"github.com/asynkron/protoactor-go/actor"
	"go.uber.org/zap"
)

// Stash holds the messages an actor cannot handle in its current state and
// replays them with their original sender. With a Limit > 0 the oldest
// message is dropped once the limit is reached and handed to OnDrop.
type Stash struct {
	Limit   int
	OnDrop  func(msg any)
	pending []stashed
}

// NewLoggedStash returns a bounded stash that logs every dropped message.
func NewLoggedStash(limit int, logger *zap.Logger) *Stash {
	return &Stash{
		Limit: limit,
		OnDrop: func(msg any) {
			logger.Warn("stash full, oldest message dropped", zap.String("type", fmt.Sprintf("%T", msg)))
		},
	}
}

type stashed struct {
	msg    any
	sender *actor.PID
}

// Stash keeps msg for later and reports whether an older message had to be
// dropped to make room.
func (s *Stash) Stash(ctx actor.Context, msg any) bool {
	dropped := false
	if s.Limit > 0 && len(s.pending) >= s.Limit {
		oldest := s.pending[0]
		s.pending = s.pending[1:]
		dropped = true
		if s.OnDrop != nil {
			s.OnDrop(oldest.msg)
		}
	}
	s.pending = append(s.pending, stashed{
		msg:    msg,
		sender: ctx.Sender(),
	})
	return dropped
}

// UnstashAll sends every kept message back to the actor, oldest first.
// Messages the current state still cannot handle are simply stashed again.
func (s *Stash) UnstashAll(ctx actor.Context) {
	pending := s.pending
	s.pending = nil
	for _, p := range pending {
		ctx.RequestWithCustomSender(ctx.Self(), p.msg, p.sender)
	}
}

func (s *Stash) Len() int {
	return len(s.pending)
}
