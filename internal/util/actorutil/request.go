package actorutil

import (
	"github.com/db-tech/conbee2panel/internal/core/domain"

	"github.com/asynkron/protoactor-go/actor"
)

// ExtendedRequest answers a request either to its explicit reply-to PID or,
// when none is set, to the sender of the current message.
type ExtendedRequest interface {
	Respond(ctx actor.Context, resp domain.ActorResponse)
	ReplyTo(ctx actor.Context) *actor.PID
}

type forRequest struct {
	req domain.ActorRequest
}

func ForRequest(r domain.ActorRequest) ExtendedRequest {
	return forRequest{req: r}
}

func (r forRequest) ReplyTo(ctx actor.Context) *actor.PID {
	if ref := r.req.ReplyTo(); ref != nil {
		return (*actor.PID)(ref)
	}
	return ctx.Sender()
}

// Respond drops the response when nobody asked, e.g. for a plain Send.
func (r forRequest) Respond(ctx actor.Context, resp domain.ActorResponse) {
	if pid := r.ReplyTo(ctx); pid != nil {
		ctx.Send(pid, resp)
	}
}
