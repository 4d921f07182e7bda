package actorutil

import (
	"github.com/asynkron/protoactor-go/actor"
)

// ActorWithStates drives an actor.Behavior with named states and keeps
// track of the active one for logs and health answers.
type ActorWithStates struct {
	Behavior actor.Behavior
	states   []ActorState
}

type ActorState interface {
	Name() string
	Receive(actor.Context)
}

func (s *ActorWithStates) Become(state ActorState) {
	s.states = []ActorState{state}
	s.Behavior.Become(state.Receive)
}

func (s *ActorWithStates) BecomeStacked(state ActorState) {
	s.states = append(s.states, state)
	s.Behavior.BecomeStacked(state.Receive)
}

func (s *ActorWithStates) UnbecomeStacked() {
	if len(s.states) > 1 {
		s.states = s.states[:len(s.states)-1]
	}
	s.Behavior.UnbecomeStacked()
}

// StateName is the name of the active state, "" before the first Become.
func (s *ActorWithStates) StateName() string {
	if len(s.states) == 0 {
		return ""
	}
	return s.states[len(s.states)-1].Name()
}
