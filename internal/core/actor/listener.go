package actor

import (
	"github.com/db-tech/conbee2panel/internal/core/domain"
	"github.com/db-tech/conbee2panel/internal/core/port"

	"github.com/asynkron/protoactor-go/actor"
)

// PanelListener forwards controller callbacks to an actor as panel
// messages. The callbacks never block on the actor.
type PanelListener struct {
	root *actor.RootContext
	pid  *actor.PID
}

func NewPanelListener(root *actor.RootContext, pid *actor.PID) *PanelListener {
	return &PanelListener{root: root, pid: pid}
}

func (l *PanelListener) ConnectionChanged(connected bool) {
	l.root.Send(l.pid, domain.ConnectionStateChanged{Connected: connected})
}

func (l *PanelListener) DataPushed(n domain.DataNotification) {
	l.root.Send(l.pid, domain.DataPushed{Notification: n})
}

func (l *PanelListener) MonitoringPushed(n domain.MonitoringNotification) {
	l.root.Send(l.pid, domain.MonitoringPushed{Enabled: n.Enabled})
}

var _ port.ControllerListener = (*PanelListener)(nil)
