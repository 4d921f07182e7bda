package port

import (
	"context"

	"github.com/db-tech/conbee2panel/internal/core/domain"
)

// Controller is the remote conbee2 controller as seen by the panel.
// Login, StartMonitoring, StopMonitoring and Init are fire-and-forget.
type Controller interface {
	Connected() bool

	Login(username string)
	Status(ctx context.Context) (domain.StatusResponse, error)
	Authenticate(ctx context.Context, params domain.AuthenticateParams) (domain.StatusResponse, error)
	LoginKostal(ctx context.Context, params domain.AuthenticateParams) (domain.StatusResponse, error)
	GetLights(ctx context.Context) (domain.Lights, error)
	GetProperties(ctx context.Context) (domain.Properties, error)
	SaveProperties(ctx context.Context, props domain.Properties) (domain.StatusResponse, error)
	SwitchLightOn(ctx context.Context, lightId string) (domain.StatusResponse, error)
	SwitchLightOff(ctx context.Context, lightId string) (domain.StatusResponse, error)
	StartMonitoring()
	StopMonitoring()
	Init()
}

// ControllerListener receives connection changes and server pushes.
type ControllerListener interface {
	ConnectionChanged(connected bool)
	DataPushed(n domain.DataNotification)
	MonitoringPushed(n domain.MonitoringNotification)
}
