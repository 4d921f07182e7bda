package service

import (
	"context"
	"fmt"

	"github.com/db-tech/conbee2panel/internal/core/domain"
	"github.com/db-tech/conbee2panel/internal/core/port"
)

type PlugResult struct {
	// Switched is false when the controller refused the switch.
	Switched    bool
	SocketState bool
	Response    domain.StatusResponse
}

// SwitchPlug switches the configured plug. The plug name is read from the
// controller properties on every call.
func SwitchPlug(ctx context.Context, controller port.Controller, on bool) (PlugResult, error) {
	props, err := controller.GetProperties(ctx)
	if err != nil {
		return PlugResult{}, fmt.Errorf("get properties: %w", err)
	}

	var resp domain.StatusResponse
	if on {
		resp, err = controller.SwitchLightOn(ctx, props.PlugName)
	} else {
		resp, err = controller.SwitchLightOff(ctx, props.PlugName)
	}
	if err != nil {
		return PlugResult{}, fmt.Errorf("switch %s: %w", props.PlugName, err)
	}

	return PlugResult{
		Switched:    resp.IsOk(),
		SocketState: on,
		Response:    resp,
	}, nil
}

// TogglePlug flips the plug relative to the last known socket state.
func TogglePlug(ctx context.Context, controller port.Controller, current bool) (PlugResult, error) {
	return SwitchPlug(ctx, controller, !current)
}

// PlugFailureToast is raised when the controller refuses a switch.
func PlugFailureToast(resp domain.StatusResponse) domain.Toast {
	return domain.FailureToast("Error: " + resp.StatusMessage)
}
