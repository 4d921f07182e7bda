package service

import (
	"context"
	"fmt"

	"github.com/db-tech/conbee2panel/internal/core/domain"
	"github.com/db-tech/conbee2panel/internal/core/port"
)

// Login validates the username, announces it to the controller and asks
// for the current status. The login notification and the status request go
// out on the same connection, in that order.
func Login(ctx context.Context, controller port.Controller, username string) (domain.Session, domain.StatusResponse, error) {
	session, err := domain.NewSession(username)
	if err != nil {
		return domain.Session{}, domain.StatusResponse{}, err
	}
	controller.Login(session.Username)
	resp, err := controller.Status(ctx)
	if err != nil {
		return session, domain.StatusResponse{}, fmt.Errorf("status after login: %w", err)
	}
	return session, resp, nil
}
