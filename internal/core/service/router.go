package service

import (
	"errors"
	"fmt"

	"github.com/db-tech/conbee2panel/internal/core/domain"
)

const (
	TitleStart      = "Start Page"
	TitleDeconzAuth = "Deconz Authentication"
	TitleConfig     = "Configuration"
	TitleKostalAuth = "Kostal Authentication"
	TitleError      = "Error"

	MessageConnected = "Connected to Conbee2 Controller"
)

var ErrInvalidNavigation = errors.New("navigation not allowed")

// Transition returns the router state after resp. Every valid status is
// adopted as is, whatever the current state; an unknown status leaves the
// state untouched.
func Transition(current domain.InitStatus, resp domain.StatusResponse) (domain.InitStatus, error) {
	if !resp.Status.Valid() {
		return current, fmt.Errorf("%w: %d", domain.ErrUnknownStatus, int(resp.Status))
	}
	return resp.Status, nil
}

// ViewFor selects the page to render. Without a session the login page
// wins over any router state.
func ViewFor(status domain.InitStatus, session domain.Session) domain.View {
	if session.Empty() {
		return domain.ViewLogin
	}
	switch status {
	case domain.StatusOk:
		return domain.ViewStart
	case domain.StatusDeconzAuth:
		return domain.ViewDeconzAuth
	case domain.StatusConfig:
		return domain.ViewConfig
	case domain.StatusKostalAuth:
		return domain.ViewKostalAuth
	case domain.StatusError:
		return domain.ViewError
	default:
		return domain.ViewLogin
	}
}

func TitleFor(status domain.InitStatus) string {
	switch status {
	case domain.StatusDeconzAuth:
		return TitleDeconzAuth
	case domain.StatusConfig:
		return TitleConfig
	case domain.StatusKostalAuth:
		return TitleKostalAuth
	case domain.StatusError:
		return TitleError
	default:
		return TitleStart
	}
}

// ToastFor returns the notification shown when resp is routed. Login has
// none.
func ToastFor(resp domain.StatusResponse) (domain.Toast, bool) {
	switch resp.Status {
	case domain.StatusOk:
		return domain.SuccessToast(MessageConnected), true
	case domain.StatusDeconzAuth, domain.StatusConfig, domain.StatusKostalAuth:
		return domain.InfoToast(resp.StatusMessage), true
	case domain.StatusError:
		return domain.FailureToast("Error: " + resp.StatusMessage), true
	default:
		return domain.Toast{}, false
	}
}

// FormResultToast is the notification the authentication forms raise on
// their own before the response is routed.
func FormResultToast(resp domain.StatusResponse) domain.Toast {
	switch resp.Status {
	case domain.StatusOk:
		return domain.SuccessToast(MessageConnected + ": " + resp.StatusMessage)
	case domain.StatusDeconzAuth:
		return domain.FailureToast("Authentication failed: " + resp.StatusMessage)
	case domain.StatusConfig:
		return domain.FailureToast("Configuration failed: " + resp.StatusMessage)
	case domain.StatusError:
		return domain.FailureToast("Error: " + resp.StatusMessage)
	default:
		return domain.FailureToast("Unknown error: " + resp.StatusMessage)
	}
}

// Navigate synthesises the response behind the local navigation buttons.
func Navigate(from, to domain.View) (domain.StatusResponse, error) {
	switch {
	case from == domain.ViewStart && to == domain.ViewConfig:
		return domain.StatusResponse{Status: domain.StatusConfig, StatusMessage: "Start Configuration"}, nil
	case from == domain.ViewConfig && to == domain.ViewDeconzAuth:
		return domain.StatusResponse{Status: domain.StatusDeconzAuth, StatusMessage: "Deconz Config"}, nil
	case from == domain.ViewConfig && to == domain.ViewKostalAuth:
		return domain.StatusResponse{Status: domain.StatusKostalAuth, StatusMessage: "Kostal Config"}, nil
	}
	return domain.StatusResponse{}, fmt.Errorf("%w: %s -> %s", ErrInvalidNavigation, from, to)
}

// Router is the status router state. The zero value is not ready, use
// NewRouter.
type Router struct {
	status domain.InitStatus
	last   domain.StatusResponse
	title  string
}

func NewRouter() Router {
	return Router{
		status: domain.StatusOk,
		title:  TitleStart,
	}
}

func (r *Router) Status() domain.InitStatus {
	return r.status
}

func (r *Router) Title() string {
	return r.title
}

func (r *Router) LastResponse() domain.StatusResponse {
	return r.last
}

// Apply routes resp and returns the notification to raise, if any.
func (r *Router) Apply(resp domain.StatusResponse) (domain.Toast, bool, error) {
	next, err := Transition(r.status, resp)
	if err != nil {
		return domain.Toast{}, false, err
	}
	r.status = next
	r.last = resp
	r.title = TitleFor(next)
	toast, ok := ToastFor(resp)
	return toast, ok, nil
}

// TransportErrorToast is raised when a call never produced a response.
func TransportErrorToast(err error) domain.Toast {
	return domain.FailureToast("Error: " + err.Error())
}
