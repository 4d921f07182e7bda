package domain

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

var (
	ErrUnknownStatus   = errors.New("unknown init status")
	ErrInvalidUsername = fmt.Errorf("username must be at least %d characters", MinUsernameLength)
)

// InitStatus is the application phase reported by the controller. The
// numeric values are the controller's wire encoding.
type InitStatus int

const (
	StatusOk InitStatus = iota
	StatusDeconzAuth
	StatusConfig
	StatusError
	StatusKostalAuth
	StatusLogin
)

var statusNames = [...]string{
	StatusOk:         "Ok",
	StatusDeconzAuth: "DeconzAuth",
	StatusConfig:     "Config",
	StatusError:      "Error",
	StatusKostalAuth: "KostalAuth",
	StatusLogin:      "Login",
}

func (s InitStatus) Valid() bool {
	return s >= StatusOk && s <= StatusLogin
}

func (s InitStatus) String() string {
	if !s.Valid() {
		return fmt.Sprintf("InitStatus(%d)", int(s))
	}
	return statusNames[s]
}

func ParseInitStatus(name string) (InitStatus, error) {
	for i, n := range statusNames {
		if strings.EqualFold(n, name) {
			return InitStatus(i), nil
		}
	}
	return 0, fmt.Errorf("%w: %q", ErrUnknownStatus, name)
}

func (s InitStatus) MarshalJSON() ([]byte, error) {
	if !s.Valid() {
		return nil, fmt.Errorf("%w: %d", ErrUnknownStatus, int(s))
	}
	return []byte(strconv.Itoa(int(s))), nil
}

// UnmarshalJSON accepts the integer wire form and, for robustness, the
// status name as a string.
func (s *InitStatus) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) > 0 && data[0] == '"' {
		var name string
		if err := json.Unmarshal(data, &name); err != nil {
			return err
		}
		parsed, err := ParseInitStatus(name)
		if err != nil {
			return err
		}
		*s = parsed
		return nil
	}
	var n int
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("%w: %s", ErrUnknownStatus, string(data))
	}
	if !InitStatus(n).Valid() {
		return fmt.Errorf("%w: %d", ErrUnknownStatus, n)
	}
	*s = InitStatus(n)
	return nil
}

type StatusResponse struct {
	Status        InitStatus
	StatusMessage string
}

func (r StatusResponse) IsOk() bool {
	return r.Status == StatusOk
}

// View is the page rendered for a router state.
type View string

const (
	ViewLogin      View = "login"
	ViewStart      View = "start"
	ViewDeconzAuth View = "deconz_auth"
	ViewConfig     View = "config"
	ViewKostalAuth View = "kostal_auth"
	ViewError      View = "error"
)

type ToastKind string

const (
	ToastInfo    ToastKind = "info"
	ToastSuccess ToastKind = "success"
	ToastFailure ToastKind = "failure"
)

type Toast struct {
	Kind    ToastKind
	Message string
	At      time.Time
}

func InfoToast(msg string) Toast {
	return Toast{Kind: ToastInfo, Message: msg, At: time.Now()}
}

func SuccessToast(msg string) Toast {
	return Toast{Kind: ToastSuccess, Message: msg, At: time.Now()}
}

func FailureToast(msg string) Toast {
	return Toast{Kind: ToastFailure, Message: msg, At: time.Now()}
}

const MinUsernameLength = 3

// Session identifies the browser user. The zero value is "logged out".
type Session struct {
	Username string
}

func NewSession(username string) (Session, error) {
	username = strings.TrimSpace(username)
	if len([]rune(username)) < MinUsernameLength {
		return Session{}, ErrInvalidUsername
	}
	return Session{Username: username}, nil
}

func (s Session) Empty() bool {
	return s.Username == ""
}
