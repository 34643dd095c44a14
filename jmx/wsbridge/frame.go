package wsbridge

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/markheger/streamsx.metrics/jmx"
)

// Request operations.
const (
	opConnect        = "connect"
	opQueryNames     = "queryNames"
	opGetAttribute   = "getAttribute"
	opAddListener    = "addListener"
	opRemoveListener = "removeListener"
)

// Error codes carried in error frames.
const (
	codeNotFound       = "not_found"
	codeAuthentication = "authentication"
	codeClosed         = "closed"
	codeBadRequest     = "bad_request"
	codeFailed         = "failed"
)

type environment struct {
	User             string   `json:"user,omitempty"`
	Password         string   `json:"password,omitempty"`
	ProviderPackages string   `json:"providerPackages,omitempty"`
	TLSProtocols     []string `json:"tlsProtocols,omitempty"`
}

func toWire(env jmx.Environment) *environment {
	return &environment{
		User:             env.User,
		Password:         env.Password,
		ProviderPackages: env.ProviderPackages,
		TLSProtocols:     env.TLSProtocols,
	}
}

func (e *environment) jmx() jmx.Environment {
	if e == nil {
		return jmx.Environment{}
	}
	return jmx.Environment{
		User:             e.User,
		Password:         e.Password,
		ProviderPackages: e.ProviderPackages,
		TLSProtocols:     e.TLSProtocols,
	}
}

type request struct {
	ID        int64          `json:"id"`
	Op        string         `json:"op"`
	Name      jmx.ObjectName `json:"name,omitempty"`
	Attribute string         `json:"attribute,omitempty"`
	Listener  jmx.ListenerID `json:"listener,omitempty"`
	Env       *environment   `json:"env,omitempty"`
}

type event struct {
	Listener     jmx.ListenerID   `json:"listener,omitempty"`
	Notification jmx.Notification `json:"notification"`
}

// frame is anything the bridge sends: a reply when ID is set, a pushed
// event otherwise.
type frame struct {
	ID     int64           `json:"id,omitempty"`
	Result json.RawMessage `json:"result,omitempty"`
	Error  *wireError      `json:"error,omitempty"`
	Event  *event          `json:"event,omitempty"`
}

type connectResult struct {
	ConnectionID string `json:"connectionId"`
}

type wireError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func (w *wireError) err() error {
	switch w.Code {
	case codeNotFound:
		return fmt.Errorf("%w: %s", jmx.ErrNotFound, w.Message)
	case codeAuthentication:
		return fmt.Errorf("%w: %s", jmx.ErrAuthentication, w.Message)
	case codeClosed:
		return fmt.Errorf("%w: %s", jmx.ErrClosed, w.Message)
	default:
		return fmt.Errorf("wsbridge: %s: %s", w.Code, w.Message)
	}
}

func toWireError(err error) *wireError {
	code := codeFailed
	var br *badRequest
	switch {
	case errors.As(err, &br):
		code = codeBadRequest
	case errors.Is(err, jmx.ErrNotFound):
		code = codeNotFound
	case errors.Is(err, jmx.ErrAuthentication):
		code = codeAuthentication
	case jmx.IsConnectionError(err):
		code = codeClosed
	}
	return &wireError{Code: code, Message: err.Error()}
}
