package fissile

import (
	"encoding/json"
	"net/http"

	"github.com/juju/errors"
)

const internalKind = "internal"

// errorKind ties a juju error type to the wire kind and HTTP status
// used when the error crosses from backend to frontend.
type errorKind struct {
	kind    string
	match   errors.ConstError
	status  int
	rebuild func(msg string) error
}

var errorKinds = []errorKind{
	{"not-valid", errors.NotValid, http.StatusBadRequest, func(m string) error { return errors.NewNotValid(nil, m) }},
	{"bad-request", errors.BadRequest, http.StatusBadRequest, func(m string) error { return errors.NewBadRequest(nil, m) }},
	{"unauthorized", errors.Unauthorized, http.StatusUnauthorized, func(m string) error { return errors.NewUnauthorized(nil, m) }},
	{"forbidden", errors.Forbidden, http.StatusForbidden, func(m string) error { return errors.NewForbidden(nil, m) }},
	{"not-found", errors.NotFound, http.StatusNotFound, func(m string) error { return errors.NewNotFound(nil, m) }},
	{"method-not-allowed", errors.MethodNotAllowed, http.StatusMethodNotAllowed, func(m string) error { return errors.NewMethodNotAllowed(nil, m) }},
	{"already-exists", errors.AlreadyExists, http.StatusConflict, func(m string) error { return errors.NewAlreadyExists(nil, m) }},
	{"not-implemented", errors.NotImplemented, http.StatusNotImplemented, func(m string) error { return errors.NewNotImplemented(nil, m) }},
	{"timeout", errors.Timeout, http.StatusGatewayTimeout, func(m string) error { return errors.NewTimeout(nil, m) }},
}

// wireError is the "error" member of a failed response.
type wireError struct {
	Kind    string `json:"kind"`
	Message string `json:"message"`
}

// RemoteError is returned by forwarded calls when the backend failed
// with an error that has no more specific kind.
type RemoteError struct {
	Func    string
	Status  int
	Message string
}

func (e *RemoteError) Error() string {
	return e.Func + ": backend returned " + http.StatusText(e.Status) + ": " + e.Message
}

func kindOf(err error) (string, int) {
	for _, k := range errorKinds {
		if errors.Is(err, k.match) {
			return k.kind, k.status
		}
	}
	return internalKind, http.StatusInternalServerError
}

// StatusCode returns the HTTP status a view uses to report err.
func StatusCode(err error) int {
	_, status := kindOf(err)
	return status
}

func writeError(w http.ResponseWriter, err error) {
	kind, status := kindOf(err)
	writeJSON(w, status, struct {
		Error wireError `json:"error"`
	}{wireError{Kind: kind, Message: err.Error()}})
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	encoded, err := json.Marshal(v)
	if err != nil {
		logger.Errorf("cannot encode response: %v", err)
		status = http.StatusInternalServerError
		encoded, _ = json.Marshal(struct {
			Error wireError `json:"error"`
		}{wireError{Kind: internalKind, Message: "cannot encode response: " + err.Error()}})
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(encoded)
}

// toError turns a decoded wire error back into the matching juju error.
func (e *wireError) toError(funcName string, status int) error {
	for _, k := range errorKinds {
		if k.kind == e.Kind {
			return errors.Annotatef(k.rebuild(e.Message), "calling %s", funcName)
		}
	}
	return &RemoteError{Func: funcName, Status: status, Message: e.Message}
}

// statusError is used when a failed response carries no wire error,
// for example a 404 from a router that does not know the route.
func statusError(funcName string, status int, body string) error {
	for _, k := range errorKinds {
		if k.status == status {
			return errors.Annotatef(k.rebuild(body), "calling %s", funcName)
		}
	}
	return &RemoteError{Func: funcName, Status: status, Message: body}
}
