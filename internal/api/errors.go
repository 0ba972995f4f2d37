package api

import (
	"errors"
	"net/http"
)

// Problem is an error the HTTP surface reports to the caller: a status, a
// stable machine-readable code and a human message.
type Problem struct {
	Status  int
	Code    string
	Message string
}

func (p *Problem) Error() string {
	return p.Code + ": " + p.Message
}

// Problems shared by the chat, history, memory and todo endpoints.
var (
	ErrMalformedBody      = &Problem{http.StatusBadRequest, "malformed_body", "request body is not valid JSON"}
	ErrMissingCredentials = &Problem{http.StatusUnauthorized, "unauthenticated", "an Authorization: Bearer token is required"}
	ErrRejectedToken      = &Problem{http.StatusUnauthorized, "unauthenticated", "bearer token is invalid or expired"}
	ErrTurnInProgress     = &Problem{http.StatusConflict, "turn_in_progress", "a conversation turn is already running"}
	ErrKeysUnavailable    = &Problem{http.StatusServiceUnavailable, "keys_unavailable", "the secret store cannot supply the data key"}
	ErrStoreFailure       = &Problem{http.StatusInternalServerError, "store_failure", "local conversation data could not be read or written"}
)

// InvalidInput reports a request that parsed but failed validation.
func InvalidInput(msg string) *Problem {
	return &Problem{http.StatusBadRequest, "invalid_input", msg}
}

// UnknownID reports a history entry or memory that does not exist.
func UnknownID(msg string) *Problem {
	return &Problem{http.StatusNotFound, "unknown_id", msg}
}

// WriteError renders err as a JSON error body. Anything that is not a
// Problem is reported as an internal failure without its details.
func WriteError(w http.ResponseWriter, err error) {
	var p *Problem
	if !errors.As(err, &p) {
		p = &Problem{http.StatusInternalServerError, "internal", "internal error"}
	}
	writeProblem(w, p)
}
