package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"

	"go.uber.org/zap"

	"github.com/amelia-orch/amelia/internal/errs"
	"github.com/amelia-orch/amelia/internal/persistence"
)

// ErrConflict marks a state conflict (e.g. approving a workflow that isn't
// awaiting_approval) for the 409 branch of writeError. Exported so a
// WorkflowService implementation outside this package (cmd/amelia's
// orchestrator) can wrap it with errors.Join/fmt.Errorf("%w", ...) and have
// it map correctly without either package importing the other's concrete
// types.
var ErrConflict = errors.New("state conflict")

// errBadRequest marks a malformed request body or path for the 400 branch.
var errBadRequest = errors.New("malformed request")

// errTooManyRequests marks a rate-limited pairing request for the 429 branch.
var errTooManyRequests = errors.New("rate limit exceeded")

type errorBody struct {
	Error string `json:"error"`
}

// writeError maps an error to the HTTP status table in spec.md §6.1: 400
// malformed, 401 auth, 404 not found, 409 state conflict, 410 token used,
// 429 rate limited, 5xx internal. The sandbox proxy writes its own 401
// directly since an unresolved profile there isn't a device-auth failure.
func writeError(w http.ResponseWriter, logger *zap.Logger, err error) {
	var authErr *errs.AuthError
	status := http.StatusInternalServerError
	switch {
	case errors.As(err, &authErr), errors.Is(err, errs.ErrDeviceRevoked):
		status = http.StatusUnauthorized
	case errors.Is(err, persistence.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, persistence.ErrTokenUsed):
		status = http.StatusGone
	case errors.Is(err, ErrConflict):
		status = http.StatusConflict
	case errors.Is(err, errBadRequest):
		status = http.StatusBadRequest
	case errors.Is(err, errTooManyRequests):
		status = http.StatusTooManyRequests
	}

	if status == http.StatusInternalServerError {
		logger.Error("http handler error", zap.Error(err))
	}
	writeJSON(w, status, errorBody{Error: err.Error()})
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func decodeJSON(r *http.Request, target any) error {
	if err := json.NewDecoder(r.Body).Decode(target); err != nil {
		return errors.Join(errBadRequest, err)
	}
	return nil
}
