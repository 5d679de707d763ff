package api

import (
	"encoding/json"
	"net/http"

	"github.com/sensorhub-io/hub/core"
)

// errorBody is the JSON shape every error response carries.
type errorBody struct {
	Error string `json:"error"`
}

// writeError maps a store/domain error to an HTTP status per spec §7 and
// writes a small JSON body describing it.
func writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch {
	case core.IsNotFound(err):
		status = http.StatusNotFound
	case core.IsAlreadyExists(err):
		status = http.StatusConflict
	case core.IsReadOnly(err):
		status = http.StatusMethodNotAllowed
	case core.IsValidationError(err):
		status = http.StatusBadRequest
	case core.KindOf(err) == core.ErrKindInvalidRequest, core.KindOf(err) == core.ErrKindParse:
		status = http.StatusBadRequest
	}
	writeJSONStatus(w, status, errorBody{Error: err.Error()})
}

func writeJSONStatus(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
