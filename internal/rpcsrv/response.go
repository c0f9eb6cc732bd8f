package rpcsrv

import (
	"encoding/json"
	"net/http"

	"github.com/hamersaw/stip-sub000/internal/apierr"
)

// RespondJSON writes v as a JSON body with status code.
func RespondJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// RespondError maps err onto the apierr taxonomy's HTTP status and writes
// a small JSON error envelope (spec §7).
func RespondError(w http.ResponseWriter, err error) {
	kind := apierr.Of(err)
	status := apierr.HTTPStatus(kind)
	RespondJSON(w, status, map[string]string{
		"error": err.Error(),
		"kind":  string(kind),
	})
}
