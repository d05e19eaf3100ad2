package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/bookloop/bookloop/internal/model"
)

type errorBody struct {
	Error errorDetail `json:"error"`
}

type errorDetail struct {
	Kind     string            `json:"kind"`
	Message  string            `json:"message"`
	Conflict *conflictInterval `json:"conflict,omitempty"`
}

type conflictInterval struct {
	Start string `json:"start"`
	End   string `json:"end"`
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

// writeError renders engine errors with a machine-readable kind. Callers
// branch on the kind; messages are for humans. Unrecognized errors become an
// opaque 500.
func writeError(w http.ResponseWriter, err error) {
	kind := model.ErrorKind(err)
	detail := errorDetail{Kind: kind, Message: err.Error()}

	var status int
	switch kind {
	case model.KindValidation:
		status = http.StatusBadRequest
	case model.KindSlotTaken:
		status = http.StatusConflict
		var ste *model.SlotTakenError
		if errors.As(err, &ste) {
			detail.Conflict = &conflictInterval{
				Start: ste.ConflictStart.UTC().Format(time.RFC3339),
				End:   ste.ConflictEnd.UTC().Format(time.RFC3339),
			}
		}
	case model.KindOutsideAvailability, model.KindInvalidCivilTime:
		status = http.StatusUnprocessableEntity
	case model.KindPollClosed:
		status = http.StatusConflict
	case model.KindNotFound:
		status = http.StatusNotFound
	default:
		status = http.StatusInternalServerError
		detail = errorDetail{Kind: "internal", Message: "internal error"}
	}
	writeJSON(w, status, errorBody{Error: detail})
}

func writeValidation(w http.ResponseWriter, msg string) {
	writeError(w, &model.ValidationError{Message: msg})
}

func ownerFromHeader(r *http.Request) string {
	return r.Header.Get("X-Owner-Id")
}
