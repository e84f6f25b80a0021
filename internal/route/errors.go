package route

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/tjfontaine/stageline/internal/core/domain"
)

// ErrorResponse translates a stage failure into the structured JSON error
// response. The status comes only from the failing stage.
func ErrorResponse(err *domain.StageError, now time.Time) domain.Triple {
	if err == nil {
		err = domain.NewStageError(domain.KindFault, "unknown", "unknown failure")
	}
	return JSONResponse(err.HTTPStatusCode(), err.Body(now))
}

// JSONResponse encodes v as a JSON response triple.
func JSONResponse(status int, v any) domain.Triple {
	body, err := json.Marshal(v)
	if err != nil {
		status = http.StatusInternalServerError
		body = []byte(`{"error":"failed to encode response"}`)
	}
	h := make(http.Header)
	h.Set("Content-Type", "application/json")
	return domain.Triple{Status: status, Headers: h, Body: body}
}
