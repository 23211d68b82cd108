package handler

import (
	"errors"
	"log"
	"net/http"

	jsoniter "github.com/json-iterator/go"

	"github.com/atlekbai/crud_registry/internal/service"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// bodyJSON decodes write bodies. Numbers stay exact until a field type is known.
var bodyJSON = jsoniter.Config{
	EscapeHTML:             true,
	SortMapKeys:            true,
	ValidateJsonRawMessage: true,
	UseNumber:              true,
}.Froze()

// Envelope wraps every API response.
type Envelope struct {
	Data      any                 `json:"data,omitempty"`
	IsSuccess bool                `json:"isSuccess"`
	Errors    []*service.AppError `json:"errors,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeData(w http.ResponseWriter, data any) {
	writeJSON(w, http.StatusOK, Envelope{Data: data, IsSuccess: true})
}

// writeError maps err to a status: 404 for unknown objects, 409 for unique
// conflicts, 500 for internal errors, 400 for every other failure. Validation
// failures list every violation.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	appErr := service.AsAppError(err)
	errs := []*service.AppError{appErr}
	var verrs service.ValidationErrors
	if errors.As(err, &verrs) {
		errs = verrs
	}

	status := http.StatusBadRequest
	switch {
	case errors.Is(err, service.ErrUnknownObject):
		status = http.StatusNotFound
	case appErr.Code == service.InternalSystemError:
		status = http.StatusInternalServerError
		log.Printf("%s %s: %v", r.Method, r.URL.Path, err)
	case appErr.Code == service.AlreadyFound:
		status = http.StatusConflict
	}

	writeJSON(w, status, Envelope{Errors: errs})
}
