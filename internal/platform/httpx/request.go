package httpx

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
)

// ActorHeader carries the acting user id. Authentication is handled upstream.
const ActorHeader = "X-Actor-ID"

var validate = validator.New()

// ValidationError lists per-field validation failures.
type ValidationError struct {
	Detail string
	Fields map[string]string
}

func (e *ValidationError) Error() string {
	return "validation failed: " + e.Detail
}

// Unwrap lets errors.Is match ErrValidation.
func (e *ValidationError) Unwrap() error {
	return ErrValidation
}

// Bind decodes the JSON body into dst and runs struct validation tags.
func Bind(r *http.Request, dst any) error {
	if err := DecodeJSON(r, dst); err != nil {
		return &ValidationError{Detail: fmt.Sprintf("invalid JSON body: %v", err)}
	}
	if err := validate.Struct(dst); err != nil {
		var fieldErrs validator.ValidationErrors
		if !errors.As(err, &fieldErrs) {
			return err
		}
		fields := make(map[string]string, len(fieldErrs))
		names := make([]string, 0, len(fieldErrs))
		for _, fe := range fieldErrs {
			fields[fe.Field()] = fe.Tag()
			names = append(names, fe.Field())
		}
		return &ValidationError{Detail: "invalid fields: " + strings.Join(names, ", "), Fields: fields}
	}
	return nil
}

// URLParamInt64 parses a positive integer route parameter.
func URLParamInt64(r *http.Request, name string) (int64, error) {
	raw := chi.URLParam(r, name)
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return 0, &ValidationError{Detail: fmt.Sprintf("invalid %s %q", name, raw)}
	}
	return id, nil
}

// ActorID returns the acting user id, or 0 when absent.
func ActorID(r *http.Request) int64 {
	id, _ := strconv.ParseInt(strings.TrimSpace(r.Header.Get(ActorHeader)), 10, 64)
	return id
}
