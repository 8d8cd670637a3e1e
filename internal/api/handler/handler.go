// Package handler contains HTTP handlers grouped by resource.
package handler

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"reflect"
	"strings"

	"github.com/d9705996/artisan/internal/api/envelope"
	"github.com/d9705996/artisan/internal/api/middleware"
	"github.com/d9705996/artisan/internal/billing"
	"github.com/d9705996/artisan/internal/documents"
	"github.com/d9705996/artisan/internal/integration"
	"github.com/d9705996/artisan/internal/integration/calendar"
	"github.com/d9705996/artisan/internal/store"
	"github.com/go-playground/validator/v10"
)

const maxBodyBytes = 1 << 20

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	// Report JSON names, the ones the client sent.
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// decode reads a JSON body into dst and validates it. On failure the error
// response is already written and decode returns false. An empty body is
// accepted when optional is set.
func decode(w http.ResponseWriter, r *http.Request, dst any, optional bool) bool {
	err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(dst)
	switch {
	case errors.Is(err, io.EOF) && optional:
	case err != nil:
		envelope.Error(w, http.StatusBadRequest, "invalid_body", "request body must be valid JSON: "+err.Error())
		return false
	}
	if err := validate.Struct(dst); err != nil {
		writeValidation(w, err)
		return false
	}
	return true
}

func writeValidation(w http.ResponseWriter, err error) {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		envelope.Error(w, http.StatusBadRequest, "validation_failed", err.Error())
		return
	}
	fields := make(map[string]string, len(verrs))
	for _, fe := range verrs {
		fields[fieldPath(fe)] = fieldMessage(fe)
	}
	envelope.Error(w, http.StatusBadRequest, "validation_failed", fields)
}

// fieldPath drops the Go struct name from the namespace:
// "devisRequest.lignes[0].designation" becomes "lignes[0].designation".
func fieldPath(fe validator.FieldError) string {
	ns := fe.Namespace()
	if _, rest, ok := strings.Cut(ns, "."); ok {
		return rest
	}
	return ns
}

func fieldMessage(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required", "required_without":
		return "champ obligatoire"
	case "email":
		return "adresse email invalide"
	case "url":
		return "URL invalide"
	case "max":
		if fe.Kind() == reflect.String {
			return "au plus " + fe.Param() + " caractères"
		}
		return "au plus " + fe.Param()
	case "len":
		return "exactement " + fe.Param() + " caractères"
	case "numeric":
		return "chiffres uniquement"
	case "gte":
		return "doit être supérieur ou égal à " + fe.Param()
	case "lte":
		return "doit être inférieur ou égal à " + fe.Param()
	case "gtfield":
		return "doit être postérieur à " + fe.Param()
	case "oneof":
		return "valeurs possibles : " + fe.Param()
	default:
		return "invalide (" + fe.Tag() + ")"
	}
}

// writeError maps domain errors to HTTP responses. Unexpected errors are
// logged and answered with a generic 500.
func writeError(w http.ResponseWriter, r *http.Request, log *slog.Logger, err error) {
	var upstream *integration.UpstreamError
	switch {
	case errors.Is(err, billing.ErrUnknownStatus):
		envelope.Error(w, http.StatusBadRequest, "invalid_status", err.Error())
	case errors.Is(err, documents.ErrNoRecipient):
		envelope.Error(w, http.StatusBadRequest, "validation_failed", map[string]string{"to": "le client n'a pas d'adresse email"})
	case errors.Is(err, store.ErrNotFound):
		envelope.Error(w, http.StatusNotFound, "not_found", err.Error())
	case errors.Is(err, billing.ErrInvalidTransition):
		envelope.Error(w, http.StatusConflict, "invalid_transition", err.Error())
	case errors.Is(err, store.ErrClientInUse):
		envelope.Error(w, http.StatusConflict, "client_in_use", err.Error())
	case errors.Is(err, store.ErrConflict):
		envelope.Error(w, http.StatusConflict, "conflict", err.Error())
	case errors.Is(err, calendar.ErrNotConnected):
		envelope.Error(w, http.StatusConflict, "not_connected", err.Error())
	case errors.Is(err, integration.ErrNotConfigured):
		envelope.Error(w, http.StatusServiceUnavailable, "config_missing", err.Error())
	case errors.As(err, &upstream):
		log.WarnContext(r.Context(), "upstream failure",
			"provider", upstream.Provider, "status", upstream.Status, "error", upstream.Message)
		envelope.Error(w, http.StatusBadGateway, "upstream_error", upstream.Error())
	default:
		log.ErrorContext(r.Context(), "request failed", "method", r.Method, "path", r.URL.Path, "error", err)
		envelope.Error(w, http.StatusInternalServerError, "internal_error", "unexpected server error")
	}
}

func tenantID(r *http.Request) string { return middleware.TenantID(r.Context()) }

type deleted struct {
	ID      string `json:"id"`
	Deleted bool   `json:"deleted"`
}
