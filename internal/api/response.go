package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/xtrntr/tradeproof/internal/proof"
)

type envelope struct {
	Success bool               `json:"success"`
	Data    interface{}        `json:"data,omitempty"`
	Error   string             `json:"error,omitempty"`
	Details []proof.FieldError `json:"details,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeData(w http.ResponseWriter, status int, data interface{}) {
	writeJSON(w, status, envelope{Success: true, Data: data})
}

func writeError(w http.ResponseWriter, status int, message string, details ...proof.FieldError) {
	writeJSON(w, status, envelope{Success: false, Error: message, Details: details})
}

const maxBodyBytes = 1 << 20

// decode reads exactly one JSON object into dst, rejecting unknown fields
func decode(w http.ResponseWriter, r *http.Request, dst interface{}) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return &proof.ValidationError{Fields: []proof.FieldError{{Field: "body", Message: bodyMessage(err)}}}
	}
	if err := dec.Decode(&struct{}{}); !errors.Is(err, io.EOF) {
		return &proof.ValidationError{Fields: []proof.FieldError{{Field: "body", Message: "must contain a single JSON object"}}}
	}
	return nil
}

func bodyMessage(err error) string {
	var typeErr *json.UnmarshalTypeError
	switch {
	case errors.As(err, &typeErr):
		return fmt.Sprintf("field %q has the wrong type", typeErr.Field)
	case errors.Is(err, io.EOF):
		return "request body is empty"
	}
	return err.Error()
}
