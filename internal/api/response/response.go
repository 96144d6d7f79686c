package response

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
)

type errorEnvelope struct {
	Error errorBody `json:"error"`
}

type errorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Details any    `json:"details,omitempty"`
}

// JSON writes data as a 200 response body.
func JSON(w http.ResponseWriter, data any) {
	Write(w, http.StatusOK, data)
}

// Created writes data as a 201 response body.
func Created(w http.ResponseWriter, data any) {
	Write(w, http.StatusCreated, data)
}

// Error writes the standard error envelope.
func Error(w http.ResponseWriter, status int, code, message string, details any) {
	Write(w, status, errorEnvelope{Error: errorBody{
		Code:    code,
		Message: message,
		Details: details,
	}})
}

// Write encodes v as JSON with the given status.
func Write(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// File writes a binary attachment.
func File(w http.ResponseWriter, contentType, filename string, data []byte) {
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
	w.Header().Set("Content-Length", strconv.Itoa(len(data)))
	w.WriteHeader(http.StatusOK)
	w.Write(data)
}
