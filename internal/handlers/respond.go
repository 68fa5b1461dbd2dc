package handlers

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/Flashl3opard/structify/internal/bridge"
)

const (
	msgInvalidJSON  = "Invalid JSON format"
	msgBodyTooLarge = "Request body too large"
)

// writeJSON is a small helper to send JSON responses consistently.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeRaw(w http.ResponseWriter, status int, body []byte) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(body)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, bridge.Envelope{Error: msg})
}

// readBody reads the whole request body. ok is false when the body exceeded
// the size limit; the 413 has already been written.
func readBody(w http.ResponseWriter, r *http.Request) ([]byte, bool) {
	data, err := io.ReadAll(r.Body)
	var maxErr *http.MaxBytesError
	if errors.As(err, &maxErr) {
		writeError(w, http.StatusRequestEntityTooLarge, msgBodyTooLarge)
		return nil, false
	}
	return data, true
}
