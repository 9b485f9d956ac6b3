package helpers

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"

	httperrors "github.com/dropDatabas3/hellocards/internal/http/errors"
)

const maxBody = 1 << 20

// ReadJSON decodifica el body (máx 1MB). Valida Content-Type.
// Devuelve un *AppError listo para WriteError.
func ReadJSON(w http.ResponseWriter, r *http.Request, v any) error {
	ct := strings.ToLower(r.Header.Get("Content-Type"))
	if !strings.Contains(ct, "application/json") {
		return httperrors.ErrUnsupportedMediaType
	}

	r.Body = http.MaxBytesReader(w, r.Body, maxBody)
	defer r.Body.Close()

	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		var tooLarge *http.MaxBytesError
		switch {
		case errors.As(err, &tooLarge):
			return httperrors.ErrBodyTooLarge
		case errors.Is(err, io.EOF):
			return httperrors.ErrInvalidJSON.WithDetail("empty body")
		default:
			return httperrors.ErrInvalidJSON.WithCause(err)
		}
	}
	return nil
}

// WriteJSON escribe una respuesta JSON estándar.
func WriteJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// BearerToken extrae el token de "Authorization: Bearer <t>". "" si no hay.
func BearerToken(r *http.Request) string {
	h := strings.TrimSpace(r.Header.Get("Authorization"))
	if len(h) < 7 || !strings.EqualFold(h[:7], "bearer ") {
		return ""
	}
	return strings.TrimSpace(h[7:])
}
