package errors

import (
	"encoding/json"
	"net/http"

	"github.com/dropDatabas3/hellocards/internal/directory"
)

// WriteError escribe la respuesta HTTP para err.
// Maneja *AppError, errores de domain y errores genéricos (500).
func WriteError(w http.ResponseWriter, err error) {
	appErr := FromError(err)

	resp := directory.ErrorBody{
		Code:    appErr.Code,
		Message: appErr.Message,
		Detail:  appErr.Detail,
	}

	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(appErr.HTTPStatus)
	_ = json.NewEncoder(w).Encode(resp)
}
