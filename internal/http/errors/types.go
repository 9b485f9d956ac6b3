// Package errors define los errores HTTP del API de cards y su mapeo desde domain.
package errors

import (
	stderrors "errors"
	"fmt"
	"net/http"

	"github.com/dropDatabas3/hellocards/internal/directory"
	"github.com/dropDatabas3/hellocards/internal/domain"
)

// AppError es el error estándar de la capa HTTP.
type AppError struct {
	Code       string `json:"code"`
	Message    string `json:"message"`
	Detail     string `json:"detail,omitempty"`
	HTTPStatus int    `json:"-"`
	Err        error  `json:"-"` // causa, solo para logs
}

func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

func (e *AppError) Unwrap() error {
	return e.Err
}

func New(status int, code, message string) *AppError {
	return &AppError{Code: code, Message: message, HTTPStatus: status}
}

// FromError convierte err en *AppError. Los errores de domain se mapean con FromDomain;
// cualquier otro es un 500 que conserva la causa.
func FromError(err error) *AppError {
	var appErr *AppError
	if stderrors.As(err, &appErr) {
		return appErr
	}
	if mapped := FromDomain(err); mapped != nil {
		return mapped
	}
	return ErrInternalServerError.WithCause(err)
}

// FromDomain mapea la taxonomía de domain a errores HTTP. nil si err no pertenece a ella.
func FromDomain(err error) *AppError {
	var base *AppError
	switch {
	case stderrors.Is(err, domain.ErrInvalidArgument), stderrors.Is(err, domain.ErrMissingIdentities):
		base = ErrBadRequest
	case stderrors.Is(err, domain.ErrUnauthorized):
		base = ErrTokenInvalid
	case stderrors.Is(err, domain.ErrForbidden):
		base = ErrForbidden
	case stderrors.Is(err, domain.ErrNotFound), stderrors.Is(err, domain.ErrCardNotFound):
		base = ErrNotFound
	case stderrors.Is(err, domain.ErrDuplicateIdentity), stderrors.Is(err, domain.ErrDuplicateCards):
		base = ErrDuplicateIdentity
	case stderrors.Is(err, domain.ErrSignature):
		base = ErrSignatureInvalid
	case stderrors.Is(err, domain.ErrRateLimited):
		base = ErrRateLimitExceeded
	case stderrors.Is(err, domain.ErrIssuerUnavailable), stderrors.Is(err, domain.ErrNetwork):
		base = ErrServiceUnavailable
	default:
		return nil
	}
	return base.WithDetail(err.Error()).WithCause(err)
}

// WithDetail devuelve una COPIA con detalle.
func (e *AppError) WithDetail(detail string) *AppError {
	newErr := *e
	newErr.Detail = detail
	return &newErr
}

// WithCause devuelve una COPIA con la causa original.
func (e *AppError) WithCause(err error) *AppError {
	newErr := *e
	newErr.Err = err
	return &newErr
}

// 400

var (
	ErrBadRequest = &AppError{
		Code:       "BAD_REQUEST",
		Message:    "La solicitud contiene sintaxis inválida o parámetros faltantes.",
		HTTPStatus: http.StatusBadRequest,
	}

	ErrInvalidJSON = &AppError{
		Code:       "INVALID_JSON",
		Message:    "El cuerpo de la solicitud no es un JSON válido.",
		HTTPStatus: http.StatusBadRequest,
	}

	ErrUnsupportedMediaType = &AppError{
		Code:       "UNSUPPORTED_MEDIA_TYPE",
		Message:    "Content-Type debe ser application/json.",
		HTTPStatus: http.StatusUnsupportedMediaType,
	}

	ErrBodyTooLarge = &AppError{
		Code:       "BODY_TOO_LARGE",
		Message:    "El cuerpo de la solicitud excede el tamaño máximo permitido.",
		HTTPStatus: http.StatusRequestEntityTooLarge,
	}
)

// 401 / 403

var (
	ErrTokenMissing = &AppError{
		Code:       "TOKEN_MISSING",
		Message:    "No se proporcionó token de autenticación.",
		HTTPStatus: http.StatusUnauthorized,
	}

	ErrTokenInvalid = &AppError{
		Code:       "TOKEN_INVALID",
		Message:    "El token de acceso es inválido o expiró.",
		HTTPStatus: http.StatusUnauthorized,
	}

	ErrForbidden = &AppError{
		Code:       "FORBIDDEN",
		Message:    "No tiene permisos para realizar esta acción.",
		HTTPStatus: http.StatusForbidden,
	}
)

// 404 / 405 / 409 / 422

var (
	ErrNotFound = &AppError{
		Code:       "NOT_FOUND",
		Message:    "El recurso solicitado no fue encontrado.",
		HTTPStatus: http.StatusNotFound,
	}

	ErrMethodNotAllowed = &AppError{
		Code:       "METHOD_NOT_ALLOWED",
		Message:    "Método no permitido.",
		HTTPStatus: http.StatusMethodNotAllowed,
	}

	ErrDuplicateIdentity = &AppError{
		Code:       "DUPLICATE_IDENTITY",
		Message:    "La identity ya tiene una card activa.",
		HTTPStatus: http.StatusConflict,
	}

	ErrSignatureInvalid = &AppError{
		Code:       directory.CodeSignatureInvalid,
		Message:    "La firma de la card es inválida.",
		HTTPStatus: http.StatusUnprocessableEntity,
	}
)

// 429 / 5xx

var (
	ErrRateLimitExceeded = &AppError{
		Code:       "RATE_LIMIT_EXCEEDED",
		Message:    "Ha excedido el límite de publicaciones. Intente más tarde.",
		HTTPStatus: http.StatusTooManyRequests,
	}

	ErrInternalServerError = &AppError{
		Code:       "INTERNAL_SERVER_ERROR",
		Message:    "Ocurrió un error interno en el servidor.",
		HTTPStatus: http.StatusInternalServerError,
	}

	ErrServiceUnavailable = &AppError{
		Code:       "SERVICE_UNAVAILABLE",
		Message:    "El servicio no está disponible temporalmente.",
		HTTPStatus: http.StatusServiceUnavailable,
	}
)
