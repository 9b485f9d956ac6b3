// Package domain agrupa los errores comunes a issuer, publisher, directorio y lookup.
package domain

import "errors"

var (
	// ErrInvalidArgument: error del caller, nunca se reintenta.
	ErrInvalidArgument = errors.New("invalid_argument")

	// ErrIssuerUnavailable: no se pudo obtener la clave de firma del issuer. Transitorio.
	ErrIssuerUnavailable = errors.New("issuer_unavailable")

	// ErrNetwork: fallo de transporte o 5xx del directorio. Transitorio.
	ErrNetwork = errors.New("network_error")

	// ErrDuplicateIdentity: el directorio ya tiene una card activa para la identity.
	ErrDuplicateIdentity = errors.New("duplicate_identity")

	// ErrSignature: firma inválida o material de clave corrupto. No reintentar.
	ErrSignature = errors.New("signature_error")

	// ErrUnauthorized: token ausente, inválido o expirado.
	ErrUnauthorized = errors.New("unauthorized")

	// ErrForbidden: el token no corresponde a la identity de la card.
	ErrForbidden = errors.New("forbidden")

	// ErrNotFound: card inexistente.
	ErrNotFound = errors.New("not_found")

	// ErrRateLimited: demasiadas publicaciones para la identity.
	ErrRateLimited = errors.New("rate_limited")

	// ErrMissingIdentities: lookup sin identities.
	ErrMissingIdentities = errors.New("missing_identities")

	// ErrCardNotFound: alguna identity del lookup no tiene card.
	ErrCardNotFound = errors.New("card_not_found")

	// ErrDuplicateCards: más de una card activa para una identity en el lookup.
	ErrDuplicateCards = errors.New("duplicate_cards")
)

// IsTransient indica si el caller puede reintentar con backoff.
func IsTransient(err error) bool {
	return errors.Is(err, ErrNetwork) || errors.Is(err, ErrIssuerUnavailable)
}
