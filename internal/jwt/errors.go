package jwt

import "errors"

var (
	ErrNoActiveKey  = errors.New("no_active_signing_key")
	ErrKIDNotFound  = errors.New("kid_not_found")
	ErrInvalidToken = errors.New("invalid_jwt")
)
