package crypto

import "errors"

var (
	ErrInvalidPublicKey  = errors.New("invalid_public_key")
	ErrInvalidPrivateKey = errors.New("invalid_private_key")
	ErrEmptyPassword     = errors.New("empty_password")
	ErrDecrypt           = errors.New("private_key_decrypt_failed")
)
