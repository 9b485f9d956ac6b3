// Package crypto es el CryptoProvider del SDK: generación de pares de claves,
// firma/verificación y exportación de claves.
//
// La implementación por defecto es Ed25519. Las claves privadas nunca se
// serializan en claro: la única exportación soportada va cifrada con una
// contraseña (argon2id + XChaCha20-Poly1305).
package crypto
