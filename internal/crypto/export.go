package crypto

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"

	"golang.org/x/crypto/argon2"
	"golang.org/x/crypto/chacha20poly1305"
)

// KDFParams son los parámetros de argon2id para derivar la clave de envoltura.
type KDFParams struct {
	Memory      uint32 // KiB
	Time        uint32
	Parallelism uint8
	KeyLen      uint32
}

var DefaultKDF = KDFParams{Memory: 64 * 1024, Time: 3, Parallelism: 1, KeyLen: chacha20poly1305.KeySize}

// Formato del envoltorio:
//
//	magic(4) | memory(4) | time(4) | parallelism(1) | salt(16) | nonce(24) | ciphertext
var envelopeMagic = []byte("HCK1")

const (
	saltLen      = 16
	maxKDFMemory = 1 << 20 // 1 GiB en KiB
)

func seal(rnd io.Reader, kdf KDFParams, password string, plain []byte) ([]byte, error) {
	if password == "" {
		return nil, ErrEmptyPassword
	}
	salt := make([]byte, saltLen)
	if _, err := io.ReadFull(rnd, salt); err != nil {
		return nil, fmt.Errorf("salt: %w", err)
	}
	key := argon2.IDKey([]byte(password), salt, kdf.Time, kdf.Memory, kdf.Parallelism, chacha20poly1305.KeySize)
	aead, err := chacha20poly1305.NewX(key)
	if err != nil {
		return nil, fmt.Errorf("xchacha20poly1305: %w", err)
	}
	nonce := make([]byte, chacha20poly1305.NonceSizeX)
	if _, err := io.ReadFull(rnd, nonce); err != nil {
		return nil, fmt.Errorf("nonce: %w", err)
	}

	var hdr bytes.Buffer
	hdr.Write(envelopeMagic)
	_ = binary.Write(&hdr, binary.BigEndian, kdf.Memory)
	_ = binary.Write(&hdr, binary.BigEndian, kdf.Time)
	hdr.WriteByte(kdf.Parallelism)
	hdr.Write(salt)
	hdr.Write(nonce)

	header := hdr.Bytes()
	// el header va como AAD: alterar los parámetros invalida el tag
	return aead.Seal(header, nonce, plain, header), nil
}

func open(data []byte, password string) ([]byte, error) {
	if password == "" {
		return nil, ErrEmptyPassword
	}
	headerLen := len(envelopeMagic) + 4 + 4 + 1 + saltLen + chacha20poly1305.NonceSizeX
	if len(data) < headerLen+chacha20poly1305.Overhead || !bytes.Equal(data[:len(envelopeMagic)], envelopeMagic) {
		return nil, ErrDecrypt
	}
	off := len(envelopeMagic)
	memory := binary.BigEndian.Uint32(data[off:])
	off += 4
	t := binary.BigEndian.Uint32(data[off:])
	off += 4
	par := data[off]
	off++
	salt := data[off : off+saltLen]
	off += saltLen
	nonce := data[off : off+chacha20poly1305.NonceSizeX]
	if par == 0 || t == 0 || memory == 0 || memory > maxKDFMemory {
		return nil, ErrDecrypt
	}

	key := argon2.IDKey([]byte(password), salt, t, memory, par, chacha20poly1305.KeySize)
	aead, err := chacha20poly1305.NewX(key)
	if err != nil {
		return nil, fmt.Errorf("xchacha20poly1305: %w", err)
	}
	plain, err := aead.Open(nil, nonce, data[headerLen:], data[:headerLen])
	if err != nil {
		return nil, ErrDecrypt
	}
	return plain, nil
}
