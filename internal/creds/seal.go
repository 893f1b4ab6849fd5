package creds

import (
	"crypto/rand"
	"errors"
	"os"

	"golang.org/x/crypto/chacha20poly1305"
	"golang.org/x/crypto/scrypt"
)

const saltLen = 16

var errTooShort = errors.New("sealed blob too short")

// machineSecret feeds key derivation. Hostname plus a fixed tag is enough
// to keep a copied file from opening elsewhere; this is obfuscation for a
// local cache, not a vault.
func machineSecret() []byte {
	host, err := os.Hostname()
	if err != nil {
		host = "screenai"
	}
	return []byte("screenai-creds:" + host)
}

func deriveKey(secret, salt []byte) ([]byte, error) {
	return scrypt.Key(secret, salt, 1<<15, 8, 1, chacha20poly1305.KeySize)
}

// seal encrypts plaintext as salt || nonce || ciphertext.
func seal(plaintext []byte) ([]byte, error) {
	salt := make([]byte, saltLen)
	if _, err := rand.Read(salt); err != nil {
		return nil, err
	}
	key, err := deriveKey(machineSecret(), salt)
	if err != nil {
		return nil, err
	}
	aead, err := chacha20poly1305.New(key)
	if err != nil {
		return nil, err
	}
	nonce := make([]byte, aead.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return nil, err
	}
	out := make([]byte, 0, saltLen+len(nonce)+len(plaintext)+aead.Overhead())
	out = append(out, salt...)
	out = append(out, nonce...)
	return aead.Seal(out, nonce, plaintext, nil), nil
}

func unseal(blob []byte) ([]byte, error) {
	if len(blob) < saltLen+chacha20poly1305.NonceSize {
		return nil, errTooShort
	}
	salt := blob[:saltLen]
	key, err := deriveKey(machineSecret(), salt)
	if err != nil {
		return nil, err
	}
	aead, err := chacha20poly1305.New(key)
	if err != nil {
		return nil, err
	}
	nonce := blob[saltLen : saltLen+aead.NonceSize()]
	return aead.Open(nil, nonce, blob[saltLen+aead.NonceSize():], nil)
}
