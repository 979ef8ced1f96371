// Package cryptox implements the field-level codec used for every encrypted
// attribute of identity records and audit entries, plus the small hashing
// helpers shared by the console and the identity daemon.
//
// A field is JSON-serialized, sealed with AES-256-GCM under a key derived
// from the session passphrase with HKDF-SHA256 and a per-field random salt,
// and encoded as standard base64:
//
//	version(1) | salt(16) | nonce(12) | ciphertext+tag
//
// Decryption never reports an error. Any failure (wrong passphrase, damaged
// ciphertext, payload of an unexpected type) yields an undecryptable Field.
package cryptox

import (
	"bytes"
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/dmitrijs2005/adminvault/internal/common"
	"golang.org/x/crypto/hkdf"
)

const (
	formatVersion byte = 1
	saltSize           = 16
	nonceSize          = 12
	keySize            = 32
	headerSize         = 1 + saltSize + nonceSize
)

var hkdfInfo = []byte("adminvault/field/v1")

var errMalformed = errors.New("malformed ciphertext")

// Encrypt serializes value to JSON and seals it with key.
//
// An empty key or an empty value (nil, "", or an empty object) is passed
// through without encryption: strings come back unchanged, anything else
// comes back as its JSON text. Callers must not assume the result is
// ciphertext.
func Encrypt(value any, key string) (string, error) {
	if s, ok := value.(string); ok && (s == "" || key == "") {
		return s, nil
	}

	plaintext, err := json.Marshal(value)
	if err != nil {
		return "", fmt.Errorf("marshal field: %w", err)
	}
	if key == "" || isEmptyJSON(plaintext) {
		return string(plaintext), nil
	}
	defer common.WipeByteArray(plaintext)

	buf := make([]byte, headerSize, headerSize+len(plaintext)+16)
	buf[0] = formatVersion
	salt := buf[1 : 1+saltSize]
	nonce := buf[1+saltSize : headerSize]
	if _, err := rand.Read(salt); err != nil {
		return "", fmt.Errorf("salt: %w", err)
	}
	if _, err := rand.Read(nonce); err != nil {
		return "", fmt.Errorf("nonce: %w", err)
	}

	aead, err := newAEAD(key, salt)
	if err != nil {
		return "", err
	}

	aad := append([]byte(nil), buf[:1+saltSize]...)
	buf = aead.Seal(buf, nonce, plaintext, aad)
	return base64.StdEncoding.EncodeToString(buf), nil
}

// Decrypt opens ciphertext with key and parses the payload as T.
func Decrypt[T any](ciphertext, key string) Field[T] {
	if ciphertext == "" || key == "" {
		return Undecryptable[T]()
	}

	plaintext, err := open(ciphertext, key)
	if err != nil {
		return Undecryptable[T]()
	}
	defer common.WipeByteArray(plaintext)

	if bytes.Equal(plaintext, []byte("null")) {
		return Undecryptable[T]()
	}

	var v T
	if err := json.Unmarshal(plaintext, &v); err != nil {
		return Undecryptable[T]()
	}
	return Value(v)
}

func open(ciphertext, key string) ([]byte, error) {
	raw, err := base64.StdEncoding.DecodeString(ciphertext)
	if err != nil {
		return nil, err
	}
	if len(raw) <= headerSize || raw[0] != formatVersion {
		return nil, errMalformed
	}

	salt := raw[1 : 1+saltSize]
	nonce := raw[1+saltSize : headerSize]

	aead, err := newAEAD(key, salt)
	if err != nil {
		return nil, err
	}
	return aead.Open(nil, nonce, raw[headerSize:], raw[:1+saltSize])
}

func newAEAD(passphrase string, salt []byte) (cipher.AEAD, error) {
	key := make([]byte, keySize)
	defer common.WipeByteArray(key)

	if _, err := io.ReadFull(hkdf.New(sha256.New, []byte(passphrase), salt, hkdfInfo), key); err != nil {
		return nil, fmt.Errorf("derive key: %w", err)
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	return cipher.NewGCM(block)
}

func isEmptyJSON(b []byte) bool {
	switch string(b) {
	case "null", `""`, "{}":
		return true
	}
	return false
}
