// Package secrets encrypts individual config values with age.
//
// A sealed value looks like ENC[<base64 age ciphertext>] and can sit inline
// in calremind.toml, typically for google.client_secret and nats.token.
package secrets

import (
	"bytes"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"strings"

	"filippo.io/age"
)

const (
	sealPrefix = "ENC["
	sealSuffix = "]"
)

// ErrNotSealed is returned when Decrypt is given a plain value.
var ErrNotSealed = errors.New("value is not wrapped in ENC[...]")

// IsEncrypted reports whether value is a non-empty ENC[...] envelope.
func IsEncrypted(value string) bool {
	return len(value) > len(sealPrefix)+len(sealSuffix) &&
		strings.HasPrefix(value, sealPrefix) &&
		strings.HasSuffix(value, sealSuffix)
}

// Encrypt seals plaintext for recipients.
func Encrypt(plaintext string, recipients ...age.Recipient) (string, error) {
	var sb strings.Builder
	sb.WriteString(sealPrefix)

	b64 := base64.NewEncoder(base64.StdEncoding, &sb)
	w, err := age.Encrypt(b64, recipients...)
	if err != nil {
		return "", fmt.Errorf("age encrypt: %w", err)
	}
	if _, err := io.WriteString(w, plaintext); err != nil {
		return "", fmt.Errorf("age encrypt: %w", err)
	}
	if err := w.Close(); err != nil {
		return "", fmt.Errorf("age encrypt: %w", err)
	}
	if err := b64.Close(); err != nil {
		return "", fmt.Errorf("encode ciphertext: %w", err)
	}

	sb.WriteString(sealSuffix)
	return sb.String(), nil
}

// Decrypt opens an ENC[...] envelope with any of identities.
func Decrypt(value string, identities ...age.Identity) (string, error) {
	if !IsEncrypted(value) {
		return "", ErrNotSealed
	}
	body := strings.TrimSuffix(strings.TrimPrefix(value, sealPrefix), sealSuffix)
	ciphertext, err := base64.StdEncoding.DecodeString(body)
	if err != nil {
		return "", fmt.Errorf("decode ciphertext: %w", err)
	}

	r, err := age.Decrypt(bytes.NewReader(ciphertext), identities...)
	if err != nil {
		return "", fmt.Errorf("age decrypt: %w", err)
	}
	var out bytes.Buffer
	if _, err := out.ReadFrom(r); err != nil {
		return "", fmt.Errorf("age decrypt: %w", err)
	}
	return out.String(), nil
}
