package vault

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"fmt"
	"unicode/utf8"
)

// envelopeEncoding rejects non-zero padding bits so that no bit of an
// envelope string can change without changing the decoded bytes.
var envelopeEncoding = base64.StdEncoding.Strict()

func zero(b []byte) {
	for i := range b {
		b[i] = 0
	}
}

// Zero securely wipes a byte slice from memory.
func Zero(b []byte) {
	zero(b)
}

func randBytes(n int) []byte {
	b := make([]byte, n)
	// crypto/rand.Read never returns an error and always fills b.
	_, _ = rand.Read(b)
	return b
}

// DeriveKey hashes the UTF-8 bytes of password with SHA-256. It is pure
// and accepts any input, including the empty string.
//
// The same digest is the baseline (SchemeSHA256) fingerprint, so a stored
// sha256 fingerprint is the key itself. It is not a slow password hash.
func DeriveKey(password string) *MasterKey {
	pw := []byte(password)
	defer zero(pw)
	key := MasterKey(sha256.Sum256(pw))
	return &key
}

func newGCM(key *MasterKey) cipher.AEAD {
	block, err := aes.NewCipher(key[:])
	if err != nil {
		// Only reachable with a key that is not 16, 24 or 32 bytes.
		panic(fmt.Sprintf("vault: aes cipher: %v", err))
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		panic(fmt.Sprintf("vault: gcm: %v", err))
	}
	return gcm
}

// seal returns nonce || ciphertext || tag with a fresh random nonce.
func seal(key *MasterKey, plaintext []byte) []byte {
	gcm := newGCM(key)
	nonce := randBytes(NonceLen)
	out := make([]byte, 0, NonceLen+len(plaintext)+gcm.Overhead())
	out = append(out, nonce...)
	return gcm.Seal(out, nonce, plaintext, nil)
}

func open(key *MasterKey, data []byte) ([]byte, error) {
	if len(data) < NonceLen {
		return nil, fmt.Errorf("%w: %d bytes, need at least %d", ErrMalformedEnvelope, len(data), NonceLen)
	}
	pt, err := newGCM(key).Open(nil, data[:NonceLen], data[NonceLen:], nil)
	if err != nil {
		return nil, ErrAuthenticationFailed
	}
	return pt, nil
}

// Encrypt seals plaintext under key and returns the base64 envelope.
// Two calls with the same input yield different envelopes.
func Encrypt(plaintext string, key *MasterKey) EncryptedField {
	pt := []byte(plaintext)
	defer zero(pt)
	sealed := seal(key, pt)
	return EncryptedField(envelopeEncoding.EncodeToString(sealed))
}

// Decrypt opens an envelope produced by Encrypt. It fails with
// ErrMalformedEnvelope when the string is not base64 or too short to hold
// a nonce, ErrAuthenticationFailed when the tag does not verify (wrong key
// or tampering), and ErrInvalidEncoding when the plaintext is not UTF-8.
func Decrypt(envelope EncryptedField, key *MasterKey) (string, error) {
	data, err := envelopeEncoding.DecodeString(string(envelope))
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrMalformedEnvelope, err)
	}
	pt, err := open(key, data)
	if err != nil {
		return "", err
	}
	defer zero(pt)
	if !utf8.Valid(pt) {
		return "", ErrInvalidEncoding
	}
	return string(pt), nil
}
