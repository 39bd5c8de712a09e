package vault

import (
	"errors"
	"fmt"
)

const (
	MasterKeyLen   = 32
	NonceLen       = 12
	FingerprintLen = 32
)

var (
	ErrInvalidMasterPassword = errors.New("vault: invalid master password")

	ErrMalformedEnvelope    = errors.New("vault: malformed envelope")
	ErrAuthenticationFailed = errors.New("vault: authentication failed")
	ErrInvalidEncoding      = errors.New("vault: decrypted value is not valid UTF-8")

	ErrNotFound      = errors.New("vault: credential not found")
	ErrAlreadyExists = errors.New("vault: credential already exists")

	ErrMalformedLine   = errors.New("vault: malformed import line")
	ErrRotationAborted = errors.New("vault: rotation aborted")

	ErrNoFingerprint        = errors.New("vault: no master key fingerprint")
	ErrMalformedFingerprint = errors.New("vault: malformed master key fingerprint")
)

// MasterKey is the AES-256 key every password envelope is sealed under.
// It is passed by pointer so that Zero clears the only copy.
type MasterKey [MasterKeyLen]byte

// Zero wipes the key in place.
func (k *MasterKey) Zero() {
	zero(k[:])
}

// EncryptedField is base64(nonce || ciphertext || tag).
type EncryptedField string

type Credential struct {
	Username string         `json:"username"`
	Password EncryptedField `json:"password"`
}

// SiteUser maps a user identifier to its credential.
type SiteUser map[string]Credential

// CredentialStore maps a site identifier to its users. A site never maps
// to an empty SiteUser.
type CredentialStore map[string]SiteUser

// Entry is one row of CredentialStore.List.
type Entry struct {
	Site       string
	User       string
	Credential Credential
}

// PlaintextView is what Get hands back: the stored username and the
// freshly decrypted password. The store keeps no reference to it.
type PlaintextView struct {
	Username string
	Password string
}

// MalformedLineError reports an import line that is not exactly
// "<site> <user> <username> <password>". The line text is deliberately
// not retained since it may carry a plaintext password.
type MalformedLineError struct {
	Line   int
	Tokens int
}

func (e *MalformedLineError) Error() string {
	return fmt.Sprintf("vault: malformed import line %d: expected 4 fields, got %d", e.Line, e.Tokens)
}

func (e *MalformedLineError) Is(target error) bool { return target == ErrMalformedLine }

// RotationAbortedError names the first credential that could not be
// decrypted under the old key.
type RotationAbortedError struct {
	Site string
	User string
	Err  error
}

func (e *RotationAbortedError) Error() string {
	return fmt.Sprintf("vault: rotation aborted at %s/%s: %v", e.Site, e.User, e.Err)
}

func (e *RotationAbortedError) Is(target error) bool { return target == ErrRotationAborted }

func (e *RotationAbortedError) Unwrap() error { return e.Err }
