package vault

import (
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"golang.org/x/crypto/argon2"
)

type FingerprintScheme string

const (
	// SchemeSHA256 stores SHA-256(password), which is also the master key.
	// Anyone holding the fingerprint file can brute-force the password
	// offline at hash speed; this is the compatible default.
	SchemeSHA256 FingerprintScheme = "sha256"

	// SchemeArgon2id stores a salted Argon2id hash of the password. The
	// encryption key is still SHA-256(password), so existing envelopes
	// remain readable after switching schemes.
	SchemeArgon2id FingerprintScheme = "argon2id"
)

const argon2SaltLen = 16

type Argon2Params struct {
	Time    uint32 `yaml:"time"`
	Memory  uint32 `yaml:"memory"`
	Threads uint8  `yaml:"threads"`
}

func DefaultArgon2Params() Argon2Params {
	return Argon2Params{Time: 3, Memory: 256 * 1024, Threads: 1}
}

// Upper bounds for Argon2 parameters. Memory is in KiB.
const (
	MaxArgon2Memory = 4 * 1024 * 1024
	MaxArgon2Time   = 64
)

// Validate rejects zero parameters and anything beyond the caps, so a
// tampered fingerprint file cannot make verification exhaust memory.
func (p Argon2Params) Validate() error {
	if p.Time == 0 || p.Memory == 0 || p.Threads == 0 {
		return errors.New("argon2 time, memory and threads must be positive")
	}
	if p.Memory > MaxArgon2Memory {
		return fmt.Errorf("argon2 memory %d KiB exceeds %d KiB", p.Memory, MaxArgon2Memory)
	}
	if p.Time > MaxArgon2Time {
		return fmt.Errorf("argon2 time %d exceeds %d", p.Time, MaxArgon2Time)
	}
	return nil
}

// FingerprintOptions selects how a new fingerprint is computed. The zero
// value means SchemeSHA256.
type FingerprintOptions struct {
	Scheme FingerprintScheme
	Argon2 Argon2Params
}

// Fingerprint lets a later session check a master password without the
// password or key being stored.
type Fingerprint struct {
	Scheme FingerprintScheme
	Argon2 Argon2Params
	Salt   []byte
	Sum    [FingerprintLen]byte
}

// FingerprintFromKey returns the baseline fingerprint, which is the key.
func FingerprintFromKey(key *MasterKey) Fingerprint {
	return Fingerprint{Scheme: SchemeSHA256, Sum: *key}
}

// NewFingerprint computes the fingerprint of password under opts.
func NewFingerprint(password string, opts FingerprintOptions) (Fingerprint, error) {
	switch opts.Scheme {
	case "", SchemeSHA256:
		key := DeriveKey(password)
		defer key.Zero()
		return FingerprintFromKey(key), nil
	case SchemeArgon2id:
		params := opts.Argon2
		if params == (Argon2Params{}) {
			params = DefaultArgon2Params()
		}
		if err := params.Validate(); err != nil {
			return Fingerprint{}, fmt.Errorf("vault: %w", err)
		}
		fp := Fingerprint{Scheme: SchemeArgon2id, Argon2: params, Salt: randBytes(argon2SaltLen)}
		sum := argon2Sum(password, fp.Salt, params)
		copy(fp.Sum[:], sum)
		zero(sum)
		return fp, nil
	default:
		return Fingerprint{}, fmt.Errorf("vault: unknown fingerprint scheme %q", opts.Scheme)
	}
}

func argon2Sum(password string, salt []byte, p Argon2Params) []byte {
	pw := []byte(password)
	defer zero(pw)
	return argon2.IDKey(pw, salt, p.Time, p.Memory, p.Threads, FingerprintLen)
}

// VerifyPassword derives the key for password and checks it against the
// stored fingerprint in constant time. The error never says how close the
// password was.
func VerifyPassword(password string, stored Fingerprint) (*MasterKey, error) {
	key := DeriveKey(password)

	var candidate []byte
	switch stored.Scheme {
	case SchemeSHA256:
		candidate = key[:]
	case SchemeArgon2id:
		if err := stored.Argon2.Validate(); err != nil {
			key.Zero()
			return nil, fmt.Errorf("%w: %v", ErrMalformedFingerprint, err)
		}
		candidate = argon2Sum(password, stored.Salt, stored.Argon2)
		defer zero(candidate)
	default:
		key.Zero()
		return nil, fmt.Errorf("vault: unknown fingerprint scheme %q", stored.Scheme)
	}

	if subtle.ConstantTimeCompare(candidate, stored.Sum[:]) != 1 {
		key.Zero()
		return nil, ErrInvalidMasterPassword
	}
	return key, nil
}

// Zero wipes the stored hash and salt.
func (f *Fingerprint) Zero() {
	zero(f.Sum[:])
	zero(f.Salt)
}

// String hides the hash so fingerprints never end up in messages.
func (f Fingerprint) String() string {
	return fmt.Sprintf("Fingerprint(%s)", f.Scheme)
}

func (f Fingerprint) LogValue() slog.Value {
	return slog.StringValue(string(f.Scheme))
}

// MarshalText encodes the fingerprint for the fingerprint file. The sha256
// scheme is plain base64 of the 32-byte digest; argon2id uses
// "argon2id$v=19$m=<memory>,t=<time>,p=<threads>$<salt>$<hash>".
func (f Fingerprint) MarshalText() ([]byte, error) {
	switch f.Scheme {
	case SchemeSHA256:
		return []byte(base64.StdEncoding.EncodeToString(f.Sum[:])), nil
	case SchemeArgon2id:
		s := fmt.Sprintf("%s$v=%d$m=%d,t=%d,p=%d$%s$%s",
			SchemeArgon2id, argon2.Version,
			f.Argon2.Memory, f.Argon2.Time, f.Argon2.Threads,
			base64.RawStdEncoding.EncodeToString(f.Salt),
			base64.RawStdEncoding.EncodeToString(f.Sum[:]))
		return []byte(s), nil
	default:
		return nil, fmt.Errorf("vault: unknown fingerprint scheme %q", f.Scheme)
	}
}

func (f *Fingerprint) UnmarshalText(text []byte) error {
	s := strings.TrimSpace(string(text))
	if !strings.HasPrefix(s, string(SchemeArgon2id)+"$") {
		sum, err := base64.StdEncoding.DecodeString(s)
		if err != nil || len(sum) != FingerprintLen {
			return ErrMalformedFingerprint
		}
		*f = Fingerprint{Scheme: SchemeSHA256}
		copy(f.Sum[:], sum)
		zero(sum)
		return nil
	}

	parts := strings.Split(s, "$")
	if len(parts) != 5 {
		return ErrMalformedFingerprint
	}
	var version int
	if _, err := fmt.Sscanf(parts[1], "v=%d", &version); err != nil || version != argon2.Version {
		return fmt.Errorf("%w: unsupported argon2 version", ErrMalformedFingerprint)
	}
	var params Argon2Params
	if _, err := fmt.Sscanf(parts[2], "m=%d,t=%d,p=%d", &params.Memory, &params.Time, &params.Threads); err != nil {
		return fmt.Errorf("%w: bad argon2 parameters", ErrMalformedFingerprint)
	}
	if err := params.Validate(); err != nil {
		return fmt.Errorf("%w: %v", ErrMalformedFingerprint, err)
	}
	salt, err := base64.RawStdEncoding.DecodeString(parts[3])
	if err != nil || len(salt) == 0 {
		return fmt.Errorf("%w: bad salt", ErrMalformedFingerprint)
	}
	sum, err := base64.RawStdEncoding.DecodeString(parts[4])
	if err != nil || len(sum) != FingerprintLen {
		return fmt.Errorf("%w: bad hash", ErrMalformedFingerprint)
	}
	*f = Fingerprint{Scheme: SchemeArgon2id, Argon2: params, Salt: salt}
	copy(f.Sum[:], sum)
	zero(sum)
	return nil
}
