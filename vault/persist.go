package vault

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
)

const filePerm = 0600

// LoadStore reads a store file written by SaveStore. A missing or empty
// file is an empty store.
func LoadStore(path string) (CredentialStore, error) {
	raw, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return NewStore(), nil
	}
	if err != nil {
		return nil, fmt.Errorf("vault: reading store: %w", err)
	}
	if len(bytes.TrimSpace(raw)) == 0 {
		return NewStore(), nil
	}

	store := NewStore()
	if err := json.Unmarshal(raw, &store); err != nil {
		return nil, fmt.Errorf("vault: parsing store %s: %w", path, err)
	}
	if store == nil {
		// A top-level null decodes to a nil map.
		store = NewStore()
	}
	for site, users := range store {
		if len(users) == 0 {
			delete(store, site)
		}
	}
	return store, nil
}

func marshalStore(store CredentialStore) ([]byte, error) {
	data, err := json.MarshalIndent(store, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("vault: encoding store: %w", err)
	}
	return append(data, '\n'), nil
}

// SaveStore replaces the store file atomically.
func SaveStore(path string, store CredentialStore) error {
	data, err := marshalStore(store)
	if err != nil {
		return err
	}
	if err := atomicWriteFile(path, data, filePerm); err != nil {
		return fmt.Errorf("vault: writing store: %w", err)
	}
	return nil
}

// LoadFingerprint reads the fingerprint file. It returns ErrNoFingerprint
// when the file does not exist, which means no master password was set.
func LoadFingerprint(path string) (Fingerprint, error) {
	raw, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return Fingerprint{}, ErrNoFingerprint
	}
	if err != nil {
		return Fingerprint{}, fmt.Errorf("vault: reading fingerprint: %w", err)
	}
	defer zero(raw)

	var fp Fingerprint
	if err := fp.UnmarshalText(raw); err != nil {
		return Fingerprint{}, err
	}
	return fp, nil
}

func marshalFingerprint(fp Fingerprint) ([]byte, error) {
	text, err := fp.MarshalText()
	if err != nil {
		return nil, err
	}
	return append(text, '\n'), nil
}

// SaveFingerprint replaces the fingerprint file atomically.
func SaveFingerprint(path string, fp Fingerprint) error {
	data, err := marshalFingerprint(fp)
	if err != nil {
		return err
	}
	defer zero(data)
	if err := atomicWriteFile(path, data, filePerm); err != nil {
		return fmt.Errorf("vault: writing fingerprint: %w", err)
	}
	return nil
}

// PendingRotationPath is where CommitRotation journals a rotation in
// progress: the new fingerprint followed by the SHA-256 of the rotated
// store file.
func PendingRotationPath(fingerprintPath string) string {
	return fingerprintPath + ".pending"
}

const journalStorePrefix = "store sha256:"

func marshalJournal(fpData, storeData []byte) []byte {
	sum := sha256.Sum256(storeData)
	journal := bytes.Clone(fpData)
	return fmt.Appendf(journal, "%s%s\n", journalStorePrefix, hex.EncodeToString(sum[:]))
}

// parseJournal returns the fingerprint line and the expected store hash.
func parseJournal(raw []byte) ([]byte, []byte, error) {
	lines := bytes.Split(bytes.TrimSpace(raw), []byte("\n"))
	if len(lines) != 2 || !bytes.HasPrefix(lines[1], []byte(journalStorePrefix)) {
		return nil, nil, fmt.Errorf("%w: bad pending rotation", ErrMalformedFingerprint)
	}
	sum, err := hex.DecodeString(string(bytes.TrimPrefix(lines[1], []byte(journalStorePrefix))))
	if err != nil || len(sum) != sha256.Size {
		return nil, nil, fmt.Errorf("%w: bad pending rotation store hash", ErrMalformedFingerprint)
	}
	var fp Fingerprint
	if err := fp.UnmarshalText(lines[0]); err != nil {
		return nil, nil, err
	}
	fp.Zero()
	return lines[0], sum, nil
}

// CommitRotation persists a rotated store and its fingerprint as a pair.
//
// A journal naming the new fingerprint and the rotated store's hash is
// written first, then the store, then the fingerprint, and finally the
// journal is removed. If the fingerprint cannot be written the previous
// store file is put back. If the process dies part way, RecoverRotation
// finishes or undoes the commit from the journal on the next start.
func CommitRotation(storePath, fingerprintPath string, store CredentialStore, fp Fingerprint) error {
	storeData, err := marshalStore(store)
	if err != nil {
		return err
	}
	fpData, err := marshalFingerprint(fp)
	if err != nil {
		return err
	}
	defer zero(fpData)

	previous, err := os.ReadFile(storePath)
	existed := err == nil
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("vault: reading store before rotation: %w", err)
	}

	pending := PendingRotationPath(fingerprintPath)
	journal := marshalJournal(fpData, storeData)
	defer zero(journal)
	if err := atomicWriteFile(pending, journal, filePerm); err != nil {
		return fmt.Errorf("vault: journaling rotation: %w", err)
	}

	if err := atomicWriteFile(storePath, storeData, filePerm); err != nil {
		os.Remove(pending)
		return fmt.Errorf("vault: writing rotated store: %w", err)
	}

	if err := atomicWriteFile(fingerprintPath, fpData, filePerm); err != nil {
		var restoreErr error
		if existed {
			restoreErr = atomicWriteFile(storePath, previous, filePerm)
		} else {
			restoreErr = os.Remove(storePath)
		}
		if restoreErr != nil {
			// The journal stays so RecoverRotation can finish the commit.
			return fmt.Errorf("vault: writing rotated fingerprint: %w (restoring store also failed: %v)", err, restoreErr)
		}
		os.Remove(pending)
		return fmt.Errorf("vault: writing rotated fingerprint: %w", err)
	}

	// The pair is committed. A journal left behind here is replayed
	// harmlessly by RecoverRotation.
	if err := os.Remove(pending); err == nil {
		_ = syncDir(filepath.Dir(pending))
	}
	return nil
}

// RecoveryOutcome reports what RecoverRotation did.
type RecoveryOutcome string

const (
	RecoveryNone       RecoveryOutcome = ""
	RecoveryCompleted  RecoveryOutcome = "completed"
	RecoveryRolledBack RecoveryOutcome = "rolled back"
)

// RecoverRotation resolves a rotation interrupted between its writes. If
// the store file is the rotated one named by the journal, the journaled
// fingerprint is installed; otherwise the store was never replaced and
// the journal is discarded. Either way the store and fingerprint agree
// afterwards. It is a no-op without a journal.
func RecoverRotation(storePath, fingerprintPath string) (RecoveryOutcome, error) {
	pending := PendingRotationPath(fingerprintPath)
	raw, err := os.ReadFile(pending)
	if errors.Is(err, fs.ErrNotExist) {
		return RecoveryNone, nil
	}
	if err != nil {
		return RecoveryNone, fmt.Errorf("vault: reading pending rotation: %w", err)
	}
	defer zero(raw)

	fpLine, want, err := parseJournal(raw)
	if err != nil {
		return RecoveryNone, err
	}

	current, err := os.ReadFile(storePath)
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return RecoveryNone, fmt.Errorf("vault: reading store: %w", err)
	}
	got := sha256.Sum256(current)

	outcome := RecoveryRolledBack
	if err == nil && bytes.Equal(got[:], want) {
		fpData := append(bytes.Clone(fpLine), '\n')
		defer zero(fpData)
		if err := atomicWriteFile(fingerprintPath, fpData, filePerm); err != nil {
			return RecoveryNone, fmt.Errorf("vault: completing rotation: %w", err)
		}
		outcome = RecoveryCompleted
	}

	if err := os.Remove(pending); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return outcome, fmt.Errorf("vault: removing pending rotation: %w", err)
	}
	_ = syncDir(filepath.Dir(pending))
	return outcome, nil
}

func atomicWriteFile(path string, data []byte, perm os.FileMode) error {
	dir := filepath.Dir(path)
	tmpFile, err := os.CreateTemp(dir, ".pwmgr-*")
	if err != nil {
		return err
	}
	tmpPath := tmpFile.Name()
	defer func() {
		tmpFile.Close()
		os.Remove(tmpPath)
	}()

	if err := tmpFile.Chmod(perm); err != nil {
		return err
	}
	if _, err := tmpFile.Write(data); err != nil {
		return err
	}
	if err := tmpFile.Sync(); err != nil {
		return err
	}
	if err := tmpFile.Close(); err != nil {
		return err
	}

	if err := os.Rename(tmpPath, path); err != nil {
		return err
	}

	_ = syncDir(dir)
	return nil
}

func syncDir(dir string) error {
	f, err := os.Open(dir)
	if err != nil {
		return err
	}
	defer f.Close()
	return f.Sync()
}
