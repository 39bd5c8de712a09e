package vault

// Rotate re-encrypts every credential in store from oldKey to the key
// derived from newPassword and returns the re-keyed copy with the
// fingerprint to persist alongside it.
//
// All credentials are decrypted before anything is re-encrypted. If any of
// them fails, a *RotationAbortedError is returned and nothing has changed:
// store is never written to, in either outcome. The caller swaps the
// returned store in and persists it together with the fingerprint (see
// CommitRotation).
func Rotate(store CredentialStore, oldKey *MasterKey, newPassword string, opts FingerprintOptions) (CredentialStore, Fingerprint, error) {
	type pending struct {
		site, user string
		username   string
		plaintext  []byte
	}

	var decrypted []pending
	defer func() {
		for _, p := range decrypted {
			zero(p.plaintext)
		}
	}()

	for entry := range store.List() {
		data, err := envelopeEncoding.DecodeString(string(entry.Credential.Password))
		if err != nil {
			return nil, Fingerprint{}, &RotationAbortedError{Site: entry.Site, User: entry.User, Err: ErrMalformedEnvelope}
		}
		pt, err := open(oldKey, data)
		if err != nil {
			return nil, Fingerprint{}, &RotationAbortedError{Site: entry.Site, User: entry.User, Err: err}
		}
		decrypted = append(decrypted, pending{
			site:      entry.Site,
			user:      entry.User,
			username:  entry.Credential.Username,
			plaintext: pt,
		})
	}

	fp, err := NewFingerprint(newPassword, opts)
	if err != nil {
		return nil, Fingerprint{}, err
	}

	newKey := DeriveKey(newPassword)
	defer newKey.Zero()

	rotated := make(CredentialStore, len(store))
	for _, p := range decrypted {
		envelope := EncryptedField(envelopeEncoding.EncodeToString(seal(newKey, p.plaintext)))
		rotated.put(p.site, p.user, Credential{Username: p.username, Password: envelope})
	}
	return rotated, fp, nil
}
