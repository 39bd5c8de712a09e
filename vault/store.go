package vault

import (
	"fmt"
	"iter"
	"maps"
	"slices"
)

func NewStore() CredentialStore {
	return CredentialStore{}
}

func (s CredentialStore) lookup(site, user string) (Credential, bool) {
	users, ok := s[site]
	if !ok {
		return Credential{}, false
	}
	cred, ok := users[user]
	return cred, ok
}

func (s CredentialStore) put(site, user string, cred Credential) {
	users, ok := s[site]
	if !ok {
		users = SiteUser{}
		s[site] = users
	}
	users[user] = cred
}

// Add encrypts password and stores a new credential. Existing entries are
// never replaced; use Update for that.
func (s CredentialStore) Add(key *MasterKey, site, user, username, password string) error {
	if _, ok := s.lookup(site, user); ok {
		return fmt.Errorf("%w: site %q user %q", ErrAlreadyExists, site, user)
	}
	s.put(site, user, Credential{Username: username, Password: Encrypt(password, key)})
	return nil
}

// Get decrypts the password for (site, user).
func (s CredentialStore) Get(key *MasterKey, site, user string) (PlaintextView, error) {
	cred, ok := s.lookup(site, user)
	if !ok {
		return PlaintextView{}, fmt.Errorf("%w: site %q user %q", ErrNotFound, site, user)
	}
	password, err := Decrypt(cred.Password, key)
	if err != nil {
		return PlaintextView{}, fmt.Errorf("vault: decrypting %s/%s: %w", site, user, err)
	}
	return PlaintextView{Username: cred.Username, Password: password}, nil
}

// Update replaces the credential for (site, user) with a freshly
// encrypted password. The username is always overwritten.
func (s CredentialStore) Update(key *MasterKey, site, user, username, password string) error {
	if _, ok := s.lookup(site, user); !ok {
		return fmt.Errorf("%w: site %q user %q", ErrNotFound, site, user)
	}
	s.put(site, user, Credential{Username: username, Password: Encrypt(password, key)})
	return nil
}

// Delete removes (site, user), and the site itself once it has no users.
func (s CredentialStore) Delete(site, user string) error {
	users, ok := s[site]
	if !ok {
		return fmt.Errorf("%w: site %q user %q", ErrNotFound, site, user)
	}
	if _, ok := users[user]; !ok {
		return fmt.Errorf("%w: site %q user %q", ErrNotFound, site, user)
	}
	delete(users, user)
	if len(users) == 0 {
		delete(s, site)
	}
	return nil
}

// Contains reports whether (site, user) is present.
func (s CredentialStore) Contains(site, user string) bool {
	_, ok := s.lookup(site, user)
	return ok
}

// Len returns the number of credentials across all sites.
func (s CredentialStore) Len() int {
	n := 0
	for _, users := range s {
		n += len(users)
	}
	return n
}

// List yields every credential ordered by site then user. Passwords stay
// encrypted; callers that need plaintext call Get per entry. The sequence
// may be ranged over any number of times.
func (s CredentialStore) List() iter.Seq[Entry] {
	return func(yield func(Entry) bool) {
		for _, site := range slices.Sorted(maps.Keys(s)) {
			users := s[site]
			for _, user := range slices.Sorted(maps.Keys(users)) {
				if !yield(Entry{Site: site, User: user, Credential: users[user]}) {
					return
				}
			}
		}
	}
}

// Clone returns a deep copy. Envelopes are immutable strings, so copying
// the maps is enough.
func (s CredentialStore) Clone() CredentialStore {
	out := make(CredentialStore, len(s))
	for site, users := range s {
		out[site] = maps.Clone(users)
	}
	return out
}
