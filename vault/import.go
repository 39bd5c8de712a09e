package vault

import (
	"bufio"
	"fmt"
	"io"
	"strings"
)

const importFields = 4

// Import builds a store from a feed of "<site> <user> <username> <password>"
// lines, encrypting each password with its own nonce as it is inserted.
// A repeated (site, user) overwrites the earlier line. Any line without
// exactly four fields fails the whole import with a *MalformedLineError,
// except blank lines at the very end of the feed.
func Import(feed io.Reader, key *MasterKey) (CredentialStore, error) {
	store := NewStore()
	scanner := bufio.NewScanner(feed)
	lineNo := 0
	firstBlank := 0
	for scanner.Scan() {
		lineNo++
		fields := strings.Fields(scanner.Text())
		if len(fields) == 0 {
			if firstBlank == 0 {
				firstBlank = lineNo
			}
			continue
		}
		if firstBlank != 0 {
			return nil, &MalformedLineError{Line: firstBlank, Tokens: 0}
		}
		if len(fields) != importFields {
			return nil, &MalformedLineError{Line: lineNo, Tokens: len(fields)}
		}
		site, user, username, password := fields[0], fields[1], fields[2], fields[3]
		store.put(site, user, Credential{Username: username, Password: Encrypt(password, key)})
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("vault: reading import feed: %w", err)
	}
	return store, nil
}
