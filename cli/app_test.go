package cli

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fahmaliyi/pwmgr/vault"
)

type fakePrompter struct {
	secrets []string
	prompts []string
}

func (p *fakePrompter) ReadSecret(prompt string) ([]byte, error) {
	p.prompts = append(p.prompts, prompt)
	if len(p.secrets) == 0 {
		return nil, errors.New("no more input")
	}
	s := p.secrets[0]
	p.secrets = p.secrets[1:]
	return []byte(s), nil
}

type fakeClipboard struct {
	content string
	writes  []string
}

func (c *fakeClipboard) ReadAll() (string, error) { return c.content, nil }

func (c *fakeClipboard) WriteAll(text string) error {
	c.content = text
	c.writes = append(c.writes, text)
	return nil
}

type testEnv struct {
	dir         string
	store       string
	fingerprint string
	stdout      *bytes.Buffer
	stderr      *bytes.Buffer
	clipboard   *fakeClipboard
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	home := t.TempDir()
	t.Setenv("HOME", home)
	t.Setenv("PWMGR_CONFIG", "")
	dir := filepath.Join(home, "data")
	return &testEnv{
		dir:         dir,
		store:       filepath.Join(dir, "credentials.json"),
		fingerprint: filepath.Join(dir, "master.key"),
		clipboard:   &fakeClipboard{},
	}
}

// run executes one command, answering prompts from secrets in order.
func (e *testEnv) run(t *testing.T, secrets []string, args ...string) error {
	t.Helper()
	e.stdout = &bytes.Buffer{}
	e.stderr = &bytes.Buffer{}
	app := &App{
		Stdin:     bytes.NewReader(nil),
		Stdout:    e.stdout,
		Stderr:    e.stderr,
		Prompter:  &fakePrompter{secrets: secrets},
		Clipboard: e.clipboard,
	}
	full := append([]string{"-d", e.store, "-f", e.fingerprint}, args...)
	return app.Run(full)
}

func TestFirstRunSetsMasterPassword(t *testing.T) {
	env := newTestEnv(t)

	require.NoError(t, env.run(t, []string{"master", "master"}, "list"))
	assert.Contains(t, env.stdout.String(), "No credentials stored.")

	fp, err := vault.LoadFingerprint(env.fingerprint)
	require.NoError(t, err)
	assert.Equal(t, vault.SchemeSHA256, fp.Scheme)
	assert.Equal(t, vault.FingerprintFromKey(vault.DeriveKey("master")).Sum, fp.Sum)

	info, err := os.Stat(env.fingerprint)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0600), info.Mode().Perm())
}

func TestFirstRunMismatchedConfirmation(t *testing.T) {
	env := newTestEnv(t)

	err := env.run(t, []string{"master", "other"}, "list")
	assert.ErrorIs(t, err, errPasswordMismatch)

	_, err = os.Stat(env.fingerprint)
	assert.True(t, os.IsNotExist(err))
}

func TestCredentialLifecycle(t *testing.T) {
	env := newTestEnv(t)
	require.NoError(t, env.run(t, []string{"master", "master"}, "list"))

	require.NoError(t, env.run(t, []string{"master", "hunter2", "hunter2"}, "add", "example.com", "alice", "alice@example.com"))
	assert.Contains(t, env.stdout.String(), `Added credentials for site "example.com" user "alice"`)

	raw, err := os.ReadFile(env.store)
	require.NoError(t, err)
	assert.NotContains(t, string(raw), "hunter2")

	require.NoError(t, env.run(t, []string{"master"}, "get", "example.com", "alice"))
	out := env.stdout.String()
	assert.Contains(t, out, "Username: alice@example.com")
	assert.Contains(t, out, "Password: hunter2")

	err = env.run(t, []string{"master", "x", "x"}, "add", "example.com", "alice", "dup")
	assert.ErrorIs(t, err, vault.ErrAlreadyExists)

	require.NoError(t, env.run(t, []string{"master", "s3cret", "s3cret"}, "update", "example.com", "alice", "alice2"))
	require.NoError(t, env.run(t, []string{"master"}, "get", "example.com", "alice"))
	assert.Contains(t, env.stdout.String(), "Username: alice2")
	assert.Contains(t, env.stdout.String(), "Password: s3cret")

	require.NoError(t, env.run(t, []string{"master"}, "list"))
	assert.Contains(t, env.stdout.String(), "Site: example.com\n    User: alice  Username: alice2\n")

	require.NoError(t, env.run(t, []string{"master"}, "delete", "example.com", "alice"))
	err = env.run(t, []string{"master"}, "get", "example.com", "alice")
	assert.ErrorIs(t, err, vault.ErrNotFound)

	err = env.run(t, []string{"master"}, "delete", "example.com", "alice")
	assert.ErrorIs(t, err, vault.ErrNotFound)
}

func TestWrongMasterPassword(t *testing.T) {
	env := newTestEnv(t)
	require.NoError(t, env.run(t, []string{"master", "master"}, "list"))

	err := env.run(t, []string{"wrong"}, "list")
	assert.ErrorIs(t, err, vault.ErrInvalidMasterPassword)
}

func TestUsageErrorsBeforePrompting(t *testing.T) {
	env := newTestEnv(t)

	err := env.run(t, nil, "get", "only-site")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "usage: pwmgr get")

	err = env.run(t, nil, "frobnicate")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown command")

	_, statErr := os.Stat(env.fingerprint)
	assert.True(t, os.IsNotExist(statErr))
}

func TestVersion(t *testing.T) {
	env := newTestEnv(t)
	require.NoError(t, env.run(t, nil, "version"))
	assert.Equal(t, "pwmgr "+Version+"\n", env.stdout.String())
}

func TestImportFeed(t *testing.T) {
	env := newTestEnv(t)
	feed := filepath.Join(t.TempDir(), "raw.txt")
	require.NoError(t, os.WriteFile(feed, []byte(
		"example.com alice alice@example.com hunter2\n"+
			"mail.org carol carol pa55\n"+
			"\n"), 0600))

	require.NoError(t, env.run(t, []string{"master", "master"}, "-r", feed, "list"))
	out := env.stdout.String()
	assert.Contains(t, out, "Site: example.com")
	assert.Contains(t, out, "Site: mail.org")

	require.NoError(t, env.run(t, []string{"master"}, "get", "mail.org", "carol"))
	assert.Contains(t, env.stdout.String(), "Password: pa55")
}

func TestImportFeedMalformed(t *testing.T) {
	env := newTestEnv(t)
	feed := filepath.Join(t.TempDir(), "raw.txt")
	require.NoError(t, os.WriteFile(feed, []byte("example.com alice hunter2\n"), 0600))

	err := env.run(t, []string{"master", "master"}, "-r", feed, "list")
	assert.ErrorIs(t, err, vault.ErrMalformedLine)

	_, statErr := os.Stat(env.store)
	assert.True(t, os.IsNotExist(statErr))
}

func TestOrphanStoreRefused(t *testing.T) {
	env := newTestEnv(t)
	require.NoError(t, env.run(t, []string{"master", "master"}, "list"))
	require.NoError(t, env.run(t, []string{"master", "p", "p"}, "add", "s", "u", "n"))
	require.NoError(t, os.Remove(env.fingerprint))

	err := env.run(t, []string{"new", "new"}, "list")
	assert.ErrorIs(t, err, vault.ErrNoFingerprint)
}

func TestPasswdRotatesMasterPassword(t *testing.T) {
	env := newTestEnv(t)
	require.NoError(t, env.run(t, []string{"old", "old"}, "list"))
	require.NoError(t, env.run(t, []string{"old", "hunter2", "hunter2"}, "add", "example.com", "alice", "alice"))
	require.NoError(t, env.run(t, []string{"old", "ünïcødé", "ünïcødé"}, "add", "mail.org", "carol", "carol"))

	require.NoError(t, env.run(t, []string{"old", "new", "new"}, "passwd"))
	assert.Contains(t, env.stdout.String(), "2 credentials re-encrypted")

	err := env.run(t, []string{"old"}, "list")
	assert.ErrorIs(t, err, vault.ErrInvalidMasterPassword)

	require.NoError(t, env.run(t, []string{"new"}, "get", "mail.org", "carol"))
	assert.Contains(t, env.stdout.String(), "Password: ünïcødé")
	require.NoError(t, env.run(t, []string{"new"}, "get", "example.com", "alice"))
	assert.Contains(t, env.stdout.String(), "Password: hunter2")
}

func TestPasswdAbortsOnCorruptEntry(t *testing.T) {
	env := newTestEnv(t)
	require.NoError(t, env.run(t, []string{"old", "old"}, "list"))

	key := vault.DeriveKey("old")
	store := vault.NewStore()
	require.NoError(t, store.Add(key, "example.com", "alice", "alice", "hunter2"))
	store["example.com"]["bob"] = vault.Credential{Username: "bob", Password: "!!not-base64!!"}
	require.NoError(t, vault.SaveStore(env.store, store))
	before, err := os.ReadFile(env.store)
	require.NoError(t, err)

	err = env.run(t, []string{"old", "new", "new"}, "passwd")
	assert.ErrorIs(t, err, vault.ErrRotationAborted)

	after, err := os.ReadFile(env.store)
	require.NoError(t, err)
	assert.Equal(t, before, after)
	require.NoError(t, env.run(t, []string{"old"}, "list"))
}

// writeInterruptedRotation leaves the files as a crash after the rotated
// store was renamed into place, but before the fingerprint was, would.
func writeInterruptedRotation(t *testing.T, env *testEnv, oldPassword, newPassword string) {
	t.Helper()
	oldKey := vault.DeriveKey(oldPassword)
	store, err := vault.LoadStore(env.store)
	require.NoError(t, err)
	rotated, fp, err := vault.Rotate(store, oldKey, newPassword, vault.FingerprintOptions{})
	require.NoError(t, err)

	require.NoError(t, vault.SaveStore(env.store, rotated))
	storeData, err := os.ReadFile(env.store)
	require.NoError(t, err)
	fpText, err := fp.MarshalText()
	require.NoError(t, err)
	sum := sha256.Sum256(storeData)
	journal := fmt.Sprintf("%s\nstore sha256:%s\n", fpText, hex.EncodeToString(sum[:]))
	require.NoError(t, os.WriteFile(vault.PendingRotationPath(env.fingerprint), []byte(journal), 0600))
}

func TestInterruptedPasswdIsCompleted(t *testing.T) {
	env := newTestEnv(t)
	require.NoError(t, env.run(t, []string{"old", "old"}, "list"))
	require.NoError(t, env.run(t, []string{"old", "hunter2", "hunter2"}, "add", "s", "u", "n"))
	writeInterruptedRotation(t, env, "old", "new")

	require.NoError(t, env.run(t, []string{"new"}, "get", "s", "u"))
	assert.Contains(t, env.stdout.String(), "Password: hunter2")
	assert.Contains(t, env.stderr.String(), "interrupted master password change recovered")

	_, err := os.Stat(vault.PendingRotationPath(env.fingerprint))
	assert.True(t, os.IsNotExist(err))

	err = env.run(t, []string{"old"}, "list")
	assert.ErrorIs(t, err, vault.ErrInvalidMasterPassword)
}

func TestGetCopyClearsClipboard(t *testing.T) {
	env := newTestEnv(t)
	cfgPath := filepath.Join(t.TempDir(), "pwmgr.yaml")
	require.NoError(t, os.WriteFile(cfgPath, []byte("clipboard_timeout: 10ms\n"), 0600))

	require.NoError(t, env.run(t, []string{"master", "master"}, "-c", cfgPath, "list"))
	require.NoError(t, env.run(t, []string{"master", "hunter2", "hunter2"}, "-c", cfgPath, "add", "example.com", "alice", "alice"))

	require.NoError(t, env.run(t, []string{"master"}, "-c", cfgPath, "get", "--copy", "example.com", "alice"))
	assert.NotContains(t, env.stdout.String(), "hunter2")
	assert.Equal(t, []string{"hunter2", ""}, env.clipboard.writes)
	assert.Empty(t, env.clipboard.content)
}

func TestClearClipboardKeepsNewerContent(t *testing.T) {
	c := &fakeClipboard{content: "something else"}
	require.NoError(t, clearClipboard(c, "hunter2"))
	assert.Equal(t, "something else", c.content)
	assert.Empty(t, c.writes)

	c.content = "hunter2"
	require.NoError(t, clearClipboard(c, "hunter2"))
	assert.Empty(t, c.content)
}

func TestReadNewSecret(t *testing.T) {
	p := &fakePrompter{secrets: []string{"abc", "abc"}}
	got, err := readNewSecret(p, "a: ", "b: ")
	require.NoError(t, err)
	assert.Equal(t, []byte("abc"), got)
	assert.Equal(t, []string{"a: ", "b: "}, p.prompts)

	p = &fakePrompter{secrets: []string{"abc", "abd"}}
	_, err = readNewSecret(p, "a: ", "b: ")
	assert.ErrorIs(t, err, errPasswordMismatch)
}
