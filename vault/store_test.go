package vault

import (
	"slices"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStore_Lifecycle(t *testing.T) {
	key := DeriveKey("correct horse")
	store := NewStore()

	require.NoError(t, store.Add(key, "example.com", "alice", "alice@example.com", "p@ss1"))

	view, err := store.Get(key, "example.com", "alice")
	require.NoError(t, err)
	assert.Equal(t, PlaintextView{Username: "alice@example.com", Password: "p@ss1"}, view)

	require.NoError(t, store.Update(key, "example.com", "alice", "new username", "p@ss2"))
	view, err = store.Get(key, "example.com", "alice")
	require.NoError(t, err)
	assert.Equal(t, PlaintextView{Username: "new username", Password: "p@ss2"}, view)

	require.NoError(t, store.Delete("example.com", "alice"))
	_, err = store.Get(key, "example.com", "alice")
	assert.ErrorIs(t, err, ErrNotFound)
	assert.NotContains(t, store, "example.com")
}

func TestStore_AddExisting(t *testing.T) {
	key := DeriveKey("k")
	store := NewStore()
	require.NoError(t, store.Add(key, "site", "bob", "bob", "one"))
	before := store["site"]["bob"]

	err := store.Add(key, "site", "bob", "robert", "two")
	assert.ErrorIs(t, err, ErrAlreadyExists)
	assert.Equal(t, before, store["site"]["bob"])
}

func TestStore_AddSecondUserSameSite(t *testing.T) {
	key := DeriveKey("k")
	store := NewStore()
	require.NoError(t, store.Add(key, "site", "a", "ua", "pa"))
	require.NoError(t, store.Add(key, "site", "b", "ub", "pb"))

	assert.Len(t, store, 1)
	assert.Len(t, store["site"], 2)
	assert.Equal(t, 2, store.Len())
}

func TestStore_MissingEntries(t *testing.T) {
	key := DeriveKey("k")
	store := NewStore()
	require.NoError(t, store.Add(key, "site", "a", "ua", "pa"))

	cases := []struct{ site, user string }{
		{"other", "a"},
		{"site", "nobody"},
	}
	for _, c := range cases {
		_, err := store.Get(key, c.site, c.user)
		assert.ErrorIs(t, err, ErrNotFound)
		assert.ErrorIs(t, store.Update(key, c.site, c.user, "x", "y"), ErrNotFound)
		assert.ErrorIs(t, store.Delete(c.site, c.user), ErrNotFound)
	}
	assert.Equal(t, 1, store.Len())
}

func TestStore_DeleteKeepsSiteWithOtherUsers(t *testing.T) {
	key := DeriveKey("k")
	store := NewStore()
	require.NoError(t, store.Add(key, "site", "a", "ua", "pa"))
	require.NoError(t, store.Add(key, "site", "b", "ub", "pb"))

	require.NoError(t, store.Delete("site", "a"))
	assert.Contains(t, store, "site")
	require.NoError(t, store.Delete("site", "b"))
	assert.Empty(t, store)
}

func TestStore_GetWrongKey(t *testing.T) {
	store := NewStore()
	require.NoError(t, store.Add(DeriveKey("one"), "site", "a", "ua", "pa"))

	_, err := store.Get(DeriveKey("two"), "site", "a")
	assert.ErrorIs(t, err, ErrAuthenticationFailed)
	assert.NotErrorIs(t, err, ErrNotFound)
}

func TestStore_ListDoesNotDecrypt(t *testing.T) {
	key := DeriveKey("k")
	store := NewStore()
	require.NoError(t, store.Add(key, "b.com", "z", "uz", "pz"))
	require.NoError(t, store.Add(key, "a.com", "y", "uy", "py"))
	require.NoError(t, store.Add(key, "b.com", "x", "ux", "px"))

	entries := slices.Collect(store.List())
	require.Len(t, entries, 3)
	assert.Equal(t, []string{"a.com/y", "b.com/x", "b.com/z"}, []string{
		entries[0].Site + "/" + entries[0].User,
		entries[1].Site + "/" + entries[1].User,
		entries[2].Site + "/" + entries[2].User,
	})
	for _, e := range entries {
		assert.Equal(t, store[e.Site][e.User], e.Credential)
		assert.NotEqual(t, EncryptedField("p"+e.User), e.Credential.Password)
	}

	// Restartable.
	assert.Len(t, slices.Collect(store.List()), 3)
}

func TestStore_ListEarlyStop(t *testing.T) {
	key := DeriveKey("k")
	store := NewStore()
	require.NoError(t, store.Add(key, "a", "1", "u", "p"))
	require.NoError(t, store.Add(key, "b", "1", "u", "p"))

	n := 0
	for range store.List() {
		n++
		break
	}
	assert.Equal(t, 1, n)
}

func TestStore_CloneIsDeep(t *testing.T) {
	key := DeriveKey("k")
	store := NewStore()
	require.NoError(t, store.Add(key, "site", "a", "ua", "pa"))

	clone := store.Clone()
	require.NoError(t, clone.Delete("site", "a"))
	assert.True(t, store.Contains("site", "a"))
	assert.False(t, clone.Contains("site", "a"))
}
