package account

import (
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	coinerr "github.com/mrz1836/coinsync/pkg/errors"
)

func writeAccounts(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "accounts.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoadFile(t *testing.T) {
	t.Parallel()

	path := writeAccounts(t, `
accounts:
  - name: alice
    address: 1Uv2alice
    private_key: 112t8alice
  - name: bob
    address: 1Uv2bob
    private_key: 112t8bob
`)

	accounts, err := LoadFile(path)
	require.NoError(t, err)
	require.Len(t, accounts, 2)
	assert.Equal(t, "alice", accounts[0].Name)
	assert.Equal(t, KeyHandle("112t8alice"), accounts[0].Key)
	assert.Equal(t, []string{"alice", "bob"}, Names(accounts))
}

func TestLoadFile_Duplicate(t *testing.T) {
	t.Parallel()

	path := writeAccounts(t, `
accounts:
  - name: alice
  - name: alice
`)

	_, err := LoadFile(path)
	require.ErrorIs(t, err, coinerr.ErrInvalidInput)
}

func TestLoadFile_Missing(t *testing.T) {
	t.Parallel()

	_, err := LoadFile(filepath.Join(t.TempDir(), "nope.yaml"))
	require.ErrorIs(t, err, coinerr.ErrNotFound)
}

func TestKeyHandleRedacted(t *testing.T) {
	t.Parallel()

	a := Account{Name: "alice", Key: "secret"}
	assert.NotContains(t, fmt.Sprintf("%v", a.Key), "secret")
	assert.Equal(t, "secret", string(a.Key))
}

func TestFind(t *testing.T) {
	t.Parallel()

	accounts := []Account{{Name: "alice"}, {Name: "bob"}, {Name: "carol"}}

	got, err := Find(accounts, "bob")
	require.NoError(t, err)
	assert.Equal(t, "bob", got.Name)

	_, err = Find(accounts, "alise")
	require.ErrorIs(t, err, coinerr.ErrAccountNotFound)

	var ce *coinerr.CoinError
	require.ErrorAs(t, err, &ce)
	assert.Equal(t, "did you mean alice?", ce.Suggestion)
}

func TestSuggest(t *testing.T) {
	t.Parallel()

	accounts := []Account{{Name: "savings"}, {Name: "Main"}, {Name: "mains"}}
	assert.Equal(t, []string{"Main", "mains"}, Suggest(accounts, "main"))
	assert.Empty(t, Suggest(accounts, "completely-different"))
}
