// Package account defines the wallet accounts the sync layer operates on.
// Accounts are created and imported by the external wallet library; this
// package only reads them.
package account

import (
	"os"
	"sort"
	"strings"

	"github.com/agnivade/levenshtein"
	"gopkg.in/yaml.v3"

	coinerr "github.com/mrz1836/coinsync/pkg/errors"
)

// KeyHandle is an opaque reference to an account's private key.
// Its content is owned by the wallet library and is only passed through
// to the node client.
type KeyHandle string

// String hides the key material in logs and formatted output.
func (KeyHandle) String() string {
	return "[redacted]"
}

// Account is a wallet account visible to the sync layer.
type Account struct {
	Name    string    `yaml:"name"`
	Address string    `yaml:"address"`
	Key     KeyHandle `yaml:"private_key"`
}

// file is the on-disk layout of an exported account list.
type file struct {
	Accounts []Account `yaml:"accounts"`
}

// LoadFile reads an exported account list.
// Accounts with duplicate names are rejected; names are unique within a wallet.
func LoadFile(path string) ([]Account, error) {
	// #nosec G304 -- path comes from validated config
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, coinerr.WithDetails(coinerr.ErrNotFound, map[string]string{"path": path})
		}
		return nil, err
	}

	var f file
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, coinerr.Wrap(coinerr.ErrInvalidInput, "parsing accounts file")
	}

	seen := make(map[string]struct{}, len(f.Accounts))
	for _, a := range f.Accounts {
		name := strings.TrimSpace(a.Name)
		if name == "" {
			return nil, coinerr.WithSuggestion(coinerr.ErrInvalidInput, "every account needs a name")
		}
		if _, dup := seen[name]; dup {
			return nil, coinerr.WithDetails(coinerr.ErrInvalidInput, map[string]string{"duplicate": name})
		}
		seen[name] = struct{}{}
	}

	return f.Accounts, nil
}

// Find returns the account with the given name.
// When no account matches, the error carries a suggestion for the closest name.
func Find(accounts []Account, name string) (Account, error) {
	for _, a := range accounts {
		if a.Name == name {
			return a, nil
		}
	}

	err := coinerr.WithDetails(coinerr.ErrAccountNotFound, map[string]string{"name": name})
	if s := Suggest(accounts, name); len(s) > 0 {
		err = coinerr.WithSuggestion(err, "did you mean "+strings.Join(s, " or ")+"?")
	}
	return Account{}, err
}

// maxSuggestDistance is the largest edit distance still worth suggesting.
const maxSuggestDistance = 3

// Suggest returns account names within a small edit distance of name,
// closest first.
func Suggest(accounts []Account, name string) []string {
	type candidate struct {
		name string
		dist int
	}

	var candidates []candidate
	lower := strings.ToLower(name)
	for _, a := range accounts {
		d := levenshtein.ComputeDistance(lower, strings.ToLower(a.Name))
		if d <= maxSuggestDistance {
			candidates = append(candidates, candidate{name: a.Name, dist: d})
		}
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		return candidates[i].dist < candidates[j].dist
	})

	out := make([]string, 0, len(candidates))
	for _, c := range candidates {
		out = append(out, c.name)
	}
	return out
}

// Names returns the account names in order.
func Names(accounts []Account) []string {
	names := make([]string, len(accounts))
	for i, a := range accounts {
		names[i] = a.Name
	}
	return names
}
