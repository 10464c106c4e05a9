package transaction

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
)

// tokenBytes is the entropy of a confirmation token.
const tokenBytes = 16

// newConfirmationToken returns a random hex token.
func newConfirmationToken() (string, error) {
	b := make([]byte, tokenBytes)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("generating confirmation token: %w", err)
	}
	return hex.EncodeToString(b), nil
}
