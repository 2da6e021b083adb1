package session

import "github.com/google/uuid"

// newClientID returns a fresh random client identity.
func newClientID() string {
	return uuid.NewString()
}

// MaskToken shortens a token for logs: the first and last four characters
// survive, the rest is elided. Short tokens are fully masked.
// Characters are counted as runes so the result stays valid UTF-8.
func MaskToken(token string) string {
	r := []rune(token)
	if len(r) <= 8 {
		return "****"
	}
	return string(r[:4]) + "…" + string(r[len(r)-4:])
}
