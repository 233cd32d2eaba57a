package referralcode

import (
	"crypto/rand"
	"fmt"
	"strings"
)

// alphabet excludes 0/O/1/I to keep codes readable over the phone.
const alphabet = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"

// DefaultLength is the code length used for new groups.
const DefaultLength = 8

// Generate returns a random referral code of the given length. Codes are
// uppercase and drawn from an unambiguous alphabet; uniqueness is enforced by
// the database, callers retry on collision.
func Generate(length int) (string, error) {
	if length <= 0 {
		length = DefaultLength
	}
	buf := make([]byte, length)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("reading random bytes: %w", err)
	}
	for i := range buf {
		buf[i] = alphabet[int(buf[i])%len(alphabet)]
	}
	return string(buf), nil
}

// Normalize maps user input onto the canonical code form.
func Normalize(code string) string {
	code = strings.ToUpper(strings.TrimSpace(code))
	// zero is not in the alphabet; treat it as the letter O
	return strings.ReplaceAll(code, "0", "O")
}

// Valid reports whether code looks like something Generate could have produced.
func Valid(code string) bool {
	if len(code) < 4 || len(code) > 16 {
		return false
	}
	for i := 0; i < len(code); i++ {
		if !strings.ContainsRune(alphabet, rune(code[i])) {
			return false
		}
	}
	return true
}
