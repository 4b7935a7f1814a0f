package cipher

import (
	"strings"
	"unicode/utf8"

	"trust-access-layer/backend/internal/apperror"
)

// Scheme selects how a decrypted value is redacted for display.
type Scheme struct {
	Kind string
	// N is the number of trailing characters revealed by SchemeLastN.
	N int
}

const (
	SchemeLast4 = "last4"
	SchemeLastN = "lastN"
	SchemeEmail = "email"
	SchemeFull  = "full"
)

const maskRune = '•'

// ParseScheme validates a scheme name. n is used only by lastN.
func ParseScheme(kind string, n int) (Scheme, error) {
	switch kind {
	case SchemeLast4:
		return Scheme{Kind: kind, N: 4}, nil
	case SchemeLastN:
		if n < 0 {
			return Scheme{}, apperror.New(apperror.KindInvalidArgument, "mask length must not be negative")
		}
		return Scheme{Kind: kind, N: n}, nil
	case SchemeEmail, SchemeFull:
		return Scheme{Kind: kind}, nil
	default:
		return Scheme{}, apperror.New(apperror.KindInvalidArgument, "unknown mask scheme")
	}
}

// Mask redacts plaintext. It operates on characters, not bytes, and never reveals more
// than half of a short value for the trailing schemes.
func Mask(plaintext string, s Scheme) string {
	if plaintext == "" {
		return ""
	}
	switch s.Kind {
	case SchemeLast4, SchemeLastN:
		return maskTrailing(plaintext, s.N)
	case SchemeEmail:
		local, domain, ok := strings.Cut(plaintext, "@")
		if !ok || local == "" {
			return maskTrailing(plaintext, 0)
		}
		first, size := utf8.DecodeRuneInString(local)
		return string(first) + strings.Repeat(string(maskRune), utf8.RuneCountInString(local[size:])) + "@" + domain
	default:
		return maskTrailing(plaintext, 0)
	}
}

func maskTrailing(plaintext string, n int) string {
	runes := []rune(plaintext)
	if n > len(runes)/2 {
		n = len(runes) / 2
	}
	hidden := len(runes) - n
	return strings.Repeat(string(maskRune), hidden) + string(runes[hidden:])
}
