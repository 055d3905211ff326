package service

import (
	"crypto/rand"
	"math/big"
	"regexp"
	"strings"
)

// Alphabets for short code generation. The unambiguous set drops the
// characters commonly misread when codes are transcribed by hand.
const (
	Base62Chars      = "0123456789ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz"
	UnambiguousChars = "23456789ABCDEFGHJKMNPQRSTUVWXYZabcdefghjkmnpqrstuvwxyz"
)

// Short codes double as the public path segment, so anything routable or
// owner-facing is reserved for both aliases and generated codes.
var reservedCodes = map[string]bool{
	"api":     true,
	"health":  true,
	"metrics": true,
	"admin":   true,
	"auth":    true,
	"login":   true,
	"logout":  true,
	"signup":  true,
	"links":   true,
	"shorten": true,
	"stats":   true,
	"static":  true,
	"www":     true,
}

var aliasPattern = regexp.MustCompile(`^[A-Za-z0-9_-]+$`)

// ShortCodeGenerator produces random short codes over a configurable
// alphabet and validates caller-chosen aliases.
type ShortCodeGenerator struct {
	alphabet   string
	codeLength int
	minAlias   int
	maxAlias   int
}

// NewShortCodeGenerator creates a generator. An empty alphabet falls back
// to the full Base62 set.
func NewShortCodeGenerator(codeLength, minAlias, maxAlias int, alphabet string) *ShortCodeGenerator {
	if alphabet == "" {
		alphabet = Base62Chars
	}
	return &ShortCodeGenerator{
		alphabet:   alphabet,
		codeLength: codeLength,
		minAlias:   minAlias,
		maxAlias:   maxAlias,
	}
}

// Generate returns a cryptographically random code. Uniqueness is enforced
// by the store's unique index; the caller retries on conflict up to its
// configured bound.
func (g *ShortCodeGenerator) Generate() (string, error) {
	max := big.NewInt(int64(len(g.alphabet)))
	var sb strings.Builder
	sb.Grow(g.codeLength)
	for i := 0; i < g.codeLength; i++ {
		n, err := rand.Int(rand.Reader, max)
		if err != nil {
			return "", err
		}
		sb.WriteByte(g.alphabet[n.Int64()])
	}
	code := sb.String()
	if reservedCodes[strings.ToLower(code)] {
		return g.Generate()
	}
	return code, nil
}

// ValidateAlias checks a caller-chosen alias against the same format rules
// a generated code satisfies by construction: length bounds, character
// classes and the reserved-word denylist.
func (g *ShortCodeGenerator) ValidateAlias(alias string) error {
	if len(alias) < g.minAlias || len(alias) > g.maxAlias {
		return ErrInvalidAlias
	}
	if !aliasPattern.MatchString(alias) {
		return ErrInvalidAlias
	}
	if reservedCodes[strings.ToLower(alias)] {
		return ErrInvalidAlias
	}
	return nil
}

// EncodeBase62 encodes a number to a Base62 string. Used for the
// sequential allocation mode where codes come from a monotonic counter
// and collisions are impossible.
func EncodeBase62(num uint64) string {
	if num == 0 {
		return string(Base62Chars[0])
	}
	encoded := ""
	for num > 0 {
		remainder := num % 62
		encoded = string(Base62Chars[remainder]) + encoded
		num = num / 62
	}
	return encoded
}
