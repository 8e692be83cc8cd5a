// Package security provides validation, sanitization, and limits for sitepipe.
package security

import (
	"encoding/json"
	"regexp"
	"strings"
	"unicode/utf8"

	"golang.org/x/net/idna"

	"github.com/jdziat/sitepipe/pkg/core"
)

// Security limits and configuration
const (
	// MaxKeyLength is the maximum length for a job key (a DNS name)
	MaxKeyLength = 253

	// MaxPayloadSize is the maximum size in bytes for a job payload (1MB)
	MaxPayloadSize = 1 << 20

	// MaxBatchSize is the hard limit for jobs claimed per scheduler tick
	MaxBatchSize = 100

	// MaxListLimit is the hard limit for listing queries
	MaxListLimit = 100

	// DefaultListLimit is used when a listing query does not set a limit
	DefaultListLimit = 20

	// MaxErrorMessageLength is the maximum length for stored error messages
	MaxErrorMessageLength = 4096
)

// validLabel matches one label of a host name. Underscores are accepted
// because real hosts use them even though DNS host rules forbid them.
var validLabel = regexp.MustCompile(`^[a-z0-9_]([a-z0-9_-]{0,61}[a-z0-9_])?$`)

// keyProfile maps internationalized names to their ASCII form without the
// strict host-name character rules.
var keyProfile = idna.New(
	idna.MapForLookup(),
	idna.BidiRule(),
	idna.StrictDomainName(false),
)

// NormalizeKey trims whitespace, lowercases, strips a trailing dot and
// converts internationalized names to punycode ("bücher.de" becomes
// "xn--bcher-kva.de"). A key that cannot be converted is returned lowercased
// and fails ValidateKey.
func NormalizeKey(key string) string {
	key = strings.ToLower(strings.TrimSpace(key))
	key = strings.TrimSuffix(key, ".")
	if key == "" {
		return ""
	}
	if ascii, err := keyProfile.ToASCII(key); err == nil {
		return ascii
	}
	return key
}

// ValidateKey validates a normalized job key: an ASCII host name of one or
// more labels, such as "example.com" or "localhost".
func ValidateKey(key string) error {
	if key == "" {
		return core.ErrKeyRequired
	}
	if len(key) > MaxKeyLength {
		return core.ErrKeyTooLong
	}
	for _, label := range strings.Split(key, ".") {
		if !validLabel.MatchString(label) {
			return core.ErrInvalidKey
		}
	}
	return nil
}

// ValidatePayload checks the payload is a JSON object within the size limit.
// An empty payload is allowed.
func ValidatePayload(payload []byte) error {
	if len(payload) == 0 {
		return nil
	}
	if len(payload) > MaxPayloadSize {
		return core.ErrPayloadTooLarge
	}
	var obj map[string]json.RawMessage
	if err := json.Unmarshal(payload, &obj); err != nil || obj == nil {
		return core.ErrInvalidPayload
	}
	return nil
}

// SanitizeErrorMessage truncates and sanitizes error messages for storage
func SanitizeErrorMessage(msg string) string {
	if msg == "" {
		return ""
	}

	// Remove any null bytes or control characters (except newlines)
	var sanitized strings.Builder
	sanitized.Grow(len(msg))

	for _, r := range msg {
		if r == '\n' || r == '\r' || r == '\t' || (r >= 32 && r != 127) {
			sanitized.WriteRune(r)
		}
	}

	result := sanitized.String()

	if utf8.RuneCountInString(result) > MaxErrorMessageLength {
		runes := []rune(result)
		result = string(runes[:MaxErrorMessageLength-3]) + "..."
	}

	return result
}

// ClampBatchSize ensures a claim batch is within limits
func ClampBatchSize(n int) int {
	if n < 1 {
		return 1
	}
	if n > MaxBatchSize {
		return MaxBatchSize
	}
	return n
}

// ClampListLimit applies the default and the upper bound to a listing limit
func ClampListLimit(n int) int {
	if n <= 0 {
		return DefaultListLimit
	}
	if n > MaxListLimit {
		return MaxListLimit
	}
	return n
}
