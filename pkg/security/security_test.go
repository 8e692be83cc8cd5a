package security

import (
	"bytes"
	"strings"
	"testing"

	"github.com/jdziat/sitepipe/pkg/core"
	"github.com/stretchr/testify/assert"
)

func TestNormalizeKey(t *testing.T) {
	assert.Equal(t, "foo.com", NormalizeKey("  Foo.COM. "))
	assert.Equal(t, "", NormalizeKey("   "))
}

func TestNormalizeKey_Internationalized(t *testing.T) {
	assert.Equal(t, "xn--bcher-kva.de", NormalizeKey("Bücher.de"))
	assert.Equal(t, "xn--bcher-kva.de", NormalizeKey("xn--bcher-kva.de"))
	assert.NoError(t, ValidateKey(NormalizeKey("bücher.de")))
	assert.NoError(t, ValidateKey(NormalizeKey("My_Site.com")))
}

func TestValidateKey_Valid(t *testing.T) {
	validKeys := []string{
		"foo.com",
		"my-shop.co.uk",
		"a.io",
		"123.example.org",
		"xn--bcher-kva.de",
		"localhost",
		"my_site.com",
	}

	for _, key := range validKeys {
		assert.NoError(t, ValidateKey(key), "Expected %q to be valid", key)
	}
}

func TestValidateKey_Invalid(t *testing.T) {
	tests := []struct {
		key string
		err error
	}{
		{"", core.ErrKeyRequired},
		{"bücher.de", core.ErrInvalidKey},
		{"foo.", core.ErrInvalidKey},
		{"-foo.com", core.ErrInvalidKey},
		{"foo-.com", core.ErrInvalidKey},
		{"foo..com", core.ErrInvalidKey},
		{"foo bar.com", core.ErrInvalidKey},
		{"foo.com/path", core.ErrInvalidKey},
		{"Foo.com", core.ErrInvalidKey},
		{strings.Repeat("a", 250) + ".com", core.ErrKeyTooLong},
	}

	for _, tt := range tests {
		assert.ErrorIs(t, ValidateKey(tt.key), tt.err, "key %q", tt.key)
	}
}

func TestValidatePayload(t *testing.T) {
	assert.NoError(t, ValidatePayload(nil))
	assert.NoError(t, ValidatePayload([]byte(`{"feedback":"more green"}`)))
	assert.ErrorIs(t, ValidatePayload([]byte(`[1]`)), core.ErrInvalidPayload)
	assert.ErrorIs(t, ValidatePayload([]byte(`null`)), core.ErrInvalidPayload)
	assert.ErrorIs(t, ValidatePayload([]byte(`{`)), core.ErrInvalidPayload)

	big := append([]byte(`{"x":"`), bytes.Repeat([]byte("a"), MaxPayloadSize)...)
	big = append(big, []byte(`"}`)...)
	assert.ErrorIs(t, ValidatePayload(big), core.ErrPayloadTooLarge)
}

func TestSanitizeErrorMessage(t *testing.T) {
	assert.Equal(t, "", SanitizeErrorMessage(""))
	assert.Equal(t, "bad\tthing\nhappened", SanitizeErrorMessage("bad\tthing\nhap\x00pened\x7f"))

	long := strings.Repeat("x", MaxErrorMessageLength+50)
	got := SanitizeErrorMessage(long)
	assert.Len(t, got, MaxErrorMessageLength)
	assert.True(t, strings.HasSuffix(got, "..."))
}

func TestClampBatchSize(t *testing.T) {
	assert.Equal(t, 1, ClampBatchSize(0))
	assert.Equal(t, 1, ClampBatchSize(-3))
	assert.Equal(t, 5, ClampBatchSize(5))
	assert.Equal(t, MaxBatchSize, ClampBatchSize(5000))
}

func TestClampListLimit(t *testing.T) {
	assert.Equal(t, DefaultListLimit, ClampListLimit(0))
	assert.Equal(t, 7, ClampListLimit(7))
	assert.Equal(t, MaxListLimit, ClampListLimit(1000))
}
