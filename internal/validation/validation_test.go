package validation

import (
	"math"
	"net/http/httptest"
	"strings"
	"testing"

	"whatsbot/internal/errors"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidatePhoneNumber(t *testing.T) {
	tests := []struct {
		name      string
		phone     string
		errorCode errors.ErrorCode
	}{
		{name: "spanish number", phone: "+34123456789"},
		{name: "transport tag", phone: "whatsapp:+34123456789"},
		{name: "shortest", phone: "+12"},
		{name: "empty", phone: "", errorCode: errors.ErrCodeInvalidInput},
		{name: "missing plus", phone: "34123456789", errorCode: errors.ErrCodeValidationFailed},
		{name: "leading zero", phone: "+0123456", errorCode: errors.ErrCodeValidationFailed},
		{name: "letters", phone: "+34abc", errorCode: errors.ErrCodeValidationFailed},
		{name: "too long", phone: "+1234567890123456", errorCode: errors.ErrCodeValidationFailed},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidatePhoneNumber(tt.phone)
			if tt.errorCode == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Equal(t, tt.errorCode, errors.GetCode(err))
		})
	}
}

func TestValidateEmail(t *testing.T) {
	assert.NoError(t, ValidateEmail("maria@example.com"))
	assert.Error(t, ValidateEmail("maria"))
	assert.Error(t, ValidateEmail("Maria <maria@example.com>"))
}

func TestValidateID(t *testing.T) {
	assert.NoError(t, ValidateID("42", "contact_id"))
	assert.NoError(t, ValidateID("4f1c-aa", "contact_id"))
	assert.Error(t, ValidateID(" ", "contact_id"))
	assert.Error(t, ValidateID("../etc", "contact_id"))
	assert.Error(t, ValidateID("1?x=2", "contact_id"))
}

func TestValidateMessageContent(t *testing.T) {
	assert.NoError(t, ValidateMessageContent("Hola"))
	assert.Error(t, ValidateMessageContent("   "))
	assert.Error(t, ValidateMessageContent(strings.Repeat("a", MaxMessageLength+1)))
	assert.NoError(t, ValidateMessageContent(strings.Repeat("ñ", MaxMessageLength)))
}

func TestValidateBroadcast(t *testing.T) {
	assert.NoError(t, ValidateBroadcast([]string{"1", "2"}, "Oferta"))

	err := ValidateBroadcast(nil, "Oferta")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "contact id")

	assert.Error(t, ValidateBroadcast([]string{"1"}, ""))
	assert.Error(t, ValidateBroadcast([]string{""}, "x"))
	assert.Error(t, ValidateBroadcast(make([]string, MaxBroadcastTargets+1), "x"))
}

func TestValidateAIConfig(t *testing.T) {
	tests := []struct {
		name     string
		min, max int
		temp     float64
		tokens   int
		wantErr  string
	}{
		{"defaults", 2, 8, 0.7, 500, ""},
		{"bounds", 0, 120, 2.0, 2000, ""},
		{"negative delay", -1, 8, 0.7, 500, "response_delay_min"},
		{"min above 60", 61, 100, 0.7, 500, "response_delay_min"},
		{"max above 120", 2, 121, 0.7, 500, "response_delay_max"},
		{"min over max", 10, 5, 0.7, 500, "minimum delay"},
		{"hot", 2, 8, 2.1, 500, "temperature"},
		{"nan", 2, 8, math.NaN(), 500, "temperature"},
		{"few tokens", 2, 8, 0.7, 49, "max_tokens"},
		{"many tokens", 2, 8, 0.7, 2001, "max_tokens"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateAIConfig(tt.min, tt.max, tt.temp, tt.tokens)
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestValidateUpload(t *testing.T) {
	assert.NoError(t, ValidateUpload("faq.txt", 120))
	assert.NoError(t, ValidateUpload("Notas.MD", 1))
	assert.Error(t, ValidateUpload("", 10))
	assert.Error(t, ValidateUpload("image.png", 10))
	assert.Error(t, ValidateUpload("README", 10))
	assert.Error(t, ValidateUpload("faq.txt", 0))
	assert.Error(t, ValidateUpload("faq.txt", MaxUploadBytes+1))
}

func TestValidateHTTPRequestSize(t *testing.T) {
	small := httptest.NewRequest("PUT", "/api/preferences/theme", strings.NewReader(`"dark"`))
	assert.NoError(t, ValidateHTTPRequestSize(small, 1024))

	large := httptest.NewRequest("PUT", "/api/preferences/theme", strings.NewReader(strings.Repeat("x", 2048)))
	err := ValidateHTTPRequestSize(large, 1024)
	require.Error(t, err)
	assert.Equal(t, errors.ErrCodeInvalidInput, errors.GetCode(err))
}

func TestValidateStringLength(t *testing.T) {
	assert.NoError(t, ValidateStringLength("día", "title", 3, 3))
	assert.Error(t, ValidateStringLength("", "title", 1, 10))
	assert.Error(t, ValidateStringLength("abcdef", "title", 1, 5))
}

func TestValidateNumericRanges(t *testing.T) {
	assert.NoError(t, ValidateNumericRange(5, "limit", 1, 10))
	assert.Error(t, ValidateNumericRange(0, "limit", 1, 10))
	assert.Error(t, ValidateNumericRange(11, "limit", 1, 10))
	assert.NoError(t, ValidateFloatRange(1.5, "t", 0, 2))
	assert.Error(t, ValidateFloatRange(-0.1, "t", 0, 2))
}

func TestValidateTimeoutAndInterval(t *testing.T) {
	assert.NoError(t, ValidateTimeout(30, "timeout"))
	assert.Error(t, ValidateTimeout(0, "timeout"))
	assert.Error(t, ValidateTimeout(3601, "timeout"))
	assert.NoError(t, ValidateInterval(15, "live_refresh"))
	assert.Error(t, ValidateInterval(0, "live_refresh"))
}
