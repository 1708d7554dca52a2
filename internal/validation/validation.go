package validation

import (
	"fmt"
	"math"
	"net/http"
	"net/mail"
	"path/filepath"
	"regexp"
	"strings"
	"unicode/utf8"

	"whatsbot/internal/errors"
)

// Bounds enforced by the bot backend.
const (
	MaxNameLength       = 100
	MaxTitleLength      = 200
	MaxContentLength    = 100000
	MaxMessageLength    = 4096
	MaxBroadcastTargets = 1000
	MaxUploadBytes      = 10 << 20

	MaxResponseDelayMin = 60
	MaxResponseDelayMax = 120
	MaxTemperature      = 2.0
	MinMaxTokens        = 50
	MaxMaxTokens        = 2000
)

var e164 = regexp.MustCompile(`^\+[1-9]\d{1,14}$`)

// AllowedUploadExtensions lists the text formats accepted as training files.
var AllowedUploadExtensions = []string{".txt", ".md", ".csv", ".json"}

// InvalidValue builds a validation error for field.
func InvalidValue(field, value, message string) error {
	return errors.NewValidationError(field, value, message)
}

// ValidatePhoneNumber checks E.164 format: a leading "+" and 2 to 15 digits.
// A "whatsapp:" transport tag is accepted and ignored.
func ValidatePhoneNumber(phone string) error {
	if phone == "" {
		return errors.New(errors.ErrCodeInvalidInput, "phone number cannot be empty")
	}

	cleaned := strings.TrimPrefix(phone, "whatsapp:")
	if !e164.MatchString(cleaned) {
		return errors.NewValidationError("phone_number", phone,
			"phone number must be in international format, e.g. +34123456789")
	}
	return nil
}

// ValidateEmail checks that email is a bare address.
func ValidateEmail(email string) error {
	addr, err := mail.ParseAddress(email)
	if err != nil || addr.Address != email {
		return errors.NewValidationError("email", email, "email address is not valid")
	}
	return nil
}

// ValidateID rejects empty identifiers and ones that would escape a URL path segment.
func ValidateID(id, fieldName string) error {
	if strings.TrimSpace(id) == "" {
		return errors.New(errors.ErrCodeInvalidInput, fmt.Sprintf("%s cannot be empty", fieldName))
	}
	if strings.ContainsAny(id, "/?#") {
		return errors.NewValidationError(fieldName, id, fmt.Sprintf("%s contains invalid characters", fieldName))
	}
	return nil
}

// ValidateMessageContent checks an outgoing message body.
func ValidateMessageContent(content string) error {
	if strings.TrimSpace(content) == "" {
		return errors.New(errors.ErrCodeInvalidInput, "message content is required")
	}
	return ValidateStringLength(content, "message", 1, MaxMessageLength)
}

// ValidateBroadcast checks recipients and message of a broadcast.
func ValidateBroadcast(contactIDs []string, message string) error {
	if len(contactIDs) == 0 {
		return errors.New(errors.ErrCodeInvalidInput, "at least one contact id is required")
	}
	if len(contactIDs) > MaxBroadcastTargets {
		return errors.New(errors.ErrCodeInvalidInput,
			fmt.Sprintf("too many recipients (max %d)", MaxBroadcastTargets))
	}
	for _, id := range contactIDs {
		if err := ValidateID(id, "contact_id"); err != nil {
			return err
		}
	}
	return ValidateMessageContent(message)
}

// ValidateAIConfig checks the bounds of a full AI configuration.
func ValidateAIConfig(delayMin, delayMax int, temperature float64, maxTokens int) error {
	if err := ValidateNumericRange(delayMin, "response_delay_min", 0, MaxResponseDelayMin); err != nil {
		return err
	}
	if err := ValidateNumericRange(delayMax, "response_delay_max", 0, MaxResponseDelayMax); err != nil {
		return err
	}
	if delayMin > delayMax {
		return errors.NewValidationError("response_delay_min", fmt.Sprint(delayMin),
			"minimum delay cannot exceed maximum delay")
	}
	if err := ValidateFloatRange(temperature, "temperature", 0, MaxTemperature); err != nil {
		return err
	}
	return ValidateNumericRange(maxTokens, "max_tokens", MinMaxTokens, MaxMaxTokens)
}

// ValidateUpload checks a training file name and size before it is sent.
func ValidateUpload(filename string, sizeBytes int64) error {
	if filename == "" {
		return errors.New(errors.ErrCodeInvalidInput, "file name cannot be empty")
	}
	ext := strings.ToLower(filepath.Ext(filename))
	allowed := false
	for _, a := range AllowedUploadExtensions {
		if ext == a {
			allowed = true
			break
		}
	}
	if !allowed {
		return errors.NewValidationError("file", filename,
			fmt.Sprintf("unsupported file type %q (allowed: %s)", ext, strings.Join(AllowedUploadExtensions, ", ")))
	}
	if sizeBytes == 0 {
		return errors.New(errors.ErrCodeInvalidInput, "file is empty")
	}
	if sizeBytes > MaxUploadBytes {
		return errors.New(errors.ErrCodeInvalidInput,
			fmt.Sprintf("file too large: %d bytes (max %d bytes)", sizeBytes, MaxUploadBytes))
	}
	return nil
}

// ValidateHTTPRequestSize validates incoming HTTP request size
func ValidateHTTPRequestSize(r *http.Request, maxSizeBytes int64) error {
	if r.ContentLength > maxSizeBytes {
		return errors.New(errors.ErrCodeInvalidInput,
			fmt.Sprintf("request too large: %d bytes (max %d bytes)", r.ContentLength, maxSizeBytes))
	}
	return nil
}

// ValidateStringLength validates string length in runes against bounds
func ValidateStringLength(value, fieldName string, minLength, maxLength int) error {
	n := utf8.RuneCountInString(value)
	if n < minLength {
		return errors.New(errors.ErrCodeInvalidInput,
			fmt.Sprintf("%s too short (min %d characters)", fieldName, minLength))
	}
	if n > maxLength {
		return errors.New(errors.ErrCodeInvalidInput,
			fmt.Sprintf("%s too long (max %d characters)", fieldName, maxLength))
	}
	return nil
}

// ValidateNumericRange validates numeric values against bounds
func ValidateNumericRange(value int, fieldName string, min, max int) error {
	if value < min {
		return errors.New(errors.ErrCodeInvalidInput,
			fmt.Sprintf("%s too small (min %d)", fieldName, min))
	}
	if value > max {
		return errors.New(errors.ErrCodeInvalidInput,
			fmt.Sprintf("%s too large (max %d)", fieldName, max))
	}
	return nil
}

// ValidateFloatRange validates float values against bounds
func ValidateFloatRange(value float64, fieldName string, min, max float64) error {
	if math.IsNaN(value) || value < min {
		return errors.New(errors.ErrCodeInvalidInput,
			fmt.Sprintf("%s too small (min %g)", fieldName, min))
	}
	if value > max {
		return errors.New(errors.ErrCodeInvalidInput,
			fmt.Sprintf("%s too large (max %g)", fieldName, max))
	}
	return nil
}

// ValidateTimeout validates timeout values
func ValidateTimeout(timeoutSec int, fieldName string) error {
	if timeoutSec < 1 {
		return errors.New(errors.ErrCodeInvalidInput,
			fmt.Sprintf("%s must be at least 1 second", fieldName))
	}
	if timeoutSec > 3600 {
		return errors.New(errors.ErrCodeInvalidInput,
			fmt.Sprintf("%s too large (max 3600 seconds)", fieldName))
	}
	return nil
}

// ValidateInterval validates a polling interval in seconds.
func ValidateInterval(seconds int, fieldName string) error {
	return ValidateNumericRange(seconds, fieldName, 1, 86400)
}
