package privacy

import (
	"fmt"
	"strings"

	"whatsbot/internal/constants"
)

const whatsappPrefix = "whatsapp:"

// MaskPhoneNumber masks a phone number showing only the last digits. A
// "whatsapp:" transport tag is kept so logs still show the channel.
// Example: "whatsapp:+34123456789" -> "whatsapp:+*******6789"
func MaskPhoneNumber(phone string) string {
	if phone == "" {
		return ""
	}
	if rest, ok := strings.CutPrefix(phone, whatsappPrefix); ok {
		return whatsappPrefix + MaskPhoneNumber(rest)
	}

	keep := constants.DefaultPhoneMaskLength
	if strings.HasPrefix(phone, "+") {
		digits := phone[1:]
		if len(digits) <= keep {
			return "+" + strings.Repeat("*", len(digits))
		}
		return "+" + maskString(digits, keep)
	}
	return maskString(phone, keep)
}

// MaskEmail keeps the first character of the local part and the domain.
// Example: "maria@example.com" -> "m****@example.com"
func MaskEmail(email string) string {
	local, domain, ok := strings.Cut(email, "@")
	if !ok {
		return maskString(email, 0)
	}
	if len(local) <= 1 {
		return strings.Repeat("*", len(local)) + "@" + domain
	}
	return local[:1] + strings.Repeat("*", len(local)-1) + "@" + domain
}

// MaskContactID masks a contact identifier. Numeric backend ids are not
// personal data and pass through; phone-like values are masked as phones.
func MaskContactID(contactID string) string {
	if contactID == "" {
		return ""
	}
	if strings.HasPrefix(contactID, "+") || strings.HasPrefix(contactID, whatsappPrefix) ||
		(len(contactID) >= 10 && isNumeric(contactID)) {
		return MaskPhoneNumber(contactID)
	}
	return contactID
}

// MaskContent replaces free text (message bodies, prompts, notes) with its length.
func MaskContent(content string) string {
	if content == "" {
		return ""
	}
	return fmt.Sprintf("[%d chars]", len([]rune(content)))
}

// maskString masks a string showing only the last n characters
func maskString(s string, keepLast int) string {
	if s == "" {
		return ""
	}
	if len(s) <= keepLast {
		return strings.Repeat("*", len(s))
	}
	return strings.Repeat("*", len(s)-keepLast) + s[len(s)-keepLast:]
}

func isNumeric(s string) bool {
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return len(s) > 0
}

// MaskSensitiveFields applies appropriate masking to common logging fields
func MaskSensitiveFields(fields map[string]interface{}) map[string]interface{} {
	if fields == nil {
		return nil
	}

	masked := make(map[string]interface{}, len(fields))
	for k, v := range fields {
		s, isString := v.(string)
		if !isString {
			masked[k] = v
			continue
		}

		switch k {
		case "phone", "phone_number", "from", "to":
			masked[k] = MaskPhoneNumber(s)
		case "email":
			masked[k] = MaskEmail(s)
		case "contact_id", "contactId":
			masked[k] = MaskContactID(s)
		case "content", "message", "system_prompt", "notes":
			masked[k] = MaskContent(s)
		default:
			masked[k] = v
		}
	}

	return masked
}
