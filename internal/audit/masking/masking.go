package masking

import "strings"

const maskToken = "****"

var sensitiveKeys = map[string]bool{
	"client_secret": true,
	"refresh_token": true,
	"access_token":  true,
	"password":      true,
	"api_key":       true,
}

// MaskSecret hides a secret but keeps its last four characters so two
// values can still be told apart in the audit trail.
func MaskSecret(value string) string {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return ""
	}
	if len(trimmed) <= 4 {
		return maskToken
	}
	return maskToken + trimmed[len(trimmed)-4:]
}

// MaskCredentials copies input, masking string values stored under
// credential-like keys. Nested objects are walked.
func MaskCredentials(input map[string]any) map[string]any {
	if len(input) == 0 {
		return nil
	}

	out := make(map[string]any, len(input))
	for key, value := range input {
		switch cast := value.(type) {
		case map[string]any:
			out[key] = MaskCredentials(cast)
		case string:
			if sensitiveKeys[strings.ToLower(key)] {
				out[key] = MaskSecret(cast)
			} else {
				out[key] = cast
			}
		default:
			out[key] = value
		}
	}
	return out
}
