package logger

import "strings"

// maskValue replaces the hidden part of a credential.
const maskValue = "***MASKED***"

// MaskToken masks an Authorization header value for logging. The scheme
// ("Bearer ") and the first four characters of the credential stay visible.
func MaskToken(value string) string {
	if value == "" {
		return ""
	}

	scheme := ""
	credential := value
	if idx := strings.IndexByte(value, ' '); idx > 0 {
		scheme = value[:idx+1]
		credential = value[idx+1:]
	}

	if len(credential) <= 8 {
		return scheme + maskValue
	}
	return scheme + credential[:4] + maskValue
}
