// Package logging provides helpers for logging request data without
// leaking secrets.
package logging

import (
	"encoding/json"
	"fmt"
	"strings"
)

// secretFields are JSON field names whose values never reach the log.
// Signatures and challenges would let a log reader replay a
// verification; token values are credentials.
var secretFields = map[string]bool{
	"signature":   true,
	"challenge":   true,
	"token":       true,
	"key":         true,
	"masterToken": true,
}

// MaskHeader redacts sensitive header values based on header name.
//
// Rules:
// - Password/secret headers: "[REDACTED]" (no partial reveal)
// - Token/authorization headers: "****" + last 4 chars
// - Other headers: returned unchanged
func MaskHeader(name, value string) string {
	lowerName := strings.ToLower(name)

	if strings.Contains(lowerName, "password") ||
		strings.Contains(lowerName, "secret") ||
		strings.Contains(lowerName, "private-key") {
		return "[REDACTED]"
	}

	if lowerName == "authorization" ||
		lowerName == "x-api-key" ||
		lowerName == "x-access-key" {
		if len(value) < 4 {
			return "****"
		}
		return "****" + value[len(value)-4:]
	}

	return value
}

// MaskJSONBody redacts secret fields in a JSON body, recursively.
// Non-JSON input is returned unchanged.
func MaskJSONBody(body []byte) []byte {
	if len(body) == 0 {
		return body
	}

	var data interface{}
	if err := json.Unmarshal(body, &data); err != nil {
		return body
	}

	masked, err := json.Marshal(maskJSONValue(data))
	if err != nil {
		return body
	}
	return masked
}

func maskJSONValue(value interface{}) interface{} {
	switch v := value.(type) {
	case map[string]interface{}:
		result := make(map[string]interface{}, len(v))
		for key, val := range v {
			if secretFields[key] {
				result[key] = "[REDACTED]"
			} else {
				result[key] = maskJSONValue(val)
			}
		}
		return result
	case []interface{}:
		result := make([]interface{}, len(v))
		for i, item := range v {
			result[i] = maskJSONValue(item)
		}
		return result
	default:
		return value
	}
}

// FormatBinaryData summarizes non-textual payloads for logging.
func FormatBinaryData(data []byte) string {
	return fmt.Sprintf("[BINARY: %d bytes]", len(data))
}
