package classroom

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
)

const maxCodeLength = 64

// ParseSessionCode validates a raw join code. It must be a JSON string that is
// non-empty and at most 64 bytes once trimmed.
func ParseSessionCode(raw json.RawMessage) (string, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || raw[0] != '"' {
		return "", fmt.Errorf("%w: code must be a string", ErrInvalidSessionCode)
	}

	var code string
	if err := json.Unmarshal(raw, &code); err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidSessionCode, err)
	}

	code = strings.TrimSpace(code)
	if code == "" {
		return "", fmt.Errorf("%w: code is empty", ErrInvalidSessionCode)
	}
	if len(code) > maxCodeLength {
		return "", fmt.Errorf("%w: code longer than %d bytes", ErrInvalidSessionCode, maxCodeLength)
	}
	return code, nil
}
