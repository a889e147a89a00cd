// Package connstr parses the semicolon separated key=value connection strings
// used by Azure IoT Hub and Azure Storage.
package connstr

import (
	"errors"
	"fmt"
	"strings"
)

// ErrInvalid is returned for connection strings that cannot be parsed
var ErrInvalid = errors.New("invalid connection string")

// Values holds the parsed settings. Keys are matched case-insensitively.
type Values map[string]string

// Parse splits s into its settings. Empty segments are ignored, so a trailing
// semicolon is accepted. Only the first '=' separates key from value because
// base64 keys end in '=' padding.
func Parse(s string) (Values, error) {
	values := make(Values)
	for _, segment := range strings.Split(s, ";") {
		segment = strings.TrimSpace(segment)
		if segment == "" {
			continue
		}
		key, value, ok := strings.Cut(segment, "=")
		if !ok || key == "" {
			return nil, fmt.Errorf("%w: malformed segment %q", ErrInvalid, redact(segment))
		}
		values[strings.ToLower(strings.TrimSpace(key))] = strings.TrimSpace(value)
	}
	if len(values) == 0 {
		return nil, fmt.Errorf("%w: empty", ErrInvalid)
	}
	return values, nil
}

// Get returns the value for key and whether it was present
func (v Values) Get(key string) (string, bool) {
	value, ok := v[strings.ToLower(key)]
	return value, ok
}

// Require returns the values for keys, failing on the first one that is missing or empty
func (v Values) Require(keys ...string) ([]string, error) {
	out := make([]string, 0, len(keys))
	for _, key := range keys {
		value, ok := v.Get(key)
		if !ok || value == "" {
			return nil, fmt.Errorf("%w: missing %s", ErrInvalid, key)
		}
		out = append(out, value)
	}
	return out, nil
}

// redact keeps the key of a segment and hides its value
func redact(segment string) string {
	if len(segment) <= 4 {
		return "****"
	}
	return segment[:4] + "****"
}
