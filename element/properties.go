package element

import (
	"encoding/json"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/ivgotcrazy/jukey-sub001/capability"
	"github.com/ivgotcrazy/jukey-sub001/errors"
)

// Property validation limits
const (
	MaxStringLength = 1024
	MaxNameLength   = 128
	MaxInt          = math.MaxInt32
	MinInt          = math.MinInt32
)

// Properties are the construction parameters of an element, as decoded from a
// pipeline definition or given to Pipeline.AddElement.
type Properties map[string]any

// Clone returns a shallow copy
func (p Properties) Clone() Properties {
	if p == nil {
		return Properties{}
	}
	out := make(Properties, len(p))
	for k, v := range p {
		out[k] = v
	}
	return out
}

// ValidateKey checks if a property key is valid
func ValidateKey(key string) error {
	if key == "" {
		return errors.WrapInvalid(errors.ErrInvalidParam, "Properties", "ValidateKey", "empty key")
	}
	if len(key) > MaxStringLength {
		return errors.WrapInvalid(errors.ErrInvalidParam, "Properties", "ValidateKey", "key too long")
	}
	if strings.ContainsAny(key, "\x00\n\r\t") {
		return errors.WrapInvalid(errors.ErrInvalidParam, "Properties", "ValidateKey", "invalid key characters")
	}
	return nil
}

// ValidateName validates element and pin names: alphanumerics, dash and underscore.
// Dots are reserved as the pin ID separator.
func ValidateName(name string) error {
	if name == "" {
		return errors.WrapInvalid(errors.ErrInvalidParam, "Properties", "ValidateName", "empty name")
	}
	if len(name) > MaxNameLength {
		return errors.WrapInvalid(errors.ErrInvalidParam, "Properties", "ValidateName", "name too long")
	}
	for _, r := range name {
		if !((r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') ||
			(r >= '0' && r <= '9') || r == '-' || r == '_') {
			return errors.WrapInvalid(
				fmt.Errorf("%w: %q", errors.ErrInvalidParam, name),
				"Properties", "ValidateName", "invalid name characters")
		}
	}
	return nil
}

// GetString extracts a string property, stripping control characters. Oversized
// values fall back to the default.
func (p Properties) GetString(key string, defaultValue string) string {
	if err := ValidateKey(key); err != nil {
		return defaultValue
	}

	if value, exists := p[key]; exists {
		if str, ok := value.(string); ok {
			if len(str) > MaxStringLength {
				return defaultValue
			}
			return strings.Map(func(r rune) rune {
				if r == '\x00' || (r < 32 && r != '\t' && r != '\n' && r != '\r') {
					return -1
				}
				return r
			}, str)
		}
	}
	return defaultValue
}

// GetInt extracts an integer property with bounds checking. Whole floats are accepted
// since JSON decodes numbers as float64.
func (p Properties) GetInt(key string, defaultValue int) int {
	if err := ValidateKey(key); err != nil {
		return defaultValue
	}

	if value, exists := p[key]; exists {
		switch v := value.(type) {
		case int:
			if v < MinInt || v > MaxInt {
				return defaultValue
			}
			return v
		case int64:
			if v < int64(MinInt) || v > int64(MaxInt) {
				return defaultValue
			}
			return int(v)
		case uint32:
			if uint64(v) > uint64(MaxInt) {
				return defaultValue
			}
			return int(v)
		case float64:
			if math.IsNaN(v) || math.IsInf(v, 0) {
				return defaultValue
			}
			if v < float64(MinInt) || v > float64(MaxInt) {
				return defaultValue
			}
			result := int(v)
			if float64(result) != v {
				return defaultValue
			}
			return result
		}
	}
	return defaultValue
}

// GetBool extracts a boolean property
func (p Properties) GetBool(key string, defaultValue bool) bool {
	if err := ValidateKey(key); err != nil {
		return defaultValue
	}

	if value, exists := p[key]; exists {
		if b, ok := value.(bool); ok {
			return b
		}
	}
	return defaultValue
}

// GetFloat64 extracts a float property, rejecting NaN and Inf
func (p Properties) GetFloat64(key string, defaultValue float64) float64 {
	if err := ValidateKey(key); err != nil {
		return defaultValue
	}

	if value, exists := p[key]; exists {
		switch v := value.(type) {
		case float64:
			if math.IsNaN(v) || math.IsInf(v, 0) {
				return defaultValue
			}
			return v
		case float32:
			if math.IsNaN(float64(v)) || math.IsInf(float64(v), 0) {
				return defaultValue
			}
			return float64(v)
		case int:
			if v < MinInt || v > MaxInt {
				return defaultValue
			}
			return float64(v)
		case int64:
			if v < int64(MinInt) || v > int64(MaxInt) {
				return defaultValue
			}
			return float64(v)
		}
	}
	return defaultValue
}

// GetDuration extracts a duration given as a Go duration string ("40ms") or as a
// number of milliseconds.
func (p Properties) GetDuration(key string, defaultValue time.Duration) time.Duration {
	if err := ValidateKey(key); err != nil {
		return defaultValue
	}

	value, exists := p[key]
	if !exists {
		return defaultValue
	}
	switch v := value.(type) {
	case time.Duration:
		return v
	case string:
		d, err := time.ParseDuration(v)
		if err != nil || d < 0 {
			return defaultValue
		}
		return d
	default:
		ms := p.GetInt(key, -1)
		if ms < 0 {
			return defaultValue
		}
		return time.Duration(ms) * time.Millisecond
	}
}

// GetCapabilitySet extracts a capability set given in wire form, either as a JSON
// string or as a decoded object. A present but malformed value is an error.
func (p Properties) GetCapabilitySet(key string, defaultValue capability.Set) (capability.Set, error) {
	if err := ValidateKey(key); err != nil {
		return capability.Set{}, err
	}

	value, exists := p[key]
	if !exists {
		return defaultValue, nil
	}

	switch v := value.(type) {
	case capability.Set:
		return v, v.Validate()
	case string:
		return capability.ParseSet(v)
	default:
		raw, err := json.Marshal(v)
		if err != nil {
			return capability.Set{}, errors.WrapInvalid(
				fmt.Errorf("%w: property %q", errors.ErrInvalidData, key),
				"Properties", "GetCapabilitySet", "property encoding")
		}
		return capability.ParseSet(string(raw))
	}
}
