package component

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/markheger/streamsx.metrics/errors"
)

// Config validation limits
const (
	MaxStringLength = 1024
	MaxJSONSize     = 1024 * 1024
	// MaxFilterDocumentLength bounds inline filter documents, which are
	// larger than ordinary string values.
	MaxFilterDocumentLength = 256 * 1024
)

// ConfigValidator checks raw component configuration before a factory sees it.
type ConfigValidator struct {
	maxDepth     int
	maxArraySize int
	maxStringLen int
	maxJSONSize  int
	longFields   map[string]int
}

// NewConfigValidator creates a validator with secure defaults
func NewConfigValidator() *ConfigValidator {
	return &ConfigValidator{
		maxDepth:     10,
		maxArraySize: 1000,
		maxStringLen: MaxStringLength,
		maxJSONSize:  MaxJSONSize,
		longFields:   map[string]int{"filter_document": MaxFilterDocumentLength},
	}
}

// ValidateConfig rejects oversized, deeply nested, or control-character
// laden configuration.
func (v *ConfigValidator) ValidateConfig(rawConfig json.RawMessage) error {
	if len(rawConfig) > v.maxJSONSize {
		return errors.WrapInvalid(
			fmt.Errorf("config size %d exceeds maximum %d", len(rawConfig), v.maxJSONSize),
			"ConfigValidator", "ValidateConfig", "size check")
	}
	if len(bytes.TrimSpace(rawConfig)) == 0 {
		return nil
	}

	var config any
	decoder := json.NewDecoder(bytes.NewReader(rawConfig))
	decoder.UseNumber()
	if err := decoder.Decode(&config); err != nil {
		return errors.WrapInvalid(err, "ConfigValidator", "ValidateConfig", "JSON parsing")
	}
	return v.validateValue("", config, 0)
}

func (v *ConfigValidator) validateValue(field string, value any, depth int) error {
	if depth > v.maxDepth {
		return errors.WrapInvalid(
			fmt.Errorf("JSON depth %d exceeds maximum %d", depth, v.maxDepth),
			"ConfigValidator", "validateValue", "depth check")
	}

	switch val := value.(type) {
	case string:
		limit := v.maxStringLen
		if l, ok := v.longFields[field]; ok {
			limit = l
		}
		if len(val) > limit {
			return errors.WrapInvalid(
				fmt.Errorf("field %q: string length %d exceeds maximum %d", field, len(val), limit),
				"ConfigValidator", "validateValue", "string length check")
		}
		return validateStringContent(val)
	case []any:
		if len(val) > v.maxArraySize {
			return errors.WrapInvalid(
				fmt.Errorf("array size %d exceeds maximum %d", len(val), v.maxArraySize),
				"ConfigValidator", "validateValue", "array size check")
		}
		for _, elem := range val {
			if err := v.validateValue(field, elem, depth+1); err != nil {
				return err
			}
		}
	case map[string]any:
		for key, elem := range val {
			if len(key) > v.maxStringLen {
				return errors.WrapInvalid(fmt.Errorf("key length exceeds maximum"),
					"ConfigValidator", "validateValue", "key length check")
			}
			if err := validateStringContent(key); err != nil {
				return err
			}
			if err := v.validateValue(key, elem, depth+1); err != nil {
				return err
			}
		}
	case json.Number, bool, nil:
	default:
		return errors.WrapInvalid(fmt.Errorf("unexpected type %T in config", value),
			"ConfigValidator", "validateValue", "type check")
	}
	return nil
}

// validateStringContent rejects NUL and control characters other than
// newline, carriage return, and tab.
func validateStringContent(s string) error {
	for _, r := range s {
		if r < 0x20 && r != '\n' && r != '\r' && r != '\t' {
			return errors.WrapInvalid(
				fmt.Errorf("string contains control character: 0x%02x", r),
				"ConfigValidator", "validateStringContent", "control character check")
		}
	}
	return nil
}

// ValidateFactoryConfig validates raw configuration with default limits.
func ValidateFactoryConfig(rawConfig json.RawMessage) error {
	return NewConfigValidator().ValidateConfig(rawConfig)
}

// Validatable is implemented by configs that can check themselves.
type Validatable interface {
	Validate() error
}

// SafeUnmarshal validates rawConfig, decodes it into target, and runs
// target's Validate method when it has one.
func SafeUnmarshal(rawConfig json.RawMessage, target any) error {
	if err := ValidateFactoryConfig(rawConfig); err != nil {
		return errors.Wrap(err, "ConfigValidator", "SafeUnmarshal", "config validation")
	}
	if len(bytes.TrimSpace(rawConfig)) > 0 {
		if err := json.Unmarshal(rawConfig, target); err != nil {
			return errors.WrapInvalid(err, "ConfigValidator", "SafeUnmarshal", "JSON unmarshaling")
		}
	}
	if validatable, ok := target.(Validatable); ok {
		if err := validatable.Validate(); err != nil {
			return errors.Wrap(err, "ConfigValidator", "SafeUnmarshal", "struct validation")
		}
	}
	return nil
}

// ValidateComponentName allows only letters, digits, dash, underscore, and dot.
func ValidateComponentName(name string) error {
	if name == "" {
		return errors.WrapInvalid(errors.ErrInvalidConfig, "ConfigValidator", "ValidateComponentName", "empty name")
	}
	if len(name) > MaxStringLength {
		return errors.WrapInvalid(errors.ErrInvalidConfig, "ConfigValidator", "ValidateComponentName", "name too long")
	}
	for _, r := range name {
		if !((r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') ||
			(r >= '0' && r <= '9') || r == '-' || r == '_' || r == '.') {
			return errors.WrapInvalid(errors.ErrInvalidConfig, "ConfigValidator", "ValidateComponentName",
				"invalid name characters")
		}
	}
	return nil
}
