package table

import (
	"fmt"
	"strings"
)

// Kind is the storage type of a column.
type Kind int

const (
	KindInt Kind = iota
	KindFloat
	KindText
)

// String returns the dtype label shown to users.
func (k Kind) String() string {
	switch k {
	case KindInt:
		return "int64"
	case KindFloat:
		return "float64"
	case KindText:
		return "object"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// Numeric reports whether values of this kind are stored as numbers.
func (k Kind) Numeric() bool { return k == KindInt || k == KindFloat }

// Kinds lists the selectable dtypes in display order.
func Kinds() []Kind { return []Kind{KindInt, KindFloat, KindText} }

// ParseKind accepts the dtype labels plus a few common aliases.
func ParseKind(s string) (Kind, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "int64", "int", "integer":
		return KindInt, nil
	case "float64", "float", "double", "number":
		return KindFloat, nil
	case "object", "text", "string", "str":
		return KindText, nil
	default:
		return 0, fmt.Errorf("unknown dtype %q (use int64|float64|object)", s)
	}
}

// MarshalText lets Kind appear as its label in JSON and YAML.
func (k Kind) MarshalText() ([]byte, error) { return []byte(k.String()), nil }

// UnmarshalText parses a dtype label.
func (k *Kind) UnmarshalText(b []byte) error {
	v, err := ParseKind(string(b))
	if err != nil {
		return err
	}
	*k = v
	return nil
}
