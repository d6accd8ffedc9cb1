package event

import (
	"encoding/json"

	"github.com/pkg/errors"
)

// Kind distinguishes the two notifications emitted by the error tracker.
type Kind uint8

const (
	KindUnknown Kind = iota

	KindNewError      // A new error class was recorded for the first time.
	KindNewOccurrence // Another occurrence of a known error class was recorded.

	kindMax // internal
)

// String returns the wire name of k, e.g. "new-error".
func (k Kind) String() string {
	switch k {
	case KindNewError:
		return "new-error"
	case KindNewOccurrence:
		return "new-occurrence"
	default:
		return "unknown"
	}
}

// MarshalJSON implements the [json.Marshaler] interface for Kind.
func (k Kind) MarshalJSON() ([]byte, error) {
	if k == KindUnknown {
		return json.Marshal(nil)
	}

	return json.Marshal(k.String())
}

// UnmarshalJSON implements the [json.Unmarshaler] interface for Kind.
func (k *Kind) UnmarshalJSON(data []byte) error {
	if string(data) == "null" {
		*k = KindUnknown
		return nil
	}

	var name string
	if err := json.Unmarshal(data, &name); err != nil {
		return err
	}

	parsed, err := ParseKind(name)
	if err != nil {
		return err
	}

	*k = parsed
	return nil
}

// ParseKind parses the wire name of a Kind.
func ParseKind(name string) (Kind, error) {
	for k := KindUnknown + 1; k < kindMax; k++ {
		if name == k.String() {
			return k, nil
		}
	}

	return KindUnknown, errors.Errorf("unknown event kind %q", name)
}
