package crm

import (
	"encoding/json"
	"fmt"
)

// Identifier lengths accepted by NewID.
const (
	ShortIDLength = 15
	LongIDLength  = 18
)

// ID is a remote record identifier. The long form carries a checksum suffix
// over the short form; both forms of one record compare equal under Equal.
//
// ID is not comparable with == and cannot be a map key. Key maps by
// String(), the canonical short form, which is identical for both forms.
type ID struct {
	_         [0]func()
	canonical string
	original  string
}

// NewID validates s and returns the identifier it denotes.
func NewID(s string) (ID, error) {
	if len(s) != ShortIDLength && len(s) != LongIDLength {
		return ID{}, fmt.Errorf("%w: %q has length %d, want %d or %d",
			ErrInvalidIdentifier, s, len(s), ShortIDLength, LongIDLength)
	}

	return ID{canonical: s[:ShortIDLength], original: s}, nil
}

// MustID is like NewID but panics on invalid input.
func MustID(s string) ID {
	id, err := NewID(s)
	if err != nil {
		panic(err)
	}

	return id
}

// String returns the canonical short form.
func (id ID) String() string {
	return id.canonical
}

// Full returns the identifier exactly as it was supplied.
func (id ID) Full() string {
	return id.original
}

// Equal reports whether both identifiers refer to the same record.
func (id ID) Equal(other ID) bool {
	return id.canonical == other.canonical
}

// IsZero reports whether id is the zero value.
func (id ID) IsZero() bool {
	return id.canonical == ""
}

// MarshalJSON implements json.Marshaler.
func (id ID) MarshalJSON() ([]byte, error) {
	return json.Marshal(id.original)
}

// UnmarshalJSON implements json.Unmarshaler.
func (id *ID) UnmarshalJSON(data []byte) error {
	var s string

	err := json.Unmarshal(data, &s)
	if err != nil {
		return fmt.Errorf("decoding identifier: %w", err)
	}

	parsed, err := NewID(s)
	if err != nil {
		return err
	}

	*id = parsed

	return nil
}
