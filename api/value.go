// Package api defines the typed field model shared by every SWAMP resource:
// a closed set of value kinds, a field map keyed by snake_case wire names,
// and the entity types built on top of it.
package api

import (
	"errors"
	"fmt"
	"slices"
	"time"
)

// Kind identifies the semantic type carried by a Value.
type Kind int

const (
	// KindInvalid is the zero Kind. A Value of this kind cannot be encoded.
	KindInvalid Kind = iota
	KindIdentifier
	KindString
	KindDate
	KindBoolean
	KindArray
)

func (k Kind) String() string {
	switch k {
	case KindIdentifier:
		return "identifier"
	case KindString:
		return "string"
	case KindDate:
		return "date"
	case KindBoolean:
		return "boolean"
	case KindArray:
		return "array"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// Value is an immutable tagged union holding one field value together with
// its kind. Construct values with Identifier, String, Date, Bool or Array.
type Value struct {
	kind Kind
	str  string
	date time.Time
	flag bool
	list []string
}

// Identifier returns an opaque identifier value.
func Identifier(id string) Value { return Value{kind: KindIdentifier, str: id} }

// String returns a string value.
func String(s string) Value { return Value{kind: KindString, str: s} }

// Date returns a date value normalized to UTC with second precision,
// which is the resolution the wire format carries.
func Date(t time.Time) Value {
	return Value{kind: KindDate, date: t.UTC().Truncate(time.Second)}
}

// Bool returns a boolean value.
func Bool(b bool) Value { return Value{kind: KindBoolean, flag: b} }

// Array returns an array-of-string value. The slice is copied.
func Array(items []string) Value {
	if items == nil {
		items = []string{}
	}
	return Value{kind: KindArray, list: slices.Clone(items)}
}

// Kind reports the kind of v.
func (v Value) Kind() Kind { return v.kind }

// Text returns the string content of an identifier or string value, and ""
// for every other kind.
func (v Value) Text() string {
	if v.kind == KindIdentifier || v.kind == KindString {
		return v.str
	}
	return ""
}

// Time returns the content of a date value.
func (v Value) Time() time.Time { return v.date }

// Flag returns the content of a boolean value.
func (v Value) Flag() bool { return v.flag }

// Items returns a copy of the content of an array value.
func (v Value) Items() []string { return slices.Clone(v.list) }

// Equal reports whether v and o have the same kind and content.
func (v Value) Equal(o Value) bool {
	if v.kind != o.kind {
		return false
	}
	switch v.kind {
	case KindIdentifier, KindString:
		return v.str == o.str
	case KindDate:
		return v.date.Equal(o.date)
	case KindBoolean:
		return v.flag == o.flag
	case KindArray:
		return slices.Equal(v.list, o.list)
	default:
		return true
	}
}

func (v Value) String() string {
	switch v.kind {
	case KindIdentifier, KindString:
		return v.str
	case KindDate:
		return v.date.Format("2006-01-02 15:04:05")
	case KindBoolean:
		if v.flag {
			return "true"
		}
		return "false"
	case KindArray:
		return fmt.Sprint(v.list)
	default:
		return ""
	}
}

// ErrFieldMissing is returned by typed accessors when the field is absent.
var ErrFieldMissing = errors.New("field missing")

// FieldTypeError is returned by a typed accessor when the stored value has a
// different kind than the one requested.
type FieldTypeError struct {
	Key  string
	Want Kind
	Got  Kind
}

func (e *FieldTypeError) Error() string {
	return fmt.Sprintf("field %q: want %s, got %s", e.Key, e.Want, e.Got)
}

// Fields maps wire field names to typed values.
type Fields map[string]Value

func (f Fields) typed(key string, want Kind) (Value, error) {
	v, ok := f[key]
	if !ok {
		return Value{}, fmt.Errorf("%w: %s", ErrFieldMissing, key)
	}
	if v.kind != want {
		return Value{}, &FieldTypeError{Key: key, Want: want, Got: v.kind}
	}
	return v, nil
}

// Identifier returns the identifier stored under key.
func (f Fields) Identifier(key string) (string, error) {
	v, err := f.typed(key, KindIdentifier)
	return v.str, err
}

// String returns the string stored under key.
func (f Fields) String(key string) (string, error) {
	v, err := f.typed(key, KindString)
	return v.str, err
}

// Date returns the date stored under key.
func (f Fields) Date(key string) (time.Time, error) {
	v, err := f.typed(key, KindDate)
	return v.date, err
}

// Bool returns the boolean stored under key.
func (f Fields) Bool(key string) (bool, error) {
	v, err := f.typed(key, KindBoolean)
	return v.flag, err
}

// Array returns a copy of the array stored under key.
func (f Fields) Array(key string) ([]string, error) {
	v, err := f.typed(key, KindArray)
	return v.Items(), err
}

// Text returns the identifier or string stored under key, or "" when the
// field is absent or of another kind.
func (f Fields) Text(key string) string {
	return f[key].Text()
}

// Clone returns a copy of f. Values are immutable so the copy is complete.
func (f Fields) Clone() Fields {
	out := make(Fields, len(f))
	for k, v := range f {
		out[k] = v
	}
	return out
}

// Equal reports whether f and o hold the same keys with equal values.
func (f Fields) Equal(o Fields) bool {
	if len(f) != len(o) {
		return false
	}
	for k, v := range f {
		ov, ok := o[k]
		if !ok || !v.Equal(ov) {
			return false
		}
	}
	return true
}
