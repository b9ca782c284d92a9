// Package resp implements the wire protocol of the key-value server: a
// text-line / length-prefixed request-response format historically known
// as RESP. It provides the frame model, a pure serializer, and a
// streaming incremental parser. None of the three types in this package
// touch a network socket; that is the job of package client.
package resp

import "fmt"

// Kind identifies which of the five frame shapes a Frame holds.
type Kind int

const (
	// SimpleString is a short line with no embedded CR/LF, tagged '+'.
	SimpleString Kind = iota
	// Error is shaped like SimpleString but tagged '-' and, at the
	// ToValue layer, surfaced as a failure rather than a value.
	Error
	// Integer is a signed 64-bit value, tagged ':'.
	Integer
	// Bulk is a length-prefixed byte payload, tagged '$'. It may be
	// null (Null == true), in which case Bytes is meaningless.
	Bulk
	// Array is an ordered sequence of frames, tagged '*'. It may be
	// null (Null == true), in which case Items is meaningless.
	Array
)

func (k Kind) String() string {
	switch k {
	case SimpleString:
		return "simple-string"
	case Error:
		return "error"
	case Integer:
		return "integer"
	case Bulk:
		return "bulk"
	case Array:
		return "array"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// Frame is a tagged value representing one complete protocol frame, as
// defined in spec.md §3. Exactly the fields relevant to Kind are
// meaningful; the zero Frame is not a valid frame (Kind defaults to
// SimpleString with an empty string, which is a legitimate value, so
// callers should always go through the constructors below).
type Frame struct {
	Kind Kind

	// Str holds the payload for SimpleString and Error.
	Str string

	// Int holds the payload for Integer.
	Int int64

	// Bytes holds the payload for a non-null Bulk.
	Bytes []byte

	// Items holds the payload for a non-null Array.
	Items []Frame

	// Null is true for a null Bulk or a null Array. Meaningless for
	// other kinds.
	Null bool
}

// NewSimpleString constructs a simple-line string frame.
func NewSimpleString(s string) Frame { return Frame{Kind: SimpleString, Str: s} }

// NewError constructs an error frame. The conventional shape is a short
// uppercase error code token followed by a message, e.g. "ERR no such key".
func NewError(s string) Frame { return Frame{Kind: Error, Str: s} }

// NewInteger constructs an integer frame.
func NewInteger(n int64) Frame { return Frame{Kind: Integer, Int: n} }

// NewBulk constructs a bulk-bytes frame. A nil or empty slice is a
// legitimate zero-length bulk, distinct from NewNullBulk.
func NewBulk(b []byte) Frame { return Frame{Kind: Bulk, Bytes: b} }

// NewNullBulk constructs the distinguished null bulk value.
func NewNullBulk() Frame { return Frame{Kind: Bulk, Null: true} }

// NewArray constructs an array frame from its elements. A nil or empty
// slice is a legitimate zero-element array, distinct from NewNullArray.
func NewArray(items []Frame) Frame { return Frame{Kind: Array, Items: items} }

// NewNullArray constructs the distinguished null array value.
func NewNullArray() Frame { return Frame{Kind: Array, Null: true} }

// Equal reports whether f and other represent the same frame, recursing
// into array elements. It is intended for tests.
func (f Frame) Equal(other Frame) bool {
	if f.Kind != other.Kind {
		return false
	}
	switch f.Kind {
	case SimpleString, Error:
		return f.Str == other.Str
	case Integer:
		return f.Int == other.Int
	case Bulk:
		if f.Null != other.Null {
			return false
		}
		if f.Null {
			return true
		}
		return string(f.Bytes) == string(other.Bytes)
	case Array:
		if f.Null != other.Null {
			return false
		}
		if f.Null {
			return true
		}
		if len(f.Items) != len(other.Items) {
			return false
		}
		for i := range f.Items {
			if !f.Items[i].Equal(other.Items[i]) {
				return false
			}
		}
		return true
	default:
		return false
	}
}

func (f Frame) String() string {
	switch f.Kind {
	case SimpleString:
		return fmt.Sprintf("+%s", f.Str)
	case Error:
		return fmt.Sprintf("-%s", f.Str)
	case Integer:
		return fmt.Sprintf(":%d", f.Int)
	case Bulk:
		if f.Null {
			return "$-1"
		}
		return fmt.Sprintf("$%q", f.Bytes)
	case Array:
		if f.Null {
			return "*-1"
		}
		return fmt.Sprintf("*%v", f.Items)
	default:
		return "?"
	}
}

// ServerError is the failure raised when a reply is an Error frame. It is
// the single place in this library where a reply is turned into an
// application-visible failure rather than a plain value (spec.md §4.1).
type ServerError struct {
	Message string
}

func (e *ServerError) Error() string { return e.Message }

// ToValue converts f into an idiomatic Go reply value:
//
//	SimpleString -> string
//	Bulk         -> string, or nil for a null bulk
//	Integer      -> int64
//	Array        -> []interface{}, recursively, or nil for a null array
//	Error        -> nil value, *ServerError error
func (f Frame) ToValue() (interface{}, error) {
	switch f.Kind {
	case SimpleString:
		return f.Str, nil
	case Error:
		return nil, &ServerError{Message: f.Str}
	case Integer:
		return f.Int, nil
	case Bulk:
		if f.Null {
			return nil, nil
		}
		return string(f.Bytes), nil
	case Array:
		if f.Null {
			return nil, nil
		}
		values := make([]interface{}, len(f.Items))
		for i, item := range f.Items {
			v, err := item.ToValue()
			if err != nil {
				return nil, err
			}
			values[i] = v
		}
		return values, nil
	default:
		return nil, fmt.Errorf("resp: unknown frame kind %v", f.Kind)
	}
}
