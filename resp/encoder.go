package resp

import (
	"strconv"

	"github.com/pkg/errors"
)

// Argument is one element of a command's argument vector. Construct one
// with Bytes, Text, or Int; the zero Argument is not valid.
type Argument struct {
	bytes []byte
}

// Bytes wraps an opaque byte sequence as a command argument.
func Bytes(b []byte) Argument { return Argument{bytes: b} }

// Text wraps a UTF-8 string as a command argument.
func Text(s string) Argument { return Argument{bytes: []byte(s)} }

// Int renders n as its shortest signed decimal form and wraps it as a
// command argument.
func Int(n int64) Argument { return Argument{bytes: []byte(strconv.FormatInt(n, 10))} }

// ErrEmptyCommand is returned by Serialize/AppendCommand when given no
// arguments; a command must name at least one argument (the command
// keyword itself).
var ErrEmptyCommand = errors.New("resp: command must have at least one argument")

const crlf = "\r\n"

// Serialize renders args as a single wire-encoded command: an array of
// bulk-bytes frames (spec.md §4.2). It never fails for a well-formed,
// non-empty argument vector.
func Serialize(args ...Argument) ([]byte, error) {
	return AppendCommand(nil, args...)
}

// AppendCommand appends the wire encoding of args to buf and returns the
// extended buffer, allowing callers to build a pipelined byte stream
// (spec.md §4.2 "Pipelining is the concatenation of multiple such
// buffers") without an intermediate allocation per command.
func AppendCommand(buf []byte, args ...Argument) ([]byte, error) {
	if len(args) == 0 {
		return buf, ErrEmptyCommand
	}

	buf = append(buf, '*')
	buf = strconv.AppendInt(buf, int64(len(args)), 10)
	buf = append(buf, crlf...)

	for _, arg := range args {
		buf = append(buf, '$')
		buf = strconv.AppendInt(buf, int64(len(arg.bytes)), 10)
		buf = append(buf, crlf...)
		buf = append(buf, arg.bytes...)
		buf = append(buf, crlf...)
	}
	return buf, nil
}

// ArgStrings is a convenience for the common case of an all-string
// argument vector, as used by the command-string quoting helper and the
// command-shortcut wrappers.
func ArgStrings(parts ...string) []Argument {
	args := make([]Argument, len(parts))
	for i, p := range parts {
		args[i] = Text(p)
	}
	return args
}

// EncodeFrame renders an arbitrary reply Frame to its wire form. Unlike
// Serialize/AppendCommand, which only ever produce command arrays of
// bulk-bytes arguments, EncodeFrame covers all five kinds and is the
// counterpart a server (or a test double standing in for one) uses to
// write replies; Parser.TryParse is its decode-side mirror.
func EncodeFrame(f Frame) ([]byte, error) {
	return AppendFrame(nil, f)
}

// AppendFrame appends the wire encoding of f to buf and returns the
// extended buffer.
func AppendFrame(buf []byte, f Frame) ([]byte, error) {
	switch f.Kind {
	case SimpleString:
		buf = append(buf, '+')
		buf = append(buf, f.Str...)
		buf = append(buf, crlf...)
	case Error:
		buf = append(buf, '-')
		buf = append(buf, f.Str...)
		buf = append(buf, crlf...)
	case Integer:
		buf = append(buf, ':')
		buf = strconv.AppendInt(buf, f.Int, 10)
		buf = append(buf, crlf...)
	case Bulk:
		buf = append(buf, '$')
		if f.Null {
			buf = append(buf, '-', '1')
			buf = append(buf, crlf...)
			return buf, nil
		}
		buf = strconv.AppendInt(buf, int64(len(f.Bytes)), 10)
		buf = append(buf, crlf...)
		buf = append(buf, f.Bytes...)
		buf = append(buf, crlf...)
	case Array:
		buf = append(buf, '*')
		if f.Null {
			buf = append(buf, '-', '1')
			buf = append(buf, crlf...)
			return buf, nil
		}
		buf = strconv.AppendInt(buf, int64(len(f.Items)), 10)
		buf = append(buf, crlf...)
		for _, item := range f.Items {
			var err error
			buf, err = AppendFrame(buf, item)
			if err != nil {
				return buf, err
			}
		}
	default:
		return buf, errors.Errorf("resp: unknown frame kind %v", f.Kind)
	}
	return buf, nil
}
