package resp

import (
	"fmt"
	"strconv"

	"github.com/pkg/errors"
)

// defaultInitialCapacity is the Parser's recommended starting buffer
// size (spec.md §4.3).
const defaultInitialCapacity = 64 * 1024

// compactionFraction is the "consumed prefix exceeds half the buffer"
// heuristic of spec.md §4.3 / §9 ("Buffer compaction threshold").
const compactionFraction = 2

// WireError reports a malformed frame on the wire: an unknown tag byte,
// a malformed numeric field, an impossible length, or a missing CRLF
// after a bulk body (spec.md §7). It carries the byte offset of the
// frame whose tag byte triggered the error, not the offset within the
// field that failed, matching "offset of the offending byte" from
// spec.md §4.3.
type WireError struct {
	Offset int
	Reason string
}

func (e *WireError) Error() string {
	return fmt.Sprintf("resp: wire-format error at offset %d: %s", e.Offset, e.Reason)
}

// errNeedMore is an internal sentinel: the data available in the pending
// slice is insufficient to complete the frame attempt currently in
// progress. It never escapes the package.
var errNeedMore = errors.New("resp: need more data")

// Parser is a streaming incremental parser (spec.md §4.3). It is not
// safe for concurrent use; package client serializes access to it under
// the connection's single owner.
type Parser struct {
	buf   []byte
	read  int // bytes consumed by successful frames
	write int // bytes produced by the network

	initialCap int
	err        error // sticky: once set, every TryParse returns it
}

// NewParser creates a Parser with the recommended default initial
// buffer capacity.
func NewParser() *Parser {
	return NewParserSize(defaultInitialCapacity)
}

// NewParserSize creates a Parser with the given initial buffer capacity.
// A non-positive value falls back to the default.
func NewParserSize(initialCapacity int) *Parser {
	if initialCapacity <= 0 {
		initialCapacity = defaultInitialCapacity
	}
	return &Parser{
		buf:        make([]byte, initialCapacity),
		initialCap: initialCapacity,
	}
}

// Pending reports the number of bytes available to be parsed but not
// yet bound to a complete frame.
func (p *Parser) Pending() int { return p.write - p.read }

// Reset discards all buffered input and any sticky error, returning the
// Parser to its just-constructed state. Used on connection teardown and
// on transition to the error/disconnected states (spec.md §4.5), since a
// wire-format error or transport loss makes any partially consumed
// frame unrecoverable.
func (p *Parser) Reset() {
	p.read = 0
	p.write = 0
	p.err = nil
}

// Append copies b into the parser's internal buffer, growing or
// compacting it as necessary. It never blocks and never fails; the
// buffer grows to accommodate arbitrarily large input.
func (p *Parser) Append(b []byte) {
	need := len(b)
	if need == 0 {
		return
	}

	if free := len(p.buf) - p.write; free >= need {
		copy(p.buf[p.write:], b)
		p.write += need
		return
	}

	used := p.write - p.read
	if p.read > len(p.buf)/compactionFraction {
		copy(p.buf, p.buf[p.read:p.write])
		p.write, p.read = used, 0
		if free := len(p.buf) - p.write; free >= need {
			copy(p.buf[p.write:], b)
			p.write += need
			return
		}
	}

	newCap := 2 * len(p.buf)
	if min := used + need + p.initialCap; min > newCap {
		newCap = min
	}
	newBuf := make([]byte, newCap)
	copy(newBuf, p.buf[p.read:p.write])
	p.buf = newBuf
	p.write, p.read = used, 0
	copy(p.buf[p.write:], b)
	p.write += need
}

// TryParse attempts to parse the next complete frame from pending input.
// It returns (frame, true, nil) on success, (Frame{}, false, nil) when
// more bytes are needed (no state changes, so the caller may call
// TryParse again after the next Append), or (Frame{}, false, err) on a
// wire-format error, after which the Parser is dead: every subsequent
// TryParse returns the same error until Reset is called.
func (p *Parser) TryParse() (Frame, bool, error) {
	if p.err != nil {
		return Frame{}, false, p.err
	}

	frame, next, err := p.parseFrame(p.read)
	switch {
	case err == errNeedMore:
		return Frame{}, false, nil
	case err != nil:
		p.err = err
		return Frame{}, false, err
	default:
		p.read = next
		return frame, true, nil
	}
}

// parseFrame parses one frame starting at pos, without mutating p.read.
// It returns the position immediately after the frame on success. This
// is what makes per-frame consumption atomic: nothing is committed to
// p.read until the full (possibly nested) frame has parsed cleanly.
func (p *Parser) parseFrame(pos int) (Frame, int, error) {
	if pos >= p.write {
		return Frame{}, pos, errNeedMore
	}

	tag := p.buf[pos]
	switch tag {
	case '+':
		line, next, err := p.readLine(pos + 1)
		if err != nil {
			return Frame{}, pos, err
		}
		return NewSimpleString(string(line)), next, nil

	case '-':
		line, next, err := p.readLine(pos + 1)
		if err != nil {
			return Frame{}, pos, err
		}
		return NewError(string(line)), next, nil

	case ':':
		line, next, err := p.readLine(pos + 1)
		if err != nil {
			return Frame{}, pos, err
		}
		n, perr := parseInt64(line)
		if perr != nil {
			return Frame{}, pos, &WireError{Offset: pos, Reason: "malformed integer frame"}
		}
		return NewInteger(n), next, nil

	case '$':
		return p.parseBulk(pos)

	case '*':
		return p.parseArray(pos)

	default:
		return Frame{}, pos, &WireError{Offset: pos, Reason: fmt.Sprintf("unknown tag byte %q", tag)}
	}
}

func (p *Parser) parseBulk(pos int) (Frame, int, error) {
	lenLine, next, err := p.readLine(pos + 1)
	if err != nil {
		return Frame{}, pos, err
	}
	length, perr := parseInt64(lenLine)
	if perr != nil {
		return Frame{}, pos, &WireError{Offset: pos, Reason: "malformed bulk length"}
	}

	switch {
	case length == -1:
		return NewNullBulk(), next, nil
	case length < -1:
		return Frame{}, pos, &WireError{Offset: pos, Reason: "negative bulk length"}
	}

	bodyEnd := next + int(length)
	if bodyEnd+2 > p.write {
		return Frame{}, pos, errNeedMore
	}
	body := make([]byte, length)
	copy(body, p.buf[next:bodyEnd])

	if p.buf[bodyEnd] != '\r' || p.buf[bodyEnd+1] != '\n' {
		return Frame{}, pos, &WireError{Offset: pos, Reason: "missing CRLF after bulk body"}
	}
	return NewBulk(body), bodyEnd + 2, nil
}

func (p *Parser) parseArray(pos int) (Frame, int, error) {
	lenLine, next, err := p.readLine(pos + 1)
	if err != nil {
		return Frame{}, pos, err
	}
	length, perr := parseInt64(lenLine)
	if perr != nil {
		return Frame{}, pos, &WireError{Offset: pos, Reason: "malformed array length"}
	}

	switch {
	case length == -1:
		return NewNullArray(), next, nil
	case length < -1:
		return Frame{}, pos, &WireError{Offset: pos, Reason: "negative array length"}
	}

	items := make([]Frame, length)
	for i := int64(0); i < length; i++ {
		item, itemNext, ierr := p.parseFrame(next)
		if ierr != nil {
			// Propagate as-is: errNeedMore triggers rollback in the
			// top-level caller (p.read is untouched here), and a
			// WireError already carries the offending element's own
			// offset, not this array's.
			return Frame{}, pos, ierr
		}
		items[i] = item
		next = itemNext
	}
	return NewArray(items), next, nil
}

// readLine scans for the two-byte \r\n separator starting at pos, within
// the pending slice [pos, p.write). It is a true two-byte match, never a
// scan for a lone \r, and never matches a separator that would start at
// or past p.write (spec.md §4.3 "Line scanning").
func (p *Parser) readLine(pos int) (line []byte, next int, err error) {
	for i := pos; i+1 < p.write; i++ {
		if p.buf[i] == '\r' && p.buf[i+1] == '\n' {
			return p.buf[pos:i], i + 2, nil
		}
	}
	return nil, pos, errNeedMore
}

func parseInt64(line []byte) (int64, error) {
	if len(line) == 0 {
		return 0, errors.New("resp: empty numeric field")
	}
	return strconv.ParseInt(string(line), 10, 64)
}
