package resp

import (
	"fmt"

	"github.com/sandia-minimega/redimux/internal/ringbuf"
)

// ErrNeedMore is returned by Decoder.Next when the buffered bytes do not yet
// contain a complete frame. Feed more bytes and call Next again.
var ErrNeedMore = ringbuf.ErrNeedMore

// DecodeError reports a frame that can never become valid no matter how
// many more bytes arrive, with enough detail to diagnose which command's
// reply it broke under (spec.md 4.B "Error signalling").
type DecodeError struct {
	Offset    int
	Expected  string
	CommandID string
}

func (e *DecodeError) Error() string {
	if e.CommandID != "" {
		return fmt.Sprintf("resp: decode error at offset %d (command %s): expected %s", e.Offset, e.CommandID, e.Expected)
	}
	return fmt.Sprintf("resp: decode error at offset %d: expected %s", e.Offset, e.Expected)
}

// Decoder decodes a stream of RESP frames out of an incrementally filled
// buffer. One Decoder is owned by exactly one connection bridge, the same
// way qmp.Conn owned exactly one json.Decoder per physical socket.
type Decoder struct {
	buf      *ringbuf.Buffer
	protocol Protocol

	// AttributeHandler, if set, receives attribute pairs as they're decoded
	// instead of having them attached to the value they precede. Spec.md's
	// open question on attribute surface is resolved by making this an
	// optional hook: nil means "attach to the value and let the caller
	// decide", matching "implement as an optional hook, do not guess
	// semantics."
	AttributeHandler func(pairs []RawResult)
}

// NewDecoder returns a Decoder that reads frames according to protocol.
func NewDecoder(protocol Protocol, buf *ringbuf.Buffer) *Decoder {
	return &Decoder{buf: buf, protocol: protocol}
}

// SetProtocol updates the negotiated protocol in place; used after a HELLO
// downgrade (RESP3 -> RESP2 on "unknown command") or upgrade.
func (d *Decoder) SetProtocol(p Protocol) { d.protocol = p }

// Protocol returns the Decoder's current negotiated protocol.
func (d *Decoder) Protocol() Protocol { return d.protocol }

// Next decodes and returns one complete top-level frame, or ErrNeedMore if
// the buffer doesn't yet hold one. On ErrNeedMore the buffer's read
// position is left exactly where it was before the call.
func (d *Decoder) Next() (RawResult, error) {
	mark := d.buf.Mark()
	v, err := d.decodeValue()
	if err != nil {
		d.buf.Reset(mark)
		return RawResult{}, err
	}
	return v, nil
}

func (d *Decoder) decodeValue() (RawResult, error) {
	b, err := d.buf.PeekByte()
	if err != nil {
		return RawResult{}, err
	}

	if b == '|' {
		return d.decodeAttributed()
	}

	d.buf.ConsumeByte()

	switch b {
	case '+':
		line, err := d.buf.ConsumeLine()
		if err != nil {
			return RawResult{}, err
		}
		return RawResult{Kind: KindSimpleString, Str: string(line)}, nil

	case '-':
		line, err := d.buf.ConsumeLine()
		if err != nil {
			return RawResult{}, err
		}
		return RawResult{Kind: KindError, Str: string(line)}, nil

	case ':':
		line, err := d.buf.ConsumeLine()
		if err != nil {
			return RawResult{}, err
		}
		n, perr := ringbuf.ParseInt(line)
		if perr != nil {
			return RawResult{}, &DecodeError{Offset: d.buf.Mark(), Expected: "integer"}
		}
		return RawResult{Kind: KindInteger, Int: n}, nil

	case '$':
		return d.decodeBulkString()

	case '*':
		return d.decodeCompound(KindArray)

	case '%':
		if err := d.require3("map"); err != nil {
			return RawResult{}, err
		}
		return d.decodeMap()

	case '~':
		if err := d.require3("set"); err != nil {
			return RawResult{}, err
		}
		return d.decodeCompound(KindSet)

	case '>':
		if err := d.require3("push"); err != nil {
			return RawResult{}, err
		}
		r, err := d.decodeCompound(KindPush)
		if err != nil {
			return RawResult{}, err
		}
		if len(r.Children) > 0 {
			if c := r.Children[0]; c.Kind == KindBulkString && !c.IsNilBulk {
				r.PushType = string(c.Bytes)
			} else if c.Kind == KindSimpleString {
				r.PushType = c.Str
			}
		}
		return r, nil

	case ',':
		if err := d.require3("double"); err != nil {
			return RawResult{}, err
		}
		line, err := d.buf.ConsumeLine()
		if err != nil {
			return RawResult{}, err
		}
		v, perr := ringbuf.ParseDouble(line)
		if perr != nil {
			return RawResult{}, &DecodeError{Offset: d.buf.Mark(), Expected: "double"}
		}
		return RawResult{Kind: KindDouble, Double: v}, nil

	case '#':
		if err := d.require3("boolean"); err != nil {
			return RawResult{}, err
		}
		line, err := d.buf.ConsumeLine()
		if err != nil {
			return RawResult{}, err
		}
		if len(line) != 1 || (line[0] != 't' && line[0] != 'f') {
			return RawResult{}, &DecodeError{Offset: d.buf.Mark(), Expected: "boolean 't' or 'f'"}
		}
		return RawResult{Kind: KindBoolean, Bool: line[0] == 't'}, nil

	case '(':
		if err := d.require3("big number"); err != nil {
			return RawResult{}, err
		}
		line, err := d.buf.ConsumeLine()
		if err != nil {
			return RawResult{}, err
		}
		return RawResult{Kind: KindBigNumber, BigNumber: append([]byte(nil), line...)}, nil

	case '=':
		if err := d.require3("verbatim string"); err != nil {
			return RawResult{}, err
		}
		return d.decodeVerbatim()

	case '_':
		if err := d.require3("null"); err != nil {
			return RawResult{}, err
		}
		if _, err := d.buf.ConsumeLine(); err != nil {
			return RawResult{}, err
		}
		return RawResult{Kind: KindNull}, nil

	default:
		return RawResult{}, &DecodeError{Offset: d.buf.Mark(), Expected: fmt.Sprintf("known frame marker, got %q", b)}
	}
}

func (d *Decoder) require3(what string) error {
	if d.protocol == Protocol2 {
		return &DecodeError{Offset: d.buf.Mark(), Expected: fmt.Sprintf("RESP2 frame (%s is RESP3-only)", what)}
	}
	return nil
}

func (d *Decoder) decodeAttributed() (RawResult, error) {
	d.buf.ConsumeByte() // '|'
	if err := d.require3("attribute"); err != nil {
		return RawResult{}, err
	}
	line, err := d.buf.ConsumeLine()
	if err != nil {
		return RawResult{}, err
	}
	n, perr := ringbuf.ParseInt(line)
	if perr != nil || n < 0 {
		return RawResult{}, &DecodeError{Offset: d.buf.Mark(), Expected: "attribute pair count"}
	}
	pairs, err := d.decodeChildren(int(n) * 2)
	if err != nil {
		return RawResult{}, err
	}

	val, err := d.decodeValue()
	if err != nil {
		return RawResult{}, err
	}

	if d.AttributeHandler != nil {
		d.AttributeHandler(pairs)
	} else {
		val.Attributes = append(val.Attributes, pairs...)
	}
	return val, nil
}

func (d *Decoder) decodeBulkString() (RawResult, error) {
	line, err := d.buf.ConsumeLine()
	if err != nil {
		return RawResult{}, err
	}
	n, perr := ringbuf.ParseInt(line)
	if perr != nil {
		return RawResult{}, &DecodeError{Offset: d.buf.Mark(), Expected: "bulk string length"}
	}
	if n == -1 {
		return RawResult{Kind: KindBulkString, IsNilBulk: true}, nil
	}
	if n < 0 {
		return RawResult{}, &DecodeError{Offset: d.buf.Mark(), Expected: "non-negative bulk string length"}
	}
	data, err := d.buf.ConsumeN(int(n))
	if err != nil {
		return RawResult{}, err
	}
	return RawResult{Kind: KindBulkString, Bytes: data}, nil
}

func (d *Decoder) decodeVerbatim() (RawResult, error) {
	line, err := d.buf.ConsumeLine()
	if err != nil {
		return RawResult{}, err
	}
	n, perr := ringbuf.ParseInt(line)
	if perr != nil || n < 4 {
		return RawResult{}, &DecodeError{Offset: d.buf.Mark(), Expected: "verbatim string length"}
	}
	data, err := d.buf.ConsumeN(int(n))
	if err != nil {
		return RawResult{}, err
	}
	if len(data) < 4 || data[3] != ':' {
		return RawResult{}, &DecodeError{Offset: d.buf.Mark(), Expected: "verbatim string format tag"}
	}
	return RawResult{
		Kind:          KindVerbatimString,
		VerbatimFmt:   verbatimFormatOf(string(data[:3])),
		VerbatimBytes: data[4:],
	}, nil
}

func (d *Decoder) decodeCompound(kind Kind) (RawResult, error) {
	line, err := d.buf.ConsumeLine()
	if err != nil {
		return RawResult{}, err
	}
	n, perr := ringbuf.ParseInt(line)
	if perr != nil {
		return RawResult{}, &DecodeError{Offset: d.buf.Mark(), Expected: "array length"}
	}
	if n == -1 {
		return RawResult{Kind: kind, IsNilArray: true}, nil
	}
	if n < 0 {
		return RawResult{}, &DecodeError{Offset: d.buf.Mark(), Expected: "non-negative length"}
	}
	children, err := d.decodeChildren(int(n))
	if err != nil {
		return RawResult{}, err
	}
	return RawResult{Kind: kind, Children: children}, nil
}

func (d *Decoder) decodeMap() (RawResult, error) {
	line, err := d.buf.ConsumeLine()
	if err != nil {
		return RawResult{}, err
	}
	n, perr := ringbuf.ParseInt(line)
	if perr != nil {
		return RawResult{}, &DecodeError{Offset: d.buf.Mark(), Expected: "map pair count"}
	}
	if n == -1 {
		return RawResult{Kind: KindMap, IsNilArray: true}, nil
	}
	if n < 0 {
		return RawResult{}, &DecodeError{Offset: d.buf.Mark(), Expected: "non-negative map pair count"}
	}
	children, err := d.decodeChildren(int(n) * 2)
	if err != nil {
		return RawResult{}, err
	}
	return RawResult{Kind: KindMap, Children: children}, nil
}

func (d *Decoder) decodeChildren(n int) ([]RawResult, error) {
	children := make([]RawResult, 0, n)
	for i := 0; i < n; i++ {
		v, err := d.decodeValue()
		if err != nil {
			return nil, err
		}
		children = append(children, v)
	}
	return children, nil
}
