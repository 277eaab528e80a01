// Package resp implements the RESP2/RESP3 wire codec: encoding outbound
// command frames and decoding inbound frames into a RawResult tagged union.
// It owns no socket and no retry logic — that is the connection bridge's
// job (internal/bridge); this package is pure framing, mirroring the way
// qmp.Conn kept its json.Decoder/json.Encoder pair free of any connection
// lifecycle concerns.
package resp

import "fmt"

// Protocol selects which frame markers a Decoder will accept.
type Protocol int

const (
	Protocol2 Protocol = iota
	Protocol3
)

// Kind tags the wire shape carried by a RawResult.
type Kind int

const (
	KindNull Kind = iota
	KindSimpleString
	KindError
	KindInteger
	KindBulkString
	KindArray
	KindMap
	KindSet
	KindPush
	KindDouble
	KindBoolean
	KindBigNumber
	KindVerbatimString
)

func (k Kind) String() string {
	switch k {
	case KindNull:
		return "Null"
	case KindSimpleString:
		return "SimpleString"
	case KindError:
		return "Error"
	case KindInteger:
		return "Integer"
	case KindBulkString:
		return "BulkString"
	case KindArray:
		return "Array"
	case KindMap:
		return "Map"
	case KindSet:
		return "Set"
	case KindPush:
		return "Push"
	case KindDouble:
		return "Double"
	case KindBoolean:
		return "Boolean"
	case KindBigNumber:
		return "BigNumber"
	case KindVerbatimString:
		return "VerbatimString"
	default:
		return "Unknown"
	}
}

// VerbatimFormat is the three-byte format tag on a RESP3 verbatim string.
type VerbatimFormat int

const (
	VerbatimUnknown VerbatimFormat = iota
	VerbatimText                   // "txt"
	VerbatimMarkdown                // "mkd"
)

func verbatimFormatOf(tag string) VerbatimFormat {
	switch tag {
	case "txt":
		return VerbatimText
	case "mkd":
		return VerbatimMarkdown
	default:
		return VerbatimUnknown
	}
}

// RawResult is the tagged union of every RESP2/RESP3 wire shape this codec
// understands. Only the fields relevant to Kind are meaningful; the rest are
// zero. Compound kinds (Array/Map/Set/Push) share Children/IsNil instead of
// each having their own slice, since the spec treats "null vs empty" as the
// one invariant that matters across all of them.
type RawResult struct {
	Kind Kind

	// SimpleString, Error
	Str string

	// Integer
	Int int64

	// BulkString
	Bytes   []byte
	IsNilBulk bool

	// Array, Map (2n children), Set, Push (n children)
	Children []RawResult
	IsNilArray bool

	// Push
	PushType string

	// Double
	Double float64

	// Boolean
	Bool bool

	// BigNumber: decimal digits, sign included, no decode to int64 attempted
	// since the wire form has no bound on magnitude.
	BigNumber []byte

	// VerbatimString
	VerbatimFmt   VerbatimFormat
	VerbatimBytes []byte

	// Attributes preceding this value, if any were seen and an
	// AttributeHandler was not configured to consume them directly.
	Attributes []RawResult
}

// IsNull reports whether this result represents an absent value: the
// dedicated RESP3 null marker, a null bulk string, or a null array/map/set.
func (r RawResult) IsNull() bool {
	switch r.Kind {
	case KindNull:
		return true
	case KindBulkString:
		return r.IsNilBulk
	case KindArray, KindMap, KindSet, KindPush:
		return r.IsNilArray
	}
	return false
}

func (r RawResult) String() string {
	return fmt.Sprintf("RawResult{%v}", r.Kind)
}

// Null is the canonical null RawResult.
var Null = RawResult{Kind: KindNull}
