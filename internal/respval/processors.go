package respval

import (
	"github.com/sandia-minimega/redimux/internal/resp"
)

// Void discards the reply body entirely, completing with nil. Used for
// fire-and-forget-eligible commands whose caller never asked for a value.
type Void struct{}

func (Void) TryProcess(r resp.RawResult) Result {
	if e := classifyError(r); e != nil {
		return *e
	}
	return completed(nil)
}

// OKBool completes true for "+OK", false for a null reply, and fails
// otherwise.
type OKBool struct{}

func (OKBool) TryProcess(r resp.RawResult) Result {
	if e := classifyError(r); e != nil {
		return *e
	}
	if r.IsNull() {
		return completed(false)
	}
	if r.Kind == resp.KindSimpleString && r.Str == "OK" {
		return completed(true)
	}
	if r.Kind == resp.KindBoolean {
		return completed(r.Bool)
	}
	return Result{Outcome: OutcomeFailed, FailKind: ErrGeneric, ServerMessage: "expected +OK"}
}

// Int64 completes a signed 64-bit integer reply.
type Int64 struct{}

func (Int64) TryProcess(r resp.RawResult) Result {
	if e := classifyError(r); e != nil {
		return *e
	}
	if r.Kind == resp.KindInteger {
		return completed(r.Int)
	}
	return Result{Outcome: OutcomeFailed, FailKind: ErrGeneric, ServerMessage: "expected integer"}
}

// OptionalInt64 completes (0, false) on a null reply (e.g. OBJECT
// IDLETIME-style zero-or-one-integer commands) and (n, true) otherwise.
type OptionalInt64 struct{}

func (OptionalInt64) TryProcess(r resp.RawResult) Result {
	if e := classifyError(r); e != nil {
		return *e
	}
	if r.IsNull() {
		return completed(OptionalInt{Valid: false})
	}
	if r.Kind == resp.KindInteger {
		return completed(OptionalInt{Valid: true, Value: r.Int})
	}
	return Result{Outcome: OutcomeFailed, FailKind: ErrGeneric, ServerMessage: "expected integer or null"}
}

// OptionalInt is the value type produced by OptionalInt64.
type OptionalInt struct {
	Valid bool
	Value int64
}

// Double completes a float64, including RESP2's bulk-string-encoded
// doubles and RESP3's native Double frame, and the nan/+inf/-inf specials.
type Double struct{}

func (Double) TryProcess(r resp.RawResult) Result {
	if e := classifyError(r); e != nil {
		return *e
	}
	switch r.Kind {
	case resp.KindDouble:
		return completed(r.Double)
	case resp.KindBulkString:
		if r.IsNilBulk {
			return Result{Outcome: OutcomeFailed, FailKind: ErrGeneric, ServerMessage: "expected double, got null"}
		}
		v, err := parseFloat(string(r.Bytes))
		if err != nil {
			return Result{Outcome: OutcomeFailed, FailKind: ErrGeneric, ServerMessage: "malformed double"}
		}
		return completed(v)
	}
	return Result{Outcome: OutcomeFailed, FailKind: ErrGeneric, ServerMessage: "expected double"}
}

// Bytes completes a nullable byte sequence: ([]byte)(nil) for a null bulk
// string (distinct from a zero-length, non-nil slice).
type Bytes struct{}

func (Bytes) TryProcess(r resp.RawResult) Result {
	if e := classifyError(r); e != nil {
		return *e
	}
	if r.IsNull() {
		return completed([]byte(nil))
	}
	if r.Kind == resp.KindBulkString {
		return completed(append([]byte{}, r.Bytes...))
	}
	if r.Kind == resp.KindSimpleString {
		return completed([]byte(r.Str))
	}
	return Result{Outcome: OutcomeFailed, FailKind: ErrGeneric, ServerMessage: "expected bulk string"}
}

// BulkStringArray completes [][]byte from an Array of bulk strings,
// preserving nulls as nil elements within the slice.
type BulkStringArray struct{}

func (BulkStringArray) TryProcess(r resp.RawResult) Result {
	if e := classifyError(r); e != nil {
		return *e
	}
	if r.IsNull() {
		return completed([][]byte(nil))
	}
	if r.Kind != resp.KindArray && r.Kind != resp.KindSet {
		return Result{Outcome: OutcomeFailed, FailKind: ErrGeneric, ServerMessage: "expected array"}
	}
	out := make([][]byte, len(r.Children))
	for i, c := range r.Children {
		if c.IsNull() {
			continue
		}
		out[i] = append([]byte(nil), c.Bytes...)
	}
	return completed(out)
}

// StringMap completes map[string][]byte from either a RESP2 flat array of
// alternating key/value bulk strings or a native RESP3 Map frame.
type StringMap struct{}

func (StringMap) TryProcess(r resp.RawResult) Result {
	if e := classifyError(r); e != nil {
		return *e
	}
	if r.IsNull() {
		return completed(map[string][]byte(nil))
	}
	if r.Kind != resp.KindArray && r.Kind != resp.KindMap {
		return Result{Outcome: OutcomeFailed, FailKind: ErrGeneric, ServerMessage: "expected array or map"}
	}
	if len(r.Children)%2 != 0 {
		return Result{Outcome: OutcomeFailed, FailKind: ErrGeneric, ServerMessage: "odd element count for map"}
	}
	out := make(map[string][]byte, len(r.Children)/2)
	for i := 0; i+1 < len(r.Children); i += 2 {
		key := r.Children[i]
		val := r.Children[i+1]
		out[bulkOrStr(key)] = append([]byte(nil), val.Bytes...)
	}
	return completed(out)
}

// ScoredMember is one element of a sorted-set-with-scores reply.
type ScoredMember struct {
	Member []byte
	Score  float64
}

// SortedSetWithScores completes []ScoredMember from a WITHSCORES-style
// reply, accepting either the RESP2 flat-array or RESP3 Map shape.
type SortedSetWithScores struct{}

func (SortedSetWithScores) TryProcess(r resp.RawResult) Result {
	if e := classifyError(r); e != nil {
		return *e
	}
	if r.IsNull() {
		return completed([]ScoredMember(nil))
	}
	if r.Kind != resp.KindArray && r.Kind != resp.KindMap {
		return Result{Outcome: OutcomeFailed, FailKind: ErrGeneric, ServerMessage: "expected array or map"}
	}
	if len(r.Children)%2 != 0 {
		return Result{Outcome: OutcomeFailed, FailKind: ErrGeneric, ServerMessage: "odd element count for scored set"}
	}
	out := make([]ScoredMember, 0, len(r.Children)/2)
	for i := 0; i+1 < len(r.Children); i += 2 {
		member := r.Children[i]
		score := r.Children[i+1]
		var s float64
		switch score.Kind {
		case resp.KindDouble:
			s = score.Double
		case resp.KindBulkString:
			s, _ = parseFloat(string(score.Bytes))
		case resp.KindSimpleString:
			s, _ = parseFloat(score.Str)
		}
		out = append(out, ScoredMember{Member: append([]byte(nil), member.Bytes...), Score: s})
	}
	return completed(out)
}

// GeoPosition is one longitude/latitude pair from a GEOPOS-style reply.
type GeoPosition struct {
	Valid     bool
	Longitude float64
	Latitude  float64
}

// GeoPositions completes []GeoPosition from an array of 2-element
// longitude/latitude arrays (or null entries for unknown members).
type GeoPositions struct{}

func (GeoPositions) TryProcess(r resp.RawResult) Result {
	if e := classifyError(r); e != nil {
		return *e
	}
	if r.IsNull() {
		return completed([]GeoPosition(nil))
	}
	out := make([]GeoPosition, len(r.Children))
	for i, c := range r.Children {
		if c.IsNull() || len(c.Children) != 2 {
			continue
		}
		lon, _ := parseFloat(bulkOrStr(c.Children[0]))
		lat, _ := parseFloat(bulkOrStr(c.Children[1]))
		out[i] = GeoPosition{Valid: true, Longitude: lon, Latitude: lat}
	}
	return completed(out)
}

// StreamEntry is one XRANGE/XREAD entry: an id plus flat field/value pairs.
type StreamEntry struct {
	ID     string
	Fields map[string][]byte
}

// StreamEntries completes []StreamEntry from an XRANGE-shaped array of
// [id, [field, value, ...]] pairs.
type StreamEntries struct{}

func (StreamEntries) TryProcess(r resp.RawResult) Result {
	if e := classifyError(r); e != nil {
		return *e
	}
	if r.IsNull() {
		return completed([]StreamEntry(nil))
	}
	out := make([]StreamEntry, 0, len(r.Children))
	for _, entry := range r.Children {
		if len(entry.Children) != 2 {
			continue
		}
		id := bulkOrStr(entry.Children[0])
		fieldsArr := entry.Children[1]
		fields := make(map[string][]byte, len(fieldsArr.Children)/2)
		for i := 0; i+1 < len(fieldsArr.Children); i += 2 {
			fields[bulkOrStr(fieldsArr.Children[i])] = append([]byte(nil), fieldsArr.Children[i+1].Bytes...)
		}
		out = append(out, StreamEntry{ID: id, Fields: fields})
	}
	return completed(out)
}

// ClusterNode is one line of a parsed CLUSTER NODES reply.
type ClusterNode struct {
	ID        string
	Address   string
	Flags     []string
	Master    string
	PingSent  int64
	PongRecv  int64
	ConfigEpoch int64
	LinkState string
	Slots     []string
}

// ClusterNodes completes []ClusterNode by parsing the bulk-string table
// CLUSTER NODES returns, one space-delimited line per node.
type ClusterNodes struct{}

func (ClusterNodes) TryProcess(r resp.RawResult) Result {
	if e := classifyError(r); e != nil {
		return *e
	}
	if r.Kind != resp.KindBulkString || r.IsNilBulk {
		return Result{Outcome: OutcomeFailed, FailKind: ErrGeneric, ServerMessage: "expected bulk string"}
	}
	lines := splitLines(string(r.Bytes))
	out := make([]ClusterNode, 0, len(lines))
	for _, line := range lines {
		fields := splitFields(line)
		if len(fields) < 8 {
			continue
		}
		n := ClusterNode{
			ID:          fields[0],
			Address:     fields[1],
			Flags:       splitComma(fields[2]),
			Master:      fields[3],
			PingSent:    atoi64(fields[4]),
			PongRecv:    atoi64(fields[5]),
			ConfigEpoch: atoi64(fields[6]),
			LinkState:   fields[7],
		}
		if len(fields) > 8 {
			n.Slots = fields[8:]
		}
		out = append(out, n)
	}
	return completed(out)
}

// ClientInfo completes a map[string]string parsed from CLIENT INFO's
// space-delimited key=value line.
type ClientInfo struct{}

func (ClientInfo) TryProcess(r resp.RawResult) Result {
	if e := classifyError(r); e != nil {
		return *e
	}
	if r.Kind != resp.KindBulkString || r.IsNilBulk {
		return Result{Outcome: OutcomeFailed, FailKind: ErrGeneric, ServerMessage: "expected bulk string"}
	}
	out := map[string]string{}
	for _, field := range splitFields(string(r.Bytes)) {
		k, v, ok := splitKV(field)
		if ok {
			out[k] = v
		}
	}
	return completed(out)
}

func bulkOrStr(r resp.RawResult) string {
	if r.Kind == resp.KindSimpleString {
		return r.Str
	}
	return string(r.Bytes)
}
