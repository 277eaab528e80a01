package resp

import (
	"math"
	"strconv"
)

// EncodeCommand renders args as a RESP command frame: *N\r\n followed by N
// bulk strings. Inline (space-delimited single line) encoding is never
// produced, per spec.md 4.B.
func EncodeCommand(args [][]byte) []byte {
	out := make([]byte, 0, estimateSize(args))
	out = append(out, '*')
	out = strconv.AppendInt(out, int64(len(args)), 10)
	out = append(out, '\r', '\n')
	for _, a := range args {
		out = append(out, '$')
		out = strconv.AppendInt(out, int64(len(a)), 10)
		out = append(out, '\r', '\n')
		out = append(out, a...)
		out = append(out, '\r', '\n')
	}
	return out
}

func estimateSize(args [][]byte) int {
	n := 16
	for _, a := range args {
		n += len(a) + 16
	}
	return n
}

// AppendInt renders v in shortest decimal form, the encoding this client
// uses for every numeric command argument (spec.md 4.B).
func AppendInt(dst []byte, v int64) []byte {
	return strconv.AppendInt(dst, v, 10)
}

// AppendFloat renders a float argument, using Redis's own "inf"/"-inf"/"nan"
// spellings instead of Go's "+Inf"/"-Inf"/"NaN".
func AppendFloat(dst []byte, v float64) []byte {
	switch {
	case math.IsInf(v, 1):
		return append(dst, "inf"...)
	case math.IsInf(v, -1):
		return append(dst, "-inf"...)
	case math.IsNaN(v):
		return append(dst, "nan"...)
	}
	return strconv.AppendFloat(dst, v, 'g', -1, 64)
}
