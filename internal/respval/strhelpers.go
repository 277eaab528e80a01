package respval

import (
	"strconv"
	"strings"
)

func parseFloat(s string) (float64, error) {
	switch s {
	case "inf", "+inf":
		return posInf, nil
	case "-inf":
		return negInf, nil
	case "nan":
		return nanVal, nil
	}
	return strconv.ParseFloat(s, 64)
}

var (
	posInf = mustFloat("+Inf")
	negInf = mustFloat("-Inf")
	nanVal = mustFloat("NaN")
)

func mustFloat(s string) float64 {
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		panic(err)
	}
	return v
}

func splitLines(s string) []string {
	s = strings.TrimRight(s, "\n")
	if s == "" {
		return nil
	}
	return strings.Split(s, "\n")
}

func splitFields(s string) []string {
	return strings.Fields(s)
}

func splitComma(s string) []string {
	if s == "" {
		return nil
	}
	return strings.Split(s, ",")
}

func atoi64(s string) int64 {
	v, _ := strconv.ParseInt(s, 10, 64)
	return v
}

func splitKV(s string) (string, string, bool) {
	idx := strings.IndexByte(s, '=')
	if idx < 0 {
		return "", "", false
	}
	return s[:idx], s[idx+1:], true
}
