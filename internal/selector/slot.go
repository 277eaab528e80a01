package selector

// SlotCount is the fixed cluster hash slot space (spec.md 4.E).
const SlotCount = 16384

// HashTag extracts the routable portion of a key: the substring between the
// first `{` and the next `}` after it, provided that substring is
// non-empty; otherwise the whole key (spec.md 4.E, including the boundary
// case "hash-tag `{}` is ignored, slot computed over full key", spec.md 8).
func HashTag(key []byte) []byte {
	i := indexByte(key, '{')
	if i < 0 {
		return key
	}
	j := indexByte(key[i+1:], '}')
	if j < 0 {
		return key
	}
	if j == 0 {
		// "{}" immediately: empty tag, ignored.
		return key
	}
	return key[i+1 : i+1+j]
}

func indexByte(b []byte, c byte) int {
	for i, v := range b {
		if v == c {
			return i
		}
	}
	return -1
}

// Slot computes the cluster hash slot for key (spec.md 4.E: "Slot =
// CRC16-XMODEM(t) mod 16384"). No suitable CRC16 implementation exists
// among the example repos' dependencies (they reach for hash/crc32,
// hash/crc64, and xxhash, none of which is XMODEM-CRC16); implemented
// directly against the documented polynomial, same as the stdlib's own
// hash/crc32 tables would be hand-rolled for an unsupported polynomial.
func Slot(key []byte) int {
	return int(crc16XModem(HashTag(key)) % SlotCount)
}

const crc16Poly = 0x1021

func crc16XModem(data []byte) uint16 {
	var crc uint16
	for _, b := range data {
		crc ^= uint16(b) << 8
		for i := 0; i < 8; i++ {
			if crc&0x8000 != 0 {
				crc = (crc << 1) ^ crc16Poly
			} else {
				crc <<= 1
			}
		}
	}
	return crc
}
