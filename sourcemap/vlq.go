package sourcemap

var base64Digits = []byte("ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789+/")

var base64Values [256]int8

func init() {
	for i := range base64Values {
		base64Values[i] = -1
	}
	for i, c := range base64Digits {
		base64Values[c] = int8(i)
	}
}

// A single base 64 digit carries 6 bits: continuation bit and 5 bits of
// payload. The lowest bit of the first digit is the sign.
//
//	Continuation
//	|    Sign
//	|    |
//	V    V
//	101011
func appendVLQ(encoded []byte, value int) []byte {
	var vlq int
	if value < 0 {
		vlq = ((-value) << 1) | 1
	} else {
		vlq = value << 1
	}

	for {
		digit := vlq & 31
		vlq >>= 5
		if vlq != 0 {
			digit |= 32
		}
		encoded = append(encoded, base64Digits[digit])
		if vlq == 0 {
			break
		}
	}
	return encoded
}

// decodeVLQ reads single value starting at start and returns it together with
// position of the next unread byte.
func decodeVLQ(encoded string, start int) (int, int, bool) {
	shift := 0
	vlq := 0

	for {
		if start >= len(encoded) {
			return 0, start, false
		}
		index := base64Values[encoded[start]]
		if index < 0 {
			return 0, start, false
		}
		start++

		vlq |= int(index&31) << shift
		shift += 5
		if index&32 == 0 {
			break
		}
	}

	value := vlq >> 1
	if vlq&1 != 0 {
		value = -value
	}
	return value, start, true
}
