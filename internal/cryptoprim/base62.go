package cryptoprim

import (
	"math/big"
	"strings"
)

const base62Alphabet = "0123456789abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ"

var base62Base = big.NewInt(62)

// Base62Encode encodes data as a base62 string, preserving one leading
// '0' digit for every leading zero byte in data. The result is not
// zero-padded to any fixed width; see Base62EncodeWidth for that.
func Base62Encode(data []byte) string {
	if len(data) == 0 {
		return ""
	}

	var leading strings.Builder
	i := 0
	for i < len(data) && data[i] == 0 {
		leading.WriteByte(base62Alphabet[0])
		i++
	}

	n := new(big.Int).SetBytes(data)
	if n.Sign() == 0 {
		if leading.Len() == 0 {
			return "0"
		}
		return leading.String()
	}

	var digits []byte
	mod := new(big.Int)
	for n.Sign() != 0 {
		n.DivMod(n, base62Base, mod)
		digits = append(digits, base62Alphabet[mod.Int64()])
	}
	for l, r := 0, len(digits)-1; l < r; l, r = l+1, r-1 {
		digits[l], digits[r] = digits[r], digits[l]
	}

	return leading.String() + string(digits)
}

// Base62Decode decodes a base62 string into a byte buffer the size of
// outSize, left-padded with zero bytes. An empty string decodes to an
// empty buffer; a value too large for outSize bytes reports false.
func Base62Decode(s string, outSize int) ([]byte, bool) {
	if s == "" {
		return []byte{}, true
	}

	n := new(big.Int)
	for i := 0; i < len(s); i++ {
		idx := strings.IndexByte(base62Alphabet, s[i])
		if idx < 0 {
			return nil, false
		}
		n.Mul(n, base62Base)
		n.Add(n, big.NewInt(int64(idx)))
	}

	raw := n.Bytes()
	if len(raw) > outSize {
		return nil, false
	}

	out := make([]byte, outSize)
	copy(out[outSize-len(raw):], raw)
	return out, true
}

// Base62EncodeWidth encodes data and zero-pads the result on the left to
// width characters. This is what gives the canonical 16-byte <-> 22-char
// Spotify ID form its bijection: Base62Decode(Base62EncodeWidth(b, 22), 16)
// == b for any 16-byte b, and the reverse holds for any 22-char string in
// the base62 alphabet whose value fits in 16 bytes (larger values fail to
// decode).
func Base62EncodeWidth(data []byte, width int) string {
	s := Base62Encode(data)
	if len(s) >= width {
		return s
	}
	return strings.Repeat("0", width-len(s)) + s
}
