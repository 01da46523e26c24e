// Package cryptoprim implements the crypto primitives the control plane
// needs as building blocks: Diffie-Hellman key agreement over Spotify's
// fixed 768-bit group, the Shannon stream cipher, base62, and the
// HMAC/PBKDF2 wrappers used by the credential blob decoder.
package cryptoprim

import (
	"crypto/rand"
	"io"
	"math/big"
)

// KeySize is the width in bytes of DH public/private/shared keys in
// Spotify's group.
const KeySize = 96

// dhPrime is the Sophie-Germain prime for Spotify's DH group 1 (768-bit).
var dhPrime = new(big.Int).SetBytes([]byte{
	0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xc9, 0x0f, 0xda, 0xa2,
	0x21, 0x68, 0xc2, 0x34, 0xc4, 0xc6, 0x62, 0x8b, 0x80, 0xdc, 0x1c, 0xd1,
	0x29, 0x02, 0x4e, 0x08, 0x8a, 0x67, 0xcc, 0x74, 0x02, 0x0b, 0xbe, 0xa6,
	0x3b, 0x13, 0x9b, 0x22, 0x51, 0x4a, 0x08, 0x79, 0x8e, 0x34, 0x04, 0xdd,
	0xef, 0x95, 0x19, 0xb3, 0xcd, 0x3a, 0x43, 0x1b, 0x30, 0x2b, 0x0a, 0x6d,
	0xf2, 0x5f, 0x14, 0x37, 0x4f, 0xe1, 0x35, 0x6d, 0x6d, 0x51, 0xc2, 0x45,
	0xe4, 0x85, 0xb5, 0x76, 0x62, 0x5e, 0x7e, 0xc6, 0xf4, 0x4c, 0x42, 0xe9,
	0xa6, 0x3a, 0x36, 0x20, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff,
})

var dhGenerator = big.NewInt(2)

// DH holds a private key and its derived public key for one Spotify DH
// exchange. The zero value is not usable; build one with GenerateDH.
type DH struct {
	private *big.Int
	public  []byte
}

// GenerateDH draws a 96-byte private key from random and derives the
// public key. Pass a deterministic reader (e.g. bytes.NewReader of a fixed
// fixture) in tests.
func GenerateDH(random io.Reader) (*DH, error) {
	privBytes := make([]byte, KeySize)
	if _, err := io.ReadFull(random, privBytes); err != nil {
		return nil, err
	}
	return newDH(privBytes), nil
}

// GenerateDHRandom draws the private key from crypto/rand.
func GenerateDHRandom() (*DH, error) {
	return GenerateDH(rand.Reader)
}

func newDH(privBytes []byte) *DH {
	priv := new(big.Int).SetBytes(privBytes)
	pub := new(big.Int).Exp(dhGenerator, priv, dhPrime)
	return &DH{private: priv, public: leftPad(pub.Bytes(), KeySize)}
}

// PublicKey returns the 96-byte DH public key G^X mod P.
func (d *DH) PublicKey() []byte {
	out := make([]byte, KeySize)
	copy(out, d.public)
	return out
}

// SharedKey computes the 96-byte shared secret (G^Y)^X mod P from a
// remote 96-byte public key.
func (d *DH) SharedKey(remotePublic []byte) []byte {
	remote := new(big.Int).SetBytes(remotePublic)
	shared := new(big.Int).Exp(remote, d.private, dhPrime)
	return leftPad(shared.Bytes(), KeySize)
}

func leftPad(b []byte, size int) []byte {
	if len(b) >= size {
		return b[len(b)-size:]
	}
	out := make([]byte, size)
	copy(out[size-len(b):], b)
	return out
}
