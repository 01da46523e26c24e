package cryptoprim

import (
	"crypto/hmac"
	"crypto/sha1"

	"golang.org/x/crypto/pbkdf2"
)

// HmacSHA1 computes HMAC-SHA1(key, msg).
func HmacSHA1(key, msg []byte) []byte {
	mac := hmac.New(sha1.New, key)
	mac.Write(msg)
	return mac.Sum(nil)
}

// Sha1 computes SHA1(data).
func Sha1(data []byte) []byte {
	h := sha1.Sum(data)
	return h[:]
}

// DeriveBlobKey derives the 24-byte AES key used to decrypt an encrypted
// auth blob: PBKDF2-HMAC-SHA1 over SHA1(deviceId), salted with username,
// 256 iterations, 20-byte output, then SHA1-expanded to 24 bytes whose
// last four bytes are fixed to the PKCS5-style length trailer 00 00 00 14.
func DeriveBlobKey(deviceID, username string) []byte {
	deviceIDDigest := Sha1([]byte(deviceID))
	derived := pbkdf2.Key(deviceIDDigest, []byte(username), 256, 20, sha1.New)

	digest := Sha1(derived)
	key := make([]byte, 24)
	copy(key, digest)
	key[20], key[21], key[22], key[23] = 0x00, 0x00, 0x00, 0x14
	return key
}
