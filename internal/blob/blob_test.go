package blob

import (
	"bytes"
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"net/url"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/fliper/connectd/internal/cryptoprim"
)

// encodeAuthBlobFrame builds the nanopb-style frame decodeEncryptedAuthBlob
// expects: a skipped identity field, then auth_type, then the length
// prefixed auth_data payload.
func encodeAuthBlobFrame(authType uint32, authData []byte) []byte {
	var buf bytes.Buffer
	buf.WriteByte(0x0a) // leading byte, skipped unconditionally
	const skipLen = 4
	buf.WriteByte(skipLen)
	buf.Write(bytes.Repeat([]byte{'x'}, skipLen+1)) // skip(skipLen+1) region
	buf.WriteByte(byte(authType))
	buf.WriteByte(0x00) // skip(1) after auth_type
	buf.WriteByte(byte(len(authData)))
	buf.Write(authData)
	return buf.Bytes()
}

// encryptAuthBlob performs the encode-side counterpart of
// decodeEncryptedAuthBlob: apply the forward XOR chain (inverse of the
// decode-side unwind), then AES-192-ECB encrypt each block, matching what
// the official client does before handing the blob to the device.
func encryptAuthBlob(deviceID, username string, frame []byte) []byte {
	padded := make([]byte, ((len(frame)+15)/16+1)*16)
	copy(padded, frame)
	if len(padded) < 32 {
		padded = append(padded, make([]byte, 32-len(padded))...)
	}

	// The decode-side unwind processes indices high-to-low, so every XOR
	// source it reads is still the untouched encoded byte 16 positions
	// earlier; inverting it is therefore an in-place forward chain, where
	// each byte is XORed with the already-encoded byte 16 before it.
	l := len(padded)
	for j := 16; j < l; j++ {
		padded[j] ^= padded[j-16]
	}

	key := cryptoprim.DeriveBlobKey(deviceID, username)
	block, err := aes.NewCipher(key)
	if err != nil {
		panic(err)
	}
	for off := 0; off < len(padded); off += 16 {
		block.Encrypt(padded[off:off+16], padded[off:off+16])
	}
	return []byte(base64.StdEncoding.EncodeToString(padded))
}

// encryptZeroconfBlob performs the encode-side counterpart of
// decodeZeroconfBlob, wrapping an already-encrypted auth blob with the
// DH-derived transport layer.
func encryptZeroconfBlob(sharedKey []byte, plaintext []byte) []byte {
	baseKey := cryptoprim.Sha1(sharedKey)[:16]
	checksumKey := cryptoprim.HmacSHA1(baseKey, []byte("checksum"))
	encryptionKey := cryptoprim.HmacSHA1(baseKey, []byte("encryption"))

	iv := make([]byte, 16)
	if _, err := rand.Read(iv); err != nil {
		panic(err)
	}

	block, err := aes.NewCipher(encryptionKey[:16])
	if err != nil {
		panic(err)
	}
	ciphertext := make([]byte, len(plaintext))
	cipher.NewCTR(block, iv).XORKeyStream(ciphertext, plaintext)

	checksum := cryptoprim.HmacSHA1(checksumKey, ciphertext)

	out := make([]byte, 0, 16+len(ciphertext)+20)
	out = append(out, iv...)
	out = append(out, ciphertext...)
	out = append(out, checksum...)
	return out
}

func TestAuthenticateZeroconfRoundTrip(t *testing.T) {
	store, err := NewStore("fliperspotify")
	require.NoError(t, err)

	remote, err := cryptoprim.GenerateDHRandom()
	require.NoError(t, err)

	sharedKey := remote.SharedKey(store.dh.PublicKey())

	frame := encodeAuthBlobFrame(1, []byte("super-secret-refresh-token"))
	encryptedAuthBlob := encryptAuthBlob(store.DeviceID(), "fliperspotify", frame)
	zeroconfBlob := encryptZeroconfBlob(sharedKey, encryptedAuthBlob)

	query := url.Values{}
	query.Set("blob", base64.StdEncoding.EncodeToString(zeroconfBlob))
	query.Set("clientKey", base64.StdEncoding.EncodeToString(remote.PublicKey()))
	query.Set("userName", "fliperspotify")

	err = store.AuthenticateZeroconf(query.Encode())
	require.NoError(t, err)
	require.True(t, store.Authenticated())

	got, ok := store.StoredBlob()
	require.True(t, ok)
	require.Equal(t, "fliperspotify", got.Username)
	require.Equal(t, uint32(1), got.AuthType)
	require.Equal(t, []byte("super-secret-refresh-token"), got.AuthData)
}

func TestAuthenticateZeroconfMissingBlob(t *testing.T) {
	store, err := NewStore("fliperspotify")
	require.NoError(t, err)

	err = store.AuthenticateZeroconf("deviceId=abc&clientKey=xyz&userName=u")
	require.Error(t, err)
}

func TestBuildInfoResponseIncludesDeviceIdentity(t *testing.T) {
	store, err := NewStore("kitchen speaker")
	require.NoError(t, err)

	body, err := store.BuildInfoResponse()
	require.NoError(t, err)
	require.Contains(t, string(body), store.DeviceID())
	require.Contains(t, string(body), "kitchen speaker")
}
