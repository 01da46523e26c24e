// Package blob implements the zeroconf credential hand-off: decoding a
// Spotify app's encrypted authorization blob into a stored username and
// auth_type/auth_data pair ready for a login5 password-grant exchange.
package blob

import (
	"bytes"
	"crypto/aes"
	"crypto/cipher"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/url"
	"sync"

	"github.com/fliper/connectd/internal/cryptoprim"
	"github.com/fliper/connectd/internal/ctlerr"
)

const (
	protocolVersion = "2.7.1"
	swVersion       = "2.0.0"
	brandName       = "connectd"
	deviceType      = "SPEAKER"
)

// AuthBlob holds the decoded outcome of a zeroconf handshake: the Spotify
// username and the raw auth_data bytes to present to login5, keyed by an
// auth_type tag carried alongside them in the original nanopb frame.
type AuthBlob struct {
	Username string
	AuthType uint32
	AuthData []byte
}

// Store owns a device's Diffie-Hellman keypair and identity, and turns
// zeroconf addUser requests into an AuthBlob. One Store exists per
// advertised device.
type Store struct {
	mu sync.Mutex

	deviceName string
	deviceID   string
	dh         *cryptoprim.DH

	username string
	blob     AuthBlob
	have     bool
}

// NewStore derives a device id from deviceName and generates a fresh
// Diffie-Hellman keypair for the zeroconf handshake.
func NewStore(deviceName string) (*Store, error) {
	dh, err := cryptoprim.GenerateDHRandom()
	if err != nil {
		return nil, ctlerr.Wrap(ctlerr.IoError, "generate dh keypair", err)
	}
	return &Store{
		deviceName: deviceName,
		deviceID:   deriveDeviceID(deviceName),
		dh:         dh,
	}, nil
}

func deriveDeviceID(deviceName string) string {
	h := cryptoprim.Sha1([]byte(deviceName))
	return fmt.Sprintf("142137fd329622137a149016%x", h[:8])
}

// DeviceID returns the stable synthetic device id advertised in zeroconf
// responses and used as the PBKDF2 password source.
func (s *Store) DeviceID() string {
	return s.deviceID
}

// Authenticated reports whether a blob has been successfully decoded.
func (s *Store) Authenticated() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.have
}

// StoredBlob returns the most recently decoded AuthBlob.
func (s *Store) StoredBlob() (AuthBlob, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.blob, s.have
}

// Username returns the authenticated Spotify username, or "" if no blob
// has been decoded yet.
func (s *Store) Username() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.username
}

// AuthData returns the stored auth_data bytes to present to login5, or
// nil if no blob has been decoded yet.
func (s *Store) AuthData() []byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.blob.AuthData
}

// BuildInfoResponse renders the JSON body for a getInfo zeroconf request.
func (s *Store) BuildInfoResponse() ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	resp := map[string]interface{}{
		"status":           101,
		"statusString":     "OK",
		"version":          protocolVersion,
		"spotifyError":     0,
		"libraryVersion":   swVersion,
		"accountReq":       "PREMIUM",
		"brandDisplayName": brandName,
		"modelDisplayName": brandName,
		"voiceSupport":     "NO",
		"productID":        0,
		"tokenType":        "default",
		"groupStatus":      "NONE",
		"resolverVersion":  "0",
		"scope":            "streaming,client-authorization-universal",
		"deviceType":       deviceType,
		"availability":     "",
		"deviceID":         s.deviceID,
		"remoteName":       s.deviceName,
		"publicKey":        base64.StdEncoding.EncodeToString(s.dh.PublicKey()),
		"activeUser":       s.username,
	}
	return json.Marshal(resp)
}

// AuthenticateZeroconf consumes an addUser request's raw query string,
// decodes the encrypted blob it carries, and stores the resulting
// AuthBlob. It is safe to call again to replace a previously stored
// credential.
func (s *Store) AuthenticateZeroconf(rawQuery string) error {
	values, err := url.ParseQuery(rawQuery)
	if err != nil {
		return ctlerr.Wrap(ctlerr.BadMessage, "parse zeroconf query", err)
	}

	blobB64 := values.Get("blob")
	deviceKeyB64 := values.Get("clientKey")
	username := values.Get("userName")
	if blobB64 == "" {
		return ctlerr.New(ctlerr.BadMessage, "blob missing from zeroconf request", nil)
	}
	if deviceKeyB64 == "" {
		return ctlerr.New(ctlerr.BadMessage, "clientKey missing from zeroconf request", nil)
	}

	blobBytes, err := base64.StdEncoding.DecodeString(blobB64)
	if err != nil {
		return ctlerr.Wrap(ctlerr.BadMessage, "base64 decode blob", err)
	}
	clientKey, err := base64.StdEncoding.DecodeString(deviceKeyB64)
	if err != nil {
		return ctlerr.Wrap(ctlerr.BadMessage, "base64 decode clientKey", err)
	}

	s.mu.Lock()
	dh := s.dh
	deviceID := s.deviceID
	s.mu.Unlock()

	encryptedAuthBlob, err := decodeZeroconfBlob(dh, blobBytes, clientKey)
	if err != nil {
		return err
	}

	decoded, err := decodeEncryptedAuthBlob(deviceID, username, encryptedAuthBlob)
	if err != nil {
		return err
	}

	s.mu.Lock()
	s.username = username
	s.blob = decoded
	s.have = true
	s.mu.Unlock()
	return nil
}

// decodeZeroconfBlob reverses the DH-wrapped transport layer: the zeroconf
// blob is [16-byte iv | AES-CTR ciphertext | 20-byte HMAC checksum], keyed
// off a shared secret derived from the advertised device key and the
// remote's one-time client key.
func decodeZeroconfBlob(dh *cryptoprim.DH, blob, clientKey []byte) ([]byte, error) {
	if len(blob) < 36 {
		return nil, ctlerr.New(ctlerr.BadMessage, "zeroconf blob too short", nil)
	}
	iv := blob[:16]
	encrypted := blob[16 : len(blob)-20]
	checksum := blob[len(blob)-20:]

	sharedKey := dh.SharedKey(clientKey)
	baseKey := cryptoprim.Sha1(sharedKey)[:16]

	checksumKey := cryptoprim.HmacSHA1(baseKey, []byte("checksum"))
	encryptionKey := cryptoprim.HmacSHA1(baseKey, []byte("encryption"))

	mac := cryptoprim.HmacSHA1(checksumKey, encrypted)
	if !bytes.Equal(mac, checksum) {
		return nil, ctlerr.New(ctlerr.BadMessage, "zeroconf blob checksum mismatch", nil)
	}

	block, err := aes.NewCipher(encryptionKey[:16])
	if err != nil {
		return nil, ctlerr.Wrap(ctlerr.IoError, "build aes cipher", err)
	}
	out := make([]byte, len(encrypted))
	cipher.NewCTR(block, iv).XORKeyStream(out, encrypted)
	return out, nil
}

// decodeEncryptedAuthBlob reverses the device-secret layer: PBKDF2 over
// SHA1(deviceId) salted with the username derives the AES-192-ECB key,
// then a trailing XOR unwind (CBC-like chaining in reverse) recovers the
// nanopb-framed auth_type/auth_data pair.
func decodeEncryptedAuthBlob(deviceID, username string, encryptedAuthBlob []byte) (AuthBlob, error) {
	raw, err := base64.StdEncoding.DecodeString(string(encryptedAuthBlob))
	if err != nil {
		return AuthBlob{}, ctlerr.Wrap(ctlerr.BadMessage, "base64 decode auth blob", err)
	}
	if len(raw)%16 != 0 || len(raw) < 16 {
		return AuthBlob{}, ctlerr.New(ctlerr.BadMessage, "auth blob not block aligned", nil)
	}

	key := cryptoprim.DeriveBlobKey(deviceID, username)
	block, err := aes.NewCipher(key)
	if err != nil {
		return AuthBlob{}, ctlerr.Wrap(ctlerr.IoError, "build aes cipher", err)
	}
	for off := 0; off < len(raw); off += 16 {
		block.Decrypt(raw[off:off+16], raw[off:off+16])
	}

	l := len(raw)
	for i := 0; i < l-16; i++ {
		raw[l-i-1] ^= raw[l-i-17]
	}

	return parseAuthBlobFrame(username, raw)
}

// parseAuthBlobFrame walks the decrypted buffer's uvarint-length-prefixed
// fields: a skipped identity field, then auth_type, then the length
// prefixed auth_data payload itself.
func parseAuthBlobFrame(username string, data []byte) (AuthBlob, error) {
	r := bytes.NewReader(data)
	if _, err := r.ReadByte(); err != nil {
		return AuthBlob{}, ctlerr.New(ctlerr.BadMessage, "auth blob frame truncated", nil)
	}

	skipLen, err := readUvarint(r)
	if err != nil {
		return AuthBlob{}, err
	}
	if _, err := r.Seek(int64(skipLen)+1, 1); err != nil {
		return AuthBlob{}, ctlerr.New(ctlerr.BadMessage, "auth blob frame truncated", nil)
	}

	authType, err := readUvarint(r)
	if err != nil {
		return AuthBlob{}, err
	}
	if _, err := r.ReadByte(); err != nil {
		return AuthBlob{}, ctlerr.New(ctlerr.BadMessage, "auth blob frame truncated", nil)
	}

	authDataSize, err := readUvarint(r)
	if err != nil {
		return AuthBlob{}, err
	}
	authData := make([]byte, authDataSize)
	if _, err := io.ReadFull(r, authData); err != nil {
		return AuthBlob{}, ctlerr.New(ctlerr.BadMessage, "auth blob data truncated", nil)
	}

	return AuthBlob{Username: username, AuthType: authType, AuthData: authData}, nil
}

// readUvarint reads the original implementation's two-byte varint: a
// 7-bit low byte with a continuation flag, followed by an 8-bit high
// byte shifted left seven places (not a full LEB128 chain).
func readUvarint(r *bytes.Reader) (uint32, error) {
	lo, err := r.ReadByte()
	if err != nil {
		return 0, ctlerr.New(ctlerr.BadMessage, "auth blob varint truncated", nil)
	}
	if lo&0x80 == 0 {
		return uint32(lo), nil
	}
	hi, err := r.ReadByte()
	if err != nil {
		return 0, ctlerr.New(ctlerr.BadMessage, "auth blob varint truncated", nil)
	}
	return uint32(lo&0x7f) | (uint32(hi) << 7), nil
}

