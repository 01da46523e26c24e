package connectpb

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fliper/connectd/internal/wire"
)

func TestTrackIDEqualPrefersUID(t *testing.T) {
	a := TrackID{UID: "u1", URI: "spotify:track:a"}
	b := TrackID{UID: "u1", URI: "spotify:track:b"}
	assert.True(t, a.Equal(b), "matching uid should win even with differing uri")

	c := TrackID{URI: "spotify:track:a"}
	d := TrackID{URI: "spotify:track:a"}
	assert.True(t, c.Equal(d))

	assert.False(t, (TrackID{}).Equal(TrackID{}), "empty-both must never match")
}

func TestTrackIDEqualRejectsMismatch(t *testing.T) {
	a := TrackID{UID: "u1"}
	b := TrackID{UID: "u2"}
	assert.False(t, a.Equal(b))
}

func TestNewPutStateRequestDefaults(t *testing.T) {
	device := NewDeviceInfo("kitchen", "dev-1", "client-1")
	req := NewPutStateRequest(device)

	assert.True(t, req.PlayerState.IsSystemInitiated)
	assert.Equal(t, 1.0, req.PlayerState.PlaybackSpeed)
	assert.False(t, req.IsActive)
	assert.True(t, device.Capabilities.SupportsTransferCommand)
	assert.Equal(t, []string{"audio/track", "audio/episode"}, device.Capabilities.SupportedTypes)
}

func TestEncodePutStateRequestProducesDeviceBlock(t *testing.T) {
	device := NewDeviceInfo("kitchen", "dev-1", "client-1")
	req := NewPutStateRequest(device)
	req.IsActive = true
	req.PlayerState.Track = ProvidedTrack{URI: "spotify:track:aaaa", UID: "uid-1", Provider: "context"}

	encoded := EncodePutStateRequest(req)
	require.NotEmpty(t, encoded)

	var sawDevice, sawActive bool
	require.NoError(t, wire.NewDecoder(encoded).Walk(func(f wire.Field) error {
		switch f.Number {
		case 1:
			sawDevice = true
		case 2:
			sawActive = f.Varint != 0
		}
		return nil
	}))
	assert.True(t, sawDevice)
	assert.True(t, sawActive)
}

func encodeTransferStateFixture() []byte {
	e := wire.NewEncoder()
	e.Message(1, func(s *wire.Encoder) {
		s.String(2, "uid-42")
		s.Message(3, func(c *wire.Encoder) {
			c.String(1, "spotify:playlist:37i9dQZF1DXcBWIGoYBM5M")
		})
	})
	e.Message(2, func(p *wire.Encoder) {
		p.Varint(1, 1000)
		p.Varint(2, 500)
	})
	return e.Bytes()
}

func TestDecodeTransferStateFixture(t *testing.T) {
	ts, err := DecodeTransferState(encodeTransferStateFixture())
	require.NoError(t, err)

	assert.Equal(t, "uid-42", ts.CurrentSession.CurrentUID)
	assert.Equal(t, "spotify:playlist:37i9dQZF1DXcBWIGoYBM5M", ts.CurrentSession.Context.URI)
	assert.EqualValues(t, 1000, ts.Playback.Timestamp)
	assert.EqualValues(t, 500, ts.Playback.PositionAsOfTimestamp)
	assert.False(t, ts.Playback.IsPaused)
}
