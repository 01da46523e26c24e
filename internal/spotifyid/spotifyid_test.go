package spotifyid

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFromGIDRoundTripsThroughBase62AndURI(t *testing.T) {
	gid := bytes.Repeat([]byte{0x01}, 16)
	gid[15] = 0xff

	id, err := FromGID(Track, gid)
	require.NoError(t, err)
	assert.Len(t, id.Base62, 22)
	assert.Equal(t, "spotify:track:"+id.Base62, id.URI)

	fromBase62, err := FromBase62(Track, id.Base62)
	require.NoError(t, err)
	assert.Equal(t, id.GID, fromBase62.GID)

	fromURI, err := FromURI(id.URI)
	require.NoError(t, err)
	assert.Equal(t, id.GID, fromURI.GID)
	assert.Equal(t, Track, fromURI.Kind)
}

func TestFromGIDZeroBuffer(t *testing.T) {
	id, err := FromGID(Episode, make([]byte, 16))
	require.NoError(t, err)
	assert.Equal(t, strings.Repeat("0", 22), id.Base62)
	assert.Equal(t, "spotify:episode:"+id.Base62, id.URI)
}

func TestFromGIDRejectsWrongLength(t *testing.T) {
	_, err := FromGID(Track, make([]byte, 10))
	assert.Error(t, err)
}

func TestFromURIRejectsUnknownKind(t *testing.T) {
	_, err := FromURI("spotify:album:abc")
	assert.Error(t, err)
}

func TestHexGID(t *testing.T) {
	gid := make([]byte, 16)
	gid[0] = 0xde
	gid[1] = 0xad
	id, err := FromGID(Track, gid)
	require.NoError(t, err)
	assert.Equal(t, "dead"+strings.Repeat("0", 28), id.HexGID())
}

func TestKindFromContextURI(t *testing.T) {
	assert.Equal(t, Episode, KindFromContextURI("spotify:show:abc"))
	assert.Equal(t, Episode, KindFromContextURI("spotify:episode:abc"))
	assert.Equal(t, Track, KindFromContextURI("spotify:playlist:abc"))
}
