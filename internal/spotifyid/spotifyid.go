// Package spotifyid implements the Spotify ID value: a 16-byte opaque gid,
// a kind tag, its base62 form, and its canonical URI, all bijective with
// each other.
package spotifyid

import (
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/fliper/connectd/internal/cryptoprim"
	"github.com/fliper/connectd/internal/ctlerr"
)

// Kind identifies the category of entity an ID refers to.
type Kind int

const (
	Track Kind = iota
	Episode
	Playlist
)

func (k Kind) prefix() (string, error) {
	switch k {
	case Track:
		return "spotify:track:", nil
	case Episode:
		return "spotify:episode:", nil
	case Playlist:
		return "spotify:playlist:", nil
	default:
		return "", ctlerr.New(ctlerr.InvalidArgument, fmt.Sprintf("unknown spotify id kind %d", k), nil)
	}
}

func kindFromURI(uri string) (Kind, error) {
	switch {
	case strings.HasPrefix(uri, "spotify:track:"):
		return Track, nil
	case strings.HasPrefix(uri, "spotify:episode:"):
		return Episode, nil
	case strings.HasPrefix(uri, "spotify:playlist:"):
		return Playlist, nil
	default:
		return 0, ctlerr.New(ctlerr.InvalidArgument, "unknown spotify uri prefix", nil)
	}
}

// ID is a Spotify entity identifier, always kept in sync across its three
// representations.
type ID struct {
	Kind   Kind
	GID    [16]byte
	Base62 string
	URI    string
}

// FromGID builds an ID from a 16-byte gid.
func FromGID(kind Kind, gid []byte) (ID, error) {
	if len(gid) != 16 {
		return ID{}, ctlerr.New(ctlerr.InvalidArgument, "gid must be exactly 16 bytes", nil)
	}
	prefix, err := kind.prefix()
	if err != nil {
		return ID{}, err
	}

	id := ID{Kind: kind}
	copy(id.GID[:], gid)
	id.Base62 = cryptoprim.Base62EncodeWidth(gid, 22)
	id.URI = prefix + id.Base62
	return id, nil
}

// FromBase62 builds an ID from its 22-char base62 form.
func FromBase62(kind Kind, base62 string) (ID, error) {
	prefix, err := kind.prefix()
	if err != nil {
		return ID{}, err
	}
	gid, ok := cryptoprim.Base62Decode(base62, 16)
	if !ok {
		return ID{}, ctlerr.New(ctlerr.InvalidArgument, "invalid base62 gid", nil)
	}

	id := ID{Kind: kind, Base62: base62, URI: prefix + base62}
	copy(id.GID[:], gid)
	return id, nil
}

// FromURI parses a canonical "spotify:<kind>:<base62>" URI.
func FromURI(uri string) (ID, error) {
	kind, err := kindFromURI(uri)
	if err != nil {
		return ID{}, err
	}

	idx := strings.Index(uri[len("spotify:"):], ":")
	if idx < 0 {
		return ID{}, ctlerr.New(ctlerr.InvalidArgument, "malformed spotify uri", nil)
	}
	base62 := uri[len("spotify:")+idx+1:]

	gid, ok := cryptoprim.Base62Decode(base62, 16)
	if !ok {
		return ID{}, ctlerr.New(ctlerr.InvalidArgument, "invalid base62 gid in uri", nil)
	}

	id := ID{Kind: kind, Base62: base62, URI: uri}
	copy(id.GID[:], gid)
	return id, nil
}

// HexGID returns the lowercase hex form of the gid, as used by the track
// and episode metadata endpoints.
func (id ID) HexGID() string {
	return hex.EncodeToString(id.GID[:])
}

// KindFromContextURI infers the entity kind carried by a playable context
// (episode/show contexts carry episodes, everything else tracks).
func KindFromContextURI(contextURI string) Kind {
	if strings.HasPrefix(contextURI, "spotify:episode:") || strings.HasPrefix(contextURI, "spotify:show:") {
		return Episode
	}
	return Track
}
