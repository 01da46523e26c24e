// Package connectpb holds the data model shared by the connect-state
// handler, the track provider, and the context resolver: the device's
// published state, the context page shapes fetched over HTTP, and the
// binary encoding of outbound PutStateRequest messages.
package connectpb

import (
	"github.com/fliper/connectd/internal/wire"
)

const (
	spircVersion          = "3.2.6"
	deviceSoftwareVersion = "1.0.0"
)

// DeviceType mirrors the service's device_type enum; speakers are the
// only kind this control plane advertises.
type DeviceType int

const DeviceTypeSpeaker DeviceType = 5

// Capabilities describes what this device lets the service ask of it.
// The field values are fixed: a generic speaker advertises the same
// capability set on every boot.
type Capabilities struct {
	CanBePlayer                bool
	RestrictToLocal            bool
	GaiaEqConnectID            bool
	SupportsLogout             bool
	IsObservable               bool
	SupportedTypes             []string
	VolumeSteps                int32
	CommandAcks                bool
	SupportsRename             bool
	Hidden                     bool
	DisableVolume              bool
	ConnectDisabled            bool
	SupportsPlaylistV2         bool
	IsControllable             bool
	SupportsExternalEpisodes   bool
	SupportsSetBackendMetadata bool
	SupportsTransferCommand    bool
	SupportsCommandRequest     bool
	IsVoiceEnabled             bool
	NeedsFullPlayerState       bool
	SupportsGzipPushes         bool
	HasSupportsHifi            bool
}

// DefaultCapabilities returns the fixed capability set every connectd
// device advertises.
func DefaultCapabilities() Capabilities {
	return Capabilities{
		CanBePlayer:                true,
		RestrictToLocal:            false,
		GaiaEqConnectID:            true,
		SupportsLogout:             true,
		IsObservable:               true,
		SupportedTypes:             []string{"audio/track", "audio/episode"},
		VolumeSteps:                100,
		CommandAcks:                true,
		SupportsRename:             false,
		Hidden:                     false,
		DisableVolume:              false,
		ConnectDisabled:            false,
		SupportsPlaylistV2:         true,
		IsControllable:             true,
		SupportsExternalEpisodes:   false,
		SupportsSetBackendMetadata: true,
		SupportsTransferCommand:    true,
		SupportsCommandRequest:     true,
		IsVoiceEnabled:             false,
		NeedsFullPlayerState:       false,
		SupportsGzipPushes:         false,
		HasSupportsHifi:            false,
	}
}

// DeviceInfo is the static identity and capability block sent with
// every PutStateRequest.
type DeviceInfo struct {
	CanPlay      bool
	Volume       int32
	Name         string
	DeviceType   DeviceType
	DeviceID     string
	ClientID     string
	SpircVersion string
	SoftwareVer  string
	Capabilities Capabilities
}

// NewDeviceInfo builds a DeviceInfo with the fixed software-version and
// capability fields, parameterized only on the device's own identity.
func NewDeviceInfo(name, deviceID, clientID string) DeviceInfo {
	return DeviceInfo{
		CanPlay:      true,
		Volume:       100,
		Name:         name,
		DeviceType:   DeviceTypeSpeaker,
		DeviceID:     deviceID,
		ClientID:     clientID,
		SpircVersion: spircVersion,
		SoftwareVer:  deviceSoftwareVersion,
		Capabilities: DefaultCapabilities(),
	}
}

// ContextIndex locates a track within a paged context.
type ContextIndex struct {
	Page  int32
	Track int32
}

// PlayerState is the player half of a PutStateRequest.
type PlayerState struct {
	Track                 ProvidedTrack
	PrevTracks             []ProvidedTrack
	NextTracks             []ProvidedTrack
	ContextURI             string
	ContextURL             string
	SessionID              string
	Timestamp              int64
	PositionAsOfTimestamp  int64
	IsPlaying              bool
	IsPaused               bool
	IsBuffering            bool
	PlaybackSpeed          float64
	IsSystemInitiated      bool
	Index                  *ContextIndex
	Shuffle                bool
	RepeatContext          bool
	RepeatTrack            bool
}

// PutStateReason mirrors the service's PutStateReason enum.
type PutStateReason int

const (
	PlayerStateChanged PutStateReason = iota
	NewDevice
	NewConnection
)

// PutStateRequest is the outward device state published on every
// meaningful transition.
type PutStateRequest struct {
	Device                      DeviceInfo
	PlayerState                 PlayerState
	IsActive                    bool
	MemberType                  int32
	PutStateReason              PutStateReason
	MessageID                   uint32
	LastCommandMessageID        uint32
	LastCommandSentByDeviceID   string
	ClientSideTimestamp         int64
	StartedPlayingAt            int64
	HasBeenPlayingForMs         int64
}

const memberTypeConnectState int32 = 1

// NewPutStateRequest builds a PutStateRequest with its device block
// populated and the player state defaulted to an inactive, system
// initiated, 1.0x-speed idle state, mirroring the reset performed on
// every new context.
func NewPutStateRequest(device DeviceInfo) *PutStateRequest {
	return &PutStateRequest{
		Device:     device,
		MemberType: memberTypeConnectState,
		PlayerState: PlayerState{
			IsSystemInitiated: true,
			PlaybackSpeed:     1.0,
		},
	}
}

// ProvidedTrack is the player's outward view of a track.
type ProvidedTrack struct {
	URI      string
	UID      string
	Provider string
}

// ContextTrack is one entry inside a resolved context page.
type ContextTrack struct {
	URI        string
	UID        string
	GID        string
	PageIndex  int
	TrackIndex int
}

// TrackID is the identity half of a ContextTrack, compared UID-first
// then URI, per the data model's pairing rule.
type TrackID struct {
	UID string
	URI string
}

// Empty reports whether neither half of the identity is set.
func (t TrackID) Empty() bool {
	return t.UID == "" && t.URI == ""
}

// Equal compares two TrackIDs by UID when both sides have one, otherwise
// by URI when both sides have one; any other pairing, including an
// empty-both pair, is never equal.
func (t TrackID) Equal(other TrackID) bool {
	if t.Empty() || other.Empty() {
		return false
	}
	if t.UID != "" && other.UID != "" {
		return t.UID == other.UID
	}
	if t.URI != "" && other.URI != "" {
		return t.URI == other.URI
	}
	return false
}

// TransferState is the decoded payload of a "transfer" player command.
type TransferState struct {
	CurrentSession TransferSession
	Playback       TransferPlayback
	Queue          TransferQueue
	Options        TransferOptions
}

// TransferSession carries the session being handed off.
type TransferSession struct {
	OriginalSessionID string
	CurrentUID        string
	Context           TransferContext
}

// TransferContext names the context and track the transfer resumes.
type TransferContext struct {
	URI string
	URL string
}

// TransferPlayback carries the playback position being handed off.
type TransferPlayback struct {
	Timestamp             int64
	PositionAsOfTimestamp int64
	IsPaused              bool
	CurrentTrack          TransferTrack
}

// TransferTrack identifies the track actively playing at transfer time.
type TransferTrack struct {
	GID []byte
}

// TransferQueue is the manual queue handed off alongside the context.
type TransferQueue struct {
	Tracks         []ContextTrack
	IsPlayingQueue bool
}

// TransferOptions are the player options carried by a transfer.
type TransferOptions struct {
	RestorePaused string
	Shuffle       bool
	RepeatContext bool
	RepeatTrack   bool
	PlaybackSpeed float64
}

// EncodePutStateRequest renders a PutStateRequest as the service's
// binary wire format, field numbers per the published connect.proto
// message shape.
func EncodePutStateRequest(req *PutStateRequest) []byte {
	e := wire.NewEncoder()
	e.Message(1, func(d *wire.Encoder) { encodeDevice(d, req.Device, &req.PlayerState) })
	e.Bool(2, req.IsActive)
	e.Varint(3, uint64(req.MemberType))
	e.Varint(4, uint64(req.PutStateReason))
	e.Varint(5, uint64(req.MessageID))
	e.Varint(6, uint64(req.LastCommandMessageID))
	e.String(7, req.LastCommandSentByDeviceID)
	e.Varint(8, uint64(req.ClientSideTimestamp))
	e.Varint(9, uint64(req.StartedPlayingAt))
	e.Varint(10, uint64(req.HasBeenPlayingForMs))
	return e.Bytes()
}

func encodeDevice(e *wire.Encoder, dev DeviceInfo, player *PlayerState) {
	e.Message(1, func(d *wire.Encoder) { encodeDeviceInfo(d, dev) })
	e.Message(2, func(d *wire.Encoder) { encodePlayerState(d, player) })
}

func encodeDeviceInfo(e *wire.Encoder, dev DeviceInfo) {
	e.Bool(1, dev.CanPlay)
	e.Varint(2, uint64(dev.Volume))
	e.String(3, dev.Name)
	e.Varint(4, uint64(dev.DeviceType))
	e.String(5, dev.DeviceID)
	e.String(6, dev.ClientID)
	e.String(7, dev.SpircVersion)
	e.String(8, dev.SoftwareVer)
	e.Message(9, func(c *wire.Encoder) { encodeCapabilities(c, dev.Capabilities) })
}

func encodeCapabilities(e *wire.Encoder, c Capabilities) {
	e.Bool(1, c.CanBePlayer)
	e.Bool(2, c.RestrictToLocal)
	e.Bool(3, c.GaiaEqConnectID)
	e.Bool(4, c.SupportsLogout)
	e.Bool(5, c.IsObservable)
	wire.Repeated(e, 6, c.SupportedTypes, func(s *wire.Encoder, t string) { s.String(1, t) })
	e.Varint(7, uint64(c.VolumeSteps))
	e.Bool(8, c.CommandAcks)
	e.Bool(9, c.SupportsRename)
	e.Bool(10, c.Hidden)
	e.Bool(11, c.DisableVolume)
	e.Bool(12, c.ConnectDisabled)
	e.Bool(13, c.SupportsPlaylistV2)
	e.Bool(14, c.IsControllable)
	e.Bool(15, c.SupportsExternalEpisodes)
	e.Bool(16, c.SupportsSetBackendMetadata)
	e.Bool(17, c.SupportsTransferCommand)
	e.Bool(18, c.SupportsCommandRequest)
	e.Bool(19, c.IsVoiceEnabled)
	e.Bool(20, c.NeedsFullPlayerState)
	e.Bool(21, c.SupportsGzipPushes)
	e.Bool(22, c.HasSupportsHifi)
}

func encodePlayerState(e *wire.Encoder, p *PlayerState) {
	e.Message(1, func(t *wire.Encoder) { encodeProvidedTrack(t, p.Track) })
	wire.Repeated(e, 2, p.PrevTracks, encodeProvidedTrack)
	wire.Repeated(e, 3, p.NextTracks, encodeProvidedTrack)
	e.String(4, p.ContextURI)
	e.String(5, p.ContextURL)
	e.String(6, p.SessionID)
	e.Varint(7, uint64(p.Timestamp))
	e.Varint(8, uint64(p.PositionAsOfTimestamp))
	e.Bool(9, p.IsPlaying)
	e.Bool(10, p.IsPaused)
	e.Bool(11, p.IsBuffering)
	e.Varint(12, uint64(p.PlaybackSpeed*1000))
	e.Bool(13, p.IsSystemInitiated)
	if p.Index != nil {
		e.Message(14, func(i *wire.Encoder) {
			i.Varint(1, uint64(p.Index.Page))
			i.Varint(2, uint64(p.Index.Track))
		})
	}
	e.Bool(15, p.Shuffle)
	e.Bool(16, p.RepeatContext)
	e.Bool(17, p.RepeatTrack)
}

func encodeProvidedTrack(e *wire.Encoder, t ProvidedTrack) {
	e.String(1, t.URI)
	e.String(2, t.UID)
	e.String(3, t.Provider)
}

// DecodeTransferState parses a TransferState from the bytes carried in
// a "transfer" player command's base64 data field.
func DecodeTransferState(data []byte) (TransferState, error) {
	var ts TransferState
	err := wire.NewDecoder(data).Walk(func(f wire.Field) error {
		switch f.Number {
		case 1: // current_session
			return wire.NewDecoder(f.Raw).Walk(func(inner wire.Field) error {
				switch inner.Number {
				case 1:
					ts.CurrentSession.OriginalSessionID = inner.AsString()
				case 2:
					ts.CurrentSession.CurrentUID = inner.AsString()
				case 3:
					return wire.NewDecoder(inner.Raw).Walk(func(c wire.Field) error {
						switch c.Number {
						case 1:
							ts.CurrentSession.Context.URI = c.AsString()
						case 2:
							ts.CurrentSession.Context.URL = c.AsString()
						}
						return nil
					})
				}
				return nil
			})
		case 2: // playback
			return wire.NewDecoder(f.Raw).Walk(func(inner wire.Field) error {
				switch inner.Number {
				case 1:
					ts.Playback.Timestamp = int64(inner.Varint)
				case 2:
					ts.Playback.PositionAsOfTimestamp = int64(inner.Varint)
				case 3:
					ts.Playback.IsPaused = inner.Varint != 0
				case 4:
					return wire.NewDecoder(inner.Raw).Walk(func(c wire.Field) error {
						if c.Number == 1 {
							ts.Playback.CurrentTrack.GID = append([]byte(nil), c.Raw...)
						}
						return nil
					})
				}
				return nil
			})
		case 3: // queue
			return wire.NewDecoder(f.Raw).Walk(func(inner wire.Field) error {
				switch inner.Number {
				case 1:
					var ct ContextTrack
					if err := wire.NewDecoder(inner.Raw).Walk(func(c wire.Field) error {
						switch c.Number {
						case 1:
							ct.URI = c.AsString()
						case 2:
							ct.UID = c.AsString()
						}
						return nil
					}); err != nil {
						return err
					}
					ts.Queue.Tracks = append(ts.Queue.Tracks, ct)
				case 2:
					ts.Queue.IsPlayingQueue = inner.Varint != 0
				}
				return nil
			})
		case 4: // options
			return wire.NewDecoder(f.Raw).Walk(func(inner wire.Field) error {
				switch inner.Number {
				case 1:
					ts.Options.RestorePaused = inner.AsString()
				case 2:
					ts.Options.Shuffle = inner.Varint != 0
				case 3:
					ts.Options.RepeatContext = inner.Varint != 0
				case 4:
					ts.Options.RepeatTrack = inner.Varint != 0
				case 5:
					ts.Options.PlaybackSpeed = float64(inner.Varint) / 1000
				}
				return nil
			})
		}
		return nil
	})
	return ts, err
}
