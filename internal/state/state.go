// Package state owns the single outward PutStateRequest, dispatching
// dealer player commands against it and publishing it through SpClient.
package state

import (
	"encoding/base64"
	"encoding/json"

	"github.com/google/uuid"

	"github.com/fliper/connectd/internal/connectpb"
	"github.com/fliper/connectd/internal/ctlerr"
	"github.com/fliper/connectd/internal/spotifyid"
)

const sessionIDAlphabet = "0123456789abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ"
const sessionIDLength = 16

// Putter publishes an encoded PutStateRequest; *spclient.Client satisfies it.
type Putter interface {
	PutConnectState(req *connectpb.PutStateRequest) error
}

// TrackProvider is the subset of *track.Provider the handler drives.
type TrackProvider interface {
	SetQueue(tracks []connectpb.ContextTrack, isPlayingQueue bool)
	LoadTrackAndContext(uid, uri, contextURL string) error
	CurrentTrack() (connectpb.ProvidedTrack, bool)
	PrevTracks() []connectpb.ProvidedTrack
	NextTracks() []connectpb.ProvidedTrack
	SkipToNextTrack() error
	CurrentContextIndex() (connectpb.ContextIndex, bool)
}

// Clock returns the current time in milliseconds since the epoch.
type Clock func() int64

// Handler owns the device's single PutStateRequest and mutates it in
// response to dealer player commands.
type Handler struct {
	client   Putter
	provider TrackProvider
	req      *connectpb.PutStateRequest
	now      Clock
	newID    func() string
}

// New builds a Handler for device, publishing through client and driving
// provider. now supplies the millisecond clock PutState stamps requests with.
func New(client Putter, provider TrackProvider, device connectpb.DeviceInfo, now Clock) *Handler {
	return &Handler{
		client:   client,
		provider: provider,
		req:      connectpb.NewPutStateRequest(device),
		now:      now,
		newID:    randomSessionID,
	}
}

func randomSessionID() string {
	entropy := uuid.New()
	id := make([]byte, sessionIDLength)
	for i := range id {
		id[i] = sessionIDAlphabet[int(entropy[i%len(entropy)])%len(sessionIDAlphabet)]
	}
	return string(id)
}

type commandEnvelope struct {
	MessageID      uint32          `json:"message_id"`
	SentByDeviceID string          `json:"sent_by_device_id"`
	Command        json.RawMessage `json:"command"`
}

type playerCommand struct {
	Endpoint string `json:"endpoint"`
	Data     string `json:"data"`
	Options  struct {
		RestorePaused string `json:"restore_paused"`
	} `json:"options"`
}

// HandlePlayerCommand dispatches a dealer request frame's "payload" object
// (the one carrying message_id/sent_by_device_id/command) for the
// "hm://connect-state/v1/player/command" message_ident.
func (h *Handler) HandlePlayerCommand(payload []byte) error {
	var env commandEnvelope
	if err := json.Unmarshal(payload, &env); err != nil {
		return ctlerr.Wrap(ctlerr.BadMessage, "decode player command envelope", err)
	}
	h.req.LastCommandMessageID = env.MessageID
	h.req.LastCommandSentByDeviceID = env.SentByDeviceID

	var cmd playerCommand
	if err := json.Unmarshal(env.Command, &cmd); err != nil {
		return ctlerr.Wrap(ctlerr.BadMessage, "decode player command body", err)
	}

	switch cmd.Endpoint {
	case "transfer":
		data, err := base64.StdEncoding.DecodeString(cmd.Data)
		if err != nil {
			return ctlerr.Wrap(ctlerr.BadMessage, "base64 decode transfer data", err)
		}
		ts, err := connectpb.DecodeTransferState(data)
		if err != nil {
			return ctlerr.Wrap(ctlerr.BadMessage, "decode transfer state", err)
		}
		return h.applyTransfer(ts, cmd.Options.RestorePaused)
	case "skip_next":
		if err := h.provider.SkipToNextTrack(); err != nil {
			return err
		}
		h.refreshTrackAndIndex()
		h.req.PlayerState.PositionAsOfTimestamp = 0
		h.req.PlayerState.Timestamp = h.now()
		return h.PutState(connectpb.PlayerStateChanged)
	default:
		return ctlerr.New(ctlerr.NotSupported, "unsupported player command endpoint: "+cmd.Endpoint, nil)
	}
}

// applyTransfer implements the ten-step transfer-command algorithm.
func (h *Handler) applyTransfer(ts connectpb.TransferState, restorePaused string) error {
	ps := &h.req.PlayerState

	h.req.IsActive = true

	sessionID := ts.CurrentSession.OriginalSessionID
	if sessionID == "" {
		sessionID = h.newID()
	}
	ps.SessionID = sessionID

	ps.IsPlaying = true
	ps.IsBuffering = false
	ps.Timestamp = ts.Playback.Timestamp
	ps.PositionAsOfTimestamp = ts.Playback.PositionAsOfTimestamp

	ps.IsPaused = restorePaused == "restore" && ts.Playback.IsPaused

	ps.ContextURI = ts.CurrentSession.Context.URI
	ps.ContextURL = ts.CurrentSession.Context.URL
	ps.Shuffle = ts.Options.Shuffle
	ps.RepeatContext = ts.Options.RepeatContext
	ps.RepeatTrack = ts.Options.RepeatTrack
	ps.PlaybackSpeed = ts.Options.PlaybackSpeed

	ps.Track.UID = ts.CurrentSession.CurrentUID

	h.req.StartedPlayingAt = ts.Playback.Timestamp
	h.req.HasBeenPlayingForMs = 0

	trackID, err := spotifyid.FromGID(spotifyid.Track, ts.Playback.CurrentTrack.GID)
	if err != nil {
		return err
	}

	h.provider.SetQueue(ts.Queue.Tracks, ts.Queue.IsPlayingQueue)
	if err := h.provider.LoadTrackAndContext(ts.CurrentSession.CurrentUID, trackID.URI, ps.ContextURL); err != nil {
		return err
	}
	h.refreshTrackAndIndex()

	return h.PutState(connectpb.PlayerStateChanged)
}

func (h *Handler) refreshTrackAndIndex() {
	ps := &h.req.PlayerState
	if track, ok := h.provider.CurrentTrack(); ok {
		ps.Track = track
	}
	ps.PrevTracks = h.provider.PrevTracks()
	ps.NextTracks = h.provider.NextTracks()
	if idx, ok := h.provider.CurrentContextIndex(); ok {
		ps.Index = &idx
	} else {
		ps.Index = nil
	}
}

// PutState stamps and publishes the current PutStateRequest.
func (h *Handler) PutState(reason connectpb.PutStateReason) error {
	h.req.ClientSideTimestamp = h.now()
	h.req.PutStateReason = reason
	return h.client.PutConnectState(h.req)
}
