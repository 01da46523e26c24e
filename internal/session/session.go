// Package session is the composition root: it wires the credential
// store, endpoint resolver, SpClient, context resolver, track provider,
// connect-state handler, dealer connection, and event loop into one
// running device, and dispatches dealer frames onto the state handler.
package session

import (
	"context"
	"strings"
	"sync"
	"time"

	zlog "github.com/rs/zerolog/log"

	"github.com/fliper/connectd/internal/blob"
	"github.com/fliper/connectd/internal/connectpb"
	resolvectx "github.com/fliper/connectd/internal/context"
	"github.com/fliper/connectd/internal/dealer"
	"github.com/fliper/connectd/internal/events"
	"github.com/fliper/connectd/internal/resolver"
	"github.com/fliper/connectd/internal/spclient"
	"github.com/fliper/connectd/internal/state"
	"github.com/fliper/connectd/internal/track"
)

const (
	eventQueueSize        = 64
	maxEncodedTracksWindow = 50
	windowUpdateThreshold  = 10
	pusherConnectionPrefix = "hm://pusher/v1/connections"
	playerCommandIdent     = "hm://connect-state/v1/player/command"
)

// Session owns every long-lived component for one device identity.
type Session struct {
	store    *blob.Store
	resolver *resolver.Resolver
	spClient *spclient.Client
	provider *track.Provider
	state    *state.Handler
	dealer   *dealer.Client
	loop     *events.Loop

	connMu       sync.Mutex
	connectionID string
}

// Store returns the credential store, so the embedding application's
// zeroconf HTTP handlers can read/write it directly.
func (s *Session) Store() *blob.Store { return s.store }

// New builds a Session for deviceName, talking to Spotify's services
// through httpClient. Nothing is connected yet; call Start to run it.
func New(deviceName string, httpClient resolver.HTTPDoer) (*Session, error) {
	store, err := blob.NewStore(deviceName)
	if err != nil {
		return nil, err
	}

	res := resolver.New(store, httpClient)
	loop := events.New(eventQueueSize)

	s := &Session{
		store:    store,
		resolver: res,
		loop:     loop,
	}

	spClient := spclient.New(res, httpClient, store.DeviceID(), s.currentConnectionID)
	ctxResolver := resolvectx.New(spClient, maxEncodedTracksWindow, windowUpdateThreshold)
	provider := track.New(ctxResolver)
	device := connectpb.NewDeviceInfo(deviceName, store.DeviceID(), store.DeviceID())
	stateHandler := state.New(spClient, provider, device, nowMillis)

	s.spClient = spClient
	s.provider = provider
	s.state = stateHandler
	s.dealer = dealer.New(loop, dealer.DialGorilla)

	return s, nil
}

func nowMillis() int64 {
	return time.Now().UnixMilli()
}

func (s *Session) currentConnectionID() string {
	s.connMu.Lock()
	defer s.connMu.Unlock()
	return s.connectionID
}

func (s *Session) setConnectionID(id string) {
	s.connMu.Lock()
	s.connectionID = id
	s.connMu.Unlock()
}

// Start registers the loop's event handlers, opens the dealer
// connection, and drains the loop until ctx is canceled.
func (s *Session) Start(ctx context.Context) error {
	s.loop.RegisterHandler(events.DealerMessage, s.handleDealerMessage)
	s.loop.RegisterHandler(events.DealerRequest, s.handleDealerRequest)

	if err := s.dealer.Connect(s.resolver); err != nil {
		return err
	}

	s.loop.Run(ctx)
	return nil
}

func (s *Session) handleDealerMessage(ev events.Event) {
	f, ok := ev.Payload.(dealer.Frame)
	if !ok {
		return
	}
	if !strings.HasPrefix(f.URI, pusherConnectionPrefix) {
		zlog.Info().Msgf("dropping dealer message: uri=%s", f.URI)
		return
	}

	s.setConnectionID(f.Headers["Spotify-Connection-Id"])
	if err := s.state.PutState(connectpb.NewConnection); err != nil {
		zlog.Error().Msgf("failed to publish state on new connection: %v", err)
	}
}

func (s *Session) handleDealerRequest(ev events.Event) {
	f, ok := ev.Payload.(dealer.Frame)
	if !ok {
		return
	}
	if f.MessageIdent != playerCommandIdent {
		zlog.Info().Msgf("dropping dealer request: message_ident=%s", f.MessageIdent)
		return
	}

	err := s.state.HandlePlayerCommand(f.Payload)
	if err != nil {
		zlog.Error().Msgf("player command failed: %v", err)
	}
	if replyErr := s.dealer.ReplyToRequest(err == nil, f.Key); replyErr != nil {
		zlog.Error().Msgf("failed to reply to dealer request: %v", replyErr)
	}
}
