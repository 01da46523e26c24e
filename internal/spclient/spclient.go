// Package spclient is the REST facade onto the service's spclient host:
// publishing connect state, resolving a context's track pages, and
// fetching track/episode metadata.
package spclient

import (
	"bytes"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/fliper/connectd/internal/connectpb"
	"github.com/fliper/connectd/internal/ctlerr"
	"github.com/fliper/connectd/internal/resolver"
)

// defaultCountry is stamped onto the connect-state query string; the
// daemon has no locale-resolution component of its own (out of scope),
// so every device reports the same fixed market.
const defaultCountry = "US"

// Endpoints resolves the spclient host and fresh client/access tokens;
// *resolver.Resolver satisfies this directly.
type Endpoints interface {
	APAddress(kind resolver.AddressKind) (string, error)
	AccessKey() (string, error)
	ClientToken() (string, error)
}

// HTTPDoer is the subset of *http.Client the facade needs.
type HTTPDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

// SessionID returns the dealer connection id to stamp onto
// X-Spotify-Connection-Id, or "" before a dealer session exists.
type SessionID func() string

// Client is the spclient REST facade. One Client serves one device.
type Client struct {
	endpoints Endpoints
	http      HTTPDoer
	deviceID  string
	sessionID SessionID
}

// New builds a Client for the given device, resolving hosts and tokens
// through endpoints and reading the live dealer session id from
// sessionID on every call that needs it.
func New(endpoints Endpoints, httpClient HTTPDoer, deviceID string, sessionID SessionID) *Client {
	return &Client{endpoints: endpoints, http: httpClient, deviceID: deviceID, sessionID: sessionID}
}

// PutConnectState publishes a PutStateRequest, retrying up to three
// times with exponential backoff when the request fails transiently.
func (c *Client) PutConnectState(req *connectpb.PutStateRequest) error {
	body := connectpb.EncodePutStateRequest(req)

	var lastErr error
	backoff := 200 * time.Millisecond
	for attempt := 0; attempt <= 3; attempt++ {
		if attempt > 0 {
			time.Sleep(backoff)
			backoff *= 2
		}

		addr, err := c.endpoints.APAddress(resolver.SpClient)
		if err != nil {
			return err
		}
		token, err := c.endpoints.AccessKey()
		if err != nil {
			return err
		}
		clientToken, err := c.endpoints.ClientToken()
		if err != nil {
			return err
		}

		url := fmt.Sprintf("https://%s/connect-state/v1/devices/%s?product=0&country=%s&salt=%s",
			addr, c.deviceID, defaultCountry, uuid.NewString())
		httpReq, err := http.NewRequest(http.MethodPut, url, bytes.NewReader(body))
		if err != nil {
			return ctlerr.Wrap(ctlerr.IoError, "build putConnectState request", err)
		}
		httpReq.Header.Set("Content-Type", "application/x-protobuf")
		httpReq.Header.Set("Authorization", "Bearer "+token)
		httpReq.Header.Set("Client-Token", clientToken)
		if sid := c.sessionID(); sid != "" {
			httpReq.Header.Set("X-Spotify-Connection-Id", sid)
		}

		_, lastErr = c.do(httpReq)
		if lastErr == nil {
			return nil
		}
		if !ctlerr.Is(lastErr, ctlerr.TryAgain) {
			return lastErr
		}
	}
	return lastErr
}

// GetRootContext resolves a context URI to its first page of tracks and
// any further page stubs. It satisfies context.Fetcher.
func (c *Client) GetRootContext(contextURI string) ([]byte, error) {
	addr, err := c.endpoints.APAddress(resolver.SpClient)
	if err != nil {
		return nil, err
	}
	url := fmt.Sprintf("https://%s/context-resolve/v1/%s", addr, contextURI)
	return c.authedGET(url)
}

// GetPage fetches a context page by its absolute URL. It satisfies
// context.Fetcher.
func (c *Client) GetPage(pageURL string) ([]byte, error) {
	return c.authedGET(pageURL)
}

// TrackMetadata fetches a track's metadata by hex-encoded GID.
func (c *Client) TrackMetadata(hexGID string) ([]byte, error) {
	addr, err := c.endpoints.APAddress(resolver.SpClient)
	if err != nil {
		return nil, err
	}
	url := fmt.Sprintf("https://%s/metadata/4/track/%s", addr, hexGID)
	return c.authedGET(url)
}

// EpisodeMetadata fetches an episode's metadata by hex-encoded GID.
func (c *Client) EpisodeMetadata(hexGID string) ([]byte, error) {
	addr, err := c.endpoints.APAddress(resolver.SpClient)
	if err != nil {
		return nil, err
	}
	url := fmt.Sprintf("https://%s/metadata/4/episode/%s", addr, hexGID)
	return c.authedGET(url)
}

func (c *Client) authedGET(url string) ([]byte, error) {
	token, err := c.endpoints.AccessKey()
	if err != nil {
		return nil, err
	}
	clientToken, err := c.endpoints.ClientToken()
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequest(http.MethodGet, url, nil)
	if err != nil {
		return nil, ctlerr.Wrap(ctlerr.IoError, "build spclient request", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Client-Token", clientToken)
	return c.do(req)
}

func (c *Client) do(req *http.Request) ([]byte, error) {
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, ctlerr.Wrap(ctlerr.TryAgain, "spclient request failed", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, ctlerr.Wrap(ctlerr.TryAgain, "read spclient response", err)
	}
	if resp.StatusCode >= 500 {
		return nil, ctlerr.New(ctlerr.TryAgain, fmt.Sprintf("spclient returned status %d", resp.StatusCode), nil)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, ctlerr.New(ctlerr.BadMessage, fmt.Sprintf("spclient returned status %d", resp.StatusCode), nil)
	}
	return body, nil
}
