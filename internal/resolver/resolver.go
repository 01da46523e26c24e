// Package resolver resolves access-point/dealer/spclient host lists and
// mints and refreshes the client-token and access-token used to
// authenticate every outbound request.
package resolver

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/fliper/connectd/internal/ctlerr"
	"github.com/fliper/connectd/internal/wire"
)

const (
	apResolveURL    = "https://apresolve.spotify.com/?type=spclient&type=dealer&type=accesspoint"
	clientTokenURL  = "https://clienttoken.spotify.com/v1/clienttoken"
	login5URL       = "https://login5.spotify.com/v3/login"
	spotifyClientID = "65b708073fc0480ea92a077233ca87bd"
	addressTTL      = time.Hour
)

// AddressKind identifies which of the three resolved host lists a caller
// wants the front entry of.
type AddressKind int

const (
	AccessPoint AddressKind = iota
	Dealer
	SpClient
)

// Credentials is the subset of the credential blob a resolver needs: the
// identity to mint tokens against and whether a blob has been decoded
// yet at all.
type Credentials interface {
	Authenticated() bool
	DeviceID() string
	Username() string
	AuthData() []byte
}

// HTTPDoer is satisfied by *http.Client; tests substitute a stub.
type HTTPDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

// Resolver caches endpoint lists and bearer tokens, refreshing each
// lazily on expiry. All public methods are safe for concurrent use.
type Resolver struct {
	mu    sync.Mutex
	http  HTTPDoer
	now   func() time.Time
	creds Credentials

	apAddresses      []string
	dealerAddresses  []string
	spClientAddresses []string
	addressesExpire  time.Time

	clientToken       string
	clientTokenExpire time.Time

	accessToken       string
	accessKeyExpire   time.Time

	accessKeySF singleflight.Group
}

// New builds a Resolver with all caches expired, forcing a refresh on
// first use.
func New(creds Credentials, httpClient HTTPDoer) *Resolver {
	return &Resolver{
		http:  httpClient,
		now:   time.Now,
		creds: creds,
	}
}

// APAddress returns the first entry of the requested host list,
// refetching all three lists first if the cache has expired.
func (r *Resolver) APAddress(kind AddressKind) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.now().After(r.addressesExpire) {
		if err := r.updateAddressesLocked(); err != nil {
			return "", err
		}
	}

	switch kind {
	case AccessPoint:
		return firstOrEmpty(r.apAddresses), nil
	case Dealer:
		return firstOrEmpty(r.dealerAddresses), nil
	case SpClient:
		return firstOrEmpty(r.spClientAddresses), nil
	default:
		return "", ctlerr.New(ctlerr.InvalidArgument, "unknown address kind", nil)
	}
}

func firstOrEmpty(list []string) string {
	if len(list) == 0 {
		return ""
	}
	return list[0]
}

// UpdateAddresses forces an immediate refetch of all three host lists.
func (r *Resolver) UpdateAddresses() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.updateAddressesLocked()
}

func (r *Resolver) updateAddressesLocked() error {
	body, err := r.doGET(apResolveURL, nil)
	if err != nil {
		return err
	}

	var parsed struct {
		AccessPoint []string `json:"accesspoint"`
		Dealer      []string `json:"dealer"`
		SpClient    []string `json:"spclient"`
	}
	if err := json.Unmarshal(body, &parsed); err != nil {
		return ctlerr.Wrap(ctlerr.BadMessage, "decode apresolve response", err)
	}
	if len(parsed.AccessPoint) == 0 || len(parsed.Dealer) == 0 || len(parsed.SpClient) == 0 {
		return ctlerr.New(ctlerr.BadMessage, "apresolve response missing an address list", nil)
	}

	r.apAddresses = parsed.AccessPoint
	r.dealerAddresses = parsed.Dealer
	r.spClientAddresses = parsed.SpClient
	r.addressesExpire = r.now().Add(addressTTL)
	return nil
}

// ClientToken returns the cached client-token, refreshing it first if
// expired.
func (r *Resolver) ClientToken() (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.ensureClientTokenLocked(); err != nil {
		return "", err
	}
	return r.clientToken, nil
}

func (r *Resolver) ensureClientTokenLocked() error {
	if r.now().Before(r.clientTokenExpire) {
		return nil
	}
	return r.updateClientTokenLocked()
}

func (r *Resolver) updateClientTokenLocked() error {
	req := wire.NewEncoder()
	req.Message(1, func(e *wire.Encoder) {
		e.String(1, spotifyClientID)
		e.String(2, r.creds.DeviceID())
	})

	body, err := r.doPOST(clientTokenURL, nil, req.Bytes())
	if err != nil {
		return err
	}

	var token string
	var expiresAfter uint64
	err = wire.NewDecoder(body).Walk(func(f wire.Field) error {
		if f.Number != 1 {
			return nil
		}
		return wire.NewDecoder(f.Raw).Walk(func(inner wire.Field) error {
			switch inner.Number {
			case 1:
				token = inner.AsString()
			case 2:
				expiresAfter = inner.Varint
			}
			return nil
		})
	})
	if err != nil {
		return err
	}
	if token == "" {
		return ctlerr.New(ctlerr.BadMessage, "clienttoken response missing granted token", nil)
	}

	r.clientToken = token
	r.clientTokenExpire = r.now().Add(time.Duration(expiresAfter) * time.Second)
	return nil
}


// AccessKey returns the cached access-token, refreshing it first if
// expired. Concurrent callers observing an expired token collapse onto a
// single in-flight refresh and all receive its result.
func (r *Resolver) AccessKey() (string, error) {
	r.mu.Lock()
	if r.now().Before(r.accessKeyExpire) {
		token := r.accessToken
		r.mu.Unlock()
		return token, nil
	}
	r.mu.Unlock()

	v, err, _ := r.accessKeySF.Do("access_key", func() (interface{}, error) {
		r.mu.Lock()
		defer r.mu.Unlock()
		if r.now().Before(r.accessKeyExpire) {
			return r.accessToken, nil
		}
		if err := r.updateAccessKeyLocked(); err != nil {
			return "", err
		}
		return r.accessToken, nil
	})
	if err != nil {
		return "", err
	}
	return v.(string), nil
}

func (r *Resolver) updateAccessKeyLocked() error {
	if !r.creds.Authenticated() {
		return ctlerr.New(ctlerr.NotPermitted, "cannot mint access key without an authenticated session", nil)
	}
	if err := r.ensureClientTokenLocked(); err != nil {
		return err
	}

	req := wire.NewEncoder()
	req.Message(1, func(e *wire.Encoder) { // client_info
		e.String(1, spotifyClientID)
		e.String(2, r.creds.DeviceID())
	})
	req.Message(2, func(e *wire.Encoder) { // login_method.stored_credential
		e.String(1, r.creds.Username())
		e.ByteField(2, r.creds.AuthData())
	})

	headers := map[string]string{"Client-Token": r.clientToken}
	body, err := r.doPOST(login5URL, headers, req.Bytes())
	if err != nil {
		return err
	}

	var accessToken string
	var expiresIn uint64
	var loginError uint64
	err = wire.NewDecoder(body).Walk(func(f wire.Field) error {
		switch f.Number {
		case 1: // ok
			return wire.NewDecoder(f.Raw).Walk(func(inner wire.Field) error {
				switch inner.Number {
				case 1:
					accessToken = inner.AsString()
				case 2:
					expiresIn = inner.Varint
				}
				return nil
			})
		case 2: // error
			loginError = f.Varint
		}
		return nil
	})
	if err != nil {
		return err
	}
	if accessToken == "" {
		return ctlerr.New(ctlerr.BadMessage, fmt.Sprintf("login5 returned no access token (error %d)", loginError), nil)
	}

	r.accessToken = accessToken
	r.accessKeyExpire = r.now().Add(time.Duration(expiresIn) * time.Second)
	return nil
}

func (r *Resolver) doGET(url string, headers map[string]string) ([]byte, error) {
	req, err := http.NewRequest(http.MethodGet, url, nil)
	if err != nil {
		return nil, ctlerr.Wrap(ctlerr.IoError, "build request", err)
	}
	return r.do(req, headers)
}

func (r *Resolver) doPOST(url string, headers map[string]string, body []byte) ([]byte, error) {
	req, err := http.NewRequest(http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, ctlerr.Wrap(ctlerr.IoError, "build request", err)
	}
	req.Header.Set("Content-Type", "application/x-protobuf")
	return r.do(req, headers)
}

func (r *Resolver) do(req *http.Request, headers map[string]string) ([]byte, error) {
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := r.http.Do(req)
	if err != nil {
		return nil, ctlerr.Wrap(ctlerr.TryAgain, "resolver request failed", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, ctlerr.Wrap(ctlerr.TryAgain, "read resolver response", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, ctlerr.New(ctlerr.TryAgain, fmt.Sprintf("resolver request returned status %d", resp.StatusCode), nil)
	}
	return data, nil
}
