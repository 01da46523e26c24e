package spclient

import (
	"io"
	"net/http"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fliper/connectd/internal/connectpb"
	"github.com/fliper/connectd/internal/ctlerr"
	"github.com/fliper/connectd/internal/resolver"
)

type fakeEndpoints struct {
	addr        string
	token       string
	clientToken string
	err         error
}

func (f *fakeEndpoints) APAddress(kind resolver.AddressKind) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	return f.addr, nil
}

func (f *fakeEndpoints) AccessKey() (string, error) {
	if f.err != nil {
		return "", f.err
	}
	return f.token, nil
}

func (f *fakeEndpoints) ClientToken() (string, error) {
	if f.err != nil {
		return "", f.err
	}
	return f.clientToken, nil
}

type fakeHTTP struct {
	calls    int32
	respond  func(req *http.Request) (*http.Response, error)
}

func (f *fakeHTTP) Do(req *http.Request) (*http.Response, error) {
	atomic.AddInt32(&f.calls, 1)
	return f.respond(req)
}

func textResponse(status int, body string) *http.Response {
	return &http.Response{StatusCode: status, Body: io.NopCloser(strings.NewReader(body))}
}

func TestPutConnectStateSendsAuthenticatedProtobufPUT(t *testing.T) {
	var capturedReq *http.Request
	http := &fakeHTTP{respond: func(req *http.Request) (*http.Response, error) {
		capturedReq = req
		return textResponse(200, ""), nil
	}}
	endpoints := &fakeEndpoints{addr: "spclient.example:443", token: "tok-1", clientToken: "ctok-1"}
	c := New(endpoints, http, "dev-1", func() string { return "conn-1" })

	device := connectpb.NewDeviceInfo("kitchen", "dev-1", "client-1")
	req := connectpb.NewPutStateRequest(device)

	require.NoError(t, c.PutConnectState(req))
	require.EqualValues(t, 1, http.calls)
	require.NotNil(t, capturedReq)
	assert.Equal(t, "/connect-state/v1/devices/dev-1", capturedReq.URL.Path)
	assert.Equal(t, "spclient.example:443", capturedReq.URL.Host)
	assert.Equal(t, "0", capturedReq.URL.Query().Get("product"))
	assert.Equal(t, "US", capturedReq.URL.Query().Get("country"))
	assert.NotEmpty(t, capturedReq.URL.Query().Get("salt"))
	assert.Equal(t, "application/x-protobuf", capturedReq.Header.Get("Content-Type"))
	assert.Equal(t, "Bearer tok-1", capturedReq.Header.Get("Authorization"))
	assert.Equal(t, "ctok-1", capturedReq.Header.Get("Client-Token"))
	assert.Equal(t, "conn-1", capturedReq.Header.Get("X-Spotify-Connection-Id"))
}

func TestPutConnectStateRetriesOnTransientFailure(t *testing.T) {
	httpClient := &fakeHTTP{}
	httpClient.respond = func(req *http.Request) (*http.Response, error) {
		if atomic.LoadInt32(&httpClient.calls) < 2 {
			return textResponse(503, ""), nil
		}
		return textResponse(200, ""), nil
	}
	endpoints := &fakeEndpoints{addr: "spclient.example:443", token: "tok-1"}
	c := New(endpoints, httpClient, "dev-1", func() string { return "" })

	device := connectpb.NewDeviceInfo("kitchen", "dev-1", "client-1")
	req := connectpb.NewPutStateRequest(device)

	require.NoError(t, c.PutConnectState(req))
	assert.GreaterOrEqual(t, httpClient.calls, int32(2))
}

func TestGetRootContextBuildsContextResolveURL(t *testing.T) {
	var capturedURL string
	httpClient := &fakeHTTP{respond: func(req *http.Request) (*http.Response, error) {
		capturedURL = req.URL.String()
		return textResponse(200, `{"pages":[]}`), nil
	}}
	endpoints := &fakeEndpoints{addr: "spclient.example:443", token: "tok-1"}
	c := New(endpoints, httpClient, "dev-1", func() string { return "" })

	body, err := c.GetRootContext("spotify:playlist:abc")
	require.NoError(t, err)
	assert.Equal(t, `{"pages":[]}`, string(body))
	assert.Equal(t, "https://spclient.example:443/context-resolve/v1/spotify:playlist:abc", capturedURL)
}

func TestNon200ResponseIsBadMessage(t *testing.T) {
	httpClient := &fakeHTTP{respond: func(req *http.Request) (*http.Response, error) {
		return textResponse(404, "not found"), nil
	}}
	endpoints := &fakeEndpoints{addr: "spclient.example:443", token: "tok-1"}
	c := New(endpoints, httpClient, "dev-1", func() string { return "" })

	_, err := c.TrackMetadata("deadbeef")
	assert.Error(t, err)
	assert.True(t, ctlerr.Is(err, ctlerr.BadMessage))
}
