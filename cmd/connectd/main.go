// Command connectd runs a single Spotify Connect speaker: it serves the
// zeroconf hand-off endpoints an embedding application exposes on the
// LAN and drives the control-plane session once a user authenticates.
package main

import (
	"context"
	"flag"
	"net"
	"net/http"
	"os"
	"os/signal"
	"time"

	"github.com/rs/zerolog"
	zlog "github.com/rs/zerolog/log"

	"github.com/fliper/connectd/internal/session"
)

func main() {
	deviceName := flag.String("device-name", "connectd", "name this speaker advertises to Spotify apps")
	listenAddr := flag.String("listen", ":5030", "address the zeroconf handler listens on")
	verbose := flag.Bool("verbose", false, "enable debug logging")
	flag.Parse()

	if *verbose {
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	}

	transport := http.DefaultTransport.(*http.Transport).Clone()
	transport.DialContext = (&net.Dialer{Timeout: 3 * time.Second, KeepAlive: 30 * time.Second}).DialContext
	sess, err := session.New(*deviceName, &http.Client{Transport: transport})
	if err != nil {
		zlog.Fatal().Msgf("failed to build session: %v", err)
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/spotify_handler", zeroconfHandler(sess))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	go func() {
		zlog.Info().Msgf("zeroconf handler listening: addr=%s", *listenAddr)
		if err := http.ListenAndServe(*listenAddr, mux); err != nil && err != http.ErrServerClosed {
			zlog.Fatal().Msgf("zeroconf handler failed: %v", err)
		}
	}()

	if err := sess.Start(ctx); err != nil {
		zlog.Fatal().Msgf("session failed: %v", err)
	}
}

// zeroconfHandler serves the §6 external HTTP interface: getInfo and
// addUser, both backed by the session's credential store.
func zeroconfHandler(sess *session.Session) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Query().Get("action") {
		case "getInfo":
			handleGetInfo(sess, w)
		case "addUser":
			handleAddUser(sess, w, r)
		default:
			http.Error(w, "unknown action", http.StatusBadRequest)
		}
	}
}

func handleGetInfo(sess *session.Session, w http.ResponseWriter) {
	body, err := sess.Store().BuildInfoResponse()
	if err != nil {
		zlog.Error().Msgf("failed to build getInfo response: %v", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.Write(body)
}

func handleAddUser(sess *session.Session, w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		http.Error(w, "malformed form body", http.StatusBadRequest)
		return
	}

	if err := sess.Store().AuthenticateZeroconf(r.Form.Encode()); err != nil {
		zlog.Error().Msgf("zeroconf authentication failed: %v", err)
		http.Error(w, "authentication failed", http.StatusUnauthorized)
		return
	}

	handleGetInfo(sess, w)
}
