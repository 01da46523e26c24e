package context

import (
	"bytes"
	"encoding/json"

	"github.com/fliper/connectd/internal/connectpb"
	"github.com/fliper/connectd/internal/ctlerr"
)

type rawTrack struct {
	URI string `json:"uri"`
	UID string `json:"uid"`
	GID string `json:"gid"`
}

type pageStats struct {
	HasAny      bool
	First       connectpb.TrackID
	Last        connectpb.TrackID
	TrackCount  int
	NextPageURL string
}

// streamPageTracks walks one page's JSON object token by token, feeding
// every track it sees to acc until acc signals it is done accepting. The
// walk itself continues to the end of the page after that, so
// first_id/last_id/track count stay accurate for the whole page; only the
// kept subset depends on acc.
func streamPageTracks(data []byte, pageIndex int, acc *acceptor) (pageStats, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	var stats pageStats

	tok, err := dec.Token()
	if err != nil {
		return stats, ctlerr.Wrap(ctlerr.BadMessage, "decode context page", err)
	}
	if d, ok := tok.(json.Delim); !ok || d != '{' {
		return stats, ctlerr.New(ctlerr.BadMessage, "context page is not an object", nil)
	}

	stopped := false
	trackIndex := 0
	for dec.More() {
		keyTok, err := dec.Token()
		if err != nil {
			return stats, ctlerr.Wrap(ctlerr.BadMessage, "decode context page key", err)
		}
		key, _ := keyTok.(string)

		if key != "tracks" {
			var v interface{}
			if err := dec.Decode(&v); err != nil {
				return stats, ctlerr.Wrap(ctlerr.BadMessage, "decode context page field", err)
			}
			if key == "next_page_url" {
				if s, ok := v.(string); ok {
					stats.NextPageURL = s
				}
			}
			continue
		}

		arrTok, err := dec.Token()
		if err != nil {
			return stats, ctlerr.Wrap(ctlerr.BadMessage, "decode tracks array", err)
		}
		if d, ok := arrTok.(json.Delim); !ok || d != '[' {
			return stats, ctlerr.New(ctlerr.BadMessage, "tracks is not an array", nil)
		}
		for dec.More() {
			var rt rawTrack
			if err := dec.Decode(&rt); err != nil {
				return stats, ctlerr.Wrap(ctlerr.BadMessage, "decode track", err)
			}
			ct := connectpb.ContextTrack{URI: rt.URI, UID: rt.UID, GID: rt.GID, PageIndex: pageIndex, TrackIndex: trackIndex}
			trackIndex++

			id := connectpb.TrackID{UID: ct.UID, URI: ct.URI}
			if !stats.HasAny {
				stats.First = id
				stats.HasAny = true
			}
			stats.Last = id
			stats.TrackCount++

			if !stopped {
				stopped = acc.feed(ct)
			}
		}
		if _, err := dec.Token(); err != nil {
			return stats, ctlerr.Wrap(ctlerr.BadMessage, "decode tracks array end", err)
		}
	}
	return stats, nil
}

type pageStub struct {
	PageURL string `json:"page_url"`
}

type rootEnvelope struct {
	Pages []json.RawMessage `json:"pages"`
}

// parseRootContext decodes a context-resolve response. The first page is
// expected inline and is streamed into acc; any further pages are
// recorded as unresolved URL stubs, fetched lazily only once navigation
// reaches them.
func parseRootContext(data []byte, acc *acceptor) ([]*ResolvedContextPage, error) {
	var env rootEnvelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, ctlerr.Wrap(ctlerr.BadMessage, "decode root context", err)
	}
	if len(env.Pages) == 0 {
		return nil, ctlerr.New(ctlerr.BadMessage, "root context has no pages", nil)
	}

	pages := make([]*ResolvedContextPage, 0, len(env.Pages))
	for i, raw := range env.Pages {
		if i == 0 {
			stats, err := streamPageTracks(raw, 0, acc)
			if err != nil {
				return nil, err
			}
			pages = append(pages, &ResolvedContextPage{
				PageIndex:   0,
				IsInRoot:    true,
				Resolved:    true,
				NextPageURL: stats.NextPageURL,
				FirstID:     stats.First,
				LastID:      stats.Last,
				TrackCount:  stats.TrackCount,
			})
			continue
		}
		var stub pageStub
		if err := json.Unmarshal(raw, &stub); err != nil {
			return nil, ctlerr.Wrap(ctlerr.BadMessage, "decode root context page stub", err)
		}
		pages = append(pages, &ResolvedContextPage{PageIndex: i, PageURL: stub.PageURL})
	}
	return pages, nil
}
