package context

import (
	"strings"

	"github.com/fliper/connectd/internal/connectpb"
	"github.com/fliper/connectd/internal/ctlerr"
)

// Resolver locates a current track inside a remote context and keeps a
// bounded window of tracks materialized around it, fetching additional
// pages on demand as Next/Previous walk toward the edge of what is
// cached. A Resolver is not safe for concurrent use; callers serialize
// access the way the rest of the control plane serializes session state.
type Resolver struct {
	fetcher         Fetcher
	maxWindow       int
	updateThreshold int

	pages map[int]*ResolvedContextPage

	cache      []connectpb.ContextTrack
	current    int
	hasCurrent bool

	target  connectpb.TrackID
	rootURL string
}

// New builds a Resolver. maxWindow bounds how many tracks are held
// materialized at once; updateThreshold is how close to either edge of
// the window Next/Previous must come before another page is fetched.
func New(fetcher Fetcher, maxWindow, updateThreshold int) *Resolver {
	return &Resolver{fetcher: fetcher, maxWindow: maxWindow, updateThreshold: updateThreshold, pages: map[int]*ResolvedContextPage{}}
}

// UpdateContext resets the resolver onto a new context, targeting the
// track identified by (uid, uri) as the current track. Nothing is
// fetched until the current track or the track window is asked for.
func (r *Resolver) UpdateContext(contextURI, currentUID, currentURI string) {
	r.pages = map[int]*ResolvedContextPage{}
	r.cache = nil
	r.current = 0
	r.hasCurrent = false
	r.rootURL = strings.TrimPrefix(contextURI, "context://")
	r.target = connectpb.TrackID{UID: currentUID, URI: currentURI}
}

// CurrentTrack returns the track the resolver is positioned on,
// resolving the context from scratch on first use.
func (r *Resolver) CurrentTrack() (connectpb.ContextTrack, error) {
	if !r.hasCurrent {
		if err := r.ensureContextTracks(); err != nil {
			return connectpb.ContextTrack{}, err
		}
	}
	return r.cache[r.current], nil
}

// PreviousTracks returns the cached window before the current track,
// oldest first.
func (r *Resolver) PreviousTracks() []connectpb.ContextTrack {
	if !r.hasCurrent {
		return nil
	}
	out := make([]connectpb.ContextTrack, r.current)
	copy(out, r.cache[:r.current])
	return out
}

// NextTracks returns the cached window after the current track.
func (r *Resolver) NextTracks() []connectpb.ContextTrack {
	if !r.hasCurrent {
		return nil
	}
	out := make([]connectpb.ContextTrack, len(r.cache)-r.current-1)
	copy(out, r.cache[r.current+1:])
	return out
}

// CurrentContextIndex reports the page/track coordinates of the current
// track, if one has been resolved.
func (r *Resolver) CurrentContextIndex() (connectpb.ContextIndex, bool) {
	if !r.hasCurrent {
		return connectpb.ContextIndex{}, false
	}
	t := r.cache[r.current]
	return connectpb.ContextIndex{Page: int32(t.PageIndex), Track: int32(t.TrackIndex)}, true
}

// Next advances to the following track, fetching another page first if
// the cached window is close to running out on that side.
func (r *Resolver) Next() error {
	if !r.hasCurrent {
		if err := r.ensureContextTracks(); err != nil {
			return err
		}
	}
	var extendErr error
	if len(r.cache)-1-r.current <= r.updateThreshold {
		extendErr = r.extendForward()
	}
	if r.current+1 >= len(r.cache) {
		if extendErr != nil {
			return extendErr
		}
		return ctlerr.New(ctlerr.NoMessage, "no next track in context", nil)
	}
	r.current++
	r.trimWindow()
	return nil
}

// Previous moves to the preceding track, fetching another page first if
// the cached window is close to running out on that side.
func (r *Resolver) Previous() error {
	if !r.hasCurrent {
		if err := r.ensureContextTracks(); err != nil {
			return err
		}
	}
	var extendErr error
	if r.current <= r.updateThreshold {
		extendErr = r.extendBackward()
	}
	if r.current == 0 {
		if extendErr != nil {
			return extendErr
		}
		return ctlerr.New(ctlerr.NoMessage, "no previous track in context", nil)
	}
	r.current--
	r.trimWindow()
	return nil
}

// SkipForward is not offered by a remote context.
func (r *Resolver) SkipForward() error {
	return ctlerr.New(ctlerr.NotSupported, "skip_forward is not supported on a remote context", nil)
}

// SkipBackward is not offered by a remote context.
func (r *Resolver) SkipBackward() error {
	return ctlerr.New(ctlerr.NotSupported, "skip_backward is not supported on a remote context", nil)
}

// ensureContextTracks resolves the context's root and walks forward
// through its known pages, streaming every track it sees into an
// AroundID acceptor, until the target track is located or every known
// page has been exhausted.
func (r *Resolver) ensureContextTracks() error {
	maxPrevious := r.maxWindow / 2
	maxNext := r.maxWindow - maxPrevious
	acc := newAroundIDAcceptor(r.target, maxPrevious, maxNext)

	data, err := r.fetcher.GetRootContext(r.rootURL)
	if err != nil {
		return ctlerr.Wrap(ctlerr.TryAgain, "fetch root context", err)
	}
	pages, err := parseRootContext(data, acc)
	if err != nil {
		return err
	}
	for _, p := range pages {
		r.pages[p.PageIndex] = p
	}

	pageIdx := 0
	for !acc.found {
		next, ok := r.pages[pageIdx+1]
		if !ok {
			break
		}
		pageIdx++
		if err := r.resolvePage(next, acc); err != nil {
			return err
		}
	}

	if !acc.found {
		return ctlerr.New(ctlerr.InvalidArgument, "current track not found in context", nil)
	}

	r.cache = acc.buf
	r.current = acc.foundIdx
	r.hasCurrent = true
	r.recordWindowFromBuf(r.cache)
	return nil
}

// resolvePage fetches a page known so far only as a URL stub, streams
// its tracks into acc, and records what was observed, chaining in a new
// stub for its successor page if the response carries one.
func (r *Resolver) resolvePage(page *ResolvedContextPage, acc *acceptor) error {
	data, err := r.fetcher.GetPage(page.PageURL)
	if err != nil {
		return ctlerr.Wrap(ctlerr.TryAgain, "fetch context page", err)
	}
	stats, err := streamPageTracks(data, page.PageIndex, acc)
	if err != nil {
		return err
	}
	page.Resolved = true
	page.FirstID = stats.First
	page.LastID = stats.Last
	page.TrackCount = stats.TrackCount
	page.NextPageURL = stats.NextPageURL
	if stats.NextPageURL != "" {
		if _, ok := r.pages[page.PageIndex+1]; !ok {
			r.pages[page.PageIndex+1] = &ResolvedContextPage{PageIndex: page.PageIndex + 1, PageURL: stats.NextPageURL}
		}
	}
	return nil
}

// refetchPage re-streams a page already known, through a fresh acceptor,
// in order to pull more of it into the window. A page that came from
// the root response has no URL of its own and must be re-resolved from
// the context root; any other page is fetched by its own URL.
func (r *Resolver) refetchPage(page *ResolvedContextPage, acc *acceptor) error {
	if page.IsInRoot {
		data, err := r.fetcher.GetRootContext(r.rootURL)
		if err != nil {
			return ctlerr.Wrap(ctlerr.TryAgain, "re-resolve root context", err)
		}
		pages, err := parseRootContext(data, acc)
		if err != nil {
			return err
		}
		if len(pages) > 0 {
			page.FirstID = pages[0].FirstID
			page.LastID = pages[0].LastID
			page.TrackCount = pages[0].TrackCount
			page.NextPageURL = pages[0].NextPageURL
			if pages[0].NextPageURL != "" {
				if _, ok := r.pages[page.PageIndex+1]; !ok {
					r.pages[page.PageIndex+1] = &ResolvedContextPage{PageIndex: page.PageIndex + 1, PageURL: pages[0].NextPageURL}
				}
			}
		}
		return nil
	}
	return r.resolvePage(page, acc)
}

// extendForward pulls more tracks in after the cached tail, moving onto
// the following page first if the tail has already reached the end of
// its own page.
func (r *Resolver) extendForward() error {
	if len(r.cache) == 0 {
		return ctlerr.New(ctlerr.NoMessage, "no context resolved", nil)
	}
	tail := r.cache[len(r.cache)-1]
	p, ok := r.pages[tail.PageIndex]
	if !ok {
		return ctlerr.New(ctlerr.IoError, "unknown page for cached track", nil)
	}

	target := p
	tailID := connectpb.TrackID{UID: tail.UID, URI: tail.URI}
	atPageEnd := (p.Resolved && tailID.Equal(p.LastID)) || tail.TrackIndex+1 >= p.TrackCount
	if atPageEnd {
		next, ok := r.pages[p.PageIndex+1]
		if !ok {
			return ctlerr.New(ctlerr.NoMessage, "no further pages in context", nil)
		}
		target = next
	}

	acc := newAddNextAcceptor(globalPos{tail.PageIndex, tail.TrackIndex}, r.updateThreshold+r.maxWindow/2)
	if err := r.refetchPage(target, acc); err != nil {
		return err
	}
	if len(acc.buf) == 0 {
		return ctlerr.New(ctlerr.NoMessage, "no further tracks in context", nil)
	}
	r.cache = append(r.cache, acc.buf...)
	r.recordWindowFromBuf(acc.buf)
	return nil
}

// extendBackward pulls more tracks in before the cached head, moving
// onto the preceding page first if the head has already reached the
// start of its own page.
func (r *Resolver) extendBackward() error {
	if len(r.cache) == 0 {
		return ctlerr.New(ctlerr.NoMessage, "no context resolved", nil)
	}
	head := r.cache[0]
	p, ok := r.pages[head.PageIndex]
	if !ok {
		return ctlerr.New(ctlerr.IoError, "unknown page for cached track", nil)
	}

	target := p
	headID := connectpb.TrackID{UID: head.UID, URI: head.URI}
	atPageStart := (p.Resolved && headID.Equal(p.FirstID)) || head.TrackIndex == 0
	if atPageStart {
		prev, ok := r.pages[p.PageIndex-1]
		if !ok {
			return ctlerr.New(ctlerr.NoMessage, "no earlier pages in context", nil)
		}
		target = prev
	}

	acc := newAddPreviousAcceptor(globalPos{head.PageIndex, head.TrackIndex}, r.updateThreshold+r.maxWindow/2)
	if err := r.refetchPage(target, acc); err != nil {
		return err
	}
	if len(acc.buf) == 0 {
		return ctlerr.New(ctlerr.NoMessage, "no earlier tracks in context", nil)
	}
	r.cache = append(append([]connectpb.ContextTrack(nil), acc.buf...), r.cache...)
	r.current += len(acc.buf)
	r.recordWindowFromBuf(acc.buf)
	return nil
}

// trimWindow drops tracks from whichever side of the window has the
// most slack once the cache grows past maxWindow, keeping current valid.
func (r *Resolver) trimWindow() {
	for len(r.cache) > r.maxWindow {
		if r.current > len(r.cache)-1-r.current {
			r.cache = r.cache[1:]
			r.current--
		} else {
			r.cache = r.cache[:len(r.cache)-1]
		}
	}
}

// recordWindowFromBuf updates each touched page's observed fetch window
// bounds from a batch of tracks just committed into the cache.
func (r *Resolver) recordWindowFromBuf(buf []connectpb.ContextTrack) {
	type bounds struct {
		min, max int
	}
	byPage := map[int]*bounds{}
	for _, t := range buf {
		b, ok := byPage[t.PageIndex]
		if !ok {
			byPage[t.PageIndex] = &bounds{min: t.TrackIndex, max: t.TrackIndex}
			continue
		}
		if t.TrackIndex < b.min {
			b.min = t.TrackIndex
		}
		if t.TrackIndex > b.max {
			b.max = t.TrackIndex
		}
	}
	for idx, b := range byPage {
		if p, ok := r.pages[idx]; ok {
			p.FetchWindowStart = b.min
			p.FetchWindowEnd = b.max + 1
		}
	}
}
