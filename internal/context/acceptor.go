package context

import "github.com/fliper/connectd/internal/connectpb"

// fetchMode selects which of the three acceptor behaviors a page parse
// runs under: locating the current track inside a window around it, or
// extending an already-located window forward or backward.
type fetchMode int

const (
	modeAroundID fetchMode = iota
	modeAddNext
	modeAddPrevious
)

// globalPos orders tracks across page boundaries by (page, track) pair;
// track_index alone is only meaningful within its own page.
type globalPos struct {
	page, track int
}

func (a globalPos) less(b globalPos) bool {
	if a.page != b.page {
		return a.page < b.page
	}
	return a.track < b.track
}

// acceptor buffers tracks streamed off one or more pages and decides,
// track by track, whether to keep them and when enough has been seen.
// AroundID slides a window of size maxPrevious+maxNext+1 forward until
// the target id is seen, then keeps accepting up to maxNext more.
// AddNext/AddPrevious only accept tracks strictly beyond an already
// cached boundary, extending the window in one direction.
type acceptor struct {
	mode        fetchMode
	target      connectpb.TrackID
	maxPrevious int
	maxNext     int

	buf       []connectpb.ContextTrack
	found     bool
	foundIdx  int
	lastAfter globalPos
	firstBefore globalPos
}

func newAroundIDAcceptor(target connectpb.TrackID, maxPrevious, maxNext int) *acceptor {
	return &acceptor{mode: modeAroundID, target: target, maxPrevious: maxPrevious, maxNext: maxNext, foundIdx: -1}
}

func newAddNextAcceptor(after globalPos, max int) *acceptor {
	return &acceptor{mode: modeAddNext, maxNext: max, lastAfter: after}
}

func newAddPreviousAcceptor(before globalPos, max int) *acceptor {
	return &acceptor{mode: modeAddPrevious, maxPrevious: max, firstBefore: before}
}

// feed presents one observed track to the acceptor. It returns true once
// the window is complete and the caller should stop streaming further
// tracks into this acceptor; a track that does not belong in the window
// is skipped and feed returns false. AddPrevious never signals stop.
func (a *acceptor) feed(t connectpb.ContextTrack) (stop bool) {
	switch a.mode {
	case modeAroundID:
		return a.feedAroundID(t)
	case modeAddNext:
		return a.feedAddNext(t)
	case modeAddPrevious:
		return a.feedAddPrevious(t)
	}
	return true
}

func (a *acceptor) feedAroundID(t connectpb.ContextTrack) bool {
	if !a.found {
		a.buf = append(a.buf, t)
		id := connectpb.TrackID{UID: t.UID, URI: t.URI}
		if id.Equal(a.target) {
			a.found = true
			a.foundIdx = len(a.buf) - 1
			if drop := a.foundIdx - a.maxPrevious; drop > 0 {
				a.buf = a.buf[drop:]
				a.foundIdx -= drop
			}
		} else if len(a.buf) > a.maxPrevious+a.maxNext+1 {
			a.buf = a.buf[1:]
			a.foundIdx--
		}
		return false
	}
	a.buf = append(a.buf, t)
	acceptedAfter := len(a.buf) - 1 - a.foundIdx
	return acceptedAfter >= a.maxNext
}

func (a *acceptor) feedAddNext(t connectpb.ContextTrack) bool {
	pos := globalPos{t.PageIndex, t.TrackIndex}
	if !a.lastAfter.less(pos) {
		return false
	}
	a.buf = append(a.buf, t)
	a.lastAfter = pos
	return len(a.buf) >= a.maxNext
}

func (a *acceptor) feedAddPrevious(t connectpb.ContextTrack) bool {
	pos := globalPos{t.PageIndex, t.TrackIndex}
	if !pos.less(a.firstBefore) {
		return false
	}
	a.buf = append(a.buf, t)
	if len(a.buf) > a.maxPrevious {
		a.buf = a.buf[1:]
	}
	return false
}
