// Package track holds the manual playback queue and wraps a context
// resolver, presenting one current/previous/next view regardless of
// whether the manual queue or the resolved context is playing.
package track

import (
	"fmt"

	"github.com/fliper/connectd/internal/connectpb"
	"github.com/fliper/connectd/internal/context"
	"github.com/fliper/connectd/internal/ctlerr"
)

// Provider composes a manual queue with a context resolver.
type Provider struct {
	resolver *context.Resolver

	queue          []connectpb.ContextTrack
	queueIndex     int
	isPlayingQueue bool

	prevTracks []connectpb.ProvidedTrack
	nextTracks []connectpb.ProvidedTrack
}

// New builds a Provider backed by resolver.
func New(resolver *context.Resolver) *Provider {
	return &Provider{resolver: resolver}
}

// SetQueue replaces the manual queue and whether it is the one playing.
func (p *Provider) SetQueue(tracks []connectpb.ContextTrack, isPlayingQueue bool) {
	p.queue = tracks
	p.queueIndex = 0
	p.isPlayingQueue = isPlayingQueue
}

// LoadTrackAndContext points the resolver at a context and a current
// track, then materializes the outward prev/next projections.
func (p *Provider) LoadTrackAndContext(uid, uri, contextURL string) error {
	p.resolver.UpdateContext(contextURL, uid, uri)
	if _, err := p.resolver.CurrentTrack(); err != nil {
		return err
	}
	p.rebuildProjections()
	return nil
}

func (p *Provider) rebuildProjections() {
	prev := p.resolver.PreviousTracks()
	p.prevTracks = make([]connectpb.ProvidedTrack, len(prev))
	for i, t := range prev {
		p.prevTracks[len(prev)-1-i] = toProvidedTrack(t)
	}

	next := p.resolver.NextTracks()
	p.nextTracks = make([]connectpb.ProvidedTrack, len(next))
	for i, t := range next {
		p.nextTracks[i] = toProvidedTrack(t)
	}
}

func toProvidedTrack(t connectpb.ContextTrack) connectpb.ProvidedTrack {
	return connectpb.ProvidedTrack{URI: t.URI, UID: t.UID, Provider: "context"}
}

// CurrentTrack returns the track the provider is positioned on: a queue
// entry while the manual queue is playing, else the resolver's current.
func (p *Provider) CurrentTrack() (connectpb.ProvidedTrack, bool) {
	if p.isPlayingQueue {
		if p.queueIndex < 0 || p.queueIndex >= len(p.queue) {
			return connectpb.ProvidedTrack{}, false
		}
		t := p.queue[p.queueIndex]
		return connectpb.ProvidedTrack{URI: t.URI, UID: fmt.Sprintf("q%d", p.queueIndex), Provider: "queue"}, true
	}
	t, err := p.resolver.CurrentTrack()
	if err != nil {
		return connectpb.ProvidedTrack{}, false
	}
	return toProvidedTrack(t), true
}

// PrevTracks returns the materialized previous-tracks projection,
// most-recent-first.
func (p *Provider) PrevTracks() []connectpb.ProvidedTrack { return p.prevTracks }

// NextTracks returns the materialized next-tracks projection.
func (p *Provider) NextTracks() []connectpb.ProvidedTrack { return p.nextTracks }

// SkipToNextTrack advances whichever of the queue or the resolved
// context is playing. Draining the queue toggles playback back onto
// the context.
func (p *Provider) SkipToNextTrack() error {
	if p.isPlayingQueue {
		if p.queueIndex+1 >= len(p.queue) {
			p.isPlayingQueue = false
			return nil
		}
		p.queueIndex++
		return nil
	}
	if err := p.resolver.Next(); err != nil {
		return err
	}
	p.rebuildProjections()
	return nil
}

// SkipToPreviousTrack moves back one track in whichever of the queue or
// the resolved context is playing.
func (p *Provider) SkipToPreviousTrack() error {
	if p.isPlayingQueue {
		if p.queueIndex == 0 {
			return ctlerr.New(ctlerr.NoMessage, "no previous track in queue", nil)
		}
		p.queueIndex--
		return nil
	}
	if err := p.resolver.Previous(); err != nil {
		return err
	}
	p.rebuildProjections()
	return nil
}

// CurrentContextIndex reports the resolver's page/track coordinates;
// there is none while the manual queue is playing.
func (p *Provider) CurrentContextIndex() (connectpb.ContextIndex, bool) {
	if p.isPlayingQueue {
		return connectpb.ContextIndex{}, false
	}
	return p.resolver.CurrentContextIndex()
}
