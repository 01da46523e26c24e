// Package context implements the windowed, lazily-paged track navigator
// that locates a "current" track within a remotely-hosted context and
// keeps a bounded window of previous/next tracks materialized as the
// user skips.
package context

import "github.com/fliper/connectd/internal/connectpb"

// ResolvedContextPage records what the resolver knows about one page of
// a context: how much of it has been pulled into the window so far, and
// the identities observed at its two extremes.
type ResolvedContextPage struct {
	PageIndex        int
	PageURL          string
	NextPageURL      string
	IsInRoot         bool
	Resolved         bool
	FirstID          connectpb.TrackID
	LastID           connectpb.TrackID
	FetchWindowStart int
	FetchWindowEnd   int
	TrackCount       int
}

// Fetcher performs the two HTTP calls the resolver needs: resolving a
// context's root and fetching a page that so far is only a URL stub.
type Fetcher interface {
	GetRootContext(contextURL string) ([]byte, error)
	GetPage(pageURL string) ([]byte, error)
}
