package context

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fliper/connectd/internal/ctlerr"
)

type fakeFetcher struct {
	root  []byte
	pages map[string][]byte

	rootCalls int
	pageCalls map[string]int
}

func (f *fakeFetcher) GetRootContext(contextURL string) ([]byte, error) {
	f.rootCalls++
	return f.root, nil
}

func (f *fakeFetcher) GetPage(pageURL string) ([]byte, error) {
	if f.pageCalls == nil {
		f.pageCalls = map[string]int{}
	}
	f.pageCalls[pageURL]++
	data, ok := f.pages[pageURL]
	if !ok {
		return nil, fmt.Errorf("no fixture page for %s", pageURL)
	}
	return data, nil
}

func trackJSON(uri, uid string) string {
	return fmt.Sprintf(`{"uri":%q,"uid":%q}`, uri, uid)
}

func TestCurrentTrackResolvesWithinSingleInlinePage(t *testing.T) {
	root := []byte(`{"pages":[{"tracks":[` +
		trackJSON("u0", "id0") + "," +
		trackJSON("u1", "id1") + "," +
		trackJSON("u2", "id2") + "," +
		trackJSON("u3", "id3") + "," +
		trackJSON("u4", "id4") +
		`],"next_page_url":""}]}`)

	r := New(&fakeFetcher{root: root}, 10, 2)
	r.UpdateContext("context://spotify:playlist:x", "id2", "u2")

	cur, err := r.CurrentTrack()
	require.NoError(t, err)
	assert.Equal(t, "id2", cur.UID)

	prev := r.PreviousTracks()
	next := r.NextTracks()
	require.Len(t, prev, 2)
	require.Len(t, next, 2)
	assert.Equal(t, "id0", prev[0].UID)
	assert.Equal(t, "id1", prev[1].UID)
	assert.Equal(t, "id3", next[0].UID)
	assert.Equal(t, "id4", next[1].UID)
}

func TestCurrentTrackCrossesPageBoundaryToFindTarget(t *testing.T) {
	page0 := `{"tracks":[` +
		trackJSON("p0u0", "p0id0") + "," +
		trackJSON("p0u1", "p0id1") + "," +
		trackJSON("p0u2", "p0id2") + "," +
		trackJSON("p0u3", "p0id3") + "," +
		trackJSON("p0u4", "p0id4") +
		`],"next_page_url":""}`
	root := []byte(`{"pages":[` + page0 + `,{"page_url":"https://host/page1"}]}`)

	page1 := []byte(`{"tracks":[` +
		trackJSON("p1u0", "p1id0") + "," +
		trackJSON("p1u1", "p1id1") + "," +
		trackJSON("p1u2", "p1id2") + "," +
		trackJSON("p1u3", "p1id3") + "," +
		trackJSON("p1u4", "p1id4") +
		`],"next_page_url":""}`)

	fetcher := &fakeFetcher{root: root, pages: map[string][]byte{"https://host/page1": page1}}
	r := New(fetcher, 10, 2)
	r.UpdateContext("context://spotify:playlist:x", "p1id2", "p1u2")

	cur, err := r.CurrentTrack()
	require.NoError(t, err)
	assert.Equal(t, "p1id2", cur.UID)
	assert.Equal(t, 1, cur.PageIndex)
	assert.Equal(t, 2, cur.TrackIndex)
	assert.Equal(t, 1, fetcher.pageCalls["https://host/page1"])

	// window stays contiguous across the page boundary
	all := append(r.PreviousTracks(), cur)
	all = append(all, r.NextTracks()...)
	for i := 1; i < len(all); i++ {
		before := globalPos{all[i-1].PageIndex, all[i-1].TrackIndex}
		after := globalPos{all[i].PageIndex, all[i].TrackIndex}
		assert.True(t, before.less(after), "window must stay ordered across page boundaries")
	}
}

func TestCurrentTrackNotFoundReturnsInvalidArgument(t *testing.T) {
	root := []byte(`{"pages":[{"tracks":[` + trackJSON("u0", "id0") + `],"next_page_url":""}]}`)
	r := New(&fakeFetcher{root: root}, 10, 2)
	r.UpdateContext("context://spotify:playlist:x", "missing", "spotify:track:missing")

	_, err := r.CurrentTrack()
	require.Error(t, err)
	assert.True(t, ctlerr.Is(err, ctlerr.InvalidArgument))
}

func TestNextCrossesIntoNextPageWhenWindowRunsOut(t *testing.T) {
	page0 := `{"tracks":[` +
		trackJSON("p0u0", "p0id0") + "," +
		trackJSON("p0u1", "p0id1") + "," +
		trackJSON("p0u2", "p0id2") + "," +
		trackJSON("p0u3", "p0id3") + "," +
		trackJSON("p0u4", "p0id4") +
		`],"next_page_url":""}`
	root := []byte(`{"pages":[` + page0 + `,{"page_url":"https://host/page1"}]}`)

	page1 := []byte(`{"tracks":[` +
		trackJSON("p1u0", "p1id0") + "," +
		trackJSON("p1u1", "p1id1") + "," +
		trackJSON("p1u2", "p1id2") +
		`],"next_page_url":""}`)

	fetcher := &fakeFetcher{root: root, pages: map[string][]byte{"https://host/page1": page1}}
	r := New(fetcher, 4, 1)
	r.UpdateContext("context://spotify:playlist:x", "p0id4", "p0u4")

	_, err := r.CurrentTrack()
	require.NoError(t, err)

	require.NoError(t, r.Next())
	cur, err := r.CurrentTrack()
	require.NoError(t, err)
	assert.Equal(t, 1, cur.PageIndex)
	assert.Equal(t, 0, cur.TrackIndex)
	assert.LessOrEqual(t, len(r.cache), r.maxWindow)
}

func TestCurrentTrackWindowIsTrimmedWhenTargetIsDeepInAPage(t *testing.T) {
	tracks := make([]string, 40)
	for i := range tracks {
		tracks[i] = trackJSON(fmt.Sprintf("u%d", i), fmt.Sprintf("id%d", i))
	}
	root := []byte(`{"pages":[{"tracks":[` + joinComma(tracks) + `],"next_page_url":""}]}`)

	r := New(&fakeFetcher{root: root}, 16, 8)
	r.UpdateContext("context://spotify:playlist:x", "id20", "u20")

	cur, err := r.CurrentTrack()
	require.NoError(t, err)
	assert.Equal(t, "id20", cur.UID)

	prev := r.PreviousTracks()
	next := r.NextTracks()
	assert.LessOrEqual(t, len(prev), 8)
	assert.LessOrEqual(t, len(next), 8)
	total := len(prev) + 1 + len(next)
	assert.GreaterOrEqual(t, total, 16)
	assert.LessOrEqual(t, total, 17)
}

func joinComma(items []string) string {
	out := items[0]
	for _, s := range items[1:] {
		out += "," + s
	}
	return out
}

func TestSkipForwardAndSkipBackwardAreNotSupported(t *testing.T) {
	r := New(&fakeFetcher{}, 10, 2)
	assert.Error(t, r.SkipForward())
	assert.Error(t, r.SkipBackward())
}
