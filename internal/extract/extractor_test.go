package extract

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/JakeFAU/gallery-scraper/internal/gallery"
	"github.com/JakeFAU/gallery-scraper/internal/netcache"
	"github.com/JakeFAU/gallery-scraper/internal/sanitize"
)

type fakeLoader struct {
	html  string
	err   error
	calls int
}

func (l *fakeLoader) LoadDetail(_ context.Context, url string) (gallery.DetailPage, error) {
	l.calls++
	if l.err != nil {
		return gallery.DetailPage{}, l.err
	}
	return gallery.DetailPage{URL: url, HTML: l.html, MarkersSet: true}, nil
}

var testRef = gallery.ItemReference{ItemID: "1", NamespaceHash: "abc", CanonicalURL: "https://gallery.example/detail/1"}

func str(s string) *string { return &s }

func newExtractor(loader DetailLoader, lookup MetadataLookup) *Extractor {
	return New(DefaultConfig(), sanitize.Default(), loader, lookup, zap.NewNop())
}

func TestNetworkTierBeatsStructuredTier(t *testing.T) {
	t.Parallel()

	cache := netcache.New(0)
	cache.Put("1", []byte(`{"id":"1","credit":"A"}`))
	loader := &fakeLoader{html: `<html><body><ul><li><span class="label">Credit:</span> B</li>
<li><span class="label">Size:</span> 4000 x 3000</li></ul></body></html>`}

	rec := newExtractor(loader, cache).Extract(context.Background(), testRef, true, "")
	require.Equal(t, str("A"), rec.Credit)
	require.Equal(t, str("4000 x 3000"), rec.Dimensions)
	require.Equal(t, "1", rec.ItemID)
	require.Equal(t, testRef.CanonicalURL, rec.URL)
}

func TestCaptionFallback(t *testing.T) {
	t.Parallel()

	loader := &fakeLoader{html: `<html><body><h1>Street parade</h1>
<figcaption>Where: Paris, France / When: 2021-05-01 / Credit: J. Doe</figcaption></body></html>`}

	rec := newExtractor(loader, nil).Extract(context.Background(), testRef, true, "")
	require.Equal(t, str("Paris"), rec.City)
	require.Equal(t, str("France"), rec.Country)
	require.Equal(t, str("2021-05-01"), rec.Date)
	require.Equal(t, str("J. Doe"), rec.Credit)
	require.Equal(t, str("Street parade"), rec.Caption)
}

func TestCaptionLinesWithBreaks(t *testing.T) {
	t.Parallel()

	loader := &fakeLoader{html: `<html><body><div class="caption">Photographer - Ana Lima<br>Featuring: Carnival | Date taken: 2020-02-20</div></body></html>`}

	rec := newExtractor(loader, nil).Extract(context.Background(), testRef, true, "")
	require.Equal(t, str("Ana Lima"), rec.Credit)
	require.Equal(t, str("Carnival"), rec.Caption)
	require.Equal(t, str("2020-02-20"), rec.Date)
}

func TestStructuredDefinitionListAndClickableValues(t *testing.T) {
	t.Parallel()

	loader := &fakeLoader{html: `<html><head><meta property="og:image" content="https://cdn.example/og.jpg"></head><body>
<dl>
  <dt>Credit</dt><dd><a href="/by/jane">Jane Doe</a></dd>
  <dt>Location</dt><dd>Lisbon, Portugal</dd>
  <dt>File size</dt><dd>12.4 MB</dd>
</dl>
<ul><li><strong>Date created:</strong><button>2019-07-04</button></li></ul>
</body></html>`}

	rec := newExtractor(loader, nil).Extract(context.Background(), testRef, true, "")
	require.Equal(t, str("Jane Doe"), rec.Credit)
	require.Equal(t, str("Lisbon"), rec.City)
	require.Equal(t, str("Portugal"), rec.Country)
	require.Equal(t, str("12.4 MB"), rec.FileSize)
	require.Equal(t, str("2019-07-04"), rec.Date)
	require.Equal(t, str("https://cdn.example/og.jpg"), rec.ThumbnailURL)
}

func TestUIStringsAreRejected(t *testing.T) {
	t.Parallel()

	loader := &fakeLoader{html: `<html><body>
<ul><li><span class="label">Credit</span><button>Copy link</button></li></ul>
<figcaption>Credit: Real Person</figcaption></body></html>`}

	rec := newExtractor(loader, nil).Extract(context.Background(), testRef, true, "")
	require.Equal(t, str("Real Person"), rec.Credit)
}

func TestHydrationTier(t *testing.T) {
	t.Parallel()

	loader := &fakeLoader{html: `<html><body><h1>Fallback title</h1>
<script id="__NEXT_DATA__" type="application/json">{"props":{"pageProps":{"asset":{"id":"1","eventTitle":"Harvest festival","location":{"city":"Kyoto","country":"Japan"},"maxDimensions":{"width":6000,"height":4000}}}}}</script>
</body></html>`}

	rec := newExtractor(loader, nil).Extract(context.Background(), testRef, true, "")
	require.Equal(t, str("Harvest festival"), rec.Caption)
	require.Equal(t, str("Kyoto"), rec.City)
	require.Equal(t, str("Japan"), rec.Country)
	require.Equal(t, str("6000 x 4000"), rec.Dimensions)
}

func TestInvalidHydrationIsSkipped(t *testing.T) {
	t.Parallel()

	loader := &fakeLoader{html: `<html><body><h1>Only title</h1>
<script id="__NEXT_DATA__">{"props": {broken</script></body></html>`}

	rec := newExtractor(loader, nil).Extract(context.Background(), testRef, true, "")
	require.Equal(t, str("Only title"), rec.Caption)
	require.Nil(t, rec.Credit)
}

func TestDetailFailureReturnsPartialRecord(t *testing.T) {
	t.Parallel()

	cache := netcache.New(0)
	cache.Put("1", []byte(`{"id":"1","city":"Oslo"}`))
	loader := &fakeLoader{err: &gallery.NavigationError{URL: testRef.CanonicalURL, Attempts: 3, Err: errors.New("404")}}

	rec := newExtractor(loader, cache).Extract(context.Background(), testRef, true, "https://cdn.example/t/1.jpg")
	require.Equal(t, 1, loader.calls)
	require.Equal(t, str("Oslo"), rec.City)
	require.Equal(t, str("https://cdn.example/t/1.jpg"), rec.ThumbnailURL)
	require.Nil(t, rec.Credit)
	require.Nil(t, rec.Caption)
}

func TestDetailDisabledSkipsLoader(t *testing.T) {
	t.Parallel()

	loader := &fakeLoader{html: `<html><body><h1>x</h1></body></html>`}
	rec := newExtractor(loader, nil).Extract(context.Background(), testRef, false, "")
	require.Zero(t, loader.calls)
	require.Equal(t, gallery.NewRecord(testRef), rec)
}

func TestNetworkPayloadThumbnailBeatsHint(t *testing.T) {
	t.Parallel()

	cache := netcache.New(0)
	cache.Put("1", []byte(`{"id":"1","thumbUrl":"https://cdn.example/api.jpg","credit":{"name":"Agency"}}`))

	rec := newExtractor(nil, cache).Extract(context.Background(), testRef, true, "https://cdn.example/hint.jpg")
	require.Equal(t, str("https://cdn.example/api.jpg"), rec.ThumbnailURL)
	require.Equal(t, str("Agency"), rec.Credit)
}

func TestNormalizeLabel(t *testing.T) {
	t.Parallel()

	f, ok := lookupLabel("  Date   Taken: ")
	require.True(t, ok)
	require.Equal(t, FieldDate, f)
	_, ok = lookupLabel("Share")
	require.False(t, ok)
}
