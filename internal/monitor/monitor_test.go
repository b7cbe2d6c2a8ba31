package monitor

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/akhouriprakhar/price-monitor-bot/internal/models"
	"github.com/akhouriprakhar/price-monitor-bot/internal/scraper"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/require"
)

type fakeCatalog struct {
	mu         sync.Mutex
	products   []models.Product
	updates    map[int64][]float64
	failUpdate bool
}

func newFakeCatalog(products ...models.Product) *fakeCatalog {
	return &fakeCatalog{products: products, updates: make(map[int64][]float64)}
}

func (c *fakeCatalog) GetAllProducts(ctx context.Context) ([]models.Product, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]models.Product(nil), c.products...), nil
}

func (c *fakeCatalog) UpdateLastCheckedPrice(ctx context.Context, id int64, price float64) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.failUpdate {
		return errors.New("disk full")
	}
	c.updates[id] = append(c.updates[id], price)
	return nil
}

func (c *fakeCatalog) updatesFor(id int64) []float64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.updates[id]
}

type fakeExtractor struct {
	mu     sync.Mutex
	prices map[string]float64
	fail   map[string]bool
	calls  []string
}

func newFakeExtractor() *fakeExtractor {
	return &fakeExtractor{prices: make(map[string]float64), fail: make(map[string]bool)}
}

func (e *fakeExtractor) Fetch(ctx context.Context, url string) (*scraper.ProductInfo, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.calls = append(e.calls, url)
	if e.fail[url] {
		return nil, errors.New("fetch failed")
	}
	price, ok := e.prices[url]
	if !ok {
		return nil, errors.New("price not found on page")
	}
	return &scraper.ProductInfo{Title: "Test Product", Price: price}, nil
}

func (e *fakeExtractor) callCount() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.calls)
}

type notification struct {
	userID int64
	text   string
}

type fakeNotifier struct {
	mu   sync.Mutex
	sent []notification
	fail bool
}

func (n *fakeNotifier) Send(userID int64, text string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.fail {
		return errors.New("delivery failed")
	}
	n.sent = append(n.sent, notification{userID: userID, text: text})
	return nil
}

func (n *fakeNotifier) notifications() []notification {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]notification(nil), n.sent...)
}

func newTestMonitor(c Catalog, e Extractor, n Notifier) *Monitor {
	m := New(c, e, n, time.Hour, 5)
	m.requestDelay = 0
	return m
}

func fptr(v float64) *float64 { return &v }

func product(id, userID int64, url string, last, target *float64) models.Product {
	return models.Product{
		ID:               id,
		UserID:           userID,
		URL:              url,
		Title:            "Test Product",
		InitialPrice:     1000,
		LastCheckedPrice: last,
		TargetPrice:      target,
		CreatedAt:        time.Now(),
	}
}

func TestFirstCheckRecordsPriceWithoutAlert(t *testing.T) {
	catalog := newFakeCatalog(product(1, 100, "http://shop/a", nil, nil))
	extractor := newFakeExtractor()
	extractor.prices["http://shop/a"] = 1234.5
	notifier := &fakeNotifier{}

	m := newTestMonitor(catalog, extractor, notifier)
	m.CheckAllProducts(context.Background())

	require.Equal(t, []float64{1234.5}, catalog.updatesFor(1))
	require.Empty(t, notifier.notifications())
}

func TestUnchangedPriceIsNoOp(t *testing.T) {
	catalog := newFakeCatalog(product(1, 100, "http://shop/a", fptr(1000), nil))
	extractor := newFakeExtractor()
	extractor.prices["http://shop/a"] = 1000
	notifier := &fakeNotifier{}

	m := newTestMonitor(catalog, extractor, notifier)
	m.CheckAllProducts(context.Background())

	require.Empty(t, catalog.updatesFor(1))
	require.Empty(t, notifier.notifications())
}

func TestTargetPriceAlert(t *testing.T) {
	catalog := newFakeCatalog(product(1, 100, "http://shop/a", fptr(1000), fptr(900)))
	extractor := newFakeExtractor()
	extractor.prices["http://shop/a"] = 890
	notifier := &fakeNotifier{}

	m := newTestMonitor(catalog, extractor, notifier)
	m.CheckAllProducts(context.Background())

	require.Equal(t, []float64{890}, catalog.updatesFor(1))

	sent := notifier.notifications()
	require.Len(t, sent, 1)
	require.Equal(t, int64(100), sent[0].userID)
	require.Contains(t, sent[0].text, "reached target of ₹900.00")
	require.Contains(t, sent[0].text, "₹1000.00")
	require.Contains(t, sent[0].text, "₹890.00")
	require.NotContains(t, sent[0].text, "dropped by")
}

func TestTargetPriceSuppressesPercentagePath(t *testing.T) {
	// A 30% drop would trip the percentage heuristic, but the user set a
	// target: no alert until the target is reached.
	catalog := newFakeCatalog(product(1, 100, "http://shop/a", fptr(1000), fptr(500)))
	extractor := newFakeExtractor()
	extractor.prices["http://shop/a"] = 700
	notifier := &fakeNotifier{}

	m := newTestMonitor(catalog, extractor, notifier)
	m.CheckAllProducts(context.Background())

	require.Equal(t, []float64{700}, catalog.updatesFor(1))
	require.Empty(t, notifier.notifications())
}

func TestPercentageDropAlert(t *testing.T) {
	catalog := newFakeCatalog(product(1, 100, "http://shop/a", fptr(1000), nil))
	extractor := newFakeExtractor()
	extractor.prices["http://shop/a"] = 940
	notifier := &fakeNotifier{}

	m := newTestMonitor(catalog, extractor, notifier)
	m.CheckAllProducts(context.Background())

	require.Equal(t, []float64{940}, catalog.updatesFor(1))

	sent := notifier.notifications()
	require.Len(t, sent, 1)
	require.Contains(t, sent[0].text, "dropped by 6.00%")
}

func TestPercentageIncreaseAlert(t *testing.T) {
	catalog := newFakeCatalog(product(1, 100, "http://shop/a", fptr(1000), nil))
	extractor := newFakeExtractor()
	extractor.prices["http://shop/a"] = 1100
	notifier := &fakeNotifier{}

	m := newTestMonitor(catalog, extractor, notifier)
	m.CheckAllProducts(context.Background())

	sent := notifier.notifications()
	require.Len(t, sent, 1)
	require.Contains(t, sent[0].text, "increased by 10.00%")
}

func TestSmallChangeUpdatesWithoutAlert(t *testing.T) {
	catalog := newFakeCatalog(product(1, 100, "http://shop/a", fptr(1000), nil))
	extractor := newFakeExtractor()
	extractor.prices["http://shop/a"] = 980
	notifier := &fakeNotifier{}

	m := newTestMonitor(catalog, extractor, notifier)
	m.CheckAllProducts(context.Background())

	require.Equal(t, []float64{980}, catalog.updatesFor(1))
	require.Empty(t, notifier.notifications())
}

func TestExtractionFailureDoesNotBlockOthers(t *testing.T) {
	catalog := newFakeCatalog(
		product(1, 100, "http://shop/a", fptr(1000), nil),
		product(2, 200, "http://shop/b", fptr(1000), nil),
	)
	extractor := newFakeExtractor()
	extractor.fail["http://shop/a"] = true
	extractor.prices["http://shop/b"] = 940
	notifier := &fakeNotifier{}

	m := newTestMonitor(catalog, extractor, notifier)
	m.CheckAllProducts(context.Background())

	require.Empty(t, catalog.updatesFor(1))
	require.Equal(t, []float64{940}, catalog.updatesFor(2))

	sent := notifier.notifications()
	require.Len(t, sent, 1)
	require.Equal(t, int64(200), sent[0].userID)
}

func TestPersistFailureStillSendsAlert(t *testing.T) {
	catalog := newFakeCatalog(product(1, 100, "http://shop/a", fptr(1000), fptr(900)))
	catalog.failUpdate = true
	extractor := newFakeExtractor()
	extractor.prices["http://shop/a"] = 890
	notifier := &fakeNotifier{}

	m := newTestMonitor(catalog, extractor, notifier)
	m.CheckAllProducts(context.Background())

	require.Len(t, notifier.notifications(), 1)
}

func TestNotifierFailureDoesNotBlockOthers(t *testing.T) {
	catalog := newFakeCatalog(
		product(1, 100, "http://shop/a", fptr(1000), nil),
		product(2, 200, "http://shop/b", fptr(1000), nil),
	)
	extractor := newFakeExtractor()
	extractor.prices["http://shop/a"] = 900
	extractor.prices["http://shop/b"] = 900
	notifier := &fakeNotifier{fail: true}

	m := newTestMonitor(catalog, extractor, notifier)
	m.CheckAllProducts(context.Background())

	// Write-backs happened for both despite every delivery failing.
	require.Equal(t, []float64{900}, catalog.updatesFor(1))
	require.Equal(t, []float64{900}, catalog.updatesFor(2))
}

func TestStartIsIdempotent(t *testing.T) {
	catalog := newFakeCatalog(product(1, 100, "http://shop/a", nil, nil))
	extractor := newFakeExtractor()
	extractor.prices["http://shop/a"] = 1000
	notifier := &fakeNotifier{}

	m := newTestMonitor(catalog, extractor, notifier)
	m.Start()
	m.Start()
	defer m.Stop()

	// The interval is an hour, so only the immediate startup check can
	// fire. A second loop would produce a second startup check.
	require.Eventually(t, func() bool {
		return extractor.callCount() >= 1
	}, time.Second, 10*time.Millisecond)

	time.Sleep(100 * time.Millisecond)
	require.Equal(t, 1, extractor.callCount())
}

func TestStopIsIdempotent(t *testing.T) {
	m := newTestMonitor(newFakeCatalog(), newFakeExtractor(), &fakeNotifier{})

	m.Stop() // never started

	m.Start()
	m.Stop()
	m.Stop()
}

type blockingExtractor struct {
	started chan struct{}
	release chan struct{}
	mu      sync.Mutex
	calls   int
}

func (e *blockingExtractor) Fetch(ctx context.Context, url string) (*scraper.ProductInfo, error) {
	e.mu.Lock()
	e.calls++
	e.mu.Unlock()
	e.started <- struct{}{}
	<-e.release
	return &scraper.ProductInfo{Title: "Test Product", Price: 1000}, nil
}

func TestOverlappingCyclesAreSkipped(t *testing.T) {
	catalog := newFakeCatalog(product(1, 100, "http://shop/a", nil, nil))
	extractor := &blockingExtractor{
		started: make(chan struct{}, 1),
		release: make(chan struct{}),
	}
	notifier := &fakeNotifier{}

	m := newTestMonitor(catalog, extractor, notifier)

	done := make(chan struct{})
	go func() {
		m.CheckAllProducts(context.Background())
		close(done)
	}()
	<-extractor.started

	// A second cycle while the first is mid-fetch must be a no-op.
	m.CheckAllProducts(context.Background())

	close(extractor.release)
	<-done

	extractor.mu.Lock()
	defer extractor.mu.Unlock()
	require.Equal(t, 1, extractor.calls)
}
