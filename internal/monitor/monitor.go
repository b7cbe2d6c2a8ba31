package monitor

import (
	"context"
	"fmt"
	"math"
	"sync"
	"sync/atomic"
	"time"

	"github.com/akhouriprakhar/price-monitor-bot/internal/models"
	"github.com/akhouriprakhar/price-monitor-bot/internal/scraper"

	log "github.com/sirupsen/logrus"
)

// Catalog is the subset of product storage the monitor depends on.
type Catalog interface {
	GetAllProducts(ctx context.Context) ([]models.Product, error)
	UpdateLastCheckedPrice(ctx context.Context, id int64, price float64) error
}

// Extractor fetches the current title and price for a product URL.
type Extractor interface {
	Fetch(ctx context.Context, url string) (*scraper.ProductInfo, error)
}

// Notifier delivers an alert message to a user.
type Notifier interface {
	Send(userID int64, text string) error
}

// Monitor periodically re-checks every tracked product and sends price
// alerts. One background goroutine runs the interval loop; products within
// a cycle are checked sequentially.
type Monitor struct {
	catalog   Catalog
	extractor Extractor
	notifier  Notifier
	interval  time.Duration
	threshold float64

	// delay between requests within a cycle, to go easy on the sites
	requestDelay time.Duration

	mu     sync.Mutex
	cancel context.CancelFunc

	// guards against overlapping cycles when a cycle outlives the interval
	checking atomic.Bool
}

// New creates a monitor. threshold is the percentage change that triggers
// an alert for products without a target price.
func New(catalog Catalog, extractor Extractor, notifier Notifier, interval time.Duration, threshold float64) *Monitor {
	return &Monitor{
		catalog:      catalog,
		extractor:    extractor,
		notifier:     notifier,
		interval:     interval,
		threshold:    threshold,
		requestDelay: 2 * time.Second,
	}
}

// Start launches the monitoring loop in the background. Calling Start while
// the monitor is already running is a no-op.
func (m *Monitor) Start() {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.cancel != nil {
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	m.cancel = cancel
	go m.run(ctx)
}

// Stop signals the loop to exit. An in-flight cycle runs to completion; Stop
// only prevents new cycles from being scheduled. Safe to call repeatedly.
func (m *Monitor) Stop() {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.cancel == nil {
		return
	}
	m.cancel()
	m.cancel = nil
}

func (m *Monitor) run(ctx context.Context) {
	log.WithFields(log.Fields{"interval": m.interval}).Info("Monitor started")

	// Check right away on startup, then on every tick.
	m.CheckAllProducts(context.Background())

	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Info("Monitor stopped")
			return
		case <-ticker.C:
			m.CheckAllProducts(context.Background())
		}
	}
}

// CheckAllProducts runs one full check cycle. Cycles are mutually exclusive:
// if a previous cycle is still running the call is skipped with a log line.
func (m *Monitor) CheckAllProducts(ctx context.Context) {
	if !m.checking.CompareAndSwap(false, true) {
		log.Warn("Previous check cycle still running, skipping this one")
		return
	}
	defer m.checking.Store(false)

	products, err := m.catalog.GetAllProducts(ctx)
	if err != nil {
		log.WithError(err).Error("Failed to list products for check cycle")
		return
	}

	log.WithFields(log.Fields{"products": len(products)}).Info("Checking all product prices")

	for i, product := range products {
		if i > 0 && m.requestDelay > 0 {
			time.Sleep(m.requestDelay)
		}
		m.checkProduct(ctx, product)
	}
}

// checkProduct fetches the current price for one product and applies the
// alert policy. Any failure is logged and the product is skipped for this
// cycle; it never affects the rest of the cycle.
func (m *Monitor) checkProduct(ctx context.Context, product models.Product) {
	info, err := m.extractor.Fetch(ctx, product.URL)
	if err != nil {
		log.WithFields(log.Fields{
			"product": product.ID,
			"url":     product.URL,
			"err":     err,
		}).Warn("Could not get new price, skipping")
		return
	}
	current := info.Price

	// First check since the product was added: record the price, no alert.
	if product.LastCheckedPrice == nil {
		m.persistPrice(ctx, product.ID, current)
		return
	}

	last := *product.LastCheckedPrice
	if current == last {
		return
	}

	reason := m.alertReason(product, last, current)

	// Write back every observed change, whether or not an alert fires. A
	// failed write means the stale price gets re-evaluated next cycle,
	// which is acceptable drift.
	m.persistPrice(ctx, product.ID, current)

	if reason != "" {
		m.sendAlert(product, last, current, reason)
	}
}

// alertReason decides whether the price change warrants an alert and
// returns the reason text, or "" for no alert. A target price is a hard
// user-set goal and takes precedence; the percentage heuristic only applies
// to products without one.
func (m *Monitor) alertReason(product models.Product, last, current float64) string {
	if product.TargetPrice != nil {
		if current <= *product.TargetPrice {
			return fmt.Sprintf("reached target of ₹%.2f", *product.TargetPrice)
		}
		return ""
	}

	change := (current - last) / last * 100
	if math.Abs(change) < m.threshold {
		return ""
	}
	if change < 0 {
		return fmt.Sprintf("dropped by %.2f%%", -change)
	}
	return fmt.Sprintf("increased by %.2f%%", change)
}

func (m *Monitor) persistPrice(ctx context.Context, id int64, price float64) {
	if err := m.catalog.UpdateLastCheckedPrice(ctx, id, price); err != nil {
		log.WithFields(log.Fields{"product": id, "err": err}).Error("Failed to update price")
	}
}
