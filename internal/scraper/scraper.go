package scraper

import (
	"bytes"
	"context"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/go-resty/resty/v2"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
)

// ProductInfo is the result of scraping a product page.
type ProductInfo struct {
	Title string
	Price float64
}

// Selector lists cover the common markup of the big e-commerce sites.
// Each list is tried in order until one yields a usable value.
var (
	titleSelectors = []string{
		"#productTitle",
		"h1.product-title",
		".B_NuCI",
		".pdp-title",
		"h1",
	}
	priceSelectors = []string{
		".a-price-whole",
		".a-offscreen",
		"._30jeq3",
		"span.price",
		".product-price",
		".pdp-price",
	}
	nonPriceChars = regexp.MustCompile(`[^\d.]`)
)

// Scraper fetches product pages and extracts title and price.
type Scraper struct {
	client *resty.Client
}

// New creates a scraper with browser-like headers and a request timeout.
func New() *Scraper {
	client := resty.New().
		SetTimeout(10 * time.Second).
		SetHeaders(map[string]string{
			"User-Agent":      "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/91.0.4472.124 Safari/537.36",
			"Accept":          "text/html,application/xhtml+xml,application/xml;q=0.9,image/webp,*/*;q=0.8",
			"Accept-Language": "en-US,en;q=0.9",
		})
	return &Scraper{client: client}
}

// Fetch retrieves the product page at url and extracts its title and price.
// Any failure (network, bad status, unparseable markup, no price found) is
// returned as an error; callers do not need to distinguish the kinds.
func (s *Scraper) Fetch(ctx context.Context, url string) (*ProductInfo, error) {
	resp, err := s.client.R().SetContext(ctx).Get(url)
	if err != nil {
		return nil, errors.Wrapf(err, "request %s", url)
	}
	if resp.IsError() {
		return nil, errors.Errorf("request %s: status code %d", url, resp.StatusCode())
	}

	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(resp.Body()))
	if err != nil {
		return nil, errors.Wrap(err, "parse document")
	}

	title := extractTitle(doc)
	price, err := extractPrice(doc)
	if err != nil {
		return nil, errors.Wrapf(err, "extract price from %s", url)
	}

	log.WithFields(log.Fields{"title": title, "price": price, "url": url}).Debug("Scraped product")
	return &ProductInfo{Title: title, Price: price}, nil
}

func extractTitle(doc *goquery.Document) string {
	for _, selector := range titleSelectors {
		text := strings.TrimSpace(doc.Find(selector).First().Text())
		if text != "" {
			return text
		}
	}
	return "Product Title Not Found"
}

func extractPrice(doc *goquery.Document) (float64, error) {
	for _, selector := range priceSelectors {
		text := strings.TrimSpace(doc.Find(selector).First().Text())
		if text == "" {
			continue
		}
		// Strip currency symbols and thousands separators before parsing.
		cleaned := nonPriceChars.ReplaceAllString(text, "")
		if cleaned == "" {
			continue
		}
		price, err := strconv.ParseFloat(cleaned, 64)
		if err != nil {
			continue
		}
		return price, nil
	}
	return 0, errors.New("price not found on page")
}
