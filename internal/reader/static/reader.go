// Package static implements the page reader over plain HTTP with colly,
// for category pages that render server-side. It is the cheap probe path;
// JS-only grids need the chromedp reader.
package static

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/gocolly/colly/v2"

	"clearancewatch/internal/monitor"
	"clearancewatch/internal/retailer"
)

// Config controls collector behavior.
type Config struct {
	UserAgent string
	Timeout   time.Duration
}

// Reader builds per-ZIP collector sessions.
type Reader struct {
	profile *retailer.Profile
	cfg     Config
}

// New builds a Reader.
func New(profile *retailer.Profile, cfg Config) (*Reader, error) {
	if profile == nil {
		return nil, fmt.Errorf("retailer profile is required")
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 15 * time.Second
	}
	return &Reader{profile: profile, cfg: cfg}, nil
}

// NewSession creates a collector with its own cookie jar, so the store
// selection cookie stays scoped to one ZIP.
func (r *Reader) NewSession(_ context.Context) (monitor.PageReader, func(), error) {
	c := colly.NewCollector(colly.Async(false))
	c.IgnoreRobotsTxt = false
	if r.cfg.UserAgent != "" {
		c.UserAgent = r.cfg.UserAgent
	}
	c.SetRequestTimeout(r.cfg.Timeout)
	return &Session{reader: r, collector: c}, func() {}, nil
}

// Session is one cookie-scoped collector.
type Session struct {
	reader    *Reader
	collector *colly.Collector
}

// SetStore fetches the store locator page and reads the resulting badge.
func (s *Session) SetStore(ctx context.Context, zip string) (monitor.StoreContext, error) {
	if err := ctx.Err(); err != nil {
		return monitor.StoreContext{}, err
	}
	profile := s.reader.profile
	storeURL := profile.StoreURL(zip)

	var badge string
	collector := s.collector.Clone()
	collector.OnHTML(profile.Selectors.StoreBadge, func(e *colly.HTMLElement) {
		if badge == "" {
			badge = strings.TrimSpace(e.Text)
		}
	})
	var fetchErr error
	collector.OnError(func(_ *colly.Response, err error) {
		fetchErr = err
	})

	if err := collector.Visit(storeURL); err != nil {
		return monitor.StoreContext{}, &monitor.TransientFetchError{URL: storeURL, Err: err}
	}
	collector.Wait()
	if fetchErr != nil {
		return monitor.StoreContext{}, &monitor.TransientFetchError{URL: storeURL, Err: fetchErr}
	}
	if badge == "" {
		return monitor.StoreContext{}, fmt.Errorf("no store badge after locating zip %s", zip)
	}
	sc := monitor.StoreContext{
		StoreID:   retailer.ParseStoreID(badge),
		StoreName: badge,
	}
	if sc.StoreID == "" {
		sc.StoreID = zip
	}
	return sc, nil
}

// ListCards fetches one page of a category listing and extracts the cards.
func (s *Session) ListCards(ctx context.Context, categoryURL string, page int) ([]monitor.RawCard, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	profile := s.reader.profile
	pageURL := profile.PageURL(categoryURL, page)

	var (
		cards       []monitor.RawCard
		gridPresent bool
		fetchErr    error
	)
	collector := s.collector.Clone()
	collector.OnHTML(profile.Selectors.Grid, func(*colly.HTMLElement) {
		gridPresent = true
	})
	collector.OnHTML(profile.Selectors.Card, func(e *colly.HTMLElement) {
		link := e.ChildAttr(profile.Selectors.Link, "href")
		if link == "" {
			return
		}
		cards = append(cards, monitor.RawCard{
			SKU:           e.Attr("data-sku"),
			Title:         strings.TrimSpace(e.ChildText(profile.Selectors.Title)),
			PriceText:     strings.TrimSpace(e.ChildText(profile.Selectors.Price)),
			WasPriceText:  strings.TrimSpace(e.ChildText(profile.Selectors.WasPrice)),
			Availability:  strings.TrimSpace(e.ChildText(profile.Selectors.Avail)),
			ImageURL:      e.ChildAttr(profile.Selectors.Image, "src"),
			ProductURL:    e.Request.AbsoluteURL(link),
			ClearanceText: strings.TrimSpace(e.ChildText(profile.Selectors.Clearance)),
		})
	})
	collector.OnError(func(_ *colly.Response, err error) {
		fetchErr = err
	})

	if err := collector.Visit(pageURL); err != nil {
		return nil, &monitor.TransientFetchError{URL: pageURL, Err: err}
	}
	collector.Wait()
	if fetchErr != nil {
		return nil, &monitor.TransientFetchError{URL: pageURL, Err: fetchErr}
	}
	if len(cards) == 0 && !gridPresent {
		return nil, &monitor.SelectorMissError{
			Category: retailer.CategoryName(categoryURL),
			Selector: profile.Selectors.Grid,
		}
	}
	return cards, nil
}
