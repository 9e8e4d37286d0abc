// Package chromedpreader implements the page reader with a headless
// browser via chromedp. Retail category grids are JS-rendered, so the DOM
// must be fully built before card extraction.
package chromedpreader

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/chromedp/cdproto/emulation"
	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/chromedp"

	"clearancewatch/internal/monitor"
	"clearancewatch/internal/retailer"
)

// Config controls the behavior of the headless reader.
type Config struct {
	MaxParallel       int
	UserAgent         string
	NavigationTimeout time.Duration
	// SettleDelay waits for late card hydration after the DOM is ready.
	SettleDelay time.Duration
}

// Reader owns the browser allocator shared by all sessions.
type Reader struct {
	profile     *retailer.Profile
	cfg         Config
	limiter     chan struct{}
	allocator   context.Context
	allocCancel context.CancelFunc
}

// New creates a headless reader backed by chromedp.
func New(profile *retailer.Profile, cfg Config) (*Reader, error) {
	if profile == nil {
		return nil, fmt.Errorf("retailer profile is required")
	}
	if cfg.MaxParallel < 0 {
		return nil, fmt.Errorf("max parallel must be >= 0")
	}
	if cfg.NavigationTimeout <= 0 {
		cfg.NavigationTimeout = 45 * time.Second
	}
	if cfg.SettleDelay <= 0 {
		cfg.SettleDelay = 500 * time.Millisecond
	}
	var limiter chan struct{}
	if cfg.MaxParallel > 0 {
		limiter = make(chan struct{}, cfg.MaxParallel)
	}

	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", "new"),
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("hide-scrollbars", true),
		chromedp.Flag("enable-automation", false),
	)
	allocCtx, allocCancel := chromedp.NewExecAllocator(context.Background(), opts...)

	return &Reader{
		profile:     profile,
		cfg:         cfg,
		limiter:     limiter,
		allocator:   allocCtx,
		allocCancel: allocCancel,
	}, nil
}

// Close cancels the allocator context.
func (r *Reader) Close() {
	r.allocCancel()
}

// NewSession opens a fresh browser tab. Store selection is cookie-scoped,
// so every ZIP runs in its own tab context.
func (r *Reader) NewSession(ctx context.Context) (monitor.PageReader, func(), error) {
	if err := r.acquire(ctx); err != nil {
		return nil, nil, err
	}
	tabCtx, tabCancel := chromedp.NewContext(r.allocator)
	session := &Session{reader: r, tab: tabCtx}
	release := func() {
		tabCancel()
		r.release()
	}
	return session, release, nil
}

func (r *Reader) acquire(ctx context.Context) error {
	if r.limiter == nil {
		return nil
	}
	select {
	case r.limiter <- struct{}{}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (r *Reader) release() {
	if r.limiter != nil {
		<-r.limiter
	}
}

// Session is one tab bound to at most one store context.
type Session struct {
	reader *Reader
	tab    context.Context
}

// SetStore navigates the store locator, selects the first result, and
// reads the store badge back to confirm which store is now in scope.
func (s *Session) SetStore(ctx context.Context, zip string) (monitor.StoreContext, error) {
	profile := s.reader.profile
	runCtx, cancel := s.runContext(ctx)
	defer cancel()

	var badge string
	actions := []chromedp.Action{
		s.networkSetup(),
		chromedp.Navigate(profile.StoreURL(zip)),
		chromedp.WaitReady("body", chromedp.ByQuery),
		chromedp.Sleep(s.reader.cfg.SettleDelay),
		clickFirst(profile.Selectors.StoreBadge),
		chromedp.Sleep(s.reader.cfg.SettleDelay),
		textOf(profile.Selectors.StoreBadge, &badge),
	}
	if err := chromedp.Run(runCtx, actions...); err != nil {
		return monitor.StoreContext{}, &monitor.TransientFetchError{URL: profile.StoreURL(zip), Err: err}
	}

	badge = strings.TrimSpace(badge)
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

// ListCards renders one page of a category listing and extracts the cards.
func (s *Session) ListCards(ctx context.Context, categoryURL string, page int) ([]monitor.RawCard, error) {
	profile := s.reader.profile
	pageURL := profile.PageURL(categoryURL, page)
	runCtx, cancel := s.runContext(ctx)
	defer cancel()

	var payload string
	actions := []chromedp.Action{
		chromedp.Navigate(pageURL),
		chromedp.WaitReady("body", chromedp.ByQuery),
		chromedp.Sleep(s.reader.cfg.SettleDelay),
		chromedp.Evaluate(extractScript(profile.Selectors), &payload),
	}
	if err := chromedp.Run(runCtx, actions...); err != nil {
		return nil, &monitor.TransientFetchError{URL: pageURL, Err: err}
	}

	var extracted struct {
		GridPresent bool      `json:"gridPresent"`
		Cards       []cardDTO `json:"cards"`
	}
	if err := json.Unmarshal([]byte(payload), &extracted); err != nil {
		return nil, &monitor.TransientFetchError{URL: pageURL, Err: err}
	}
	if len(extracted.Cards) == 0 && !extracted.GridPresent {
		return nil, &monitor.SelectorMissError{
			Category: retailer.CategoryName(categoryURL),
			Selector: profile.Selectors.Grid,
		}
	}

	cards := make([]monitor.RawCard, 0, len(extracted.Cards))
	for _, c := range extracted.Cards {
		cards = append(cards, monitor.RawCard{
			SKU:           c.SKU,
			Title:         c.Title,
			PriceText:     c.Price,
			WasPriceText:  c.Was,
			Availability:  c.Avail,
			ImageURL:      c.Image,
			ProductURL:    c.Link,
			ClearanceText: c.Clearance,
		})
	}
	return cards, nil
}

func (s *Session) runContext(ctx context.Context) (context.Context, context.CancelFunc) {
	runCtx, cancelTimeout := context.WithTimeout(s.tab, s.reader.cfg.NavigationTimeout)
	stop := context.AfterFunc(ctx, cancelTimeout)
	return runCtx, func() {
		stop()
		cancelTimeout()
	}
}

func (s *Session) networkSetup() chromedp.Action {
	return chromedp.ActionFunc(func(ctx context.Context) error {
		if err := network.Enable().Do(ctx); err != nil {
			return fmt.Errorf("enable network domain: %w", err)
		}
		if ua := s.reader.cfg.UserAgent; ua != "" {
			if err := emulation.SetUserAgentOverride(ua).Do(ctx); err != nil {
				return fmt.Errorf("set user-agent: %w", err)
			}
		}
		return nil
	})
}

type cardDTO struct {
	SKU       string `json:"sku"`
	Title     string `json:"title"`
	Price     string `json:"price"`
	Was       string `json:"was"`
	Avail     string `json:"avail"`
	Image     string `json:"image"`
	Link      string `json:"link"`
	Clearance string `json:"clearance"`
}

func clickFirst(selector string) chromedp.Action {
	script := fmt.Sprintf(
		`(() => { const el = document.querySelector(%q); if (el) { el.click(); } return true; })()`,
		selector)
	var ignored bool
	return chromedp.Evaluate(script, &ignored)
}

func textOf(selector string, out *string) chromedp.Action {
	script := fmt.Sprintf(
		`(() => { const el = document.querySelector(%q); return el ? el.textContent : ""; })()`,
		selector)
	return chromedp.Evaluate(script, out)
}

// extractScript walks the card nodes in-page and returns JSON, so one
// round trip covers the whole grid.
func extractScript(sel retailer.Selectors) string {
	return fmt.Sprintf(`JSON.stringify((() => {
	const text = (root, q) => { const el = root.querySelector(q); return el ? el.textContent.trim() : ""; };
	const attr = (root, q, a) => { const el = root.querySelector(q); return el ? (el.getAttribute(a) || "") : ""; };
	const cards = [];
	for (const node of document.querySelectorAll(%q)) {
		const link = attr(node, %q, "href");
		if (!link) { continue; }
		cards.push({
			sku: node.getAttribute("data-sku") || "",
			title: text(node, %q),
			price: text(node, %q),
			was: text(node, %q),
			avail: text(node, %q),
			image: attr(node, %q, "src"),
			link: new URL(link, document.baseURI).toString(),
			clearance: text(node, %q),
		});
	}
	return { gridPresent: document.querySelector(%q) !== null, cards };
})())`,
		sel.Card, sel.Link, sel.Title, sel.Price, sel.WasPrice,
		sel.Avail, sel.Image, sel.Clearance, sel.Grid)
}
