// Package retailer holds per-retailer page structure: the CSS selectors the
// readers extract with and the URL conventions SKUs and categories follow.
package retailer

import (
	"fmt"
	"regexp"
	"strings"
)

// Selectors names the DOM locations card fields are read from.
type Selectors struct {
	Card       string
	Title      string
	Price      string
	WasPrice   string
	Avail      string
	Image      string
	Link       string
	Clearance  string
	StoreBadge string
	// Grid must exist on any intact category page; its absence together
	// with zero cards is the structural-change signal.
	Grid string
}

// Profile describes one supported retailer.
type Profile struct {
	Name      string
	Selectors Selectors
	skuRes    []*regexp.Regexp
	storeURL  func(zip string) string
	pageURL   func(categoryURL string, page int) string
}

// PageURL returns the URL for one page of a category listing.
func (p *Profile) PageURL(categoryURL string, page int) string {
	return p.pageURL(categoryURL, page)
}

// StoreURL returns the store-locator URL for a ZIP.
func (p *Profile) StoreURL(zip string) string {
	return p.storeURL(zip)
}

// ExtractSKU pulls the SKU out of a product URL, e.g.
// https://www.lowes.com/pd/Some-Drill/5001844889 -> 5001844889.
func (p *Profile) ExtractSKU(productURL string) string {
	for _, re := range p.skuRes {
		if m := re.FindStringSubmatch(productURL); m != nil {
			return m[1]
		}
	}
	return ""
}

var (
	lowesPDRe       = regexp.MustCompile(`/pd/[^/]+/(\d+)`)
	homeDepotPRe    = regexp.MustCompile(`/p/[^/]*?(\d{9})`)
	trailingDigitRe = regexp.MustCompile(`/(\d{6,})(?:\?|$)`)
	categoryPLRe    = regexp.MustCompile(`/pl/([^/]+)/\d+`)
	storeNameRe     = regexp.MustCompile(`^([^,]+),\s*([A-Z]{2})`)
	storeTrailerRe  = regexp.MustCompile(`\s*[#(].*`)
	storeIDRe       = regexp.MustCompile(`#\s*(\d+)`)
)

// Lookup returns the profile for a retailer name.
func Lookup(name string) (*Profile, error) {
	switch strings.ToLower(name) {
	case "lowes":
		return lowes, nil
	case "homedepot":
		return homeDepot, nil
	default:
		return nil, fmt.Errorf("unknown retailer %q", name)
	}
}

// CategoryName derives a readable category name from a category URL:
// /pl/Drill-bits--Power-tool-accessories/4294857975 -> "Drill Bits".
func CategoryName(categoryURL string) string {
	if m := categoryPLRe.FindStringSubmatch(categoryURL); m != nil {
		raw := strings.SplitN(m[1], "--", 2)[0]
		cleaned := strings.TrimSpace(strings.ReplaceAll(raw, "-", " "))
		if cleaned != "" {
			return titleCase(cleaned)
		}
	}
	return "Clearance"
}

func titleCase(s string) string {
	words := strings.Fields(strings.ToLower(s))
	for i, w := range words {
		words[i] = strings.ToUpper(w[:1]) + w[1:]
	}
	return strings.Join(words, " ")
}

// ParseStoreName splits "Seattle, WA (#0001)" into city and state. The
// store numbering suffix is stripped when no state is present.
func ParseStoreName(storeName string) (city, state string) {
	if m := storeNameRe.FindStringSubmatch(storeName); m != nil {
		return strings.TrimSpace(m[1]), strings.TrimSpace(m[2])
	}
	return strings.TrimSpace(storeTrailerRe.ReplaceAllString(storeName, "")), ""
}

// ParseStoreID extracts the store number from a badge like
// "Seattle Lowe's #0001". Empty when no number is present.
func ParseStoreID(badgeText string) string {
	if m := storeIDRe.FindStringSubmatch(badgeText); m != nil {
		return m[1]
	}
	return ""
}
