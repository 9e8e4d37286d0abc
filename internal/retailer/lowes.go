package retailer

import (
	"fmt"
	"net/url"
	"regexp"
	"strings"
)

var lowes = &Profile{
	Name: "lowes",
	Selectors: Selectors{
		Card:       "main li:has(a[href*='/pd/']), main article:has(a[href*='/pd/']), main div:has(a[href*='/pd/'])",
		Title:      "a[href*='/pd/'], h3, h2",
		Price:      "[data-test*='price'], [data-automation-id*='price'], .price, .sale-price",
		WasPrice:   "[data-test*='was'], .was-price, .strike",
		Avail:      "[data-test*='availability'], .availability",
		Image:      "img",
		Link:       "a[href*='/pd/']",
		Clearance:  "[data-test*='clearance'], .clearance-badge",
		StoreBadge: "header [data-test*='store'], header a[href*='store-details']",
		Grid:       "main",
	},
	skuRes: []*regexp.Regexp{lowesPDRe, trailingDigitRe},
	storeURL: func(zip string) string {
		return "https://www.lowes.com/store/?searchTerm=" + url.QueryEscape(zip)
	},
	pageURL: lowesPageURL,
}

// lowesPageURL appends the listing offset; Lowe's paginates 24 cards per page.
func lowesPageURL(categoryURL string, page int) string {
	if page <= 1 {
		return categoryURL
	}
	sep := "?"
	if strings.Contains(categoryURL, "?") {
		sep = "&"
	}
	return fmt.Sprintf("%s%soffset=%d", categoryURL, sep, (page-1)*24)
}
