package retailer

import (
	"fmt"
	"net/url"
	"regexp"
	"strings"
)

var homeDepot = &Profile{
	Name: "homedepot",
	Selectors: Selectors{
		Card:       "main div:has(a[href*='/p/']), main article:has(a[href*='/p/'])",
		Title:      "a[href*='/p/'] span, h3",
		Price:      "[data-testid*='price'], .price, .price-format__main-price",
		WasPrice:   "[data-testid*='was'], .price--was, .strike",
		Avail:      "[data-testid*='fulfillment'], .availability",
		Image:      "img",
		Link:       "a[href*='/p/']",
		Clearance:  "[data-testid*='clearance'], .clearance",
		StoreBadge: "header [data-testid*='store'], header a[href*='/l/']",
		Grid:       "main",
	},
	skuRes: []*regexp.Regexp{homeDepotPRe, trailingDigitRe},
	storeURL: func(zip string) string {
		return "https://www.homedepot.com/l/search/" + url.QueryEscape(zip)
	},
	pageURL: homeDepotPageURL,
}

// homeDepotPageURL appends the navigation offset; 24 cards per page.
func homeDepotPageURL(categoryURL string, page int) string {
	if page <= 1 {
		return categoryURL
	}
	sep := "?"
	if strings.Contains(categoryURL, "?") {
		sep = "&"
	}
	return fmt.Sprintf("%s%sNao=%d", categoryURL, sep, (page-1)*24)
}
