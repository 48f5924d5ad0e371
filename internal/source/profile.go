package source

import (
	"fmt"
	"strings"

	"github.com/PuerkitoBio/goquery"

	apperrors "pricewatch/internal/errors"
)

// Profile lists the selector cascades for one store layout. Each cascade is
// tried in order and the first match with usable text wins.
type Profile struct {
	Name        string
	NameSel     []string
	PriceSel    []string
	OldPriceSel []string
}

// Alkosto matches the product pages of alkosto.com.
var Alkosto = Profile{
	Name: "alkosto",
	NameSel: []string{
		"main > section:first-child > div:first-child > div:first-child > div:first-child > h1",
		"main section:first-child h1",
		"main h1",
		`h1[data-testid="product-title"]`,
		"h1.product-title",
		`h1[class*="title"]`,
		".product-name h1",
		"h1",
	},
	PriceSel: []string{
		"#js-original_price",
		".session-price",
		".price-block",
		".product__details-section__price",
		`[data-testid="price-current"]`,
		".price-current",
		".current-price",
		`[class*="price"][class*="current"]`,
		".price",
	},
	OldPriceSel: []string{
		"#js-original_price_old span",
		"#js-original_price_old",
		`[data-testid="price-old"]`,
		".price-old",
		".old-price",
		`[class*="price"][class*="old"]`,
		".price .strikethrough",
		"del",
		"s",
	},
}

// Generic is a fallback for pages using common product markup.
var Generic = Profile{
	Name:        "generic",
	NameSel:     []string{`[itemprop="name"]`, "h1"},
	PriceSel:    []string{`[itemprop="price"]`, ".price-current", ".current-price", ".price"},
	OldPriceSel: []string{".price-old", ".old-price", "del", "s"},
}

// Extract reads the name and prices from a parsed page. When a struck-through
// price is shown it is the official price and the displayed one is the
// discount; otherwise the displayed price is official.
func (p Profile) Extract(doc *goquery.Selection) (Result, error) {
	name := p.firstText(doc, p.NameSel)
	if name == "" {
		return Result{}, apperrors.WithMessage(apperrors.ErrExtraction, fmt.Sprintf("%s: product name not found", p.Name))
	}

	current, ok := p.firstPrice(doc, p.PriceSel, true)
	if !ok {
		return Result{}, apperrors.WithMessage(apperrors.ErrExtraction, fmt.Sprintf("%s: current price not found", p.Name))
	}

	res := Result{Name: name, Official: current}
	if old, ok := p.firstPrice(doc, p.OldPriceSel, false); ok && old > current {
		d := current
		res.Official = old
		res.Discounted = &d
	}
	return res, nil
}

func (p Profile) firstText(doc *goquery.Selection, selectors []string) string {
	for _, sel := range selectors {
		var text string
		doc.Find(sel).EachWithBreak(func(_ int, s *goquery.Selection) bool {
			text = strings.Join(strings.Fields(s.Text()), " ")
			return text == ""
		})
		if text != "" {
			return text
		}
	}
	return ""
}

// firstPrice scans the cascade for a positive price. The current price may be
// embedded in longer text, so scan picks the first price token inside it.
func (p Profile) firstPrice(doc *goquery.Selection, selectors []string, scan bool) (float64, bool) {
	for _, sel := range selectors {
		var (
			price float64
			found bool
		)
		doc.Find(sel).EachWithBreak(func(_ int, s *goquery.Selection) bool {
			text := strings.TrimSpace(s.Text())
			if text == "" {
				return true
			}
			if scan {
				price, found = firstPrice(text)
			} else if v, err := ParsePrice(text); err == nil && v > 0 {
				price, found = v, true
			}
			return !found
		})
		if found {
			return price, true
		}
	}
	return 0, false
}
