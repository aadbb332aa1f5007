package parse

import (
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"

	"github.com/jdsanchez93/costco-receipt-parser/internal/ocr"
)

var (
	// "E 123456 KS MILK" or "123456 KS MILK"
	itemLineRe = regexp.MustCompile(`^(?:E\s+)?(\d+)\s+(.+)$`)
	// "3.99", "-3.99", "3.99 A"
	priceLineRe = regexp.MustCompile(`^(-?\d+\.\d{2})(?:\s+(\w+))?$`)
	// "317717 / 123456": a discount marker referencing item 123456
	discountLineRe = regexp.MustCompile(`^(?:E\s+)?\d+\s+/\s*(\d+)$`)
	// "-1.00", "1.00-A"
	discountAmountRe = regexp.MustCompile(`^(-?\d+\.\d{2})-?\w*$`)
)

// ParseItems walks the ordered line sequence with a two-line window,
// emitting an item for each item/price pair and folding discount pairs back
// into the most recent matching item. Lines that fit neither pattern are
// skipped one at a time; a trailing unpaired line never starts a window.
func ParseItems(lines []ocr.Line) []Item {
	items := make([]Item, 0)

	i := 0
	for i < len(lines)-1 {
		first := strings.TrimSpace(lines[i].Text)
		second := strings.TrimSpace(lines[i+1].Text)

		if item, ok := matchItem(first, second); ok {
			items = append(items, item)
			i += 2
			continue
		}
		if number, amount, ok := matchDiscount(first, second); ok {
			applyDiscount(items, number, amount)
			i += 2
			continue
		}
		i++
	}

	for idx := range items {
		items[idx].ItemID = fmt.Sprintf("%03d", idx)
	}
	return items
}

// matchItem tests an item line followed by a price line. Discount markers
// also look like "number + remainder", so they are excluded here; the two
// patterns are mutually exclusive.
func matchItem(first, second string) (Item, bool) {
	if discountLineRe.MatchString(first) {
		return Item{}, false
	}
	itemMatch := itemLineRe.FindStringSubmatch(first)
	if itemMatch == nil {
		return Item{}, false
	}
	priceMatch := priceLineRe.FindStringSubmatch(second)
	if priceMatch == nil {
		return Item{}, false
	}
	price, err := strconv.ParseFloat(priceMatch[1], 64)
	if err != nil {
		return Item{}, false
	}
	return Item{
		ItemNumber: itemMatch[1],
		Name:       itemMatch[2],
		Price:      price,
		TaxCode:    priceMatch[2],
	}, true
}

// matchDiscount tests a discount marker line followed by an amount line,
// returning the referenced item number and the discount magnitude.
func matchDiscount(first, second string) (string, float64, bool) {
	markerMatch := discountLineRe.FindStringSubmatch(first)
	if markerMatch == nil {
		return "", 0, false
	}
	amountMatch := discountAmountRe.FindStringSubmatch(second)
	if amountMatch == nil {
		return "", 0, false
	}
	amount, err := strconv.ParseFloat(amountMatch[1], 64)
	if err != nil {
		return "", 0, false
	}
	return markerMatch[1], math.Abs(amount), true
}

// applyDiscount credits the most recently emitted item carrying the
// referenced number. Discounts accumulate; orphans are dropped.
func applyDiscount(items []Item, number string, amount float64) {
	for idx := len(items) - 1; idx >= 0; idx-- {
		if items[idx].ItemNumber == number {
			items[idx].Discount += amount
			return
		}
	}
}
