package extract

import (
	"bytes"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// Package extract pulls raw labeled attributes out of a listing detail page
// and normalizes them into the canonical record fields. Both stages are pure:
// a malformed document degrades to missing fields, never to an error.

// RawAttrs maps free-form attribute labels, as printed on the page, to their
// string values.
type RawAttrs map[string]string

const (
	priceSelector       = "h3.offer-price__number"
	mainDetailsSelector = `div[data-testid="main-details-section"]`
	detailSelector      = `div[data-testid="detail"]`
)

// attrTestIDs are the per-attribute containers that appear outside the main
// details section on some page variants.
var attrTestIDs = []string{
	"make", "model", "version", "color", "door_count", "nr_seats",
	"year", "generation", "fuel_type", "engine_capacity", "engine_power",
	"body_type", "gearbox", "transmission", "country_origin", "mileage",
	"new_used", "registered", "no_accident",
}

// Parse builds a queryable document from a raw detail page body.
func Parse(body []byte) (*goquery.Document, error) {
	return goquery.NewDocumentFromReader(bytes.NewReader(body))
}

// Details extracts the price and every labeled attribute section from the
// document. Sections that do not yield exactly one label and one value are
// skipped. Absence of anything, including the whole document structure,
// yields an empty map.
func Details(doc *goquery.Document) RawAttrs {
	attrs := RawAttrs{}
	if doc == nil {
		return attrs
	}

	if price := strings.TrimSpace(doc.Find(priceSelector).First().Text()); price != "" {
		attrs["price"] = price
	}

	doc.Find(mainDetailsSelector).Find(detailSelector).Each(func(_ int, sel *goquery.Selection) {
		addLabeledPair(attrs, sel)
	})

	for _, testid := range attrTestIDs {
		sel := doc.Find(`div[data-testid="` + testid + `"]`).First()
		if sel.Length() > 0 {
			addLabeledPair(attrs, sel)
		}
	}

	return attrs
}

// addLabeledPair reads a label/value pair from a section holding exactly two
// <p> tags and records it.
func addLabeledPair(attrs RawAttrs, sel *goquery.Selection) {
	paras := sel.Find("p")
	if paras.Length() != 2 {
		return
	}
	label := strings.TrimSpace(paras.Eq(0).Text())
	value := strings.TrimSpace(paras.Eq(1).Text())
	if label == "" || value == "" {
		return
	}
	attrs[label] = value
}
