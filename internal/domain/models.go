package domain

// Domain contains the core crawl models shared across packages.

// Stub is the minimal per-listing data visible on a search results page,
// collected before the detail page is fetched.
type Stub struct {
	ID          string
	URL         string
	Title       string
	Description string
}

// Record is one normalized output row keyed by schema field name. Every
// committed record carries all schema fields as keys, empty when unknown.
type Record map[string]string

// Schema is the fixed, ordered set of output fields. The order is the CSV
// column order and must stay stable across runs of the same output file.
var Schema = []string{
	"url",
	"name",
	"description",
	"price",
	"make",
	"model",
	"version",
	"color",
	"door_count",
	"nr_seats",
	"year",
	"generation",
	"fuel_type",
	"engine_capacity",
	"engine_power",
	"body_type",
	"gearbox",
	"transmission",
	"country_origin",
	"mileage",
	"new_used",
	"registered",
	"no_accident",
}

// NewRecord returns a record with every schema field present and empty.
func NewRecord() Record {
	rec := make(Record, len(Schema))
	for _, field := range Schema {
		rec[field] = ""
	}
	return rec
}

// Merge copies non-empty values for known schema fields from src into the
// record. Unknown keys are ignored.
func (r Record) Merge(src map[string]string) {
	if len(src) == 0 {
		return
	}
	for _, field := range Schema {
		if v, ok := src[field]; ok && v != "" {
			r[field] = v
		}
	}
}

// Row renders the record values in schema order.
func (r Record) Row() []string {
	row := make([]string, len(Schema))
	for i, field := range Schema {
		row[i] = r[field]
	}
	return row
}
