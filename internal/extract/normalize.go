package extract

// labelToField maps the source site's attribute labels to canonical schema
// fields. It is configuration data, not logic: pointing the harvester at a
// differently localized front-end only requires swapping this table. Labels
// without an entry are dropped on normalization.
var labelToField = map[string]string{
	"Rok produkcji":           "year",
	"Marka pojazdu":           "make",
	"Model pojazdu":           "model",
	"Wersja":                  "version",
	"Kolor":                   "color",
	"Liczba drzwi":            "door_count",
	"Liczba miejsc":           "nr_seats",
	"Generacja":               "generation",
	"Rodzaj paliwa":           "fuel_type",
	"Pojemność skokowa":       "engine_capacity",
	"Moc":                     "engine_power",
	"Typ":                     "body_type",
	"Skrzynia biegów":         "gearbox",
	"Napęd":                   "transmission",
	"Kraj pochodzenia":        "country_origin",
	"Przebieg":                "mileage",
	"Stan":                    "new_used",
	"Zarejestrowany w Polsce": "registered",
	"Bezwypadkowy":            "no_accident",
	"price":                   "price",
}

// Normalize translates raw labels into canonical field names via the label
// table. Exact string match only; unknown labels are silently dropped.
func Normalize(attrs RawAttrs) map[string]string {
	out := make(map[string]string, len(attrs))
	for label, value := range attrs {
		if field, ok := labelToField[label]; ok {
			out[field] = value
		}
	}
	return out
}
