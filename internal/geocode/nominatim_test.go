package geocode

import "testing"

func TestParseNominatimItems(t *testing.T) {
	items := []nominatimItem{
		{
			Lat:         "-8.0476",
			Lon:         "-34.8770",
			DisplayName: "Recife, Pernambuco, Brasil",
			Importance:  0.68,
		},
	}
	res, err := parseNominatimItems(items)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Lat != -8.0476 || res.Lon != -34.8770 {
		t.Fatalf("unexpected coordinates: %+v", res)
	}
	if res.DisplayName != "Recife, Pernambuco, Brasil" {
		t.Fatalf("unexpected display name: %s", res.DisplayName)
	}
	if res.Confidence != 0.68 {
		t.Fatalf("unexpected confidence: %f", res.Confidence)
	}
}

func TestParseNominatimItemsEmpty(t *testing.T) {
	if _, err := parseNominatimItems(nil); err != ErrNotFound {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}
