package geocode

import (
	"testing"

	"github.com/Johnmelogay/reparai-app-sub000/internal/models"
)

func TestBuildGeocodeQuery(t *testing.T) {
	q := BuildGeocodeQuery("Brasil", "Recife", "Rua da Aurora 100")
	if q != "Brasil, Recife, Rua da Aurora 100" {
		t.Fatalf("unexpected query: %s", q)
	}
}

func TestShouldGeocodeSkipWhenLatLonExists(t *testing.T) {
	lat := -8.0476
	lon := -34.8770
	p := models.Provider{ID: "p1", Name: "Oficina Central", Lat: &lat, Lon: &lon}
	if ShouldGeocode(p, false) {
		t.Fatalf("expected geocode to be skipped when lat/lon exist")
	}
	if !ShouldGeocode(p, true) {
		t.Fatalf("expected geocode when force is true")
	}
}
