package geocode

import (
	"context"
	"errors"
	"strings"

	"github.com/Johnmelogay/reparai-app-sub000/internal/models"
)

var ErrNotFound = errors.New("geocode not found")

type Geocoder interface {
	Geocode(ctx context.Context, query string) (lat float64, lon float64, displayName string, confidence float64, err error)
}

func BuildGeocodeQuery(country string, city string, address string) string {
	country = strings.TrimSpace(country)
	city = strings.TrimSpace(city)
	address = strings.TrimSpace(address)
	parts := []string{}
	if country != "" {
		parts = append(parts, country)
	}
	if city != "" {
		parts = append(parts, city)
	}
	if address != "" {
		parts = append(parts, address)
	}
	return strings.Join(parts, ", ")
}

func ShouldGeocode(p models.Provider, force bool) bool {
	if force {
		return true
	}
	return p.Lat == nil || p.Lon == nil
}
