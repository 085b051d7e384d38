package geocode

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"sync"
	"time"
)

const (
	defaultBaseURL   = "https://nominatim.openstreetmap.org"
	defaultUserAgent = "reparai-backend"

	// Nominatim's usage policy asks for at most one request per second.
	defaultMinInterval = time.Second
)

// NominatimGeocoder resolves provider addresses through the public
// Nominatim API. Results are cached per query for the process lifetime;
// addresses do not move.
type NominatimGeocoder struct {
	BaseURL     string
	UserAgent   string
	MinInterval time.Duration
	Client      *http.Client

	mu        sync.Mutex
	lastReqAt time.Time
	cache     map[string]nominatimResult
}

type nominatimResult struct {
	Lat         float64
	Lon         float64
	DisplayName string
	Confidence  float64
}

type nominatimItem struct {
	Lat         string  `json:"lat"`
	Lon         string  `json:"lon"`
	DisplayName string  `json:"display_name"`
	Importance  float64 `json:"importance"`
}

func (g *NominatimGeocoder) Geocode(ctx context.Context, query string) (float64, float64, string, float64, error) {
	if cached, ok := g.fromCache(query); ok {
		return cached.Lat, cached.Lon, cached.DisplayName, cached.Confidence, nil
	}
	g.throttle()

	items, err := g.search(ctx, query)
	if err != nil {
		return 0, 0, "", 0, err
	}
	result, err := parseNominatimItems(items)
	if err != nil {
		return 0, 0, "", 0, err
	}

	g.mu.Lock()
	g.cache[query] = result
	g.mu.Unlock()
	return result.Lat, result.Lon, result.DisplayName, result.Confidence, nil
}

func (g *NominatimGeocoder) fromCache(query string) (nominatimResult, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.cache == nil {
		g.cache = map[string]nominatimResult{}
	}
	res, ok := g.cache[query]
	return res, ok
}

func (g *NominatimGeocoder) throttle() {
	interval := g.MinInterval
	if interval <= 0 {
		interval = defaultMinInterval
	}
	g.mu.Lock()
	wait := time.Until(g.lastReqAt.Add(interval))
	if wait > 0 {
		g.mu.Unlock()
		time.Sleep(wait)
		g.mu.Lock()
	}
	g.lastReqAt = time.Now()
	g.mu.Unlock()
}

func (g *NominatimGeocoder) search(ctx context.Context, query string) ([]nominatimItem, error) {
	base := g.BaseURL
	if base == "" {
		base = defaultBaseURL
	}
	agent := g.UserAgent
	if agent == "" {
		agent = defaultUserAgent
	}
	client := g.Client
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}

	endpoint := fmt.Sprintf("%s/search?q=%s&format=json&addressdetails=1&limit=1", base, url.QueryEscape(query))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", agent)

	resp, err := client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("nominatim http error: %s", resp.Status)
	}

	var items []nominatimItem
	if err := json.NewDecoder(resp.Body).Decode(&items); err != nil {
		return nil, err
	}
	return items, nil
}

func parseNominatimItems(items []nominatimItem) (nominatimResult, error) {
	if len(items) == 0 {
		return nominatimResult{}, ErrNotFound
	}
	lat, err := strconv.ParseFloat(items[0].Lat, 64)
	if err != nil {
		return nominatimResult{}, err
	}
	lon, err := strconv.ParseFloat(items[0].Lon, 64)
	if err != nil {
		return nominatimResult{}, err
	}
	return nominatimResult{
		Lat:         lat,
		Lon:         lon,
		DisplayName: items[0].DisplayName,
		Confidence:  items[0].Importance,
	}, nil
}
