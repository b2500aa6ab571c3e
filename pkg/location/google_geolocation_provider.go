package location

import (
	"context"
	"fmt"
	"time"

	"googlemaps.github.io/maps"
)

const defaultGeolocateTimeout = 10 * time.Second

// geolocator is the subset of *maps.Client used by the provider.
type geolocator interface {
	Geolocate(ctx context.Context, r *maps.GeolocationRequest) (*maps.GeolocationResult, error)
}

// GoogleGeolocationProvider uses the Google Maps Geolocation API to estimate a position
// from nearby WiFi access points, the serving cell tower and the public IP.
type GoogleGeolocationProvider struct {
	client     geolocator
	modemIndex int
	timeout    time.Duration

	wifiScanner func(ctx context.Context) ([]maps.WiFiAccessPoint, error)
	cellScanner func(ctx context.Context, modemIndex int) ([]maps.CellTower, error)
}

// NewGoogleGeolocationProvider creates a new GoogleGeolocationProvider instance.
func NewGoogleGeolocationProvider(apiKey string, modemIndex int) (*GoogleGeolocationProvider, error) {
	c, err := maps.NewClient(maps.WithAPIKey(apiKey))
	if err != nil {
		return nil, fmt.Errorf("failed to create maps client: %w", err)
	}

	return &GoogleGeolocationProvider{
		client:      c,
		modemIndex:  modemIndex,
		timeout:     defaultGeolocateTimeout,
		wifiScanner: getWiFiAccessPoints,
		cellScanner: getCellTowers,
	}, nil
}

func (g *GoogleGeolocationProvider) Name() string { return "google" }

// GetLocation retrieves the position estimate. Scan failures are tolerated since the
// API falls back to IP based lookup.
func (g *GoogleGeolocationProvider) GetLocation(ctx context.Context) (Location, error) {
	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	req := &maps.GeolocationRequest{ConsiderIP: true}

	if wifiAPs, err := g.wifiScanner(ctx); err == nil {
		req.WiFiAccessPoints = wifiAPs
	}
	if cellTowers, err := g.cellScanner(ctx, g.modemIndex); err == nil {
		req.CellTowers = cellTowers
	}

	resp, err := g.client.Geolocate(ctx, req)
	if err != nil {
		return Location{}, fmt.Errorf("geolocate request failed: %w", err)
	}

	return Location{
		Latitude:  resp.Location.Lat,
		Longitude: resp.Location.Lng,
		Accuracy:  resp.Accuracy,
	}, nil
}

// Close is a no-op; the maps client holds no long-lived resources.
func (g *GoogleGeolocationProvider) Close() error {
	return nil
}
