package location

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"googlemaps.github.io/maps"
)

type fakeGeolocator struct {
	req  *maps.GeolocationRequest
	resp *maps.GeolocationResult
	err  error
}

func (f *fakeGeolocator) Geolocate(_ context.Context, r *maps.GeolocationRequest) (*maps.GeolocationResult, error) {
	f.req = r
	return f.resp, f.err
}

func newTestGoogleProvider(g geolocator) *GoogleGeolocationProvider {
	return &GoogleGeolocationProvider{
		client:  g,
		timeout: time.Second,
		wifiScanner: func(context.Context) ([]maps.WiFiAccessPoint, error) {
			return []maps.WiFiAccessPoint{{MACAddress: "00:14:22:01:23:45", SignalStrength: 70}}, nil
		},
		cellScanner: func(context.Context, int) ([]maps.CellTower, error) {
			return nil, errors.New("no modem")
		},
	}
}

func TestGoogleGeolocationProvider_GetLocation(t *testing.T) {
	g := &fakeGeolocator{resp: &maps.GeolocationResult{
		Location: maps.LatLng{Lat: 58.00937, Lng: 56.20786},
		Accuracy: 25,
	}}
	p := newTestGoogleProvider(g)

	loc, err := p.GetLocation(context.Background())
	require.NoError(t, err)
	assert.Equal(t, Location{Latitude: 58.00937, Longitude: 56.20786, Accuracy: 25}, loc)
	assert.True(t, g.req.ConsiderIP)
	assert.Len(t, g.req.WiFiAccessPoints, 1)
	assert.Empty(t, g.req.CellTowers)
	assert.Equal(t, "google", p.Name())
}

func TestGoogleGeolocationProvider_RequestError(t *testing.T) {
	p := newTestGoogleProvider(&fakeGeolocator{err: errors.New("quota exceeded")})

	_, err := p.GetLocation(context.Background())
	assert.ErrorContains(t, err, "quota exceeded")
}

func TestParseWiFiList(t *testing.T) {
	out := "00\\:14\\:22\\:01\\:23\\:45:70\nAA\\:BB\\:CC\\:DD\\:EE\\:FF:42\nbad line\nZZ\\:BB\\:CC\\:DD\\:EE\\:FF:10\n"
	aps, err := parseWiFiList(out)
	require.NoError(t, err)
	require.Len(t, aps, 2)
	assert.Equal(t, "00:14:22:01:23:45", aps[0].MACAddress)
	assert.Equal(t, 70.0, aps[0].SignalStrength)
	assert.Equal(t, "AA:BB:CC:DD:EE:FF", aps[1].MACAddress)
}

func TestParseCellTower(t *testing.T) {
	out := "modem.location.3gpp.mcc : 250\nmodem.location.3gpp.mnc : 01\nmodem.location.3gpp.lac : 1F4A\nmodem.location.3gpp.cid : 0A2B3C\n"
	towers, err := parseCellTower(out)
	require.NoError(t, err)
	require.Len(t, towers, 1)
	assert.Equal(t, 250, towers[0].MobileCountryCode)
	assert.Equal(t, 1, towers[0].MobileNetworkCode)
	assert.Equal(t, 0x1F4A, towers[0].LocationAreaCode)
	assert.Equal(t, 0x0A2B3C, towers[0].CellID)

	_, err = parseCellTower("modem.location.3gpp.lac : 1F4A\n")
	assert.Error(t, err)
}

func TestIsValidMAC(t *testing.T) {
	assert.True(t, isValidMAC("00:14:22:01:23:45"))
	assert.True(t, isValidMAC("ff:ff:ff:ff:ff:ff"))
	assert.False(t, isValidMAC("00:14:22:01:23"))
	assert.False(t, isValidMAC("00:14:22:01:23:4G"))
	assert.False(t, isValidMAC("001:14:22:01:23:45"))
}
