package location

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"testing"
	"testing/iotest"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tarm/serial"
)

const (
	ggaSentence = "$GPGGA,034225.077,3356.4650,S,15124.5567,E,1,03,9.7,-25.0,M,21.0,M,,0000*51"
	rmcSentence = "$GPRMC,220516,A,5133.82,N,00042.24,W,173.8,231.8,130694,004.2,W*70"
)

func TestParseSentence_GGA(t *testing.T) {
	loc, ok, err := ParseSentence(ggaSentence)
	require.NoError(t, err)
	require.True(t, ok)
	assert.InDelta(t, -33.941083, loc.Latitude, 1e-5)
	assert.InDelta(t, 151.409278, loc.Longitude, 1e-5)
	assert.InDelta(t, 9.7, loc.Accuracy, 1e-9)
}

func TestParseSentence_RMC(t *testing.T) {
	loc, ok, err := ParseSentence(rmcSentence)
	require.NoError(t, err)
	require.True(t, ok)
	assert.InDelta(t, 51.563667, loc.Latitude, 1e-5)
	assert.InDelta(t, -0.704, loc.Longitude, 1e-5)
}

func TestParseSentence_Ignored(t *testing.T) {
	_, ok, err := ParseSentence("garbage line")
	assert.NoError(t, err)
	assert.False(t, ok)

	_, ok, err = ParseSentence("$GPGGA,broken*00")
	assert.Error(t, err)
	assert.False(t, ok)
}

// pipeProvider returns a provider whose serial port is an in-memory pipe.
// Reads block until the test writes, like a receiver between sentences.
func pipeProvider(t *testing.T) (*DeviceSensorProvider, *io.PipeWriter) {
	pr, pw := io.Pipe()
	p := NewDeviceSensorProvider("/dev/ttyFAKE", 9600)
	p.open = func(c *serial.Config) (io.ReadCloser, error) {
		assert.Equal(t, "/dev/ttyFAKE", c.Name)
		assert.Equal(t, 9600, c.Baud)
		assert.Equal(t, sensorReadTimeout, c.ReadTimeout)
		return pr, nil
	}
	t.Cleanup(func() {
		_ = p.Close()
		_ = pw.Close()
	})
	return p, pw
}

func fixesParsed(p *DeviceSensorProvider) uint64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.seq
}

func TestDeviceSensorProvider_GetLocation(t *testing.T) {
	// Setup
	p, pw := pipeProvider(t)
	go func() {
		_, _ = io.WriteString(pw, strings.Join([]string{"noise", "$GPGGA,broken*00", ggaSentence, ""}, "\r\n"))
	}()

	// Execute
	loc, err := p.GetLocation(context.Background())

	// Assert
	require.NoError(t, err)
	assert.InDelta(t, -33.941083, loc.Latitude, 1e-5)
	assert.NoError(t, p.Close())
}

func TestDeviceSensorProvider_ReturnsNewestFix(t *testing.T) {
	// Setup
	p, pw := pipeProvider(t)
	go func() { _, _ = io.WriteString(pw, ggaSentence+"\r\n") }()
	_, err := p.GetLocation(context.Background())
	require.NoError(t, err)

	// Execute
	_, err = io.WriteString(pw, ggaSentence+"\r\n"+"$GPGGA,broken*00\r\n"+rmcSentence+"\r\n")
	require.NoError(t, err)
	require.Eventually(t, func() bool { return fixesParsed(p) == 3 }, time.Second, 5*time.Millisecond)
	loc, err := p.GetLocation(context.Background())

	// Assert
	require.NoError(t, err)
	assert.InDelta(t, 51.563667, loc.Latitude, 1e-5)
}

func TestDeviceSensorProvider_KeepsPartialLine(t *testing.T) {
	// Setup
	p, pw := pipeProvider(t)
	go func() {
		_, _ = io.WriteString(pw, rmcSentence[:20])
		_, _ = io.WriteString(pw, rmcSentence[20:]+"\r\n")
	}()

	// Execute
	loc, err := p.GetLocation(context.Background())

	// Assert
	require.NoError(t, err)
	assert.InDelta(t, -0.704, loc.Longitude, 1e-5)
}

func TestDeviceSensorProvider_SilentReceiverHonorsContext(t *testing.T) {
	// Setup
	p, pw := pipeProvider(t)
	go func() { _, _ = io.WriteString(pw, "nothing useful\n") }()
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()

	// Execute
	_, err := p.GetLocation(ctx)

	// Assert
	assert.ErrorContains(t, err, "no valid GPS data found")
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestDeviceSensorProvider_ReadErrorReopens(t *testing.T) {
	// Setup
	opened := 0
	p := NewDeviceSensorProvider("/dev/ttyFAKE", 9600)
	p.open = func(*serial.Config) (io.ReadCloser, error) {
		opened++
		return io.NopCloser(iotest.ErrReader(errors.New("device unplugged"))), nil
	}
	defer p.Close()

	// Execute
	_, err := p.GetLocation(context.Background())

	// Assert
	assert.ErrorContains(t, err, "failed to read gps port /dev/ttyFAKE: device unplugged")

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	_, err = p.GetLocation(ctx)
	assert.ErrorContains(t, err, "device unplugged")
	assert.Equal(t, 2, opened)
}

func TestDeviceSensorProvider_PermissionDenied(t *testing.T) {
	p := NewDeviceSensorProvider("/dev/ttyFAKE", 9600)
	p.open = func(*serial.Config) (io.ReadCloser, error) {
		return nil, fmt.Errorf("open /dev/ttyFAKE: %w", os.ErrPermission)
	}

	_, err := p.GetLocation(context.Background())
	assert.ErrorIs(t, err, ErrPermissionDenied)
}

func TestDeviceSensorProvider_OpenError(t *testing.T) {
	p := NewDeviceSensorProvider("/dev/ttyFAKE", 9600)
	p.open = func(*serial.Config) (io.ReadCloser, error) {
		return nil, errors.New("no such device")
	}

	_, err := p.GetLocation(context.Background())
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrPermissionDenied)
}
