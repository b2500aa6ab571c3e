package location

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/adrianmo/go-nmea"
	"github.com/tarm/serial"
)

const (
	// sensorReadTimeout bounds a single read so a silent receiver cannot
	// block the reader forever. A timed out read reports io.EOF.
	sensorReadTimeout = time.Second
	sensorIdlePause   = 100 * time.Millisecond
)

// DeviceSensorProvider reads fixes from a GPS receiver connected via serial port.
// While the port is open a single reader consumes the NMEA stream and keeps
// only the newest fix.
type DeviceSensorProvider struct {
	port     string // Serial port to which the GPS device is connected
	baudRate int    // Baud rate for the serial communication

	mu      sync.Mutex
	conn    io.ReadCloser
	stop    chan struct{}
	updated chan struct{} // closed and replaced on every new fix or read failure
	latest  Location
	seq     uint64 // fixes parsed since the provider was created
	served  uint64 // seq of the fix last returned by GetLocation
	readErr error
	open    func(*serial.Config) (io.ReadCloser, error)
}

// NewDeviceSensorProvider creates a new instance of DeviceSensorProvider with the specified port and baud rate.
func NewDeviceSensorProvider(port string, baudRate int) *DeviceSensorProvider {
	return &DeviceSensorProvider{
		port:     port,
		baudRate: baudRate,
		updated:  make(chan struct{}),
		open: func(c *serial.Config) (io.ReadCloser, error) {
			return serial.OpenPort(c)
		},
	}
}

func (d *DeviceSensorProvider) Name() string { return "sensor" }

// GetLocation returns the newest GGA or RMC fix that has not been returned
// before, waiting for one until ctx ends. The serial port is opened on first
// use and kept open between calls.
func (d *DeviceSensorProvider) GetLocation(ctx context.Context) (Location, error) {
	d.mu.Lock()
	for {
		if d.seq > d.served {
			d.served = d.seq
			loc := d.latest
			d.mu.Unlock()
			return loc, nil
		}
		if d.readErr != nil {
			err := d.readErr
			d.readErr = nil
			d.mu.Unlock()
			return Location{}, err
		}
		if d.conn == nil {
			if err := d.openLocked(); err != nil {
				d.mu.Unlock()
				return Location{}, err
			}
		}

		wait := d.updated
		d.mu.Unlock()
		select {
		case <-wait:
		case <-ctx.Done():
			return Location{}, fmt.Errorf("no valid GPS data found: %w", ctx.Err())
		}
		d.mu.Lock()
	}
}

func (d *DeviceSensorProvider) openLocked() error {
	conn, err := d.open(&serial.Config{Name: d.port, Baud: d.baudRate, ReadTimeout: sensorReadTimeout})
	if err != nil {
		if errors.Is(err, os.ErrPermission) {
			return fmt.Errorf("%w: %s: %v", ErrPermissionDenied, d.port, err)
		}
		return fmt.Errorf("failed to open gps port %s: %w", d.port, err)
	}
	d.conn = conn
	d.stop = make(chan struct{})
	go d.readLoop(conn, d.stop)
	return nil
}

func (d *DeviceSensorProvider) readLoop(conn io.ReadCloser, stop <-chan struct{}) {
	reader := bufio.NewReader(conn)
	var line strings.Builder

	for {
		chunk, err := reader.ReadString('\n')
		line.WriteString(chunk)

		if err == nil {
			// Corrupted sentences are common on cold start
			if loc, ok, perr := ParseSentence(line.String()); perr == nil && ok {
				d.publish(loc)
			}
			line.Reset()
			continue
		}

		if errors.Is(err, io.EOF) {
			select {
			case <-stop:
				return
			case <-time.After(sensorIdlePause):
				continue
			}
		}

		select {
		case <-stop:
		default:
			d.fail(conn, err)
		}
		return
	}
}

func (d *DeviceSensorProvider) publish(loc Location) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.latest = loc
	d.seq++
	d.notifyLocked()
}

func (d *DeviceSensorProvider) fail(conn io.ReadCloser, err error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.conn != conn {
		return
	}
	_ = d.closeLocked()
	d.readErr = fmt.Errorf("failed to read gps port %s: %w", d.port, err)
	d.notifyLocked()
}

func (d *DeviceSensorProvider) notifyLocked() {
	close(d.updated)
	d.updated = make(chan struct{})
}

// Close stops the reader and releases the serial port.
func (d *DeviceSensorProvider) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.closeLocked()
}

func (d *DeviceSensorProvider) closeLocked() error {
	if d.conn == nil {
		return nil
	}
	close(d.stop)
	err := d.conn.Close()
	d.conn = nil
	d.stop = nil
	return err
}

// ParseSentence extracts a fix from a single NMEA sentence. ok is false for
// sentence types that carry no position or for fixes the receiver marks invalid.
func ParseSentence(line string) (Location, bool, error) {
	line = strings.TrimSpace(line)
	if !strings.HasPrefix(line, "$") {
		return Location{}, false, nil
	}

	sentence, err := nmea.Parse(line)
	if err != nil {
		return Location{}, false, err
	}

	switch s := sentence.(type) {
	case nmea.GGA:
		if s.FixQuality == nmea.Invalid {
			return Location{}, false, nil
		}
		return Location{
			Latitude:  s.Latitude,
			Longitude: s.Longitude,
			Accuracy:  s.HDOP, // HDOP as a proxy for accuracy
		}, true, nil
	case nmea.RMC:
		if s.Validity != nmea.ValidRMC {
			return Location{}, false, nil
		}
		return Location{
			Latitude:  s.Latitude,
			Longitude: s.Longitude,
		}, true, nil
	}

	return Location{}, false, nil
}
