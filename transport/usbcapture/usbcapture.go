// Package usbcapture drives a USB bulk-transfer flux capture board: a
// small vendor control-transfer command set (seek, select, side, capture) plus
// a bulk IN endpoint streaming raw flux intervals, framed the same way
// as serialcapture's wire format but carried over USB instead of a
// serial link.
package usbcapture

import (
	"fmt"

	"github.com/fluxengine/fluxcore/flux"
	"github.com/fluxengine/fluxcore/trackreader"
	"github.com/fluxengine/fluxcore/transport"
	"github.com/google/gousb"
)

// VendorID and ProductID identify the supported board.
const (
	VendorID  = 0x1209
	ProductID = 0x6830
)

const (
	bulkOutEndpoint = 0x01
	bulkInEndpoint  = 0x81
	readTimeoutSecs = 5
)

// Vendor control-transfer request codes, sent via the device's
// default control endpoint rather than the bulk pipe.
const (
	reqSeek        = 0x01
	reqSelectDrive = 0x02
	reqSetSide     = 0x03
	reqCapture     = 0x04
)

const sampleFreqHz = 40_000_000 // fixed 40MHz sample clock

// Client wraps a USB connection to a flux capture board.
type Client struct {
	ctx    *gousb.Context
	dev    *gousb.Device
	intf   *gousb.Interface
	done   func()
	out    *gousb.OutEndpoint
	in     *gousb.InEndpoint
	unit   int
	cyl    int
}

var (
	_ trackreader.Transport = (*Client)(nil)
	_ transport.Device      = (*Client)(nil)
)

// Open finds and claims the first matching board on the USB bus.
func Open() (*Client, error) {
	ctx := gousb.NewContext()

	dev, err := ctx.OpenDeviceWithVIDPID(gousb.ID(VendorID), gousb.ID(ProductID))
	if err != nil {
		ctx.Close()
		return nil, fmt.Errorf("usbcapture: open device: %w", err)
	}
	if dev == nil {
		ctx.Close()
		return nil, fmt.Errorf("usbcapture: no device matching %04x:%04x", VendorID, ProductID)
	}

	if err := dev.SetAutoDetach(true); err != nil {
		dev.Close()
		ctx.Close()
		return nil, fmt.Errorf("usbcapture: set auto detach: %w", err)
	}

	intf, done, err := dev.DefaultInterface()
	if err != nil {
		dev.Close()
		ctx.Close()
		return nil, fmt.Errorf("usbcapture: claim interface: %w", err)
	}

	out, err := intf.OutEndpoint(bulkOutEndpoint)
	if err != nil {
		done()
		dev.Close()
		ctx.Close()
		return nil, fmt.Errorf("usbcapture: open out endpoint: %w", err)
	}
	in, err := intf.InEndpoint(bulkInEndpoint)
	if err != nil {
		done()
		dev.Close()
		ctx.Close()
		return nil, fmt.Errorf("usbcapture: open in endpoint: %w", err)
	}

	return &Client{ctx: ctx, dev: dev, intf: intf, done: done, out: out, in: in}, nil
}

// Name identifies this transport for logging.
func (c *Client) Name() string { return "usbcapture" }

func (c *Client) control(request uint8, value, index uint16, data []byte) error {
	_, err := c.dev.Control(
		gousb.ControlOut|gousb.ControlVendor|gousb.ControlDevice,
		request, value, index, data,
	)
	if err != nil {
		return fmt.Errorf("usbcapture: control request %#02x: %w", request, err)
	}
	return nil
}

// SelectDrive chooses the active drive unit.
func (c *Client) SelectDrive(unit int) error {
	if err := c.control(reqSelectDrive, uint16(unit), 0, nil); err != nil {
		return err
	}
	c.unit = unit
	return nil
}

// Seek moves the head to the given cylinder.
func (c *Client) Seek(track int) error {
	if err := c.control(reqSeek, uint16(track), 0, nil); err != nil {
		return err
	}
	c.cyl = track
	return nil
}

// Recalibrate seeks back to cylinder 0.
func (c *Client) Recalibrate() error {
	return c.Seek(0)
}

// Read captures one revolution from the given track/side.
func (c *Client) Read(track, side int) (*flux.Fluxmap, error) {
	return c.Capture(side, 1)
}

// Capture reads the given number of revolutions of raw flux from the
// current cylinder and side over the bulk IN endpoint.
func (c *Client) Capture(side int, revolutions int) (*flux.Fluxmap, error) {
	if err := c.control(reqSetSide, uint16(side), 0, nil); err != nil {
		return nil, err
	}
	if err := c.control(reqCapture, uint16(revolutions), 0, nil); err != nil {
		return nil, fmt.Errorf("usbcapture: start capture: %w", err)
	}

	buf := make([]byte, 1<<20)
	var raw []byte
	for {
		n, err := c.in.Read(buf)
		if n > 0 {
			raw = append(raw, buf[:n]...)
		}
		if err != nil {
			break
		}
		if n < len(buf) {
			break
		}
	}

	return decodeStream(raw, sampleFreqHz)
}

// Close releases the interface and USB context.
func (c *Client) Close() error {
	c.done()
	c.dev.Close()
	c.ctx.Close()
	return nil
}

// decodeStream reuses the same interval/opcode framing serialcapture
// parses, since both boards describe flux the same way: runs of
// direct 1-249 tick intervals, 250+ extended two-byte intervals, and
// 0xFF-prefixed index/space opcodes.
func decodeStream(raw []byte, sampleFreqHz uint32) (*flux.Fluxmap, error) {
	if len(raw) == 0 {
		return nil, fmt.Errorf("usbcapture: empty flux capture")
	}
	tickPeriodNs := 1e9 / float64(sampleFreqHz)

	fm := flux.New()
	i := 0
	for i < len(raw) {
		b := raw[i]
		switch {
		case b == 0xff:
			if i+1 >= len(raw) {
				return nil, fmt.Errorf("usbcapture: truncated opcode at offset %d", i)
			}
			opcode := raw[i+1]
			i += 6 // opcode byte + 4-byte operand, index/space carry no transition
			_ = opcode
		case b < 250:
			fm.AppendInterval(scaleTicks(uint32(b), tickPeriodNs))
			i++
		default:
			if i+1 >= len(raw) {
				return nil, fmt.Errorf("usbcapture: truncated extended interval at offset %d", i)
			}
			delta := 250 + uint32(b-250)*255 + uint32(raw[i+1]) - 1
			fm.AppendInterval(scaleTicks(delta, tickPeriodNs))
			i += 2
		}
	}
	return fm, nil
}

func scaleTicks(boardTicks uint32, tickPeriodNs float64) uint32 {
	ns := float64(boardTicks) * tickPeriodNs
	scaled := ns / flux.TickNs
	if scaled < 1 {
		return 1
	}
	return uint32(scaled + 0.5)
}
