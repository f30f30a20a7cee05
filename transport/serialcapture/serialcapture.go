// Package serialcapture drives a Greaseweazle-protocol USB-serial
// flux capture board: a small command/ACK protocol over a serial
// port, with raw flux intervals streamed back as a byte-oriented wire
// encoding distinct from (and translated into) this module's
// Fluxmap tick encoding.
package serialcapture

import (
	"encoding/binary"
	"fmt"
	"io"
	"time"

	"github.com/fluxengine/fluxcore/flux"
	"github.com/fluxengine/fluxcore/trackreader"
	"github.com/fluxengine/fluxcore/transport"
	"go.bug.st/serial"
	"go.bug.st/serial/enumerator"
)

var (
	_ trackreader.Transport = (*Client)(nil)
	_ transport.Device      = (*Client)(nil)
)

// VendorID and ProductID identify the supported board over USB-serial
// enumeration.
const (
	VendorID  = 0x1209
	ProductID = 0x4d69
)

const (
	cmdGetInfo    = 0
	cmdSeek       = 2
	cmdHead       = 3
	cmdMotor      = 6
	cmdReadFlux   = 7
	cmdSelect     = 12
	cmdSetBusType = 14
)

const (
	ackOkay = 0
)

const (
	getinfoFirmware = 0
)

const (
	busIBMPC = 1
)

const (
	fluxopIndex = 1
	fluxopSpace = 2
)

// Client wraps a serial connection to a flux capture board.
type Client struct {
	port         serial.Port
	sampleFreqHz uint32
}

// Open opens the named serial port and performs the handshake a fresh
// board expects: a baud-rate toggle to reset its framing, followed by
// a firmware query (to learn its sample clock) and a bus-type select.
func Open(portName string) (*Client, error) {
	port, err := serial.Open(portName, &serial.Mode{BaudRate: 9600})
	if err != nil {
		return nil, fmt.Errorf("serialcapture: open %s: %w", portName, err)
	}

	c := &Client{port: port}

	if err := port.SetMode(&serial.Mode{BaudRate: 10000}); err != nil {
		port.Close()
		return nil, fmt.Errorf("serialcapture: reset baud: %w", err)
	}
	time.Sleep(100 * time.Millisecond)
	if err := port.SetMode(&serial.Mode{BaudRate: 9600}); err != nil {
		port.Close()
		return nil, fmt.Errorf("serialcapture: restore baud: %w", err)
	}

	freq, err := c.fetchSampleFreq()
	if err != nil {
		port.Close()
		return nil, err
	}
	c.sampleFreqHz = freq

	if err := c.doCommand([]byte{cmdSetBusType, 3, busIBMPC}); err != nil {
		port.Close()
		return nil, fmt.Errorf("serialcapture: set bus type: %w", err)
	}

	return c, nil
}

// Ports lists the serial ports matching VendorID/ProductID.
func Ports() ([]*enumerator.PortDetails, error) {
	all, err := enumerator.GetDetailedPortsList()
	if err != nil {
		return nil, fmt.Errorf("serialcapture: list ports: %w", err)
	}
	var matches []*enumerator.PortDetails
	for _, p := range all {
		if p.IsUSB && p.VID == fmt.Sprintf("%04X", VendorID) && p.PID == fmt.Sprintf("%04X", ProductID) {
			matches = append(matches, p)
		}
	}
	return matches, nil
}

func ackError(code byte) error {
	if code == ackOkay {
		return nil
	}
	return fmt.Errorf("serialcapture: device returned ACK code %d", code)
}

func (c *Client) doCommand(cmd []byte) error {
	if _, err := c.port.Write(cmd); err != nil {
		return fmt.Errorf("serialcapture: write command: %w", err)
	}
	ack := make([]byte, 2)
	if _, err := io.ReadFull(c.port, ack); err != nil {
		return fmt.Errorf("serialcapture: read ack: %w", err)
	}
	if ack[0] != cmd[0] {
		return fmt.Errorf("serialcapture: ack echoes command %#02x, want %#02x", ack[0], cmd[0])
	}
	return ackError(ack[1])
}

func (c *Client) fetchSampleFreq() (uint32, error) {
	cmd := []byte{cmdGetInfo, 3, getinfoFirmware}
	if _, err := c.port.Write(cmd); err != nil {
		return 0, fmt.Errorf("serialcapture: write get-info: %w", err)
	}
	ack := make([]byte, 2)
	if _, err := io.ReadFull(c.port, ack); err != nil {
		return 0, fmt.Errorf("serialcapture: read get-info ack: %w", err)
	}
	if err := ackError(ack[1]); err != nil {
		return 0, err
	}
	payload := make([]byte, 32)
	if _, err := io.ReadFull(c.port, payload); err != nil {
		return 0, fmt.Errorf("serialcapture: read get-info payload: %w", err)
	}
	return binary.LittleEndian.Uint32(payload[8:12]), nil
}

// Name identifies this transport for logging.
func (c *Client) Name() string { return "serialcapture" }

// SelectDrive chooses the active drive unit.
func (c *Client) SelectDrive(unit int) error {
	return c.doCommand([]byte{cmdSelect, 3, byte(unit)})
}

// Seek moves the head to the given cylinder.
func (c *Client) Seek(track int) error {
	return c.doCommand([]byte{cmdSeek, 3, byte(track)})
}

// Recalibrate seeks back to cylinder 0, the board's documented
// recovery step after a failed read.
func (c *Client) Recalibrate() error {
	return c.Seek(0)
}

// Read captures one revolution from the given track/side and decodes
// it into a Fluxmap. Side is selected via the head line; track is
// assumed already reached via Seek.
func (c *Client) Read(track, side int) (*flux.Fluxmap, error) {
	return c.Capture(side, 1)
}

// Capture reads the given number of revolutions of raw flux from the
// current cylinder and side and decodes it into a Fluxmap.
func (c *Client) Capture(side int, revolutions int) (*flux.Fluxmap, error) {
	if err := c.doCommand([]byte{cmdHead, 3, byte(side)}); err != nil {
		return nil, fmt.Errorf("serialcapture: select head: %w", err)
	}
	if err := c.doCommand([]byte{cmdMotor, 4, 0, 1}); err != nil {
		return nil, fmt.Errorf("serialcapture: start motor: %w", err)
	}

	cmd := make([]byte, 8)
	cmd[0] = cmdReadFlux
	cmd[1] = 8
	binary.LittleEndian.PutUint32(cmd[2:6], 0)
	binary.LittleEndian.PutUint16(cmd[6:8], uint16(revolutions))
	if err := c.doCommand(cmd); err != nil {
		return nil, fmt.Errorf("serialcapture: read flux: %w", err)
	}

	var raw []byte
	buf := make([]byte, 1)
	for {
		if _, err := io.ReadFull(c.port, buf); err != nil {
			return nil, fmt.Errorf("serialcapture: read flux stream: %w", err)
		}
		if buf[0] == 0 {
			break
		}
		raw = append(raw, buf[0])
	}

	return decodeStream(raw, c.sampleFreqHz)
}

// Close releases the serial port.
func (c *Client) Close() error {
	return c.port.Close()
}

// readN28 decodes a 28-bit value packed 7 bits per byte, the capture
// board's encoding for opcode operands wider than a single byte.
func readN28(data []byte, offset int) (uint32, int, error) {
	if offset+4 > len(data) {
		return 0, 0, fmt.Errorf("serialcapture: truncated N28 at offset %d", offset)
	}
	b0, b1, b2, b3 := data[offset], data[offset+1], data[offset+2], data[offset+3]
	value := ((uint32(b0) & 0xfe) >> 1) |
		((uint32(b1) & 0xfe) << 6) |
		((uint32(b2) & 0xfe) << 13) |
		((uint32(b3) & 0xfe) << 20)
	return value, 4, nil
}

// decodeStream turns the board's raw interval-opcode byte stream into
// a Fluxmap, re-expressing every interval in Fluxmap tick units
// regardless of the board's own sample clock.
func decodeStream(raw []byte, sampleFreqHz uint32) (*flux.Fluxmap, error) {
	if len(raw) == 0 {
		return nil, fmt.Errorf("serialcapture: empty flux capture")
	}
	if sampleFreqHz == 0 {
		return nil, fmt.Errorf("serialcapture: unknown sample frequency")
	}
	tickPeriodNs := 1e9 / float64(sampleFreqHz)

	fm := flux.New()
	// pending holds SPACE time not yet ended by a transition; it is
	// added to the next interval.
	var pending uint32
	i := 0
	for i < len(raw) {
		b := raw[i]
		switch {
		case b == 0xff:
			if i+1 >= len(raw) {
				return nil, fmt.Errorf("serialcapture: truncated opcode at offset %d", i)
			}
			opcode := raw[i+1]
			i += 2
			switch opcode {
			case fluxopIndex:
				_, consumed, err := readN28(raw, i)
				if err != nil {
					return nil, err
				}
				i += consumed
			case fluxopSpace:
				n28, consumed, err := readN28(raw, i)
				if err != nil {
					return nil, err
				}
				i += consumed
				pending += n28
			default:
				return nil, fmt.Errorf("serialcapture: unknown opcode %#02x at offset %d", opcode, i-2)
			}
		case b < 250:
			fm.AppendInterval(scaleTicks(pending+uint32(b), tickPeriodNs))
			pending = 0
			i++
		default:
			if i+1 >= len(raw) {
				return nil, fmt.Errorf("serialcapture: truncated extended interval at offset %d", i)
			}
			delta := 250 + uint32(b-250)*255 + uint32(raw[i+1]) - 1
			fm.AppendInterval(scaleTicks(pending+delta, tickPeriodNs))
			pending = 0
			i += 2
		}
	}
	return fm, nil
}

// scaleTicks converts a board tick count (at the board's own sample
// rate) into this module's fixed flux.TickNs Fluxmap ticks.
func scaleTicks(boardTicks uint32, tickPeriodNs float64) uint32 {
	ns := float64(boardTicks) * tickPeriodNs
	scaled := ns / flux.TickNs
	if scaled < 1 {
		return 1
	}
	return uint32(scaled + 0.5)
}
