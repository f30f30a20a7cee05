// Package transport defines the contract a physical or simulated
// capture device must satisfy to feed trackreader.Reader, and hosts
// the concrete device clients (serialcapture, usbcapture) plus a
// standalone adaptive clock recovery helper (pllrecovery) for
// estimating bit rate from a raw capture; the clients do not call it.
package transport

import "github.com/fluxengine/fluxcore/flux"

// Device is the capability set a capture device exposes beyond the
// bare trackreader.Transport contract: identification and a raw flux
// capture primitive independent of any particular disk format.
type Device interface {
	// Name identifies the device for logging, e.g. "serialcapture" or
	// "usbcapture".
	Name() string

	// SelectDrive chooses which physical drive unit subsequent Seek
	// and Capture calls apply to.
	SelectDrive(unit int) error

	// Capture reads one or more revolutions of raw flux from the
	// current track/side and returns it decoded into a Fluxmap.
	Capture(side int, revolutions int) (*flux.Fluxmap, error)

	// Close releases the underlying connection.
	Close() error
}
