// Package trackreader drives the read-decode-merge-evaluate retry
// loop for one physical track, replacing the original reader's
// goto-retry control flow with an explicit state machine.
package trackreader

import (
	"github.com/fluxengine/fluxcore/record"
	"github.com/fluxengine/fluxcore/sector"
)

// FormatDecoder is the capability set a floppy format plugs into the
// track reader with. It replaces a shared base class: Brother, IBM
// and Amiga each implement it independently, and the track reader
// never needs to know which.
type FormatDecoder interface {
	// DecodeBitsToRecords scans a track's decoded bit-cell stream for
	// this format's sync markers and frames whatever records it finds.
	DecodeBitsToRecords(bits []bool) []record.Record
	// ParseRecordsToSectors interprets framed records into sectors,
	// verifying whatever checksums the format defines. A sector whose
	// checksum fails is still returned, tagged sector.BadChecksum,
	// rather than dropped.
	ParseRecordsToSectors(records []record.Record) []sector.Sector
	// ExpectedSectors reports which sector numbers should be present
	// on the given track/side, or nil if the format has no fixed
	// expectation (e.g. a format with a variable sector count per
	// track).
	ExpectedSectors(track, side int) []int
}

// Formats is the registry of known format decoders, keyed by name,
// mirroring the teacher's adapter.RegisterAdapter pattern.
var Formats = map[string]FormatDecoder{}

// Register adds a format decoder to the registry under name. Call
// from an init() in the format's own package.
func Register(name string, decoder FormatDecoder) {
	Formats[name] = decoder
}
