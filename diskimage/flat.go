// Package diskimage writes a decoded SectorSet out to the disk image
// formats a user actually wants to end up with: a flat sector dump,
// or an HFE bitstream image for tools that want the raw MFM back.
package diskimage

import (
	"fmt"
	"os"

	"github.com/fluxengine/fluxcore/sectorset"
)

// WriteFlat writes set as a row-major raw sector dump: track 0 side 0
// sectors 0..N, then track 0 side 1, then track 1 side 0, and so on,
// zero-filling any sector missing from set.
func WriteFlat(path string, set *sectorset.SectorSet, geom sectorset.Geometry) error {
	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("diskimage: create %s: %w", path, err)
	}
	defer file.Close()

	zeroes := make([]byte, geom.SectorSize)
	for track := 0; track < geom.Tracks; track++ {
		for side := 0; side < geom.Sides; side++ {
			for num := 0; num < geom.SectorsPerTrk; num++ {
				data := zeroes
				if sec, ok := set.Get(track, side, num); ok {
					if len(sec.Data) != geom.SectorSize {
						return fmt.Errorf("diskimage: track %d side %d sector %d has %d bytes, want %d", track, side, num, len(sec.Data), geom.SectorSize)
					}
					data = sec.Data
				}
				if _, err := file.Write(data); err != nil {
					return fmt.Errorf("diskimage: write track %d side %d sector %d: %w", track, side, num, err)
				}
			}
		}
	}
	return nil
}
