package sectorset

import (
	"testing"

	"github.com/fluxengine/fluxcore/sector"
)

func TestInsertPrefersOKOverLaterBadRead(t *testing.T) {
	set := New()
	set.Insert(sector.Sector{Track: 1, Side: 0, Number: 3, Data: []byte("good"), Status: sector.OK})
	set.Insert(sector.Sector{Track: 1, Side: 0, Number: 3, Data: []byte("bad"), Status: sector.BadChecksum})

	got, ok := set.Get(1, 0, 3)
	if !ok {
		t.Fatal("sector not found")
	}
	if got.Status != sector.OK || string(got.Data) != "good" {
		t.Fatalf("got %+v, want the OK read retained", got)
	}
}

func TestInsertLaterOKReplacesEarlierOK(t *testing.T) {
	set := New()
	set.Insert(sector.Sector{Track: 1, Side: 0, Number: 3, Data: []byte("first"), Status: sector.OK})
	set.Insert(sector.Sector{Track: 1, Side: 0, Number: 3, Data: []byte("second"), Status: sector.OK})

	got, _ := set.Get(1, 0, 3)
	if string(got.Data) != "second" {
		t.Fatalf("got %q, want later OK read to win", got.Data)
	}
}

func TestInsertFillsMissingSlot(t *testing.T) {
	set := New()
	set.Insert(sector.Sector{Track: 0, Side: 0, Number: 0, Status: sector.Missing})

	got, ok := set.Get(0, 0, 0)
	if !ok || got.Status != sector.Missing {
		t.Fatalf("got %+v, ok=%v", got, ok)
	}

	set.Insert(sector.Sector{Track: 0, Side: 0, Number: 0, Data: []byte("x"), Status: sector.OK})
	got, _ = set.Get(0, 0, 0)
	if got.Status != sector.OK {
		t.Fatalf("OK read should replace Missing placeholder, got %+v", got)
	}
}

func TestComputeGeometry(t *testing.T) {
	set := New()
	set.Insert(sector.Sector{Track: 79, Side: 1, Number: 17, Size: 512, Status: sector.OK})
	set.Insert(sector.Sector{Track: 3, Side: 0, Number: 0, Size: 512, Status: sector.OK})

	g := set.ComputeGeometry()
	want := Geometry{Tracks: 80, Sides: 2, SectorsPerTrk: 18, SectorSize: 512}
	if g != want {
		t.Fatalf("ComputeGeometry = %+v, want %+v", g, want)
	}
}

func TestComputeGeometryEmpty(t *testing.T) {
	set := New()
	if g := set.ComputeGeometry(); g != (Geometry{}) {
		t.Fatalf("ComputeGeometry(empty) = %+v, want zero value", g)
	}
}
