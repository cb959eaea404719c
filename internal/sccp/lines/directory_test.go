package lines

import (
	"testing"

	"github.com/rbeving/sccpd/internal/sccp/wire"
)

func twoLineDirectory() *Directory {
	return New(
		[]Line{
			{Name: "1001", DisplayName: "Alice", Label: "Main"},
			{Name: "1002", DisplayName: "Alice 2", Label: "Second"},
		},
		[]SpeedDial{{Number: "2000", Label: "Helpdesk"}},
		[]ServiceURL{{URL: "http://intranet/dir", Label: "Directory"}},
		[]FeatureButton{{ID: 5, Label: "DND"}},
	)
}

func TestLineLookup(t *testing.T) {
	d := twoLineDirectory()

	l, ok := d.Line(2)
	if !ok || l.Name != "1002" {
		t.Fatalf("line 2 = %+v, %v", l, ok)
	}
	if _, ok := d.Line(3); ok {
		t.Fatal("line 3 should not exist")
	}

	// Instance 0 falls back to the first line.
	l, ok = d.Line(0)
	if !ok || l.Name != "1001" {
		t.Fatalf("line 0 = %+v, %v", l, ok)
	}

	l, ok = d.LineByName("1002")
	if !ok || l.Instance != 2 {
		t.Fatalf("by name = %+v, %v", l, ok)
	}
}

func TestButtonLookups(t *testing.T) {
	d := twoLineDirectory()

	sd, ok := d.SpeedDial(1)
	if !ok || sd.Number != "2000" {
		t.Fatalf("speed dial = %+v, %v", sd, ok)
	}
	su, ok := d.ServiceURL(1)
	if !ok || su.Label != "Directory" {
		t.Fatalf("service url = %+v, %v", su, ok)
	}
	f, ok := d.Feature(1)
	if !ok || f.ID != 5 {
		t.Fatalf("feature = %+v, %v", f, ok)
	}
	if _, ok := d.SpeedDial(9); ok {
		t.Fatal("speed dial 9 should not exist")
	}

	nlines, nspeeds := d.Counts()
	if nlines != 2 || nspeeds != 1 {
		t.Fatalf("counts = %d, %d", nlines, nspeeds)
	}
}

func TestButtonTemplateOrder(t *testing.T) {
	d := twoLineDirectory()
	defs := d.ButtonTemplate()
	if len(defs) != 5 {
		t.Fatalf("template size = %d, want 5", len(defs))
	}
	want := []uint8{
		uint8(wire.ButtonLine),
		uint8(wire.ButtonLine),
		uint8(wire.ButtonSpeedDial),
		uint8(wire.ButtonServiceURL),
		uint8(wire.ButtonFeature),
	}
	for i, def := range defs {
		if def.Definition != want[i] {
			t.Errorf("slot %d = 0x%02X, want 0x%02X", i, def.Definition, want[i])
		}
	}
	if defs[0].InstanceNumber != 1 || defs[1].InstanceNumber != 2 {
		t.Errorf("line instances = %d, %d", defs[0].InstanceNumber, defs[1].InstanceNumber)
	}
}
