package directory

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/rbeving/sccpd/internal/sccp/lines"
)

func openTestDB(t *testing.T) *SQLiteService {
	t.Helper()
	svc, err := OpenSQLite(filepath.Join(t.TempDir(), "directory.db"))
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	t.Cleanup(func() { svc.Close() })
	return svc
}

func sampleDevice() *Device {
	return &Device{
		Name:     "SEP001122334455",
		UserID:   1001,
		UserName: "Alice",
		Domain:   "calls.example.org",
		Lines: []lines.Line{
			{Instance: 1, Name: "1001", DisplayName: "Alice", Label: "Main",
				ForwardAll: "2000", ForwardNoAnswer: "2001", BusyTrigger: 2},
			{Instance: 2, Name: "1002", DisplayName: "Alice 2", RingOnIdle: lines.RingSilent},
		},
		SpeedDials:  []lines.SpeedDial{{Position: 1, Number: "2000", Label: "Helpdesk"}},
		ServiceURLs: []lines.ServiceURL{{Position: 1, URL: "http://intranet/dir", Label: "Directory"}},
		Features:    []lines.FeatureButton{{Position: 1, ID: 5, Label: "DND"}},
	}
}

func TestSaveAndLookup(t *testing.T) {
	svc := openTestDB(t)
	ctx := context.Background()

	if err := svc.SaveDevice(ctx, sampleDevice()); err != nil {
		t.Fatalf("save: %v", err)
	}
	dev, err := svc.LookupDevice(ctx, "SEP001122334455")
	if err != nil {
		t.Fatalf("lookup: %v", err)
	}
	if dev.UserID != 1001 || dev.UserName != "Alice" || dev.Domain != "calls.example.org" {
		t.Errorf("device = %+v", dev)
	}
	if len(dev.Lines) != 2 || dev.Lines[1].Name != "1002" {
		t.Errorf("lines = %+v", dev.Lines)
	}
	if l := dev.Lines[0]; l.ForwardAll != "2000" || l.ForwardNoAnswer != "2001" || l.BusyTrigger != 2 {
		t.Errorf("line forwarding = %+v", l)
	}
	if dev.Lines[1].RingOnIdle != lines.RingSilent {
		t.Errorf("ring on idle = %d, want silent", dev.Lines[1].RingOnIdle)
	}
	if len(dev.SpeedDials) != 1 || dev.SpeedDials[0].Number != "2000" {
		t.Errorf("speed dials = %+v", dev.SpeedDials)
	}
	if len(dev.ServiceURLs) != 1 || len(dev.Features) != 1 {
		t.Errorf("buttons = %+v / %+v", dev.ServiceURLs, dev.Features)
	}
}

func TestSaveReplacesButtons(t *testing.T) {
	svc := openTestDB(t)
	ctx := context.Background()

	dev := sampleDevice()
	if err := svc.SaveDevice(ctx, dev); err != nil {
		t.Fatal(err)
	}
	dev.Lines = dev.Lines[:1]
	dev.SpeedDials = nil
	if err := svc.SaveDevice(ctx, dev); err != nil {
		t.Fatal(err)
	}
	got, err := svc.LookupDevice(ctx, dev.Name)
	if err != nil {
		t.Fatal(err)
	}
	if len(got.Lines) != 1 || len(got.SpeedDials) != 0 {
		t.Errorf("got lines=%d speeds=%d, want 1 and 0", len(got.Lines), len(got.SpeedDials))
	}
}

func TestLookupMissing(t *testing.T) {
	svc := openTestDB(t)
	if _, err := svc.LookupDevice(context.Background(), "SEP-NOPE"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
}

func TestDeleteAndList(t *testing.T) {
	svc := openTestDB(t)
	ctx := context.Background()

	if err := svc.SaveDevice(ctx, sampleDevice()); err != nil {
		t.Fatal(err)
	}
	other := sampleDevice()
	other.Name = "SEP00AA00BB00CC"
	if err := svc.SaveDevice(ctx, other); err != nil {
		t.Fatal(err)
	}

	names, err := svc.ListDevices(ctx)
	if err != nil || len(names) != 2 {
		t.Fatalf("list = %v, %v", names, err)
	}
	if err := svc.DeleteDevice(ctx, "SEP001122334455"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if err := svc.DeleteDevice(ctx, "SEP001122334455"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("second delete err = %v", err)
	}
	names, _ = svc.ListDevices(ctx)
	if len(names) != 1 || names[0] != "SEP00AA00BB00CC" {
		t.Fatalf("names = %v", names)
	}
}

func TestSnapshot(t *testing.T) {
	dev := sampleDevice()
	snap := dev.Snapshot()
	if l, ok := snap.Line(2); !ok || l.Name != "1002" {
		t.Fatalf("line 2 = %+v, %v", l, ok)
	}
	nlines, nspeeds := snap.Counts()
	if nlines != 2 || nspeeds != 1 {
		t.Fatalf("counts = %d, %d", nlines, nspeeds)
	}
}
