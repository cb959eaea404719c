// Package lines holds the per-device button snapshot: lines, speed dials,
// service URLs and feature buttons. A snapshot is built once at
// registration and never mutated, so lookups need no locking.
package lines

import "github.com/rbeving/sccpd/internal/sccp/wire"

// Ring behavior of a line while the device is idle or on a call. The
// zero value rings normally.
const (
	RingNormal uint32 = iota
	RingSilent
)

// Line is one line appearance on the device.
type Line struct {
	Instance    uint32 // 1-based button position
	Name        string // dialable number
	DisplayName string
	Label       string

	ForwardAll      string // unconditional forward target, empty when off
	ForwardBusy     string
	ForwardNoAnswer string
	RingOnIdle      uint32 // RingNormal or RingSilent for calls to an idle device
	RingOnActive    uint32 // same, for calls arriving mid-call
	BusyTrigger     uint32 // active calls at which new offers are refused, 0 is unlimited
}

// SpeedDial is one speed dial button.
type SpeedDial struct {
	Position uint32 // 1-based among speed dials
	Number   string
	Label    string
}

// ServiceURL is one service URL button.
type ServiceURL struct {
	Position uint32
	URL      string
	Label    string
}

// FeatureButton is one feature button.
type FeatureButton struct {
	Position uint32
	ID       uint32
	Label    string
}

// Directory is the immutable button snapshot of one registered device.
type Directory struct {
	lines       []Line
	speedDials  []SpeedDial
	serviceURLs []ServiceURL
	features    []FeatureButton
}

// New builds a snapshot. Positions are assigned from slice order when the
// input leaves them zero.
func New(lns []Line, speeds []SpeedDial, urls []ServiceURL, feats []FeatureButton) *Directory {
	d := &Directory{
		lines:       append([]Line(nil), lns...),
		speedDials:  append([]SpeedDial(nil), speeds...),
		serviceURLs: append([]ServiceURL(nil), urls...),
		features:    append([]FeatureButton(nil), feats...),
	}
	for i := range d.lines {
		if d.lines[i].Instance == 0 {
			d.lines[i].Instance = uint32(i + 1)
		}
	}
	for i := range d.speedDials {
		if d.speedDials[i].Position == 0 {
			d.speedDials[i].Position = uint32(i + 1)
		}
	}
	for i := range d.serviceURLs {
		if d.serviceURLs[i].Position == 0 {
			d.serviceURLs[i].Position = uint32(i + 1)
		}
	}
	for i := range d.features {
		if d.features[i].Position == 0 {
			d.features[i].Position = uint32(i + 1)
		}
	}
	return d
}

// Line looks up a line appearance by instance. Instance 0 resolves to the
// first line, matching devices that omit the field.
func (d *Directory) Line(instance uint32) (Line, bool) {
	if instance == 0 {
		instance = 1
	}
	for _, l := range d.lines {
		if l.Instance == instance {
			return l, true
		}
	}
	return Line{}, false
}

// LineByName looks up a line by its dialable number.
func (d *Directory) LineByName(name string) (Line, bool) {
	for _, l := range d.lines {
		if l.Name == name {
			return l, true
		}
	}
	return Line{}, false
}

// Lines returns all line appearances in button order.
func (d *Directory) Lines() []Line {
	return append([]Line(nil), d.lines...)
}

// SpeedDial looks up a speed dial by position.
func (d *Directory) SpeedDial(position uint32) (SpeedDial, bool) {
	for _, sd := range d.speedDials {
		if sd.Position == position {
			return sd, true
		}
	}
	return SpeedDial{}, false
}

// ServiceURL looks up a service URL button by position.
func (d *Directory) ServiceURL(position uint32) (ServiceURL, bool) {
	for _, su := range d.serviceURLs {
		if su.Position == position {
			return su, true
		}
	}
	return ServiceURL{}, false
}

// Feature looks up a feature button by position.
func (d *Directory) Feature(position uint32) (FeatureButton, bool) {
	for _, f := range d.features {
		if f.Position == position {
			return f, true
		}
	}
	return FeatureButton{}, false
}

// Counts returns the line and speed dial counts for ConfigStatRes.
func (d *Directory) Counts() (nlines, nspeeds int) {
	return len(d.lines), len(d.speedDials)
}

// ButtonTemplate lays the buttons out for ButtonTemplateRes: lines first,
// then speed dials, then service URLs and feature buttons.
func (d *Directory) ButtonTemplate() []wire.ButtonDefinition {
	var defs []wire.ButtonDefinition
	for _, l := range d.lines {
		defs = append(defs, wire.ButtonDefinition{
			InstanceNumber: uint8(l.Instance),
			Definition:     uint8(wire.ButtonLine),
		})
	}
	for _, sd := range d.speedDials {
		defs = append(defs, wire.ButtonDefinition{
			InstanceNumber: uint8(sd.Position),
			Definition:     uint8(wire.ButtonSpeedDial),
		})
	}
	for _, su := range d.serviceURLs {
		defs = append(defs, wire.ButtonDefinition{
			InstanceNumber: uint8(su.Position),
			Definition:     uint8(wire.ButtonServiceURL),
		})
	}
	for _, f := range d.features {
		defs = append(defs, wire.ButtonDefinition{
			InstanceNumber: uint8(f.Position),
			Definition:     uint8(wire.ButtonFeature),
		})
	}
	return defs
}
