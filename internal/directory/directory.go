// Package directory provides the provisioning store consulted at device
// registration: which devices exist, their lines and their buttons.
package directory

import (
	"context"
	"errors"

	"github.com/rbeving/sccpd/internal/sccp/lines"
)

// ErrNotFound is returned when a device is not provisioned.
var ErrNotFound = errors.New("device not found")

// Device is one provisioned phone.
type Device struct {
	Name        string // e.g. "SEP001122334455"
	UserID      uint32
	UserName    string
	Domain      string
	Lines       []lines.Line
	SpeedDials  []lines.SpeedDial
	ServiceURLs []lines.ServiceURL
	Features    []lines.FeatureButton
}

// Snapshot builds the immutable button directory handed to the listener
// at registration.
func (d *Device) Snapshot() *lines.Directory {
	return lines.New(d.Lines, d.SpeedDials, d.ServiceURLs, d.Features)
}

// Service is the provisioning store. Lookup failures use ErrNotFound;
// everything else is an operational error.
type Service interface {
	LookupDevice(ctx context.Context, name string) (*Device, error)
	SaveDevice(ctx context.Context, dev *Device) error
	DeleteDevice(ctx context.Context, name string) error
	ListDevices(ctx context.Context) ([]string, error)
	Close() error
}
