package directory

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	_ "modernc.org/sqlite" // pure Go driver, registers as "sqlite"

	"github.com/rbeving/sccpd/internal/sccp/lines"
)

// Button kinds as stored in the buttons table.
const (
	buttonKindLine       = "line"
	buttonKindSpeedDial  = "speed-dial"
	buttonKindServiceURL = "service-url"
	buttonKindFeature    = "feature"
)

var schemaStatements = []string{
	`CREATE TABLE IF NOT EXISTS devices (
		name      TEXT PRIMARY KEY,
		user_id   INTEGER NOT NULL DEFAULT 0,
		user_name TEXT NOT NULL DEFAULT '',
		domain    TEXT NOT NULL DEFAULT ''
	)`,
	`CREATE TABLE IF NOT EXISTS device_lines (
		device_name       TEXT NOT NULL REFERENCES devices(name) ON DELETE CASCADE,
		instance          INTEGER NOT NULL,
		name              TEXT NOT NULL,
		display_name      TEXT NOT NULL DEFAULT '',
		label             TEXT NOT NULL DEFAULT '',
		forward_all       TEXT NOT NULL DEFAULT '',
		forward_busy      TEXT NOT NULL DEFAULT '',
		forward_no_answer TEXT NOT NULL DEFAULT '',
		ring_on_idle      INTEGER NOT NULL DEFAULT 0,
		ring_on_active    INTEGER NOT NULL DEFAULT 0,
		busy_trigger      INTEGER NOT NULL DEFAULT 0,
		PRIMARY KEY (device_name, instance)
	)`,
	`CREATE TABLE IF NOT EXISTS device_buttons (
		device_name TEXT NOT NULL REFERENCES devices(name) ON DELETE CASCADE,
		kind        TEXT NOT NULL,
		position    INTEGER NOT NULL,
		value       TEXT NOT NULL DEFAULT '',
		label       TEXT NOT NULL DEFAULT '',
		feature_id  INTEGER NOT NULL DEFAULT 0,
		PRIMARY KEY (device_name, kind, position)
	)`,
}

// SQLiteService stores provisioning data in a local SQLite file.
type SQLiteService struct {
	db *sql.DB
}

// OpenSQLite opens (and creates if needed) the provisioning database.
func OpenSQLite(path string) (*SQLiteService, error) {
	db, err := sql.Open("sqlite", path+"?_pragma=foreign_keys(1)&_pragma=journal_mode(WAL)")
	if err != nil {
		return nil, fmt.Errorf("open directory db: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping directory db: %w", err)
	}
	for _, stmt := range schemaStatements {
		if _, err := db.Exec(stmt); err != nil {
			db.Close()
			return nil, fmt.Errorf("apply directory schema: %w", err)
		}
	}
	return &SQLiteService{db: db}, nil
}

func (s *SQLiteService) Close() error {
	return s.db.Close()
}

// LookupDevice loads a device with all its lines and buttons.
func (s *SQLiteService) LookupDevice(ctx context.Context, name string) (*Device, error) {
	dev := &Device{Name: name}
	err := s.db.QueryRowContext(ctx,
		`SELECT user_id, user_name, domain FROM devices WHERE name = ?`, name,
	).Scan(&dev.UserID, &dev.UserName, &dev.Domain)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("lookup device %s: %w", name, err)
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT instance, name, display_name, label,
		        forward_all, forward_busy, forward_no_answer,
		        ring_on_idle, ring_on_active, busy_trigger
		 FROM device_lines WHERE device_name = ? ORDER BY instance`, name)
	if err != nil {
		return nil, fmt.Errorf("load lines for %s: %w", name, err)
	}
	defer rows.Close()
	for rows.Next() {
		var l lines.Line
		if err := rows.Scan(&l.Instance, &l.Name, &l.DisplayName, &l.Label,
			&l.ForwardAll, &l.ForwardBusy, &l.ForwardNoAnswer,
			&l.RingOnIdle, &l.RingOnActive, &l.BusyTrigger); err != nil {
			return nil, fmt.Errorf("scan line row: %w", err)
		}
		dev.Lines = append(dev.Lines, l)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate line rows: %w", err)
	}

	brows, err := s.db.QueryContext(ctx,
		`SELECT kind, position, value, label, feature_id
		 FROM device_buttons WHERE device_name = ? ORDER BY kind, position`, name)
	if err != nil {
		return nil, fmt.Errorf("load buttons for %s: %w", name, err)
	}
	defer brows.Close()
	for brows.Next() {
		var (
			kind      string
			position  uint32
			value     string
			label     string
			featureID uint32
		)
		if err := brows.Scan(&kind, &position, &value, &label, &featureID); err != nil {
			return nil, fmt.Errorf("scan button row: %w", err)
		}
		switch kind {
		case buttonKindSpeedDial:
			dev.SpeedDials = append(dev.SpeedDials, lines.SpeedDial{Position: position, Number: value, Label: label})
		case buttonKindServiceURL:
			dev.ServiceURLs = append(dev.ServiceURLs, lines.ServiceURL{Position: position, URL: value, Label: label})
		case buttonKindFeature:
			dev.Features = append(dev.Features, lines.FeatureButton{Position: position, ID: featureID, Label: label})
		}
	}
	if err := brows.Err(); err != nil {
		return nil, fmt.Errorf("iterate button rows: %w", err)
	}
	return dev, nil
}

// SaveDevice replaces the full provisioning record of one device.
func (s *SQLiteService) SaveDevice(ctx context.Context, dev *Device) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin save: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO devices (name, user_id, user_name, domain) VALUES (?, ?, ?, ?)
		 ON CONFLICT(name) DO UPDATE SET user_id = excluded.user_id,
		   user_name = excluded.user_name, domain = excluded.domain`,
		dev.Name, dev.UserID, dev.UserName, dev.Domain,
	); err != nil {
		return fmt.Errorf("save device %s: %w", dev.Name, err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM device_lines WHERE device_name = ?`, dev.Name); err != nil {
		return fmt.Errorf("clear lines for %s: %w", dev.Name, err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM device_buttons WHERE device_name = ?`, dev.Name); err != nil {
		return fmt.Errorf("clear buttons for %s: %w", dev.Name, err)
	}

	for i, l := range dev.Lines {
		instance := l.Instance
		if instance == 0 {
			instance = uint32(i + 1)
		}
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO device_lines (device_name, instance, name, display_name, label,
			   forward_all, forward_busy, forward_no_answer, ring_on_idle, ring_on_active, busy_trigger)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			dev.Name, instance, l.Name, l.DisplayName, l.Label,
			l.ForwardAll, l.ForwardBusy, l.ForwardNoAnswer, l.RingOnIdle, l.RingOnActive, l.BusyTrigger,
		); err != nil {
			return fmt.Errorf("save line %s/%d: %w", dev.Name, instance, err)
		}
	}
	saveButton := func(kind string, position uint32, value, label string, featureID uint32) error {
		_, err := tx.ExecContext(ctx,
			`INSERT INTO device_buttons (device_name, kind, position, value, label, feature_id)
			 VALUES (?, ?, ?, ?, ?, ?)`,
			dev.Name, kind, position, value, label, featureID)
		return err
	}
	for i, sd := range dev.SpeedDials {
		pos := sd.Position
		if pos == 0 {
			pos = uint32(i + 1)
		}
		if err := saveButton(buttonKindSpeedDial, pos, sd.Number, sd.Label, 0); err != nil {
			return fmt.Errorf("save speed dial %s/%d: %w", dev.Name, pos, err)
		}
	}
	for i, su := range dev.ServiceURLs {
		pos := su.Position
		if pos == 0 {
			pos = uint32(i + 1)
		}
		if err := saveButton(buttonKindServiceURL, pos, su.URL, su.Label, 0); err != nil {
			return fmt.Errorf("save service url %s/%d: %w", dev.Name, pos, err)
		}
	}
	for i, f := range dev.Features {
		pos := f.Position
		if pos == 0 {
			pos = uint32(i + 1)
		}
		if err := saveButton(buttonKindFeature, pos, "", f.Label, f.ID); err != nil {
			return fmt.Errorf("save feature %s/%d: %w", dev.Name, pos, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit save %s: %w", dev.Name, err)
	}
	return nil
}

// DeleteDevice removes a device and its buttons.
func (s *SQLiteService) DeleteDevice(ctx context.Context, name string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM devices WHERE name = ?`, name)
	if err != nil {
		return fmt.Errorf("delete device %s: %w", name, err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete device %s: %w", name, err)
	}
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}

// ListDevices returns all provisioned device names.
func (s *SQLiteService) ListDevices(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT name FROM devices ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("list devices: %w", err)
	}
	defer rows.Close()
	var names []string
	for rows.Next() {
		var n string
		if err := rows.Scan(&n); err != nil {
			return nil, fmt.Errorf("scan device name: %w", err)
		}
		names = append(names, n)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate device names: %w", err)
	}
	return names, nil
}
