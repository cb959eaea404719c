package api

import (
	"context"
	"encoding/json"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/rbeving/sccpd/internal/dialplan"
	"github.com/rbeving/sccpd/internal/directory"
	"github.com/rbeving/sccpd/internal/sccp/lines"
	"github.com/rbeving/sccpd/internal/sccp/server"
	"github.com/rbeving/sccpd/internal/sccp/session"
	"github.com/rbeving/sccpd/internal/sccp/wire"
	"github.com/rbeving/sccpd/internal/telco"
)

func newAPIServer(t *testing.T) (*Server, *server.Server) {
	t.Helper()
	plan, err := dialplan.NewPlan([]*dialplan.Route{
		{ID: "all", Pattern: "*", Priority: 100, MinDigits: 2, Enabled: true},
	})
	if err != nil {
		t.Fatalf("plan: %v", err)
	}
	dir := directory.NewMemoryService()
	err = dir.SaveDevice(context.Background(), &directory.Device{
		Name:  "SEP001122334455",
		Lines: []lines.Line{{Name: "42"}},
	})
	if err != nil {
		t.Fatalf("save device: %v", err)
	}
	profile, err := server.New(server.Config{
		Name:      "test",
		BindAddr:  "127.0.0.1",
		Port:      0,
		Settings:  server.Settings{KeepAlive: 30 * time.Second, DateFormat: "M/D/Y"},
		Directory: dir,
		Sessions:  session.NewDirectory(),
		Core:      telco.NewLocalCore(nil),
		Plan:      plan,
	})
	if err != nil {
		t.Fatalf("profile: %v", err)
	}
	go func() { _ = profile.Serve() }()
	t.Cleanup(profile.Close)
	return NewServer("127.0.0.1:0", profile), profile
}

func registerDevice(t *testing.T, profile *server.Server) net.Conn {
	t.Helper()
	conn, err := net.Dial("tcp", profile.Addr().String())
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { _ = conn.Close() })

	reg := &wire.RegisterBody{}
	wire.PutCString(reg.DeviceName[:], "SEP001122334455")
	if err := wire.NewEncoder(conn).Send(reg); err != nil {
		t.Fatalf("register: %v", err)
	}
	dec := wire.NewDecoder(conn)
	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	for {
		msg, err := dec.Read()
		if err != nil {
			t.Fatalf("read: %v", err)
		}
		if msg.Type == wire.TypeRegisterAck {
			return conn
		}
	}
}

func doRequest(t *testing.T, api *Server, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	rec := httptest.NewRecorder()
	api.Handler().ServeHTTP(rec, req)
	return rec
}

func TestHealthAndEmptyDevices(t *testing.T) {
	api, _ := newAPIServer(t)

	rec := doRequest(t, api, http.MethodGet, "/api/v1/health", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("health status = %d", rec.Code)
	}

	rec = doRequest(t, api, http.MethodGet, "/api/v1/devices", "")
	var devices []json.RawMessage
	if err := json.Unmarshal(rec.Body.Bytes(), &devices); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(devices) != 0 {
		t.Errorf("devices = %d, want 0", len(devices))
	}

	rec = doRequest(t, api, http.MethodGet, "/api/v1/devices/SEP001122334455", "")
	if rec.Code != http.StatusNotFound {
		t.Errorf("absent device status = %d, want 404", rec.Code)
	}
}

func TestDeviceListAndCommand(t *testing.T) {
	api, profile := newAPIServer(t)
	registerDevice(t, profile)

	rec := doRequest(t, api, http.MethodGet, "/api/v1/devices", "")
	var devices []struct {
		Name string `json:"name"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &devices); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(devices) != 1 || devices[0].Name != "SEP001122334455" {
		t.Fatalf("devices = %+v", devices)
	}

	rec = doRequest(t, api, http.MethodPost, "/api/v1/devices/SEP001122334455/command",
		`{"command":"speaker","mode":1}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("command status = %d: %s", rec.Code, rec.Body.String())
	}

	rec = doRequest(t, api, http.MethodPost, "/api/v1/devices/SEP001122334455/command",
		`{"command":"warp"}`)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("unknown command status = %d, want 400", rec.Code)
	}
}

func TestKillDeviceViaAPI(t *testing.T) {
	api, profile := newAPIServer(t)
	registerDevice(t, profile)

	rec := doRequest(t, api, http.MethodDelete, "/api/v1/devices/SEP001122334455", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("delete status = %d", rec.Code)
	}

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if len(profile.ListDevices()) == 0 {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("device still registered after kill")
}

func TestSettingsRoundTrip(t *testing.T) {
	api, _ := newAPIServer(t)

	rec := doRequest(t, api, http.MethodPut, "/api/v1/settings",
		`{"keepalive":45000000000,"date_format":"Y-M-D"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("put status = %d: %s", rec.Code, rec.Body.String())
	}

	rec = doRequest(t, api, http.MethodGet, "/api/v1/settings", "")
	var settings server.Settings
	if err := json.Unmarshal(rec.Body.Bytes(), &settings); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if settings.KeepAlive != 45*time.Second || settings.DateFormat != "Y-M-D" {
		t.Fatalf("settings = %+v", settings)
	}

	rec = doRequest(t, api, http.MethodPut, "/api/v1/settings", `{"keepalive":0}`)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("invalid settings status = %d, want 400", rec.Code)
	}
}

func TestCallsEmpty(t *testing.T) {
	api, _ := newAPIServer(t)
	rec := doRequest(t, api, http.MethodGet, "/api/v1/calls", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("calls status = %d", rec.Code)
	}
	var calls []json.RawMessage
	if err := json.Unmarshal(rec.Body.Bytes(), &calls); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(calls) != 0 {
		t.Errorf("calls = %d, want 0", len(calls))
	}
}
