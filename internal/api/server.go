// Package api provides the HTTP admin surface for a running profile:
// device inspection, call listing, device commands and profile settings.
package api

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/rbeving/sccpd/internal/sccp/server"
	"github.com/rbeving/sccpd/internal/sccp/wire"
)

// Server provides the HTTP API over one profile server.
type Server struct {
	addr       string
	httpServer *http.Server
	profile    *server.Server
	startTime  time.Time
}

func NewServer(addr string, profile *server.Server) *Server {
	s := &Server{
		addr:      addr,
		profile:   profile,
		startTime: time.Now(),
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/api/v1/health", s.handleHealth)
	mux.HandleFunc("/api/v1/stats", s.handleStats)
	mux.HandleFunc("/api/v1/devices", s.handleDevices)
	mux.HandleFunc("/api/v1/devices/", s.handleDeviceByName)
	mux.HandleFunc("/api/v1/calls", s.handleCalls)
	mux.HandleFunc("/api/v1/settings", s.handleSettings)

	s.httpServer = &http.Server{
		Addr:    addr,
		Handler: mux,
	}
	return s
}

// Start begins listening for HTTP requests.
func (s *Server) Start() error {
	slog.Info("[API] starting HTTP API", "addr", s.addr)
	go func() {
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("[API] server error", "error", err)
		}
	}()
	return nil
}

// Stop shuts the server down.
func (s *Server) Stop() error {
	if s.httpServer != nil {
		return s.httpServer.Close()
	}
	return nil
}

// Handler exposes the mux for tests.
func (s *Server) Handler() http.Handler { return s.httpServer.Handler }

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, map[string]interface{}{
		"status": "ok",
		"uptime": int64(time.Since(s.startTime).Seconds()),
	})
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, map[string]interface{}{
		"registered_devices": len(s.profile.ListDevices()),
		"active_calls":       len(s.profile.Sessions()),
	})
}

func (s *Server) handleDevices(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	s.writeJSON(w, s.profile.ListDevices())
}

// handleDeviceByName serves /api/v1/devices/{name} and
// /api/v1/devices/{name}/command.
func (s *Server) handleDeviceByName(w http.ResponseWriter, r *http.Request) {
	path := strings.TrimPrefix(r.URL.Path, "/api/v1/devices/")
	if path == "" {
		http.Error(w, "Device name required", http.StatusBadRequest)
		return
	}
	name, rest, _ := strings.Cut(path, "/")

	switch {
	case rest == "" && r.Method == http.MethodGet:
		info, err := s.profile.DumpDevice(name)
		if err != nil {
			http.Error(w, "Not found", http.StatusNotFound)
			return
		}
		s.writeJSON(w, info)
	case rest == "" && r.Method == http.MethodDelete:
		if err := s.profile.KillDevice(name); err != nil {
			http.Error(w, "Not found", http.StatusNotFound)
			return
		}
		s.writeJSON(w, map[string]interface{}{"message": "device disconnected"})
	case rest == "command" && r.Method == http.MethodPost:
		s.handleCommand(w, r, name)
	default:
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
	}
}

// commandRequest is the JSON form of a device command push.
type commandRequest struct {
	Command       string `json:"command"`
	RingType      uint32 `json:"ring_type,omitempty"`
	RingMode      uint32 `json:"ring_mode,omitempty"`
	Stimulus      uint32 `json:"stimulus,omitempty"`
	Instance      uint32 `json:"instance,omitempty"`
	Mode          uint32 `json:"mode,omitempty"`
	Restart       bool   `json:"restart,omitempty"`
	Text          string `json:"text,omitempty"`
	Timeout       uint32 `json:"timeout,omitempty"`
	AppID         uint32 `json:"app_id,omitempty"`
	LineInstance  uint32 `json:"line_instance,omitempty"`
	CallID        uint32 `json:"call_id,omitempty"`
	TransactionID uint32 `json:"transaction_id,omitempty"`
	Payload       string `json:"payload,omitempty"`
}

func (s *Server) handleCommand(w http.ResponseWriter, r *http.Request, name string) {
	var req commandRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid JSON", http.StatusBadRequest)
		return
	}
	body, err := commandBody(req)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if err := s.profile.SendCommand(name, body); err != nil {
		http.Error(w, err.Error(), http.StatusNotFound)
		return
	}
	s.writeJSON(w, map[string]interface{}{"message": "command sent"})
}

// commandBody maps a command request to its wire message.
func commandBody(req commandRequest) (wire.Body, error) {
	switch req.Command {
	case "ring":
		return &wire.SetRingerBody{RingType: req.RingType, RingMode: req.RingMode,
			LineInstance: req.LineInstance, CallID: req.CallID}, nil
	case "lamp":
		return &wire.SetLampBody{Stimulus: req.Stimulus, StimulusInstance: req.Instance,
			Mode: req.Mode}, nil
	case "speaker":
		return &wire.SetSpeakerModeBody{Mode: req.Mode}, nil
	case "reset":
		resetType := wire.DeviceReset
		if req.Restart {
			resetType = wire.DeviceRestart
		}
		return &wire.ResetBody{ResetType: resetType}, nil
	case "prompt":
		body := &wire.DisplayPromptStatusBody{Timeout: req.Timeout,
			LineInstance: req.LineInstance, CallID: req.CallID}
		wire.PutCString(body.Display[:], req.Text)
		return body, nil
	case "user-data":
		return &wire.UserToDeviceDataBody{
			Header: wire.DataHeader{
				AppID:         req.AppID,
				LineInstance:  req.LineInstance,
				CallID:        req.CallID,
				TransactionID: req.TransactionID,
				DataLength:    uint32(len(req.Payload)),
			},
			Payload: []byte(req.Payload),
		}, nil
	default:
		return nil, fmt.Errorf("unknown command %q", req.Command)
	}
}

func (s *Server) handleCalls(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	type callResponse struct {
		Device       string `json:"device"`
		LineInstance uint32 `json:"line_instance"`
		CallID       uint32 `json:"call_id"`
		State        string `json:"state"`
		RemoteNumber string `json:"remote_number,omitempty"`
		Duration     int    `json:"duration"`
	}
	entries := s.profile.Sessions()
	response := make([]callResponse, 0, len(entries))
	for _, e := range entries {
		response = append(response, callResponse{
			Device:       e.Key.Device,
			LineInstance: e.Key.Instance,
			CallID:       e.CallID,
			State:        e.State.String(),
			RemoteNumber: e.RemoteNumber,
			Duration:     int(time.Since(e.CreatedAt).Seconds()),
		})
	}
	s.writeJSON(w, response)
}

func (s *Server) handleSettings(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		s.writeJSON(w, s.profile.Settings())
	case http.MethodPut:
		var settings server.Settings
		if err := json.NewDecoder(r.Body).Decode(&settings); err != nil {
			http.Error(w, "Invalid JSON", http.StatusBadRequest)
			return
		}
		if err := s.profile.UpdateSettings(settings); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		s.writeJSON(w, settings)
	default:
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
	}
}

func (s *Server) writeJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("[API] failed to encode JSON", "error", err)
	}
}
