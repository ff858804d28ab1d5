package web

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"math"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/cjeanneret/PortGo/internal/engine"
	"github.com/cjeanneret/PortGo/internal/hw/gpio"
	"github.com/cjeanneret/PortGo/internal/port"
)

// maxBodyBytes caps request bodies for the mutation endpoints.
const maxBodyBytes = 4 << 10

// Driver is the part of the engine the HTTP surface drives.
type Driver interface {
	State() engine.State
	LockedPin() bool
	Table() port.Table
	SetDirection(id int, dir port.Direction) error
	SetMode(id int, m port.Mode) error
	RefreshAll() error
}

// PinView is the JSON form of one configured pin.
type PinView struct {
	ID                  int    `json:"id"`
	Name                string `json:"name"`
	Mode                string `json:"mode"`
	Direction           string `json:"direction"`
	Initial             bool   `json:"initial"`
	Resistor            string `json:"resistor"`
	Class               string `json:"class"`
	DirectionChangeable bool   `json:"direction_changeable"`
	ModeChangeable      bool   `json:"mode_changeable"`
}

// PinsResponse is returned by GET /pins.
type PinsResponse struct {
	State     string    `json:"state"`
	LockedPin bool      `json:"locked_pin"`
	Pins      []PinView `json:"pins"`
}

// Handlers holds dependencies for HTTP handlers.
type Handlers struct {
	Broadcaster *StatusBroadcaster
	driver      Driver
	dumper      gpio.Dumper // nil when the surface cannot dump
	staticFS    fs.FS

	// engineMu serializes every engine call; the engine itself is not
	// safe for concurrent use.
	engineMu sync.Mutex
}

// NewHandlers creates handlers with the given dependencies.
// If dumper is nil, GET /registers returns 501 Not Implemented.
func NewHandlers(broadcaster *StatusBroadcaster, driver Driver, dumper gpio.Dumper, staticFS fs.FS) *Handlers {
	return &Handlers{
		Broadcaster: broadcaster,
		driver:      driver,
		dumper:      dumper,
		staticFS:    staticFS,
	}
}

// ServeIndex serves the main HTML page (root path only).
func (h *Handlers) ServeIndex(w http.ResponseWriter, r *http.Request) {
	data, err := fs.ReadFile(h.staticFS, "index.html")
	if err != nil {
		http.Error(w, "not found", http.StatusNotFound)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Write(data)
}

// HandleVersion handles GET /version.
func (h *Handlers) HandleVersion(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, engine.Version())
}

// HandlePins handles GET /pins.
func (h *Handlers) HandlePins(w http.ResponseWriter, r *http.Request) {
	h.engineMu.Lock()
	resp := PinsResponse{
		State:     h.driver.State().String(),
		LockedPin: h.driver.LockedPin(),
	}
	table := h.driver.Table()
	h.engineMu.Unlock()

	resp.Pins = make([]PinView, 0, len(table))
	for i, d := range table {
		resp.Pins = append(resp.Pins, PinView{
			ID:                  i,
			Name:                d.Name(),
			Mode:                d.Mode.String(),
			Direction:           d.Direction.String(),
			Initial:             d.Initial,
			Resistor:            d.Resistor.String(),
			Class:               engine.Classify(d.Group, d.Index).String(),
			DirectionChangeable: d.DirectionChangeable,
			ModeChangeable:      d.ModeChangeable,
		})
	}
	writeJSON(w, http.StatusOK, resp)
}

// HandleRegisters handles GET /registers.
func (h *Handlers) HandleRegisters(w http.ResponseWriter, r *http.Request) {
	if h.dumper == nil {
		http.Error(w, "register dump not supported by this backend", http.StatusNotImplemented)
		return
	}
	h.engineMu.Lock()
	dump := h.dumper.Dump()
	h.engineMu.Unlock()
	writeJSON(w, http.StatusOK, dump)
}

// HandleSetDirection handles POST /pins/{id}/direction with a body
// {"direction":"in"|"out"}.
func (h *Handlers) HandleSetDirection(w http.ResponseWriter, r *http.Request) {
	id, ok := pinID(w, r)
	if !ok {
		return
	}
	var body struct {
		Direction string `json:"direction"`
	}
	if !decodeBody(w, r, &body) {
		return
	}
	dir, err := port.ParseDirection(body.Direction)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	h.engineMu.Lock()
	err = h.driver.SetDirection(id, dir)
	locked := h.driver.LockedPin()
	h.engineMu.Unlock()
	if err != nil {
		writeEngineError(w, err)
		return
	}

	msg := fmt.Sprintf("pin %d direction set to %s", id, dir)
	if locked {
		msg = fmt.Sprintf("pin %d is a reserved debug pin, direction unchanged", id)
	}
	h.Broadcaster.BroadcastMsg(msg)
	writeJSON(w, http.StatusOK, map[string]interface{}{"status": "ok", "locked_pin": locked})
}

// HandleSetMode handles POST /pins/{id}/mode with a body {"mode":N}.
func (h *Handlers) HandleSetMode(w http.ResponseWriter, r *http.Request) {
	id, ok := pinID(w, r)
	if !ok {
		return
	}
	var body struct {
		Mode *int `json:"mode"`
	}
	if !decodeBody(w, r, &body) {
		return
	}
	if body.Mode == nil {
		http.Error(w, "mode is required", http.StatusBadRequest)
		return
	}
	// Values that do not fit a mode saturate, so the engine rejects and
	// reports them like any other invalid mode.
	m := port.Mode(math.MaxUint8)
	if *body.Mode >= 0 && *body.Mode <= math.MaxUint8 {
		m = port.Mode(*body.Mode)
	}

	h.engineMu.Lock()
	err := h.driver.SetMode(id, m)
	h.engineMu.Unlock()
	if err != nil {
		writeEngineError(w, err)
		return
	}

	h.Broadcaster.BroadcastMsg(fmt.Sprintf("pin %d mode set to %s", id, m))
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// HandleRefresh handles POST /refresh.
func (h *Handlers) HandleRefresh(w http.ResponseWriter, r *http.Request) {
	h.engineMu.Lock()
	err := h.driver.RefreshAll()
	locked := h.driver.LockedPin()
	h.engineMu.Unlock()
	if err != nil {
		writeEngineError(w, err)
		return
	}
	h.Broadcaster.BroadcastMsg("pin directions refreshed")
	writeJSON(w, http.StatusOK, map[string]interface{}{"status": "ok", "locked_pin": locked})
}

// HandleStatusStream handles GET /diag/stream for SSE.
func (h *Handlers) HandleStatusStream(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming not supported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no") // nginx

	ch, unsub := h.Broadcaster.Subscribe()
	defer unsub()

	// Send initial comment to establish connection
	w.Write([]byte(": connected\n\n"))
	flusher.Flush()

	// Heartbeat while idle
	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case msg, ok := <-ch:
			if !ok {
				return
			}
			w.Write([]byte("data: " + msg + "\n\n"))
			flusher.Flush()

		case <-ticker.C:
			w.Write([]byte(": heartbeat\n\n"))
			flusher.Flush()

		case <-r.Context().Done():
			return
		}
	}
}

func pinID(w http.ResponseWriter, r *http.Request) (int, bool) {
	id, err := strconv.Atoi(r.PathValue("id"))
	if err != nil {
		http.Error(w, "pin id must be an integer", http.StatusBadRequest)
		return 0, false
	}
	return id, true
}

func decodeBody(w http.ResponseWriter, r *http.Request, v interface{}) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		http.Error(w, "invalid JSON", http.StatusBadRequest)
		return false
	}
	return true
}

// StatusFor maps an engine error to an HTTP status.
func StatusFor(err error) int {
	switch {
	case errors.Is(err, engine.ErrNotInitialized),
		errors.Is(err, engine.ErrUnchangeable),
		errors.Is(err, engine.ErrReservedPin):
		return http.StatusConflict
	case errors.Is(err, engine.ErrInvalidPin),
		errors.Is(err, engine.ErrInvalidMode),
		errors.Is(err, engine.ErrInvalidConfig):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

func writeEngineError(w http.ResponseWriter, err error) {
	http.Error(w, err.Error(), StatusFor(err))
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
