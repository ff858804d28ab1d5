package web

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"testing/fstest"
	"time"

	"github.com/cjeanneret/PortGo/internal/diag"
	"github.com/cjeanneret/PortGo/internal/engine"
	"github.com/cjeanneret/PortGo/internal/hw/gpio"
	"github.com/cjeanneret/PortGo/internal/port"
)

// ---------- Handler helpers ----------

type testRig struct {
	h   *Handlers
	mux http.Handler
	eng *engine.Engine
	reg *gpio.MockSurface
	rec *diag.Recorder
}

func newTestRig(t *testing.T, apply bool) *testRig {
	t.Helper()
	surface := gpio.NewMockSurface()
	rec := &diag.Recorder{}
	b := NewStatusBroadcaster()
	eng, err := engine.New(surface, diag.Multi(rec, DiagSink(b)))
	if err != nil {
		t.Fatal(err)
	}
	if apply {
		table := port.Table{
			{Group: port.GroupF, Index: 3, Direction: port.Out, DirectionChangeable: true, ModeChangeable: true},
			{Group: port.GroupF, Index: 4, Direction: port.In, Resistor: port.PullUp},
			{Group: port.GroupC, Index: 0, Direction: port.In, DirectionChangeable: true, ModeChangeable: true},
		}
		if err := eng.Apply(table); err != nil {
			t.Fatal(err)
		}
	}
	staticFS := fstest.MapFS{
		"index.html": &fstest.MapFile{Data: []byte("<html>test</html>")},
	}
	h := NewHandlers(b, eng, surface, staticFS)
	srv := &Server{handlers: h}
	return &testRig{h: h, mux: srv.Mux(), eng: eng, reg: surface, rec: rec}
}

func (r *testRig) do(method, path, body string) *httptest.ResponseRecorder {
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	w := httptest.NewRecorder()
	r.mux.ServeHTTP(w, req)
	return w
}

// ---------- GET endpoints ----------

func TestHandleVersion(t *testing.T) {
	rig := newTestRig(t, false)
	w := rig.do(http.MethodGet, "/version", "")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusOK)
	}
	var v engine.VersionInfo
	if err := json.NewDecoder(w.Body).Decode(&v); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if v != engine.Version() {
		t.Errorf("version = %+v", v)
	}
}

func TestHandlePins(t *testing.T) {
	rig := newTestRig(t, true)
	w := rig.do(http.MethodGet, "/pins", "")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	var resp PinsResponse
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.State != "ready" || !resp.LockedPin {
		t.Errorf("state = %q locked = %v", resp.State, resp.LockedPin)
	}
	if len(resp.Pins) != 3 {
		t.Fatalf("pins = %d, want 3", len(resp.Pins))
	}
	if p := resp.Pins[0]; p.Name != "PF3" || p.Direction != "out" || !p.DirectionChangeable || p.Class != "normal" {
		t.Errorf("pin 0 = %+v", p)
	}
	if p := resp.Pins[1]; p.Resistor != "up" || p.DirectionChangeable {
		t.Errorf("pin 1 = %+v", p)
	}
	if resp.Pins[2].Class != "reserved" {
		t.Errorf("pin 2 class = %q", resp.Pins[2].Class)
	}
}

func TestHandlePins_BeforeApply(t *testing.T) {
	rig := newTestRig(t, false)
	var resp PinsResponse
	json.NewDecoder(rig.do(http.MethodGet, "/pins", "").Body).Decode(&resp)
	if resp.State != "uninitialized" || len(resp.Pins) != 0 {
		t.Errorf("resp = %+v", resp)
	}
}

func TestHandleRegisters(t *testing.T) {
	rig := newTestRig(t, true)
	w := rig.do(http.MethodGet, "/registers", "")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	var dump []gpio.BlockDump
	if err := json.NewDecoder(w.Body).Decode(&dump); err != nil {
		t.Fatalf("decode: %v", err)
	}
	found := false
	for _, b := range dump {
		if b.Block == "PORTF" {
			found = true
			if b.Registers["DIR"]&(1<<3) == 0 {
				t.Errorf("PORTF DIR = %08b, want bit 3", b.Registers["DIR"])
			}
		}
	}
	if !found {
		t.Error("PORTF missing from dump")
	}
}

func TestHandleRegisters_NoDumper(t *testing.T) {
	rig := newTestRig(t, true)
	rig.h.dumper = nil
	if w := rig.do(http.MethodGet, "/registers", ""); w.Code != http.StatusNotImplemented {
		t.Errorf("status = %d, want %d", w.Code, http.StatusNotImplemented)
	}
}

// ---------- POST endpoints ----------

func TestHandleSetDirection(t *testing.T) {
	rig := newTestRig(t, true)
	ch, unsub := rig.h.Broadcaster.Subscribe()
	defer unsub()

	w := rig.do(http.MethodPost, "/pins/0/direction", `{"direction":"in"}`)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", w.Code, w.Body.String())
	}
	if rig.reg.Reg(port.GroupF, gpio.RegDir)&(1<<3) != 0 {
		t.Error("PF3 still an output")
	}
	if evt := receive(t, ch); !strings.Contains(evt.Msg, "direction set to in") {
		t.Errorf("broadcast = %q", evt.Msg)
	}
}

func TestHandleSetDirection_ReservedPin(t *testing.T) {
	rig := newTestRig(t, true)
	w := rig.do(http.MethodPost, "/pins/2/direction", `{"direction":"out"}`)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	var resp map[string]interface{}
	json.NewDecoder(w.Body).Decode(&resp)
	if resp["locked_pin"] != true {
		t.Errorf("resp = %v", resp)
	}
}

func TestHandleSetMode(t *testing.T) {
	rig := newTestRig(t, true)
	w := rig.do(http.MethodPost, "/pins/0/mode", `{"mode":5}`)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", w.Code, w.Body.String())
	}
	if nib := (rig.reg.Reg(port.GroupF, gpio.RegPortCtl) >> 12) & 0xF; nib != 5 {
		t.Errorf("PCTL nibble 3 = %d, want 5", nib)
	}
}

func TestHandleRefresh(t *testing.T) {
	rig := newTestRig(t, true)
	if w := rig.do(http.MethodPost, "/refresh", ""); w.Code != http.StatusOK {
		t.Errorf("status = %d", w.Code)
	}
}

func TestHandlers_ErrorStatus(t *testing.T) {
	cases := []struct {
		name   string
		apply  bool
		path   string
		body   string
		status int
		code   diag.Code
	}{
		{"not initialized", false, "/pins/0/direction", `{"direction":"in"}`, http.StatusConflict, diag.CodeNotInitialized},
		{"refresh not initialized", false, "/refresh", "", http.StatusConflict, diag.CodeNotInitialized},
		{"invalid pin", true, "/pins/9/direction", `{"direction":"in"}`, http.StatusBadRequest, diag.CodeInvalidPin},
		{"direction unchangeable", true, "/pins/1/direction", `{"direction":"out"}`, http.StatusConflict, diag.CodeDirectionUnchangeable},
		{"mode unchangeable", true, "/pins/1/mode", `{"mode":3}`, http.StatusConflict, diag.CodeModeUnchangeable},
		{"invalid mode", true, "/pins/0/mode", `{"mode":16}`, http.StatusBadRequest, diag.CodeInvalidMode},
		{"negative mode", true, "/pins/0/mode", `{"mode":-1}`, http.StatusBadRequest, diag.CodeInvalidMode},
		{"mode above a byte", true, "/pins/0/mode", `{"mode":300}`, http.StatusBadRequest, diag.CodeInvalidMode},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rig := newTestRig(t, tc.apply)
			w := rig.do(http.MethodPost, tc.path, tc.body)
			if w.Code != tc.status {
				t.Errorf("status = %d, want %d (%s)", w.Code, tc.status, w.Body.String())
			}
			last, ok := rig.rec.Last()
			if !ok || last.Code != tc.code {
				t.Errorf("report = %+v, want code %s", last, tc.code)
			}
		})
	}
}

func TestHandlers_BadRequests(t *testing.T) {
	cases := []struct {
		name string
		path string
		body string
	}{
		{"non-numeric id", "/pins/x/direction", `{"direction":"in"}`},
		{"invalid JSON", "/pins/0/direction", "not json"},
		{"unknown direction", "/pins/0/direction", `{"direction":"up"}`},
		{"missing mode", "/pins/0/mode", `{}`},
		{"oversized body", "/pins/0/mode", `{"mode":` + strings.Repeat("1", 8<<10) + `}`},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rig := newTestRig(t, true)
			if w := rig.do(http.MethodPost, tc.path, tc.body); w.Code != http.StatusBadRequest {
				t.Errorf("status = %d, want %d", w.Code, http.StatusBadRequest)
			}
			if rig.rec.Len() != 0 {
				t.Errorf("rejected request reached the engine: %v", rig.rec.Reports())
			}
		})
	}
}

func TestHandleSetMode_ReservedPinConflict(t *testing.T) {
	rig := newTestRig(t, true)
	if w := rig.do(http.MethodPost, "/pins/2/mode", `{"mode":4}`); w.Code != http.StatusConflict {
		t.Errorf("status = %d, want %d", w.Code, http.StatusConflict)
	}
	if rig.rec.Len() != 0 {
		t.Error("reserved pin must not be reported")
	}
}

func TestStatusFor(t *testing.T) {
	if StatusFor(errors.New("boom")) != http.StatusInternalServerError {
		t.Error("unknown error should map to 500")
	}
	if StatusFor(fmt.Errorf("x: %w", engine.ErrInvalidConfig)) != http.StatusBadRequest {
		t.Error("invalid config should map to 400")
	}
}

func TestHandlers_MethodNotAllowed(t *testing.T) {
	rig := newTestRig(t, true)
	if w := rig.do(http.MethodGet, "/refresh", ""); w.Code != http.StatusMethodNotAllowed {
		t.Errorf("status = %d, want %d", w.Code, http.StatusMethodNotAllowed)
	}
}

// ---------- SSE ----------

func TestHandleStatusStream(t *testing.T) {
	rig := newTestRig(t, false)
	srv := httptest.NewServer(rig.mux)
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	req, _ := http.NewRequestWithContext(ctx, http.MethodGet, srv.URL+"/diag/stream", nil)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if ct := resp.Header.Get("Content-Type"); ct != "text/event-stream" {
		t.Errorf("Content-Type = %q", ct)
	}

	rd := bufio.NewReader(resp.Body)
	if line, _ := rd.ReadString('\n'); !strings.HasPrefix(line, ": connected") {
		t.Fatalf("first line = %q", line)
	}

	// A rejected refresh before Apply is reported on the stream.
	go func() {
		http.Post(srv.URL+"/refresh", "application/json", nil)
	}()

	for {
		line, err := rd.ReadString('\n')
		if err != nil {
			t.Fatalf("read: %v", err)
		}
		data, ok := strings.CutPrefix(line, "data: ")
		if !ok {
			continue
		}
		var evt StatusEvent
		if err := json.Unmarshal([]byte(strings.TrimSpace(data)), &evt); err != nil {
			t.Fatalf("unmarshal: %v", err)
		}
		if evt.Level == "diag" && evt.Report != nil && evt.Report.Code == uint8(diag.CodeNotInitialized) {
			return
		}
	}
}

// ---------- ServeIndex ----------

func TestServeIndex(t *testing.T) {
	rig := newTestRig(t, false)
	w := rig.do(http.MethodGet, "/", "")

	if w.Code != http.StatusOK {
		t.Errorf("status = %d, want %d", w.Code, http.StatusOK)
	}
	if ct := w.Header().Get("Content-Type"); ct != "text/html; charset=utf-8" {
		t.Errorf("Content-Type = %q, want text/html; charset=utf-8", ct)
	}
	if !strings.Contains(w.Body.String(), "<html>") {
		t.Error("body should contain HTML content")
	}
}

func TestEmbeddedConsole(t *testing.T) {
	srv := NewServer(":0", NewStatusBroadcaster(), &engine.Engine{}, nil)
	w := httptest.NewRecorder()
	srv.Mux().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/static/app.js", nil))
	if w.Code != http.StatusOK || !strings.Contains(w.Body.String(), "EventSource") {
		t.Errorf("status = %d", w.Code)
	}
}
