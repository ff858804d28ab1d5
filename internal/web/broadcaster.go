package web

import (
	"encoding/json"
	"strings"
	"sync"
	"time"

	"github.com/cjeanneret/PortGo/internal/diag"
)

// StatusEvent is a single SSE message: a log line or a diagnostic report.
type StatusEvent struct {
	Time   string       `json:"t"`
	Level  string       `json:"l,omitempty"`
	Msg    string       `json:"msg"`
	Report *ReportEvent `json:"report,omitempty"`
}

// ReportEvent is the JSON form of a diagnostic report.
type ReportEvent struct {
	Module   uint16 `json:"module"`
	Instance uint16 `json:"instance"`
	Service  uint8  `json:"service"`
	Code     uint8  `json:"code"`
}

// StatusBroadcaster distributes status messages to multiple SSE clients.
type StatusBroadcaster struct {
	mu      sync.RWMutex
	clients map[chan string]struct{}
}

// NewStatusBroadcaster creates a new broadcaster.
func NewStatusBroadcaster() *StatusBroadcaster {
	return &StatusBroadcaster{
		clients: make(map[chan string]struct{}),
	}
}

// Subscribe returns a channel that receives broadcast messages and a cleanup function.
// The caller must call the returned cleanup when done (e.g. on client disconnect).
func (b *StatusBroadcaster) Subscribe() (<-chan string, func()) {
	ch := make(chan string, 64)
	b.mu.Lock()
	b.clients[ch] = struct{}{}
	b.mu.Unlock()

	unsub := func() {
		b.mu.Lock()
		delete(b.clients, ch)
		b.mu.Unlock()
		close(ch)
	}
	return ch, unsub
}

// Broadcast sends a message to all subscribed clients.
// Slow clients may miss messages (non-blocking, buffered).
func (b *StatusBroadcaster) Broadcast(level, msg string) {
	b.publish(StatusEvent{Level: level, Msg: msg})
}

// BroadcastMsg is a convenience for level "info".
func (b *StatusBroadcaster) BroadcastMsg(msg string) {
	b.Broadcast("info", msg)
}

// BroadcastReport sends a diagnostic report with level "diag".
func (b *StatusBroadcaster) BroadcastReport(r diag.Report) {
	b.publish(StatusEvent{
		Level: "diag",
		Msg:   r.String(),
		Report: &ReportEvent{
			Module:   r.Module,
			Instance: r.Instance,
			Service:  uint8(r.Service),
			Code:     uint8(r.Code),
		},
	})
}

func (b *StatusBroadcaster) publish(evt StatusEvent) {
	evt.Time = time.Now().Format(time.RFC3339)
	data, err := json.Marshal(evt)
	if err != nil {
		return
	}
	payload := string(data)

	b.mu.RLock()
	defer b.mu.RUnlock()
	for ch := range b.clients {
		select {
		case ch <- payload:
		default:
			// channel full, skip
		}
	}
}

// DiagSink returns a diag.Sink that forwards every report to b.
func DiagSink(b *StatusBroadcaster) diag.Sink {
	return diag.SinkFunc(b.BroadcastReport)
}

// BroadcastWriter implements io.Writer; each Write broadcasts the content to SSE clients.
func BroadcastWriter(b *StatusBroadcaster) *broadcastWriter {
	return &broadcastWriter{b: b}
}

// broadcastWriter wraps StatusBroadcaster as io.Writer for use with debug.SetOutput.
type broadcastWriter struct {
	b *StatusBroadcaster
}

func (w *broadcastWriter) Write(p []byte) (n int, err error) {
	msg := strings.TrimSpace(string(p))
	if msg != "" {
		w.b.BroadcastMsg(msg)
	}
	return len(p), nil
}
