package debug

import (
	"io"
	"log"
	"os"
	"sync"
)

// Debug levels
const (
	LevelOff     = 0 // No output
	LevelInfo    = 1 // Important info (table applied, backend selected)
	LevelLive    = 2 // Live info (runtime direction/mode changes, diagnostics)
	LevelVerbose = 3 // Verbose (per-pin configuration decisions)
	LevelTrace   = 4 // Trace (every register access)
)

var (
	mu     sync.RWMutex
	level  int
	out    io.Writer = os.Stdout
	logger *log.Logger
)

// Init initializes the debug system with a level (0-4).
// 0 = no output
// 1 = important info (table summary, backend)
// 2 = live info (direction/mode changes, diagnostic reports)
// 3 = verbose (per-pin decisions)
// 4 = trace (register reads and writes)
func Init(debugLevel int) {
	mu.Lock()
	defer mu.Unlock()
	level = debugLevel
	logger = nil
	if level > LevelOff {
		logger = log.New(out, "[PortGo] ", log.LstdFlags|log.Lmicroseconds)
	}
}

// SetOutput redirects debug output. It keeps the current level.
func SetOutput(w io.Writer) {
	mu.Lock()
	out = w
	if logger != nil {
		logger.SetOutput(w)
	}
	mu.Unlock()
}

func printf(minLevel int, format string, args ...interface{}) {
	mu.RLock()
	l := logger
	ok := level >= minLevel
	mu.RUnlock()
	if ok && l != nil {
		l.Printf(format, args...)
	}
}

// --- Level 1 functions (Info): important info ---

// Info prints a level 1 message (important info).
func Info(format string, args ...interface{}) {
	printf(LevelInfo, "[INFO] "+format, args...)
}

// Summary prints a banner (level 1).
func Summary(title string) {
	printf(LevelInfo, "═══════════════════════════════════════")
	printf(LevelInfo, "  %s", title)
	printf(LevelInfo, "═══════════════════════════════════════")
}

// Table prints the size of an applied pin table (level 1).
func Table(pins, groups int) {
	printf(LevelInfo, "[INFO] Pin table: %d pins across %d port groups", pins, groups)
}

// --- Level 2 functions (Live): real-time info ---

// Live prints a level 2 message (live info).
func Live(format string, args ...interface{}) {
	printf(LevelLive, "[LIVE] "+format, args...)
}

// Diag prints a diagnostic report (level 2).
func Diag(module, instance uint16, service, code uint8) {
	printf(LevelLive, "[DIAG] module=%d instance=%d service=0x%02X error=0x%02X", module, instance, service, code)
}

// --- Level 3 functions (Verbose): everything ---

// Verbose prints a level 3 message (verbose).
func Verbose(format string, args ...interface{}) {
	printf(LevelVerbose, "[VERBOSE] "+format, args...)
}

// PrintStruct prints a struct in formatted form (level 3).
func PrintStruct(name string, v interface{}) {
	printf(LevelVerbose, "[VERBOSE] %s: %+v", name, v)
}

// Section prints a section separator (level 3).
func Section(name string) {
	printf(LevelVerbose, "━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━")
	printf(LevelVerbose, "  %s", name)
	printf(LevelVerbose, "━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━")
}

// Step prints a numbered step (level 3).
func Step(num int, description string) {
	printf(LevelVerbose, "[VERBOSE] Step %d: %s", num, description)
}

// Value prints a named value in formatted form (level 1).
func Value(name string, value interface{}) {
	printf(LevelInfo, "[INFO]   %s = %v", name, value)
}

// --- Level 4 functions (Trace): very low level ---

// Trace prints a level 4 message (trace).
func Trace(format string, args ...interface{}) {
	printf(LevelTrace, "[TRACE] "+format, args...)
}

// Reg prints a register access (level 4).
func Reg(op, block string, offset uintptr, value uint32) {
	printf(LevelTrace, "[REG] %s %s+0x%03X = 0x%08X", op, block, offset, value)
}

// --- General functions ---

// Error prints a debug error (level 1+).
func Error(err error) {
	printf(LevelInfo, "[ERROR] %v", err)
}
