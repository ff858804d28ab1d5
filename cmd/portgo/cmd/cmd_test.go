package cmd

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/spf13/cobra"

	"github.com/cjeanneret/PortGo/internal/debug"
	"github.com/cjeanneret/PortGo/internal/port"
)

const testConfig = `
engine:
  backend: mock
  debug_level: 0
web:
  listen: "127.0.0.1:0"
pins:
  - {pin: PF3, mode: dio, direction: out, initial: high, direction_changeable: true, mode_changeable: true}
  - {pin: PF4, mode: dio, direction: in, resistor: pullup}
  - {pin: PC2, mode: dio, direction: in}
`

// writeConfig creates a temporary configs/ dir with the given YAML content and returns the path.
func writeConfig(t *testing.T, content string) string {
	t.Helper()
	cfgDir := filepath.Join(t.TempDir(), "configs")
	if err := os.Mkdir(cfgDir, 0o755); err != nil {
		t.Fatal(err)
	}
	path := filepath.Join(cfgDir, "test.yaml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func resetGlobals(path string) {
	cfgPath = path
	debugLevel = 0
	opList = nil
	noDump = false
	listenAddr = ""
}

// ---------- parseOp ----------

func TestParseOp(t *testing.T) {
	cases := []struct {
		in   string
		want op
	}{
		{"refresh", op{kind: opRefresh}},
		{"dir:3:out", op{kind: opDirection, id: 3, dir: port.Out}},
		{"direction:0:input", op{kind: opDirection, id: 0, dir: port.In}},
		{"mode:2:7", op{kind: opMode, id: 2, mode: 7}},
		{"mode:2:af9", op{kind: opMode, id: 2, mode: 9}},
		{"mode:1:analog", op{kind: opMode, id: 1, mode: port.ModeAnalog}},
		{"mode:1:200", op{kind: opMode, id: 1, mode: 200}},
		{"mode:-1:dio", op{kind: opMode, id: -1, mode: port.ModeDIO}},
	}
	for _, tc := range cases {
		got, err := parseOp(tc.in)
		if err != nil {
			t.Errorf("parseOp(%q): %v", tc.in, err)
			continue
		}
		tc.want.text = tc.in
		if got != tc.want {
			t.Errorf("parseOp(%q) = %+v, want %+v", tc.in, got, tc.want)
		}
	}
}

func TestParseOp_Errors(t *testing.T) {
	for _, in := range []string{
		"", "reset", "refresh:1", "dir:1", "dir:x:in", "dir:1:up",
		"mode:1:af1", "mode:1:af16", "mode:1:fast", "mode:1:2:3",
	} {
		if _, err := parseOp(in); err == nil {
			t.Errorf("parseOp(%q): expected error", in)
		}
	}
	if _, err := parseOps([]string{"refresh", "bogus"}); err == nil {
		t.Error("parseOps must fail on the first bad op")
	}
}

// ---------- commands ----------

func TestCheckCommand(t *testing.T) {
	path := writeConfig(t, testConfig)
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetArgs([]string{"check", "--config", path, "--debug", "0"})
	defer rootCmd.SetArgs(nil)

	if err := rootCmd.Execute(); err != nil {
		t.Fatalf("check: %v", err)
	}
	s := out.String()
	for _, want := range []string{
		"PF3 dio out high dir-changeable mode-changeable",
		"PF4 dio in pullup",
		"pin 2 (PC2) is reserved",
		"OK: 3 pins in 2 port groups",
	} {
		if !strings.Contains(s, want) {
			t.Errorf("output missing %q:\n%s", want, s)
		}
	}
}

func TestCheckCommand_RejectsPathOutsideConfigs(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.yaml")
	os.WriteFile(path, []byte(testConfig), 0o644)
	resetGlobals(path)
	if err := runCheck(&cobra.Command{}, nil); err == nil {
		t.Error("expected error for config outside configs/")
	}
}

func TestApplyCommand(t *testing.T) {
	resetGlobals(writeConfig(t, testConfig))
	opList = []string{"dir:0:in", "mode:0:af5", "refresh"}

	var out bytes.Buffer
	c := &cobra.Command{}
	c.SetOut(&out)
	if err := runApply(c, nil); err != nil {
		t.Fatalf("apply: %v\n%s", err, out.String())
	}
	s := out.String()
	for _, want := range []string{
		"applied 3 pins",
		"reserved debug pins skipped",
		"dir:0:in: ok",
		"mode:0:af5: ok",
		"refresh: ok",
		"PORTF",
		"SYSCTL",
	} {
		if !strings.Contains(s, want) {
			t.Errorf("output missing %q:\n%s", want, s)
		}
	}
	// PF3 in AF5 leaves 0x5000 in PORTF PCTL.
	if !strings.Contains(s, "PCTL   0x00005000") {
		t.Errorf("PCTL line not found:\n%s", s)
	}
}

func TestApplyCommand_FailedOps(t *testing.T) {
	resetGlobals(writeConfig(t, testConfig))
	opList = []string{"dir:1:out", "mode:0:16", "dir:9:in", "refresh"}
	noDump = true

	var out bytes.Buffer
	c := &cobra.Command{}
	c.SetOut(&out)
	err := runApply(c, nil)
	if err == nil || !strings.Contains(err.Error(), "3 of 4 operations failed") {
		t.Fatalf("err = %v", err)
	}
	s := out.String()
	if !strings.Contains(s, "unchangeable") || !strings.Contains(s, "invalid pin mode") || !strings.Contains(s, "invalid pin id") {
		t.Errorf("output:\n%s", s)
	}
	if strings.Contains(s, "PORTF") {
		t.Error("dump printed with --no-dump")
	}
}

func TestApplyCommand_BadOpFailsBeforeConfig(t *testing.T) {
	resetGlobals("does/not/exist.yaml")
	opList = []string{"wiggle"}
	err := runApply(&cobra.Command{}, nil)
	if err == nil || !strings.Contains(err.Error(), "unknown operation") {
		t.Errorf("err = %v", err)
	}
}

func TestLoadConfig_DebugOverride(t *testing.T) {
	resetGlobals(writeConfig(t, testConfig))
	debugLevel = 9
	if _, err := loadConfig(); err == nil {
		t.Error("expected error for --debug 9")
	}
}

func TestSession_VerboseLogging(t *testing.T) {
	resetGlobals(writeConfig(t, testConfig))
	debugLevel = debug.LevelVerbose
	var buf bytes.Buffer
	debug.SetOutput(&buf)
	defer func() {
		debug.SetOutput(os.Stdout)
		debug.Init(debug.LevelOff)
	}()

	cfg, err := loadConfig()
	if err != nil {
		t.Fatal(err)
	}
	s, err := openSession(cfg, nil)
	if err != nil {
		t.Fatal(err)
	}
	defer s.Close()
	if err := s.apply(cfg); err != nil {
		t.Fatal(err)
	}

	out := buf.String()
	for _, want := range []string{
		"Engine config: {Backend:mock",
		"Diag config: {SerialDevice:",
		"Pin table applied",
		"Reserved debug pins in the table were left untouched",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("debug output missing %q:\n%s", want, out)
		}
	}
}

func TestServe_StopsOnCancel(t *testing.T) {
	resetGlobals(writeConfig(t, testConfig))
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := serve(ctx); err != nil {
		t.Errorf("serve: %v", err)
	}
}

func TestVersionCommand(t *testing.T) {
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetArgs([]string{"version"})
	defer rootCmd.SetArgs(nil)

	if err := rootCmd.Execute(); err != nil {
		t.Fatal(err)
	}
	want := "vendor:   1000\nmodule:   120\nsoftware: 1.0.0\n"
	if out.String() != want {
		t.Errorf("output = %q, want %q", out.String(), want)
	}
}
