package portctl

import (
	"errors"
	"testing"
	"time"

	bugst "go.bug.st/serial"
)

type fakePort struct {
	dtrCalls []bool
	rtsCalls []bool
	dtrErr   error
	rtsErr   error
	writes   [][]byte
	writeErr error
	closed   bool
}

func (f *fakePort) Read(p []byte) (int, error)  { return 0, nil }
func (f *fakePort) Close() error                { f.closed = true; return nil }
func (f *fakePort) SetDTR(v bool) error {
	f.dtrCalls = append(f.dtrCalls, v)
	return f.dtrErr
}
func (f *fakePort) SetRTS(v bool) error {
	f.rtsCalls = append(f.rtsCalls, v)
	return f.rtsErr
}
func (f *fakePort) Write(p []byte) (int, error) {
	f.writes = append(f.writes, append([]byte(nil), p...))
	if f.writeErr != nil {
		return 0, f.writeErr
	}
	return len(p), nil
}

func withFakeOpen(t *testing.T, fp *fakePort) {
	t.Helper()
	prev := openPort
	openPort = func(path string, mode *bugst.Mode) (Port, error) { return fp, nil }
	t.Cleanup(func() { openPort = prev })
}

func TestOpenRejectsUnsupportedDataBits(t *testing.T) {
	_, err := Open(Config{Path: "p", BaudRate: 9600, DataBits: 9, Parity: 0, StopBits: 1})
	if err == nil {
		t.Fatalf("expected error for data_bits=9")
	}
}

func TestOpenRejectsUnsupportedParity(t *testing.T) {
	_, err := Open(Config{Path: "p", BaudRate: 9600, DataBits: 8, Parity: 3, StopBits: 1})
	if err == nil {
		t.Fatalf("expected error for parity=3")
	}
}

func TestOpenRejectsUnsupportedStopBits(t *testing.T) {
	_, err := Open(Config{Path: "p", BaudRate: 9600, DataBits: 8, Parity: 0, StopBits: 3})
	if err == nil {
		t.Fatalf("expected error for stop_bits=3")
	}
}

func TestOpenRejectsUnsupportedFlowControl(t *testing.T) {
	_, err := Open(Config{Path: "p", BaudRate: 9600, DataBits: 8, FlowCtrl: 9, Parity: 0, StopBits: 1})
	if err == nil {
		t.Fatalf("expected error for flow_control=9")
	}
}

func TestOpenSettlesDTRRTSFalse(t *testing.T) {
	fp := &fakePort{}
	withFakeOpen(t, fp)

	p, err := Open(Config{Path: "p", BaudRate: 9600, DataBits: 8, Parity: 0, StopBits: 1})
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if p != Port(fp) {
		t.Fatalf("Open returned unexpected port value")
	}
	if len(fp.dtrCalls) != 1 || fp.dtrCalls[0] != false {
		t.Fatalf("dtrCalls = %v, want [false]", fp.dtrCalls)
	}
	if len(fp.rtsCalls) != 1 || fp.rtsCalls[0] != false {
		t.Fatalf("rtsCalls = %v, want [false]", fp.rtsCalls)
	}
}

func TestHardRestartSequence(t *testing.T) {
	prevSleep := sleepFn
	var slept int
	sleepFn = func(d time.Duration) { slept++ }
	defer func() { sleepFn = prevSleep }()

	fp := &fakePort{}
	errs := HardRestart(fp)
	if len(errs) != 0 {
		t.Fatalf("unexpected errors: %v", errs)
	}
	wantDTR := []bool{true, false, true}
	wantRTS := []bool{false, true, true}
	if len(fp.dtrCalls) != 3 || len(fp.rtsCalls) != 3 {
		t.Fatalf("dtrCalls=%v rtsCalls=%v, want 3 steps each", fp.dtrCalls, fp.rtsCalls)
	}
	for i := range wantDTR {
		if fp.dtrCalls[i] != wantDTR[i] || fp.rtsCalls[i] != wantRTS[i] {
			t.Fatalf("step %d: dtr=%v rts=%v, want dtr=%v rts=%v", i, fp.dtrCalls[i], fp.rtsCalls[i], wantDTR[i], wantRTS[i])
		}
	}
	if slept != 2 {
		t.Fatalf("slept %d times, want 2", slept)
	}
}

func TestHardRestartCollectsStepErrorsButContinues(t *testing.T) {
	fp := &fakePort{dtrErr: errors.New("dtr boom")}
	errs := HardRestart(fp)
	if len(errs) != 3 { // one per DTR step
		t.Fatalf("got %d errors, want 3", len(errs))
	}
	if len(fp.dtrCalls) != 3 || len(fp.rtsCalls) != 3 {
		t.Fatalf("restart aborted early: dtr=%v rts=%v", fp.dtrCalls, fp.rtsCalls)
	}
}

func TestCANInitCommandsClassic(t *testing.T) {
	cmds := CANInitCommands(false, "S6", "Y2")
	want := []string{"C\r", "S6\r", "M0\r", "A0\r", "O\r"}
	if len(cmds) != len(want) {
		t.Fatalf("got %d commands, want %d", len(cmds), len(want))
	}
	for i, w := range want {
		if string(cmds[i]) != w {
			t.Fatalf("command %d = %q, want %q", i, cmds[i], w)
		}
	}
}

func TestCANInitCommandsFD(t *testing.T) {
	cmds := CANInitCommands(true, "S6", "Y2")
	want := []string{"C\r", "S6\r", "Y2\r", "M0\r", "A0\r", "O\r"}
	if len(cmds) != len(want) {
		t.Fatalf("got %d commands, want %d", len(cmds), len(want))
	}
	for i, w := range want {
		if string(cmds[i]) != w {
			t.Fatalf("command %d = %q, want %q", i, cmds[i], w)
		}
	}
}
