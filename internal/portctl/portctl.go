// Package portctl is Port Control (C1): open/close a serial port with a
// validated parameter set, toggle DTR/RTS for a hard reset, and run the
// POECanable(FD) adapter's init/teardown command sequence. The physical
// driver is go.bug.st/serial; Port is a minimal interface so tests can
// substitute a fake, mirroring the teacher's internal/serial.Port seam
// around tarm/serial.
package portctl

import (
	"fmt"
	"time"

	"github.com/kosmoslabs/uartbridge/internal/protoerr"
	bugst "go.bug.st/serial"
)

// Port abstracts the physical serial port for testability.
type Port interface {
	Read(p []byte) (int, error)
	Write(p []byte) (int, error)
	Close() error
	SetDTR(v bool) error
	SetRTS(v bool) error
}

// sleepFn and openPort are test-injectable hooks, mirroring the teacher's
// backend_backoff_test.go pattern (var sleepFn/var openSerialPort).
var sleepFn = time.Sleep
var openPort = func(path string, mode *bugst.Mode) (Port, error) {
	return bugst.Open(path, mode)
}

// Config is the validated parameter set for Open.
type Config struct {
	Path      string
	BaudRate  int
	DataBits  uint32 // 5,6,7,8
	FlowCtrl  uint32 // 0=none,1=software,2=hardware
	Parity    uint32 // 0=none,1=odd,2=even
	StopBits  uint32 // 1,2
	TimeoutMS *uint64
}

func dataBits(v uint32) (int, bool) {
	switch v {
	case 5, 6, 7, 8:
		return int(v), true
	}
	return 0, false
}

func parity(v uint32) (bugst.Parity, bool) {
	switch v {
	case 0:
		return bugst.NoParity, true
	case 1:
		return bugst.OddParity, true
	case 2:
		return bugst.EvenParity, true
	}
	return 0, false
}

func stopBits(v uint32) (bugst.StopBits, bool) {
	switch v {
	case 1:
		return bugst.OneStopBit, true
	case 2:
		return bugst.TwoStopBits, true
	}
	return 0, false
}

// validFlowControl only checks range; go.bug.st/serial has no software/
// hardware flow-control knob to apply, so sw/hw are accepted for parity
// with the original command surface and otherwise ignored.
func validFlowControl(v uint32) bool { return v == 0 || v == 1 || v == 2 }

// Open validates cfg, opens the port, and settles DTR/RTS to false before
// the caller starts reading, per the documented open sequence.
func Open(cfg Config) (Port, error) {
	db, ok := dataBits(cfg.DataBits)
	if !ok {
		return nil, fmt.Errorf("%w: unsupported data_bits %d", protoerr.Config, cfg.DataBits)
	}
	if !validFlowControl(cfg.FlowCtrl) {
		return nil, fmt.Errorf("%w: unsupported flow_control %d", protoerr.Config, cfg.FlowCtrl)
	}
	par, ok := parity(cfg.Parity)
	if !ok {
		return nil, fmt.Errorf("%w: unsupported parity %d", protoerr.Config, cfg.Parity)
	}
	sb, ok := stopBits(cfg.StopBits)
	if !ok {
		return nil, fmt.Errorf("%w: unsupported stop_bits %d", protoerr.Config, cfg.StopBits)
	}

	mode := &bugst.Mode{BaudRate: cfg.BaudRate, DataBits: db, Parity: par, StopBits: sb}
	p, err := openPort(cfg.Path, mode)
	if err != nil {
		return nil, fmt.Errorf("%w: open %s: %v", protoerr.IO, cfg.Path, err)
	}
	_ = p.SetDTR(false)
	_ = p.SetRTS(false)
	return p, nil
}

// ForceClose is the fallback used when Close's normal sequence fails.
// Errors from both attempts are surfaced by the caller; neither blocks
// listener detach.
func ForceClose(p Port) error { return p.Close() }

// HardRestart drives the DTR/RTS reset sequence. Each step's error is
// reported to the caller via the returned slice but does not abort the
// remaining steps.
func HardRestart(p Port) []error {
	var errs []error
	step := func(dtr, rts bool) {
		if err := p.SetDTR(dtr); err != nil {
			errs = append(errs, fmt.Errorf("%w: set_dtr(%v): %v", protoerr.IO, dtr, err))
		}
		if err := p.SetRTS(rts); err != nil {
			errs = append(errs, fmt.Errorf("%w: set_rts(%v): %v", protoerr.IO, rts, err))
		}
	}
	step(true, false)
	sleepFn(100 * time.Millisecond)
	step(false, true)
	sleepFn(100 * time.Millisecond)
	step(true, true)
	return errs
}

// CANInitCommands returns, in order, the bytes to write to initialize a
// POECanable(FD) adapter after open and a 100ms settle. A failure writing
// any one of them must abort the connect with that command's error.
func CANInitCommands(isFD bool, bitrate, fdDataBitrate string) [][]byte {
	cmds := [][]byte{[]byte("C\r")}
	if isFD {
		cmds = append(cmds, []byte(bitrate+"\r"), []byte(fdDataBitrate+"\r"))
	} else {
		cmds = append(cmds, []byte(bitrate+"\r"))
	}
	cmds = append(cmds, []byte("M0\r"), []byte("A0\r"), []byte("O\r"))
	return cmds
}

// CANCloseCommand is written before tearing down a POECanable(FD) port.
func CANCloseCommand() []byte { return []byte("C\r") }

// Settle is the fixed pause between opening the port and writing the CAN
// adapter init sequence.
const Settle = 100 * time.Millisecond
