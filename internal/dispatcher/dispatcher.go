// Package dispatcher is the connection/command router (C7): it owns one
// open serial port per connection handle, starts the listener goroutine for
// whichever protocol the connection was opened with, and routes outbound
// send commands to that protocol's encoder. It is the seam the host UI
// (or, in this module, cmd/bridge) talks to; nothing downstream of it knows
// about connection handles.
package dispatcher

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/kosmoslabs/uartbridge/internal/logging"
	"github.com/kosmoslabs/uartbridge/internal/metrics"
	"github.com/kosmoslabs/uartbridge/internal/poecanable"
	"github.com/kosmoslabs/uartbridge/internal/poeserial"
	"github.com/kosmoslabs/uartbridge/internal/portctl"
	"github.com/kosmoslabs/uartbridge/internal/protoerr"
	"github.com/kosmoslabs/uartbridge/internal/simpleserial"
	"github.com/kosmoslabs/uartbridge/internal/statusbus"
	"github.com/kosmoslabs/uartbridge/internal/txqueue"
)

// Protocol names, exactly as they appear on the wire from the UI.
const (
	ProtoSimpleSerial = "SimpleSerial"
	ProtoPOESerial    = "POESerial"
	ProtoPOECanable   = "POECanable"
	ProtoPOECanableFD = "POECanableFD"
)

// StatusEvent is published on the app-status bus whenever a connection's
// lifecycle changes.
type StatusEvent struct {
	Port     string
	Protocol string
	State    string // "connected", "closed", "error"
	Detail   string
}

// Base64Echo is published whenever an outbound POECanable(FD) send used the
// base64 payload path, so the UI can mirror what was actually put on the
// wire.
type Base64Echo struct {
	Port string
	Data string
}

// SimpleSerialLine, POESerialPacket and POECanableMessage are published to
// their own per-protocol buses as inbound data is decoded.
type SimpleSerialLine struct {
	Port string
	Line string
}

type POESerialPacket struct {
	Port   string
	Packet poeserial.Packet
}

type POECanableMessage struct {
	Port    string
	Message poecanable.MessageData
}

// Buses is the set of event buses a Dispatcher publishes to. Exported so
// cmd/bridge can subscribe a transport (e.g. a websocket hub) to them.
type Buses struct {
	Status      *statusbus.Bus[StatusEvent]
	Base64      *statusbus.Bus[Base64Echo]
	SimpleLines *statusbus.Bus[SimpleSerialLine]
	POEPackets  *statusbus.Bus[POESerialPacket]
	CANMessages *statusbus.Bus[POECanableMessage]
}

// NewBuses constructs an empty Buses set.
func NewBuses() *Buses {
	return &Buses{
		Status:      statusbus.New[StatusEvent](),
		Base64:      statusbus.New[Base64Echo](),
		SimpleLines: statusbus.New[SimpleSerialLine](),
		POEPackets:  statusbus.New[POESerialPacket](),
		CANMessages: statusbus.New[POECanableMessage](),
	}
}

// connection is the dispatcher's private state for one open port.
type connection struct {
	port     string
	protocol string
	p        portctl.Port
	tx       *txqueue.Queue
	stopRead chan struct{}
	doneRead chan struct{}

	simple *simpleserial.Buffer
	poe    *poeserial.Store
	can    *poecanable.Engine
}

// Dispatcher owns the set of open connections.
type Dispatcher struct {
	mu    sync.Mutex
	conns map[string]*connection
	buses *Buses
}

// New returns a Dispatcher publishing to buses.
func New(buses *Buses) *Dispatcher {
	return &Dispatcher{conns: make(map[string]*connection), buses: buses}
}

// openSerial is a test seam in front of portctl.Open.
var openSerial = portctl.Open

// ConnectRequest carries the validated parameters for opening a port.
type ConnectRequest struct {
	Path     string
	Protocol string
	Cfg      portctl.Config
	// CANBitrate/CANFDDataBitrate are the adapter commands to send for
	// POECanable(FD) connections; ignored otherwise.
	CANBitrate       string
	CANFDDataBitrate string
}

// ConnectSerialPort opens and, for POECanable(FD), initializes the adapter,
// then starts the protocol-appropriate read loop. Unknown protocol strings
// are logged and return success without side effects, matching
// original_source/cmd.rs's behavior for unrecognized values.
func (d *Dispatcher) ConnectSerialPort(req ConnectRequest) error {
	switch req.Protocol {
	case ProtoSimpleSerial, ProtoPOESerial, ProtoPOECanable, ProtoPOECanableFD:
	default:
		logging.L().Warn("connect_unknown_protocol", "port", req.Path, "protocol", req.Protocol)
		return nil
	}

	req.Cfg.Path = req.Path
	p, err := openSerial(req.Cfg)
	if err != nil {
		d.publishStatus(req.Path, req.Protocol, "error", err.Error())
		return err
	}

	isCAN := req.Protocol == ProtoPOECanable || req.Protocol == ProtoPOECanableFD
	if isCAN {
		time.Sleep(portctl.Settle)
		cmds := portctl.CANInitCommands(req.Protocol == ProtoPOECanableFD, req.CANBitrate, req.CANFDDataBitrate)
		for _, c := range cmds {
			if _, werr := p.Write(c); werr != nil {
				_ = p.Close()
				wrapped := fmt.Errorf("%w: can_init %q: %v", protoerr.IO, c, werr)
				d.publishStatus(req.Path, req.Protocol, "error", wrapped.Error())
				return wrapped
			}
		}
	}

	conn := &connection{
		port:     req.Path,
		protocol: req.Protocol,
		p:        p,
		stopRead: make(chan struct{}),
		doneRead: make(chan struct{}),
		simple:   simpleserial.NewBuffer(),
		poe:      poeserial.NewStore(),
		can:      poecanable.NewEngine(),
	}
	conn.tx = txqueue.New(context.Background(), 32, func(b []byte) error {
		_, werr := p.Write(b)
		if werr == nil {
			metrics.AddBytesTx(req.Path, len(b))
		}
		return werr
	}, txqueue.Hooks{
		OnError: func(err error) {
			logging.L().Error("write_error", "port", req.Path, "error", err)
			metrics.IncError(protoerr.Kind(fmt.Errorf("%w: %v", protoerr.IO, err)))
		},
	})

	d.mu.Lock()
	d.conns[req.Path] = conn
	d.mu.Unlock()

	go d.readLoop(conn)
	d.publishStatus(req.Path, req.Protocol, "connected", "")
	return nil
}

// CloseSerialPort detaches the listener and closes the port, attempting a
// force-close if the normal close fails. Both failures are surfaced but
// neither blocks the listener detach, matching the documented asymmetry.
func (d *Dispatcher) CloseSerialPort(port string) error {
	d.mu.Lock()
	conn, ok := d.conns[port]
	if ok {
		delete(d.conns, port)
	}
	d.mu.Unlock()
	if !ok {
		return fmt.Errorf("%w: port %q not open", protoerr.Config, port)
	}

	close(conn.stopRead)
	<-conn.doneRead
	conn.tx.Close()

	if conn.protocol == ProtoPOECanable || conn.protocol == ProtoPOECanableFD {
		_, _ = conn.p.Write(portctl.CANCloseCommand())
	}

	closeErr := conn.p.Close()
	var forceErr error
	if closeErr != nil {
		forceErr = portctl.ForceClose(conn.p)
	}

	switch {
	case closeErr != nil && forceErr != nil:
		d.publishStatus(port, conn.protocol, "error", fmt.Sprintf("close failed: %v; force-close failed: %v", closeErr, forceErr))
		return fmt.Errorf("%w: close %q: %v (force-close also failed: %v)", protoerr.IO, port, closeErr, forceErr)
	case closeErr != nil:
		d.publishStatus(port, conn.protocol, "closed", fmt.Sprintf("forced: %v", closeErr))
		return nil
	default:
		d.publishStatus(port, conn.protocol, "closed", "")
		return nil
	}
}

// HardRestart drives the DTR/RTS reset sequence on an already-open port.
func (d *Dispatcher) HardRestart(port string) error {
	d.mu.Lock()
	conn, ok := d.conns[port]
	d.mu.Unlock()
	if !ok {
		return fmt.Errorf("%w: port %q not open", protoerr.Config, port)
	}
	errs := portctl.HardRestart(conn.p)
	if len(errs) > 0 {
		for _, e := range errs {
			logging.L().Warn("hard_restart_step_error", "port", port, "error", e)
		}
		return errs[0]
	}
	return nil
}

// readLoop pumps bytes off the port and feeds them to the connection's
// protocol engine until stopRead is closed.
func (d *Dispatcher) readLoop(conn *connection) {
	defer close(conn.doneRead)
	buf := make([]byte, 4096)
	for {
		select {
		case <-conn.stopRead:
			return
		default:
		}
		n, err := conn.p.Read(buf)
		if err != nil {
			select {
			case <-conn.stopRead:
				return
			default:
			}
			logging.L().Error("read_error", "port", conn.port, "error", err)
			d.publishStatus(conn.port, conn.protocol, "error", err.Error())
			return
		}
		if n == 0 {
			continue
		}
		metrics.AddBytesRx(conn.port, n)
		data := append([]byte(nil), buf[:n]...)
		now := time.Now()

		switch conn.protocol {
		case ProtoSimpleSerial:
			conn.simple.Process(data, now, func(line string) {
				metrics.SimpleSerialLines.Inc()
				d.buses.SimpleLines.Publish(SimpleSerialLine{Port: conn.port, Line: line})
			})
		case ProtoPOESerial:
			conn.poe.Process(conn.port, data, now, func(p poeserial.Packet) {
				metrics.POESerialPackets.Inc()
				d.buses.POEPackets.Publish(POESerialPacket{Port: conn.port, Packet: p})
			})
		case ProtoPOECanable, ProtoPOECanableFD:
			conn.can.Process(conn.port, data, now, func(msgs []poecanable.MessageData) {
				for _, m := range msgs {
					typeChar := byte('t')
					if m.IsRemote {
						typeChar = 'r'
					}
					metrics.POECanableFrames.WithLabelValues(string(typeChar)).Inc()
					metrics.POECanableMessages.WithLabelValues(conn.protocol).Inc()
					d.buses.CANMessages.Publish(POECanableMessage{Port: conn.port, Message: m})
				}
			})
		}
	}
}

// ProcessDataSending encodes and enqueues one outbound command for an
// open connection, per its protocol.
func (d *Dispatcher) ProcessDataSending(port string, simple *simpleserial.Command, poe *POESerialCommand, can *poecanable.Command) error {
	d.mu.Lock()
	conn, ok := d.conns[port]
	d.mu.Unlock()
	if !ok {
		return fmt.Errorf("%w: port %q not open", protoerr.Config, port)
	}

	switch conn.protocol {
	case ProtoSimpleSerial:
		if simple == nil {
			return fmt.Errorf("%w: missing SimpleSerial command", protoerr.Parse)
		}
		return conn.tx.Send(simpleserial.Encode(*simple))

	case ProtoPOESerial:
		if poe == nil {
			return fmt.Errorf("%w: missing POESerial command", protoerr.Parse)
		}
		return conn.tx.Send(poeserial.Encode(poe.Header, poe.Argument, poe.Value))

	case ProtoPOECanable, ProtoPOECanableFD:
		if can == nil {
			return fmt.Errorf("%w: missing POECanable command", protoerr.Parse)
		}
		can.IsFD = conn.protocol == ProtoPOECanableFD
		result, err := poecanable.Build(*can)
		if err != nil {
			return err
		}
		for _, fr := range result.Frames {
			if err := conn.tx.Send(fr); err != nil {
				return err
			}
		}
		for _, echo := range result.Base64Echoes {
			d.buses.Base64.Publish(Base64Echo{Port: port, Data: echo})
		}
		return nil

	default:
		return fmt.Errorf("%w: unknown protocol %q", protoerr.Config, conn.protocol)
	}
}

// POESerialCommand is the outbound POESerial send shape; kept distinct from
// poeserial.Packet (the inbound decode shape) since the wire roles differ
// (free_heap_size never appears on the send path).
type POESerialCommand struct {
	Header   string
	Argument string
	Value    string
}

func (d *Dispatcher) publishStatus(port, protocol, state, detail string) {
	d.buses.Status.Publish(StatusEvent{Port: port, Protocol: protocol, State: state, Detail: detail})
}
