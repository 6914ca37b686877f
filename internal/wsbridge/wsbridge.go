// Package wsbridge exposes the dispatcher's event buses to a local browser
// UI over WebSocket, grounded on the teacher pack's WSHub pattern
// (CK6170-CalRunrilla-web/internal/server/ws.go and ws_handlers.go): one
// upgrade-and-register handler per bus, broadcasting marshaled JSON to every
// connected client without blocking the publisher on a slow reader.
package wsbridge

import (
	"encoding/json"
	"net/http"
	"sync"

	"github.com/gorilla/websocket"

	"github.com/kosmoslabs/uartbridge/internal/dispatcher"
	"github.com/kosmoslabs/uartbridge/internal/logging"
	"github.com/kosmoslabs/uartbridge/internal/statusbus"
)

// This server is local + single-user, so CheckOrigin stays permissive; see
// DESIGN.md if that ever needs tightening for a non-local deployment.
var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

type wsClient struct {
	conn *websocket.Conn
	mu   sync.Mutex
}

func (c *wsClient) send(v interface{}) error {
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn.WriteMessage(websocket.TextMessage, b)
}

// Mux registers one WebSocket endpoint per dispatcher bus on mux, each
// relaying that bus's events to every connected browser tab.
func Mux(mux *http.ServeMux, buses *dispatcher.Buses) {
	handle(mux, "/ws/status", buses.Status)
	handle(mux, "/ws/base64", buses.Base64)
	handle(mux, "/ws/simpleserial", buses.SimpleLines)
	handle(mux, "/ws/poeserial", buses.POEPackets)
	handle(mux, "/ws/poecanable", buses.CANMessages)
}

// handle upgrades each request on path to a WebSocket and streams bus events
// to it until the connection drops. The read-loop only exists to notice
// disconnects; these endpoints never accept inbound messages.
func handle[T any](mux *http.ServeMux, path string, bus *statusbus.Bus[T]) {
	mux.HandleFunc(path, func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		client := &wsClient{conn: conn}
		sub := bus.Subscribe(64)
		defer bus.Unsubscribe(sub)

		done := make(chan struct{})
		go func() {
			defer close(done)
			for {
				if _, _, err := conn.ReadMessage(); err != nil {
					return
				}
			}
		}()

		for {
			select {
			case ev := <-sub.Out:
				if err := client.send(ev); err != nil {
					_ = conn.Close()
					return
				}
			case <-done:
				_ = conn.Close()
				return
			}
		}
	})
	logging.L().Debug("ws_route_registered", "path", path)
}
