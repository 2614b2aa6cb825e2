package metrics

import (
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const (
	telemetryWriteWait  = 10 * time.Second
	telemetryPongWait   = 60 * time.Second
	telemetryPingPeriod = 54 * time.Second
	telemetryReadLimit  = 512
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 4096,
	// Telemetry is read-only and served on a local address.
	CheckOrigin: func(r *http.Request) bool { return true },
}

// telemetryClient is one /telemetry websocket connection.
type telemetryClient struct {
	conn *websocket.Conn
	done chan struct{}
	once sync.Once
}

func (c *telemetryClient) close() {
	c.once.Do(func() {
		close(c.done)
		c.conn.Close()
	})
}

// handleTelemetry upgrades the request and streams a JSON sample every
// interval until the client disconnects or the server shuts down.
func (s *Server) handleTelemetry(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Debug("telemetry_upgrade_failed", "error", err)
		return
	}

	c := &telemetryClient{conn: conn, done: make(chan struct{})}
	s.mu.Lock()
	s.clients[c] = struct{}{}
	s.mu.Unlock()
	s.logger.Debug("telemetry_client_connected", "remote", r.RemoteAddr)

	go s.writePump(c)
	s.readPump(c)

	s.mu.Lock()
	delete(s.clients, c)
	s.mu.Unlock()
	s.logger.Debug("telemetry_client_disconnected", "remote", r.RemoteAddr)
}

// readPump discards client messages and notices disconnects.
func (s *Server) readPump(c *telemetryClient) {
	defer c.close()

	c.conn.SetReadLimit(telemetryReadLimit)
	c.conn.SetReadDeadline(time.Now().Add(telemetryPongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(telemetryPongWait))
		return nil
	})

	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				s.logger.Debug("telemetry_read_error", "error", err)
			}
			return
		}
	}
}

// writePump sends one sample immediately, then one per interval.
func (s *Server) writePump(c *telemetryClient) {
	ticker := time.NewTicker(s.interval)
	ping := time.NewTicker(telemetryPingPeriod)
	defer func() {
		ticker.Stop()
		ping.Stop()
		c.close()
	}()

	if !s.sendSample(c) {
		return
	}
	for {
		select {
		case <-ticker.C:
			if !s.sendSample(c) {
				return
			}
		case <-ping.C:
			c.conn.SetWriteDeadline(time.Now().Add(telemetryWriteWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-s.closing:
			c.conn.SetWriteDeadline(time.Now().Add(telemetryWriteWait))
			c.conn.WriteMessage(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseGoingAway, "shutting down"))
			return
		case <-c.done:
			return
		}
	}
}

func (s *Server) sendSample(c *telemetryClient) bool {
	c.conn.SetWriteDeadline(time.Now().Add(telemetryWriteWait))
	if err := c.conn.WriteJSON(s.telemetry()); err != nil {
		s.logger.Debug("telemetry_write_error", "error", err)
		return false
	}
	return true
}
