package app

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/relabs-tech/inertial_streamer/internal/imu"
	"github.com/relabs-tech/inertial_streamer/internal/stream"
)

// WebMirror exposes the sample stream to browsers. WebSocket clients on
// /ws/stream join the same registry as raw TCP stream clients, one JSON
// sample per text message.
type WebMirror struct {
	reg      *stream.Registry
	upgrader websocket.Upgrader
	mux      *http.ServeMux
}

// NewWebMirror returns a mirror registering clients in reg. writeTimeout
// bounds the WebSocket handshake.
func NewWebMirror(reg *stream.Registry, writeTimeout time.Duration) *WebMirror {
	m := &WebMirror{
		reg: reg,
		upgrader: websocket.Upgrader{
			HandshakeTimeout: writeTimeout,
			CheckOrigin: func(r *http.Request) bool {
				return true // dashboards are served from other hosts
			},
		},
		mux: http.NewServeMux(),
	}
	m.mux.HandleFunc("/ws/stream", m.serveStream)
	return m
}

func (m *WebMirror) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	m.mux.ServeHTTP(w, r)
}

// HandleLatest serves the most recent sample on /api/sample.
func (m *WebMirror) HandleLatest(latest func() (imu.Sample, bool)) {
	m.mux.HandleFunc("/api/sample", func(w http.ResponseWriter, r *http.Request) {
		s, ok := latest()
		if !ok {
			http.Error(w, "no data yet", http.StatusServiceUnavailable)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.Header().Set("Access-Control-Allow-Origin", "*")
		if err := json.NewEncoder(w).Encode(s); err != nil {
			log.Printf("web: json encode error: %v", err)
		}
	})
}

// HandleRegisters serves the register debugger on /ws/registers.
func (m *WebMirror) HandleRegisters(d *RegisterDebugger) {
	m.mux.HandleFunc("/ws/registers", func(w http.ResponseWriter, r *http.Request) {
		ws, err := m.upgrader.Upgrade(w, r, nil)
		if err != nil {
			log.Printf("web: websocket upgrade error: %v", err)
			return
		}
		d.Serve(ws)
	})
}

// HandleCalibration serves live recalibration on /ws/calibration.
func (m *WebMirror) HandleCalibration(h *CalibrationHandler) {
	m.mux.HandleFunc("/ws/calibration", func(w http.ResponseWriter, r *http.Request) {
		ws, err := m.upgrader.Upgrade(w, r, nil)
		if err != nil {
			log.Printf("web: websocket upgrade error: %v", err)
			return
		}
		h.Serve(ws)
	})
}

func (m *WebMirror) serveStream(w http.ResponseWriter, r *http.Request) {
	ws, err := m.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("web: websocket upgrade error: %v", err)
		return
	}
	c := &wsConn{ws: ws}
	peer := "ws:" + r.RemoteAddr
	if _, err := m.reg.Register(&stream.Client{Conn: c, Peer: peer, Mode: stream.Streaming}); err != nil {
		log.Printf("web: register %s: %v", peer, err)
		ws.Close()
		return
	}
	log.Printf("web: client %s streaming (%d clients)", peer, m.reg.Len())

	// The broadcaster owns writes. Reading keeps control frames flowing and
	// tells us when the browser goes away.
	for {
		if _, _, err := ws.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Printf("web: client %s: %v", peer, err)
			}
			break
		}
	}
	if m.reg.Remove(c) {
		log.Printf("web: client %s disconnected", peer)
	}
}

// wsConn adapts a WebSocket to stream.Conn. Each Write is one text message;
// a trailing frame delimiter is dropped since messages are already framed.
type wsConn struct {
	mu sync.Mutex
	ws *websocket.Conn
}

func (c *wsConn) Write(p []byte) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.ws.WriteMessage(websocket.TextMessage, bytes.TrimSuffix(p, []byte("\n"))); err != nil {
		return 0, err
	}
	return len(p), nil
}

func (c *wsConn) SetWriteDeadline(t time.Time) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.ws.SetWriteDeadline(t)
}

func (c *wsConn) Close() error { return c.ws.Close() }

// ServeHTTPUntil serves h on addr until ctx is done.
func ServeHTTPUntil(ctx context.Context, addr string, h http.Handler) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           h,
		ReadHeaderTimeout: 5 * time.Second,
	}
	stop := make(chan struct{})
	defer close(stop)
	go func() {
		select {
		case <-ctx.Done():
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()
			srv.Shutdown(shutdownCtx)
		case <-stop:
		}
	}()

	log.Printf("web: listening on %s", addr)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
