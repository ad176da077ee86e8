// Package web serves the relay over websocket and mounts the HTTP control
// endpoints on the same server.
package web

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"slices"
	"strings"
	"sync"
	"time"

	"plutus/pkg/api"
	"plutus/pkg/provider"
	"plutus/pkg/utils"

	"github.com/gorilla/websocket"
)

const (
	writeWait    = 10 * time.Second
	maxFrameSize = 1 << 20
)

// WebConfig is the "web" entry of config.json.
type WebConfig struct {
	// Port defaults to $PORT, then 3001. Ignored when Addr is set.
	Port int `json:"port"`
	// Addr is a full listen address ("127.0.0.1:0" in tests).
	Addr string `json:"addr,omitempty"`
	// Path is the websocket endpoint. Default "/ws".
	Path string `json:"path,omitempty"`
	// AllowedOrigins restricts websocket and CORS origins. Empty allows all.
	AllowedOrigins []string `json:"allowed_origins,omitempty"`
}

// SafeConn serializes writes on a websocket connection.
type SafeConn struct {
	*websocket.Conn
	mu sync.Mutex
}

func (sc *SafeConn) WriteMessage(messageType int, data []byte) error {
	sc.mu.Lock()
	defer sc.mu.Unlock()
	_ = sc.Conn.SetWriteDeadline(time.Now().Add(writeWait))
	return sc.Conn.WriteMessage(messageType, data)
}

// wsConn is one websocket client as seen by the relay.
type wsConn struct {
	id      string
	session string
	ws      *SafeConn
}

func (c *wsConn) ID() string            { return c.id }
func (c *wsConn) ChannelID() string     { return "web" }
func (c *wsConn) WalletSession() string { return c.session }

func (c *wsConn) Send(ev api.OutboundEvent) error {
	b, err := ev.Encode()
	if err != nil {
		return fmt.Errorf("encode event: %w", err)
	}
	return c.ws.WriteMessage(websocket.TextMessage, b)
}

type WebChannel struct {
	config   WebConfig
	upgrader websocket.Upgrader
	server   *http.Server
	listener net.Listener

	connections map[string]*SafeConn
	mu          sync.RWMutex
}

func NewWebChannel(cfg WebConfig) *WebChannel {
	if cfg.Path == "" {
		cfg.Path = "/ws"
	}
	c := &WebChannel{
		config:      cfg,
		connections: make(map[string]*SafeConn),
	}
	c.upgrader = websocket.Upgrader{CheckOrigin: c.originAllowed}
	return c
}

func (c *WebChannel) ID() string {
	return "web"
}

// Addr returns the bound listen address once started.
func (c *WebChannel) Addr() string {
	if c.listener == nil {
		return ""
	}
	return c.listener.Addr().String()
}

// Start binds the listener and serves in the background.
func (c *WebChannel) Start(ctx context.Context, host api.ChannelHost) error {
	mux := http.NewServeMux()
	mux.HandleFunc("GET "+c.config.Path, func(w http.ResponseWriter, r *http.Request) {
		c.handleWebSocket(w, r, host)
	})
	for _, rt := range host.Routes() {
		mux.Handle(rt.Pattern, rt.Handler)
	}
	mux.HandleFunc("GET /{$}", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"message":"Plutus agent relay"}`))
	})

	addr := c.config.Addr
	if addr == "" {
		addr = fmt.Sprintf(":%d", c.config.Port)
	}
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("web listen %s: %w", addr, err)
	}
	c.listener = ln
	c.server = &http.Server{
		Handler:           c.cors(mux),
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}

	slog.Info("Web API listening", "addr", ln.Addr().String(), "ws", c.config.Path)

	go func() {
		if err := c.server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("Web API server error", "error", err)
		}
	}()
	return nil
}

// Stop closes the server and every open websocket.
func (c *WebChannel) Stop() error {
	c.mu.Lock()
	for id, conn := range c.connections {
		conn.Close()
		delete(c.connections, id)
	}
	c.mu.Unlock()

	if c.server != nil {
		return c.server.Close()
	}
	return nil
}

func (c *WebChannel) originAllowed(r *http.Request) bool {
	if len(c.config.AllowedOrigins) == 0 {
		return true
	}
	return slices.Contains(c.config.AllowedOrigins, r.Header.Get("Origin"))
}

// cors answers preflight requests so a browser client on another origin can
// call the control endpoints.
func (c *WebChannel) cors(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origin := r.Header.Get("Origin")
		if origin != "" && c.originAllowed(r) {
			h := w.Header()
			if len(c.config.AllowedOrigins) == 0 {
				h.Set("Access-Control-Allow-Origin", "*")
			} else {
				h.Set("Access-Control-Allow-Origin", origin)
				h.Add("Vary", "Origin")
			}
			h.Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
			h.Set("Access-Control-Allow-Headers", "Content-Type")
		}
		if r.Method == http.MethodOptions && r.Header.Get("Access-Control-Request-Method") != "" {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (c *WebChannel) handleWebSocket(w http.ResponseWriter, r *http.Request, host api.ChannelHost) {
	rawConn, err := c.upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.Error("WS upgrade failed", "error", err)
		return
	}
	rawConn.SetReadLimit(maxFrameSize)

	conn := &SafeConn{Conn: rawConn}
	walletSession := strings.TrimSpace(r.URL.Query().Get("session"))
	if walletSession == "" {
		walletSession = provider.DefaultSession
	}
	wc := &wsConn{id: utils.NewConnectionID(), session: walletSession, ws: conn}

	c.mu.Lock()
	c.connections[wc.id] = conn
	c.mu.Unlock()

	session := host.Open(wc)
	defer func() {
		session.Close()
		c.mu.Lock()
		delete(c.connections, wc.id)
		c.mu.Unlock()
		conn.Close()
	}()

	for {
		msgType, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				slog.Debug("WS read failed", "conn", wc.id, "error", err)
			}
			return
		}
		if msgType != websocket.TextMessage && msgType != websocket.BinaryMessage {
			continue
		}
		session.Deliver(data)
	}
}
