package ws

import (
	"log/slog"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"inbox-service/internal/apperrors"
)

var (
	ErrConnectionClosed = apperrors.New(apperrors.ErrTransport, "connection closed")
	ErrSendBufferFull   = apperrors.New(apperrors.ErrTransport, "send buffer full")
)

// ClientOptions tune a single websocket connection.
type ClientOptions struct {
	SendBuffer      int
	MaxMessageBytes int64
	WriteWait       time.Duration
	PongWait        time.Duration
	PingPeriod      time.Duration
}

// DefaultClientOptions returns the settings used when the environment
// overrides nothing.
func DefaultClientOptions() ClientOptions {
	return ClientOptions{
		SendBuffer:      64,
		MaxMessageBytes: 4096,
		WriteWait:       10 * time.Second,
		PongWait:        60 * time.Second,
		PingPeriod:      54 * time.Second,
	}
}

// Client is one open inbox websocket. Pushes are queued by Send and written
// in order by a single writer goroutine.
type Client struct {
	conn      *websocket.Conn
	info      ConnInfo
	opts      ClientOptions
	log       *slog.Logger
	send      chan []byte
	done      chan struct{}
	closeOnce sync.Once
}

func newClient(conn *websocket.Conn, info ConnInfo, opts ClientOptions, log *slog.Logger) *Client {
	return &Client{
		conn: conn,
		info: info,
		opts: opts,
		log:  log.With("conn_id", info.ConnID, "user_id", info.UserID),
		send: make(chan []byte, opts.SendBuffer),
		done: make(chan struct{}),
	}
}

func (c *Client) ID() string { return c.info.ConnID }

func (c *Client) UserID() int64 { return c.info.UserID }

// Send queues payload without blocking.
func (c *Client) Send(payload []byte) error {
	select {
	case <-c.done:
		return ErrConnectionClosed
	default:
	}
	select {
	case c.send <- payload:
		return nil
	default:
		return ErrSendBufferFull
	}
}

// Close stops the writer, which sends a close frame and closes the socket.
// Safe to call more than once.
func (c *Client) Close() error {
	c.closeOnce.Do(func() { close(c.done) })
	return nil
}

func (c *Client) writePump() {
	ticker := time.NewTicker(c.opts.PingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()

	for {
		select {
		case msg := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(c.opts.WriteWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				c.log.Warn("websocket write failed", "error", err)
				_ = c.Close()
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(c.opts.WriteWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				c.log.Debug("websocket ping failed", "error", err)
				_ = c.Close()
				return
			}
		case <-c.done:
			_ = c.conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
				time.Now().Add(c.opts.WriteWait))
			return
		}
	}
}

// readPump hands every text frame to handle until the transport fails.
func (c *Client) readPump(handle func([]byte)) error {
	c.conn.SetReadLimit(c.opts.MaxMessageBytes)
	_ = c.conn.SetReadDeadline(time.Now().Add(c.opts.PongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(c.opts.PongWait))
	})

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			return err
		}
		_ = c.conn.SetReadDeadline(time.Now().Add(c.opts.PongWait))
		handle(data)
	}
}
