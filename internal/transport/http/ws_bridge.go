package http

import (
	"context"
	"net"
	stdhttp "net/http"
	"sync"

	"github.com/coder/websocket"
	"github.com/rs/zerolog"

	"github.com/vovakirdan/wirearena-server/internal/core"
	"github.com/vovakirdan/wirearena-server/internal/proto"
)

// NewWSHandler upgrades the request and hands the connection to the hub as
// an ordinary session. Binary WebSocket messages carry the same framed
// stream the TCP listener reads.
func NewWSHandler(hub core.Submitter, maxFrameSize int, logger *zerolog.Logger) stdhttp.HandlerFunc {
	if maxFrameSize <= 0 {
		maxFrameSize = proto.DefaultMaxFrameSize
	}
	return func(w stdhttp.ResponseWriter, r *stdhttp.Request) {
		ws, err := websocket.Accept(w, r, &websocket.AcceptOptions{
			InsecureSkipVerify: true,
		})
		if err != nil {
			logger.Error().Err(err).Msg("ws accept error")
			return
		}
		// A frame plus its header may span several messages; bound each one.
		ws.SetReadLimit(int64(maxFrameSize) + 16)

		ctx, cancel := context.WithCancel(context.WithoutCancel(r.Context()))
		defer cancel()

		conn := newBridgeConn(websocket.NetConn(ctx, ws, websocket.MessageBinary), r.RemoteAddr)
		if err := hub.Submit(core.CreateSession{Conn: conn}); err != nil {
			logger.Warn().Err(err).Msg("ws session rejected")
			ws.Close(websocket.StatusTryAgainLater, "server unavailable")
			return
		}

		// The session owns the connection from here; hold the handler open
		// until it closes.
		<-conn.closed
		logger.Debug().Str("remote", r.RemoteAddr).Msg("ws bridge closed")
	}
}

// bridgeConn reports the HTTP peer address and signals when the session
// closes the connection.
type bridgeConn struct {
	net.Conn
	remote wsAddr
	once   sync.Once
	closed chan struct{}
}

func newBridgeConn(conn net.Conn, remote string) *bridgeConn {
	return &bridgeConn{Conn: conn, remote: wsAddr(remote), closed: make(chan struct{})}
}

func (b *bridgeConn) RemoteAddr() net.Addr { return b.remote }

func (b *bridgeConn) Close() error {
	err := b.Conn.Close()
	b.once.Do(func() { close(b.closed) })
	return err
}

type wsAddr string

func (wsAddr) Network() string  { return "websocket" }
func (a wsAddr) String() string { return string(a) }
