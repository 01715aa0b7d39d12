package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"net"
	"os"
	"strings"
	"time"

	"github.com/coder/websocket"

	"github.com/vovakirdan/wirearena-server/internal/proto"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "smoke: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	addr := flag.String("addr", "localhost:7777", "game address (host:port, or ws://host/ws for the bridge)")
	token := flag.String("token", "", "session token sent with join")
	text := flag.String("text", "hello from smoke test", "chat line to send after joining")
	spectate := flag.Bool("spectate", false, "join as a spectator")
	timeout := flag.Duration("timeout", 5*time.Second, "total timeout for the run")
	flag.Parse()

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	conn, err := dial(ctx, *addr)
	if err != nil {
		return fmt.Errorf("dial: %w", err)
	}
	defer conn.Close()
	if deadline, ok := ctx.Deadline(); ok {
		_ = conn.SetDeadline(deadline)
	}

	enc := proto.NewEncoder(conn)
	dec := proto.NewDecoder(conn, 0)

	send := func(m proto.Message) error {
		if err := enc.Encode(m); err != nil {
			return fmt.Errorf("send %s: %w", m.Type(), err)
		}
		return nil
	}

	if err := send(&proto.Join{SessionToken: *token, AsSpectator: *spectate}); err != nil {
		return err
	}
	if err := send(&proto.Ping{ClientTime: time.Now().UnixMilli()}); err != nil {
		return err
	}
	if err := send(&proto.Chat{Text: *text}); err != nil {
		return err
	}

	for {
		msg, err := dec.Decode()
		if err != nil {
			if err == io.EOF {
				fmt.Println("server closed the connection")
				return nil
			}
			return fmt.Errorf("read: %w", err)
		}
		fmt.Printf("received %s: %+v\n", msg.Type(), msg)

		if chat, ok := msg.(*proto.ChatBroadcast); ok && chat.Text == *text {
			fmt.Println("smoke test completed, leaving")
			return send(&proto.Leave{})
		}
	}
}

func dial(ctx context.Context, addr string) (net.Conn, error) {
	if strings.HasPrefix(addr, "ws://") || strings.HasPrefix(addr, "wss://") {
		ws, _, err := websocket.Dial(ctx, addr, nil)
		if err != nil {
			return nil, err
		}
		return websocket.NetConn(context.Background(), ws, websocket.MessageBinary), nil
	}
	var d net.Dialer
	return d.DialContext(ctx, "tcp", addr)
}
