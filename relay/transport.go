package relay

import (
	"context"
	"net"
	"time"

	"github.com/gorilla/websocket"
	"golang.org/x/net/proxy"

	"github.com/shugur-labs/relaycore/errs"
)

// FrameKind distinguishes the outbound frame shapes a sink accepts.
type FrameKind int

const (
	FrameText FrameKind = iota
	FramePing
	FrameClose
)

// Frame is a single outbound unit written through a Sink.
type Frame struct {
	Kind FrameKind
	Data []byte
}

// Sink accepts discrete outbound frames destined for one relay socket.
type Sink interface {
	Write(Frame) error
	Close() error
}

// Stream yields inbound frames until the underlying socket closes.
// A returned error other than io.EOF-equivalent (nil frame, non-nil
// error) signals a transport-level read failure; the reader task
// treats any error as end of stream.
type Stream interface {
	Read() ([]byte, error)
}

// Dialer is the contract exposed to the Relay Supervisor: dial a relay
// URL, optionally via a SOCKS5 proxy, producing a duplex frame stream.
// TLS is upgraded automatically when the URL scheme requires it (wss://).
type Dialer interface {
	Dial(ctx context.Context, url string, proxyAddr string) (Sink, Stream, error)
}

// WebsocketDialer is the production Dialer backed by gorilla/websocket,
// with an optional SOCKS5 hop via golang.org/x/net/proxy.
type WebsocketDialer struct {
	HandshakeTimeout time.Duration
}

func NewWebsocketDialer() *WebsocketDialer {
	return &WebsocketDialer{HandshakeTimeout: 10 * time.Second}
}

func (d *WebsocketDialer) Dial(ctx context.Context, url string, proxyAddr string) (Sink, Stream, error) {
	dialer := &websocket.Dialer{
		HandshakeTimeout: d.HandshakeTimeout,
		Proxy:            nil,
	}

	if proxyAddr != "" {
		socksDialer, err := proxy.SOCKS5("tcp", proxyAddr, nil, proxy.Direct)
		if err != nil {
			return nil, nil, errs.New(errs.Url, err)
		}
		if ctxDialer, ok := socksDialer.(interface {
			DialContext(ctx context.Context, network, addr string) (net.Conn, error)
		}); ok {
			dialer.NetDialContext = ctxDialer.DialContext
		} else {
			dialer.NetDial = socksDialer.Dial
		}
	}

	conn, _, err := dialer.DialContext(ctx, url, nil)
	if err != nil {
		return nil, nil, err
	}

	ws := &websocketTransport{conn: conn}
	return ws, ws, nil
}

// websocketTransport implements both Sink and Stream over one
// *websocket.Conn. It is split into sink/stream roles only at the type
// level; the writer task and reader task each hold it through the
// narrower interface so neither can accidentally use the other's half.
type websocketTransport struct {
	conn *websocket.Conn
}

func (t *websocketTransport) Write(f Frame) error {
	switch f.Kind {
	case FrameText:
		return t.conn.WriteMessage(websocket.TextMessage, f.Data)
	case FramePing:
		return t.conn.WriteMessage(websocket.PingMessage, f.Data)
	case FrameClose:
		return t.conn.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	default:
		return nil
	}
}

func (t *websocketTransport) Close() error {
	return t.conn.Close()
}

func (t *websocketTransport) Read() ([]byte, error) {
	_, data, err := t.conn.ReadMessage()
	return data, err
}
