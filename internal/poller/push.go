package poller

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"net/netip"
	"net/url"
	"strconv"
	"time"

	"github.com/gorilla/websocket"
)

// Push channel defaults.
const (
	DefaultChannelPort   = 8053
	DefaultChannelPath   = "/monitor"
	DefaultChannelOrigin = "http://dns-status.pgeodns"
)

// Channel is an open push channel delivering status payloads.
type Channel interface {
	// ReadMessage blocks until the next payload arrives.
	ReadMessage() ([]byte, error)
	Close() error
}

// ChannelDialer opens push channels to nodes.
type ChannelDialer interface {
	DialChannel(ctx context.Context, addr netip.Addr) (Channel, error)
}

// WSDialer opens websocket push channels.
type WSDialer struct {
	port        string
	path        string
	origin      string
	readTimeout time.Duration
	dialer      websocket.Dialer
}

// NewWSDialer creates a dialer for ws://<address>:port/path. The handshake
// must finish within handshakeTimeout and every message must arrive within
// readTimeout of the previous one.
func NewWSDialer(port int, path, origin string, handshakeTimeout, readTimeout time.Duration) *WSDialer {
	if port == 0 {
		port = DefaultChannelPort
	}
	if path == "" {
		path = DefaultChannelPath
	}
	if origin == "" {
		origin = DefaultChannelOrigin
	}
	return &WSDialer{
		port:        strconv.Itoa(port),
		path:        path,
		origin:      origin,
		readTimeout: readTimeout,
		dialer: websocket.Dialer{
			ReadBufferSize:   1024,
			WriteBufferSize:  1024,
			HandshakeTimeout: handshakeTimeout,
			NetDialContext:   (&net.Dialer{Timeout: handshakeTimeout}).DialContext,
		},
	}
}

// URL returns the channel URL for addr.
func (d *WSDialer) URL(addr netip.Addr) string {
	u := url.URL{
		Scheme: "ws",
		Host:   net.JoinHostPort(addr.String(), d.port),
		Path:   d.path,
	}
	return u.String()
}

// DialChannel implements [ChannelDialer].
func (d *WSDialer) DialChannel(ctx context.Context, addr netip.Addr) (Channel, error) {
	header := http.Header{}
	header.Set("Origin", d.origin)

	conn, _, err := d.dialer.DialContext(ctx, d.URL(addr), header)
	if err != nil {
		return nil, fmt.Errorf("dial channel %s: %w", addr, err)
	}
	return &wsChannel{conn: conn, readTimeout: d.readTimeout}, nil
}

type wsChannel struct {
	conn        *websocket.Conn
	readTimeout time.Duration
}

// ReadMessage returns the next text message. Binary frames are skipped.
func (c *wsChannel) ReadMessage() ([]byte, error) {
	for {
		if c.readTimeout > 0 {
			if err := c.conn.SetReadDeadline(time.Now().Add(c.readTimeout)); err != nil {
				return nil, err
			}
		}
		mt, data, err := c.conn.ReadMessage()
		if err != nil {
			return nil, err
		}
		if mt == websocket.TextMessage {
			return data, nil
		}
	}
}

func (c *wsChannel) Close() error {
	return c.conn.Close()
}
