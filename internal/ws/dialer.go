package ws

import (
	"context"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
)

type gorillaDialer struct {
	dialer *websocket.Dialer
}

// NewGorillaDialer dials with gorilla/websocket.
func NewGorillaDialer(handshakeTimeout time.Duration) Dialer {
	return &gorillaDialer{dialer: &websocket.Dialer{
		Proxy:            http.ProxyFromEnvironment,
		HandshakeTimeout: handshakeTimeout,
	}}
}

func (d *gorillaDialer) Dial(ctx context.Context, rawURL string) (Conn, error) {
	conn, resp, err := d.dialer.DialContext(ctx, rawURL, nil)
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
	if err != nil {
		return nil, err
	}
	return conn, nil
}
