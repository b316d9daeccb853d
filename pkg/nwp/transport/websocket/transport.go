// Package websocket tunnels the NWP byte stream over a websocket.
package websocket

import (
	"net/http"

	"golang.org/x/net/websocket"

	"github.com/robotalks/nwp.go/pkg/nwp/transport/stream"
)

// Dial connects to an NWP websocket endpoint, e.g. ws://host:port/nwp.
func Dial(url string) (*stream.Transport, error) {
	conn, err := websocket.Dial(url, "", "http://localhost/")
	if err != nil {
		return nil, err
	}
	return New(conn), nil
}

// New wraps websocket.Conn. Frames are sent as binary payloads.
func New(conn *websocket.Conn) *stream.Transport {
	conn.PayloadType = websocket.BinaryFrame
	return stream.New(conn)
}

// Handler serves each websocket connection as a raw byte stream.
func Handler(serve func(*websocket.Conn)) http.Handler {
	return websocket.Handler(func(conn *websocket.Conn) {
		conn.PayloadType = websocket.BinaryFrame
		serve(conn)
	})
}
