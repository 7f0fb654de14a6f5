package relay

import (
	"fmt"
	"net/url"
	"sync"

	"github.com/gorilla/websocket"
)

// Client is a peer's connection to a relay room. It implements the
// engine's Transport: Publish broadcasts a frame to the room, and
// every frame the room fans out (echoes included) is handed to the
// receive callback.
type Client struct {
	ws *websocket.Conn

	writeMu sync.Mutex
	closed  bool
}

// Dial connects to the relay at baseURL (http:// or https://) and
// joins roomID under the given identity. Received frames are delivered
// to recv on a dedicated goroutine until the connection drops.
func Dial(baseURL, roomID, identity string, recv func([]byte)) (*Client, error) {
	u, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("relay: parse url: %w", err)
	}
	switch u.Scheme {
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	}
	u.Path = u.Path + "/room/" + roomID + "/ws"
	u.RawQuery = url.Values{"identity": {identity}}.Encode()

	ws, _, err := websocket.DefaultDialer.Dial(u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("relay: dial %s: %w", u.String(), err)
	}

	c := &Client{ws: ws}
	go c.readPump(recv)
	return c, nil
}

// Publish sends one frame to everyone in the room. The reliable flag
// is part of the transport contract; a websocket is always reliable to
// connected peers, so it is accepted and ignored. Delivery remains
// fire-and-forget: no acknowledgment, no retry.
func (c *Client) Publish(data []byte, reliable bool) error {
	_ = reliable
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if c.closed {
		return fmt.Errorf("relay: client closed")
	}
	return c.ws.WriteMessage(websocket.TextMessage, data)
}

// Close tears down the connection.
func (c *Client) Close() error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if c.closed {
		return nil
	}
	c.closed = true
	return c.ws.Close()
}

func (c *Client) readPump(recv func([]byte)) {
	defer c.Close()

	for {
		_, data, err := c.ws.ReadMessage()
		if err != nil {
			return
		}
		if recv != nil {
			recv(data)
		}
	}
}
