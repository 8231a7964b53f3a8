package rpc

import (
	"fmt"
	"net"
	"time"

	"github.com/agenthub/hub/internal/framing"
)

// Client is a minimal synchronous RPC client used by hubctl: one request in
// flight at a time, one frame per reply.
type Client struct {
	conn    net.Conn
	dec     *framing.Decoder
	enc     *framing.Encoder
	timeout time.Duration
}

// Dial connects to socketPath and performs the auth handshake.
func Dial(socketPath, account, token string, timeout time.Duration) (*Client, error) {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	conn, err := net.DialTimeout("unix", socketPath, timeout)
	if err != nil {
		return nil, fmt.Errorf("rpc: dial %s: %w", socketPath, err)
	}

	c := &Client{
		conn:    conn,
		dec:     framing.NewDecoder(conn),
		enc:     framing.NewEncoder(conn),
		timeout: timeout,
	}

	reply, err := c.call(Frame{Type: TypeAuth, Account: account, Token: token})
	if err != nil {
		conn.Close()
		return nil, err
	}
	if reply.Type != TypeAuthOK {
		conn.Close()
		return nil, fmt.Errorf("rpc: auth failed: %s", reply.Error)
	}
	return c, nil
}

// Call sends a request frame and waits for its reply.
func (c *Client) Call(typ string, data map[string]interface{}) (Reply, error) {
	return c.call(Frame{Type: typ, Data: data})
}

func (c *Client) call(f Frame) (Reply, error) {
	_ = c.conn.SetWriteDeadline(time.Now().Add(c.timeout))
	if err := c.enc.Encode(f); err != nil {
		return Reply{}, fmt.Errorf("rpc: send %s: %w", f.Type, err)
	}

	_ = c.conn.SetReadDeadline(time.Now().Add(c.timeout))
	var reply Reply
	ok, err := c.dec.Next(&reply)
	if err != nil {
		return Reply{}, fmt.Errorf("rpc: receive reply to %s: %w", f.Type, err)
	}
	if !ok {
		return Reply{}, fmt.Errorf("rpc: connection closed waiting for reply to %s", f.Type)
	}
	return reply, nil
}

// Close closes the underlying connection.
func (c *Client) Close() error { return c.conn.Close() }
