// Package client implements the TCP line-protocol client for the backing
// SDK server. Requests and responses are single newline-terminated lines;
// one request is in flight at a time.
package client

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/Swind/go-backend-runtime/core"
)

// ErrNotConnected is returned when a request is attempted before Connect
// or after Disconnect.
var ErrNotConnected = errors.New("client: not connected to SDK server")

const defaultTimeout = 5 * time.Second

// Client talks to the SDK server over a single TCP connection. Methods are
// safe for concurrent use; requests are serialized on the connection.
type Client struct {
	host    string
	port    int
	timeout time.Duration
	logger  core.Logger

	mu     sync.Mutex
	conn   net.Conn
	reader *bufio.Reader
}

// ClientOption configures a Client.
type ClientOption func(*Client)

// WithTimeout sets the dial and per-request I/O timeout.
func WithTimeout(d time.Duration) ClientOption {
	return func(c *Client) {
		if d > 0 {
			c.timeout = d
		}
	}
}

// WithLogger sets the structured logger.
func WithLogger(logger core.Logger) ClientOption {
	return func(c *Client) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// New creates a client for the SDK server at host:port. Call Connect before
// sending requests.
func New(host string, port int, opts ...ClientOption) *Client {
	c := &Client{
		host:    host,
		port:    port,
		timeout: defaultTimeout,
		logger:  core.NewNoOpLogger(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Connect establishes the TCP connection. Connecting while already
// connected replaces the old connection.
func (c *Client) Connect() error {
	addr := net.JoinHostPort(c.host, strconv.Itoa(c.port))

	conn, err := net.DialTimeout("tcp", addr, c.timeout)
	if err != nil {
		c.logger.Error("connection failed", core.F("addr", addr), core.F("error", err))
		return fmt.Errorf("connect to SDK server %s: %w", addr, err)
	}

	c.mu.Lock()
	if c.conn != nil {
		c.conn.Close()
	}
	c.conn = conn
	c.reader = bufio.NewReader(conn)
	c.mu.Unlock()

	c.logger.Info("connected to SDK server", core.F("addr", addr))
	return nil
}

// Disconnect closes the connection. Disconnecting while not connected is a
// no-op.
func (c *Client) Disconnect() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.conn == nil {
		return
	}
	if err := c.conn.Close(); err != nil {
		c.logger.Warn("error while disconnecting", core.F("error", err))
	} else {
		c.logger.Info("disconnected from SDK server")
	}
	c.conn = nil
	c.reader = nil
}

// IsConnected reports whether a connection is established.
func (c *Client) IsConnected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn != nil
}

// SendRequest writes one request line and returns the server's response
// line with surrounding whitespace trimmed. Returns ErrNotConnected when
// no connection is established.
func (c *Client) SendRequest(request string) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.conn == nil {
		return "", ErrNotConnected
	}

	c.logger.Debug("sending request", core.F("request", request))

	deadline := time.Now().Add(c.timeout)
	if err := c.conn.SetDeadline(deadline); err != nil {
		return "", fmt.Errorf("set deadline: %w", err)
	}

	if _, err := c.conn.Write([]byte(request + "\n")); err != nil {
		c.logger.Error("communication error", core.F("error", err))
		return "", fmt.Errorf("send request: %w", err)
	}

	line, err := c.reader.ReadString('\n')
	if err != nil {
		c.logger.Error("communication error", core.F("error", err))
		return "", fmt.Errorf("read response: %w", err)
	}

	response := strings.TrimSpace(line)
	c.logger.Debug("received response", core.F("response", response))
	return response, nil
}

// CallAPI formats an API call as "<name> <json-params>" and sends it.
func (c *Client) CallAPI(name string, params map[string]any) (string, error) {
	encoded, err := json.Marshal(params)
	if err != nil {
		return "", fmt.Errorf("encode params for %s: %w", name, err)
	}
	return c.SendRequest(name + " " + string(encoded))
}
