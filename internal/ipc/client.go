package ipc

import (
	"encoding/json"
	"fmt"
	"net"
	"time"

	"poe-autotrade/pkg/logger"
)

type Client struct {
	path    string
	timeout time.Duration
	log     *logger.Logger
}

func NewClient(path string, log *logger.Logger) *Client {
	return &Client{path: path, timeout: connDeadline, log: log}
}

// Send issues one command and waits for its response. A response with
// StatusError is returned as is, not as an error.
func (c *Client) Send(command string, args ...string) (Response, error) {
	c.log.Debug("Attempting to connect to socket server", "path", c.path)

	conn, err := net.DialTimeout("unix", c.path, 5*time.Second)
	if err != nil {
		return Response{}, fmt.Errorf("failed to connect to %s (is the app running?): %w", c.path, err)
	}
	defer conn.Close()
	conn.SetDeadline(time.Now().Add(c.timeout))

	if err := json.NewEncoder(conn).Encode(Request{Command: command, Args: args}); err != nil {
		return Response{}, fmt.Errorf("failed to encode request: %w", err)
	}
	c.log.Debug("Request sent", "command", command)

	var resp Response
	if err := json.NewDecoder(conn).Decode(&resp); err != nil {
		return Response{}, fmt.Errorf("failed to decode response: %w", err)
	}

	c.log.Debug("Response received", "status", resp.Status, "message", resp.Message)
	return resp, nil
}
