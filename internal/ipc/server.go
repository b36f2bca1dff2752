// Package ipc exposes runtime control over a unix socket. Each connection
// carries one JSON request and one JSON response.
package ipc

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"poe-autotrade/pkg/logger"
)

const (
	StatusSuccess = "success"
	StatusError   = "error"

	connDeadline = 60 * time.Second
)

type Request struct {
	Command string   `json:"command"`
	Args    []string `json:"args,omitempty"`
}

type Response struct {
	Status  string          `json:"status"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data,omitempty"`
}

// CommandFunc serves one command. data, when non-nil, is sent as JSON.
type CommandFunc func(ctx context.Context, args []string) (message string, data interface{}, err error)

type Server struct {
	path string
	log  *logger.Logger

	mu       sync.RWMutex
	commands map[string]CommandFunc
}

func NewServer(path string, log *logger.Logger) *Server {
	return &Server{
		path:     path,
		log:      log,
		commands: make(map[string]CommandFunc),
	}
}

// Handle registers fn for command, replacing any previous handler.
func (s *Server) Handle(command string, fn CommandFunc) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.commands[command] = fn
}

// Commands lists the registered commands.
func (s *Server) Commands() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]string, 0, len(s.commands))
	for c := range s.commands {
		out = append(out, c)
	}
	sort.Strings(out)
	return out
}

// Run listens until ctx is done and removes the socket on return.
func (s *Server) Run(ctx context.Context) error {
	// Remove the socket file if it already exists
	if err := os.Remove(s.path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to remove existing socket file: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(s.path), 0755); err != nil {
		return fmt.Errorf("failed to create socket directory: %w", err)
	}

	listener, err := net.Listen("unix", s.path)
	if err != nil {
		return fmt.Errorf("failed to start socket server: %w", err)
	}
	defer os.Remove(s.path)

	go func() {
		<-ctx.Done()
		listener.Close()
	}()

	s.log.Info("Socket server started", "path", s.path)

	var wg sync.WaitGroup
	defer wg.Wait()
	for {
		conn, err := listener.Accept()
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				s.log.Info("Socket server stopped")
				return nil
			}
			s.log.Error("Failed to accept connection", err)
			continue
		}

		wg.Add(1)
		go func() {
			defer wg.Done()
			s.handleConnection(ctx, conn)
		}()
	}
}

func (s *Server) handleConnection(ctx context.Context, conn net.Conn) {
	defer conn.Close()
	conn.SetDeadline(time.Now().Add(connDeadline))

	var req Request
	if err := json.NewDecoder(conn).Decode(&req); err != nil {
		s.log.Error("Failed to decode request", err)
		return
	}

	s.log.Info("Received request", "command", req.Command, "args", req.Args)
	resp := s.dispatch(ctx, req)

	if err := json.NewEncoder(conn).Encode(resp); err != nil {
		s.log.Error("Failed to encode response", err)
	} else {
		s.log.Debug("Response sent successfully", "status", resp.Status)
	}
}

func (s *Server) dispatch(ctx context.Context, req Request) (resp Response) {
	s.mu.RLock()
	fn, ok := s.commands[req.Command]
	s.mu.RUnlock()

	if !ok {
		s.log.Error("Unknown command received", fmt.Errorf("command: %s", req.Command))
		return Response{Status: StatusError, Message: "Unknown command"}
	}

	defer func() {
		if r := recover(); r != nil {
			s.log.Error("Command panicked", fmt.Errorf("%v", r), "command", req.Command)
			resp = Response{Status: StatusError, Message: fmt.Sprintf("internal error: %v", r)}
		}
	}()

	msg, data, err := fn(ctx, req.Args)
	if err != nil {
		s.log.Error("Command failed", err, "command", req.Command)
		return Response{Status: StatusError, Message: err.Error()}
	}

	resp = Response{Status: StatusSuccess, Message: msg}
	if data != nil {
		raw, err := json.Marshal(data)
		if err != nil {
			return Response{Status: StatusError, Message: fmt.Sprintf("failed to encode result: %v", err)}
		}
		resp.Data = raw
	}
	return resp
}
