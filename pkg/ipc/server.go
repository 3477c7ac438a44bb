package ipc

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/CTAG07/Neutral/pkg/schema"
	"github.com/CTAG07/Neutral/pkg/templating"
)

// ErrServerClosed is returned by Serve after Shutdown.
var ErrServerClosed = errors.New("ipc: server closed")

// Recorder receives the outcome of every request the server handles. Engine
// failures are recorded with status 500.
type Recorder interface {
	Record(ctx context.Context, template string, statusCode int) error
}

// ServerConfig holds the engine-side settings. Timeouts are in seconds.
type ServerConfig struct {
	Addr          string `json:"addr"`
	MaxRecordSize int    `json:"max_record_size"`
	ReadTimeout   int    `json:"read_timeout"`
	RenderTimeout int    `json:"render_timeout"`
}

// DefaultServerConfig returns the default engine settings.
func DefaultServerConfig() *ServerConfig {
	return &ServerConfig{
		Addr:          "127.0.0.1:4273",
		MaxRecordSize: 16 << 20,
		ReadTimeout:   10,
		RenderTimeout: 30,
	}
}

// Server accepts IPC connections and renders each request with a Renderer.
// Every connection carries exactly one request and one response.
type Server struct {
	logger   *slog.Logger
	renderer templating.Renderer
	recorder Recorder
	config   ServerConfig

	mu       sync.Mutex
	listener net.Listener
	conns    map[net.Conn]struct{}
	closed   bool
	wg       sync.WaitGroup
}

// NewServer creates a server. recorder may be nil.
func NewServer(logger *slog.Logger, renderer templating.Renderer, config *ServerConfig, recorder Recorder) *Server {
	if config == nil {
		config = DefaultServerConfig()
	}
	cfg := *config
	def := DefaultServerConfig()
	if cfg.Addr == "" {
		cfg.Addr = def.Addr
	}
	if cfg.MaxRecordSize <= 0 {
		cfg.MaxRecordSize = def.MaxRecordSize
	}
	if cfg.ReadTimeout <= 0 {
		cfg.ReadTimeout = def.ReadTimeout
	}
	if cfg.RenderTimeout <= 0 {
		cfg.RenderTimeout = def.RenderTimeout
	}
	return &Server{
		logger:   logger,
		renderer: renderer,
		recorder: recorder,
		config:   cfg,
		conns:    map[net.Conn]struct{}{},
	}
}

// ListenAndServe listens on the configured address and serves until Shutdown.
func (s *Server) ListenAndServe() error {
	l, err := net.Listen("tcp", s.config.Addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", s.config.Addr, err)
	}
	return s.Serve(l)
}

// Serve accepts connections on l until Shutdown is called. It always returns a
// non-nil error; after Shutdown that error is ErrServerClosed.
func (s *Server) Serve(l net.Listener) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		_ = l.Close()
		return ErrServerClosed
	}
	s.listener = l
	s.mu.Unlock()

	s.logger.Info("IPC server listening", "address", l.Addr().String())
	for {
		conn, err := l.Accept()
		if err != nil {
			if s.isClosed() {
				return ErrServerClosed
			}
			var ne net.Error
			if errors.As(err, &ne) && ne.Timeout() {
				s.logger.Warn("Temporary accept error", "error", err)
				time.Sleep(50 * time.Millisecond)
				continue
			}
			return fmt.Errorf("accept failed: %w", err)
		}
		if !s.track(conn) {
			_ = conn.Close()
			return ErrServerClosed
		}
		s.wg.Add(1)
		go s.handle(conn)
	}
}

// Addr returns the listener address, or nil before Serve is called.
func (s *Server) Addr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener == nil {
		return nil
	}
	return s.listener.Addr()
}

// Shutdown stops accepting connections and waits for in-flight requests to
// finish. When ctx expires first, the remaining connections are closed and
// ctx's error is returned.
func (s *Server) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	s.closed = true
	var err error
	if s.listener != nil {
		err = s.listener.Close()
	}
	s.mu.Unlock()

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		s.logger.Info("IPC server stopped")
		return err
	case <-ctx.Done():
		s.mu.Lock()
		for conn := range s.conns {
			_ = conn.Close()
		}
		s.mu.Unlock()
		<-done
		return ctx.Err()
	}
}

func (s *Server) isClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

func (s *Server) track(conn net.Conn) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return false
	}
	s.conns[conn] = struct{}{}
	return true
}

func (s *Server) untrack(conn net.Conn) {
	s.mu.Lock()
	delete(s.conns, conn)
	s.mu.Unlock()
}

func (s *Server) handle(conn net.Conn) {
	defer s.wg.Done()
	defer s.untrack(conn)
	defer func(conn net.Conn) {
		_ = conn.Close()
	}(conn)

	logger := s.logger.With("conn_id", uuid.NewString(), "remote_addr", conn.RemoteAddr().String())

	_ = conn.SetReadDeadline(time.Now().Add(time.Duration(s.config.ReadTimeout) * time.Second))
	req, err := ReadRecord(bufio.NewReader(conn), s.config.MaxRecordSize)
	if err != nil {
		logger.Warn("Failed to read request", "error", err)
		if errors.Is(err, ErrRecordTooLarge) {
			s.reply(logger, conn, failure(&templating.EngineError{Err: err}))
		}
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Duration(s.config.RenderTimeout)*time.Second)
	defer cancel()

	name, resp := s.serve(ctx, req)
	logger.Debug("Handled request", "template", name, "control", resp.Control)
	s.reply(logger, conn, resp)
}

// serve renders one decoded request and builds the response record.
func (s *Server) serve(ctx context.Context, rec *Record) (string, *Record) {
	req, err := decodeRequest(rec)
	if err != nil {
		return "", failure(err)
	}

	res, err := s.renderer.Render(ctx, req)
	code := 500
	if err == nil {
		code = res.StatusCode
	}
	if s.recorder != nil {
		if rerr := s.recorder.Record(ctx, req.Name(), code); rerr != nil {
			s.logger.Error("Failed to record render", "template", req.Name(), "error", rerr)
		}
	}
	if err != nil {
		return req.Name(), failure(err)
	}
	return req.Name(), success(res)
}

func (s *Server) reply(logger *slog.Logger, conn net.Conn, resp *Record) {
	_ = conn.SetWriteDeadline(time.Now().Add(time.Duration(s.config.ReadTimeout) * time.Second))
	if _, err := resp.WriteTo(conn); err != nil {
		logger.Warn("Failed to write response", "error", err)
	}
}

// decodeRequest validates a parse-template record and turns it into a Request.
func decodeRequest(rec *Record) (templating.Request, error) {
	var req templating.Request
	if rec.Control != CtrlParseTemplate {
		return req, &templating.EngineError{Err: fmt.Errorf("%w: unsupported control byte %d", templating.ErrRemote, rec.Control)}
	}

	switch rec.Format2 {
	case FormatPath:
		req.Path = string(rec.Content2)
	case FormatText:
		req.Source = string(rec.Content2)
		if req.Source == "" {
			return req, &templating.EngineError{Err: fmt.Errorf("%w: empty source", templating.ErrTemplateNotFound)}
		}
	default:
		return req, &templating.EngineError{Err: fmt.Errorf("%w: unsupported template format %d", templating.ErrRemote, rec.Format2)}
	}

	var (
		s   *schema.Schema
		err error
	)
	switch rec.Format1 {
	case FormatJSON:
		s, err = schema.Parse(rec.Content1)
	case FormatMsgpack:
		s, err = schema.ParseMsgpack(rec.Content1)
	default:
		err = fmt.Errorf("%w: unsupported schema format %d", schema.ErrMalformed, rec.Format1)
	}
	if err != nil {
		return req, &templating.EngineError{Path: req.Name(), Err: err}
	}
	req.Schema = s
	return req, nil
}

func success(res *templating.Result) *Record {
	content1, _ := json.Marshal(toWire(res))
	return &Record{
		Control:  CtrlStatusOK,
		Format1:  FormatJSON,
		Content1: content1,
		Format2:  FormatText,
		Content2: []byte(res.Content),
	}
}

func failure(err error) *Record {
	content1, _ := json.Marshal(failureWire(err))
	return &Record{
		Control:  CtrlStatusKO,
		Format1:  FormatJSON,
		Content1: content1,
		Format2:  FormatText,
	}
}
