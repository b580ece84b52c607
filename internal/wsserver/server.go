// Package wsserver provides the duplex websocket transport for the
// streaming transcription service: it upgrades incoming HTTP requests,
// drives the authentication and model-selection handshake, and bridges
// binary WAV chunks and JSON transcript blocks to a core.Session.
package wsserver

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/coder/websocket"
	"github.com/google/uuid"

	"github.com/MrWong99/streamstt/internal/config"
	"github.com/MrWong99/streamstt/internal/core"
	"github.com/MrWong99/streamstt/internal/observe"
)

// handshakeTimeout bounds how long a freshly accepted connection has to
// complete the authentication and model-selection messages.
const handshakeTimeout = 10 * time.Second

// Authenticator validates the token carried by a connection's first
// handshake message.
type Authenticator func(ctx context.Context, token string) error

// authMessage is the first handshake message a client must send.
type authMessage struct {
	Token string `json:"token"`
}

// modelSelectMessage is the second handshake message a client must send.
type modelSelectMessage struct {
	ModelKey string `json:"model_key"`
}

// wireBlock is the JSON wire representation of a core.TranscriptBlock: Type
// 0 is FINAL, Type 1 is IN_PROGRESS, matching core.BlockKind's wire-stable
// integer values.
type wireBlock struct {
	Type  int     `json:"type"`
	Text  string  `json:"text"`
	Start float64 `json:"start"`
	End   float64 `json:"end"`
}

// Server accepts websocket connections, runs the handshake described in the
// external interface contract, and bridges each accepted connection to a
// dedicated core.Session for its lifetime.
type Server struct {
	cfg           *config.Config
	configSource  func() *config.Config
	registry      *config.Registry
	metrics       *observe.Metrics
	authenticator Authenticator
	acceptOptions *websocket.AcceptOptions
}

// Option configures a Server.
type Option func(*Server)

// WithAuthenticator installs a custom token-validation function. The
// default rejects only the empty token, accepting anything else; deployments
// that need real verification (API keys, JWTs) must supply one.
func WithAuthenticator(a Authenticator) Option {
	return func(s *Server) { s.authenticator = a }
}

// WithAcceptOptions overrides the websocket.AcceptOptions used to upgrade
// incoming requests, e.g. to set InsecureSkipVerify during local development
// or a production OriginPatterns allowlist.
func WithAcceptOptions(opts *websocket.AcceptOptions) Option {
	return func(s *Server) { s.acceptOptions = opts }
}

// WithMetrics overrides the Metrics instance used to record session and
// block counters. Defaults to [observe.DefaultMetrics].
func WithMetrics(m *observe.Metrics) Option {
	return func(s *Server) { s.metrics = m }
}

// WithConfigSource makes the server read its configuration through fn at
// the start of every connection instead of using the snapshot passed to
// NewServer. Wire it to [config.Watcher.Current] so a reloaded config file
// applies to new connections without a restart; connections already in
// flight keep the snapshot they started with.
func WithConfigSource(fn func() *config.Config) Option {
	return func(s *Server) { s.configSource = fn }
}

// NewServer returns a Server that resolves recognizer backends for
// model-selection handshakes from registry against cfg's declared
// recognizer.backends.
func NewServer(cfg *config.Config, registry *config.Registry, opts ...Option) *Server {
	s := &Server{
		cfg:      cfg,
		registry: registry,
		metrics:  observe.DefaultMetrics(),
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

var _ http.Handler = (*Server)(nil)

// ServeHTTP upgrades the request to a websocket connection and drives it
// until the client disconnects, the handshake fails, or an unrecoverable
// pipeline error occurs.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, s.acceptOptions)
	if err != nil {
		slog.Default().Error("websocket accept failed", "error", err)
		return
	}
	s.handleConn(r.Context(), conn)
}

// currentConfig returns the configuration a new connection should run
// under: the live source when one is wired, the construction-time snapshot
// otherwise.
func (s *Server) currentConfig() *config.Config {
	if s.configSource != nil {
		return s.configSource()
	}
	return s.cfg
}

// handleConn owns one connection end to end: handshake, session
// construction, audio ingestion loop, and guaranteed teardown. The config
// is snapshotted once here so the handshake and the session always agree.
func (s *Server) handleConn(ctx context.Context, conn *websocket.Conn) {
	sessionID := uuid.NewString()
	cfg := s.currentConfig()
	log := observe.SessionLogger(ctx, sessionID)

	recognizer, modelKey, err := s.handshake(ctx, conn, cfg)
	if err != nil {
		log.Warn("handshake failed", "error", err)
		closeWithError(conn, err)
		return
	}

	sink := core.SinkFunc(func(b core.TranscriptBlock) error {
		return writeBlock(ctx, conn, b)
	})

	// A backend that provides its own chunk handling (e.g. the duration
	// mock) takes the connection's chunks directly; everything else is
	// driven through a Session and the stabilization pipeline.
	var handler core.ChunkHandler
	if provider, ok := recognizer.(core.ChunkHandlerProvider); ok {
		handler = provider.NewChunkHandler(sink)
	} else {
		sess, err := core.NewSession(core.Config{
			MaxSegmentSamples: cfg.Session.MaxSegmentSamples,
			MinNewSamples:     cfg.Session.MinNewSamples,
			LocalAgreeDim:     cfg.Session.LocalAgreeDim,
			Recognizer:        recognizer,
			RecognizerName:    modelKey,
			SessionID:         sessionID,
			Metrics:           s.metrics,
		}, sink)
		if err != nil {
			log.Error("session configuration rejected", "error", err)
			closeWithError(conn, err)
			return
		}
		handler = sess
	}

	if err := handler.Load(ctx); err != nil {
		log.Error("recognizer load failed", "error", err)
		closeWithError(conn, err)
		return
	}
	defer func() {
		if err := handler.Unload(context.Background()); err != nil {
			log.Error("recognizer unload failed", "error", err)
		}
	}()

	for {
		msgType, data, err := conn.Read(ctx)
		if err != nil {
			if websocket.CloseStatus(err) != -1 {
				log.Info("connection closed by client")
			} else {
				log.Warn("read failed", "error", err)
			}
			return
		}
		if msgType != websocket.MessageBinary {
			continue
		}
		if err := handler.QueueChunk(ctx, data); err != nil {
			log.Error("queue chunk failed", "error", err)
			closeWithError(conn, err)
			return
		}
	}
}

// handshake reads the authentication and model-selection messages in order
// and resolves the recognizer backend for the connection against cfg.
func (s *Server) handshake(ctx context.Context, conn *websocket.Conn, cfg *config.Config) (core.Recognizer, string, error) {
	hctx, cancel := context.WithTimeout(ctx, handshakeTimeout)
	defer cancel()

	var auth authMessage
	if err := readJSONMessage(hctx, conn, &auth); err != nil {
		return nil, "", fmt.Errorf("auth message: %w", err)
	}
	if err := s.authenticate(hctx, auth.Token); err != nil {
		return nil, "", fmt.Errorf("authentication rejected: %w", err)
	}

	var sel modelSelectMessage
	if err := readJSONMessage(hctx, conn, &sel); err != nil {
		return nil, "", fmt.Errorf("model selection message: %w", err)
	}

	recognizer, err := s.registry.ResolveModelKey(cfg, sel.ModelKey)
	if err != nil {
		return nil, "", err
	}

	modelKey := sel.ModelKey
	if modelKey == "" {
		modelKey = cfg.Recognizer.Default
	}
	return recognizer, modelKey, nil
}

func (s *Server) authenticate(ctx context.Context, token string) error {
	if s.authenticator != nil {
		return s.authenticator(ctx, token)
	}
	if token == "" {
		return errors.New("wsserver: empty token")
	}
	return nil
}

// readJSONMessage reads exactly one text message from conn and decodes it
// into v.
func readJSONMessage(ctx context.Context, conn *websocket.Conn, v any) error {
	msgType, data, err := conn.Read(ctx)
	if err != nil {
		return err
	}
	if msgType != websocket.MessageText {
		return errors.New("expected a text handshake message, got binary")
	}
	return json.Unmarshal(data, v)
}

// writeBlock encodes b per the wire format and writes it as a text message.
func writeBlock(ctx context.Context, conn *websocket.Conn, b core.TranscriptBlock) error {
	data, err := json.Marshal(wireBlock{Type: int(b.Kind), Text: b.Text, Start: b.Start, End: b.End})
	if err != nil {
		return err
	}
	return conn.Write(ctx, websocket.MessageText, data)
}

// closeWithError maps an error from the core pipeline to the close code
// required by the error handling design: config/WAV errors are a policy
// violation by the client, recognizer/stabilizer errors are an internal
// failure on the server's side.
func closeWithError(conn *websocket.Conn, err error) {
	code := websocket.StatusInternalError
	switch {
	case errors.Is(err, core.ErrBadWavFormat), errors.Is(err, core.ErrBadConfiguration):
		code = websocket.StatusPolicyViolation
	case errors.Is(err, core.ErrRecognizerFailure), errors.Is(err, core.ErrStabilizerMustPurge):
		code = websocket.StatusInternalError
	}
	msg := err.Error()
	if len(msg) > 120 {
		msg = msg[:120]
	}
	_ = conn.Close(code, msg)
}
