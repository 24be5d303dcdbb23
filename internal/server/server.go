// internal/server/server.go
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/ThinkInAIXYZ/go-mcp/protocol"
	"github.com/ThinkInAIXYZ/go-mcp/server"
	"github.com/ThinkInAIXYZ/go-mcp/transport"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"mcp-pantry/internal/ai"
	"mcp-pantry/internal/classify"
	"mcp-pantry/internal/recipe"
	"mcp-pantry/internal/storage"
)

type Config struct {
	Host      string
	Port      int
	DBPath    string
	RulesPath string
	// WatchRules reloads RulesPath when it changes.
	WatchRules bool
	// AllowedOrigins limits websocket clients. Empty allows any origin.
	AllowedOrigins []string
}

type toolHandler func(ctx context.Context, req *protocol.CallToolRequest) (*protocol.CallToolResult, error)

// errInvalidParams marks caller mistakes; they answer 400.
var errInvalidParams = errors.New("invalid parameters")

func invalidParams(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", errInvalidParams, fmt.Sprintf(format, args...))
}

type PantryServer struct {
	server     *server.Server
	sse        *transport.SSEHandler
	httpServer *http.Server
	storage    *storage.SQLiteStorage
	classifier *classify.Classifier
	watcher    *classify.Watcher
	session    *recipe.Session
	tools      map[string]toolHandler
	upgrader   websocket.Upgrader
	logger     *zap.Logger
	config     *Config
	now        func() time.Time

	// baseCtx bounds MCP tool calls, whose handlers receive no context.
	baseCtx    context.Context
	cancelBase context.CancelFunc
	quit       chan struct{}
	stopOnce   sync.Once
}

func NewPantryServer(cfg *Config, generator ai.Generator, logger *zap.Logger) (*PantryServer, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	logger = logger.Named("server")

	classifier, err := newClassifier(cfg.RulesPath)
	if err != nil {
		return nil, err
	}

	// Initialize database
	stor, err := storage.NewSQLiteStorage(cfg.DBPath)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize storage: %w", err)
	}

	baseCtx, cancelBase := context.WithCancel(context.Background())
	pantryServer := &PantryServer{
		storage:    stor,
		classifier: classifier,
		session:    recipe.NewSession(generator, logger),
		logger:     logger,
		config:     cfg,
		now:        time.Now,
		baseCtx:    baseCtx,
		cancelBase: cancelBase,
		quit:       make(chan struct{}),
	}
	pantryServer.upgrader = websocket.Upgrader{CheckOrigin: pantryServer.checkOrigin}

	if cfg.RulesPath != "" && cfg.WatchRules {
		pantryServer.watcher, err = classify.NewWatcher(cfg.RulesPath, classifier, logger)
		if err != nil {
			cancelBase()
			stor.Close()
			return nil, err
		}
	}

	// MCP clients connect over SSE on our own mux; plain POSTs to / keep working.
	mcpTransport, sseHandler, err := transport.NewSSEServerTransportAndHandler(
		fmt.Sprintf("http://%s:%d%s", cfg.Host, cfg.Port, mcpMessagePath),
		transport.WithSSEServerTransportAndHandlerOptionLogger(logger.Named("mcp").Sugar()),
	)
	if err != nil {
		cancelBase()
		stor.Close()
		return nil, fmt.Errorf("failed to create MCP transport: %w", err)
	}
	mcpServer, err := server.NewServer(
		mcpTransport,
		server.WithServerInfo(protocol.Implementation{
			Name:    "pantry",
			Version: "1.0.0",
		}),
		server.WithLogger(logger.Named("mcp").Sugar()),
	)
	if err != nil {
		cancelBase()
		stor.Close()
		return nil, fmt.Errorf("failed to create MCP server: %w", err)
	}
	pantryServer.server = mcpServer
	pantryServer.sse = sseHandler

	pantryServer.registerTools()

	pantryServer.httpServer = &http.Server{
		Addr:              fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		Handler:           pantryServer.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	return pantryServer, nil
}

func newClassifier(rulesPath string) (*classify.Classifier, error) {
	if rulesPath == "" {
		return classify.NewDefault()
	}
	rules, err := classify.LoadRules(rulesPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load rules: %w", err)
	}
	return classify.New(rules), nil
}

const (
	mcpSSEPath     = "/sse"
	mcpMessagePath = "/message"
)

// Handler routes tool calls, the MCP SSE transport and the progress
// websocket.
func (s *PantryServer) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.Handle(mcpSSEPath, s.sse.HandleSSE())
	mux.Handle(mcpMessagePath, s.sse.HandleMessage())
	mux.HandleFunc("/ws/recipe-progress", s.handleProgressWS)
	mux.HandleFunc("/", s.handleHTTP)
	return mux
}

func (s *PantryServer) handleHTTP(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.Header().Set("Access-Control-Allow-Methods", "POST, OPTIONS")
	w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")

	if r.Method == http.MethodOptions {
		return
	}
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	// Decode the MCP request
	var request protocol.CallToolRequest
	if err := json.NewDecoder(r.Body).Decode(&request); err != nil {
		http.Error(w, fmt.Sprintf("Invalid JSON: %v", err), http.StatusBadRequest)
		return
	}

	handler, ok := s.tools[request.Name]
	if !ok {
		http.Error(w, fmt.Sprintf("Unknown tool: %s", request.Name), http.StatusNotFound)
		return
	}

	result, err := handler(r.Context(), &request)
	if err != nil {
		status := statusFor(err)
		if status == http.StatusInternalServerError {
			s.logger.Error("tool failed", zap.String("tool", request.Name), zap.Error(err))
		} else {
			s.logger.Debug("tool rejected", zap.String("tool", request.Name), zap.Error(err))
		}
		http.Error(w, err.Error(), status)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(result); err != nil {
		s.logger.Warn("failed to encode response", zap.Error(err))
	}
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, errInvalidParams):
		return http.StatusBadRequest
	case errors.Is(err, storage.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, recipe.ErrRequestInFlight):
		return http.StatusConflict
	}
	return http.StatusInternalServerError
}

// Start serves HTTP, and watches the rules file when configured, until ctx
// is cancelled, Stop is called or either fails.
func (s *PantryServer) Start(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		s.logger.Info("starting pantry server", zap.String("addr", s.httpServer.Addr))
		if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	if s.watcher != nil {
		g.Go(func() error {
			return s.watcher.Run(gctx)
		})
	}

	g.Go(func() error {
		select {
		case <-gctx.Done():
		case <-s.quit:
			cancel()
		}
		return s.shutdown()
	})

	return g.Wait()
}

func (s *PantryServer) shutdown() error {
	var err error
	s.stopOnce.Do(func() {
		close(s.quit)
		s.cancelBase()
		s.session.Cancel()
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		// Closing MCP sessions ends their SSE streams so the HTTP server can drain.
		if merr := s.server.Shutdown(ctx); merr != nil {
			s.logger.Warn("failed to shut down MCP server", zap.Error(merr))
		}
		err = s.httpServer.Shutdown(ctx)
	})
	return err
}

// Stop shuts the HTTP server down and closes storage.
func (s *PantryServer) Stop() error {
	err := s.shutdown()
	if s.storage != nil {
		if cerr := s.storage.Close(); cerr != nil && err == nil {
			err = cerr
		}
	}
	return err
}

func (s *PantryServer) createJSONResponse(data interface{}) (*protocol.CallToolResult, error) {
	jsonBytes, err := json.Marshal(data)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal response: %w", err)
	}

	return &protocol.CallToolResult{
		Content: []protocol.Content{
			protocol.TextContent{
				Type: "text",
				Text: string(jsonBytes),
			},
		},
	}, nil
}
