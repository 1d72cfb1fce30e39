// Command vidwatch is the video performance tracking daemon: background
// metric collection, trend analysis over the snapshot history, an MCP tool
// surface and an HTTP admin API.
//
// Usage:
//
//	vidwatch -config vidwatch.yaml
//	YOUTUBE_API_KEY=... vidwatch
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/modelcontextprotocol/go-sdk/mcp"
	"golang.org/x/crypto/bcrypt"
	_ "modernc.org/sqlite"

	"github.com/lbarthe/vidwatch/dbopen"
	"github.com/lbarthe/vidwatch/tools"
	"github.com/lbarthe/vidwatch/tracker"
	"github.com/lbarthe/vidwatch/youtube"
)

func main() {
	configPath := flag.String("config", "", "path to vidwatch.yaml config file")
	flag.Parse()

	logLevel := env("LOG_LEVEL", "info")
	var level slog.Level
	switch logLevel {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}
	// Logs go to stderr: stdout belongs to the MCP stdio transport.
	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, logger, *configPath); err != nil {
		logger.Error("vidwatch: fatal", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, logger *slog.Logger, configPath string) error {
	cfg := DefaultConfig()
	if configPath != "" {
		var err error
		cfg, err = LoadConfig(configPath)
		if err != nil {
			return err
		}
	}

	// Environment overrides.
	cfg.Listen = env("LISTEN", cfg.Listen)
	cfg.DBPath = env("DB_PATH", cfg.DBPath)
	cfg.APIKey = env("YOUTUBE_API_KEY", cfg.APIKey)
	cfg.MCPTransport = env("MCP_TRANSPORT", cfg.MCPTransport)
	if v := os.Getenv("QUOTA_BUDGET"); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			cfg.QuotaBudget = n
		}
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	db, err := dbopen.Open(cfg.DBPath, dbopen.WithMkdirAll())
	if err != nil {
		return err
	}
	defer db.Close()

	quota := youtube.NewQuotaTracker(cfg.QuotaBudget)
	client, err := youtube.New(youtube.Config{
		APIKey: cfg.APIKey,
		Logger: logger,
	}, quota)
	if err != nil {
		return err
	}

	svc, err := tracker.New(ctx, db, client, &cfg.Tracker,
		tracker.WithLogger(logger),
		tracker.WithQuota(quota),
	)
	if err != nil {
		return err
	}
	svc.Start(ctx)
	defer svc.Close()

	catalog := tools.NewCatalog(client, logger)

	if cfg.MCPTransport == "stdio" {
		mcpSrv := mcp.NewServer(&mcp.Implementation{
			Name:    "vidwatch",
			Version: "1.0.0",
		}, nil)
		svc.RegisterMCP(mcpSrv)
		catalog.RegisterMCP(mcpSrv)

		go func() {
			logger.Info("MCP stdio starting")
			if err := mcpSrv.Run(ctx, &mcp.StdioTransport{}); err != nil && ctx.Err() == nil {
				logger.Error("MCP stdio", "error", err)
			}
		}()
	}

	api := &apiServer{svc: svc, logger: logger}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, 200, map[string]string{"status": "ok"})
	})

	r.Route("/api", func(r chi.Router) {
		if mw := adminAuth(logger); mw != nil {
			r.Use(mw)
		}
		r.Post("/videos", api.registerVideo)
		r.Get("/videos", api.listVideos)
		r.Delete("/videos/{id}", api.removeVideo)
		r.Post("/videos/{id}/collect", api.collectNow)
		r.Get("/videos/{id}/trend", api.videoTrend)
		r.Post("/snapshots/prune", api.pruneSnapshots)
		r.Get("/stats", api.stats)
	})

	srv := &http.Server{
		Addr:              cfg.Listen,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("vidwatch: listening", "addr", cfg.Listen)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	logger.Info("vidwatch: shutting down")
	shutCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	return srv.Shutdown(shutCtx)
}

// adminAuth returns a basic-auth middleware checking the admin password.
// ADMIN_PASSWORD_HASH takes a bcrypt hash; ADMIN_PASSWORD a plain value that
// is hashed at startup. With neither set the API is open, which is only
// acceptable behind a local socket.
func adminAuth(logger *slog.Logger) func(http.Handler) http.Handler {
	hash := []byte(os.Getenv("ADMIN_PASSWORD_HASH"))
	if len(hash) == 0 {
		plain := os.Getenv("ADMIN_PASSWORD")
		if plain == "" {
			logger.Warn("vidwatch: admin API unauthenticated (set ADMIN_PASSWORD)")
			return nil
		}
		var err error
		hash, err = bcrypt.GenerateFromPassword([]byte(plain), bcrypt.DefaultCost)
		if err != nil {
			logger.Error("vidwatch: hash admin password", "error", err)
			return nil
		}
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			_, pass, ok := r.BasicAuth()
			if !ok || bcrypt.CompareHashAndPassword(hash, []byte(pass)) != nil {
				w.Header().Set("WWW-Authenticate", `Basic realm="vidwatch"`)
				writeJSON(w, 401, map[string]string{"error": "unauthorized"})
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

type apiServer struct {
	svc    *tracker.Service
	logger *slog.Logger
}

func (a *apiServer) registerVideo(w http.ResponseWriter, r *http.Request) {
	var req struct {
		VideoID string `json:"video_id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, 400, err)
		return
	}
	info, err := a.svc.RegisterVideo(r.Context(), req.VideoID)
	if err != nil {
		a.writeServiceError(w, err)
		return
	}
	writeJSON(w, 201, info)
}

func (a *apiServer) listVideos(w http.ResponseWriter, r *http.Request) {
	infos, err := a.svc.ListTracked(r.Context(),
		r.URL.Query().Get("status"),
		queryInt(r, "limit", 0),
		queryInt(r, "offset", 0),
	)
	if err != nil {
		a.writeServiceError(w, err)
		return
	}
	writeJSON(w, 200, infos)
}

func (a *apiServer) removeVideo(w http.ResponseWriter, r *http.Request) {
	purge := r.URL.Query().Get("purge") == "true"
	if err := a.svc.RemoveVideo(r.Context(), chi.URLParam(r, "id"), purge); err != nil {
		a.writeServiceError(w, err)
		return
	}
	writeJSON(w, 200, map[string]string{"status": "deleted"})
}

func (a *apiServer) collectNow(w http.ResponseWriter, r *http.Request) {
	handle, err := a.svc.CollectNow(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		a.writeServiceError(w, err)
		return
	}
	writeJSON(w, 202, handle)
}

func (a *apiServer) videoTrend(w http.ResponseWriter, r *http.Request) {
	q := tracker.TrendQuery{
		VideoID: chi.URLParam(r, "id"),
		Unit:    r.URL.Query().Get("unit"),
	}
	var err error
	if q.From, err = queryTime(r, "from"); err != nil {
		writeError(w, 400, err)
		return
	}
	if q.To, err = queryTime(r, "to"); err != nil {
		writeError(w, 400, err)
		return
	}
	report, err := a.svc.Trend(r.Context(), q)
	if err != nil {
		a.writeServiceError(w, err)
		return
	}
	writeJSON(w, 200, report)
}

func (a *apiServer) pruneSnapshots(w http.ResponseWriter, r *http.Request) {
	var req struct {
		VideoID string    `json:"video_id"`
		Before  time.Time `json:"before"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, 400, err)
		return
	}
	n, err := a.svc.PruneSnapshots(r.Context(), req.VideoID, req.Before)
	if err != nil {
		a.writeServiceError(w, err)
		return
	}
	writeJSON(w, 200, map[string]int64{"removed": n})
}

func (a *apiServer) stats(w http.ResponseWriter, r *http.Request) {
	st, err := a.svc.Stats(r.Context())
	if err != nil {
		a.writeServiceError(w, err)
		return
	}
	writeJSON(w, 200, st)
}

func (a *apiServer) writeServiceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, tracker.ErrNotFound):
		writeError(w, 404, err)
	case errors.Is(err, tracker.ErrInvalidInput):
		writeError(w, 400, err)
	case errors.Is(err, tracker.ErrInsufficientData):
		writeError(w, 422, err)
	case errors.Is(err, tracker.ErrUpstreamUnavailable):
		writeError(w, 502, err)
	default:
		a.logger.Error("vidwatch: api error", "error", err)
		writeError(w, 500, err)
	}
}

func env(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, code int, err error) {
	writeJSON(w, code, map[string]string{"error": err.Error()})
}

func queryInt(r *http.Request, key string, def int) int {
	s := r.URL.Query().Get(key)
	if s == "" {
		return def
	}
	v, err := strconv.Atoi(s)
	if err != nil {
		return def
	}
	return v
}

func queryTime(r *http.Request, key string) (time.Time, error) {
	s := r.URL.Query().Get(key)
	if s == "" {
		return time.Time{}, nil
	}
	return time.Parse(time.RFC3339, s)
}
