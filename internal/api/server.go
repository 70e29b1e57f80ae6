// Package api implements C7: the HTTP boundary. It exposes the /ws upgrade
// route alongside a handful of read-only operator-facing JSON endpoints on
// one chi router, generalizing the teacher's bare http.ServeMux once more
// than a handful of routes and shared middleware are in play.
package api

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/rs/zerolog"

	"audiencehub/pkg/interfaces"
)

// Server is the Boundary: it owns no state itself, only read access to the
// Hub, Store, and Persistence needed to answer the fixed set of operator
// endpoints, plus the upgrade handler for /ws.
type Server struct {
	hub         interfaces.Hub
	store       interfaces.Store
	persistence interfaces.Persistence

	wsHandler http.Handler
	router    chi.Router

	databasePath string
	startedAt    time.Time

	logger zerolog.Logger
}

// New builds the chi router with CORS restricted to frontendURL and every
// route from §6/§10.6 wired. wsHandler is the connection package's upgrade
// handler, injected rather than imported, keeping api free of a dependency
// on connection's concrete types.
func New(hub interfaces.Hub, store interfaces.Store, persistence interfaces.Persistence, wsHandler http.Handler, databasePath, frontendURL string, logger zerolog.Logger) *Server {
	s := &Server{
		hub:          hub,
		store:        store,
		persistence:  persistence,
		wsHandler:    wsHandler,
		databasePath: databasePath,
		startedAt:    time.Now(),
		logger:       logger,
	}

	r := chi.NewRouter()
	r.Use(chimiddleware.RealIP)
	r.Use(chimiddleware.Recoverer)
	r.Use(requestLogging(logger))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{frontendURL},
		AllowedMethods: []string{http.MethodGet, http.MethodOptions},
		AllowedHeaders: []string{"Content-Type"},
	}))

	r.Get("/", s.handleRoot)
	r.Get("/status", s.handleStatus)
	r.Get("/debug/aggregation", s.handleDebugAggregation)
	r.Get("/debug/database", s.handleDebugDatabase)
	r.Handle("/ws", s.wsHandler)

	s.router = r
	return s
}

// ServeHTTP satisfies http.Handler so the Server can be handed directly to
// an http.Server as its root handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// requestLogging emits one structured log line per request, the §10.6
// "request logging via the §10.2 logger" middleware.
func requestLogging(logger zerolog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := chimiddleware.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r)
			logger.Info().
				Str("method", r.Method).
				Str("path", r.URL.Path).
				Int("status", ww.Status()).
				Dur("duration", time.Since(start)).
				Msg("http request")
		})
	}
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// rootResponse is GET /'s fixed shape: a running flag, connection count,
// persistence path, and ISO time.
type rootResponse struct {
	Running         bool   `json:"running"`
	ConnectionCount int    `json:"connectionCount"`
	PersistencePath string `json:"persistencePath"`
	Timestamp       string `json:"timestamp"`
}

func (s *Server) handleRoot(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, rootResponse{
		Running:         true,
		ConnectionCount: s.hub.Count(),
		PersistencePath: s.databasePath,
		Timestamp:       time.Now().UTC().Format(time.RFC3339),
	})
}

// statusResponse is GET /status's fixed shape: connection count and the set
// of connected user ids.
type statusResponse struct {
	ConnectionCount int      `json:"connectionCount"`
	UserIDs         []string `json:"userIds"`
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, statusResponse{
		ConnectionCount: s.hub.Count(),
		UserIDs:         s.hub.UserIDs(),
	})
}

// aggregationDebugEntry is one row of GET /debug/aggregation's active-user
// snapshot.
type aggregationDebugEntry struct {
	UserID        string `json:"userId"`
	SampleCount   int    `json:"sampleCount"`
	LastArrivalMS int64  `json:"lastArrivalMs"`
}

func (s *Server) handleDebugAggregation(w http.ResponseWriter, r *http.Request) {
	nowMS := time.Now().UnixMilli()
	active := s.store.SnapshotActive(nowMS)

	entries := make([]aggregationDebugEntry, 0, len(active))
	for userID, samples := range active {
		if len(samples) == 0 {
			continue
		}
		entries = append(entries, aggregationDebugEntry{
			UserID:        userID,
			SampleCount:   len(samples),
			LastArrivalMS: samples[len(samples)-1].ServerReceiveMS,
		})
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"activeUsers": entries,
		"timestamp":   time.Now().UTC().Format(time.RFC3339),
	})
}

// databaseDebugResponse is GET /debug/database's fixed shape: per-table row
// counts plus the last few rows from reactions_log and effects_log.
type databaseDebugResponse struct {
	TableCounts     map[string]int               `json:"tableCounts"`
	RecentReactions []interfaces.ReactionRow `json:"recentReactions"`
	RecentEffects   []interfaces.EffectRow   `json:"recentEffects"`
}

const debugRowLimit = 10

func (s *Server) handleDebugDatabase(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	counts, err := s.persistence.TableCounts(ctx)
	if err != nil {
		s.logger.Error().Err(err).Msg("table_counts failed")
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "failed to read table counts"})
		return
	}

	reactions, err := s.persistence.RecentReactions(ctx, debugRowLimit)
	if err != nil {
		s.logger.Error().Err(err).Msg("recent_reactions failed")
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "failed to read recent reactions"})
		return
	}

	effects, err := s.persistence.RecentEffects(ctx, debugRowLimit)
	if err != nil {
		s.logger.Error().Err(err).Msg("recent_effects failed")
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "failed to read recent effects"})
		return
	}

	writeJSON(w, http.StatusOK, databaseDebugResponse{
		TableCounts:     counts,
		RecentReactions: reactions,
		RecentEffects:   effects,
	})
}
