// Package httpadapter provides the thin query/stats HTTP surface named in
// spec.md's external interfaces list. It is intentionally small: the
// hybrid search rigor lives in internal/planner, this package only
// marshals HTTP requests into planner.Request and planner.Response back
// into JSON. Grounded on the teacher's internal/http/server.go (echo.Echo
// wrapped in a Server type, middleware.Recover/RequestID, a structured
// request-logging middleware, Start/Shutdown lifecycle methods),
// generalized from the teacher's large multi-service API surface down to
// the four routes this repository actually needs.
package httpadapter

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/chatindex/internal/lexical"
	"github.com/fyrsmithlabs/chatindex/internal/model"
	"github.com/fyrsmithlabs/chatindex/internal/planner"
	"github.com/fyrsmithlabs/chatindex/internal/supervisor"
)

// Planner is the subset of *planner.Planner the adapter depends on.
type Planner interface {
	Query(ctx context.Context, req planner.Request) (*planner.Response, error)
}

// Server is the thin HTTP adapter over the query planner and collection
// stats. It carries no auth of its own — spec.md names this surface as
// out of scope for the tested core, and config.ProductionConfig's
// RequireLoopbackHTTP check exists precisely because this server trusts
// its caller.
type Server struct {
	echo       *echo.Echo
	planner    Planner
	lexical    *lexical.Index
	supervisor *supervisor.Supervisor
	logger     *zap.Logger
	addr       string
}

// New constructs a Server. sup may be nil (lexical-only deployments still
// serve /stats and /query, just never report vector contributions).
func New(addr string, p Planner, lex *lexical.Index, sup *supervisor.Supervisor, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	e.Use(middleware.Recover())
	e.Use(middleware.RequestID())
	e.Use(func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()
			err := next(c)
			logger.Info("http request",
				zap.String("method", c.Request().Method),
				zap.String("uri", c.Request().RequestURI),
				zap.Int("status", c.Response().Status),
				zap.Duration("duration", time.Since(start)),
				zap.String("request_id", c.Response().Header().Get(echo.HeaderXRequestID)),
			)
			return err
		}
	})

	s := &Server{
		echo:       e,
		planner:    p,
		lexical:    lex,
		supervisor: sup,
		logger:     logger,
		addr:       addr,
	}
	s.registerRoutes()
	return s
}

func (s *Server) registerRoutes() {
	s.echo.GET("/healthz", s.handleHealthz)
	s.echo.GET("/readyz", s.handleReadyz)
	s.echo.GET("/stats", s.handleStats)
	s.echo.POST("/query", s.handleQuery)
}

// handleHealthz reports process liveness only — it never touches the
// lexical index or the vector supervisor, so it stays fast and never
// blocks on a slow dependency.
func (s *Server) handleHealthz(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
}

// handleReadyz reports whether the server can actually serve queries: the
// lexical index must be open (it always is once the daemon reaches serving
// state), and, if a supervisor was configured, its vector backend must not
// be Dead — a Degraded backend still serves lexical-only results, so it
// counts as ready, not the vector backend itself being usable.
func (s *Server) handleReadyz(c echo.Context) error {
	if s.lexical == nil {
		return echo.NewHTTPError(http.StatusServiceUnavailable, "lexical index not initialized")
	}
	if s.supervisor != nil && s.supervisor.State() == supervisor.StateDead {
		return c.JSON(http.StatusOK, map[string]string{
			"status": "degraded",
			"vector": supervisor.StateDead.String(),
		})
	}
	return c.JSON(http.StatusOK, map[string]string{"status": "ready"})
}

// statsResponse mirrors spec.md's get_collection_stats shape.
type statsResponse struct {
	Collections map[model.Collection]int `json:"collections"`
	VectorState string                   `json:"vector_state"`
}

func (s *Server) handleStats(c echo.Context) error {
	ctx := c.Request().Context()

	counts := make(map[model.Collection]int, 2)
	for _, collection := range []model.Collection{model.CollectionAlpha, model.CollectionBeta} {
		count, err := s.lexical.CollectionCount(ctx, collection)
		if err != nil {
			s.logger.Error("collection count failed", zap.String("collection", string(collection)), zap.Error(err))
			return echo.NewHTTPError(http.StatusInternalServerError, "failed to read collection stats")
		}
		counts[collection] = count
	}

	vectorState := supervisor.StateUninitialized.String()
	if s.supervisor != nil {
		vectorState = s.supervisor.State().String()
	}

	return c.JSON(http.StatusOK, statsResponse{Collections: counts, VectorState: vectorState})
}

// queryRequest is the POST /query body.
type queryRequest struct {
	QueryText     string   `json:"query_text"`
	NResults      int      `json:"n_results"`
	Collections   []string `json:"collections,omitempty"`
	ProjectFilter string   `json:"project_filter,omitempty"`
}

// queryResponse mirrors spec.md's query_unified result shape.
type queryResponse struct {
	Results      []queryResult `json:"results"`
	TotalMatches int           `json:"total_matches"`
	SearchType   string        `json:"search_type"`
}

type queryResult struct {
	DocID      string           `json:"doc_id"`
	Document   string           `json:"document"`
	Metadata   model.Metadata   `json:"metadata"`
	Distance   float64          `json:"distance"`
	Collection model.Collection `json:"collection"`
}

const defaultNResults = 10

func (s *Server) handleQuery(c echo.Context) error {
	var req queryRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if req.QueryText == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "query_text is required")
	}

	nResults := req.NResults
	if nResults <= 0 {
		nResults = defaultNResults
	}

	collections := make([]model.Collection, 0, len(req.Collections))
	for _, name := range req.Collections {
		collections = append(collections, model.Collection(name))
	}
	if len(collections) == 0 {
		collections = []model.Collection{model.CollectionAlpha, model.CollectionBeta}
	}

	resp, err := s.planner.Query(c.Request().Context(), planner.Request{
		QueryText:     req.QueryText,
		NResults:      nResults,
		Collections:   collections,
		ProjectFilter: req.ProjectFilter,
	})
	if err != nil {
		s.logger.Warn("query failed", zap.Error(err))
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}

	results := make([]queryResult, 0, len(resp.Results))
	for _, r := range resp.Results {
		results = append(results, queryResult{
			DocID:      r.DocID,
			Document:   r.Document,
			Metadata:   r.Metadata,
			Distance:   r.Distance,
			Collection: r.Collection,
		})
	}

	return c.JSON(http.StatusOK, queryResponse{
		Results:      results,
		TotalMatches: resp.TotalMatches,
		SearchType:   string(resp.SearchType),
	})
}

// Start runs the HTTP server. It blocks until the server stops (via
// Shutdown or an unrecoverable error) and returns http.ErrServerClosed on
// a clean shutdown, matching net/http.Server's own contract.
func (s *Server) Start() error {
	s.logger.Info("starting http adapter", zap.String("addr", s.addr))
	if err := s.echo.Start(s.addr); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("http adapter stopped: %w", err)
	}
	return nil
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down http adapter")
	return s.echo.Shutdown(ctx)
}
