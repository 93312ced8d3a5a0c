package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/signal-hunter/internal/model"
	"github.com/sells-group/signal-hunter/internal/pipeline"
	"github.com/sells-group/signal-hunter/internal/store"
)

const shutdownTimeout = 10 * time.Second

var servePort int

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP API for on-demand runs",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		env, err := initApp(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		go newChecker(env.Store).Run(ctx)

		api := &apiServer{
			coord:  env.Coordinator,
			store:  env.Store,
			budget: time.Duration(cfg.Server.RequestBudgetSecs) * time.Second,
		}
		if env.Router != nil {
			api.providers = env.Router
		}

		port := servePort
		if port == 0 {
			port = cfg.Server.Port
		}

		srv := &http.Server{
			Addr:              fmt.Sprintf(":%d", port),
			Handler:           newRouter(api, cfg.Server.AllowedOrigins),
			ReadHeaderTimeout: 10 * time.Second,
		}

		go func() {
			<-ctx.Done()
			zap.L().Info("shutting down server")
			shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()
			_ = srv.Shutdown(shutdownCtx)
		}()

		zap.L().Info("starting server", zap.Int("port", port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return eris.Wrap(err, "server listen")
		}

		return nil
	},
}

// apiServer answers the on-demand endpoints.
type apiServer struct {
	coord     *pipeline.Coordinator
	store     store.Store
	budget    time.Duration
	providers providerStatus
}

// providerStatus reports generation provider health.
type providerStatus interface {
	Providers() []string
	BreakerStates() map[string]string
}

// healthResponse is the body of GET /health.
type healthResponse struct {
	Status    string            `json:"status"`
	Providers []string          `json:"providers,omitempty"`
	Breakers  map[string]string `json:"breakers,omitempty"`
}

func (a *apiServer) health(w http.ResponseWriter, _ *http.Request) {
	resp := healthResponse{Status: "ok"}
	if a.providers != nil {
		resp.Providers = a.providers.Providers()
		resp.Breakers = a.providers.BreakerStates()
		for _, state := range resp.Breakers {
			if state == "open" {
				resp.Status = "degraded"
			}
		}
	}
	writeJSON(w, http.StatusOK, resp)
}

// runRequest is the body of POST /v1/runs.
type runRequest struct {
	UserID  string   `json:"userId"`
	Mode    string   `json:"mode"`
	Limit   int      `json:"limit"`
	ListID  string   `json:"listId"`
	Domains []string `json:"domains"`
}

// newRouter builds the chi router. A nil or empty origins list disables CORS.
func newRouter(api *apiServer, origins []string) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger)
	r.Use(middleware.Recoverer)
	if len(origins) > 0 {
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins: origins,
			AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodPatch, http.MethodOptions},
			AllowedHeaders: []string{"Accept", "Content-Type"},
			MaxAge:         300,
		}))
	}

	r.Get("/health", api.health)

	r.Route("/v1", func(r chi.Router) {
		r.Post("/runs", api.createRun)
		r.Get("/runs", api.listRuns)
		r.Get("/runs/{runID}", api.getRun)
		r.Get("/users/{userID}/leads", api.listLeads)
		r.Get("/users/{userID}/lists", api.listLists)
		r.Patch("/leads/{leadID}", api.updateLead)
	})
	return r
}

func (a *apiServer) createRun(w http.ResponseWriter, r *http.Request) {
	var req runRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.UserID == "" {
		writeError(w, http.StatusBadRequest, "userId is required")
		return
	}
	mode := model.ModeHunt
	if req.Mode != "" {
		mode = model.RunModeKind(req.Mode)
	}
	if !mode.Valid() {
		writeError(w, http.StatusBadRequest, "mode must be hunt or watch")
		return
	}

	res, err := a.coord.RunForUser(r.Context(), req.UserID, pipeline.RunOptions{
		Mode:    mode,
		Limit:   req.Limit,
		ListID:  req.ListID,
		Domains: req.Domains,
		Budget:  a.budget,
	})
	if err != nil {
		status := runErrorStatus(err)
		zap.L().Warn("api: run failed", zap.String("user_id", req.UserID), zap.Int("status", status), zap.Error(err))
		if res == nil {
			writeError(w, status, err.Error())
			return
		}
		writeJSON(w, status, res)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// runErrorStatus maps a run error to an HTTP status.
func runErrorStatus(err error) int {
	switch {
	case errors.Is(err, store.ErrNotFound):
		return http.StatusNotFound
	case pipeline.KindOf(err) == pipeline.KindInvalidConfiguration:
		return http.StatusBadRequest
	case pipeline.KindOf(err) == pipeline.KindProviderUnavailable:
		return http.StatusServiceUnavailable
	}
	return http.StatusInternalServerError
}

func (a *apiServer) listRuns(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	runs, err := a.store.ListRuns(r.Context(), store.RunFilter{
		UserID: q.Get("user_id"),
		Status: model.RunStatus(q.Get("status")),
		Limit:  queryInt(r, "limit", 50),
	})
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if runs == nil {
		runs = []model.SignalRun{}
	}
	writeJSON(w, http.StatusOK, runs)
}

func (a *apiServer) getRun(w http.ResponseWriter, r *http.Request) {
	run, err := a.store.GetRun(r.Context(), chi.URLParam(r, "runID"))
	if errors.Is(err, store.ErrNotFound) {
		writeError(w, http.StatusNotFound, "run not found")
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, run)
}

func (a *apiServer) listLeads(w http.ResponseWriter, r *http.Request) {
	leads, err := a.store.GetStoredLeads(r.Context(), chi.URLParam(r, "userID"), queryInt(r, "limit", 100))
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if leads == nil {
		leads = []model.LeadRecord{}
	}
	writeJSON(w, http.StatusOK, leads)
}

// listLists returns a user's lists of one type, watch by default.
func (a *apiServer) listLists(w http.ResponseWriter, r *http.Request) {
	typ := model.ListType(r.URL.Query().Get("type"))
	if typ == "" {
		typ = model.ListTypeWatch
	}
	if typ != model.ListTypeWatch && typ != model.ListTypeDoNotContact {
		writeError(w, http.StatusBadRequest, "type must be watch or dnc")
		return
	}
	lists, err := a.store.GetLists(r.Context(), chi.URLParam(r, "userID"), typ)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if lists == nil {
		lists = []model.AccountList{}
	}
	writeJSON(w, http.StatusOK, lists)
}

func (a *apiServer) updateLead(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Status model.LeadStatus `json:"status"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	switch body.Status {
	case model.LeadStatusNew, model.LeadStatusSaved, model.LeadStatusContacted, model.LeadStatusSkip:
	default:
		writeError(w, http.StatusBadRequest, "unknown lead status")
		return
	}
	err := a.store.UpdateLeadStatus(r.Context(), chi.URLParam(r, "leadID"), body.Status)
	if errors.Is(err, store.ErrNotFound) {
		writeError(w, http.StatusNotFound, "lead not found")
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func queryInt(r *http.Request, key string, def int) int {
	n, err := strconv.Atoi(r.URL.Query().Get(key))
	if err != nil || n <= 0 {
		return def
	}
	return n
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// requestLogger logs one line per request through zap.
func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		zap.L().Debug("http request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", ww.Status()),
			zap.Duration("elapsed", time.Since(start)),
			zap.String("request_id", middleware.GetReqID(r.Context())),
		)
	})
}

func init() {
	serveCmd.Flags().IntVar(&servePort, "port", 0, "server port (default from config)")
	rootCmd.AddCommand(serveCmd)
}
