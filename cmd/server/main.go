package main

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ericksa/contractrisk/internal/api"
	"github.com/ericksa/contractrisk/internal/audit"
	"github.com/ericksa/contractrisk/internal/blob"
	"github.com/ericksa/contractrisk/internal/config"
	"github.com/ericksa/contractrisk/internal/metrics"
	"github.com/ericksa/contractrisk/internal/middleware"
	"github.com/ericksa/contractrisk/internal/risk"
	"github.com/ericksa/contractrisk/internal/store"
	"github.com/ericksa/contractrisk/internal/workers"
	"github.com/ericksa/contractrisk/pkg/mcp"
	"github.com/gorilla/mux"
)

type server struct {
	shared  *config.Shared
	store   *store.Store
	auditor *audit.Auditor
	metrics *metrics.Metrics
	worker  *workers.ContractWorker
	mcp     *mcp.Handler
}

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	if err := cfg.Validate(); err != nil {
		log.Fatalf("Invalid config: %v", err)
	}

	ctx := context.Background()
	s, err := newServer(ctx, cfg)
	if err != nil {
		log.Fatalf("Failed to initialize: %v", err)
	}
	defer s.Close()

	srv := &http.Server{
		Addr:         cfg.Server.Addr,
		Handler:      s.router(),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Printf("Starting contract risk server on %s", cfg.Server.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server error: %v", err)
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Println("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Printf("Server shutdown error: %v", err)
	}
	log.Println("Server stopped")
}

func newServer(ctx context.Context, cfg *config.Config) (*server, error) {
	st, err := store.Open(ctx, cfg.Database.Driver, cfg.Database.DSN)
	if err != nil {
		return nil, err
	}

	blobs, err := blob.New(ctx, cfg.Storage)
	if err != nil {
		st.Close()
		return nil, err
	}

	var auditor *audit.Auditor
	if cfg.Audit.Enabled {
		auditor, err = audit.NewAuditor(cfg.Audit.Path)
		if err != nil {
			// audit is optional
			log.Printf("Warning: failed to initialize audit log: %v", err)
		}
	}

	var m *metrics.Metrics
	if cfg.Metrics.Enabled {
		m = metrics.New()
	}

	worker := workers.NewContractWorker(risk.NewClassifier(risk.DefaultRules()), st, blobs, m)
	log.Printf("Loaded %d risk rules", risk.DefaultRules().Len())

	return &server{
		shared:  config.NewShared(cfg),
		store:   st,
		auditor: auditor,
		metrics: m,
		worker:  worker,
		mcp:     mcp.NewHandler(worker, auditor),
	}, nil
}

func (s *server) router() *mux.Router {
	cfg := s.shared.Load()
	router := mux.NewRouter()
	middleware.Register(router, s.shared)

	router.HandleFunc("/health", healthHandler).Methods("GET")

	// Tools endpoints
	router.HandleFunc("/tools", s.listToolsHandler).Methods("GET")
	router.HandleFunc("/tools/{tool}", s.executeToolHandler).Methods("POST")

	if cfg.MCP.Enabled {
		router.PathPrefix(cfg.MCP.Path).Handler(s.mcp)
	}
	if s.metrics != nil {
		router.Handle(cfg.Metrics.Path, s.metrics.Handler()).Methods("GET")
	}

	// Configuration API
	router.PathPrefix("/configure").Handler(config.NewConfigAPI(s.shared).Router())

	// Dashboard API
	router.PathPrefix("/api").Handler(api.NewContractAPI(s.worker, s.shared, s.auditor, s.metrics).Router())

	return router
}

func (s *server) Close() {
	s.auditor.Close()
	if err := s.store.Close(); err != nil {
		log.Printf("Failed to close database: %v", err)
	}
}

func healthHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte(`{"status":"ok"}`))
}

func (s *server) listToolsHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{"tools": s.mcp.Tools()})
}

func (s *server) executeToolHandler(w http.ResponseWriter, r *http.Request) {
	var args map[string]interface{}
	if err := json.NewDecoder(r.Body).Decode(&args); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	argsJSON, _ := json.Marshal(args)
	result, err := s.mcp.ExecuteTool(r.Context(), mux.Vars(r)["tool"], argsJSON)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.Write(result)
}
