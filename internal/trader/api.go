package trader

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"

	"paper-trade-bot-go/internal/models"
	"paper-trade-bot-go/internal/store"
)

// APIServer provides the HTTP surface of the pipeline: signal intake plus a
// few read-only views. Transport stays thin here; all decisions live in the
// engine.
type APIServer struct {
	server *http.Server
	engine *Engine
	logger *zap.Logger
}

// NewAPIServer creates a new APIServer on the configured port.
func NewAPIServer(engine *Engine, port int, logger *zap.Logger) *APIServer {
	s := &APIServer{
		engine: engine,
		logger: logger.Named("api-server"),
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/health", s.healthHandler)
	mux.HandleFunc("/status", s.statusHandler)
	mux.HandleFunc("/signal", s.signalHandler)
	mux.HandleFunc("/trades", s.tradesHandler)
	mux.HandleFunc("/pnl", s.pnlHandler)

	s.server = &http.Server{
		Addr:    fmt.Sprintf(":%d", port),
		Handler: mux,
	}
	return s
}

// Start runs the HTTP server in a new goroutine.
func (s *APIServer) Start() {
	s.logger.Info("Starting API server", zap.String("address", s.server.Addr))
	go func() {
		if err := s.server.ListenAndServe(); err != http.ErrServerClosed {
			s.logger.Error("API server failed", zap.Error(err))
		}
	}()
}

// Stop gracefully shuts down the server.
func (s *APIServer) Stop(ctx context.Context) error {
	s.logger.Info("Stopping API server...")
	return s.server.Shutdown(ctx)
}

func (s *APIServer) healthHandler(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	fmt.Fprintln(w, "OK")
}

func (s *APIServer) statusHandler(w http.ResponseWriter, _ *http.Request) {
	status := struct {
		UUID      string `json:"uuid"`
		Mode      string `json:"mode"`
		StartTime string `json:"start_time"`
		Uptime    string `json:"uptime"`
	}{
		UUID:      s.engine.UUID,
		Mode:      string(s.engine.Mode()),
		StartTime: s.engine.StartTime.Format(time.RFC3339),
		Uptime:    time.Since(s.engine.StartTime).String(),
	}
	s.writeJSON(w, http.StatusOK, status)
}

func (s *APIServer) signalHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req SignalRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}

	resp, err := s.engine.HandleSignal(r.Context(), req)
	if err != nil {
		s.logger.Error("Signal handling failed", zap.Error(err))
		http.Error(w, "signal handling failed", http.StatusInternalServerError)
		return
	}

	s.writeJSON(w, http.StatusOK, resp)
}

func (s *APIServer) tradesHandler(w http.ResponseWriter, r *http.Request) {
	filter := store.Filter{}
	if m := r.URL.Query().Get("mode"); m != "" {
		mode := models.Mode(m)
		filter.Mode = &mode
	}
	if sig := r.URL.Query().Get("signal"); sig != "" {
		signal := models.Signal(sig)
		filter.Signal = &signal
	}

	trades, err := s.engine.trades.Find(r.Context(), filter)
	if err != nil {
		s.logger.Error("Trade query failed", zap.Error(err))
		http.Error(w, "trade query failed", http.StatusInternalServerError)
		return
	}

	s.writeJSON(w, http.StatusOK, trades)
}

func (s *APIServer) pnlHandler(w http.ResponseWriter, r *http.Request) {
	total, err := s.engine.TotalPnL(r.Context())
	if err != nil {
		s.logger.Error("P&L aggregation failed", zap.Error(err))
		http.Error(w, "pnl aggregation failed", http.StatusInternalServerError)
		return
	}

	s.writeJSON(w, http.StatusOK, map[string]float64{"total_pnl": total})
}

func (s *APIServer) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Error("Failed to write response", zap.Error(err))
	}
}
