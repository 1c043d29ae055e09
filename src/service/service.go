package service

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"
	"github.com/mosaicnetworks/parley/src/node"
	"github.com/mosaicnetworks/parley/src/oracle"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"
)

// Service ...
type Service struct {
	bindAddress string
	node        *node.Node
	router      *mux.Router
	server      *http.Server
	logger      *logrus.Entry
}

// NewService ...
func NewService(bindAddress string, n *node.Node, logger *logrus.Entry) *Service {
	service := Service{
		bindAddress: bindAddress,
		node:        n,
		router:      mux.NewRouter(),
		logger:      logger,
	}

	service.registerHandlers()

	service.server = &http.Server{
		Addr:    bindAddress,
		Handler: service.router,
	}

	return &service
}

func (s *Service) registerHandlers() {
	s.logger.Debug("Registering parley API handlers")

	s.router.Use(cors)

	s.router.HandleFunc("/stats", s.GetStats).Methods("GET")
	s.router.HandleFunc("/ledger", s.GetLedger).Methods("GET")
	s.router.HandleFunc("/ledger/{index}", s.GetTransaction).Methods("GET")
	s.router.HandleFunc("/history", s.GetHistory).Methods("GET")
	s.router.HandleFunc("/available", s.GetAvailable).Methods("GET")
	s.router.HandleFunc("/fingerprint", s.GetFingerprint).Methods("GET")
	s.router.HandleFunc("/companions", s.GetCompanions).Methods("GET")
	s.router.HandleFunc("/peers", s.GetPeers).Methods("GET")
	s.router.HandleFunc("/consume", s.PostConsume).Methods("POST")
	s.router.Handle("/metrics", promhttp.HandlerFor(s.node.Metrics().Registry, promhttp.HandlerOpts{}))
}

func cors(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		next.ServeHTTP(w, r)
	})
}

// Handler returns the router of the service.
func (s *Service) Handler() http.Handler {
	return s.router
}

// Serve calls ListenAndServe. This is a blocking call. It returns nil once the
// service is shut down.
func (s *Service) Serve() error {
	s.logger.WithField("bind_address", s.bindAddress).Debug("Serving parley API")

	err := s.server.ListenAndServe()
	if err == http.ErrServerClosed {
		return nil
	}
	if err != nil {
		s.logger.Error(err)
	}
	return err
}

// Shutdown stops the HTTP server gracefully.
func (s *Service) Shutdown(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// GetStats ...
func (s *Service) GetStats(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.node.GetStats())
}

// GetLedger returns the whole chain.
func (s *Service) GetLedger(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.node.Transactions())
}

// GetTransaction ...
func (s *Service) GetTransaction(w http.ResponseWriter, r *http.Request) {
	param := mux.Vars(r)["index"]

	index, err := strconv.Atoi(param)
	if err != nil {
		s.logger.WithError(err).Debugf("Parsing index parameter %s", param)
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	tx, ok := s.node.GetTransaction(index)
	if !ok {
		http.Error(w, "transaction not found", http.StatusNotFound)
		return
	}

	writeJSON(w, http.StatusOK, tx)
}

// GetHistory returns the conversation.
func (s *Service) GetHistory(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.node.History())
}

// GetAvailable ...
func (s *Service) GetAvailable(w http.ResponseWriter, r *http.Request) {
	params := s.node.Params()
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"available": s.node.Available(),
		"capacity":  params.Capacity,
		"windowMs":  params.Window.Milliseconds(),
	})
}

// GetFingerprint ...
func (s *Service) GetFingerprint(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"fingerprint": s.node.Fingerprint(),
		"length":      len(s.node.Transactions()),
	})
}

// GetCompanions ...
func (s *Service) GetCompanions(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.node.Companions())
}

// GetPeers ...
func (s *Service) GetPeers(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.node.Peers())
}

// ConsumeRequest is the body of POST /consume. When Amount is omitted, it is
// computed from the length of the payload.
type ConsumeRequest struct {
	ActorID string   `json:"actorId"`
	Payload string   `json:"payload"`
	Amount  *float64 `json:"amount,omitempty"`
}

// PostConsume injects an utterance from outside the agent, usually a human
// user. Refused consumptions are answered with 409 and the receipt.
func (s *Service) PostConsume(w http.ResponseWriter, r *http.Request) {
	var req ConsumeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	if req.ActorID == "" {
		http.Error(w, "actorId is required", http.StatusBadRequest)
		return
	}

	capacity := s.node.Params().Capacity

	var amount float64
	if req.Amount != nil {
		amount = *req.Amount
	} else {
		amount = oracle.Cost(req.Payload, capacity)
	}

	receipt := s.node.Consume(req.ActorID, amount, req.Payload)

	s.logger.WithFields(logrus.Fields{
		"actor":    req.ActorID,
		"amount":   amount,
		"accepted": receipt.Accepted,
	}).Debug("POST /consume")

	if !receipt.Accepted {
		writeJSON(w, http.StatusConflict, receipt)
		return
	}

	writeJSON(w, http.StatusOK, receipt)
}
