package main

import "net/http"

// registerPublicRoutes adds read-only endpoints.
func (s *APIServer) registerPublicRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/status", s.handleStatus)
	mux.HandleFunc("GET /api/blocks", s.handleBlocks)
	mux.HandleFunc("GET /api/blocks/heights", s.handleBlocksByHeight)
	mux.HandleFunc("GET /api/block/{id}", s.handleBlock)
	mux.HandleFunc("GET /api/tips", s.handleTips)
	mux.HandleFunc("GET /api/path/{tip}", s.handlePath)
	mux.HandleFunc("GET /api/validation", s.handleValidation)
	mux.HandleFunc("GET /api/mempool", s.handleMempool)
	mux.HandleFunc("GET /api/mining", s.handleMiningStatus)
	mux.HandleFunc("GET /api/attack", s.handleAttackStatus)
	mux.HandleFunc("GET /api/tutorial", s.handleTutorial)
	mux.Handle("GET /metrics", s.daemon.Metrics().Handler())
}

// registerPrivateRoutes adds mutating endpoints. Each one is throttled
// per client IP.
func (s *APIServer) registerPrivateRoutes(mux *http.ServeMux) {
	// Transactions
	mux.HandleFunc("POST /api/transactions", s.throttled(s.handleAddTransaction))
	mux.HandleFunc("DELETE /api/mempool", s.throttled(s.handleClearMempool))

	// Mining
	mux.HandleFunc("POST /api/mining/start", s.throttled(s.handleMiningStart))
	mux.HandleFunc("POST /api/mining/stop", s.throttled(s.handleMiningStop))
	mux.HandleFunc("POST /api/mine", s.throttled(s.handleMine))

	// Chain manipulation
	mux.HandleFunc("POST /api/block/{id}/tamper", s.throttled(s.handleTamper))
	mux.HandleFunc("POST /api/difficulty", s.throttled(s.handleSetDifficulty))
	mux.HandleFunc("POST /api/select", s.throttled(s.handleSelect))
	mux.HandleFunc("POST /api/reset", s.throttled(s.handleReset))

	// Attack simulator
	mux.HandleFunc("POST /api/attack/start", s.throttled(s.handleAttackStart))
	mux.HandleFunc("POST /api/attack/stop", s.throttled(s.handleAttackStop))
	mux.HandleFunc("POST /api/attack/power", s.throttled(s.handleAttackPower))

	// Tutorial
	mux.HandleFunc("POST /api/tutorial/hash", s.throttled(s.handleTutorialHash))
	mux.HandleFunc("POST /api/tutorial/advance", s.throttled(s.handleTutorialAdvance))

	// SSE
	mux.HandleFunc("GET /api/events", s.handleEvents)
}
