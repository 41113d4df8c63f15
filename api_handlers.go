package main

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/blocknetprivacy/blocksim/chain"
)

// ============================================================================
// Read handlers
// ============================================================================

// handleStatus returns daemon stats.
func (s *APIServer) handleStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.daemon.Stats())
}

// handleBlocks returns every block keyed by id.
// GET /api/blocks
func (s *APIServer) handleBlocks(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"genesisId": s.daemon.Session().GenesisID(),
		"blocks":    s.daemon.Session().Blocks(),
	})
}

// handleBlocksByHeight returns blocks grouped by index for tree views.
// GET /api/blocks/heights
func (s *APIServer) handleBlocksByHeight(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.daemon.Session().BlocksByHeight())
}

// handleBlock returns one block together with the validation result of the
// path ending at it.
// GET /api/block/{id}
func (s *APIServer) handleBlock(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if id == "" {
		writeError(w, http.StatusBadRequest, "missing block id")
		return
	}
	block, ok := s.daemon.Session().Block(id)
	if !ok {
		writeError(w, http.StatusNotFound, "block not found")
		return
	}
	view := s.daemon.Session().View()
	resp := map[string]any{
		"block":  block,
		"active": false,
	}
	if ve, bad := view.Result.Errors[id]; bad {
		resp["error"] = ve
	}
	for _, b := range s.daemon.Session().ActivePath() {
		if b.ID == id {
			resp["active"] = true
			break
		}
	}
	writeJSON(w, http.StatusOK, resp)
}

// handleTips returns the tip list and which one is active.
// GET /api/tips
func (s *APIServer) handleTips(w http.ResponseWriter, r *http.Request) {
	sess := s.daemon.Session()
	view := sess.View()
	tips := sess.Tips()

	resp := TipsResponse{
		Tips:       make([]TipInfo, 0, len(tips)),
		ActiveTip:  view.ActiveTip,
		LongestTip: view.LongestTip,
		Selected:   view.Selected,
	}
	for _, id := range tips {
		info := TipInfo{
			ID:      id,
			Active:  id == view.ActiveTip,
			Longest: id == view.LongestTip,
		}
		if b, ok := sess.Block(id); ok {
			info.Index = b.Index
			info.Attacker = b.IsAttacker
		}
		if path, err := sess.Path(id); err == nil {
			info.Length = len(path)
		}
		resp.Tips = append(resp.Tips, info)
	}
	writeJSON(w, http.StatusOK, resp)
}

// handlePath returns the path from genesis to tip and its validation.
// GET /api/path/{tip}
func (s *APIServer) handlePath(w http.ResponseWriter, r *http.Request) {
	tip := r.PathValue("tip")
	path, err := s.daemon.Session().Path(tip)
	if err != nil {
		writeOpError(w, err)
		return
	}
	result, err := s.daemon.Session().ValidateTip(tip)
	if err != nil {
		writeOpError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, PathResponse{
		Tip:        tip,
		Blocks:     path,
		Validation: result,
	})
}

// handleValidation returns the active path's validation result.
// GET /api/validation
func (s *APIServer) handleValidation(w http.ResponseWriter, r *http.Request) {
	view := s.daemon.Session().View()
	writeJSON(w, http.StatusOK, ValidationResponse{
		ActiveTip:  view.ActiveTip,
		Validation: view.Result,
	})
}

// handleMempool returns pending transactions.
// GET /api/mempool
func (s *APIServer) handleMempool(w http.ResponseWriter, r *http.Request) {
	txs := s.daemon.Session().Mempool()
	writeJSON(w, http.StatusOK, map[string]any{
		"count":        len(txs),
		"transactions": txs,
	})
}

// handleMiningStatus returns miner state and the latest search progress.
// GET /api/mining
func (s *APIServer) handleMiningStatus(w http.ResponseWriter, r *http.Request) {
	miner := s.daemon.Session().Miner()
	resp := map[string]any{
		"running":    miner.IsRunning(),
		"hashrate":   miner.HashRate(),
		"stats":      miner.Stats(),
		"difficulty": s.daemon.Session().Difficulty(),
	}
	if p, ok := miner.Progress(); ok {
		resp["progress"] = p
	}
	writeJSON(w, http.StatusOK, resp)
}

// handleAttackStatus returns the attack simulator state.
// GET /api/attack
func (s *APIServer) handleAttackStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.daemon.Attacker().Status())
}

// handleTutorial returns the tutorial stage, hint and counters.
// GET /api/tutorial
func (s *APIServer) handleTutorial(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.tutorialState())
}

func (s *APIServer) tutorialState() map[string]any {
	t := s.daemon.Tutorial()
	cp := s.daemon.Session().Progress()
	return map[string]any{
		"stage":      t.Stage(),
		"hint":       t.Hint(),
		"canAdvance": t.CanAdvance(cp),
		"progress":   t.Progress(cp),
	}
}

// ============================================================================
// Mutating handlers
// ============================================================================

// handleAddTransaction queues a transaction. Requests carrying an
// Idempotency-Key header are replayed rather than re-applied.
// POST /api/transactions
func (s *APIServer) handleAddTransaction(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		writeError(w, http.StatusBadRequest, "failed to read request body")
		return
	}

	var req TransactionRequest
	if err := json.Unmarshal(body, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	key := strings.TrimSpace(r.Header.Get("Idempotency-Key"))
	if key == "" {
		status, payload := s.addTransaction(req.From, req.To, req.Amount)
		writeJSON(w, status, payload)
		return
	}
	if len(key) > 128 {
		writeError(w, http.StatusBadRequest, "idempotency key too long")
		return
	}

	reqHash := hashRequestBody(body)
	state, cached := s.idempotency.begin(key, reqHash)
	switch state {
	case idemReplay:
		w.Header().Set("Idempotent-Replay", "true")
		writeRawJSON(w, cached.status, cached.body)
		return
	case idemInFlight:
		writeError(w, http.StatusConflict, "request with this idempotency key is in progress")
		return
	case idemMismatch:
		writeError(w, http.StatusConflict, "idempotency key reuse with different request")
		return
	}

	status, payload := s.addTransaction(req.From, req.To, req.Amount)
	encoded, err := json.Marshal(payload)
	if err != nil {
		s.idempotency.abandon(key)
		writeError(w, http.StatusInternalServerError, "failed to encode response")
		return
	}
	if status >= 500 {
		s.idempotency.abandon(key)
	} else {
		s.idempotency.complete(key, reqHash, status, encoded)
	}
	writeRawJSON(w, status, encoded)
}

func (s *APIServer) addTransaction(from, to string, amount float64) (int, any) {
	tx, err := s.daemon.Session().AddTransaction(from, to, amount)
	if err != nil {
		return statusForError(err), map[string]string{"error": err.Error()}
	}
	return http.StatusCreated, tx
}

// handleClearMempool drops pending transactions.
// DELETE /api/mempool
func (s *APIServer) handleClearMempool(w http.ResponseWriter, r *http.Request) {
	s.daemon.Session().ClearMempool()
	writeJSON(w, http.StatusOK, map[string]any{"cleared": true})
}

// handleMiningStart starts a background search on the active tip.
// POST /api/mining/start
func (s *APIServer) handleMiningStart(w http.ResponseWriter, r *http.Request) {
	if err := s.daemon.Session().StartMining(s.daemon.Context()); err != nil {
		writeOpError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]any{"running": true})
}

// handleMiningStop cancels the active search.
// POST /api/mining/stop
func (s *APIServer) handleMiningStop(w http.ResponseWriter, r *http.Request) {
	s.daemon.Session().StopMining()
	writeJSON(w, http.StatusOK, map[string]any{"running": false})
}

// handleMine mines one block and waits for it. Closing the request cancels
// the search.
// POST /api/mine
func (s *APIServer) handleMine(w http.ResponseWriter, r *http.Request) {
	b, err := s.daemon.Session().MineBlock(r.Context())
	if err != nil {
		writeOpError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, b)
}

// handleTamper edits a block's transactions. The body either carries a
// full replacement list or a single amount change.
// POST /api/block/{id}/tamper
func (s *APIServer) handleTamper(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	var req TamperRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	var (
		b   *chain.Block
		err error
	)
	switch {
	case req.Transactions != nil:
		b, err = s.daemon.Session().TamperBlock(id, *req.Transactions)
	case req.Amount != nil:
		idx := 0
		if req.TxIndex != nil {
			idx = *req.TxIndex
		}
		b, err = s.daemon.Session().TamperAmount(id, idx, *req.Amount)
	default:
		writeError(w, http.StatusBadRequest, "transactions or amount required")
		return
	}
	if err != nil {
		writeOpError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, TamperResponse{
		Block:      b,
		Validation: s.daemon.Session().Validation(),
	})
}

// handleSetDifficulty changes the difficulty for new blocks.
// POST /api/difficulty
func (s *APIServer) handleSetDifficulty(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Difficulty int `json:"difficulty"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := s.daemon.Session().SetDifficulty(req.Difficulty); err != nil {
		writeOpError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"difficulty": req.Difficulty})
}

// handleSelect sets the active tip. An empty tip selects the longest chain.
// POST /api/select
func (s *APIServer) handleSelect(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Tip string `json:"tip"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	sess := s.daemon.Session()
	if req.Tip == "" {
		sess.SelectLongest()
	} else if err := sess.SelectTip(req.Tip); err != nil {
		writeOpError(w, err)
		return
	}
	view := sess.View()
	writeJSON(w, http.StatusOK, ValidationResponse{
		ActiveTip:  view.ActiveTip,
		Validation: view.Result,
	})
}

// handleReset restores a fresh genesis-only chain.
// POST /api/reset
func (s *APIServer) handleReset(w http.ResponseWriter, r *http.Request) {
	s.daemon.Reset()
	writeJSON(w, http.StatusOK, ResetResponse{GenesisID: s.daemon.Session().GenesisID()})
}

// handleAttackStart starts the attack simulator.
// POST /api/attack/start
func (s *APIServer) handleAttackStart(w http.ResponseWriter, r *http.Request) {
	if err := s.daemon.Attacker().Start(s.daemon.Context()); err != nil {
		writeOpError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, s.daemon.Attacker().Status())
}

// handleAttackStop stops the attack simulator.
// POST /api/attack/stop
func (s *APIServer) handleAttackStop(w http.ResponseWriter, r *http.Request) {
	s.daemon.Attacker().Stop()
	writeJSON(w, http.StatusOK, s.daemon.Attacker().Status())
}

// handleAttackPower sets the attacker's hash power share.
// POST /api/attack/power
func (s *APIServer) handleAttackPower(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Power int `json:"power"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := s.daemon.Attacker().SetPower(req.Power); err != nil {
		writeOpError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, s.daemon.Attacker().Status())
}

// handleTutorialHash runs the hash playground.
// POST /api/tutorial/hash
func (s *APIServer) handleTutorialHash(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Text string `json:"text"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"text": req.Text,
		"hash": s.daemon.Tutorial().HashText(req.Text),
	})
}

// handleTutorialAdvance moves the tutorial forward. With no stage in the
// body it advances to the next one.
// POST /api/tutorial/advance
func (s *APIServer) handleTutorialAdvance(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Stage *Stage `json:"stage"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	t := s.daemon.Tutorial()
	cp := s.daemon.Session().Progress()

	var err error
	if req.Stage != nil {
		err = t.Advance(*req.Stage, cp)
	} else {
		_, err = t.Next(cp)
	}
	if err != nil {
		writeOpError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, s.tutorialState())
}

// ============================================================================
// Helpers
// ============================================================================

// statusForError maps operation errors to HTTP status codes.
func statusForError(err error) int {
	switch {
	case errors.Is(err, ErrUnknownBlock):
		return http.StatusNotFound
	case errors.Is(err, ErrChainBroken),
		errors.Is(err, ErrAttackRunning),
		errors.Is(err, ErrStaleTemplate),
		errors.Is(err, context.Canceled),
		errors.Is(err, ErrDuplicateTx),
		errors.Is(err, ErrTutorialComplete):
		return http.StatusConflict
	case errors.Is(err, ErrMempoolFull):
		return http.StatusServiceUnavailable
	case errors.Is(err, chain.ErrEmptyLabel),
		errors.Is(err, chain.ErrInvalidAmount),
		errors.Is(err, ErrInvalidDifficulty),
		errors.Is(err, ErrInvalidPower),
		errors.Is(err, ErrTxIndexOutOfRange),
		errors.Is(err, ErrStageSkipped),
		errors.Is(err, ErrGuardNotMet):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

// writeOpError writes err with the status statusForError picks.
func writeOpError(w http.ResponseWriter, err error) {
	writeError(w, statusForError(err), err.Error())
}

// writeJSON writes a JSON response with the given status code.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// writeRawJSON writes pre-encoded JSON.
func writeRawJSON(w http.ResponseWriter, status int, body []byte) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	w.Write(body)
}

// writeError writes a JSON error response.
func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

