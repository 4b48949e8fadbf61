package httpserver

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	json "github.com/goccy/go-json"
	"go.uber.org/zap"

	"github.com/marketpulse/marketpulse-x/internal/intent"
	"github.com/marketpulse/marketpulse-x/internal/storage"
)

// APIHandler serves the read API plus the intent endpoints.
type APIHandler struct {
	store   storage.Store
	intents *intent.Service
	logger  *zap.Logger
}

// NewAPIHandler creates the API handler set.
func NewAPIHandler(store storage.Store, intents *intent.Service, logger *zap.Logger) *APIHandler {
	return &APIHandler{
		store:   store,
		intents: intents,
		logger:  logger,
	}
}

// ListMarkets handles GET /api/markets?status=open.
func (h *APIHandler) ListMarkets(w http.ResponseWriter, r *http.Request) {
	markets, err := h.store.ListMarkets(r.Context(), r.URL.Query().Get("status"))
	if err != nil {
		h.serverError(w, "list-markets-failed", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"markets": markets})
}

// GetMarket handles GET /api/markets/{id}: the market with its options
// and latest per-option ticks.
func (h *APIHandler) GetMarket(w http.ResponseWriter, r *http.Request) {
	marketID := chi.URLParam(r, "id")

	market, err := h.store.GetMarket(r.Context(), marketID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			writeError(w, http.StatusNotFound, "market not found")
			return
		}
		h.serverError(w, "get-market-failed", err)
		return
	}

	options, err := h.store.ListOptions(r.Context(), marketID)
	if err != nil {
		h.serverError(w, "list-options-failed", err)
		return
	}

	ticks, err := h.store.LatestTicks(r.Context(), marketID)
	if err != nil {
		h.serverError(w, "latest-ticks-failed", err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"market":  market,
		"options": options,
		"latest":  ticks,
	})
}

// ListSignals handles GET /api/signals with market_id, rule_type, level,
// since (RFC 3339) and limit filters.
func (h *APIHandler) ListSignals(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := storage.SignalFilter{
		MarketID: q.Get("market_id"),
		RuleType: q.Get("rule_type"),
		Level:    q.Get("level"),
	}
	if v := q.Get("limit"); v != "" {
		limit, err := strconv.Atoi(v)
		if err != nil || limit < 0 {
			writeError(w, http.StatusBadRequest, "invalid limit")
			return
		}
		filter.Limit = limit
	}
	if v := q.Get("since"); v != "" {
		since, err := time.Parse(time.RFC3339, v)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid since timestamp")
			return
		}
		filter.Since = since
	}

	signals, err := h.store.ListSignals(r.Context(), filter)
	if err != nil {
		h.serverError(w, "list-signals-failed", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"signals": signals})
}

// ListRules handles GET /api/rules.
func (h *APIHandler) ListRules(w http.ResponseWriter, r *http.Request) {
	defs, err := h.store.ListRuleDefs(r.Context())
	if err != nil {
		h.serverError(w, "list-rules-failed", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"rules": defs})
}

// ListKPI handles GET /api/kpi?from=YYYY-MM-DD.
func (h *APIHandler) ListKPI(w http.ResponseWriter, r *http.Request) {
	kpis, err := h.store.ListKPI(r.Context(), r.URL.Query().Get("from"))
	if err != nil {
		h.serverError(w, "list-kpi-failed", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"kpi": kpis})
}

// ListIntents handles GET /api/intents?status=suggested.
func (h *APIHandler) ListIntents(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := storage.IntentFilter{Status: q.Get("status")}
	if v := q.Get("limit"); v != "" {
		limit, err := strconv.Atoi(v)
		if err != nil || limit < 0 {
			writeError(w, http.StatusBadRequest, "invalid limit")
			return
		}
		filter.Limit = limit
	}

	intents, err := h.store.ListIntents(r.Context(), filter)
	if err != nil {
		h.serverError(w, "list-intents-failed", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"intents": intents})
}

// CreateIntent handles POST /api/intents.
func (h *APIHandler) CreateIntent(w http.ResponseWriter, r *http.Request) {
	var req intent.CreateRequest
	err := json.NewDecoder(r.Body).Decode(&req)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.SignalID == "" {
		writeError(w, http.StatusBadRequest, "signal_id is required")
		return
	}

	in, err := h.intents.Create(r.Context(), &req)
	if err != nil {
		switch {
		case errors.Is(err, storage.ErrNotFound):
			writeError(w, http.StatusNotFound, "signal not found")
		case errors.Is(err, intent.ErrLevelNotActionable):
			writeError(w, http.StatusUnprocessableEntity, err.Error())
		default:
			h.serverError(w, "create-intent-failed", err)
		}
		return
	}

	writeJSON(w, http.StatusCreated, in)
}

// ConfirmIntent handles POST /api/intents/{id}/confirm. A rejected or
// expired outcome is still a successful confirmation call; the intent
// body carries the final status and reasons.
func (h *APIHandler) ConfirmIntent(w http.ResponseWriter, r *http.Request) {
	intentID := chi.URLParam(r, "id")
	actor := r.Header.Get("x-actor")
	if actor == "" {
		actor = "operator"
	}

	in, err := h.intents.Confirm(r.Context(), intentID, actor)
	if err != nil {
		switch {
		case errors.Is(err, storage.ErrNotFound):
			writeError(w, http.StatusNotFound, "intent not found")
		case errors.Is(err, intent.ErrNotConfirmable):
			writeError(w, http.StatusConflict, err.Error())
		default:
			h.serverError(w, "confirm-intent-failed", err)
		}
		return
	}

	writeJSON(w, http.StatusOK, in)
}

func (h *APIHandler) serverError(w http.ResponseWriter, msg string, err error) {
	h.logger.Error(msg, zap.Error(err))
	writeError(w, http.StatusInternalServerError, "internal error")
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
