package main

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/liamcoop/pricerules/cachekey"
	"github.com/liamcoop/pricerules/internal/logger"
	"github.com/liamcoop/pricerules/multistore"
	"github.com/liamcoop/pricerules/rules"
)

const (
	currencyHeader = "X-Currency"
	currencyCookie = "currency"

	// Shown to shoppers instead of a wrong price when a rule fails
	priceUnavailable = "price unavailable, contact support"
	suppressedNotice = "some discounts cannot be combined with this cart and were not applied"
)

// Health check handler
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	status := map[string]any{
		"status": "healthy",
		"stores": len(s.stores.ListStores()),
	}
	if s.db != nil {
		if err := s.db.PingContext(r.Context()); err != nil {
			respondError(w, http.StatusServiceUnavailable, "database unavailable", err)
			return
		}
	}
	respondJSON(w, http.StatusOK, status)
}

// Price handler
func (s *Server) handlePrice(w http.ResponseWriter, r *http.Request) {
	storeID := chi.URLParam(r, "storeId")

	pipeline, err := s.stores.GetPipeline(storeID)
	if err != nil {
		respondError(w, http.StatusNotFound, "store not found", err)
		return
	}

	var req PriceRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body", err)
		return
	}
	if req.SKU == "" {
		respondError(w, http.StatusBadRequest, "sku is required", nil)
		return
	}
	if req.Quantity <= 0 {
		respondError(w, http.StatusBadRequest, "quantity must be positive", nil)
		return
	}

	rc := s.requestContext(r, req)
	unitPrice, err := rules.NewMoney(req.UnitPrice, rc.Currency)
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid unit price", err)
		return
	}

	item := rules.LineItem{
		SKU:       req.SKU,
		Quantity:  req.Quantity,
		UnitPrice: unitPrice,
		CartID:    req.CartID,
	}

	keys := cachekey.New(cachekey.WithUserScope(), cachekey.WithStore(storeID))
	quote, cached, err := s.pricer.Price(r.Context(), pipeline, keys, item, rc)
	if err != nil {
		respondJSON(w, http.StatusServiceUnavailable, map[string]string{"error": priceUnavailable})
		return
	}

	formatted, err := s.formatter.Format(quote.Effective.Price)
	if err != nil {
		logger.Warn("failed to format price", "currency", quote.Effective.Price.Currency, "error", err.Error())
		formatted = quote.Effective.Price.String()
	}

	resp := PriceResponse{
		SKU:         quote.SKU,
		Quantity:    quote.Quantity,
		Currency:    quote.Effective.Price.Currency,
		Base:        quote.Effective.Base,
		Price:       quote.Effective.Price,
		Formatted:   formatted,
		Discount:    quote.Effective.Discount().String(),
		Adjustments: quote.Adjustments,
		Suppressed:  quote.Suppressed,
		Diagnostics: quote.Effective.Diagnostics,
		Cached:      cached,
	}
	if resp.Adjustments == nil {
		resp.Adjustments = []rules.Adjustment{}
	}
	if quote.SuppressionNotice {
		resp.Notice = suppressedNotice
	}

	respondJSON(w, http.StatusOK, resp)
}

// requestContext resolves the active currency from the header, then the
// cookie, then the configured default.
func (s *Server) requestContext(r *http.Request, req PriceRequest) rules.RequestContext {
	var cookie string
	if c, err := r.Cookie(currencyCookie); err == nil {
		cookie = c.Value
	}

	rc := rules.RequestContext{
		Currency: s.currencies.Resolve(r.Header.Get(currencyHeader), cookie),
	}
	if req.User != nil {
		rc.UserID = req.User.ID
		rc.Roles = req.User.Roles
		rc.Permissions = req.User.Permissions
	}
	if len(req.Exclude) > 0 {
		rc = rc.Exclude(req.Exclude...)
	}
	return rc
}

// List stores handler
func (s *Server) handleListStores(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]any{
		"stores": s.stores.ListStores(),
	})
}

// Create store handler
func (s *Server) handleCreateStore(w http.ResponseWriter, r *http.Request) {
	if s.db == nil {
		respondError(w, http.StatusConflict, "stores are read-only without a database", nil)
		return
	}

	var req CreateStoreRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body", err)
		return
	}
	req.ID = strings.TrimSpace(req.ID)
	if req.ID == "" {
		respondError(w, http.StatusBadRequest, "id is required", nil)
		return
	}
	if req.Name == "" {
		req.Name = req.ID
	}

	_, err := s.db.ExecContext(r.Context(), `
		INSERT INTO stores (id, name, default_currency, created_at, updated_at)
		VALUES ($1, $2, $3, NOW(), NOW())
	`, req.ID, req.Name, s.currencies.Default())
	if err != nil {
		respondError(w, http.StatusInternalServerError, "failed to create store", err)
		return
	}

	if err := s.stores.CreateStore(r.Context(), req.ID); err != nil {
		respondError(w, http.StatusInternalServerError, "failed to load store", err)
		return
	}

	respondJSON(w, http.StatusCreated, map[string]any{
		"id":   req.ID,
		"name": req.Name,
	})
}

// List rules handler
func (s *Server) handleListRules(w http.ResponseWriter, r *http.Request) {
	storeID := chi.URLParam(r, "storeId")

	views, err := s.stores.ListRules(r.Context(), storeID)
	if err != nil {
		if errors.Is(err, multistore.ErrStoreNotFound) {
			respondError(w, http.StatusNotFound, "store not found", err)
			return
		}
		respondError(w, http.StatusInternalServerError, "failed to list rules", err)
		return
	}

	list := make([]RuleResponse, 0, len(views))
	for _, v := range views {
		list = append(list, ruleResponse(v.Definition, v.Setting))
	}
	respondJSON(w, http.StatusOK, map[string]any{
		"rules": list,
	})
}

// Create rule handler
func (s *Server) handleCreateRule(w http.ResponseWriter, r *http.Request) {
	storeID := chi.URLParam(r, "storeId")

	var req CreateRuleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body", err)
		return
	}

	now := time.Now()
	def := &rules.Definition{
		ID:         req.ID,
		Label:      req.Label,
		Kind:       rules.Kind(req.Kind),
		Mode:       rules.AdjustmentKind(req.Mode),
		Expression: req.Expression,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	if def.ID == "" {
		def.ID = uuid.NewString()
	}

	if err := s.stores.AddDefinition(r.Context(), storeID, def); err != nil {
		switch {
		case errors.Is(err, multistore.ErrStoreNotFound):
			respondError(w, http.StatusNotFound, "store not found", err)
		case errors.Is(err, rules.ErrDuplicateRule):
			respondError(w, http.StatusConflict, "rule already exists", err)
		default:
			respondError(w, http.StatusBadRequest, "failed to add rule", err)
		}
		return
	}

	// A file-mode setting may already exist for the new id and enable it.
	s.cache.InvalidateTags(cachekey.StoreRulesTag(storeID))
	respondJSON(w, http.StatusCreated, ruleResponse(def, nil))
}

// Delete rule handler
func (s *Server) handleDeleteRule(w http.ResponseWriter, r *http.Request) {
	storeID := chi.URLParam(r, "storeId")
	ruleID := chi.URLParam(r, "ruleId")

	if err := s.stores.DeleteDefinition(r.Context(), storeID, ruleID); err != nil {
		switch {
		case errors.Is(err, multistore.ErrStoreNotFound):
			respondError(w, http.StatusNotFound, "store not found", err)
		case errors.Is(err, rules.ErrDefinitionNotFound):
			respondError(w, http.StatusNotFound, "rule not found", err)
		default:
			respondError(w, http.StatusInternalServerError, "failed to delete rule", err)
		}
		return
	}

	s.cache.InvalidateTags(cachekey.StoreRulesTag(storeID))
	w.WriteHeader(http.StatusNoContent)
}

// Save setting handler
func (s *Server) handleSaveSetting(w http.ResponseWriter, r *http.Request) {
	storeID := chi.URLParam(r, "storeId")
	ruleID := chi.URLParam(r, "ruleId")

	var req SettingRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body", err)
		return
	}

	st := rules.Setting{
		RuleID:     ruleID,
		Enabled:    req.Enabled,
		Weight:     req.Weight,
		Parameters: req.Parameters,
	}
	if err := s.stores.SaveSetting(r.Context(), storeID, st); err != nil {
		switch {
		case errors.Is(err, multistore.ErrStoreNotFound):
			respondError(w, http.StatusNotFound, "store not found", err)
		case errors.Is(err, rules.ErrDefinitionNotFound):
			respondError(w, http.StatusNotFound, "rule not found", err)
		case errors.Is(err, rules.ErrReadOnlyStore):
			respondError(w, http.StatusConflict, "settings are read-only for this store", err)
		default:
			respondError(w, http.StatusBadRequest, "failed to save setting", err)
		}
		return
	}

	purged := s.cache.InvalidateTags(cachekey.StoreRulesTag(storeID))
	logger.Info("rule setting saved",
		"store_id", storeID,
		"rule_id", ruleID,
		"enabled", st.Enabled,
		"weight", st.Weight,
		"purged", purged,
	)

	respondJSON(w, http.StatusOK, st)
}

// Cache invalidation handler
func (s *Server) handleInvalidate(w http.ResponseWriter, r *http.Request) {
	var req InvalidateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body", err)
		return
	}

	tags := append([]string(nil), req.Tags...)
	for _, c := range req.Currencies {
		tags = append(tags, cachekey.CurrencyTag(c))
	}
	if len(tags) == 0 {
		tags = []string{cachekey.RulesTag}
	}

	respondJSON(w, http.StatusOK, map[string]any{
		"tags":    tags,
		"removed": s.cache.InvalidateTags(tags...),
	})
}

// Helper functions
func respondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func respondError(w http.ResponseWriter, status int, message string, err error) {
	response := map[string]string{
		"error": message,
	}
	if err != nil {
		response["details"] = err.Error()
	}
	respondJSON(w, status, response)
}
