package main

import (
	"time"

	"github.com/liamcoop/pricerules/pricing"
	"github.com/liamcoop/pricerules/rules"
)

// API request and response models

// PriceRequest is the body of POST /stores/{storeId}/price.
// The unit price is expressed in the request's active currency.
type PriceRequest struct {
	SKU       string       `json:"sku"`
	Quantity  int          `json:"quantity"`
	UnitPrice string       `json:"unitPrice"`
	CartID    string       `json:"cartId,omitempty"`
	User      *UserRequest `json:"user,omitempty"`
	Exclude   []string     `json:"exclude,omitempty"`
}

// UserRequest identifies the shopper for user-dependent rules
type UserRequest struct {
	ID          string   `json:"id"`
	Roles       []string `json:"roles,omitempty"`
	Permissions []string `json:"permissions,omitempty"`
}

// PriceResponse is the priced line item
type PriceResponse struct {
	SKU         string               `json:"sku"`
	Quantity    int                  `json:"quantity"`
	Currency    string               `json:"currency"`
	Base        rules.Money          `json:"base"`
	Price       rules.Money          `json:"price"`
	Formatted   string               `json:"formatted"`
	Discount    string               `json:"discount"`
	Adjustments []rules.Adjustment   `json:"adjustments"`
	Suppressed  []string             `json:"suppressed,omitempty"`
	Notice      string               `json:"notice,omitempty"`
	Diagnostics []pricing.Diagnostic `json:"diagnostics,omitempty"`
	Cached      bool                 `json:"cached"`
}

// CreateRuleRequest is the body of POST /stores/{storeId}/rules
type CreateRuleRequest struct {
	ID         string `json:"id,omitempty"`
	Label      string `json:"label"`
	Kind       string `json:"kind"`
	Mode       string `json:"mode,omitempty"`
	Expression string `json:"expression,omitempty"`
}

// SettingRequest is the body of PUT /stores/{storeId}/rules/{ruleId}/setting
type SettingRequest struct {
	Enabled    bool             `json:"enabled"`
	Weight     int              `json:"weight"`
	Parameters rules.Parameters `json:"parameters,omitempty"`
}

// RuleResponse is a definition merged with its setting
type RuleResponse struct {
	ID         string         `json:"id"`
	Label      string         `json:"label"`
	Kind       string         `json:"kind"`
	Mode       string         `json:"mode,omitempty"`
	Expression string         `json:"expression,omitempty"`
	Setting    *rules.Setting `json:"setting,omitempty"`
	CreatedAt  time.Time      `json:"createdAt"`
	UpdatedAt  time.Time      `json:"updatedAt"`
}

// CreateStoreRequest is the body of POST /stores
type CreateStoreRequest struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// InvalidateRequest is the body of POST /cache/invalidate
type InvalidateRequest struct {
	Tags       []string `json:"tags,omitempty"`
	Currencies []string `json:"currencies,omitempty"`
}

func ruleResponse(def *rules.Definition, st *rules.Setting) RuleResponse {
	return RuleResponse{
		ID:         def.ID,
		Label:      def.Label,
		Kind:       string(def.Kind),
		Mode:       string(def.Mode),
		Expression: def.Expression,
		Setting:    st,
		CreatedAt:  def.CreatedAt,
		UpdatedAt:  def.UpdatedAt,
	}
}
