package pricing

import (
	"context"
	"errors"
	"time"

	"github.com/liamcoop/pricerules/internal/logger"
	"github.com/liamcoop/pricerules/internal/metrics"
	"github.com/liamcoop/pricerules/rules"
)

// Quote is the priced result for one line item
type Quote struct {
	SKU         string                       `json:"sku"`
	Quantity    int                          `json:"quantity"`
	Adjustments []rules.Adjustment           `json:"adjustments"`
	Suppressed  []string                     `json:"suppressed,omitempty"`
	Effective   EffectivePrice               `json:"effective"`
	Results     map[string]*rules.Adjustment `json:"-"`

	// SuppressionNotice is set when the request excluded at least one rule,
	// so the cart can tell the shopper a discount was not combined.
	SuppressionNotice bool `json:"suppressionNotice"`
}

// Pipeline runs Registry → Evaluator → Aggregator for one store
type Pipeline struct {
	storeID   string
	registry  *rules.Registry
	evaluator *rules.Evaluator
}

// NewPipeline creates a pipeline over registry
func NewPipeline(storeID string, registry *rules.Registry) *Pipeline {
	return &Pipeline{
		storeID:   storeID,
		registry:  registry,
		evaluator: rules.NewEvaluator(registry),
	}
}

// StoreID returns the store the pipeline prices for
func (p *Pipeline) StoreID() string { return p.storeID }

// Registry returns the registry backing the pipeline
func (p *Pipeline) Registry() *rules.Registry { return p.registry }

// Price evaluates and combines all enabled rules for item.
// The base price is the item's line total.
func (p *Pipeline) Price(ctx context.Context, item rules.LineItem, rc rules.RequestContext) (*Quote, error) {
	start := time.Now()
	defer func() {
		metrics.EvaluationSeconds.Observe(time.Since(start).Seconds())
	}()

	ev, err := p.evaluator.Evaluate(ctx, item, rc)
	if err != nil {
		p.fail(item, err)
		return nil, err
	}

	effective, err := Combine(ev.Results, item.LineTotal())
	if err != nil {
		p.fail(item, err)
		return nil, err
	}

	if ev.HasSuppressed() {
		metrics.Suppressions.WithLabelValues(p.storeID).Add(float64(len(ev.Suppressed)))
	}
	for _, d := range effective.Diagnostics {
		metrics.Diagnostics.WithLabelValues(string(d.Code)).Inc()
	}
	metrics.Quotes.WithLabelValues(p.storeID, "ok").Inc()

	return &Quote{
		SKU:               item.SKU,
		Quantity:          item.Quantity,
		Adjustments:       ev.Adjustments(),
		Suppressed:        ev.Suppressed,
		Effective:         effective,
		Results:           ev.Results,
		SuppressionNotice: ev.HasSuppressed(),
	}, nil
}

func (p *Pipeline) fail(item rules.LineItem, err error) {
	outcome := "error"
	var (
		execErr    *rules.RuleExecutionError
		invalidErr *rules.InvalidAdjustmentError
	)
	switch {
	case errors.As(err, &execErr):
		outcome = "rule_error"
	case errors.As(err, &invalidErr):
		outcome = "invalid_adjustment"
	}
	metrics.Quotes.WithLabelValues(p.storeID, outcome).Inc()
	logger.Error("price computation failed",
		"store_id", p.storeID,
		"sku", item.SKU,
		"outcome", outcome,
		"error", err.Error(),
	)
}
