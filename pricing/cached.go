package pricing

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/liamcoop/pricerules/cachekey"
	"github.com/liamcoop/pricerules/internal/logger"
	"github.com/liamcoop/pricerules/internal/metrics"
	"github.com/liamcoop/pricerules/rendercache"
	"github.com/liamcoop/pricerules/rules"
)

// CachedPricer stores quotes in a render cache under context-derived keys.
// Only successful quotes are cached; errors always reach the caller.
type CachedPricer struct {
	backend rendercache.Backend
}

// NewCachedPricer wraps backend
func NewCachedPricer(backend rendercache.Backend) *CachedPricer {
	return &CachedPricer{backend: backend}
}

// Price returns the cached quote for (item, rc) or computes and stores it.
// hit reports whether the quote came from the cache.
func (c *CachedPricer) Price(ctx context.Context, p *Pipeline, keys *cachekey.Builder, item rules.LineItem, rc rules.RequestContext) (q *Quote, hit bool, err error) {
	key := keys.Key(BaseKey(p.StoreID(), item, rc), rc)

	if raw, ok := c.backend.Get(key); ok {
		var cached Quote
		if err := json.Unmarshal(raw, &cached); err == nil {
			metrics.RenderCache.WithLabelValues("hit").Inc()
			return &cached, true, nil
		}
		logger.Warn("discarding undecodable cache entry", "key", key)
	}
	metrics.RenderCache.WithLabelValues("miss").Inc()

	tags := keys.Tags(rc)
	gen := c.backend.Generation(tags...)

	q, err = p.Price(ctx, item, rc)
	if err != nil {
		return nil, false, err
	}

	raw, err := json.Marshal(q)
	if err != nil {
		return nil, false, fmt.Errorf("failed to encode quote: %w", err)
	}
	// A purge during evaluation means q may reflect the old configuration.
	if !c.backend.SetIfCurrent(key, raw, tags, gen) {
		logger.Debug("quote not cached, tags invalidated during evaluation", "key", key)
	}
	return q, false, nil
}

// BaseKey identifies a line item's pricing inputs, excluding the context
// parts that the key builder appends.
func BaseKey(storeID string, item rules.LineItem, rc rules.RequestContext) string {
	key := fmt.Sprintf("price:%s:%s:%d:%s:%s",
		storeID, item.SKU, item.Quantity, item.UnitPrice.Amount.String(), item.UnitPrice.Currency)
	if item.CartID != "" {
		key += ":c." + item.CartID
	}
	if len(rc.Excluded) > 0 {
		key += ":x." + excludedDigest(rc)
	}
	return key
}

func excludedDigest(rc rules.RequestContext) string {
	ids := make([]string, 0, len(rc.Excluded))
	for id := range rc.Excluded {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return strings.Join(ids, ",")
}
