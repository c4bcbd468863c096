package pricing

import (
	"context"
	"strings"
	"sync"
	"testing"

	"github.com/liamcoop/pricerules/cachekey"
	"github.com/liamcoop/pricerules/rendercache"
	"github.com/liamcoop/pricerules/rules"
)

// countingRule counts how often it is applied
type countingRule struct {
	id    string
	adj   *rules.Adjustment
	mu    sync.Mutex
	calls int
}

func (c *countingRule) ID() string    { return c.id }
func (c *countingRule) Label() string { return c.id }
func (c *countingRule) Apply(context.Context, rules.LineItem, rules.RequestContext, rules.Parameters) (*rules.Adjustment, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls++
	return c.adj, nil
}

func newCache(t *testing.T) *rendercache.LRU {
	t.Helper()
	c, err := rendercache.NewLRU(64)
	if err != nil {
		t.Fatalf("NewLRU() failed: %v", err)
	}
	return c
}

// TestCachedPricerHit verifies the second identical request is served from the cache
func TestCachedPricerHit(t *testing.T) {
	rule := &countingRule{id: "ten", adj: pct("10")}
	p := newTestPipeline(t, enabled("ten"), rule)
	pricer := NewCachedPricer(newCache(t))

	item := rules.LineItem{SKU: "A", Quantity: 1, UnitPrice: usd("100")}
	rc := rules.RequestContext{Currency: "USD"}

	first, hit, err := pricer.Price(context.Background(), p, cachekey.New(), item, rc)
	if err != nil || hit {
		t.Fatalf("first Price() = hit %v, err %v; want a miss", hit, err)
	}
	second, hit, err := pricer.Price(context.Background(), p, cachekey.New(), item, rc)
	if err != nil || !hit {
		t.Fatalf("second Price() = hit %v, err %v; want a hit", hit, err)
	}

	if rule.calls != 1 {
		t.Errorf("rule applied %d times, want 1", rule.calls)
	}
	if !second.Effective.Price.Equal(first.Effective.Price) {
		t.Errorf("cached price = %s, want %s", second.Effective.Price, first.Effective.Price)
	}
}

// TestCachedPricerCurrencyIsolation verifies prices are never shared across currencies
func TestCachedPricerCurrencyIsolation(t *testing.T) {
	rule := &countingRule{id: "ten", adj: pct("10")}
	p := newTestPipeline(t, enabled("ten"), rule)
	cache := newCache(t)
	pricer := NewCachedPricer(cache)

	usdItem := rules.LineItem{SKU: "A", Quantity: 1, UnitPrice: usd("100")}
	eurItem := rules.LineItem{SKU: "A", Quantity: 1, UnitPrice: rules.MustMoney("100", "EUR")}

	if _, _, err := pricer.Price(context.Background(), p, cachekey.New(), usdItem, rules.RequestContext{Currency: "USD"}); err != nil {
		t.Fatalf("Price(USD) failed: %v", err)
	}
	q, hit, err := pricer.Price(context.Background(), p, cachekey.New(), eurItem, rules.RequestContext{Currency: "EUR"})
	if err != nil {
		t.Fatalf("Price(EUR) failed: %v", err)
	}
	if hit {
		t.Error("EUR request must not hit the USD entry")
	}
	if q.Effective.Price.Currency != "EUR" {
		t.Errorf("currency = %s, want EUR", q.Effective.Price.Currency)
	}

	removed := cache.InvalidateTags(cachekey.CurrencyTag("USD"))
	if removed != 1 || cache.Len() != 1 {
		t.Errorf("InvalidateTags(USD) removed %d, left %d; want 1 and 1", removed, cache.Len())
	}
}

// TestCachedPricerErrorsNotCached verifies failed quotes are recomputed
func TestCachedPricerErrorsNotCached(t *testing.T) {
	p := newTestPipeline(t, enabled("broken"), failingRule{id: "broken"})
	cache := newCache(t)
	pricer := NewCachedPricer(cache)

	item := rules.LineItem{SKU: "A", Quantity: 1, UnitPrice: usd("100")}
	for i := 0; i < 2; i++ {
		if _, hit, err := pricer.Price(context.Background(), p, cachekey.New(), item, rules.RequestContext{Currency: "USD"}); err == nil || hit {
			t.Fatalf("Price() = hit %v, err %v; want an uncached error", hit, err)
		}
	}
	if cache.Len() != 0 {
		t.Errorf("cache holds %d entries, want 0", cache.Len())
	}
}

// TestBaseKey verifies exclusions are part of the key in a stable order
func TestBaseKey(t *testing.T) {
	item := rules.LineItem{SKU: "A", Quantity: 3, UnitPrice: usd("9.99")}

	plain := BaseKey("main", item, rules.RequestContext{Currency: "USD"})
	if plain != "price:main:A:3:9.99:USD" {
		t.Errorf("BaseKey() = %s", plain)
	}

	x1 := BaseKey("main", item, rules.RequestContext{}.Exclude("b", "a"))
	x2 := BaseKey("main", item, rules.RequestContext{}.Exclude("a", "b"))
	if x1 != x2 || !strings.HasSuffix(x1, ":x.a,b") {
		t.Errorf("BaseKey() with exclusions = %s and %s", x1, x2)
	}

	cartA := item
	cartA.CartID = "cart-a"
	cartB := item
	cartB.CartID = "cart-b"
	a := BaseKey("main", cartA, rules.RequestContext{})
	b := BaseKey("main", cartB, rules.RequestContext{})
	if a == b || a == plain || a != "price:main:A:3:9.99:USD:c.cart-a" {
		t.Errorf("BaseKey() per cart = %s and %s", a, b)
	}
}

// gatedRule blocks its first application until release is closed
type gatedRule struct {
	id      string
	adj     *rules.Adjustment
	entered chan struct{}
	release chan struct{}
	once    sync.Once
}

func (g *gatedRule) ID() string    { return g.id }
func (g *gatedRule) Label() string { return g.id }
func (g *gatedRule) Apply(context.Context, rules.LineItem, rules.RequestContext, rules.Parameters) (*rules.Adjustment, error) {
	g.once.Do(func() { close(g.entered) })
	<-g.release
	return g.adj, nil
}

// TestCachedPricerDropsQuoteInvalidatedInFlight verifies a quote computed
// while its store's rules were purged is not cached
func TestCachedPricerDropsQuoteInvalidatedInFlight(t *testing.T) {
	settings := rules.NewInMemorySettingsStore(rules.Setting{RuleID: "half", Enabled: true})
	registry := rules.NewRegistry(settings)
	rule := &gatedRule{id: "half", adj: pct("50"), entered: make(chan struct{}), release: make(chan struct{})}
	if err := registry.Register(rule); err != nil {
		t.Fatalf("Register() failed: %v", err)
	}
	p := NewPipeline("main", registry)
	cache := newCache(t)
	pricer := NewCachedPricer(cache)

	item := rules.LineItem{SKU: "A", Quantity: 1, UnitPrice: usd("100")}
	rc := rules.RequestContext{Currency: "USD"}
	keys := func() *cachekey.Builder { return cachekey.New(cachekey.WithStore("main")) }

	done := make(chan error, 1)
	go func() {
		_, _, err := pricer.Price(context.Background(), p, keys(), item, rc)
		done <- err
	}()

	<-rule.entered
	if err := settings.Save(context.Background(), rules.Setting{RuleID: "half", Enabled: false}); err != nil {
		t.Fatalf("Save() failed: %v", err)
	}
	registry.Invalidate()
	cache.InvalidateTags(cachekey.StoreRulesTag("main"))
	close(rule.release)

	if err := <-done; err != nil {
		t.Fatalf("in-flight Price() failed: %v", err)
	}

	q, hit, err := pricer.Price(context.Background(), p, keys(), item, rc)
	if err != nil {
		t.Fatalf("Price() failed: %v", err)
	}
	if hit {
		t.Error("quote computed before the purge should not be served")
	}
	if !q.Effective.Price.Equal(usd("100")) {
		t.Errorf("Price = %s, want 100 USD with the rule disabled", q.Effective.Price)
	}
}
