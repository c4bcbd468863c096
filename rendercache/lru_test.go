package rendercache

import (
	"fmt"
	"testing"
)

// TestLRUGetSet verifies stored values are returned as copies
func TestLRUGetSet(t *testing.T) {
	c, err := NewLRU(8)
	if err != nil {
		t.Fatalf("NewLRU() failed: %v", err)
	}

	value := []byte("quote")
	c.Set("k", value, []string{"t"})
	value[0] = 'X'

	got, ok := c.Get("k")
	if !ok || string(got) != "quote" {
		t.Errorf("Get(k) = %q, %v; want quote", got, ok)
	}
	if _, ok := c.Get("missing"); ok {
		t.Error("Get(missing) should miss")
	}
}

// TestLRUInvalidateTags verifies only entries carrying the tag are dropped
func TestLRUInvalidateTags(t *testing.T) {
	c, _ := NewLRU(8)
	c.Set("usd-1", []byte("1"), []string{"currency:USD", "rules"})
	c.Set("usd-2", []byte("2"), []string{"currency:USD", "rules"})
	c.Set("eur-1", []byte("3"), []string{"currency:EUR", "rules"})

	if n := c.InvalidateTags("currency:USD"); n != 2 {
		t.Errorf("InvalidateTags(USD) = %d, want 2", n)
	}
	if _, ok := c.Get("usd-1"); ok {
		t.Error("usd-1 should be gone")
	}
	if _, ok := c.Get("eur-1"); !ok {
		t.Error("eur-1 should remain")
	}

	if n := c.InvalidateTags("rules"); n != 1 {
		t.Errorf("InvalidateTags(rules) = %d, want 1", n)
	}
	if c.Len() != 0 {
		t.Errorf("Len() = %d, want 0", c.Len())
	}
	if n := c.InvalidateTags("unknown"); n != 0 {
		t.Errorf("InvalidateTags(unknown) = %d, want 0", n)
	}
}

// TestLRURetag verifies overwriting a key replaces its tags
func TestLRURetag(t *testing.T) {
	c, _ := NewLRU(8)
	c.Set("k", []byte("old"), []string{"a"})
	c.Set("k", []byte("new"), []string{"b"})

	if n := c.InvalidateTags("a"); n != 0 {
		t.Errorf("InvalidateTags(a) = %d, want 0 after retag", n)
	}
	if n := c.InvalidateTags("b"); n != 1 {
		t.Errorf("InvalidateTags(b) = %d, want 1", n)
	}
}

// TestLRUEviction verifies the size bound and that the tag index stays bounded
func TestLRUEviction(t *testing.T) {
	c, _ := NewLRU(4)
	for i := 0; i < 100; i++ {
		c.Set(fmt.Sprintf("k%d", i), []byte("v"), []string{"all"})
	}

	if c.Len() != 4 {
		t.Errorf("Len() = %d, want 4", c.Len())
	}
	if c.indexed > 2*4 {
		t.Errorf("tag index holds %d keys, want at most 8", c.indexed)
	}
	if _, ok := c.Get("k0"); ok {
		t.Error("k0 should have been evicted")
	}
	if n := c.InvalidateTags("all"); n != 4 {
		t.Errorf("InvalidateTags(all) = %d, want 4", n)
	}
}

// TestNewLRUInvalidSize verifies a non-positive size is rejected
func TestNewLRUInvalidSize(t *testing.T) {
	if _, err := NewLRU(0); err == nil {
		t.Error("NewLRU(0) should fail")
	}
}

// TestLRUSetIfCurrent verifies values computed before an invalidation of
// one of their tags are not stored
func TestLRUSetIfCurrent(t *testing.T) {
	c, _ := NewLRU(8)
	tags := []string{"currency:USD", "price_rules:main"}

	gen := c.Generation(tags...)
	if !c.SetIfCurrent("fresh", []byte("1"), tags, gen) {
		t.Fatal("SetIfCurrent() with an unchanged generation should store")
	}

	gen = c.Generation(tags...)
	c.InvalidateTags("price_rules:main")
	if c.SetIfCurrent("stale", []byte("2"), tags, gen) {
		t.Error("SetIfCurrent() after an invalidation should not store")
	}
	if _, ok := c.Get("stale"); ok {
		t.Error("Get(stale) should miss")
	}

	// Unrelated tags do not move the generation.
	gen = c.Generation(tags...)
	c.InvalidateTags("currency:EUR")
	if !c.SetIfCurrent("other", []byte("3"), tags, gen) {
		t.Error("SetIfCurrent() should ignore invalidations of other tags")
	}
}
