// Package cachekey derives render-cache keys and invalidation tags from the
// request context, so a combined price is never served across currencies
// (or, with user scoping, across users with different roles).
package cachekey

import (
	"crypto/sha256"
	"encoding/hex"
	"sort"
	"strings"
	"sync"

	"github.com/liamcoop/pricerules/rules"
)

const (
	// RulesTag is attached to every entry; purging it drops all cached prices
	// after a rule configuration change.
	RulesTag = "price_rules"

	currencyTagPrefix = "currency:"
)

// Builder computes keys for one request. Create a new Builder per request:
// keys are memoized for its lifetime.
type Builder struct {
	userScope bool
	storeID   string

	mu   sync.Mutex
	memo map[memoKey]string
}

type memoKey struct {
	base     string
	currency string
	user     string
}

// Option customizes a Builder
type Option func(*Builder)

// WithUserScope appends a digest of the user's roles and permissions to keys
func WithUserScope() Option {
	return func(b *Builder) { b.userScope = true }
}

// WithStore adds a store-scoped rules tag
func WithStore(storeID string) Option {
	return func(b *Builder) { b.storeID = storeID }
}

// New creates a Builder
func New(opts ...Option) *Builder {
	b := &Builder{memo: make(map[memoKey]string)}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Key returns base + ":" + currency, plus the user digest when user scoping
// is enabled.
func (b *Builder) Key(base string, rc rules.RequestContext) string {
	currency := rules.NormalizeCurrency(rc.Currency)
	mk := memoKey{base: base, currency: currency}
	if b.userScope {
		mk.user = userDigest(rc)
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if key, ok := b.memo[mk]; ok {
		return key
	}

	key := base + ":" + currency
	if mk.user != "" {
		key += ":u." + mk.user
	}
	b.memo[mk] = key
	return key
}

// Tags returns the invalidation tags for entries cached under rc
func (b *Builder) Tags(rc rules.RequestContext) []string {
	tags := []string{CurrencyTag(rc.Currency), RulesTag}
	if b.storeID != "" {
		tags = append(tags, StoreRulesTag(b.storeID))
	}
	return tags
}

// CurrencyTag is the tag shared by every entry priced in currency
func CurrencyTag(currency string) string {
	return currencyTagPrefix + rules.NormalizeCurrency(currency)
}

// StoreRulesTag is the tag purged when one store's rule settings change
func StoreRulesTag(storeID string) string {
	return RulesTag + ":" + storeID
}

// userDigest is a short stable hash of the sorted roles and permissions.
// Anonymous requests with no roles or permissions get an empty digest.
func userDigest(rc rules.RequestContext) string {
	if len(rc.Roles) == 0 && len(rc.Permissions) == 0 && rc.UserID == "" {
		return ""
	}

	roles := append([]string(nil), rc.Roles...)
	perms := append([]string(nil), rc.Permissions...)
	sort.Strings(roles)
	sort.Strings(perms)

	h := sha256.New()
	h.Write([]byte("user=" + rc.UserID + "\n"))
	h.Write([]byte("roles=" + strings.Join(roles, ",") + "\n"))
	h.Write([]byte("perms=" + strings.Join(perms, ",")))
	return hex.EncodeToString(h.Sum(nil))[:12]
}
