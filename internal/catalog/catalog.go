package catalog

import (
	"fmt"
	"strings"

	"github.com/aman-churiwal/x402-gateway/internal/models"
)

// Catalog is the static tier catalog. Built once at process start and
// read-only afterwards, so lookups need no locking.
type Catalog struct {
	defs  map[models.Tier]models.TierDefinition
	order []models.Tier
}

// New validates the configured definitions and builds the catalog.
// The free tier must be present; it is the fallback for subscribers
// without an active record.
func New(defs []models.TierDefinition) (*Catalog, error) {
	c := &Catalog{defs: make(map[models.Tier]models.TierDefinition)}

	for _, def := range defs {
		if _, dup := c.defs[def.Tier]; dup {
			return nil, fmt.Errorf("duplicate tier %q in catalog", def.Tier)
		}
		if def.PeriodDays <= 0 {
			return nil, fmt.Errorf("tier %q: period must be positive, got %d", def.Tier, def.PeriodDays)
		}
		if def.Limit < 0 && def.Limit != models.UnlimitedQuota {
			return nil, fmt.Errorf("tier %q: invalid limit %d", def.Tier, def.Limit)
		}
		if def.Currency == "" {
			return nil, fmt.Errorf("tier %q: currency required", def.Tier)
		}
		c.defs[def.Tier] = def
		c.order = append(c.order, def.Tier)
	}

	if _, ok := c.defs[models.TierFree]; !ok {
		return nil, fmt.Errorf("catalog must define the free tier")
	}

	return c, nil
}

// Default returns the catalog the service ships with: free (10/month),
// basic ($10 USDC, 1000/30d), pro ($50 USDC, unlimited/30d).
func Default() *Catalog {
	c, err := New([]models.TierDefinition{
		{Tier: models.TierFree, Price: "0", Currency: "USDC", PeriodDays: 30, Limit: 10},
		{Tier: models.TierBasic, Price: "10", Currency: "USDC", PeriodDays: 30, Limit: 1000},
		{Tier: models.TierPro, Price: "50", Currency: "USDC", PeriodDays: 30, Limit: models.UnlimitedQuota},
	})
	if err != nil {
		panic(err) // static data, cannot fail
	}
	return c
}

// Lookup returns the definition for a tier.
func (c *Catalog) Lookup(t models.Tier) (models.TierDefinition, bool) {
	def, ok := c.defs[t]
	return def, ok
}

// ByName resolves a wire-level tier name.
func (c *Catalog) ByName(name string) (models.TierDefinition, bool) {
	t, ok := models.ParseTier(strings.ToLower(strings.TrimSpace(name)))
	if !ok {
		return models.TierDefinition{}, false
	}
	return c.Lookup(t)
}

// All returns the definitions in configuration order.
func (c *Catalog) All() []models.TierDefinition {
	out := make([]models.TierDefinition, 0, len(c.order))
	for _, t := range c.order {
		out = append(out, c.defs[t])
	}
	return out
}

// PriceMatches reports whether a proof's amount and currency match the
// catalog entry for the tier. Prices are exact decimal strings issued by
// our own checkout flow, so string equality is the comparison.
func (c *Catalog) PriceMatches(t models.Tier, amount, currency string) bool {
	def, ok := c.defs[t]
	if !ok {
		return false
	}
	return def.Price == strings.TrimSpace(amount) &&
		strings.EqualFold(def.Currency, strings.TrimSpace(currency))
}

// PricingEntry is the wire rendering of one catalog tier, shared by the
// discovery document and quota denial responses.
type PricingEntry struct {
	Tier       string `json:"tier"`
	Price      string `json:"price"`
	Currency   string `json:"currency"`
	PeriodDays int    `json:"period_days"`
	Limit      int64  `json:"limit"` // -1 means unlimited
}

// Pricing renders the catalog for responses.
func (c *Catalog) Pricing() []PricingEntry {
	out := make([]PricingEntry, 0, len(c.order))
	for _, def := range c.All() {
		out = append(out, PricingEntry{
			Tier:       def.Tier.String(),
			Price:      def.Price,
			Currency:   def.Currency,
			PeriodDays: def.PeriodDays,
			Limit:      def.Limit,
		})
	}
	return out
}
