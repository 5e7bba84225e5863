package models

// Tier is a named pricing plan. Tagged enum so switches over plans are
// exhaustiveness-checkable instead of comparing ad hoc strings.
type Tier int

const (
	TierFree Tier = iota
	TierBasic
	TierPro
)

var tierNames = map[Tier]string{
	TierFree:  "free",
	TierBasic: "basic",
	TierPro:   "pro",
}

func (t Tier) String() string {
	if name, ok := tierNames[t]; ok {
		return name
	}
	return "unknown"
}

// ParseTier maps a wire-level tier name to its enum value.
func ParseTier(name string) (Tier, bool) {
	for t, n := range tierNames {
		if n == name {
			return t, true
		}
	}
	return TierFree, false
}

// UnlimitedQuota is the sentinel limit for tiers with no usage bound.
const UnlimitedQuota int64 = -1

// TierDefinition is a static catalog entry. Loaded once at process start,
// never mutated afterwards.
type TierDefinition struct {
	Tier       Tier
	Price      string // decimal string, e.g. "10"; "0" for free
	Currency   string // e.g. "USDC"
	PeriodDays int    // billing period length
	Limit      int64  // requests per period, UnlimitedQuota for no bound
}

// Unbounded reports whether the tier has no quota limit.
func (d TierDefinition) Unbounded() bool {
	return d.Limit == UnlimitedQuota
}
