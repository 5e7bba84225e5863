package models

// Usage is a snapshot of one usage counter, keyed by subscriber and
// billing period. Counters for ended periods are retained for audit and
// never mutated again.
type Usage struct {
	SubscriberID string `json:"subscriber_id"`
	PeriodKey    string `json:"period_key"`
	Count        int64  `json:"count"`
	// Limit is the tier limit snapshotted when the counter was created,
	// UnlimitedQuota for unbounded tiers.
	Limit int64 `json:"limit"`
}

// Remaining returns how many requests are left in the period, or
// UnlimitedQuota when the tier has no bound.
func (u Usage) Remaining() int64 {
	if u.Limit == UnlimitedQuota {
		return UnlimitedQuota
	}
	r := u.Limit - u.Count
	if r < 0 {
		r = 0
	}
	return r
}
