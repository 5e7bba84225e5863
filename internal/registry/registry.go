package registry

import (
	"context"
	"time"

	"github.com/aman-churiwal/x402-gateway/internal/apierror"
	"github.com/aman-churiwal/x402-gateway/internal/catalog"
	"github.com/aman-churiwal/x402-gateway/internal/models"
	"github.com/aman-churiwal/x402-gateway/internal/verifier"
)

// Store persists subscriber tier history. Supersede must be atomic with
// respect to concurrent ActiveRecord reads for the same subscriber: a
// reader sees the old record or the new one, never a torn state.
type Store interface {
	// ActiveRecord returns the newest non-superseded tier record, or nil
	// when the subscriber has none.
	ActiveRecord(ctx context.Context, subscriberID string) (*models.TierRecord, error)
	// Supersede marks the subscriber's current active record superseded
	// and installs rec as the new active record, as one atomic step.
	// Creates the subscriber on first contact.
	Supersede(ctx context.Context, rec *models.TierRecord) error
	// History returns the subscriber's tier records oldest-first; the
	// proof IDs in it are the accepted-proof lineage.
	History(ctx context.Context, subscriberID string) ([]models.TierRecord, error)
	// Subscribers lists all known subscribers.
	Subscribers(ctx context.Context) ([]models.Subscriber, error)
}

// Registry owns subscriber tier state. All tier mutations flow through
// ApplyProof; expiry is applied at read time so no background job is
// needed.
type Registry struct {
	verifier *verifier.Verifier
	catalog  *catalog.Catalog
	store    Store
	now      func() time.Time
}

func New(v *verifier.Verifier, cat *catalog.Catalog, store Store) *Registry {
	return &Registry{
		verifier: v,
		catalog:  cat,
		store:    store,
		now:      time.Now,
	}
}

// TierStatus resolves the subscriber's current tier. No record, an
// expired record, or a record naming a tier the catalog no longer
// carries all read as free.
func (r *Registry) TierStatus(ctx context.Context, subscriberID string) (models.TierStatus, error) {
	rec, err := r.store.ActiveRecord(ctx, subscriberID)
	if err != nil {
		return models.TierStatus{}, apierror.New(apierror.ReasonBackendUnavailable, "subscriber store: %v", err)
	}

	free := models.TierStatus{Tier: models.TierFree}
	if rec == nil {
		return free, nil
	}
	if r.now().After(rec.ExpiresAt) {
		return free, nil
	}

	tier, ok := models.ParseTier(rec.Tier)
	if !ok {
		return free, nil
	}

	return models.TierStatus{
		Tier:      tier,
		StartedAt: rec.StartedAt,
		ExpiresAt: rec.ExpiresAt,
	}, nil
}

// ApplyProof verifies a payment proof and, on acceptance, activates the
// bought tier: expiry is now plus the catalog period, and the previous
// active record is superseded in the same atomic step. A rejected proof
// changes nothing.
func (r *Registry) ApplyProof(ctx context.Context, token string) (models.TierStatus, error) {
	receipt, err := r.verifier.Verify(ctx, token)
	if err != nil {
		return models.TierStatus{}, err
	}

	def, ok := r.catalog.Lookup(receipt.Tier)
	if !ok {
		return models.TierStatus{}, apierror.New(apierror.ReasonMalformed, "tier %s not in catalog", receipt.Tier)
	}

	now := r.now()
	rec := &models.TierRecord{
		SubscriberID: receipt.Subscriber,
		Tier:         receipt.Tier.String(),
		ProofID:      receipt.ProofID,
		StartedAt:    now,
		ExpiresAt:    now.Add(time.Duration(def.PeriodDays) * 24 * time.Hour),
	}

	if err := r.store.Supersede(ctx, rec); err != nil {
		return models.TierStatus{}, apierror.New(apierror.ReasonBackendUnavailable, "subscriber store: %v", err)
	}

	return models.TierStatus{
		Tier:      receipt.Tier,
		StartedAt: rec.StartedAt,
		ExpiresAt: rec.ExpiresAt,
	}, nil
}

// Lineage returns the ordered proof IDs accepted for a subscriber.
func (r *Registry) Lineage(ctx context.Context, subscriberID string) ([]string, error) {
	records, err := r.store.History(ctx, subscriberID)
	if err != nil {
		return nil, apierror.New(apierror.ReasonBackendUnavailable, "subscriber store: %v", err)
	}

	lineage := make([]string, 0, len(records))
	for _, rec := range records {
		lineage = append(lineage, rec.ProofID)
	}
	return lineage, nil
}

// History exposes the raw tier records for the admin surface.
func (r *Registry) History(ctx context.Context, subscriberID string) ([]models.TierRecord, error) {
	records, err := r.store.History(ctx, subscriberID)
	if err != nil {
		return nil, apierror.New(apierror.ReasonBackendUnavailable, "subscriber store: %v", err)
	}
	return records, nil
}

// Subscribers exposes the subscriber list for the admin surface.
func (r *Registry) Subscribers(ctx context.Context) ([]models.Subscriber, error) {
	subs, err := r.store.Subscribers(ctx)
	if err != nil {
		return nil, apierror.New(apierror.ReasonBackendUnavailable, "subscriber store: %v", err)
	}
	return subs, nil
}
