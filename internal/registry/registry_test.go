package registry

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aman-churiwal/x402-gateway/internal/apierror"
	"github.com/aman-churiwal/x402-gateway/internal/catalog"
	"github.com/aman-churiwal/x402-gateway/internal/models"
	"github.com/aman-churiwal/x402-gateway/internal/verifier"
)

const testSecret = "trust-root-test-secret"

func newTestRegistry() *Registry {
	cat := catalog.Default()
	ver := verifier.New(testSecret, cat, verifier.NewMemoryReplayCache())
	return New(ver, cat, NewMemoryStore())
}

func mintProof(t *testing.T, subscriber string, tier models.Tier) string {
	t.Helper()
	def, ok := catalog.Default().Lookup(tier)
	require.True(t, ok)

	now := time.Now()
	token, err := verifier.SignProof(testSecret, subscriber, uuid.NewString(), def, now, now.Add(time.Hour))
	require.NoError(t, err)
	return token
}

func TestTierStatusDefaultsToFree(t *testing.T) {
	r := newTestRegistry()

	status, err := r.TierStatus(context.Background(), "nobody")
	require.NoError(t, err)
	assert.Equal(t, models.TierFree, status.Tier)
	assert.True(t, status.StartedAt.IsZero())
}

func TestApplyProofActivatesTier(t *testing.T) {
	r := newTestRegistry()
	ctx := context.Background()

	status, err := r.ApplyProof(ctx, mintProof(t, "alice", models.TierBasic))
	require.NoError(t, err)
	assert.Equal(t, models.TierBasic, status.Tier)
	assert.WithinDuration(t, time.Now().Add(30*24*time.Hour), status.ExpiresAt, time.Minute)

	got, err := r.TierStatus(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, models.TierBasic, got.Tier)
	assert.Equal(t, status.StartedAt, got.StartedAt)
}

func TestApplyProofRejectedChangesNothing(t *testing.T) {
	r := newTestRegistry()
	ctx := context.Background()

	def, _ := catalog.Default().Lookup(models.TierBasic)
	now := time.Now()
	forged, err := verifier.SignProof("wrong-root", "alice", uuid.NewString(), def, now, now.Add(time.Hour))
	require.NoError(t, err)

	_, err = r.ApplyProof(ctx, forged)
	require.Error(t, err)
	assert.Equal(t, apierror.ReasonInvalid, apierror.ReasonOf(err))

	status, err := r.TierStatus(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, models.TierFree, status.Tier)

	history, err := r.History(ctx, "alice")
	require.NoError(t, err)
	assert.Empty(t, history)
}

func TestApplyProofReplayRejected(t *testing.T) {
	r := newTestRegistry()
	ctx := context.Background()
	token := mintProof(t, "alice", models.TierBasic)

	_, err := r.ApplyProof(ctx, token)
	require.NoError(t, err)

	_, err = r.ApplyProof(ctx, token)
	require.Error(t, err)
	assert.Equal(t, apierror.ReasonReplayed, apierror.ReasonOf(err))

	status, err := r.TierStatus(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, models.TierBasic, status.Tier)
}

func TestExpiredTierReadsAsFree(t *testing.T) {
	r := newTestRegistry()
	ctx := context.Background()

	_, err := r.ApplyProof(ctx, mintProof(t, "alice", models.TierBasic))
	require.NoError(t, err)

	r.now = func() time.Time { return time.Now().Add(31 * 24 * time.Hour) }

	status, err := r.TierStatus(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, models.TierFree, status.Tier)
	assert.True(t, status.StartedAt.IsZero())
}

func TestUpgradeSupersedesPriorTier(t *testing.T) {
	r := newTestRegistry()
	ctx := context.Background()

	_, err := r.ApplyProof(ctx, mintProof(t, "alice", models.TierBasic))
	require.NoError(t, err)

	status, err := r.ApplyProof(ctx, mintProof(t, "alice", models.TierPro))
	require.NoError(t, err)
	assert.Equal(t, models.TierPro, status.Tier)

	history, err := r.History(ctx, "alice")
	require.NoError(t, err)
	require.Len(t, history, 2)
	assert.NotNil(t, history[0].SupersededAt)
	assert.Nil(t, history[1].SupersededAt)
	assert.Equal(t, "pro", history[1].Tier)

	lineage, err := r.Lineage(ctx, "alice")
	require.NoError(t, err)
	require.Len(t, lineage, 2)
	assert.NotEqual(t, lineage[0], lineage[1])
}

func TestConcurrentApplyProofKeepsOneActive(t *testing.T) {
	r := newTestRegistry()
	ctx := context.Background()

	const workers = 8
	tokens := make([]string, workers)
	for i := range tokens {
		tokens[i] = mintProof(t, "alice", models.TierBasic)
	}

	var wg sync.WaitGroup
	for _, token := range tokens {
		wg.Add(1)
		go func(tok string) {
			defer wg.Done()
			if _, err := r.ApplyProof(ctx, tok); err != nil {
				t.Error(err)
			}
		}(token)
	}
	wg.Wait()

	history, err := r.History(ctx, "alice")
	require.NoError(t, err)
	require.Len(t, history, workers)

	active := 0
	for _, rec := range history {
		if rec.SupersededAt == nil {
			active++
		}
	}
	assert.Equal(t, 1, active)
}

func TestConcurrentReadsDuringUpgradeSeeOldOrNew(t *testing.T) {
	r := newTestRegistry()
	ctx := context.Background()

	_, err := r.ApplyProof(ctx, mintProof(t, "alice", models.TierBasic))
	require.NoError(t, err)

	stop := make(chan struct{})
	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				select {
				case <-stop:
					return
				default:
				}

				status, err := r.TierStatus(ctx, "alice")
				if err != nil {
					t.Error(err)
					return
				}
				// Readers racing the upgrade see the old tier or the new
				// one, never anything else.
				if status.Tier != models.TierBasic && status.Tier != models.TierPro {
					t.Errorf("observed tier %s during upgrade", status.Tier)
					return
				}
			}
		}()
	}

	_, err = r.ApplyProof(ctx, mintProof(t, "alice", models.TierPro))
	close(stop)
	wg.Wait()
	require.NoError(t, err)

	status, err := r.TierStatus(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, models.TierPro, status.Tier)
}

// failingStore errors on every call.
type failingStore struct{}

func (failingStore) ActiveRecord(ctx context.Context, subscriberID string) (*models.TierRecord, error) {
	return nil, errors.New("connection refused")
}

func (failingStore) Supersede(ctx context.Context, rec *models.TierRecord) error {
	return errors.New("connection refused")
}

func (failingStore) History(ctx context.Context, subscriberID string) ([]models.TierRecord, error) {
	return nil, errors.New("connection refused")
}

func (failingStore) Subscribers(ctx context.Context) ([]models.Subscriber, error) {
	return nil, errors.New("connection refused")
}

func TestStoreFailuresClassifiedAsBackendUnavailable(t *testing.T) {
	cat := catalog.Default()
	ver := verifier.New(testSecret, cat, verifier.NewMemoryReplayCache())
	r := New(ver, cat, failingStore{})
	ctx := context.Background()

	_, err := r.TierStatus(ctx, "alice")
	assert.Equal(t, apierror.ReasonBackendUnavailable, apierror.ReasonOf(err))

	_, err = r.History(ctx, "alice")
	assert.Equal(t, apierror.ReasonBackendUnavailable, apierror.ReasonOf(err))

	_, err = r.Subscribers(ctx)
	assert.Equal(t, apierror.ReasonBackendUnavailable, apierror.ReasonOf(err))

	_, err = r.Lineage(ctx, "alice")
	assert.Equal(t, apierror.ReasonBackendUnavailable, apierror.ReasonOf(err))
}

func TestSubscribersListed(t *testing.T) {
	r := newTestRegistry()
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		id := fmt.Sprintf("sub-%d", i)
		_, err := r.ApplyProof(ctx, mintProof(t, id, models.TierBasic))
		require.NoError(t, err)
	}

	subs, err := r.Subscribers(ctx)
	require.NoError(t, err)
	require.Len(t, subs, 3)
	assert.Equal(t, "sub-0", subs[0].ID)
	assert.False(t, subs[0].CreatedAt.IsZero())
}
