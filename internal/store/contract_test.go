package store_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/kiranshivaraju/pdfgate/internal/store"
	"github.com/kiranshivaraju/pdfgate/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// runContract exercises behaviour every Store implementation must share.
func runContract(t *testing.T, newStore func(t *testing.T) store.Store) {
	t.Run("CreateAndGetByHash", func(t *testing.T) { testCreateAndGetByHash(t, newStore(t)) })
	t.Run("DuplicateHash", func(t *testing.T) { testDuplicateHash(t, newStore(t)) })
	t.Run("InactiveKeyNotFound", func(t *testing.T) { testInactiveKeyNotFound(t, newStore(t)) })
	t.Run("ExternalIDLinkAndLookup", func(t *testing.T) { testExternalIDLink(t, newStore(t)) })
	t.Run("UpdatePlanByEmail", func(t *testing.T) { testUpdatePlanByEmail(t, newStore(t)) })
	t.Run("ReplaceAPIKey", func(t *testing.T) { testReplaceAPIKey(t, newStore(t)) })
	t.Run("DeactivateByPrefix", func(t *testing.T) { testDeactivateByPrefix(t, newStore(t)) })
	t.Run("ListAPIKeys", func(t *testing.T) { testListAPIKeys(t, newStore(t)) })
	t.Run("UsageCountsKeyedAndAnonymousSeparately", func(t *testing.T) { testUsageNamespaces(t, newStore(t)) })
	t.Run("UsageBucketsByMonth", func(t *testing.T) { testUsageMonths(t, newStore(t)) })
	t.Run("RecordUsageIfUnder", func(t *testing.T) { testRecordUsageIfUnder(t, newStore(t)) })
	t.Run("RecordUsageIfUnderConcurrent", func(t *testing.T) { testRecordUsageIfUnderConcurrent(t, newStore(t)) })
}

func strPtr(s string) *string { return &s }

func newKey(hash string, p models.Plan) *models.APIKey {
	return &models.APIKey{
		ID:        uuid.New(),
		KeyHash:   hash,
		KeyPrefix: "epf_" + hash[:8],
		Plan:      p,
		Active:    true,
		CreatedAt: time.Now().UTC().Truncate(time.Microsecond),
	}
}

func keyedPrincipal(hash string) models.Principal {
	return models.Principal{Kind: models.PrincipalKeyed, Identity: hash, Plan: models.PlanStarter, ClientIP: "10.0.0.1"}
}

func anonPrincipal(ip string) models.Principal {
	return models.Principal{Kind: models.PrincipalAnonymous, Identity: ip, Plan: models.PlanFree, ClientIP: ip}
}

func usageEvent(p models.Principal, month string) *models.UsageEvent {
	ev := &models.UsageEvent{
		ID:        uuid.New(),
		IPAddress: p.ClientIP,
		Endpoint:  "/api/v1/merge",
		Timestamp: time.Now().UTC().Truncate(time.Microsecond),
		MonthKey:  month,
	}
	if p.Keyed() {
		ev.KeyHash = strPtr(p.Identity)
	}
	return ev
}

func testCreateAndGetByHash(t *testing.T, s store.Store) {
	ctx := context.Background()
	key := newKey("hash-aaaaaaaa", models.PlanPro)
	key.Email = strPtr("dev@example.com")
	require.NoError(t, s.CreateAPIKey(ctx, key))

	got, err := s.GetActiveAPIKeyByHash(ctx, "hash-aaaaaaaa")
	require.NoError(t, err)
	assert.Equal(t, key.ID, got.ID)
	assert.Equal(t, models.PlanPro, got.Plan)
	assert.Equal(t, key.KeyPrefix, got.KeyPrefix)
	require.NotNil(t, got.Email)
	assert.Equal(t, "dev@example.com", *got.Email)
	assert.Nil(t, got.ExternalID)
	assert.True(t, got.Active)

	_, err = s.GetActiveAPIKeyByHash(ctx, "hash-missing")
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func testDuplicateHash(t *testing.T, s store.Store) {
	ctx := context.Background()
	require.NoError(t, s.CreateAPIKey(ctx, newKey("hash-dupdupdup", models.PlanFree)))

	err := s.CreateAPIKey(ctx, newKey("hash-dupdupdup", models.PlanFree))
	assert.ErrorIs(t, err, store.ErrDuplicateKey)
}

func testInactiveKeyNotFound(t *testing.T, s store.Store) {
	ctx := context.Background()
	key := newKey("hash-inactive1", models.PlanStarter)
	key.Active = false
	require.NoError(t, s.CreateAPIKey(ctx, key))

	_, err := s.GetActiveAPIKeyByHash(ctx, "hash-inactive1")
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func testExternalIDLink(t *testing.T, s store.Store) {
	ctx := context.Background()
	key := newKey("hash-linkable", models.PlanPro)
	key.Email = strPtr("paid@example.com")
	require.NoError(t, s.CreateAPIKey(ctx, key))

	_, err := s.GetActiveAPIKeyByExternalID(ctx, "uid-1")
	assert.ErrorIs(t, err, store.ErrNotFound)

	n, err := s.LinkExternalIDByEmail(ctx, "paid@example.com", "uid-1")
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	got, err := s.GetActiveAPIKeyByExternalID(ctx, "uid-1")
	require.NoError(t, err)
	assert.Equal(t, key.ID, got.ID)

	// Already linked rows are left alone.
	n, err = s.LinkExternalIDByEmail(ctx, "paid@example.com", "uid-2")
	require.NoError(t, err)
	assert.Equal(t, int64(0), n)
}

func testUpdatePlanByEmail(t *testing.T, s store.Store) {
	ctx := context.Background()
	active := newKey("hash-planactive", models.PlanFree)
	active.Email = strPtr("up@example.com")
	retired := newKey("hash-planretired", models.PlanFree)
	retired.Email = strPtr("up@example.com")
	retired.Active = false
	require.NoError(t, s.CreateAPIKey(ctx, active))
	require.NoError(t, s.CreateAPIKey(ctx, retired))

	has, err := s.HasActiveAPIKeyForEmail(ctx, "up@example.com")
	require.NoError(t, err)
	assert.True(t, has)

	n, err := s.UpdatePlanByEmail(ctx, "up@example.com", models.PlanBusiness)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n, "only active rows change")

	got, err := s.GetActiveAPIKeyByHash(ctx, "hash-planactive")
	require.NoError(t, err)
	assert.Equal(t, models.PlanBusiness, got.Plan)

	has, err = s.HasActiveAPIKeyForEmail(ctx, "nobody@example.com")
	require.NoError(t, err)
	assert.False(t, has)
}

func testReplaceAPIKey(t *testing.T, s store.Store) {
	ctx := context.Background()
	old := newKey("hash-oldoldold", models.PlanPro)
	old.ExternalID = strPtr("uid-r")
	require.NoError(t, s.CreateAPIKey(ctx, old))

	replacement := newKey("hash-newnewnew", models.PlanPro)
	replacement.ExternalID = strPtr("uid-r")
	require.NoError(t, s.ReplaceAPIKey(ctx, old.ID, replacement))

	_, err := s.GetActiveAPIKeyByHash(ctx, "hash-oldoldold")
	assert.ErrorIs(t, err, store.ErrNotFound)

	got, err := s.GetActiveAPIKeyByExternalID(ctx, "uid-r")
	require.NoError(t, err)
	assert.Equal(t, replacement.ID, got.ID)

	// Replacing an already inactive key fails and inserts nothing.
	err = s.ReplaceAPIKey(ctx, old.ID, newKey("hash-third333", models.PlanPro))
	assert.ErrorIs(t, err, store.ErrNotFound)
	_, err = s.GetActiveAPIKeyByHash(ctx, "hash-third333")
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func testDeactivateByPrefix(t *testing.T, s store.Store) {
	ctx := context.Background()
	key := newKey("hash-revokeme", models.PlanStarter)
	require.NoError(t, s.CreateAPIKey(ctx, key))

	n, err := s.DeactivateAPIKeyByPrefix(ctx, key.KeyPrefix)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	_, err = s.GetActiveAPIKeyByHash(ctx, "hash-revokeme")
	assert.ErrorIs(t, err, store.ErrNotFound)

	_, err = s.DeactivateAPIKeyByPrefix(ctx, key.KeyPrefix)
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func testListAPIKeys(t *testing.T, s store.Store) {
	ctx := context.Background()
	first := newKey("hash-list0001", models.PlanFree)
	first.CreatedAt = time.Now().UTC().Add(-time.Hour).Truncate(time.Microsecond)
	second := newKey("hash-list0002", models.PlanPro)
	require.NoError(t, s.CreateAPIKey(ctx, first))
	require.NoError(t, s.CreateAPIKey(ctx, second))

	keys, err := s.ListAPIKeys(ctx)
	require.NoError(t, err)
	require.Len(t, keys, 2)
	assert.Equal(t, second.ID, keys[0].ID, "newest first")
	assert.Equal(t, first.ID, keys[1].ID)
}

func testUsageNamespaces(t *testing.T, s store.Store) {
	ctx := context.Background()
	k := keyedPrincipal("hash-usage-k")
	k.ClientIP = "192.0.2.1"
	a := anonPrincipal("192.0.2.1")

	for i := 0; i < 3; i++ {
		require.NoError(t, s.RecordUsage(ctx, usageEvent(k, "2024-01")))
	}
	require.NoError(t, s.RecordUsage(ctx, usageEvent(a, "2024-01")))

	n, err := s.CountUsage(ctx, k, "2024-01")
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	n, err = s.CountUsage(ctx, a, "2024-01")
	require.NoError(t, err)
	assert.Equal(t, 1, n, "keyed events from the same IP are not anonymous usage")
}

func testUsageMonths(t *testing.T, s store.Store) {
	ctx := context.Background()
	a := anonPrincipal("198.51.100.4")
	require.NoError(t, s.RecordUsage(ctx, usageEvent(a, "2024-01")))
	require.NoError(t, s.RecordUsage(ctx, usageEvent(a, "2024-01")))
	require.NoError(t, s.RecordUsage(ctx, usageEvent(a, "2024-02")))

	n, err := s.CountUsage(ctx, a, "2024-01")
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	n, err = s.CountUsage(ctx, a, "2024-03")
	require.NoError(t, err)
	assert.Equal(t, 0, n)
}

func testRecordUsageIfUnder(t *testing.T, s store.Store) {
	ctx := context.Background()
	k := keyedPrincipal("hash-reserve")

	for i := 0; i < 3; i++ {
		used, ok, err := s.RecordUsageIfUnder(ctx, k, usageEvent(k, "2024-05"), 3)
		require.NoError(t, err)
		assert.True(t, ok)
		assert.Equal(t, i, used)
	}

	used, ok, err := s.RecordUsageIfUnder(ctx, k, usageEvent(k, "2024-05"), 3)
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Equal(t, 3, used)

	n, err := s.CountUsage(ctx, k, "2024-05")
	require.NoError(t, err)
	assert.Equal(t, 3, n)
}

func testRecordUsageIfUnderConcurrent(t *testing.T, s store.Store) {
	ctx := context.Background()
	a := anonPrincipal("203.0.113.200")
	const limit = 10

	var mu sync.Mutex
	admitted := 0
	var wg sync.WaitGroup
	for i := 0; i < 25; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, ok, err := s.RecordUsageIfUnder(ctx, a, usageEvent(a, "2024-06"), limit)
			assert.NoError(t, err)
			if ok {
				mu.Lock()
				admitted++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, limit, admitted)
	n, err := s.CountUsage(ctx, a, "2024-06")
	require.NoError(t, err)
	assert.Equal(t, limit, n)
}
