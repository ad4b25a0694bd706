package auth

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spec-kit/aquafarm-service/internal/domain"
)

// fakePermissionStore is an in-memory repository.PermissionRepository.
type fakePermissionStore struct {
	docs map[string]*domain.PermissionOverride
	gets int
}

func newFakePermissionStore() *fakePermissionStore {
	return &fakePermissionStore{docs: make(map[string]*domain.PermissionOverride)}
}

func permKey(userID, accountID string) string {
	return userID + "|" + accountID
}

func (f *fakePermissionStore) Get(_ context.Context, userID, accountID string) (*domain.PermissionOverride, error) {
	f.gets++
	doc, ok := f.docs[permKey(userID, accountID)]
	if !ok {
		return nil, nil
	}
	return doc, nil
}

func (f *fakePermissionStore) ensure(userID, accountID string) *domain.PermissionOverride {
	key := permKey(userID, accountID)
	doc, ok := f.docs[key]
	if !ok {
		doc = &domain.PermissionOverride{
			UserID:    userID,
			AccountID: accountID,
			Flags:     make(map[string]map[string]bool),
		}
		f.docs[key] = doc
	}
	return doc
}

func (f *fakePermissionStore) SetFeature(_ context.Context, userID, accountID, feature string, flags map[string]bool, actor string) error {
	doc := f.ensure(userID, accountID)
	doc.Flags[feature] = flags
	doc.UpdatedBy = actor
	return nil
}

func (f *fakePermissionStore) RemoveFeature(_ context.Context, userID, accountID, feature, actor string) error {
	if doc, ok := f.docs[permKey(userID, accountID)]; ok {
		delete(doc.Flags, feature)
		doc.UpdatedBy = actor
	}
	return nil
}

func (f *fakePermissionStore) SetAssignedPonds(_ context.Context, userID, accountID string, pondIDs []string, actor string) error {
	doc := f.ensure(userID, accountID)
	doc.AssignedPonds = pondIDs
	doc.UpdatedBy = actor
	return nil
}

func TestWorkerRoleDefaults(t *testing.T) {
	engine := NewEngine(newFakePermissionStore())
	ctx := context.Background()

	view, err := engine.Check(ctx, "user-1", "acct-1", domain.RoleWorker, domain.FeaturePondManage, domain.FlagView)
	require.NoError(t, err)
	assert.True(t, view)

	edit, err := engine.Check(ctx, "user-1", "acct-1", domain.RoleWorker, domain.FeaturePondManage, domain.FlagEdit)
	require.NoError(t, err)
	assert.False(t, edit)
}

func TestResolveCoversFullTemplate(t *testing.T) {
	engine := NewEngine(newFakePermissionStore())

	matrix, err := engine.Resolve(context.Background(), "user-1", "acct-1", domain.RoleFeeder)
	require.NoError(t, err)
	assert.Len(t, matrix, len(domain.Features))
	for _, feature := range domain.Features {
		_, ok := matrix[feature]
		assert.True(t, ok, "feature %s missing from matrix", feature)
	}
	// A feature the feeder overlay is silent on stays all-false.
	assert.Equal(t, domain.FeatureFlags{}, matrix[domain.FeatureBankManage])
}

func TestResolveIsIdempotent(t *testing.T) {
	store := newFakePermissionStore()
	engine := NewEngine(store)
	ctx := context.Background()

	require.NoError(t, engine.SetOverride(ctx, "user-1", "acct-1", domain.FeatureBankManage, map[string]bool{domain.FlagView: true}, "admin"))

	first, err := engine.Resolve(ctx, "user-1", "acct-1", domain.RoleWorker)
	require.NoError(t, err)
	second, err := engine.Resolve(ctx, "user-1", "acct-1", domain.RoleWorker)
	require.NoError(t, err)
	assert.Equal(t, first, second)
}

func TestOverrideGrantAndRevoke(t *testing.T) {
	engine := NewEngine(newFakePermissionStore())
	ctx := context.Background()

	granted, err := engine.Check(ctx, "user-1", "acct-1", domain.RoleWorker, domain.FeatureBankManage, domain.FlagEdit)
	require.NoError(t, err)
	assert.False(t, granted)

	require.NoError(t, engine.SetOverride(ctx, "user-1", "acct-1", domain.FeatureBankManage, map[string]bool{domain.FlagEdit: true}, "admin"))
	granted, err = engine.Check(ctx, "user-1", "acct-1", domain.RoleWorker, domain.FeatureBankManage, domain.FlagEdit)
	require.NoError(t, err)
	assert.True(t, granted)

	require.NoError(t, engine.Revoke(ctx, "user-1", "acct-1", domain.FeatureBankManage, "admin"))
	granted, err = engine.Check(ctx, "user-1", "acct-1", domain.RoleWorker, domain.FeatureBankManage, domain.FlagEdit)
	require.NoError(t, err)
	assert.False(t, granted)
}

func TestOverrideFalseRoundTripsToRoleDefault(t *testing.T) {
	engine := NewEngine(newFakePermissionStore())
	ctx := context.Background()

	baseline, err := engine.Resolve(ctx, "user-1", "acct-1", domain.RoleWorker)
	require.NoError(t, err)

	require.NoError(t, engine.SetOverride(ctx, "user-1", "acct-1", domain.FeatureTaskManage, map[string]bool{domain.FlagEdit: true}, "admin"))
	require.NoError(t, engine.SetOverride(ctx, "user-1", "acct-1", domain.FeatureTaskManage, map[string]bool{domain.FlagEdit: false}, "admin"))

	after, err := engine.Resolve(ctx, "user-1", "acct-1", domain.RoleWorker)
	require.NoError(t, err)
	assert.Equal(t, baseline[domain.FeatureTaskManage], after[domain.FeatureTaskManage])
}

func TestOverrideSilentFlagInheritsRoleDefault(t *testing.T) {
	engine := NewEngine(newFakePermissionStore())
	ctx := context.Background()

	// Worker already has view on task_manage from the role layer; granting
	// edit must not clear it.
	require.NoError(t, engine.SetOverride(ctx, "user-1", "acct-1", domain.FeatureTaskManage, map[string]bool{domain.FlagEdit: true}, "admin"))

	matrix, err := engine.Resolve(ctx, "user-1", "acct-1", domain.RoleWorker)
	require.NoError(t, err)
	assert.True(t, matrix[domain.FeatureTaskManage].View)
	assert.True(t, matrix[domain.FeatureTaskManage].Edit)
}

func TestSetOverrideUnknownFeature(t *testing.T) {
	engine := NewEngine(newFakePermissionStore())
	ctx := context.Background()

	err := engine.SetOverride(ctx, "user-1", "acct-1", "submarine_manage", map[string]bool{domain.FlagView: true}, "admin")
	assert.ErrorIs(t, err, ErrUnknownFeature)

	err = engine.SetOverride(ctx, "user-1", "acct-1", domain.FeaturePondManage, map[string]bool{"fly": true}, "admin")
	assert.ErrorIs(t, err, ErrUnknownFeature)

	err = engine.Revoke(ctx, "user-1", "acct-1", "submarine_manage", "admin")
	assert.ErrorIs(t, err, ErrUnknownFeature)
}

func TestCheckUnknownFeatureIsFalse(t *testing.T) {
	engine := NewEngine(newFakePermissionStore())

	granted, err := engine.Check(context.Background(), "user-1", "acct-1", domain.RoleOwner, "submarine_manage", domain.FlagView)
	require.NoError(t, err)
	assert.False(t, granted)
}

func TestOnlyTrueFlagsPersisted(t *testing.T) {
	store := newFakePermissionStore()
	engine := NewEngine(store)
	ctx := context.Background()

	require.NoError(t, engine.SetOverride(ctx, "user-1", "acct-1", domain.FeatureBankManage,
		map[string]bool{domain.FlagEdit: true, domain.FlagView: false}, "admin"))

	doc := store.docs[permKey("user-1", "acct-1")]
	require.NotNil(t, doc)
	assert.Equal(t, map[string]bool{domain.FlagEdit: true}, doc.Flags[domain.FeatureBankManage])

	// Unsetting the last true flag removes the feature key entirely.
	require.NoError(t, engine.SetOverride(ctx, "user-1", "acct-1", domain.FeatureBankManage,
		map[string]bool{domain.FlagEdit: false}, "admin"))
	_, ok := doc.Flags[domain.FeatureBankManage]
	assert.False(t, ok)
}

func TestAssignedPonds(t *testing.T) {
	store := newFakePermissionStore()
	engine := NewEngine(store)
	ctx := context.Background()

	ponds, err := engine.AssignedPonds(ctx, "user-1", "acct-1")
	require.NoError(t, err)
	assert.Nil(t, ponds)

	require.NoError(t, engine.SetAssignedPonds(ctx, "user-1", "acct-1", []string{"pond-1", "pond-2"}, "admin"))
	ponds, err = engine.AssignedPonds(ctx, "user-1", "acct-1")
	require.NoError(t, err)
	assert.Equal(t, []string{"pond-1", "pond-2"}, ponds)
}
