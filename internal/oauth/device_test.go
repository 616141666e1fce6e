package oauth

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"devbridge-go/internal/config"
	"devbridge-go/internal/credentials"
	"devbridge-go/internal/observability"
)

func newDeviceFixture(t *testing.T) (*DeviceFlow, *credentials.Store, *fakeProviders) {
	cfg := testConfig(t, config.FlowDevice)
	fake := newFakeProviders(t)
	store := credentials.NewStore(credentials.NewMemoryTable(10*time.Minute), credentials.NewMemoryTable(0))
	metrics := observability.NewMetricsManager(zap.NewNop().Sugar())

	flow := NewDeviceFlow(DeviceFlowDeps{
		Config:   cfg,
		Store:    store,
		Claimer:  credentials.NewClaimer(store, zap.NewNop(), metrics),
		Logger:   zap.NewNop(),
		Metrics:  metrics,
		Endpoint: fake.githubEndpoint(),
	})
	return flow, store, fake
}

func TestDeviceFlow_PendingThenClaimed(t *testing.T) {
	ctx := context.Background()
	flow, store, _ := newDeviceFixture(t)

	instr, err := flow.StartLogin(ctx, "S")
	require.NoError(t, err)
	assert.Equal(t, "ABCD-1234", instr.UserCode)
	assert.Equal(t, time.Second, instr.Interval)
	assert.Len(t, instr.AttemptID, 26)

	_, pending, err := flow.FinishLogin(ctx, "S", instr.AttemptID)
	require.NoError(t, err)
	assert.True(t, pending)

	tok, pending, err := flow.FinishLogin(ctx, "S", instr.AttemptID)
	require.NoError(t, err)
	assert.False(t, pending)
	assert.Equal(t, "gho_device", tok.AccessToken)

	got, err := store.Session(ctx, "S")
	require.NoError(t, err)
	assert.Equal(t, credentials.Ready, got.GitHubStatus())
	assert.Equal(t, 0, store.Pending.Len(), "device credentials pass through pending and are claimed")

	_, _, err = flow.FinishLogin(ctx, "S", instr.AttemptID)
	assert.ErrorIs(t, err, ErrAttemptNotFound)
}

func TestDeviceFlow_ForeignSession(t *testing.T) {
	ctx := context.Background()
	flow, _, _ := newDeviceFixture(t)

	instr, err := flow.StartLogin(ctx, "S")
	require.NoError(t, err)

	_, _, err = flow.FinishLogin(ctx, "other", instr.AttemptID)
	assert.ErrorIs(t, err, ErrAttemptNotFound)
}

func TestDeviceFlow_Denied(t *testing.T) {
	ctx := context.Background()
	flow, store, fake := newDeviceFixture(t)
	fake.denyDevice = true

	instr, err := flow.StartLogin(ctx, "S")
	require.NoError(t, err)

	_, pending, err := flow.FinishLogin(ctx, "S", instr.AttemptID)
	assert.ErrorIs(t, err, ErrDeviceAccessDenied)
	assert.False(t, pending)

	got, _ := store.Session(ctx, "S")
	assert.True(t, got.IsEmpty())
}
