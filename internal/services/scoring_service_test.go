package services

import (
	"context"
	"testing"

	"github.com/ahmetcoskunkizilkaya/rumorwatch/internal/models"
	"github.com/ahmetcoskunkizilkaya/rumorwatch/internal/scoring"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestScoringService_CurrentDefaults(t *testing.T) {
	env := newTestEnv(t)

	p, err := env.scoring.Current(context.Background())
	require.NoError(t, err)
	assert.Equal(t, models.CurrentScoringProfile, p.Name)
	assert.Equal(t, 0, p.Version)
	assert.Equal(t, []int{50, 40, 30, 20, 15}, []int(p.Tiers))
	assert.Equal(t, 10, p.DefaultPoints)
}

func TestScoringService_SaveCurrentRoundTrip(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	cfg := scoring.Config{Tiers: []int{9, 7, 0, 3}, DefaultPoints: 1}

	saved, err := env.scoring.SaveCurrent(ctx, cfg, "ops@example.com")
	require.NoError(t, err)
	assert.Equal(t, 1, saved.Version)

	loaded, err := env.scoring.CurrentConfig(ctx)
	require.NoError(t, err)
	assert.Equal(t, cfg, loaded)

	cfg.Tiers[0] = 100
	assert.Equal(t, 9, loaded.Tiers[0], "stored config must not alias the caller's slice")

	saved, err = env.scoring.SaveCurrent(ctx, scoring.Config{Tiers: []int{5}, DefaultPoints: 2}, "ops@example.com")
	require.NoError(t, err)
	assert.Equal(t, 2, saved.Version)
	assert.Equal(t, "ops@example.com", saved.UpdatedBy)
}

func TestScoringService_RejectsInvalidConfig(t *testing.T) {
	env := newTestEnv(t)

	_, err := env.scoring.SaveCurrent(context.Background(), scoring.Config{Tiers: []int{10, -1}}, "x")
	assert.ErrorIs(t, err, scoring.ErrInvalidConfig)
	assert.Zero(t, countRows(t, env.db, &models.ScoringProfile{}, ""))
}

func TestScoringService_ProfilesAndPromote(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	launch := scoring.Config{Tiers: []int{100, 60}, DefaultPoints: 5}

	_, err := env.scoring.SaveProfile(ctx, models.CurrentScoringProfile, launch, "x")
	assert.ErrorIs(t, err, ErrReservedProfile)

	_, err = env.scoring.SaveProfile(ctx, "launch", launch, "x")
	require.NoError(t, err)

	cur, err := env.scoring.CurrentConfig(ctx)
	require.NoError(t, err)
	assert.Equal(t, scoring.DefaultConfig(), cur, "saving a profile must not activate it")

	_, err = env.scoring.Promote(ctx, "missing", "x")
	assert.ErrorIs(t, err, ErrProfileNotFound)

	promoted, err := env.scoring.Promote(ctx, "launch", "lead@example.com")
	require.NoError(t, err)
	assert.Equal(t, models.CurrentScoringProfile, promoted.Name)

	cur, err = env.scoring.CurrentConfig(ctx)
	require.NoError(t, err)
	assert.Equal(t, launch, cur)

	profiles, err := env.scoring.Profiles(ctx)
	require.NoError(t, err)
	require.Len(t, profiles, 2)
	assert.Equal(t, "current", profiles[0].Name)
	assert.Equal(t, "launch", profiles[1].Name)
}
