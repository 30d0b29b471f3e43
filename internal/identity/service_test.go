package identity_test

import (
	"context"
	"testing"
	"time"

	"ms-clinic-queue/internal/database"
	"ms-clinic-queue/internal/identity"
	"ms-clinic-queue/internal/logger"
	"ms-clinic-queue/internal/models"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupService(t *testing.T) (*identity.Service, *miniredis.Miniredis) {
	t.Helper()
	ctx := context.Background()

	bunDB, err := database.OpenSQLite(ctx, ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { bunDB.Close() })
	require.NoError(t, database.CreateSchema(ctx, bunDB))

	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })

	svc := identity.NewService(&identity.DB{Bun: bunDB}, identity.NewRedisCache(client, time.Minute), logger.NewDiscard())
	return svc, mr
}

func TestGetProfileReadsThroughCache(t *testing.T) {
	svc, mr := setupService(t)
	ctx := context.Background()

	_, err := svc.SaveProfile(ctx, models.Profile{ID: "u1", FullName: "Asha Rao", Mobile: "9800000001", Address: "MG Road"})
	require.NoError(t, err)
	assert.False(t, mr.Exists("profile:u1"))

	profile, err := svc.GetProfile(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, "Asha Rao", profile.FullName)
	assert.True(t, mr.Exists("profile:u1"), "profile cached after first read")

	_, err = svc.SaveProfile(ctx, models.Profile{ID: "u1", FullName: "Asha R.", Mobile: "9800000001"})
	require.NoError(t, err)
	assert.False(t, mr.Exists("profile:u1"), "save invalidates the cache")

	profile, err = svc.GetProfile(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, "Asha R.", profile.FullName)
	assert.Empty(t, profile.Address)
}

func TestGetProfileNotFound(t *testing.T) {
	svc, _ := setupService(t)

	_, err := svc.GetProfile(context.Background(), "missing")
	assert.ErrorIs(t, err, models.ErrProfileNotFound)
}

func TestGetProfileSurvivesCacheOutage(t *testing.T) {
	svc, mr := setupService(t)
	ctx := context.Background()
	_, err := svc.SaveProfile(ctx, models.Profile{ID: "u2", FullName: "Ravi"})
	require.NoError(t, err)

	mr.Close()

	profile, err := svc.GetProfile(ctx, "u2")
	require.NoError(t, err)
	assert.Equal(t, "Ravi", profile.FullName)
}

func TestIsStaff(t *testing.T) {
	svc, _ := setupService(t)
	ctx := context.Background()
	_, err := svc.SaveProfile(ctx, models.Profile{ID: "doc", FullName: "Dr. Mehta", IsAdmin: true})
	require.NoError(t, err)
	_, err = svc.SaveProfile(ctx, models.Profile{ID: "pat", FullName: "Patient"})
	require.NoError(t, err)

	staff, err := svc.IsStaff(ctx, "doc")
	require.NoError(t, err)
	assert.True(t, staff)

	staff, err = svc.IsStaff(ctx, "pat")
	require.NoError(t, err)
	assert.False(t, staff)

	staff, err = svc.IsStaff(ctx, "nobody")
	require.NoError(t, err)
	assert.False(t, staff)
}

func TestSaveProfileKeepsStaffFlag(t *testing.T) {
	svc, _ := setupService(t)
	ctx := context.Background()
	_, err := svc.SaveProfile(ctx, models.Profile{ID: "doc", FullName: "Dr. Mehta", IsAdmin: true})
	require.NoError(t, err)

	saved, err := svc.SaveProfile(ctx, models.Profile{ID: "doc", FullName: "Dr. A. Mehta"})
	require.NoError(t, err)
	assert.True(t, saved.IsAdmin)
	assert.Equal(t, "Dr. A. Mehta", saved.FullName)
}

func TestSearchProfiles(t *testing.T) {
	svc, _ := setupService(t)
	ctx := context.Background()
	for _, p := range []models.Profile{
		{ID: "a", FullName: "Anita Shah", Email: "anita@example.com", Mobile: "9811111111"},
		{ID: "b", FullName: "Bala Kumar", Email: "bala@example.com", Mobile: "9822222222"},
	} {
		_, err := svc.SaveProfile(ctx, p)
		require.NoError(t, err)
	}

	found, err := svc.SearchProfiles(ctx, "anita", 10)
	require.NoError(t, err)
	require.Len(t, found, 1)
	assert.Equal(t, "a", found[0].ID)

	found, err = svc.SearchProfiles(ctx, "98222", 10)
	require.NoError(t, err)
	require.Len(t, found, 1)
	assert.Equal(t, "b", found[0].ID)

	all, err := svc.SearchProfiles(ctx, "", 0)
	require.NoError(t, err)
	assert.Len(t, all, 2)
}

func TestSearchProfilesMatchesWildcardsLiterally(t *testing.T) {
	svc, _ := setupService(t)
	ctx := context.Background()
	for _, p := range []models.Profile{
		{ID: "a", FullName: "Anita Shah", Email: "anita@example.com", Mobile: "9811111111"},
		{ID: "c", FullName: "Ravi_Kumar", Email: "ravi@example.com", Mobile: "9833333333"},
	} {
		_, err := svc.SaveProfile(ctx, p)
		require.NoError(t, err)
	}

	found, err := svc.SearchProfiles(ctx, "_", 10)
	require.NoError(t, err)
	require.Len(t, found, 1)
	assert.Equal(t, "c", found[0].ID)

	found, err = svc.SearchProfiles(ctx, "%", 10)
	require.NoError(t, err)
	assert.Empty(t, found)

	found, err = svc.SearchProfiles(ctx, `\`, 10)
	require.NoError(t, err)
	assert.Empty(t, found)
}
