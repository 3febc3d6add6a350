package redis

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"testing"
	"time"

	"shipease/internal/domain/booking"
	"shipease/internal/domain/driver"
	"shipease/internal/domain/geo"

	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSelectCandidates(t *testing.T) {
	now := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	fresh := strconv.FormatInt(now.Add(-10*time.Second).UnixMilli(), 10)
	stale := strconv.FormatInt(now.Add(-10*time.Minute).UnixMilli(), 10)

	locations := []goredis.GeoLocation{
		{Name: "near-bike", Latitude: 12.971, Longitude: 77.594},
		{Name: "truck", Latitude: 12.972, Longitude: 77.595},
		{Name: "stale-bike", Latitude: 12.973, Longitude: 77.596},
		{Name: "unknown", Latitude: 12.974, Longitude: 77.597},
		{Name: "far-bike", Latitude: 12.980, Longitude: 77.600},
		{Name: "garbled", Latitude: 12.981, Longitude: 77.601},
	}
	categories := []any{"BIKE", "TRUCK", "BIKE", nil, "BIKE", "BIKE"}
	seen := []any{fresh, fresh, stale, fresh, fresh, "yesterday"}

	got := selectCandidates(locations, categories, seen, selection{
		category: booking.CategoryBike,
		now:      now,
		ttl:      2 * time.Minute,
	})
	require.Len(t, got, 2)
	assert.Equal(t, "near-bike", got[0].DriverID)
	assert.Equal(t, "far-bike", got[1].DriverID)
	assert.Equal(t, booking.CategoryBike, got[0].Category)
	assert.Equal(t, geo.Point{Lat: 12.971, Lng: 77.594}, got[0].Location)
}

func TestSelectCandidates_LimitAndNoTTL(t *testing.T) {
	locations := []goredis.GeoLocation{{Name: "a"}, {Name: "b"}, {Name: "c"}}
	categories := []any{"TRUCK", "TRUCK", "TRUCK"}

	got := selectCandidates(locations, categories, nil, selection{category: booking.CategoryTruck, max: 2})
	require.Len(t, got, 2)
	assert.Equal(t, "a", got[0].DriverID)
	assert.Equal(t, "b", got[1].DriverID)

	assert.Empty(t, selectCandidates(locations, categories[:1], nil, selection{category: booking.CategoryBike}))
}

func TestDriverIndex_RejectsInvalidInput(t *testing.T) {
	idx := newDriverIndex(nil, IndexOptions{})
	ctx := context.Background()

	assert.Error(t, idx.SetAvailable(ctx, " ", booking.CategoryBike, geo.Point{}))
	assert.ErrorIs(t, idx.SetAvailable(ctx, "d1", "scooter", geo.Point{}), booking.ErrInvalidVehicleCategory)
	assert.ErrorIs(t, idx.SetAvailable(ctx, "d1", booking.CategoryBike, geo.Point{Lat: 95}), geo.ErrInvalidLatitude)
	assert.ErrorIs(t, idx.UpdateLocation(ctx, "d1", geo.Point{Lng: 200}), geo.ErrInvalidLongitude)
	assert.ErrorIs(t, idx.SetStatus(ctx, "d1", driver.Status("NAPPING"), booking.CategoryBike), driver.ErrInvalidStatus)
	assert.ErrorIs(t, idx.SetStatus(ctx, "d1", driver.StatusAvailable, ""), booking.ErrInvalidVehicleCategory)

	assert.Equal(t, "shipease:drivers:geo", idx.geoKey())
	assert.Equal(t, 5.0, idx.opts.SearchRadiusKM)
	assert.Equal(t, 20, idx.opts.MaxCandidates)
}

func TestDriverIndex_Integration(t *testing.T) {
	addr := os.Getenv("SHIPEASE_TEST_REDIS_ADDR")
	if addr == "" {
		t.Skip("SHIPEASE_TEST_REDIS_ADDR not set; skipping integration test")
	}

	rdb := goredis.NewClient(&goredis.Options{Addr: addr})
	defer rdb.Close()

	ctx := context.Background()
	prefix := fmt.Sprintf("shipease_test_%d", time.Now().UnixNano())
	idx := newDriverIndex(rdb, IndexOptions{KeyPrefix: prefix, SearchRadiusKM: 3, LocationTTL: time.Minute})
	t.Cleanup(func() {
		rdb.Del(context.Background(), idx.geoKey(), idx.categoryKey(), idx.seenKey())
	})

	pickup := geo.Point{Lat: 12.9716, Lng: 77.5946}
	require.NoError(t, idx.SetAvailable(ctx, "near", booking.CategoryBike, geo.Point{Lat: 12.9720, Lng: 77.5950}))
	require.NoError(t, idx.SetAvailable(ctx, "far", booking.CategoryBike, geo.Point{Lat: 12.9900, Lng: 77.6000}))
	require.NoError(t, idx.SetAvailable(ctx, "truck", booking.CategoryTruck, geo.Point{Lat: 12.9718, Lng: 77.5947}))
	require.NoError(t, idx.SetAvailable(ctx, "outside", booking.CategoryBike, geo.Point{Lat: 13.2, Lng: 77.7}))

	got, err := idx.NearbyCandidates(ctx, booking.CategoryBike, pickup)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "near", got[0].DriverID)
	assert.Equal(t, "far", got[1].DriverID)

	require.NoError(t, idx.SetStatus(ctx, "near", driver.StatusBusy, ""))
	assert.ErrorIs(t, idx.UpdateLocation(ctx, "near", pickup), ErrDriverNotAvailable)

	got, err = idx.NearbyCandidates(ctx, booking.CategoryBike, pickup)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "far", got[0].DriverID)

	seenAt, ok, err := idx.LastSeen(ctx, "far")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.WithinDuration(t, time.Now(), seenAt, time.Minute)

	_, ok, err = idx.LastSeen(ctx, "near")
	require.NoError(t, err)
	assert.False(t, ok)
}
