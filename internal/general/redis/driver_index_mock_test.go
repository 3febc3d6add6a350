package redis

import (
	"context"
	"errors"
	"strconv"
	"testing"
	"time"

	"shipease/internal/domain/booking"
	"shipease/internal/domain/geo"

	"github.com/go-redis/redismock/v9"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testPickup = geo.Point{Lat: 12.9716, Lng: 77.5946}

func newMockedIndex(t *testing.T, now time.Time) (*DriverIndex, redismock.ClientMock) {
	t.Helper()
	rdb, mock := redismock.NewClientMock()
	t.Cleanup(func() { _ = rdb.Close() })
	idx := newDriverIndex(rdb, IndexOptions{KeyPrefix: "test", SearchRadiusKM: 3, LocationTTL: time.Minute})
	idx.now = func() time.Time { return now }
	return idx, mock
}

func nearbyQuery(idx *DriverIndex) *goredis.GeoSearchLocationQuery {
	return &goredis.GeoSearchLocationQuery{
		GeoSearchQuery: goredis.GeoSearchQuery{
			Longitude:  testPickup.Lng,
			Latitude:   testPickup.Lat,
			Radius:     idx.opts.SearchRadiusKM,
			RadiusUnit: "km",
			Sort:       "ASC",
		},
		WithCoord: true,
		WithDist:  true,
	}
}

func TestNearbyCandidates_FiltersLookedUpDrivers(t *testing.T) {
	now := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	idx, mock := newMockedIndex(t, now)
	fresh := strconv.FormatInt(now.Add(-5*time.Second).UnixMilli(), 10)
	stale := strconv.FormatInt(now.Add(-5*time.Minute).UnixMilli(), 10)

	mock.ExpectGeoSearchLocation(idx.geoKey(), nearbyQuery(idx)).SetVal([]goredis.GeoLocation{
		{Name: "near", Latitude: 12.9720, Longitude: 77.5950},
		{Name: "truck", Latitude: 12.9718, Longitude: 77.5947},
		{Name: "stale", Latitude: 12.9800, Longitude: 77.5990},
		{Name: "far", Latitude: 12.9900, Longitude: 77.6000},
	})
	names := []string{"near", "truck", "stale", "far"}
	mock.ExpectHMGet(idx.categoryKey(), names...).SetVal([]any{"BIKE", "TRUCK", "BIKE", "BIKE"})
	mock.ExpectHMGet(idx.seenKey(), names...).SetVal([]any{fresh, fresh, stale, fresh})

	got, err := idx.NearbyCandidates(context.Background(), booking.CategoryBike, testPickup)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "near", got[0].DriverID)
	assert.Equal(t, booking.CategoryBike, got[0].Category)
	assert.Equal(t, geo.Point{Lat: 12.9720, Lng: 77.5950}, got[0].Location)
	assert.Equal(t, "far", got[1].DriverID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestNearbyCandidates_NobodyAround(t *testing.T) {
	idx, mock := newMockedIndex(t, time.Now())
	mock.ExpectGeoSearchLocation(idx.geoKey(), nearbyQuery(idx)).SetVal([]goredis.GeoLocation{})

	got, err := idx.NearbyCandidates(context.Background(), booking.CategoryBike, testPickup)
	require.NoError(t, err)
	assert.Empty(t, got)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestNearbyCandidates_RedisErrors(t *testing.T) {
	down := errors.New("connection refused")

	t.Run("geo search", func(t *testing.T) {
		idx, mock := newMockedIndex(t, time.Now())
		mock.ExpectGeoSearchLocation(idx.geoKey(), nearbyQuery(idx)).SetErr(down)

		_, err := idx.NearbyCandidates(context.Background(), booking.CategoryBike, testPickup)
		assert.ErrorIs(t, err, down)
		assert.ErrorContains(t, err, "geo search")
	})

	t.Run("attributes", func(t *testing.T) {
		idx, mock := newMockedIndex(t, time.Now())
		mock.ExpectGeoSearchLocation(idx.geoKey(), nearbyQuery(idx)).SetVal([]goredis.GeoLocation{{Name: "near"}})
		mock.ExpectHMGet(idx.categoryKey(), "near").SetErr(down)
		mock.ExpectHMGet(idx.seenKey(), "near").SetErr(down)

		_, err := idx.NearbyCandidates(context.Background(), booking.CategoryBike, testPickup)
		assert.ErrorIs(t, err, down)
		assert.ErrorContains(t, err, "load driver attributes")
	})
}

func TestUpdateLocation_UnknownDriver(t *testing.T) {
	idx, mock := newMockedIndex(t, time.Now())
	mock.ExpectHExists(idx.categoryKey(), "ghost").SetVal(false)

	err := idx.UpdateLocation(context.Background(), "ghost", testPickup)
	assert.ErrorIs(t, err, ErrDriverNotAvailable)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestLastSeen_Mocked(t *testing.T) {
	idx, mock := newMockedIndex(t, time.Now())
	at := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	mock.ExpectHGet(idx.seenKey(), "drv-1").SetVal(strconv.FormatInt(at.UnixMilli(), 10))
	mock.ExpectHGet(idx.seenKey(), "drv-2").RedisNil()

	got, ok, err := idx.LastSeen(context.Background(), "drv-1")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, at, got)

	_, ok, err = idx.LastSeen(context.Background(), "drv-2")
	require.NoError(t, err)
	assert.False(t, ok)
	assert.NoError(t, mock.ExpectationsWereMet())
}
