package redis

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"shipease/internal/domain/booking"
	"shipease/internal/domain/driver"
	"shipease/internal/domain/geo"
	"shipease/internal/matching"
	"shipease/internal/ports"

	goredis "github.com/redis/go-redis/v9"
)

var ErrDriverNotAvailable = errors.New("driver is not available for matching")

// IndexOptions tunes candidate lookups.
type IndexOptions struct {
	KeyPrefix      string
	SearchRadiusKM float64
	MaxCandidates  int
	// LocationTTL drops drivers whose last position is older than this.
	LocationTTL time.Duration
}

// DriverIndex keeps available drivers in a Redis GEO set. Two hashes hold
// each driver's vehicle category and the unix-millis of its last position.
type DriverIndex struct {
	rdb  goredis.Cmdable
	opts IndexOptions
	now  func() time.Time
}

func NewDriverIndex(rdb goredis.Cmdable, opts IndexOptions) ports.DriverIndex {
	return newDriverIndex(rdb, opts)
}

func newDriverIndex(rdb goredis.Cmdable, opts IndexOptions) *DriverIndex {
	if opts.KeyPrefix == "" {
		opts.KeyPrefix = "shipease"
	}
	if opts.SearchRadiusKM <= 0 {
		opts.SearchRadiusKM = 5
	}
	if opts.MaxCandidates <= 0 {
		opts.MaxCandidates = 20
	}
	return &DriverIndex{rdb: rdb, opts: opts, now: time.Now}
}

func (idx *DriverIndex) geoKey() string      { return idx.opts.KeyPrefix + ":drivers:geo" }
func (idx *DriverIndex) categoryKey() string { return idx.opts.KeyPrefix + ":drivers:category" }
func (idx *DriverIndex) seenKey() string     { return idx.opts.KeyPrefix + ":drivers:seen" }

// SetAvailable puts the driver on the map with its category and position.
func (idx *DriverIndex) SetAvailable(ctx context.Context, driverID string, category booking.VehicleCategory, at geo.Point) error {
	if strings.TrimSpace(driverID) == "" {
		return fmt.Errorf("set available: %w", matching.ErrInvalidCandidate)
	}
	if !category.Valid() {
		return booking.ErrInvalidVehicleCategory
	}
	if err := at.Validate(); err != nil {
		return err
	}

	pipe := idx.rdb.TxPipeline()
	pipe.GeoAdd(ctx, idx.geoKey(), &goredis.GeoLocation{Name: driverID, Longitude: at.Lng, Latitude: at.Lat})
	pipe.HSet(ctx, idx.categoryKey(), driverID, category.String())
	pipe.HSet(ctx, idx.seenKey(), driverID, idx.now().UnixMilli())
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("set driver available: %w", err)
	}
	return nil
}

// UpdateLocation moves a driver that is already available. Drivers that are
// offline or busy are left out of the index and ErrDriverNotAvailable is returned.
func (idx *DriverIndex) UpdateLocation(ctx context.Context, driverID string, at geo.Point) error {
	if err := at.Validate(); err != nil {
		return err
	}
	ok, err := idx.rdb.HExists(ctx, idx.categoryKey(), driverID).Result()
	if err != nil {
		return fmt.Errorf("check driver category: %w", err)
	}
	if !ok {
		return ErrDriverNotAvailable
	}

	pipe := idx.rdb.TxPipeline()
	pipe.GeoAdd(ctx, idx.geoKey(), &goredis.GeoLocation{Name: driverID, Longitude: at.Lng, Latitude: at.Lat})
	pipe.HSet(ctx, idx.seenKey(), driverID, idx.now().UnixMilli())
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("update driver location: %w", err)
	}
	return nil
}

// SetStatus registers an AVAILABLE driver's category; the driver becomes a
// candidate with its next location update. Any other status removes the driver.
func (idx *DriverIndex) SetStatus(ctx context.Context, driverID string, status driver.Status, category booking.VehicleCategory) error {
	if !status.Valid() {
		return driver.ErrInvalidStatus
	}
	if !status.Matchable() {
		return idx.Remove(ctx, driverID)
	}
	if !category.Valid() {
		return booking.ErrInvalidVehicleCategory
	}
	if err := idx.rdb.HSet(ctx, idx.categoryKey(), driverID, category.String()).Err(); err != nil {
		return fmt.Errorf("set driver category: %w", err)
	}
	return nil
}

// Remove takes the driver out of the index.
func (idx *DriverIndex) Remove(ctx context.Context, driverID string) error {
	pipe := idx.rdb.TxPipeline()
	pipe.ZRem(ctx, idx.geoKey(), driverID)
	pipe.HDel(ctx, idx.categoryKey(), driverID)
	pipe.HDel(ctx, idx.seenKey(), driverID)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("remove driver: %w", err)
	}
	return nil
}

// LastSeen reports when the driver last sent a position.
func (idx *DriverIndex) LastSeen(ctx context.Context, driverID string) (time.Time, bool, error) {
	val, err := idx.rdb.HGet(ctx, idx.seenKey(), driverID).Result()
	if err == goredis.Nil {
		return time.Time{}, false, nil
	}
	if err != nil {
		return time.Time{}, false, err
	}
	ms, err := strconv.ParseInt(val, 10, 64)
	if err != nil {
		return time.Time{}, false, fmt.Errorf("parse last seen: %w", err)
	}
	return time.UnixMilli(ms).UTC(), true, nil
}

// NearbyCandidates returns available drivers of the category around pickup,
// nearest first.
func (idx *DriverIndex) NearbyCandidates(ctx context.Context, category booking.VehicleCategory, pickup geo.Point) ([]matching.Candidate, error) {
	locations, err := idx.rdb.GeoSearchLocation(ctx, idx.geoKey(), &goredis.GeoSearchLocationQuery{
		GeoSearchQuery: goredis.GeoSearchQuery{
			Longitude:  pickup.Lng,
			Latitude:   pickup.Lat,
			Radius:     idx.opts.SearchRadiusKM,
			RadiusUnit: "km",
			Sort:       "ASC",
		},
		WithCoord: true,
		WithDist:  true,
	}).Result()
	if err != nil {
		return nil, fmt.Errorf("geo search: %w", err)
	}
	if len(locations) == 0 {
		return nil, nil
	}

	names := make([]string, len(locations))
	for i, loc := range locations {
		names[i] = loc.Name
	}

	pipe := idx.rdb.Pipeline()
	categories := pipe.HMGet(ctx, idx.categoryKey(), names...)
	seen := pipe.HMGet(ctx, idx.seenKey(), names...)
	if _, err := pipe.Exec(ctx); err != nil {
		return nil, fmt.Errorf("load driver attributes: %w", err)
	}

	return selectCandidates(locations, categories.Val(), seen.Val(), selection{
		category: category,
		now:      idx.now(),
		ttl:      idx.opts.LocationTTL,
		max:      idx.opts.MaxCandidates,
	}), nil
}

type selection struct {
	category booking.VehicleCategory
	now      time.Time
	ttl      time.Duration
	max      int
}

// selectCandidates keeps the GEO search order and drops drivers whose
// category differs, is missing, or whose position went stale.
func selectCandidates(locations []goredis.GeoLocation, categories, seen []any, sel selection) []matching.Candidate {
	out := make([]matching.Candidate, 0, len(locations))
	for i, loc := range locations {
		if sel.max > 0 && len(out) == sel.max {
			break
		}
		category, ok := stringAt(categories, i)
		if !ok || booking.VehicleCategory(category) != sel.category {
			continue
		}
		if sel.ttl > 0 {
			raw, ok := stringAt(seen, i)
			if !ok {
				continue
			}
			ms, err := strconv.ParseInt(raw, 10, 64)
			if err != nil || sel.now.Sub(time.UnixMilli(ms)) > sel.ttl {
				continue
			}
		}
		out = append(out, matching.Candidate{
			DriverID: loc.Name,
			Category: sel.category,
			Location: geo.Point{Lat: loc.Latitude, Lng: loc.Longitude},
		})
	}
	return out
}

func stringAt(values []any, i int) (string, bool) {
	if i >= len(values) || values[i] == nil {
		return "", false
	}
	s, ok := values[i].(string)
	return s, ok
}
