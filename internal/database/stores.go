package database

import (
	"context"
	"fmt"
	"math"
	"sort"
)

// UpsertStore inserts a store or updates its mutable fields, keyed by
// (chain_id, code) — the chain's own store identifier from its price feed.
func UpsertStore(ctx context.Context, s *Store) (*Store, error) {
	pool := Pool()

	query := `
		INSERT INTO stores (
			chain_id, code, type, address, city, zipcode, lat, lon, phone,
			created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, NOW(), NOW())
		ON CONFLICT (chain_id, code) DO UPDATE SET
			type = EXCLUDED.type,
			address = EXCLUDED.address,
			city = EXCLUDED.city,
			zipcode = EXCLUDED.zipcode,
			lat = COALESCE(EXCLUDED.lat, stores.lat),
			lon = COALESCE(EXCLUDED.lon, stores.lon),
			phone = EXCLUDED.phone,
			updated_at = NOW()
		RETURNING id, chain_id, code, type, address, city, zipcode, lat, lon, phone, created_at, updated_at
	`

	var out Store
	err := pool.QueryRow(ctx, query,
		s.ChainID, s.Code, s.Type, s.Address, s.City, s.ZipCode, s.Lat, s.Lon, s.Phone,
	).Scan(
		&out.ID, &out.ChainID, &out.Code, &out.Type, &out.Address, &out.City,
		&out.ZipCode, &out.Lat, &out.Lon, &out.Phone, &out.CreatedAt, &out.UpdatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("upsert store %d/%s: %w", s.ChainID, s.Code, err)
	}
	return &out, nil
}

// GetStoreByID retrieves a single store.
func GetStoreByID(ctx context.Context, id int64) (*Store, error) {
	pool := Pool()

	var s Store
	err := pool.QueryRow(ctx, `
		SELECT id, chain_id, code, type, address, city, zipcode, lat, lon, phone, created_at, updated_at
		FROM stores WHERE id = $1
	`, id).Scan(
		&s.ID, &s.ChainID, &s.Code, &s.Type, &s.Address, &s.City,
		&s.ZipCode, &s.Lat, &s.Lon, &s.Phone, &s.CreatedAt, &s.UpdatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("get store %d: %w", id, err)
	}
	return &s, nil
}

// ListStoresByChain returns every store registered for a chain.
func ListStoresByChain(ctx context.Context, chainID int64) ([]Store, error) {
	pool := Pool()

	rows, err := pool.Query(ctx, `
		SELECT id, chain_id, code, type, address, city, zipcode, lat, lon, phone, created_at, updated_at
		FROM stores WHERE chain_id = $1 ORDER BY code
	`, chainID)
	if err != nil {
		return nil, fmt.Errorf("list stores for chain %d: %w", chainID, err)
	}
	defer rows.Close()

	stores := make([]Store, 0)
	for rows.Next() {
		var s Store
		if err := rows.Scan(
			&s.ID, &s.ChainID, &s.Code, &s.Type, &s.Address, &s.City,
			&s.ZipCode, &s.Lat, &s.Lon, &s.Phone, &s.CreatedAt, &s.UpdatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan store: %w", err)
		}
		stores = append(stores, s)
	}
	return stores, rows.Err()
}

// NearbyStores returns stores whose lat/lon fall inside the given bounding
// box. It applies no distance filter and no ordering; callers that need
// stores within a radius, nearest first, filter and sort the result
// themselves.
func NearbyStores(ctx context.Context, minLat, maxLat, minLon, maxLon float64) ([]Store, error) {
	pool := Pool()

	rows, err := pool.Query(ctx, `
		SELECT id, chain_id, code, type, address, city, zipcode, lat, lon, phone, created_at, updated_at
		FROM stores
		WHERE lat BETWEEN $1 AND $2 AND lon BETWEEN $3 AND $4
	`, minLat, maxLat, minLon, maxLon)
	if err != nil {
		return nil, fmt.Errorf("query nearby stores: %w", err)
	}
	defer rows.Close()

	stores := make([]Store, 0)
	for rows.Next() {
		var s Store
		if err := rows.Scan(
			&s.ID, &s.ChainID, &s.Code, &s.Type, &s.Address, &s.City,
			&s.ZipCode, &s.Lat, &s.Lon, &s.Phone, &s.CreatedAt, &s.UpdatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan store: %w", err)
		}
		stores = append(stores, s)
	}
	return stores, rows.Err()
}

// StoreDistance pairs a Store with its great-circle distance from the query
// point, the shape find_nearby_stores_v2 (§4.H) returns.
type StoreDistance struct {
	Store
	DistanceMeters float64
}

// NearbyStoresWithChain runs NearbyStores' bounding-box prefilter (sized from
// radiusMeters) then applies the exact Haversine cutoff and optional
// chain_code filter in Go, ordered ascending by distance — the query behind
// the chat orchestrator's find_nearby_stores_v2 tool.
func NearbyStoresWithChain(ctx context.Context, lat, lon, radiusMeters float64, chainCode *string) ([]StoreDistance, error) {
	const kmPerDegreeLat = 111.32
	radiusKm := radiusMeters / 1000.0
	latDelta := radiusKm / kmPerDegreeLat
	lonDelta := radiusKm / (kmPerDegreeLat * cosDeg(lat))

	pool := Pool()

	query := `
		SELECT s.id, s.chain_id, s.code, s.type, s.address, s.city, s.zipcode,
			s.lat, s.lon, s.phone, s.created_at, s.updated_at
		FROM stores s
		JOIN chains c ON c.id = s.chain_id
		WHERE s.lat BETWEEN $1 AND $2 AND s.lon BETWEEN $3 AND $4
			AND ($5::text IS NULL OR c.code = $5)
	`
	rows, err := pool.Query(ctx, query,
		lat-latDelta, lat+latDelta, lon-lonDelta, lon+lonDelta, chainCode)
	if err != nil {
		return nil, fmt.Errorf("query nearby stores: %w", err)
	}
	defer rows.Close()

	out := make([]StoreDistance, 0)
	for rows.Next() {
		var s Store
		if err := rows.Scan(
			&s.ID, &s.ChainID, &s.Code, &s.Type, &s.Address, &s.City,
			&s.ZipCode, &s.Lat, &s.Lon, &s.Phone, &s.CreatedAt, &s.UpdatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan store: %w", err)
		}
		if s.Lat == nil || s.Lon == nil {
			continue
		}
		distKm := haversineKm(lat, lon, *s.Lat, *s.Lon)
		if distKm*1000 > radiusMeters {
			continue
		}
		out = append(out, StoreDistance{Store: s, DistanceMeters: distKm * 1000})
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	sort.Slice(out, func(i, j int) bool { return out[i].DistanceMeters < out[j].DistanceMeters })
	return out, nil
}

func cosDeg(deg float64) float64 {
	return math.Cos(deg * math.Pi / 180)
}

// haversineKm duplicates internal/optimizer.HaversineKm's formula so this
// low-level database package doesn't take on a dependency for one function.
func haversineKm(lat1, lon1, lat2, lon2 float64) float64 {
	const R = 6371.0
	toRad := func(deg float64) float64 { return deg * math.Pi / 180 }
	dLat := toRad(lat2 - lat1)
	dLon := toRad(lon2 - lon1)
	a := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(toRad(lat1))*math.Cos(toRad(lat2))*
			math.Sin(dLon/2)*math.Sin(dLon/2)
	c := 2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))
	return R * c
}

// UpdateStoreLocation sets a store's geocoded coordinates.
func UpdateStoreLocation(ctx context.Context, storeID int64, lat, lon float64) error {
	pool := Pool()

	_, err := pool.Exec(ctx, `
		UPDATE stores SET lat = $1, lon = $2, updated_at = NOW() WHERE id = $3
	`, lat, lon, storeID)
	if err != nil {
		return fmt.Errorf("update store %d location: %w", storeID, err)
	}
	return nil
}

// StoresMissingLocation returns stores with an address but no lat/lon, the
// candidate set for the geocoding batch job (§3 supplemented feature).
func StoresMissingLocation(ctx context.Context, limit int) ([]Store, error) {
	pool := Pool()

	rows, err := pool.Query(ctx, `
		SELECT id, chain_id, code, type, address, city, zipcode, lat, lon, phone, created_at, updated_at
		FROM stores
		WHERE (lat IS NULL OR lon IS NULL) AND address IS NOT NULL AND address != ''
		ORDER BY id
		LIMIT $1
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("query stores missing location: %w", err)
	}
	defer rows.Close()

	stores := make([]Store, 0)
	for rows.Next() {
		var s Store
		if err := rows.Scan(
			&s.ID, &s.ChainID, &s.Code, &s.Type, &s.Address, &s.City,
			&s.ZipCode, &s.Lat, &s.Lon, &s.Phone, &s.CreatedAt, &s.UpdatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan store: %w", err)
		}
		stores = append(stores, s)
	}
	return stores, rows.Err()
}
