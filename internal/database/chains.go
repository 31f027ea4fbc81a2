package database

import (
	"context"
	"fmt"
)

// UpsertChain inserts a chain or returns its existing row, keyed by code.
func UpsertChain(ctx context.Context, code, name string, website *string) (*Chain, error) {
	pool := Pool()

	query := `
		INSERT INTO chains (code, name, website, created_at)
		VALUES ($1, $2, $3, NOW())
		ON CONFLICT (code) DO UPDATE SET
			name = EXCLUDED.name,
			website = COALESCE(EXCLUDED.website, chains.website)
		RETURNING id, code, name, website, created_at
	`

	var c Chain
	err := pool.QueryRow(ctx, query, code, name, website).Scan(
		&c.ID, &c.Code, &c.Name, &c.Website, &c.CreatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("upsert chain %s: %w", code, err)
	}
	return &c, nil
}

// GetChainByCode retrieves a chain by its slug (konzum, lidl, ...).
func GetChainByCode(ctx context.Context, code string) (*Chain, error) {
	pool := Pool()

	var c Chain
	err := pool.QueryRow(ctx, `
		SELECT id, code, name, website, created_at FROM chains WHERE code = $1
	`, code).Scan(&c.ID, &c.Code, &c.Name, &c.Website, &c.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("get chain %s: %w", code, err)
	}
	return &c, nil
}

// ListChains returns every registered chain.
func ListChains(ctx context.Context) ([]Chain, error) {
	pool := Pool()

	rows, err := pool.Query(ctx, `
		SELECT id, code, name, website, created_at FROM chains ORDER BY code
	`)
	if err != nil {
		return nil, fmt.Errorf("list chains: %w", err)
	}
	defer rows.Close()

	chains := make([]Chain, 0)
	for rows.Next() {
		var c Chain
		if err := rows.Scan(&c.ID, &c.Code, &c.Name, &c.Website, &c.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan chain: %w", err)
		}
		chains = append(chains, c)
	}
	return chains, rows.Err()
}
