package database

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Archive is the metadata record for one ZIP bundle produced by the archive
// writer (§2.B): one per chain per crawl date, containing the deterministic
// CSVs for every discovered store/product/price.
type Archive struct {
	ID          string    `json:"id"` // arc_{uuid}
	ChainName   string    `json:"chain_name"`
	CrawlRunID  *int64    `json:"crawl_run_id"`
	CrawlDate   time.Time `json:"crawl_date"`
	ArchivePath string    `json:"archive_path"` // storage key/path
	ArchiveType string    `json:"archive_type"` // 'local', 's3'
	FileSize    int64     `json:"file_size"`
	Checksum    string    `json:"checksum"` // SHA-256, used for crawl-run dedup
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// ArchiveFilterOptions filters archive listings.
type ArchiveFilterOptions struct {
	ChainName *string
	StartDate *time.Time
	EndDate   *time.Time
	Limit     int
	Offset    int
}

// CreateArchive inserts or updates an archive record.
func CreateArchive(ctx context.Context, archive *Archive) error {
	pool := Pool()

	now := time.Now()
	archive.CreatedAt = now
	archive.UpdatedAt = now

	query := `
		INSERT INTO archives (
			id, chain_name, crawl_run_id, crawl_date, archive_path,
			archive_type, file_size, checksum, created_at, updated_at
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7, $8, $9, $10
		)
		ON CONFLICT (id) DO UPDATE SET
			crawl_run_id = EXCLUDED.crawl_run_id,
			archive_path = EXCLUDED.archive_path,
			archive_type = EXCLUDED.archive_type,
			file_size = EXCLUDED.file_size,
			checksum = EXCLUDED.checksum,
			updated_at = EXCLUDED.updated_at
	`

	_, err := pool.Exec(ctx, query,
		archive.ID, archive.ChainName, archive.CrawlRunID, archive.CrawlDate,
		archive.ArchivePath, archive.ArchiveType, archive.FileSize,
		archive.Checksum, archive.CreatedAt, archive.UpdatedAt,
	)

	return err
}

// GetArchiveByChecksum looks up an archive by checksum — used by the
// ingestion orchestrator to skip re-archiving an unchanged source (the
// SKIPPED crawl-run status, §5 open-question decision).
func GetArchiveByChecksum(ctx context.Context, checksum string) (*Archive, error) {
	pool := Pool()

	query := `
		SELECT id, chain_name, crawl_run_id, crawl_date, archive_path,
			archive_type, file_size, checksum, created_at, updated_at
		FROM archives
		WHERE checksum = $1
		LIMIT 1
	`

	var archive Archive
	err := pool.QueryRow(ctx, query, checksum).Scan(
		&archive.ID, &archive.ChainName, &archive.CrawlRunID, &archive.CrawlDate,
		&archive.ArchivePath, &archive.ArchiveType, &archive.FileSize,
		&archive.Checksum, &archive.CreatedAt, &archive.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	return &archive, nil
}

// GetArchiveByID retrieves an archive by its ID.
func GetArchiveByID(ctx context.Context, id string) (*Archive, error) {
	pool := Pool()

	query := `
		SELECT id, chain_name, crawl_run_id, crawl_date, archive_path,
			archive_type, file_size, checksum, created_at, updated_at
		FROM archives
		WHERE id = $1
	`

	var archive Archive
	err := pool.QueryRow(ctx, query, id).Scan(
		&archive.ID, &archive.ChainName, &archive.CrawlRunID, &archive.CrawlDate,
		&archive.ArchivePath, &archive.ArchiveType, &archive.FileSize,
		&archive.Checksum, &archive.CreatedAt, &archive.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	return &archive, nil
}

// GetArchivesByChain retrieves archives for a chain, most recent first.
func GetArchivesByChain(ctx context.Context, chainName string, limit, offset int) ([]Archive, error) {
	pool := Pool()

	query := `
		SELECT id, chain_name, crawl_run_id, crawl_date, archive_path,
			archive_type, file_size, checksum, created_at, updated_at
		FROM archives
		WHERE chain_name = $1
		ORDER BY crawl_date DESC
		LIMIT $2 OFFSET $3
	`

	rows, err := pool.Query(ctx, query, chainName, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	archives := make([]Archive, 0)
	for rows.Next() {
		var archive Archive
		if err := rows.Scan(
			&archive.ID, &archive.ChainName, &archive.CrawlRunID, &archive.CrawlDate,
			&archive.ArchivePath, &archive.ArchiveType, &archive.FileSize,
			&archive.Checksum, &archive.CreatedAt, &archive.UpdatedAt,
		); err != nil {
			return nil, err
		}
		archives = append(archives, archive)
	}

	return archives, nil
}

// LinkArchiveToCrawlRun associates an archive with the crawl run that produced it.
func LinkArchiveToCrawlRun(ctx context.Context, archiveID string, crawlRunID int64) error {
	pool := Pool()

	_, err := pool.Exec(ctx, `
		UPDATE archives SET crawl_run_id = $1 WHERE id = $2
	`, crawlRunID, archiveID)
	return err
}

// SetImportRunUnzippedPath records where the import engine expanded an
// archive's contents, for operator inspection after the fact.
func SetImportRunUnzippedPath(ctx context.Context, importRunID int64, path string) error {
	pool := Pool()

	_, err := pool.Exec(ctx, `
		UPDATE import_runs SET unzipped_path = $1 WHERE id = $2
	`, path, importRunID)
	return err
}

// CalculateChecksum computes the SHA-256 checksum of data.
func CalculateChecksum(data []byte) string {
	hash := sha256.Sum256(data)
	return hex.EncodeToString(hash[:])
}

// GenerateArchiveID generates a new archive ID with an "arc_" prefix.
func GenerateArchiveID() string {
	return fmt.Sprintf("arc_%s", uuid.New().String())
}
