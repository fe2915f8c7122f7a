package postgres

import (
	"context"
	"database/sql"

	"github.com/google/uuid"

	"github.com/coldfront-labs/coldfront/internal/models"
	"github.com/coldfront-labs/coldfront/internal/store"
)

type ContactImportStore struct {
	db *sql.DB
}

func NewContactImportStore(db *sql.DB) *ContactImportStore {
	return &ContactImportStore{db: db}
}

func (s *ContactImportStore) CreateContactImport(ctx context.Context, params store.ContactImportCreateParams) (*models.ContactImport, error) {
	ci := &models.ContactImport{
		PublicID:     uuid.New(),
		UserID:       params.UserID,
		FileName:     params.FileName,
		ArchiveKey:   params.ArchiveKey,
		TotalRows:    params.TotalRows,
		ImportedRows: params.ImportedRows,
		SkippedRows:  params.SkippedRows,
		Truncated:    params.Truncated,
	}
	err := s.db.QueryRowContext(ctx,
		`INSERT INTO contact_imports (public_id, user_id, file_name, archive_key, total_rows, imported_rows, skipped_rows, truncated)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		 RETURNING id, created_at`,
		ci.PublicID, ci.UserID, ci.FileName, ci.ArchiveKey, ci.TotalRows, ci.ImportedRows, ci.SkippedRows, ci.Truncated,
	).Scan(&ci.ID, &ci.CreatedAt)
	if err != nil {
		return nil, err
	}
	return ci, nil
}
