package repository

import (
	"context"
	"database/sql"

	"github.com/vibast-solutions/ms-go-fan-billing/app/entity"
)

type PackageRepository struct {
	db DBTX
}

func NewPackageRepository(db DBTX) *PackageRepository {
	return &PackageRepository{db: db}
}

func (r *PackageRepository) FindByID(ctx context.Context, id string) (*entity.Package, error) {
	query := `
		SELECT id, idol_id, name, price, currency, status, created_at, updated_at
		FROM packages
		WHERE id = ?
	`

	item := &entity.Package{}
	err := r.db.QueryRowContext(ctx, query, id).Scan(
		&item.ID,
		&item.IdolID,
		&item.Name,
		&item.Price,
		&item.Currency,
		&item.Status,
		&item.CreatedAt,
		&item.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	return item, nil
}
