package postgres

import (
	"context"
	"database/sql"

	"permohonan-service/internal/common/errors"
)

// Directory reads users and companies maintained by the registration and
// SSM verification flows.
type Directory struct {
	db *sql.DB
}

func NewDirectory(db *sql.DB) *Directory {
	return &Directory{db: db}
}

func (d *Directory) CompanyOwner(ctx context.Context, companyID string) (string, error) {
	if !validID(companyID) {
		return "", errors.NewNotFoundError("company", companyID)
	}
	var ownerID string
	err := d.db.QueryRowContext(ctx, `SELECT owner_id FROM companies WHERE id = $1`, companyID).Scan(&ownerID)
	if err == sql.ErrNoRows {
		return "", errors.NewNotFoundError("company", companyID)
	}
	if err != nil {
		return "", errors.NewDatabaseError("select company owner", err)
	}
	return ownerID, nil
}

// IsIdentityVerified reports false for unknown users.
func (d *Directory) IsIdentityVerified(ctx context.Context, userID string) (bool, error) {
	if !validID(userID) {
		return false, nil
	}
	var verified bool
	err := d.db.QueryRowContext(ctx, `SELECT identity_verified FROM users WHERE id = $1`, userID).Scan(&verified)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, errors.NewDatabaseError("select identity", err)
	}
	return verified, nil
}
