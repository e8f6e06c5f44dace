package postgres

import (
	"context"
	"database/sql"
	stderrors "errors"
	"time"

	"permohonan-service/internal/common/errors"
	"permohonan-service/internal/models"

	"github.com/lib/pq"
)

const documentColumns = `id, permohonan_id, requirement_id, original_filename, mime_type, size_bytes, storage_locator, content_hash, validation_status, uploaded_by, verified_by, verified_at, created_at, updated_at`

func scanDocument(row rowScanner) (*models.ApplicationDocument, error) {
	var (
		doc        models.ApplicationDocument
		hash       sql.NullString
		status     string
		verifiedBy sql.NullString
		verifiedAt sql.NullTime
	)
	if err := row.Scan(
		&doc.ID, &doc.PermohonanID, &doc.RequirementID, &doc.OriginalFilename, &doc.MimeType,
		&doc.SizeBytes, &doc.StorageLocator, &hash, &status, &doc.UploadedBy,
		&verifiedBy, &verifiedAt, &doc.CreatedAt, &doc.UpdatedAt,
	); err != nil {
		return nil, err
	}
	doc.ContentHash = hash.String
	doc.ValidationStatus = models.ValidationStatus(status)
	if verifiedBy.Valid {
		v := verifiedBy.String
		doc.VerifiedBy = &v
	}
	if verifiedAt.Valid {
		t := verifiedAt.Time.UTC()
		doc.VerifiedAt = &t
	}
	return &doc, nil
}

func (r *Repository) ListDocuments(ctx context.Context, permohonanID string) ([]models.ApplicationDocument, error) {
	if !validID(permohonanID) {
		return nil, nil
	}
	rows, err := r.db.QueryContext(ctx, `
		SELECT `+documentColumns+`
		FROM permohonan_documents
		WHERE permohonan_id = $1
		ORDER BY requirement_id`, permohonanID)
	if err != nil {
		return nil, errors.NewDatabaseError("list documents", err)
	}
	defer rows.Close()

	var docs []models.ApplicationDocument
	for rows.Next() {
		doc, err := scanDocument(rows)
		if err != nil {
			return nil, errors.NewDatabaseError("scan document", err)
		}
		docs = append(docs, *doc)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.NewDatabaseError("iterate documents", err)
	}
	return docs, nil
}

func (r *Repository) FindDocument(ctx context.Context, id string) (*models.ApplicationDocument, error) {
	if !validID(id) {
		return nil, errors.NewNotFoundError("document", id)
	}
	doc, err := scanDocument(r.db.QueryRowContext(ctx,
		`SELECT `+documentColumns+` FROM permohonan_documents WHERE id = $1`, id))
	if err == sql.ErrNoRows {
		return nil, errors.NewNotFoundError("document", id)
	}
	if err != nil {
		return nil, errors.NewDatabaseError("select document", err)
	}
	return doc, nil
}

// lockDraftParent takes the row lock on the parent so document writes
// serialize with each other and with status transitions.
func lockDraftParent(ctx context.Context, tx *sql.Tx, permohonanID string) error {
	var status string
	err := tx.QueryRowContext(ctx,
		`SELECT status FROM permohonan WHERE id = $1 FOR UPDATE`, permohonanID).Scan(&status)
	if err == sql.ErrNoRows {
		return errors.NewNotFoundError("permohonan", permohonanID)
	}
	if err != nil {
		return errors.NewDatabaseError("lock permohonan", err)
	}
	if models.Status(status) != models.StatusDraft {
		return errors.NewPermohonanNotDraftError(permohonanID, status)
	}
	return nil
}

func (r *Repository) ReplaceDocument(ctx context.Context, doc models.ApplicationDocument) (*models.ApplicationDocument, error) {
	if !validID(doc.PermohonanID) {
		return nil, errors.NewNotFoundError("permohonan", doc.PermohonanID)
	}
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, errors.NewDatabaseError("begin replace document", err)
	}
	defer tx.Rollback() //nolint:errcheck

	if err := lockDraftParent(ctx, tx, doc.PermohonanID); err != nil {
		return nil, err
	}

	previous, err := scanDocument(tx.QueryRowContext(ctx, `
		SELECT `+documentColumns+`
		FROM permohonan_documents
		WHERE permohonan_id = $1 AND requirement_id = $2
		FOR UPDATE`, doc.PermohonanID, doc.RequirementID))
	switch {
	case err == sql.ErrNoRows:
		previous = nil
	case err != nil:
		return nil, errors.NewDatabaseError("select previous document", err)
	case previous.IsVerified():
		return nil, errors.NewDocumentAlreadyValidatedError(previous.ID)
	default:
		if _, err := tx.ExecContext(ctx, `DELETE FROM permohonan_documents WHERE id = $1`, previous.ID); err != nil {
			return nil, errors.NewDatabaseError("delete previous document", err)
		}
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO permohonan_documents (`+documentColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, NULL, NULL, $11, $11)`,
		doc.ID, doc.PermohonanID, doc.RequirementID, doc.OriginalFilename, doc.MimeType,
		doc.SizeBytes, doc.StorageLocator, sql.NullString{String: doc.ContentHash, Valid: doc.ContentHash != ""},
		string(models.DocumentUnverified), doc.UploadedBy, doc.CreatedAt,
	)
	if err != nil {
		var pqErr *pq.Error
		if stderrors.As(err, &pqErr) && pqErr.Code == pqUniqueViolation {
			// only reachable if the parent lock was bypassed
			return nil, errors.NewDatabaseError("insert document: duplicate requirement", err)
		}
		return nil, errors.NewDatabaseError("insert document", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, errors.NewDatabaseError("commit replace document", err)
	}
	return previous, nil
}

func (r *Repository) DeleteDocument(ctx context.Context, id string) (*models.ApplicationDocument, error) {
	if !validID(id) {
		return nil, errors.NewNotFoundError("document", id)
	}
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, errors.NewDatabaseError("begin delete document", err)
	}
	defer tx.Rollback() //nolint:errcheck

	var permohonanID string
	err = tx.QueryRowContext(ctx, `SELECT permohonan_id FROM permohonan_documents WHERE id = $1`, id).Scan(&permohonanID)
	if err == sql.ErrNoRows {
		return nil, errors.NewNotFoundError("document", id)
	}
	if err != nil {
		return nil, errors.NewDatabaseError("select document parent", err)
	}

	if err := lockDraftParent(ctx, tx, permohonanID); err != nil {
		return nil, err
	}

	doc, err := scanDocument(tx.QueryRowContext(ctx,
		`SELECT `+documentColumns+` FROM permohonan_documents WHERE id = $1 FOR UPDATE`, id))
	if err == sql.ErrNoRows {
		return nil, errors.NewNotFoundError("document", id)
	}
	if err != nil {
		return nil, errors.NewDatabaseError("lock document", err)
	}
	if doc.IsVerified() {
		return nil, errors.NewDocumentAlreadyValidatedError(id)
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM permohonan_documents WHERE id = $1`, id); err != nil {
		return nil, errors.NewDatabaseError("delete document", err)
	}
	if err := tx.Commit(); err != nil {
		return nil, errors.NewDatabaseError("commit delete document", err)
	}
	return doc, nil
}

func (r *Repository) MarkDocumentVerified(ctx context.Context, id, verifierID string, at time.Time) (*models.ApplicationDocument, error) {
	if !validID(id) {
		return nil, errors.NewNotFoundError("document", id)
	}
	if !validID(verifierID) {
		return nil, errors.NewValidationFailedError([]errors.FieldError{{Field: "verifierId", Message: "must be a UUID"}})
	}
	doc, err := scanDocument(r.db.QueryRowContext(ctx, `
		UPDATE permohonan_documents SET
			validation_status = $2,
			verified_by = $3,
			verified_at = $4,
			updated_at = $4
		WHERE id = $1
		RETURNING `+documentColumns,
		id, string(models.DocumentVerified), verifierID, at,
	))
	if err == sql.ErrNoRows {
		return nil, errors.NewNotFoundError("document", id)
	}
	if err != nil {
		return nil, errors.NewDatabaseError("verify document", err)
	}
	return doc, nil
}
