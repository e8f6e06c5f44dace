// Package postgres implements the repository contracts on PostgreSQL via lib/pq.
package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"strings"
	"time"

	"permohonan-service/internal/common/errors"
	"permohonan-service/internal/common/logger"
	"permohonan-service/internal/models"

	"github.com/google/uuid"
	"github.com/lib/pq"
)

const (
	pqForeignKeyViolation = "23503"
	pqUniqueViolation     = "23505"
)

const applicationColumns = `id, user_id, company_id, license_type_id, status, submitted_at, business_details, created_at, updated_at`

// Repository is the PostgreSQL ApplicationRepository.
type Repository struct {
	db     *sql.DB
	logger logger.Logger
}

func NewRepository(db *sql.DB, log logger.Logger) *Repository {
	return &Repository{
		db:     db,
		logger: log.WithFields(map[string]interface{}{"component": "application-repository"}),
	}
}

// validID reports whether id can name a row. Every key column is a UUID, so a
// malformed id matches nothing and is never sent to the server.
func validID(id string) bool {
	_, err := uuid.Parse(id)
	return err == nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanApplication(row rowScanner) (*models.Application, error) {
	var (
		app         models.Application
		status      string
		submittedAt sql.NullTime
		details     []byte
	)
	if err := row.Scan(
		&app.ID, &app.UserID, &app.CompanyID, &app.LicenseTypeID, &status,
		&submittedAt, &details, &app.CreatedAt, &app.UpdatedAt,
	); err != nil {
		return nil, err
	}
	app.Status = models.Status(status)
	if submittedAt.Valid {
		t := submittedAt.Time.UTC()
		app.SubmittedAt = &t
	}
	if len(details) > 0 {
		if err := json.Unmarshal(details, &app.BusinessDetails); err != nil {
			return nil, fmt.Errorf("decode business_details: %w", err)
		}
	}
	return &app, nil
}

func (r *Repository) Create(ctx context.Context, app models.Application) (*models.Application, error) {
	if !validID(app.UserID) {
		return nil, errors.NewNotFoundError("user", app.UserID)
	}
	if !validID(app.CompanyID) {
		return nil, errors.NewNotFoundError("company", app.CompanyID)
	}
	details, err := json.Marshal(app.BusinessDetails)
	if err != nil {
		return nil, fmt.Errorf("encode business_details: %w", err)
	}

	row := r.db.QueryRowContext(ctx, `
		INSERT INTO permohonan (`+applicationColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $8)
		RETURNING `+applicationColumns,
		app.ID, app.UserID, app.CompanyID, app.LicenseTypeID, string(app.Status),
		nullTime(app.SubmittedAt), details, app.CreatedAt,
	)
	created, err := scanApplication(row)
	if err != nil {
		var pqErr *pq.Error
		if stderrors.As(err, &pqErr) && pqErr.Code == pqForeignKeyViolation {
			entity := "user"
			if strings.Contains(pqErr.Constraint, "company") {
				entity = "company"
			}
			return nil, errors.NewNotFoundError(entity, referencedID(entity, app))
		}
		return nil, errors.NewDatabaseError("insert permohonan", err)
	}
	return created, nil
}

func referencedID(entity string, app models.Application) string {
	if entity == "company" {
		return app.CompanyID
	}
	return app.UserID
}

func (r *Repository) FindByID(ctx context.Context, id string) (*models.Application, error) {
	if !validID(id) {
		return nil, errors.NewNotFoundError("permohonan", id)
	}
	row := r.db.QueryRowContext(ctx, `SELECT `+applicationColumns+` FROM permohonan WHERE id = $1`, id)
	app, err := scanApplication(row)
	if err == sql.ErrNoRows {
		return nil, errors.NewNotFoundError("permohonan", id)
	}
	if err != nil {
		return nil, errors.NewDatabaseError("select permohonan", err)
	}
	return app, nil
}

func (r *Repository) ListForUser(ctx context.Context, userID string, filter models.ApplicationFilter, page models.Page) (*models.ApplicationPage, error) {
	page = page.Normalize()
	if !validID(userID) {
		return &models.ApplicationPage{Items: []models.Application{}, Limit: page.Limit, Offset: page.Offset}, nil
	}

	where := []string{"user_id = $1"}
	args := []interface{}{userID}
	if filter.Status != "" {
		args = append(args, string(filter.Status))
		where = append(where, fmt.Sprintf("status = $%d", len(args)))
	}
	if filter.LicenseTypeID != "" {
		args = append(args, filter.LicenseTypeID)
		where = append(where, fmt.Sprintf("license_type_id = $%d", len(args)))
	}
	clause := strings.Join(where, " AND ")

	var total int
	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM permohonan WHERE `+clause, args...).Scan(&total); err != nil {
		return nil, errors.NewDatabaseError("count permohonan", err)
	}

	query := fmt.Sprintf(`SELECT %s FROM permohonan WHERE %s ORDER BY created_at DESC, id LIMIT $%d OFFSET $%d`,
		applicationColumns, clause, len(args)+1, len(args)+2)
	rows, err := r.db.QueryContext(ctx, query, append(args, page.Limit, page.Offset)...)
	if err != nil {
		return nil, errors.NewDatabaseError("list permohonan", err)
	}
	defer rows.Close()

	items := make([]models.Application, 0, page.Limit)
	for rows.Next() {
		app, err := scanApplication(rows)
		if err != nil {
			return nil, errors.NewDatabaseError("scan permohonan", err)
		}
		items = append(items, *app)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.NewDatabaseError("iterate permohonan", err)
	}

	return &models.ApplicationPage{
		Items:  items,
		Total:  total,
		Limit:  page.Limit,
		Offset: page.Offset,
	}, nil
}

func (r *Repository) UpdateDraft(ctx context.Context, id string, patch models.ApplicationPatch, now time.Time) (*models.Application, error) {
	if !validID(id) {
		return nil, errors.NewNotFoundError("permohonan", id)
	}
	if patch.CompanyID != nil && !validID(*patch.CompanyID) {
		return nil, errors.NewNotFoundError("company", *patch.CompanyID)
	}
	detailsPatch := []byte("{}")
	if patch.BusinessDetails != nil {
		b, err := json.Marshal(patch.BusinessDetails)
		if err != nil {
			return nil, fmt.Errorf("encode business_details patch: %w", err)
		}
		detailsPatch = b
	}

	// jsonb || merges top-level keys, which are the leaves of the details record
	row := r.db.QueryRowContext(ctx, `
		UPDATE permohonan SET
			company_id = COALESCE($2, company_id),
			license_type_id = COALESCE($3, license_type_id),
			business_details = business_details || $4::jsonb,
			updated_at = $5
		WHERE id = $1 AND status = 'draft'
		RETURNING `+applicationColumns,
		id, nullString(patch.CompanyID), nullString(patch.LicenseTypeID), detailsPatch, now,
	)
	app, err := scanApplication(row)
	if err == sql.ErrNoRows {
		return nil, r.explainMiss(ctx, id)
	}
	if err != nil {
		return nil, errors.NewDatabaseError("update permohonan", err)
	}
	return app, nil
}

func (r *Repository) TransitionStatus(ctx context.Context, id string, from, to models.Status, submittedAt *time.Time, now time.Time) (*models.Application, error) {
	if !models.CanTransition(from, to) {
		return nil, fmt.Errorf("illegal transition %s -> %s", from, to)
	}
	if !validID(id) {
		return nil, errors.NewNotFoundError("permohonan", id)
	}

	row := r.db.QueryRowContext(ctx, `
		UPDATE permohonan SET
			status = $3,
			submitted_at = COALESCE($4, submitted_at),
			updated_at = $5
		WHERE id = $1 AND status = $2
		RETURNING `+applicationColumns,
		id, string(from), string(to), nullTime(submittedAt), now,
	)
	app, err := scanApplication(row)
	if err == sql.ErrNoRows {
		return nil, r.explainMiss(ctx, id)
	}
	if err != nil {
		return nil, errors.NewDatabaseError("transition permohonan", err)
	}

	r.logger.Info("permohonan status changed", map[string]interface{}{
		"permohonanId": id,
		"from":         string(from),
		"to":           string(to),
	})
	return app, nil
}

// explainMiss turns a conditional update that matched no row into NOT_FOUND or NOT_DRAFT.
func (r *Repository) explainMiss(ctx context.Context, id string) error {
	current, err := r.FindByID(ctx, id)
	if err != nil {
		return err
	}
	return errors.NewNotDraftError(id, string(current.Status))
}

func nullString(s *string) sql.NullString {
	if s == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *s, Valid: true}
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *t, Valid: true}
}
