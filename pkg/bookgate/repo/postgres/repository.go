package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/bookgate/bookgate/pkg/bookgate"
)

// DBTX is an interface that allows us to use either a database
// connection or a transaction
type DBTX interface {
	Exec(context.Context, string, ...interface{}) (pgconn.CommandTag, error)
	Query(context.Context, string, ...interface{}) (pgx.Rows, error)
	QueryRow(context.Context, string, ...interface{}) pgx.Row
}

// Repository implements bookgate.Repository using PostgreSQL
type Repository struct {
	db DBTX
}

// New creates a new PostgreSQL repository
func New(db DBTX) bookgate.Repository {
	return &Repository{db: db}
}

// NewWithPool creates a new PostgreSQL repository with connection pool
func NewWithPool(pool *pgxpool.Pool) bookgate.Repository {
	return &Repository{db: pool}
}

// Error handling helper
func (r *Repository) handlePostgresError(operation string, err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case "23505": // unique_violation
			if strings.Contains(pgErr.ConstraintName, "code_value") {
				return bookgate.ErrCodeExists
			}
			if strings.Contains(pgErr.ConstraintName, "code_user") {
				return bookgate.ErrAlreadyRedeemed
			}
			return fmt.Errorf("duplicate entry")
		case "23503": // foreign_key_violation
			return fmt.Errorf("referenced record not found")
		case "23502": // not_null_violation
			return fmt.Errorf("required field %s is missing", pgErr.ColumnName)
		case "42P01": // undefined_table
			return fmt.Errorf("table does not exist - database migration required")
		default:
			return fmt.Errorf("database error in %s: %s (code: %s)", operation, pgErr.Message, pgErr.Code)
		}
	}

	return fmt.Errorf("database error in %s: %w", operation, err)
}

// resourceDocs carries the jsonb-encoded sub-documents of a resource
// row.
type resourceDocs struct {
	pageAudio []byte
	pageVideo []byte
	answers   []byte
	materials []byte
	classroom []byte
	glossary  []byte
}

func encodeResourceDocs(resource *bookgate.Resource) (*resourceDocs, error) {
	docs := &resourceDocs{}
	var err error
	if docs.pageAudio, err = json.Marshal(emptyIfNil(resource.PageAudio)); err != nil {
		return nil, fmt.Errorf("failed to encode page audio: %w", err)
	}
	if docs.pageVideo, err = json.Marshal(emptyIfNil(resource.PageVideo)); err != nil {
		return nil, fmt.Errorf("failed to encode page video: %w", err)
	}
	if docs.answers, err = json.Marshal(emptyGroupsIfNil(resource.Answers)); err != nil {
		return nil, fmt.Errorf("failed to encode answers: %w", err)
	}
	if docs.materials, err = json.Marshal(emptyGroupsIfNil(resource.Materials)); err != nil {
		return nil, fmt.Errorf("failed to encode materials: %w", err)
	}
	if resource.Classroom != nil {
		if docs.classroom, err = json.Marshal(resource.Classroom); err != nil {
			return nil, fmt.Errorf("failed to encode classroom: %w", err)
		}
	}
	if docs.glossary, err = json.Marshal(emptyGlossaryIfNil(resource.Glossary)); err != nil {
		return nil, fmt.Errorf("failed to encode glossary: %w", err)
	}
	return docs, nil
}

func (d *resourceDocs) decodeInto(resource *bookgate.Resource) error {
	if err := json.Unmarshal(d.pageAudio, &resource.PageAudio); err != nil {
		return fmt.Errorf("failed to decode page audio: %w", err)
	}
	if err := json.Unmarshal(d.pageVideo, &resource.PageVideo); err != nil {
		return fmt.Errorf("failed to decode page video: %w", err)
	}
	if err := json.Unmarshal(d.answers, &resource.Answers); err != nil {
		return fmt.Errorf("failed to decode answers: %w", err)
	}
	if err := json.Unmarshal(d.materials, &resource.Materials); err != nil {
		return fmt.Errorf("failed to decode materials: %w", err)
	}
	if len(d.classroom) > 0 {
		resource.Classroom = &bookgate.Classroom{}
		if err := json.Unmarshal(d.classroom, resource.Classroom); err != nil {
			return fmt.Errorf("failed to decode classroom: %w", err)
		}
	}
	if err := json.Unmarshal(d.glossary, &resource.Glossary); err != nil {
		return fmt.Errorf("failed to decode glossary: %w", err)
	}
	return nil
}

func emptyIfNil(media []bookgate.PageMedia) []bookgate.PageMedia {
	if media == nil {
		return []bookgate.PageMedia{}
	}
	return media
}

func emptyGroupsIfNil(groups []bookgate.MaterialGroup) []bookgate.MaterialGroup {
	if groups == nil {
		return []bookgate.MaterialGroup{}
	}
	return groups
}

func emptyGlossaryIfNil(entries []bookgate.GlossaryEntry) []bookgate.GlossaryEntry {
	if entries == nil {
		return []bookgate.GlossaryEntry{}
	}
	return entries
}

// Resource operations

func (r *Repository) CreateResource(ctx context.Context, resource *bookgate.Resource) error {
	docs, err := encodeResourceDocs(resource)
	if err != nil {
		return err
	}

	query := `
		INSERT INTO resource (
			id, title, target_role, cover_url, document_url,
			page_audio, page_video, answers, materials, classroom, glossary,
			created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)`

	_, err = r.db.Exec(ctx, query,
		resource.ID, resource.Title, resource.TargetRole,
		resource.CoverURL, resource.DocumentURL,
		docs.pageAudio, docs.pageVideo, docs.answers, docs.materials,
		docs.classroom, docs.glossary,
		resource.CreatedAt, resource.UpdatedAt)

	if err != nil {
		return r.handlePostgresError("create resource", err)
	}
	return nil
}

func (r *Repository) GetResource(ctx context.Context, id uuid.UUID) (*bookgate.Resource, error) {
	query := `
		SELECT id, title, target_role, cover_url, document_url,
		       page_audio, page_video, answers, materials, classroom, glossary,
		       created_at, updated_at
		FROM resource WHERE id = $1`

	var resource bookgate.Resource
	var docs resourceDocs
	err := r.db.QueryRow(ctx, query, id).Scan(
		&resource.ID, &resource.Title, &resource.TargetRole,
		&resource.CoverURL, &resource.DocumentURL,
		&docs.pageAudio, &docs.pageVideo, &docs.answers, &docs.materials,
		&docs.classroom, &docs.glossary,
		&resource.CreatedAt, &resource.UpdatedAt)

	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, bookgate.ErrResourceNotFound
		}
		return nil, r.handlePostgresError("get resource", err)
	}

	if err := docs.decodeInto(&resource); err != nil {
		return nil, err
	}
	return &resource, nil
}

func (r *Repository) UpdateResource(ctx context.Context, resource *bookgate.Resource) error {
	docs, err := encodeResourceDocs(resource)
	if err != nil {
		return err
	}

	query := `
		UPDATE resource SET
			title = $2, target_role = $3, cover_url = $4, document_url = $5,
			page_audio = $6, page_video = $7, answers = $8, materials = $9,
			classroom = $10, glossary = $11, updated_at = $12
		WHERE id = $1`

	tag, err := r.db.Exec(ctx, query,
		resource.ID, resource.Title, resource.TargetRole,
		resource.CoverURL, resource.DocumentURL,
		docs.pageAudio, docs.pageVideo, docs.answers, docs.materials,
		docs.classroom, docs.glossary,
		resource.UpdatedAt)

	if err != nil {
		return r.handlePostgresError("update resource", err)
	}
	if tag.RowsAffected() == 0 {
		return bookgate.ErrResourceNotFound
	}
	return nil
}

func (r *Repository) DeleteResource(ctx context.Context, id uuid.UUID) error {
	tag, err := r.db.Exec(ctx, `DELETE FROM resource WHERE id = $1`, id)
	if err != nil {
		return r.handlePostgresError("delete resource", err)
	}
	if tag.RowsAffected() == 0 {
		return bookgate.ErrResourceNotFound
	}
	return nil
}

func (r *Repository) ListResources(ctx context.Context) ([]*bookgate.Resource, error) {
	query := `
		SELECT id, title, target_role, cover_url, document_url,
		       page_audio, page_video, answers, materials, classroom, glossary,
		       created_at, updated_at
		FROM resource ORDER BY created_at DESC`

	rows, err := r.db.Query(ctx, query)
	if err != nil {
		return nil, r.handlePostgresError("list resources", err)
	}
	defer rows.Close()

	var resources []*bookgate.Resource
	for rows.Next() {
		var resource bookgate.Resource
		var docs resourceDocs
		err := rows.Scan(
			&resource.ID, &resource.Title, &resource.TargetRole,
			&resource.CoverURL, &resource.DocumentURL,
			&docs.pageAudio, &docs.pageVideo, &docs.answers, &docs.materials,
			&docs.classroom, &docs.glossary,
			&resource.CreatedAt, &resource.UpdatedAt)
		if err != nil {
			return nil, r.handlePostgresError("list resources", err)
		}
		if err := docs.decodeInto(&resource); err != nil {
			return nil, err
		}
		resources = append(resources, &resource)
	}
	return resources, rows.Err()
}

// Activation code operations

func (r *Repository) CreateCode(ctx context.Context, code *bookgate.ActivationCode) error {
	query := `
		INSERT INTO activation_code (
			id, resource_id, code_value, max_activations, expiry_date,
			is_active, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`

	_, err := r.db.Exec(ctx, query,
		code.ID, code.ResourceID, code.CodeValue, code.MaxActivations,
		code.ExpiryDate, code.IsActive, code.CreatedAt, code.UpdatedAt)

	if err != nil {
		return r.handlePostgresError("create code", err)
	}
	return nil
}

const codeColumns = `id, resource_id, code_value, max_activations, expiry_date,
	       is_active, created_at, updated_at`

func scanCode(row pgx.Row) (*bookgate.ActivationCode, error) {
	var code bookgate.ActivationCode
	err := row.Scan(
		&code.ID, &code.ResourceID, &code.CodeValue, &code.MaxActivations,
		&code.ExpiryDate, &code.IsActive, &code.CreatedAt, &code.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &code, nil
}

func (r *Repository) GetCode(ctx context.Context, id uuid.UUID) (*bookgate.ActivationCode, error) {
	query := `SELECT ` + codeColumns + ` FROM activation_code WHERE id = $1`

	code, err := scanCode(r.db.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, bookgate.ErrCodeNotFound
		}
		return nil, r.handlePostgresError("get code", err)
	}
	return code, nil
}

func (r *Repository) GetCodeByValue(ctx context.Context, codeValue string) (*bookgate.ActivationCode, error) {
	query := `SELECT ` + codeColumns + ` FROM activation_code WHERE code_value = $1`

	code, err := scanCode(r.db.QueryRow(ctx, query, codeValue))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("%w: %s", bookgate.ErrCodeNotFound, codeValue)
		}
		return nil, r.handlePostgresError("get code by value", err)
	}
	return code, nil
}

func (r *Repository) UpdateCode(ctx context.Context, code *bookgate.ActivationCode) error {
	query := `
		UPDATE activation_code SET
			resource_id = $2, code_value = $3, max_activations = $4,
			expiry_date = $5, is_active = $6, updated_at = $7
		WHERE id = $1`

	tag, err := r.db.Exec(ctx, query,
		code.ID, code.ResourceID, code.CodeValue, code.MaxActivations,
		code.ExpiryDate, code.IsActive, code.UpdatedAt)

	if err != nil {
		return r.handlePostgresError("update code", err)
	}
	if tag.RowsAffected() == 0 {
		return bookgate.ErrCodeNotFound
	}
	return nil
}

func (r *Repository) DeleteCode(ctx context.Context, id uuid.UUID) error {
	if _, err := r.db.Exec(ctx, `DELETE FROM activation_grant WHERE code_id = $1`, id); err != nil {
		return r.handlePostgresError("delete code", err)
	}
	tag, err := r.db.Exec(ctx, `DELETE FROM activation_code WHERE id = $1`, id)
	if err != nil {
		return r.handlePostgresError("delete code", err)
	}
	if tag.RowsAffected() == 0 {
		return bookgate.ErrCodeNotFound
	}
	return nil
}

func (r *Repository) DeleteCodesByResource(ctx context.Context, resourceID uuid.UUID) error {
	query := `
		DELETE FROM activation_grant WHERE code_id IN (
			SELECT id FROM activation_code WHERE resource_id = $1
		)`
	if _, err := r.db.Exec(ctx, query, resourceID); err != nil {
		return r.handlePostgresError("delete codes by resource", err)
	}
	if _, err := r.db.Exec(ctx, `DELETE FROM activation_code WHERE resource_id = $1`, resourceID); err != nil {
		return r.handlePostgresError("delete codes by resource", err)
	}
	return nil
}

func (r *Repository) ListCodes(ctx context.Context) ([]*bookgate.ActivationCode, error) {
	query := `SELECT ` + codeColumns + ` FROM activation_code ORDER BY created_at DESC`

	rows, err := r.db.Query(ctx, query)
	if err != nil {
		return nil, r.handlePostgresError("list codes", err)
	}
	defer rows.Close()

	var codes []*bookgate.ActivationCode
	for rows.Next() {
		code, err := scanCode(rows)
		if err != nil {
			return nil, r.handlePostgresError("list codes", err)
		}
		codes = append(codes, code)
	}
	return codes, rows.Err()
}

// Grant operations

func (r *Repository) CreateGrant(ctx context.Context, grant *bookgate.ActivationGrant) error {
	query := `
		INSERT INTO activation_grant (id, code_id, user_id, activated_at)
		VALUES ($1, $2, $3, $4)`

	_, err := r.db.Exec(ctx, query,
		grant.ID, grant.CodeID, grant.UserID, grant.ActivatedAt)

	if err != nil {
		return r.handlePostgresError("create grant", err)
	}
	return nil
}

func (r *Repository) GetGrant(ctx context.Context, id uuid.UUID) (*bookgate.ActivationGrant, error) {
	query := `SELECT id, code_id, user_id, activated_at FROM activation_grant WHERE id = $1`

	var grant bookgate.ActivationGrant
	err := r.db.QueryRow(ctx, query, id).Scan(
		&grant.ID, &grant.CodeID, &grant.UserID, &grant.ActivatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, bookgate.ErrGrantNotFound
		}
		return nil, r.handlePostgresError("get grant", err)
	}
	return &grant, nil
}

func (r *Repository) GetGrantByCodeAndUser(ctx context.Context, codeID, userID uuid.UUID) (*bookgate.ActivationGrant, error) {
	query := `
		SELECT id, code_id, user_id, activated_at
		FROM activation_grant WHERE code_id = $1 AND user_id = $2`

	var grant bookgate.ActivationGrant
	err := r.db.QueryRow(ctx, query, codeID, userID).Scan(
		&grant.ID, &grant.CodeID, &grant.UserID, &grant.ActivatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, bookgate.ErrGrantNotFound
		}
		return nil, r.handlePostgresError("get grant by code and user", err)
	}
	return &grant, nil
}

func (r *Repository) CountGrants(ctx context.Context, codeID uuid.UUID) (int, error) {
	var count int
	err := r.db.QueryRow(ctx,
		`SELECT COUNT(*) FROM activation_grant WHERE code_id = $1`, codeID).Scan(&count)
	if err != nil {
		return 0, r.handlePostgresError("count grants", err)
	}
	return count, nil
}

func (r *Repository) listGrants(ctx context.Context, query string, args ...interface{}) ([]*bookgate.ActivationGrant, error) {
	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, r.handlePostgresError("list grants", err)
	}
	defer rows.Close()

	var grants []*bookgate.ActivationGrant
	for rows.Next() {
		var grant bookgate.ActivationGrant
		err := rows.Scan(&grant.ID, &grant.CodeID, &grant.UserID, &grant.ActivatedAt)
		if err != nil {
			return nil, r.handlePostgresError("list grants", err)
		}
		grants = append(grants, &grant)
	}
	return grants, rows.Err()
}

func (r *Repository) ListGrantsByUser(ctx context.Context, userID uuid.UUID) ([]*bookgate.ActivationGrant, error) {
	query := `
		SELECT id, code_id, user_id, activated_at
		FROM activation_grant WHERE user_id = $1 ORDER BY activated_at ASC`
	return r.listGrants(ctx, query, userID)
}

func (r *Repository) ListGrants(ctx context.Context) ([]*bookgate.ActivationGrant, error) {
	query := `
		SELECT id, code_id, user_id, activated_at
		FROM activation_grant ORDER BY activated_at DESC`
	return r.listGrants(ctx, query)
}

func (r *Repository) DeleteGrant(ctx context.Context, id uuid.UUID) error {
	tag, err := r.db.Exec(ctx, `DELETE FROM activation_grant WHERE id = $1`, id)
	if err != nil {
		return r.handlePostgresError("delete grant", err)
	}
	if tag.RowsAffected() == 0 {
		return bookgate.ErrGrantNotFound
	}
	return nil
}

func (r *Repository) DeleteGrantsByUser(ctx context.Context, userID uuid.UUID) error {
	if _, err := r.db.Exec(ctx, `DELETE FROM activation_grant WHERE user_id = $1`, userID); err != nil {
		return r.handlePostgresError("delete grants by user", err)
	}
	return nil
}
