package sqlite

import (
	"context"
	"database/sql"

	"github.com/example/resource-scheduler/internal/persistence"
)

// AudienceRepository implements persistence.AudienceRepository using SQLite
type AudienceRepository struct {
	pool   *ConnectionPool
	mapper *ErrorMapper
}

// NewAudienceRepository creates a new SQLite audience repository
func NewAudienceRepository(pool *ConnectionPool) *AudienceRepository {
	return &AudienceRepository{pool: pool, mapper: NewErrorMapper()}
}

const audienceColumns = `id, name, color, parent_id, status, created_at, updated_at`

// CreateAudience inserts an audience. A parent that itself has a parent is
// rejected with ErrHierarchyDepth.
func (r *AudienceRepository) CreateAudience(ctx context.Context, audience persistence.Audience) error {
	if audience.ID == "" {
		return persistence.ErrConstraintViolation
	}
	query := `INSERT INTO audiences (` + audienceColumns + `) VALUES (?, ?, ?, ?, ?, ?, ?)`
	_, err := r.pool.DB().ExecContext(ctx, query,
		audience.ID,
		audience.Name,
		audience.Color,
		nullableString(audience.ParentID),
		string(audience.Status),
		formatTimestamp(audience.CreatedAt),
		formatTimestamp(audience.UpdatedAt),
	)
	return r.mapper.MapError(err)
}

// UpdateAudience replaces name, color, parent and status.
func (r *AudienceRepository) UpdateAudience(ctx context.Context, audience persistence.Audience) error {
	result, err := r.pool.DB().ExecContext(ctx, `
		UPDATE audiences
		SET name = ?, color = ?, parent_id = ?, status = ?, updated_at = ?
		WHERE id = ?
	`,
		audience.Name,
		audience.Color,
		nullableString(audience.ParentID),
		string(audience.Status),
		formatTimestamp(audience.UpdatedAt),
		audience.ID,
	)
	if err != nil {
		return r.mapper.MapError(err)
	}
	return requireAffected(result)
}

// GetAudience retrieves an audience by ID.
func (r *AudienceRepository) GetAudience(ctx context.Context, id string) (persistence.Audience, error) {
	row := r.pool.DB().QueryRowContext(ctx, `SELECT `+audienceColumns+` FROM audiences WHERE id = ?`, id)
	audience, err := scanAudience(row)
	if err != nil {
		return persistence.Audience{}, r.mapper.MapError(err)
	}
	return audience, nil
}

// ListAudiences returns every audience, parents before their children.
func (r *AudienceRepository) ListAudiences(ctx context.Context) ([]persistence.Audience, error) {
	return r.list(ctx, `SELECT `+audienceColumns+` FROM audiences ORDER BY COALESCE(parent_id, id), parent_id IS NOT NULL, name, id`)
}

// ListChildren returns the direct children of parentID.
func (r *AudienceRepository) ListChildren(ctx context.Context, parentID string) ([]persistence.Audience, error) {
	return r.list(ctx, `SELECT `+audienceColumns+` FROM audiences WHERE parent_id = ? ORDER BY name, id`, parentID)
}

func (r *AudienceRepository) list(ctx context.Context, query string, args ...any) ([]persistence.Audience, error) {
	rows, err := r.pool.DB().QueryContext(ctx, query, args...)
	if err != nil {
		return nil, r.mapper.MapError(err)
	}
	defer rows.Close()

	var audiences []persistence.Audience
	for rows.Next() {
		audience, err := scanAudience(rows)
		if err != nil {
			return nil, r.mapper.MapError(err)
		}
		audiences = append(audiences, audience)
	}
	if err := rows.Err(); err != nil {
		return nil, r.mapper.MapError(err)
	}
	return audiences, nil
}

// DeleteAudience hard-deletes an audience and its memberships. Children and
// booking attachments restrict the delete with ErrForeignKeyViolation.
func (r *AudienceRepository) DeleteAudience(ctx context.Context, id string) error {
	result, err := r.pool.DB().ExecContext(ctx, `DELETE FROM audiences WHERE id = ?`, id)
	if err != nil {
		return r.mapper.MapError(err)
	}
	return requireAffected(result)
}

// AudienceInUse reports whether any booking, active or cancelled, is attached to the audience.
func (r *AudienceRepository) AudienceInUse(ctx context.Context, id string) (bool, error) {
	var exists bool
	err := r.pool.DB().QueryRowContext(ctx,
		`SELECT EXISTS (SELECT 1 FROM booking_audiences WHERE audience_id = ?)`, id,
	).Scan(&exists)
	if err != nil {
		return false, r.mapper.MapError(err)
	}
	return exists, nil
}

// AddMember inserts a membership; the pair is unique.
func (r *AudienceRepository) AddMember(ctx context.Context, member persistence.AudienceMember) error {
	_, err := r.pool.DB().ExecContext(ctx,
		`INSERT INTO audience_members (audience_id, user_id, created_at) VALUES (?, ?, ?)`,
		member.AudienceID, member.UserID, formatTimestamp(member.CreatedAt),
	)
	return r.mapper.MapError(err)
}

// RemoveMember deletes a membership.
func (r *AudienceRepository) RemoveMember(ctx context.Context, audienceID, userID string) error {
	result, err := r.pool.DB().ExecContext(ctx,
		`DELETE FROM audience_members WHERE audience_id = ? AND user_id = ?`, audienceID, userID,
	)
	if err != nil {
		return r.mapper.MapError(err)
	}
	return requireAffected(result)
}

// ListMembers returns the sorted distinct members of the audiences. Child
// audiences contribute only when includeChildren is set; parents never do.
func (r *AudienceRepository) ListMembers(ctx context.Context, audienceIDs []string, includeChildren bool) ([]string, error) {
	if len(audienceIDs) == 0 {
		return nil, nil
	}

	args := make([]any, 0, 2*len(audienceIDs))
	for _, id := range audienceIDs {
		args = append(args, id)
	}
	query := `SELECT DISTINCT user_id FROM audience_members WHERE audience_id IN (` + placeholders(len(audienceIDs)) + `)`
	if includeChildren {
		query += ` OR audience_id IN (SELECT id FROM audiences WHERE parent_id IN (` + placeholders(len(audienceIDs)) + `))`
		args = append(args, args...)
	}
	query += ` ORDER BY user_id`

	rows, err := r.pool.DB().QueryContext(ctx, query, args...)
	if err != nil {
		return nil, r.mapper.MapError(err)
	}
	defer rows.Close()

	var members []string
	for rows.Next() {
		var userID string
		if err := rows.Scan(&userID); err != nil {
			return nil, r.mapper.MapError(err)
		}
		members = append(members, userID)
	}
	if err := rows.Err(); err != nil {
		return nil, r.mapper.MapError(err)
	}
	return members, nil
}

func scanAudience(row rowScanner) (persistence.Audience, error) {
	var (
		audience             persistence.Audience
		parentID             sql.NullString
		status               string
		createdAt, updatedAt string
	)
	if err := row.Scan(&audience.ID, &audience.Name, &audience.Color, &parentID, &status, &createdAt, &updatedAt); err != nil {
		return persistence.Audience{}, err
	}
	audience.ParentID = stringPtr(parentID)
	audience.Status = persistence.Status(status)

	var err error
	if audience.CreatedAt, err = parseTimestamp("created_at", createdAt); err != nil {
		return persistence.Audience{}, err
	}
	if audience.UpdatedAt, err = parseTimestamp("updated_at", updatedAt); err != nil {
		return persistence.Audience{}, err
	}
	return audience, nil
}
