package store

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/assignhub/apiserver/types"
)

// AssignmentRepository handles persistence for assignments.
type AssignmentRepository struct {
	db *sql.DB
}

func NewAssignmentRepository(db *sql.DB) *AssignmentRepository {
	return &AssignmentRepository{db: db}
}

const assignmentColumns = `
		a.id, a.user_id, u.username, a.admin_id, a.task, a.status,
		a.attachment_key, a.attachment_name, a.attachment_content_type, a.attachment_size,
		a.created_at, a.updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanAssignment(row rowScanner) (types.Assignment, error) {
	var assignment types.Assignment
	var attachment types.Attachment
	if err := row.Scan(
		&assignment.ID,
		&assignment.UserID,
		&assignment.OwnerUsername,
		&assignment.AdminID,
		&assignment.Task,
		&assignment.Status,
		&attachment.ObjectKey,
		&attachment.Filename,
		&attachment.ContentType,
		&attachment.Size,
		&assignment.CreatedAt,
		&assignment.UpdatedAt,
	); err != nil {
		return types.Assignment{}, err
	}
	if attachment.ObjectKey != "" {
		assignment.Attachment = &attachment
	}
	return assignment, nil
}

func (r *AssignmentRepository) Get(ctx context.Context, id string) (types.Assignment, error) {
	query := `
		SELECT` + assignmentColumns + `
		FROM assignments a
		JOIN users u ON u.id = a.user_id
		WHERE a.id = $1`
	assignment, err := scanAssignment(r.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return types.Assignment{}, ErrNotFound
		}
		return types.Assignment{}, err
	}
	return assignment, nil
}

// ListByAdmin returns the assignments addressed to adminID, newest first.
func (r *AssignmentRepository) ListByAdmin(ctx context.Context, adminID string) ([]types.Assignment, error) {
	query := `
		SELECT` + assignmentColumns + `
		FROM assignments a
		JOIN users u ON u.id = a.user_id
		WHERE a.admin_id = $1
		ORDER BY a.created_at DESC, a.id`
	rows, err := r.db.QueryContext(ctx, query, adminID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	assignments := make([]types.Assignment, 0)
	for rows.Next() {
		assignment, err := scanAssignment(rows)
		if err != nil {
			return nil, err
		}
		assignments = append(assignments, assignment)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return assignments, nil
}

// Create inserts an assignment. The caller supplies the ID so that attachment
// object keys can be derived from it before the row exists.
func (r *AssignmentRepository) Create(ctx context.Context, assignment types.Assignment) (types.Assignment, error) {
	now := time.Now()
	assignment.CreatedAt = now
	assignment.UpdatedAt = now
	if assignment.Status == "" {
		assignment.Status = types.AssignmentPending
	}

	var attachment types.Attachment
	if assignment.Attachment != nil {
		attachment = *assignment.Attachment
	}

	const query = `
		INSERT INTO assignments (
			id, user_id, admin_id, task, status,
			attachment_key, attachment_name, attachment_content_type, attachment_size,
			created_at, updated_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`
	if _, err := r.db.ExecContext(
		ctx,
		query,
		assignment.ID,
		assignment.UserID,
		assignment.AdminID,
		assignment.Task,
		assignment.Status,
		attachment.ObjectKey,
		attachment.Filename,
		attachment.ContentType,
		attachment.Size,
		assignment.CreatedAt,
		assignment.UpdatedAt,
	); err != nil {
		return types.Assignment{}, translateError(err)
	}
	return assignment, nil
}

// UpdateStatus sets the status of an assignment addressed to adminID.
// Assignments addressed to other admins are reported as ErrNotFound.
func (r *AssignmentRepository) UpdateStatus(ctx context.Context, id, adminID string, status types.AssignmentStatus) (types.Assignment, error) {
	const update = `
		UPDATE assignments
		SET status = $1,
			updated_at = $2
		WHERE id = $3 AND admin_id = $4`
	result, err := r.db.ExecContext(ctx, update, status, time.Now(), id, adminID)
	if err != nil {
		return types.Assignment{}, err
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return types.Assignment{}, err
	}
	if affected == 0 {
		return types.Assignment{}, ErrNotFound
	}
	return r.Get(ctx, id)
}
