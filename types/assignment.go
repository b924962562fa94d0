package types

import "time"

// Assignment is a task a user submits to a specific admin for review.
type Assignment struct {
	// ID is the unique identifier of the assignment (a UUID).
	ID string `json:"id" db:"id"`

	// UserID identifies the user who uploaded the assignment.
	UserID string `json:"user_id" db:"user_id"`

	// OwnerUsername is the uploader's username. It is populated on the
	// reviewer's listing and may be empty elsewhere.
	OwnerUsername string `json:"owner_username,omitempty" db:"owner_username"`

	// AdminID identifies the admin the assignment is addressed to.
	AdminID string `json:"admin_id" db:"admin_id"`

	// Task is the free-form assignment payload supplied by the uploader.
	Task string `json:"task" db:"task"`

	// Status is the review outcome.
	Status AssignmentStatus `json:"status" db:"status"`

	// Attachment references an optional file stored in object storage.
	// It is nil when the upload carried no file.
	Attachment *Attachment `json:"attachment,omitempty" db:"-"`

	// CreatedAt is the timestamp when the assignment was uploaded.
	CreatedAt time.Time `json:"created_at" db:"created_at"`

	// UpdatedAt is the timestamp of the most recent status change.
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

// Attachment describes a file uploaded alongside an assignment.
type Attachment struct {
	// ObjectKey is the key of the file in the configured object storage bucket.
	ObjectKey string `json:"-" db:"attachment_key"`

	// Filename is the original name supplied by the uploader.
	Filename string `json:"filename" db:"attachment_name"`

	// ContentType is the MIME type recorded at upload time.
	ContentType string `json:"content_type" db:"attachment_content_type"`

	// Size is the file size in bytes.
	Size int64 `json:"size" db:"attachment_size"`
}

// AssignmentStatus is the review state of an assignment.
type AssignmentStatus string

// Supported assignment statuses.
const (
	// AssignmentPending is the state of every newly uploaded assignment.
	AssignmentPending AssignmentStatus = "pending"

	// AssignmentAccepted marks an assignment approved by its admin.
	AssignmentAccepted AssignmentStatus = "accepted"

	// AssignmentRejected marks an assignment declined by its admin.
	AssignmentRejected AssignmentStatus = "rejected"
)

// Valid reports whether s is one of the supported statuses.
func (s AssignmentStatus) Valid() bool {
	switch s {
	case AssignmentPending, AssignmentAccepted, AssignmentRejected:
		return true
	default:
		return false
	}
}

// AssignmentEvent is the message published when an assignment is uploaded
// or reviewed.
type AssignmentEvent struct {
	// Type is "assignment.uploaded" or "assignment.reviewed".
	Type string `json:"type"`

	// AssignmentID identifies the assignment the event refers to.
	AssignmentID string `json:"assignment_id"`

	// UserID identifies the uploader.
	UserID string `json:"user_id"`

	// AdminID identifies the reviewing admin.
	AdminID string `json:"admin_id"`

	// Status is the assignment status after the event.
	Status AssignmentStatus `json:"status"`

	// OccurredAt is when the event happened.
	OccurredAt time.Time `json:"occurred_at"`
}
