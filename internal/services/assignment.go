package services

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/assignhub/apiserver/internal/logger"
	"github.com/assignhub/apiserver/internal/storage"
	"github.com/assignhub/apiserver/internal/store"
	"github.com/assignhub/apiserver/types"
	"github.com/google/uuid"
)

// Event types published on the assignment channels.
const (
	EventAssignmentUploaded = "assignment.uploaded"
	EventAssignmentReviewed = "assignment.reviewed"
)

const publishTimeout = 5 * time.Second

var (
	ErrUnknownAdmin        = errors.New("admin not found")
	ErrAttachmentsDisabled = errors.New("attachments are not enabled")
	ErrNoAttachment        = errors.New("assignment has no attachment")
	ErrInvalidStatus       = errors.New("invalid review status")
)

// AssignmentRepository defines persistence operations for assignments.
type AssignmentRepository interface {
	Get(ctx context.Context, id string) (types.Assignment, error)
	ListByAdmin(ctx context.Context, adminID string) ([]types.Assignment, error)
	Create(ctx context.Context, assignment types.Assignment) (types.Assignment, error)
	UpdateStatus(ctx context.Context, id, adminID string, status types.AssignmentStatus) (types.Assignment, error)
}

// AdminDirectory resolves whether an account may receive assignments.
type AdminDirectory interface {
	IsAdmin(ctx context.Context, id string) (bool, error)
}

// ObjectStore holds attachment bodies.
type ObjectStore interface {
	Put(ctx context.Context, key string, r io.Reader, size int64, contentType string) error
	Get(ctx context.Context, key string) (io.ReadCloser, error)
	Delete(ctx context.Context, key string) error
}

// EventPublisher delivers assignment events to a broker.
type EventPublisher interface {
	PublishJSON(ctx context.Context, channel string, value any, attrs map[string]string) (string, error)
}

// EventChannels names the broker channels for each event type.
type EventChannels struct {
	Uploaded string
	Reviewed string
}

// AttachmentUpload is a file supplied alongside an assignment.
type AttachmentUpload struct {
	Filename    string
	ContentType string
	Size        int64
	Body        io.Reader
}

// UploadInput describes a new assignment.
type UploadInput struct {
	UserID     string
	AdminID    string
	Task       string
	Attachment *AttachmentUpload
}

// AssignmentService encapsulates assignment upload and review.
type AssignmentService struct {
	repo     AssignmentRepository
	admins   AdminDirectory
	objects  ObjectStore
	events   EventPublisher
	channels EventChannels
	logger   *slog.Logger
	now      func() time.Time
}

// AssignmentServiceOption customizes an AssignmentService.
type AssignmentServiceOption func(*AssignmentService)

// WithObjectStore enables attachments.
func WithObjectStore(objects ObjectStore) AssignmentServiceOption {
	return func(s *AssignmentService) {
		s.objects = objects
	}
}

// WithEventPublisher enables assignment events on the given channels.
func WithEventPublisher(events EventPublisher, channels EventChannels) AssignmentServiceOption {
	return func(s *AssignmentService) {
		s.events = events
		s.channels = channels
	}
}

// WithAssignmentLogger sets the logger used for background failures.
func WithAssignmentLogger(l *slog.Logger) AssignmentServiceOption {
	return func(s *AssignmentService) {
		if l != nil {
			s.logger = l
		}
	}
}

func NewAssignmentService(repo AssignmentRepository, admins AdminDirectory, opts ...AssignmentServiceOption) *AssignmentService {
	s := &AssignmentService{
		repo:   repo,
		admins: admins,
		logger: slog.New(slog.DiscardHandler),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.channels.Uploaded == "" {
		s.channels.Uploaded = EventAssignmentUploaded
	}
	if s.channels.Reviewed == "" {
		s.channels.Reviewed = EventAssignmentReviewed
	}
	return s
}

// AttachmentsEnabled reports whether uploads may carry a file.
func (s *AssignmentService) AttachmentsEnabled() bool {
	return s.objects != nil
}

// Upload stores a pending assignment addressed to input.AdminID. The admin
// must exist. When an attachment is present its body is stored first and
// removed again if the row cannot be written.
func (s *AssignmentService) Upload(ctx context.Context, input UploadInput) (types.Assignment, error) {
	task := strings.TrimSpace(input.Task)
	if task == "" {
		return types.Assignment{}, fmt.Errorf("%w: task is required", ErrInvalidInput)
	}
	adminID := strings.TrimSpace(input.AdminID)
	if _, err := uuid.Parse(adminID); err != nil {
		return types.Assignment{}, ErrUnknownAdmin
	}
	isAdmin, err := s.admins.IsAdmin(ctx, adminID)
	if err != nil {
		return types.Assignment{}, fmt.Errorf("resolve admin: %w", err)
	}
	if !isAdmin {
		return types.Assignment{}, ErrUnknownAdmin
	}

	assignment := types.Assignment{
		ID:      uuid.NewString(),
		UserID:  input.UserID,
		AdminID: adminID,
		Task:    task,
		Status:  types.AssignmentPending,
	}

	if input.Attachment != nil {
		if s.objects == nil {
			return types.Assignment{}, ErrAttachmentsDisabled
		}
		attachment := types.Attachment{
			ObjectKey:   storage.AttachmentKey(assignment.ID, input.Attachment.Filename),
			Filename:    input.Attachment.Filename,
			ContentType: input.Attachment.ContentType,
			Size:        input.Attachment.Size,
		}
		if attachment.ContentType == "" {
			attachment.ContentType = "application/octet-stream"
		}
		if err := s.objects.Put(ctx, attachment.ObjectKey, input.Attachment.Body, attachment.Size, attachment.ContentType); err != nil {
			return types.Assignment{}, fmt.Errorf("store attachment: %w", err)
		}
		assignment.Attachment = &attachment
	}

	created, err := s.repo.Create(ctx, assignment)
	if err != nil {
		if assignment.Attachment != nil {
			s.discardObject(ctx, assignment.Attachment.ObjectKey)
		}
		return types.Assignment{}, fmt.Errorf("create assignment: %w", err)
	}

	s.publish(ctx, s.channels.Uploaded, EventAssignmentUploaded, created)
	return created, nil
}

// ListForAdmin returns the assignments addressed to adminID, newest first.
func (s *AssignmentService) ListForAdmin(ctx context.Context, adminID string) ([]types.Assignment, error) {
	return s.repo.ListByAdmin(ctx, adminID)
}

// Review sets the outcome of an assignment addressed to adminID. Assignments
// that do not exist or belong to another admin fail with store.ErrNotFound.
func (s *AssignmentService) Review(ctx context.Context, id, adminID string, status types.AssignmentStatus) (types.Assignment, error) {
	if status != types.AssignmentAccepted && status != types.AssignmentRejected {
		return types.Assignment{}, ErrInvalidStatus
	}
	assignment, err := s.repo.UpdateStatus(ctx, id, adminID, status)
	if err != nil {
		return types.Assignment{}, err
	}
	s.publish(ctx, s.channels.Reviewed, EventAssignmentReviewed, assignment)
	return assignment, nil
}

// OpenAttachment returns the attachment of an assignment addressed to adminID.
// The caller closes the reader.
func (s *AssignmentService) OpenAttachment(ctx context.Context, id, adminID string) (io.ReadCloser, types.Attachment, error) {
	assignment, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, types.Attachment{}, err
	}
	if assignment.AdminID != adminID {
		return nil, types.Attachment{}, store.ErrNotFound
	}
	if assignment.Attachment == nil {
		return nil, types.Attachment{}, ErrNoAttachment
	}
	if s.objects == nil {
		return nil, types.Attachment{}, ErrAttachmentsDisabled
	}

	body, err := s.objects.Get(ctx, assignment.Attachment.ObjectKey)
	if err != nil {
		if errors.Is(err, storage.ErrObjectNotFound) {
			return nil, types.Attachment{}, ErrNoAttachment
		}
		return nil, types.Attachment{}, fmt.Errorf("open attachment: %w", err)
	}
	return body, *assignment.Attachment, nil
}

func (s *AssignmentService) publish(ctx context.Context, channel, eventType string, assignment types.Assignment) {
	if s.events == nil {
		return
	}
	event := types.AssignmentEvent{
		Type:         eventType,
		AssignmentID: assignment.ID,
		UserID:       assignment.UserID,
		AdminID:      assignment.AdminID,
		Status:       assignment.Status,
		OccurredAt:   s.now().UTC(),
	}

	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), publishTimeout)
	defer cancel()
	if _, err := s.events.PublishJSON(ctx, channel, event, map[string]string{"event": eventType}); err != nil {
		s.logger.WarnContext(ctx, "publish assignment event",
			slog.String("event", eventType),
			slog.String("assignment_id", assignment.ID),
			logger.Err(err),
		)
	}
}

func (s *AssignmentService) discardObject(ctx context.Context, key string) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), publishTimeout)
	defer cancel()
	if err := s.objects.Delete(ctx, key); err != nil {
		s.logger.WarnContext(ctx, "delete orphaned attachment", slog.String("key", key), logger.Err(err))
	}
}
