package services

import (
	"context"
	"errors"
	"io"
	"strings"
	"testing"

	"github.com/assignhub/apiserver/internal/auth"
	"github.com/assignhub/apiserver/internal/store"
	"github.com/assignhub/apiserver/types"
)

type assignmentFixture struct {
	svc       *AssignmentService
	repo      *memoryAssignments
	objects   *memoryObjects
	publisher *recordingPublisher
	adminID   string
	otherID   string
	userID    string
}

func newAssignmentFixture(t *testing.T, opts ...AssignmentServiceOption) assignmentFixture {
	t.Helper()
	users, _ := newTestUserService()
	ctx := context.Background()

	admin, err := users.Register(ctx, "admin", "secret-pass", auth.RoleAdmin)
	if err != nil {
		t.Fatalf("Register() error = %v", err)
	}
	other, err := users.Register(ctx, "other-admin", "secret-pass", auth.RoleAdmin)
	if err != nil {
		t.Fatalf("Register() error = %v", err)
	}
	user, err := users.Register(ctx, "student", "secret-pass", auth.RoleUser)
	if err != nil {
		t.Fatalf("Register() error = %v", err)
	}

	f := assignmentFixture{
		repo:      newMemoryAssignments(),
		objects:   newMemoryObjects(),
		publisher: &recordingPublisher{},
		adminID:   admin.ID,
		otherID:   other.ID,
		userID:    user.ID,
	}
	opts = append([]AssignmentServiceOption{
		WithObjectStore(f.objects),
		WithEventPublisher(f.publisher, EventChannels{}),
	}, opts...)
	f.svc = NewAssignmentService(f.repo, users, opts...)
	return f
}

func TestUploadCreatesPendingAssignment(t *testing.T) {
	f := newAssignmentFixture(t)
	ctx := context.Background()

	assignment, err := f.svc.Upload(ctx, UploadInput{UserID: f.userID, AdminID: f.adminID, Task: "  essay  "})
	if err != nil {
		t.Fatalf("Upload() error = %v", err)
	}
	if assignment.ID == "" || assignment.Status != types.AssignmentPending || assignment.Task != "essay" {
		t.Errorf("Upload() = %+v", assignment)
	}
	if assignment.Attachment != nil {
		t.Errorf("Attachment = %+v, want nil", assignment.Attachment)
	}

	if len(f.publisher.events) != 1 {
		t.Fatalf("published %d events, want 1", len(f.publisher.events))
	}
	got := f.publisher.events[0]
	if got.channel != EventAssignmentUploaded || got.event.Type != EventAssignmentUploaded {
		t.Errorf("event = %+v", got)
	}
	if got.event.AssignmentID != assignment.ID || got.event.AdminID != f.adminID || got.event.UserID != f.userID {
		t.Errorf("event payload = %+v", got.event)
	}
}

func TestUploadRejectsUnknownAdmin(t *testing.T) {
	f := newAssignmentFixture(t)
	ctx := context.Background()

	for name, adminID := range map[string]string{
		"not a uuid":    "a1",
		"missing admin": "00000000-0000-0000-0000-000000000000",
		"regular user":  f.userID,
	} {
		t.Run(name, func(t *testing.T) {
			_, err := f.svc.Upload(ctx, UploadInput{UserID: f.userID, AdminID: adminID, Task: "essay"})
			if !errors.Is(err, ErrUnknownAdmin) {
				t.Errorf("Upload() error = %v, want ErrUnknownAdmin", err)
			}
		})
	}

	if _, err := f.svc.Upload(ctx, UploadInput{UserID: f.userID, AdminID: f.adminID, Task: " "}); !errors.Is(err, ErrInvalidInput) {
		t.Errorf("Upload() with empty task error = %v, want ErrInvalidInput", err)
	}
	if len(f.publisher.events) != 0 {
		t.Errorf("published %d events for failed uploads", len(f.publisher.events))
	}
}

func TestUploadWithAttachment(t *testing.T) {
	f := newAssignmentFixture(t)
	ctx := context.Background()

	assignment, err := f.svc.Upload(ctx, UploadInput{
		UserID:  f.userID,
		AdminID: f.adminID,
		Task:    "lab report",
		Attachment: &AttachmentUpload{
			Filename: "report.pdf",
			Size:     5,
			Body:     strings.NewReader("%PDF-"),
		},
	})
	if err != nil {
		t.Fatalf("Upload() error = %v", err)
	}
	if assignment.Attachment == nil {
		t.Fatal("Attachment = nil")
	}
	if assignment.Attachment.ContentType != "application/octet-stream" {
		t.Errorf("ContentType = %q", assignment.Attachment.ContentType)
	}
	if !strings.HasPrefix(assignment.Attachment.ObjectKey, "assignments/"+assignment.ID+"/") {
		t.Errorf("ObjectKey = %q", assignment.Attachment.ObjectKey)
	}

	body, attachment, err := f.svc.OpenAttachment(ctx, assignment.ID, f.adminID)
	if err != nil {
		t.Fatalf("OpenAttachment() error = %v", err)
	}
	defer body.Close()
	data, _ := io.ReadAll(body)
	if string(data) != "%PDF-" || attachment.Filename != "report.pdf" {
		t.Errorf("OpenAttachment() = %q, %+v", data, attachment)
	}

	if _, _, err := f.svc.OpenAttachment(ctx, assignment.ID, f.otherID); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("OpenAttachment() by another admin error = %v, want ErrNotFound", err)
	}
}

func TestUploadRemovesAttachmentWhenInsertFails(t *testing.T) {
	f := newAssignmentFixture(t)
	f.repo.createErr = errors.New("db down")

	_, err := f.svc.Upload(context.Background(), UploadInput{
		UserID:     f.userID,
		AdminID:    f.adminID,
		Task:       "essay",
		Attachment: &AttachmentUpload{Filename: "a.txt", Size: 1, Body: strings.NewReader("x")},
	})
	if err == nil {
		t.Fatal("Upload() error = nil, want error")
	}
	if len(f.objects.objects) != 0 || len(f.objects.deleted) != 1 {
		t.Errorf("objects = %v, deleted = %v, want the stored body removed", f.objects.objects, f.objects.deleted)
	}
}

func TestUploadAttachmentWithoutStorage(t *testing.T) {
	f := newAssignmentFixture(t, WithObjectStore(nil))
	if f.svc.AttachmentsEnabled() {
		t.Fatal("AttachmentsEnabled() = true without object store")
	}
	_, err := f.svc.Upload(context.Background(), UploadInput{
		UserID:     f.userID,
		AdminID:    f.adminID,
		Task:       "essay",
		Attachment: &AttachmentUpload{Filename: "a.txt", Body: strings.NewReader("x")},
	})
	if !errors.Is(err, ErrAttachmentsDisabled) {
		t.Errorf("Upload() error = %v, want ErrAttachmentsDisabled", err)
	}
}

func TestReview(t *testing.T) {
	f := newAssignmentFixture(t)
	ctx := context.Background()
	assignment, err := f.svc.Upload(ctx, UploadInput{UserID: f.userID, AdminID: f.adminID, Task: "essay"})
	if err != nil {
		t.Fatalf("Upload() error = %v", err)
	}

	if _, err := f.svc.Review(ctx, assignment.ID, f.otherID, types.AssignmentAccepted); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("Review() by another admin error = %v, want ErrNotFound", err)
	}
	if _, err := f.svc.Review(ctx, "missing", f.adminID, types.AssignmentAccepted); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("Review() of missing assignment error = %v, want ErrNotFound", err)
	}
	if _, err := f.svc.Review(ctx, assignment.ID, f.adminID, types.AssignmentPending); !errors.Is(err, ErrInvalidStatus) {
		t.Errorf("Review(pending) error = %v, want ErrInvalidStatus", err)
	}

	reviewed, err := f.svc.Review(ctx, assignment.ID, f.adminID, types.AssignmentRejected)
	if err != nil {
		t.Fatalf("Review() error = %v", err)
	}
	if reviewed.Status != types.AssignmentRejected {
		t.Errorf("Status = %q, want rejected", reviewed.Status)
	}

	last := f.publisher.events[len(f.publisher.events)-1]
	if last.event.Type != EventAssignmentReviewed || last.event.Status != types.AssignmentRejected {
		t.Errorf("last event = %+v", last)
	}

	list, err := f.svc.ListForAdmin(ctx, f.adminID)
	if err != nil {
		t.Fatalf("ListForAdmin() error = %v", err)
	}
	if len(list) != 1 || list[0].Status != types.AssignmentRejected {
		t.Errorf("ListForAdmin() = %+v", list)
	}
	if other, _ := f.svc.ListForAdmin(ctx, f.otherID); len(other) != 0 {
		t.Errorf("ListForAdmin(other) = %+v, want empty", other)
	}
}

func TestPublishFailureDoesNotFailUpload(t *testing.T) {
	f := newAssignmentFixture(t)
	f.publisher.err = errors.New("broker down")

	if _, err := f.svc.Upload(context.Background(), UploadInput{UserID: f.userID, AdminID: f.adminID, Task: "essay"}); err != nil {
		t.Errorf("Upload() error = %v, want nil when publishing fails", err)
	}
}
