package handlers

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"mime/multipart"
	"net/http"
	"strconv"
	"strings"

	"github.com/assignhub/apiserver/internal/auth"
	"github.com/assignhub/apiserver/internal/logger"
	"github.com/assignhub/apiserver/internal/services"
	"github.com/assignhub/apiserver/internal/store"
	"github.com/assignhub/apiserver/types"
	"github.com/go-chi/chi/v5"
)

const (
	maxAttachmentBytes  = 32 << 20
	maxMultipartMemory  = 8 << 20
	formFieldTask       = "task"
	formFieldAdminID    = "adminId"
	formFieldAttachment = "attachment"
)

var errAttachmentTooLarge = fmt.Errorf("attachment exceeds %d bytes", maxAttachmentBytes)

// AssignmentHandler provides upload and review endpoints.
type AssignmentHandler struct {
	assignmentService *services.AssignmentService
	logger            *slog.Logger
}

// NewAssignmentHandler constructs a handler with the provided service.
func NewAssignmentHandler(assignmentService *services.AssignmentService, log *slog.Logger) *AssignmentHandler {
	if log == nil {
		log = slog.New(slog.DiscardHandler)
	}
	return &AssignmentHandler{
		assignmentService: assignmentService,
		logger:            log,
	}
}

// AssignmentRouter registers assignment routes on the given router. Every
// route sits behind gate; uploads are for users and review is for admins.
func AssignmentRouter(
	r chi.Router,
	assignmentService *services.AssignmentService,
	gate func(http.Handler) http.Handler,
	log *slog.Logger,
) {
	handler := NewAssignmentHandler(assignmentService, log)

	r.With(gate, requireRole(auth.RoleUser)).Post("/upload", handler.Upload)
	r.Route("/assignments", func(r chi.Router) {
		r.Use(gate, requireRole(auth.RoleAdmin))
		r.Get("/", handler.List)
		r.Route("/{assignmentID}", func(r chi.Router) {
			r.Post("/accept", handler.Accept)
			r.Post("/reject", handler.Reject)
			r.Get("/attachment", handler.Attachment)
		})
	})
}

// Upload stores an assignment addressed to an admin. It accepts either a JSON
// body or a multipart form carrying an optional attachment file.
func (h *AssignmentHandler) Upload(w http.ResponseWriter, r *http.Request) {
	identity, err := identityFromRequest(r)
	if err != nil {
		auth.WriteUnauthorized(w)
		return
	}

	input, cleanup, err := parseUploadRequest(w, r)
	if cleanup != nil {
		defer cleanup()
	}
	if err != nil {
		status := http.StatusBadRequest
		if errors.Is(err, errAttachmentTooLarge) {
			status = http.StatusRequestEntityTooLarge
		}
		writeError(w, status, err.Error())
		return
	}
	input.UserID = identity.Subject

	assignment, err := h.assignmentService.Upload(r.Context(), input)
	switch {
	case err == nil:
	case errors.Is(err, services.ErrInvalidInput),
		errors.Is(err, services.ErrUnknownAdmin),
		errors.Is(err, services.ErrAttachmentsDisabled):
		writeError(w, http.StatusBadRequest, err.Error())
		return
	default:
		h.logger.ErrorContext(r.Context(), "upload assignment", slog.String("user_id", identity.Subject), logger.Err(err))
		writeError(w, http.StatusInternalServerError, "assignment upload failed")
		return
	}

	writeJSON(w, http.StatusCreated, AssignmentResponse{
		Message:    "assignment uploaded successfully",
		Assignment: assignment,
	})
}

// List returns the assignments addressed to the calling admin.
func (h *AssignmentHandler) List(w http.ResponseWriter, r *http.Request) {
	identity, err := identityFromRequest(r)
	if err != nil {
		auth.WriteUnauthorized(w)
		return
	}

	assignments, err := h.assignmentService.ListForAdmin(r.Context(), identity.Subject)
	if err != nil {
		h.logger.ErrorContext(r.Context(), "list assignments", slog.String("admin_id", identity.Subject), logger.Err(err))
		writeError(w, http.StatusInternalServerError, "failed to list assignments")
		return
	}
	writeJSON(w, http.StatusOK, assignments)
}

func (h *AssignmentHandler) Accept(w http.ResponseWriter, r *http.Request) {
	h.review(w, r, types.AssignmentAccepted, "assignment accepted")
}

func (h *AssignmentHandler) Reject(w http.ResponseWriter, r *http.Request) {
	h.review(w, r, types.AssignmentRejected, "assignment rejected")
}

func (h *AssignmentHandler) review(w http.ResponseWriter, r *http.Request, status types.AssignmentStatus, message string) {
	identity, err := identityFromRequest(r)
	if err != nil {
		auth.WriteUnauthorized(w)
		return
	}
	id, err := parseAssignmentID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	assignment, err := h.assignmentService.Review(r.Context(), id, identity.Subject, status)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "assignment not found")
			return
		}
		h.logger.ErrorContext(r.Context(), "review assignment",
			slog.String("assignment_id", id),
			slog.String("status", string(status)),
			logger.Err(err),
		)
		writeError(w, http.StatusInternalServerError, "failed to review assignment")
		return
	}

	writeJSON(w, http.StatusOK, AssignmentResponse{Message: message, Assignment: assignment})
}

// Attachment streams the file uploaded with an assignment.
func (h *AssignmentHandler) Attachment(w http.ResponseWriter, r *http.Request) {
	identity, err := identityFromRequest(r)
	if err != nil {
		auth.WriteUnauthorized(w)
		return
	}
	id, err := parseAssignmentID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	body, attachment, err := h.assignmentService.OpenAttachment(r.Context(), id, identity.Subject)
	switch {
	case err == nil:
	case errors.Is(err, store.ErrNotFound):
		writeError(w, http.StatusNotFound, "assignment not found")
		return
	case errors.Is(err, services.ErrNoAttachment), errors.Is(err, services.ErrAttachmentsDisabled):
		writeError(w, http.StatusNotFound, "attachment not found")
		return
	default:
		h.logger.ErrorContext(r.Context(), "open attachment", slog.String("assignment_id", id), logger.Err(err))
		writeError(w, http.StatusInternalServerError, "failed to load attachment")
		return
	}
	defer body.Close()

	w.Header().Set("Content-Type", attachment.ContentType)
	w.Header().Set("Content-Disposition", mime.FormatMediaType("attachment", map[string]string{"filename": attachment.Filename}))
	if attachment.Size > 0 {
		w.Header().Set("Content-Length", strconv.FormatInt(attachment.Size, 10))
	}
	w.WriteHeader(http.StatusOK)
	if _, err := io.Copy(w, body); err != nil {
		h.logger.WarnContext(r.Context(), "stream attachment", slog.String("assignment_id", id), logger.Err(err))
	}
}

// UploadRequest is the JSON form of an upload.
type UploadRequest struct {
	Task    string `json:"task"`
	AdminID string `json:"adminId"`
}

// AssignmentResponse acknowledges an upload or review with the resulting assignment.
type AssignmentResponse struct {
	Message    string           `json:"message"`
	Assignment types.Assignment `json:"assignment"`
}

func parseUploadRequest(w http.ResponseWriter, r *http.Request) (services.UploadInput, func(), error) {
	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if mediaType != "multipart/form-data" {
		var req UploadRequest
		if err := decodeJSON(w, r, &req); err != nil {
			return services.UploadInput{}, nil, errors.New("invalid request")
		}
		return services.UploadInput{Task: req.Task, AdminID: req.AdminID}, nil, nil
	}

	r.Body = http.MaxBytesReader(w, r.Body, maxAttachmentBytes+maxMultipartMemory)
	if err := r.ParseMultipartForm(maxMultipartMemory); err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			return services.UploadInput{}, nil, errAttachmentTooLarge
		}
		return services.UploadInput{}, nil, errors.New("invalid multipart form")
	}
	cleanup := func() { _ = r.MultipartForm.RemoveAll() }

	input := services.UploadInput{
		Task:    r.FormValue(formFieldTask),
		AdminID: r.FormValue(formFieldAdminID),
	}
	attachment, err := parseAttachment(r.MultipartForm)
	if err != nil {
		return services.UploadInput{}, cleanup, err
	}
	input.Attachment = attachment
	return input, func() {
		if attachment != nil {
			if closer, ok := attachment.Body.(io.Closer); ok {
				_ = closer.Close()
			}
		}
		cleanup()
	}, nil
}

func parseAttachment(form *multipart.Form) (*services.AttachmentUpload, error) {
	if form == nil || form.File == nil {
		return nil, nil
	}
	files := form.File[formFieldAttachment]
	if len(files) == 0 {
		return nil, nil
	}
	if len(files) > 1 {
		return nil, errors.New("only one attachment is allowed")
	}

	header := files[0]
	if header.Size > maxAttachmentBytes {
		return nil, errAttachmentTooLarge
	}
	name := strings.TrimSpace(header.Filename)
	if name == "" {
		return nil, errors.New("attachment filename is required")
	}
	file, err := header.Open()
	if err != nil {
		return nil, errors.New("failed to read attachment")
	}
	return &services.AttachmentUpload{
		Filename:    name,
		ContentType: header.Header.Get("Content-Type"),
		Size:        header.Size,
		Body:        file,
	}, nil
}
