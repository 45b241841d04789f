package handlers

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"mime/multipart"
	"sort"
	"strconv"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"

	"alfredoptarigan/resume-coach/internal/models"
	"alfredoptarigan/resume-coach/internal/repositories"
	"alfredoptarigan/resume-coach/internal/services"
)

const (
	bundleField        = "bundle"
	resumeFileField    = "resume_file"
	projectFieldPrefix = "project_"
)

type ResumeHandler struct {
	jobRepo        repositories.GenerationJobRepository
	storageService services.StorageService
	worker         services.Worker
	maxFileSize    int64
}

func NewResumeHandler(
	jobRepo repositories.GenerationJobRepository,
	storageService services.StorageService,
	worker services.Worker,
	maxFileSize int64,
) *ResumeHandler {
	return &ResumeHandler{
		jobRepo:        jobRepo,
		storageService: storageService,
		worker:         worker,
		maxFileSize:    maxFileSize,
	}
}

// HandleGenerate handles POST /resumes. The bundle is queued and generated
// by the worker.
func (h *ResumeHandler) HandleGenerate(c *fiber.Ctx) error {
	form, err := c.MultipartForm()
	if err != nil {
		return badRequest(c, "failed to parse multipart form")
	}

	values := form.Value[bundleField]
	if len(values) == 0 || strings.TrimSpace(values[0]) == "" {
		return badRequest(c, "bundle is required")
	}

	var bundle models.UserInputBundle
	if err := json.Unmarshal([]byte(values[0]), &bundle); err != nil {
		return badRequest(c, fmt.Sprintf("invalid bundle: %v", err))
	}

	ctx := c.UserContext()
	refs, err := h.storeAttachments(ctx, form, len(bundle.Projects))
	if err != nil {
		return respondError(c, err)
	}

	bundleJSON, err := json.Marshal(bundle)
	if err != nil {
		h.discard(ctx, refs)
		return respondError(c, fmt.Errorf("failed to encode bundle: %w", err))
	}
	refsJSON, err := json.Marshal(refs)
	if err != nil {
		h.discard(ctx, refs)
		return respondError(c, fmt.Errorf("failed to encode attachments: %w", err))
	}

	job := models.GenerationJob{
		SessionID:   sessionID(c, form),
		Status:      models.StatusQueued,
		Bundle:      string(bundleJSON),
		Attachments: string(refsJSON),
	}
	if err := h.jobRepo.Create(&job); err != nil {
		h.discard(ctx, refs)
		return respondError(c, err)
	}

	h.worker.EnqueueJob(job.ID)

	return c.Status(fiber.StatusAccepted).JSON(models.GenerateResponse{
		ID:     job.ID.String(),
		Status: string(job.Status),
	})
}

// storeAttachments saves resume_file and project_<index> uploads. Fields are
// visited in sorted order so attachment order is stable.
func (h *ResumeHandler) storeAttachments(ctx context.Context, form *multipart.Form, projectCount int) ([]models.AttachmentRef, error) {
	fields := make([]string, 0, len(form.File))
	for field := range form.File {
		fields = append(fields, field)
	}
	sort.Strings(fields)

	refs := []models.AttachmentRef{}
	for _, field := range fields {
		index, err := attachmentIndex(field, projectCount)
		if err != nil {
			h.discard(ctx, refs)
			return nil, fiber.NewError(fiber.StatusBadRequest, err.Error())
		}

		for _, fh := range form.File[field] {
			ref, err := h.storeFile(ctx, fh, index)
			if err != nil {
				h.discard(ctx, refs)
				return nil, err
			}
			refs = append(refs, ref)
		}
	}

	return refs, nil
}

func (h *ResumeHandler) storeFile(ctx context.Context, fh *multipart.FileHeader, index int) (models.AttachmentRef, error) {
	if h.maxFileSize > 0 && fh.Size > h.maxFileSize {
		return models.AttachmentRef{}, fiber.NewError(fiber.StatusBadRequest,
			fmt.Sprintf("%s is too large. Max size: %d bytes", fh.Filename, h.maxFileSize))
	}

	file, err := fh.Open()
	if err != nil {
		return models.AttachmentRef{}, fmt.Errorf("failed to open %s: %w", fh.Filename, err)
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		return models.AttachmentRef{}, fmt.Errorf("failed to read %s: %w", fh.Filename, err)
	}

	mimeType := fh.Header.Get("Content-Type")
	key, err := h.storageService.Save(ctx, fh.Filename, data, mimeType)
	if err != nil {
		return models.AttachmentRef{}, err
	}

	return models.AttachmentRef{
		ProjectIndex: index,
		Name:         fh.Filename,
		MIMEType:     mimeType,
		StorageKey:   key,
	}, nil
}

func (h *ResumeHandler) discard(ctx context.Context, refs []models.AttachmentRef) {
	for _, ref := range refs {
		if err := h.storageService.Delete(ctx, ref.StorageKey); err != nil {
			log.Printf("⚠️  Failed to discard attachment %s: %v\n", ref.StorageKey, err)
		}
	}
}

// attachmentIndex returns -1 for the reference resume and the project
// index for project_<index> fields.
func attachmentIndex(field string, projectCount int) (int, error) {
	if field == resumeFileField {
		return -1, nil
	}

	if !strings.HasPrefix(field, projectFieldPrefix) {
		return 0, fmt.Errorf("unexpected file field %q", field)
	}

	index, err := strconv.Atoi(strings.TrimPrefix(field, projectFieldPrefix))
	if err != nil || index < 0 || index >= projectCount {
		return 0, fmt.Errorf("file field %q does not match a project", field)
	}

	return index, nil
}

func sessionID(c *fiber.Ctx, form *multipart.Form) string {
	if values := form.Value["session_id"]; len(values) > 0 && values[0] != "" {
		return values[0]
	}
	return c.Get("X-Session-ID")
}

// HandleGetResult handles GET /resumes/:id
func (h *ResumeHandler) HandleGetResult(c *fiber.Ctx) error {
	jobID, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return badRequest(c, "Invalid job ID format")
	}

	job, err := h.jobRepo.FindByID(jobID)
	if err != nil {
		return respondError(c, err)
	}

	response := models.ResultResponse{
		ID:     job.ID.String(),
		Status: string(job.Status),
	}

	if job.Status == models.StatusCompleted && job.Result != nil {
		var resume models.GeneratedResume
		if err := json.Unmarshal([]byte(*job.Result), &resume); err != nil {
			return respondError(c, fmt.Errorf("failed to decode stored resume: %w", err))
		}
		response.Result = &resume
	}

	if job.Status == models.StatusFailed {
		response.ErrorKind = job.ErrorKind
		response.ErrorMessage = job.ErrorMessage
	}

	return c.JSON(response)
}
