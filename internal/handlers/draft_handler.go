package handlers

import (
	"encoding/json"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"

	"alfredoptarigan/resume-coach/internal/models"
	"alfredoptarigan/resume-coach/internal/repositories"
)

type DraftHandler struct {
	draftRepo repositories.DraftRepository
}

func NewDraftHandler(draftRepo repositories.DraftRepository) *DraftHandler {
	return &DraftHandler{
		draftRepo: draftRepo,
	}
}

// HandleSave handles PUT /drafts/:sessionId. The body is stored as-is and
// must be a JSON object.
func (h *DraftHandler) HandleSave(c *fiber.Ctx) error {
	sessionID := strings.TrimSpace(c.Params("sessionId"))
	if sessionID == "" {
		return badRequest(c, "sessionId is required")
	}

	body := c.Body()
	var object map[string]json.RawMessage
	if err := json.Unmarshal(body, &object); err != nil {
		return badRequest(c, "draft must be a JSON object")
	}

	draft := models.Draft{
		SessionID: sessionID,
		Data:      string(body),
		UpdatedAt: time.Now(),
	}
	if err := h.draftRepo.Upsert(&draft); err != nil {
		return respondError(c, err)
	}

	return c.JSON(toDraftResponse(&draft))
}

// HandleGet handles GET /drafts/:sessionId
func (h *DraftHandler) HandleGet(c *fiber.Ctx) error {
	draft, err := h.draftRepo.FindBySessionID(c.Params("sessionId"))
	if err != nil {
		return respondError(c, err)
	}

	return c.JSON(toDraftResponse(draft))
}

// HandleDelete handles DELETE /drafts/:sessionId
func (h *DraftHandler) HandleDelete(c *fiber.Ctx) error {
	if err := h.draftRepo.Delete(c.Params("sessionId")); err != nil {
		return respondError(c, err)
	}

	return c.SendStatus(fiber.StatusNoContent)
}

func toDraftResponse(draft *models.Draft) models.DraftResponse {
	return models.DraftResponse{
		SessionID: draft.SessionID,
		Data:      json.RawMessage(draft.Data),
		UpdatedAt: draft.UpdatedAt.Format(time.RFC3339),
	}
}
