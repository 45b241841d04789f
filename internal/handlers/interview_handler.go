package handlers

import (
	"github.com/gofiber/fiber/v2"

	"alfredoptarigan/resume-coach/internal/models"
	"alfredoptarigan/resume-coach/internal/services"
)

type InterviewHandler struct {
	interviewService services.InterviewService
}

func NewInterviewHandler(interviewService services.InterviewService) *InterviewHandler {
	return &InterviewHandler{
		interviewService: interviewService,
	}
}

// HandleStart handles POST /interviews
func (h *InterviewHandler) HandleStart(c *fiber.Ctx) error {
	var req models.StartInterviewRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "Invalid request payload")
	}

	if err := validate.Struct(req); err != nil {
		return respondError(c, err)
	}

	style := models.ParseInterviewStyle(req.Style)
	session, err := h.interviewService.StartSession(c.UserContext(), req.ResumeText, req.JobDescription, style)
	if err != nil {
		return respondError(c, err)
	}

	return c.Status(fiber.StatusCreated).JSON(models.StartInterviewResponse{
		ID:    session.ID,
		Style: string(session.Style),
	})
}

// HandleMessage handles POST /interviews/:id/messages. One call is one
// blocking round trip with the model.
func (h *InterviewHandler) HandleMessage(c *fiber.Ctx) error {
	var req models.SendMessageRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "Invalid request payload")
	}

	if err := validate.Struct(req); err != nil {
		return respondError(c, err)
	}

	sessionID := c.Params("id")
	reply, err := h.interviewService.SendMessage(c.UserContext(), sessionID, req.Text)
	if err != nil {
		return respondError(c, err)
	}

	turnCount := 0
	if session, err := h.interviewService.GetSession(sessionID); err == nil {
		turnCount = len(session.Transcript())
	}

	return c.JSON(models.SendMessageResponse{
		Reply:     reply,
		TurnCount: turnCount,
	})
}

// HandleEnd handles POST /interviews/:id/end
func (h *InterviewHandler) HandleEnd(c *fiber.Ctx) error {
	session, transcript, err := h.interviewService.EndSession(c.Params("id"))
	if err != nil {
		return respondError(c, err)
	}

	feedback := h.interviewService.GenerateFeedback(c.UserContext(), transcript, session.JobDescription)

	return c.JSON(models.EndInterviewResponse{
		Transcript: transcript,
		Feedback:   feedback,
	})
}
