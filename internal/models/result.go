package models

import "encoding/json"

type GenerateResponse struct {
	ID     string `json:"id"`
	Status string `json:"status"`
}

type ResultResponse struct {
	ID           string           `json:"id"`
	Status       string           `json:"status"`
	Result       *GeneratedResume `json:"result,omitempty"`
	ErrorKind    *string          `json:"error_kind,omitempty"`
	ErrorMessage *string          `json:"error_message,omitempty"`
}

type DraftResponse struct {
	SessionID string          `json:"session_id"`
	Data      json.RawMessage `json:"data"`
	UpdatedAt string          `json:"updated_at"`
}

type StartInterviewRequest struct {
	ResumeText     string `json:"resume_text" validate:"required"`
	JobDescription string `json:"job_description" validate:"required"`
	Style          string `json:"style" validate:"omitempty,oneof=friendly strict"`
}

type StartInterviewResponse struct {
	ID    string `json:"id"`
	Style string `json:"style"`
}

type SendMessageRequest struct {
	Text string `json:"text" validate:"required"`
}

type SendMessageResponse struct {
	Reply     string `json:"reply"`
	TurnCount int    `json:"turn_count"`
}

type EndInterviewResponse struct {
	Transcript []Turn `json:"transcript"`
	Feedback   string `json:"feedback"`
}

type ErrorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}
