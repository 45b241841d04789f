package services

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"strings"

	"github.com/go-playground/validator/v10"
	"google.golang.org/genai"

	"alfredoptarigan/resume-coach/internal/models"
)

type ResumeGenerator interface {
	Generate(ctx context.Context, bundle *models.UserInputBundle) (*models.GeneratedResume, error)
}

type resumeGenerator struct {
	geminiService GeminiService
	ingestion     IngestionService
	promptBuilder *PromptBuilder
	validate      *validator.Validate
}

func NewResumeGenerator(geminiService GeminiService, ingestion IngestionService, promptBuilder *PromptBuilder) ResumeGenerator {
	return &resumeGenerator{
		geminiService: geminiService,
		ingestion:     ingestion,
		promptBuilder: promptBuilder,
		validate:      validator.New(),
	}
}

// Generate implements ResumeGenerator. It makes exactly one request and
// never retries.
func (r *resumeGenerator) Generate(ctx context.Context, bundle *models.UserInputBundle) (*models.GeneratedResume, error) {
	attachments := r.ingestAll(bundle)
	prompt := r.promptBuilder.BuildResumePrompt(bundle, attachments)

	log.Printf("📝 Resume prompt length: %d characters, %d images\n", len(prompt.Text), len(prompt.Images))

	response, err := r.geminiService.GenerateStructured(ctx, StructuredRequest{
		SystemInstruction: r.promptBuilder.ResumeSystemInstruction(),
		Prompt:            prompt.Text,
		Images:            prompt.Images,
		Schema:            ResumeSchema(),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to generate resume: %w", err)
	}

	return r.ParseResume(response)
}

func (r *resumeGenerator) ingestAll(bundle *models.UserInputBundle) ResumeAttachments {
	var attachments ResumeAttachments

	if bundle.ResumeFile != nil {
		part := r.ingestion.Ingest(*bundle.ResumeFile)
		attachments.Resume = &part
	}

	attachments.Projects = make([][]models.FilePart, len(bundle.Projects))
	for i, p := range bundle.Projects {
		for _, blob := range p.Attachments {
			attachments.Projects[i] = append(attachments.Projects[i], r.ingestion.Ingest(blob))
		}
	}

	return attachments
}

// ParseResume strips code fences and decodes a complete GeneratedResume.
// A missing or null required field is a parse failure; empty strings and
// empty arrays are accepted.
func (r *resumeGenerator) ParseResume(response string) (*models.GeneratedResume, error) {
	payload := stripCodeFence(response)
	if payload == "" {
		return nil, fmt.Errorf("%w: empty response", ErrParse)
	}

	var decoded resumePayload
	if err := json.Unmarshal([]byte(payload), &decoded); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrParse, err)
	}

	if err := r.validate.Struct(&decoded); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrParse, err)
	}

	return decoded.toResume(), nil
}

// resumePayload is the wire shape of GeneratedResume. Pointer and slice
// fields stay nil when a key is absent or null, so `required` checks
// presence only.
type resumePayload struct {
	ProfessionalTitle   *string             `json:"professionalTitle" validate:"required"`
	ProfessionalSummary *string             `json:"professionalSummary" validate:"required"`
	Skills              []string            `json:"skills" validate:"required"`
	Experiences         []experiencePayload `json:"experiences" validate:"required,dive"`
	Projects            []projectPayload    `json:"projects" validate:"required,dive"`
	Education           []string            `json:"education" validate:"required"`
	Autobiography       *string             `json:"autobiography" validate:"required"`
	InterviewTips       *string             `json:"interviewTips" validate:"required"`
}

type experiencePayload struct {
	Company    *string  `json:"company" validate:"required"`
	Title      *string  `json:"title" validate:"required"`
	Period     *string  `json:"period" validate:"required"`
	Highlights []string `json:"highlights" validate:"required"`
}

type projectPayload struct {
	Title       *string  `json:"title" validate:"required"`
	Role        *string  `json:"role" validate:"required"`
	TechStack   []string `json:"techStack" validate:"required"`
	Description *string  `json:"description" validate:"required"`
	URL         *string  `json:"url"`
}

func (p *resumePayload) toResume() *models.GeneratedResume {
	resume := &models.GeneratedResume{
		ProfessionalTitle:   *p.ProfessionalTitle,
		ProfessionalSummary: *p.ProfessionalSummary,
		Skills:              p.Skills,
		Experiences:         make([]models.OptimizedExperience, 0, len(p.Experiences)),
		Projects:            make([]models.OptimizedProject, 0, len(p.Projects)),
		Education:           p.Education,
		Autobiography:       *p.Autobiography,
		InterviewTips:       *p.InterviewTips,
	}

	for _, e := range p.Experiences {
		resume.Experiences = append(resume.Experiences, models.OptimizedExperience{
			Company:    *e.Company,
			Title:      *e.Title,
			Period:     *e.Period,
			Highlights: e.Highlights,
		})
	}

	for _, pr := range p.Projects {
		project := models.OptimizedProject{
			Title:       *pr.Title,
			Role:        *pr.Role,
			TechStack:   pr.TechStack,
			Description: *pr.Description,
		}
		if pr.URL != nil {
			project.URL = *pr.URL
		}
		resume.Projects = append(resume.Projects, project)
	}

	return resume
}

// stripCodeFence removes a surrounding ``` or ```json fence.
func stripCodeFence(text string) string {
	text = strings.TrimSpace(text)
	if !strings.HasPrefix(text, "```") {
		return text
	}

	text = strings.TrimPrefix(text, "```")
	if nl := strings.IndexByte(text, '\n'); nl >= 0 {
		// Drop the language tag, if any.
		if lang := strings.TrimSpace(text[:nl]); lang == "" || !strings.ContainsAny(lang, "{[") {
			text = text[nl+1:]
		}
	}
	text = strings.TrimSpace(text)
	text = strings.TrimSuffix(text, "```")

	return strings.TrimSpace(text)
}

func stringArray(description string) *genai.Schema {
	return &genai.Schema{
		Type:        genai.TypeArray,
		Items:       &genai.Schema{Type: genai.TypeString},
		Description: description,
	}
}

// ResumeSchema is the response schema for GeneratedResume.
func ResumeSchema() *genai.Schema {
	return &genai.Schema{
		Type: genai.TypeObject,
		Properties: map[string]*genai.Schema{
			"professionalTitle": {
				Type:        genai.TypeString,
				Description: "A catchy professional headline (e.g., 'Senior Frontend Engineer | React Specialist')",
			},
			"professionalSummary": {
				Type:        genai.TypeString,
				Description: "A strong executive summary (3-4 sentences) highlighting years of experience and key achievements.",
			},
			"skills": stringArray("List of key technical and soft skills formatted as tags."),
			"experiences": {
				Type: genai.TypeArray,
				Items: &genai.Schema{
					Type: genai.TypeObject,
					Properties: map[string]*genai.Schema{
						"company":    {Type: genai.TypeString},
						"title":      {Type: genai.TypeString},
						"period":     {Type: genai.TypeString},
						"highlights": stringArray("3-5 bullet points using STAR method. Quantify results."),
					},
					Required:         []string{"company", "title", "period", "highlights"},
					PropertyOrdering: []string{"company", "title", "period", "highlights"},
				},
			},
			"projects": {
				Type: genai.TypeArray,
				Items: &genai.Schema{
					Type: genai.TypeObject,
					Properties: map[string]*genai.Schema{
						"title":     {Type: genai.TypeString},
						"role":      {Type: genai.TypeString},
						"techStack": stringArray(""),
						"description": {
							Type:        genai.TypeString,
							Description: "Detailed description emphasizing contribution, technical challenges solved, and impact.",
						},
						"url": {Type: genai.TypeString},
					},
					Required:         []string{"title", "role", "techStack", "description"},
					PropertyOrdering: []string{"title", "role", "techStack", "description", "url"},
				},
			},
			"education": stringArray("Formatted education details (Degree, School, Period)."),
			"autobiography": {
				Type:        genai.TypeString,
				Description: "A professional autobiography suitable for Taiwan 104 Job Bank (600-1000 characters). Tone: Confident, Humble, Determined.",
			},
			"interviewTips": {
				Type:        genai.TypeString,
				Description: "Short, actionable advice for the candidate.",
			},
		},
		Required: []string{
			"professionalTitle", "professionalSummary", "skills", "experiences",
			"projects", "education", "autobiography", "interviewTips",
		},
		PropertyOrdering: []string{
			"professionalTitle", "professionalSummary", "skills", "experiences",
			"projects", "education", "autobiography", "interviewTips",
		},
	}
}
