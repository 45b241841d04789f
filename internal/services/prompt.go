package services

import (
	"fmt"
	"strings"

	"alfredoptarigan/resume-coach/internal/models"
)

// ResumeAttachments are the ingested files of a bundle. Projects is indexed
// like UserInputBundle.Projects.
type ResumeAttachments struct {
	Resume   *models.FilePart
	Projects [][]models.FilePart
}

// ResumePrompt is the instruction text plus the images that travel with it,
// in prompt order.
type ResumePrompt struct {
	Text   string
	Images []models.FilePart
}

type PromptBuilder struct {
	language string
}

func NewPromptBuilder(language string) *PromptBuilder {
	if language == "" {
		language = "Traditional Chinese (Taiwan)"
	}
	return &PromptBuilder{language: language}
}

// ResumeSystemInstruction is sent as the system instruction of the
// structured generation request.
func (pb *PromptBuilder) ResumeSystemInstruction() string {
	return "You are an expert resume builder. Your goal is to rewrite the user's resume to be highly competitive on Taiwan's 104 Job Bank. " +
		"Focus on achievements, clear metrics, and professional phrasing."
}

// BuildResumePrompt renders the bundle into a single instruction block.
// It does no I/O and always yields the same output for the same input.
func (pb *PromptBuilder) BuildResumePrompt(bundle *models.UserInputBundle, attachments ResumeAttachments) ResumePrompt {
	var sb strings.Builder
	var images []models.FilePart

	sb.WriteString(`Role: You are a top-tier Career Consultant and Resume Writer specializing in the Taiwan market (104 Job Bank format).
Task: Create a "Confidence Resume" that maximizes the candidate's strengths. Analyze the user's rough input, uploaded text files, and project images.

User Profile:
`)
	fmt.Fprintf(&sb, "Name: %s\n", bundle.Name)
	fmt.Fprintf(&sb, "Email: %s\n", bundle.Email)
	fmt.Fprintf(&sb, "Phone: %s\n", bundle.Phone)
	fmt.Fprintf(&sb, "Target Position: %s\n", bundle.TargetPosition)
	fmt.Fprintf(&sb, "Rough Summary: %s\n", bundle.Summary)
	fmt.Fprintf(&sb, "Rough Education: %s\n", bundle.Education)

	sb.WriteString("\nWork Experience (Rough):\n")
	for _, e := range bundle.Experiences {
		fmt.Fprintf(&sb, "- %s (%s) as %s: %s\n", e.Company, e.Period, e.Title, e.Content)
	}

	sb.WriteString("\nProjects (Rough):\n")
	for _, p := range bundle.Projects {
		fmt.Fprintf(&sb, "- %s (%s): %s\n", p.Title, p.URL, p.Description)
	}

	fmt.Fprintf(&sb, `
Requirements:
1. Language: %s.
2. Tone: Professional, Confident, Action-oriented.
3. Format: Optimize for readability and 104 Job Bank style.
4. Projects: Use the images (if provided) to infer technical complexity (UI/UX, Architecture) and mention it in the description.
5. CRITICAL: When generating the 'projects' array, you MUST use the EXACT SAME 'title' as provided in the User Profile for each project. Do not rename projects, or I cannot match the images to the text.
`, pb.language)

	if resume := attachments.Resume; resume != nil {
		switch resume.Kind {
		case models.PartText:
			if strings.TrimSpace(resume.Content) != "" {
				fmt.Fprintf(&sb, "\n\n[Reference Resume Content]:\n%s", resume.Content)
			}
		case models.PartImage:
			images = append(images, *resume)
			fmt.Fprintf(&sb, "\n\n[Reference Resume Content]:\n(Image attached: %s. Read the resume shown in this image.)", resume.Name)
		}
	}

	for i, p := range bundle.Projects {
		if i >= len(attachments.Projects) || len(attachments.Projects[i]) == 0 {
			continue
		}

		fmt.Fprintf(&sb, "\n--- Attachments for Project: \"%s\" ---", p.Title)
		for _, part := range attachments.Projects[i] {
			switch part.Kind {
			case models.PartImage:
				images = append(images, part)
				fmt.Fprintf(&sb, "\n(Image attached: %s. Analyze this image to describe the UI or Architecture.)", part.Name)
			case models.PartText:
				fmt.Fprintf(&sb, "\n[File Content (%s)]:\n%s\n", part.Name, part.Content)
			}
		}
	}

	return ResumePrompt{Text: sb.String(), Images: images}
}

func styleDirective(style models.InterviewStyle) string {
	if style == models.StyleStrict {
		return `You are a strict, demanding interviewer. Challenge vague answers with pointed follow-up questions, probe technical depth, ` +
			`and apply pressure the way a senior technical panel would. Do not praise weak answers.`
	}
	return `You are a friendly, encouraging interviewer. Ask exactly one question at a time, mix behavioral and technical questions, ` +
		`and acknowledge good answers before moving on.`
}

// BuildInterviewInstruction seeds a text interview session.
func (pb *PromptBuilder) BuildInterviewInstruction(resumeText, jobDescription string, style models.InterviewStyle, knowledge string) string {
	var sb strings.Builder

	sb.WriteString("You are conducting a mock job interview.\n\n")
	sb.WriteString(styleDirective(style))
	fmt.Fprintf(&sb, "\n\nJOB DESCRIPTION:\n%s\n\nCANDIDATE RESUME:\n%s\n", jobDescription, resumeText)

	if knowledge != "" {
		fmt.Fprintf(&sb, "\nINTERVIEW GUIDELINES:\n%s\n", knowledge)
	}

	fmt.Fprintf(&sb, `
Rules:
- Ask questions relevant to the job description and the candidate's resume.
- Ask one question per turn and wait for the candidate's answer.
- Stay in the interviewer role for the whole session.
- Reply in %s unless the candidate writes in another language.`, pb.language)

	return sb.String()
}

// BuildLiveInstruction seeds a voice interview session.
func (pb *PromptBuilder) BuildLiveInstruction(resumeText, jobDescription string, style models.InterviewStyle, knowledge string) string {
	return pb.BuildInterviewInstruction(resumeText, jobDescription, style, knowledge) + `
- This is a spoken conversation. Keep each turn short and natural, and start by greeting the candidate and asking them to introduce themselves.`
}

// RenderTranscript renders turns as a linear script.
func RenderTranscript(transcript []models.Turn) string {
	var sb strings.Builder
	for _, turn := range transcript {
		speaker := "Candidate"
		if turn.Role == models.RoleModel {
			speaker = "Interviewer"
		}
		fmt.Fprintf(&sb, "%s: %s\n", speaker, turn.Text)
	}
	return sb.String()
}

// BuildFeedbackPrompt asks for a written review of a finished interview.
func (pb *PromptBuilder) BuildFeedbackPrompt(transcript []models.Turn, jobDescription, knowledge string) string {
	var sb strings.Builder

	sb.WriteString("You are an experienced hiring manager reviewing a mock interview.\n\n")
	if jobDescription != "" {
		fmt.Fprintf(&sb, "JOB DESCRIPTION:\n%s\n\n", jobDescription)
	}
	if knowledge != "" {
		fmt.Fprintf(&sb, "EVALUATION GUIDELINES:\n%s\n\n", knowledge)
	}
	fmt.Fprintf(&sb, "INTERVIEW TRANSCRIPT:\n%s\n", RenderTranscript(transcript))

	fmt.Fprintf(&sb, `Write a review of the candidate's performance in %s with these sections:
1. Score (0-100)
2. Strengths
3. Weaknesses
4. Keyword coverage (which key requirements from the job description were or were not addressed)
5. Concrete suggestions for improvement

Return plain text, no JSON.`, pb.language)

	return sb.String()
}

// BuildRetrievalQuery creates the knowledge base query for a job description.
func (pb *PromptBuilder) BuildRetrievalQuery(jobDescription string) string {
	return fmt.Sprintf("Interview questions and evaluation criteria for: %s", jobDescription)
}

// FormatRAGContext renders knowledge base hits for prompt inclusion.
func FormatRAGContext(results []SearchResult) string {
	if len(results) == 0 {
		return ""
	}

	var parts []string
	for i, result := range results {
		parts = append(parts, fmt.Sprintf("--- Context %d (Score: %.2f) ---\n%s",
			i+1, result.Score, strings.TrimSpace(result.Text)))
	}

	return strings.Join(parts, "\n\n")
}
