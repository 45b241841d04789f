package models

// FileBlob is an opaque uploaded file. Data never leaves the request that
// carries it except through attachment storage.
type FileBlob struct {
	Name     string `json:"name"`
	MIMEType string `json:"mime_type"`
	Data     []byte `json:"-"`
}

type PartKind string

const (
	PartImage PartKind = "image"
	PartText  PartKind = "text"
)

// FilePart is the model-consumable form of a FileBlob.
type FilePart struct {
	Kind     PartKind
	Name     string
	MIMEType string
	Bytes    []byte
	Content  string
}

type Experience struct {
	Company string `json:"company"`
	Title   string `json:"title"`
	Period  string `json:"period"`
	Content string `json:"content"`
}

type Project struct {
	Title       string     `json:"title"`
	URL         string     `json:"url"`
	Description string     `json:"description"`
	Attachments []FileBlob `json:"-"`
}

type UserInputBundle struct {
	Name           string       `json:"name"`
	Email          string       `json:"email"`
	Phone          string       `json:"phone"`
	TargetPosition string       `json:"target_position"`
	Summary        string       `json:"summary"`
	Education      string       `json:"education"`
	Experiences    []Experience `json:"experiences"`
	Projects       []Project    `json:"projects"`
	ResumeFile     *FileBlob    `json:"-"`
}

// GeneratedResume mirrors the response schema sent to the model. Empty
// values are legal; only absent fields are rejected when parsing.
type GeneratedResume struct {
	ProfessionalTitle   string                `json:"professionalTitle"`
	ProfessionalSummary string                `json:"professionalSummary"`
	Skills              []string              `json:"skills"`
	Experiences         []OptimizedExperience `json:"experiences"`
	Projects            []OptimizedProject    `json:"projects"`
	Education           []string              `json:"education"`
	Autobiography       string                `json:"autobiography"`
	InterviewTips       string                `json:"interviewTips"`
}

type OptimizedExperience struct {
	Company    string   `json:"company"`
	Title      string   `json:"title"`
	Period     string   `json:"period"`
	Highlights []string `json:"highlights"`
}

type OptimizedProject struct {
	Title       string   `json:"title"`
	Role        string   `json:"role"`
	TechStack   []string `json:"techStack"`
	Description string   `json:"description"`
	URL         string   `json:"url,omitempty"`
}
