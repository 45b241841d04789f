package models

type InterviewStyle string

const (
	StyleFriendly InterviewStyle = "friendly"
	StyleStrict   InterviewStyle = "strict"
)

// ParseInterviewStyle defaults to friendly for anything it does not know.
func ParseInterviewStyle(s string) InterviewStyle {
	if InterviewStyle(s) == StyleStrict {
		return StyleStrict
	}
	return StyleFriendly
}

type TurnRole string

const (
	RoleUser  TurnRole = "user"
	RoleModel TurnRole = "model"
)

type Turn struct {
	Role TurnRole `json:"role"`
	Text string   `json:"text"`
}
