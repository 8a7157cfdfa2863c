package validation

import (
	"path/filepath"
	"strings"

	"topicq/internal/domain"
)

const (
	maxTopicLength    = 200
	maxSkills         = 50
	maxSkillLength    = 100
	maxExperience     = 60
	maxFilenameLength = 255
)

// allowedResumeExtensions are the upload types accepted by the resume flow.
var allowedResumeExtensions = map[string]struct{}{
	".pdf":  {},
	".doc":  {},
	".docx": {},
}

// Validator provides request validation functionality
type Validator struct{}

// NewValidator creates a new validator instance
func NewValidator() *Validator {
	return &Validator{}
}

// ValidateGenerateQuizRequest validates the topic quiz request
func (v *Validator) ValidateGenerateQuizRequest(topic, difficulty string) domain.ValidationErrors {
	var errors domain.ValidationErrors

	topic = strings.TrimSpace(topic)
	if topic == "" {
		errors = append(errors, domain.NewMissingFieldError("topic"))
	} else if len(topic) > maxTopicLength {
		errors = append(errors, domain.NewOutOfRangeError("topic", len(topic), 1, maxTopicLength))
	}

	if strings.TrimSpace(difficulty) == "" {
		errors = append(errors, domain.NewMissingFieldError("difficulty"))
	} else if _, err := domain.ParseDifficulty(difficulty); err != nil {
		errors = append(errors, domain.NewInvalidFormatError("difficulty", difficulty))
	}

	return errors
}

// ValidateResumeQuizRequest validates the resume quiz request. Skills may be
// empty: the service then falls back to general professional topics.
func (v *Validator) ValidateResumeQuizRequest(skills []string, experienceYears int, filename string) domain.ValidationErrors {
	var errors domain.ValidationErrors

	if len(skills) > maxSkills {
		errors = append(errors, domain.NewOutOfRangeError("technical_skills", len(skills), 0, maxSkills))
	}
	for _, s := range skills {
		if len(s) > maxSkillLength {
			errors = append(errors, domain.NewInvalidFormatError("technical_skills", s))
			break
		}
	}

	if experienceYears < 0 || experienceYears > maxExperience {
		errors = append(errors, domain.NewOutOfRangeError("experience_years", experienceYears, 0, maxExperience))
	}

	filename = strings.TrimSpace(filename)
	switch {
	case filename == "":
		errors = append(errors, domain.NewMissingFieldError("filename"))
	case len(filename) > maxFilenameLength:
		errors = append(errors, domain.NewOutOfRangeError("filename", len(filename), 1, maxFilenameLength))
	case !isAllowedResumeFile(filename):
		errors = append(errors, domain.NewInvalidFormatError("filename", filename))
	}

	return errors
}

// isAllowedResumeFile checks the extension against the accepted upload types
func isAllowedResumeFile(name string) bool {
	_, ok := allowedResumeExtensions[strings.ToLower(filepath.Ext(name))]
	return ok
}
