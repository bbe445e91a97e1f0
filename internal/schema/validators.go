package schema

import (
	"net/url"
	"strings"
)

// Validator checks a trimmed, non-empty answer and returns a user-facing
// reason when it is rejected.
type Validator func(answer string) (reason string, ok bool)

const (
	ValidatorURL       = "url"
	ValidatorDriveLink = "drive_link"
)

var validators = map[string]Validator{
	ValidatorURL:       validateURL,
	ValidatorDriveLink: validateDriveLink,
}

// Check runs the field's validator, if any.
func (f Field) Check(answer string) (string, bool) {
	if f.Validate == "" {
		return "", true
	}
	return validators[f.Validate](answer)
}

func validateURL(answer string) (string, bool) {
	u, err := url.Parse(answer)
	if err != nil || u.Host == "" || (u.Scheme != "http" && u.Scheme != "https") {
		return "Please send a full link starting with http:// or https://.", false
	}
	return "", true
}

func validateDriveLink(answer string) (string, bool) {
	if reason, ok := validateURL(answer); !ok {
		return reason, false
	}
	if !strings.Contains(answer, "drive.google.com") {
		return "Please provide a valid Google Drive link.", false
	}
	return "", true
}
