package profiles

import (
	"fmt"
	"strings"
)

const (
	ErrCodeParse        = "ERR_PARSE"
	ErrCodeMissingField = "ERR_MISSING_FIELD"
	ErrCodeInvalidField = "ERR_INVALID_FIELD"
	ErrCodeDuplicate    = "ERR_DUPLICATE"
	ErrCodeNotFound     = "ERR_NOT_FOUND"
)

// ProfileError carries structured validation information.
type ProfileError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Path    string `json:"path,omitempty"`
	Field   string `json:"field,omitempty"`
	Line    int    `json:"line,omitempty"`
	Column  int    `json:"column,omitempty"`
}

func (e ProfileError) Error() string {
	return e.HumanString()
}

// HumanString renders a human-friendly message with context.
func (e ProfileError) HumanString() string {
	parts := make([]string, 0, 2)
	if e.Path != "" {
		parts = append(parts, e.Path)
	}
	if e.Field != "" {
		parts = append(parts, e.Field)
	}

	prefix := "profile"
	if len(parts) > 0 {
		prefix = strings.Join(parts, ": ")
	}

	message := e.Message
	if message == "" {
		message = e.Code
	}

	if e.Line > 0 {
		location := fmt.Sprintf("line %d", e.Line)
		if e.Column > 0 {
			location = fmt.Sprintf("%s:%d", location, e.Column)
		}
		message = fmt.Sprintf("%s (%s)", message, location)
	}

	return fmt.Sprintf("%s: %s", prefix, message)
}

// ErrorList groups profile errors.
type ErrorList struct {
	Errors []ProfileError `json:"errors"`
}

func (e *ErrorList) Error() string {
	if e == nil || len(e.Errors) == 0 {
		return ""
	}
	lines := make([]string, 0, len(e.Errors))
	for _, err := range e.Errors {
		lines = append(lines, err.HumanString())
	}
	return strings.Join(lines, "\n")
}

func (e *ErrorList) Add(err ProfileError) {
	e.Errors = append(e.Errors, err)
}

func (e *ErrorList) Empty() bool {
	return e == nil || len(e.Errors) == 0
}
