package indexerr

import (
	"encoding/json"
	"fmt"
	"strings"
)

// FormatForUser returns a user-friendly error message.
// If debug is true, includes additional technical details.
func FormatForUser(err error, debug bool) string {
	if err == nil {
		return ""
	}

	ie, ok := err.(*IndexError)
	if !ok {
		return err.Error()
	}

	var sb strings.Builder

	sb.WriteString("Error: ")
	sb.WriteString(ie.Message)
	sb.WriteString("\n")

	if ie.Suggestion != "" {
		sb.WriteString("\nSuggestion: ")
		sb.WriteString(ie.Suggestion)
		sb.WriteString("\n")
	}

	sb.WriteString(fmt.Sprintf("\n[%s]", ie.Code))

	return sb.String()
}

// FormatForSummary formats an error for the run summary's per-class
// sample list.
func FormatForSummary(err error) string {
	if err == nil {
		return ""
	}

	ie, ok := err.(*IndexError)
	if !ok {
		ie = Wrap(ErrCodeInternal, err)
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("%s: %s", ie.Code, ie.Message))
	if path, ok := ie.Details["file_path"]; ok {
		sb.WriteString(fmt.Sprintf(" (%s)", path))
	}
	return sb.String()
}

// jsonError is the JSON representation of an error.
type jsonError struct {
	Code       string            `json:"code"`
	Message    string            `json:"message"`
	Category   string            `json:"category"`
	Severity   string            `json:"severity"`
	Details    map[string]string `json:"details,omitempty"`
	Suggestion string            `json:"suggestion,omitempty"`
	Cause      string            `json:"cause,omitempty"`
	Retryable  bool              `json:"retryable"`
}

// FormatJSON returns a JSON representation of the error.
// Suitable for machine consumption and structured logging.
func FormatJSON(err error) ([]byte, error) {
	if err == nil {
		return json.Marshal(nil)
	}

	ie, ok := err.(*IndexError)
	if !ok {
		ie = Wrap(ErrCodeInternal, err)
	}

	je := jsonError{
		Code:       ie.Code,
		Message:    ie.Message,
		Category:   string(ie.Category),
		Severity:   string(ie.Severity),
		Details:    ie.Details,
		Suggestion: ie.Suggestion,
		Retryable:  ie.Retryable,
	}

	if ie.Cause != nil {
		je.Cause = ie.Cause.Error()
	}

	return json.Marshal(je)
}

// FormatForLog formats an error for structured logging via slog.
// Returns key-value pairs suitable for slog attributes.
func FormatForLog(err error) map[string]any {
	if err == nil {
		return nil
	}

	ie, ok := err.(*IndexError)
	if !ok {
		return map[string]any{
			"error": err.Error(),
		}
	}

	result := map[string]any{
		"error_code": ie.Code,
		"message":    ie.Message,
		"category":   string(ie.Category),
		"severity":   string(ie.Severity),
		"retryable":  ie.Retryable,
	}

	if ie.Cause != nil {
		result["cause"] = ie.Cause.Error()
	}

	if ie.Suggestion != "" {
		result["suggestion"] = ie.Suggestion
	}

	for k, v := range ie.Details {
		result["detail_"+k] = v
	}

	return result
}
