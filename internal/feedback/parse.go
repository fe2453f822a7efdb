package feedback

import (
	"encoding/json"
)

// Parse decodes provider text into a structured Feedback. Decoding is all-or-nothing: text that
// is not a single JSON critique object, including fenced or annotated JSON, comes back as Raw
// with the text unchanged.
func Parse(raw string) *Result {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal([]byte(raw), &fields); err != nil {
		return Raw(raw)
	}
	_, hasOverall := fields["overallScore"]
	_, hasATS := fields["ATS"]
	if !hasOverall && !hasATS {
		return Raw(raw)
	}

	var f Feedback
	if err := json.Unmarshal([]byte(raw), &f); err != nil {
		return Raw(raw)
	}
	return Structured(f)
}
