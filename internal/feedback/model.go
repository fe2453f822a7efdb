// Package feedback holds the structured critique model, the tagged parse result and the
// prompt that asks an inference provider for that shape.
package feedback

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
)

// TipType classifies a tip as something done well or something to fix.
type TipType string

const (
	TipGood    TipType = "good"
	TipImprove TipType = "improve"
)

// Score is a 0-100 integer score. Decoding accepts fractional numbers (rounded), null
// (read as 0) and clamps out-of-range values.
type Score int

// UnmarshalJSON implements json.Unmarshaler.
func (s *Score) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if bytes.Equal(b, []byte("null")) {
		*s = 0
		return nil
	}
	var f float64
	if err := json.Unmarshal(b, &f); err != nil {
		return fmt.Errorf("score: %w", err)
	}
	*s = Score(clamp(math.Round(f)))
	return nil
}

// clamp bounds v before the int conversion, which is undefined for out-of-range floats.
func clamp(v float64) int {
	switch {
	case v < 0:
		return 0
	case v > 100:
		return 100
	default:
		return int(v)
	}
}

// ATSTip is one applicant-tracking-system compatibility remark.
type ATSTip struct {
	Type TipType `json:"type"`
	Tip  string  `json:"tip"`
}

// ATS is the applicant-tracking-system section.
type ATS struct {
	Score Score    `json:"score"`
	Tips  []ATSTip `json:"tips"`
}

// Tip is one category remark with a longer explanation.
type Tip struct {
	Type        TipType `json:"type"`
	Tip         string  `json:"tip"`
	Explanation string  `json:"explanation,omitempty"`
}

// Category is one of the scored review areas.
type Category struct {
	Score Score `json:"score"`
	Tips  []Tip `json:"tips"`
}

// Feedback is the structured critique of one resume.
type Feedback struct {
	OverallScore Score    `json:"overallScore"`
	ATS          ATS      `json:"ATS"`
	ToneAndStyle Category `json:"toneAndStyle"`
	Content      Category `json:"content"`
	Structure    Category `json:"structure"`
	Skills       Category `json:"skills"`
}

// Result is either a structured Feedback or the raw provider text it could not be decoded from.
// Exactly one side is set; callers branch on IsRaw.
type Result struct {
	Structured *Feedback
	Raw        string
}

// Structured wraps a decoded critique.
func Structured(f Feedback) *Result {
	return &Result{Structured: &f}
}

// Raw wraps undecodable provider text.
func Raw(text string) *Result {
	return &Result{Raw: text}
}

// IsRaw reports whether the result holds unstructured text.
func (r *Result) IsRaw() bool {
	return r != nil && r.Structured == nil
}

// MarshalJSON encodes a structured result as an object and a raw one as a JSON string.
func (r Result) MarshalJSON() ([]byte, error) {
	if r.Structured != nil {
		return json.Marshal(r.Structured)
	}
	return json.Marshal(r.Raw)
}

// UnmarshalJSON accepts either shape written by MarshalJSON.
func (r *Result) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) == 0 {
		return fmt.Errorf("feedback: empty value")
	}
	switch b[0] {
	case '"':
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*r = Result{Raw: s}
		return nil
	case '{':
		var f Feedback
		if err := json.Unmarshal(b, &f); err != nil {
			return err
		}
		*r = Result{Structured: &f}
		return nil
	default:
		return fmt.Errorf("feedback: unexpected JSON value %q", truncate(string(b), 16))
	}
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
