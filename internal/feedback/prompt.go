package feedback

import (
	"fmt"
	"strings"
)

const responseFormat = `{
  "overallScore": number,
  "ATS": {
    "score": number,
    "tips": [{ "type": "good" | "improve", "tip": string }]
  },
  "toneAndStyle": {
    "score": number,
    "tips": [{ "type": "good" | "improve", "tip": string, "explanation": string }]
  },
  "content": {
    "score": number,
    "tips": [{ "type": "good" | "improve", "tip": string, "explanation": string }]
  },
  "structure": {
    "score": number,
    "tips": [{ "type": "good" | "improve", "tip": string, "explanation": string }]
  },
  "skills": {
    "score": number,
    "tips": [{ "type": "good" | "improve", "tip": string, "explanation": string }]
  }
}`

// Instructions builds the inference prompt for one submission.
func Instructions(jobTitle, jobDescription string) string {
	jobTitle = strings.TrimSpace(jobTitle)
	jobDescription = strings.TrimSpace(jobDescription)
	if jobTitle == "" {
		jobTitle = "(not provided)"
	}
	if jobDescription == "" {
		jobDescription = "(not provided)"
	}

	var b strings.Builder
	b.WriteString("You are an expert in applicant tracking systems and resume review.\n")
	b.WriteString("Analyze the attached resume and rate it honestly. Low scores are fine when deserved.\n")
	b.WriteString("Every score is an integer from 0 to 100.\n")
	b.WriteString("Give 3-4 ATS tips and 3-4 tips per category, each marked good or improve.\n")
	b.WriteString("Use the job context below to judge relevance.\n\n")
	fmt.Fprintf(&b, "Job title: %s\n", jobTitle)
	fmt.Fprintf(&b, "Job description: %s\n\n", jobDescription)
	b.WriteString("Return the analysis as a JSON object in exactly this format:\n")
	b.WriteString(responseFormat)
	b.WriteString("\nReturn only the JSON object, without backticks or any other text.\n")
	return b.String()
}

// Band is a coarse presentation bucket for a score.
type Band string

const (
	BandStrong           Band = "strong"
	BandGoodStart        Band = "good start"
	BandNeedsImprovement Band = "needs improvement"
)

// BandFor buckets a score. Missing scores decode as 0 and land in BandNeedsImprovement.
func BandFor(score Score) Band {
	switch {
	case score > 70:
		return BandStrong
	case score > 49:
		return BandGoodStart
	default:
		return BandNeedsImprovement
	}
}
