// Package submissions defines the submission record and its key-value persistence.
package submissions

import (
	"time"

	"resume-critique/internal/feedback"
)

// KeyPrefix is prepended to the submission id to form the record key.
const KeyPrefix = "resume:"

// Record lifecycle states.
const (
	StatusPending   = "pending"
	StatusCompleted = "completed"
	StatusFailed    = "failed"
)

// Record is the durable unit of work for one submission. Feedback is nil until inference
// succeeds; readers treat nil as pending or failed and consult Status to tell them apart.
type Record struct {
	ID             string           `json:"id"`
	ResumePath     string           `json:"resumePath,omitempty"`
	ImagePath      string           `json:"imagePath,omitempty"`
	CompanyName    string           `json:"companyName"`
	JobTitle       string           `json:"jobTitle"`
	JobDescription string           `json:"jobDescription"`
	Feedback       *feedback.Result `json:"feedback"`
	Status         string           `json:"status"`
	FailureReason  string           `json:"failureReason,omitempty"`
	CreatedAt      time.Time        `json:"createdAt"`
	UpdatedAt      time.Time        `json:"updatedAt"`
}

// Key returns the key-value key for a submission id.
func Key(id string) string {
	return KeyPrefix + id
}
