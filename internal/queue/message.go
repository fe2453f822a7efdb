package queue

import "encoding/json"

// MessageVersion is the current payload version.
const MessageVersion = 1

// Message asks a worker to finish a submission whose document is already stored.
type Message struct {
	SubmissionID   string `json:"submissionId"`
	Owner          string `json:"owner"`
	DocumentPath   string `json:"documentPath"`
	DocumentName   string `json:"documentName"`
	CompanyName    string `json:"companyName,omitempty"`
	JobTitle       string `json:"jobTitle,omitempty"`
	JobDescription string `json:"jobDescription,omitempty"`
	RequestID      string `json:"requestId"`
	EnqueuedAt     string `json:"enqueuedAt"`
	Version        int    `json:"version"`
}

// EncodeMessage returns the JSON representation of a message.
func EncodeMessage(msg Message) ([]byte, error) {
	return json.Marshal(msg)
}

// DecodeMessage parses a JSON payload into a Message.
func DecodeMessage(payload []byte) (Message, error) {
	var msg Message
	if err := json.Unmarshal(payload, &msg); err != nil {
		return Message{}, err
	}
	return msg, nil
}
