package models

import (
	"time"
)

// TriggerType records what caused a scrape job to be enqueued.
type TriggerType string

const (
	TriggerManual    TriggerType = "MANUAL"
	TriggerScheduled TriggerType = "SCHEDULED"
)

// ScrapeJobMessage is the wire record published on the scrape channel.
// JobID is nil for scheduled triggers; the worker then creates the job
// record itself at consumption time.
type ScrapeJobMessage struct {
	JobID       *int64      `json:"jobId,omitempty"`
	SourceID    int64       `json:"sourceId"`
	SourceName  string      `json:"sourceName"`
	TriggeredBy TriggerType `json:"triggeredBy"`
	Timestamp   time.Time   `json:"timestamp"`
}

// EmailJobMessage is the wire record published on the email channel.
type EmailJobMessage struct {
	JobID          int64                  `json:"jobId"`
	RecipientEmail string                 `json:"recipientEmail"`
	EmailType      string                 `json:"emailType"`
	Data           map[string]interface{} `json:"data,omitempty"`
	Timestamp      time.Time              `json:"timestamp"`
}
