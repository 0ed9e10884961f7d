package domain

import "time"

// Sender tells which side of the call a transcript entry came from.
type Sender string

const (
	SenderLocal  Sender = "local"
	SenderRemote Sender = "remote"
)

// Entry is one recognized label. Entries are ordered by arrival of the
// recognizer response, not by capture time.
type Entry struct {
	Text   string    `json:"text"`
	Lang   string    `json:"lang,omitempty"`
	Sender Sender    `json:"sender"`
	At     time.Time `json:"at"`
}
