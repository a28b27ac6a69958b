package domain

import "time"

// Message is an outbound HTML notification.
type Message struct {
	To      string
	Subject string
	HTML    string
}

// Sent acknowledges a successful hand-off to the sender. It does not imply delivery.
type Sent struct {
	To     string    `json:"to"`
	SentAt time.Time `json:"sent_at"`
}
