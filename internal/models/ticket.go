package models

import "time"

type Ticket struct {
	TicketID      string     `json:"ticket_id"`
	QueueID       string     `json:"queue_id"`
	DisplayNumber string     `json:"display_number"`
	Status        string     `json:"status"`
	CreatedAt     time.Time  `json:"created_at"`
	CalledAt      *time.Time `json:"called_at,omitempty"`
	FinishedAt    *time.Time `json:"finished_at,omitempty"`
	QueueName     string     `json:"queue_name,omitempty"`
	QueuePrefix   string     `json:"queue_prefix,omitempty"`
}

const (
	StatusWaiting    = "WAITING"
	StatusInProgress = "IN_PROGRESS"
	StatusDone       = "DONE"
)
