package models

import "time"

type Queue struct {
	QueueID       string    `json:"queue_id"`
	CompanyID     string    `json:"company_id"`
	Name          string    `json:"name"`
	Prefix        string    `json:"prefix"`
	CurrentNumber int64     `json:"current_number"`
	WaitingCount  int       `json:"waiting_count"`
	CreatedAt     time.Time `json:"created_at"`
}
