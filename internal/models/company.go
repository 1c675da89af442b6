package models

import "time"

type Company struct {
	CompanyID string    `json:"company_id"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"created_at"`
}

type User struct {
	UserID    string    `json:"user_id"`
	CompanyID string    `json:"company_id"`
	Email     string    `json:"email"`
	CreatedAt time.Time `json:"created_at"`
	Company   *Company  `json:"company,omitempty"`
}
