package store

import (
	"context"
	"time"

	"fila/ticket-service/internal/models"
)

type SignupInput struct {
	CompanyName string
	Email       string
	Password    string
}

type CreateQueueInput struct {
	CompanyID string
	Name      string
	Prefix    string
}

// IssueTicketInput identifies the queue a ticket should be issued for.
// CompanyID is empty on the public kiosk path, which is not tenant-scoped.
type IssueTicketInput struct {
	QueueID   string
	CompanyID string
	CreatedAt time.Time
}

type CallNextInput struct {
	QueueID   string
	CompanyID string
	CalledAt  time.Time
}

type FinishTicketInput struct {
	TicketID   string
	CompanyID  string
	FinishedAt time.Time
}

// IssuedTicket carries the queue and company names alongside the new ticket
// so kiosk responses need no second lookup.
type IssuedTicket struct {
	Ticket      models.Ticket `json:"ticket"`
	QueueName   string        `json:"queue_name"`
	CompanyName string        `json:"company_name"`
}

type QueueBoard struct {
	Queue             models.Queue    `json:"queue"`
	WaitingTickets    []models.Ticket `json:"waiting_tickets"`
	InProgressTickets []models.Ticket `json:"in_progress_tickets"`
}

type DisplayBoard struct {
	Company        models.Company  `json:"company"`
	CurrentTickets []models.Ticket `json:"current_tickets"`
	RecentTickets  []models.Ticket `json:"recent_tickets"`
}

type Store interface {
	CreateAccount(ctx context.Context, input SignupInput) (models.User, error)
	Authenticate(ctx context.Context, email, password string) (models.User, error)
	GetUser(ctx context.Context, userID string) (models.User, error)

	CreateQueue(ctx context.Context, input CreateQueueInput) (models.Queue, error)
	ListQueues(ctx context.Context, companyID string) ([]models.Queue, error)
	GetQueueBoard(ctx context.Context, companyID, queueID string) (QueueBoard, error)

	IssueTicket(ctx context.Context, input IssueTicketInput) (IssuedTicket, error)
	CallNext(ctx context.Context, input CallNextInput) (models.Ticket, error)
	FinishTicket(ctx context.Context, input FinishTicketInput) (models.Ticket, error)

	GetPublicQueue(ctx context.Context, queueID string) (models.Queue, models.Company, error)
	GetDisplayBoard(ctx context.Context, companyID string, recentLimit int) (DisplayBoard, error)
}
