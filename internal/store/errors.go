package store

import "errors"

var (
	ErrCompanyNotFound    = errors.New("company not found")
	ErrUserNotFound       = errors.New("user not found")
	ErrQueueNotFound      = errors.New("queue not found")
	ErrTicketNotFound     = errors.New("ticket not found")
	ErrNoWaitingTicket    = errors.New("no waiting ticket")
	ErrInvalidState       = errors.New("invalid ticket state")
	ErrDuplicatePrefix    = errors.New("queue prefix already in use")
	ErrDuplicateEmail     = errors.New("email already registered")
	ErrInvalidCredentials = errors.New("invalid credentials")
)
