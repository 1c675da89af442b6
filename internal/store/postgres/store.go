package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"fila/ticket-service/internal/models"
	"fila/ticket-service/internal/store"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const (
	ticketNumberPad = 3
	bcryptCost      = 10
)

type Store struct {
	pool *pgxpool.Pool
}

func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

func (s *Store) CreateAccount(ctx context.Context, input store.SignupInput) (models.User, error) {
	passwordHash, err := hashPassword(input.Password)
	if err != nil {
		return models.User{}, err
	}

	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return models.User{}, err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback(ctx)
		}
	}()

	var exists bool
	row := tx.QueryRow(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM users WHERE lower(email) = lower($1)
		)
	`, input.Email)
	if err = row.Scan(&exists); err != nil {
		return models.User{}, err
	}
	if exists {
		err = store.ErrDuplicateEmail
		return models.User{}, err
	}

	now := time.Now().UTC()
	companyID := uuid.NewString()
	_, err = tx.Exec(ctx, `
		INSERT INTO companies (company_id, name, created_at)
		VALUES ($1, $2, $3)
	`, companyID, input.CompanyName, now)
	if err != nil {
		return models.User{}, mapPgError(err)
	}

	userID := uuid.NewString()
	_, err = tx.Exec(ctx, `
		INSERT INTO users (user_id, company_id, email, password_hash, created_at)
		VALUES ($1, $2, $3, $4, $5)
	`, userID, companyID, input.Email, passwordHash, now)
	if err != nil {
		return models.User{}, mapPgError(err)
	}

	if err = tx.Commit(ctx); err != nil {
		return models.User{}, err
	}

	return models.User{
		UserID:    userID,
		CompanyID: companyID,
		Email:     input.Email,
		CreatedAt: now,
		Company: &models.Company{
			CompanyID: companyID,
			Name:      input.CompanyName,
			CreatedAt: now,
		},
	}, nil
}

func (s *Store) Authenticate(ctx context.Context, email, password string) (models.User, error) {
	var user models.User
	var company models.Company
	var passwordHash string
	row := s.pool.QueryRow(ctx, `
		SELECT u.user_id, u.company_id, u.email, u.created_at, u.password_hash,
		       c.company_id, c.name, c.created_at
		FROM users u
		JOIN companies c ON c.company_id = u.company_id
		WHERE lower(u.email) = lower($1)
	`, email)
	if err := row.Scan(&user.UserID, &user.CompanyID, &user.Email, &user.CreatedAt, &passwordHash,
		&company.CompanyID, &company.Name, &company.CreatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.User{}, store.ErrInvalidCredentials
		}
		return models.User{}, err
	}

	if err := comparePassword(passwordHash, password); err != nil {
		return models.User{}, store.ErrInvalidCredentials
	}

	user.Company = &company
	return user, nil
}

func (s *Store) GetUser(ctx context.Context, userID string) (models.User, error) {
	var user models.User
	var company models.Company
	row := s.pool.QueryRow(ctx, `
		SELECT u.user_id, u.company_id, u.email, u.created_at,
		       c.company_id, c.name, c.created_at
		FROM users u
		JOIN companies c ON c.company_id = u.company_id
		WHERE u.user_id = $1
	`, userID)
	if err := row.Scan(&user.UserID, &user.CompanyID, &user.Email, &user.CreatedAt,
		&company.CompanyID, &company.Name, &company.CreatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.User{}, store.ErrUserNotFound
		}
		return models.User{}, err
	}
	user.Company = &company
	return user, nil
}

func (s *Store) CreateQueue(ctx context.Context, input store.CreateQueueInput) (models.Queue, error) {
	prefix := strings.ToUpper(strings.TrimSpace(input.Prefix))

	var queue models.Queue
	row := s.pool.QueryRow(ctx, `
		INSERT INTO queues (queue_id, company_id, name, prefix, current_number, created_at)
		VALUES ($1, $2, $3, $4, 0, $5)
		RETURNING queue_id, company_id, name, prefix, current_number, created_at
	`, uuid.NewString(), input.CompanyID, input.Name, prefix, time.Now().UTC())
	if err := row.Scan(&queue.QueueID, &queue.CompanyID, &queue.Name, &queue.Prefix, &queue.CurrentNumber, &queue.CreatedAt); err != nil {
		return models.Queue{}, mapPgError(err)
	}
	return queue, nil
}

func (s *Store) ListQueues(ctx context.Context, companyID string) ([]models.Queue, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT q.queue_id, q.company_id, q.name, q.prefix, q.current_number, q.created_at,
		       (SELECT COUNT(*) FROM tickets t WHERE t.queue_id = q.queue_id AND t.status = 'WAITING')
		FROM queues q
		WHERE q.company_id = $1
		ORDER BY q.created_at DESC
	`, companyID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var queues []models.Queue
	for rows.Next() {
		var queue models.Queue
		if err := rows.Scan(&queue.QueueID, &queue.CompanyID, &queue.Name, &queue.Prefix, &queue.CurrentNumber, &queue.CreatedAt, &queue.WaitingCount); err != nil {
			return nil, err
		}
		queues = append(queues, queue)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return queues, nil
}

func (s *Store) GetQueueBoard(ctx context.Context, companyID, queueID string) (store.QueueBoard, error) {
	var board store.QueueBoard
	row := s.pool.QueryRow(ctx, `
		SELECT queue_id, company_id, name, prefix, current_number, created_at
		FROM queues
		WHERE queue_id = $1 AND company_id = $2
	`, queueID, companyID)
	if err := row.Scan(&board.Queue.QueueID, &board.Queue.CompanyID, &board.Queue.Name, &board.Queue.Prefix, &board.Queue.CurrentNumber, &board.Queue.CreatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return store.QueueBoard{}, store.ErrQueueNotFound
		}
		return store.QueueBoard{}, err
	}

	waiting, err := s.listTickets(ctx, queueID, models.StatusWaiting, "created_at ASC")
	if err != nil {
		return store.QueueBoard{}, err
	}
	inProgress, err := s.listTickets(ctx, queueID, models.StatusInProgress, "called_at ASC")
	if err != nil {
		return store.QueueBoard{}, err
	}

	board.WaitingTickets = waiting
	board.InProgressTickets = inProgress
	return board, nil
}

func (s *Store) listTickets(ctx context.Context, queueID, status, order string) ([]models.Ticket, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT ticket_id, queue_id, display_number, status, created_at, called_at, finished_at
		FROM tickets
		WHERE queue_id = $1 AND status = $2
		ORDER BY `+order, queueID, status)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var tickets []models.Ticket
	for rows.Next() {
		var ticket models.Ticket
		var calledAtNull sql.NullTime
		var finishedAtNull sql.NullTime
		if err := rows.Scan(&ticket.TicketID, &ticket.QueueID, &ticket.DisplayNumber, &ticket.Status, &ticket.CreatedAt, &calledAtNull, &finishedAtNull); err != nil {
			return nil, err
		}
		ticket.CalledAt = nullTimePtr(calledAtNull)
		ticket.FinishedAt = nullTimePtr(finishedAtNull)
		tickets = append(tickets, ticket)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return tickets, nil
}

// IssueTicket increments the queue counter and inserts the dependent ticket
// in one transaction. The counter UPDATE takes a row lock on the queue, so
// concurrent issuers of the same queue serialize and each observes a distinct
// number.
func (s *Store) IssueTicket(ctx context.Context, input store.IssueTicketInput) (store.IssuedTicket, error) {
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return store.IssuedTicket{}, err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback(ctx)
		}
	}()

	var seq int64
	var queueName, prefix, companyID string
	var row pgx.Row
	if input.CompanyID != "" {
		row = tx.QueryRow(ctx, `
			UPDATE queues
			SET current_number = current_number + 1
			WHERE queue_id = $1 AND company_id = $2
			RETURNING current_number, name, prefix, company_id
		`, input.QueueID, input.CompanyID)
	} else {
		row = tx.QueryRow(ctx, `
			UPDATE queues
			SET current_number = current_number + 1
			WHERE queue_id = $1
			RETURNING current_number, name, prefix, company_id
		`, input.QueueID)
	}
	if err = row.Scan(&seq, &queueName, &prefix, &companyID); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			err = store.ErrQueueNotFound
		} else {
			err = mapPgError(err)
		}
		return store.IssuedTicket{}, err
	}

	var companyName string
	row = tx.QueryRow(ctx, `
		SELECT name FROM companies WHERE company_id = $1
	`, companyID)
	if err = row.Scan(&companyName); err != nil {
		return store.IssuedTicket{}, err
	}

	createdAt := input.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}
	displayNumber := fmt.Sprintf("%s%0*d", prefix, ticketNumberPad, seq)

	var ticket models.Ticket
	row = tx.QueryRow(ctx, `
		INSERT INTO tickets (ticket_id, queue_id, display_number, status, created_at)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING ticket_id, queue_id, display_number, status, created_at
	`, uuid.NewString(), input.QueueID, displayNumber, models.StatusWaiting, createdAt)
	if err = row.Scan(&ticket.TicketID, &ticket.QueueID, &ticket.DisplayNumber, &ticket.Status, &ticket.CreatedAt); err != nil {
		err = mapPgError(err)
		return store.IssuedTicket{}, err
	}

	if err = tx.Commit(ctx); err != nil {
		return store.IssuedTicket{}, mapPgError(err)
	}

	return store.IssuedTicket{
		Ticket:      ticket,
		QueueName:   queueName,
		CompanyName: companyName,
	}, nil
}

// CallNext moves the oldest WAITING ticket of the queue to IN_PROGRESS.
// SKIP LOCKED lets concurrent callers each pick a different ticket instead of
// blocking on the same row. Whether another ticket of the queue is already
// IN_PROGRESS is intentionally not checked; a queue may be served from more
// than one counter.
func (s *Store) CallNext(ctx context.Context, input store.CallNextInput) (models.Ticket, error) {
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return models.Ticket{}, err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback(ctx)
		}
	}()

	var queueID string
	row := tx.QueryRow(ctx, `
		SELECT queue_id FROM queues WHERE queue_id = $1 AND company_id = $2
	`, input.QueueID, input.CompanyID)
	if err = row.Scan(&queueID); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			err = store.ErrQueueNotFound
		}
		return models.Ticket{}, err
	}

	calledAt := input.CalledAt
	if calledAt.IsZero() {
		calledAt = time.Now().UTC()
	}

	var ticket models.Ticket
	var calledAtNull sql.NullTime
	row = tx.QueryRow(ctx, `
		WITH next_ticket AS (
			SELECT ticket_id
			FROM tickets
			WHERE queue_id = $1 AND status = 'WAITING'
			ORDER BY created_at ASC
			FOR UPDATE SKIP LOCKED
			LIMIT 1
		)
		UPDATE tickets
		SET status = 'IN_PROGRESS',
			called_at = $2
		FROM next_ticket
		WHERE tickets.ticket_id = next_ticket.ticket_id
		RETURNING tickets.ticket_id, tickets.queue_id, tickets.display_number, tickets.status, tickets.created_at, tickets.called_at
	`, input.QueueID, calledAt)
	if err = row.Scan(&ticket.TicketID, &ticket.QueueID, &ticket.DisplayNumber, &ticket.Status, &ticket.CreatedAt, &calledAtNull); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			err = store.ErrNoWaitingTicket
		}
		return models.Ticket{}, err
	}
	ticket.CalledAt = nullTimePtr(calledAtNull)

	if err = tx.Commit(ctx); err != nil {
		return models.Ticket{}, err
	}

	return ticket, nil
}

func (s *Store) FinishTicket(ctx context.Context, input store.FinishTicketInput) (models.Ticket, error) {
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return models.Ticket{}, err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback(ctx)
		}
	}()

	finishedAt := input.FinishedAt
	if finishedAt.IsZero() {
		finishedAt = time.Now().UTC()
	}

	var ticket models.Ticket
	var calledAtNull sql.NullTime
	var finishedAtNull sql.NullTime
	row := tx.QueryRow(ctx, `
		UPDATE tickets
		SET status = 'DONE',
			finished_at = $3
		FROM queues q
		WHERE tickets.ticket_id = $1
			AND q.queue_id = tickets.queue_id
			AND q.company_id = $2
			AND tickets.status = 'IN_PROGRESS'
		RETURNING tickets.ticket_id, tickets.queue_id, tickets.display_number, tickets.status, tickets.created_at, tickets.called_at, tickets.finished_at
	`, input.TicketID, input.CompanyID, finishedAt)
	if err = row.Scan(&ticket.TicketID, &ticket.QueueID, &ticket.DisplayNumber, &ticket.Status, &ticket.CreatedAt, &calledAtNull, &finishedAtNull); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			err = s.classifyFinishFailure(ctx, tx, input.TicketID, input.CompanyID)
		}
		return models.Ticket{}, err
	}
	ticket.CalledAt = nullTimePtr(calledAtNull)
	ticket.FinishedAt = nullTimePtr(finishedAtNull)

	if err = tx.Commit(ctx); err != nil {
		return models.Ticket{}, err
	}

	return ticket, nil
}

// classifyFinishFailure distinguishes a missing or foreign ticket from one in
// the wrong state after a guarded finish update matched no rows.
func (s *Store) classifyFinishFailure(ctx context.Context, tx pgx.Tx, ticketID, companyID string) error {
	var status string
	row := tx.QueryRow(ctx, `
		SELECT t.status
		FROM tickets t
		JOIN queues q ON q.queue_id = t.queue_id
		WHERE t.ticket_id = $1 AND q.company_id = $2
	`, ticketID, companyID)
	if err := row.Scan(&status); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return store.ErrTicketNotFound
		}
		return err
	}
	if !store.ValidTransition("finish", status) {
		return store.ErrInvalidState
	}
	// The update matched no rows but the status allows finishing, so another
	// transaction must have changed the ticket underneath us.
	return fmt.Errorf("ticket %s changed concurrently", ticketID)
}

func (s *Store) GetPublicQueue(ctx context.Context, queueID string) (models.Queue, models.Company, error) {
	var queue models.Queue
	var company models.Company
	row := s.pool.QueryRow(ctx, `
		SELECT q.queue_id, q.company_id, q.name, q.prefix, q.current_number, q.created_at,
		       c.company_id, c.name, c.created_at
		FROM queues q
		JOIN companies c ON c.company_id = q.company_id
		WHERE q.queue_id = $1
	`, queueID)
	if err := row.Scan(&queue.QueueID, &queue.CompanyID, &queue.Name, &queue.Prefix, &queue.CurrentNumber, &queue.CreatedAt,
		&company.CompanyID, &company.Name, &company.CreatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.Queue{}, models.Company{}, store.ErrQueueNotFound
		}
		return models.Queue{}, models.Company{}, err
	}
	return queue, company, nil
}

func (s *Store) GetDisplayBoard(ctx context.Context, companyID string, recentLimit int) (store.DisplayBoard, error) {
	if recentLimit <= 0 {
		recentLimit = 5
	}

	var board store.DisplayBoard
	row := s.pool.QueryRow(ctx, `
		SELECT company_id, name, created_at
		FROM companies
		WHERE company_id = $1
	`, companyID)
	if err := row.Scan(&board.Company.CompanyID, &board.Company.Name, &board.Company.CreatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return store.DisplayBoard{}, store.ErrCompanyNotFound
		}
		return store.DisplayBoard{}, err
	}

	current, err := s.listCompanyTickets(ctx, companyID, models.StatusInProgress, "t.called_at ASC", 0)
	if err != nil {
		return store.DisplayBoard{}, err
	}
	recent, err := s.listCompanyTickets(ctx, companyID, models.StatusDone, "t.finished_at DESC", recentLimit)
	if err != nil {
		return store.DisplayBoard{}, err
	}

	board.CurrentTickets = current
	board.RecentTickets = recent
	return board, nil
}

func (s *Store) listCompanyTickets(ctx context.Context, companyID, status, order string, limit int) ([]models.Ticket, error) {
	query := `
		SELECT t.ticket_id, t.queue_id, t.display_number, t.status, t.created_at, t.called_at, t.finished_at,
		       q.name, q.prefix
		FROM tickets t
		JOIN queues q ON q.queue_id = t.queue_id
		WHERE q.company_id = $1 AND t.status = $2
		ORDER BY ` + order
	args := []interface{}{companyID, status}
	if limit > 0 {
		query += " LIMIT $3"
		args = append(args, limit)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var tickets []models.Ticket
	for rows.Next() {
		var ticket models.Ticket
		var calledAtNull sql.NullTime
		var finishedAtNull sql.NullTime
		if err := rows.Scan(&ticket.TicketID, &ticket.QueueID, &ticket.DisplayNumber, &ticket.Status, &ticket.CreatedAt, &calledAtNull, &finishedAtNull, &ticket.QueueName, &ticket.QueuePrefix); err != nil {
			return nil, err
		}
		ticket.CalledAt = nullTimePtr(calledAtNull)
		ticket.FinishedAt = nullTimePtr(finishedAtNull)
		tickets = append(tickets, ticket)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return tickets, nil
}

func nullTimePtr(value sql.NullTime) *time.Time {
	if !value.Valid {
		return nil
	}
	t := value.Time
	return &t
}
