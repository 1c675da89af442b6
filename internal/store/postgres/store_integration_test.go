package postgres

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"fila/ticket-service/internal/models"
	"fila/ticket-service/internal/store"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

func TestSignupAndAuthenticate(t *testing.T) {
	ctx := context.Background()
	st, _, cleanup := setupTestStore(t, ctx)
	t.Cleanup(cleanup)

	user, err := st.CreateAccount(ctx, store.SignupInput{
		CompanyName: "Acme",
		Email:       "owner@acme.test",
		Password:    "secret",
	})
	if err != nil {
		t.Fatalf("create account: %v", err)
	}
	if user.Company == nil || user.Company.Name != "Acme" {
		t.Fatalf("expected company on signup response, got %+v", user)
	}

	if _, err := st.CreateAccount(ctx, store.SignupInput{
		CompanyName: "Other",
		Email:       "OWNER@acme.test",
		Password:    "secret",
	}); !errors.Is(err, store.ErrDuplicateEmail) {
		t.Fatalf("expected duplicate email error, got %v", err)
	}

	authed, err := st.Authenticate(ctx, "owner@acme.test", "secret")
	if err != nil {
		t.Fatalf("authenticate: %v", err)
	}
	if authed.UserID != user.UserID {
		t.Fatalf("expected user %s, got %s", user.UserID, authed.UserID)
	}

	if _, err := st.Authenticate(ctx, "owner@acme.test", "wrong"); !errors.Is(err, store.ErrInvalidCredentials) {
		t.Fatalf("expected invalid credentials, got %v", err)
	}
}

func TestCreateQueueDuplicatePrefixScopedByCompany(t *testing.T) {
	ctx := context.Background()
	st, _, cleanup := setupTestStore(t, ctx)
	t.Cleanup(cleanup)

	companyA := signupCompany(t, ctx, st, "Company A")
	companyB := signupCompany(t, ctx, st, "Company B")

	queue, err := st.CreateQueue(ctx, store.CreateQueueInput{CompanyID: companyA, Name: "Caixa", Prefix: "a"})
	if err != nil {
		t.Fatalf("create queue: %v", err)
	}
	if queue.Prefix != "A" {
		t.Fatalf("expected uppercased prefix, got %q", queue.Prefix)
	}

	if _, err := st.CreateQueue(ctx, store.CreateQueueInput{CompanyID: companyA, Name: "Balcao", Prefix: "A"}); !errors.Is(err, store.ErrDuplicatePrefix) {
		t.Fatalf("expected duplicate prefix error, got %v", err)
	}

	if _, err := st.CreateQueue(ctx, store.CreateQueueInput{CompanyID: companyB, Name: "Caixa", Prefix: "A"}); err != nil {
		t.Fatalf("same prefix should be allowed in another company: %v", err)
	}
}

func TestIssueTicketConcurrentNumbering(t *testing.T) {
	ctx := context.Background()
	st, _, cleanup := setupTestStore(t, ctx)
	t.Cleanup(cleanup)

	companyID := signupCompany(t, ctx, st, "Acme")
	queue, err := st.CreateQueue(ctx, store.CreateQueueInput{CompanyID: companyID, Name: "Caixa", Prefix: "A"})
	if err != nil {
		t.Fatalf("create queue: %v", err)
	}

	const issuers = 10
	var wg sync.WaitGroup
	results := make(chan string, issuers)
	for i := 0; i < issuers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			issued, err := st.IssueTicket(ctx, store.IssueTicketInput{QueueID: queue.QueueID})
			if err != nil {
				t.Errorf("issue ticket: %v", err)
				return
			}
			results <- issued.Ticket.DisplayNumber
		}()
	}
	wg.Wait()
	close(results)

	seen := map[string]bool{}
	for number := range results {
		if seen[number] {
			t.Fatalf("duplicate display number %s", number)
		}
		seen[number] = true
	}
	for i := 1; i <= issuers; i++ {
		expected := fmt.Sprintf("A%03d", i)
		if !seen[expected] {
			t.Fatalf("missing display number %s, got %v", expected, seen)
		}
	}
}

func TestDisplayNumberPaddingGrows(t *testing.T) {
	ctx := context.Background()
	st, pool, cleanup := setupTestStore(t, ctx)
	t.Cleanup(cleanup)

	companyID := signupCompany(t, ctx, st, "Acme")
	queue, err := st.CreateQueue(ctx, store.CreateQueueInput{CompanyID: companyID, Name: "Caixa", Prefix: "A"})
	if err != nil {
		t.Fatalf("create queue: %v", err)
	}

	if _, err := pool.Exec(ctx, `UPDATE queues SET current_number = 999 WHERE queue_id = $1`, queue.QueueID); err != nil {
		t.Fatalf("bump counter: %v", err)
	}

	issued, err := st.IssueTicket(ctx, store.IssueTicketInput{QueueID: queue.QueueID})
	if err != nil {
		t.Fatalf("issue ticket: %v", err)
	}
	if issued.Ticket.DisplayNumber != "A1000" {
		t.Fatalf("expected A1000, got %s", issued.Ticket.DisplayNumber)
	}
}

func TestCallNextAdvancesInFIFOOrder(t *testing.T) {
	ctx := context.Background()
	st, _, cleanup := setupTestStore(t, ctx)
	t.Cleanup(cleanup)

	companyID := signupCompany(t, ctx, st, "Acme")
	queue, err := st.CreateQueue(ctx, store.CreateQueueInput{CompanyID: companyID, Name: "Caixa", Prefix: "A"})
	if err != nil {
		t.Fatalf("create queue: %v", err)
	}

	base := time.Now().UTC().Add(-time.Hour)
	var issued []store.IssuedTicket
	for i := 0; i < 3; i++ {
		ticket, err := st.IssueTicket(ctx, store.IssueTicketInput{
			QueueID:   queue.QueueID,
			CreatedAt: base.Add(time.Duration(i) * time.Minute),
		})
		if err != nil {
			t.Fatalf("issue ticket %d: %v", i, err)
		}
		issued = append(issued, ticket)
	}

	for i := 0; i < 3; i++ {
		called, err := st.CallNext(ctx, store.CallNextInput{QueueID: queue.QueueID, CompanyID: companyID})
		if err != nil {
			t.Fatalf("call next %d: %v", i, err)
		}
		if called.TicketID != issued[i].Ticket.TicketID {
			t.Fatalf("expected ticket %s at position %d, got %s", issued[i].Ticket.TicketID, i, called.TicketID)
		}
		if called.Status != models.StatusInProgress || called.CalledAt == nil {
			t.Fatalf("expected IN_PROGRESS with called_at, got %+v", called)
		}
	}

	if _, err := st.CallNext(ctx, store.CallNextInput{QueueID: queue.QueueID, CompanyID: companyID}); !errors.Is(err, store.ErrNoWaitingTicket) {
		t.Fatalf("expected empty queue error, got %v", err)
	}
}

func TestFinishTicketLifecycle(t *testing.T) {
	ctx := context.Background()
	st, _, cleanup := setupTestStore(t, ctx)
	t.Cleanup(cleanup)

	companyID := signupCompany(t, ctx, st, "Acme")
	queue, err := st.CreateQueue(ctx, store.CreateQueueInput{CompanyID: companyID, Name: "Caixa", Prefix: "A"})
	if err != nil {
		t.Fatalf("create queue: %v", err)
	}

	issued, err := st.IssueTicket(ctx, store.IssueTicketInput{QueueID: queue.QueueID})
	if err != nil {
		t.Fatalf("issue ticket: %v", err)
	}

	// WAITING tickets cannot be finished directly.
	if _, err := st.FinishTicket(ctx, store.FinishTicketInput{TicketID: issued.Ticket.TicketID, CompanyID: companyID}); !errors.Is(err, store.ErrInvalidState) {
		t.Fatalf("expected invalid state, got %v", err)
	}

	called, err := st.CallNext(ctx, store.CallNextInput{QueueID: queue.QueueID, CompanyID: companyID})
	if err != nil {
		t.Fatalf("call next: %v", err)
	}

	finished, err := st.FinishTicket(ctx, store.FinishTicketInput{TicketID: called.TicketID, CompanyID: companyID})
	if err != nil {
		t.Fatalf("finish ticket: %v", err)
	}
	if finished.Status != models.StatusDone || finished.FinishedAt == nil {
		t.Fatalf("expected DONE with finished_at, got %+v", finished)
	}

	if _, err := st.FinishTicket(ctx, store.FinishTicketInput{TicketID: called.TicketID, CompanyID: companyID}); !errors.Is(err, store.ErrInvalidState) {
		t.Fatalf("expected invalid state on double finish, got %v", err)
	}

	if _, err := st.FinishTicket(ctx, store.FinishTicketInput{TicketID: uuid.NewString(), CompanyID: companyID}); !errors.Is(err, store.ErrTicketNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestFinishTicketOtherCompanyLooksMissing(t *testing.T) {
	ctx := context.Background()
	st, _, cleanup := setupTestStore(t, ctx)
	t.Cleanup(cleanup)

	companyA := signupCompany(t, ctx, st, "Company A")
	companyB := signupCompany(t, ctx, st, "Company B")
	queue, err := st.CreateQueue(ctx, store.CreateQueueInput{CompanyID: companyA, Name: "Caixa", Prefix: "A"})
	if err != nil {
		t.Fatalf("create queue: %v", err)
	}

	if _, err := st.IssueTicket(ctx, store.IssueTicketInput{QueueID: queue.QueueID}); err != nil {
		t.Fatalf("issue ticket: %v", err)
	}
	called, err := st.CallNext(ctx, store.CallNextInput{QueueID: queue.QueueID, CompanyID: companyA})
	if err != nil {
		t.Fatalf("call next: %v", err)
	}

	if _, err := st.FinishTicket(ctx, store.FinishTicketInput{TicketID: called.TicketID, CompanyID: companyB}); !errors.Is(err, store.ErrTicketNotFound) {
		t.Fatalf("expected not found across companies, got %v", err)
	}
}

func TestDisplayBoardOrdersAndLimits(t *testing.T) {
	ctx := context.Background()
	st, _, cleanup := setupTestStore(t, ctx)
	t.Cleanup(cleanup)

	companyID := signupCompany(t, ctx, st, "Acme")
	queue, err := st.CreateQueue(ctx, store.CreateQueueInput{CompanyID: companyID, Name: "Caixa", Prefix: "A"})
	if err != nil {
		t.Fatalf("create queue: %v", err)
	}

	for i := 0; i < 7; i++ {
		if _, err := st.IssueTicket(ctx, store.IssueTicketInput{QueueID: queue.QueueID}); err != nil {
			t.Fatalf("issue ticket %d: %v", i, err)
		}
	}
	for i := 0; i < 6; i++ {
		called, err := st.CallNext(ctx, store.CallNextInput{QueueID: queue.QueueID, CompanyID: companyID})
		if err != nil {
			t.Fatalf("call next %d: %v", i, err)
		}
		if _, err := st.FinishTicket(ctx, store.FinishTicketInput{TicketID: called.TicketID, CompanyID: companyID, FinishedAt: time.Now().UTC().Add(time.Duration(i) * time.Second)}); err != nil {
			t.Fatalf("finish ticket %d: %v", i, err)
		}
	}
	if _, err := st.CallNext(ctx, store.CallNextInput{QueueID: queue.QueueID, CompanyID: companyID}); err != nil {
		t.Fatalf("call next last: %v", err)
	}

	board, err := st.GetDisplayBoard(ctx, companyID, 5)
	if err != nil {
		t.Fatalf("display board: %v", err)
	}
	if len(board.CurrentTickets) != 1 {
		t.Fatalf("expected 1 current ticket, got %d", len(board.CurrentTickets))
	}
	if board.CurrentTickets[0].QueueName != "Caixa" || board.CurrentTickets[0].QueuePrefix != "A" {
		t.Fatalf("expected queue info on board ticket, got %+v", board.CurrentTickets[0])
	}
	if len(board.RecentTickets) != 5 {
		t.Fatalf("expected 5 recent tickets, got %d", len(board.RecentTickets))
	}
	if board.RecentTickets[0].DisplayNumber != "A006" {
		t.Fatalf("expected most recently finished first, got %s", board.RecentTickets[0].DisplayNumber)
	}
}

func signupCompany(t *testing.T, ctx context.Context, st *Store, name string) string {
	t.Helper()
	user, err := st.CreateAccount(ctx, store.SignupInput{
		CompanyName: name,
		Email:       strings.ToLower(strings.ReplaceAll(name, " ", "")) + "-" + uuid.NewString() + "@test.local",
		Password:    "secret",
	})
	if err != nil {
		t.Fatalf("signup %s: %v", name, err)
	}
	return user.CompanyID
}

func setupTestStore(t *testing.T, ctx context.Context) (*Store, *pgxpool.Pool, func()) {
	t.Helper()
	dsn := os.Getenv("TEST_DB_DSN")
	if dsn == "" {
		dsn = os.Getenv("DB_DSN")
	}
	if dsn == "" {
		t.Skip("TEST_DB_DSN or DB_DSN is required for integration tests")
	}

	schema := "test_" + strings.ReplaceAll(uuid.NewString(), "-", "")
	if err := createSchema(ctx, dsn, schema); err != nil {
		t.Fatalf("create schema: %v", err)
	}

	pool, err := newPoolWithSchema(ctx, dsn, schema)
	if err != nil {
		t.Fatalf("open pool: %v", err)
	}

	if err := applyMigrations(ctx, pool); err != nil {
		pool.Close()
		t.Fatalf("apply migrations: %v", err)
	}

	st := NewStore(pool)
	cleanup := func() {
		pool.Close()
		_ = dropSchema(context.Background(), dsn, schema)
	}
	return st, pool, cleanup
}

func createSchema(ctx context.Context, dsn, schema string) error {
	conn, err := pgx.Connect(ctx, dsn)
	if err != nil {
		return err
	}
	defer conn.Close(ctx)
	_, err = conn.Exec(ctx, "CREATE SCHEMA "+schema)
	return err
}

func dropSchema(ctx context.Context, dsn, schema string) error {
	conn, err := pgx.Connect(ctx, dsn)
	if err != nil {
		return err
	}
	defer conn.Close(ctx)
	_, err = conn.Exec(ctx, "DROP SCHEMA "+schema+" CASCADE")
	return err
}

func newPoolWithSchema(ctx context.Context, dsn, schema string) (*pgxpool.Pool, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, err
	}
	cfg.ConnConfig.RuntimeParams["search_path"] = schema
	return pgxpool.NewWithConfig(ctx, cfg)
}

func applyMigrations(ctx context.Context, pool *pgxpool.Pool) error {
	dir := filepath.Join("..", "..", "..", "migrations")
	entries, err := os.ReadDir(dir)
	if err != nil {
		return err
	}
	var files []string
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".sql") {
			continue
		}
		files = append(files, entry.Name())
	}
	sort.Strings(files)
	for _, name := range files {
		content, err := os.ReadFile(filepath.Join(dir, name))
		if err != nil {
			return err
		}
		if strings.TrimSpace(string(content)) == "" {
			continue
		}
		if _, err := pool.Exec(ctx, string(content)); err != nil {
			return err
		}
	}
	return nil
}
