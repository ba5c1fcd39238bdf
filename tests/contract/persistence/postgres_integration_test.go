package persistence_test

import (
	"context"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/ychx/walrus/internal/archive/migrations"
	archivepg "github.com/ychx/walrus/internal/archive/postgres"
	"github.com/ychx/walrus/internal/schema"
)

var (
	testPool    *pgxpool.Pool
	pgContainer testcontainers.Container
	setupErr    error
)

func TestMain(m *testing.M) {
	ctx := context.Background()
	req := testcontainers.ContainerRequest{
		Image:        "postgres:16-alpine",
		Env:          map[string]string{"POSTGRES_PASSWORD": "secret", "POSTGRES_USER": "postgres", "POSTGRES_DB": "walrus"},
		ExposedPorts: []string{"5432/tcp"},
		WaitingFor:   wait.ForListeningPort("5432/tcp").WithStartupTimeout(60 * time.Second),
	}
	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to start postgres container: %v\n", err)
		os.Exit(1)
	}
	pgContainer = container

	setupErr = initialiseDatabase(ctx)
	exitCode := 0
	if setupErr != nil {
		fmt.Fprintf(os.Stderr, "postgres contract tests skipped: %v\n", setupErr)
	} else {
		exitCode = m.Run()
	}

	if testPool != nil {
		testPool.Close()
	}
	if pgContainer != nil {
		_ = pgContainer.Terminate(ctx)
	}
	os.Exit(exitCode)
}

func initialiseDatabase(ctx context.Context) error {
	host, err := pgContainer.Host(ctx)
	if err != nil {
		return fmt.Errorf("container host: %w", err)
	}
	port, err := pgContainer.MappedPort(ctx, "5432/tcp")
	if err != nil {
		return fmt.Errorf("container port: %w", err)
	}
	dsn := fmt.Sprintf("postgres://postgres:secret@%s:%s/walrus?sslmode=disable", host, port.Port())

	if err := migrations.Apply(ctx, dsn); err != nil {
		return fmt.Errorf("apply migrations: %w", err)
	}
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return fmt.Errorf("pgx pool: %w", err)
	}
	testPool = pool
	return nil
}

func TestArchiveStoreTrades(t *testing.T) {
	if setupErr != nil {
		t.Skipf("postgres contract setup unavailable: %v", setupErr)
	}
	ctx := context.Background()
	store := archivepg.NewWithPool(testPool)

	trade := schema.TradeRecord{
		Market:    "LTC/BTC",
		TradeID:   "trade-1",
		Price:     "251000",
		Amount:    "40000000",
		Timestamp: time.Now().Add(-time.Minute).Unix(),
		Side:      schema.SideBuy,
		Own:       true,
	}
	if err := store.RecordTrade(ctx, trade.Market, trade); err != nil {
		t.Fatalf("RecordTrade: %v", err)
	}
	// Replay of the same trade id must be a no-op.
	if err := store.RecordTrade(ctx, trade.Market, trade); err != nil {
		t.Fatalf("RecordTrade replay: %v", err)
	}

	got, err := store.TradesSince(ctx, "LTC/BTC", time.Now().Add(-time.Hour), 10)
	if err != nil {
		t.Fatalf("TradesSince: %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("trades = %d, want 1", len(got))
	}
	if got[0].TradeID != "trade-1" || got[0].Price != "251000" || !got[0].Own {
		t.Errorf("trade = %+v", got[0])
	}
}

func TestArchiveStoreWithdrawals(t *testing.T) {
	if setupErr != nil {
		t.Skipf("postgres contract setup unavailable: %v", setupErr)
	}
	ctx := context.Background()
	store := archivepg.NewWithPool(testPool)

	rec := schema.WithdrawalRecord{
		Coin:        "BTC",
		ID:          "w-contract-1",
		Amount:      "70000",
		Fee:         "200",
		Destination: "1A1zP1eP5QGefi2DMPTfTL5SLmv7DivfNa",
		Timestamp:   time.Now().Unix(),
		Status:      schema.WithdrawalPending,
	}
	if err := store.RecordWithdrawal(ctx, rec); err != nil {
		t.Fatalf("RecordWithdrawal: %v", err)
	}

	// The terminal update for the same id carries the txid and final status.
	rec.Status = schema.WithdrawalCompleted
	rec.Txid = "f4184fc596403b9d638783cf57adfe4c75c605f6356fbc91338530e9831e9e16"
	if err := store.RecordWithdrawal(ctx, rec); err != nil {
		t.Fatalf("RecordWithdrawal update: %v", err)
	}

	got, found, err := store.Withdrawal(ctx, "w-contract-1")
	if err != nil {
		t.Fatalf("Withdrawal: %v", err)
	}
	if !found {
		t.Fatal("withdrawal not found")
	}
	if got.Status != schema.WithdrawalCompleted || got.Txid == "" {
		t.Errorf("withdrawal = %+v", got)
	}

	if _, found, err := store.Withdrawal(ctx, "missing"); err != nil || found {
		t.Errorf("missing lookup: found=%v err=%v", found, err)
	}
}
