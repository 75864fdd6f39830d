package integration

import (
	"compress/gzip"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/golang-jwt/jwt/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"furniture-store/internal/database"
	"furniture-store/internal/payment"
)

// TestDB represents a test database instance.
type TestDB struct {
	Container *postgres.PostgresContainer
	Pool      *pgxpool.Pool
	ConnStr   string
}

// SetupTestDB creates a PostgreSQL test container with the application schema migrated.
func SetupTestDB(t *testing.T) *TestDB {
	t.Helper()

	ctx := context.Background()

	postgresContainer, err := postgres.Run(ctx,
		"postgres:16-alpine",
		postgres.WithDatabase("testdb"),
		postgres.WithUsername("testuser"),
		postgres.WithPassword("testpass"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(30*time.Second)),
	)
	if err != nil {
		t.Fatalf("failed to start postgres container: %v", err)
	}

	connStr, err := postgresContainer.ConnectionString(ctx, "sslmode=disable")
	if err != nil {
		t.Fatalf("failed to get connection string: %v", err)
	}

	if err := database.Migrate(connStr, zerolog.Nop()); err != nil {
		t.Fatalf("failed to migrate schema: %v", err)
	}

	pool, err := pgxpool.New(ctx, connStr)
	if err != nil {
		t.Fatalf("failed to create connection pool: %v", err)
	}

	if err := pool.Ping(ctx); err != nil {
		t.Fatalf("failed to ping database: %v", err)
	}

	t.Cleanup(func() {
		pool.Close()
		if err := postgresContainer.Terminate(ctx); err != nil {
			t.Logf("failed to terminate container: %v", err)
		}
	})

	return &TestDB{
		Container: postgresContainer,
		Pool:      pool,
		ConnStr:   connStr,
	}
}

// CleanupDB cleans all data from test tables.
func CleanupDB(t *testing.T, pool *pgxpool.Pool) {
	t.Helper()

	ctx := context.Background()

	tables := []string{"order_items", "orders", "unreconciled_payments"}
	for _, table := range tables {
		_, err := pool.Exec(ctx, fmt.Sprintf("DELETE FROM %s", table))
		if err != nil {
			t.Logf("failed to clean table %s: %v", table, err)
		}
	}
}

// SetupRedis starts an in-process Redis for cart persistence.
func SetupRedis(t *testing.T) *redis.Client {
	t.Helper()

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() {
		_ = client.Close()
	})
	return client
}

// WritePriceBook writes a gzipped price book into a temp dir and returns its path.
func WritePriceBook(t *testing.T, lines ...string) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), "pricebook.gz")
	file, err := os.Create(path)
	if err != nil {
		t.Fatalf("failed to create price book: %v", err)
	}
	defer file.Close()

	gz := gzip.NewWriter(file)
	if _, err := gz.Write([]byte(strings.Join(lines, "\n") + "\n")); err != nil {
		t.Fatalf("failed to write price book: %v", err)
	}
	if err := gz.Close(); err != nil {
		t.Fatalf("failed to flush price book: %v", err)
	}
	return path
}

// IssueToken signs a customer token accepted by the API.
func IssueToken(t *testing.T, secret, customerID string) string {
	t.Helper()

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		Subject:   customerID,
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
	})
	signed, err := token.SignedString([]byte(secret))
	if err != nil {
		t.Fatalf("failed to sign token: %v", err)
	}
	return signed
}

// declinedCard is the payment method id the fake gateway refuses.
const declinedCard = "pm_card_declined"

// fakeGateway captures every confirmed intent.
type fakeGateway struct {
	mu      sync.Mutex
	seq     int
	charged map[string]int
}

func newFakeGateway() *fakeGateway {
	return &fakeGateway{charged: make(map[string]int)}
}

func (g *fakeGateway) CreateIntent(_ context.Context, amountMinor int64, currency string, _ map[string]string) (*payment.Intent, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	g.seq++
	id := fmt.Sprintf("pi_test_%d", g.seq)
	g.charged[id] = 0
	return &payment.Intent{
		ID:           id,
		ClientSecret: id + "_secret",
		AmountMinor:  amountMinor,
		Currency:     currency,
	}, nil
}

func (g *fakeGateway) Confirm(_ context.Context, clientSecret string, card payment.CardDetails, _ payment.BillingDetails) (*payment.Confirmation, error) {
	if card.PaymentMethodID == declinedCard {
		return nil, &payment.DeclineError{Code: "card_declined", DeclineCode: "generic_decline", Message: "Your card was declined."}
	}

	id := strings.TrimSuffix(clientSecret, "_secret")
	g.mu.Lock()
	g.charged[id]++
	g.mu.Unlock()

	return &payment.Confirmation{Reference: id, Status: payment.StatusSucceeded}, nil
}

func (g *fakeGateway) captures() int {
	g.mu.Lock()
	defer g.mu.Unlock()

	n := 0
	for _, c := range g.charged {
		n += c
	}
	return n
}
