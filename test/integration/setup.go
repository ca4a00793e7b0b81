package integration

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
)

// TestDB represents a test database instance.
type TestDB struct {
	Container *postgres.PostgresContainer
	Pool      *pgxpool.Pool
	ConnStr   string
}

// SetupTestDB creates a PostgreSQL test container and connection pool.
func SetupTestDB(t *testing.T) *TestDB {
	t.Helper()

	ctx := context.Background()

	// Create PostgreSQL container
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

	// Get connection string
	connStr, err := postgresContainer.ConnectionString(ctx, "sslmode=disable")
	if err != nil {
		t.Fatalf("failed to get connection string: %v", err)
	}

	// Create connection pool
	poolConfig, err := pgxpool.ParseConfig(connStr)
	if err != nil {
		t.Fatalf("failed to parse connection string: %v", err)
	}
	poolConfig.MaxConns = 10

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		t.Fatalf("failed to create connection pool: %v", err)
	}

	// Verify connection
	if err := pool.Ping(ctx); err != nil {
		t.Fatalf("failed to ping database: %v", err)
	}

	// Create schema
	createSchema(t, pool)

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

// createSchema creates the database schema for testing.
func createSchema(t *testing.T, pool *pgxpool.Pool) {
	t.Helper()

	ctx := context.Background()

	schema := `
		CREATE TABLE IF NOT EXISTS products (
			id VARCHAR(50) PRIMARY KEY,
			name VARCHAR(255) NOT NULL,
			base_price DOUBLE PRECISION NOT NULL,
			category VARCHAR(100) NOT NULL,
			total_stock INTEGER NOT NULL DEFAULT 0,
			low_stock_threshold INTEGER,
			created_at TIMESTAMPTZ NOT NULL DEFAULT now()
		);

		CREATE TABLE IF NOT EXISTS units (
			code VARCHAR(50) PRIMARY KEY,
			product_id VARCHAR(50) NOT NULL REFERENCES products(id),
			price_override DOUBLE PRECISION,
			stock INTEGER NOT NULL CHECK (stock >= 0),
			active BOOLEAN NOT NULL DEFAULT true,
			attributes JSONB NOT NULL DEFAULT '{}',
			low_stock_threshold INTEGER,
			created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
			updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
		);

		CREATE TABLE IF NOT EXISTS tiers (
			name VARCHAR(50) PRIMARY KEY,
			discount_percent DOUBLE PRECISION NOT NULL,
			active BOOLEAN NOT NULL DEFAULT true,
			disclose BOOLEAN NOT NULL DEFAULT true
		);

		CREATE TABLE IF NOT EXISTS customers (
			id VARCHAR(50) PRIMARY KEY,
			tier_name VARCHAR(50) REFERENCES tiers(name)
		);

		CREATE TABLE IF NOT EXISTS carts (
			id UUID PRIMARY KEY,
			user_id VARCHAR(50),
			session_id VARCHAR(100),
			status VARCHAR(20) NOT NULL,
			promo_code VARCHAR(10),
			subtotal DOUBLE PRECISION NOT NULL DEFAULT 0,
			shipping DOUBLE PRECISION NOT NULL DEFAULT 0,
			tax DOUBLE PRECISION NOT NULL DEFAULT 0,
			discount DOUBLE PRECISION NOT NULL DEFAULT 0,
			total DOUBLE PRECISION NOT NULL DEFAULT 0,
			expires_at TIMESTAMPTZ NOT NULL,
			created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
			updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
		);

		CREATE TABLE IF NOT EXISTS cart_items (
			id UUID PRIMARY KEY,
			cart_id UUID NOT NULL REFERENCES carts(id) ON DELETE CASCADE,
			product_id VARCHAR(50) NOT NULL,
			unit_code VARCHAR(50) NOT NULL,
			quantity INTEGER NOT NULL CHECK (quantity > 0),
			unit_price DOUBLE PRECISION NOT NULL,
			original_price DOUBLE PRECISION NOT NULL,
			discount_percent DOUBLE PRECISION NOT NULL DEFAULT 0,
			tier_name VARCHAR(50),
			subtotal DOUBLE PRECISION NOT NULL,
			available_stock INTEGER NOT NULL DEFAULT 0,
			position INTEGER NOT NULL DEFAULT 0
		);

		CREATE INDEX IF NOT EXISTS idx_cart_items_cart_id ON cart_items(cart_id);
		CREATE INDEX IF NOT EXISTS idx_carts_user_status ON carts(user_id, status);
		CREATE INDEX IF NOT EXISTS idx_carts_session_status ON carts(session_id, status);

		CREATE TABLE IF NOT EXISTS orders (
			id UUID PRIMARY KEY,
			user_id VARCHAR(50),
			status VARCHAR(20) NOT NULL,
			payment_ref VARCHAR(100),
			subtotal DOUBLE PRECISION NOT NULL,
			shipping DOUBLE PRECISION NOT NULL,
			tax DOUBLE PRECISION NOT NULL,
			discount DOUBLE PRECISION NOT NULL,
			total DOUBLE PRECISION NOT NULL,
			version INTEGER NOT NULL DEFAULT 1,
			created_at TIMESTAMPTZ NOT NULL,
			updated_at TIMESTAMPTZ NOT NULL
		);

		CREATE TABLE IF NOT EXISTS order_items (
			id UUID PRIMARY KEY,
			order_id UUID NOT NULL REFERENCES orders(id) ON DELETE CASCADE,
			product_id VARCHAR(50) NOT NULL,
			product_name VARCHAR(255) NOT NULL,
			unit_code VARCHAR(50) NOT NULL,
			unit_price DOUBLE PRECISION NOT NULL,
			quantity INTEGER NOT NULL CHECK (quantity > 0),
			subtotal DOUBLE PRECISION NOT NULL
		);

		CREATE INDEX IF NOT EXISTS idx_order_items_order_id ON order_items(order_id);

		CREATE TABLE IF NOT EXISTS webhook_events (
			id BIGSERIAL PRIMARY KEY,
			provider VARCHAR(50) NOT NULL,
			event_id VARCHAR(100) NOT NULL,
			state VARCHAR(20) NOT NULL,
			payload JSONB NOT NULL,
			received_at TIMESTAMPTZ NOT NULL DEFAULT now(),
			processed_at TIMESTAMPTZ,
			UNIQUE (provider, event_id)
		);

		CREATE TABLE IF NOT EXISTS jobs (
			id UUID PRIMARY KEY,
			queue VARCHAR(50) NOT NULL,
			job_type VARCHAR(50) NOT NULL,
			payload BYTEA NOT NULL,
			attempts INTEGER NOT NULL DEFAULT 0,
			max_attempts INTEGER NOT NULL,
			run_at TIMESTAMPTZ NOT NULL,
			locked_at TIMESTAMPTZ,
			completed_at TIMESTAMPTZ,
			last_error TEXT,
			created_at TIMESTAMPTZ NOT NULL
		);

		CREATE INDEX IF NOT EXISTS idx_jobs_claim ON jobs(queue, run_at) WHERE completed_at IS NULL;
	`

	_, err := pool.Exec(ctx, schema)
	if err != nil {
		t.Fatalf("failed to create schema: %v", err)
	}
}

// SeedCatalog inserts test tiers, customers, products and units.
func SeedCatalog(t *testing.T, pool *pgxpool.Pool) {
	t.Helper()

	ctx := context.Background()

	tiers := []struct {
		name            string
		discountPercent float64
		disclose        bool
	}{
		{"gold", 20.0, true},
		{"partner", 15.0, false},
	}
	for _, tier := range tiers {
		_, err := pool.Exec(ctx,
			"INSERT INTO tiers (name, discount_percent, active, disclose) VALUES ($1, $2, true, $3)",
			tier.name, tier.discountPercent, tier.disclose,
		)
		if err != nil {
			t.Fatalf("failed to seed tier %s: %v", tier.name, err)
		}
	}

	customers := []struct {
		id       string
		tierName string
	}{
		{"user-gold", "gold"},
		{"user-partner", "partner"},
	}
	for _, c := range customers {
		_, err := pool.Exec(ctx,
			"INSERT INTO customers (id, tier_name) VALUES ($1, $2)",
			c.id, c.tierName,
		)
		if err != nil {
			t.Fatalf("failed to seed customer %s: %v", c.id, err)
		}
	}

	products := []struct {
		id        string
		name      string
		basePrice float64
		category  string
		threshold *int
	}{
		{"P001", "Crew Tee", 25.00, "Apparel", nil},
		{"P002", "Camp Mug", 10.00, "Kitchen", intPtr(2)},
		{"P003", "Field Notebook", 8.50, "Stationery", nil},
	}
	for _, p := range products {
		_, err := pool.Exec(ctx,
			"INSERT INTO products (id, name, base_price, category, low_stock_threshold) VALUES ($1, $2, $3, $4, $5)",
			p.id, p.name, p.basePrice, p.category, p.threshold,
		)
		if err != nil {
			t.Fatalf("failed to seed product %s: %v", p.id, err)
		}
	}

	units := []struct {
		code          string
		productID     string
		priceOverride *float64
		stock         int
		active        bool
		threshold     *int
	}{
		{"U-TEE-M", "P001", nil, 5, true, nil},
		{"U-TEE-L", "P001", nil, 10, true, nil},
		{"U-MUG-STD", "P002", nil, 3, true, intPtr(1)},
		{"U-MUG-LRG", "P002", nil, 0, true, nil},
		{"U-NOTE-A5", "P003", floatPtr(7.95), 20, true, nil},
	}
	for _, u := range units {
		_, err := pool.Exec(ctx,
			"INSERT INTO units (code, product_id, price_override, stock, active, low_stock_threshold) VALUES ($1, $2, $3, $4, $5, $6)",
			u.code, u.productID, u.priceOverride, u.stock, u.active, u.threshold,
		)
		if err != nil {
			t.Fatalf("failed to seed unit %s: %v", u.code, err)
		}
	}
}

// UnitStock reads a unit's current stock directly.
func UnitStock(t *testing.T, pool *pgxpool.Pool, unitCode string) int {
	t.Helper()

	var stock int
	err := pool.QueryRow(context.Background(), "SELECT stock FROM units WHERE code = $1", unitCode).Scan(&stock)
	if err != nil {
		t.Fatalf("failed to read stock for %s: %v", unitCode, err)
	}
	return stock
}

// CleanupDB cleans all data from test tables.
func CleanupDB(t *testing.T, pool *pgxpool.Pool) {
	t.Helper()

	ctx := context.Background()

	tables := []string{
		"jobs", "webhook_events", "order_items", "orders",
		"cart_items", "carts", "customers", "tiers", "units", "products",
	}
	for _, table := range tables {
		_, err := pool.Exec(ctx, fmt.Sprintf("DELETE FROM %s", table))
		if err != nil {
			t.Logf("failed to clean table %s: %v", table, err)
		}
	}
}

func intPtr(v int) *int { return &v }

func floatPtr(v float64) *float64 { return &v }
