package repositories

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// newTestDB opens an in-memory sqlite database and lays down the schema by
// hand: the production schema targets postgres-specific column types
// (uuid, jsonb) that sqlite's driver doesn't understand, so tests use a
// parallel, simplified DDL instead of AutoMigrate.
func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	dsn := fmt.Sprintf("file:%s_%d?mode=memory&cache=shared", t.Name(), time.Now().UnixNano())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)

	createOrdersTable(t, db)
	createTransactionsTable(t, db)
	createLicensesTable(t, db)
	createWaitlistEntriesTable(t, db)
	createWebhookEventsTable(t, db)
	createProductsTable(t, db)

	return db
}

func mustExec(t *testing.T, db *gorm.DB, sql string) {
	t.Helper()
	require.NoError(t, db.Exec(sql).Error)
}

func createOrdersTable(t *testing.T, db *gorm.DB) {
	mustExec(t, db, `CREATE TABLE orders (
		id TEXT PRIMARY KEY,
		customer_id TEXT NOT NULL,
		product_ref TEXT NOT NULL,
		qty INTEGER NOT NULL,
		subtotal_cents INTEGER NOT NULL,
		discount_cents INTEGER NOT NULL,
		tax_cents INTEGER NOT NULL,
		grand_total INTEGER NOT NULL,
		currency TEXT NOT NULL,
		status TEXT NOT NULL,
		shipping_info TEXT,
		meta TEXT,
		created_at DATETIME,
		updated_at DATETIME,
		deleted_at DATETIME
	)`)
	mustExec(t, db, `CREATE INDEX idx_orders_deleted_at ON orders(deleted_at)`)
}

func createTransactionsTable(t *testing.T, db *gorm.DB) {
	mustExec(t, db, `CREATE TABLE transactions (
		id TEXT PRIMARY KEY,
		order_id TEXT NOT NULL,
		gateway TEXT NOT NULL,
		gateway_ref TEXT,
		amount INTEGER NOT NULL,
		currency TEXT NOT NULL,
		status TEXT NOT NULL,
		payment_method TEXT,
		invoice_status TEXT,
		meta TEXT,
		created_at DATETIME,
		updated_at DATETIME,
		deleted_at DATETIME
	)`)
	mustExec(t, db, `CREATE INDEX idx_transactions_order_id ON transactions(order_id)`)
	mustExec(t, db, `CREATE INDEX idx_transactions_gateway_ref ON transactions(gateway, gateway_ref)`)
	mustExec(t, db, `CREATE INDEX idx_transactions_deleted_at ON transactions(deleted_at)`)
}

func createLicensesTable(t *testing.T, db *gorm.DB) {
	mustExec(t, db, `CREATE TABLE licenses (
		id TEXT PRIMARY KEY,
		product_ref TEXT NOT NULL,
		license_key TEXT NOT NULL UNIQUE,
		status TEXT NOT NULL,
		order_id TEXT,
		reserved_at DATETIME,
		sold_at DATETIME,
		instructions TEXT,
		created_at DATETIME,
		updated_at DATETIME,
		deleted_at DATETIME
	)`)
	mustExec(t, db, `CREATE INDEX idx_licenses_product_ref ON licenses(product_ref)`)
	mustExec(t, db, `CREATE INDEX idx_licenses_status ON licenses(status)`)
	mustExec(t, db, `CREATE INDEX idx_licenses_order_id ON licenses(order_id)`)
	mustExec(t, db, `CREATE INDEX idx_licenses_deleted_at ON licenses(deleted_at)`)
}

func createWaitlistEntriesTable(t *testing.T, db *gorm.DB) {
	mustExec(t, db, `CREATE TABLE waitlist_entries (
		id TEXT PRIMARY KEY,
		order_id TEXT NOT NULL UNIQUE,
		customer_id TEXT NOT NULL,
		product_ref TEXT NOT NULL,
		qty INTEGER NOT NULL,
		status TEXT NOT NULL,
		priority DATETIME NOT NULL,
		license_id TEXT,
		retry_count INTEGER NOT NULL DEFAULT 0,
		error_message TEXT,
		created_at DATETIME,
		updated_at DATETIME,
		deleted_at DATETIME
	)`)
	mustExec(t, db, `CREATE INDEX idx_waitlist_product_ref ON waitlist_entries(product_ref)`)
	mustExec(t, db, `CREATE INDEX idx_waitlist_status ON waitlist_entries(status)`)
	mustExec(t, db, `CREATE INDEX idx_waitlist_priority ON waitlist_entries(priority)`)
	mustExec(t, db, `CREATE INDEX idx_waitlist_deleted_at ON waitlist_entries(deleted_at)`)
}

func createWebhookEventsTable(t *testing.T, db *gorm.DB) {
	mustExec(t, db, `CREATE TABLE webhook_events (
		id TEXT PRIMARY KEY,
		provider TEXT NOT NULL,
		external_ref TEXT NOT NULL,
		event_id TEXT,
		event_type TEXT,
		event_status TEXT,
		amount_cents INTEGER,
		currency TEXT,
		payload TEXT,
		raw_headers TEXT,
		raw_body BLOB,
		processed_at DATETIME,
		status TEXT NOT NULL,
		error_message TEXT,
		event_index INTEGER,
		created_at DATETIME,
		updated_at DATETIME,
		deleted_at DATETIME
	)`)
	mustExec(t, db, `CREATE UNIQUE INDEX idx_webhook_idempotency ON webhook_events(provider, external_ref)`)
	mustExec(t, db, `CREATE INDEX idx_webhook_events_status ON webhook_events(status)`)
	mustExec(t, db, `CREATE INDEX idx_webhook_events_deleted_at ON webhook_events(deleted_at)`)
}

func createProductsTable(t *testing.T, db *gorm.DB) {
	mustExec(t, db, `CREATE TABLE products (
		id TEXT PRIMARY KEY,
		product_ref TEXT NOT NULL UNIQUE,
		name TEXT NOT NULL,
		price_cents INTEGER NOT NULL,
		currency TEXT NOT NULL,
		license_type BOOLEAN NOT NULL,
		created_at DATETIME,
		updated_at DATETIME,
		deleted_at DATETIME
	)`)
	mustExec(t, db, `CREATE INDEX idx_products_deleted_at ON products(deleted_at)`)
}
