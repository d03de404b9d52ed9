/*
Package sqlite provides the SQLite-backed implementation of supply.Store.

PURPOSE:
  Persists batches, trace events and orders so they survive process
  restarts. The inventory ledger is deliberately NOT a table here: it
  is rebuilt from the orders table at startup, so a stale cached
  quantity can never become the source of truth.

APPEND-ONLY ENFORCEMENT:
  - trace_events has no UPDATE or DELETE path
  - orders rows are inserted once; only the status/decision columns
    ever change, and rows are never deleted
  - batches.quantity_total is written once at insert

KEY TABLES:
  batches:       One row per harvested lot (quantity immutable)
  trace_events:  Custody history, PRIMARY KEY (batch_id, seq)
  orders:        The financial/audit record the ledger rebuilds from

WAL MODE:
  SQLite is opened with WAL for better concurrency: readers don't
  block, single writer at a time, better crash recovery.

USAGE:
  store, err := sqlite.New("./data/farmchain.db")
  if err != nil {
      log.Fatal(err)
  }
  defer store.Close()

SEE ALSO:
  - supply/store.go: Interface definitions
  - supply/store/memory.go: In-memory implementation for testing
*/
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/shopspring/decimal"

	"github.com/farmchain/trace-engine/supply"
)

// Store implements supply.Store using SQLite.
type Store struct {
	db *sql.DB
	mu sync.RWMutex
}

// New creates a new SQLite store with the given database path.
// Use ":memory:" for an in-memory database.
func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_foreign_keys=on&_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	store := &Store{db: db}
	if err := store.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return store, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// migrate creates the database schema.
func (s *Store) migrate() error {
	schema := `
	-- Batches (quantity_total written once, never updated)
	CREATE TABLE IF NOT EXISTS batches (
		id TEXT PRIMARY KEY,
		crop_id TEXT NOT NULL,
		crop_name TEXT NOT NULL,
		farmer_id TEXT NOT NULL,
		quantity_total TEXT NOT NULL,
		quantity_unit TEXT NOT NULL,
		harvest_date TEXT NOT NULL,
		cost_per_unit TEXT NOT NULL,
		pesticide_name TEXT,
		pesticide_type TEXT,
		crop_image TEXT,
		status TEXT NOT NULL DEFAULT '',
		current_location TEXT,
		distributor_id TEXT NOT NULL DEFAULT '',
		created_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_batches_farmer
		ON batches(farmer_id);
	CREATE INDEX IF NOT EXISTS idx_batches_distributor
		ON batches(distributor_id) WHERE distributor_id != '';

	-- Trace events (append-only custody history)
	CREATE TABLE IF NOT EXISTS trace_events (
		batch_id TEXT NOT NULL,
		seq INTEGER NOT NULL,
		event_type TEXT NOT NULL,
		location TEXT,
		handled_by TEXT,
		actor_id TEXT,
		timestamp TEXT NOT NULL,
		PRIMARY KEY (batch_id, seq)
	);

	-- For reverse scans (latest event, latest TRANSPORT)
	CREATE INDEX IF NOT EXISTS idx_trace_batch_type
		ON trace_events(batch_id, event_type, seq DESC);

	-- Orders (financial/audit record; the ledger rebuilds from this)
	CREATE TABLE IF NOT EXISTS orders (
		id TEXT PRIMARY KEY,
		batch_id TEXT NOT NULL,
		consumer_id TEXT NOT NULL,
		distributor_id TEXT NOT NULL,
		reservation_id TEXT NOT NULL UNIQUE,
		product TEXT NOT NULL,
		quantity TEXT NOT NULL,
		quantity_unit TEXT NOT NULL,
		unit_cost TEXT NOT NULL,
		full_name TEXT,
		phone_number TEXT,
		address TEXT,
		status TEXT NOT NULL DEFAULT 'PENDING',
		placed_at TEXT NOT NULL,
		expected_delivery TEXT NOT NULL,
		decided_by TEXT,
		decided_at TEXT,
		rejection_reason TEXT,
		updated_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_orders_consumer
		ON orders(consumer_id, placed_at DESC);
	CREATE INDEX IF NOT EXISTS idx_orders_distributor
		ON orders(distributor_id, placed_at DESC);
	CREATE INDEX IF NOT EXISTS idx_orders_batch
		ON orders(batch_id);
	CREATE INDEX IF NOT EXISTS idx_orders_status
		ON orders(status);
	`

	_, err := s.db.Exec(schema)
	return err
}

// =============================================================================
// BATCH STORE (supply.BatchStore interface)
// =============================================================================

func (s *Store) SaveBatch(ctx context.Context, b supply.Batch) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	query := `
		INSERT INTO batches
		(id, crop_id, crop_name, farmer_id, quantity_total, quantity_unit, harvest_date,
		 cost_per_unit, pesticide_name, pesticide_type, crop_image, status,
		 current_location, distributor_id, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err := s.db.ExecContext(ctx, query,
		b.ID,
		b.CropID,
		b.CropName,
		b.FarmerID,
		b.QuantityTotal.Value.String(),
		b.QuantityTotal.Unit,
		b.HarvestDate.UTC().Format(time.RFC3339Nano),
		b.CostPerUnit.String(),
		b.PesticideName,
		b.PesticideType,
		b.CropImage,
		b.Status,
		b.CurrentLocation,
		b.DistributorID,
		b.CreatedAt.UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("failed to save batch: %w", err)
	}
	return nil
}

const batchColumns = `id, crop_id, crop_name, farmer_id, quantity_total, quantity_unit,
	harvest_date, cost_per_unit, pesticide_name, pesticide_type, crop_image,
	status, current_location, distributor_id, created_at`

func (s *Store) GetBatch(ctx context.Context, id supply.BatchID) (*supply.Batch, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	row := s.db.QueryRowContext(ctx,
		`SELECT `+batchColumns+` FROM batches WHERE id = ?`, id)

	b, err := scanBatch(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get batch: %w", err)
	}
	return b, nil
}

func (s *Store) ListBatches(ctx context.Context) ([]supply.Batch, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx,
		`SELECT `+batchColumns+` FROM batches ORDER BY created_at, id`)
	if err != nil {
		return nil, fmt.Errorf("failed to list batches: %w", err)
	}
	defer rows.Close()

	var out []supply.Batch
	for rows.Next() {
		b, err := scanBatch(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan batch: %w", err)
		}
		out = append(out, *b)
	}
	return out, rows.Err()
}

func (s *Store) UpdateBatchProjection(ctx context.Context, id supply.BatchID, status supply.EventType, location string, distributorID supply.DistributorID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.ExecContext(ctx,
		`UPDATE batches SET status = ?, current_location = ?, distributor_id = ? WHERE id = ?`,
		status, location, distributorID, id)
	if err != nil {
		return fmt.Errorf("failed to update batch projection: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("batch %s not found", id)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanBatch(row rowScanner) (*supply.Batch, error) {
	var b supply.Batch
	var quantity, unit, harvestDate, costPerUnit, createdAt string
	var pesticideName, pesticideType, cropImage, location sql.NullString

	err := row.Scan(
		&b.ID, &b.CropID, &b.CropName, &b.FarmerID,
		&quantity, &unit, &harvestDate, &costPerUnit,
		&pesticideName, &pesticideType, &cropImage,
		&b.Status, &location, &b.DistributorID, &createdAt,
	)
	if err != nil {
		return nil, err
	}

	value, err := decimal.NewFromString(quantity)
	if err != nil {
		return nil, fmt.Errorf("bad quantity %q: %w", quantity, err)
	}
	b.QuantityTotal = supply.Quantity{Value: value, Unit: supply.Unit(unit)}

	if b.CostPerUnit, err = decimal.NewFromString(costPerUnit); err != nil {
		return nil, fmt.Errorf("bad cost %q: %w", costPerUnit, err)
	}
	if b.HarvestDate, err = time.Parse(time.RFC3339Nano, harvestDate); err != nil {
		return nil, fmt.Errorf("bad harvest date %q: %w", harvestDate, err)
	}
	if b.CreatedAt, err = time.Parse(time.RFC3339Nano, createdAt); err != nil {
		return nil, fmt.Errorf("bad created_at %q: %w", createdAt, err)
	}

	b.PesticideName = pesticideName.String
	b.PesticideType = pesticideType.String
	b.CropImage = cropImage.String
	b.CurrentLocation = location.String
	return &b, nil
}

// =============================================================================
// TRACE LOG (supply.TraceLog interface) - append-only
// =============================================================================

func (s *Store) AppendEvent(ctx context.Context, e supply.TraceEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	query := `
		INSERT INTO trace_events
		(batch_id, seq, event_type, location, handled_by, actor_id, timestamp)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`

	_, err := s.db.ExecContext(ctx, query,
		e.BatchID,
		e.Seq,
		e.EventType,
		e.Location,
		e.HandledBy,
		e.ActorID,
		e.Timestamp.UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("failed to append trace event: %w", err)
	}
	return nil
}

func (s *Store) LoadTrace(ctx context.Context, id supply.BatchID) ([]supply.TraceEvent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, `
		SELECT batch_id, seq, event_type, location, handled_by, actor_id, timestamp
		FROM trace_events WHERE batch_id = ? ORDER BY seq`, id)
	if err != nil {
		return nil, fmt.Errorf("failed to load trace: %w", err)
	}
	defer rows.Close()

	var out []supply.TraceEvent
	for rows.Next() {
		e, err := scanEvent(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *e)
	}
	return out, rows.Err()
}

func (s *Store) LatestEvent(ctx context.Context, id supply.BatchID) (*supply.TraceEvent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	row := s.db.QueryRowContext(ctx, `
		SELECT batch_id, seq, event_type, location, handled_by, actor_id, timestamp
		FROM trace_events WHERE batch_id = ? ORDER BY seq DESC LIMIT 1`, id)

	e, err := scanEvent(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load latest event: %w", err)
	}
	return e, nil
}

func scanEvent(row rowScanner) (*supply.TraceEvent, error) {
	var e supply.TraceEvent
	var location, handledBy, actorID sql.NullString
	var timestamp string

	err := row.Scan(&e.BatchID, &e.Seq, &e.EventType, &location, &handledBy, &actorID, &timestamp)
	if err != nil {
		return nil, err
	}

	e.Location = location.String
	e.HandledBy = handledBy.String
	e.ActorID = actorID.String
	if e.Timestamp, err = time.Parse(time.RFC3339Nano, timestamp); err != nil {
		return nil, fmt.Errorf("bad event timestamp %q: %w", timestamp, err)
	}
	return &e, nil
}

// =============================================================================
// ORDER STORE (supply.OrderStore interface)
// =============================================================================

func (s *Store) SaveOrder(ctx context.Context, o supply.Order) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	query := `
		INSERT INTO orders
		(id, batch_id, consumer_id, distributor_id, reservation_id, product,
		 quantity, quantity_unit, unit_cost, full_name, phone_number, address,
		 status, placed_at, expected_delivery, decided_by, decided_at,
		 rejection_reason, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err := s.db.ExecContext(ctx, query,
		o.ID,
		o.BatchID,
		o.ConsumerID,
		o.DistributorID,
		o.ReservationID,
		o.Product,
		o.Quantity.Value.String(),
		o.Quantity.Unit,
		o.UnitCost.String(),
		o.Snapshot.FullName,
		o.Snapshot.PhoneNumber,
		o.Snapshot.Address,
		o.Status,
		o.PlacedAt.UTC().Format(time.RFC3339Nano),
		o.ExpectedDelivery.UTC().Format(time.RFC3339Nano),
		o.DecidedBy,
		nullTime(o.DecidedAt),
		o.RejectionReason,
		o.UpdatedAt.UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		if isUniqueConstraintError(err) {
			return fmt.Errorf("order %s already exists: %w", o.ID, err)
		}
		return fmt.Errorf("failed to save order: %w", err)
	}
	return nil
}

func (s *Store) UpdateOrderStatus(ctx context.Context, o supply.Order) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.ExecContext(ctx, `
		UPDATE orders
		SET status = ?, decided_by = ?, decided_at = ?, rejection_reason = ?, updated_at = ?
		WHERE id = ?`,
		o.Status,
		o.DecidedBy,
		nullTime(o.DecidedAt),
		o.RejectionReason,
		o.UpdatedAt.UTC().Format(time.RFC3339Nano),
		o.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to update order status: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("order %s not found", o.ID)
	}
	return nil
}

const orderColumns = `id, batch_id, consumer_id, distributor_id, reservation_id, product,
	quantity, quantity_unit, unit_cost, full_name, phone_number, address,
	status, placed_at, expected_delivery, decided_by, decided_at,
	rejection_reason, updated_at`

func (s *Store) GetOrder(ctx context.Context, id supply.OrderID) (*supply.Order, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	row := s.db.QueryRowContext(ctx,
		`SELECT `+orderColumns+` FROM orders WHERE id = ?`, id)

	o, err := scanOrder(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get order: %w", err)
	}
	return o, nil
}

func (s *Store) ListOrdersByConsumer(ctx context.Context, id supply.ConsumerID) ([]supply.Order, error) {
	return s.listOrders(ctx, `WHERE consumer_id = ?`, id)
}

func (s *Store) ListOrdersByDistributor(ctx context.Context, id supply.DistributorID) ([]supply.Order, error) {
	return s.listOrders(ctx, `WHERE distributor_id = ?`, id)
}

func (s *Store) ListOrders(ctx context.Context) ([]supply.Order, error) {
	return s.listOrders(ctx, ``)
}

func (s *Store) listOrders(ctx context.Context, where string, args ...any) ([]supply.Order, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	query := `SELECT ` + orderColumns + ` FROM orders ` + where + ` ORDER BY placed_at DESC, id`
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list orders: %w", err)
	}
	defer rows.Close()

	var out []supply.Order
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan order: %w", err)
		}
		out = append(out, *o)
	}
	return out, rows.Err()
}

func scanOrder(row rowScanner) (*supply.Order, error) {
	var o supply.Order
	var quantity, unit, unitCost, placedAt, expectedDelivery, updatedAt string
	var fullName, phone, address, decidedBy, decidedAt, rejectionReason sql.NullString

	err := row.Scan(
		&o.ID, &o.BatchID, &o.ConsumerID, &o.DistributorID, &o.ReservationID, &o.Product,
		&quantity, &unit, &unitCost, &fullName, &phone, &address,
		&o.Status, &placedAt, &expectedDelivery, &decidedBy, &decidedAt,
		&rejectionReason, &updatedAt,
	)
	if err != nil {
		return nil, err
	}

	value, err := decimal.NewFromString(quantity)
	if err != nil {
		return nil, fmt.Errorf("bad quantity %q: %w", quantity, err)
	}
	o.Quantity = supply.Quantity{Value: value, Unit: supply.Unit(unit)}

	if o.UnitCost, err = decimal.NewFromString(unitCost); err != nil {
		return nil, fmt.Errorf("bad unit cost %q: %w", unitCost, err)
	}
	if o.PlacedAt, err = time.Parse(time.RFC3339Nano, placedAt); err != nil {
		return nil, fmt.Errorf("bad placed_at %q: %w", placedAt, err)
	}
	if o.ExpectedDelivery, err = time.Parse(time.RFC3339Nano, expectedDelivery); err != nil {
		return nil, fmt.Errorf("bad expected_delivery %q: %w", expectedDelivery, err)
	}
	if o.UpdatedAt, err = time.Parse(time.RFC3339Nano, updatedAt); err != nil {
		return nil, fmt.Errorf("bad updated_at %q: %w", updatedAt, err)
	}
	if decidedAt.Valid && decidedAt.String != "" {
		t, err := time.Parse(time.RFC3339Nano, decidedAt.String)
		if err != nil {
			return nil, fmt.Errorf("bad decided_at %q: %w", decidedAt.String, err)
		}
		o.DecidedAt = &t
	}

	o.Snapshot = supply.ConsumerSnapshot{
		FullName:    fullName.String,
		PhoneNumber: phone.String,
		Address:     address.String,
	}
	o.DecidedBy = decidedBy.String
	o.RejectionReason = rejectionReason.String
	return &o, nil
}

// =============================================================================
// HELPERS
// =============================================================================

func nullTime(t *time.Time) any {
	if t == nil {
		return nil
	}
	return t.UTC().Format(time.RFC3339Nano)
}

func isUniqueConstraintError(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}
