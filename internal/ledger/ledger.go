// Package ledger persists the procurement audit trail in SQLite: one row
// per purchase attempt and one row per archived plan. Plans are written
// once when they reach a terminal status and never reused; the tables
// exist so a long-running bot can answer "what did we buy, where, and
// what did it cost" after the fact.
package ledger

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"go.uber.org/zap"
	_ "modernc.org/sqlite"
)

// Transaction outcomes.
const (
	OutcomeSucceeded   = "SUCCEEDED"
	OutcomeRateLimited = "RATE_LIMITED"
	OutcomeRejected    = "REJECTED"
	OutcomePartial     = "PARTIAL"
)

// TransactionRecord is the durable record of one purchase attempt.
// UnitsPurchased is zero for failed attempts and may be less than
// UnitsRequested when the venue's volume shrank between planning and
// execution.
type TransactionRecord struct {
	ID             string
	PlanID         string
	BatchSeq       int
	Ship           string
	Venue          string
	Good           string
	Outcome        string
	UnitsRequested int
	UnitsPurchased int
	PricePerUnit   int64
	TotalPrice     int64
	CreatedAt      time.Time
}

// PlanArchive is the terminal snapshot of one procurement plan.
type PlanArchive struct {
	PlanID         string
	ContractID     string
	Good           string
	Status         string
	UnitsRequired  int
	UnitsPurchased int
	UnitsDelivered int
	Shortfall      int
	CreditsSpent   int64
	FailedBatches  int
	CreatedAt      time.Time
	FinishedAt     time.Time
}

// Store is the SQLite-backed ledger. Safe for concurrent use; every ship
// executor appends through the same store.
type Store struct {
	db   *sql.DB
	mu   sync.RWMutex
	path string
	log  *zap.Logger
}

// Open opens (or creates) the ledger database at path. A nil logger
// disables logging.
func Open(path string, log *zap.Logger) (*Store, error) {
	if log == nil {
		log = zap.NewNop()
	}
	log = log.Named("ledger")

	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create ledger directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open ledger database: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	if _, err := db.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		log.Debug("failed to set busy_timeout", zap.Error(err))
	}
	if _, err := db.Exec("PRAGMA journal_mode = WAL"); err != nil {
		log.Debug("failed to set journal_mode=WAL", zap.Error(err))
	}
	// WAL already covers crash recovery, so NORMAL is safe and much
	// faster than the FULL default.
	if _, err := db.Exec("PRAGMA synchronous = NORMAL"); err != nil {
		log.Debug("failed to set synchronous=NORMAL", zap.Error(err))
	}

	store := &Store{db: db, path: path, log: log}
	if err := store.ensureSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ensure ledger schema: %w", err)
	}

	log.Debug("ledger opened", zap.String("path", path))
	return store, nil
}

func (s *Store) ensureSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS transactions (
		id TEXT PRIMARY KEY,
		plan_id TEXT NOT NULL,
		batch_seq INTEGER NOT NULL,
		ship TEXT NOT NULL,
		venue TEXT NOT NULL,
		good TEXT NOT NULL,
		outcome TEXT NOT NULL,
		units_requested INTEGER NOT NULL,
		units_purchased INTEGER NOT NULL,
		price_per_unit INTEGER NOT NULL,
		total_price INTEGER NOT NULL,
		created_at DATETIME NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_tx_plan ON transactions(plan_id);
	CREATE INDEX IF NOT EXISTS idx_tx_ship ON transactions(ship);
	CREATE INDEX IF NOT EXISTS idx_tx_outcome ON transactions(outcome);

	CREATE TABLE IF NOT EXISTS plans (
		plan_id TEXT PRIMARY KEY,
		contract_id TEXT NOT NULL,
		good TEXT NOT NULL,
		status TEXT NOT NULL,
		units_required INTEGER NOT NULL,
		units_purchased INTEGER NOT NULL,
		units_delivered INTEGER NOT NULL,
		shortfall INTEGER NOT NULL,
		credits_spent INTEGER NOT NULL,
		failed_batches INTEGER NOT NULL,
		created_at DATETIME NOT NULL,
		finished_at DATETIME NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_plans_contract ON plans(contract_id);
	CREATE INDEX IF NOT EXISTS idx_plans_status ON plans(status);
	`
	_, err := s.db.Exec(schema)
	return err
}

// Append writes one transaction record.
func (s *Store) Append(rec TransactionRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.Exec(`
		INSERT OR REPLACE INTO transactions
		(id, plan_id, batch_seq, ship, venue, good, outcome,
		 units_requested, units_purchased, price_per_unit, total_price, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.ID, rec.PlanID, rec.BatchSeq, rec.Ship, rec.Venue, rec.Good, rec.Outcome,
		rec.UnitsRequested, rec.UnitsPurchased, rec.PricePerUnit, rec.TotalPrice,
		rec.CreatedAt.UTC(),
	)
	if err != nil {
		s.log.Error("failed to append transaction record",
			zap.String("id", rec.ID), zap.Error(err))
		return fmt.Errorf("failed to append transaction record: %w", err)
	}
	return nil
}

// Records returns a plan's transaction records in execution order.
func (s *Store) Records(planID string) ([]TransactionRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.Query(`
		SELECT id, plan_id, batch_seq, ship, venue, good, outcome,
		       units_requested, units_purchased, price_per_unit, total_price, created_at
		FROM transactions
		WHERE plan_id = ?
		ORDER BY batch_seq ASC, created_at ASC`, planID)
	if err != nil {
		return nil, fmt.Errorf("failed to query transaction records: %w", err)
	}
	defer rows.Close()

	return scanRecords(rows)
}

// FailedRecords returns a plan's records whose batches did not purchase
// their full requested units.
func (s *Store) FailedRecords(planID string) ([]TransactionRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.Query(`
		SELECT id, plan_id, batch_seq, ship, venue, good, outcome,
		       units_requested, units_purchased, price_per_unit, total_price, created_at
		FROM transactions
		WHERE plan_id = ? AND outcome != ?
		ORDER BY batch_seq ASC`, planID, OutcomeSucceeded)
	if err != nil {
		return nil, fmt.Errorf("failed to query failed records: %w", err)
	}
	defer rows.Close()

	return scanRecords(rows)
}

func scanRecords(rows *sql.Rows) ([]TransactionRecord, error) {
	var records []TransactionRecord
	for rows.Next() {
		var rec TransactionRecord
		if err := rows.Scan(
			&rec.ID, &rec.PlanID, &rec.BatchSeq, &rec.Ship, &rec.Venue, &rec.Good,
			&rec.Outcome, &rec.UnitsRequested, &rec.UnitsPurchased,
			&rec.PricePerUnit, &rec.TotalPrice, &rec.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan transaction record: %w", err)
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}

// ArchivePlan writes a plan's terminal snapshot. Archives are immutable;
// a fresh fulfillment attempt gets a fresh plan ID.
func (s *Store) ArchivePlan(archive PlanArchive) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.Exec(`
		INSERT OR REPLACE INTO plans
		(plan_id, contract_id, good, status, units_required, units_purchased,
		 units_delivered, shortfall, credits_spent, failed_batches, created_at, finished_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		archive.PlanID, archive.ContractID, archive.Good, archive.Status,
		archive.UnitsRequired, archive.UnitsPurchased, archive.UnitsDelivered,
		archive.Shortfall, archive.CreditsSpent, archive.FailedBatches,
		archive.CreatedAt.UTC(), archive.FinishedAt.UTC(),
	)
	if err != nil {
		s.log.Error("failed to archive plan",
			zap.String("plan", archive.PlanID), zap.Error(err))
		return fmt.Errorf("failed to archive plan: %w", err)
	}

	s.log.Debug("plan archived",
		zap.String("plan", archive.PlanID),
		zap.String("status", archive.Status),
		zap.Int("purchased", archive.UnitsPurchased),
		zap.Int("shortfall", archive.Shortfall))
	return nil
}

// Archives returns the most recently finished plans, newest first.
func (s *Store) Archives(limit int) ([]PlanArchive, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if limit <= 0 {
		limit = 20
	}

	rows, err := s.db.Query(`
		SELECT plan_id, contract_id, good, status, units_required, units_purchased,
		       units_delivered, shortfall, credits_spent, failed_batches, created_at, finished_at
		FROM plans
		ORDER BY finished_at DESC
		LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query plan archives: %w", err)
	}
	defer rows.Close()

	var archives []PlanArchive
	for rows.Next() {
		var a PlanArchive
		if err := rows.Scan(
			&a.PlanID, &a.ContractID, &a.Good, &a.Status, &a.UnitsRequired,
			&a.UnitsPurchased, &a.UnitsDelivered, &a.Shortfall, &a.CreditsSpent,
			&a.FailedBatches, &a.CreatedAt, &a.FinishedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan plan archive: %w", err)
		}
		archives = append(archives, a)
	}
	return archives, rows.Err()
}

// ContractSpend sums what a contract's plans actually paid out.
func (s *Store) ContractSpend(contractID string) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var spent sql.NullInt64
	err := s.db.QueryRow(`
		SELECT SUM(credits_spent) FROM plans WHERE contract_id = ?`, contractID).Scan(&spent)
	if err != nil {
		return 0, fmt.Errorf("failed to sum contract spend: %w", err)
	}
	return spent.Int64, nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.db.Close()
}
