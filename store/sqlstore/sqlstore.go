/*
Package sqlstore provides a SQL-backed implementation of the commission stores.

PURPOSE:
  Implements commission.TxStore, commission.EligibilityConfig and
  commission.ThresholdSetter on SQLite (mattn/go-sqlite3) or PostgreSQL
  (lib/pq). One schema serves both dialects; placeholders are written as ?
  and rebound to $n for PostgreSQL.

KEY TABLES:
  cases:                  Case records with financial line items as TEXT
  rewards:                Reward records
  payout_requests:        Payout requests with a JSON payment method snapshot
  payout_request_rewards: Request-to-reward links, one active claim per reward
  payee_profiles:         Bank details per payee
  settings:               Named values (min_payout_threshold)
  audit_log:              Append-only audit trail

CLAIM UNIQUENESS:
  idx_unique_active_claim allows a reward to appear in at most one link row
  with active = 1. Rejecting a request clears active on its links so the
  rewards can be claimed again.

CONCURRENCY:
  Reward and request status writes are compare-and-swap UPDATEs checked by
  RowsAffected. SQLite is limited to one open connection so units run one at
  a time; PostgreSQL relies on row locks taken by the UPDATEs.

TIMESTAMPS AND AMOUNTS:
  Stored as TEXT. Times use a fixed-width UTC layout so ORDER BY sorts them
  chronologically. Amounts use decimal.Decimal's string form.

USAGE:
  store, err := sqlstore.New("./data/commission.db")
  if err != nil {
      log.Fatal(err)
  }
  defer store.Close()

  engine := commission.NewEngine(store, store)

SEE ALSO:
  - commission/store.go: Interface definitions
  - commission/store/memory.go: In-memory implementation for testing
*/
package sqlstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/lib/pq"
	"github.com/mattn/go-sqlite3"
	"github.com/shopspring/decimal"
	"github.com/warp/commission-engine/commission"
)

// Dialect names a database/sql driver supported by Store.
type Dialect string

const (
	DialectSQLite   Dialect = "sqlite3"
	DialectPostgres Dialect = "postgres"
)

// ParseDialect accepts the driver names used in configuration.
func ParseDialect(s string) (Dialect, error) {
	switch strings.ToLower(s) {
	case "sqlite3", "sqlite":
		return DialectSQLite, nil
	case "postgres", "postgresql":
		return DialectPostgres, nil
	}
	return "", fmt.Errorf("unsupported database driver %q", s)
}

const settingMinPayoutThreshold = "min_payout_threshold"

// timeLayout is RFC3339 with fixed nanosecond width.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

// Store implements the commission storage interfaces over database/sql.
type Store struct {
	conn
	db *sql.DB
}

// New opens a SQLite store at dbPath. Use ":memory:" for an in-memory database.
func New(dbPath string) (*Store, error) {
	return Open(DialectSQLite, dbPath)
}

// Open connects to dsn with the given dialect and migrates the schema.
func Open(dialect Dialect, dsn string) (*Store, error) {
	if dialect == DialectSQLite {
		dsn += "?_foreign_keys=on&_journal_mode=WAL&_busy_timeout=5000"
	}
	db, err := sql.Open(string(dialect), dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if dialect == DialectSQLite {
		// An in-memory SQLite database lives on a single connection.
		db.SetMaxOpenConns(1)
	}

	store := &Store{conn: conn{q: db, dialect: dialect}, db: db}
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

// Ping verifies the database is reachable.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// migrate creates the database schema.
func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS cases (
		id TEXT PRIMARY KEY,
		lead_id TEXT NOT NULL,
		handler_id TEXT,
		referrer_id TEXT,
		status TEXT NOT NULL,
		paid_at TEXT,
		countdown_started_at TEXT,
		service_fee TEXT NOT NULL DEFAULT '0',
		school_commission TEXT NOT NULL DEFAULT '0',
		handler_commission TEXT NOT NULL DEFAULT '0',
		referrer_commission TEXT NOT NULL DEFAULT '0',
		referral_discount TEXT NOT NULL DEFAULT '0',
		translation_fee TEXT NOT NULL DEFAULT '0',
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_cases_status
		ON cases(status);

	CREATE TABLE IF NOT EXISTS rewards (
		id TEXT PRIMARY KEY,
		payee_id TEXT NOT NULL,
		case_id TEXT,
		referral_id TEXT,
		amount TEXT NOT NULL,
		status TEXT NOT NULL,
		created_at TEXT NOT NULL,
		payout_requested_at TEXT,
		updated_at TEXT NOT NULL,
		admin_notes TEXT NOT NULL DEFAULT ''
	);

	CREATE INDEX IF NOT EXISTS idx_rewards_payee
		ON rewards(payee_id, created_at);
	CREATE INDEX IF NOT EXISTS idx_rewards_status
		ON rewards(status);
	CREATE INDEX IF NOT EXISTS idx_rewards_case
		ON rewards(case_id) WHERE case_id IS NOT NULL;

	CREATE TABLE IF NOT EXISTS payout_requests (
		id TEXT PRIMARY KEY,
		requestor_id TEXT NOT NULL,
		requestor_role TEXT NOT NULL,
		amount TEXT NOT NULL,
		status TEXT NOT NULL DEFAULT 'pending',
		requested_at TEXT NOT NULL,
		payment_method_json TEXT NOT NULL,
		admin_notes TEXT NOT NULL DEFAULT '',
		reject_reason TEXT,
		processed_at TEXT,
		processed_by TEXT NOT NULL DEFAULT ''
	);

	CREATE INDEX IF NOT EXISTS idx_payout_requests_requestor
		ON payout_requests(requestor_id);
	CREATE INDEX IF NOT EXISTS idx_payout_requests_status
		ON payout_requests(status);

	CREATE TABLE IF NOT EXISTS payout_request_rewards (
		request_id TEXT NOT NULL REFERENCES payout_requests(id),
		reward_id TEXT NOT NULL REFERENCES rewards(id),
		display_name TEXT NOT NULL DEFAULT '',
		link_order INTEGER NOT NULL,
		active INTEGER NOT NULL DEFAULT 1,
		PRIMARY KEY (request_id, reward_id)
	);

	-- A reward may be held by at most one request that is not rejected
	CREATE UNIQUE INDEX IF NOT EXISTS idx_unique_active_claim
		ON payout_request_rewards(reward_id) WHERE active = 1;

	CREATE TABLE IF NOT EXISTS payee_profiles (
		payee_id TEXT PRIMARY KEY,
		role TEXT NOT NULL,
		display_name TEXT NOT NULL DEFAULT '',
		bank_name TEXT NOT NULL DEFAULT '',
		bank_branch TEXT NOT NULL DEFAULT '',
		account_number TEXT NOT NULL DEFAULT '',
		confirmed_at TEXT,
		updated_at TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS settings (
		name TEXT PRIMARY KEY,
		value TEXT NOT NULL,
		updated_at TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS audit_log (
		seq {{serial}},
		id TEXT NOT NULL UNIQUE,
		ts TEXT NOT NULL,
		actor_id TEXT NOT NULL,
		action TEXT NOT NULL,
		subject_id TEXT NOT NULL,
		payload_json TEXT
	);

	CREATE INDEX IF NOT EXISTS idx_audit_log_subject
		ON audit_log(subject_id);
	`

	serial := "INTEGER PRIMARY KEY AUTOINCREMENT"
	if s.dialect == DialectPostgres {
		serial = "BIGSERIAL PRIMARY KEY"
	}
	_, err := s.db.Exec(strings.ReplaceAll(schema, "{{serial}}", serial))
	return err
}

// =============================================================================
// TRANSACTIONAL STORE (commission.TxStore interface)
// =============================================================================

// WithTx executes fn within a database transaction.
func (s *Store) WithTx(ctx context.Context, fn func(commission.Store) error) error {
	sqlTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer sqlTx.Rollback()

	txStore := &txStore{conn: conn{q: sqlTx, dialect: s.dialect}}
	if err := fn(txStore); err != nil {
		return err
	}

	return sqlTx.Commit()
}

// txStore routes every call through the open transaction.
type txStore struct {
	conn
}

// querier is satisfied by both *sql.DB and *sql.Tx.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// conn implements commission.Store against a querier.
type conn struct {
	q       querier
	dialect Dialect
}

func (c *conn) exec(ctx context.Context, query string, args ...any) (sql.Result, error) {
	return c.q.ExecContext(ctx, c.rebind(query), args...)
}

func (c *conn) query(ctx context.Context, query string, args ...any) (*sql.Rows, error) {
	return c.q.QueryContext(ctx, c.rebind(query), args...)
}

func (c *conn) queryRow(ctx context.Context, query string, args ...any) *sql.Row {
	return c.q.QueryRowContext(ctx, c.rebind(query), args...)
}

// rebind rewrites ? placeholders as $1, $2, ... for PostgreSQL.
func (c *conn) rebind(query string) string {
	if c.dialect != DialectPostgres {
		return query
	}
	var b strings.Builder
	b.Grow(len(query) + 8)
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

// =============================================================================
// CASES
// =============================================================================

const caseColumns = `id, lead_id, handler_id, referrer_id, status, paid_at, countdown_started_at,
	service_fee, school_commission, handler_commission, referrer_commission, referral_discount,
	translation_fee, created_at, updated_at`

func (c *conn) CreateCase(ctx context.Context, cs commission.Case) error {
	query := `INSERT INTO cases (` + caseColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	f := cs.Financials
	_, err := c.exec(ctx, query,
		string(cs.ID), string(cs.LeadID),
		nullID(cs.AssignedHandlerID), nullID(cs.ReferrerID),
		string(cs.Status),
		nullTime(cs.PaidAt), nullTime(cs.PaidCountdownStartedAt),
		f.ServiceFee.String(), f.SchoolCommission.String(), f.HandlerCommission.String(),
		f.ReferrerCommission.String(), f.ReferralDiscount.String(), f.TranslationFee.String(),
		formatTime(cs.CreatedAt), formatTime(cs.UpdatedAt),
	)
	if err != nil {
		return fmt.Errorf("failed to create case: %w", err)
	}
	return nil
}

func (c *conn) GetCase(ctx context.Context, id commission.CaseID) (commission.Case, error) {
	row := c.queryRow(ctx, `SELECT `+caseColumns+` FROM cases WHERE id = ?`, string(id))
	cs, err := scanCase(row)
	if errors.Is(err, sql.ErrNoRows) {
		return commission.Case{}, fmt.Errorf("%w: %s", commission.ErrCaseNotFound, id)
	}
	return cs, err
}

func (c *conn) UpdateCase(ctx context.Context, cs commission.Case) error {
	query := `
		UPDATE cases SET
			lead_id = ?, handler_id = ?, referrer_id = ?, status = ?,
			paid_at = ?, countdown_started_at = ?,
			service_fee = ?, school_commission = ?, handler_commission = ?,
			referrer_commission = ?, referral_discount = ?, translation_fee = ?,
			updated_at = ?
		WHERE id = ?
	`

	f := cs.Financials
	res, err := c.exec(ctx, query,
		string(cs.LeadID), nullID(cs.AssignedHandlerID), nullID(cs.ReferrerID), string(cs.Status),
		nullTime(cs.PaidAt), nullTime(cs.PaidCountdownStartedAt),
		f.ServiceFee.String(), f.SchoolCommission.String(), f.HandlerCommission.String(),
		f.ReferrerCommission.String(), f.ReferralDiscount.String(), f.TranslationFee.String(),
		formatTime(cs.UpdatedAt),
		string(cs.ID),
	)
	if err != nil {
		return fmt.Errorf("failed to update case: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("%w: %s", commission.ErrCaseNotFound, cs.ID)
	}
	return nil
}

func (c *conn) ListCases(ctx context.Context) ([]commission.Case, error) {
	rows, err := c.query(ctx, `SELECT `+caseColumns+` FROM cases ORDER BY created_at ASC, id ASC`)
	if err != nil {
		return nil, fmt.Errorf("failed to query cases: %w", err)
	}
	defer rows.Close()

	var cases []commission.Case
	for rows.Next() {
		cs, err := scanCase(rows)
		if err != nil {
			return nil, err
		}
		cases = append(cases, cs)
	}
	return cases, rows.Err()
}

func scanCase(row scanner) (commission.Case, error) {
	var (
		cs                    commission.Case
		id, leadID, status    string
		handlerID, referrerID sql.NullString
		paidAt, countdownAt   sql.NullString
		amounts               [6]string
		createdAt, updatedAt  string
	)
	err := row.Scan(&id, &leadID, &handlerID, &referrerID, &status, &paidAt, &countdownAt,
		&amounts[0], &amounts[1], &amounts[2], &amounts[3], &amounts[4], &amounts[5],
		&createdAt, &updatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return cs, err
		}
		return cs, fmt.Errorf("failed to scan case: %w", err)
	}

	cs.ID = commission.CaseID(id)
	cs.LeadID = commission.LeadID(leadID)
	cs.AssignedHandlerID = idPtr[commission.PayeeID](handlerID)
	cs.ReferrerID = idPtr[commission.PayeeID](referrerID)
	if cs.Status, err = commission.ParseCaseStatus(status); err != nil {
		return cs, fmt.Errorf("case %s: %w", id, err)
	}

	var p parser
	cs.PaidAt = p.nullTime(paidAt)
	cs.PaidCountdownStartedAt = p.nullTime(countdownAt)
	cs.Financials = commission.Financials{
		ServiceFee:         p.decimal(amounts[0]),
		SchoolCommission:   p.decimal(amounts[1]),
		HandlerCommission:  p.decimal(amounts[2]),
		ReferrerCommission: p.decimal(amounts[3]),
		ReferralDiscount:   p.decimal(amounts[4]),
		TranslationFee:     p.decimal(amounts[5]),
	}
	cs.CreatedAt = p.time(createdAt)
	cs.UpdatedAt = p.time(updatedAt)
	if p.err != nil {
		return cs, fmt.Errorf("case %s: %w", id, p.err)
	}
	return cs, nil
}

// =============================================================================
// REWARDS
// =============================================================================

const rewardColumns = `id, payee_id, case_id, referral_id, amount, status,
	created_at, payout_requested_at, updated_at, admin_notes`

func (c *conn) CreateReward(ctx context.Context, r commission.Reward) error {
	query := `INSERT INTO rewards (` + rewardColumns + `) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	_, err := c.exec(ctx, query,
		string(r.ID), string(r.PayeeID), nullID(r.CaseID), nullID(r.ReferralID),
		r.Amount.String(), string(r.Status),
		formatTime(r.CreatedAt), nullTime(r.PayoutRequestedAt), formatTime(r.UpdatedAt),
		r.AdminNotes,
	)
	if err != nil {
		return fmt.Errorf("failed to create reward: %w", err)
	}
	return nil
}

func (c *conn) GetReward(ctx context.Context, id commission.RewardID) (commission.Reward, error) {
	row := c.queryRow(ctx, `SELECT `+rewardColumns+` FROM rewards WHERE id = ?`, string(id))
	r, err := scanReward(row)
	if errors.Is(err, sql.ErrNoRows) {
		return commission.Reward{}, fmt.Errorf("%w: %s", commission.ErrRewardNotFound, id)
	}
	return r, err
}

func (c *conn) ListRewardsByPayee(ctx context.Context, payee commission.PayeeID) ([]commission.Reward, error) {
	return c.queryRewards(ctx, `WHERE payee_id = ?`, string(payee))
}

func (c *conn) ListRewardsByStatus(ctx context.Context, status commission.RewardStatus) ([]commission.Reward, error) {
	return c.queryRewards(ctx, `WHERE status = ?`, string(status))
}

func (c *conn) ListRewardsByCase(ctx context.Context, caseID commission.CaseID) ([]commission.Reward, error) {
	return c.queryRewards(ctx, `WHERE case_id = ?`, string(caseID))
}

func (c *conn) queryRewards(ctx context.Context, where string, args ...any) ([]commission.Reward, error) {
	query := `SELECT ` + rewardColumns + ` FROM rewards ` + where + ` ORDER BY created_at ASC, id ASC`
	rows, err := c.query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query rewards: %w", err)
	}
	defer rows.Close()

	var rewards []commission.Reward
	for rows.Next() {
		r, err := scanReward(rows)
		if err != nil {
			return nil, err
		}
		rewards = append(rewards, r)
	}
	return rewards, rows.Err()
}

func (c *conn) CompareAndSetRewardStatus(ctx context.Context, id commission.RewardID, from, to commission.RewardStatus, payoutRequestedAt *time.Time, at time.Time) error {
	res, err := c.exec(ctx,
		`UPDATE rewards SET status = ?, payout_requested_at = ?, updated_at = ? WHERE id = ? AND status = ?`,
		string(to), nullTime(payoutRequestedAt), formatTime(at), string(id), string(from),
	)
	if err != nil {
		return fmt.Errorf("failed to update reward: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 1 {
		return nil
	}

	current, err := c.GetReward(ctx, id)
	if err != nil {
		return err
	}
	return fmt.Errorf("%w: reward %s is %s, expected %s", commission.ErrConcurrentModification, id, current.Status, from)
}

func scanReward(row scanner) (commission.Reward, error) {
	var (
		r                    commission.Reward
		id, payeeID, status  string
		caseID, referralID   sql.NullString
		amount               string
		createdAt, updatedAt string
		payoutRequestedAt    sql.NullString
	)
	err := row.Scan(&id, &payeeID, &caseID, &referralID, &amount, &status,
		&createdAt, &payoutRequestedAt, &updatedAt, &r.AdminNotes)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return r, err
		}
		return r, fmt.Errorf("failed to scan reward: %w", err)
	}

	r.ID = commission.RewardID(id)
	r.PayeeID = commission.PayeeID(payeeID)
	r.CaseID = idPtr[commission.CaseID](caseID)
	r.ReferralID = idPtr[commission.ReferralID](referralID)
	if r.Status, err = commission.ParseRewardStatus(status); err != nil {
		return r, fmt.Errorf("reward %s: %w", id, err)
	}

	var p parser
	r.Amount = p.decimal(amount)
	r.CreatedAt = p.time(createdAt)
	r.PayoutRequestedAt = p.nullTime(payoutRequestedAt)
	r.UpdatedAt = p.time(updatedAt)
	if p.err != nil {
		return r, fmt.Errorf("reward %s: %w", id, p.err)
	}
	return r, nil
}

// =============================================================================
// PAYOUT REQUESTS
// =============================================================================

const payoutColumns = `id, requestor_id, requestor_role, amount, status, requested_at,
	payment_method_json, admin_notes, reject_reason, processed_at, processed_by`

func (c *conn) CreatePayoutRequest(ctx context.Context, p commission.PayoutRequest) error {
	if len(p.LinkedRewardIDs) == 0 {
		return fmt.Errorf("%w: payout request %s links no rewards", commission.ErrNoEligibleRewards, p.ID)
	}
	seen := make(map[commission.RewardID]bool, len(p.LinkedRewardIDs))
	for _, rid := range p.LinkedRewardIDs {
		if seen[rid] {
			return &commission.DuplicateClaimError{RewardID: rid}
		}
		seen[rid] = true
	}

	// Report the holder up front; the unique index stays the last word.
	for _, rid := range p.LinkedRewardIDs {
		var holder string
		err := c.queryRow(ctx,
			`SELECT request_id FROM payout_request_rewards WHERE reward_id = ? AND active = 1`,
			string(rid)).Scan(&holder)
		if err == nil {
			return &commission.DuplicateClaimError{RewardID: rid, Cause: fmt.Errorf("held by request %s", holder)}
		}
		if !errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("failed to check reward claim: %w", err)
		}
	}

	method, err := json.Marshal(p.PaymentMethod)
	if err != nil {
		return fmt.Errorf("failed to encode payment method: %w", err)
	}

	query := `INSERT INTO payout_requests (` + payoutColumns + `) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
	_, err = c.exec(ctx, query,
		string(p.ID), string(p.RequestorID), string(p.RequestorRole),
		p.Amount.String(), string(p.Status), formatTime(p.RequestedAt),
		string(method), p.AdminNotes, nullString(p.RejectReason),
		nullTime(p.ProcessedAt), p.ProcessedBy,
	)
	if err != nil {
		return fmt.Errorf("failed to create payout request: %w", err)
	}

	for i, rid := range p.LinkedRewardIDs {
		name := ""
		if i < len(p.LinkedDisplayNames) {
			name = p.LinkedDisplayNames[i]
		}
		active := 1
		if !p.HoldsClaims() {
			active = 0
		}
		_, err := c.exec(ctx,
			`INSERT INTO payout_request_rewards (request_id, reward_id, display_name, link_order, active)
			 VALUES (?, ?, ?, ?, ?)`,
			string(p.ID), string(rid), name, i, active,
		)
		if err != nil {
			if isUniqueConstraintError(err) {
				return &commission.DuplicateClaimError{RewardID: rid, Cause: err}
			}
			return fmt.Errorf("failed to link reward %s: %w", rid, err)
		}
	}
	return nil
}

func (c *conn) GetPayoutRequest(ctx context.Context, id commission.PayoutRequestID) (commission.PayoutRequest, error) {
	row := c.queryRow(ctx, `SELECT `+payoutColumns+` FROM payout_requests WHERE id = ?`, string(id))
	p, err := scanPayoutRequest(row)
	if errors.Is(err, sql.ErrNoRows) {
		return commission.PayoutRequest{}, fmt.Errorf("%w: %s", commission.ErrPayoutNotFound, id)
	}
	if err != nil {
		return p, err
	}
	if err := c.loadLinks(ctx, &p); err != nil {
		return p, err
	}
	return p, nil
}

func (c *conn) ListPayoutRequestsByRequestor(ctx context.Context, payee commission.PayeeID) ([]commission.PayoutRequest, error) {
	return c.queryPayoutRequests(ctx, `WHERE requestor_id = ?`, string(payee))
}

func (c *conn) ListPayoutRequests(ctx context.Context, status *commission.PayoutStatus) ([]commission.PayoutRequest, error) {
	if status == nil {
		return c.queryPayoutRequests(ctx, ``)
	}
	return c.queryPayoutRequests(ctx, `WHERE status = ?`, string(*status))
}

func (c *conn) queryPayoutRequests(ctx context.Context, where string, args ...any) ([]commission.PayoutRequest, error) {
	query := `SELECT ` + payoutColumns + ` FROM payout_requests ` + where + ` ORDER BY requested_at ASC, id ASC`
	requests, err := c.scanPayoutRequests(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	// Links are loaded after the rows are closed; SQLite runs on one connection.
	for i := range requests {
		if err := c.loadLinks(ctx, &requests[i]); err != nil {
			return nil, err
		}
	}
	return requests, nil
}

func (c *conn) scanPayoutRequests(ctx context.Context, query string, args ...any) ([]commission.PayoutRequest, error) {
	rows, err := c.query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query payout requests: %w", err)
	}
	defer rows.Close()

	var requests []commission.PayoutRequest
	for rows.Next() {
		p, err := scanPayoutRequest(rows)
		if err != nil {
			return nil, err
		}
		requests = append(requests, p)
	}
	return requests, rows.Err()
}

func (c *conn) loadLinks(ctx context.Context, p *commission.PayoutRequest) error {
	rows, err := c.query(ctx,
		`SELECT reward_id, display_name FROM payout_request_rewards WHERE request_id = ? ORDER BY link_order ASC`,
		string(p.ID))
	if err != nil {
		return fmt.Errorf("failed to query payout request links: %w", err)
	}
	defer rows.Close()

	p.LinkedRewardIDs = nil
	p.LinkedDisplayNames = nil
	for rows.Next() {
		var rid, name string
		if err := rows.Scan(&rid, &name); err != nil {
			return fmt.Errorf("failed to scan payout request link: %w", err)
		}
		p.LinkedRewardIDs = append(p.LinkedRewardIDs, commission.RewardID(rid))
		p.LinkedDisplayNames = append(p.LinkedDisplayNames, name)
	}
	return rows.Err()
}

func (c *conn) UpdatePayoutRequestStatus(ctx context.Context, id commission.PayoutRequestID, from commission.PayoutStatus, upd commission.PayoutUpdate) error {
	query := `
		UPDATE payout_requests SET
			status = ?, reject_reason = ?, admin_notes = ?, processed_at = ?, processed_by = ?
		WHERE id = ? AND status = ?
	`
	res, err := c.exec(ctx, query,
		string(upd.Status), nullString(upd.RejectReason), upd.AdminNotes,
		nullTime(upd.ProcessedAt), upd.ProcessedBy,
		string(id), string(from),
	)
	if err != nil {
		return fmt.Errorf("failed to update payout request: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		var current string
		err := c.queryRow(ctx, `SELECT status FROM payout_requests WHERE id = ?`, string(id)).Scan(&current)
		if errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("%w: %s", commission.ErrPayoutNotFound, id)
		}
		if err != nil {
			return err
		}
		return fmt.Errorf("%w: payout request %s is %s, expected %s", commission.ErrConcurrentModification, id, current, from)
	}

	if upd.Status == commission.PayoutRejected {
		if _, err := c.exec(ctx, `UPDATE payout_request_rewards SET active = 0 WHERE request_id = ?`, string(id)); err != nil {
			return fmt.Errorf("failed to release reward claims: %w", err)
		}
	}
	return nil
}

func scanPayoutRequest(row scanner) (commission.PayoutRequest, error) {
	var (
		p                         commission.PayoutRequest
		id, requestorID, role     string
		amount, status            string
		requestedAt, method       string
		rejectReason, processedAt sql.NullString
	)
	err := row.Scan(&id, &requestorID, &role, &amount, &status, &requestedAt,
		&method, &p.AdminNotes, &rejectReason, &processedAt, &p.ProcessedBy)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return p, err
		}
		return p, fmt.Errorf("failed to scan payout request: %w", err)
	}

	p.ID = commission.PayoutRequestID(id)
	p.RequestorID = commission.PayeeID(requestorID)
	if p.RequestorRole, err = commission.ParseRole(role); err != nil {
		return p, fmt.Errorf("payout request %s: %w", id, err)
	}
	if p.Status, err = commission.ParsePayoutStatus(status); err != nil {
		return p, fmt.Errorf("payout request %s: %w", id, err)
	}
	if err := json.Unmarshal([]byte(method), &p.PaymentMethod); err != nil {
		return p, fmt.Errorf("payout request %s: decode payment method: %w", id, err)
	}
	if rejectReason.Valid {
		reason := rejectReason.String
		p.RejectReason = &reason
	}

	var ps parser
	p.Amount = ps.decimal(amount)
	p.RequestedAt = ps.time(requestedAt)
	p.ProcessedAt = ps.nullTime(processedAt)
	if ps.err != nil {
		return p, fmt.Errorf("payout request %s: %w", id, ps.err)
	}
	return p, nil
}

// =============================================================================
// PROFILES
// =============================================================================

func (c *conn) GetProfile(ctx context.Context, id commission.PayeeID) (commission.PayeeProfile, error) {
	var (
		pr          commission.PayeeProfile
		role        string
		confirmedAt sql.NullString
		updatedAt   string
	)
	err := c.queryRow(ctx, `
		SELECT role, display_name, bank_name, bank_branch, account_number, confirmed_at, updated_at
		FROM payee_profiles WHERE payee_id = ?`, string(id),
	).Scan(&role, &pr.DisplayName, &pr.BankName, &pr.BankBranch, &pr.AccountNumber, &confirmedAt, &updatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return pr, fmt.Errorf("%w: %s", commission.ErrProfileNotFound, id)
	}
	if err != nil {
		return pr, fmt.Errorf("failed to get profile: %w", err)
	}

	pr.PayeeID = id
	if pr.Role, err = commission.ParseRole(role); err != nil {
		return pr, fmt.Errorf("profile %s: %w", id, err)
	}
	var p parser
	pr.ConfirmedAt = p.nullTime(confirmedAt)
	pr.UpdatedAt = p.time(updatedAt)
	if p.err != nil {
		return pr, fmt.Errorf("profile %s: %w", id, p.err)
	}
	return pr, nil
}

func (c *conn) SaveProfile(ctx context.Context, pr commission.PayeeProfile) error {
	query := `
		INSERT INTO payee_profiles
		(payee_id, role, display_name, bank_name, bank_branch, account_number, confirmed_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(payee_id) DO UPDATE SET
			role = excluded.role,
			display_name = excluded.display_name,
			bank_name = excluded.bank_name,
			bank_branch = excluded.bank_branch,
			account_number = excluded.account_number,
			confirmed_at = excluded.confirmed_at,
			updated_at = excluded.updated_at
	`
	_, err := c.exec(ctx, query,
		string(pr.PayeeID), string(pr.Role), pr.DisplayName,
		pr.BankName, pr.BankBranch, pr.AccountNumber,
		nullTime(pr.ConfirmedAt), formatTime(pr.UpdatedAt),
	)
	if err != nil {
		return fmt.Errorf("failed to save profile: %w", err)
	}
	return nil
}

// =============================================================================
// AUDIT LOG
// =============================================================================

func (c *conn) AppendAudit(ctx context.Context, e commission.AuditEntry) error {
	payload, err := json.Marshal(e.Payload)
	if err != nil {
		return fmt.Errorf("failed to encode audit payload: %w", err)
	}
	_, err = c.exec(ctx,
		`INSERT INTO audit_log (id, ts, actor_id, action, subject_id, payload_json) VALUES (?, ?, ?, ?, ?, ?)`,
		e.ID, formatTime(e.Timestamp), e.ActorID, string(e.Action), e.SubjectID, string(payload),
	)
	if err != nil {
		return fmt.Errorf("failed to append audit entry: %w", err)
	}
	return nil
}

func (c *conn) QueryAudit(ctx context.Context, f commission.AuditFilter) ([]commission.AuditEntry, error) {
	var (
		conds []string
		args  []any
	)
	if f.SubjectID != nil {
		conds = append(conds, "subject_id = ?")
		args = append(args, *f.SubjectID)
	}
	if f.ActorID != nil {
		conds = append(conds, "actor_id = ?")
		args = append(args, *f.ActorID)
	}
	if f.From != nil {
		conds = append(conds, "ts >= ?")
		args = append(args, formatTime(*f.From))
	}
	if f.To != nil {
		conds = append(conds, "ts <= ?")
		args = append(args, formatTime(*f.To))
	}
	if len(f.Actions) > 0 {
		marks := make([]string, len(f.Actions))
		for i, a := range f.Actions {
			marks[i] = "?"
			args = append(args, string(a))
		}
		conds = append(conds, "action IN ("+strings.Join(marks, ", ")+")")
	}

	query := `SELECT id, ts, actor_id, action, subject_id, payload_json FROM audit_log`
	if len(conds) > 0 {
		query += ` WHERE ` + strings.Join(conds, " AND ")
	}
	query += ` ORDER BY seq ASC`

	rows, err := c.query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query audit log: %w", err)
	}
	defer rows.Close()

	var entries []commission.AuditEntry
	for rows.Next() {
		var (
			e       commission.AuditEntry
			ts      string
			action  string
			payload sql.NullString
		)
		if err := rows.Scan(&e.ID, &ts, &e.ActorID, &action, &e.SubjectID, &payload); err != nil {
			return nil, fmt.Errorf("failed to scan audit entry: %w", err)
		}
		e.Action = commission.AuditAction(action)
		var p parser
		e.Timestamp = p.time(ts)
		if p.err != nil {
			return nil, fmt.Errorf("audit entry %s: %w", e.ID, p.err)
		}
		if payload.Valid && payload.String != "" && payload.String != "null" {
			if err := json.Unmarshal([]byte(payload.String), &e.Payload); err != nil {
				return nil, fmt.Errorf("audit entry %s: decode payload: %w", e.ID, err)
			}
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// =============================================================================
// ELIGIBILITY CONFIG (commission.EligibilityConfig, commission.ThresholdSetter)
// =============================================================================

func (c *conn) MinPayoutThreshold(ctx context.Context) (decimal.Decimal, error) {
	var value string
	err := c.queryRow(ctx, `SELECT value FROM settings WHERE name = ?`, settingMinPayoutThreshold).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return decimal.Zero, commission.ErrThresholdNotConfigured
	}
	if err != nil {
		return decimal.Zero, fmt.Errorf("failed to read %s: %w", settingMinPayoutThreshold, err)
	}
	d, err := decimal.NewFromString(value)
	if err != nil {
		return decimal.Zero, fmt.Errorf("invalid %s %q: %w", settingMinPayoutThreshold, value, err)
	}
	return d, nil
}

func (c *conn) SetMinPayoutThreshold(ctx context.Context, amount decimal.Decimal) error {
	_, err := c.exec(ctx, `
		INSERT INTO settings (name, value, updated_at) VALUES (?, ?, ?)
		ON CONFLICT(name) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`,
		settingMinPayoutThreshold, amount.String(), formatTime(time.Now()),
	)
	if err != nil {
		return fmt.Errorf("failed to write %s: %w", settingMinPayoutThreshold, err)
	}
	return nil
}

var (
	_ commission.TxStore           = (*Store)(nil)
	_ commission.EligibilityConfig = (*Store)(nil)
	_ commission.ThresholdSetter   = (*Store)(nil)
	_ commission.Store             = (*txStore)(nil)
	_ commission.ThresholdSetter   = (*txStore)(nil)
)

// =============================================================================
// HELPERS
// =============================================================================

// scanner is satisfied by *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...any) error
}

// parser collects the first conversion error while decoding a row.
type parser struct {
	err error
}

func (p *parser) time(s string) time.Time {
	t, err := time.Parse(timeLayout, s)
	if err != nil {
		// Rows written by other tools may use plain RFC3339.
		t, err = time.Parse(time.RFC3339Nano, s)
	}
	if err != nil && p.err == nil {
		p.err = err
	}
	return t.UTC()
}

func (p *parser) nullTime(ns sql.NullString) *time.Time {
	if !ns.Valid {
		return nil
	}
	t := p.time(ns.String)
	return &t
}

func (p *parser) decimal(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil && p.err == nil {
		p.err = err
	}
	return d
}

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func nullTime(t *time.Time) sql.NullString {
	if t == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: formatTime(*t), Valid: true}
}

func nullString(s *string) sql.NullString {
	if s == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *s, Valid: true}
}

func nullID[T ~string](id *T) sql.NullString {
	if id == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: string(*id), Valid: true}
}

func idPtr[T ~string](ns sql.NullString) *T {
	if !ns.Valid {
		return nil
	}
	id := T(ns.String)
	return &id
}

func isUniqueConstraintError(err error) bool {
	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) {
		return sqliteErr.ExtendedCode == sqlite3.ErrConstraintUnique ||
			sqliteErr.ExtendedCode == sqlite3.ErrConstraintPrimaryKey
	}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pqErr.Code == "23505"
	}
	return err != nil && (strings.Contains(err.Error(), "UNIQUE constraint failed") ||
		strings.Contains(err.Error(), "duplicate key"))
}
