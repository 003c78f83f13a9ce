package actledger

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"
)

// advisoryLockKey is a stable PostgreSQL advisory lock key used to serialise
// concurrent ledger mutations. The value is arbitrary but must be consistent
// across all server instances sharing a database.
const advisoryLockKey = int64(7_204_311_958)

// Index owner kinds stored in the activity_index table.
const (
	ownerKindSubmitter = "submitter"
	ownerKindSubject   = "subject"
)

// PostgresLedger persists the activity ledger to PostgreSQL. Every mutating
// operation runs in a single transaction guarded by an advisory lock, so the
// store and both indexes always commit together.
type PostgresLedger struct {
	pool   *pgxpool.Pool
	cfg    Config
	sink   EventSink // nil = events discarded
	logger *zap.Logger
}

// NewPostgresLedger creates a PostgresLedger backed by the given pool.
// Zero limits in cfg fall back to the package defaults.
func NewPostgresLedger(pool *pgxpool.Pool, cfg Config, logger *zap.Logger) *PostgresLedger {
	return &PostgresLedger{pool: pool, cfg: cfg.withDefaults(), logger: logger}
}

// SetEventSink configures the sink that receives ledger events.
// Events are published only after the transaction commits.
func (l *PostgresLedger) SetEventSink(sink EventSink) {
	l.sink = sink
}

func (l *PostgresLedger) emit(ctx context.Context, ev Event) {
	if l.sink != nil {
		l.sink.Publish(ctx, ev)
	}
}

// begin opens a transaction and takes the ledger advisory lock.
func (l *PostgresLedger) begin(ctx context.Context) (pgx.Tx, error) {
	tx, err := l.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	if _, err := tx.Exec(ctx, "SELECT pg_advisory_xact_lock($1)", advisoryLockKey); err != nil {
		_ = tx.Rollback(ctx)
		return nil, fmt.Errorf("acquire advisory lock: %w", err)
	}
	return tx, nil
}

// readState loads the pause flag and logical clock inside a transaction.
func readState(ctx context.Context, tx pgx.Tx) (paused bool, clock uint64, err error) {
	if err := tx.QueryRow(ctx,
		"SELECT paused, clock FROM ledger_state WHERE singleton",
	).Scan(&paused, &clock); err != nil {
		return false, 0, fmt.Errorf("read ledger state: %w", err)
	}
	return paused, clock, nil
}

// bumpClock advances the logical clock inside a transaction.
func bumpClock(ctx context.Context, tx pgx.Tx) error {
	if _, err := tx.Exec(ctx,
		"UPDATE ledger_state SET clock = clock + 1 WHERE singleton",
	); err != nil {
		return fmt.Errorf("advance ledger clock: %w", err)
	}
	return nil
}

// RegisterType implements Ledger.
func (l *PostgresLedger) RegisterType(ctx context.Context, caller, name, description string) error {
	if caller != l.cfg.Admin {
		return fmt.Errorf("%w: only the administrator may register types", ErrUnauthorized)
	}
	if name == "" {
		return fmt.Errorf("%w: type name must not be empty", ErrInvalidParam)
	}
	if len(description) > l.cfg.MaxDescriptionLen {
		return fmt.Errorf("%w: type description exceeds %d characters", ErrInvalidParam, l.cfg.MaxDescriptionLen)
	}

	tx, err := l.begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	var exists bool
	if err := tx.QueryRow(ctx,
		"SELECT EXISTS (SELECT 1 FROM activity_types WHERE name = $1)", name,
	).Scan(&exists); err != nil {
		return fmt.Errorf("check type existence: %w", err)
	}
	if exists {
		return fmt.Errorf("%w: %q", ErrAlreadyExists, name)
	}

	if _, err := tx.Exec(ctx,
		"INSERT INTO activity_types (name, description, active) VALUES ($1, $2, true)",
		name, description,
	); err != nil {
		return fmt.Errorf("insert activity type: %w", err)
	}
	if err := bumpClock(ctx, tx); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

// LogActivity implements Ledger. Both index capacities are counted before
// any row is inserted, so a capacity rejection leaves the database untouched.
func (l *PostgresLedger) LogActivity(ctx context.Context, caller string, subjectID uint64, activityType, description string, evidence []Hash, metadata string) (uint64, error) {
	if err := l.cfg.checkNewEntry(subjectID, description, evidence, metadata); err != nil {
		return 0, err
	}

	tx, err := l.begin(ctx)
	if err != nil {
		return 0, err
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	paused, clock, err := readState(ctx, tx)
	if err != nil {
		return 0, err
	}
	if paused {
		return 0, ErrPaused
	}

	var active bool
	err = tx.QueryRow(ctx,
		"SELECT active FROM activity_types WHERE name = $1", activityType,
	).Scan(&active)
	if errors.Is(err, pgx.ErrNoRows) || (err == nil && !active) {
		return 0, fmt.Errorf("%w: activity type %q is not registered and active", ErrInvalidParam, activityType)
	}
	if err != nil {
		return 0, fmt.Errorf("lookup activity type: %w", err)
	}

	submitterCount, err := l.indexCount(ctx, tx, ownerKindSubmitter, caller)
	if err != nil {
		return 0, err
	}
	if submitterCount >= l.cfg.MaxEntriesPerKey {
		return 0, fmt.Errorf("%w: submitter %q", ErrCapacityExceeded, caller)
	}
	subjectCount, err := l.indexCount(ctx, tx, ownerKindSubject, subjectKey(subjectID))
	if err != nil {
		return 0, err
	}
	if subjectCount >= l.cfg.MaxEntriesPerKey {
		return 0, fmt.Errorf("%w: subject %d", ErrCapacityExceeded, subjectID)
	}

	var maxID uint64
	if err := tx.QueryRow(ctx,
		"SELECT COALESCE(MAX(log_id), 0) FROM activity_entries",
	).Scan(&maxID); err != nil {
		return 0, fmt.Errorf("read ledger tail: %w", err)
	}
	id := maxID + 1

	if _, err := tx.Exec(ctx,
		`INSERT INTO activity_entries
		   (log_id, submitter, subject_id, activity_type, description, evidence, metadata, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		id, caller, subjectID, activityType, description, hashesToBytes(evidence), metadata, clock+1,
	); err != nil {
		return 0, fmt.Errorf("insert ledger entry: %w", err)
	}

	if _, err := tx.Exec(ctx,
		`INSERT INTO activity_index (owner_kind, owner_key, position, log_id)
		 VALUES ($1, $2, $3, $4), ($5, $6, $7, $8)`,
		ownerKindSubmitter, caller, submitterCount, id,
		ownerKindSubject, subjectKey(subjectID), subjectCount, id,
	); err != nil {
		return 0, fmt.Errorf("insert index rows: %w", err)
	}

	if err := bumpClock(ctx, tx); err != nil {
		return 0, err
	}
	if err := tx.Commit(ctx); err != nil {
		return 0, fmt.Errorf("commit ledger tx: %w", err)
	}

	l.logger.Debug("activity logged",
		zap.Uint64("log_id", id),
		zap.String("submitter", caller),
		zap.Uint64("subject_id", subjectID),
	)
	l.emit(ctx, newEvent(EventActivityLogged, id, caller, subjectID))
	return id, nil
}

// VerifyActivity implements Ledger.
func (l *PostgresLedger) VerifyActivity(ctx context.Context, caller string, logID uint64) error {
	tx, err := l.begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	paused, _, err := readState(ctx, tx)
	if err != nil {
		return err
	}
	if paused {
		return ErrPaused
	}

	var verified bool
	err = tx.QueryRow(ctx,
		"SELECT verified FROM activity_entries WHERE log_id = $1", logID,
	).Scan(&verified)
	if errors.Is(err, pgx.ErrNoRows) {
		return fmt.Errorf("%w: log id %d", ErrNotFound, logID)
	}
	if err != nil {
		return fmt.Errorf("get ledger entry %d: %w", logID, err)
	}
	if verified {
		return fmt.Errorf("%w: log id %d", ErrAlreadyVerified, logID)
	}

	if _, err := tx.Exec(ctx,
		"UPDATE activity_entries SET verified = true, verifier = $2 WHERE log_id = $1",
		logID, caller,
	); err != nil {
		return fmt.Errorf("mark entry verified: %w", err)
	}
	if err := bumpClock(ctx, tx); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit ledger tx: %w", err)
	}

	l.emit(ctx, newEvent(EventActivityVerified, logID, caller, 0))
	return nil
}

// DisputeActivity implements Ledger.
func (l *PostgresLedger) DisputeActivity(ctx context.Context, caller string, logID uint64, notes string) error {
	tx, err := l.begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	paused, _, err := readState(ctx, tx)
	if err != nil {
		return err
	}
	if paused {
		return ErrPaused
	}

	var disputed bool
	err = tx.QueryRow(ctx,
		"SELECT disputed FROM activity_entries WHERE log_id = $1", logID,
	).Scan(&disputed)
	if errors.Is(err, pgx.ErrNoRows) {
		return fmt.Errorf("%w: log id %d", ErrNotFound, logID)
	}
	if err != nil {
		return fmt.Errorf("get ledger entry %d: %w", logID, err)
	}
	if disputed {
		return fmt.Errorf("%w: log id %d", ErrAlreadyDisputed, logID)
	}
	if err := l.cfg.checkDisputeNotes(notes); err != nil {
		return err
	}

	if _, err := tx.Exec(ctx,
		"UPDATE activity_entries SET disputed = true, dispute_notes = $2 WHERE log_id = $1",
		logID, notes,
	); err != nil {
		return fmt.Errorf("mark entry disputed: %w", err)
	}
	if err := bumpClock(ctx, tx); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit ledger tx: %w", err)
	}

	l.emit(ctx, newEvent(EventActivityDisputed, logID, caller, 0))
	return nil
}

// amendGate loads the fields shared by UpdateDescription and AddEvidence and
// applies the common authorization gate. The three rejection reasons fold
// into ErrUnauthorized, matching the external behavior of the source system.
func (l *PostgresLedger) amendGate(ctx context.Context, tx pgx.Tx, caller string, logID uint64) ([][]byte, error) {
	paused, _, err := readState(ctx, tx)
	if err != nil {
		return nil, err
	}

	var submitter string
	var verified bool
	var evidence [][]byte
	err = tx.QueryRow(ctx,
		"SELECT submitter, verified, evidence FROM activity_entries WHERE log_id = $1", logID,
	).Scan(&submitter, &verified, &evidence)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("%w: log id %d", ErrNotFound, logID)
	}
	if err != nil {
		return nil, fmt.Errorf("get ledger entry %d: %w", logID, err)
	}
	if caller != submitter || paused || verified {
		return nil, fmt.Errorf("%w: entry %d is not amendable by this caller", ErrUnauthorized, logID)
	}
	return evidence, nil
}

// UpdateDescription implements Ledger.
func (l *PostgresLedger) UpdateDescription(ctx context.Context, caller string, logID uint64, description string) error {
	tx, err := l.begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	if _, err := l.amendGate(ctx, tx, caller, logID); err != nil {
		return err
	}
	if err := l.cfg.checkDescription(description); err != nil {
		return err
	}

	if _, err := tx.Exec(ctx,
		"UPDATE activity_entries SET description = $2 WHERE log_id = $1",
		logID, description,
	); err != nil {
		return fmt.Errorf("update description: %w", err)
	}
	if err := bumpClock(ctx, tx); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

// AddEvidence implements Ledger.
func (l *PostgresLedger) AddEvidence(ctx context.Context, caller string, logID uint64, hash Hash) error {
	tx, err := l.begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	evidence, err := l.amendGate(ctx, tx, caller, logID)
	if err != nil {
		return err
	}
	if len(evidence) >= MaxEvidenceItems {
		return fmt.Errorf("%w: entry %d", ErrEvidenceFull, logID)
	}

	if _, err := tx.Exec(ctx,
		"UPDATE activity_entries SET evidence = array_append(evidence, $2) WHERE log_id = $1",
		logID, hash[:],
	); err != nil {
		return fmt.Errorf("append evidence: %w", err)
	}
	if err := bumpClock(ctx, tx); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

// SetPaused implements Ledger.
func (l *PostgresLedger) SetPaused(ctx context.Context, caller string, paused bool) error {
	if caller != l.cfg.Admin {
		return fmt.Errorf("%w: only the administrator may pause the ledger", ErrUnauthorized)
	}

	tx, err := l.begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	if _, err := tx.Exec(ctx,
		"UPDATE ledger_state SET paused = $1, clock = clock + 1 WHERE singleton", paused,
	); err != nil {
		return fmt.Errorf("set pause flag: %w", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit ledger tx: %w", err)
	}

	l.logger.Info("ledger pause switch changed", zap.Bool("paused", paused))
	return nil
}

// GetEntry implements Ledger.
func (l *PostgresLedger) GetEntry(ctx context.Context, logID uint64) (*Entry, bool, error) {
	e := &Entry{}
	var evidence [][]byte
	err := l.pool.QueryRow(ctx,
		`SELECT log_id, submitter, subject_id, activity_type, description, evidence,
		        metadata, created_at, verified, verifier, disputed, dispute_notes
		 FROM activity_entries WHERE log_id = $1`, logID,
	).Scan(
		&e.LogID, &e.Submitter, &e.SubjectID, &e.ActivityType, &e.Description, &evidence,
		&e.Metadata, &e.CreatedAt, &e.Verified, &e.Verifier, &e.Disputed, &e.DisputeNotes,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("get ledger entry %d: %w", logID, err)
	}
	e.Evidence, err = bytesToHashes(evidence)
	if err != nil {
		return nil, false, err
	}
	return e, true, nil
}

// GetBySubmitter implements Ledger.
func (l *PostgresLedger) GetBySubmitter(ctx context.Context, submitter string) ([]uint64, error) {
	return l.indexSequence(ctx, ownerKindSubmitter, submitter)
}

// GetBySubject implements Ledger.
func (l *PostgresLedger) GetBySubject(ctx context.Context, subjectID uint64) ([]uint64, error) {
	return l.indexSequence(ctx, ownerKindSubject, subjectKey(subjectID))
}

// GetTypeInfo implements Ledger.
func (l *PostgresLedger) GetTypeInfo(ctx context.Context, name string) (*TypeInfo, bool, error) {
	t := &TypeInfo{}
	err := l.pool.QueryRow(ctx,
		"SELECT name, description, active FROM activity_types WHERE name = $1", name,
	).Scan(&t.Name, &t.Description, &t.Active)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("get activity type %q: %w", name, err)
	}
	return t, true, nil
}

// IsPaused implements Ledger.
func (l *PostgresLedger) IsPaused(ctx context.Context) (bool, error) {
	var paused bool
	if err := l.pool.QueryRow(ctx,
		"SELECT paused FROM ledger_state WHERE singleton",
	).Scan(&paused); err != nil {
		return false, fmt.Errorf("read pause flag: %w", err)
	}
	return paused, nil
}

// EntryCount implements Ledger.
func (l *PostgresLedger) EntryCount(ctx context.Context) (uint64, error) {
	var n uint64
	if err := l.pool.QueryRow(ctx,
		"SELECT COALESCE(MAX(log_id), 0) FROM activity_entries",
	).Scan(&n); err != nil {
		return 0, fmt.Errorf("count ledger entries: %w", err)
	}
	return n, nil
}

// MaxEntriesPerKey implements Ledger.
func (l *PostgresLedger) MaxEntriesPerKey() int {
	return l.cfg.MaxEntriesPerKey
}

// indexCount returns the number of index rows for one owner key.
func (l *PostgresLedger) indexCount(ctx context.Context, tx pgx.Tx, kind, key string) (int, error) {
	var n int
	if err := tx.QueryRow(ctx,
		"SELECT COUNT(*) FROM activity_index WHERE owner_kind = $1 AND owner_key = $2",
		kind, key,
	).Scan(&n); err != nil {
		return 0, fmt.Errorf("count %s index rows: %w", kind, err)
	}
	return n, nil
}

// indexSequence returns the insertion-ordered log ids for one owner key.
func (l *PostgresLedger) indexSequence(ctx context.Context, kind, key string) ([]uint64, error) {
	rows, err := l.pool.Query(ctx,
		`SELECT log_id FROM activity_index
		 WHERE owner_kind = $1 AND owner_key = $2 ORDER BY position ASC`,
		kind, key,
	)
	if err != nil {
		return nil, fmt.Errorf("query %s index: %w", kind, err)
	}
	defer rows.Close()

	ids := []uint64{}
	for rows.Next() {
		var id uint64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan index row: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// subjectKey renders a subject id as an index owner key.
func subjectKey(subjectID uint64) string {
	return fmt.Sprintf("%d", subjectID)
}

// hashesToBytes converts evidence hashes to the bytea[] column format.
func hashesToBytes(hashes []Hash) [][]byte {
	out := make([][]byte, len(hashes))
	for i, h := range hashes {
		b := make([]byte, HashSize)
		copy(b, h[:])
		out[i] = b
	}
	return out
}

// bytesToHashes converts stored bytea[] values back into evidence hashes.
func bytesToHashes(raw [][]byte) ([]Hash, error) {
	out := make([]Hash, len(raw))
	for i, b := range raw {
		if len(b) != HashSize {
			return nil, fmt.Errorf("stored evidence hash has %d bytes, want %d", len(b), HashSize)
		}
		copy(out[i][:], b)
	}
	return out, nil
}
