package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"shopfront/internal/domain"
	"shopfront/internal/security"
)

// stateChannel is the notification channel carrying ids of changed
// browser states. Every instance listens on it so in-memory stores for
// the same context converge.
const stateChannel = "browser_state_changed"

// StateRepository persists browser states in PostgreSQL. Tokens are
// sealed before they hit the table; the rest of the record is stored as
// plain columns so it stays queryable.
type StateRepository struct {
	db     *sql.DB
	tx     *TxManager
	sealer *security.Sealer

	upsertStmt *sql.Stmt
	loadStmt   *sql.Stmt
	deleteStmt *sql.Stmt
	notifyStmt *sql.Stmt
}

// NewStateRepository creates a new StateRepository with prepared statements.
// Returns an error if statement preparation fails.
func NewStateRepository(db *sql.DB, sealer *security.Sealer) (*StateRepository, error) {
	repo := &StateRepository{db: db, tx: NewTxManager(db), sealer: sealer}

	var err error
	repo.upsertStmt, err = db.Prepare(`
		INSERT INTO browser_states (id, token, role, profile, pending_product_id, pending_quantity, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (id) DO UPDATE SET
			token = EXCLUDED.token,
			role = EXCLUDED.role,
			profile = EXCLUDED.profile,
			pending_product_id = EXCLUDED.pending_product_id,
			pending_quantity = EXCLUDED.pending_quantity,
			updated_at = EXCLUDED.updated_at
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to prepare upsert statement: %w", err)
	}

	repo.loadStmt, err = db.Prepare(`
		SELECT id, token, role, profile, pending_product_id, pending_quantity, updated_at
		FROM browser_states
		WHERE id = $1
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to prepare load statement: %w", err)
	}

	repo.deleteStmt, err = db.Prepare(`DELETE FROM browser_states WHERE id = $1`)
	if err != nil {
		return nil, fmt.Errorf("failed to prepare delete statement: %w", err)
	}

	repo.notifyStmt, err = db.Prepare(`SELECT pg_notify($1, $2)`)
	if err != nil {
		return nil, fmt.Errorf("failed to prepare notify statement: %w", err)
	}

	return repo, nil
}

// Save upserts the state and notifies other instances in the same
// transaction, so a listener never observes the notification before the
// row is visible.
func (r *StateRepository) Save(ctx context.Context, state *domain.BrowserState) error {
	sealed, err := r.sealer.Seal(state.Session.Token)
	if err != nil {
		return fmt.Errorf("failed to seal token: %w", err)
	}

	var profile []byte
	if state.Session.Profile != nil {
		profile, err = json.Marshal(state.Session.Profile)
		if err != nil {
			return fmt.Errorf("failed to encode profile: %w", err)
		}
	}

	var productID sql.NullInt64
	var quantity sql.NullInt32
	if state.Intent != nil {
		productID = sql.NullInt64{Int64: state.Intent.ProductID, Valid: true}
		quantity = sql.NullInt32{Int32: int32(state.Intent.Quantity), Valid: true}
	}

	state.UpdatedAt = time.Now().UTC()

	return r.tx.WithTx(ctx, func(tx *sql.Tx) error {
		_, err := tx.StmtContext(ctx, r.upsertStmt).ExecContext(ctx,
			state.ID,
			sealed,
			string(state.Session.Role),
			profile,
			productID,
			quantity,
			state.UpdatedAt,
		)
		if err != nil {
			return fmt.Errorf("failed to save browser state: %w", err)
		}

		_, err = tx.StmtContext(ctx, r.notifyStmt).ExecContext(ctx, stateChannel, state.ID)
		if err != nil {
			return fmt.Errorf("failed to notify state change: %w", err)
		}
		return nil
	})
}

func (r *StateRepository) Load(ctx context.Context, id string) (*domain.BrowserState, error) {
	var (
		state     domain.BrowserState
		sealed    string
		role      string
		profile   []byte
		productID sql.NullInt64
		quantity  sql.NullInt32
	)

	err := r.loadStmt.QueryRowContext(ctx, id).Scan(
		&state.ID,
		&sealed,
		&role,
		&profile,
		&productID,
		&quantity,
		&state.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, domain.ErrStateNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load browser state: %w", err)
	}

	token, err := r.sealer.Unseal(sealed)
	if err != nil {
		return nil, fmt.Errorf("failed to unseal token: %w", err)
	}
	state.Session.Token = token
	state.Session.Role = domain.Role(role)

	if len(profile) > 0 {
		state.Session.Profile = &domain.Profile{}
		if err := json.Unmarshal(profile, state.Session.Profile); err != nil {
			return nil, fmt.Errorf("failed to decode profile: %w", err)
		}
	}

	if productID.Valid && quantity.Valid {
		state.Intent = &domain.DeferredIntent{
			ProductID: productID.Int64,
			Quantity:  int(quantity.Int32),
		}
	}

	return &state, nil
}

// Delete removes the row and notifies, so listeners on other instances
// drop their in-memory copy too.
func (r *StateRepository) Delete(ctx context.Context, id string) error {
	return r.tx.WithTx(ctx, func(tx *sql.Tx) error {
		_, err := tx.StmtContext(ctx, r.deleteStmt).ExecContext(ctx, id)
		if err != nil {
			return fmt.Errorf("failed to delete browser state: %w", err)
		}

		_, err = tx.StmtContext(ctx, r.notifyStmt).ExecContext(ctx, stateChannel, id)
		if err != nil {
			return fmt.Errorf("failed to notify state change: %w", err)
		}
		return nil
	})
}

// Close releases the prepared statements.
func (r *StateRepository) Close() error {
	var firstErr error
	for _, stmt := range []*sql.Stmt{r.upsertStmt, r.loadStmt, r.deleteStmt, r.notifyStmt} {
		if stmt == nil {
			continue
		}
		if err := stmt.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
