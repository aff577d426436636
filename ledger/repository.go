package ledger

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
)

const debtColumns = `id, user_id, name, direction, origin_direction, amount, original_amount, status, records, version, created_at, last_updated`

type repository struct {
	db *sql.DB
}

func NewRepository(db *sql.DB) *repository {
	return &repository{db: db}
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanDebt(row rowScanner) (Debt, error) {
	var (
		d       Debt
		origin  sql.NullString
		records []byte
	)
	err := row.Scan(
		&d.ID,
		&d.UserID,
		&d.Name,
		&d.direction,
		&origin,
		&d.amount,
		&d.originalAmount,
		&d.status,
		&records,
		&d.Version,
		&d.CreatedAt,
		&d.LastUpdated,
	)
	if err != nil {
		return Debt{}, err
	}
	if origin.Valid {
		d.origin = Direction(origin.String)
	}
	if err := json.Unmarshal(records, &d.records); err != nil {
		return Debt{}, fmt.Errorf("decoding records of debt %s: %w", d.ID, err)
	}
	return d, nil
}

func (r *repository) List(ctx context.Context, userID uuid.UUID) ([]Debt, error) {
	query := `SELECT ` + debtColumns + ` FROM debts WHERE user_id = $1 ORDER BY last_updated DESC`

	rows, err := r.db.QueryContext(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("querying debts: %w", err)
	}
	defer rows.Close()

	debts := make([]Debt, 0)
	for rows.Next() {
		d, err := scanDebt(rows)
		if err != nil {
			return nil, err
		}
		debts = append(debts, d)
	}

	return debts, rows.Err()
}

func (r *repository) Get(ctx context.Context, userID, debtID uuid.UUID) (Debt, error) {
	query := `SELECT ` + debtColumns + ` FROM debts WHERE id = $1 AND user_id = $2`

	d, err := scanDebt(r.db.QueryRowContext(ctx, query, debtID, userID))
	if errors.Is(err, sql.ErrNoRows) {
		return Debt{}, ErrDebtNotFound
	}
	if err != nil {
		return Debt{}, fmt.Errorf("querying debt: %w", err)
	}
	return d, nil
}

// Create stores a new debt and returns its first version.
func (r *repository) Create(ctx context.Context, d Debt) (int64, error) {
	records, err := json.Marshal(d.records)
	if err != nil {
		return 0, fmt.Errorf("encoding records: %w", err)
	}

	query := `INSERT INTO debts (` + debtColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, 1, $10, $11)
		RETURNING version`

	var version int64
	err = r.db.QueryRowContext(ctx, query,
		d.ID,
		d.UserID,
		d.Name,
		d.direction,
		nullDirection(d.origin),
		d.amount,
		d.originalAmount,
		d.status,
		records,
		d.CreatedAt,
		d.LastUpdated,
	).Scan(&version)
	if err != nil {
		return 0, fmt.Errorf("inserting debt: %w", err)
	}
	return version, nil
}

// Update writes the derived state and the record list in one statement,
// provided the stored version still equals d.Version. It returns the new
// version.
func (r *repository) Update(ctx context.Context, d Debt) (int64, error) {
	records, err := json.Marshal(d.records)
	if err != nil {
		return 0, fmt.Errorf("encoding records: %w", err)
	}

	query := `UPDATE debts
		SET name = $1, direction = $2, origin_direction = $3, amount = $4, original_amount = $5,
			status = $6, records = $7, last_updated = $8, version = version + 1
		WHERE id = $9 AND user_id = $10 AND version = $11
		RETURNING version`

	var version int64
	err = r.db.QueryRowContext(ctx, query,
		d.Name,
		d.direction,
		nullDirection(d.origin),
		d.amount,
		d.originalAmount,
		d.status,
		records,
		d.LastUpdated,
		d.ID,
		d.UserID,
		d.Version,
	).Scan(&version)
	if errors.Is(err, sql.ErrNoRows) {
		if _, err := r.Get(ctx, d.UserID, d.ID); err != nil {
			return 0, err
		}
		return 0, ErrConflict
	}
	if err != nil {
		return 0, fmt.Errorf("updating debt: %w", err)
	}
	return version, nil
}

func (r *repository) Delete(ctx context.Context, userID, debtID uuid.UUID) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM debts WHERE id = $1 AND user_id = $2`, debtID, userID)
	if err != nil {
		return fmt.Errorf("deleting debt: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrDebtNotFound
	}
	return nil
}

func nullDirection(d Direction) sql.NullString {
	return sql.NullString{String: string(d), Valid: d != ""}
}
