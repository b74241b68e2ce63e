package storage

import (
	"context"
	"database/sql"
)

const createUser = `-- name: CreateUser :exec
INSERT INTO users (id, email, password_hash, role) VALUES (?, ?, ?, ?)
`

type CreateUserParams struct {
	ID           string
	Email        string
	PasswordHash string
	Role         string
}

func (q *Queries) CreateUser(ctx context.Context, arg CreateUserParams) error {
	_, err := q.db.ExecContext(ctx, createUser, arg.ID, arg.Email, arg.PasswordHash, arg.Role)
	return err
}

const getUserByEmail = `-- name: GetUserByEmail :one
SELECT id, email, password_hash, role FROM users WHERE email = ? COLLATE NOCASE
`

func (q *Queries) GetUserByEmail(ctx context.Context, email string) (User, error) {
	row := q.db.QueryRowContext(ctx, getUserByEmail, email)
	var i User
	err := row.Scan(&i.ID, &i.Email, &i.PasswordHash, &i.Role)
	return i, err
}

const listTaxpayers = `-- name: ListTaxpayers :many
SELECT id, name, cnic, contact FROM taxpayers ORDER BY name, id
`

func (q *Queries) ListTaxpayers(ctx context.Context) ([]Taxpayer, error) {
	rows, err := q.db.QueryContext(ctx, listTaxpayers)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []Taxpayer
	for rows.Next() {
		var i Taxpayer
		if err := rows.Scan(&i.ID, &i.Name, &i.Cnic, &i.Contact); err != nil {
			return nil, err
		}
		items = append(items, i)
	}
	if err := rows.Close(); err != nil {
		return nil, err
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}

const getTaxpayer = `-- name: GetTaxpayer :one
SELECT id, name, cnic, contact FROM taxpayers WHERE id = ?
`

func (q *Queries) GetTaxpayer(ctx context.Context, id string) (Taxpayer, error) {
	row := q.db.QueryRowContext(ctx, getTaxpayer, id)
	var i Taxpayer
	err := row.Scan(&i.ID, &i.Name, &i.Cnic, &i.Contact)
	return i, err
}

const createTaxpayer = `-- name: CreateTaxpayer :exec
INSERT INTO taxpayers (id, name, cnic, contact) VALUES (?, ?, ?, ?)
`

type CreateTaxpayerParams struct {
	ID      string
	Name    string
	Cnic    string
	Contact string
}

func (q *Queries) CreateTaxpayer(ctx context.Context, arg CreateTaxpayerParams) error {
	_, err := q.db.ExecContext(ctx, createTaxpayer, arg.ID, arg.Name, arg.Cnic, arg.Contact)
	return err
}

const updateTaxpayer = `-- name: UpdateTaxpayer :execrows
UPDATE taxpayers SET name = ?, cnic = ?, contact = ?, updated_at = CURRENT_TIMESTAMP WHERE id = ?
`

type UpdateTaxpayerParams struct {
	Name    string
	Cnic    string
	Contact string
	ID      string
}

func (q *Queries) UpdateTaxpayer(ctx context.Context, arg UpdateTaxpayerParams) (int64, error) {
	result, err := q.db.ExecContext(ctx, updateTaxpayer, arg.Name, arg.Cnic, arg.Contact, arg.ID)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}

const deleteTaxpayer = `-- name: DeleteTaxpayer :execrows
DELETE FROM taxpayers WHERE id = ?
`

func (q *Queries) DeleteTaxpayer(ctx context.Context, id string) (int64, error) {
	result, err := q.db.ExecContext(ctx, deleteTaxpayer, id)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}

const listIncomeEntries = `-- name: ListIncomeEntries :many
SELECT id, taxpayer_id, date, type, amount FROM income_entries
WHERE taxpayer_id = ?
ORDER BY date DESC, created_at DESC, id
`

func (q *Queries) ListIncomeEntries(ctx context.Context, taxpayerID string) ([]IncomeEntry, error) {
	rows, err := q.db.QueryContext(ctx, listIncomeEntries, taxpayerID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []IncomeEntry
	for rows.Next() {
		var i IncomeEntry
		if err := rows.Scan(&i.ID, &i.TaxpayerID, &i.Date, &i.Type, &i.Amount); err != nil {
			return nil, err
		}
		items = append(items, i)
	}
	if err := rows.Close(); err != nil {
		return nil, err
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}

const getIncomeEntry = `-- name: GetIncomeEntry :one
SELECT id, taxpayer_id, date, type, amount FROM income_entries WHERE taxpayer_id = ? AND id = ?
`

type GetIncomeEntryParams struct {
	TaxpayerID string
	ID         string
}

func (q *Queries) GetIncomeEntry(ctx context.Context, arg GetIncomeEntryParams) (IncomeEntry, error) {
	row := q.db.QueryRowContext(ctx, getIncomeEntry, arg.TaxpayerID, arg.ID)
	var i IncomeEntry
	err := row.Scan(&i.ID, &i.TaxpayerID, &i.Date, &i.Type, &i.Amount)
	return i, err
}

const createIncomeEntry = `-- name: CreateIncomeEntry :exec
INSERT INTO income_entries (id, taxpayer_id, date, type, amount) VALUES (?, ?, ?, ?, ?)
`

type CreateIncomeEntryParams struct {
	ID         string
	TaxpayerID string
	Date       string
	Type       string
	Amount     string
}

func (q *Queries) CreateIncomeEntry(ctx context.Context, arg CreateIncomeEntryParams) error {
	_, err := q.db.ExecContext(ctx, createIncomeEntry, arg.ID, arg.TaxpayerID, arg.Date, arg.Type, arg.Amount)
	return err
}

const updateIncomeEntry = `-- name: UpdateIncomeEntry :execrows
UPDATE income_entries SET date = ?, type = ?, amount = ? WHERE taxpayer_id = ? AND id = ?
`

type UpdateIncomeEntryParams struct {
	Date       string
	Type       string
	Amount     string
	TaxpayerID string
	ID         string
}

func (q *Queries) UpdateIncomeEntry(ctx context.Context, arg UpdateIncomeEntryParams) (int64, error) {
	result, err := q.db.ExecContext(ctx, updateIncomeEntry, arg.Date, arg.Type, arg.Amount, arg.TaxpayerID, arg.ID)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}

const deleteIncomeEntry = `-- name: DeleteIncomeEntry :execrows
DELETE FROM income_entries WHERE taxpayer_id = ? AND id = ?
`

type DeleteIncomeEntryParams struct {
	TaxpayerID string
	ID         string
}

func (q *Queries) DeleteIncomeEntry(ctx context.Context, arg DeleteIncomeEntryParams) (int64, error) {
	result, err := q.db.ExecContext(ctx, deleteIncomeEntry, arg.TaxpayerID, arg.ID)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}

const listTaxSlabs = `-- name: ListTaxSlabs :many
SELECT id, from_amount, to_amount, rate_percent FROM tax_slabs ORDER BY id
`

func (q *Queries) ListTaxSlabs(ctx context.Context) ([]TaxSlab, error) {
	rows, err := q.db.QueryContext(ctx, listTaxSlabs)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []TaxSlab
	for rows.Next() {
		var i TaxSlab
		if err := rows.Scan(&i.ID, &i.FromAmount, &i.ToAmount, &i.RatePercent); err != nil {
			return nil, err
		}
		items = append(items, i)
	}
	if err := rows.Close(); err != nil {
		return nil, err
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}

const getTaxSlab = `-- name: GetTaxSlab :one
SELECT id, from_amount, to_amount, rate_percent FROM tax_slabs WHERE id = ?
`

func (q *Queries) GetTaxSlab(ctx context.Context, id int64) (TaxSlab, error) {
	row := q.db.QueryRowContext(ctx, getTaxSlab, id)
	var i TaxSlab
	err := row.Scan(&i.ID, &i.FromAmount, &i.ToAmount, &i.RatePercent)
	return i, err
}

const createTaxSlab = `-- name: CreateTaxSlab :one
INSERT INTO tax_slabs (from_amount, to_amount, rate_percent) VALUES (?, ?, ?)
RETURNING id, from_amount, to_amount, rate_percent
`

type CreateTaxSlabParams struct {
	FromAmount  string
	ToAmount    string
	RatePercent string
}

func (q *Queries) CreateTaxSlab(ctx context.Context, arg CreateTaxSlabParams) (TaxSlab, error) {
	row := q.db.QueryRowContext(ctx, createTaxSlab, arg.FromAmount, arg.ToAmount, arg.RatePercent)
	var i TaxSlab
	err := row.Scan(&i.ID, &i.FromAmount, &i.ToAmount, &i.RatePercent)
	return i, err
}

const updateTaxSlab = `-- name: UpdateTaxSlab :execrows
UPDATE tax_slabs SET from_amount = ?, to_amount = ?, rate_percent = ? WHERE id = ?
`

type UpdateTaxSlabParams struct {
	FromAmount  string
	ToAmount    string
	RatePercent string
	ID          int64
}

func (q *Queries) UpdateTaxSlab(ctx context.Context, arg UpdateTaxSlabParams) (int64, error) {
	result, err := q.db.ExecContext(ctx, updateTaxSlab, arg.FromAmount, arg.ToAmount, arg.RatePercent, arg.ID)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}

const deleteTaxSlab = `-- name: DeleteTaxSlab :execrows
DELETE FROM tax_slabs WHERE id = ?
`

func (q *Queries) DeleteTaxSlab(ctx context.Context, id int64) (int64, error) {
	result, err := q.db.ExecContext(ctx, deleteTaxSlab, id)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}

const createTaxCalculation = `-- name: CreateTaxCalculation :exec
INSERT INTO tax_calculations (id, taxpayer_id, total_income, tax_amount, calculated_at)
VALUES (?, ?, ?, ?, ?)
`

type CreateTaxCalculationParams struct {
	ID           string
	TaxpayerID   string
	TotalIncome  string
	TaxAmount    string
	CalculatedAt string
}

func (q *Queries) CreateTaxCalculation(ctx context.Context, arg CreateTaxCalculationParams) error {
	_, err := q.db.ExecContext(ctx, createTaxCalculation,
		arg.ID, arg.TaxpayerID, arg.TotalIncome, arg.TaxAmount, arg.CalculatedAt)
	return err
}

const getLatestTaxCalculation = `-- name: GetLatestTaxCalculation :one
SELECT id, taxpayer_id, total_income, tax_amount, calculated_at, export_status, exported_at
FROM tax_calculations
WHERE taxpayer_id = ?
ORDER BY calculated_at DESC, rowid DESC
LIMIT 1
`

func (q *Queries) GetLatestTaxCalculation(ctx context.Context, taxpayerID string) (TaxCalculation, error) {
	row := q.db.QueryRowContext(ctx, getLatestTaxCalculation, taxpayerID)
	var i TaxCalculation
	err := row.Scan(&i.ID, &i.TaxpayerID, &i.TotalIncome, &i.TaxAmount, &i.CalculatedAt, &i.ExportStatus, &i.ExportedAt)
	return i, err
}

const listTaxCalculations = `-- name: ListTaxCalculations :many
SELECT id, taxpayer_id, total_income, tax_amount, calculated_at, export_status, exported_at
FROM tax_calculations
WHERE taxpayer_id = ?
ORDER BY calculated_at DESC, rowid DESC
`

func (q *Queries) ListTaxCalculations(ctx context.Context, taxpayerID string) ([]TaxCalculation, error) {
	return q.queryCalculations(ctx, listTaxCalculations, taxpayerID)
}

const getPendingExports = `-- name: GetPendingExports :many
SELECT id, taxpayer_id, total_income, tax_amount, calculated_at, export_status, exported_at
FROM tax_calculations
WHERE export_status = 'pending'
ORDER BY calculated_at ASC, rowid ASC
LIMIT ?
`

func (q *Queries) GetPendingExports(ctx context.Context, limit int64) ([]TaxCalculation, error) {
	return q.queryCalculations(ctx, getPendingExports, limit)
}

func (q *Queries) queryCalculations(ctx context.Context, query string, args ...interface{}) ([]TaxCalculation, error) {
	rows, err := q.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []TaxCalculation
	for rows.Next() {
		var i TaxCalculation
		if err := rows.Scan(&i.ID, &i.TaxpayerID, &i.TotalIncome, &i.TaxAmount, &i.CalculatedAt, &i.ExportStatus, &i.ExportedAt); err != nil {
			return nil, err
		}
		items = append(items, i)
	}
	if err := rows.Close(); err != nil {
		return nil, err
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}

const markCalculationExported = `-- name: MarkCalculationExported :execrows
UPDATE tax_calculations SET export_status = 'exported', exported_at = ? WHERE id = ?
`

type MarkCalculationExportedParams struct {
	ExportedAt sql.NullString
	ID         string
}

func (q *Queries) MarkCalculationExported(ctx context.Context, arg MarkCalculationExportedParams) (int64, error) {
	result, err := q.db.ExecContext(ctx, markCalculationExported, arg.ExportedAt, arg.ID)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}

const markCalculationExportError = `-- name: MarkCalculationExportError :execrows
UPDATE tax_calculations SET export_status = 'error' WHERE id = ?
`

func (q *Queries) MarkCalculationExportError(ctx context.Context, id string) (int64, error) {
	result, err := q.db.ExecContext(ctx, markCalculationExportError, id)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}
