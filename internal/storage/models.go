package storage

import "database/sql"

type User struct {
	ID           string
	Email        string
	PasswordHash string
	Role         string
}

type Taxpayer struct {
	ID      string
	Name    string
	Cnic    string
	Contact string
}

type IncomeEntry struct {
	ID         string
	TaxpayerID string
	Date       string
	Type       string
	Amount     string
}

type TaxSlab struct {
	ID          int64
	FromAmount  string
	ToAmount    string
	RatePercent string
}

type TaxCalculation struct {
	ID           string
	TaxpayerID   string
	TotalIncome  string
	TaxAmount    string
	CalculatedAt string
	ExportStatus string
	ExportedAt   sql.NullString
}
