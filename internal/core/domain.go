package core

import (
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

const (
	RoleAdmin      Role = "Admin"
	RoleAccountant Role = "Accountant"
)

type (
	Role string

	Date struct {
		time.Time
	}

	Taxpayer struct {
		ID      uuid.UUID
		Name    string
		CNIC    string
		Contact string
	}

	IncomeEntry struct {
		ID         uuid.UUID
		TaxpayerID uuid.UUID
		Date       Date
		Type       string
		Amount     decimal.Decimal
	}

	// TaxSlab is a persisted bracket row.
	TaxSlab struct {
		ID      int64
		Bracket TaxBracket
	}

	TaxCalculation struct {
		ID           uuid.UUID
		TaxpayerID   uuid.UUID
		TotalIncome  decimal.Decimal
		TaxAmount    decimal.Decimal
		CalculatedAt time.Time
	}

	User struct {
		ID           uuid.UUID
		Email        string
		PasswordHash string
		Role         Role
	}
)

var (
	ErrNotFound       = errors.New("not found")
	ErrConflict       = errors.New("already exists")
	ErrInvalidDate    = errors.New("invalid date")
	ErrInvalidAmount  = errors.New("invalid amount")
	ErrEmptyName      = errors.New("empty name")
	ErrEmptyCNIC      = errors.New("empty cnic")
	ErrEmptyType      = errors.New("empty income type")
	ErrInvalidRole    = errors.New("invalid role")
	ErrInvalidEmail   = errors.New("invalid email")
	ErrWeakPassword   = errors.New("password must be at least 8 characters")
	errNameTooLong    = errors.New("name too long (max 200 characters)")
	errCNICTooLong    = errors.New("cnic too long (max 20 characters)")
	errContactTooLong = errors.New("contact too long (max 50 characters)")
	errTypeTooLong    = errors.New("income type too long (max 100 characters)")
)

// ValidationError reports whether err is one of the domain validation errors.
func ValidationError(err error) bool {
	for _, target := range []error{
		ErrInvalidDate, ErrInvalidAmount, ErrEmptyName, ErrEmptyCNIC, ErrEmptyType,
		ErrInvalidRole, ErrInvalidEmail, ErrWeakPassword, ErrInvalidRate, ErrInvalidBound,
		errNameTooLong, errCNICTooLong, errContactTooLong, errTypeTooLong,
	} {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}

// NewDate creates a new Date from year, month, day
func NewDate(year, month, day int) Date {
	return Date{Time: time.Date(year, time.Month(month), day, 0, 0, 0, 0, time.UTC)}
}

// UTC returns the date with its location normalised to UTC. Times without
// an explicit zone are taken as UTC wall-clock values.
func (d Date) UTC() Date {
	if d.Location() == time.UTC {
		return d
	}
	return Date{Time: d.Time.UTC()}
}

func (d Date) Validate() error {
	if d.IsZero() {
		return ErrInvalidDate
	}
	return nil
}

func (r Role) Valid() bool {
	switch r {
	case RoleAdmin, RoleAccountant:
		return true
	}
	return false
}

func (t Taxpayer) Validate() error {
	if strings.TrimSpace(t.Name) == "" {
		return ErrEmptyName
	}
	if len(t.Name) > 200 {
		return errNameTooLong
	}
	if strings.TrimSpace(t.CNIC) == "" {
		return ErrEmptyCNIC
	}
	if len(t.CNIC) > 20 {
		return errCNICTooLong
	}
	if len(t.Contact) > 50 {
		return errContactTooLong
	}
	return nil
}

func (e IncomeEntry) Validate() error {
	if err := e.Date.Validate(); err != nil {
		return err
	}
	if strings.TrimSpace(e.Type) == "" {
		return ErrEmptyType
	}
	if len(e.Type) > 100 {
		return errTypeTooLong
	}
	if !e.Amount.IsPositive() {
		return ErrInvalidAmount
	}
	return nil
}

func (s TaxSlab) Validate() error {
	return s.Bracket.Validate()
}

// TotalIncome sums the entry amounts.
func TotalIncome(entries []IncomeEntry) decimal.Decimal {
	total := decimal.Zero
	for _, e := range entries {
		total = total.Add(e.Amount)
	}
	return total
}

// Brackets extracts the bracket table from stored slabs.
func Brackets(slabs []TaxSlab) []TaxBracket {
	out := make([]TaxBracket, len(slabs))
	for i, s := range slabs {
		out[i] = s.Bracket
	}
	return out
}

// NormalizeEmail lowercases and trims an email for lookups.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func (u User) Validate() error {
	email := NormalizeEmail(u.Email)
	at := strings.Index(email, "@")
	if at < 1 || at == len(email)-1 || strings.ContainsAny(email, " \t\r\n") {
		return ErrInvalidEmail
	}
	if !u.Role.Valid() {
		return ErrInvalidRole
	}
	return nil
}
