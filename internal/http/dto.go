package http

import (
	"bytes"
	"encoding/json"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"taxledger/internal/core"
	"taxledger/internal/services"
)

const dateLayout = "2006-01-02"

// money renders a decimal as a bare JSON number without float rounding.
func money(d decimal.Decimal) json.Number {
	return json.Number(d.String())
}

// amountInput accepts an amount as a JSON number or string.
type amountInput decimal.Decimal

func (a *amountInput) UnmarshalJSON(data []byte) error {
	raw := string(bytes.TrimSpace(data))
	if raw == "null" {
		return nil
	}
	raw = strings.Trim(raw, `"`)
	d, err := core.ParseAmount(raw)
	if err != nil {
		return err
	}
	*a = amountInput(d)
	return nil
}

// dateInput accepts "2006-01-02" or an RFC 3339 timestamp, kept as its UTC date.
type dateInput core.Date

func (d *dateInput) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return core.ErrInvalidDate
	}
	s = strings.TrimSpace(s)
	if t, err := time.Parse(dateLayout, s); err == nil {
		*d = dateInput(core.NewDate(t.Year(), int(t.Month()), t.Day()))
		return nil
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return core.ErrInvalidDate
	}
	t = t.UTC()
	*d = dateInput(core.NewDate(t.Year(), int(t.Month()), t.Day()))
	return nil
}

type (
	credentialsRequest struct {
		Email    string `json:"email"`
		Password string `json:"password"`
		Role     string `json:"role,omitempty"`
	}

	tokenResponse struct {
		Token string `json:"token"`
	}

	// Body ids are accepted for compatibility and ignored in favour of the path.
	taxpayerRequest struct {
		ID      *uuid.UUID `json:"id,omitempty"`
		Name    string     `json:"name"`
		CNIC    string     `json:"cnic"`
		Contact string     `json:"contact"`
	}

	taxpayerResponse struct {
		ID      uuid.UUID `json:"id"`
		Name    string    `json:"name"`
		CNIC    string    `json:"cnic"`
		Contact string    `json:"contact"`
	}

	taxpayerDetailResponse struct {
		taxpayerResponse
		IncomeEntries []incomeResponse `json:"incomeEntries"`
	}

	incomeRequest struct {
		ID         *uuid.UUID  `json:"id,omitempty"`
		TaxpayerID *uuid.UUID  `json:"taxpayerId,omitempty"`
		Date       dateInput   `json:"date"`
		Type       string      `json:"type"`
		Amount     amountInput `json:"amount"`
	}

	incomeResponse struct {
		ID         uuid.UUID   `json:"id"`
		TaxpayerID uuid.UUID   `json:"taxpayerId"`
		Date       string      `json:"date"`
		Type       string      `json:"type"`
		Amount     json.Number `json:"amount"`
	}

	slabRequest struct {
		ID          *int64           `json:"id,omitempty"`
		FromAmount  decimal.Decimal  `json:"fromAmount"`
		ToAmount    *decimal.Decimal `json:"toAmount"`
		RatePercent decimal.Decimal  `json:"ratePercent"`
	}

	slabResponse struct {
		ID          int64       `json:"id"`
		FromAmount  json.Number `json:"fromAmount"`
		ToAmount    json.Number `json:"toAmount"`
		RatePercent json.Number `json:"ratePercent"`
	}

	calculationResponse struct {
		ID           uuid.UUID   `json:"id"`
		TaxpayerID   uuid.UUID   `json:"taxpayerId"`
		TotalIncome  json.Number `json:"totalIncome"`
		TaxAmount    json.Number `json:"taxAmount"`
		CalculatedAt time.Time   `json:"calculatedAt"`
	}

	statusResponse struct {
		Status string `json:"status"`
	}
)

func (r taxpayerRequest) toDomain() core.Taxpayer {
	return core.Taxpayer{Name: r.Name, CNIC: r.CNIC, Contact: r.Contact}
}

func (r incomeRequest) toDomain(taxpayerID uuid.UUID) core.IncomeEntry {
	return core.IncomeEntry{
		TaxpayerID: taxpayerID,
		Date:       core.Date(r.Date),
		Type:       r.Type,
		Amount:     decimal.Decimal(r.Amount),
	}
}

// toBracket maps an absent or zero toAmount to an unbounded edge.
func (r slabRequest) toBracket() core.TaxBracket {
	upper := core.Unbounded()
	if r.ToAmount != nil {
		upper = core.UpperFromSentinel(*r.ToAmount)
	}
	return core.TaxBracket{Lower: r.FromAmount, Upper: upper, RatePercent: r.RatePercent}
}

func newTaxpayerResponse(t core.Taxpayer) taxpayerResponse {
	return taxpayerResponse{ID: t.ID, Name: t.Name, CNIC: t.CNIC, Contact: t.Contact}
}

func newTaxpayerDetailResponse(d services.TaxpayerDetail) taxpayerDetailResponse {
	return taxpayerDetailResponse{
		taxpayerResponse: newTaxpayerResponse(d.Taxpayer),
		IncomeEntries:    newIncomeResponses(d.Incomes),
	}
}

func newIncomeResponse(e core.IncomeEntry) incomeResponse {
	return incomeResponse{
		ID:         e.ID,
		TaxpayerID: e.TaxpayerID,
		Date:       e.Date.Format(dateLayout),
		Type:       e.Type,
		Amount:     money(e.Amount),
	}
}

func newIncomeResponses(entries []core.IncomeEntry) []incomeResponse {
	out := make([]incomeResponse, 0, len(entries))
	for _, e := range entries {
		out = append(out, newIncomeResponse(e))
	}
	return out
}

func newSlabResponse(s core.TaxSlab) slabResponse {
	return slabResponse{
		ID:          s.ID,
		FromAmount:  money(s.Bracket.Lower),
		ToAmount:    money(s.Bracket.Upper.Sentinel()),
		RatePercent: money(s.Bracket.RatePercent),
	}
}

func newCalculationResponse(c core.TaxCalculation) calculationResponse {
	return calculationResponse{
		ID:           c.ID,
		TaxpayerID:   c.TaxpayerID,
		TotalIncome:  money(c.TotalIncome),
		TaxAmount:    money(c.TaxAmount),
		CalculatedAt: c.CalculatedAt.UTC(),
	}
}
