package report

import (
	"bytes"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"taxledger/internal/core"
)

func TestRender(t *testing.T) {
	tp := core.Taxpayer{ID: uuid.New(), Name: "Ayesha Khan", CNIC: "35202-1234567-1", Contact: "0300-1234567"}
	calc := core.TaxCalculation{
		ID:           uuid.New(),
		TaxpayerID:   tp.ID,
		TotalIncome:  decimal.RequireFromString("150000"),
		TaxAmount:    decimal.RequireFromString("10000"),
		CalculatedAt: time.Date(2024, 6, 1, 12, 30, 0, 0, time.UTC),
	}

	out, err := NewRenderer().Render(tp, calc)
	require.NoError(t, err)
	assert.True(t, bytes.HasPrefix(out, []byte("%PDF-")), "pdf header")
	assert.Contains(t, string(bytes.TrimSpace(out[len(out)-16:])), "%%EOF")

	again, err := NewRenderer().Render(tp, calc)
	require.NoError(t, err)
	assert.Equal(t, out, again, "rendering is deterministic for a fixed calculation")
}

func TestRender_NonLatinName(t *testing.T) {
	tp := core.Taxpayer{Name: "Zoë Müller", CNIC: "1"}
	_, err := NewRenderer().Render(tp, core.TaxCalculation{CalculatedAt: time.Now()})
	assert.NoError(t, err)
}

func TestFilename(t *testing.T) {
	at := time.Date(2024, 6, 1, 9, 5, 7, 0, time.UTC)
	tests := map[string]string{
		"Ayesha":         "TaxReport_Ayesha_20240601090507.pdf",
		"Ayesha Khan":    "TaxReport_Ayesha_Khan_20240601090507.pdf",
		`a"b;c/d`:        "TaxReport_a_b_c_d_20240601090507.pdf",
		"   ":            "TaxReport_taxpayer_20240601090507.pdf",
		"Zoë":            "TaxReport_Zo_20240601090507.pdf",
		"O'Brien-Smith.": "TaxReport_O_Brien-Smith._20240601090507.pdf",
	}
	for in, want := range tests {
		assert.Equal(t, want, Filename(in, at), in)
	}

	pkt := time.FixedZone("PKT", 5*3600)
	assert.Equal(t, "TaxReport_A_20240601040507.pdf", Filename("A", time.Date(2024, 6, 1, 9, 5, 7, 0, pkt)))
}
