package services

import (
	"strings"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"

	"github.com/eupaygrid/backend/internal/models"
)

func TestGenerators(t *testing.T) {
	code := GenerateInstitutionCode()
	assert.True(t, strings.HasPrefix(code, "EUPG-"))
	assert.Len(t, code, len("EUPG-")+8)
	assert.Equal(t, code, strings.ToUpper(code))

	wallet := GenerateWalletAddress()
	assert.True(t, strings.HasPrefix(wallet, "wl_"))
	assert.Len(t, wallet, len("wl_")+32)

	txID := GenerateSettlementTxID()
	assert.True(t, strings.HasPrefix(txID, "simsol_"))
	assert.Len(t, txID, len("simsol_")+40)
}

func TestGeneratePseudonymousID(t *testing.T) {
	id := GeneratePseudonymousID("EUPG-AAAA1111")
	assert.True(t, strings.HasPrefix(id, "INST-"))
	assert.Len(t, id, len("INST-")+10)

	// Deterministic for the same code, distinct across codes
	assert.Equal(t, id, GeneratePseudonymousID("EUPG-AAAA1111"))
	assert.NotEqual(t, id, GeneratePseudonymousID("EUPG-BBBB2222"))
}

func TestAmountBand(t *testing.T) {
	assert.Equal(t, "<10k", AmountBand(decimal.NewFromInt(9_999)))
	assert.Equal(t, "10k-100k", AmountBand(decimal.NewFromInt(10_000)))
	assert.Equal(t, "10k-100k", AmountBand(decimal.NewFromInt(99_999)))
	assert.Equal(t, "100k-1m", AmountBand(decimal.NewFromInt(100_000)))
	assert.Equal(t, ">=1m", AmountBand(decimal.NewFromInt(1_000_000)))
}

func TestSignedAmount(t *testing.T) {
	amount := decimal.NewFromInt(100)

	delta, err := SignedAmount(models.LedgerSideDebit, amount)
	assert.NoError(t, err)
	assert.Equal(t, "100", delta.String())

	delta, err = SignedAmount(models.LedgerSideCredit, amount)
	assert.NoError(t, err)
	assert.Equal(t, "-100", delta.String())

	_, err = SignedAmount("sideways", amount)
	assert.Error(t, err)
}

func TestNormalizeAmount(t *testing.T) {
	normalized, err := NormalizeAmount(decimal.RequireFromString("10.1234567"))
	assert.NoError(t, err)
	assert.Equal(t, "10.123457", normalized.String())

	_, err = NormalizeAmount(decimal.Zero)
	assert.Error(t, err)

	_, err = NormalizeAmount(decimal.NewFromInt(-5))
	assert.Error(t, err)
}

func TestNormalizeCurrency(t *testing.T) {
	allowed := map[string]bool{"EUR": true}

	currency, err := NormalizeCurrency(" eur ", allowed)
	assert.NoError(t, err)
	assert.Equal(t, "EUR", currency)

	_, err = NormalizeCurrency("USD", allowed)
	domainErr, ok := err.(*DomainError)
	assert.True(t, ok)
	assert.Equal(t, "currency_not_allowed", domainErr.Code)

	_, err = NormalizeCurrency("", allowed)
	assert.Error(t, err)
}
