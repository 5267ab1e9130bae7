package services

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/spf13/viper"

	"github.com/eupaygrid/backend/internal/models"
)

// SystemReserveAccountRef is the synthetic counterparty for capital entering
// the network from outside; it has no institution row.
const SystemReserveAccountRef = "EUPAYGRID_RESERVE_POOL"

// amountPrecision is the fixed fractional precision for all amounts
const amountPrecision = 6

func randomHex(n int) string {
	buf := make([]byte, n)
	if _, err := rand.Read(buf); err != nil {
		panic(err)
	}
	return hex.EncodeToString(buf)
}

// GenerateInstitutionCode produces a candidate 8-character identity code
func GenerateInstitutionCode() string {
	raw := strings.ReplaceAll(uuid.New().String(), "-", "")
	return "EUPG-" + strings.ToUpper(raw[:8])
}

// GenerateWalletAddress produces a fresh wallet address
func GenerateWalletAddress() string {
	return "wl_" + randomHex(16)
}

// GeneratePseudonymousID derives the stable pseudonymous identifier disclosed
// in place of legal identity in network-activity views.
func GeneratePseudonymousID(institutionCode string) string {
	digest := sha256.Sum256([]byte(institutionCode))
	return "INST-" + strings.ToUpper(hex.EncodeToString(digest[:])[:10])
}

// GenerateSettlementTxID produces the opaque settlement reference token
func GenerateSettlementTxID() string {
	return "simsol_" + randomHex(20)
}

// AmountBand buckets a transfer size for disclosure without the exact amount
func AmountBand(amount decimal.Decimal) string {
	switch {
	case amount.LessThan(decimal.NewFromInt(10_000)):
		return "<10k"
	case amount.LessThan(decimal.NewFromInt(100_000)):
		return "10k-100k"
	case amount.LessThan(decimal.NewFromInt(1_000_000)):
		return "100k-1m"
	default:
		return ">=1m"
	}
}

// SignedAmount converts a ledger side into the balance delta it implies:
// debit adds to the available balance, credit subtracts.
func SignedAmount(side string, amount decimal.Decimal) (decimal.Decimal, error) {
	switch side {
	case models.LedgerSideDebit:
		return amount, nil
	case models.LedgerSideCredit:
		return amount.Neg(), nil
	default:
		return decimal.Zero, fmt.Errorf("unsupported side: %s", side)
	}
}

// NormalizeAmount validates positivity and pins the fixed decimal precision
func NormalizeAmount(amount decimal.Decimal) (decimal.Decimal, error) {
	if amount.LessThanOrEqual(decimal.Zero) {
		return decimal.Zero, ValidationError("invalid_amount", "Amount must be greater than zero")
	}
	return amount.Round(amountPrecision), nil
}

// AllowedCurrencies reads the configured currency allow-list
func AllowedCurrencies() map[string]bool {
	viper.SetDefault("app.allowed_currencies", "EUR")
	allowed := make(map[string]bool)
	for _, item := range strings.Split(viper.GetString("app.allowed_currencies"), ",") {
		currency := strings.ToUpper(strings.TrimSpace(item))
		if currency != "" {
			allowed[currency] = true
		}
	}
	return allowed
}

// NormalizeCurrency upper-cases and checks the allow-list
func NormalizeCurrency(currency string, allowed map[string]bool) (string, error) {
	normalized := strings.ToUpper(strings.TrimSpace(currency))
	if normalized == "" {
		return "", ValidationError("invalid_currency", "Currency is required")
	}
	if !allowed[normalized] {
		return "", ValidationError("currency_not_allowed", fmt.Sprintf("Currency '%s' is not allowed", normalized))
	}
	return normalized, nil
}

func normalizeReason(reason, fallback string) string {
	if trimmed := strings.TrimSpace(reason); trimmed != "" {
		return trimmed
	}
	return fallback
}
