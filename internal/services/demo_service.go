package services

import (
	"log"
	"net/http"

	"github.com/shopspring/decimal"

	"github.com/eupaygrid/backend/internal/models"
)

// DemoService seeds a small demo network through the same code paths the
// public API uses, so seeded data obeys every invariant.
type DemoService struct {
	institutions *InstitutionService
	reserves     *ReserveService
	transfers    *TransferService
}

func NewDemoService(institutions *InstitutionService, reserves *ReserveService, transfers *TransferService) *DemoService {
	return &DemoService{
		institutions: institutions,
		reserves:     reserves,
		transfers:    transfers,
	}
}

type demoInstitution struct {
	legalName string
	cvrNumber string
	country   string
	approve   bool
	deposit   decimal.Decimal
}

// Seed onboards a demo network: four approved institutions with reserve
// capital, one left pending, and a handful of transfers including one that
// fails on purpose. Re-running skips institutions whose CVR already exists.
func (s *DemoService) Seed(actor string) (map[string]any, error) {
	seedSet := []demoInstitution{
		{"Nordic Clearing Bank A/S", "DK10020030", "DK", true, decimal.NewFromInt(5_000_000)},
		{"Baltic Settlement Group AB", "SE55678901", "SE", true, decimal.NewFromInt(2_500_000)},
		{"Hansa Payments GmbH", "DE81234567", "DE", true, decimal.NewFromInt(1_200_000)},
		{"Amstel Clearing N.V.", "NL34567890", "NL", true, decimal.NewFromInt(800_000)},
		{"Iberia Interbank S.A.", "ES67812345", "ES", false, decimal.Zero},
	}

	created := []string{}
	codes := []string{}
	for _, d := range seedSet {
		inst, err := s.institutions.CreateInstitution(models.InstitutionCreateRequest{
			LegalName: d.legalName,
			CVRNumber: d.cvrNumber,
			Country:   d.country,
			Reason:    "Demo seed",
		}, actor)
		if err != nil {
			if domainErr, ok := err.(*DomainError); ok && domainErr.Code == "cvr_exists" {
				log.Printf("[DEMO] Skipping %s: already seeded", d.legalName)
				continue
			}
			return nil, err
		}
		created = append(created, inst.InstitutionID)
		codes = append(codes, inst.InstitutionID)

		if d.approve {
			if _, err := s.institutions.SetStatus(inst.InstitutionID, models.InstitutionStatusApproved, actor, "Demo seed approval"); err != nil {
				return nil, err
			}
			if _, err := s.reserves.RecordDeposit(models.ReserveDepositRequest{
				InstitutionID: inst.InstitutionID,
				Amount:        d.deposit,
				Currency:      DefaultCurrency,
				Reference:     "DEMO-SEED-" + d.cvrNumber,
			}, actor); err != nil {
				return nil, err
			}
		}
	}

	transfers := []models.Transfer{}
	if len(codes) >= 4 {
		seedTransfers := []models.TransferCreateRequest{
			{SenderInstitutionID: codes[0], RecipientInstitutionID: codes[1], Amount: decimal.NewFromInt(250_000), Currency: DefaultCurrency, Note: "Liquidity rebalancing"},
			{SenderInstitutionID: codes[1], RecipientInstitutionID: codes[2], Amount: decimal.NewFromInt(75_000), Currency: DefaultCurrency, Note: "Correspondent settlement"},
			{SenderInstitutionID: codes[2], RecipientInstitutionID: codes[0], Amount: decimal.NewFromInt(12_500), Currency: DefaultCurrency, Note: "Intraday netting"},
			// exceeds the recipient bank's seeded reserve, fails on purpose
			{SenderInstitutionID: codes[3], RecipientInstitutionID: codes[0], Amount: decimal.NewFromInt(9_000_000), Currency: DefaultCurrency, Note: "Oversized demo transfer"},
		}
		for _, req := range seedTransfers {
			transfer, err := s.transfers.CreateTransfer(req)
			if err != nil {
				return nil, err
			}
			transfers = append(transfers, *transfer)
		}
	}

	log.Printf("[DEMO] Seeded %d institutions and %d transfers", len(created), len(transfers))
	return map[string]any{
		"institutions_created": created,
		"transfers_created":    len(transfers),
	}, nil
}

// HandleSeed serves POST /demo/seed
func (s *DemoService) HandleSeed(w http.ResponseWriter, r *http.Request) {
	result, err := s.Seed(actorFromRequest(r))
	if err != nil {
		log.Printf("[DEMO] Seed failed: %v", err)
		SendDomainError(w, err)
		return
	}
	SendJSON(w, http.StatusCreated, result)
}
