/*
ledger.go - Per-case net profit derivation

PURPOSE:
  Derives the agency's net profit on a case from its line items.
  Nothing here is stored: the figures are recomputed from the case every
  time, so a financial edit can never leave a stale total behind.

FORMULA:
  net = serviceFee + schoolCommission
      - referrerCommission - handlerCommission
      - referralDiscount - translationFee

  Absent line items are zero. The result may be negative.
*/
package commission

import "github.com/shopspring/decimal"

// NetProfit is total over any Financials value.
func NetProfit(f Financials) decimal.Decimal {
	return GrossRevenue(f).Sub(TotalPayouts(f))
}

// GrossRevenue is what the agency collects on a case.
func GrossRevenue(f Financials) decimal.Decimal {
	return f.ServiceFee.Add(f.SchoolCommission)
}

// TotalPayouts is everything the agency pays out or forgoes on a case.
func TotalPayouts(f Financials) decimal.Decimal {
	return f.ReferrerCommission.
		Add(f.HandlerCommission).
		Add(f.ReferralDiscount).
		Add(f.TranslationFee)
}

// LedgerSnapshot is the reporting view of one case's money.
type LedgerSnapshot struct {
	CaseID       CaseID
	Financials   Financials
	GrossRevenue decimal.Decimal
	TotalPayouts decimal.Decimal
	NetProfit    decimal.Decimal
}

// Snapshot derives the ledger view for c.
func Snapshot(c Case) LedgerSnapshot {
	return LedgerSnapshot{
		CaseID:       c.ID,
		Financials:   c.Financials,
		GrossRevenue: GrossRevenue(c.Financials),
		TotalPayouts: TotalPayouts(c.Financials),
		NetProfit:    NetProfit(c.Financials),
	}
}
