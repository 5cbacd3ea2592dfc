package commission_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/commission-engine/commission"
)

func TestNetProfit_AllLineItems(t *testing.T) {
	f := commission.Financials{
		ServiceFee:         commission.NewMoney(1000),
		SchoolCommission:   commission.NewMoney(200),
		ReferrerCommission: commission.NewMoney(150),
		HandlerCommission:  commission.NewMoney(100),
		ReferralDiscount:   commission.NewMoney(50),
		TranslationFee:     commission.NewMoney(25),
	}

	assert.True(t, commission.NetProfit(f).Equal(commission.NewMoney(875)),
		"got %s", commission.NetProfit(f))
}

func TestNetProfit_AbsentFieldsAreZero(t *testing.T) {
	assert.True(t, commission.NetProfit(commission.Financials{}).IsZero())

	f := commission.Financials{ServiceFee: commission.MustParseMoney("499.50")}
	assert.Equal(t, "499.5", commission.NetProfit(f).String())
}

func TestNetProfit_CanBeNegative(t *testing.T) {
	f := commission.Financials{
		ServiceFee:        commission.NewMoney(100),
		HandlerCommission: commission.NewMoney(300),
	}
	assert.True(t, commission.NetProfit(f).Equal(commission.NewMoney(-200)))
}

func TestSnapshot_ReportsGrossAndPayouts(t *testing.T) {
	c := commission.Case{ID: "case-1", Financials: commission.Financials{
		ServiceFee:         commission.NewMoney(1000),
		SchoolCommission:   commission.NewMoney(200),
		ReferrerCommission: commission.NewMoney(150),
		TranslationFee:     commission.NewMoney(25),
	}}

	snap := commission.Snapshot(c)

	assert.Equal(t, commission.CaseID("case-1"), snap.CaseID)
	assert.True(t, snap.GrossRevenue.Equal(commission.NewMoney(1200)))
	assert.True(t, snap.TotalPayouts.Equal(commission.NewMoney(175)))
	assert.True(t, snap.NetProfit.Equal(commission.NewMoney(1025)))
}

func TestFinancials_ValidateRejectsNegative(t *testing.T) {
	f := commission.Financials{ReferralDiscount: commission.NewMoney(-1)}

	err := f.Validate()

	require.Error(t, err)
	assert.ErrorIs(t, err, commission.ErrInvalidAmount)
	assert.Contains(t, err.Error(), "referral_discount")
}

func TestMustParseMoney(t *testing.T) {
	assert.True(t, commission.MustParseMoney("450.75").Equal(commission.NewMoney(45075).Shift(-2)))
	assert.Panics(t, func() { commission.MustParseMoney("12,50") })
	assert.Panics(t, func() { commission.MustParseMoney("") })
}
