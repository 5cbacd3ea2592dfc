package commission_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/commission-engine/commission"
)

func validProfile() commission.PayeeProfile {
	confirmed := time.Date(2025, time.January, 5, 0, 0, 0, 0, time.UTC)
	return commission.PayeeProfile{
		PayeeID:       "agent-1",
		Role:          commission.RoleAgent,
		DisplayName:   "Dana Levi",
		BankName:      "Hapoalim",
		BankBranch:    "612",
		AccountNumber: "123456",
		ConfirmedAt:   &confirmed,
	}
}

func TestBankDetailsValidator_Valid(t *testing.T) {
	v := commission.NewBankDetailsValidator()
	assert.NoError(t, v.Validate(validProfile()))
}

func TestBankDetailsValidator_Boundaries(t *testing.T) {
	v := commission.NewBankDetailsValidator()

	tests := []struct {
		name    string
		mutate  func(p *commission.PayeeProfile)
		wantErr error
		field   string
	}{
		{"branch 2 digits ok", func(p *commission.PayeeProfile) { p.BankBranch = "12" }, nil, ""},
		{"branch 4 digits ok", func(p *commission.PayeeProfile) { p.BankBranch = "1234" }, nil, ""},
		{"branch 1 digit", func(p *commission.PayeeProfile) { p.BankBranch = "1" }, commission.ErrInvalidBankDetails, "bank_branch"},
		{"branch 5 digits", func(p *commission.PayeeProfile) { p.BankBranch = "12345" }, commission.ErrInvalidBankDetails, "bank_branch"},
		{"branch letters", func(p *commission.PayeeProfile) { p.BankBranch = "1a" }, commission.ErrInvalidBankDetails, "bank_branch"},
		{"account 4 digits ok", func(p *commission.PayeeProfile) { p.AccountNumber = "1234" }, nil, ""},
		{"account 12 digits ok", func(p *commission.PayeeProfile) { p.AccountNumber = "123456789012" }, nil, ""},
		{"account 3 digits", func(p *commission.PayeeProfile) { p.AccountNumber = "123" }, commission.ErrInvalidBankDetails, "account_number"},
		{"account 13 digits", func(p *commission.PayeeProfile) { p.AccountNumber = "1234567890123" }, commission.ErrInvalidBankDetails, "account_number"},
		{"account with dash", func(p *commission.PayeeProfile) { p.AccountNumber = "1234-56" }, commission.ErrInvalidBankDetails, "account_number"},
		{"blank bank name", func(p *commission.PayeeProfile) { p.BankName = "   " }, commission.ErrMissingBankDetails, "bank_name"},
		{"missing branch", func(p *commission.PayeeProfile) { p.BankBranch = "" }, commission.ErrMissingBankDetails, "bank_branch"},
		{"not confirmed", func(p *commission.PayeeProfile) { p.ConfirmedAt = nil }, commission.ErrMissingBankDetails, "confirmed_at"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := validProfile()
			tt.mutate(&p)

			err := v.Validate(p)

			if tt.wantErr == nil {
				assert.NoError(t, err)
				return
			}
			require.ErrorIs(t, err, tt.wantErr)
			var bde *commission.BankDetailsError
			require.ErrorAs(t, err, &bde)
			assert.Contains(t, bde.Fields, tt.field)
		})
	}
}

func TestBankDetailsValidator_MissingWinsOverInvalid(t *testing.T) {
	v := commission.NewBankDetailsValidator()
	p := validProfile()
	p.BankBranch = "9"
	p.AccountNumber = ""

	err := v.Validate(p)

	assert.ErrorIs(t, err, commission.ErrMissingBankDetails)
	var bde *commission.BankDetailsError
	require.ErrorAs(t, err, &bde)
	assert.ElementsMatch(t, []string{"bank_branch", "account_number"}, bde.Fields)
}
