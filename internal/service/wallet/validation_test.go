package wallet

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/mikiyas-z/bingo-wallet/internal/config"
	"github.com/mikiyas-z/bingo-wallet/internal/domain"
)

func newServiceWithConfig() *Service {
	return &Service{
		config: &config.Config{
			TransferMin: 3000,
			TransferMax: 200000,
			WithdrawMin: 3000,
			WithdrawMax: 200000,
			DepositMin:  1000,
			DepositMax:  2000000,
		},
	}
}

func TestValidateWithdraw(t *testing.T) {
	svc := newServiceWithConfig()

	tests := []struct {
		name    string
		req     WithdrawRequest
		wantErr error
	}{
		{
			name: "valid",
			req:  WithdrawRequest{ChatID: 1, Amount: 5000, Method: "telebirr", AccountNumber: "0911000000"},
		},
		{
			name:    "amount zero",
			req:     WithdrawRequest{ChatID: 1, Amount: 0, Method: "telebirr", AccountNumber: "0911000000"},
			wantErr: domain.ErrInvalidAmount,
		},
		{
			name:    "amount negative",
			req:     WithdrawRequest{ChatID: 1, Amount: -100, Method: "telebirr", AccountNumber: "0911000000"},
			wantErr: domain.ErrInvalidAmount,
		},
		{
			name:    "below minimum",
			req:     WithdrawRequest{ChatID: 1, Amount: 2999, Method: "telebirr", AccountNumber: "0911000000"},
			wantErr: domain.ErrAmountOutOfRange,
		},
		{
			name: "at minimum is allowed",
			req:  WithdrawRequest{ChatID: 1, Amount: 3000, Method: "telebirr", AccountNumber: "0911000000"},
		},
		{
			name:    "above maximum",
			req:     WithdrawRequest{ChatID: 1, Amount: 200001, Method: "telebirr", AccountNumber: "0911000000"},
			wantErr: domain.ErrAmountOutOfRange,
		},
		{
			name: "at maximum is allowed",
			req:  WithdrawRequest{ChatID: 1, Amount: 200000, Method: "telebirr", AccountNumber: "0911000000"},
		},
		{
			name:    "missing account number",
			req:     WithdrawRequest{ChatID: 1, Amount: 5000, Method: "telebirr"},
			wantErr: domain.ErrInvalidRequest,
		},
		{
			name:    "missing method",
			req:     WithdrawRequest{ChatID: 1, Amount: 5000, AccountNumber: "0911000000"},
			wantErr: domain.ErrInvalidRequest,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			err := svc.validateWithdraw(tc.req)
			if tc.wantErr == nil {
				require.NoError(t, err)
			} else {
				require.ErrorIs(t, err, tc.wantErr)
			}
		})
	}
}

func TestValidateDeposit(t *testing.T) {
	svc := newServiceWithConfig()

	tests := []struct {
		name    string
		amount  int64
		wantErr error
	}{
		{name: "valid", amount: 5000},
		{name: "zero", amount: 0, wantErr: domain.ErrInvalidAmount},
		{name: "negative", amount: -1, wantErr: domain.ErrInvalidAmount},
		{name: "below minimum", amount: 999, wantErr: domain.ErrAmountOutOfRange},
		{name: "at minimum", amount: 1000},
		{name: "above maximum", amount: 2000001, wantErr: domain.ErrAmountOutOfRange},
		{name: "at maximum", amount: 2000000},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			err := svc.validateDeposit(tc.amount)
			if tc.wantErr == nil {
				require.NoError(t, err)
			} else {
				require.ErrorIs(t, err, tc.wantErr)
			}
		})
	}
}

func TestNewTransactionID(t *testing.T) {
	seen := make(map[string]bool)
	for range 100 {
		id := newTransactionID()
		require.Len(t, id, 9)
		for _, c := range id {
			require.True(t, c >= '0' && c <= '9', "digit expected, got %c", c)
		}
		seen[id] = true
	}
	// 100 draws from a billion ids should essentially never collide.
	require.Greater(t, len(seen), 95)
}
