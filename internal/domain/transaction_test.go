package domain

import "testing"

func TestDisplayAmount(t *testing.T) {
	toCard := TransferDirectionToCard
	toAccount := TransferDirectionToAccount

	tests := []struct {
		name string
		tx   Transaction
		want int64
	}{
		{
			name: "deposit stays positive",
			tx:   Transaction{Kind: TransactionKindDeposit, Amount: 1000},
			want: 1000,
		},
		{
			name: "withdrawal stays positive",
			tx:   Transaction{Kind: TransactionKindWithdraw, Amount: 500},
			want: 500,
		},
		{
			name: "transfer to card stays positive",
			tx:   Transaction{Kind: TransactionKindCardTransfer, Amount: 300, Direction: &toCard},
			want: 300,
		},
		{
			name: "transfer back to account renders negative",
			tx:   Transaction{Kind: TransactionKindCardTransfer, Amount: 300, Direction: &toAccount},
			want: -300,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.tx.DisplayAmount(); got != tt.want {
				t.Fatalf("expected %d, got %d", tt.want, got)
			}
		})
	}
}

func TestHasActiveCard(t *testing.T) {
	var acct Account
	if acct.HasActiveCard() {
		t.Fatal("expected no active card on a fresh account")
	}

	activated := acct.CreatedAt
	acct.CardActivatedAt = &activated
	if !acct.HasActiveCard() {
		t.Fatal("expected active card once activation is stamped")
	}
}
