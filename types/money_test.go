package types

import (
	"encoding/json"
	"testing"
)

func TestMoneyConstructors(t *testing.T) {
	tests := []struct {
		name     string
		money    Money
		amount   int64
		currency string
		display  string
	}{
		{"USD", USD(2500), 2500, "usd", "$25.00"},
		{"EUR", EUR(9900), 9900, "eur", "€99.00"},
		{"GBP", GBP(1250), 1250, "gbp", "£12.50"},
		{"Zero USD", Zero("USD"), 0, "usd", "$0.00"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.money.Amount != tt.amount {
				t.Errorf("Amount: got %d, want %d", tt.money.Amount, tt.amount)
			}
			if tt.money.Currency != tt.currency {
				t.Errorf("Currency: got %s, want %s", tt.money.Currency, tt.currency)
			}
			if tt.money.String() != tt.display {
				t.Errorf("Display: got %s, want %s", tt.money.String(), tt.display)
			}
		})
	}
}

func TestMoneyArithmetic(t *testing.T) {
	tests := []struct {
		name     string
		op       func() Money
		expected Money
	}{
		{"Add", func() Money { return USD(100).Add(USD(200)) }, USD(300)},
		{"Subtract", func() Money { return USD(500).Subtract(USD(200)) }, USD(300)},
		{"Multiply", func() Money { return USD(100).Multiply(3) }, USD(300)},
		{"Sum", func() Money { return Sum(USD(100), USD(200), USD(300)) }, USD(600)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.op(); !got.Equal(tt.expected) {
				t.Errorf("got %v, want %v", got, tt.expected)
			}
		})
	}
}

func TestMoneySplit(t *testing.T) {
	tests := []struct {
		name     string
		amount   Money
		percent  int
		withheld int64
		payable  int64
	}{
		{"zero percent", USD(1000), 0, 0, 1000},
		{"full percent", USD(1000), 100, 1000, 0},
		{"ten percent", USD(1000), 10, 100, 900},
		{"rounds half up", USD(105), 10, 11, 94}, // 10.5 -> 11
		{"rounds down below half", USD(104), 10, 10, 94},
		{"one cent", USD(1), 10, 0, 1},
		{"odd split", USD(333), 33, 110, 223},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			withheld, payable := tt.amount.Split(tt.percent)
			if withheld.Amount != tt.withheld {
				t.Errorf("withheld: got %d, want %d", withheld.Amount, tt.withheld)
			}
			if payable.Amount != tt.payable {
				t.Errorf("payable: got %d, want %d", payable.Amount, tt.payable)
			}
			// Conservation must be exact for every split.
			if withheld.Amount+payable.Amount != tt.amount.Amount {
				t.Errorf("split leaks money: %d + %d != %d",
					withheld.Amount, payable.Amount, tt.amount.Amount)
			}
		})
	}
}

func TestMoneySplitConservation(t *testing.T) {
	// Exhaustively check conservation over a range of amounts and percents.
	for amount := int64(0); amount < 500; amount++ {
		for percent := 0; percent <= 100; percent += 7 {
			withheld, payable := USD(amount).Split(percent)
			if withheld.Amount+payable.Amount != amount {
				t.Fatalf("amount=%d percent=%d: %d + %d != %d",
					amount, percent, withheld.Amount, payable.Amount, amount)
			}
			if withheld.Amount < 0 || payable.Amount < 0 {
				t.Fatalf("amount=%d percent=%d: negative component", amount, percent)
			}
		}
	}
}

func TestMoneySplitPanicsOutOfRange(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Error("expected panic for percent > 100")
		}
	}()
	USD(100).Split(101)
}

func TestMoneyCurrencyMismatchPanics(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Error("expected panic for currency mismatch")
		}
	}()
	USD(100).Add(EUR(100))
}

func TestMoneyJSONRoundTrip(t *testing.T) {
	original := USD(4275)
	data, err := json.Marshal(original)
	if err != nil {
		t.Fatal(err)
	}

	var decoded Money
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatal(err)
	}
	if !decoded.Equal(original) {
		t.Errorf("round trip: got %v, want %v", decoded, original)
	}
}

func TestMoneyComparisons(t *testing.T) {
	if !USD(100).LessThan(USD(200)) {
		t.Error("100 should be less than 200")
	}
	if !USD(200).GreaterThan(USD(100)) {
		t.Error("200 should be greater than 100")
	}
	if !USD(0).IsZero() || USD(1).IsZero() {
		t.Error("IsZero misbehaves")
	}
	if !USD(1).IsPositive() || USD(-1).IsPositive() {
		t.Error("IsPositive misbehaves")
	}
	if !USD(-1).IsNegative() {
		t.Error("IsNegative misbehaves")
	}
}
