package id_test

import (
	"strings"
	"testing"

	"github.com/xraph/matrix/id"
)

func TestConstructors(t *testing.T) {
	tests := []struct {
		name   string
		newFn  func() id.ID
		prefix string
	}{
		{"PlanLevelID", id.NewPlanLevelID, "mplan_"},
		{"PositionID", id.NewPositionID, "pos_"},
		{"EnrollmentID", id.NewEnrollmentID, "enr_"},
		{"TransactionID", id.NewTransactionID, "txn_"},
		{"WithdrawalID", id.NewWithdrawalID, "wreq_"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := tt.newFn().String()
			if !strings.HasPrefix(got, tt.prefix) {
				t.Errorf("expected prefix %q, got %q", tt.prefix, got)
			}
		})
	}
}

func TestNew(t *testing.T) {
	i := id.New(id.PrefixPosition)
	if i.IsNil() {
		t.Fatal("expected non-nil ID")
	}
	if i.Prefix() != id.PrefixPosition {
		t.Errorf("expected prefix %q, got %q", id.PrefixPosition, i.Prefix())
	}
}

func TestParseRoundTrip(t *testing.T) {
	tests := []struct {
		name    string
		newFn   func() id.ID
		parseFn func(string) (id.ID, error)
	}{
		{"PlanLevelID", id.NewPlanLevelID, id.ParsePlanLevelID},
		{"PositionID", id.NewPositionID, id.ParsePositionID},
		{"EnrollmentID", id.NewEnrollmentID, id.ParseEnrollmentID},
		{"TransactionID", id.NewTransactionID, id.ParseTransactionID},
		{"WithdrawalID", id.NewWithdrawalID, id.ParseWithdrawalID},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			original := tt.newFn()
			parsed, err := tt.parseFn(original.String())
			if err != nil {
				t.Fatalf("parse failed: %v", err)
			}
			if parsed.String() != original.String() {
				t.Errorf("round-trip mismatch: %q != %q", parsed.String(), original.String())
			}
		})
	}
}

func TestCrossTypeRejection(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		parseFn func(string) (id.ID, error)
	}{
		{"ParsePlanLevelID rejects pos_", id.NewPositionID().String(), id.ParsePlanLevelID},
		{"ParsePositionID rejects enr_", id.NewEnrollmentID().String(), id.ParsePositionID},
		{"ParseEnrollmentID rejects txn_", id.NewTransactionID().String(), id.ParseEnrollmentID},
		{"ParseTransactionID rejects wreq_", id.NewWithdrawalID().String(), id.ParseTransactionID},
		{"ParseWithdrawalID rejects mplan_", id.NewPlanLevelID().String(), id.ParseWithdrawalID},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := tt.parseFn(tt.input)
			if err == nil {
				t.Errorf("expected error for cross-type parse of %q, got nil", tt.input)
			}
		})
	}
}

func TestNilID(t *testing.T) {
	var nilID id.ID
	if !nilID.IsNil() {
		t.Error("zero-value ID should be nil")
	}
	if nilID.String() != "" {
		t.Errorf("nil ID String: got %q, want empty", nilID.String())
	}
	v, err := nilID.Value()
	if err != nil {
		t.Fatal(err)
	}
	if v != nil {
		t.Errorf("nil ID Value: got %v, want nil", v)
	}
}

func TestScan(t *testing.T) {
	original := id.NewPositionID()

	var scanned id.ID
	if err := scanned.Scan(original.String()); err != nil {
		t.Fatal(err)
	}
	if scanned.String() != original.String() {
		t.Errorf("scan mismatch: %q != %q", scanned.String(), original.String())
	}

	var fromNil id.ID
	if err := fromNil.Scan(nil); err != nil {
		t.Fatal(err)
	}
	if !fromNil.IsNil() {
		t.Error("scanning nil should produce the Nil ID")
	}

	var bad id.ID
	if err := bad.Scan(42); err == nil {
		t.Error("expected error scanning unsupported type")
	}
}

func TestTextRoundTrip(t *testing.T) {
	original := id.NewEnrollmentID()
	data, err := original.MarshalText()
	if err != nil {
		t.Fatal(err)
	}

	var decoded id.ID
	if err := decoded.UnmarshalText(data); err != nil {
		t.Fatal(err)
	}
	if decoded.String() != original.String() {
		t.Errorf("text round-trip mismatch: %q != %q", decoded.String(), original.String())
	}
}
