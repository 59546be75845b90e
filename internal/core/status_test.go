package core

import (
	"errors"
	"strings"
	"testing"
)

func TestNormalizeStatus(t *testing.T) {
	cases := []struct {
		raw     string
		want    Status
		wantErr bool
	}{
		{"ISSUED", StatusIssued, false},
		{"MANUFACTURING", StatusManufacturing, false},
		{"OCEAN", StatusOcean, false},
		{"WAREHOUSE", StatusWarehouse, false},
		{"SHIPPED", StatusShipped, false},
		{"CLOSED", StatusClosed, false},
		{"RFQ", StatusIssued, false},
		{"REJECTED", StatusClosed, false},
		{"CANCELLED", StatusClosed, false},
		{"DRAFT", "", true},
		{"", "", true},
	}
	for _, tc := range cases {
		got, err := NormalizeStatus(tc.raw)
		if tc.wantErr {
			if err == nil {
				t.Errorf("NormalizeStatus(%q): expected error, got %q", tc.raw, got)
			}
			continue
		}
		if err != nil {
			t.Errorf("NormalizeStatus(%q): %v", tc.raw, err)
			continue
		}
		if got != tc.want {
			t.Errorf("NormalizeStatus(%q) = %q, want %q", tc.raw, got, tc.want)
		}
	}
}

func TestCanTransition(t *testing.T) {
	legal := []struct{ from, to Status }{
		{StatusIssued, StatusManufacturing},
		{StatusIssued, StatusClosed},
		{StatusManufacturing, StatusOcean},
		{StatusManufacturing, StatusClosed},
		{StatusOcean, StatusWarehouse},
		{StatusOcean, StatusClosed},
		{StatusWarehouse, StatusShipped},
		{StatusWarehouse, StatusClosed},
	}
	for _, tc := range legal {
		if !CanTransition(tc.from, tc.to) {
			t.Errorf("CanTransition(%s, %s) = false, want true", tc.from, tc.to)
		}
	}

	illegal := []struct{ from, to Status }{
		{StatusIssued, StatusOcean},
		{StatusIssued, StatusWarehouse},
		{StatusManufacturing, StatusIssued},
		{StatusManufacturing, StatusWarehouse},
		{StatusOcean, StatusManufacturing},
		{StatusWarehouse, StatusOcean},
		{StatusShipped, StatusClosed},
		{StatusClosed, StatusIssued},
		{StatusClosed, StatusClosed},
	}
	for _, tc := range illegal {
		if CanTransition(tc.from, tc.to) {
			t.Errorf("CanTransition(%s, %s) = true, want false", tc.from, tc.to)
		}
	}
}

func TestLegalNextStatuses(t *testing.T) {
	if got := LegalNextStatuses(StatusWarehouse); len(got) != 2 || got[0] != StatusShipped || got[1] != StatusClosed {
		t.Errorf("LegalNextStatuses(WAREHOUSE) = %v", got)
	}
	if got := LegalNextStatuses(StatusClosed); got != nil {
		t.Errorf("LegalNextStatuses(CLOSED) = %v, want nil", got)
	}
	if got := LegalNextStatuses(StatusShipped); got != nil {
		t.Errorf("LegalNextStatuses(SHIPPED) = %v, want nil", got)
	}
}

func TestIsTerminal(t *testing.T) {
	for _, s := range []Status{StatusIssued, StatusManufacturing, StatusOcean, StatusWarehouse} {
		if s.IsTerminal() {
			t.Errorf("%s.IsTerminal() = true", s)
		}
	}
	for _, s := range []Status{StatusShipped, StatusClosed} {
		if !s.IsTerminal() {
			t.Errorf("%s.IsTerminal() = false", s)
		}
	}
}

func TestIllegalTransitionError(t *testing.T) {
	err := illegalTransitionError(StatusIssued, StatusWarehouse)
	if err == nil {
		t.Fatal("expected error")
	}
	var ve *ValidationError
	if !errors.As(err, &ve) {
		t.Fatalf("expected ValidationError, got %T", err)
	}
	msg := err.Error()
	if !strings.Contains(msg, "MANUFACTURING") || !strings.Contains(msg, "CLOSED") {
		t.Errorf("error should list legal next statuses, got %q", msg)
	}

	err = illegalTransitionError(StatusClosed, StatusIssued)
	if !strings.Contains(err.Error(), "terminal") {
		t.Errorf("terminal-origin error should say so, got %q", err.Error())
	}
}
