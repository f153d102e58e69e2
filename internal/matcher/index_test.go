package matcher

import (
	"testing"

	"ledger-reconciliation-service/internal/models"
	"ledger-reconciliation-service/internal/workflow"
)

func TestKeyIndex(t *testing.T) {
	bank := []models.BankRecord{
		bankRecord(1, jan(1), "10567", "1"),
		bankRecord(2, jan(1), "", "1"),
		bankRecord(3, jan(1), "567", "1"),
		bankRecord(4, jan(1), "7", "1"),
	}

	index := NewKeyIndex(bank, strategyA(t, 10))

	slot := index.Lookup("567")
	if len(slot) != 2 || slot[0] != 0 || slot[1] != 2 {
		t.Errorf("expected positions [0 2] under 567, got %v", slot)
	}
	if got := index.Lookup("007"); len(got) != 1 || got[0] != 3 {
		t.Errorf("expected position [3] under 007, got %v", got)
	}
	if got := index.Lookup("999"); len(got) != 0 {
		t.Errorf("expected empty lookup, got %v", got)
	}

	if got := index.Lookup("000"); len(got) != 1 || got[0] != 1 {
		t.Errorf("expected the blank reference under 000, got %v", got)
	}

	keys := index.Keys()
	if len(keys) != 3 || keys[0] != "000" || keys[1] != "007" || keys[2] != "567" {
		t.Errorf("expected sorted keys [000 007 567], got %v", keys)
	}

	stats := index.Stats()
	expected := IndexStats{Records: 4, Keys: 3, LargestSlot: 2}
	if stats != expected {
		t.Errorf("expected %+v, got %+v", expected, stats)
	}
}

func TestKeyIndexWorkflowB(t *testing.T) {
	s := workflow.MustNew(workflow.KindB, workflow.DefaultOptions())
	bank := []models.BankRecord{
		bankRecord(1, jan(1), "", "-40.99"),
		bankRecord(2, jan(1), "", "-40.10"),
		bankRecord(3, jan(1), "", "40"),
	}

	index := NewKeyIndex(bank, s)
	if got := index.Lookup("40|0"); len(got) != 2 {
		t.Errorf("expected both debits of 40 under one key, got %v", got)
	}
	if got := index.Lookup("0|40"); len(got) != 1 || got[0] != 2 {
		t.Errorf("expected the credit under its own key, got %v", got)
	}
}
