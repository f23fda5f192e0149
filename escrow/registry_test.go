package escrow

import (
	"errors"
	"testing"
)

func TestRegistryInsertAllocatesSequentially(t *testing.T) {
	r := NewRegistry(0)
	if r.Capacity() != DefaultMaxAgreements {
		t.Fatalf("capacity = %d, want %d", r.Capacity(), DefaultMaxAgreements)
	}

	a := &Agreement{Payer: payerAddr}
	id, err := r.Insert(a)
	if err != nil {
		t.Fatalf("insert: %v", err)
	}
	if id != AgreementID(agreementIDPrefix<<32|1) {
		t.Errorf("id = %d, want prefixed counter 1", id)
	}
	if a.ID != id {
		t.Errorf("agreement not stamped: %d", a.ID)
	}
	got, ok := r.Get(id)
	if !ok || got != a {
		t.Error("stored agreement not retrievable")
	}
}

func TestRegistryCapacityBound(t *testing.T) {
	r := NewRegistry(2)
	if _, err := r.Insert(&Agreement{}); err != nil {
		t.Fatalf("insert 1: %v", err)
	}
	if _, err := r.Insert(&Agreement{}); err != nil {
		t.Fatalf("insert 2: %v", err)
	}
	if _, err := r.Insert(&Agreement{}); !errors.Is(err, ErrCapacityExceeded) {
		t.Fatalf("insert 3: err = %v, want ErrCapacityExceeded", err)
	}
	if r.Len() != 2 {
		t.Errorf("len = %d, want 2", r.Len())
	}
}

func TestRegistryMutateUnknown(t *testing.T) {
	r := NewRegistry(4)
	err := r.Mutate(99, func(a *Agreement) error { return nil })
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
}

func TestRegistryRestoreAdvancesCounter(t *testing.T) {
	r := NewRegistry(10)
	restored := &Agreement{ID: AgreementID(agreementIDPrefix<<32 | 7)}
	if err := r.restore(restored); err != nil {
		t.Fatalf("restore: %v", err)
	}

	// Fresh allocation continues after the highest restored identifier.
	id, err := r.Insert(&Agreement{})
	if err != nil {
		t.Fatalf("insert: %v", err)
	}
	if id != AgreementID(agreementIDPrefix<<32|8) {
		t.Errorf("id = %d, want counter 8", id)
	}

	t.Run("duplicate", func(t *testing.T) {
		if err := r.restore(restored); err == nil {
			t.Fatal("expected duplicate rejection")
		}
	})
	t.Run("foreign identifier", func(t *testing.T) {
		if err := r.restore(&Agreement{ID: 12345}); err == nil {
			t.Fatal("expected prefix rejection")
		}
	})
	t.Run("zero counter", func(t *testing.T) {
		if err := r.restore(&Agreement{ID: AgreementID(agreementIDPrefix << 32)}); err == nil {
			t.Fatal("expected zero counter rejection")
		}
	})
}
