package repository

import (
	"context"
	"errors"
	"testing"

	svcerror "summershop-saga/pkg/error"
	"summershop-saga/pkg/models"
)

func paymentKey(p models.Payment) string {
	return "payment:idem:" + p.IdempotencyKey
}

func TestMemoryRepoSaveLoad(t *testing.T) {
	repo := NewMemoryRepo(paymentKey)
	ctx := context.Background()

	payment := models.Payment{Id: "p1", IdempotencyKey: "k1", AmountCents: 2500}
	if err := repo.Save(ctx, payment); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	got, err := repo.Load(ctx, "payment:idem:k1")
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if got.Id != "p1" || got.AmountCents != 2500 {
		t.Errorf("loaded %+v", got)
	}
}

func TestMemoryRepoLoadMissing(t *testing.T) {
	repo := NewMemoryRepo(paymentKey)

	if _, err := repo.Load(context.Background(), "payment:idem:nope"); !errors.Is(err, svcerror.ErrNotFound) {
		t.Errorf("expected NotFound, got %v", err)
	}
}

func TestMemoryRepoDelete(t *testing.T) {
	repo := NewMemoryRepo(paymentKey)
	ctx := context.Background()

	repo.Save(ctx, models.Payment{Id: "p1", IdempotencyKey: "k1"})
	if err := repo.Delete(ctx, "payment:idem:k1"); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}
	if err := repo.Delete(ctx, "payment:idem:k1"); !errors.Is(err, svcerror.ErrNotFound) {
		t.Errorf("expected NotFound on second delete, got %v", err)
	}
}
