package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"Disparo/internal/model"
	pkgerrors "Disparo/pkg/errors"
)

type fakeUsageStore struct {
	used map[string]int
	err  error
}

func newFakeUsageStore() *fakeUsageStore {
	return &fakeUsageStore{used: make(map[string]int)}
}

func (f *fakeUsageStore) key(instanceID, day, feature string) string {
	return instanceID + "|" + day + "|" + feature
}

func (f *fakeUsageStore) IncrementIfBelow(ctx context.Context, instanceID, day, feature string, amount, ceiling int) (bool, error) {
	if f.err != nil {
		return false, f.err
	}
	k := f.key(instanceID, day, feature)
	if f.used[k]+amount > ceiling {
		return false, nil
	}
	f.used[k] += amount
	return true, nil
}

func (f *fakeUsageStore) Current(ctx context.Context, instanceID, day, feature string) (int, error) {
	if f.err != nil {
		return 0, f.err
	}
	return f.used[f.key(instanceID, day, feature)], nil
}

func newTestQuotaService(store UsageStore, ceiling int) *QuotaService {
	s := NewQuotaService(store, map[string]int{model.QuotaFeatureCampaignMessage: ceiling}, time.UTC)
	s.now = func() time.Time { return time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC) }
	return s
}

func TestQuotaReserveUpToCeiling(t *testing.T) {
	store := newFakeUsageStore()
	s := newTestQuotaService(store, 3)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		if err := s.Reserve(ctx, "inst-1", model.QuotaFeatureCampaignMessage, 1); err != nil {
			t.Fatalf("reservation %d should succeed: %v", i+1, err)
		}
	}

	err := s.Reserve(ctx, "inst-1", model.QuotaFeatureCampaignMessage, 1)
	if !errors.Is(err, pkgerrors.QuotaExceeded) {
		t.Fatalf("expected QuotaExceeded, got %v", err)
	}

	remaining, used, qerr := s.Remaining(ctx, "inst-1", model.QuotaFeatureCampaignMessage)
	if qerr != nil {
		t.Fatalf("Remaining failed: %v", qerr)
	}
	if used != 3 || remaining != 0 {
		t.Errorf("expected used=3 remaining=0, got used=%d remaining=%d", used, remaining)
	}
}

func TestQuotaIsScopedPerInstance(t *testing.T) {
	store := newFakeUsageStore()
	s := newTestQuotaService(store, 1)
	ctx := context.Background()

	if err := s.Reserve(ctx, "inst-1", model.QuotaFeatureCampaignMessage, 1); err != nil {
		t.Fatalf("first instance should reserve: %v", err)
	}
	if err := s.Reserve(ctx, "inst-2", model.QuotaFeatureCampaignMessage, 1); err != nil {
		t.Fatalf("second instance has its own counter: %v", err)
	}
}

func TestQuotaResetsOnNewDay(t *testing.T) {
	store := newFakeUsageStore()
	s := newTestQuotaService(store, 1)
	ctx := context.Background()

	if err := s.Reserve(ctx, "inst-1", model.QuotaFeatureCampaignMessage, 1); err != nil {
		t.Fatalf("reserve failed: %v", err)
	}
	if err := s.Reserve(ctx, "inst-1", model.QuotaFeatureCampaignMessage, 1); !errors.Is(err, pkgerrors.QuotaExceeded) {
		t.Fatalf("expected exhaustion, got %v", err)
	}

	// 跨到第二天，计数按新日历日展开
	s.now = func() time.Time { return time.Date(2025, 3, 11, 0, 0, 1, 0, time.UTC) }
	if err := s.Reserve(ctx, "inst-1", model.QuotaFeatureCampaignMessage, 1); err != nil {
		t.Fatalf("new day should have fresh quota: %v", err)
	}
}

func TestQuotaUnknownFeatureRejected(t *testing.T) {
	store := newFakeUsageStore()
	s := newTestQuotaService(store, 40)

	err := s.Reserve(context.Background(), "inst-1", "unknown_feature", 1)
	if !errors.Is(err, pkgerrors.QuotaExceeded) {
		t.Fatalf("unknown feature has zero ceiling, got %v", err)
	}
}

func TestQuotaStoreErrorPropagates(t *testing.T) {
	store := newFakeUsageStore()
	store.err = errors.New("connection refused")
	s := newTestQuotaService(store, 40)

	err := s.Reserve(context.Background(), "inst-1", model.QuotaFeatureCampaignMessage, 1)
	if err == nil || errors.Is(err, pkgerrors.QuotaExceeded) {
		t.Fatalf("store error must not look like exhaustion: %v", err)
	}
}
