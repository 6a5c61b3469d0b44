package service

import (
	"context"
	"math"
	"testing"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/Djju69/KARMABOT1-sub001/internal/apperr"
	"github.com/Djju69/KARMABOT1-sub001/internal/model"
)

func newActivityFixture() (*memStore, *ActivityService) {
	store := newMemStore()
	ledger := NewLedgerService(store)
	svc := NewActivityService(store, ledger, testLoyaltyConfig())
	return store, svc
}

func TestRecordActivity_UnknownAndInactive(t *testing.T) {
	store, svc := newActivityFixture()
	ctx := context.Background()

	_, err := svc.RecordActivity(ctx, 1, "planking", nil)
	if !apperr.IsKind(err, apperr.Validation) {
		t.Errorf("unknown activity: expected validation error, got %v", err)
	}

	store.rules["planking"] = model.ActivityRule{ActivityType: "planking", Points: 5, IsActive: false}
	_, err = svc.RecordActivity(ctx, 1, "planking", nil)
	if !apperr.IsKind(err, apperr.Validation) {
		t.Errorf("inactive activity: expected validation error, got %v", err)
	}
}

func TestRecordActivity_Cooldown(t *testing.T) {
	store, svc := newActivityFixture()
	ctx := context.Background()

	store.rules[model.ActivityDailyCheckin] = model.ActivityRule{
		ActivityType: model.ActivityDailyCheckin, Points: 5, CooldownHours: 24, IsActive: true,
	}

	base := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	clock := base
	store.now = func() time.Time { return clock }
	svc.now = func() time.Time { return clock }

	if _, err := svc.RecordActivity(ctx, 1, model.ActivityDailyCheckin, nil); err != nil {
		t.Fatalf("first check-in: %v", err)
	}

	// Second attempt 2 hours later must hit the cooldown.
	clock = base.Add(2 * time.Hour)
	_, err := svc.RecordActivity(ctx, 1, model.ActivityDailyCheckin, nil)
	if !apperr.IsKind(err, apperr.Validation) {
		t.Fatalf("expected cooldown rejection, got %v", err)
	}

	// After the full cooldown it passes again.
	clock = base.Add(25 * time.Hour)
	if _, err := svc.RecordActivity(ctx, 1, model.ActivityDailyCheckin, nil); err != nil {
		t.Fatalf("check-in after cooldown: %v", err)
	}

	balance, _ := NewLedgerService(store).GetBalance(ctx, 1)
	if balance.TotalPoints != 10 {
		t.Errorf("expected 10 points after two check-ins, got %v", balance.TotalPoints)
	}
}

func TestRecordActivity_DailyCap(t *testing.T) {
	store, svc := newActivityFixture()
	ctx := context.Background()

	dailyCap := 3
	store.rules["quiz"] = model.ActivityRule{
		ActivityType: "quiz", Points: 2, DailyCap: &dailyCap, IsActive: true,
	}

	for i := 0; i < 3; i++ {
		if _, err := svc.RecordActivity(ctx, 1, "quiz", nil); err != nil {
			t.Fatalf("attempt %d: %v", i+1, err)
		}
	}

	_, err := svc.RecordActivity(ctx, 1, "quiz", nil)
	if !apperr.IsKind(err, apperr.Validation) {
		t.Fatalf("expected daily cap rejection, got %v", err)
	}

	// The cap is per account.
	if _, err := svc.RecordActivity(ctx, 2, "quiz", nil); err != nil {
		t.Fatalf("other account must not share the cap: %v", err)
	}
}

// gateOrderStore records the order of the crediting-path calls.
type gateOrderStore struct {
	*memStore
	calls []string
}

func (s *gateOrderStore) LockBalance(ctx context.Context, tx *sqlx.Tx, accountID int64) (*model.Balance, error) {
	s.calls = append(s.calls, "lock_balance")
	return s.memStore.LockBalance(ctx, tx, accountID)
}

func (s *gateOrderStore) LastActivityAt(ctx context.Context, q sqlx.ExtContext, accountID int64, activityType string) (*time.Time, error) {
	s.calls = append(s.calls, "last_activity")
	return s.memStore.LastActivityAt(ctx, q, accountID, activityType)
}

func (s *gateOrderStore) CountActivitiesSince(ctx context.Context, q sqlx.ExtContext, accountID int64, activityType string, since time.Time) (int, error) {
	s.calls = append(s.calls, "count_activities")
	return s.memStore.CountActivitiesSince(ctx, q, accountID, activityType, since)
}

// Concurrent crediting for one account must serialize on the balance row
// lock, so the lock has to be taken before the cooldown and cap reads.
func TestRecordActivity_LocksBalanceBeforeGates(t *testing.T) {
	store := &gateOrderStore{memStore: newMemStore()}
	ledger := NewLedgerService(store.memStore)
	svc := NewActivityService(store, ledger, testLoyaltyConfig())
	ctx := context.Background()

	dailyCap := 1
	store.rules[model.ActivityDailyCheckin] = model.ActivityRule{
		ActivityType: model.ActivityDailyCheckin, Points: 5, CooldownHours: 24, DailyCap: &dailyCap, IsActive: true,
	}

	if _, err := svc.RecordActivity(ctx, 1, model.ActivityDailyCheckin, nil); err != nil {
		t.Fatalf("record activity: %v", err)
	}

	want := []string{"lock_balance", "last_activity", "count_activities"}
	if len(store.calls) != len(want) {
		t.Fatalf("expected calls %v, got %v", want, store.calls)
	}
	for i, c := range want {
		if store.calls[i] != c {
			t.Fatalf("call %d: expected %s, got %s (order %v)", i, c, store.calls[i], store.calls)
		}
	}
}

func TestRecordActivity_GeoGate(t *testing.T) {
	store, svc := newActivityFixture()
	ctx := context.Background()

	store.rules[model.ActivityGeoCheckin] = model.ActivityRule{
		ActivityType: model.ActivityGeoCheckin, Points: 10, IsActive: true,
	}
	store.partners[1] = model.Partner{ID: 1, Name: "Кафе", Lat: 10.7769, Lon: 106.7009, IsActive: true}
	store.partners[2] = model.Partner{ID: 2, Name: "Закрыто", Lat: 10.7769, Lon: 106.7009, IsActive: false}

	pid := int64(1)
	lat, lon := 10.7769, 106.7009
	if _, err := svc.RecordActivity(ctx, 1, model.ActivityGeoCheckin, &model.ActivityContext{
		Lat: &lat, Lon: &lon, PartnerID: &pid,
	}); err != nil {
		t.Fatalf("on the spot: %v", err)
	}

	// ~1.1 km away, far outside the 100 m default radius.
	farLat := 10.7869
	_, err := svc.RecordActivity(ctx, 2, model.ActivityGeoCheckin, &model.ActivityContext{
		Lat: &farLat, Lon: &lon, PartnerID: &pid,
	})
	if !apperr.IsKind(err, apperr.Validation) {
		t.Errorf("expected distance rejection, got %v", err)
	}

	missing := int64(99)
	_, err = svc.RecordActivity(ctx, 2, model.ActivityGeoCheckin, &model.ActivityContext{
		Lat: &lat, Lon: &lon, PartnerID: &missing,
	})
	if !apperr.IsKind(err, apperr.NotFound) {
		t.Errorf("expected not found for unknown partner, got %v", err)
	}

	inactive := int64(2)
	_, err = svc.RecordActivity(ctx, 2, model.ActivityGeoCheckin, &model.ActivityContext{
		Lat: &lat, Lon: &lon, PartnerID: &inactive,
	})
	if !apperr.IsKind(err, apperr.Validation) {
		t.Errorf("expected rejection for inactive partner, got %v", err)
	}
}

func TestRecordActivity_PartnerRadiusOverride(t *testing.T) {
	store, svc := newActivityFixture()
	ctx := context.Background()

	store.rules[model.ActivityGeoCheckin] = model.ActivityRule{
		ActivityType: model.ActivityGeoCheckin, Points: 10, IsActive: true,
	}
	radius := 2000.0
	store.partners[1] = model.Partner{ID: 1, Name: "ТЦ", Lat: 10.7769, Lon: 106.7009, RadiusM: &radius, IsActive: true}

	// ~1.1 km away: outside the default radius but inside the override.
	pid := int64(1)
	lat, lon := 10.7869, 106.7009
	if _, err := svc.RecordActivity(ctx, 1, model.ActivityGeoCheckin, &model.ActivityContext{
		Lat: &lat, Lon: &lon, PartnerID: &pid,
	}); err != nil {
		t.Fatalf("expected override radius to admit the check-in: %v", err)
	}
}

func TestUpsertRule_Validation(t *testing.T) {
	_, svc := newActivityFixture()
	ctx := context.Background()

	badCap := 0
	cases := []model.ActivityRule{
		{ActivityType: "", Points: 5},
		{ActivityType: "x", Points: 0},
		{ActivityType: "x", Points: 5, CooldownHours: -1},
		{ActivityType: "x", Points: 5, DailyCap: &badCap},
	}
	for i, rule := range cases {
		r := rule
		if err := svc.UpsertRule(ctx, &r); !apperr.IsKind(err, apperr.Validation) {
			t.Errorf("case %d: expected validation error, got %v", i, err)
		}
	}

	good := model.ActivityRule{ActivityType: "x", Points: 5, CooldownHours: 12, IsActive: true}
	if err := svc.UpsertRule(ctx, &good); err != nil {
		t.Errorf("valid rule rejected: %v", err)
	}
}

func TestCooldownRemaining(t *testing.T) {
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)

	if got := cooldownRemaining(nil, 24, now); got != 0 {
		t.Errorf("no prior activity: expected 0, got %v", got)
	}

	last := now.Add(-2 * time.Hour)
	if got := cooldownRemaining(&last, 0, now); got != 0 {
		t.Errorf("zero cooldown: expected 0, got %v", got)
	}
	if got := cooldownRemaining(&last, 24, now); got != 22*time.Hour {
		t.Errorf("expected 22h remaining, got %v", got)
	}

	old := now.Add(-30 * time.Hour)
	if got := cooldownRemaining(&old, 24, now); got != 0 {
		t.Errorf("expired cooldown: expected 0, got %v", got)
	}
}

func TestHaversineMeters(t *testing.T) {
	// Same point.
	if d := haversineMeters(10.7769, 106.7009, 10.7769, 106.7009); d != 0 {
		t.Errorf("expected 0, got %v", d)
	}

	// One degree of latitude is ~111.19 km.
	d := haversineMeters(0, 0, 1, 0)
	if math.Abs(d-111195) > 100 {
		t.Errorf("expected ~111195 m, got %v", d)
	}

	// Hanoi to Ho Chi Minh City, ~1137 km.
	d = haversineMeters(21.0278, 105.8342, 10.7769, 106.7009)
	if math.Abs(d-1137000) > 10000 {
		t.Errorf("expected ~1137 km, got %v m", d)
	}
}

func TestMidnightUTC(t *testing.T) {
	now := time.Date(2026, 3, 10, 23, 59, 59, 0, time.UTC)
	want := time.Date(2026, 3, 10, 0, 0, 0, 0, time.UTC)
	if got := midnightUTC(now); !got.Equal(want) {
		t.Errorf("expected %v, got %v", want, got)
	}

	// Non-UTC input normalizes to the UTC day.
	offset := time.FixedZone("UTC+7", 7*3600)
	local := time.Date(2026, 3, 11, 3, 0, 0, 0, offset) // 2026-03-10 20:00 UTC
	if got := midnightUTC(local); !got.Equal(want) {
		t.Errorf("expected %v, got %v", want, got)
	}
}
