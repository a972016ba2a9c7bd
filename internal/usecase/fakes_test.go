package usecase

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"UsageSync/internal/domain"
)

type memStore struct {
	mu        sync.Mutex
	targets   []domain.TrackedAsset
	records   map[string]domain.UsageRecord
	gapErr    map[string]error
	appendErr error
	lostRace  bool
	loadErr   error
	nilDays   bool
}

func newMemStore(targets ...domain.TrackedAsset) *memStore {
	return &memStore{targets: targets, records: map[string]domain.UsageRecord{}, gapErr: map[string]error{}}
}

func recordKey(assetKey string, day time.Time) string {
	return assetKey + "@" + day.Format(domain.DayLayout)
}

func (s *memStore) LoadTargets(ctx context.Context, source string) ([]domain.TrackedAsset, error) {
	if s.loadErr != nil {
		return nil, s.loadErr
	}
	return s.targets, nil
}

func (s *memStore) ExistingDays(ctx context.Context, assetKey string) (domain.DaySet, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.gapErr[assetKey]; err != nil {
		return nil, err
	}
	if s.nilDays {
		return nil, nil
	}
	set := domain.NewDaySet()
	for _, r := range s.records {
		if r.AssetKey == assetKey {
			set.Add(r.PeriodDate)
		}
	}
	return set, nil
}

func (s *memStore) AppendUsage(ctx context.Context, record domain.UsageRecord) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.appendErr != nil {
		return false, s.appendErr
	}
	if s.lostRace {
		return false, nil
	}
	key := recordKey(record.AssetKey, record.PeriodDate)
	if _, ok := s.records[key]; ok {
		return false, nil
	}
	s.records[key] = record
	return true, nil
}

func (s *memStore) record(assetKey, day string) (domain.UsageRecord, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.records[assetKey+"@"+day]
	return r, ok
}

func (s *memStore) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.records)
}

type fakeFetcher struct {
	fail     map[string]bool
	value    int64
	calls    atomic.Int32
	inflight atomic.Int32
	peak     atomic.Int32
	delay    time.Duration

	mu      sync.Mutex
	session domain.Session
}

func (f *fakeFetcher) FetchUsage(ctx context.Context, session domain.Session, assetKey string, window domain.UsageWindow) (int64, error) {
	f.calls.Add(1)
	n := f.inflight.Add(1)
	defer f.inflight.Add(-1)
	for {
		peak := f.peak.Load()
		if n <= peak || f.peak.CompareAndSwap(peak, n) {
			break
		}
	}
	if f.delay > 0 {
		time.Sleep(f.delay)
	}
	f.mu.Lock()
	f.session = session
	f.mu.Unlock()
	if f.fail[assetKey] {
		return 0, &domain.FetchError{AssetKey: assetKey, Day: window.Day, Attempts: 4, Err: errors.New("upstream 500")}
	}
	return f.value, nil
}

type fakeTokens struct {
	err   error
	calls atomic.Int32
}

func (f *fakeTokens) Token(ctx context.Context, creds domain.Credentials) (domain.AccessToken, error) {
	f.calls.Add(1)
	if f.err != nil {
		return domain.AccessToken{}, f.err
	}
	return domain.AccessToken{Value: "tok-" + creds.Username}, nil
}

type fakePortal struct {
	id  string
	err error
}

func (f *fakePortal) PortalID(ctx context.Context, token domain.AccessToken) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	return f.id, nil
}
