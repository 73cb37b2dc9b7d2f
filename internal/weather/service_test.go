package weather

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/yegors/metarboard/internal/atis"
	"github.com/yegors/metarboard/pkg/logger"
)

// fakeFetcher serves canned feed results
type fakeFetcher struct {
	mu       sync.Mutex
	metars   map[string]string
	metarErr error
	records  []atis.Record
	atisErr  error
	calls    map[Feed]int
}

func newFakeFetcher() *fakeFetcher {
	return &fakeFetcher{calls: make(map[Feed]int)}
}

func (f *fakeFetcher) FetchMETARs(ctx context.Context, icaos []string) (map[string]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls[FeedMETAR]++
	if f.metarErr != nil {
		return nil, f.metarErr
	}
	out := make(map[string]string, len(f.metars))
	for k, v := range f.metars {
		out[k] = v
	}
	return out, nil
}

func (f *fakeFetcher) FetchATIS(ctx context.Context) ([]atis.Record, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls[FeedATIS]++
	if f.atisErr != nil {
		return nil, f.atisErr
	}
	return append([]atis.Record(nil), f.records...), nil
}

func (f *fakeFetcher) set(metars map[string]string, records []atis.Record) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.metars = metars
	f.records = records
}

func (f *fakeFetcher) callCount(feed Feed) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[feed]
}

// recorder collects notifications
type recorder struct {
	mu    sync.Mutex
	items []Notification
	ch    chan Notification
}

func newRecorder() *recorder {
	return &recorder{ch: make(chan Notification, 64)}
}

func (r *recorder) Notify(n Notification) {
	r.mu.Lock()
	r.items = append(r.items, n)
	r.mu.Unlock()
	select {
	case r.ch <- n:
	default:
	}
}

func (r *recorder) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.items)
}

func atisRecord(callsign, code, updated string) atis.Record {
	return atis.Record{Callsign: callsign, ATISCode: []byte(`"` + code + `"`), LastUpdated: updated}
}

func newTestService(fetcher Fetcher, icaos ...string) (*Service, *recorder) {
	cfg := DefaultConfig()
	cfg.Stations = icaos
	svc := NewService(cfg, fetcher, NewStore(icaos, logger.NewNop()), logger.NewNop())
	svc.now = func() time.Time { return testNow }
	rec := newRecorder()
	svc.AddNotifier(rec)
	return svc, rec
}

func TestApplyIsIdempotent(t *testing.T) {
	svc, rec := newTestService(newFakeFetcher(), "EPWA", "EPKK")

	metars := map[string]string{"EPWA": epwaReport, "EPKK": epkkReport}
	svc.apply(cycleResult{feed: FeedMETAR, metars: metars})
	if rec.count() != 1 {
		t.Fatalf("notifications = %d, want 1", rec.count())
	}

	svc.apply(cycleResult{feed: FeedMETAR, metars: metars})
	svc.apply(cycleResult{feed: FeedATIS, codes: map[string]string{}})
	if rec.count() != 1 {
		t.Errorf("identical data produced %d notifications, want 1", rec.count())
	}
}

func TestApplyOneNotificationPerCycle(t *testing.T) {
	svc, rec := newTestService(newFakeFetcher(), "EPWA", "EPKK")

	svc.apply(cycleResult{feed: FeedATIS, codes: map[string]string{"EPWA": "K", "EPKK": "C"}})

	if rec.count() != 1 {
		t.Fatalf("notifications = %d, want 1", rec.count())
	}
	n := <-rec.ch
	if n.Type != NotificationRefresh || n.Feed != FeedATIS || len(n.Changed) != 2 {
		t.Errorf("unexpected notification %+v", n)
	}
}

func TestApplyEmptyMETARSignalsError(t *testing.T) {
	svc, rec := newTestService(newFakeFetcher(), "EPWA", "EPKK")
	svc.apply(cycleResult{feed: FeedMETAR, metars: map[string]string{"EPWA": epwaReport}})
	<-rec.ch

	svc.apply(cycleResult{feed: FeedMETAR})

	n := <-rec.ch
	if n.Type != NotificationDataError {
		t.Fatalf("notification type = %s, want data_error", n.Type)
	}
	for _, v := range svc.Store().Stations() {
		if v.Summary != v.ICAO+DataErrorSummarySuffix || v.Detail != DataErrorDetail {
			t.Errorf("station not in error form: %+v", v)
		}
	}
	if st := svc.Status(); !st.DataError || st.METARFailures != 1 {
		t.Errorf("status = %+v", st)
	}
}

func TestApplyEmptyATISKeepsCodes(t *testing.T) {
	svc, rec := newTestService(newFakeFetcher(), "EPWA")
	svc.apply(cycleResult{feed: FeedATIS, codes: map[string]string{"EPWA": "K"}})
	<-rec.ch

	svc.apply(cycleResult{feed: FeedATIS})

	if rec.count() != 1 {
		t.Errorf("empty ATIS cycle notified")
	}
	if st, _ := svc.Store().State("EPWA"); st.ATISCode != "K" {
		t.Errorf("ATIS code = %q, want K", st.ATISCode)
	}
	if svc.Status().ATISEmptyCycles != 1 {
		t.Errorf("ATISEmptyCycles = %d", svc.Status().ATISEmptyCycles)
	}
}

func TestServiceInitialLoadAndRefresh(t *testing.T) {
	fetcher := newFakeFetcher()
	fetcher.set(
		map[string]string{"EPWA": epwaReport},
		[]atis.Record{atisRecord("EPWA_ATIS", "K", "2024-05-16T12:00:00Z")},
	)

	svc, rec := newTestService(fetcher, "EPWA", "EPKK")
	svc.metarDelay = func(time.Time) time.Duration { return 20 * time.Millisecond }
	svc.config.ATISInterval = 20 * time.Millisecond

	if err := svc.Start(); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	defer svc.Stop()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := svc.WaitReady(ctx); err != nil {
		t.Fatalf("WaitReady() error = %v", err)
	}

	v, err := svc.Store().Station("EPWA")
	if err != nil {
		t.Fatalf("Station() error = %v", err)
	}
	if v.Summary != "EPWA 27008KT Q1013 K" {
		t.Errorf("summary after initial load = %q", v.Summary)
	}

	// Drain the initial notifications, then change the METAR
	for len(rec.ch) > 0 {
		<-rec.ch
	}
	fetcher.set(
		map[string]string{"EPWA": epwaReport, "EPKK": epkkReport},
		[]atis.Record{atisRecord("EPWA_ATIS", "K", "2024-05-16T12:00:00Z")},
	)

	select {
	case n := <-rec.ch:
		if n.Feed != FeedMETAR || len(n.Changed) != 1 || n.Changed[0] != "EPKK" {
			t.Errorf("unexpected notification %+v", n)
		}
	case <-ctx.Done():
		t.Fatal("no notification after METAR change")
	}
}

func TestServiceReschedulesAfterFailure(t *testing.T) {
	fetcher := newFakeFetcher()
	fetcher.metarErr = errors.New("connection refused")
	fetcher.atisErr = errors.New("connection refused")

	svc, _ := newTestService(fetcher, "EPWA")
	svc.metarDelay = func(time.Time) time.Duration { return 10 * time.Millisecond }
	svc.config.ATISInterval = 10 * time.Millisecond

	if err := svc.Start(); err != nil {
		t.Fatalf("Start() error = %v", err)
	}

	deadline := time.Now().Add(2 * time.Second)
	for fetcher.callCount(FeedMETAR) < 3 || fetcher.callCount(FeedATIS) < 3 {
		if time.Now().After(deadline) {
			t.Fatalf("loops stopped rescheduling: metar=%d atis=%d",
				fetcher.callCount(FeedMETAR), fetcher.callCount(FeedATIS))
		}
		time.Sleep(5 * time.Millisecond)
	}

	if err := svc.Stop(); err != nil {
		t.Fatalf("Stop() error = %v", err)
	}
	if !svc.Store().DataError() {
		t.Error("store should be in the error state")
	}
}

func TestRefreshNow(t *testing.T) {
	fetcher := newFakeFetcher()
	svc, _ := newTestService(fetcher, "EPWA")

	if err := svc.RefreshNow(FeedMETAR); err == nil {
		t.Error("RefreshNow before Start should fail")
	}

	svc.metarDelay = func(time.Time) time.Duration { return time.Hour }
	svc.config.ATISInterval = time.Hour
	if err := svc.Start(); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	defer svc.Stop()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := svc.WaitReady(ctx); err != nil {
		t.Fatalf("WaitReady() error = %v", err)
	}

	if err := svc.RefreshNow(Feed("taf")); err == nil {
		t.Error("unknown feed should fail")
	}
	if err := svc.RefreshNow(FeedATIS); err != nil {
		t.Fatalf("RefreshNow() error = %v", err)
	}

	for fetcher.callCount(FeedATIS) < 2 {
		select {
		case <-ctx.Done():
			t.Fatal("manual ATIS refresh did not run")
		case <-time.After(5 * time.Millisecond):
		}
	}
}
