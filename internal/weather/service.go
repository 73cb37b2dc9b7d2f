package weather

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/yegors/metarboard/internal/atis"
	"github.com/yegors/metarboard/pkg/logger"
)

// Fetcher retrieves the raw feeds. *Client is the production implementation.
type Fetcher interface {
	FetchMETARs(ctx context.Context, icaos []string) (map[string]string, error)
	FetchATIS(ctx context.Context) ([]atis.Record, error)
}

// Service runs the two refresh lines and owns every mutation of the store
type Service struct {
	config  Config
	fetcher Fetcher
	store   *Store
	logger  *logger.Logger

	notifiers  []Notifier
	notifierMu sync.RWMutex

	// fetch workers hand results to the apply loop through this channel
	results chan cycleResult

	now        func() time.Time
	metarDelay func(now time.Time) time.Duration

	// Service lifecycle
	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	started bool
	mu      sync.RWMutex

	// Initial data readiness
	initialDataReady chan struct{}
	initialDataOnce  sync.Once

	statusMu sync.Mutex
	status   Status
}

// NewService creates a new weather service
func NewService(config Config, fetcher Fetcher, store *Store, logger *logger.Logger) *Service {
	return &Service{
		config:           config,
		fetcher:          fetcher,
		store:            store,
		logger:           logger.Named("weather-service"),
		results:          make(chan cycleResult),
		now:              time.Now,
		metarDelay:       NextMETARDelay,
		initialDataReady: make(chan struct{}),
	}
}

// AddNotifier registers a receiver of change notifications
func (s *Service) AddNotifier(n Notifier) {
	s.notifierMu.Lock()
	defer s.notifierMu.Unlock()
	s.notifiers = append(s.notifiers, n)
}

// Store returns the station store read by the presentation boundary
func (s *Service) Store() *Store {
	return s.store
}

// Start performs the initial load and then begins both refresh lines
func (s *Service) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.started {
		return nil // Already started
	}

	s.logger.Info("Starting weather service",
		logger.Strings("stations", s.store.ICAOs()),
		logger.Duration("atis_interval", s.config.ATISInterval))

	s.ctx, s.cancel = context.WithCancel(context.Background())

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.applyLoop()
	}()

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.performInitialFetch()

		s.wg.Add(2)
		go func() {
			defer s.wg.Done()
			s.metarLoop()
		}()
		go func() {
			defer s.wg.Done()
			s.atisLoop()
		}()
	}()

	s.started = true
	return nil
}

// Stop gracefully shuts down the weather service
func (s *Service) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.started {
		return nil // Already stopped
	}

	s.logger.Info("Stopping weather service")
	s.cancel()
	s.wg.Wait()

	s.started = false
	s.logger.Info("Weather service stopped")
	return nil
}

// WaitReady blocks until the initial load has been applied or ctx ends
func (s *Service) WaitReady(ctx context.Context) error {
	select {
	case <-s.initialDataReady:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// RefreshNow runs one out-of-slot cycle of the given feed in the background.
// The regular schedule is not affected.
func (s *Service) RefreshNow(feed Feed) error {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if !s.started {
		return ErrNotStarted
	}

	var run func()
	switch feed {
	case FeedMETAR:
		run = s.runMETARCycle
	case FeedATIS:
		run = s.runATISCycle
	default:
		return fmt.Errorf("%w: %s", ErrUnknownFeed, feed)
	}

	s.logger.Info("Manual refresh triggered", logger.String("feed", string(feed)))
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		run()
	}()
	return nil
}

// Status returns a copy of the refresh counters
func (s *Service) Status() Status {
	s.statusMu.Lock()
	defer s.statusMu.Unlock()
	st := s.status
	st.DataError = s.store.DataError()
	return st
}

// performInitialFetch loads both feeds once before the timers start
func (s *Service) performInitialFetch() {
	s.logger.Info("Performing initial data fetch")

	s.runMETARCycle()
	s.runATISCycle()

	s.initialDataOnce.Do(func() {
		close(s.initialDataReady)
		s.logger.Info("Initial data fetch completed")
	})
}

// metarLoop fires on every :00 and :30 boundary. The delay is recomputed
// from the clock after each cycle, whatever its outcome.
func (s *Service) metarLoop() {
	for {
		delay := s.metarDelay(s.now())
		nextAt := s.now().Add(delay)
		s.statusMu.Lock()
		s.status.NextMETARCycle = nextAt
		s.statusMu.Unlock()

		s.logger.Debug("Next METAR refresh scheduled",
			logger.Duration("delay", delay),
			logger.Time("at", nextAt))

		timer := time.NewTimer(delay)
		select {
		case <-s.ctx.Done():
			timer.Stop()
			s.logger.Info("METAR refresh stopped")
			return
		case <-timer.C:
		}

		s.runMETARCycle()
	}
}

// atisLoop fires a fixed interval after the previous cycle completed
func (s *Service) atisLoop() {
	interval := s.config.ATISInterval
	if interval <= 0 {
		interval = DefaultConfig().ATISInterval
	}

	for {
		timer := time.NewTimer(interval)
		select {
		case <-s.ctx.Done():
			timer.Stop()
			s.logger.Info("ATIS refresh stopped")
			return
		case <-timer.C:
		}

		s.runATISCycle()
	}
}

// runMETARCycle fetches all reports and waits until they are applied.
// A transport failure is folded into an empty result.
func (s *Service) runMETARCycle() {
	start := time.Now()

	metars, err := s.fetcher.FetchMETARs(s.ctx, s.store.ICAOs())
	if err != nil {
		s.logger.Warn("METAR fetch failed", logger.Error(err))
		metars = nil
	}

	s.submit(cycleResult{feed: FeedMETAR, metars: metars})

	s.logger.Debug("METAR cycle completed",
		logger.Int("reports", len(metars)),
		logger.Duration("duration", time.Since(start)))
}

// runATISCycle fetches the ATIS feed, resolves codes and waits until they
// are applied. Malformed records were already dropped while decoding.
func (s *Service) runATISCycle() {
	start := time.Now()

	var codes map[string]string
	records, err := s.fetcher.FetchATIS(s.ctx)
	if err != nil {
		s.logger.Warn("ATIS fetch failed", logger.Error(err))
	} else {
		codes = atis.Resolve(records, s.store.ICAOs())
	}

	s.submit(cycleResult{feed: FeedATIS, codes: codes})

	s.logger.Debug("ATIS cycle completed",
		logger.Int("codes", len(codes)),
		logger.Duration("duration", time.Since(start)))
}

// submit hands a result to the apply loop and waits for it to be applied
func (s *Service) submit(r cycleResult) {
	r.done = make(chan struct{})

	select {
	case s.results <- r:
	case <-s.ctx.Done():
		return
	}

	select {
	case <-r.done:
	case <-s.ctx.Done():
	}
}

// applyLoop is the only goroutine that mutates the store
func (s *Service) applyLoop() {
	for {
		select {
		case <-s.ctx.Done():
			return
		case r := <-s.results:
			s.apply(r)
			close(r.done)
		}
	}
}

// apply runs the diff-and-apply step for one cycle and emits at most one
// notification
func (s *Service) apply(r cycleResult) {
	now := s.now()

	switch r.feed {
	case FeedMETAR:
		s.statusMu.Lock()
		s.status.LastMETARCycle = now
		s.status.METARCycles++
		s.statusMu.Unlock()

		if len(r.metars) == 0 {
			s.statusMu.Lock()
			s.status.METARFailures++
			failures := s.status.METARFailures
			s.statusMu.Unlock()

			entered := s.store.setDataError()
			s.logger.Warn("METAR fetch returned no data for any station",
				logger.Bool("entered_error_state", entered),
				logger.Int64("metar_failures", failures))
			s.notify(Notification{Type: NotificationDataError, Feed: FeedMETAR, Changed: s.store.ICAOs(), At: now})
			return
		}

		changed := s.store.applyMETAR(r.metars, now)
		s.logger.Info("METAR data applied",
			logger.Int("reports", len(r.metars)),
			logger.Int("changed", len(changed)))
		if len(changed) > 0 {
			s.notify(Notification{Type: NotificationRefresh, Feed: FeedMETAR, Changed: changed, At: now})
		}

	case FeedATIS:
		s.statusMu.Lock()
		s.status.LastATISCycle = now
		s.status.ATISCycles++
		if len(r.codes) == 0 {
			s.status.ATISEmptyCycles++
		}
		s.statusMu.Unlock()

		// Stale codes are kept rather than cleared
		if len(r.codes) == 0 {
			s.logger.Debug("ATIS cycle returned no codes, keeping cached codes")
			return
		}

		changed := s.store.applyATIS(r.codes, now)
		s.logger.Info("ATIS codes applied",
			logger.Int("codes", len(r.codes)),
			logger.Int("changed", len(changed)))
		if len(changed) > 0 {
			s.notify(Notification{Type: NotificationRefresh, Feed: FeedATIS, Changed: changed, At: now})
		}
	}
}

func (s *Service) notify(n Notification) {
	s.statusMu.Lock()
	s.status.Notifications++
	s.statusMu.Unlock()

	s.notifierMu.RLock()
	notifiers := s.notifiers
	s.notifierMu.RUnlock()

	for _, notifier := range notifiers {
		notifier.Notify(n)
	}
}
