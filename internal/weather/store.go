package weather

import (
	"fmt"
	"sync"
	"time"

	"github.com/yegors/metarboard/internal/metar"
	"github.com/yegors/metarboard/pkg/logger"
)

// Store holds the per-station state. Readers may call the exported methods
// at any time; the unexported apply methods are called only from the
// service's apply loop, which makes it the single writer.
type Store struct {
	order     []string
	stations  map[string]StationState
	dataError bool // set by an empty METAR cycle, cleared by the next non-empty one
	logger    *logger.Logger
	mu        sync.RWMutex
}

// NewStore creates a store with an empty entry for every identifier
func NewStore(icaos []string, logger *logger.Logger) *Store {
	s := &Store{
		order:    make([]string, 0, len(icaos)),
		stations: make(map[string]StationState, len(icaos)),
		logger:   logger.Named("station-store"),
	}

	for _, icao := range icaos {
		if _, dup := s.stations[icao]; dup {
			continue
		}
		s.order = append(s.order, icao)
		s.stations[icao] = StationState{
			ICAO:        icao,
			Observation: metar.Decode(icao, "", ""),
		}
	}
	return s
}

// ICAOs returns the tracked identifiers in display order
func (s *Store) ICAOs() []string {
	out := make([]string, len(s.order))
	copy(out, s.order)
	return out
}

// State returns the raw state tuple of one station
func (s *Store) State(icao string) (StationState, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	st, ok := s.stations[icao]
	return st, ok
}

// Station returns the presentation view of one station
func (s *Store) Station(icao string) (StationView, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	st, ok := s.stations[icao]
	if !ok {
		return StationView{}, fmt.Errorf("%w: %s", ErrUnknownStation, icao)
	}
	return s.view(st), nil
}

// Stations returns the presentation view of every station in display order
func (s *Store) Stations() []StationView {
	s.mu.RLock()
	defer s.mu.RUnlock()

	views := make([]StationView, 0, len(s.order))
	for _, icao := range s.order {
		views = append(views, s.view(s.stations[icao]))
	}
	return views
}

// DataError reports whether the last METAR cycle came back empty
func (s *Store) DataError() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.dataError
}

// view must be called with the read lock held
func (s *Store) view(st StationState) StationView {
	v := StationView{
		ICAO:      st.ICAO,
		Summary:   st.Observation.Summary,
		Detail:    st.Observation.Detail,
		Category:  st.Observation.Category,
		Raw:       st.Raw,
		ATISCode:  st.ATISCode,
		Wind:      st.Observation.Wind,
		Altimeter: st.Observation.Altimeter,
		Changed:   st.Changed,
	}
	if !st.UpdatedAt.IsZero() {
		updated := st.UpdatedAt
		v.UpdatedAt = &updated
	}

	if s.dataError {
		v.Summary = st.ICAO + DataErrorSummarySuffix
		v.Detail = DataErrorDetail
		v.Category = metar.CategoryUnknown
	}
	return v
}

// applyMETAR replaces every station whose fetched report differs from the
// cached one. Stations missing from metars keep their cached report.
// Leaving the error state counts as a change for every station.
func (s *Store) applyMETAR(metars map[string]string, now time.Time) []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	recovered := s.dataError
	s.dataError = false

	var changed []string
	updates := make(map[string]StationState)
	for _, icao := range s.order {
		cur := s.stations[icao]
		raw, ok := metars[icao]
		if !ok || raw == "" || raw == cur.Raw {
			continue
		}

		updates[icao] = StationState{
			ICAO:        icao,
			Raw:         raw,
			ATISCode:    cur.ATISCode,
			Observation: metar.Decode(icao, raw, cur.ATISCode),
			UpdatedAt:   now,
		}
		changed = append(changed, icao)
	}

	if recovered {
		changed = s.ICAOs()
	}
	s.commit(updates, changed)

	if recovered {
		s.logger.Info("METAR data available again, leaving error state")
	}
	return changed
}

// applyATIS updates every station whose resolved code differs from the
// cached one, including codes that disappeared. The cached report is reused.
func (s *Store) applyATIS(codes map[string]string, now time.Time) []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	var changed []string
	updates := make(map[string]StationState)
	for _, icao := range s.order {
		cur := s.stations[icao]
		code := codes[icao]
		if code == cur.ATISCode {
			continue
		}

		updates[icao] = StationState{
			ICAO:        icao,
			Raw:         cur.Raw,
			ATISCode:    code,
			Observation: metar.Decode(icao, cur.Raw, code),
			UpdatedAt:   now,
		}
		changed = append(changed, icao)
	}

	s.commit(updates, changed)
	return changed
}

// setDataError switches every station to the data-unavailable form.
// It reports whether the store was not already in that state.
func (s *Store) setDataError() bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.dataError {
		return false
	}
	s.dataError = true
	s.commit(nil, s.ICAOs())
	return true
}

// commit must be called with the write lock held. Changed flags always
// describe the most recent notification, so they are reset first.
func (s *Store) commit(updates map[string]StationState, changed []string) {
	if len(changed) == 0 {
		return
	}

	for icao, st := range s.stations {
		st.Changed = false
		s.stations[icao] = st
	}
	for icao, st := range updates {
		s.stations[icao] = st
	}
	for _, icao := range changed {
		st := s.stations[icao]
		st.Changed = true
		s.stations[icao] = st
	}
}
