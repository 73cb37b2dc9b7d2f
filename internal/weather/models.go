package weather

import (
	"errors"
	"time"

	"github.com/yegors/metarboard/internal/metar"
)

// Feed identifies one of the two refresh lines
type Feed string

const (
	FeedMETAR Feed = "metar"
	FeedATIS  Feed = "atis"
)

// Texts shown for every station while the METAR feed is unavailable
const (
	DataErrorSummarySuffix = " (DATA ERROR)"
	DataErrorDetail        = "(no data or connection error)"
)

var (
	// ErrUnknownStation is returned for identifiers outside the tracked set
	ErrUnknownStation = errors.New("unknown station")
	ErrUnknownFeed    = errors.New("unknown feed")
	ErrNotStarted     = errors.New("weather service not started")
)

// Config represents the weather service configuration
type Config struct {
	Stations []string // tracked identifiers, in display order

	METARBaseURL        string
	METARRequestTimeout time.Duration

	ATISURL            string
	ATISInterval       time.Duration
	ATISRequestTimeout time.Duration
}

// DefaultConfig returns the default weather configuration
func DefaultConfig() Config {
	return Config{
		METARBaseURL:        "https://metar.vatsim.net",
		METARRequestTimeout: 15 * time.Second,
		ATISURL:             "https://data.vatsim.net/v3/afv-atis-data.json",
		ATISInterval:        5 * time.Minute,
		ATISRequestTimeout:  15 * time.Second,
	}
}

// StationState is the durable per-station tuple. It is replaced as a whole
// on every mutation so the derived fields never disagree with Raw and ATISCode.
type StationState struct {
	ICAO        string
	Raw         string
	ATISCode    string
	Observation metar.Observation
	UpdatedAt   time.Time
	Changed     bool
}

// StationView is the read model handed to the presentation boundary
type StationView struct {
	ICAO      string         `json:"icao"`
	Summary   string         `json:"summary"`
	Detail    string         `json:"detail"`
	Category  metar.Category `json:"category"`
	Raw       string         `json:"raw,omitempty"`
	ATISCode  string         `json:"atis_code,omitempty"`
	Wind      string         `json:"wind,omitempty"`
	Altimeter string         `json:"altimeter,omitempty"`
	Changed   bool           `json:"changed"`
	UpdatedAt *time.Time     `json:"updated_at,omitempty"`
}

// NotificationType distinguishes a regular refresh from the error signal
type NotificationType string

const (
	NotificationRefresh   NotificationType = "stations_refresh"
	NotificationDataError NotificationType = "data_error"
)

// Notification tells the presentation boundary to re-read the store
type Notification struct {
	Type    NotificationType `json:"type"`
	Feed    Feed             `json:"feed"`
	Changed []string         `json:"changed,omitempty"`
	At      time.Time        `json:"at"`
}

// Data returns the message body carried to clients
func (n Notification) Data() map[string]any {
	changed := n.Changed
	if changed == nil {
		changed = []string{}
	}
	return map[string]any{
		"feed":    n.Feed,
		"changed": changed,
		"at":      n.At,
	}
}

// Notifier receives at most one notification per completed refresh cycle
type Notifier interface {
	Notify(n Notification)
}

// NotifierFunc adapts a plain function to Notifier
type NotifierFunc func(n Notification)

// Notify calls f(n)
func (f NotifierFunc) Notify(n Notification) {
	f(n)
}

// cycleResult is handed from a fetch worker to the apply loop
type cycleResult struct {
	feed   Feed
	metars map[string]string // identifier -> raw line
	codes  map[string]string // identifier -> ATIS letter
	done   chan struct{}
}

// Status summarises the refresh lines for diagnostics
type Status struct {
	DataError       bool      `json:"data_error"`
	LastMETARCycle  time.Time `json:"last_metar_cycle"`
	LastATISCycle   time.Time `json:"last_atis_cycle"`
	NextMETARCycle  time.Time `json:"next_metar_cycle"`
	METARCycles     int64     `json:"metar_cycles"`
	ATISCycles      int64     `json:"atis_cycles"`
	METARFailures   int64     `json:"metar_failures"`
	ATISEmptyCycles int64     `json:"atis_empty_cycles"`
	Notifications   int64     `json:"notifications"`
}
