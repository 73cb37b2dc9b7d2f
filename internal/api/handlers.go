package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/yegors/metarboard/internal/config"
	"github.com/yegors/metarboard/internal/metar"
	"github.com/yegors/metarboard/internal/weather"
	"github.com/yegors/metarboard/pkg/logger"
)

// ClientCounter reports connected push clients
type ClientCounter interface {
	ClientCount() int
}

// Handler contains the API handlers
type Handler struct {
	weatherService *weather.Service
	clients        ClientCounter
	config         *config.Config
	logger         *logger.Logger
	startedAt      time.Time
}

// NewHandler creates a new API handler. clients may be nil.
func NewHandler(weatherService *weather.Service, clients ClientCounter, config *config.Config, logger *logger.Logger) *Handler {
	return &Handler{
		weatherService: weatherService,
		clients:        clients,
		config:         config,
		logger:         logger.Named("api-handler"),
		startedAt:      time.Now(),
	}
}

// StationResponse is a station view with its display color
type StationResponse struct {
	weather.StationView
	Color string `json:"color"`
}

// StationsResponse is the grouped board
type StationsResponse struct {
	DataError bool                `json:"data_error"`
	Groups    [][]StationResponse `json:"groups"`
}

// GetStations returns every station, grouped in display order
func (h *Handler) GetStations(w http.ResponseWriter, r *http.Request) {
	WriteJSON(w, http.StatusOK, h.Board())
}

// Board builds the grouped board. It is also used for websocket snapshots.
func (h *Handler) Board() StationsResponse {
	store := h.weatherService.Store()

	views := make(map[string]weather.StationView)
	for _, v := range store.Stations() {
		views[v.ICAO] = v
	}

	groups := make([][]StationResponse, 0, len(h.config.Stations.Groups))
	for _, group := range h.config.Stations.Groups {
		out := make([]StationResponse, 0, len(group))
		for _, icao := range group {
			v, ok := views[icao]
			if !ok {
				continue
			}
			out = append(out, h.withColor(v))
		}
		groups = append(groups, out)
	}

	return StationsResponse{
		DataError: store.DataError(),
		Groups:    groups,
	}
}

// GetStation returns a single station
func (h *Handler) GetStation(w http.ResponseWriter, r *http.Request) {
	icao := strings.ToUpper(chi.URLParam(r, "icao"))
	if icao == "" {
		http.Error(w, "Missing station identifier", http.StatusBadRequest)
		return
	}

	view, err := h.weatherService.Store().Station(icao)
	if err != nil {
		if errors.Is(err, weather.ErrUnknownStation) {
			http.Error(w, "Station not found", http.StatusNotFound)
			return
		}
		h.logger.Error("Failed to read station", logger.String("icao", icao), logger.Error(err))
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}

	WriteJSON(w, http.StatusOK, h.withColor(view))
}

// GetDisplay returns the display constants used by clients
func (h *Handler) GetDisplay(w http.ResponseWriter, r *http.Request) {
	response := map[string]any{
		"font_family":     h.config.Display.FontFamily,
		"font_size":       h.config.Display.FontSize,
		"category_colors": h.config.Stations.CategoryColors,
		"groups":          h.config.Stations.Groups,
	}

	WriteJSON(w, http.StatusOK, response)
}

// TriggerRefresh starts an out-of-slot cycle of one feed
func (h *Handler) TriggerRefresh(w http.ResponseWriter, r *http.Request) {
	feed := weather.Feed(strings.ToLower(chi.URLParam(r, "feed")))

	if err := h.weatherService.RefreshNow(feed); err != nil {
		switch {
		case errors.Is(err, weather.ErrUnknownFeed):
			http.Error(w, "Unknown feed", http.StatusBadRequest)
		case errors.Is(err, weather.ErrNotStarted):
			http.Error(w, "Weather service not running", http.StatusServiceUnavailable)
		default:
			h.logger.Error("Failed to trigger refresh", logger.String("feed", string(feed)), logger.Error(err))
			http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		}
		return
	}

	WriteJSON(w, http.StatusAccepted, map[string]any{
		"status": "accepted",
		"feed":   feed,
	})
}

// GetStatus returns refresh counters and the error state
func (h *Handler) GetStatus(w http.ResponseWriter, r *http.Request) {
	response := map[string]any{
		"weather":           h.weatherService.Status(),
		"stations":          len(h.weatherService.Store().ICAOs()),
		"websocket_clients": h.clientCount(),
		"uptime_seconds":    int64(time.Since(h.startedAt).Seconds()),
	}

	WriteJSON(w, http.StatusOK, response)
}

// GetHealth returns the health status of the API
func (h *Handler) GetHealth(w http.ResponseWriter, r *http.Request) {
	status := "ok"
	if h.weatherService.Store().DataError() {
		status = "degraded"
	}

	WriteJSON(w, http.StatusOK, map[string]any{
		"status": status,
	})
}

func (h *Handler) withColor(v weather.StationView) StationResponse {
	key := string(v.Category)
	if v.Category == metar.CategoryUnknown {
		key = "None"
	}
	return StationResponse{StationView: v, Color: h.config.Stations.CategoryColors[key]}
}

func (h *Handler) clientCount() int {
	if h.clients == nil {
		return 0
	}
	return h.clients.ClientCount()
}

// WriteJSON writes a JSON response
func WriteJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}
