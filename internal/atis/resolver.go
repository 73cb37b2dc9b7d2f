package atis

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// Record is one entry of the VATSIM AFV ATIS feed. Only the fields used for
// code resolution are decoded.
type Record struct {
	Callsign    string          `json:"callsign"`
	LastUpdated string          `json:"last_updated,omitempty"`
	LogonTime   string          `json:"logon_time,omitempty"`
	ATISCode    json.RawMessage `json:"atis_code,omitempty"`
}

// UnmarshalJSON requires a string callsign. Timestamps of any other JSON
// type are kept verbatim so they fail to parse and rank lowest, without
// dropping the record.
func (r *Record) UnmarshalJSON(data []byte) error {
	var raw struct {
		Callsign    string          `json:"callsign"`
		LastUpdated json.RawMessage `json:"last_updated"`
		LogonTime   json.RawMessage `json:"logon_time"`
		ATISCode    json.RawMessage `json:"atis_code"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	*r = Record{
		Callsign:    raw.Callsign,
		LastUpdated: lenientString(raw.LastUpdated),
		LogonTime:   lenientString(raw.LogonTime),
		ATISCode:    raw.ATISCode,
	}
	return nil
}

func lenientString(raw json.RawMessage) string {
	if len(raw) == 0 || string(raw) == "null" {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	return string(raw)
}

// timestampLayouts are tried in order when reading feed timestamps
var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05.999999999Z07:00",
	"2006-01-02 15:04:05.999999999",
}

// DecodeFeed decodes the bulk feed. The document must be a JSON array;
// elements that are not valid records are dropped individually.
func DecodeFeed(data []byte) ([]Record, error) {
	var raw []json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("failed to decode ATIS feed: %w", err)
	}

	records := make([]Record, 0, len(raw))
	for _, item := range raw {
		var rec Record
		if err := json.Unmarshal(item, &rec); err != nil {
			continue
		}
		records = append(records, rec)
	}
	return records, nil
}

// Timestamp returns the record's last_updated time, falling back to
// logon_time. The zero time is returned when neither is set or the chosen
// value does not parse, so such records never outrank a dated one.
func (r Record) Timestamp() time.Time {
	value := r.LastUpdated
	if value == "" {
		value = r.LogonTime
	}
	if value == "" {
		return time.Time{}
	}

	for _, layout := range timestampLayouts {
		if t, err := time.Parse(layout, value); err == nil {
			return t
		}
	}
	return time.Time{}
}

// Code returns the advertised letter when the record carries exactly one
// character as a JSON string.
func (r Record) Code() (string, bool) {
	if len(r.ATISCode) == 0 {
		return "", false
	}

	var code string
	if err := json.Unmarshal(r.ATISCode, &code); err != nil {
		return "", false
	}
	if len([]rune(code)) != 1 {
		return "", false
	}
	return code, true
}

// Resolve picks, for every tracked identifier, the most recently updated
// record whose callsign starts with "<ICAO>_" and returns its code.
// Identifiers without a usable code are absent from the result.
func Resolve(records []Record, icaos []string) map[string]string {
	latest := make(map[string]Record, len(icaos))
	latestAt := make(map[string]time.Time, len(icaos))

	for _, rec := range records {
		callsign := strings.ToUpper(rec.Callsign)
		for _, icao := range icaos {
			if !strings.HasPrefix(callsign, icao+"_") {
				continue
			}

			ts := rec.Timestamp()
			if prev, seen := latestAt[icao]; seen && !ts.After(prev) {
				continue
			}
			latest[icao] = rec
			latestAt[icao] = ts
		}
	}

	codes := make(map[string]string, len(latest))
	for icao, rec := range latest {
		if code, ok := rec.Code(); ok {
			codes[icao] = code
		}
	}
	return codes
}
