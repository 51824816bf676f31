package types

import "time"

type StationStatus string

const (
	StatusActive      StationStatus = "active"
	StatusInactive    StationStatus = "inactive"
	StatusMaintenance StationStatus = "maintenance"
	StatusUnset       StationStatus = ""
)

type Station struct {
	ID               string        `json:"id"`
	Name             string        `json:"name"`
	Number           string        `json:"number"`
	Frequency        string        `json:"frequency"`
	Status           StationStatus `json:"status,omitempty"`
	Latitude         *float64      `json:"latitude,omitempty"`
	Longitude        *float64      `json:"longitude,omitempty"`
	ContactPerson    *string       `json:"contactPerson,omitempty"`
	InstallationDate *time.Time    `json:"installationDate,omitempty"`
	Description      *string       `json:"description,omitempty"`
	CreatedAt        time.Time     `json:"createdAt"`
	UpdatedAt        *time.Time    `json:"updatedAt,omitempty"`
}

// StationRef is the subset of a station eager-loaded alongside each reading.
type StationRef struct {
	ID     string `json:"id"`
	Name   string `json:"name"`
	Number string `json:"number"`
}

type Reading struct {
	ID              string      `json:"id"`
	StationID       string      `json:"stationId"`
	Station         *StationRef `json:"station,omitempty"`
	Timestamp       time.Time   `json:"timestamp"`
	PH              float64     `json:"ph"`
	Temperature     float64     `json:"temperature"`
	Turbidity       float64     `json:"turbidity"`
	TDS             float64     `json:"tds"`
	EC              float64     `json:"ec"`
	DissolvedOxygen *float64    `json:"dissolvedOxygen,omitempty"`
	Conductivity    *float64    `json:"conductivity,omitempty"`
	CollectorName   *string     `json:"collectorName,omitempty"`
	Notes           *string     `json:"notes,omitempty"`
	CreatedAt       time.Time   `json:"createdAt"`
}

// StationName returns the eager-loaded station name, or "" when not loaded.
func (r Reading) StationName() string {
	if r.Station == nil {
		return ""
	}
	return r.Station.Name
}

func (r Reading) StationNumber() string {
	if r.Station == nil {
		return ""
	}
	return r.Station.Number
}
