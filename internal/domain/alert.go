package domain

import "time"

// AlertType represents the kind of public alert.
type AlertType string

// Alert types.
const (
	AlertTypeAmber         AlertType = "amber"
	AlertTypeMissingPerson AlertType = "missing_person"
)

// AlertStatus represents the lifecycle status of an alert.
type AlertStatus string

// Alert statuses.
const (
	AlertStatusActive    AlertStatus = "active"
	AlertStatusResolved  AlertStatus = "resolved"
	AlertStatusCancelled AlertStatus = "cancelled"
)

// Alert is a public broadcast tied to an investigation case.
// It is read-only for the distribution engine.
type Alert struct {
	ID              string             `json:"id"`
	CaseID          string             `json:"case_id"`
	AlertNumber     string             `json:"alert_number"`
	Type            AlertType          `json:"alert_type"`
	Status          AlertStatus        `json:"status"`
	Message         string             `json:"message"`
	Person          PersonDescriptor   `json:"child"`
	Location        LocationDescriptor `json:"abduction"`
	Vehicle         *VehicleDescriptor `json:"vehicle"`
	Suspect         *SuspectDescriptor `json:"suspect"`
	Contact         ContactInfo        `json:"contact"`
	TargetProvinces []string           `json:"target_provinces"`
	DefaultChannels []Channel          `json:"default_channels"`
	IssuedAt        *time.Time         `json:"issued_at"`
	CreatedAt       time.Time          `json:"created_at"`
}

// IsActive reports whether the alert may be distributed.
func (a *Alert) IsActive() bool {
	return a.Status == AlertStatusActive
}

// PersonDescriptor describes the missing person.
type PersonDescriptor struct {
	Name        string `json:"name"`
	Age         int    `json:"age,omitempty"`
	Gender      string `json:"gender,omitempty"`
	Height      string `json:"height,omitempty"`
	Weight      string `json:"weight,omitempty"`
	HairColor   string `json:"hair_color,omitempty"`
	EyeColor    string `json:"eye_color,omitempty"`
	Clothing    string `json:"clothing,omitempty"`
	PhotoURL    string `json:"photo_url,omitempty"`
	Description string `json:"description,omitempty"`
}

// LocationDescriptor describes where and when the person was last seen.
type LocationDescriptor struct {
	Address       string     `json:"address,omitempty"`
	City          string     `json:"city,omitempty"`
	Province      string     `json:"province,omitempty"`
	Latitude      *float64   `json:"latitude,omitempty"`
	Longitude     *float64   `json:"longitude,omitempty"`
	OccurredAt    *time.Time `json:"occurred_at,omitempty"`
	Circumstances string     `json:"circumstances,omitempty"`
}

// VehicleDescriptor describes a vehicle involved in the case.
type VehicleDescriptor struct {
	Make          string `json:"make,omitempty"`
	Model         string `json:"model,omitempty"`
	Year          int    `json:"year,omitempty"`
	Color         string `json:"color,omitempty"`
	LicensePlate  string `json:"license_plate,omitempty"`
	PlateProvince string `json:"plate_province,omitempty"`
}

// SuspectDescriptor describes a suspect.
type SuspectDescriptor struct {
	Name        string `json:"name,omitempty"`
	Age         int    `json:"age,omitempty"`
	Gender      string `json:"gender,omitempty"`
	Description string `json:"description,omitempty"`
}

// ContactInfo is the agency the public should call.
type ContactInfo struct {
	Agency string `json:"agency"`
	Phone  string `json:"phone"`
	Email  string `json:"email,omitempty"`
}
