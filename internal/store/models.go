package store

import "time"

// Credential is one athlete's stored OAuth grant, keyed by their Strava id
type Credential struct {
	ExternalUserID int64
	DisplayName    string
	Email          string // empty when the provider did not share it
	AccessToken    string
	RefreshToken   string
	TokenExpiry    time.Time
	LastSyncedAt   time.Time
	CreatedAt      time.Time
	LastLoginAt    time.Time
	Active         bool
}

// Activity is a Strava activity summary as stored. Numeric fields are nil
// when Strava omitted them and are persisted as NULL.
type Activity struct {
	ActivityID         int64
	OwnerUserID        int64
	Name               string
	Type               string
	StartDate          time.Time
	Distance           *float64 // meters
	MovingTime         *int64   // seconds
	ElapsedTime        *int64   // seconds
	AverageSpeed       *float64 // m/s
	MaxSpeed           *float64 // m/s
	TotalElevationGain *float64 // meters
	ElevHigh           *float64 // meters
	AverageHeartrate   *float64 // bpm
	MaxHeartrate       *float64 // bpm
}
