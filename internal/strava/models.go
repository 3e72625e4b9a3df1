package strava

import "time"

// Athlete is the authenticated athlete's profile from GET /athlete
type Athlete struct {
	ID        int64  `json:"id"`
	FirstName string `json:"firstname"`
	LastName  string `json:"lastname"`
	Email     string `json:"email"` // often absent, depends on scope
}

// DisplayName returns "first last", trimmed when either part is missing
func (a *Athlete) DisplayName() string {
	switch {
	case a.FirstName == "":
		return a.LastName
	case a.LastName == "":
		return a.FirstName
	}
	return a.FirstName + " " + a.LastName
}

// Activity is a summary activity from GET /athlete/activities.
// Numeric fields are pointers: Strava omits them (or sends null) for
// activities without the corresponding sensor data.
type Activity struct {
	ID                 int64      `json:"id"`
	Athlete            AthleteRef `json:"athlete"`
	Name               string     `json:"name"`
	Type               string     `json:"type"`
	SportType          string     `json:"sport_type"`
	StartDate          time.Time  `json:"start_date"`
	Distance           *float64   `json:"distance"`             // meters
	MovingTime         *int64     `json:"moving_time"`          // seconds
	ElapsedTime        *int64     `json:"elapsed_time"`         // seconds
	TotalElevationGain *float64   `json:"total_elevation_gain"` // meters
	ElevHigh           *float64   `json:"elev_high"`            // meters
	AverageSpeed       *float64   `json:"average_speed"`        // m/s
	MaxSpeed           *float64   `json:"max_speed"`            // m/s
	AverageHeartrate   *float64   `json:"average_heartrate"`    // bpm
	MaxHeartrate       *float64   `json:"max_heartrate"`        // bpm
	HasHeartrate       bool       `json:"has_heartrate"`
}

// AthleteRef is the minimal athlete info embedded in an activity
type AthleteRef struct {
	ID int64 `json:"id"`
}
