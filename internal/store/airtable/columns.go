package airtable

import (
	"strconv"
	"time"

	"github.com/sestoltzf/strava-integration-at/internal/store"
)

// CredentialColumns names the credential table's columns
type CredentialColumns struct {
	ExternalUserID string // number
	RefreshToken   string
	AccessToken    string
	TokenExpiry    string // ISO-8601 text
	LastSyncedAt   string
	DisplayName    string
	Email          string
	Active         string // checkbox
	CreatedAt      string
	LastLoginAt    string
}

// ActivityColumns names the activity table's columns. Distance, times and
// speeds are text columns and receive decimal strings; elevation gain and
// heart rates are number columns.
type ActivityColumns struct {
	ActivityID         string // number
	OwnerUserID        string // text
	Name               string
	Type               string
	StartDate          string
	Distance           string
	MovingTime         string
	AverageSpeed       string
	ElapsedTime        string
	TotalElevationGain string // number
	MaxSpeed           string
	AverageHeartrate   string // number
	MaxHeartrate       string // number
	ElevHigh           string
}

// Columns is the column manifest for both tables
type Columns struct {
	Credentials CredentialColumns
	Activities  ActivityColumns
}

// DefaultColumns matches the column names of the existing tables
func DefaultColumns() Columns {
	return Columns{
		Credentials: CredentialColumns{
			ExternalUserID: "stravaId",
			RefreshToken:   "refresh",
			AccessToken:    "access",
			TokenExpiry:    "expiry",
			LastSyncedAt:   "lastSync",
			DisplayName:    "name",
			Email:          "email",
			Active:         "active",
			CreatedAt:      "created",
			LastLoginAt:    "lastLogin",
		},
		Activities: ActivityColumns{
			ActivityID:         "aktivitetsId",
			OwnerUserID:        "userId",
			Name:               "namn",
			Type:               "typ",
			StartDate:          "datum",
			Distance:           "distans",
			MovingTime:         "tid",
			AverageSpeed:       "snittfart",
			ElapsedTime:        "totaltTid",
			TotalElevationGain: "hJdmeter",
			MaxSpeed:           "maxfart",
			AverageHeartrate:   "snittpuls",
			MaxHeartrate:       "maxpuls",
			ElevHigh:           "elevation",
		},
	}
}

func (c CredentialColumns) fields(cred *store.Credential) Fields {
	return Fields{
		c.ExternalUserID: cred.ExternalUserID,
		c.RefreshToken:   cred.RefreshToken,
		c.AccessToken:    cred.AccessToken,
		c.TokenExpiry:    isoTime(cred.TokenExpiry),
		c.LastSyncedAt:   isoTime(cred.LastSyncedAt),
		c.DisplayName:    cred.DisplayName,
		c.Email:          cred.Email,
		c.Active:         cred.Active,
		c.CreatedAt:      isoTime(cred.CreatedAt),
		c.LastLoginAt:    isoTime(cred.LastLoginAt),
	}
}

// updateFields is the subset rewritten when an athlete authenticates again
func (c CredentialColumns) updateFields(cred *store.Credential) Fields {
	return Fields{
		c.RefreshToken: cred.RefreshToken,
		c.AccessToken:  cred.AccessToken,
		c.TokenExpiry:  isoTime(cred.TokenExpiry),
		c.DisplayName:  cred.DisplayName,
		c.Email:        cred.Email,
		c.Active:       cred.Active,
		c.LastLoginAt:  isoTime(cred.LastLoginAt),
	}
}

func (c CredentialColumns) credential(f Fields) store.Credential {
	id, _ := intField(f[c.ExternalUserID])
	return store.Credential{
		ExternalUserID: id,
		DisplayName:    stringField(f[c.DisplayName]),
		Email:          stringField(f[c.Email]),
		AccessToken:    stringField(f[c.AccessToken]),
		RefreshToken:   stringField(f[c.RefreshToken]),
		TokenExpiry:    timeField(f[c.TokenExpiry]),
		LastSyncedAt:   timeField(f[c.LastSyncedAt]),
		CreatedAt:      timeField(f[c.CreatedAt]),
		LastLoginAt:    timeField(f[c.LastLoginAt]),
		Active:         f[c.Active] == true,
	}
}

func (c ActivityColumns) fields(a *store.Activity) Fields {
	return Fields{
		c.ActivityID:         a.ActivityID,
		c.OwnerUserID:        strconv.FormatInt(a.OwnerUserID, 10),
		c.Name:               a.Name,
		c.Type:               a.Type,
		c.StartDate:          isoTime(a.StartDate),
		c.Distance:           decimalText(a.Distance),
		c.MovingTime:         integerText(a.MovingTime),
		c.AverageSpeed:       decimalText(a.AverageSpeed),
		c.ElapsedTime:        integerText(a.ElapsedTime),
		c.TotalElevationGain: a.TotalElevationGain,
		c.MaxSpeed:           decimalText(a.MaxSpeed),
		c.AverageHeartrate:   a.AverageHeartrate,
		c.MaxHeartrate:       a.MaxHeartrate,
		c.ElevHigh:           decimalText(a.ElevHigh),
	}
}

func (c ActivityColumns) activity(f Fields) store.Activity {
	id, _ := intField(f[c.ActivityID])
	owner, _ := intField(f[c.OwnerUserID])

	a := store.Activity{
		ActivityID:         id,
		OwnerUserID:        owner,
		Name:               stringField(f[c.Name]),
		Type:               stringField(f[c.Type]),
		StartDate:          timeField(f[c.StartDate]),
		Distance:           floatField(f[c.Distance]),
		AverageSpeed:       floatField(f[c.AverageSpeed]),
		TotalElevationGain: floatField(f[c.TotalElevationGain]),
		MaxSpeed:           floatField(f[c.MaxSpeed]),
		AverageHeartrate:   floatField(f[c.AverageHeartrate]),
		MaxHeartrate:       floatField(f[c.MaxHeartrate]),
		ElevHigh:           floatField(f[c.ElevHigh]),
	}
	if v, ok := intField(f[c.MovingTime]); ok {
		a.MovingTime = &v
	}
	if v, ok := intField(f[c.ElapsedTime]); ok {
		a.ElapsedTime = &v
	}
	return a
}

// Cell encoders. A nil *float64 is encoded by encoding/json as null.

func isoTime(t time.Time) any {
	if t.IsZero() {
		return nil
	}
	return t.UTC().Format(time.RFC3339)
}

func decimalText(p *float64) any {
	if p == nil {
		return nil
	}
	return strconv.FormatFloat(*p, 'f', -1, 64)
}

func integerText(p *int64) any {
	if p == nil {
		return nil
	}
	return strconv.FormatInt(*p, 10)
}

// Cell decoders. Airtable omits empty cells from the fields object.

func stringField(v any) string {
	s, _ := v.(string)
	return s
}

func floatField(v any) *float64 {
	switch x := v.(type) {
	case float64:
		return &x
	case string:
		if x == "" {
			return nil
		}
		f, err := strconv.ParseFloat(x, 64)
		if err != nil {
			return nil
		}
		return &f
	}
	return nil
}

func intField(v any) (int64, bool) {
	f := floatField(v)
	if f == nil {
		return 0, false
	}
	return int64(*f), true
}

func timeField(v any) time.Time {
	s, _ := v.(string)
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}
	}
	return t
}
