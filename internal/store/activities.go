package store

import (
	"context"
	"database/sql"
	"fmt"
)

const activityColumns = `activity_id, owner_user_id, name, type, start_date,
	distance, moving_time, elapsed_time, average_speed, max_speed,
	total_elevation_gain, elev_high, average_heartrate, max_heartrate`

// InsertActivity inserts a unless an activity with the same id exists
func (db *DB) InsertActivity(ctx context.Context, a *Activity) (bool, error) {
	result, err := db.ExecContext(ctx, `
		INSERT INTO activities (`+activityColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(activity_id) DO NOTHING
	`,
		a.ActivityID, a.OwnerUserID, a.Name, a.Type, formatTime(a.StartDate),
		nullFloat(a.Distance), nullInt(a.MovingTime), nullInt(a.ElapsedTime),
		nullFloat(a.AverageSpeed), nullFloat(a.MaxSpeed),
		nullFloat(a.TotalElevationGain), nullFloat(a.ElevHigh),
		nullFloat(a.AverageHeartrate), nullFloat(a.MaxHeartrate),
	)
	if err != nil {
		return false, WriteError("insert activity", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return false, WriteError("insert activity", err)
	}
	return rows > 0, nil
}

// ListActivities returns activities ordered by start date descending
func (db *DB) ListActivities(ctx context.Context, ownerUserID int64) ([]Activity, error) {
	query := `SELECT ` + activityColumns + ` FROM activities`
	var args []any
	if ownerUserID != 0 {
		query += ` WHERE owner_user_id = ?`
		args = append(args, ownerUserID)
	}
	query += ` ORDER BY start_date DESC, activity_id DESC`

	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("listing activities: %w", err)
	}
	defer rows.Close()

	return scanActivities(rows)
}

// CountActivities returns the total number of activities
func (db *DB) CountActivities(ctx context.Context) (int, error) {
	var count int
	err := db.QueryRowContext(ctx, "SELECT COUNT(*) FROM activities").Scan(&count)
	return count, err
}

func scanActivities(rows *sql.Rows) ([]Activity, error) {
	var activities []Activity

	for rows.Next() {
		var a Activity
		var startDate string
		var distance, avgSpeed, maxSpeed, elevGain, elevHigh, avgHR, maxHR sql.NullFloat64
		var movingTime, elapsedTime sql.NullInt64

		err := rows.Scan(
			&a.ActivityID, &a.OwnerUserID, &a.Name, &a.Type, &startDate,
			&distance, &movingTime, &elapsedTime, &avgSpeed, &maxSpeed,
			&elevGain, &elevHigh, &avgHR, &maxHR,
		)
		if err != nil {
			return nil, err
		}

		if a.StartDate, err = parseTime("start_date", startDate); err != nil {
			return nil, err
		}
		a.Distance = floatPtr(distance)
		a.MovingTime = intPtr(movingTime)
		a.ElapsedTime = intPtr(elapsedTime)
		a.AverageSpeed = floatPtr(avgSpeed)
		a.MaxSpeed = floatPtr(maxSpeed)
		a.TotalElevationGain = floatPtr(elevGain)
		a.ElevHigh = floatPtr(elevHigh)
		a.AverageHeartrate = floatPtr(avgHR)
		a.MaxHeartrate = floatPtr(maxHR)

		activities = append(activities, a)
	}

	return activities, rows.Err()
}
