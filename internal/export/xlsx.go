// Package export writes the stored credentials and activities to an XLSX
// workbook. Tokens are never exported.
package export

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/xuri/excelize/v2"

	"github.com/sestoltzf/strava-integration-at/internal/store"
)

const (
	SheetAthletes   = "Athletes"
	SheetActivities = "Activities"
)

// Source is the read side of the table store
type Source interface {
	ListCredentials(ctx context.Context) ([]store.Credential, error)
	ListActivities(ctx context.Context, ownerUserID int64) ([]store.Activity, error)
}

var athleteHeaders = []any{
	"Athlete ID", "Name", "Email", "Active", "Token Expiry", "Last Synced", "Created", "Last Login",
}

var activityHeaders = []any{
	"Activity ID", "Athlete ID", "Name", "Type", "Start", "Distance (m)", "Moving Time (s)",
	"Elapsed Time (s)", "Average Speed (m/s)", "Max Speed (m/s)", "Elevation Gain (m)",
	"Elevation High (m)", "Average Heart Rate", "Max Heart Rate",
}

// WriteWorkbook writes one sheet of athletes and one of activities to w
func WriteWorkbook(ctx context.Context, src Source, w io.Writer) error {
	creds, err := src.ListCredentials(ctx)
	if err != nil {
		return fmt.Errorf("listing credentials: %w", err)
	}
	activities, err := src.ListActivities(ctx, 0)
	if err != nil {
		return fmt.Errorf("listing activities: %w", err)
	}

	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", SheetAthletes); err != nil {
		return fmt.Errorf("naming sheet: %w", err)
	}
	if _, err := f.NewSheet(SheetActivities); err != nil {
		return fmt.Errorf("creating sheet: %w", err)
	}

	athleteRows := make([][]any, 0, len(creds))
	for _, c := range creds {
		athleteRows = append(athleteRows, []any{
			c.ExternalUserID,
			sanitizeForExcel(c.DisplayName),
			sanitizeForExcel(c.Email),
			c.Active,
			timeCell(c.TokenExpiry),
			timeCell(c.LastSyncedAt),
			timeCell(c.CreatedAt),
			timeCell(c.LastLoginAt),
		})
	}
	if err := writeSheet(f, SheetAthletes, athleteHeaders, athleteRows); err != nil {
		return err
	}

	activityRows := make([][]any, 0, len(activities))
	for _, a := range activities {
		activityRows = append(activityRows, []any{
			a.ActivityID,
			a.OwnerUserID,
			sanitizeForExcel(a.Name),
			sanitizeForExcel(a.Type),
			timeCell(a.StartDate),
			floatCell(a.Distance),
			intCell(a.MovingTime),
			intCell(a.ElapsedTime),
			floatCell(a.AverageSpeed),
			floatCell(a.MaxSpeed),
			floatCell(a.TotalElevationGain),
			floatCell(a.ElevHigh),
			floatCell(a.AverageHeartrate),
			floatCell(a.MaxHeartrate),
		})
	}
	if err := writeSheet(f, SheetActivities, activityHeaders, activityRows); err != nil {
		return err
	}

	if err := f.Write(w); err != nil {
		return fmt.Errorf("writing workbook: %w", err)
	}
	return nil
}

func writeSheet(f *excelize.File, sheet string, headers []any, rows [][]any) error {
	sw, err := f.NewStreamWriter(sheet)
	if err != nil {
		return fmt.Errorf("stream writer for %s: %w", sheet, err)
	}
	if err := sw.SetRow("A1", headers); err != nil {
		return fmt.Errorf("writing %s headers: %w", sheet, err)
	}
	for i, row := range rows {
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return err
		}
		if err := sw.SetRow(cell, row); err != nil {
			return fmt.Errorf("writing %s row %d: %w", sheet, i+2, err)
		}
	}
	return sw.Flush()
}

// Missing values become empty cells
func floatCell(v *float64) any {
	if v == nil {
		return nil
	}
	return *v
}

func intCell(v *int64) any {
	if v == nil {
		return nil
	}
	return *v
}

func timeCell(t time.Time) any {
	if t.IsZero() {
		return nil
	}
	return t.UTC().Format(time.RFC3339)
}

// sanitizeForExcel escapes values that a spreadsheet would read as a formula
func sanitizeForExcel(s string) string {
	if s == "" {
		return s
	}
	switch s[0] {
	case '=', '+', '-', '@', '\t', '\r':
		return "'" + s
	}
	return s
}
