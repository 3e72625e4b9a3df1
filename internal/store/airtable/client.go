// Package airtable implements store.Store on top of two Airtable tables.
package airtable

import (
	"context"
	"fmt"
	"net/http"

	at "github.com/mehanizm/airtable"
)

// DefaultURL is the Airtable REST API root
const DefaultURL = "https://api.airtable.com/v0"

// Fields is a record's cell values keyed by column name
type Fields = map[string]any

// newClient builds the API client. A zero rateLimit keeps the library's
// default, which stays under Airtable's five requests per second per base.
func newClient(baseURL, token string, rateLimit int, httpClient *http.Client) (*at.Client, error) {
	c := at.NewClient(token)
	if httpClient != nil {
		c.SetCustomClient(httpClient)
	}
	if baseURL != "" {
		if err := c.SetBaseURL(baseURL); err != nil {
			return nil, fmt.Errorf("airtable base url: %w", err)
		}
	}
	if rateLimit > 0 {
		c.SetRateLimit(rateLimit)
	}
	return c, nil
}

// listRecords returns every record matching formula, following pagination offsets
func listRecords(ctx context.Context, table *at.Table, formula string) ([]*at.Record, error) {
	var records []*at.Record
	offset := ""

	for {
		req := table.GetRecords()
		if formula != "" {
			req = req.WithFilterFormula(formula)
		}
		if offset != "" {
			req = req.WithOffset(offset)
		}

		page, err := req.DoContext(ctx)
		if err != nil {
			return nil, err
		}
		records = append(records, page.Records...)

		if page.Offset == "" {
			return records, nil
		}
		offset = page.Offset
	}
}

func createRecord(ctx context.Context, table *at.Table, fields Fields) error {
	_, err := table.AddRecordsContext(ctx, &at.Records{
		Records: []*at.Record{{Fields: fields}},
	})
	return err
}

func updateRecord(ctx context.Context, table *at.Table, recordID string, fields Fields) error {
	_, err := table.UpdateRecordsPartialContext(ctx, &at.Records{
		Records: []*at.Record{{ID: recordID, Fields: fields}},
	})
	return err
}
