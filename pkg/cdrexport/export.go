// Package cdrexport writes call detail records as CSV or JSON.
package cdrexport

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/voxlane/backoffice/pkg/models"
)

// MaxExportRows caps a single export
const MaxExportRows = 50000

// pageSize is the number of rows fetched per store query while streaming
const pageSize = 500

// Format is an export encoding
type Format string

const (
	FormatCSV  Format = "csv"
	FormatJSON Format = "json"
)

// ParseFormat accepts "csv" and "json", case-insensitively
func ParseFormat(s string) (Format, error) {
	switch f := Format(strings.ToLower(strings.TrimSpace(s))); f {
	case FormatCSV, FormatJSON:
		return f, nil
	case "":
		return FormatCSV, nil
	default:
		return "", fmt.Errorf("unsupported export format %q", s)
	}
}

// ContentType returns the HTTP content type of the format
func (f Format) ContentType() string {
	if f == FormatJSON {
		return "application/json"
	}
	return "text/csv; charset=utf-8"
}

// Header is the CSV column list
var Header = []string{
	"id", "call_id", "started_at", "direction", "from", "to", "duration", "billsec",
	"disposition", "prefix", "rate_per_min", "cost", "billing_status",
}

// Writer encodes records one at a time
type Writer interface {
	WriteCDR(c *models.CDR) error
	// Close finishes the document. It does not close the underlying writer.
	Close() error
}

// NewWriter returns a writer for format
func NewWriter(w io.Writer, format Format) (Writer, error) {
	switch format {
	case FormatCSV:
		cw := csv.NewWriter(w)
		if err := cw.Write(Header); err != nil {
			return nil, err
		}
		return &csvWriter{w: cw}, nil
	case FormatJSON:
		return &jsonWriter{w: w}, nil
	default:
		return nil, fmt.Errorf("unsupported export format %q", format)
	}
}

type csvWriter struct {
	w *csv.Writer
}

func (c *csvWriter) WriteCDR(r *models.CDR) error {
	return c.w.Write([]string{
		r.ID,
		r.CallID,
		r.StartedAt.UTC().Format(time.RFC3339),
		r.Direction,
		r.From,
		r.To,
		strconv.Itoa(r.Duration),
		strconv.Itoa(r.Billsec),
		r.Disposition,
		r.Prefix,
		r.RatePerMin.String(),
		r.Cost.String(),
		r.BillingStatus,
	})
}

func (c *csvWriter) Close() error {
	c.w.Flush()
	return c.w.Error()
}

type jsonWriter struct {
	w     io.Writer
	count int
}

func (j *jsonWriter) WriteCDR(r *models.CDR) error {
	data, err := json.Marshal(r)
	if err != nil {
		return err
	}
	sep := ",\n"
	if j.count == 0 {
		sep = "[\n"
	}
	if _, err := io.WriteString(j.w, sep); err != nil {
		return err
	}
	j.count++
	_, err = j.w.Write(data)
	return err
}

func (j *jsonWriter) Close() error {
	end := "\n]\n"
	if j.count == 0 {
		end = "[]\n"
	}
	_, err := io.WriteString(j.w, end)
	return err
}

// Write encodes cdrs as one document
func Write(w io.Writer, format string, cdrs []*models.CDR) error {
	f, err := ParseFormat(format)
	if err != nil {
		return err
	}
	ew, err := NewWriter(w, f)
	if err != nil {
		return err
	}
	for _, c := range cdrs {
		if err := ew.WriteCDR(c); err != nil {
			return err
		}
	}
	return ew.Close()
}

// Source lists call records page by page
type Source interface {
	ListCDRs(ctx context.Context, f models.CDRFilter) ([]*models.CDR, int, error)
}

// Stream pages through src and writes at most MaxExportRows records. It returns the number written.
// Records ingested after the export starts are left out so offsets stay stable between pages.
func Stream(ctx context.Context, src Source, filter models.CDRFilter, w io.Writer, format Format) (int, error) {
	ew, err := NewWriter(w, format)
	if err != nil {
		return 0, err
	}
	if filter.CreatedUntil == nil {
		until := time.Now().UTC()
		filter.CreatedUntil = &until
	}

	written := 0
	filter.Offset = 0
	for written < MaxExportRows {
		filter.Limit = min(pageSize, MaxExportRows-written)
		rows, _, err := src.ListCDRs(ctx, filter)
		if err != nil {
			return written, fmt.Errorf("failed to list CDRs: %w", err)
		}
		for _, r := range rows {
			if err := ew.WriteCDR(r); err != nil {
				return written, err
			}
			written++
		}
		if len(rows) < filter.Limit {
			break
		}
		filter.Offset += len(rows)
	}
	return written, ew.Close()
}
