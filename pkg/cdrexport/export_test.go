package cdrexport

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/sebdah/goldie/v2"

	"github.com/voxlane/backoffice/pkg/models"
	"github.com/voxlane/backoffice/pkg/store"
)

func sampleCDRs() []*models.CDR {
	return []*models.CDR{
		{
			ID:            "cdr-1",
			CustomerID:    "c1",
			CallID:        "call-1",
			Direction:     "outbound",
			From:          "+15551230000",
			To:            "+447700900123",
			StartedAt:     time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC),
			Duration:      33,
			Billsec:       30,
			Disposition:   "answered",
			Prefix:        "447",
			RatePerMin:    models.NewMoney(0, 120000),
			Cost:          models.NewMoney(0, 60000),
			BillingStatus: models.BillingStatusBilled,
			CreatedAt:     time.Date(2024, 3, 1, 10, 1, 0, 0, time.UTC),
		},
		{
			ID:            "cdr-2",
			CustomerID:    "c1",
			CallID:        "call-2",
			Direction:     "inbound",
			From:          "+447700900999",
			To:            "+442079460000",
			StartedAt:     time.Date(2024, 3, 1, 11, 30, 0, 0, time.UTC),
			Duration:      5,
			Billsec:       0,
			Disposition:   "no_answer",
			BillingStatus: models.BillingStatusNoRate,
			CreatedAt:     time.Date(2024, 3, 1, 11, 30, 5, 0, time.UTC),
		},
	}
}

func golden(t *testing.T) *goldie.Goldie {
	return goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
}

func TestWriteGolden(t *testing.T) {
	for _, format := range []string{"csv", "json"} {
		t.Run(format, func(t *testing.T) {
			var buf bytes.Buffer
			if err := Write(&buf, format, sampleCDRs()); err != nil {
				t.Fatalf("Write failed: %v", err)
			}
			golden(t).Assert(t, "cdrs_"+format, buf.Bytes())
		})
	}
}

func TestWriteEmpty(t *testing.T) {
	var buf bytes.Buffer
	if err := Write(&buf, "json", nil); err != nil {
		t.Fatalf("Write failed: %v", err)
	}
	if buf.String() != "[]\n" {
		t.Errorf("empty JSON export = %q", buf.String())
	}

	var out []models.CDR
	buf.Reset()
	if err := Write(&buf, "JSON", sampleCDRs()); err != nil {
		t.Fatal(err)
	}
	if err := json.Unmarshal(buf.Bytes(), &out); err != nil || len(out) != 2 {
		t.Fatalf("export is not a JSON array of 2: %v", err)
	}
}

func TestUnknownFormat(t *testing.T) {
	if err := Write(&bytes.Buffer{}, "xlsx", nil); err == nil {
		t.Fatal("expected error for unknown format")
	}
	if f, err := ParseFormat(""); err != nil || f != FormatCSV {
		t.Errorf("empty format should default to csv, got %q %v", f, err)
	}
}

func TestStreamPagesThroughStore(t *testing.T) {
	ctx := context.Background()
	s := store.NewMemoryStore()
	base := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	const n = pageSize + 20
	for i := 0; i < n; i++ {
		c := &models.CDR{
			ID:            fmt.Sprintf("cdr-%04d", i),
			CustomerID:    "c1",
			CallID:        fmt.Sprintf("call-%04d", i),
			Direction:     "outbound",
			From:          "+15551230000",
			To:            "+447700900123",
			StartedAt:     base.Add(time.Duration(i) * time.Minute),
			Disposition:   "answered",
			BillingStatus: models.BillingStatusBilled,
			CreatedAt:     base,
		}
		if err := s.InsertCDR(ctx, c); err != nil {
			t.Fatalf("InsertCDR: %v", err)
		}
	}
	other := &models.CDR{ID: "x", CustomerID: "c2", CallID: "x", Direction: "outbound", StartedAt: base, BillingStatus: models.BillingStatusBilled}
	if err := s.InsertCDR(ctx, other); err != nil {
		t.Fatal(err)
	}

	var buf bytes.Buffer
	written, err := Stream(ctx, s, models.CDRFilter{CustomerID: "c1"}, &buf, FormatCSV)
	if err != nil {
		t.Fatalf("Stream failed: %v", err)
	}
	if written != n {
		t.Errorf("written = %d, want %d", written, n)
	}
	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != n+1 {
		t.Errorf("expected %d lines including header, got %d", n+1, len(lines))
	}
	if !strings.HasPrefix(lines[1], fmt.Sprintf("cdr-%04d,", n-1)) {
		t.Errorf("expected newest call first, got %q", lines[1])
	}
}

// ingestingSource stores a fresh call after every page it serves
type ingestingSource struct {
	*store.MemoryStore
	next int
}

func (s *ingestingSource) ListCDRs(ctx context.Context, f models.CDRFilter) ([]*models.CDR, int, error) {
	rows, total, err := s.MemoryStore.ListCDRs(ctx, f)
	if err != nil {
		return nil, 0, err
	}
	s.next++
	late := &models.CDR{
		ID:            fmt.Sprintf("late-%d", s.next),
		CustomerID:    "c1",
		CallID:        fmt.Sprintf("late-%d", s.next),
		Direction:     "outbound",
		StartedAt:     time.Now().UTC(),
		BillingStatus: models.BillingStatusBilled,
		CreatedAt:     time.Now().UTC().Add(time.Minute),
	}
	return rows, total, s.InsertCDR(ctx, late)
}

func TestStreamIgnoresRowsIngestedMidExport(t *testing.T) {
	ctx := context.Background()
	src := &ingestingSource{MemoryStore: store.NewMemoryStore()}
	base := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	const n = 2*pageSize + 5
	for i := 0; i < n; i++ {
		c := &models.CDR{
			ID:            fmt.Sprintf("cdr-%04d", i),
			CustomerID:    "c1",
			CallID:        fmt.Sprintf("call-%04d", i),
			Direction:     "outbound",
			StartedAt:     base.Add(time.Duration(i) * time.Minute),
			BillingStatus: models.BillingStatusBilled,
			CreatedAt:     base,
		}
		if err := src.InsertCDR(ctx, c); err != nil {
			t.Fatalf("InsertCDR: %v", err)
		}
	}

	var buf bytes.Buffer
	written, err := Stream(ctx, src, models.CDRFilter{CustomerID: "c1"}, &buf, FormatCSV)
	if err != nil {
		t.Fatalf("Stream failed: %v", err)
	}
	if written != n {
		t.Errorf("written = %d, want %d", written, n)
	}

	seen := make(map[string]bool, n)
	for _, line := range strings.Split(strings.TrimSpace(buf.String()), "\n")[1:] {
		id, _, _ := strings.Cut(line, ",")
		if seen[id] {
			t.Errorf("record %s exported twice", id)
		}
		if strings.HasPrefix(id, "late-") {
			t.Errorf("record %s ingested after the export started", id)
		}
		seen[id] = true
	}
	if len(seen) != n {
		t.Errorf("expected %d distinct records, got %d", n, len(seen))
	}
}
