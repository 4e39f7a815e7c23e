package audit

import (
	"context"
	"encoding/csv"
	"strings"
	"testing"
	"time"
)

type stubTimelineRepo struct {
	rows      []TimelineRow
	lastQuery Query
}

func (s *stubTimelineRepo) Query(_ context.Context, q Query) ([]TimelineRow, error) {
	s.lastQuery = q
	if q.Limit > 0 && len(s.rows) > q.Limit {
		return s.rows[:q.Limit], nil
	}
	return s.rows, nil
}

func mockRow(id int64, ts, actor, action, entity, entityID string) TimelineRow {
	at, _ := time.Parse(time.RFC3339, ts)
	return TimelineRow{ID: id, At: at, ActorID: actor, Action: action, Entity: entity, EntityID: entityID}
}

func TestServiceTimelinePaging(t *testing.T) {
	repo := &stubTimelineRepo{
		rows: []TimelineRow{
			mockRow(3, "2024-03-10T10:00:00Z", "u-1", "register", "user", "u-9"),
			mockRow(2, "2024-03-09T09:00:00Z", "u-1", "grant_permission", "role", "r-1"),
			mockRow(1, "2024-03-08T08:00:00Z", "u-1", "create_role", "role", "r-1"),
		},
	}
	svc := NewService(repo)
	result, err := svc.Timeline(context.Background(), TimelineFilters{
		From:     time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC),
		To:       time.Date(2024, 3, 31, 0, 0, 0, 0, time.UTC),
		Page:     1,
		PageSize: 2,
	})
	if err != nil {
		t.Fatalf("timeline: %v", err)
	}
	if len(result.Rows) != 2 {
		t.Fatalf("expected 2 rows, got %d", len(result.Rows))
	}
	if !result.Paging.HasNext || result.Paging.NextPage != 2 {
		t.Fatalf("expected a next page, got %+v", result.Paging)
	}
	if repo.lastQuery.Limit != 3 {
		t.Fatalf("expected limit 3, got %d", repo.lastQuery.Limit)
	}
	if repo.lastQuery.Offset != 0 {
		t.Fatalf("expected offset 0, got %d", repo.lastQuery.Offset)
	}
}

func TestServiceTimelineClampsPageSize(t *testing.T) {
	repo := &stubTimelineRepo{}
	svc := NewService(repo)

	result, err := svc.Timeline(context.Background(), TimelineFilters{Page: 3, PageSize: 500, Entity: "  role "})
	if err != nil {
		t.Fatalf("timeline: %v", err)
	}
	if result.Paging.PageSize != maxPageSize {
		t.Fatalf("expected page size %d, got %d", maxPageSize, result.Paging.PageSize)
	}
	if repo.lastQuery.Offset != 2*maxPageSize {
		t.Fatalf("expected offset %d, got %d", 2*maxPageSize, repo.lastQuery.Offset)
	}
	if repo.lastQuery.Entity != "role" {
		t.Fatalf("expected trimmed entity filter, got %q", repo.lastQuery.Entity)
	}
	if result.Rows == nil || result.Paging.PrevPage != 2 {
		t.Fatalf("expected empty rows and prev page 2, got %+v", result)
	}
}

func TestServiceExportCapsRows(t *testing.T) {
	repo := &stubTimelineRepo{rows: []TimelineRow{mockRow(1, "2024-03-08T08:00:00Z", "", "register", "user", "u-1")}}
	svc := NewService(repo)

	rows, err := svc.Export(context.Background(), TimelineFilters{Action: "register"})
	if err != nil {
		t.Fatalf("export: %v", err)
	}
	if len(rows) != 1 {
		t.Fatalf("expected 1 row, got %d", len(rows))
	}
	if repo.lastQuery.Limit != MaxExportRows || repo.lastQuery.Action != "register" {
		t.Fatalf("unexpected query %+v", repo.lastQuery)
	}
}

func TestWriteCSV(t *testing.T) {
	row := mockRow(7, "2024-03-08T08:00:00Z", "u-1", "update_user", "user", "u-2")
	row.Meta = map[string]any{"fields": "email,location"}

	out, err := WriteCSV([]TimelineRow{row})
	if err != nil {
		t.Fatalf("write csv: %v", err)
	}
	records, err := csv.NewReader(strings.NewReader(string(out))).ReadAll()
	if err != nil {
		t.Fatalf("read csv: %v", err)
	}
	if len(records) != 2 {
		t.Fatalf("expected header plus one row, got %d", len(records))
	}
	if records[0][0] != "id" || records[1][0] != "7" || records[1][1] != "2024-03-08T08:00:00Z" {
		t.Fatalf("unexpected records %v", records)
	}
	if records[1][6] != `{"fields":"email,location"}` {
		t.Fatalf("unexpected meta column %q", records[1][6])
	}
}

func TestServiceWithoutRepository(t *testing.T) {
	if _, err := NewService(nil).Timeline(context.Background(), TimelineFilters{}); err == nil {
		t.Fatalf("expected error without repository")
	}
}
