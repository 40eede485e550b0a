package handlers

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"podqueue/internal/jobs"
	"podqueue/internal/store/memstore"
	"podqueue/pkg/api"

	"github.com/google/uuid"
)

func TestGetJobLogs(t *testing.T) {
	s := memstore.New()
	ctx := context.Background()
	job, err := jobs.Enqueue(ctx, s, nil, jobs.SyncPodcasts, nil)
	if err != nil {
		t.Fatal(err)
	}
	for i := 1; i <= 3; i++ {
		if err := s.AddJobLog(ctx, job.ID, fmt.Sprintf("line %d", i)); err != nil {
			t.Fatal(err)
		}
	}
	h := newTestHandlers(s)

	get := func(query string) api.GetLogsResponse {
		t.Helper()
		req := httptest.NewRequest(http.MethodGet, "/jobs/"+job.ID.String()+"/logs"+query, nil)
		rr := serve(h, "GET /jobs/{id}/logs", h.GetJobLogs, req)
		if rr.Code != http.StatusOK {
			t.Fatalf("got status %d, want 200", rr.Code)
		}
		return decode[api.GetLogsResponse](t, rr)
	}

	all := get("")
	if len(all.Logs) != 3 || all.Logs[0].Content != "line 1" {
		t.Fatalf("unexpected logs %+v", all.Logs)
	}

	after := get(fmt.Sprintf("?after_id=%d", all.Logs[0].ID))
	if len(after.Logs) != 2 || after.Logs[0].Content != "line 2" {
		t.Errorf("after_id: unexpected logs %+v", after.Logs)
	}

	limited := get("?limit=1")
	if len(limited.Logs) != 1 {
		t.Errorf("limit: got %d logs, want 1", len(limited.Logs))
	}
}

func TestGetJobLogs_Errors(t *testing.T) {
	h := newTestHandlers(memstore.New())

	tests := []struct {
		id   string
		want int
	}{
		{"bogus", http.StatusBadRequest},
		{uuid.NewString(), http.StatusNotFound},
	}
	for _, tt := range tests {
		req := httptest.NewRequest(http.MethodGet, "/jobs/"+tt.id+"/logs", nil)
		rr := serve(h, "GET /jobs/{id}/logs", h.GetJobLogs, req)
		if rr.Code != tt.want {
			t.Errorf("id %s: got status %d, want %d", tt.id, rr.Code, tt.want)
		}
	}
}
