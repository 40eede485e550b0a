package cmd

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"podqueue/pkg/api"

	"github.com/spf13/viper"
)

// apiServer answers every request with handler and points podctl at it.
func apiServer(t *testing.T, handler http.HandlerFunc) {
	t.Helper()
	resetViper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	viper.Set("url", srv.URL)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func TestImportCommand(t *testing.T) {
	tests := []struct {
		name   string
		status int
		resp   api.ImportPodcastResponse
		want   string
	}{
		{"new podcast", http.StatusAccepted, api.ImportPodcastResponse{PodcastID: "pod-1", JobID: "job-1", Status: "importing", IsNew: true}, "Podcast created"},
		{"retry after error", http.StatusAccepted, api.ImportPodcastResponse{PodcastID: "pod-1", JobID: "job-2", Status: "importing"}, "queued again"},
		{"already imported", http.StatusOK, api.ImportPodcastResponse{PodcastID: "pod-1", Status: "ready"}, "already imported"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			apiServer(t, func(w http.ResponseWriter, r *http.Request) {
				if r.Method != http.MethodPost || r.URL.Path != "/podcasts/import" {
					t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
				}
				var req api.ImportPodcastRequest
				json.NewDecoder(r.Body).Decode(&req)
				if req.FeedURL != "https://example.com/rss" {
					t.Errorf("feed_url = %q", req.FeedURL)
				}
				writeJSON(w, tt.status, tt.resp)
			})

			out, err := execute(t, "import", "https://example.com/rss")
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if !strings.Contains(out, tt.want) || !strings.Contains(out, "pod-1") {
				t.Errorf("unexpected output: %s", out)
			}
		})
	}
}

func TestImportCommand_APIError(t *testing.T) {
	apiServer(t, func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusBadRequest, api.ErrorResponse{Error: "feed_url must be an http or https URL", Code: "400"})
	})

	out, err := execute(t, "import", "ftp://nope")
	if err == nil {
		t.Fatal("expected error")
	}
	if !strings.Contains(out, "feed_url must be an http or https URL") {
		t.Errorf("expected API message in output, got: %s", out)
	}
}

func TestEpisodeCommands(t *testing.T) {
	routes := map[string]string{
		"transcribe": "/episodes/ep-1/transcribe",
		"summarize":  "/episodes/ep-1/summarize",
		"entities":   "/episodes/ep-1/extract-entities",
		"topics":     "/episodes/ep-1/extract-topics",
	}

	for command, path := range routes {
		t.Run(command, func(t *testing.T) {
			apiServer(t, func(w http.ResponseWriter, r *http.Request) {
				if r.Method != http.MethodPost || r.URL.Path != path {
					t.Errorf("unexpected request %s %s, want POST %s", r.Method, r.URL.Path, path)
				}
				writeJSON(w, http.StatusAccepted, api.EnqueueResponse{JobID: "job-9"})
			})

			out, err := execute(t, command, "ep-1")
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if !strings.Contains(out, "Job queued: job-9") {
				t.Errorf("unexpected output: %s", out)
			}
		})
	}
}

func TestJobCommand(t *testing.T) {
	started := time.Now().Add(-10 * time.Minute)
	finished := time.Now().Add(-9 * time.Minute)
	errMsg := "transcription failed: 429"

	apiServer(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/jobs/job-1" {
			t.Errorf("unexpected path: %s", r.URL.Path)
		}
		writeJSON(w, http.StatusOK, api.JobResponse{
			ID:          "job-1",
			Type:        "episode_transcription",
			Status:      "failed",
			Retries:     3,
			Error:       &errMsg,
			StartedAt:   &started,
			CompletedAt: &finished,
			CreatedAt:   started,
		})
	})

	out, err := execute(t, "job", "job-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	for _, want := range []string{"job-1", "episode_transcription", "FAILED", "transcription failed: 429", "1m 0s"} {
		if !strings.Contains(out, want) {
			t.Errorf("expected %q in output, got: %s", want, out)
		}
	}
}

func TestJobCommand_NotFound(t *testing.T) {
	apiServer(t, func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusNotFound, api.ErrorResponse{Error: "Job not found", Code: "404"})
	})

	_, err := execute(t, "job", "missing")
	if err == nil || !strings.Contains(err.Error(), "404") {
		t.Errorf("expected 404 error, got %v", err)
	}
}

func TestJobsCommand(t *testing.T) {
	errMsg := "no handler registered for job type x"
	apiServer(t, func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		if q.Get("status") != "failed" || q.Get("type") != "extract_topics" || q.Get("limit") != "5" {
			t.Errorf("unexpected query: %s", r.URL.RawQuery)
		}
		writeJSON(w, http.StatusOK, api.ListJobsResponse{Jobs: []api.JobResponse{
			{ID: "job-1", Type: "extract_topics", Status: "failed", Retries: 3, Error: &errMsg, CreatedAt: time.Now()},
		}})
	})
	defer func() { jobsStatus, jobsType, jobsLimit = "", "", 20 }()

	out, err := execute(t, "jobs", "--status", "failed", "--type", "extract_topics", "--limit", "5")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(out, "job-1") || !strings.Contains(out, "STATUS") {
		t.Errorf("unexpected output: %s", out)
	}
}

func TestJobsCommand_Empty(t *testing.T) {
	apiServer(t, func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, api.ListJobsResponse{Jobs: []api.JobResponse{}})
	})

	out, err := execute(t, "jobs")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(out, "No jobs found") {
		t.Errorf("unexpected output: %s", out)
	}
}

func TestSyncCommand(t *testing.T) {
	apiServer(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer s3cret" {
			t.Errorf("expected Bearer token, got: %s", r.Header.Get("Authorization"))
		}
		writeJSON(w, http.StatusAccepted, api.SyncResponse{JobID: "job-5", Created: true})
	})
	viper.Set("token", "s3cret")

	out, err := execute(t, "sync")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(out, "Sync queued: job-5") {
		t.Errorf("unexpected output: %s", out)
	}
}

func TestSyncCommand_MissingToken(t *testing.T) {
	apiServer(t, func(w http.ResponseWriter, r *http.Request) {
		t.Error("no request expected without a token")
	})
	viper.Set("token", "")

	out, err := execute(t, "sync")
	if err == nil {
		t.Fatal("expected error")
	}
	if !strings.Contains(out, "PODQUEUE_TOKEN") {
		t.Errorf("expected hint about PODQUEUE_TOKEN, got: %s", out)
	}
}
