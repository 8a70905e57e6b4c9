package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"reflect"
	"testing"

	"datapipe/console/internal/jobs"
	"datapipe/console/internal/params"
)

func testClient(t *testing.T, handler http.Handler) *Client {
	t.Helper()

	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	client, err := NewClient(server.URL)
	if err != nil {
		t.Fatalf("NewClient() error = %v", err)
	}
	return client
}

func TestSubmitReturnsAssignedID(t *testing.T) {
	var got submitPayload
	client := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/task" {
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Errorf("decode request: %v", err)
		}
		w.WriteHeader(http.StatusAccepted)
		fmt.Fprint(w, `{"job_id": "generated-id"}`)
	}))

	var p params.Params
	if err := json.Unmarshal([]byte(`{"table": "t1"}`), &p); err != nil {
		t.Fatalf("unmarshal params: %v", err)
	}

	jobID, err := client.Submit(context.Background(), jobs.TypeInsertData, "", p, false)
	if err != nil {
		t.Fatalf("Submit() error = %v", err)
	}
	if jobID != "generated-id" {
		t.Errorf("Submit() = %q, want %q", jobID, "generated-id")
	}
	if got.JobType != "insert-data" {
		t.Errorf("submitted job_type = %q, want %q", got.JobType, "insert-data")
	}
}

func TestSubmitDuplicate(t *testing.T) {
	client := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "job already queued", http.StatusConflict)
	}))

	_, err := client.Submit(context.Background(), jobs.TypePipeline, "abc", nil, false)
	if !errors.Is(err, ErrDuplicateJob) {
		t.Errorf("Submit() error = %v, want ErrDuplicateJob", err)
	}
}

func TestLastSettingsEmpty(t *testing.T) {
	client := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))

	p, err := client.LastSettings(context.Background(), jobs.TypeInsertData)
	if err != nil {
		t.Fatalf("LastSettings() error = %v", err)
	}
	if p != nil {
		t.Errorf("LastSettings() = %v, want nil", p)
	}
}

func TestTablesPassesFilters(t *testing.T) {
	client := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		query := r.URL.Query()
		if query.Get("database") != "warehouse" {
			t.Errorf("database = %q, want %q", query.Get("database"), "warehouse")
		}
		if want := []string{"_daily", "_hourly"}; !reflect.DeepEqual(query["suffix"], want) {
			t.Errorf("suffix = %v, want %v", query["suffix"], want)
		}
		fmt.Fprint(w, `["orders_daily", "clicks_hourly"]`)
	}))

	tables, err := client.Tables(context.Background(), "warehouse", []string{"_daily", "_hourly"})
	if err != nil {
		t.Fatalf("Tables() error = %v", err)
	}
	if want := []string{"orders_daily", "clicks_hourly"}; !reflect.DeepEqual(tables, want) {
		t.Errorf("Tables() = %v, want %v", tables, want)
	}
}

func TestHasRows(t *testing.T) {
	empty := false
	client := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if empty {
			http.Error(w, "no rows found", http.StatusNotFound)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))

	if err := client.HasRows(context.Background(), "warehouse", "t1", "2026-01-01", ""); err != nil {
		t.Errorf("HasRows() error = %v, want nil", err)
	}

	empty = true
	err := client.HasRows(context.Background(), "warehouse", "t1", "", "")
	if !errors.Is(err, ErrNoRows) {
		t.Errorf("HasRows() error = %v, want ErrNoRows", err)
	}
}

func TestWatchFindsJob(t *testing.T) {
	client := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		fmt.Fprint(w, "event: background\ndata: other\n\n")
		fmt.Fprint(w, "event: background\ndata: abc\n\n")
	}))

	if err := client.Watch(context.Background(), "background", "abc"); err != nil {
		t.Errorf("Watch() error = %v", err)
	}
}

func TestWatchStreamEndsWithoutJob(t *testing.T) {
	client := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		fmt.Fprint(w, "event: background\ndata: other\n\n")
	}))

	if err := client.Watch(context.Background(), "background", "abc"); err == nil {
		t.Error("Watch() error = nil, want stream closed error")
	}
}
