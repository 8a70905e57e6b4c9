package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/google/uuid"

	"datapipe/console/internal/catalog"
	"datapipe/console/internal/jobs"
	"datapipe/console/internal/params"
	"datapipe/console/internal/queue"
	"datapipe/console/internal/relay"
)

type submitRequest struct {
	JobType      string        `json:"job_type"`
	JobID        string        `json:"job_id"`
	Params       params.Params `json:"params"`
	IgnoreResult bool          `json:"ignore_result"`
}

// handleSubmit accepts a job, saves its parameters as the page's last
// settings, enqueues it and acknowledges immediately. Completion arrives
// later on /stream.
func (s *server) handleSubmit(w http.ResponseWriter, r *http.Request) {
	var req submitRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body: "+err.Error(), http.StatusBadRequest)
		return
	}

	jobType, err := jobs.ParseType(req.JobType)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	jobID := req.JobID
	if jobID == "" {
		jobID = uuid.NewString()
	}

	if s.settings != nil {
		if err := s.settings.Save(r.Context(), jobType, req.Params); err != nil {
			log.Printf("save settings for %s: %v", jobType, err)
		}
	}

	job := jobs.Job{
		ID:           jobID,
		Type:         jobType,
		Params:       req.Params,
		IgnoreResult: req.IgnoreResult,
		SubmittedAt:  time.Now().UTC(),
	}
	if err := s.queue.Submit(r.Context(), job); err != nil {
		if errors.Is(err, queue.ErrDuplicateJob) {
			http.Error(w, err.Error(), http.StatusConflict)
			return
		}
		log.Printf("submit job %s: %v", jobID, err)
		http.Error(w, "work queue unavailable", http.StatusServiceUnavailable)
		return
	}

	writeJSON(w, http.StatusAccepted, map[string]string{"job_id": jobID})
}

// handleStream is the live completion feed: one bus subscription per
// request, torn down when the client goes away.
func (s *server) handleStream(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}

	channel := r.URL.Query().Get("channel")
	if channel == "" {
		channel = s.cfg.Channel
	}

	events, err := relay.New(s.bus, s.queue, channel).Stream(r.Context())
	if err != nil {
		log.Printf("open stream on %s: %v", channel, err)
		http.Error(w, "completion bus unavailable", http.StatusServiceUnavailable)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	for event := range events {
		fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event.Channel, event.JobID)
		flusher.Flush()
	}
}

// handleSettings returns the last-submitted parameter set for a page.
func (s *server) handleSettings(w http.ResponseWriter, r *http.Request) {
	jobType, err := jobs.ParseType(r.URL.Query().Get("page"))
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if s.settings == nil {
		w.WriteHeader(http.StatusNoContent)
		return
	}

	p, err := s.settings.Load(r.Context(), jobType)
	if err != nil {
		log.Printf("load settings for %s: %v", jobType, err)
		w.WriteHeader(http.StatusNoContent)
		return
	}
	if len(p) == 0 {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

func (s *server) handleDatabases(w http.ResponseWriter, r *http.Request) {
	if s.catalog == nil {
		w.WriteHeader(http.StatusNoContent)
		return
	}

	databases, err := s.catalog.Databases(r.Context())
	if err != nil {
		log.Printf("list databases: %v", err)
		w.WriteHeader(http.StatusNoContent)
		return
	}
	if len(databases) == 0 {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	writeJSON(w, http.StatusOK, databases)
}

func (s *server) handleTables(w http.ResponseWriter, r *http.Request) {
	database := r.URL.Query().Get("database")
	if database == "" {
		http.Error(w, "database parameter required", http.StatusBadRequest)
		return
	}
	if s.catalog == nil {
		w.WriteHeader(http.StatusNoContent)
		return
	}

	tables, err := s.catalog.Tables(r.Context(), database, r.URL.Query()["suffix"])
	if err != nil {
		log.Printf("list tables for %s: %v", database, err)
		w.WriteHeader(http.StatusNoContent)
		return
	}
	if len(tables) == 0 {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	writeJSON(w, http.StatusOK, tables)
}

func (s *server) handleDates(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	database, table := query.Get("database"), query.Get("table")
	if database == "" || table == "" {
		http.Error(w, "database and table parameters required", http.StatusBadRequest)
		return
	}
	if s.catalog == nil {
		w.WriteHeader(http.StatusNoContent)
		return
	}

	dates, err := s.catalog.Dates(r.Context(), database, table, query.Get("start_date"), query.Get("end_date"))
	if err != nil {
		if errors.Is(err, catalog.ErrInvalidIdentifier) {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		log.Printf("list dates for %s.%s: %v", database, table, err)
		w.WriteHeader(http.StatusNoContent)
		return
	}
	if len(dates) == 0 {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	writeJSON(w, http.StatusOK, dates)
}

// handleCount answers whether the requested slice holds any rows: 200 when
// it does, 404 when it does not.
func (s *server) handleCount(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	database, table := query.Get("database"), query.Get("table")
	if database == "" || table == "" {
		http.Error(w, "database and table parameters required", http.StatusBadRequest)
		return
	}
	if s.catalog == nil {
		http.Error(w, "no rows found", http.StatusNotFound)
		return
	}

	count, err := s.catalog.Count(r.Context(), database, table, query.Get("start_date"), query.Get("end_date"))
	if err != nil {
		if errors.Is(err, catalog.ErrInvalidIdentifier) {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		log.Printf("count rows for %s.%s: %v", database, table, err)
		count = 0
	}
	if count == 0 {
		http.Error(w, "no rows found", http.StatusNotFound)
		return
	}
	w.WriteHeader(http.StatusOK)
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		log.Printf("write response: %v", err)
	}
}
