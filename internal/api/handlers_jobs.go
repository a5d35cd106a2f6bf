package api

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/sidewalk-timeline/server/internal/jobstore"
	"github.com/sidewalk-timeline/server/internal/selection"
	"github.com/sidewalk-timeline/server/internal/service"
)

type stateRequest struct {
	State *selection.State `json:"state"`
	Event selection.Event  `json:"event"`
}

// stateHandler applies one UI event to the posted state. A missing state
// starts from the overview.
func stateHandler(svc *service.TimelineService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req stateRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "invalid request body: "+err.Error(), http.StatusBadRequest)
			return
		}
		state := selection.Initial()
		if req.State != nil {
			state = *req.State
		}
		writeJSON(w, http.StatusOK, svc.Reduce(state, req.Event))
	}
}

type prefetchRequest struct {
	Tiles   []string `json:"tiles"`
	Years   []int    `json:"years"`
	Formats []string `json:"formats"`
}

func prefetchSubmitHandler(svc *service.TimelineService, jm *JobManager) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if jm == nil {
			http.Error(w, "job manager not configured", http.StatusNotImplemented)
			return
		}

		var req prefetchRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "invalid request body: "+err.Error(), http.StatusBadRequest)
			return
		}
		norm, err := svc.Normalize(service.PrefetchRequest{Tiles: req.Tiles, Years: req.Years, Formats: req.Formats})
		if err != nil {
			writeError(w, err)
			return
		}

		job, err := jm.Submit(jobstore.JobParams{Tiles: norm.Tiles, Years: norm.Years, Formats: norm.Formats})
		if err != nil {
			http.Error(w, "failed to submit job: "+err.Error(), http.StatusInternalServerError)
			return
		}
		writeJSON(w, http.StatusAccepted, map[string]interface{}{
			"job_id": job.ID,
			"status": job.Status,
			"total":  norm.Total(),
		})
	}
}

func prefetchListHandler(jm *JobManager) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if jm == nil {
			http.Error(w, "job manager not configured", http.StatusNotImplemented)
			return
		}
		limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
		jobs, err := jm.List(limit)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]interface{}{"jobs": jobs})
	}
}

func prefetchStatusHandler(jm *JobManager) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if jm == nil {
			http.Error(w, "job manager not configured", http.StatusNotImplemented)
			return
		}
		job := jm.Get(chi.URLParam(r, "job_id"))
		if job == nil {
			http.Error(w, "job not found", http.StatusNotFound)
			return
		}
		writeJSON(w, http.StatusOK, job)
	}
}

// prefetchCancelHandler cancels an unfinished job, or deletes a finished
// one.
func prefetchCancelHandler(jm *JobManager) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if jm == nil {
			http.Error(w, "job manager not configured", http.StatusNotImplemented)
			return
		}
		id := chi.URLParam(r, "job_id")
		job := jm.Get(id)
		if job == nil {
			http.Error(w, "job not found", http.StatusNotFound)
			return
		}

		if job.Status.Terminal() {
			if err := jm.Delete(id); err != nil {
				writeError(w, err)
				return
			}
			writeJSON(w, http.StatusOK, map[string]interface{}{"job_id": id, "deleted": true})
			return
		}
		writeJSON(w, http.StatusOK, map[string]interface{}{"job_id": id, "cancelled": jm.Cancel(id)})
	}
}
