package bridge

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"carelink-bridge/internal/domain"
	"carelink-bridge/internal/storage"
)

// DefaultEntriesWindow is the range served by the entries handler when none is given.
const DefaultEntriesWindow = 24 * time.Hour

// Status is a point-in-time view of the runner.
type Status struct {
	Started     time.Time  `json:"started"`
	Cycles      int        `json:"cycles"`
	LastCycle   *time.Time `json:"last_cycle,omitempty"`
	LastSgvDate int64      `json:"last_sgv_date"`
	LastError   string     `json:"last_error,omitempty"`
	Targets     []string   `json:"targets"`
}

// Status returns a copy of the runner status. Safe for concurrent use.
func (r *Runner) Status() Status {
	r.mu.Lock()
	defer r.mu.Unlock()
	s := r.status
	s.Targets = append([]string(nil), r.status.Targets...)
	return s
}

func (r *Runner) recordStatus(failures []string, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.status.Cycles++
	now := time.Now()
	r.status.LastCycle = &now
	if lsd := r.mark.LastSgvDate(); lsd > 0 {
		r.status.LastSgvDate = lsd
	}
	switch {
	case err != nil:
		r.status.LastError = err.Error()
	case len(failures) > 0:
		r.status.LastError = strings.Join(failures, "; ")
	default:
		r.status.LastError = ""
	}
}

func targetNames(targets []Target) []string {
	names := make([]string, 0, len(targets))
	for _, t := range targets {
		names = append(names, t.Name())
	}
	return names
}

// StatusResponse is the JSON response for the /status endpoint.
type StatusResponse struct {
	Status
	Uptime string       `json:"uptime"`
	Latest domain.Entry `json:"latest,omitempty"`
}

// StatusHandler serves the runner status as JSON. When mirror is not nil the newest
// mirrored reading is included.
func StatusHandler(r *Runner, mirror storage.EntryStore) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		st := r.Status()
		resp := StatusResponse{Status: st}
		if !st.Started.IsZero() {
			resp.Uptime = time.Since(st.Started).Round(time.Second).String()
		}

		if mirror != nil {
			latest, err := mirror.GetLatestSGV(req.Context())
			switch {
			case err == nil:
				resp.Latest = latest
			case !errors.Is(err, storage.ErrNotFound):
				http.Error(w, err.Error(), http.StatusInternalServerError)
				return
			}
		}

		writeJSON(w, resp)
	})
}

// EntriesHandler serves mirrored entries between the from and to query parameters,
// both Unix ms and inclusive. Missing bounds default to the last 24 hours.
func EntriesHandler(mirror storage.EntryStore) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		now := time.Now()
		to, err := msParam(req, "to", now.UnixMilli())
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		from, err := msParam(req, "from", time.UnixMilli(to).Add(-DefaultEntriesWindow).UnixMilli())
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		if from > to {
			http.Error(w, "from must not be after to", http.StatusBadRequest)
			return
		}

		entries, err := mirror.GetByTimeRange(req.Context(), from, to)
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		if entries == nil {
			entries = []domain.Entry{}
		}
		writeJSON(w, entries)
	})
}

func msParam(req *http.Request, name string, def int64) (int64, error) {
	raw := req.URL.Query().Get(name)
	if raw == "" {
		return def, nil
	}
	v, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0, errors.New("invalid " + name + ": " + raw)
	}
	return v, nil
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(v)
}
