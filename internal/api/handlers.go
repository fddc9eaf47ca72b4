package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/komasaru/iss-sgp4-json/internal/epoch"
	"github.com/komasaru/iss-sgp4-json/internal/iers"
	"github.com/komasaru/iss-sgp4-json/internal/tle"
	"github.com/komasaru/iss-sgp4-json/internal/track"
	"github.com/komasaru/iss-sgp4-json/internal/transform"
)

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// statusFor maps pipeline errors to HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, epoch.ErrCompactFormat):
		return http.StatusBadRequest
	case errors.Is(err, tle.ErrNoElements):
		return http.StatusNotFound
	case errors.Is(err, iers.ErrNotFound), errors.Is(err, transform.ErrDomain):
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}

// localTime reads a compact local civil timestamp from the query, defaulting
// to the current time.
func (s *Server) localTime(r *http.Request, key string) (epoch.Instant, error) {
	v := r.URL.Query().Get(key)
	if v == "" {
		return s.deps.Resolver.Converter.LocalNow(time.Now()), nil
	}
	return epoch.ParseCompact(v)
}

func queryInt(r *http.Request, key string, def int) (int, error) {
	v := r.URL.Query().Get(key)
	if v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("%s must be an integer", key)
	}
	if n < 0 {
		return 0, fmt.Errorf("%s must not be negative", key)
	}
	return n, nil
}

func (s *Server) generator(cfg track.Config) *track.Generator {
	return track.NewGenerator(s.deps.Resolver, s.deps.Store, s.deps.Pool, cfg, s.logger)
}

type positionResponse struct {
	NoradID int `json:"norad_id"`
	track.Point
}

// positionHandler serves GET /api/v1/position?time=YYYYMMDDhhmmss[frac]&norad_id=N.
func (s *Server) positionHandler(w http.ResponseWriter, r *http.Request) {
	local, err := s.localTime(r, "time")
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	cfg := s.deps.Track
	if cfg.NoradID, err = queryInt(r, "norad_id", cfg.NoradID); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	pt, err := s.generator(cfg).At(r.Context(), local)
	if err != nil {
		status := statusFor(err)
		if status == http.StatusInternalServerError {
			s.logger.Error("position failed", "local", local.String(), "error", err)
		}
		writeError(w, status, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, positionResponse{NoradID: cfg.NoradID, Point: pt})
}

// trackHandler serves GET /api/v1/track?start=...&days=N&step=S&norad_id=N.
// step is in whole seconds.
func (s *Server) trackHandler(w http.ResponseWriter, r *http.Request) {
	start, err := s.localTime(r, "start")
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	cfg := s.deps.Track
	if cfg.NoradID, err = queryInt(r, "norad_id", cfg.NoradID); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if cfg.Days, err = queryInt(r, "days", cfg.Days); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	step, err := queryInt(r, "step", int(cfg.Step/time.Second))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	cfg.Step = time.Duration(step) * time.Second
	if v := r.URL.Query().Get("skip_errors"); v != "" {
		if cfg.SkipErrors, err = strconv.ParseBool(v); err != nil {
			writeError(w, http.StatusBadRequest, "skip_errors must be a boolean")
			return
		}
	}

	if cfg.Days > track.MaxDays {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("days must be at most %d", track.MaxDays))
		return
	}
	n := cfg.Samples()
	if n == 0 {
		writeError(w, http.StatusBadRequest, "days and step must describe at least one sample")
		return
	}
	if n > s.opts.MaxPositions {
		writeJSON(w, http.StatusBadRequest, map[string]any{
			"error":         fmt.Sprintf("request computes %d positions, limit is %d", n, s.opts.MaxPositions),
			"requested":     n,
			"max_positions": s.opts.MaxPositions,
		})
		return
	}

	doc, err := s.generator(cfg).Generate(r.Context(), start)
	if err != nil {
		status := statusFor(err)
		if status == http.StatusInternalServerError {
			s.logger.Error("track failed", "start", start.String(), "error", err)
		}
		writeError(w, status, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, doc)
}

type tablesResponse struct {
	EOP struct {
		First   string `json:"first"`
		Last    string `json:"last"`
		Records int    `json:"records"`
	} `json:"eop"`
	LeapSeconds struct {
		Entries       int    `json:"entries"`
		LastEffective string `json:"last_effective,omitempty"`
		TAIMinusUTC   int    `json:"tai_minus_utc"`
	} `json:"leap_seconds"`
	Elements struct {
		Source    string     `json:"source,omitempty"`
		FetchedAt *time.Time `json:"fetched_at,omitempty"`
		EpochMin  *time.Time `json:"epoch_min,omitempty"`
		EpochMax  *time.Time `json:"epoch_max,omitempty"`
		Count     int        `json:"count"`
	} `json:"elements"`
}

// tablesHandler serves GET /api/v1/tables: coverage of the loaded tables.
func (s *Server) tablesHandler(w http.ResponseWriter, r *http.Request) {
	var resp tablesResponse

	if s.deps.EOP != nil && s.deps.EOP.Len() > 0 {
		first, last := s.deps.EOP.Range()
		resp.EOP.First = first.String()
		resp.EOP.Last = last.String()
		resp.EOP.Records = s.deps.EOP.Len()
	}
	if s.deps.Leap != nil {
		resp.LeapSeconds.Entries = s.deps.Leap.Len()
		if last, ok := s.deps.Leap.Last(); ok {
			resp.LeapSeconds.LastEffective = last.Effective.String()
			resp.LeapSeconds.TAIMinusUTC = last.TAIMinusUTC
		}
	}
	if ds := s.deps.Store.Get(); ds != nil {
		resp.Elements.Source = ds.Source
		resp.Elements.FetchedAt = &ds.FetchedAt
		resp.Elements.Count = len(ds.Entries)
		if len(ds.Entries) > 0 {
			resp.Elements.EpochMin = &ds.EpochRange.Min
			resp.Elements.EpochMax = &ds.EpochRange.Max
		}
	}
	writeJSON(w, http.StatusOK, resp)
}

type elementsResponse struct {
	NoradID int       `json:"norad_id"`
	Name    string    `json:"name,omitempty"`
	Epoch   time.Time `json:"epoch"`
	Line1   string    `json:"line1"`
	Line2   string    `json:"line2"`
	UT1     string    `json:"ut1"`
}

// elementsHandler serves GET /api/v1/elements/{norad_id}?time=...: the
// element set in force at the UT1 of the given local time.
func (s *Server) elementsHandler(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.Atoi(r.PathValue("norad_id"))
	if err != nil || id < 1 {
		writeError(w, http.StatusBadRequest, "norad_id must be a positive integer")
		return
	}
	local, err := s.localTime(r, "time")
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	sc, _, err := s.deps.Resolver.Resolve(local)
	if err != nil {
		writeError(w, statusFor(err), err.Error())
		return
	}
	e, err := s.deps.Store.Select(id, sc.UT1.Time())
	if err != nil {
		writeError(w, statusFor(err), err.Error())
		return
	}
	writeJSON(w, http.StatusOK, elementsResponse{
		NoradID: e.NORADID,
		Name:    e.Name,
		Epoch:   e.Epoch,
		Line1:   e.Line1,
		Line2:   e.Line2,
		UT1:     sc.UT1.String(),
	})
}

// streamHandler serves GET /api/v1/stream?step=S&norad_id=N: the live
// position every S seconds (1-60, default 5) as Server-Sent Events.
func (s *Server) streamHandler(w http.ResponseWriter, r *http.Request) {
	step, err := queryInt(r, "step", 5)
	if err != nil || step < 1 || step > 60 {
		writeError(w, http.StatusBadRequest, "step must be 1-60 seconds")
		return
	}
	cfg := s.deps.Track
	if cfg.NoradID, err = queryInt(r, "norad_id", cfg.NoradID); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	s.stream.Serve(w, r, s.generator(cfg), cfg.NoradID, time.Duration(step)*time.Second)
}
