// Package stateserver is the HTTP service that remembers light states for the
// panel and drives reminder schedules.
package stateserver

import (
	"encoding/json"
	"errors"
	"io"
	"log"
	"net/http"
	"time"

	"github.com/sweeney/ledpanel/internal/schedule"
)

// maxBody caps request bodies; every valid request is a small JSON object.
const maxBody = 16 << 10

// Server serves the state and schedule API.
type Server struct {
	store *Store
	sched *schedule.Scheduler
	now   func() time.Time
	mux   *http.ServeMux
}

// NewServer wires the API routes around store and sched.
func NewServer(store *Store, sched *schedule.Scheduler, now func() time.Time) *Server {
	if now == nil {
		now = time.Now
	}
	s := &Server{store: store, sched: sched, now: now, mux: http.NewServeMux()}
	s.mux.HandleFunc("/states", s.method(http.MethodGet, s.handleStates))
	s.mux.HandleFunc("/state", s.method(http.MethodPost, s.handleState))
	s.mux.HandleFunc("/schedules", s.method(http.MethodGet, s.handleSchedules))
	s.mux.HandleFunc("/schedule", s.method(http.MethodPost, s.handlePutSchedule))
	s.mux.HandleFunc("/schedule/delete", s.method(http.MethodPost, s.handleDeleteSchedule))
	s.mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodOptions {
			writeHeaders(w, http.StatusNoContent)
			return
		}
		writeError(w, http.StatusNotFound, "Not Found")
	})
	return s
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mux.ServeHTTP(w, r)
}

// method restricts h to one HTTP method. OPTIONS is always answered for CORS
// preflight.
func (s *Server) method(m string, h http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case m:
			h(w, r)
		case http.MethodOptions:
			writeHeaders(w, http.StatusNoContent)
		default:
			writeError(w, http.StatusNotFound, "Not Found")
		}
	}
}

type statesResponse struct {
	States [][]bool `json:"states"`
}

type stateRequest struct {
	Chip  *int  `json:"chip"`
	Pin   *int  `json:"pin"`
	State *bool `json:"state"`
}

// lightRequest identifies one light.
type lightRequest struct {
	Chip *int `json:"chip"`
	Pin  *int `json:"pin"`
}

// ScheduleJSON is the wire form of a schedule.
type ScheduleJSON struct {
	Chip     int               `json:"chip"`
	Pin      int               `json:"pin"`
	Name     string            `json:"name"`
	Due      string            `json:"due"`
	Repeat   schedule.Interval `json:"repeat"`
	Overdue  schedule.Interval `json:"overdue"`
	Active   bool              `json:"active"`
	Flashing bool              `json:"flashing"`
}

type schedulesResponse struct {
	Schedules []ScheduleJSON `json:"schedules"`
}

func (s *Server) handleStates(w http.ResponseWriter, r *http.Request) {
	states, err := s.store.States()
	if err != nil {
		log.Printf("stateserver: %v", err)
		writeError(w, http.StatusInternalServerError, "Internal Server Error")
		return
	}
	writeJSON(w, statesResponse{States: states})
}

func (s *Server) handleState(w http.ResponseWriter, r *http.Request) {
	var req stateRequest
	if err := decode(r, &req); err != nil || req.Chip == nil || req.Pin == nil || req.State == nil {
		writeError(w, http.StatusBadRequest, "Bad Request")
		return
	}
	chip, pin, on := *req.Chip, *req.Pin, *req.State
	if !s.store.InRange(chip, pin) {
		writeError(w, http.StatusBadRequest, "Bad Request")
		return
	}

	if err := s.store.SetState(chip, pin, on); err != nil {
		log.Printf("stateserver: %v", err)
		writeError(w, http.StatusInternalServerError, "Internal Server Error")
		return
	}
	if !on {
		if err := s.sched.Reset(chip, pin, s.now()); err != nil {
			log.Printf("stateserver: reset schedule chip %d pin %d: %v", chip, pin, err)
		}
	}
	writeJSON(w, struct{}{})
}

func (s *Server) handleSchedules(w http.ResponseWriter, r *http.Request) {
	list := s.sched.List()
	out := make([]ScheduleJSON, len(list))
	for i, sc := range list {
		out[i] = ScheduleJSON{
			Chip:     sc.Chip,
			Pin:      sc.Pin,
			Name:     sc.Name,
			Due:      sc.Due.UTC().Format(time.RFC3339),
			Repeat:   sc.Repeat,
			Overdue:  sc.Overdue,
			Active:   sc.Active,
			Flashing: sc.Flashing,
		}
	}
	writeJSON(w, schedulesResponse{Schedules: out})
}

func (s *Server) handlePutSchedule(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Chip    *int              `json:"chip"`
		Pin     *int              `json:"pin"`
		Name    string            `json:"name"`
		Due     string            `json:"due"`
		Repeat  schedule.Interval `json:"repeat"`
		Overdue schedule.Interval `json:"overdue"`
	}
	if err := decode(r, &req); err != nil || req.Chip == nil || req.Pin == nil {
		writeError(w, http.StatusBadRequest, "Bad Request")
		return
	}
	if !s.store.InRange(*req.Chip, *req.Pin) {
		writeError(w, http.StatusBadRequest, "Bad Request")
		return
	}
	due, err := schedule.ParseDue(req.Due)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Bad Request")
		return
	}

	err = s.sched.Put(schedule.Schedule{
		Chip:    *req.Chip,
		Pin:     *req.Pin,
		Name:    req.Name,
		Due:     due,
		Repeat:  req.Repeat,
		Overdue: req.Overdue,
	})
	if err != nil {
		log.Printf("stateserver: put schedule: %v", err)
		writeError(w, http.StatusBadRequest, "Bad Request")
		return
	}
	writeJSON(w, struct{}{})
}

func (s *Server) handleDeleteSchedule(w http.ResponseWriter, r *http.Request) {
	var req lightRequest
	if err := decode(r, &req); err != nil || req.Chip == nil || req.Pin == nil {
		writeError(w, http.StatusBadRequest, "Bad Request")
		return
	}
	if err := s.sched.Delete(*req.Chip, *req.Pin); err != nil {
		log.Printf("stateserver: delete schedule: %v", err)
		writeError(w, http.StatusInternalServerError, "Internal Server Error")
		return
	}
	writeJSON(w, struct{}{})
}

func decode(r *http.Request, v any) error {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxBody))
	if err != nil {
		return err
	}
	if len(body) == 0 {
		return errors.New("empty body")
	}
	return json.Unmarshal(body, v)
}

func writeHeaders(w http.ResponseWriter, code int) {
	h := w.Header()
	h.Set("Content-Type", "application/json")
	h.Set("Access-Control-Allow-Origin", "*")
	h.Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
	h.Set("Access-Control-Allow-Headers", "Content-Type")
	w.WriteHeader(code)
}

func writeJSON(w http.ResponseWriter, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Internal Server Error")
		return
	}
	writeHeaders(w, http.StatusOK)
	w.Write(data)
}

func writeError(w http.ResponseWriter, code int, msg string) {
	writeHeaders(w, code)
	data, _ := json.Marshal(map[string]string{"error": msg})
	w.Write(data)
}
