// SPDX-License-Identifier: MIT

package api

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/pulsehub/pulsehub/internal/aggregate"
	"github.com/pulsehub/pulsehub/internal/device"
	"github.com/pulsehub/pulsehub/internal/events"
	"github.com/pulsehub/pulsehub/internal/profile"
	"github.com/pulsehub/pulsehub/internal/reaper"
)

// snapshotView is the wire shape of a composed snapshot.
type snapshotView struct {
	UserID          string       `json:"user_id"`
	ActivityLevel   string       `json:"activity_level"`
	ValueScore      int          `json:"value_score"`
	IsHighValueUser bool         `json:"is_high_value_user"`
	Degraded        bool         `json:"degraded,omitempty"`
	Warning         string       `json:"warning,omitempty"`
	Dynamic         *dynamicView `json:"dynamic,omitempty"`
	Static          *staticView  `json:"static,omitempty"`
	ComposedAt      time.Time    `json:"composed_at"`
}

type dynamicView struct {
	LastActiveAt  time.Time `json:"last_active_at"`
	PageViewCount uint64    `json:"page_view_count"`
	MainDevice    string    `json:"main_device,omitempty"`
	RecentDevices []string  `json:"recent_devices,omitempty"`
	Version       uint64    `json:"version"`
}

type staticView struct {
	RegistrationDate time.Time `json:"registration_date"`
	Gender           string    `json:"gender,omitempty"`
	AgeGroup         string    `json:"age_group,omitempty"`
	City             string    `json:"city,omitempty"`
	SourceChannel    string    `json:"source_channel,omitempty"`
	Completeness     int       `json:"completeness"`
}

func toView(s *aggregate.Snapshot) snapshotView {
	v := snapshotView{
		UserID:          s.UserID,
		ActivityLevel:   string(s.ActivityLevel),
		ValueScore:      s.ValueScore,
		IsHighValueUser: s.IsHighValueUser,
		Degraded:        s.Degraded,
		Warning:         s.Warning,
		ComposedAt:      s.ComposedAt,
	}
	if s.Dynamic != nil {
		dv := &dynamicView{
			LastActiveAt:  s.Dynamic.LastActiveAt,
			PageViewCount: s.Dynamic.PageViewCount,
			MainDevice:    string(s.Dynamic.MainDevice),
			Version:       s.Dynamic.Version,
		}
		for _, d := range s.Dynamic.RecentDevices {
			dv.RecentDevices = append(dv.RecentDevices, string(d))
		}
		v.Dynamic = dv
	}
	if s.Static != nil {
		v.Static = &staticView{
			RegistrationDate: s.Static.RegistrationDate,
			Gender:           string(s.Static.Gender),
			AgeGroup:         string(s.Static.AgeGroup),
			City:             s.Static.City,
			SourceChannel:    s.Static.SourceChannel,
			Completeness:     s.Static.Completeness(),
		}
	}
	return v
}

func (s *Server) serveSnapshot(w http.ResponseWriter, snap *aggregate.Snapshot, err error) {
	if err != nil {
		writeError(w, err)
		return
	}
	if snap == nil {
		writeNotFound(w)
		return
	}
	writeJSON(w, http.StatusOK, toView(snap))
}

func (s *Server) handleGetProfile(w http.ResponseWriter, r *http.Request) {
	snap, err := s.aggregator.GetProfile(r.Context(), chi.URLParam(r, "userID"))
	s.serveSnapshot(w, snap, err)
}

func (s *Server) handleGetCRM(w http.ResponseWriter, r *http.Request) {
	snap, err := s.aggregator.GetForCRM(r.Context(), chi.URLParam(r, "userID"))
	s.serveSnapshot(w, snap, err)
}

func (s *Server) handleGetAnalytics(w http.ResponseWriter, r *http.Request) {
	snap, err := s.aggregator.GetForAnalytics(r.Context(), chi.URLParam(r, "userID"))
	s.serveSnapshot(w, snap, err)
}

func (s *Server) handleDeleteProfile(w http.ResponseWriter, r *http.Request) {
	removed, err := s.profiles.Delete(r.Context(), chi.URLParam(r, "userID"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"deleted": removed})
}

func (s *Server) handleActiveUsers(w http.ResponseWriter, r *http.Request) {
	seconds := int64(s.activeWindow / time.Second)
	if raw := r.URL.Query().Get("window_seconds"); raw != "" {
		var err error
		seconds, err = strconv.ParseInt(raw, 10, 64)
		if err != nil {
			writeError(w, profile.Ef("api.active_users", profile.KindInvalidArgument, "window_seconds must be an integer"))
			return
		}
	}
	users, err := s.indices.ActiveSince(r.Context(), seconds)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"users": users, "count": len(users)})
}

func (s *Server) handleTopPageViews(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	min, _ := strconv.ParseUint(q.Get("min"), 10, 64)
	page, _ := strconv.Atoi(q.Get("page"))
	size := 50
	if raw := q.Get("size"); raw != "" {
		size, _ = strconv.Atoi(raw)
	}
	ranked, err := s.indices.TopByPageViews(r.Context(), min, page, size)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"users": ranked, "count": len(ranked)})
}

func (s *Server) handleTotals(w http.ResponseWriter, r *http.Request) {
	totals, err := s.aggregator.UserTotals(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, totals)
}

func (s *Server) handleByDevice(w http.ResponseWriter, r *http.Request) {
	class, err := device.MustClass(chi.URLParam(r, "class"))
	if err != nil {
		writeError(w, profile.E("api.by_device", profile.KindInvalidArgument, err))
		return
	}
	users, err := s.indices.ByDevice(r.Context(), class)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"users": users, "count": len(users)})
}

func (s *Server) handleDeviceDistribution(w http.ResponseWriter, r *http.Request) {
	dist, err := s.indices.DeviceDistribution(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, dist)
}

func (s *Server) handleUnknownDevices(w http.ResponseWriter, r *http.Request) {
	unknowns, err := s.classifier.Unknowns(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"tokens": unknowns, "count": len(unknowns)})
}

func (s *Server) handleClearUnknowns(w http.ResponseWriter, r *http.Request) {
	if err := s.classifier.ClearUnknowns(r.Context()); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleAddMapping(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Token string `json:"token"`
		Class string `json:"class"`
	}
	if err := decodeBody(r, &req); err != nil {
		writeError(w, profile.E("api.add_mapping", profile.KindInvalidArgument, err))
		return
	}
	class, err := device.MustClass(req.Class)
	if err != nil {
		writeError(w, profile.E("api.add_mapping", profile.KindInvalidArgument, err))
		return
	}
	if err := s.classifier.AddMapping(req.Token, class); err != nil {
		writeError(w, profile.E("api.add_mapping", profile.KindInvalidArgument, err))
		return
	}
	w.WriteHeader(http.StatusCreated)
}

func (s *Server) handleIngestEvent(w http.ResponseWriter, r *http.Request) {
	var ev events.ActivityEvent
	if err := decodeBody(r, &ev); err != nil {
		writeError(w, profile.E("api.ingest", profile.KindInvalidArgument, err))
		return
	}
	if ev.UserID == "" {
		writeError(w, profile.Ef("api.ingest", profile.KindInvalidArgument, "user_id must not be empty"))
		return
	}
	if ev.Timestamp.IsZero() {
		ev.Timestamp = time.Now().UTC()
	}
	if s.ingest != nil {
		if !s.ingest(ev) {
			writeJSON(w, http.StatusTooManyRequests, errorBody{Kind: "SATURATED", Message: "ingest buffer full, retry later"})
			return
		}
		w.WriteHeader(http.StatusAccepted)
		return
	}
	if err := s.router.Handle(r.Context(), ev); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusAccepted)
}

func (s *Server) handleReaperStatus(w http.ResponseWriter, r *http.Request) {
	status, err := s.scheduler.Status(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, status)
}

func (s *Server) handleReaperRun(w http.ResponseWriter, r *http.Request) {
	summary, err := s.reaper.RunManual(r.Context())
	if err != nil {
		if errors.Is(err, reaper.ErrLeaseHeld) {
			writeConflict(w, err)
			return
		}
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"task_id":          summary.TaskID,
		"total_expired":    summary.TotalExpired,
		"total_candidates": summary.TotalCandidates,
		"iterations":       summary.Iterations,
		"duration_ms":      summary.Duration.Milliseconds(),
	})
}
