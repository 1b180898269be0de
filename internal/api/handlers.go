package api

import (
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"aircx/internal/results"
	"aircx/internal/types"
)

const (
	defaultResultLimit = 50
	maxResultLimit     = 1000
	defaultSummaryDays = 7
)

type equipmentSummary struct {
	ID       string `json:"id"`
	Retained int    `json:"retained_entries"`
}

// handleListEquipment lists configured units with their retained entry counts.
func (s *Server) handleListEquipment(w http.ResponseWriter, r *http.Request) {
	out := make([]equipmentSummary, 0, len(s.Equipment))
	for _, id := range s.Equipment {
		out = append(out, equipmentSummary{ID: id, Retained: s.Recent.Total(id)})
	}
	JSON(w, r, http.StatusOK, APIResponse{Data: out})
}

// handleResults returns a unit's most recent rows, newest first.
//
// Query parameters:
//   - limit: 1..1000, default 50
//   - since: RFC 3339; served from the persistent store when one is configured
func (s *Server) handleResults(w http.ResponseWriter, r *http.Request) {
	id, ok := s.equipmentID(w, r)
	if !ok {
		return
	}
	limit, err := parseLimit(r.URL.Query().Get("limit"))
	if err != nil {
		Error(w, r, err)
		return
	}
	since, err := parseSince(r.URL.Query().Get("since"), time.Time{})
	if err != nil {
		Error(w, r, err)
		return
	}

	var rows []results.TableRow
	if s.History != nil && !since.IsZero() {
		rows, err = s.History.Recent(r.Context(), s.Table, id, since, limit)
		if err != nil {
			Error(w, r, err)
			return
		}
	} else {
		rows = newestFirst(s.Recent.Rows(id, 0), since, limit)
	}
	if rows == nil {
		rows = []results.TableRow{}
	}
	JSON(w, r, http.StatusOK, APIResponse{Data: rows})
}

type colorSummary struct {
	EquipmentID string              `json:"equipment_id"`
	Tier        types.Tier          `json:"tier"`
	Since       time.Time           `json:"since"`
	Counts      map[types.Color]int `json:"counts"`
}

// handleSummary counts a unit's rows per color for one tier from the
// persistent store.
//
// Query parameters:
//   - tier: low, normal, high or custom, default normal
//   - since: RFC 3339, default seven days ago
func (s *Server) handleSummary(w http.ResponseWriter, r *http.Request) {
	id, ok := s.equipmentID(w, r)
	if !ok {
		return
	}
	if s.History == nil {
		Error(w, r, types.NewAppError(types.ErrCodeValidationQuery, "summaries need a persistent result store", nil))
		return
	}

	tier := types.TierNormal
	if raw := r.URL.Query().Get("tier"); raw != "" {
		t, err := types.ParseTier(raw)
		if err != nil {
			Error(w, r, types.NewAppError(types.ErrCodeValidationQuery, err.Error(), err))
			return
		}
		tier = t
	}
	since, err := parseSince(r.URL.Query().Get("since"), time.Now().UTC().AddDate(0, 0, -defaultSummaryDays))
	if err != nil {
		Error(w, r, err)
		return
	}

	counts, err := s.History.CountByColor(r.Context(), s.Table, id, tier, since)
	if err != nil {
		Error(w, r, err)
		return
	}
	JSON(w, r, http.StatusOK, APIResponse{Data: colorSummary{
		EquipmentID: id,
		Tier:        tier,
		Since:       since,
		Counts:      counts,
	}})
}

func (s *Server) equipmentID(w http.ResponseWriter, r *http.Request) (string, bool) {
	id := chi.URLParam(r, "id")
	if _, ok := s.known[id]; !ok {
		Error(w, r, types.NewAppError(types.ErrCodeNotFoundEquipment,
			fmt.Sprintf("equipment %q is not configured", id), nil))
		return "", false
	}
	return id, true
}

func parseLimit(raw string) (int, error) {
	if raw == "" {
		return defaultResultLimit, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 1 || n > maxResultLimit {
		return 0, types.NewAppError(types.ErrCodeValidationLimit,
			fmt.Sprintf("limit must be an integer between 1 and %d", maxResultLimit), err)
	}
	return n, nil
}

func parseSince(raw string, def time.Time) (time.Time, error) {
	if raw == "" {
		return def, nil
	}
	t, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return time.Time{}, types.NewAppError(types.ErrCodeValidationQuery, "since must be an RFC 3339 timestamp", err)
	}
	return t, nil
}

// newestFirst reverses oldest-first rows, keeping at most limit rows at or
// after since.
func newestFirst(rows []results.TableRow, since time.Time, limit int) []results.TableRow {
	out := make([]results.TableRow, 0, min(len(rows), limit))
	for i := len(rows) - 1; i >= 0 && len(out) < limit; i-- {
		if rows[i].Datetime.Before(since) {
			continue
		}
		out = append(out, rows[i])
	}
	return out
}
