package web

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/dbehnke/fecsim/pkg/database"
	"github.com/dbehnke/fecsim/pkg/logger"
	"github.com/dbehnke/fecsim/pkg/modem"
	"github.com/dbehnke/fecsim/pkg/sweep"
	"gorm.io/gorm"
)

const (
	defaultPerPage = 20
	maxPerPage     = 200

	defaultCurveLimit = 500
	maxCurveLimit     = 5000
)

// ActiveRunsFunc reports the sweeps currently executing
type ActiveRunsFunc func() []sweep.Result

// API handles REST API endpoints
type API struct {
	logger *logger.Logger
	runs   *database.RunRepository
	points *database.PointRepository
	active ActiveRunsFunc
	hub    *WebSocketHub
}

// NewAPI creates a new API instance. db and active may be nil; endpoints that
// need them then answer 503.
func NewAPI(log *logger.Logger, db *database.DB, active ActiveRunsFunc) *API {
	a := &API{
		logger: log,
		active: active,
	}
	if db != nil {
		a.runs = database.NewRunRepository(db.GetDB())
		a.points = database.NewPointRepository(db.GetDB())
	}
	return a
}

// HandleStatus handles the /api/status endpoint
func (a *API) HandleStatus(w http.ResponseWriter, r *http.Request) {
	version, commit, buildTime := GetVersionInfo()

	active := []sweep.Result{}
	if a.active != nil {
		active = a.active()
	}
	runs := make([]map[string]interface{}, 0, len(active))
	for _, res := range active {
		runs = append(runs, map[string]interface{}{
			"run_id":      res.RunID,
			"started_at":  res.StartedAt,
			"points_done": len(res.Points),
			"modulations": modulationNames(res.Config),
		})
	}

	clients := 0
	if a.hub != nil {
		clients = a.hub.GetClientCount()
	}

	a.writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":     "running",
		"service":    "fecsim",
		"version":    version,
		"commit":     commit,
		"build_time": buildTime,
		"database":   a.runs != nil,
		"active":     runs,
		"ws_clients": clients,
	})
}

// HandleRuns handles the /api/runs endpoint
func (a *API) HandleRuns(w http.ResponseWriter, r *http.Request) {
	if !a.requireDB(w) {
		return
	}

	page := queryInt(r, "page", 1)
	if page < 1 {
		page = 1
	}
	perPage := queryInt(r, "per_page", defaultPerPage)
	if perPage < 1 || perPage > maxPerPage {
		perPage = defaultPerPage
	}

	runs, total, err := a.runs.GetRecentPaginated(page, perPage)
	if err != nil {
		a.internalError(w, "Failed to list runs", err)
		return
	}

	a.writeJSON(w, http.StatusOK, map[string]interface{}{
		"runs":     runs,
		"total":    total,
		"page":     page,
		"per_page": perPage,
	})
}

// HandleRun handles the /api/runs/{id} endpoint
func (a *API) HandleRun(w http.ResponseWriter, r *http.Request) {
	if !a.requireDB(w) {
		return
	}

	run, err := a.runs.GetByID(r.PathValue("id"))
	if errors.Is(err, gorm.ErrRecordNotFound) {
		http.Error(w, "Run not found", http.StatusNotFound)
		return
	}
	if err != nil {
		a.internalError(w, "Failed to load run", err)
		return
	}
	a.writeJSON(w, http.StatusOK, run)
}

// HandleRunPoints handles the /api/runs/{id}/points endpoint
func (a *API) HandleRunPoints(w http.ResponseWriter, r *http.Request) {
	if !a.requireDB(w) {
		return
	}

	id := r.PathValue("id")
	if _, err := a.runs.GetByID(id); errors.Is(err, gorm.ErrRecordNotFound) {
		http.Error(w, "Run not found", http.StatusNotFound)
		return
	} else if err != nil {
		a.internalError(w, "Failed to load run", err)
		return
	}

	points, err := a.points.GetByRun(id)
	if err != nil {
		a.internalError(w, "Failed to load points", err)
		return
	}
	a.writeJSON(w, http.StatusOK, points)
}

// HandleCurve handles the /api/curves endpoint: stored points of one
// modulation across runs, ordered by Eb/N0.
func (a *API) HandleCurve(w http.ResponseWriter, r *http.Request) {
	if !a.requireDB(w) {
		return
	}

	m, err := modem.ParseName(r.URL.Query().Get("modulation"))
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	coded, err := strconv.ParseBool(r.URL.Query().Get("coded"))
	if err != nil {
		http.Error(w, "coded must be true or false", http.StatusBadRequest)
		return
	}
	limit := curveLimit(r)

	points, err := a.points.GetByModulation(m.String(), coded, limit)
	if err != nil {
		a.internalError(w, "Failed to load curve", err)
		return
	}
	a.writeJSON(w, http.StatusOK, points)
}

func (a *API) requireDB(w http.ResponseWriter) bool {
	if a.runs == nil {
		http.Error(w, "Result database is disabled", http.StatusServiceUnavailable)
		return false
	}
	return true
}

func (a *API) internalError(w http.ResponseWriter, msg string, err error) {
	a.logger.Error(msg, logger.Error(err))
	http.Error(w, msg, http.StatusInternalServerError)
}

func (a *API) writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		a.logger.Warn("Failed to encode response", logger.Error(err))
	}
}

// curveLimit reads ?limit=, falling back to the default below one and
// capping it at maxCurveLimit
func curveLimit(r *http.Request) int {
	limit := queryInt(r, "limit", defaultCurveLimit)
	switch {
	case limit < 1:
		return defaultCurveLimit
	case limit > maxCurveLimit:
		return maxCurveLimit
	}
	return limit
}

func queryInt(r *http.Request, key string, def int) int {
	v := r.URL.Query().Get(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}
