package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/0xPuncker/chronos-console/internal/chronos"
	"github.com/0xPuncker/chronos-console/internal/config"
	"github.com/0xPuncker/chronos-console/internal/console"
	"github.com/0xPuncker/chronos-console/internal/cron"
	"github.com/0xPuncker/chronos-console/internal/loader"
	"github.com/0xPuncker/chronos-console/internal/store"
	"github.com/0xPuncker/chronos-console/pkg/types"
	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"
)

// Notifier is told about reverts and deletions made through the API.
type Notifier interface {
	JobReverted(job *types.Job, version *types.Version) error
	JobDeleted(job *types.Job, origin string) error
}

type Handler struct {
	store       *store.Store
	loader      *loader.Loader
	logger      *logrus.Logger
	config      *config.Config
	notifier    Notifier
	local       *time.Location
	loadTimeout time.Duration
	Scheduler   *cron.Scheduler
}

type RevertRequest struct {
	Version int64 `json:"version"`
}

func NewHandler(st *store.Store, ld *loader.Loader, logger *logrus.Logger, cfg *config.Config, notifier Notifier) (*Handler, error) {
	local, err := cfg.Console.Location()
	if err != nil {
		return nil, err
	}

	scheduler := cron.NewScheduler(logger, cfg.Tasks)

	var deletions cron.DeletionNotifier
	if notifier != nil {
		deletions = notifier
	}
	refresh := cron.NewRefreshJobsJob(st, deletions, logger, config.Duration(cfg.Chronos.Timeout, 5*time.Second)*2)
	scheduler.RegisterTask(cron.RefreshJobsTask, refresh.Run)

	if err := scheduler.LoadTasks(cfg.Tasks.Predefined); err != nil {
		return nil, fmt.Errorf("failed to load predefined tasks: %w", err)
	}

	return &Handler{
		store:       st,
		loader:      ld,
		logger:      logger,
		config:      cfg,
		notifier:    notifier,
		local:       local,
		loadTimeout: config.Duration(cfg.Console.LoadTimeout, 10*time.Second),
		Scheduler:   scheduler,
	}, nil
}

func (h *Handler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, map[string]string{
		"status": "ok",
	})
}

func (h *Handler) ListJobs(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.loadTimeout)
	defer cancel()

	ticket := h.store.QueryJobs(context.WithoutCancel(r.Context()))
	st, err := h.store.Await(ctx, store.QueryKey, ticket)
	if err != nil {
		h.handleError(w, fmt.Errorf("timed out waiting for job list: %w", err), http.StatusGatewayTimeout)
		return
	}
	if err := st.Err(store.QueryKey); err != nil {
		h.handleError(w, err, statusFor(err))
		return
	}

	h.writeJSON(w, http.StatusOK, map[string]interface{}{
		"jobs":  st.Query,
		"count": len(st.Query),
	})
}

// GetRevertView renders the revert page of a job. Query parameters pick the
// version (latest by default), the code tab and the depends-on schedule view.
// They apply to this request's view only.
func (h *Handler) GetRevertView(w http.ResponseWriter, r *http.Request) {
	id, ok := h.jobID(w, r)
	if !ok {
		return
	}

	query := r.URL.Query()
	tab := console.TabCode
	if v := query.Get("tab"); v != "" {
		tab = console.Tab(v)
		if !tab.Valid() {
			h.handleError(w, fmt.Errorf("unknown tab %q", v), http.StatusBadRequest)
			return
		}
	}

	dependsOn := false
	if v := query.Get("dependsOn"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			h.handleError(w, fmt.Errorf("invalid dependsOn %q", v), http.StatusBadRequest)
			return
		}
		dependsOn = b
	}

	var version int64
	if v := query.Get("version"); v != "" {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil || n <= 0 {
			h.handleError(w, fmt.Errorf("invalid version %q", v), http.StatusBadRequest)
			return
		}
		version = n
	}

	s, ok := h.open(w, r, id)
	if !ok {
		return
	}
	defer s.close()

	var selected *types.Version
	if version != 0 {
		if selected = findVersion(s.route.Props().Versions, version); selected == nil {
			h.handleError(w, fmt.Errorf("job %d has no version %d", id, version), http.StatusNotFound)
			return
		}
	}
	form := s.route.Form()
	form.SetVersion(selected)
	if err := form.SelectTab(tab); err != nil {
		h.handleError(w, fmt.Errorf("tab %q: %w", tab, err), http.StatusBadRequest)
		return
	}
	form.SetDependsOn(dependsOn)

	h.writeJSON(w, http.StatusOK, s.route.Render())
}

// RevertJob restores the requested version as the job's configuration.
func (h *Handler) RevertJob(w http.ResponseWriter, r *http.Request) {
	id, ok := h.jobID(w, r)
	if !ok {
		return
	}

	var req RevertRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.handleError(w, fmt.Errorf("invalid request body: %w", err), http.StatusBadRequest)
		return
	}
	if req.Version <= 0 {
		h.handleError(w, errors.New("version must be positive"), http.StatusBadRequest)
		return
	}

	s, ok := h.open(w, r, id)
	if !ok {
		return
	}
	defer s.close()

	version := findVersion(s.route.Props().Versions, req.Version)
	if version == nil {
		h.handleError(w, fmt.Errorf("job %d has no version %d", id, req.Version), http.StatusNotFound)
		return
	}
	form := s.route.Form()
	form.SetVersion(version)
	if err := form.Submit(context.WithoutCancel(r.Context())); err != nil {
		h.handleError(w, err, statusFor(err))
		return
	}

	job := h.store.Snapshot().Jobs[id]
	if h.notifier != nil && job != nil {
		if err := h.notifier.JobReverted(job, version); err != nil {
			h.logger.WithError(err).Warn("Failed to send revert notification")
		}
	}

	h.writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":  "reverted",
		"job":     job,
		"version": version.Version,
	})
}

func (h *Handler) DeleteJob(w http.ResponseWriter, r *http.Request) {
	id, ok := h.jobID(w, r)
	if !ok {
		return
	}

	s, ok := h.open(w, r, id)
	if !ok {
		return
	}
	defer s.close()

	s.route.Form().Delete()
	s.sync(h.store.Snapshot())
	deleted, err := s.deletes.result()
	if deleted == nil {
		h.handleError(w, fmt.Errorf("job %d: %w", id, chronos.ErrNotFound), http.StatusNotFound)
		return
	}
	if err != nil {
		h.handleError(w, err, statusFor(err))
		return
	}

	location := s.nav.Location()
	if location != "" {
		w.Header().Set("Location", location)
	}
	h.writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":   "deleted",
		"job":      deleted,
		"location": location,
	})
}

func (h *Handler) GetLoader(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, map[string]interface{}{
		"active":  h.loader.IsActive(),
		"reasons": h.loader.Reasons(),
	})
}

func (h *Handler) ListTasks(w http.ResponseWriter, r *http.Request) {
	tasks := h.Scheduler.ListTasks()
	h.writeJSON(w, http.StatusOK, map[string]interface{}{
		"tasks":   tasks,
		"running": h.Scheduler.IsRunning(),
	})
}

func (h *Handler) RunTask(w http.ResponseWriter, r *http.Request) {
	name := mux.Vars(r)["name"]
	if err := h.Scheduler.RunNow(name); err != nil {
		code := http.StatusInternalServerError
		if errors.Is(err, cron.ErrUnknownTask) {
			code = http.StatusNotFound
		}
		h.handleError(w, err, code)
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]string{
		"status": fmt.Sprintf("task %s completed", name),
	})
}

func (h *Handler) StartScheduler(w http.ResponseWriter, r *http.Request) {
	if err := h.Scheduler.Start(); err != nil {
		h.handleError(w, err, http.StatusConflict)
		return
	}

	h.writeJSON(w, http.StatusOK, map[string]string{
		"status": "scheduler started successfully",
	})
}

func (h *Handler) StopScheduler(w http.ResponseWriter, r *http.Request) {
	h.Scheduler.Stop()
	h.writeJSON(w, http.StatusOK, map[string]string{
		"status": "scheduler stopped successfully",
	})
}

// open activates a revert view for job id and waits for its data. On failure
// it has already answered the request.
func (h *Handler) open(w http.ResponseWriter, r *http.Request, id int64) (*session, bool) {
	// fetches outlive the request so a disconnect is not recorded as an agent error
	ctx := context.WithoutCancel(r.Context())

	nav := &navigator{}
	deletes := &deleteConfirmation{
		ctx:      ctx,
		store:    h.store,
		notifier: h.notifier,
		logger:   h.logger,
	}
	route := console.NewRevertRoute(id, console.FormDeps{
		Store:  h.store,
		Loader: h.loader,
		Nav:    nav,
		Modals: deletes,
		Logger: h.logger,
		Local:  h.local,
	})
	s := &session{route: route, nav: nav, deletes: deletes}
	route.OnActivate(ctx)

	wait, cancel := context.WithTimeout(r.Context(), h.loadTimeout)
	defer cancel()

	if err := route.Wait(wait); err != nil {
		s.close()
		h.handleError(w, fmt.Errorf("timed out loading job %d: %w", id, err), http.StatusGatewayTimeout)
		return nil, false
	}
	if err := route.Form().Wait(wait); err != nil {
		s.close()
		h.handleError(w, fmt.Errorf("timed out loading job list: %w", err), http.StatusGatewayTimeout)
		return nil, false
	}

	if s.navigatedAway() {
		s.close()
		w.Header().Set("Location", jobsLocation)
		h.handleError(w, fmt.Errorf("job %d was deleted", id), http.StatusGone)
		return nil, false
	}
	if err := route.Props().Err; err != nil {
		s.close()
		h.handleError(w, err, statusFor(err))
		return nil, false
	}

	return s, true
}

func (h *Handler) jobID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	raw := mux.Vars(r)["id"]
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		h.handleError(w, fmt.Errorf("invalid job id %q", raw), http.StatusBadRequest)
		return 0, false
	}
	return id, true
}

func findVersion(versions []*types.Version, version int64) *types.Version {
	for _, v := range versions {
		if v.Version == version {
			return v
		}
	}
	return nil
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, chronos.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, console.ErrNoVersion):
		return http.StatusConflict
	default:
		return http.StatusBadGateway
	}
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		h.logger.Errorf("Failed to encode response: %v", err)
	}
}

func (h *Handler) handleError(w http.ResponseWriter, err error, code int) {
	if code >= http.StatusInternalServerError {
		h.logger.Error(err)
	} else {
		h.logger.Debug(err)
	}
	h.writeJSON(w, code, map[string]string{
		"error": err.Error(),
	})
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.Router().ServeHTTP(w, r)
}
