package api

import (
	"net/http"

	"github.com/gorilla/mux"
)

func SetupRoutes(router *mux.Router, handler *Handler) {
	router.HandleFunc("/api/v1/health", handler.HealthCheck).Methods(http.MethodGet)
	router.HandleFunc("/api/v1/loader", handler.GetLoader).Methods(http.MethodGet)

	router.HandleFunc("/api/v1/jobs", handler.ListJobs).Methods(http.MethodGet)
	router.HandleFunc("/api/v1/jobs/{id}/revert", handler.GetRevertView).Methods(http.MethodGet)
	router.HandleFunc("/api/v1/jobs/{id}/revert", handler.RevertJob).Methods(http.MethodPost)
	router.HandleFunc("/api/v1/jobs/{id}", handler.DeleteJob).Methods(http.MethodDelete)

	router.HandleFunc("/api/v1/tasks", handler.ListTasks).Methods(http.MethodGet)
	router.HandleFunc("/api/v1/tasks/{name}/run", handler.RunTask).Methods(http.MethodPost)
	router.HandleFunc("/api/v1/scheduler/start", handler.StartScheduler).Methods(http.MethodPost)
	router.HandleFunc("/api/v1/scheduler/stop", handler.StopScheduler).Methods(http.MethodPost)
}

// Router returns the API routes wrapped in request logging and CORS.
func (h *Handler) Router() *mux.Router {
	router := mux.NewRouter()
	router.Use(loggingMiddleware(h.logger))
	router.Use(corsMiddleware)
	SetupRoutes(router, h)
	return router
}
