package web

import (
	"time"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/kozaktomas/attendance/internal/web/handlers"
	"github.com/kozaktomas/attendance/internal/web/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

func (s *Server) setupRoutes() {
	classesHandler := handlers.NewClassesHandler(s.deps.Store)
	studentsHandler := handlers.NewStudentsHandler(s.deps.Store, s.deps.Enroller)
	attendanceHandler := handlers.NewAttendanceHandler(s.deps.Store, s.config.Location)
	checkinHandler := handlers.NewCheckinHandler(s.deps.Checkin)

	// Health check and metrics (no auth required)
	s.router.Get("/api/v1/health", handlers.HealthCheck)
	s.router.Handle("/metrics", promhttp.Handler())

	s.router.Route("/api/v1", func(r chi.Router) {
		r.Use(middleware.RequireToken(s.config.Web.APIToken))

		r.Group(func(r chi.Router) {
			r.Use(chiMiddleware.Timeout(30 * time.Second))

			// Classes
			r.Get("/classes", classesHandler.List)
			r.Post("/classes", classesHandler.Create)
			r.Get("/classes/{id}", classesHandler.Get)
			r.Put("/classes/{id}", classesHandler.Update)
			r.Delete("/classes/{id}", classesHandler.Delete)
			r.Get("/classes/{id}/students", classesHandler.Roster)
			r.Get("/classes/{id}/attendance", attendanceHandler.ByClass)

			// Students
			r.Get("/students", studentsHandler.List)
			r.Post("/students", studentsHandler.Create)
			r.Get("/students/{id}", studentsHandler.Get)
			r.Put("/students/{id}", studentsHandler.Update)
			r.Delete("/students/{id}", studentsHandler.Delete)
			r.Post("/students/{id}/classes/{classId}", studentsHandler.Enroll)
			r.Delete("/students/{id}/classes/{classId}", studentsHandler.Unenroll)
			r.Get("/students/{id}/attendance", attendanceHandler.ByStudent)

			// Embeddings
			r.Get("/students/{id}/embeddings", studentsHandler.CountEmbeddings)
			r.Post("/students/{id}/embeddings", studentsHandler.AddEmbedding)
			r.Put("/students/{id}/embeddings", studentsHandler.ReplaceEmbeddings)
			r.Delete("/students/{id}/embeddings", studentsHandler.DeleteEmbeddings)

			// Attendance
			r.Get("/attendance", attendanceHandler.ByDateRange)
			r.Post("/attendance", attendanceHandler.Record)
			r.Get("/attendance/{id}", attendanceHandler.Get)
			r.Put("/attendance/{id}", attendanceHandler.Update)
		})

		// Check-in runs capture and extraction, bounded separately
		r.With(handlers.WithCheckinTimeout).Post("/classes/{id}/checkin", checkinHandler.Checkin)
	})
}
