package server

import (
	"fmt"
	"net/http"
	"time"

	"bulkload/internal/aws"
	"bulkload/internal/cache"
	"bulkload/internal/config"
	"bulkload/internal/controller"
	"bulkload/internal/database"
	"bulkload/internal/notify"
	"bulkload/internal/orchestrator"
	"bulkload/internal/rabbitmq"
)

type Server struct {
	sc     controller.ServerController
	jc     controller.JobController
	rc     controller.RecordsController
	hub    *notify.Hub
	config config.Config
}

// New wires the API controllers. fileService may be nil when archiving is disabled.
func New(config config.Config, db database.Database, cache cache.Cache, rabbit rabbitmq.Client,
	workerRegistry orchestrator.WorkerRegistry, retrier controller.Retrier, hub *notify.Hub, fileService aws.FileService) *http.Server {
	sc := controller.NewServer(db, cache, rabbit)
	jc := controller.NewJobController(db, rabbit, config.RabbitMQ, config.Ingest.Workers, workerRegistry, cache)
	rc := controller.NewRecordsController(db, retrier, fileService)

	server := Server{
		sc:     sc,
		jc:     jc,
		rc:     rc,
		hub:    hub,
		config: config,
	}

	return &http.Server{
		Addr:        fmt.Sprintf(":%v", config.Port),
		Handler:     server.RegisterRoutes(),
		IdleTimeout: time.Minute,
		ReadTimeout: 5 * time.Minute,
		// Event streams stay open, so writes are not bounded
		WriteTimeout: 0,
	}
}
