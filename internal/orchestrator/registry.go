package orchestrator

import (
	"sort"
	"sync"

	"github.com/rs/zerolog/log"
)

type WorkerRegistry interface {
	Register(BatchWorker)
	Get(string) (BatchWorker, bool)
	AvailableWorkers() []string
}

// Registry routes job types to their workers
type Registry struct {
	workers map[string]BatchWorker
	mu      sync.RWMutex
}

// NewWorkerRegistry creates a registry holding the given workers
func NewWorkerRegistry(workers ...BatchWorker) WorkerRegistry {
	registry := Registry{
		workers: make(map[string]BatchWorker),
	}

	for _, worker := range workers {
		registry.Register(worker)
	}

	return &registry
}

// Register adds a worker under its job type, replacing any previous one
func (r *Registry) Register(worker BatchWorker) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.workers[worker.Type()] = worker

	log.Info().
		Str("jobType", worker.Type()).
		Str("worker", worker.Name()).
		Msg("Registered job worker")
}

// Get retrieves a worker by job type
func (r *Registry) Get(jobType string) (BatchWorker, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	worker, exists := r.workers[jobType]
	return worker, exists
}

// AvailableWorkers returns the registered job types, sorted
func (r *Registry) AvailableWorkers() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	types := make([]string, 0, len(r.workers))
	for jobType := range r.workers {
		types = append(types, jobType)
	}
	sort.Strings(types)

	return types
}
