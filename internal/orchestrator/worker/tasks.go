package worker

import (
	"encoding/json"
	"fmt"
	"sync/atomic"

	"bulkload/internal/model"
)

// activity counts tasks in flight for a worker
type activity struct {
	active int32
}

func (a *activity) begin() func() {
	atomic.AddInt32(&a.active, 1)
	return func() { atomic.AddInt32(&a.active, -1) }
}

func (a *activity) ActiveTasks() int {
	return int(atomic.LoadInt32(&a.active))
}

// DecodeTask parses a queue message body
func DecodeTask(body []byte) (model.Task, error) {
	var task model.Task
	if err := json.Unmarshal(body, &task); err != nil {
		return model.Task{}, fmt.Errorf("decode task: %w", err)
	}
	if task.JobID == "" {
		return model.Task{}, fmt.Errorf("decode task: missing jobId")
	}
	return task, nil
}
