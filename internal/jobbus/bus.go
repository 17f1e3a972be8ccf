package jobbus

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
)

// subscriberCapacity bounds each subscriber's channel (spec §4.11:
// "default capacity 100").
const subscriberCapacity = 100

// keepaliveInterval is how often an idle subscriber receives a
// keepalive event (spec §4.11).
const keepaliveInterval = 30 * time.Second

var (
	jobsCreated = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "helix_jobs_created_total",
		Help: "Total number of jobs created.",
	})
	jobsActive = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "helix_jobs_active",
		Help: "Number of jobs currently running.",
	})
	eventsDropped = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "helix_job_events_dropped_total",
		Help: "Events dropped for a full subscriber channel.",
	}, []string{"job_id"})
)

func init() {
	prometheus.MustRegister(jobsCreated, jobsActive, eventsDropped)
}

// Bus is the Job & Event Bus (C11). It is process-wide state: one Bus
// should be constructed per process and shared.
type Bus struct {
	mu   sync.Mutex
	jobs map[string]*Job
}

// New returns an empty Bus.
func New() *Bus {
	return &Bus{jobs: make(map[string]*Job)}
}

// CreateJob registers a fresh pending job for projectPath.
func (b *Bus) CreateJob(projectPath string) *Job {
	job := &Job{
		ID:          uuid.NewString(),
		ProjectPath: projectPath,
		Status:      StatusPending,
		CreatedAt:   time.Now().UTC(),
		subscribers: make(map[string]chan PhaseEvent),
	}

	b.mu.Lock()
	b.jobs[job.ID] = job
	b.mu.Unlock()

	jobsCreated.Inc()
	return job
}

// GetJob returns a snapshot of the job with id, or nil if unknown. The
// snapshot is copied under the lock so callers (notably the HTTP
// facade's JSON marshaling) never race the orchestrator's concurrent
// field mutation of the live *Job.
func (b *Bus) GetJob(id string) *Job {
	b.mu.Lock()
	defer b.mu.Unlock()
	job, ok := b.jobs[id]
	if !ok {
		return nil
	}
	return snapshotLocked(job)
}

// ListJobs returns snapshots of up to limit jobs, most recently created
// first. limit <= 0 means no limit.
func (b *Bus) ListJobs(limit int) []*Job {
	b.mu.Lock()
	defer b.mu.Unlock()

	jobs := make([]*Job, 0, len(b.jobs))
	for _, j := range b.jobs {
		jobs = append(jobs, j)
	}
	sortByCreatedDesc(jobs)
	if limit > 0 && len(jobs) > limit {
		jobs = jobs[:limit]
	}
	snapshots := make([]*Job, len(jobs))
	for i, j := range jobs {
		snapshots[i] = snapshotLocked(j)
	}
	return snapshots
}

// snapshotLocked returns a copy of job safe to read without b.mu held.
// Callers must hold b.mu.
func snapshotLocked(job *Job) *Job {
	cp := *job
	cp.Phases = append([]PhaseRecord(nil), job.Phases...)
	cp.subscribers = nil
	cp.cancel = nil
	return &cp
}

func sortByCreatedDesc(jobs []*Job) {
	for i := 1; i < len(jobs); i++ {
		for j := i; j > 0 && jobs[j].CreatedAt.After(jobs[j-1].CreatedAt); j-- {
			jobs[j], jobs[j-1] = jobs[j-1], jobs[j]
		}
	}
}

// SetCancel attaches a cancel function invoked by Cancel. Used by the
// Orchestrator to register the context.CancelFunc for the run driving
// this job.
func (b *Bus) SetCancel(id string, cancel func()) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if j, ok := b.jobs[id]; ok {
		j.cancel = cancel
	}
}

// UpdateStatus transitions a job's status, stamping started/completed
// timestamps on terminal transitions.
func (b *Bus) UpdateStatus(id string, status Status, errMsg string) {
	b.mu.Lock()
	job, ok := b.jobs[id]
	b.mu.Unlock()
	if !ok {
		return
	}

	b.mu.Lock()
	now := time.Now().UTC()
	switch status {
	case StatusRunning:
		if job.StartedAt == nil {
			job.StartedAt = &now
		}
		jobsActive.Inc()
	case StatusCompleted, StatusFailed, StatusCancelled:
		job.CompletedAt = &now
		if job.Status == StatusRunning {
			jobsActive.Dec()
		}
	}
	job.Status = status
	if errMsg != "" {
		job.Error = errMsg
	}
	b.mu.Unlock()
}

// StartPhase records phase_id as current and appends a running
// PhaseRecord.
func (b *Bus) StartPhase(id, phaseID, name string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	job, ok := b.jobs[id]
	if !ok {
		return
	}
	now := time.Now().UTC()
	job.CurrentPhase = phaseID
	job.Phases = append(job.Phases, PhaseRecord{
		PhaseID:   phaseID,
		Name:      name,
		Status:    StatusRunning,
		StartedAt: &now,
	})
}

// RecordPhaseResult finalizes the most recent PhaseRecord for phaseID.
func (b *Bus) RecordPhaseResult(id, phaseID string, status Status, duration time.Duration, outputs []string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	job, ok := b.jobs[id]
	if !ok {
		return
	}
	for i := len(job.Phases) - 1; i >= 0; i-- {
		if job.Phases[i].PhaseID == phaseID {
			now := time.Now().UTC()
			job.Phases[i].Status = status
			job.Phases[i].CompletedAt = &now
			job.Phases[i].Duration = duration.String()
			job.Phases[i].Outputs = outputs
			return
		}
	}
}

// Emit enqueues an event to every subscriber of id. Per spec §4.11 the
// emitter never blocks: a full subscriber channel drops the event for
// that subscriber only. The send loop and any terminal-event close run
// under the same lock so a concurrent Emit (e.g. from Cancel) can never
// close a channel this call is about to send on.
func (b *Bus) Emit(id string, event PhaseEvent) {
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	job, ok := b.jobs[id]
	if !ok {
		return
	}

	for _, ch := range job.subscribers {
		select {
		case ch <- event:
		default:
			eventsDropped.WithLabelValues(id).Inc()
		}
	}

	if terminalEvents[event.Type] {
		b.closeSubscribersLocked(job)
	}
}

// Subscribe returns a channel receiving id's future events, plus an
// unsubscribe function. The channel is closed by the Bus once id emits
// a terminal event.
func (b *Bus) Subscribe(ctx context.Context, id string) (<-chan PhaseEvent, func()) {
	b.mu.Lock()
	job, ok := b.jobs[id]
	if !ok {
		b.mu.Unlock()
		closed := make(chan PhaseEvent)
		close(closed)
		return closed, func() {}
	}
	subID := uuid.NewString()
	ch := make(chan PhaseEvent, subscriberCapacity)
	job.subscribers[subID] = ch
	b.mu.Unlock()

	unsubscribe := func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		if j, ok := b.jobs[id]; ok {
			delete(j.subscribers, subID)
		}
	}

	go b.keepalive(ctx, id, subID, ch)

	return ch, unsubscribe
}

// keepalive sends a keepalive event to one subscriber's channel every
// keepaliveInterval until the job closes it or ctx is cancelled. The
// subscribed-channel check and the send itself happen under the same
// lock Emit uses to close subscribers, so a terminal Emit can never
// close ch between this goroutine's check and its send.
func (b *Bus) keepalive(ctx context.Context, jobID, subID string, ch chan<- PhaseEvent) {
	ticker := time.NewTicker(keepaliveInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			b.mu.Lock()
			job, ok := b.jobs[jobID]
			if !ok {
				b.mu.Unlock()
				return
			}
			if _, stillSubscribed := job.subscribers[subID]; !stillSubscribed {
				b.mu.Unlock()
				return
			}
			select {
			case ch <- PhaseEvent{Type: EventKeepalive, Timestamp: time.Now().UTC()}:
			default:
			}
			b.mu.Unlock()
		}
	}
}

// closeSubscribersLocked closes and clears every subscriber channel on
// job, per spec §4.11: "after a terminal event ... subscribers are
// closed by the Bus". Callers must hold b.mu.
func (b *Bus) closeSubscribersLocked(job *Job) {
	for subID, ch := range job.subscribers {
		close(ch)
		delete(job.subscribers, subID)
	}
}

// Cancel requests cancellation of the run driving id, if one was
// registered via SetCancel, and marks the job cancelled.
func (b *Bus) Cancel(id string) bool {
	b.mu.Lock()
	job, ok := b.jobs[id]
	var cancel func()
	if ok {
		cancel = job.cancel
	}
	b.mu.Unlock()
	if !ok {
		return false
	}
	if cancel != nil {
		cancel()
	}
	b.UpdateStatus(id, StatusCancelled, "")
	b.Emit(id, PhaseEvent{Type: EventJobCancelled})
	return true
}
