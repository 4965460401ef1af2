package service

import (
	"sync"
	"time"
)

// recentCapacity bounds the completed-jobs ring.
const recentCapacity = 10

// RuntimeSubtask tracks one named step inside a job for live diagnostics.
type RuntimeSubtask struct {
	Name       string     `json:"name"`
	StartedAt  time.Time  `json:"startedAt"`
	FinishedAt *time.Time `json:"finishedAt,omitempty"`
	Success    *bool      `json:"success,omitempty"`
	Error      string     `json:"error,omitempty"`
}

// RuntimeJob is the in-memory view of one job's progress. It is never
// persisted and never consulted for pipeline decisions.
type RuntimeJob struct {
	JobToken   string           `json:"jobToken"`
	FileName   string           `json:"fileName"`
	State      string           `json:"state"` // queued, in_progress, completed, failed
	EnqueuedAt time.Time        `json:"enqueuedAt"`
	StartedAt  *time.Time       `json:"startedAt,omitempty"`
	FinishedAt *time.Time       `json:"finishedAt,omitempty"`
	Error      string           `json:"error,omitempty"`
	Subtasks   []RuntimeSubtask `json:"subtasks"`
}

// RuntimeSnapshot is a point-in-time copy of the monitor for the diagnostics
// endpoint.
type RuntimeSnapshot struct {
	Queued        []RuntimeJob `json:"queued"`
	Active        []RuntimeJob `json:"active"`
	Recent        []RuntimeJob `json:"recent"`
	LastEvent     string       `json:"lastEvent"`
	LastUpdatedAt time.Time    `json:"lastUpdatedAt"`
}

// RuntimeMonitor is best-effort, process-local bookkeeping of job and subtask
// transitions. Losing it on restart loses only the live-tailing view; the job
// store remains the source of truth.
type RuntimeMonitor struct {
	mu            sync.RWMutex
	queued        map[string]*RuntimeJob
	active        map[string]*RuntimeJob
	recent        []*RuntimeJob
	lastEvent     string
	lastUpdatedAt time.Time
}

func NewRuntimeMonitor() *RuntimeMonitor {
	return &RuntimeMonitor{
		queued: make(map[string]*RuntimeJob),
		active: make(map[string]*RuntimeJob),
	}
}

// touch must be called with the lock held.
func (m *RuntimeMonitor) touch(event string) {
	m.lastEvent = event
	m.lastUpdatedAt = time.Now().UTC()
}

// JobQueued records a freshly submitted job.
func (m *RuntimeMonitor) JobQueued(token, fileName string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.queued[token] = &RuntimeJob{
		JobToken:   token,
		FileName:   fileName,
		State:      "queued",
		EnqueuedAt: time.Now().UTC(),
		Subtasks:   []RuntimeSubtask{},
	}
	m.touch("job queued: " + token)
}

// JobStarted moves a job from the queued map to the active map.
func (m *RuntimeMonitor) JobStarted(token string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	job, ok := m.queued[token]
	if !ok {
		// Worker may start a job enqueued before a restart.
		job = &RuntimeJob{JobToken: token, EnqueuedAt: time.Now().UTC(), Subtasks: []RuntimeSubtask{}}
	}
	delete(m.queued, token)

	now := time.Now().UTC()
	job.State = "in_progress"
	job.StartedAt = &now
	m.active[token] = job
	m.touch("job started: " + token)
}

// SubtaskStarted records the start of a named step on an active job.
func (m *RuntimeMonitor) SubtaskStarted(token, name string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	job, ok := m.active[token]
	if !ok {
		return
	}
	job.Subtasks = append(job.Subtasks, RuntimeSubtask{
		Name:      name,
		StartedAt: time.Now().UTC(),
	})
	m.touch("subtask started: " + token + "/" + name)
}

// SubtaskFinished records the outcome of the most recent subtask with the
// given name.
func (m *RuntimeMonitor) SubtaskFinished(token, name string, success bool, errMsg string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	job, ok := m.active[token]
	if !ok {
		return
	}
	for i := len(job.Subtasks) - 1; i >= 0; i-- {
		if job.Subtasks[i].Name == name && job.Subtasks[i].FinishedAt == nil {
			now := time.Now().UTC()
			job.Subtasks[i].FinishedAt = &now
			job.Subtasks[i].Success = &success
			job.Subtasks[i].Error = errMsg
			break
		}
	}
	m.touch("subtask finished: " + token + "/" + name)
}

// JobCompleted retires an active job into the recent ring as completed.
func (m *RuntimeMonitor) JobCompleted(token string) {
	m.finishJob(token, "completed", "")
}

// JobFailed retires an active job into the recent ring as failed.
func (m *RuntimeMonitor) JobFailed(token, errMsg string) {
	m.finishJob(token, "failed", errMsg)
}

func (m *RuntimeMonitor) finishJob(token, state, errMsg string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	job, ok := m.active[token]
	if !ok {
		return
	}
	delete(m.active, token)

	now := time.Now().UTC()
	job.State = state
	job.FinishedAt = &now
	job.Error = errMsg

	m.recent = append(m.recent, job)
	if len(m.recent) > recentCapacity {
		m.recent = m.recent[len(m.recent)-recentCapacity:]
	}
	m.touch("job " + state + ": " + token)
}

// Snapshot returns a deep copy safe to serialize outside the lock.
func (m *RuntimeMonitor) Snapshot() RuntimeSnapshot {
	m.mu.RLock()
	defer m.mu.RUnlock()

	snap := RuntimeSnapshot{
		Queued:        make([]RuntimeJob, 0, len(m.queued)),
		Active:        make([]RuntimeJob, 0, len(m.active)),
		Recent:        make([]RuntimeJob, 0, len(m.recent)),
		LastEvent:     m.lastEvent,
		LastUpdatedAt: m.lastUpdatedAt,
	}
	for _, job := range m.queued {
		snap.Queued = append(snap.Queued, copyRuntimeJob(job))
	}
	for _, job := range m.active {
		snap.Active = append(snap.Active, copyRuntimeJob(job))
	}
	for _, job := range m.recent {
		snap.Recent = append(snap.Recent, copyRuntimeJob(job))
	}
	return snap
}

func copyRuntimeJob(job *RuntimeJob) RuntimeJob {
	out := *job
	out.Subtasks = make([]RuntimeSubtask, len(job.Subtasks))
	copy(out.Subtasks, job.Subtasks)
	return out
}
