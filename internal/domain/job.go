package domain

import "time"

// JobStatus enumerates job lifecycle states.
type JobStatus string

const (
	JobStatusPending    JobStatus = "pending"
	JobStatusProcessing JobStatus = "processing"
	JobStatusCompleted  JobStatus = "completed"
	JobStatusFailed     JobStatus = "failed"
	JobStatusCancelled  JobStatus = "cancelled"
)

var jobTransitions = map[JobStatus][]JobStatus{
	JobStatusPending:    {JobStatusProcessing, JobStatusFailed, JobStatusCancelled},
	JobStatusProcessing: {JobStatusCompleted, JobStatusFailed, JobStatusCancelled},
}

// Terminal reports whether the status is a sink of the state machine.
func (s JobStatus) Terminal() bool {
	return s == JobStatusCompleted || s == JobStatusFailed || s == JobStatusCancelled
}

// CanTransitionTo reports whether moving from s to next is a legal transition.
func (s JobStatus) CanTransitionTo(next JobStatus) bool {
	for _, allowed := range jobTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// ProviderState is the provider-reported state of a remote job.
type ProviderState string

const (
	ProviderQueued    ProviderState = "queued"
	ProviderRunning   ProviderState = "running"
	ProviderSucceeded ProviderState = "succeeded"
	ProviderFailed    ProviderState = "failed"
)

// Terminal reports whether the provider considers the job finished.
func (s ProviderState) Terminal() bool {
	return s == ProviderSucceeded || s == ProviderFailed
}

// MaxProgressLogs bounds the log tail kept on a job record.
const MaxProgressLogs = 20

// Progress is the last-seen provider report kept on the job.
type Progress struct {
	ProviderState ProviderState `json:"provider_state,omitempty"`
	QueuePosition *int          `json:"queue_position,omitempty"`
	Logs          []string      `json:"logs,omitempty"`
}

// AppendLogs adds lines to the tail, keeping at most MaxProgressLogs entries.
func (p *Progress) AppendLogs(lines ...string) {
	for _, line := range lines {
		if line == "" {
			continue
		}
		p.Logs = append(p.Logs, line)
	}
	if over := len(p.Logs) - MaxProgressLogs; over > 0 {
		p.Logs = append([]string(nil), p.Logs[over:]...)
	}
}

// JobError is the display-safe failure recorded on a job.
type JobError struct {
	Kind    Kind   `json:"kind"`
	Message string `json:"message"`
}

// GenerationJob is the persisted entity driven by the orchestrator.
type GenerationJob struct {
	ID            string            `json:"id"`
	Request       GenerationRequest `json:"request"`
	Status        JobStatus         `json:"status"`
	ProviderJobID string            `json:"provider_job_id,omitempty"`
	Progress      Progress          `json:"progress"`
	OutputAssetID string            `json:"output_asset_id,omitempty"`
	Error         *JobError         `json:"error,omitempty"`
	CreatedAt     time.Time         `json:"created_at"`
	UpdatedAt     time.Time         `json:"updated_at"`
	CompletedAt   *time.Time        `json:"completed_at,omitempty"`
}

// Clone returns a deep copy safe to hand to another goroutine.
func (j *GenerationJob) Clone() *GenerationJob {
	if j == nil {
		return nil
	}
	out := *j
	out.Request = j.Request.Clone()
	out.Progress.Logs = append([]string(nil), j.Progress.Logs...)
	if j.Progress.QueuePosition != nil {
		pos := *j.Progress.QueuePosition
		out.Progress.QueuePosition = &pos
	}
	if j.Error != nil {
		e := *j.Error
		out.Error = &e
	}
	if j.CompletedAt != nil {
		at := *j.CompletedAt
		out.CompletedAt = &at
	}
	return &out
}

// Snapshot converts the job into a progress event.
func (j *GenerationJob) Snapshot() JobProgress {
	ev := JobProgress{
		JobID:         j.ID,
		Status:        j.Status,
		ProviderState: j.Progress.ProviderState,
		Logs:          append([]string(nil), j.Progress.Logs...),
		OutputAssetID: j.OutputAssetID,
		At:            j.UpdatedAt,
	}
	if j.Progress.QueuePosition != nil {
		pos := *j.Progress.QueuePosition
		ev.QueuePosition = &pos
	}
	if j.Error != nil {
		e := *j.Error
		ev.Error = &e
	}
	return ev
}

// JobProgress is one event of a job's progress stream.
type JobProgress struct {
	JobID         string        `json:"job_id"`
	Status        JobStatus     `json:"status"`
	ProviderState ProviderState `json:"provider_state,omitempty"`
	QueuePosition *int          `json:"queue_position,omitempty"`
	Logs          []string      `json:"logs,omitempty"`
	OutputAssetID string        `json:"output_asset_id,omitempty"`
	Error         *JobError     `json:"error,omitempty"`
	At            time.Time     `json:"at"`
}
