// Package models holds the persistent and transient domain types of the
// documentation pipeline: jobs, document records, catalogue nodes and trees.
package models

import (
	"time"
)

// JobStatus is the lifecycle state of a documentation job.
type JobStatus string

const (
	JobPending      JobStatus = "pending"
	JobProcessing   JobStatus = "processing"
	JobCompleted    JobStatus = "completed"
	JobCanceled     JobStatus = "canceled"
	JobUnauthorized JobStatus = "unauthorized"
	JobFailed       JobStatus = "failed"
)

// AllJobStatuses lists every status in display order.
var AllJobStatuses = []JobStatus{
	JobPending, JobProcessing, JobCompleted, JobCanceled, JobUnauthorized, JobFailed,
}

// ParseJobStatus returns the status named by s, or false when unknown.
func ParseJobStatus(s string) (JobStatus, bool) {
	for _, st := range AllJobStatuses {
		if string(st) == s {
			return st, true
		}
	}
	return "", false
}

// Terminal reports whether the worker will no longer pick the job up on its own.
func (s JobStatus) Terminal() bool {
	switch s {
	case JobCompleted, JobCanceled, JobUnauthorized, JobFailed:
		return true
	default:
		return false
	}
}

// transitions is the job state machine. Reset (to pending) is allowed from
// failed, unauthorized and canceled; the sweep re-queues completed jobs.
var transitions = map[JobStatus][]JobStatus{
	JobPending:      {JobProcessing, JobCanceled},
	JobProcessing:   {JobCompleted, JobFailed, JobUnauthorized, JobCanceled},
	JobCompleted:    {JobPending},
	JobFailed:       {JobPending},
	JobUnauthorized: {JobPending},
	JobCanceled:     {JobPending},
}

// CanTransitionTo reports whether moving from s to next is a legal transition.
func (s JobStatus) CanTransitionTo(next JobStatus) bool {
	for _, allowed := range transitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// ResettableStatuses are the statuses a manual reset moves back to pending.
var ResettableStatuses = []JobStatus{JobFailed, JobUnauthorized, JobCanceled}

// CancelableStatuses are the statuses a cancel applies to.
var CancelableStatuses = []JobStatus{JobPending, JobProcessing}

// SourceDescriptor identifies where a job's repository comes from.
type SourceDescriptor struct {
	URL        string `json:"url"`
	Branch     string `json:"branch,omitempty"`
	Credential string `json:"credential,omitempty"` // handle into the credentials config map
}

// Job is one documentation run for a repository.
type Job struct {
	ID            string           `json:"id"`
	Source        SourceDescriptor `json:"source"`
	Name          string           `json:"name,omitempty"`
	Status        JobStatus        `json:"status"`
	Error         string           `json:"error,omitempty"`
	Version       string           `json:"version,omitempty"`
	CatalogueText string           `json:"catalogue_text,omitempty"`
	ClaimedBy     string           `json:"claimed_by,omitempty"` // "<instance>/<worker>" of the last claimant
	CreatedAt     time.Time        `json:"created_at"`
	UpdatedAt     time.Time        `json:"updated_at"`
}

// DocumentRecord is created once a job's source has been acquired.
type DocumentRecord struct {
	JobID          string    `json:"job_id"`
	LocalPath      string    `json:"local_path"`
	Status         JobStatus `json:"status"`
	LastUpdate     time.Time `json:"last_update"`
	Overview       string    `json:"overview,omitempty"`
	KnowledgeGraph string    `json:"knowledge_graph,omitempty"`
}
