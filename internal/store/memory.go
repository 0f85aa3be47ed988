package store

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"git.home.luguber.info/inful/docwiki/internal/models"
)

type memJob struct {
	job        models.Job
	leaseUntil time.Time
	seq        int
}

// MemoryStore is an in-process Store. All methods copy values in and out.
type MemoryStore struct {
	mu    sync.Mutex
	jobs  map[string]*memJob
	docs  map[string]models.DocumentRecord
	nodes map[string][]models.CatalogueNode // job id -> nodes
	seq   int
	now   func() time.Time
}

// NewMemoryStore returns an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		jobs:  map[string]*memJob{},
		docs:  map[string]models.DocumentRecord{},
		nodes: map[string][]models.CatalogueNode{},
		now:   time.Now,
	}
}

func (m *MemoryStore) Close() error { return nil }

func (m *MemoryStore) CreateJob(_ context.Context, job *models.Job) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if job.ID == "" {
		job.ID = uuid.NewString()
	}
	if _, exists := m.jobs[job.ID]; exists {
		return fmt.Errorf("job %s already exists", job.ID)
	}
	if job.Status == "" {
		job.Status = models.JobPending
	}
	now := m.now().UTC()
	job.CreatedAt, job.UpdatedAt = now, now
	m.seq++
	m.jobs[job.ID] = &memJob{job: *job, seq: m.seq}
	return nil
}

func (m *MemoryStore) GetJob(_ context.Context, id string) (*models.Job, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	mj, ok := m.jobs[id]
	if !ok {
		return nil, fmt.Errorf("job %s: %w", id, ErrNotFound)
	}
	j := mj.job
	return &j, nil
}

func (m *MemoryStore) sortedJobs() []*memJob {
	out := make([]*memJob, 0, len(m.jobs))
	for _, mj := range m.jobs {
		out = append(out, mj)
	}
	sort.Slice(out, func(i, k int) bool {
		a, b := out[i], out[k]
		if !a.job.CreatedAt.Equal(b.job.CreatedAt) {
			return a.job.CreatedAt.Before(b.job.CreatedAt)
		}
		return a.seq < b.seq
	})
	return out
}

func (m *MemoryStore) ListJobs(_ context.Context, filter JobFilter) ([]models.Job, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []models.Job
	for _, mj := range m.sortedJobs() {
		if len(filter.Statuses) > 0 && !containsStatus(filter.Statuses, mj.job.Status) {
			continue
		}
		out = append(out, mj.job)
		if filter.Limit > 0 && len(out) == filter.Limit {
			break
		}
	}
	return out, nil
}

func containsStatus(list []models.JobStatus, s models.JobStatus) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

func (m *MemoryStore) ClaimNextJob(_ context.Context, claimant Claimant) (*models.Job, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now().UTC()
	var pick *memJob
	for _, mj := range m.sortedJobs() {
		if mj.job.Status == models.JobProcessing && !mj.leaseUntil.After(now) {
			pick = mj
			break
		}
		if mj.job.Status == models.JobPending && pick == nil {
			pick = mj
		}
	}
	if pick == nil {
		return nil, ErrNoJob
	}
	pick.job.Status = models.JobProcessing
	pick.job.ClaimedBy = claimant.String()
	pick.job.UpdatedAt = now
	pick.leaseUntil = now.Add(claimant.LeaseDuration())
	m.mirrorStatus(pick.job.ID, models.JobProcessing)
	j := pick.job
	return &j, nil
}

func (m *MemoryStore) RenewLease(_ context.Context, id string, claimant Claimant) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.setLease(id, claimant, m.now().UTC().Add(claimant.LeaseDuration()))
}

func (m *MemoryStore) ReleaseLease(_ context.Context, id string, claimant Claimant) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.setLease(id, claimant, time.Time{})
}

func (m *MemoryStore) setLease(id string, claimant Claimant, until time.Time) error {
	mj, ok := m.jobs[id]
	if !ok || mj.job.Status != models.JobProcessing || mj.job.ClaimedBy != claimant.String() {
		return fmt.Errorf("job %s: %w", id, ErrLeaseLost)
	}
	mj.leaseUntil = until
	return nil
}

func (m *MemoryStore) mirrorStatus(jobID string, status models.JobStatus) {
	if d, ok := m.docs[jobID]; ok {
		d.Status = status
		m.docs[jobID] = d
	}
}

func (m *MemoryStore) UpdateJob(_ context.Context, job *models.Job) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.updateJob(job)
}

func (m *MemoryStore) updateJob(job *models.Job) error {
	mj, ok := m.jobs[job.ID]
	if !ok {
		return fmt.Errorf("job %s: %w", job.ID, ErrNotFound)
	}
	if err := checkTransition(mj.job.Status, job.Status); err != nil {
		return err
	}
	updated := *job
	updated.CreatedAt = mj.job.CreatedAt
	updated.ClaimedBy = mj.job.ClaimedBy
	updated.UpdatedAt = m.now().UTC()
	mj.job = updated
	job.UpdatedAt = updated.UpdatedAt
	m.mirrorStatus(job.ID, job.Status)
	return nil
}

func (m *MemoryStore) SetJobStatus(_ context.Context, id string, from []models.JobStatus, to models.JobStatus) (*models.Job, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	mj, ok := m.jobs[id]
	if !ok {
		return nil, fmt.Errorf("job %s: %w", id, ErrNotFound)
	}
	if err := checkStatusChange(mj.job.Status, from, to); err != nil {
		return nil, err
	}
	mj.job.Status = to
	if to == models.JobPending {
		mj.job.Error = ""
	}
	mj.job.UpdatedAt = m.now().UTC()
	m.mirrorStatus(id, to)
	j := mj.job
	return &j, nil
}

func (m *MemoryStore) CompleteJob(_ context.Context, job *models.Job, doc *models.DocumentRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.updateJob(job); err != nil {
		return err
	}
	m.upsertDocument(doc)
	return nil
}

func (m *MemoryStore) DeleteJob(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.jobs[id]; !ok {
		return fmt.Errorf("job %s: %w", id, ErrNotFound)
	}
	delete(m.jobs, id)
	delete(m.docs, id)
	delete(m.nodes, id)
	return nil
}

func (m *MemoryStore) ListStaleCompleted(_ context.Context, cutoff time.Time) ([]models.Job, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []models.Job
	for _, mj := range m.sortedJobs() {
		if mj.job.Status != models.JobCompleted {
			continue
		}
		d, ok := m.docs[mj.job.ID]
		if !ok || !d.LastUpdate.Before(cutoff) {
			continue
		}
		out = append(out, mj.job)
	}
	sort.SliceStable(out, func(i, k int) bool {
		return m.docs[out[i].ID].LastUpdate.Before(m.docs[out[k].ID].LastUpdate)
	})
	return out, nil
}

func (m *MemoryStore) RequeueJob(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	mj, ok := m.jobs[id]
	if !ok {
		return fmt.Errorf("job %s: %w", id, ErrNotFound)
	}
	if mj.job.Status != models.JobCompleted {
		return &TransitionError{From: mj.job.Status, To: models.JobPending}
	}
	mj.job.Status = models.JobPending
	mj.job.Error = ""
	mj.job.UpdatedAt = m.now().UTC()
	m.mirrorStatus(id, models.JobPending)
	nodes := m.nodes[id]
	for i := range nodes {
		nodes[i].Complete = false
		nodes[i].Content = ""
		nodes[i].References = nil
	}
	return nil
}

func (m *MemoryStore) UpsertDocument(_ context.Context, doc *models.DocumentRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.upsertDocument(doc)
	return nil
}

func (m *MemoryStore) upsertDocument(doc *models.DocumentRecord) {
	d := *doc
	d.LastUpdate = d.LastUpdate.UTC()
	m.docs[doc.JobID] = d
}

func (m *MemoryStore) GetDocument(_ context.Context, jobID string) (*models.DocumentRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	d, ok := m.docs[jobID]
	if !ok {
		return nil, fmt.Errorf("document %s: %w", jobID, ErrNotFound)
	}
	return &d, nil
}

func (m *MemoryStore) InsertCatalogueNodes(_ context.Context, jobID string, nodes []models.CatalogueNode) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if len(m.nodes[jobID]) > 0 {
		return fmt.Errorf("job %s: %w", jobID, ErrNodesExist)
	}
	seen := map[string]bool{}
	for _, existing := range m.nodes {
		for _, n := range existing {
			seen[n.ID] = true
		}
	}
	copied := make([]models.CatalogueNode, 0, len(nodes))
	for _, n := range nodes {
		if seen[n.ID] {
			return fmt.Errorf("insert catalogue node %s: duplicate id", n.ID)
		}
		seen[n.ID] = true
		n.JobID = jobID
		n.References = cloneStrings(n.References)
		n.DependentFiles = cloneStrings(n.DependentFiles)
		copied = append(copied, n)
	}
	m.nodes[jobID] = copied
	return nil
}

func (m *MemoryStore) ListCatalogueNodes(_ context.Context, jobID string) ([]models.CatalogueNode, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]models.CatalogueNode, 0, len(m.nodes[jobID]))
	for _, n := range m.nodes[jobID] {
		n.References = cloneStrings(n.References)
		n.DependentFiles = cloneStrings(n.DependentFiles)
		out = append(out, n)
	}
	sort.SliceStable(out, func(i, k int) bool {
		if out[i].Order != out[k].Order {
			return out[i].Order < out[k].Order
		}
		return out[i].ID < out[k].ID
	})
	return out, nil
}

func (m *MemoryStore) CompleteNode(_ context.Context, nodeID, content string, references []string) error {
	if strings.TrimSpace(content) == "" {
		return ErrEmptyContent
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	for jobID, nodes := range m.nodes {
		for i := range nodes {
			if nodes[i].ID != nodeID {
				continue
			}
			nodes[i].Content = content
			nodes[i].References = cloneStrings(references)
			nodes[i].Complete = true
			m.nodes[jobID] = nodes
			return nil
		}
	}
	return fmt.Errorf("node %s: %w", nodeID, ErrNotFound)
}

func cloneStrings(s []string) []string {
	if len(s) == 0 {
		return nil
	}
	return append([]string(nil), s...)
}
