package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"git.home.luguber.info/inful/docwiki/internal/models"
)

// SQLiteStore implements Store using SQLite.
type SQLiteStore struct {
	db  *sql.DB
	mu  sync.RWMutex
	now func() time.Time
}

// NewSQLiteStore opens (and if needed creates) the database at dbPath.
// Use ":memory:" for an in-memory database.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}
	// A single connection serializes writers and keeps ":memory:" databases alive.
	db.SetMaxOpenConns(1)

	s := &SQLiteStore{db: db, now: time.Now}
	if err := s.initialize(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("initialize schema: %w", err)
	}
	return s, nil
}

func (s *SQLiteStore) initialize() error {
	schema := `
	PRAGMA journal_mode = WAL;
	PRAGMA busy_timeout = 5000;
	CREATE TABLE IF NOT EXISTS jobs (
		id TEXT PRIMARY KEY,
		source_url TEXT NOT NULL,
		source_branch TEXT NOT NULL DEFAULT '',
		source_credential TEXT NOT NULL DEFAULT '',
		name TEXT NOT NULL DEFAULT '',
		status TEXT NOT NULL,
		error TEXT NOT NULL DEFAULT '',
		version TEXT NOT NULL DEFAULT '',
		catalogue_text TEXT NOT NULL DEFAULT '',
		claimed_by TEXT NOT NULL DEFAULT '',
		lease_until INTEGER NOT NULL DEFAULT 0,
		created_at INTEGER NOT NULL,
		updated_at INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_jobs_status_created ON jobs(status, created_at);
	CREATE TABLE IF NOT EXISTS documents (
		job_id TEXT PRIMARY KEY,
		local_path TEXT NOT NULL DEFAULT '',
		status TEXT NOT NULL,
		last_update INTEGER NOT NULL,
		overview TEXT NOT NULL DEFAULT '',
		knowledge_graph TEXT NOT NULL DEFAULT ''
	);
	CREATE TABLE IF NOT EXISTS catalogue_nodes (
		id TEXT PRIMARY KEY,
		job_id TEXT NOT NULL,
		parent_id TEXT NOT NULL DEFAULT '',
		title TEXT NOT NULL,
		slug TEXT NOT NULL DEFAULT '',
		prompt TEXT NOT NULL DEFAULT '',
		ord INTEGER NOT NULL,
		complete INTEGER NOT NULL DEFAULT 0,
		content TEXT NOT NULL DEFAULT '',
		refs TEXT NOT NULL DEFAULT '[]',
		dependent_files TEXT NOT NULL DEFAULT '[]'
	);
	CREATE INDEX IF NOT EXISTS idx_nodes_job ON catalogue_nodes(job_id, ord);
	`
	_, err := s.db.Exec(schema)
	return err
}

// Close closes the database.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func (s *SQLiteStore) withTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

const jobColumns = `id, source_url, source_branch, source_credential, name, status, error,
	version, catalogue_text, claimed_by, created_at, updated_at`

const qualifiedJobColumns = `j.id, j.source_url, j.source_branch, j.source_credential, j.name, j.status, j.error,
	j.version, j.catalogue_text, j.claimed_by, j.created_at, j.updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanJob(row rowScanner) (*models.Job, error) {
	var j models.Job
	var status string
	var created, updated int64
	err := row.Scan(&j.ID, &j.Source.URL, &j.Source.Branch, &j.Source.Credential, &j.Name, &status,
		&j.Error, &j.Version, &j.CatalogueText, &j.ClaimedBy, &created, &updated)
	if err != nil {
		return nil, err
	}
	j.Status = models.JobStatus(status)
	j.CreatedAt = time.Unix(0, created).UTC()
	j.UpdatedAt = time.Unix(0, updated).UTC()
	return &j, nil
}

func getJob(ctx context.Context, q querier, id string) (*models.Job, error) {
	j, err := scanJob(q.QueryRowContext(ctx, "SELECT "+jobColumns+" FROM jobs WHERE id = ?", id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("job %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("query job: %w", err)
	}
	return j, nil
}

// CreateJob inserts a new job. Empty ids are generated; status defaults to pending.
func (s *SQLiteStore) CreateJob(ctx context.Context, job *models.Job) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if job.ID == "" {
		job.ID = uuid.NewString()
	}
	if job.Status == "" {
		job.Status = models.JobPending
	}
	now := s.now().UTC()
	job.CreatedAt, job.UpdatedAt = now, now

	_, err := s.db.ExecContext(ctx, `INSERT INTO jobs (`+jobColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		job.ID, job.Source.URL, job.Source.Branch, job.Source.Credential, job.Name, string(job.Status),
		job.Error, job.Version, job.CatalogueText, job.ClaimedBy, now.UnixNano(), now.UnixNano())
	if err != nil {
		return fmt.Errorf("insert job: %w", err)
	}
	return nil
}

// GetJob returns a job by id.
func (s *SQLiteStore) GetJob(ctx context.Context, id string) (*models.Job, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return getJob(ctx, s.db, id)
}

// ListJobs returns jobs oldest first.
func (s *SQLiteStore) ListJobs(ctx context.Context, filter JobFilter) ([]models.Job, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	query := "SELECT " + jobColumns + " FROM jobs"
	var args []any
	if len(filter.Statuses) > 0 {
		placeholders := make([]string, len(filter.Statuses))
		for i, st := range filter.Statuses {
			placeholders[i] = "?"
			args = append(args, string(st))
		}
		query += " WHERE status IN (" + strings.Join(placeholders, ",") + ")"
	}
	query += " ORDER BY created_at, rowid"
	if filter.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, filter.Limit)
	}
	return s.queryJobs(ctx, s.db, query, args...)
}

func (s *SQLiteStore) queryJobs(ctx context.Context, q querier, query string, args ...any) ([]models.Job, error) {
	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query jobs: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var jobs []models.Job
	for rows.Next() {
		j, err := scanJob(rows)
		if err != nil {
			return nil, fmt.Errorf("scan job: %w", err)
		}
		jobs = append(jobs, *j)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate rows: %w", err)
	}
	return jobs, nil
}

// ClaimNextJob atomically claims the next runnable job.
func (s *SQLiteStore) ClaimNextJob(ctx context.Context, claimant Claimant) (*models.Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var claimed *models.Job
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		now := s.now().UTC()
		var id string
		err := tx.QueryRowContext(ctx, `SELECT id FROM jobs
			WHERE status = ? OR (status = ? AND lease_until <= ?)
			ORDER BY CASE status WHEN ? THEN 0 ELSE 1 END, created_at, rowid
			LIMIT 1`,
			string(models.JobPending), string(models.JobProcessing), now.UnixNano(), string(models.JobProcessing),
		).Scan(&id)
		if errors.Is(err, sql.ErrNoRows) {
			return ErrNoJob
		}
		if err != nil {
			return fmt.Errorf("select runnable job: %w", err)
		}

		if _, err := tx.ExecContext(ctx,
			`UPDATE jobs SET status = ?, claimed_by = ?, lease_until = ?, updated_at = ? WHERE id = ?`,
			string(models.JobProcessing), claimant.String(), now.Add(claimant.LeaseDuration()).UnixNano(), now.UnixNano(), id); err != nil {
			return fmt.Errorf("claim job: %w", err)
		}
		if _, err := tx.ExecContext(ctx, `UPDATE documents SET status = ? WHERE job_id = ?`,
			string(models.JobProcessing), id); err != nil {
			return fmt.Errorf("mirror document status: %w", err)
		}
		claimed, err = getJob(ctx, tx, id)
		return err
	})
	if err != nil {
		return nil, err
	}
	return claimed, nil
}

// RenewLease pushes the claimant's lease forward.
func (s *SQLiteStore) RenewLease(ctx context.Context, id string, claimant Claimant) error {
	now := s.now().UTC()
	return s.setLease(ctx, id, claimant, now.Add(claimant.LeaseDuration()).UnixNano())
}

// ReleaseLease expires the claimant's lease.
func (s *SQLiteStore) ReleaseLease(ctx context.Context, id string, claimant Claimant) error {
	return s.setLease(ctx, id, claimant, 0)
}

func (s *SQLiteStore) setLease(ctx context.Context, id string, claimant Claimant, until int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.ExecContext(ctx, `UPDATE jobs SET lease_until = ? WHERE id = ? AND status = ? AND claimed_by = ?`,
		until, id, string(models.JobProcessing), claimant.String())
	if err != nil {
		return fmt.Errorf("update lease: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("job %s: %w", id, ErrLeaseLost)
	}
	return nil
}

// UpdateJob writes the job if its stored status permits the transition.
func (s *SQLiteStore) UpdateJob(ctx context.Context, job *models.Job) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.withTx(ctx, func(tx *sql.Tx) error {
		return s.updateJob(ctx, tx, job)
	})
}

func (s *SQLiteStore) updateJob(ctx context.Context, tx *sql.Tx, job *models.Job) error {
	current, err := getJob(ctx, tx, job.ID)
	if err != nil {
		return err
	}
	if err := checkTransition(current.Status, job.Status); err != nil {
		return err
	}
	now := s.now().UTC()
	if _, err := tx.ExecContext(ctx, `UPDATE jobs SET source_url = ?, source_branch = ?, source_credential = ?,
		name = ?, status = ?, error = ?, version = ?, catalogue_text = ?, updated_at = ? WHERE id = ?`,
		job.Source.URL, job.Source.Branch, job.Source.Credential, job.Name, string(job.Status), job.Error,
		job.Version, job.CatalogueText, now.UnixNano(), job.ID); err != nil {
		return fmt.Errorf("update job: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `UPDATE documents SET status = ? WHERE job_id = ?`,
		string(job.Status), job.ID); err != nil {
		return fmt.Errorf("mirror document status: %w", err)
	}
	job.UpdatedAt = now
	return nil
}

// SetJobStatus moves a job between statuses without touching other fields.
func (s *SQLiteStore) SetJobStatus(ctx context.Context, id string, from []models.JobStatus, to models.JobStatus) (*models.Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var updated *models.Job
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		current, err := getJob(ctx, tx, id)
		if err != nil {
			return err
		}
		if err := checkStatusChange(current.Status, from, to); err != nil {
			return err
		}
		query := `UPDATE jobs SET status = ?, updated_at = ? WHERE id = ?`
		if to == models.JobPending {
			query = `UPDATE jobs SET status = ?, error = '', updated_at = ? WHERE id = ?`
		}
		if _, err := tx.ExecContext(ctx, query, string(to), s.now().UTC().UnixNano(), id); err != nil {
			return fmt.Errorf("set job status: %w", err)
		}
		if _, err := tx.ExecContext(ctx, `UPDATE documents SET status = ? WHERE job_id = ?`,
			string(to), id); err != nil {
			return fmt.Errorf("mirror document status: %w", err)
		}
		updated, err = getJob(ctx, tx, id)
		return err
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

// CompleteJob writes the finished job and its document together.
func (s *SQLiteStore) CompleteJob(ctx context.Context, job *models.Job, doc *models.DocumentRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.withTx(ctx, func(tx *sql.Tx) error {
		if err := s.updateJob(ctx, tx, job); err != nil {
			return err
		}
		return upsertDocument(ctx, tx, doc)
	})
}

// DeleteJob removes the job and everything it owns in one transaction.
func (s *SQLiteStore) DeleteJob(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.withTx(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, `DELETE FROM jobs WHERE id = ?`, id)
		if err != nil {
			return fmt.Errorf("delete job: %w", err)
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return fmt.Errorf("job %s: %w", id, ErrNotFound)
		}
		if _, err := tx.ExecContext(ctx, `DELETE FROM documents WHERE job_id = ?`, id); err != nil {
			return fmt.Errorf("delete document: %w", err)
		}
		if _, err := tx.ExecContext(ctx, `DELETE FROM catalogue_nodes WHERE job_id = ?`, id); err != nil {
			return fmt.Errorf("delete catalogue nodes: %w", err)
		}
		return nil
	})
}

// ListStaleCompleted returns completed jobs whose document predates cutoff.
func (s *SQLiteStore) ListStaleCompleted(ctx context.Context, cutoff time.Time) ([]models.Job, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.queryJobs(ctx, s.db, `SELECT `+qualifiedJobColumns+` FROM jobs j JOIN documents d ON d.job_id = j.id
		WHERE j.status = ? AND d.last_update < ? ORDER BY d.last_update, j.rowid`,
		string(models.JobCompleted), cutoff.UTC().UnixNano())
}

// RequeueJob moves a completed job back to pending and refreshes its nodes.
func (s *SQLiteStore) RequeueJob(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.withTx(ctx, func(tx *sql.Tx) error {
		current, err := getJob(ctx, tx, id)
		if err != nil {
			return err
		}
		if current.Status != models.JobCompleted {
			return &TransitionError{From: current.Status, To: models.JobPending}
		}
		now := s.now().UTC().UnixNano()
		if _, err := tx.ExecContext(ctx, `UPDATE jobs SET status = ?, error = '', updated_at = ? WHERE id = ?`,
			string(models.JobPending), now, id); err != nil {
			return fmt.Errorf("requeue job: %w", err)
		}
		if _, err := tx.ExecContext(ctx, `UPDATE documents SET status = ? WHERE job_id = ?`,
			string(models.JobPending), id); err != nil {
			return fmt.Errorf("mirror document status: %w", err)
		}
		if _, err := tx.ExecContext(ctx, `UPDATE catalogue_nodes SET complete = 0, content = '', refs = '[]' WHERE job_id = ?`,
			id); err != nil {
			return fmt.Errorf("refresh catalogue nodes: %w", err)
		}
		return nil
	})
}

// UpsertDocument creates or replaces the job's document record.
func (s *SQLiteStore) UpsertDocument(ctx context.Context, doc *models.DocumentRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return upsertDocument(ctx, s.db, doc)
}

func upsertDocument(ctx context.Context, q querier, doc *models.DocumentRecord) error {
	_, err := q.ExecContext(ctx, `INSERT INTO documents (job_id, local_path, status, last_update, overview, knowledge_graph)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(job_id) DO UPDATE SET local_path = excluded.local_path, status = excluded.status,
			last_update = excluded.last_update, overview = excluded.overview, knowledge_graph = excluded.knowledge_graph`,
		doc.JobID, doc.LocalPath, string(doc.Status), doc.LastUpdate.UTC().UnixNano(), doc.Overview, doc.KnowledgeGraph)
	if err != nil {
		return fmt.Errorf("upsert document: %w", err)
	}
	return nil
}

// GetDocument returns the job's document record.
func (s *SQLiteStore) GetDocument(ctx context.Context, jobID string) (*models.DocumentRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var d models.DocumentRecord
	var status string
	var last int64
	err := s.db.QueryRowContext(ctx, `SELECT job_id, local_path, status, last_update, overview, knowledge_graph
		FROM documents WHERE job_id = ?`, jobID).Scan(&d.JobID, &d.LocalPath, &status, &last, &d.Overview, &d.KnowledgeGraph)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("document %s: %w", jobID, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("query document: %w", err)
	}
	d.Status = models.JobStatus(status)
	d.LastUpdate = time.Unix(0, last).UTC()
	return &d, nil
}

// InsertCatalogueNodes stores a planning pass for a job in one transaction.
func (s *SQLiteStore) InsertCatalogueNodes(ctx context.Context, jobID string, nodes []models.CatalogueNode) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.withTx(ctx, func(tx *sql.Tx) error {
		var count int
		if err := tx.QueryRowContext(ctx, `SELECT COUNT(*) FROM catalogue_nodes WHERE job_id = ?`, jobID).Scan(&count); err != nil {
			return fmt.Errorf("count catalogue nodes: %w", err)
		}
		if count > 0 {
			return fmt.Errorf("job %s: %w", jobID, ErrNodesExist)
		}
		for _, n := range nodes {
			refs, err := json.Marshal(nonNil(n.References))
			if err != nil {
				return fmt.Errorf("marshal references: %w", err)
			}
			deps, err := json.Marshal(nonNil(n.DependentFiles))
			if err != nil {
				return fmt.Errorf("marshal dependent files: %w", err)
			}
			if _, err := tx.ExecContext(ctx, `INSERT INTO catalogue_nodes
				(id, job_id, parent_id, title, slug, prompt, ord, complete, content, refs, dependent_files)
				VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
				n.ID, jobID, n.ParentID, n.Title, n.Slug, n.Prompt, n.Order, boolToInt(n.Complete), n.Content,
				string(refs), string(deps)); err != nil {
				return fmt.Errorf("insert catalogue node %s: %w", n.ID, err)
			}
		}
		return nil
	})
}

// ListCatalogueNodes returns a job's nodes in Order.
func (s *SQLiteStore) ListCatalogueNodes(ctx context.Context, jobID string) ([]models.CatalogueNode, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, `SELECT id, job_id, parent_id, title, slug, prompt, ord, complete, content, refs, dependent_files
		FROM catalogue_nodes WHERE job_id = ? ORDER BY ord, id`, jobID)
	if err != nil {
		return nil, fmt.Errorf("query catalogue nodes: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var nodes []models.CatalogueNode
	for rows.Next() {
		var n models.CatalogueNode
		var complete int
		var refs, deps string
		if err := rows.Scan(&n.ID, &n.JobID, &n.ParentID, &n.Title, &n.Slug, &n.Prompt, &n.Order, &complete,
			&n.Content, &refs, &deps); err != nil {
			return nil, fmt.Errorf("scan catalogue node: %w", err)
		}
		n.Complete = complete != 0
		if err := json.Unmarshal([]byte(refs), &n.References); err != nil {
			return nil, fmt.Errorf("unmarshal references: %w", err)
		}
		if err := json.Unmarshal([]byte(deps), &n.DependentFiles); err != nil {
			return nil, fmt.Errorf("unmarshal dependent files: %w", err)
		}
		if len(n.References) == 0 {
			n.References = nil
		}
		if len(n.DependentFiles) == 0 {
			n.DependentFiles = nil
		}
		nodes = append(nodes, n)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate rows: %w", err)
	}
	return nodes, nil
}

// CompleteNode writes content, references and the completion flag in a single statement.
func (s *SQLiteStore) CompleteNode(ctx context.Context, nodeID, content string, references []string) error {
	if strings.TrimSpace(content) == "" {
		return ErrEmptyContent
	}
	refs, err := json.Marshal(nonNil(references))
	if err != nil {
		return fmt.Errorf("marshal references: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.ExecContext(ctx, `UPDATE catalogue_nodes SET content = ?, refs = ?, complete = 1 WHERE id = ?`,
		content, string(refs), nodeID)
	if err != nil {
		return fmt.Errorf("complete node: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("node %s: %w", nodeID, ErrNotFound)
	}
	return nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
