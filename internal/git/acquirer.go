package git

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/go-git/go-git/v5"
	ggitcfg "github.com/go-git/go-git/v5/config"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/transport"

	"git.home.luguber.info/inful/docwiki/internal/config"
	"git.home.luguber.info/inful/docwiki/internal/logfields"
	"git.home.luguber.info/inful/docwiki/internal/models"
)

// AcquireResult describes a source checked out in the workspace.
type AcquireResult struct {
	LocalPath string
	Name      string
	Branch    string
	Version   string // HEAD commit hash
}

// Source is implemented by anything that can materialise a job's source.
type Source interface {
	Acquire(ctx context.Context, jobID string, src models.SourceDescriptor) (AcquireResult, error)
}

// Acquirer clones and refreshes job sources with go-git.
type Acquirer struct {
	workspace    string
	shallowDepth int
	credentials  map[string]config.CredentialConfig
}

// NewAcquirer creates an acquirer rooted at the configured workspace.
func NewAcquirer(cfg *config.Config) *Acquirer {
	return &Acquirer{
		workspace:    cfg.Git.Workspace,
		shallowDepth: cfg.Git.ShallowDepth,
		credentials:  cfg.Credentials,
	}
}

// Workspace returns the directory job sources are checked out under.
func (a *Acquirer) Workspace() string { return a.workspace }

// Path returns the checkout directory for a job.
func (a *Acquirer) Path(jobID string) string { return filepath.Join(a.workspace, jobID) }

// Acquire clones src into the job's checkout directory, or updates an
// existing checkout to the remote head. Authentication failures are returned
// as CategoryAuth errors, any other failure as CategoryAcquisition.
func (a *Acquirer) Acquire(ctx context.Context, jobID string, src models.SourceDescriptor) (AcquireResult, error) {
	if src.URL == "" {
		return AcquireResult{}, toDocWikiError(src.URL, errors.New("source url is empty"))
	}
	auth, err := a.resolveAuth(src.Credential)
	if err != nil {
		return AcquireResult{}, toDocWikiError(src.URL, &AuthError{Op: "auth", URL: src.URL, Err: err})
	}

	repoPath := a.Path(jobID)
	var repo *git.Repository
	if _, statErr := os.Stat(filepath.Join(repoPath, ".git")); statErr == nil {
		repo, err = a.update(ctx, repoPath, src, auth)
	} else {
		repo, err = a.clone(ctx, repoPath, src, auth)
	}
	if err != nil {
		return AcquireResult{}, toDocWikiError(src.URL, err)
	}

	head, err := repo.Head()
	if err != nil {
		return AcquireResult{}, toDocWikiError(src.URL, fmt.Errorf("resolve head: %w", err))
	}
	res := AcquireResult{
		LocalPath: repoPath,
		Name:      RepoName(src.URL),
		Branch:    head.Name().Short(),
		Version:   head.Hash().String(),
	}
	slog.Info("Source acquired", logfields.JobID(jobID), logfields.URL(src.URL),
		logfields.Branch(res.Branch), logfields.Commit(shortHash(res.Version)), logfields.Path(repoPath))
	return res, nil
}

func (a *Acquirer) clone(ctx context.Context, repoPath string, src models.SourceDescriptor, auth transport.AuthMethod) (*git.Repository, error) {
	slog.Debug("Cloning repository", logfields.URL(src.URL), logfields.Branch(src.Branch), logfields.Path(repoPath))
	if err := os.RemoveAll(repoPath); err != nil {
		return nil, fmt.Errorf("failed to remove existing directory: %w", err)
	}
	if err := os.MkdirAll(a.workspace, 0o750); err != nil {
		return nil, fmt.Errorf("failed to create workspace: %w", err)
	}

	opts := &git.CloneOptions{URL: src.URL, Auth: auth, Tags: git.NoTags}
	if src.Branch != "" {
		opts.ReferenceName = plumbing.NewBranchReferenceName(src.Branch)
		opts.SingleBranch = true
	}
	if a.shallowDepth > 0 {
		opts.Depth = a.shallowDepth
	}
	repo, err := git.PlainCloneContext(ctx, repoPath, false, opts)
	if err != nil {
		_ = os.RemoveAll(repoPath)
		return nil, classify("clone", src.URL, err)
	}
	return repo, nil
}

func (a *Acquirer) update(ctx context.Context, repoPath string, src models.SourceDescriptor, auth transport.AuthMethod) (*git.Repository, error) {
	repo, err := git.PlainOpen(repoPath)
	if err != nil {
		// A corrupt checkout is replaced by a fresh clone.
		slog.Warn("Existing checkout unusable, recloning", logfields.Path(repoPath), logfields.Error(err))
		return a.clone(ctx, repoPath, src, auth)
	}
	slog.Debug("Updating repository", logfields.URL(src.URL), logfields.Path(repoPath))

	fetchOpts := &git.FetchOptions{
		RemoteName: "origin",
		Auth:       auth,
		Tags:       git.NoTags,
		Force:      true,
		RefSpecs:   []ggitcfg.RefSpec{"+refs/heads/*:refs/remotes/origin/*"},
	}
	if a.shallowDepth > 0 {
		fetchOpts.Depth = a.shallowDepth
	}
	if err := repo.FetchContext(ctx, fetchOpts); err != nil && !errors.Is(err, git.NoErrAlreadyUpToDate) {
		return nil, classify("fetch", src.URL, err)
	}

	branch, err := resolveTargetBranch(repo, src)
	if err != nil {
		return nil, err
	}
	remoteRef, err := repo.Reference(plumbing.NewRemoteReferenceName("origin", branch), true)
	if err != nil {
		return nil, &NotFoundError{Op: "update", URL: src.URL, Err: fmt.Errorf("remote branch %s: %w", branch, err)}
	}

	wt, err := repo.Worktree()
	if err != nil {
		return nil, fmt.Errorf("worktree: %w", err)
	}
	localRef := plumbing.NewBranchReferenceName(branch)
	if err := repo.Storer.SetReference(plumbing.NewHashReference(localRef, remoteRef.Hash())); err != nil {
		return nil, fmt.Errorf("set branch %s: %w", branch, err)
	}
	if err := wt.Checkout(&git.CheckoutOptions{Branch: localRef, Force: true}); err != nil {
		return nil, fmt.Errorf("checkout %s: %w", branch, err)
	}
	if err := wt.Reset(&git.ResetOptions{Commit: remoteRef.Hash(), Mode: git.HardReset}); err != nil {
		return nil, fmt.Errorf("hard reset: %w", err)
	}
	if err := wt.Clean(&git.CleanOptions{Dir: true}); err != nil {
		slog.Warn("Clean untracked failed", logfields.Path(repoPath), logfields.Error(err))
	}
	return repo, nil
}

// resolveTargetBranch picks the branch to track: the requested one, then the
// current HEAD branch, then origin's default, then "main".
func resolveTargetBranch(repo *git.Repository, src models.SourceDescriptor) (string, error) {
	if src.Branch != "" {
		return src.Branch, nil
	}
	if headRef, err := repo.Head(); err == nil && headRef.Name().IsBranch() {
		return headRef.Name().Short(), nil
	}
	if ref, err := repo.Reference(plumbing.ReferenceName("refs/remotes/origin/HEAD"), true); err == nil {
		if t := ref.Target(); t != "" {
			return plumbing.ReferenceName(t).Short(), nil
		}
	}
	return "main", nil
}

// RepoName derives a display name from a clone URL: the last path element
// without a trailing ".git".
func RepoName(url string) string {
	u := strings.TrimRight(url, "/")
	if i := strings.LastIndex(u, ":"); i >= 0 && !strings.Contains(u[i:], "/") {
		u = u[i+1:]
	}
	name := strings.TrimSuffix(path.Base(filepath.ToSlash(u)), ".git")
	if name == "" || name == "." || name == "/" {
		return "repository"
	}
	return name
}

func shortHash(h string) string {
	if len(h) > 8 {
		return h[:8]
	}
	return h
}

// Remove deletes a job's checkout directory.
func (a *Acquirer) Remove(jobID string) error {
	if jobID == "" {
		return errors.New("job id is empty")
	}
	return os.RemoveAll(a.Path(jobID))
}
