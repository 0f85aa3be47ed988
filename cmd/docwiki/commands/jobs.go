package commands

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"git.home.luguber.info/inful/docwiki/internal/daemon"
	"git.home.luguber.info/inful/docwiki/internal/git"
	"git.home.luguber.info/inful/docwiki/internal/models"
	"git.home.luguber.info/inful/docwiki/internal/notify"
	"git.home.luguber.info/inful/docwiki/internal/store"
)

// withControl opens the store and notifier and hands a Control to fn.
func withControl(g *Global, root *CLI, fn func(ctx context.Context, c *daemon.Control) error) error {
	cfg, st, err := openStore(g, root)
	if err != nil {
		return err
	}
	defer func() { _ = st.Close() }()

	n, err := notify.New(cfg.Notify)
	if err != nil {
		return err
	}
	defer func() { _ = n.Close() }()

	return fn(context.Background(), daemon.NewControl(st, n, git.NewAcquirer(cfg)))
}

// SubmitCmd implements the 'submit' command.
type SubmitCmd struct {
	URL        string `arg:"" help:"Repository URL or local path"`
	Branch     string `short:"b" help:"Branch to document (default: remote HEAD)"`
	Credential string `help:"Credential handle from the configuration"`
	Name       string `short:"n" help:"Display name (default: derived from the URL)"`
}

func (s *SubmitCmd) Run(g *Global, root *CLI) error {
	return withControl(g, root, func(ctx context.Context, c *daemon.Control) error {
		src := models.SourceDescriptor{URL: s.URL, Branch: s.Branch, Credential: s.Credential}
		job, err := c.Submit(ctx, src, s.Name)
		if err != nil {
			return err
		}
		fmt.Println(job.ID)
		return nil
	})
}

// ResetCmd implements the 'reset' command.
type ResetCmd struct {
	ID string `arg:"" help:"Job id"`
}

func (r *ResetCmd) Run(g *Global, root *CLI) error {
	return withControl(g, root, func(ctx context.Context, c *daemon.Control) error {
		job, err := c.Reset(ctx, r.ID)
		if err != nil {
			return err
		}
		fmt.Printf("%s %s\n", job.ID, job.Status)
		return nil
	})
}

// CancelCmd implements the 'cancel' command.
type CancelCmd struct {
	ID string `arg:"" help:"Job id"`
}

func (c *CancelCmd) Run(g *Global, root *CLI) error {
	return withControl(g, root, func(ctx context.Context, ctl *daemon.Control) error {
		job, err := ctl.Cancel(ctx, c.ID)
		if err != nil {
			return err
		}
		fmt.Printf("%s %s\n", job.ID, job.Status)
		return nil
	})
}

// DeleteCmd implements the 'delete' command.
type DeleteCmd struct {
	ID string `arg:"" help:"Job id"`
}

func (d *DeleteCmd) Run(g *Global, root *CLI) error {
	return withControl(g, root, func(ctx context.Context, c *daemon.Control) error {
		return c.Delete(ctx, d.ID)
	})
}

// StatusCmd implements the 'status' command.
type StatusCmd struct {
	ID     string   `arg:"" optional:"" help:"Job id; lists all jobs when omitted"`
	Status []string `short:"s" help:"Only list jobs with these statuses"`
	Limit  int      `short:"l" help:"Maximum number of jobs to list" default:"50"`
}

func (s *StatusCmd) Run(g *Global, root *CLI) error {
	_, st, err := openStore(g, root)
	if err != nil {
		return err
	}
	defer func() { _ = st.Close() }()

	ctx := context.Background()
	if s.ID != "" {
		return printJob(ctx, os.Stdout, st, s.ID)
	}

	filter := store.JobFilter{Limit: s.Limit}
	for _, raw := range s.Status {
		status, ok := models.ParseJobStatus(raw)
		if !ok {
			return fmt.Errorf("unknown status %q", raw)
		}
		filter.Statuses = append(filter.Statuses, status)
	}
	jobs, err := st.ListJobs(ctx, filter)
	if err != nil {
		return err
	}
	return printJobs(os.Stdout, jobs)
}

func printJobs(w io.Writer, jobs []models.Job) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tSTATUS\tNAME\tUPDATED\tSOURCE")
	for _, j := range jobs {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n", j.ID, j.Status, j.Name, j.UpdatedAt.Local().Format(time.DateTime), j.Source.URL)
	}
	return tw.Flush()
}

func printJob(ctx context.Context, w io.Writer, st store.Store, id string) error {
	job, err := st.GetJob(ctx, id)
	if err != nil {
		return err
	}
	nodes, err := st.ListCatalogueNodes(ctx, id)
	if err != nil {
		return err
	}
	done := 0
	for _, n := range nodes {
		if n.Complete {
			done++
		}
	}

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintf(tw, "ID:\t%s\n", job.ID)
	fmt.Fprintf(tw, "Status:\t%s\n", job.Status)
	fmt.Fprintf(tw, "Name:\t%s\n", job.Name)
	fmt.Fprintf(tw, "Source:\t%s\n", job.Source.URL)
	if job.Source.Branch != "" {
		fmt.Fprintf(tw, "Branch:\t%s\n", job.Source.Branch)
	}
	if job.Version != "" {
		fmt.Fprintf(tw, "Version:\t%s\n", job.Version)
	}
	if job.ClaimedBy != "" {
		fmt.Fprintf(tw, "Claimed by:\t%s\n", job.ClaimedBy)
	}
	fmt.Fprintf(tw, "Topics:\t%d/%d complete\n", done, len(nodes))
	fmt.Fprintf(tw, "Updated:\t%s\n", job.UpdatedAt.Local().Format(time.DateTime))
	if job.Error != "" {
		fmt.Fprintf(tw, "Error:\t%s\n", strings.TrimSpace(job.Error))
	}
	if err := tw.Flush(); err != nil {
		return err
	}

	if len(nodes) == 0 {
		return nil
	}
	cat, err := models.NewCatalogue(nodes)
	if err != nil {
		return err
	}
	fmt.Fprintln(w)
	cat.Walk(func(n *models.CatalogueNode, depth int) bool {
		mark := " "
		if n.Complete {
			mark = "x"
		}
		fmt.Fprintf(w, "%s[%s] %s\n", strings.Repeat("  ", depth), mark, n.Title)
		return true
	})
	return nil
}
