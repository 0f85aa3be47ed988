package commands

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"git.home.luguber.info/inful/docwiki/internal/catalogue"
	"git.home.luguber.info/inful/docwiki/internal/config"
	derrors "git.home.luguber.info/inful/docwiki/internal/errors"
	"git.home.luguber.info/inful/docwiki/internal/logfields"
)

// CatalogueCmd implements the 'catalogue' command. It runs the same scan as
// the pipeline's catalogue stage against a local directory.
type CatalogueCmd struct {
	Path   string   `arg:"" type:"existingdir" help:"Directory to scan" default:"."`
	Format string   `short:"f" help:"Output format (compact, json, paths, tree); default from config"`
	Ignore []string `short:"i" help:"Additional ignore patterns"`
}

func (c *CatalogueCmd) Run(g *Global, root *CLI) error {
	cfg := config.Default()
	if _, err := os.Stat(root.Config); err == nil {
		loaded, err := loadConfig(g, root)
		if err != nil {
			return err
		}
		cfg = loaded
	}

	format := cfg.Catalogue.Format
	if c.Format != "" {
		format = config.NormalizeCatalogueFormat(c.Format)
		if format == "" {
			return derrors.ValidationFailed("format", fmt.Sprintf("unsupported catalogue format %q", c.Format))
		}
	}

	out, err := RunCatalogue(context.Background(), c.Path, cfg.Catalogue, format, c.Ignore)
	if err != nil {
		return err
	}
	fmt.Print(out)
	return nil
}

// RunCatalogue scans dir and returns the rendered catalogue.
func RunCatalogue(ctx context.Context, dir string, cc config.CatalogueConfig, format config.CatalogueFormat, extra []string) (string, error) {
	ignore, err := catalogue.LoadIgnoreSet(dir, append(append([]string{}, cc.Ignore...), extra...))
	if err != nil {
		return "", derrors.WorkspaceError("load ignore rules", err)
	}
	res, err := catalogue.NewBuilder(ignore, catalogue.Options{MaxDepth: cc.MaxDepth, MaxEntries: cc.MaxEntries}).Build(ctx, dir)
	if err != nil {
		return "", err
	}
	for _, w := range res.Warnings {
		slog.Warn("Catalogue warning", slog.String("detail", w))
	}
	if res.Truncated {
		slog.Warn("Catalogue truncated", logfields.Path(dir), slog.Int("entries", res.Entries))
	}
	return catalogue.Render(res.Root, format)
}
