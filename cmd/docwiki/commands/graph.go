package commands

import (
	"context"
	"fmt"
	"os"

	derrors "git.home.luguber.info/inful/docwiki/internal/errors"
	"git.home.luguber.info/inful/docwiki/internal/knowledge"
	"git.home.luguber.info/inful/docwiki/internal/models"
)

// GraphCmd implements the 'graph' command.
type GraphCmd struct {
	ID   string `arg:"" optional:"" help:"Job id whose stored graph is printed"`
	From string `type:"existingfile" help:"Parse a Markdown heading outline from this file instead"`
	JSON bool   `help:"Print the graph as JSON"`
}

func (c *GraphCmd) Run(g *Global, root *CLI) error {
	var graph *models.KnowledgeGraphNode
	switch {
	case c.From != "":
		data, err := os.ReadFile(c.From)
		if err != nil {
			return derrors.WorkspaceError("read outline", err)
		}
		graph = knowledge.Parse(string(data))
	case c.ID != "":
		_, st, err := openStore(g, root)
		if err != nil {
			return err
		}
		defer func() { _ = st.Close() }()

		doc, err := st.GetDocument(context.Background(), c.ID)
		if err != nil {
			return err
		}
		if doc.KnowledgeGraph == "" {
			return fmt.Errorf("job %s has no knowledge graph yet (status %s)", c.ID, doc.Status)
		}
		graph, err = knowledge.Unmarshal(doc.KnowledgeGraph)
		if err != nil {
			return err
		}
	default:
		return derrors.ValidationFailed("id", "a job id or --from is required")
	}

	if c.JSON {
		out, err := knowledge.Marshal(graph)
		if err != nil {
			return err
		}
		fmt.Println(out)
		return nil
	}
	fmt.Print(knowledge.Render(graph))
	return nil
}
