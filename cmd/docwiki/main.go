package main

import (
	"github.com/alecthomas/kong"

	"git.home.luguber.info/inful/docwiki/cmd/docwiki/commands"
	derrors "git.home.luguber.info/inful/docwiki/internal/errors"
	"git.home.luguber.info/inful/docwiki/internal/version"
)

func main() {
	cli := &commands.CLI{}
	global := &commands.Global{}
	parser := kong.Parse(cli,
		kong.Name("docwiki"),
		kong.Description("Generate repository documentation wikis with a language model."),
		kong.UsageOnError(),
		kong.Vars{"version": version.String()},
		kong.Bind(global, cli),
	)

	err := parser.Run()
	if global.Cleanup != nil {
		_ = global.Cleanup()
	}
	derrors.NewCLIErrorAdapter(cli.Verbose, global.Logger).HandleError(err)
}
