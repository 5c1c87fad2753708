package main

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/jmorganca/marlin/cmd"
)

func main() {
	cobra.CheckErr(cmd.NewCLI().ExecuteContext(context.Background()))
}
