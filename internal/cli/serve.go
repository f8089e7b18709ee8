package cli

import (
	"github.com/spf13/cobra"

	"github.com/MrSnakeDoc/dispatchprobe/internal/app"
)

func newServeCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP service",
		Args:  cobra.NoArgs,
		RunE: func(*cobra.Command, []string) error {
			return app.New().Run()
		},
	}
}
