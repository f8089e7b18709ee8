// Package cli is the dispatchprobe command line: the HTTP service and a
// one-shot send command for operators.
package cli

import (
	"github.com/spf13/cobra"

	"github.com/MrSnakeDoc/dispatchprobe/internal/version"
)

// NewRootCommand builds the command tree.
func NewRootCommand() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "dispatchprobe",
		Short: "Outbound message dispatch prober",
		Long: `dispatchprobe delivers text messages through a WhatsApp-style HTTP gateway
whose exact API shape is unknown, trying known and guessed routes until one works.

Configuration is read from DISPATCH_* environment variables.`,
		Version:      version.String(),
		SilenceUsage: true,
	}

	rootCmd.AddCommand(newServeCommand(), newSendCommand())
	return rootCmd
}
