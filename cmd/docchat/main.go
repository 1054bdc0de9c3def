// docchat answers questions over indexed document spaces, either as a
// one-shot CLI query or as an HTTP service.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var configPath string

func main() {
	root := &cobra.Command{
		Use:           "docchat",
		Short:         "Chat with your documents",
		Long:          "docchat runs a hybrid retrieval pipeline over indexed document spaces and answers questions grounded in their content.",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVarP(&configPath, "config", "c", "", "path to config file")

	root.AddCommand(newAskCommand())
	root.AddCommand(newServeCommand())

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
