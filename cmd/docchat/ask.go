package main

import (
	"fmt"

	"github.com/fyrsmithlabs/docchat/internal/index"
	"github.com/fyrsmithlabs/docchat/internal/rag"
	"github.com/spf13/cobra"
)

func newAskCommand() *cobra.Command {
	var (
		spaceIDs   []string
		personaKey string
	)

	cmd := &cobra.Command{
		Use:   "ask [query]",
		Short: "Ask a one-shot question against document spaces",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			a, err := buildApp(ctx)
			if err != nil {
				return err
			}
			defer a.Close(ctx)

			req := rag.Request{Query: args[0], Persona: personaKey}
			for _, id := range spaceIDs {
				req.Spaces = append(req.Spaces, index.Space{ID: id})
			}

			result, err := a.pipeline.Answer(ctx, req)
			if err != nil {
				return err
			}

			fmt.Fprintln(cmd.OutOrStdout(), result.Response)
			if len(result.FailedSpaces) > 0 {
				fmt.Fprintf(cmd.ErrOrStderr(), "warning: spaces skipped: %v\n", result.FailedSpaces)
			}
			return nil
		},
	}

	cmd.Flags().StringSliceVarP(&spaceIDs, "space", "s", nil, "space ID to search (repeatable)")
	cmd.Flags().StringVarP(&personaKey, "persona", "p", "", "persona key (default persona if unset)")
	return cmd
}
