package main

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"distill/internal/logging"
	"distill/internal/vocabulary"
)

func newTagsCommand(ctx *commandContext) *cobra.Command {
	tagsCmd := &cobra.Command{
		Use:   "tags",
		Short: "Inspect and seed the tag vocabulary",
	}

	tagsCmd.AddCommand(newTagsListCommand(ctx))
	tagsCmd.AddCommand(newTagsAddCommand(ctx))

	return tagsCmd
}

func newTagsListCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List the known tag vocabulary",
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()

			if client, err := ctx.dialClient(); err == nil {
				defer client.Close()
				resp, err := client.TagsList()
				if err != nil {
					return err
				}
				for _, tag := range resp.Tags {
					fmt.Fprintln(out, tag)
				}
				return nil
			}

			store, err := ctx.vocabularyStore()
			if err != nil {
				return err
			}
			set, err := store.Bootstrap()
			if err != nil {
				return err
			}
			for _, tag := range set.Sorted() {
				fmt.Fprintln(out, tag)
			}
			return nil
		},
	}
}

func newTagsAddCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "add <tag...>",
		Short: "Add tags to the vocabulary",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()

			if client, err := ctx.dialClient(); err == nil {
				defer client.Close()
				resp, err := client.TagsAdd(args)
				if err != nil {
					return err
				}
				printTagsAdded(out, resp.Added, resp.Total)
				return nil
			}

			store, err := ctx.vocabularyStore()
			if err != nil {
				return err
			}
			set, added, err := store.MergeAndPersist(args)
			if err != nil {
				return err
			}
			printTagsAdded(out, added, set.Len())
			return nil
		},
	}
}

func (c *commandContext) vocabularyStore() (*vocabulary.Store, error) {
	cfg, err := c.ensureConfig()
	if err != nil {
		return nil, err
	}
	return vocabulary.NewStore(cfg.Paths.VocabularyPath, logging.NewNop()), nil
}

func printTagsAdded(out io.Writer, added []string, total int) {
	if len(added) == 0 {
		fmt.Fprintf(out, "No new tags (%d known)\n", total)
		return
	}
	for _, tag := range added {
		fmt.Fprintf(out, "Added %s\n", tag)
	}
	fmt.Fprintf(out, "%d tags known\n", total)
}
