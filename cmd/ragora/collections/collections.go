// Package collectionscmder provides the collections command for managing
// Ragora collections.
package collectionscmder

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/papercomputeco/ragora/cmd/ragora/cmdutil"
	"github.com/papercomputeco/ragora/pkg/cliui"
	"github.com/papercomputeco/ragora/pkg/config"
	"github.com/papercomputeco/ragora/pkg/ragora"
)

const collectionsLongDesc string = `Manage Ragora collections.

A collection groups documents that are searched together. Pass collection
IDs to "ragora chat", "ragora search" or set chat.collections to ground
answers on them.

  ragora collections list                 List collections
  ragora collections get <id>             Show one collection
  ragora collections create <name>        Create a collection
  ragora collections delete <id>          Delete a collection`

const collectionsShortDesc string = "Manage collections"

func NewCollectionsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "collections",
		Aliases: []string{"collection", "col"},
		Short:   collectionsShortDesc,
		Long:    collectionsLongDesc,
	}

	cmd.AddCommand(newListCmd())
	cmd.AddCommand(newGetCmd())
	cmd.AddCommand(newCreateCmd())
	cmd.AddCommand(newDeleteCmd())

	return cmd
}

func newListCmd() *cobra.Command {
	var (
		opts   ragora.ListOptions
		asJSON bool
	)

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List collections",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			client, err := cmdutil.Client(cmd)
			if err != nil {
				return err
			}

			page, err := client.ListCollections(cmd.Context(), opts)
			if err != nil {
				return fmt.Errorf("listing collections: %w", err)
			}

			if asJSON {
				return cmdutil.PrintJSON(cmd.OutOrStdout(), page)
			}

			out := cliui.NewOutput(cmd.OutOrStdout())
			if len(page.Data) == 0 {
				out.Println("No collections found.")
				return nil
			}
			for _, col := range page.Data {
				printCollection(out, col)
			}
			if page.HasMore {
				out.Printf("\n  %s\n", cliui.DimStyle.Render(fmt.Sprintf("%d of %d shown, use --offset for more", len(page.Data), page.Total)))
			}
			return nil
		},
	}

	cmdutil.AddFlags(cmd, config.ClientFlags)
	cmd.Flags().IntVar(&opts.Limit, "limit", 50, "Maximum number of collections to list")
	cmd.Flags().IntVar(&opts.Offset, "offset", 0, "Number of collections to skip")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print the raw JSON response")

	return cmd
}

func newGetCmd() *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "get <id>",
		Short: "Show one collection",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := cmdutil.Client(cmd)
			if err != nil {
				return err
			}

			col, err := client.GetCollection(cmd.Context(), args[0])
			if err != nil {
				return fmt.Errorf("getting collection: %w", err)
			}

			if asJSON {
				return cmdutil.PrintJSON(cmd.OutOrStdout(), col)
			}
			out := cliui.NewOutput(cmd.OutOrStdout())
			printCollection(out, *col)
			if col.Description != "" {
				out.Printf("    %s\n", cliui.PreviewStyle.Render(col.Description))
			}
			return nil
		},
	}

	cmdutil.AddFlags(cmd, config.ClientFlags)
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print the raw JSON response")

	return cmd
}

func newCreateCmd() *cobra.Command {
	req := ragora.CreateCollectionRequest{}

	cmd := &cobra.Command{
		Use:   "create <name>",
		Short: "Create a collection",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := cmdutil.Client(cmd)
			if err != nil {
				return err
			}

			req.Name = args[0]
			col, err := client.CreateCollection(cmd.Context(), req)
			if err != nil {
				return fmt.Errorf("creating collection: %w", err)
			}

			fmt.Fprintf(cmd.OutOrStdout(), "  %s Created collection %s (%s)\n",
				cliui.SuccessMark, col.Name, cliui.IDStyle.Render(col.ID))
			return nil
		},
	}

	cmdutil.AddFlags(cmd, config.ClientFlags)
	cmd.Flags().StringVar(&req.Slug, "slug", "", "URL-friendly identifier")
	cmd.Flags().StringVar(&req.Description, "description", "", "Collection description")

	return cmd
}

func newDeleteCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "delete <id>",
		Short: "Delete a collection and its documents",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := cmdutil.Client(cmd)
			if err != nil {
				return err
			}

			if err := client.DeleteCollection(cmd.Context(), args[0]); err != nil {
				return fmt.Errorf("deleting collection: %w", err)
			}

			fmt.Fprintf(cmd.OutOrStdout(), "  %s Deleted collection %s\n", cliui.SuccessMark, args[0])
			return nil
		},
	}

	cmdutil.AddFlags(cmd, config.ClientFlags)

	return cmd
}

func printCollection(out *cliui.Output, col ragora.Collection) {
	out.Printf("  %s  %s  %s\n",
		cliui.IDStyle.Render(col.ID),
		cliui.NameStyle.Render(col.Name),
		cliui.DimStyle.Render(fmt.Sprintf("%d documents, %d chunks", col.DocumentCount, col.ChunkCount)),
	)
}
