// Package documentscmder provides the documents command for uploading files
// into Ragora collections and following their ingestion.
package documentscmder

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/papercomputeco/ragora/cmd/ragora/cmdutil"
	"github.com/papercomputeco/ragora/pkg/cliui"
	"github.com/papercomputeco/ragora/pkg/config"
	"github.com/papercomputeco/ragora/pkg/ragora"
)

const documentsLongDesc string = `Manage documents in Ragora collections.

Uploaded files are chunked and embedded by the API in the background. Use
--wait or "ragora documents status" to follow ingestion.

  ragora documents upload <path>... -c <collection>    Upload files or directories
  ragora documents watch <dir> -c <collection>         Upload files as they change
  ragora documents list -c <collection>                List documents
  ragora documents status <id>                         Show ingestion progress
  ragora documents delete <id>                         Delete a document`

const documentsShortDesc string = "Manage documents"

func NewDocumentsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "documents",
		Aliases: []string{"document", "docs"},
		Short:   documentsShortDesc,
		Long:    documentsLongDesc,
	}

	cmd.AddCommand(newUploadCmd())
	cmd.AddCommand(newWatchCmd())
	cmd.AddCommand(newListCmd())
	cmd.AddCommand(newStatusCmd())
	cmd.AddCommand(newDeleteCmd())

	return cmd
}

func newListCmd() *cobra.Command {
	var (
		collectionID string
		opts         ragora.ListOptions
		asJSON       bool
	)

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List the documents of a collection",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			client, err := cmdutil.Client(cmd)
			if err != nil {
				return err
			}

			page, err := client.ListDocuments(cmd.Context(), collectionID, opts)
			if err != nil {
				return fmt.Errorf("listing documents: %w", err)
			}

			if asJSON {
				return cmdutil.PrintJSON(cmd.OutOrStdout(), page)
			}

			out := cliui.NewOutput(cmd.OutOrStdout())
			if len(page.Data) == 0 {
				out.Println("No documents found.")
				return nil
			}
			for _, doc := range page.Data {
				out.Printf("  %s  %s  %s\n",
					cliui.IDStyle.Render(doc.ID),
					cliui.NameStyle.Render(doc.Filename),
					statusText(doc.Status),
				)
			}
			return nil
		},
	}

	cmdutil.AddFlags(cmd, config.ClientFlags)
	cmd.Flags().StringVarP(&collectionID, "collection", "c", "", "Collection ID")
	cmd.Flags().IntVar(&opts.Limit, "limit", 50, "Maximum number of documents to list")
	cmd.Flags().IntVar(&opts.Offset, "offset", 0, "Number of documents to skip")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print the raw JSON response")
	_ = cmd.MarkFlagRequired("collection")

	return cmd
}

func newStatusCmd() *cobra.Command {
	var (
		wait     bool
		interval time.Duration
	)

	cmd := &cobra.Command{
		Use:   "status <id>",
		Short: "Show the ingestion progress of a document",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := cmdutil.Client(cmd)
			if err != nil {
				return err
			}

			var status *ragora.DocumentStatus
			if wait {
				status, err = client.WaitForDocument(cmd.Context(), args[0], interval)
			} else {
				status, err = client.GetDocumentStatus(cmd.Context(), args[0])
			}
			if err != nil {
				return fmt.Errorf("getting document status: %w", err)
			}

			out := cliui.NewOutput(cmd.OutOrStdout())
			out.Printf("  %s  %s  %s\n",
				cliui.IDStyle.Render(status.ID),
				statusText(status.Status),
				cliui.DimStyle.Render(fmt.Sprintf("%.0f%%, %d chunks", status.Progress*100, status.ChunkCount)),
			)
			if status.Error != "" {
				out.Printf("  %s %s\n", cliui.FailMark, status.Error)
			}
			return nil
		},
	}

	cmdutil.AddFlags(cmd, config.ClientFlags)
	cmd.Flags().BoolVarP(&wait, "wait", "w", false, "Poll until ingestion finishes")
	cmd.Flags().DurationVar(&interval, "interval", 2*time.Second, "Polling interval for --wait")

	return cmd
}

func newDeleteCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "delete <id>",
		Short: "Delete a document and its chunks",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := cmdutil.Client(cmd)
			if err != nil {
				return err
			}

			if err := client.DeleteDocument(cmd.Context(), args[0]); err != nil {
				return fmt.Errorf("deleting document: %w", err)
			}

			fmt.Fprintf(cmd.OutOrStdout(), "  %s Deleted document %s\n", cliui.SuccessMark, args[0])
			return nil
		},
	}

	cmdutil.AddFlags(cmd, config.ClientFlags)

	return cmd
}

func statusText(status string) string {
	switch status {
	case ragora.DocumentCompleted:
		return cliui.SuccessMark + " " + status
	case ragora.DocumentFailed:
		return cliui.FailMark + " " + status
	default:
		return cliui.WarnStyle.Render(status)
	}
}
