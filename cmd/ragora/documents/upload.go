package documentscmder

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/papercomputeco/ragora/cmd/ragora/cmdutil"
	"github.com/papercomputeco/ragora/pkg/cliui"
	"github.com/papercomputeco/ragora/pkg/config"
	"github.com/papercomputeco/ragora/pkg/ragora"
)

// DocumentClient is the subset of *ragora.Client uploads need.
type DocumentClient interface {
	UploadDocument(ctx context.Context, req ragora.UploadDocumentRequest) (*ragora.Document, error)
	WaitForDocument(ctx context.Context, id string, interval time.Duration) (*ragora.DocumentStatus, error)
}

type uploadOptions struct {
	collectionID string
	extensions   []string
	concurrency  int
	wait         bool
	interval     time.Duration
}

const uploadLongDesc string = `Upload files into a collection.

Directories are walked recursively; hidden files are skipped. Uploads run
concurrently. With --wait each upload is followed until ingestion finishes.

Examples:
  ragora documents upload handbook.pdf -c col_123
  ragora documents upload ./docs -c col_123 --ext .md,.txt --wait`

func newUploadCmd() *cobra.Command {
	opts := &uploadOptions{}

	cmd := &cobra.Command{
		Use:   "upload <path>...",
		Short: "Upload files or directories",
		Long:  uploadLongDesc,
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := cmdutil.Client(cmd)
			if err != nil {
				return err
			}

			paths, err := expandPaths(args, opts.extensions)
			if err != nil {
				return err
			}
			if len(paths) == 0 {
				return fmt.Errorf("no files to upload in %s", strings.Join(args, ", "))
			}

			up := newUploader(client, opts, cliui.NewOutput(cmd.OutOrStdout()))
			return up.uploadAll(cmd.Context(), paths)
		},
	}

	addUploadFlags(cmd, opts)
	cmd.Flags().BoolVarP(&opts.wait, "wait", "w", false, "Wait until ingestion finishes")
	cmd.Flags().DurationVar(&opts.interval, "interval", 2*time.Second, "Polling interval for --wait")

	return cmd
}

func addUploadFlags(cmd *cobra.Command, opts *uploadOptions) {
	cmdutil.AddFlags(cmd, config.ClientFlags)
	cmd.Flags().StringVarP(&opts.collectionID, "collection", "c", "", "Collection ID to upload into")
	cmd.Flags().StringSliceVar(&opts.extensions, "ext", nil, "Only upload files with these extensions (e.g. .md,.pdf)")
	cmd.Flags().IntVarP(&opts.concurrency, "concurrency", "j", 4, "Number of concurrent uploads")
	_ = cmd.MarkFlagRequired("collection")
}

type uploader struct {
	client DocumentClient
	opts   *uploadOptions
	out    *cliui.Output
	mu     sync.Mutex
}

func newUploader(client DocumentClient, opts *uploadOptions, out *cliui.Output) *uploader {
	return &uploader{client: client, opts: opts, out: out}
}

// uploadAll uploads every path with bounded concurrency. A failed upload
// does not stop the others.
func (u *uploader) uploadAll(ctx context.Context, paths []string) error {
	var (
		g      errgroup.Group
		failed atomic.Int32
	)
	g.SetLimit(max(u.opts.concurrency, 1))

	for _, path := range paths {
		g.Go(func() error {
			if err := u.upload(ctx, path); err != nil {
				failed.Add(1)
			}
			return nil
		})
	}
	_ = g.Wait()

	if n := failed.Load(); n > 0 {
		return fmt.Errorf("%d of %d uploads failed", n, len(paths))
	}
	return nil
}

// upload sends one file and reports the outcome on a single line.
func (u *uploader) upload(ctx context.Context, path string) error {
	start := time.Now()
	doc, status, err := u.send(ctx, path)

	u.mu.Lock()
	defer u.mu.Unlock()

	if err != nil {
		u.out.Printf("  %s %s %s\n", cliui.FailMark, path, cliui.DimStyle.Render(err.Error()))
		return err
	}

	u.out.Printf("  %s %s %s %s\n",
		cliui.SuccessMark,
		path,
		cliui.IDStyle.Render(doc.ID),
		cliui.StepStyle.Render(fmt.Sprintf("%s (%s)", status, cliui.FormatDuration(time.Since(start)))),
	)
	return nil
}

func (u *uploader) send(ctx context.Context, path string) (*ragora.Document, string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, "", fmt.Errorf("opening file: %w", err)
	}
	defer f.Close()

	doc, err := u.client.UploadDocument(ctx, ragora.UploadDocumentRequest{
		CollectionID: u.opts.collectionID,
		Filename:     filepath.Base(path),
		Content:      f,
		Metadata:     map[string]any{"source": filepath.ToSlash(path)},
	})
	if err != nil {
		return nil, "", err
	}

	if !u.opts.wait {
		return doc, doc.Status, nil
	}

	status, err := u.client.WaitForDocument(ctx, doc.ID, u.opts.interval)
	if err != nil {
		return doc, "", fmt.Errorf("waiting for ingestion: %w", err)
	}
	if status.Status == ragora.DocumentFailed {
		return doc, status.Status, fmt.Errorf("ingestion failed: %s", status.Error)
	}
	return doc, status.Status, nil
}

// expandPaths resolves files and directories into the files to upload.
func expandPaths(args, extensions []string) ([]string, error) {
	var paths []string
	for _, arg := range args {
		info, err := os.Stat(arg)
		if err != nil {
			return nil, fmt.Errorf("reading %s: %w", arg, err)
		}

		if !info.IsDir() {
			paths = append(paths, arg)
			continue
		}

		err = filepath.WalkDir(arg, func(path string, d fs.DirEntry, err error) error {
			if err != nil {
				return err
			}
			if path != arg && hidden(path) {
				if d.IsDir() {
					return filepath.SkipDir
				}
				return nil
			}
			if d.Type().IsRegular() && accepted(path, extensions) {
				paths = append(paths, path)
			}
			return nil
		})
		if err != nil {
			return nil, fmt.Errorf("walking %s: %w", arg, err)
		}
	}
	return paths, nil
}

func hidden(path string) bool {
	name := filepath.Base(path)
	return strings.HasPrefix(name, ".") || strings.HasSuffix(name, "~")
}

func accepted(path string, extensions []string) bool {
	if len(extensions) == 0 {
		return true
	}
	ext := strings.ToLower(filepath.Ext(path))
	return slices.ContainsFunc(extensions, func(e string) bool {
		return strings.EqualFold(strings.TrimSpace(e), ext) || strings.EqualFold("."+strings.TrimSpace(e), ext)
	})
}
