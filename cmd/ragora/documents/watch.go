package documentscmder

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/papercomputeco/ragora/cmd/ragora/cmdutil"
	"github.com/papercomputeco/ragora/pkg/cliui"
)

const watchLongDesc string = `Watch a directory and upload files as they are created or changed.

Changes are debounced so a file is uploaded once it stops changing.
Subdirectories created while watching are picked up. Stop with Ctrl+C.

Examples:
  ragora documents watch ./notes -c col_123
  ragora documents watch ./docs -c col_123 --ext .md --initial`

func newWatchCmd() *cobra.Command {
	opts := &uploadOptions{}
	var (
		debounce time.Duration
		initial  bool
	)

	cmd := &cobra.Command{
		Use:   "watch <dir>",
		Short: "Upload files from a directory as they change",
		Long:  watchLongDesc,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := cmdutil.Client(cmd)
			if err != nil {
				return err
			}

			out := cliui.NewOutput(cmd.OutOrStdout())
			w := &dirWatcher{
				root:     args[0],
				debounce: debounce,
				up:       newUploader(client, opts, out),
				logger:   cmdutil.Logger(cmd),
			}

			if initial {
				paths, err := expandPaths(args, opts.extensions)
				if err != nil {
					return err
				}
				if err := w.up.uploadAll(cmd.Context(), paths); err != nil {
					w.logger.Warn("initial upload incomplete", "error", err)
				}
			}

			out.Printf("  %s Watching %s %s\n",
				cliui.DimStyle.Render("●"),
				args[0],
				cliui.DimStyle.Render("(Ctrl+C to stop)"),
			)
			return w.run(cmd.Context())
		},
	}

	addUploadFlags(cmd, opts)
	cmd.Flags().DurationVar(&debounce, "debounce", 500*time.Millisecond, "Quiet period before a changed file is uploaded")
	cmd.Flags().BoolVar(&initial, "initial", false, "Upload the files already in the directory first")

	return cmd
}

// dirWatcher uploads files under root after they stop changing.
type dirWatcher struct {
	root     string
	debounce time.Duration
	up       *uploader
	logger   *slog.Logger
}

func (w *dirWatcher) run(ctx context.Context) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("creating watcher: %w", err)
	}
	defer watcher.Close()

	if err := w.addTree(watcher, w.root); err != nil {
		return err
	}

	var uploads errgroup.Group
	uploads.SetLimit(max(w.up.opts.concurrency, 1))
	defer func() { _ = uploads.Wait() }()

	pending := map[string]*time.Timer{}
	ready := make(chan string, 16)
	defer func() {
		for _, t := range pending {
			t.Stop()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			w.handle(ctx, watcher, event, pending, ready)

		case path := <-ready:
			delete(pending, path)
			uploads.Go(func() error {
				_ = w.up.upload(ctx, path)
				return nil
			})

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			w.logger.Warn("watch error", "error", err)
		}
	}
}

func (w *dirWatcher) handle(ctx context.Context, watcher *fsnotify.Watcher, event fsnotify.Event, pending map[string]*time.Timer, ready chan<- string) {
	if !event.Has(fsnotify.Create) && !event.Has(fsnotify.Write) {
		return
	}
	if hidden(event.Name) {
		return
	}

	info, err := os.Stat(event.Name)
	if err != nil {
		return
	}
	if info.IsDir() {
		if event.Has(fsnotify.Create) {
			if err := w.addTree(watcher, event.Name); err != nil {
				w.logger.Warn("could not watch new directory", "path", event.Name, "error", err)
			}
		}
		return
	}
	if !info.Mode().IsRegular() || !accepted(event.Name, w.up.opts.extensions) {
		return
	}

	if t, ok := pending[event.Name]; ok {
		t.Reset(w.debounce)
		return
	}

	path := event.Name
	pending[path] = time.AfterFunc(w.debounce, func() {
		select {
		case ready <- path:
		case <-ctx.Done():
		}
	})
}

// addTree watches dir and every non-hidden directory below it.
func (w *dirWatcher) addTree(watcher *fsnotify.Watcher, dir string) error {
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return nil
			}
			return err
		}
		if !d.IsDir() {
			return nil
		}
		if path != dir && hidden(path) {
			return filepath.SkipDir
		}
		return watcher.Add(path)
	})
	if err != nil {
		return fmt.Errorf("watching %s: %w", dir, err)
	}
	return nil
}
