package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/charmbracelet/log"
	"github.com/dgnsrekt/narrate/internal/config"
	"github.com/dgnsrekt/narrate/utils"
	"github.com/fsnotify/fsnotify"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"golang.org/x/term"
)

var settle time.Duration

var watchCmd = &cobra.Command{
	Use:     "watch DIR",
	Short:   "Narrate every text or markdown file written to a directory",
	Long:    paragraph(fmt.Sprintf("\n%s DIR and narrate each text or markdown file once it stops changing. Narrations are named after their source file.", keyword("Watch"))),
	Example: paragraph("narrate watch ~/inbox -o ~/narrations"),
	Args:    cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		dir, err := filepath.Abs(utils.ExpandPath(args[0]))
		if err != nil {
			return fmt.Errorf("unable to get absolute path: %w", err)
		}

		cfg, err := config.LoadFromViper(viper.GetViper())
		if err != nil {
			return err
		}
		n, err := newNarrator(cfg, apiKeys)
		if err != nil {
			return err
		}
		defer n.Close() //nolint:errcheck

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		tty := term.IsTerminal(int(os.Stdout.Fd()))
		w := &dirWatcher{
			dir:    dir,
			settle: settle,
			handle: func(ctx context.Context, path string) error {
				b, err := os.ReadFile(path)
				if err != nil {
					return err
				}
				out, err := n.Narrate(ctx, prepareText(b, path, cfg.Segment.Markdown), utils.NameFromPath(path))
				if err != nil {
					return err
				}
				if subtitles {
					if out.Subtitles, err = n.Transcribe(ctx, out.Result.Path); err != nil {
						return err
					}
				}
				printSummary(os.Stdout, out, tty)
				return nil
			},
		}
		return w.Run(ctx)
	},
}

func init() {
	watchCmd.Flags().DurationVar(&settle, "settle", 2*time.Second, "how long a file must stay unchanged before it is narrated")
}

// dirWatcher calls handle for every text file in dir that was created or
// written and then left alone for settle. Files are handled one at a time.
type dirWatcher struct {
	dir    string
	settle time.Duration
	handle func(ctx context.Context, path string) error
}

// Run blocks until ctx is done. A failing file is logged and skipped.
func (w *dirWatcher) Run(ctx context.Context) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("unable to create watcher: %w", err)
	}
	defer watcher.Close() //nolint:errcheck

	if err := watcher.Add(w.dir); err != nil {
		return fmt.Errorf("unable to watch %s: %w", w.dir, err)
	}
	log.Info("Watching directory", "dir", w.dir)

	tick := w.settle / 4
	if tick < 10*time.Millisecond {
		tick = 10 * time.Millisecond
	}
	ticker := time.NewTicker(tick)
	defer ticker.Stop()

	pending := make(map[string]time.Time)
	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) {
				continue
			}
			if !utils.IsTextFile(event.Name) {
				continue
			}
			log.Debug("fsnotify event", "file", event.Name, "event", event.Op)
			pending[event.Name] = time.Now()

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			log.Debug("fsnotify error", "dir", w.dir, "error", err)

		case now := <-ticker.C:
			for path, changed := range pending {
				if now.Sub(changed) < w.settle {
					continue
				}
				delete(pending, path)

				if st, err := os.Stat(path); err != nil || st.IsDir() {
					continue
				}
				log.Info("Narrating file", "file", filepath.Base(path))
				if err := w.handle(ctx, path); err != nil {
					if ctx.Err() != nil {
						return nil
					}
					log.Error("Could not narrate file", "file", path, "error", err)
				}
			}
		}
	}
}
