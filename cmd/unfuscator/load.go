package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/MakeNowJust/heredoc/v2"
	"github.com/dustin/go-humanize"
	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"
	"github.com/vbauerster/mpb/v8"
	"github.com/vbauerster/mpb/v8/decor"

	"unfuscator/internal/dotfuscator"
	"unfuscator/internal/version"
)

// progressScale is the bar total; load progress arrives as a fraction.
const progressScale = 1000

func newLoadCmd(a *app) *cobra.Command {
	var (
		versionFlag string
		noProgress  bool
	)
	cmd := &cobra.Command{
		Use:   "load <map.xml|dir>...",
		Short: "Load Dotfuscator map files into the store",
		Long: heredoc.Doc(`
			Load Dotfuscator renaming maps into the store.

			The map version is taken from the file name (Acme-1.2.3.4.xml),
			unless --version is given. Directories are not searched
			recursively; files listed in a directory's .unfuscatorignore are
			skipped. Loading a file again replaces its earlier records.`),
		Example: heredoc.Doc(`
			# Load a map, versioned by its file name
			❯ unfuscator load Acme-1.2.3.4.xml

			# Load a map under an explicit version
			❯ unfuscator load --version 1.2.3.4 acme.xml

			# Load every map in a directory into PostgreSQL
			❯ unfuscator load --dsn postgres://localhost/unfuscator ./maps`),
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var ver *version.Version
			if versionFlag != "" {
				v, err := version.Parse(versionFlag)
				if err != nil {
					return err
				}
				ver = v
			}

			paths, err := expandMapArgs(args)
			if err != nil {
				return err
			}
			if len(paths) == 0 {
				return errors.New("no map files found")
			}

			ctx := cmd.Context()
			store, err := a.openStore(ctx)
			if err != nil {
				return err
			}
			defer closeStore(store, a.logger)

			var out io.Writer = cmd.ErrOrStderr()
			if noProgress || !isTerminal(out) {
				out = nil
			}
			bar := newLoadBar(out)

			loader := dotfuscator.NewLoader(store, a.logger)
			var failed []string
			onError := func(path string, err error) {
				failed = append(failed, path)
				a.logger.Error("loading map failed", "path", path, "error", err)
			}

			var results []dotfuscator.LoadResult
			if ver != nil {
				results, err = loadWithVersion(ctx, loader, paths, ver, onError, bar.update)
			} else {
				results, err = loader.LoadFiles(ctx, paths, onError, bar.update)
			}
			bar.finish(err == nil)
			printLoadSummary(cmd.OutOrStdout(), results)
			if err != nil {
				return err
			}
			if len(failed) > 0 {
				return fmt.Errorf("%d of %d map files failed to load", len(failed), len(paths))
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&versionFlag, "version", "", "version of the maps (default: from the file name)")
	cmd.Flags().BoolVar(&noProgress, "no-progress", false, "do not show progress bars")
	return cmd
}

// expandMapArgs turns files and directories into the list of maps to load.
func expandMapArgs(args []string) ([]string, error) {
	var paths []string
	for _, arg := range args {
		arg = dotfuscator.CleanPath(arg)
		info, err := os.Stat(arg)
		if err != nil {
			return nil, err
		}
		if !info.IsDir() {
			paths = append(paths, arg)
			continue
		}
		found, err := dotfuscator.ListDir(arg)
		if err != nil {
			return nil, err
		}
		paths = append(paths, found...)
	}
	return paths, nil
}

func loadWithVersion(ctx context.Context, loader *dotfuscator.Loader, paths []string, ver *version.Version, onError func(string, error), progress func(string, float64)) ([]dotfuscator.LoadResult, error) {
	var results []dotfuscator.LoadResult
	for i, path := range paths {
		res, err := loader.LoadFile(ctx, path, ver, func(f float64) {
			progress(path, (float64(i)+f)/float64(len(paths)))
		})
		if err != nil {
			if ctx.Err() != nil {
				return results, ctx.Err()
			}
			onError(path, err)
			continue
		}
		results = append(results, res)
	}
	return results, nil
}

func printLoadSummary(w io.Writer, results []dotfuscator.LoadResult) {
	var total int
	for _, res := range results {
		ver := "unversioned"
		if res.Version != nil {
			ver = "v" + res.Version.String()
		}
		skipped := res.Stats.Filtered + res.Stats.Unsupported + res.Stats.Failed
		fmt.Fprintf(w, "%s (%s): %s records, %s skipped, %s\n",
			filepath.Base(res.Path), ver,
			humanize.Comma(int64(res.Records)), humanize.Comma(int64(skipped)),
			res.Duration.Round(time.Millisecond))
		total += res.Records
	}
	if len(results) > 1 {
		fmt.Fprintf(w, "loaded %s records from %d maps\n", humanize.Comma(int64(total)), len(results))
	}
}

// loadBar shows overall load progress and the map being read. A nil output
// disables it.
type loadBar struct {
	p   *mpb.Progress
	bar *mpb.Bar

	mu      sync.Mutex
	current string
}

func newLoadBar(out io.Writer) *loadBar {
	lb := &loadBar{}
	if out == nil {
		return lb
	}
	lb.p = mpb.New(
		mpb.WithOutput(out),
		mpb.WithWidth(60),
		mpb.WithRefreshRate(180*time.Millisecond),
	)
	lb.bar = lb.p.New(progressScale, mpb.BarStyle().Lbound("[").Filler("=").Tip(">").Padding("-").Rbound("|"),
		mpb.PrependDecorators(
			decor.Any(func(decor.Statistics) string {
				lb.mu.Lock()
				defer lb.mu.Unlock()
				return lb.current
			}, decor.WCSyncSpaceR),
			decor.Percentage(decor.WCSyncSpace),
		),
		mpb.AppendDecorators(
			decor.OnAbort(decor.OnComplete(decor.Elapsed(decor.ET_STYLE_GO), "✅"), "❌"),
		),
	)
	return lb
}

// update is a dotfuscator progress callback taking the overall fraction.
func (lb *loadBar) update(path string, done float64) {
	if lb.p == nil {
		return
	}
	lb.mu.Lock()
	lb.current = filepath.Base(path)
	lb.mu.Unlock()
	lb.bar.SetCurrent(int64(done * progressScale))
}

func (lb *loadBar) finish(ok bool) {
	if lb.p == nil {
		return
	}
	if ok {
		lb.bar.SetTotal(-1, true)
	} else {
		lb.bar.Abort(false)
	}
	lb.p.Wait()
}

func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	return ok && (isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd()))
}
