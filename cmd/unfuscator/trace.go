package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/MakeNowJust/heredoc/v2"
	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"unfuscator/internal/render"
	"unfuscator/internal/signature"
	"unfuscator/internal/unfuscate"
	"unfuscator/internal/version"
)

func newTraceCmd(a *app) *cobra.Command {
	var (
		target    string
		format    string
		colorFlag bool
	)
	cmd := &cobra.Command{
		Use:   "trace [file|-]",
		Short: "Resolve an obfuscated stack trace",
		Long: heredoc.Doc(`
			Resolve an obfuscated stack trace read from a file or stdin.

			Each non-blank line must hold one frame, such as
			"at a.b(Int32 id)". With --target, the mapping recorded for the
			closest version is listed first; in text output a frame resolved
			from another version is suffixed with "(v<version>)". Frames with
			no mapping are printed as parsed, followed by '?'.`),
		Example: heredoc.Doc(`
			# Resolve a trace against build 1.2.3.4
			❯ unfuscator trace --target 1.2.3.4 crash.txt

			# Pipe a trace in and get every alternative as JSON
			❯ pbpaste | unfuscator trace -f json`),
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var ver *version.Version
			if target != "" {
				v, err := version.Parse(target)
				if err != nil {
					return err
				}
				ver = v
			}

			var writer render.Writer
			if strings.EqualFold(format, "text") {
				useColor := colorFlag
				if !cmd.Flags().Changed("color") {
					useColor = !color.NoColor && isTerminal(cmd.OutOrStdout())
				}
				writer = render.Text{Color: useColor}
			} else {
				w, err := render.ByName(format)
				if err != nil {
					return err
				}
				writer = w
			}

			trace, err := readTrace(cmd.InOrStdin(), args)
			if err != nil {
				return err
			}

			ctx := cmd.Context()
			store, err := a.openStore(ctx)
			if err != nil {
				return err
			}
			defer closeStore(store, a.logger)

			u := unfuscate.New(store,
				unfuscate.WithLogger(a.logger),
				unfuscate.WithConcurrency(a.cfg.Trace.Concurrency))
			res, err := u.Unfuscate(ctx, trace, ver)
			if err != nil {
				var perr *signature.ParseError
				if errors.As(err, &perr) {
					fmt.Fprintln(cmd.ErrOrStderr(), perr.Caret())
				}
				return err
			}
			return writer.Write(cmd.OutOrStdout(), res, ver)
		},
	}
	cmd.Flags().StringVarP(&target, "target", "t", "", "version the trace was produced by")
	cmd.Flags().StringVarP(&format, "format", "f", "text", "output format: "+strings.Join(render.Names(), ", "))
	cmd.Flags().BoolVar(&colorFlag, "color", false, "colorize text output (default: when stdout is a terminal)")
	cmd.RegisterFlagCompletionFunc("format", func(*cobra.Command, []string, string) ([]string, cobra.ShellCompDirective) {
		return render.Names(), cobra.ShellCompDirectiveNoFileComp
	})
	return cmd
}

func readTrace(stdin io.Reader, args []string) (string, error) {
	if len(args) == 0 || args[0] == "-" {
		data, err := io.ReadAll(stdin)
		if err != nil {
			return "", fmt.Errorf("reading trace: %w", err)
		}
		return string(data), nil
	}
	data, err := os.ReadFile(args[0])
	if err != nil {
		return "", fmt.Errorf("reading trace: %w", err)
	}
	return string(data), nil
}
