package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"text/tabwriter"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"unfuscator/internal/mapping"
	"unfuscator/internal/mapping/sqlstore"
)

func newVersionsCmd(a *app) *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "versions",
		Short: "List the map versions in the store",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := a.openStore(cmd.Context())
			if err != nil {
				return err
			}
			defer closeStore(store, a.logger)

			vs, err := store.Versions(cmd.Context())
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if asJSON {
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				return enc.Encode(map[string]any{"versions": vs})
			}
			for _, v := range vs {
				if v == nil {
					fmt.Fprintln(out, "(unversioned)")
					continue
				}
				fmt.Fprintln(out, v)
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "print JSON")
	return cmd
}

func newStatsCmd(a *app) *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Show store statistics and loaded maps",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			// the cache would hide the SQL store's map listing
			a.cfg.Store.CacheSize = 0
			store, err := a.openStore(ctx)
			if err != nil {
				return err
			}
			defer closeStore(store, a.logger)

			sp, ok := store.(mapping.StatsProvider)
			if !ok {
				return errors.New("store does not report statistics")
			}
			st, err := sp.Stats(ctx)
			if err != nil {
				return err
			}
			var sources []sqlstore.Source
			if ss, ok := store.(*sqlstore.Store); ok {
				if sources, err = ss.Sources(ctx); err != nil {
					return err
				}
			}

			out := cmd.OutOrStdout()
			if asJSON {
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				return enc.Encode(struct {
					Store   string            `json:"store"`
					Stats   mapping.Stats     `json:"stats"`
					Sources []sqlstore.Source `json:"maps,omitempty"`
				}{a.cfg.Store.String(), st, sources})
			}

			fmt.Fprintf(out, "Store:    %s\n", a.cfg.Store)
			fmt.Fprintf(out, "Records:  %s\n", humanize.Comma(st.Records))
			fmt.Fprintf(out, "Versions: %s\n", humanize.Comma(int64(st.Versions)))
			fmt.Fprintf(out, "Maps:     %s\n", humanize.Comma(int64(st.Maps)))
			if len(sources) == 0 {
				return nil
			}
			fmt.Fprintln(out)
			tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "MAP\tRECORDS\tLOADED")
			for _, src := range sources {
				fmt.Fprintf(tw, "%s\t%s\t%s\n", src.Path, humanize.Comma(src.Records), humanize.Time(src.LoadedAt))
			}
			return tw.Flush()
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "print JSON")
	return cmd
}
