package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

func newCacheCmd(load loadFunc) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cache",
		Short: "Inspect the persisted response cache",
	}

	getCmd := &cobra.Command{
		Use:   "get <fingerprint>",
		Short: "Show a cached entry, fresh or stale",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, log, err := load()
			if err != nil {
				return err
			}
			store, err := openCache(cmd.Context(), cfg, log, nil)
			if err != nil {
				return err
			}
			defer func() { _ = store.Close() }()

			entry, ok := store.GetStale(cmd.Context(), args[0])
			if !ok {
				return fmt.Errorf("no cached entry for %s", args[0])
			}

			state := "fresh"
			if !entry.Fresh(time.Now()) {
				state = "stale"
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Fingerprint: %s\n", entry.Key)
			fmt.Fprintf(out, "State:       %s\n", state)
			fmt.Fprintf(out, "Created:     %s\n", entry.CreatedAt.Format(time.RFC3339))
			fmt.Fprintf(out, "Expires:     %s\n", entry.ExpiresAt.Format(time.RFC3339))
			fmt.Fprintf(out, "Hits:        %d\n", entry.HitCount)
			fmt.Fprintf(out, "Size:        %d bytes\n", entry.SizeBytes)
			fmt.Fprintf(out, "\n%s\n", entry.Value)
			return nil
		},
	}

	invalidateCmd := &cobra.Command{
		Use:   "invalidate <fingerprint>...",
		Short: "Remove entries from every cache tier",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, log, err := load()
			if err != nil {
				return err
			}
			store, err := openCache(cmd.Context(), cfg, log, nil)
			if err != nil {
				return err
			}
			defer func() { _ = store.Close() }()

			for _, fp := range args {
				if err := store.Invalidate(cmd.Context(), fp); err != nil {
					return fmt.Errorf("invalidate %s: %w", fp, err)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "invalidated %s\n", fp)
			}
			return nil
		},
	}

	statsCmd := &cobra.Command{
		Use:   "stats",
		Short: "Show persisted cache occupancy",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, log, err := load()
			if err != nil {
				return err
			}
			store, err := openCache(cmd.Context(), cfg, log, nil)
			if err != nil {
				return err
			}
			defer func() { _ = store.Close() }()

			st := store.Stats()
			fmt.Fprintf(cmd.OutOrStdout(), "Disk entries: %d\nDisk bytes:   %d\nEvictions:    %d\n",
				st.DiskEntries, st.DiskBytes, st.Evictions)
			return nil
		},
	}

	cmd.AddCommand(getCmd, invalidateCmd, statsCmd)
	return cmd
}
