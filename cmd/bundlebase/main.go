// Command bundlebase is a thin CLI over the library: create or extend a
// bundle, list its commit history, show staged changes, commit, and
// watch a file:// source, auto-committing each refresh it triggers.
// Every command opens the bundle afresh and staged changes live only in
// memory, so status in a new process reports nothing staged and commit
// fails with "nothing staged to commit". Wiring up a plan with
// attach/filter/join and friends is a library concern (spec §2), not
// something these commands expose, and the CLI plays the supporting
// role here, the way bd's own cmd/bd/ wraps a much larger internal
// library.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/nvoxland/bundlebase"
	"github.com/nvoxland/bundlebase/internal/bbconfig"
	"github.com/nvoxland/bundlebase/internal/bblog"
)

var rootCmd = &cobra.Command{
	Use:   "bundlebase",
	Short: "Inspect and manage bundlebase bundles",
}

func main() {
	if err := bbconfig.Initialize(); err != nil {
		bblog.Warnf("loading config: %v", err)
	}
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

var createCmd = &cobra.Command{
	Use:   "create <url>",
	Short: "Create a new, empty bundle",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		b, err := bundlebase.Create(context.Background(), args[0], nil, "")
		if err != nil {
			return err
		}
		fmt.Printf("created bundle %s (id %s)\n", b.URL(), b.BundleID())
		return nil
	},
}

func init() {
	rootCmd.AddCommand(createCmd)
}

var statusCmd = &cobra.Command{
	Use:   "status <url>",
	Short: "Show staged changes waiting to be committed",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		b, err := bundlebase.Open(context.Background(), args[0], nil, "")
		if err != nil {
			return err
		}
		st := b.Status()
		if len(st.Changes) == 0 {
			fmt.Println("nothing staged")
			return nil
		}
		for _, c := range st.Changes {
			fmt.Printf("%s  %s (%d operations)\n", c.ID, c.Description, c.OperationCount)
		}
		fmt.Printf("%d operations across %d changes\n", st.TotalOperations, len(st.Changes))
		return nil
	},
}

func init() {
	rootCmd.AddCommand(statusCmd)
}

var commitMessage string

var commitCmd = &cobra.Command{
	Use:   "commit <url>",
	Short: "Commit staged changes",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		b, err := bundlebase.Open(context.Background(), args[0], nil, "")
		if err != nil {
			return err
		}
		lc, err := b.Commit(context.Background(), commitMessage)
		if err != nil {
			return err
		}
		fmt.Printf("committed index %d (%s)\n", lc.Index, lc.Fingerprint)
		return nil
	},
}

func init() {
	commitCmd.Flags().StringVarP(&commitMessage, "message", "m", "", "commit message")
	rootCmd.AddCommand(commitCmd)
}

var historyCmd = &cobra.Command{
	Use:   "history <url>",
	Short: "List the bundle's commit chain, oldest first",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		b, err := bundlebase.Open(context.Background(), args[0], nil, "")
		if err != nil {
			return err
		}
		for _, c := range b.History() {
			fmt.Printf("%d  %s  %s  %s (%d changes)\n",
				c.Index, c.Timestamp.Format("2006-01-02T15:04:05Z07:00"), c.Author, c.Message, c.ChangeCount)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(historyCmd)
}

var extendCmd = &cobra.Command{
	Use:   "extend <url> <new-url>",
	Short: "Create a new bundle extending an existing one's history",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		b, err := bundlebase.Extend(context.Background(), args[0], args[1], nil, "")
		if err != nil {
			return err
		}
		fmt.Printf("extended %s as %s (id %s)\n", args[0], b.URL(), b.BundleID())
		return nil
	},
}

func init() {
	rootCmd.AddCommand(extendCmd)
}

var watchCmd = &cobra.Command{
	Use:   "watch <url> <source-url-prefix>",
	Short: "Watch a file:// source for new files and auto-commit refreshes",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()

		b, err := bundlebase.Open(ctx, args[0], nil, "")
		if err != nil {
			return err
		}
		stop, err := b.Watch(ctx, args[1], func(count int, err error) {
			if err != nil {
				fmt.Fprintf(os.Stderr, "refresh: %v\n", err)
				return
			}
			if count == 0 {
				return
			}
			if _, err := b.Commit(ctx, fmt.Sprintf("watch: refreshed %d file(s)", count)); err != nil {
				fmt.Fprintf(os.Stderr, "commit: %v\n", err)
			}
		})
		if err != nil {
			return err
		}
		defer stop()

		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		fmt.Printf("watching %s for %s (ctrl-c to stop)\n", args[1], args[0])
		<-sigCh
		return nil
	},
}

func init() {
	rootCmd.AddCommand(watchCmd)
}
