package app

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"runtime"
	"text/tabwriter"

	"github.com/you-humble/pdftrack/internal/infra/view"
	"github.com/you-humble/pdftrack/internal/widget"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
)

// Set at build time.
var (
	version = "dev"
	commit  = "none"
)

func (a *app) uploadCmd() *cobra.Command {
	var save bool

	cmd := &cobra.Command{
		Use:   "upload <file.pdf>",
		Short: "Upload a PDF and follow the conversion until it ends",
		Args:  cobra.ExactArgs(1),
		RunE: a.withRuntime(func(ctx context.Context, cmd *cobra.Command, args []string) error {
			_, err := a.di.Usecase(ctx).Convert(ctx, args[0], save)
			return err
		}),
	}

	cmd.Flags().BoolVar(&save, "save", false, "download the converted file into the artifacts dir")
	return cmd
}

func (a *app) watchCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "watch",
		Short: "Interactive mode: drop files onto the terminal and submit them",
		Args:  cobra.NoArgs,
		RunE: a.withRuntime(func(ctx context.Context, cmd *cobra.Command, args []string) error {
			err := a.di.Usecase(ctx).Watch(ctx, cmd.InOrStdin())
			if errors.Is(err, context.Canceled) {
				return nil
			}
			return err
		}),
	}
}

func (a *app) statusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status <job-id>",
		Short: "Print the current status of a job once",
		Args:  cobra.ExactArgs(1),
		RunE: a.withRuntime(func(ctx context.Context, cmd *cobra.Command, args []string) error {
			snap, err := a.di.Usecase(ctx).Status(ctx, args[0])
			if err != nil {
				return err
			}
			return printJSON(cmd, snap)
		}),
	}
}

func (a *app) healthCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "health",
		Short: "Check that the conversion server is up",
		Args:  cobra.NoArgs,
		RunE: a.withRuntime(func(ctx context.Context, cmd *cobra.Command, args []string) error {
			h, err := a.di.Usecase(ctx).Health(ctx)
			if err != nil {
				return err
			}
			return printJSON(cmd, h)
		}),
	}
}

func (a *app) screenCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "screen <session-id>",
		Short: "Show the screen another pdftrack session mirrored into Redis",
		Args:  cobra.ExactArgs(1),
		RunE: a.withRuntime(func(ctx context.Context, cmd *cobra.Command, args []string) error {
			rdb, err := a.di.RedisClient(ctx)
			if err != nil {
				return err
			}

			ss, ok, err := view.LoadSessionScreen(ctx, rdb, args[0])
			if err != nil {
				return err
			}
			if !ok {
				return fmt.Errorf("session %s not found", args[0])
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "State:    %s\n", ss.State)
			if ss.Screen.FileLabel != "" {
				fmt.Fprintf(out, "File:     %s\n", ss.Screen.FileLabel)
			}
			if ss.JobID != "" {
				fmt.Fprintf(out, "Job:      %s\n", ss.JobID)
			}
			if ss.Screen.ProgressVisible {
				fmt.Fprintf(out, "Progress: %d%% %s\n", ss.Screen.Progress, ss.Screen.ProgressMessage)
			}
			if ss.Screen.ResultVisible {
				fmt.Fprintf(out, "Download: %s\n", a.di.Client().Resolve(ss.Screen.DownloadURL))
			}
			if ss.Screen.ErrorVisible {
				fmt.Fprintf(out, "Error:    %s\n", ss.Screen.ErrorMessage)
			}
			fmt.Fprintf(out, "Updated:  %s\n", ss.UpdatedAt.Format("2006-01-02 15:04:05"))

			if al, ok, err := view.LoadAlert(ctx, rdb, args[0]); err == nil && ok {
				fmt.Fprintf(out, "Alert:    [%s] %s\n", al.Level, al.Message)
			}
			return nil
		}),
	}
}

func (a *app) artifactsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "artifacts",
		Short: "List saved artifacts, newest first",
		Args:  cobra.NoArgs,
		RunE: a.withRuntime(func(ctx context.Context, cmd *cobra.Command, args []string) error {
			list, err := a.di.Usecase(ctx).Artifacts(ctx)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if len(list) == 0 {
				fmt.Fprintln(out, "No artifacts yet")
				return nil
			}

			tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "NAME\tSIZE\tSAVED\tLOCATION")
			for _, art := range list {
				saved := "-"
				if !art.ModTime.IsZero() {
					saved = humanize.Time(art.ModTime)
				}
				fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", art.Name, humanize.IBytes(uint64(max(art.Size, 0))), saved, art.Path)
			}
			return tw.Flush()
		}),
	}
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "pdftrack %s (%s)\n", version, commit)
			fmt.Fprintf(out, "poll interval %s, %s %s/%s\n",
				widget.DefaultPollInterval, runtime.Version(), runtime.GOOS, runtime.GOARCH)
		},
	}
}

func printJSON(cmd *cobra.Command, v any) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
