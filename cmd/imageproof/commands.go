package main

import (
	"fmt"
	"io"
	"strconv"
	"text/tabwriter"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	domain "github.com/bryanwahyu/imageproof/internal/domain/analyses"
)

var (
	uploadWait   bool
	recentLimit  int
	pollInterval time.Duration
)

var uploadCmd = &cobra.Command{
	Use:   "upload <file>...",
	Short: "Upload images and start scoring them",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		out := cmd.OutOrStdout()
		results := api.UploadAll(cmd.Context(), args)

		failed := 0
		for _, r := range results {
			if r.Err != nil {
				failed++
				fmt.Fprintf(cmd.ErrOrStderr(), "%s: %v\n", r.Path, r.Err)
				continue
			}
			fmt.Fprintf(out, "%s\t%s\tqueued\n", r.Path, r.ID)
		}

		if uploadWait {
			for _, r := range results {
				if r.Err != nil {
					continue
				}
				a, err := api.Wait(cmd.Context(), r.ID, pollInterval)
				if err != nil {
					failed++
					fmt.Fprintf(cmd.ErrOrStderr(), "%s: wait: %v\n", r.Path, err)
					continue
				}
				fmt.Fprintf(out, "%s\t%s\t%s\t%.2f%%\n", r.Path, a.ID, a.Verdict, a.Confidence)
			}
		}

		if failed > 0 {
			return eris.Errorf("%d of %d uploads failed", failed, len(args))
		}
		return nil
	},
}

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List all analyses, newest first",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		list, err := api.List(cmd.Context())
		if err != nil {
			return err
		}
		return printAnalyses(cmd.OutOrStdout(), list)
	},
}

var recentCmd = &cobra.Command{
	Use:   "recent",
	Short: "Show the newest analyses",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		list, err := api.Recent(cmd.Context(), recentLimit)
		if err != nil {
			return err
		}
		return printAnalyses(cmd.OutOrStdout(), list)
	},
}

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show verdict counts",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		st, err := api.Stats(cmd.Context())
		if err != nil {
			return err
		}
		return printStats(cmd.OutOrStdout(), st)
	},
}

var showCmd = &cobra.Command{
	Use:   "show <id>",
	Short: "Show one analysis with its sub-scores",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := api.Get(cmd.Context(), domain.AnalysisID(args[0]))
		if err != nil {
			return err
		}
		return printDetail(cmd.OutOrStdout(), a)
	},
}

var deleteCmd = &cobra.Command{
	Use:   "delete <id>",
	Short: "Delete an analysis and its image",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := api.Delete(cmd.Context(), domain.AnalysisID(args[0])); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "deleted %s\n", args[0])
		return nil
	},
}

var watchCmd = &cobra.Command{
	Use:   "watch <id>",
	Short: "Wait until an analysis has a verdict",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := api.Wait(cmd.Context(), domain.AnalysisID(args[0]), pollInterval)
		if err != nil {
			return err
		}
		return printDetail(cmd.OutOrStdout(), a)
	},
}

var dashboardCmd = &cobra.Command{
	Use:   "dashboard",
	Short: "Stats plus the most recent analyses",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		st, err := api.Stats(cmd.Context())
		if err != nil {
			return err
		}
		recent, err := api.Recent(cmd.Context(), recentLimit)
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		if err := printStats(out, st); err != nil {
			return err
		}
		fmt.Fprintln(out)
		return printAnalyses(out, recent)
	},
}

func init() {
	uploadCmd.Flags().BoolVar(&uploadWait, "wait", false, "wait for each verdict")
	for _, c := range []*cobra.Command{uploadCmd, watchCmd} {
		c.Flags().DurationVar(&pollInterval, "interval", time.Second, "poll interval while waiting")
	}
	for _, c := range []*cobra.Command{recentCmd, dashboardCmd} {
		c.Flags().IntVar(&recentLimit, "limit", 10, "number of analyses to show")
	}
}

func printAnalyses(w io.Writer, list []*domain.Analysis) error {
	if len(list) == 0 {
		_, err := fmt.Fprintln(w, "no analyses")
		return err
	}
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tFILE\tVERDICT\tCONFIDENCE\tCREATED")
	for _, a := range list {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n",
			a.ID, a.Filename, a.Verdict, confidence(a), a.CreatedAt.Local().Format(time.DateTime))
	}
	return tw.Flush()
}

func printStats(w io.Writer, st domain.Stats) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintf(tw, "analyzed\t%d\n", st.Total)
	fmt.Fprintf(tw, "authentic\t%d\n", st.Authentic)
	fmt.Fprintf(tw, "ai generated\t%d\n", st.AIGenerated)
	fmt.Fprintf(tw, "pending\t%d\n", st.Pending)
	return tw.Flush()
}

func printDetail(w io.Writer, a *domain.Analysis) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintf(tw, "id\t%s\n", a.ID)
	fmt.Fprintf(tw, "file\t%s\n", a.Filename)
	fmt.Fprintf(tw, "image\t%s\n", a.ImageURL)
	fmt.Fprintf(tw, "verdict\t%s\n", a.Verdict)
	fmt.Fprintf(tw, "confidence\t%s\n", confidence(a))
	if d := a.Details; d != nil {
		fmt.Fprintf(tw, "artifact\t%.2f\n", d.Artifact)
		fmt.Fprintf(tw, "pattern consistency\t%.2f\n", d.PatternConsistency)
		fmt.Fprintf(tw, "noise\t%.2f\n", d.Noise)
		fmt.Fprintf(tw, "color distribution\t%.2f\n", d.ColorDistribution)
		fmt.Fprintf(tw, "edge coherence\t%.2f\n", d.EdgeCoherence)
		fmt.Fprintf(tw, "metadata\t%.2f\n", d.Metadata)
	}
	return tw.Flush()
}

func confidence(a *domain.Analysis) string {
	if a.Pending() {
		return "-"
	}
	return strconv.FormatFloat(a.Confidence, 'f', 2, 64) + "%"
}
