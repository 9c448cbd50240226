package main

import (
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/optoclinic/clinic/internal/config"
	"github.com/optoclinic/clinic/internal/platform/clinicclient"
)

func newClient() (*clinicclient.Client, error) {
	cfg, err := config.LoadClient()
	if err != nil {
		return nil, err
	}
	return clinicclient.New(clinicclient.Options{
		BaseURL: cfg.APIURL,
		Token:   cfg.APIToken,
		Timeout: cfg.Timeout,
		Logger:  zerolog.New(os.Stderr).With().Timestamp().Str("component", "clinicclient").Logger(),
	}), nil
}

func consultCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "consult",
		Short: "Work with consultation versions through the API",
	}

	var versionType string
	start := &cobra.Command{
		Use:   "start <appointment-id>",
		Short: "Resume or open the caller's working version",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := newClient()
			if err != nil {
				return err
			}
			res, err := c.Start(cmd.Context(), args[0], versionType)
			if err != nil {
				return err
			}
			verb := "resumed"
			if res.Created {
				verb = "created"
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s %s version %s\n", verb, res.Version.VersionType, res.Version.ID)
			return nil
		},
	}
	start.Flags().StringVar(&versionType, "type", "", "version type (student, professional, review)")
	cmd.AddCommand(start)

	cmd.AddCommand(&cobra.Command{
		Use:   "review <student-version-id>",
		Short: "Open a review of a submitted student version",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := newClient()
			if err != nil {
				return err
			}
			res, err := c.InitiateReview(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			printReview(cmd.OutOrStdout(), res)
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "finalize <review-version-id>",
		Short: "Finalize a review and record its changes",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := newClient()
			if err != nil {
				return err
			}
			v, err := c.FinalizeReview(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "finalized review %s\n", v.ID)
			return nil
		},
	})

	var limit, offset int
	versions := &cobra.Command{
		Use:   "versions <appointment-id>",
		Short: "List the versions of an appointment",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := newClient()
			if err != nil {
				return err
			}
			page, err := c.ListVersions(cmd.Context(), args[0], limit, offset)
			if err != nil {
				return err
			}
			printVersions(cmd.OutOrStdout(), page)
			return nil
		},
	}
	versions.Flags().IntVar(&limit, "limit", 20, "page size")
	versions.Flags().IntVar(&offset, "offset", 0, "page offset")
	cmd.AddCommand(versions)

	return cmd
}

func printReview(w io.Writer, res *clinicclient.ReviewResult) {
	switch res.Outcome {
	case clinicclient.ReviewCreated:
		fmt.Fprintf(w, "review %s created, %d record(s) cloned\n", res.VersionID, res.RecordsCloned)
	default:
		fmt.Fprintf(w, "review %s already exists\n", res.VersionID)
	}
}

func printVersions(w io.Writer, page *clinicclient.VersionPage) {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tTYPE\tFINAL\tCREATED BY\tCREATED AT")
	for _, v := range page.Data {
		fmt.Fprintf(tw, "%s\t%s\t%t\t%s\t%s\n", v.ID, v.VersionType, v.IsFinal, v.CreatedByID, v.CreatedAt.Format("2006-01-02 15:04"))
	}
	tw.Flush()
	fmt.Fprintf(w, "%d of %d\n", len(page.Data), page.Total)
}
