package main

import (
	"encoding/json"
	"errors"
	"io"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/crowdcount/internal/dashboard"
	"github.com/sells-group/crowdcount/internal/timeseries"
)

// queryFlags are the request selectors shared by the query commands.
type queryFlags struct {
	project string
	key     string
	date    string
	until   string
	areas   []string
}

func (f *queryFlags) bind(cmd *cobra.Command) {
	cmd.Flags().StringVar(&f.project, "project", "", "project id (required)")
	cmd.Flags().StringVar(&f.key, "key", "", "project access key (required)")
	cmd.Flags().StringVar(&f.date, "date", "", "calendar day YYYY-MM-DD (default today)")
	cmd.Flags().StringVar(&f.until, "until", "", "cut the day off after HH:MM[:SS]")
	cmd.Flags().StringSliceVar(&f.areas, "areas", nil, "comma-separated areas (default all)")
	_ = cmd.MarkFlagRequired("project")
	_ = cmd.MarkFlagRequired("key")
}

func (f *queryFlags) request() (dashboard.Request, error) {
	req := dashboard.Request{ProjectID: f.project, Key: f.key}
	if f.date != "" {
		d, err := timeseries.ParseDate(f.date)
		if err != nil {
			return req, err
		}
		req.Date = d
	}
	if f.until != "" {
		c, err := timeseries.ParseClock(f.until)
		if err != nil {
			return req, err
		}
		req.Until = &c
	}
	for _, a := range f.areas {
		if a = strings.TrimSpace(a); a != "" {
			req.Areas = append(req.Areas, a)
		}
	}
	return req, nil
}

// writeResult prints v as indented JSON. An empty window prints the same
// marker the API returns instead of failing.
func writeResult(w io.Writer, v any, err error) error {
	if errors.Is(err, dashboard.ErrNoData) {
		v, err = map[string]string{"status": "empty"}, nil
	}
	if err != nil {
		return err
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return eris.Wrap(enc.Encode(v), "write result")
}

var (
	seriesFlags  queryFlags
	densityFlags queryFlags
	summaryFlags queryFlags
)

var seriesCmd = &cobra.Command{
	Use:   "series",
	Short: "Print the smoothed per-area occupancy series for a day",
	RunE: func(cmd *cobra.Command, _ []string) error {
		req, err := seriesFlags.request()
		if err != nil {
			return err
		}
		env, err := initEnv(cmd.Context(), cfg, "query")
		if err != nil {
			return err
		}
		defer env.Close()

		series, err := env.Service.Series(cmd.Context(), req)
		return writeResult(cmd.OutOrStdout(), series, err)
	},
}

var densityCmd = &cobra.Command{
	Use:   "density",
	Short: "Print the merged per-area density maps from the latest blobs",
	RunE: func(cmd *cobra.Command, _ []string) error {
		req, err := densityFlags.request()
		if err != nil {
			return err
		}
		env, err := initEnv(cmd.Context(), cfg, "query")
		if err != nil {
			return err
		}
		defer env.Close()

		res, err := env.Service.Density(cmd.Context(), req)
		return writeResult(cmd.OutOrStdout(), res, err)
	},
}

var summaryCmd = &cobra.Command{
	Use:   "summary",
	Short: "Print current, maximum, average and minimum occupancy for a day",
	RunE: func(cmd *cobra.Command, _ []string) error {
		req, err := summaryFlags.request()
		if err != nil {
			return err
		}
		env, err := initEnv(cmd.Context(), cfg, "query")
		if err != nil {
			return err
		}
		defer env.Close()

		sum, err := env.Service.Summary(cmd.Context(), req)
		return writeResult(cmd.OutOrStdout(), sum, err)
	},
}

func init() {
	seriesFlags.bind(seriesCmd)
	densityFlags.bind(densityCmd)
	summaryFlags.bind(summaryCmd)
	rootCmd.AddCommand(seriesCmd, densityCmd, summaryCmd)
}
