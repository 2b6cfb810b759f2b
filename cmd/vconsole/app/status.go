package app

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/gosuri/uitable"
	"github.com/spf13/cobra"

	"github.com/daohu527/vconsole/pkg/journal"
	"github.com/daohu527/vconsole/pkg/log"
	genericoptions "github.com/daohu527/vconsole/pkg/options"
	"github.com/daohu527/vconsole/pkg/oplog"
	"github.com/daohu527/vconsole/pkg/session"
)

type statusOptions struct {
	API     string `mapstructure:"api"`
	Journal string `mapstructure:"journal"`
	Limit   int    `mapstructure:"limit"`
}

func newStatusCommand(ctx context.Context, configFile *string) *cobra.Command {
	opts := &statusOptions{API: "http://127.0.0.1:8080", Limit: 20}
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Print the session view and the latest operator log entries",
		Long: `status asks a running console for its current view and operator log. With
--journal it reads the log from a session journal instead and needs no
running console.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			loader, err := genericoptions.NewLoader(envPrefix, *configFile, cmd.Flags())
			if err != nil {
				return err
			}
			if err := loader.Unmarshal(opts); err != nil {
				return fmt.Errorf("decode options: %w", err)
			}
			out := cmd.OutOrStdout()
			if opts.Journal != "" {
				return printJournal(ctx, out, opts.Journal, opts.Limit)
			}
			return printLive(ctx, out, opts.API, opts.Limit)
		},
	}
	cmd.Flags().StringVar(&opts.API, "api", opts.API, "Base URL of a running console API.")
	cmd.Flags().StringVar(&opts.Journal, "journal", opts.Journal, "Read entries from this journal file instead of the API.")
	cmd.Flags().IntVar(&opts.Limit, "limit", opts.Limit, "Number of log entries to print.")
	return cmd
}

func printLive(ctx context.Context, out io.Writer, api string, limit int) error {
	var view session.View
	if err := getJSON(ctx, api, "/api/v1/view", nil, &view); err != nil {
		return err
	}
	var entries []oplog.Entry
	q := url.Values{"limit": {strconv.Itoa(limit)}}
	if err := getJSON(ctx, api, "/api/v1/log", q, &entries); err != nil {
		return err
	}

	v := view.Vehicle
	table := uitable.New()
	table.AddRow("SESSION:", view.SessionID)
	table.AddRow("CONTROL:", heldText(view.ControlHeld))
	table.AddRow("MOTION:", view.Intent.Direction)
	table.AddRow("SPEED:", fmt.Sprintf("%d%%", view.Speed))
	table.AddRow("POSITION:", fmt.Sprintf("%.6f, %.6f", v.Position.Latitude, v.Position.Longitude))
	table.AddRow("HEADING:", fmt.Sprintf("%.1f", v.Heading))
	table.AddRow("STATE:", v.OperationalState)
	table.AddRow("BATTERY:", fmt.Sprintf("%.2f V (%.0f%%)", v.BatteryVoltage, v.BatteryPercent))
	table.AddRow("USERS:", v.ActiveUserCount)
	fmt.Fprintln(out, table)
	fmt.Fprintln(out)

	printEntries(out, entries)
	return nil
}

func printJournal(ctx context.Context, out io.Writer, path string, limit int) error {
	j, err := journal.Open(path, "", log.NewNopLogger())
	if err != nil {
		return err
	}
	defer j.Close()

	records, err := j.Recent(ctx, limit)
	if err != nil {
		return err
	}
	table := uitable.New()
	table.MaxColWidth = 80
	table.Wrap = true
	table.AddRow("TIME", "SESSION", "KIND", "TEXT")
	for _, r := range records {
		table.AddRow(r.Entry.Time.Format(time.TimeOnly), r.SessionID, r.Entry.Kind, r.Entry.Text)
	}
	fmt.Fprintln(out, table)
	return nil
}

func printEntries(out io.Writer, entries []oplog.Entry) {
	table := uitable.New()
	table.MaxColWidth = 80
	table.Wrap = true
	table.AddRow("TIME", "KIND", "TEXT")
	for _, e := range entries {
		table.AddRow(e.Time.Format(time.TimeOnly), e.Kind, e.Text)
	}
	fmt.Fprintln(out, table)
}

func heldText(held bool) string {
	if held {
		return "held"
	}
	return "not held"
}

func getJSON(ctx context.Context, base, path string, query url.Values, v any) error {
	u, err := url.Parse(base)
	if err != nil {
		return fmt.Errorf("api url: %w", err)
	}
	u = u.JoinPath(path)
	u.RawQuery = query.Encode()

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return err
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return fmt.Errorf("console api: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("console api %s: %s", path, resp.Status)
	}
	return json.NewDecoder(resp.Body).Decode(v)
}
