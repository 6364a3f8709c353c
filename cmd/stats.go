package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"webrtc-rendezvous/pkg/webrtc/signaling"
)

var flagStatsServer string

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Print live room occupancy",
	Long: `Print live room occupancy from a running service.

Examples:
  rendezvous stats
  rendezvous stats --server https://signal.example`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := context.WithTimeout(cmd.Context(), 5*time.Second)
		defer cancel()
		stats, err := fetchStats(ctx, http.DefaultClient, flagStatsServer)
		if err != nil {
			return err
		}
		renderStats(cmd.OutOrStdout(), stats)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(statsCmd)

	statsCmd.Flags().StringVarP(&flagStatsServer, "server", "s", "http://localhost:8080", "Service base URL")
}

func fetchStats(ctx context.Context, client *http.Client, server string) (signaling.Stats, error) {
	var stats signaling.Stats
	url := strings.TrimRight(server, "/") + "/stats"
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return stats, err
	}
	resp, err := client.Do(req)
	if err != nil {
		return stats, fmt.Errorf("fetch %s: %w", url, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return stats, fmt.Errorf("fetch %s: unexpected status %s", url, resp.Status)
	}
	if err := json.NewDecoder(resp.Body).Decode(&stats); err != nil {
		return stats, fmt.Errorf("decode stats: %w", err)
	}
	return stats, nil
}

func renderStats(w io.Writer, stats signaling.Stats) {
	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.SetStyle(table.StyleRounded)
	t.AppendHeader(table.Row{"Room", "Members"})
	for _, o := range stats.Occupancy {
		t.AppendRow(table.Row{o.RoomID, o.Members})
	}
	t.AppendFooter(table.Row{fmt.Sprintf("%d rooms", stats.Rooms), fmt.Sprintf("%d clients", stats.Clients)})
	t.Render()
}
