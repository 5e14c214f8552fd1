package commands

import (
	"errors"
	"fmt"
	"io"
	"os"
	"sort"
	"time"

	"github.com/spf13/cobra"

	"github.com/nfstrace/nfstrace/internal/cli/output"
	"github.com/nfstrace/nfstrace/internal/cli/timeutil"
	"github.com/nfstrace/nfstrace/pkg/search"
	"github.com/nfstrace/nfstrace/pkg/trace"
)

var statsOutput string

var statsCmd = &cobra.Command{
	Use:   "stats <trace.pcap>",
	Short: "Summarize a capture",
	Long: `Decode the whole capture and print aggregate statistics: frame and
stop-marker counts, RPC call/reply totals, the COMPOUND operation
histogram, and calls that never received a reply.

Examples:
  # Human-readable summary
  nfstrace stats dump.pcap

  # Machine-readable
  nfstrace stats -o json dump.pcap`,
	Args: cobra.ExactArgs(1),
	RunE: runStats,
}

func init() {
	statsCmd.Flags().StringVarP(&statsOutput, "output", "o", "table", "Output format (table|json|yaml)")
}

// TraceStats aggregates one full walk of a capture.
type TraceStats struct {
	Path       string    `json:"path" yaml:"path"`
	Frames     int       `json:"frames" yaml:"frames"`
	FirstFrame time.Time `json:"first_frame,omitempty" yaml:"first_frame,omitempty"`
	LastFrame  time.Time `json:"last_frame,omitempty" yaml:"last_frame,omitempty"`

	Calls            int `json:"rpc_calls" yaml:"rpc_calls"`
	Replies          int `json:"rpc_replies" yaml:"rpc_replies"`
	UnmatchedReplies int `json:"unmatched_replies" yaml:"unmatched_replies"`
	Compounds        int `json:"compounds" yaml:"compounds"`
	CallbackComps    int `json:"callback_compounds" yaml:"callback_compounds"`

	Stops map[string]int `json:"stops,omitempty" yaml:"stops,omitempty"`
	Ops   map[string]int `json:"ops,omitempty" yaml:"ops,omitempty"`

	Unanswered []UnansweredCall `json:"unanswered_calls,omitempty" yaml:"unanswered_calls,omitempty"`
}

// UnansweredCall describes a call still pending when the capture ended.
type UnansweredCall struct {
	Conn      string `json:"conn" yaml:"conn"`
	XID       uint32 `json:"xid" yaml:"xid"`
	Program   uint32 `json:"program" yaml:"program"`
	Procedure uint32 `json:"procedure" yaml:"procedure"`
	Callback  bool   `json:"callback,omitempty" yaml:"callback,omitempty"`
	Frame     int    `json:"frame" yaml:"frame"`
}

func runStats(cmd *cobra.Command, args []string) error {
	format, err := output.ParseFormat(statsOutput)
	if err != nil {
		return err
	}

	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	it, err := search.Open(args[0], decoderConfig(cfg))
	if err != nil {
		return err
	}
	defer func() { _ = it.Close() }()

	stats, err := collectStats(args[0], it)
	if err != nil {
		return err
	}

	switch format {
	case output.FormatJSON:
		return output.PrintJSON(os.Stdout, stats)
	case output.FormatYAML:
		return output.PrintYAML(os.Stdout, stats)
	default:
		printStats(stats)
		return nil
	}
}

func collectStats(path string, it *search.Iterator) (*TraceStats, error) {
	stats := &TraceStats{
		Path:  path,
		Stops: make(map[string]int),
		Ops:   make(map[string]int),
	}

	for {
		rec, err := it.Next()
		if errors.Is(err, io.EOF) || errors.Is(err, trace.ErrAwaitingData) {
			break
		}
		if err != nil {
			return nil, err
		}

		stats.Frames++
		if stats.FirstFrame.IsZero() {
			stats.FirstFrame = rec.Time
		}
		stats.LastFrame = rec.Time

		if !rec.Stop.Ok() {
			stats.Stops[fmt.Sprintf("%s/%s", rec.Stop.Layer, rec.Stop.Code)]++
		}

		for _, d := range rec.Messages() {
			if d.RPC.IsCall() {
				stats.Calls++
			} else {
				stats.Replies++
				if d.RPC.Unmatched {
					stats.UnmatchedReplies++
				}
			}
			if d.NFS != nil {
				if d.NFS.Callback {
					stats.CallbackComps++
				} else {
					stats.Compounds++
				}
				for i := range d.NFS.Ops {
					stats.Ops[d.NFS.Ops[i].Name()]++
				}
			}
		}
	}

	for _, call := range it.Decoder().UnansweredCalls() {
		stats.Unanswered = append(stats.Unanswered, UnansweredCall{
			Conn:      call.Key.Conn,
			XID:       call.Key.XID,
			Program:   call.Program,
			Procedure: call.Procedure,
			Callback:  call.Callback,
			Frame:     call.Frame,
		})
	}
	return stats, nil
}

func printStats(stats *TraceStats) {
	span := "-"
	if !stats.FirstFrame.IsZero() {
		span = timeutil.FormatSpan(stats.LastFrame.Sub(stats.FirstFrame))
	}

	_ = output.SimpleTable(os.Stdout, [][2]string{
		{"Trace", stats.Path},
		{"Frames", fmt.Sprintf("%d", stats.Frames)},
		{"Span", span},
		{"RPC calls", fmt.Sprintf("%d", stats.Calls)},
		{"RPC replies", fmt.Sprintf("%d", stats.Replies)},
		{"Unmatched replies", fmt.Sprintf("%d", stats.UnmatchedReplies)},
		{"COMPOUNDs", fmt.Sprintf("%d", stats.Compounds)},
		{"CB_COMPOUNDs", fmt.Sprintf("%d", stats.CallbackComps)},
		{"Unanswered calls", fmt.Sprintf("%d", len(stats.Unanswered))},
	})

	if len(stats.Stops) > 0 {
		fmt.Println()
		table := output.NewTableData("Stop", "Frames")
		for _, key := range sortedKeys(stats.Stops) {
			table.AddRow(key, fmt.Sprintf("%d", stats.Stops[key]))
		}
		_ = output.PrintTable(os.Stdout, table)
	}

	if len(stats.Ops) > 0 {
		fmt.Println()
		table := output.NewTableData("Operation", "Count")
		for _, key := range sortedKeys(stats.Ops) {
			table.AddRow(key, fmt.Sprintf("%d", stats.Ops[key]))
		}
		_ = output.PrintTable(os.Stdout, table)
	}

	if len(stats.Unanswered) > 0 {
		fmt.Println()
		table := output.NewTableData("Connection", "XID", "Program", "Frame")
		for _, call := range stats.Unanswered {
			table.AddRow(
				call.Conn,
				fmt.Sprintf("0x%08x", call.XID),
				fmt.Sprintf("%d", call.Program),
				fmt.Sprintf("%d", call.Frame),
			)
		}
		_ = output.PrintTable(os.Stdout, table)
	}
}

func sortedKeys(m map[string]int) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
