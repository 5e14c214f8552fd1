package commands

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/nfstrace/nfstrace/pkg/packet"
	"github.com/nfstrace/nfstrace/pkg/search"
	"github.com/nfstrace/nfstrace/pkg/trace"
)

var (
	inspectFrom      int64
	inspectLimit     int
	inspectStopsOnly bool
	inspectVerbose   bool
)

var inspectCmd = &cobra.Command{
	Use:   "inspect <trace.pcap>",
	Short: "Decode and print every record in a capture",
	Long: `Walk a capture file from start to end and print one line per frame,
showing the layers that decoded and where decoding stopped.

Each printed line starts with the record's position in the file; pass
that position to --from later to resume the walk right after it.

Examples:
  # Print every record
  nfstrace inspect dump.pcap

  # Only frames where decoding stopped early
  nfstrace inspect --stops-only dump.pcap

  # Full RPC and COMPOUND detail per frame
  nfstrace inspect -v dump.pcap

  # Resume after the record at position 4242
  nfstrace inspect --from 4242 dump.pcap`,
	Args: cobra.ExactArgs(1),
	RunE: runInspect,
}

func init() {
	inspectCmd.Flags().Int64Var(&inspectFrom, "from", 0, "Resume after the record at this position")
	inspectCmd.Flags().IntVarP(&inspectLimit, "limit", "n", 0, "Stop after printing this many records (0 = no limit)")
	inspectCmd.Flags().BoolVar(&inspectStopsOnly, "stops-only", false, "Print only records where decoding stopped early")
	inspectCmd.Flags().BoolVarP(&inspectVerbose, "verbose", "v", false, "Print decoded RPC and NFS detail per record")
}

func runInspect(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	it, err := search.Open(args[0], decoderConfig(cfg))
	if err != nil {
		return err
	}
	defer func() { _ = it.Close() }()

	if inspectFrom > 0 {
		if err := it.Resume(trace.Position(inspectFrom)); err != nil {
			return fmt.Errorf("resume at %d: %w", inspectFrom, err)
		}
	}

	printed := 0
	for {
		rec, err := it.Next()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if errors.Is(err, trace.ErrAwaitingData) {
			fmt.Fprintln(os.Stderr, "capture ends mid-record (still being written?); use \"nfstrace follow\" to wait for more data")
			return nil
		}
		if err != nil {
			return err
		}

		if inspectStopsOnly && rec.Stop.Ok() {
			continue
		}

		printRecord(rec, inspectVerbose)
		printed++
		if inspectLimit > 0 && printed >= inspectLimit {
			return nil
		}
	}
}

// printRecord prints one record line, plus per-message detail when verbose.
func printRecord(rec *packet.Record, verbose bool) {
	fmt.Println(rec)
	if !verbose {
		return
	}
	for _, d := range rec.Messages() {
		fmt.Printf("  %s\n", d.RPC)
		if d.NFS != nil {
			fmt.Printf("    %s\n", d.NFS)
		}
	}
}
