package commands

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/nfstrace/nfstrace/pkg/search"
	"github.com/nfstrace/nfstrace/pkg/trace"
)

var (
	findXID       string
	findOp        string
	findFields    []string
	findUnmatched bool
	findStopped   bool
	findFrom      int64
	findAll       bool
	findVerbose   bool
)

var findCmd = &cobra.Command{
	Use:   "find <trace.pcap>",
	Short: "Find records matching a predicate",
	Long: `Scan a capture forward for records matching the given criteria.
Multiple criteria combine with AND. By default the first match is
printed; --all keeps scanning and prints every match.

Field criteria take the form layer.field=value, where value compares
numerically when the field is numeric (decimal) and textually otherwise.

Examples:
  # Both sides of one transaction
  nfstrace find --all --xid 0x1a2b3c4d dump.pcap

  # Every COMPOUND carrying an OPEN
  nfstrace find --all --op OPEN dump.pcap

  # Replies from the server
  nfstrace find --all --field ip.src=10.0.0.9 --field rpc.type=1 dump.pcap

  # First frame where decoding stopped early, after position 4242
  nfstrace find --stopped --from 4242 dump.pcap`,
	Args: cobra.ExactArgs(1),
	RunE: runFind,
}

func init() {
	findCmd.Flags().StringVar(&findXID, "xid", "", "Match RPC transaction ID (decimal or 0x-hex)")
	findCmd.Flags().StringVar(&findOp, "op", "", "Match COMPOUND operation by name (e.g. OPEN, CB_RECALL)")
	findCmd.Flags().StringArrayVar(&findFields, "field", nil, "Match a layer field, layer.field=value (repeatable)")
	findCmd.Flags().BoolVar(&findUnmatched, "unmatched", false, "Match replies whose call was not captured")
	findCmd.Flags().BoolVar(&findStopped, "stopped", false, "Match records where decoding stopped early")
	findCmd.Flags().Int64Var(&findFrom, "from", 0, "Resume after the record at this position")
	findCmd.Flags().BoolVar(&findAll, "all", false, "Print every match instead of the first")
	findCmd.Flags().BoolVarP(&findVerbose, "verbose", "v", false, "Print decoded RPC and NFS detail per match")
}

func runFind(cmd *cobra.Command, args []string) error {
	pred, err := buildPredicate()
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

	if findFrom > 0 {
		if err := it.Resume(trace.Position(findFrom)); err != nil {
			return fmt.Errorf("resume at %d: %w", findFrom, err)
		}
	}

	matches := 0
	for {
		rec, err := it.Find(pred)
		if errors.Is(err, search.ErrNotFound) {
			if matches == 0 {
				return search.ErrNotFound
			}
			return nil
		}
		if errors.Is(err, trace.ErrAwaitingData) {
			if matches == 0 {
				return search.ErrNotFound
			}
			return nil
		}
		if err != nil {
			return err
		}

		printRecord(rec, findVerbose)
		matches++
		if !findAll {
			return nil
		}
	}
}

// buildPredicate combines the find flags into one AND predicate.
func buildPredicate() (search.Predicate, error) {
	var preds []search.Predicate

	if findXID != "" {
		xid, err := strconv.ParseUint(findXID, 0, 32)
		if err != nil {
			return nil, fmt.Errorf("invalid --xid %q: %w", findXID, err)
		}
		preds = append(preds, search.XID(uint32(xid)))
	}
	if findOp != "" {
		preds = append(preds, search.Op(strings.ToUpper(findOp)))
	}
	for _, f := range findFields {
		path, value, ok := strings.Cut(f, "=")
		if !ok {
			return nil, fmt.Errorf("invalid --field %q: want layer.field=value", f)
		}
		preds = append(preds, search.FieldEquals(path, value))
	}
	if findUnmatched {
		preds = append(preds, search.UnmatchedReply())
	}
	if findStopped {
		preds = append(preds, search.Stopped())
	}

	if len(preds) == 0 {
		return nil, errors.New("no criteria given: pass at least one of --xid, --op, --field, --unmatched, --stopped")
	}
	return search.And(preds...), nil
}
