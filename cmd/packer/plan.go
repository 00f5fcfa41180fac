package main

import (
	"fmt"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var planRecords int64

func init() {
	planCmd.Flags().Int64Var(&planRecords, "records", 1_000_000, "batch size used to project ciphertext counts")
}

var planCmd = &cobra.Command{
	Use:   "plan",
	Short: "Print the slot allocation and compression plan",
	Long: `Print how the configured fields are allocated to plaintext slots and how
many last-slot ciphertexts merge into one.

Examples:
  # Three fields under a 1024-bit Paillier key
  packer plan --fields 1000,1000,255

  # The same fields under the lattice scheme
  packer plan --scheme lattice --fields 1000,1000,255`,
	RunE: runPlan,
}

func runPlan(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	p, err := buildPacker(cfg, zap.NewNop())
	if err != nil {
		return err
	}

	plan := p.Plan()
	cp := p.CompressionPlan()

	cmd.Printf("scheme:       %s\n", p.Scheme().Name())
	cmd.Printf("usable bits:  %d\n", p.UsableBits())
	cmd.Printf("fields:       %d\n", plan.NumFields())
	cmd.Printf("fingerprint:  %016x\n", p.Fingerprint())
	cmd.Println()

	for i, slot := range plan {
		cmd.Printf("slot %d: %3d bits  widths %v\n", i, slot.Bits(), []int(slot))
	}
	cmd.Println()
	cmd.Printf("compression:  %s\n", cp)

	before, after := projectCiphertexts(planRecords, int64(len(plan)), cp.MergeCount)
	cmd.Printf("%s records -> %s ciphertexts unpacked, %s packed, %s merged (%s)\n",
		humanize.Comma(planRecords),
		humanize.Comma(planRecords*int64(plan.NumFields())),
		humanize.Comma(before),
		humanize.Comma(after),
		ratio(planRecords*int64(plan.NumFields()), after),
	)
	return nil
}

// projectCiphertexts returns the ciphertext count for records records before
// and after merging.
func projectCiphertexts(records, slots int64, merge int) (before, after int64) {
	before = records * slots
	packages := (records + int64(merge) - 1) / int64(merge)
	after = records*(slots-1) + packages
	return before, after
}

func ratio(from, to int64) string {
	if to == 0 {
		return "n/a"
	}
	return humanize.FtoaWithDigits(float64(from)/float64(to), 2) + "x fewer"
}

// byteRatio formats a size comparison.
func byteRatio(from, to int) string {
	return fmt.Sprintf("%s -> %s", humanize.Bytes(uint64(from)), humanize.Bytes(uint64(to)))
}
