package main

import (
	"context"
	"fmt"
	"math/big"
	"math/rand"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/luxfi/packer"
	"github.com/luxfi/packer/internal/logging"
	"github.com/luxfi/packer/internal/wire"
	"github.com/luxfi/packer/table"
)

var (
	roundtripRecords int
	roundtripSeed    int64
)

func init() {
	roundtripCmd.Flags().IntVarP(&roundtripRecords, "records", "n", 1000, "number of random records")
	roundtripCmd.Flags().Int64Var(&roundtripSeed, "seed", 1, "seed for record generation")
}

var roundtripCmd = &cobra.Command{
	Use:   "roundtrip",
	Short: "Pack, encrypt, merge, decrypt and unpack a random batch",
	Long: `Generate random records within the configured bounds, run them through the
whole pipeline and check every value comes back unchanged.

Examples:
  packer roundtrip --fields 1000,1000,255 -n 500
  PACKER_SCHEME_KIND=lattice packer roundtrip --fields 255,255`,
	RunE: runRoundtrip,
}

func runRoundtrip(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	logger, err := newLogger(cfg)
	if err != nil {
		return err
	}
	defer logging.Sync(logger)

	p, err := buildPacker(cfg, logger)
	if err != nil {
		return err
	}

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	workers := cfg.Worker.Count

	records := randomRecords(rand.New(rand.NewSource(roundtripSeed)), p.Fields(), roundtripRecords)
	in := table.FromValues(records)

	start := time.Now()
	tensors, err := p.PackAndEncryptTable(ctx, in, workers)
	if err != nil {
		return err
	}
	encrypted := time.Since(start)

	start = time.Now()
	pkgs, err := p.CompressTable(tensors)
	if err != nil {
		return err
	}
	merged := time.Since(start)

	start = time.Now()
	out, err := packer.DecryptAndUnpackTable(ctx, p, pkgs, workers)
	if err != nil {
		return err
	}
	decrypted := time.Since(start)

	if err := compareRecords(records, out); err != nil {
		return err
	}

	tensorBytes, err := wire.EncodeTensors(p, tensors.Values())
	if err != nil {
		return err
	}
	packageBytes, err := wire.EncodePackages(p, pkgs.Values())
	if err != nil {
		return err
	}

	logger.Info("roundtrip complete",
		zap.Int("records", len(records)),
		zap.Int("packages", len(pkgs)),
		zap.Duration("encrypt", encrypted),
		zap.Duration("merge", merged),
		zap.Duration("decrypt", decrypted),
	)

	unpacked := int64(len(records)) * int64(len(p.Fields()))
	packed := int64(len(records)) * int64(p.NumSlots())
	after := int64(0)
	for _, row := range pkgs {
		after += int64(row.Value.CiphertextCount())
	}

	cmd.Printf("%s records ok (%s, plan %s, %s)\n",
		humanize.Comma(int64(len(records))), p.Scheme().Name(), p.Plan(), p.CompressionPlan())
	cmd.Printf("ciphertexts: %s fields, %s slots, %s after merge (%s)\n",
		humanize.Comma(unpacked), humanize.Comma(packed), humanize.Comma(after), ratio(unpacked, after))
	cmd.Printf("wire size:   %s\n", byteRatio(len(tensorBytes), len(packageBytes)))
	cmd.Printf("timings:     encrypt %s, merge %s, decrypt %s\n",
		encrypted.Round(time.Millisecond), merged.Round(time.Millisecond), decrypted.Round(time.Millisecond))
	return nil
}

// randomRecords draws n records with every value in [0, bound].
func randomRecords(rng *rand.Rand, fields []packer.FieldSpec, n int) [][]*big.Int {
	out := make([][]*big.Int, n)
	for i := range out {
		rec := make([]*big.Int, len(fields))
		for j, f := range fields {
			limit := new(big.Int).Add(f.Bound, big.NewInt(1))
			rec[j] = new(big.Int).Rand(rng, limit)
		}
		out[i] = rec
	}
	return out
}

func compareRecords(want, got [][]*big.Int) error {
	if len(want) != len(got) {
		return fmt.Errorf("roundtrip returned %d records, want %d", len(got), len(want))
	}
	for i := range want {
		if len(want[i]) != len(got[i]) {
			return fmt.Errorf("record %d: %d fields, want %d", i, len(got[i]), len(want[i]))
		}
		for j := range want[i] {
			if want[i][j].Cmp(got[i][j]) != 0 {
				return fmt.Errorf("record %d field %d: got %s, want %s", i, j, got[i][j], want[i][j])
			}
		}
	}
	return nil
}
