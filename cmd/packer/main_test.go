package main

import (
	"math/big"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/luxfi/packer"
	"github.com/luxfi/packer/internal/config"
	"github.com/luxfi/packer/lattice"
)

func TestProjectCiphertexts(t *testing.T) {
	before, after := projectCiphertexts(10, 2, 4)
	assert.Equal(t, int64(20), before)
	// 10 head slots plus ceil(10/4) merged tails.
	assert.Equal(t, int64(13), after)

	before, after = projectCiphertexts(10, 3, 1)
	assert.Equal(t, before, after)
}

func TestBuildPacker(t *testing.T) {
	tests := []struct {
		name      string
		kind      string
		compress  bool
		wantMerge bool
	}{
		{"paillier", config.SchemePaillier, true, true},
		{"paillier without compression", config.SchemePaillier, false, false},
		{"affine", config.SchemeAffine, true, false},
		{"lattice", config.SchemeLattice, true, false},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			cfg := config.Default()
			cfg.Scheme.Kind = tc.kind
			cfg.Scheme.KeyBits = 256
			cfg.Scheme.LogN = 10
			cfg.Scheme.LogT = 16
			cfg.Compression = tc.compress
			cfg.Fields = []string{"255", "255"}

			p, err := buildPacker(&cfg, zap.NewNop())
			require.NoError(t, err)
			assert.Equal(t, tc.wantMerge, p.CompressionPlan().Enabled())

			records := randomRecords(rand.New(rand.NewSource(7)), p.Fields(), 5)
			var items []packer.Decryptable
			for _, r := range records {
				ct, err := p.PackAndEncrypt(r)
				require.NoError(t, err)
				items = append(items, ct)
			}
			out, err := p.DecryptAndUnpack(items...)
			require.NoError(t, err)
			assert.NoError(t, compareRecords(records, out))
		})
	}
}

func TestBuildPackerLatticeDefaults(t *testing.T) {
	cfg := config.Default()
	cfg.Scheme.Kind = config.SchemeLattice
	cfg.Fields = []string{"15", "15"}
	require.NoError(t, cfg.Validate())

	p, err := buildPacker(&cfg, zap.NewNop())
	require.NoError(t, err)
	assert.Equal(t, 19, p.UsableBits())
	assert.Equal(t, packer.CompressionPlan{PaddingBits: 8, MergeCount: 2}, p.CompressionPlan())

	records := randomRecords(rand.New(rand.NewSource(11)), p.Fields(), 5)
	tensors := make([]packer.CipherTensor, len(records))
	for i, r := range records {
		tensors[i], err = p.PackAndEncrypt(r)
		require.NoError(t, err)
	}
	pkgs, err := p.Compress(tensors)
	require.NoError(t, err)
	require.Len(t, pkgs, 3)

	items := make([]packer.Decryptable, len(pkgs))
	for i, pkg := range pkgs {
		items[i] = pkg
	}
	out, err := p.DecryptAndUnpack(items...)
	require.NoError(t, err)
	assert.NoError(t, compareRecords(records, out))
}

func TestBuildPackerLatticeModulusMismatch(t *testing.T) {
	cfg := config.Default()
	cfg.Scheme.Kind = config.SchemeLattice
	cfg.Scheme.LogN = 11
	cfg.Scheme.Q = lattice.PN10QP27T8.Q
	cfg.Scheme.LogT = 8
	cfg.Fields = []string{"15"}

	_, err := buildPacker(&cfg, zap.NewNop())
	assert.ErrorIs(t, err, lattice.ErrModulus)
}

func TestBuildPackerNoFields(t *testing.T) {
	cfg := config.Default()
	_, err := buildPacker(&cfg, zap.NewNop())
	assert.Error(t, err)
}

func TestCompareRecords(t *testing.T) {
	a := [][]*big.Int{{big.NewInt(1), big.NewInt(2)}}
	b := [][]*big.Int{{big.NewInt(1), big.NewInt(3)}}
	assert.NoError(t, compareRecords(a, a))
	assert.Error(t, compareRecords(a, b))
	assert.Error(t, compareRecords(a, nil))
}

func TestRandomRecordsWithinBounds(t *testing.T) {
	fields := packer.FieldsFromUint64(0, 1, 1000)
	for _, rec := range randomRecords(rand.New(rand.NewSource(1)), fields, 200) {
		for j, v := range rec {
			assert.True(t, v.Sign() >= 0 && v.Cmp(fields[j].Bound) <= 0, "field %d value %s", j, v)
		}
	}
}
