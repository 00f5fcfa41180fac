// Copyright (c) 2025, Lux Industries Inc
// SPDX-License-Identifier: BSD-3-Clause

package packer

import (
	"errors"
	"math/big"
	"math/rand"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func TestNewExamplePlan(t *testing.T) {
	p, err := New(FieldsFromUint64(1000, 1000, 1000, 1000), newPlainScheme(50))
	require.NoError(t, err)

	assert.Equal(t, 50, p.UsableBits())
	assert.Equal(t, Plan{{10, 10, 10, 10}}, p.Plan())
	assert.Equal(t, 1, p.NumSlots())
	assert.Equal(t, NoCompression, p.CompressionPlan())

	slots, err := p.PackUint64([]uint64{5, 6, 7, 8})
	require.NoError(t, err)
	require.Len(t, slots, 1)

	rec, err := p.Unpack(slots)
	require.NoError(t, err)
	assert.True(t, equalInts(rec, ints(5, 6, 7, 8)), "got %v", rec)
}

func TestNewThirtyBitFields(t *testing.T) {
	bound := uint64(1)<<30 - 1
	p, err := New(FieldsFromUint64(bound, bound, bound, bound), newAdditiveScheme(50))
	require.NoError(t, err)
	assert.Equal(t, Plan{{30}, {30}, {30}, {30}}, p.Plan())
	assert.Equal(t, CompressionPlan{PaddingBits: 30, MergeCount: 1}, p.CompressionPlan())
}

func TestNewBoundary(t *testing.T) {
	usable := 50

	tooWide := new(big.Int).Lsh(big.NewInt(1), uint(usable-1)) // usable bits wide
	_, err := New(FieldsFromBounds(tooWide), newPlainScheme(usable))
	assert.ErrorIs(t, err, ErrFieldTooWide)
	assert.ErrorIs(t, err, ErrConfiguration)

	fits := new(big.Int).Sub(tooWide, big.NewInt(1)) // usable-1 bits wide
	p, err := New(FieldsFromBounds(fits), newPlainScheme(usable))
	require.NoError(t, err)
	assert.Equal(t, Plan{{usable - 1}}, p.Plan())
}

func TestNewErrors(t *testing.T) {
	tests := []struct {
		name   string
		fields []FieldSpec
		scheme Scheme
		want   error
	}{
		{"nil scheme", FieldsFromUint64(1), nil, ErrUnsupportedScheme},
		{"no fields", nil, newPlainScheme(50), ErrInvalidField},
		{"negative bound", []FieldSpec{{Index: 0, Bound: big.NewInt(-1)}}, newPlainScheme(50), ErrInvalidField},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := New(tc.fields, tc.scheme)
			assert.ErrorIs(t, err, tc.want)
			assert.ErrorIs(t, err, ErrConfiguration)
		})
	}
}

func TestFieldBitWidth(t *testing.T) {
	tests := []struct {
		bound *big.Int
		want  int
	}{
		{nil, 1},
		{big.NewInt(0), 1},
		{big.NewInt(1), 1},
		{big.NewInt(255), 8},
		{big.NewInt(256), 9},
		{big.NewInt(1000), 10},
	}
	for _, tc := range tests {
		if got := (FieldSpec{Bound: tc.bound}).BitWidth(); got != tc.want {
			t.Errorf("BitWidth(%v) = %d, want %d", tc.bound, got, tc.want)
		}
	}
}

func TestPackRoundTrip(t *testing.T) {
	rng := rand.New(rand.NewSource(11))

	for iter := 0; iter < 50; iter++ {
		n := 1 + rng.Intn(12)
		bounds := make([]*big.Int, n)
		for i := range bounds {
			bounds[i] = new(big.Int).Rand(rng, new(big.Int).Lsh(big.NewInt(1), uint(1+rng.Intn(60))))
		}
		p, err := New(FieldsFromBounds(bounds...), newPlainScheme(64))
		require.NoError(t, err)

		for r := 0; r < 20; r++ {
			record := make([]*big.Int, n)
			for i, b := range bounds {
				record[i] = new(big.Int).Rand(rng, new(big.Int).Add(b, big.NewInt(1)))
			}
			slots, err := p.Pack(record)
			require.NoError(t, err)
			got, err := p.Unpack(slots)
			require.NoError(t, err)
			require.True(t, equalInts(record, got), "bounds %v: %v != %v", bounds, got, record)
		}
	}
}

func TestPackErrors(t *testing.T) {
	p, err := New(FieldsFromUint64(10, 10), newPlainScheme(50))
	require.NoError(t, err)

	_, err = p.Pack(ints(1))
	assert.ErrorIs(t, err, ErrRecordLength)
	assert.ErrorIs(t, err, ErrPrecondition)

	_, err = p.Pack(ints(1, -1))
	assert.ErrorIs(t, err, ErrNegativeValue)

	_, err = p.Pack([]*big.Int{big.NewInt(1), nil})
	assert.ErrorIs(t, err, ErrNegativeValue)

	_, err = p.Unpack(ints(1, 2))
	assert.ErrorIs(t, err, ErrSlotCount)

	_, err = p.Unpack([]*big.Int{nil})
	assert.ErrorIs(t, err, ErrSlotCount)

	_, err = p.UnpackAll([][]*big.Int{ints(1), ints(1, 2)})
	assert.ErrorIs(t, err, ErrSlotCount)
}

func TestPackerCopiesFields(t *testing.T) {
	fields := FieldsFromUint64(1000)
	p, err := New(fields, newPlainScheme(50))
	require.NoError(t, err)

	fields[0].Bound.SetInt64(1 << 40)
	got := p.Fields()
	assert.Equal(t, int64(1000), got[0].Bound.Int64())

	got[0].Bound.SetInt64(7)
	assert.Equal(t, int64(1000), p.Fields()[0].Bound.Int64())
}

func TestPackAndEncryptDecryptAndUnpack(t *testing.T) {
	s := newAdditiveScheme(64)
	p, err := New(FieldsFromUint64(1<<20, 1<<20, 1<<20, 255), s, WithLogger(zaptest.NewLogger(t)))
	require.NoError(t, err)
	// [21 21 21] [8]
	require.Equal(t, 2, p.NumSlots())
	cp := p.CompressionPlan()
	require.True(t, cp.Enabled())

	rng := rand.New(rand.NewSource(5))
	var (
		records [][]*big.Int
		tensors []CipherTensor
	)
	for i := 0; i < 2*cp.MergeCount+1; i++ {
		rec := ints(rng.Int63n(1<<20+1), rng.Int63n(1<<20+1), rng.Int63n(1<<20+1), rng.Int63n(256))
		ct, err := p.PackAndEncrypt(rec)
		require.NoError(t, err)
		require.Len(t, ct, p.NumSlots())
		records = append(records, rec)
		tensors = append(tensors, ct)
	}

	pkgs, err := p.Compress(tensors)
	require.NoError(t, err)
	require.Len(t, pkgs, 3)
	assert.Equal(t, cp.MergeCount, pkgs[0].Len())
	assert.Equal(t, 1, pkgs[2].Len())

	// Mix a bare tensor in front of the packages.
	items := []Decryptable{tensors[0]}
	for _, pkg := range pkgs {
		items = append(items, pkg)
	}
	got, err := p.DecryptAndUnpack(items...)
	require.NoError(t, err)
	require.Len(t, got, len(records)+1)

	want := append([][]*big.Int{records[0]}, records...)
	for i := range want {
		assert.True(t, equalInts(want[i], got[i]), "record %d: got %v, want %v", i, got[i], want[i])
	}
}

func TestCompressWithoutCipherCompression(t *testing.T) {
	s := newAdditiveScheme(64)
	p, err := New(FieldsFromUint64(255, 255), s, WithoutCipherCompression())
	require.NoError(t, err)
	assert.Equal(t, NoCompression, p.CompressionPlan())

	var tensors []CipherTensor
	for i := int64(0); i < 3; i++ {
		ct, err := p.PackAndEncrypt(ints(i, 2*i))
		require.NoError(t, err)
		tensors = append(tensors, ct)
	}
	pkgs, err := p.Compress(tensors)
	require.NoError(t, err)
	assert.Len(t, pkgs, 3)

	_, err = p.Compress([]CipherTensor{{}})
	assert.ErrorIs(t, err, ErrSlotCount)
}

func TestFingerprint(t *testing.T) {
	s := newAdditiveScheme(64)
	a, err := New(FieldsFromUint64(1000, 255), s)
	require.NoError(t, err)
	b, err := Build(FieldsFromUint64(1000, 255), s)
	require.NoError(t, err)
	c, err := New(FieldsFromUint64(1000, 256), s)
	require.NoError(t, err)
	d, err := New(FieldsFromUint64(1000, 255), s, WithoutCipherCompression())
	require.NoError(t, err)

	assert.Equal(t, a.Fingerprint(), b.Fingerprint())
	assert.NotEqual(t, a.Fingerprint(), c.Fingerprint())
	assert.NotEqual(t, a.Fingerprint(), d.Fingerprint())
}

func TestPackerConcurrentUse(t *testing.T) {
	p, err := New(FieldsFromUint64(1000, 1000, 1000), newAdditiveScheme(64))
	require.NoError(t, err)

	var wg sync.WaitGroup
	errs := make(chan error, 8)
	for g := 0; g < 8; g++ {
		wg.Add(1)
		go func(g int) {
			defer wg.Done()
			for i := 0; i < 100; i++ {
				rec := ints(int64(g), int64(i), int64((g*i)%1001))
				ct, err := p.PackAndEncrypt(rec)
				if err != nil {
					errs <- err
					return
				}
				got, err := p.DecryptAndUnpack(ct)
				if err != nil {
					errs <- err
					return
				}
				if len(got) != 1 || !equalInts(got[0], rec) {
					errs <- errors.New("round trip mismatch")
					return
				}
			}
		}(g)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Error(err)
	}
}
