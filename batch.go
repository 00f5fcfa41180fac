// Copyright (c) 2025, Lux Industries Inc
// SPDX-License-Identifier: BSD-3-Clause

package packer

import (
	"context"
	"fmt"
	"math/big"

	"github.com/luxfi/packer/table"
)

// PackTable packs every record of t.
func (p *IntegerPacker) PackTable(ctx context.Context, t table.Table[[]*big.Int], workers int) (table.Table[[]*big.Int], error) {
	return table.MapValues(ctx, t, workers, p.Pack)
}

// PackAndEncryptTable packs and encrypts every record of t.
func (p *IntegerPacker) PackAndEncryptTable(ctx context.Context, t table.Table[[]*big.Int], workers int) (table.Table[CipherTensor], error) {
	return table.MapValues(ctx, t, workers, p.PackAndEncrypt)
}

// CompressTable groups consecutive tensors of t into sealed packages. Each
// package row is keyed by the key of its first record.
func (p *IntegerPacker) CompressTable(t table.Table[CipherTensor]) (table.Table[*CipherPackage], error) {
	pkgs, err := p.Compress(t.Values())
	if err != nil {
		return nil, err
	}
	out := make(table.Table[*CipherPackage], len(pkgs))
	row := 0
	for i, pkg := range pkgs {
		out[i] = table.Row[*CipherPackage]{Key: t[row].Key, Value: pkg}
		row += pkg.Len()
	}
	return out, nil
}

// DecryptAndUnpackTable decrypts and unpacks every row of t. A row holding a
// package expands into one record per packed record, so the result is a flat
// list of records in input order.
func DecryptAndUnpackTable[D Decryptable](ctx context.Context, p *IntegerPacker, t table.Table[D], workers int) ([][]*big.Int, error) {
	unpacked, err := table.MapValues(ctx, t, workers, func(d D) ([][]*big.Int, error) {
		return p.DecryptAndUnpack(d)
	})
	if err != nil {
		return nil, fmt.Errorf("decrypt and unpack: %w", err)
	}

	var out [][]*big.Int
	for _, row := range unpacked {
		out = append(out, row.Value...)
	}
	return out, nil
}
