// Copyright (c) 2025, Lux Industries Inc
// SPDX-License-Identifier: BSD-3-Clause

package packer

import (
	"fmt"
	"math/big"
)

// CipherTensor holds the ciphertexts of one packed record, one per slot, in
// slot order.
type CipherTensor []Ciphertext

// Decryptable is anything that decrypts to per-record slot values: a single
// CipherTensor or a CipherPackage of several records.
type Decryptable interface {
	DecryptSlots(s Scheme) ([][]*big.Int, error)
}

var (
	_ Decryptable = CipherTensor(nil)
	_ Decryptable = (*CipherPackage)(nil)
)

// DecryptSlots decrypts every slot ciphertext of the tensor.
func (t CipherTensor) DecryptSlots(s Scheme) ([][]*big.Int, error) {
	slots := make([]*big.Int, len(t))
	for i, ct := range t {
		v, err := s.Decrypt(ct)
		if err != nil {
			return nil, fmt.Errorf("decrypt slot %d: %w", i, err)
		}
		slots[i] = v
	}
	return [][]*big.Int{slots}, nil
}

// CipherPackage merges the last-slot ciphertexts of up to MergeCount records
// into one ciphertext. Non-last slots are carried unchanged.
//
// A package is built by one goroutine: Add tensors, Seal, then ship it. It is
// not safe for concurrent mutation.
type CipherPackage struct {
	plan   CompressionPlan
	slots  int
	heads  [][]Ciphertext
	tails  []Ciphertext
	merged Ciphertext
	sealed bool
}

// NewCipherPackage creates an empty package for plan.
func NewCipherPackage(plan CompressionPlan) *CipherPackage {
	if plan.MergeCount < 1 {
		plan = NoCompression
	}
	return &CipherPackage{plan: plan}
}

// Plan returns the compression plan the package was created with.
func (p *CipherPackage) Plan() CompressionPlan { return p.plan }

// Len returns the number of records in the package.
func (p *CipherPackage) Len() int { return len(p.tails) }

// Cap returns the maximum number of records the package accepts.
func (p *CipherPackage) Cap() int { return p.plan.MergeCount }

// Full reports whether no more records can be added.
func (p *CipherPackage) Full() bool { return p.Len() >= p.Cap() }

// Sealed reports whether the last-slot ciphertexts have been merged.
func (p *CipherPackage) Sealed() bool { return p.sealed }

// SlotCount returns the number of slots per record, 0 for an empty package.
func (p *CipherPackage) SlotCount() int { return p.slots }

// CiphertextCount returns how many ciphertexts the package currently holds.
func (p *CipherPackage) CiphertextCount() int {
	n := p.Len()
	if n == 0 {
		return 0
	}
	if p.sealed {
		return n*(p.slots-1) + 1
	}
	return n * p.slots
}

// Add appends one record's tensor.
func (p *CipherPackage) Add(t CipherTensor) error {
	switch {
	case p.sealed:
		return ErrPackageSealed
	case len(t) == 0:
		return fmt.Errorf("%w: empty cipher tensor", ErrSlotCount)
	case p.Full():
		return fmt.Errorf("%w: capacity %d", ErrPackageFull, p.Cap())
	case p.Len() > 0 && len(t) != p.slots:
		return fmt.Errorf("%w: got %d slots, package holds %d", ErrSlotCount, len(t), p.slots)
	}

	p.slots = len(t)
	p.heads = append(p.heads, append([]Ciphertext(nil), t[:len(t)-1]...))
	p.tails = append(p.tails, t[len(t)-1])
	return nil
}

// Seal merges the held last-slot ciphertexts into one ciphertext equal to
// Enc(sum_i p_i * 2^(PaddingBits*i)), record 0 in the lowest bits. It uses
// only the scheme's homomorphic add and scalar multiply; nothing is
// decrypted.
func (p *CipherPackage) Seal(s Scheme) error {
	if p.sealed {
		return nil
	}
	if p.Len() == 0 {
		return ErrPackageEmpty
	}
	if p.Len() == 1 {
		p.merged = p.tails[0]
		p.sealed = true
		return nil
	}

	adder, okAdd := s.(Adder)
	mul, okMul := s.(ScalarMultiplier)
	if !okAdd || !okMul {
		return fmt.Errorf("%w: %s cannot merge ciphertexts", ErrUnsupportedScheme, s.Name())
	}

	shift := new(big.Int).Lsh(big.NewInt(1), uint(p.plan.PaddingBits))

	// Horner from the highest record down keeps every scalar at 2^PaddingBits.
	acc := p.tails[len(p.tails)-1]
	for i := len(p.tails) - 2; i >= 0; i-- {
		shifted, err := mul.ScalarMultiply(acc, shift)
		if err != nil {
			return fmt.Errorf("shift record %d: %w", i+1, err)
		}
		acc, err = adder.Add(shifted, p.tails[i])
		if err != nil {
			return fmt.Errorf("add record %d: %w", i, err)
		}
	}

	p.merged = acc
	p.tails = make([]Ciphertext, len(p.tails))
	p.sealed = true
	return nil
}

// Merged returns the merged last-slot ciphertext of a sealed package.
func (p *CipherPackage) Merged() (Ciphertext, bool) {
	return p.merged, p.sealed
}

// Unpack decrypts the package and splits the merged ciphertext, returning
// each record's slot values in the order records were added.
func (p *CipherPackage) Unpack(s Scheme) ([][]*big.Int, error) {
	n := p.Len()
	if n == 0 {
		return nil, ErrPackageEmpty
	}

	var lasts []*big.Int
	if p.sealed {
		v, err := s.Decrypt(p.merged)
		if err != nil {
			return nil, fmt.Errorf("decrypt merged slot: %w", err)
		}
		if n == 1 {
			lasts = []*big.Int{v}
		} else {
			lasts = SplitPadded(v, p.plan.PaddingBits, n)
		}
	} else {
		lasts = make([]*big.Int, n)
		for i, ct := range p.tails {
			v, err := s.Decrypt(ct)
			if err != nil {
				return nil, fmt.Errorf("decrypt record %d last slot: %w", i, err)
			}
			lasts[i] = v
		}
	}

	out := make([][]*big.Int, n)
	for i, head := range p.heads {
		rec := make([]*big.Int, 0, p.slots)
		for j, ct := range head {
			v, err := s.Decrypt(ct)
			if err != nil {
				return nil, fmt.Errorf("decrypt record %d slot %d: %w", i, j, err)
			}
			rec = append(rec, v)
		}
		out[i] = append(rec, lasts[i])
	}
	return out, nil
}

// Heads returns the carried non-last slot ciphertexts, one row per record.
func (p *CipherPackage) Heads() [][]Ciphertext { return p.heads }

// Tails returns the unmerged last-slot ciphertexts of an unsealed package.
func (p *CipherPackage) Tails() []Ciphertext {
	if p.sealed {
		return nil
	}
	return p.tails
}

// RestoreSealedPackage rebuilds a sealed package received from another party.
// heads holds one row of non-last slot ciphertexts per record.
func RestoreSealedPackage(plan CompressionPlan, heads [][]Ciphertext, merged Ciphertext) (*CipherPackage, error) {
	if err := plan.Validate(); err != nil {
		return nil, err
	}
	if len(heads) == 0 {
		return nil, ErrPackageEmpty
	}
	if len(heads) > plan.MergeCount {
		return nil, fmt.Errorf("%w: %d records, capacity %d", ErrPackageFull, len(heads), plan.MergeCount)
	}
	slots := len(heads[0]) + 1
	for i, h := range heads {
		if len(h)+1 != slots {
			return nil, fmt.Errorf("%w: record %d has %d slots, want %d", ErrSlotCount, i, len(h)+1, slots)
		}
	}
	return &CipherPackage{
		plan:   plan,
		slots:  slots,
		heads:  heads,
		tails:  make([]Ciphertext, len(heads)),
		merged: merged,
		sealed: true,
	}, nil
}

// DecryptSlots implements Decryptable.
func (p *CipherPackage) DecryptSlots(s Scheme) ([][]*big.Int, error) {
	return p.Unpack(s)
}
