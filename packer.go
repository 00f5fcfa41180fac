// Package packer packs bounded non-negative integers into as few large
// integers as a homomorphic encryption scheme can hold, so fewer values need
// to be encrypted, and restores them after decryption.
//
// Fields are assigned to slots by a forward-only first-fit allocator; each
// slot is one plaintext integer with its fields concatenated most
// significant first. For schemes with homomorphic addition and scalar
// multiplication, the last slot of several records can further be merged
// into a single ciphertext (see CipherPackage).
//
//	p, err := packer.New(packer.FieldsFromUint64(1000, 1000, 1000), scheme)
//	tensor, err := p.PackAndEncrypt(record)
//	records, err := p.DecryptAndUnpack(tensor)
//
// Copyright (c) 2025, Lux Industries Inc
// SPDX-License-Identifier: BSD-3-Clause
package packer

import (
	"encoding/binary"
	"fmt"
	"math/big"

	"github.com/cespare/xxhash/v2"
	"go.uber.org/zap"
)

// FieldSpec declares one field of a record: its position and inclusive upper
// bound.
type FieldSpec struct {
	Index int
	Bound *big.Int
}

// BitWidth returns the number of bits needed to hold Bound. A zero bound still
// takes one bit.
func (f FieldSpec) BitWidth() int {
	if f.Bound == nil || f.Bound.BitLen() == 0 {
		return 1
	}
	return f.Bound.BitLen()
}

// FieldsFromBounds builds field specs indexed in argument order.
func FieldsFromBounds(bounds ...*big.Int) []FieldSpec {
	fields := make([]FieldSpec, len(bounds))
	for i, b := range bounds {
		fields[i] = FieldSpec{Index: i, Bound: new(big.Int).Set(b)}
	}
	return fields
}

// FieldsFromUint64 is FieldsFromBounds for small bounds.
func FieldsFromUint64(bounds ...uint64) []FieldSpec {
	fields := make([]FieldSpec, len(bounds))
	for i, b := range bounds {
		fields[i] = FieldSpec{Index: i, Bound: new(big.Int).SetUint64(b)}
	}
	return fields
}

// Option configures an IntegerPacker.
type Option func(*options)

type options struct {
	logger   *zap.Logger
	compress bool
}

// WithLogger sets the logger used for plan and package diagnostics.
func WithLogger(l *zap.Logger) Option {
	return func(o *options) {
		if l != nil {
			o.logger = l
		}
	}
}

// WithoutCipherCompression forces the degenerate compression plan even when
// the scheme could merge ciphertexts.
func WithoutCipherCompression() Option {
	return func(o *options) { o.compress = false }
}

// IntegerPacker packs records of bounded integers into slot values and back.
// The packing and compression plans are computed once; an IntegerPacker is
// safe for concurrent use.
type IntegerPacker struct {
	fields      []FieldSpec
	scheme      Scheme
	usableBits  int
	plan        Plan
	compression CompressionPlan
	fingerprint uint64
	logger      *zap.Logger
}

// New validates the field specs against the scheme's capacity and derives the
// packing and compression plans.
func New(fields []FieldSpec, scheme Scheme, opts ...Option) (*IntegerPacker, error) {
	o := options{logger: zap.NewNop(), compress: true}
	for _, opt := range opts {
		opt(&o)
	}

	if len(fields) == 0 {
		return nil, fmt.Errorf("%w: no fields", ErrInvalidField)
	}
	usable, err := UsableBits(scheme)
	if err != nil {
		return nil, err
	}

	widths := make([]int, len(fields))
	owned := make([]FieldSpec, len(fields))
	for i, f := range fields {
		if f.Bound != nil && f.Bound.Sign() < 0 {
			return nil, fmt.Errorf("%w: field %d has negative bound %s", ErrInvalidField, f.Index, f.Bound)
		}
		widths[i] = f.BitWidth()
		owned[i] = FieldSpec{Index: f.Index, Bound: new(big.Int)}
		if f.Bound != nil {
			owned[i].Bound.Set(f.Bound)
		}
	}

	plan, err := Allocate(widths, usable)
	if err != nil {
		return nil, err
	}

	compression := NoCompression
	if o.compress {
		compression = Suggest(plan, usable, scheme)
	}

	p := &IntegerPacker{
		fields:      owned,
		scheme:      scheme,
		usableBits:  usable,
		plan:        plan,
		compression: compression,
		logger:      o.logger,
	}
	p.fingerprint = p.computeFingerprint()

	p.logger.Debug("packing plan ready",
		zap.String("scheme", scheme.Name()),
		zap.Int("fields", len(fields)),
		zap.Int("usable_bits", usable),
		zap.Int("slots", len(plan)),
		zap.Stringer("plan", plan),
		zap.Stringer("compression", compression),
	)
	return p, nil
}

// Build is an alias for New.
func Build(fields []FieldSpec, scheme Scheme, opts ...Option) (*IntegerPacker, error) {
	return New(fields, scheme, opts...)
}

// Scheme returns the encryption scheme the packer was built for.
func (p *IntegerPacker) Scheme() Scheme { return p.scheme }

// Fields returns a copy of the field specs.
func (p *IntegerPacker) Fields() []FieldSpec {
	out := make([]FieldSpec, len(p.fields))
	for i, f := range p.fields {
		out[i] = FieldSpec{Index: f.Index, Bound: new(big.Int).Set(f.Bound)}
	}
	return out
}

// UsableBits returns the scheme capacity in bits after the reserved bit.
func (p *IntegerPacker) UsableBits() int { return p.usableBits }

// Plan returns a copy of the packing plan.
func (p *IntegerPacker) Plan() Plan {
	out := make(Plan, len(p.plan))
	for i, s := range p.plan {
		out[i] = append(Slot(nil), s...)
	}
	return out
}

// NumSlots returns the number of slot values per record.
func (p *IntegerPacker) NumSlots() int { return len(p.plan) }

// CompressionPlan returns the plan remote parties need to merge and split
// last-slot ciphertexts.
func (p *IntegerPacker) CompressionPlan() CompressionPlan { return p.compression }

// Fingerprint identifies the packing and compression plans. Parties exchanging
// packed ciphertexts compare fingerprints before merging or unpacking.
func (p *IntegerPacker) Fingerprint() uint64 { return p.fingerprint }

func (p *IntegerPacker) computeFingerprint() uint64 {
	d := xxhash.New()
	d.WriteString(p.scheme.Name())
	var buf [8]byte
	put := func(v int) {
		binary.LittleEndian.PutUint64(buf[:], uint64(v))
		d.Write(buf[:])
	}
	put(p.usableBits)
	for _, s := range p.plan {
		put(len(s))
		for _, w := range s {
			put(w)
		}
	}
	put(p.compression.PaddingBits)
	put(p.compression.MergeCount)
	return d.Sum64()
}

// Pack encodes one record, one value per field in field order, into one
// integer per slot. Values must not exceed their field's bound; this is not
// checked.
func (p *IntegerPacker) Pack(record []*big.Int) ([]*big.Int, error) {
	if len(record) != len(p.fields) {
		return nil, fmt.Errorf("%w: got %d values, want %d", ErrRecordLength, len(record), len(p.fields))
	}
	for i, v := range record {
		if v == nil || v.Sign() < 0 {
			return nil, fmt.Errorf("%w: field %d", ErrNegativeValue, p.fields[i].Index)
		}
	}

	out := make([]*big.Int, len(p.plan))
	start := 0
	for i, slot := range p.plan {
		out[i] = EncodeSlot(record[start:start+len(slot)], slot)
		start += len(slot)
	}
	return out, nil
}

// PackUint64 is Pack for records of machine integers.
func (p *IntegerPacker) PackUint64(record []uint64) ([]*big.Int, error) {
	vals := make([]*big.Int, len(record))
	for i, v := range record {
		vals[i] = new(big.Int).SetUint64(v)
	}
	return p.Pack(vals)
}

// Unpack restores a record from its slot values.
func (p *IntegerPacker) Unpack(slots []*big.Int) ([]*big.Int, error) {
	if len(slots) != len(p.plan) {
		return nil, fmt.Errorf("%w: got %d slots, want %d", ErrSlotCount, len(slots), len(p.plan))
	}
	record := make([]*big.Int, 0, len(p.fields))
	for i, slot := range p.plan {
		if slots[i] == nil {
			return nil, fmt.Errorf("%w: slot %d is nil", ErrSlotCount, i)
		}
		record = append(record, DecodeSlot(slots[i], slot)...)
	}
	return record, nil
}

// UnpackAll unpacks a batch of decrypted slot lists.
func (p *IntegerPacker) UnpackAll(decrypted [][]*big.Int) ([][]*big.Int, error) {
	out := make([][]*big.Int, len(decrypted))
	for i, slots := range decrypted {
		rec, err := p.Unpack(slots)
		if err != nil {
			return nil, fmt.Errorf("record %d: %w", i, err)
		}
		out[i] = rec
	}
	return out, nil
}

// PackAndEncrypt packs a record and encrypts each slot value, returning one
// ciphertext per slot in slot order.
func (p *IntegerPacker) PackAndEncrypt(record []*big.Int) (CipherTensor, error) {
	slots, err := p.Pack(record)
	if err != nil {
		return nil, err
	}
	tensor := make(CipherTensor, len(slots))
	for i, v := range slots {
		ct, err := p.scheme.Encrypt(v)
		if err != nil {
			return nil, fmt.Errorf("encrypt slot %d: %w", i, err)
		}
		tensor[i] = ct
	}
	return tensor, nil
}

// NewPackage returns an empty cipher package using the packer's compression
// plan.
func (p *IntegerPacker) NewPackage() *CipherPackage {
	return NewCipherPackage(p.compression)
}

// Compress groups consecutive tensors into sealed packages of at most
// MergeCount records each.
func (p *IntegerPacker) Compress(tensors []CipherTensor) ([]*CipherPackage, error) {
	var (
		out []*CipherPackage
		cur *CipherPackage
	)
	for i, t := range tensors {
		if len(t) != len(p.plan) {
			return nil, fmt.Errorf("tensor %d: %w: got %d, want %d", i, ErrSlotCount, len(t), len(p.plan))
		}
		if cur == nil || cur.Full() {
			cur = p.NewPackage()
			out = append(out, cur)
		}
		if err := cur.Add(t); err != nil {
			return nil, fmt.Errorf("tensor %d: %w", i, err)
		}
	}
	for i, pkg := range out {
		if err := pkg.Seal(p.scheme); err != nil {
			return nil, fmt.Errorf("seal package %d: %w", i, err)
		}
	}
	if len(out) > 0 {
		p.logger.Debug("compressed cipher tensors",
			zap.Int("records", len(tensors)),
			zap.Int("packages", len(out)),
			zap.Int("ciphertexts_before", len(tensors)*len(p.plan)),
			zap.Int("ciphertexts_after", countCiphertexts(out)),
		)
	}
	return out, nil
}

func countCiphertexts(pkgs []*CipherPackage) int {
	n := 0
	for _, pkg := range pkgs {
		n += pkg.CiphertextCount()
	}
	return n
}

// DecryptAndUnpack decrypts tensors and packages, in any mix, and returns the
// original records in order.
func (p *IntegerPacker) DecryptAndUnpack(items ...Decryptable) ([][]*big.Int, error) {
	var out [][]*big.Int
	for i, item := range items {
		decrypted, err := item.DecryptSlots(p.scheme)
		if err != nil {
			return nil, fmt.Errorf("item %d: %w", i, err)
		}
		records, err := p.UnpackAll(decrypted)
		if err != nil {
			return nil, fmt.Errorf("item %d: %w", i, err)
		}
		out = append(out, records...)
	}
	return out, nil
}
