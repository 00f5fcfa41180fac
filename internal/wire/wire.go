// Package wire encodes record batches, cipher tensors and sealed cipher
// packages as JSON envelopes for storage and transfer between parties.
//
// Ciphertexts are serialized by the scheme's CiphertextCodec. Envelopes
// carrying ciphertexts name the scheme and the packer fingerprint; decoding
// refuses an envelope written under a different scheme or plan.
package wire

import (
	"encoding/json"
	"errors"
	"fmt"
	"math/big"

	"github.com/luxfi/packer"
)

// Version is the envelope format version.
const Version = 1

// Envelope kinds.
const (
	KindRecords  = "records"
	KindTensors  = "tensors"
	KindPackages = "packages"
)

// Common errors.
var (
	ErrVersion          = errors.New("wire: unsupported envelope version")
	ErrKind             = errors.New("wire: unexpected envelope kind")
	ErrSchemeMismatch   = errors.New("wire: scheme mismatch")
	ErrFingerprint      = errors.New("wire: packer fingerprint mismatch")
	ErrNoCodec          = errors.New("wire: scheme cannot serialize ciphertexts")
	ErrUnsealedPackage  = errors.New("wire: package is not sealed")
	ErrMalformedPackage = errors.New("wire: malformed package")
)

// Envelope is the JSON document written to storage.
type Envelope struct {
	Version     int            `json:"version"`
	Kind        string         `json:"kind"`
	Scheme      string         `json:"scheme,omitempty"`
	Fingerprint uint64         `json:"fingerprint,string,omitempty"`
	Records     [][]*big.Int   `json:"records,omitempty"`
	Tensors     [][][]byte     `json:"tensors,omitempty"`
	Packages    []PackageBlock `json:"packages,omitempty"`
}

// PackageBlock is one sealed cipher package.
type PackageBlock struct {
	Plan   packer.CompressionPlan `json:"plan"`
	Heads  [][][]byte             `json:"heads"`
	Merged []byte                 `json:"merged"`
}

// EncodeRecords encodes plaintext records.
func EncodeRecords(records [][]*big.Int) ([]byte, error) {
	data, err := json.Marshal(Envelope{Version: Version, Kind: KindRecords, Records: records})
	if err != nil {
		return nil, fmt.Errorf("marshal records: %w", err)
	}
	return data, nil
}

// DecodeRecords decodes plaintext records.
func DecodeRecords(data []byte) ([][]*big.Int, error) {
	env, err := decode(data, KindRecords)
	if err != nil {
		return nil, err
	}
	for i, rec := range env.Records {
		for j, v := range rec {
			if v == nil {
				return nil, fmt.Errorf("record %d field %d: missing value", i, j)
			}
		}
	}
	return env.Records, nil
}

// EncodeTensors encodes cipher tensors produced by p.
func EncodeTensors(p *packer.IntegerPacker, tensors []packer.CipherTensor) ([]byte, error) {
	codec, err := codecOf(p)
	if err != nil {
		return nil, err
	}
	env := header(p, KindTensors)
	env.Tensors = make([][][]byte, len(tensors))
	for i, t := range tensors {
		if env.Tensors[i], err = marshalAll(codec, t); err != nil {
			return nil, fmt.Errorf("tensor %d: %w", i, err)
		}
	}
	return marshal(env)
}

// DecodeTensors decodes cipher tensors for p.
func DecodeTensors(p *packer.IntegerPacker, data []byte) ([]packer.CipherTensor, error) {
	env, err := decode(data, KindTensors)
	if err != nil {
		return nil, err
	}
	codec, err := check(p, env)
	if err != nil {
		return nil, err
	}
	out := make([]packer.CipherTensor, len(env.Tensors))
	for i, raw := range env.Tensors {
		cts, err := unmarshalAll(codec, raw)
		if err != nil {
			return nil, fmt.Errorf("tensor %d: %w", i, err)
		}
		out[i] = cts
	}
	return out, nil
}

// EncodePackages encodes sealed cipher packages produced by p.
func EncodePackages(p *packer.IntegerPacker, pkgs []*packer.CipherPackage) ([]byte, error) {
	codec, err := codecOf(p)
	if err != nil {
		return nil, err
	}
	env := header(p, KindPackages)
	env.Packages = make([]PackageBlock, len(pkgs))
	for i, pkg := range pkgs {
		merged, ok := pkg.Merged()
		if !ok {
			return nil, fmt.Errorf("package %d: %w", i, ErrUnsealedPackage)
		}
		block := PackageBlock{Plan: pkg.Plan(), Heads: make([][][]byte, pkg.Len())}
		for j, head := range pkg.Heads() {
			if block.Heads[j], err = marshalAll(codec, head); err != nil {
				return nil, fmt.Errorf("package %d record %d: %w", i, j, err)
			}
		}
		if block.Merged, err = codec.MarshalCiphertext(merged); err != nil {
			return nil, fmt.Errorf("package %d merged slot: %w", i, err)
		}
		env.Packages[i] = block
	}
	return marshal(env)
}

// DecodePackages decodes sealed cipher packages for p.
func DecodePackages(p *packer.IntegerPacker, data []byte) ([]*packer.CipherPackage, error) {
	env, err := decode(data, KindPackages)
	if err != nil {
		return nil, err
	}
	codec, err := check(p, env)
	if err != nil {
		return nil, err
	}
	return restorePackages(codec, env.Packages)
}

// DecodeDecryptables decodes either a tensor or a package envelope into
// items ready for IntegerPacker.DecryptAndUnpack.
func DecodeDecryptables(p *packer.IntegerPacker, data []byte) ([]packer.Decryptable, error) {
	env, err := decode(data, "")
	if err != nil {
		return nil, err
	}
	codec, err := check(p, env)
	if err != nil {
		return nil, err
	}

	switch env.Kind {
	case KindTensors:
		out := make([]packer.Decryptable, len(env.Tensors))
		for i, raw := range env.Tensors {
			cts, err := unmarshalAll(codec, raw)
			if err != nil {
				return nil, fmt.Errorf("tensor %d: %w", i, err)
			}
			out[i] = packer.CipherTensor(cts)
		}
		return out, nil
	case KindPackages:
		pkgs, err := restorePackages(codec, env.Packages)
		if err != nil {
			return nil, err
		}
		out := make([]packer.Decryptable, len(pkgs))
		for i, pkg := range pkgs {
			out[i] = pkg
		}
		return out, nil
	default:
		return nil, fmt.Errorf("%w: %q holds no ciphertexts", ErrKind, env.Kind)
	}
}

func restorePackages(codec packer.CiphertextCodec, blocks []PackageBlock) ([]*packer.CipherPackage, error) {
	out := make([]*packer.CipherPackage, len(blocks))
	for i, block := range blocks {
		if block.Merged == nil {
			return nil, fmt.Errorf("package %d: %w: no merged slot", i, ErrMalformedPackage)
		}
		if err := block.Plan.Validate(); err != nil {
			return nil, fmt.Errorf("package %d: %w: %w", i, ErrMalformedPackage, err)
		}
		heads := make([][]packer.Ciphertext, len(block.Heads))
		for j, raw := range block.Heads {
			cts, err := unmarshalAll(codec, raw)
			if err != nil {
				return nil, fmt.Errorf("package %d record %d: %w", i, j, err)
			}
			heads[j] = cts
		}
		merged, err := codec.UnmarshalCiphertext(block.Merged)
		if err != nil {
			return nil, fmt.Errorf("package %d merged slot: %w", i, err)
		}
		pkg, err := packer.RestoreSealedPackage(block.Plan, heads, merged)
		if err != nil {
			return nil, fmt.Errorf("package %d: %w", i, err)
		}
		out[i] = pkg
	}
	return out, nil
}

func header(p *packer.IntegerPacker, kind string) Envelope {
	return Envelope{
		Version:     Version,
		Kind:        kind,
		Scheme:      p.Scheme().Name(),
		Fingerprint: p.Fingerprint(),
	}
}

func codecOf(p *packer.IntegerPacker) (packer.CiphertextCodec, error) {
	codec, ok := p.Scheme().(packer.CiphertextCodec)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNoCodec, p.Scheme().Name())
	}
	return codec, nil
}

func check(p *packer.IntegerPacker, env *Envelope) (packer.CiphertextCodec, error) {
	if name := p.Scheme().Name(); env.Scheme != name {
		return nil, fmt.Errorf("%w: envelope %q, packer %q", ErrSchemeMismatch, env.Scheme, name)
	}
	if fp := p.Fingerprint(); env.Fingerprint != fp {
		return nil, fmt.Errorf("%w: envelope %016x, packer %016x", ErrFingerprint, env.Fingerprint, fp)
	}
	return codecOf(p)
}

func decode(data []byte, kind string) (*Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("unmarshal envelope: %w", err)
	}
	if env.Version != Version {
		return nil, fmt.Errorf("%w: %d", ErrVersion, env.Version)
	}
	if kind != "" && env.Kind != kind {
		return nil, fmt.Errorf("%w: got %q, want %q", ErrKind, env.Kind, kind)
	}
	return &env, nil
}

func marshal(env Envelope) ([]byte, error) {
	data, err := json.Marshal(env)
	if err != nil {
		return nil, fmt.Errorf("marshal %s envelope: %w", env.Kind, err)
	}
	return data, nil
}

func marshalAll(codec packer.CiphertextCodec, cts []packer.Ciphertext) ([][]byte, error) {
	out := make([][]byte, len(cts))
	for i, ct := range cts {
		b, err := codec.MarshalCiphertext(ct)
		if err != nil {
			return nil, fmt.Errorf("slot %d: %w", i, err)
		}
		out[i] = b
	}
	return out, nil
}

func unmarshalAll(codec packer.CiphertextCodec, raw [][]byte) ([]packer.Ciphertext, error) {
	out := make([]packer.Ciphertext, len(raw))
	for i, b := range raw {
		ct, err := codec.UnmarshalCiphertext(b)
		if err != nil {
			return nil, fmt.Errorf("slot %d: %w", i, err)
		}
		out[i] = ct
	}
	return out, nil
}
