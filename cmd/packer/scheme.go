package main

import (
	"crypto/rand"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/luxfi/packer"
	"github.com/luxfi/packer/affine"
	"github.com/luxfi/packer/internal/config"
	"github.com/luxfi/packer/lattice"
	"github.com/luxfi/packer/paillier"
)

// buildScheme generates fresh keys for the configured scheme.
func buildScheme(cfg config.SchemeConfig) (packer.Scheme, error) {
	switch cfg.Kind {
	case config.SchemePaillier:
		sk, err := paillier.GenerateKey(rand.Reader, cfg.KeyBits)
		if err != nil {
			return nil, fmt.Errorf("generate paillier key: %w", err)
		}
		return paillier.NewScheme(sk), nil

	case config.SchemeAffine:
		key, err := affine.GenerateKey(rand.Reader, cfg.KeyBits, cfg.Rounds)
		if err != nil {
			return nil, fmt.Errorf("generate affine key: %w", err)
		}
		return affine.NewScheme(key), nil

	case config.SchemeLattice:
		params, err := lattice.NewParametersFromLiteral(cfg.Lattice())
		if err != nil {
			return nil, fmt.Errorf("create lattice parameters: %w", err)
		}
		return lattice.NewScheme(params, lattice.GenSecretKey(params)), nil

	default:
		return nil, fmt.Errorf("%w: %q", packer.ErrUnsupportedScheme, cfg.Kind)
	}
}

// buildPacker creates the packer described by cfg.
func buildPacker(cfg *config.Config, logger *zap.Logger) (*packer.IntegerPacker, error) {
	bounds, err := cfg.FieldBounds()
	if err != nil {
		return nil, err
	}
	if len(bounds) == 0 {
		return nil, errors.New("no fields configured; set fields in the config, PACKER_FIELDS or --fields")
	}

	scheme, err := buildScheme(cfg.Scheme)
	if err != nil {
		return nil, err
	}

	opts := []packer.Option{packer.WithLogger(logger)}
	if !cfg.Compression {
		opts = append(opts, packer.WithoutCipherCompression())
	}
	return packer.New(packer.FieldsFromBounds(bounds...), scheme, opts...)
}
