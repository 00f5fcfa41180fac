// Copyright (c) 2025, Lux Industries Inc
// SPDX-License-Identifier: BSD-3-Clause

package packer

import (
	"errors"
	"fmt"
)

// Error categories. Every error returned by this package wraps exactly one of
// them, so callers can branch with errors.Is without matching on detail.
var (
	// ErrConfiguration is fatal at construction and must not be retried.
	ErrConfiguration = errors.New("packer configuration error")
	// ErrPrecondition is fatal for a single call; fix the input before retrying.
	ErrPrecondition = errors.New("packer precondition violated")
)

// Configuration errors.
var (
	ErrUnsupportedScheme = fmt.Errorf("%w: unsupported encryption scheme", ErrConfiguration)
	ErrFieldTooWide      = fmt.Errorf("%w: field does not fit in scheme capacity", ErrConfiguration)
	ErrInvalidField      = fmt.Errorf("%w: invalid field spec", ErrConfiguration)
)

// Precondition errors.
var (
	ErrRecordLength  = fmt.Errorf("%w: record length does not match field count", ErrPrecondition)
	ErrSlotCount     = fmt.Errorf("%w: slot count does not match packing plan", ErrPrecondition)
	ErrNegativeValue = fmt.Errorf("%w: negative field value", ErrPrecondition)
	ErrPackageFull   = fmt.Errorf("%w: cipher package is full", ErrPrecondition)
	ErrPackageEmpty  = fmt.Errorf("%w: cipher package is empty", ErrPrecondition)
	ErrPackageSealed = fmt.Errorf("%w: cipher package is sealed", ErrPrecondition)
)
