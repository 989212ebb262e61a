// Package allele builds the allele-substituted sequence pairs fed to the
// sequence model.
package allele

import (
	"errors"
	"fmt"

	"github.com/inodb/vibe-varseq/internal/variant"
)

var (
	// ErrAlleleMismatch means the reference base at the variant offset is
	// neither the effect nor the non-effect allele.
	ErrAlleleMismatch = errors.New("reference base matches neither allele")

	// ErrLength means a sequence is shorter than the model window after
	// substitution. Sequences are never padded.
	ErrLength = errors.New("sequence shorter than window")
)

// Pair holds the two model inputs for one variant.
type Pair struct {
	VariantID string
	Effect    string // sequence carrying the effect allele
	NonEffect string // sequence carrying the non-effect allele
	RefAllele string // reference base at the variant offset
}

// Builder substitutes alleles into reference windows of a fixed length.
type Builder struct {
	Length int // required sequence length
	Offset int // 0-based index of the variant base within the window
}

// NewBuilder returns a builder for windows of length bases, with the variant
// at index length/2 - 1. That offset matches windows produced by
// genome.Normalize for a single-base request.
func NewBuilder(length int) Builder {
	return Builder{Length: length, Offset: length/2 - 1}
}

// Build returns the pair for rec. Exactly one of the returned sequences is
// the unmodified reference window; the other has the remaining allele
// substituted at the variant offset.
func (b Builder) Build(rec *variant.Record, window string) (Pair, error) {
	if len(window) <= b.Offset {
		return Pair{}, fmt.Errorf("window of %d bases: %w", len(window), ErrLength)
	}
	ref := window[b.Offset : b.Offset+1]

	var effect, nonEffect string
	switch ref {
	case rec.NonEffectAllele:
		nonEffect = window
		effect = b.substitute(window, rec.EffectAllele)
	case rec.EffectAllele:
		effect = window
		nonEffect = b.substitute(window, rec.NonEffectAllele)
	default:
		return Pair{}, fmt.Errorf("%s: reference %s, alleles %s/%s: %w",
			rec.ID, ref, rec.EffectAllele, rec.NonEffectAllele, ErrAlleleMismatch)
	}

	return b.pair(rec.ID, effect, nonEffect, ref)
}

// BuildControl substitutes both alleles of rec into an unrelated reference
// window, regardless of the reference base there. The resulting pair
// measures model response to the same edit at a locus without the variant.
func (b Builder) BuildControl(rec *variant.Record, controlID, window string) (Pair, error) {
	if len(window) <= b.Offset {
		return Pair{}, fmt.Errorf("control window of %d bases: %w", len(window), ErrLength)
	}
	ref := window[b.Offset : b.Offset+1]

	return b.pair(controlID,
		b.substitute(window, rec.EffectAllele),
		b.substitute(window, rec.NonEffectAllele),
		ref)
}

func (b Builder) pair(id, effect, nonEffect, ref string) (Pair, error) {
	var err error
	if effect, err = b.reconcile(effect); err != nil {
		return Pair{}, fmt.Errorf("%s effect sequence: %w", id, err)
	}
	if nonEffect, err = b.reconcile(nonEffect); err != nil {
		return Pair{}, fmt.Errorf("%s non-effect sequence: %w", id, err)
	}
	return Pair{VariantID: id, Effect: effect, NonEffect: nonEffect, RefAllele: ref}, nil
}

func (b Builder) substitute(window, allele string) string {
	return window[:b.Offset] + allele + window[b.Offset+1:]
}

// reconcile trims s symmetrically to Length. Longer sequences (insertions)
// lose (len-Length)/2 bases from the start and the rest from the end.
func (b Builder) reconcile(s string) (string, error) {
	if len(s) < b.Length {
		return "", fmt.Errorf("%d < %d bases: %w", len(s), b.Length, ErrLength)
	}
	if len(s) > b.Length {
		start := (len(s) - b.Length) / 2
		s = s[start : start+b.Length]
	}
	return s, nil
}
