// Package dataset turns stored conversations into prompt/completion training records.
package dataset

import (
	"fmt"
	"strings"

	"github.com/Sandro385/expert-tune/internal/model"
)

// Pairing selects which turns form a question/answer pair.
type Pairing string

const (
	// PairConsecutive pairs turns (0,1), (2,3), ...
	PairConsecutive Pairing = "consecutive"
	// PairOffset skips the first turn and pairs (1,2), (3,4), ...
	PairOffset Pairing = "offset"
)

// ParsePairing validates a configured pairing name. Empty selects PairConsecutive.
func ParsePairing(s string) (Pairing, error) {
	switch Pairing(strings.ToLower(strings.TrimSpace(s))) {
	case "", PairConsecutive:
		return PairConsecutive, nil
	case PairOffset:
		return PairOffset, nil
	default:
		return "", fmt.Errorf("unknown dataset pairing %q", s)
	}
}

// Builder holds the fixed parts of the transform. It has no other state.
type Builder struct {
	// Instruction is prepended to each question; every "{domain}" is replaced.
	Instruction string
	Pairing     Pairing
}

// NewBuilder creates a Builder.
func NewBuilder(instruction string, pairing Pairing) Builder {
	return Builder{Instruction: instruction, Pairing: pairing}
}

// Prompt renders the prompt for one question.
func (b Builder) Prompt(domain, question string) string {
	return strings.ReplaceAll(b.Instruction, "{domain}", domain) + question
}

// Build walks non-overlapping pairs and emits one record per pair. A trailing
// unpaired turn is dropped and an empty conversation yields an empty result.
func (b Builder) Build(conversation []model.Turn, domain string) []model.TrainingRecord {
	start := 0
	if b.Pairing == PairOffset {
		start = 1
	}

	records := make([]model.TrainingRecord, 0, len(conversation)/2)
	for i := start; i+1 < len(conversation); i += 2 {
		records = append(records, model.TrainingRecord{
			Prompt:     b.Prompt(domain, conversation[i].Content),
			Completion: conversation[i+1].Content,
		})
	}
	return records
}
