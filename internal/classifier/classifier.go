package classifier

import (
	"context"
	"encoding/json"

	"github.com/google/uuid"

	"github.com/yungbote/progressledger/internal/domain/ledger"
	"github.com/yungbote/progressledger/internal/normalization"
)

// MaxBatch bounds how many candidates one Classify call carries.
const MaxBatch = 15

type Candidate struct {
	NotificationID  uuid.UUID
	RawText         string
	SurroundingText string
	ChapterOrder    int
	ChapterTitle    string
}

type Character struct {
	ID      uuid.UUID
	Name    string
	Aliases []string
}

type Request struct {
	Candidates []Candidate
	Characters []Character
	// KnownContext is free text such as the chapter's POV hint.
	KnownContext string
}

// Verdict is the classifier's answer for one candidate. Type is the raw type
// name, which may be a legacy alias; Fields uses whatever keys the classifier
// emitted.
type Verdict struct {
	NotificationID uuid.UUID
	CharacterID    *uuid.UUID
	Type           string
	Fields         json.RawMessage
	Confidence     float64
	Rationale      string
}

type Classifier interface {
	Classify(ctx context.Context, req Request) ([]Verdict, error)
}

// Complete returns one verdict per candidate in request order. Candidates the
// classifier skipped come back as type other with zero confidence.
func Complete(req Request, got []Verdict) []Verdict {
	byID := make(map[uuid.UUID]Verdict, len(got))
	for _, v := range got {
		if _, dup := byID[v.NotificationID]; !dup {
			byID[v.NotificationID] = v
		}
	}
	out := make([]Verdict, 0, len(req.Candidates))
	for _, c := range req.Candidates {
		v, ok := byID[c.NotificationID]
		if !ok {
			v = Verdict{
				NotificationID: c.NotificationID,
				Type:           string(ledger.TypeOther),
				Rationale:      "no attribution returned",
			}
		}
		out = append(out, clampVerdict(v))
	}
	return out
}

func clampVerdict(v Verdict) Verdict {
	switch {
	case v.Confidence < 0:
		v.Confidence = 0
	case v.Confidence > 1:
		v.Confidence = 1
	}
	if v.Type == "" {
		v.Type = string(ledger.TypeOther)
	}
	return v
}

// Batches splits candidates into groups of at most size.
func Batches(cands []Candidate, size int) [][]Candidate {
	if size <= 0 || size > MaxBatch {
		size = MaxBatch
	}
	var out [][]Candidate
	for i := 0; i < len(cands); i += size {
		end := i + size
		if end > len(cands) {
			end = len(cands)
		}
		out = append(out, cands[i:end])
	}
	return out
}

// nameIndex maps normalized names and aliases to character ids.
type nameIndex map[string]uuid.UUID

func indexCharacters(chars []Character) nameIndex {
	idx := nameIndex{}
	for _, c := range chars {
		for _, n := range append([]string{c.Name}, c.Aliases...) {
			if key := normalization.NormalizeName(n); key != "" {
				if _, taken := idx[key]; !taken {
					idx[key] = c.ID
				}
			}
		}
	}
	return idx
}

func (idx nameIndex) lookup(name string) *uuid.UUID {
	id, ok := idx[normalization.NormalizeName(name)]
	if !ok {
		return nil
	}
	return &id
}
