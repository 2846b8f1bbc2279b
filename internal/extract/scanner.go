package extract

import (
	"strings"
)

const (
	ContextBefore    = 150
	ContextAfter     = 150
	MaxBracketLength = 300
)

// Candidate is one '[' occurrence in a chapter. Position is the rune offset
// of the bracket and, with the chapter, identifies the candidate.
type Candidate struct {
	RawText         string
	SurroundingText string
	Position        int
	Index           int
}

// Scan returns a candidate for every '[' in text. A bracket without a ']'
// within MaxBracketLength runes is cut at the first newline or at the cap.
func Scan(text string) []Candidate {
	if strings.TrimSpace(text) == "" {
		return nil
	}
	runes := []rune(text)
	var out []Candidate
	for i, r := range runes {
		if r != '[' {
			continue
		}
		out = append(out, Candidate{
			RawText:         bracketText(runes, i),
			SurroundingText: surrounding(runes, i),
			Position:        i,
			Index:           len(out),
		})
	}
	return out
}

func bracketText(runes []rune, start int) string {
	searchEnd := min(len(runes), start+MaxBracketLength)
	for j := start; j < searchEnd; j++ {
		if runes[j] == ']' {
			return string(runes[start : j+1])
		}
	}
	end := searchEnd
	for j := start; j < searchEnd; j++ {
		if runes[j] == '\n' {
			end = j
			break
		}
	}
	return string(runes[start:end])
}

func surrounding(runes []rune, start int) string {
	from := max(0, start-ContextBefore)
	to := min(len(runes), start+MaxBracketLength+ContextAfter)
	s := strings.Join(strings.Fields(string(runes[from:to])), " ")
	if from > 0 {
		s = "..." + s
	}
	if to < len(runes) {
		s += "..."
	}
	return s
}
