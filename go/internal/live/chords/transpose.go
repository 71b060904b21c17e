package chords

import (
	"regexp"
	"strings"
)

// Chromatic scale used for transposition. Output is always spelled with sharps.
var notes = []string{"C", "C#", "D", "D#", "E", "F", "F#", "G", "G#", "A", "A#", "B"}

var flatToSharp = map[string]string{
	"Db": "C#",
	"Eb": "D#",
	"Gb": "F#",
	"Ab": "G#",
	"Bb": "A#",
}

var noteRoot = regexp.MustCompile(`[A-G][#b]?`)

// TransposeNote shifts a single note name by the given number of semitones.
// Flats are normalized to their sharp spelling; unknown names come back unchanged.
func TransposeNote(note string, semitones int) string {
	n := note
	if sharp, ok := flatToSharp[n]; ok {
		n = sharp
	}

	idx := -1
	for i, candidate := range notes {
		if candidate == n {
			idx = i
			break
		}
	}
	if idx == -1 {
		return note
	}

	next := (idx + semitones) % 12
	if next < 0 {
		next += 12
	}
	return notes[next]
}

// Transpose shifts every note root inside a chord symbol, so "Am7/G" +2 becomes "Bm7/A".
func Transpose(chord string, semitones int) string {
	if semitones == 0 || chord == "" {
		return chord
	}
	return noteRoot.ReplaceAllStringFunc(chord, func(m string) string {
		return TransposeNote(m, semitones)
	})
}

// Split turns a stored chord line ("G | D | Em | C") into its tokens.
func Split(line string) []string {
	if strings.TrimSpace(line) == "" {
		return nil
	}
	parts := strings.Split(line, "|")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// Join is the inverse of Split.
func Join(tokens []string) string {
	return strings.Join(tokens, " | ")
}

// TransposeAll returns a transposed copy of a chord list.
func TransposeAll(tokens []string, semitones int) []string {
	out := make([]string, len(tokens))
	for i, t := range tokens {
		out[i] = Transpose(t, semitones)
	}
	return out
}
