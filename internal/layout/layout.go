// Package layout turns generated text into the fixed character grid of a
// split-flap board. The board is 6 rows of 22 characters with an
// uppercase-only charset; layout ends at the grid - the transport protocol
// to the physical device lives elsewhere.
package layout

import (
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// Board dimensions.
const (
	Rows = 6
	Cols = 22
)

// Grid is a rendered board: exactly Rows lines of exactly Cols characters.
type Grid [Rows]string

// String joins the grid rows with newlines. Used for golden files and the
// preview command.
func (g Grid) String() string {
	return strings.Join(g[:], "\n")
}

// foldAccents strips combining marks so accented letters degrade to their
// base letter instead of vanishing from the board.
var foldAccents = transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)

// Render lays text out on the board: accents folded, uppercased, word
// wrapped to Cols, centered horizontally per line and vertically as a
// block. Text beyond Rows lines is truncated.
func Render(text string) Grid {
	lines := wrap(normalize(text))
	if len(lines) > Rows {
		lines = lines[:Rows]
	}

	var g Grid
	blank := strings.Repeat(" ", Cols)
	for i := range g {
		g[i] = blank
	}

	top := (Rows - len(lines)) / 2
	for i, line := range lines {
		g[top+i] = center(line)
	}
	return g
}

// normalize folds accents, uppercases, and drops characters the board
// cannot display.
func normalize(text string) string {
	folded, _, err := transform.String(foldAccents, text)
	if err != nil {
		// Fold failures leave the input as-is; unsupported runes are
		// dropped below anyway.
		folded = text
	}

	var b strings.Builder
	for _, r := range strings.ToUpper(folded) {
		switch {
		case r >= ' ' && r <= '~':
			b.WriteRune(r)
		case unicode.IsSpace(r):
			b.WriteRune(' ')
		}
	}
	return b.String()
}

// wrap splits text into word-wrapped lines of at most Cols characters.
// Words longer than a full row are hard-split.
func wrap(text string) []string {
	var lines []string
	var cur strings.Builder

	flush := func() {
		if cur.Len() > 0 {
			lines = append(lines, cur.String())
			cur.Reset()
		}
	}

	for _, word := range strings.Fields(text) {
		for len(word) > Cols {
			flush()
			lines = append(lines, word[:Cols])
			word = word[Cols:]
		}
		switch {
		case cur.Len() == 0:
			cur.WriteString(word)
		case cur.Len()+1+len(word) <= Cols:
			cur.WriteByte(' ')
			cur.WriteString(word)
		default:
			flush()
			cur.WriteString(word)
		}
	}
	flush()
	return lines
}

// center pads a line to exactly Cols characters with the text centered.
func center(line string) string {
	if len(line) >= Cols {
		return line[:Cols]
	}
	left := (Cols - len(line)) / 2
	right := Cols - len(line) - left
	return strings.Repeat(" ", left) + line + strings.Repeat(" ", right)
}
