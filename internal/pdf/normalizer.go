package pdf

import "regexp"

// unitTokenArtifacts catches the stray angle-bracket sequences the PDF
// rasterizer occasionally emits around the "UN" unit marker, ranked from
// the most specific garbling down to the bare marker itself.
var unitTokenArtifacts = []*regexp.Regexp{
	regexp.MustCompile(`</<\s*UN`),
	regexp.MustCompile(`<</\s*UN`),
	regexp.MustCompile(`/<<UN`),
	regexp.MustCompile(`</UN`),
	regexp.MustCompile(`<UN`),
	regexp.MustCompile(`<[/<]*\s*UN`),
}

var tripleSlash = regexp.MustCompile(`/\s*/\s*/`)
var horizontalWhitespace = regexp.MustCompile(`[ \t]+`)

// Normalize repairs character-replacement artifacts introduced by PDF
// layout engines and collapses whitespace while preserving line
// boundaries. Pure function: same input always yields the same output.
func Normalize(text string) string {
	for _, pattern := range unitTokenArtifacts {
		text = pattern.ReplaceAllString(text, " UN ")
	}
	text = tripleSlash.ReplaceAllString(text, " / ")
	text = horizontalWhitespace.ReplaceAllString(text, " ")
	return text
}
