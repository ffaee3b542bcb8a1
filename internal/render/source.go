package render

import "fmt"

const (
	// SourceFile is the typst document written into each workspace.
	SourceFile = "math.typ"
	// ArtifactFile is the image the engine is asked to produce.
	ArtifactFile = "math.png"
)

const sourceTemplate = `#set page(margin: 0.5cm, width: auto, height: auto, fill: none)
#set text(fill: white, size: 0.7cm)
$ %s $
`

// Source wraps expression in the fixed page and text settings as a display
// math block.
//
// The expression is inserted verbatim. It is untrusted input and typst's own
// parser is the only validation: a malformed expression surfaces as an
// InputError from the engine, never as a rewritten document.
func Source(expression string) string {
	return fmt.Sprintf(sourceTemplate, expression)
}
