package visualizer

// Options configures the visualization output.
type Options struct {
	// ShowGuards labels guarded transitions with the guard description
	ShowGuards bool

	// ShowReentry draws reentrant rules as self-loops
	ShowReentry bool

	// Direction controls diagram flow: "TB" (top-bottom) or "LR" (left-right)
	Direction string

	// HighlightPath highlights states, by name, through the diagram
	HighlightPath []string

	// Fenced wraps Mermaid output in a ```mermaid code fence
	Fenced bool
}

// DefaultOptions returns sensible defaults for visualization.
func DefaultOptions() Options {
	return Options{
		ShowGuards:  true,
		ShowReentry: true,
		Direction:   "LR",
	}
}

// WithShowGuards enables/disables guard labels.
func (o Options) WithShowGuards(show bool) Options {
	o.ShowGuards = show

	return o
}

// WithShowReentry enables/disables self-loops for reentrant rules.
func (o Options) WithShowReentry(show bool) Options {
	o.ShowReentry = show

	return o
}

// WithDirection sets the diagram direction.
func (o Options) WithDirection(direction string) Options {
	o.Direction = direction

	return o
}

// WithHighlightPath sets states to highlight.
func (o Options) WithHighlightPath(path []string) Options {
	o.HighlightPath = path

	return o
}

// WithFenced enables/disables the Markdown code fence around Mermaid output.
func (o Options) WithFenced(fenced bool) Options {
	o.Fenced = fenced

	return o
}
