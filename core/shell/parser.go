package shell

import "strings"

// Command is one stage of a pipeline.
type Command struct {
	// Argv holds the argument words, the command name first.
	Argv []string
	// InPath redirects stdin, meaningful on the first stage only.
	InPath string
	// OutPath redirects stdout, meaningful on the last stage only.
	OutPath string
	// Append opens OutPath in append mode instead of truncating.
	Append bool
	// Background marks the pipeline as a background job, meaningful
	// on the last stage only.
	Background bool
}

// empty reports whether the command carries nothing executable. Such
// commands are dropped rather than rejected so that trailing or doubled
// separators don't turn into errors.
func (c *Command) empty() bool {
	return len(c.Argv) == 0 && c.InPath == "" && c.OutPath == "" && !c.Background
}

// Pipeline is an ordered chain of commands, each stage's stdout feeding
// the next stage's stdin.
type Pipeline []*Command

// String rejoins the argument words of every stage for display.
// Redirection paths and operators are not included.
func (p Pipeline) String() string {
	var words []string
	for _, c := range p {
		words = append(words, c.Argv...)
	}
	return strings.Join(words, " ")
}

// Background reports whether the pipeline should run as a background
// job, which is decided by its final stage.
func (p Pipeline) Background() bool {
	return len(p) > 0 && p[len(p)-1].Background
}

// Parse assembles tokens into a pipeline. It is a single pass over the
// token stream with one command accumulator and never fails:
//
//   - an empty stage between two pipes is absorbed, not an error
//   - a redirection operator with nothing after it is ignored
//   - a line of only operators parses to zero commands
func Parse(tokens []Token) Pipeline {
	var pipeline Pipeline
	cur := &Command{}

	for i := 0; i < len(tokens); {
		t := tokens[i]
		switch t.Kind {
		case Pipe:
			if !cur.empty() {
				pipeline = append(pipeline, cur)
			}
			cur = &Command{}
			i++

		case RedirectIn:
			if i+1 < len(tokens) {
				cur.InPath = tokens[i+1].Text
			}
			i += 2

		case RedirectOut:
			if i+1 < len(tokens) {
				cur.OutPath = tokens[i+1].Text
				cur.Append = false
			}
			i += 2

		case RedirectAppend:
			if i+1 < len(tokens) {
				cur.OutPath = tokens[i+1].Text
				cur.Append = true
			}
			i += 2

		case Background:
			cur.Background = true
			i++

		default:
			cur.Argv = append(cur.Argv, t.Text)
			i++
		}
	}

	if !cur.empty() {
		pipeline = append(pipeline, cur)
	}
	return pipeline
}

// ParseLine tokenizes and parses a line in one step.
func ParseLine(line string) Pipeline {
	return Parse(Tokenize(line))
}
