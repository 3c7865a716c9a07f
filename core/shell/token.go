package shell

import "unicode"

// Kind tags a lexical token.
type Kind int

const (
	// Word is literal text, either a bareword run or the body of a
	// quoted segment.
	Word Kind = iota
	// Pipe is the `|` operator.
	Pipe
	// RedirectIn is the `<` operator.
	RedirectIn
	// RedirectOut is the `>` operator.
	RedirectOut
	// RedirectAppend is the `>>` operator.
	RedirectAppend
	// Background is the `&` operator.
	Background
)

// Token is a kind and a string value. During tokenization the input
// line is converted into a series of tokens.
type Token struct {
	Kind Kind
	Text string
}

func isOperator(r rune) bool {
	switch r {
	case '|', '<', '>', '&':
		return true
	}
	return false
}

func isQuote(r rune) bool {
	return r == '"' || r == '\''
}

// Tokenize splits a command line into words and operators. It never
// fails; malformed input degrades to literal text.
//
// Operators are only recognized outside quotes. A quoted segment runs
// to the matching quote, or to the end of the line if the quote is
// unterminated, and always yields a Word even when empty. Adjacent
// quoted and bareword fragments stay separate tokens.
func Tokenize(line string) []Token {
	var tokens []Token

	runes := []rune(line)
	for i := 0; i < len(runes); {
		r := runes[i]
		switch {
		case unicode.IsSpace(r):
			i++

		// `>>` needs one rune of lookahead before the single-rune
		// operators claim the first `>`.
		case r == '>' && i+1 < len(runes) && runes[i+1] == '>':
			tokens = append(tokens, Token{Kind: RedirectAppend, Text: ">>"})
			i += 2

		case isOperator(r):
			var kind Kind
			switch r {
			case '|':
				kind = Pipe
			case '<':
				kind = RedirectIn
			case '>':
				kind = RedirectOut
			case '&':
				kind = Background
			}
			tokens = append(tokens, Token{Kind: kind, Text: string(r)})
			i++

		case isQuote(r):
			quote := r
			i++
			start := i
			for i < len(runes) && runes[i] != quote {
				i++
			}
			tokens = append(tokens, Token{Kind: Word, Text: string(runes[start:i])})
			if i < len(runes) {
				i++ // skip the closing quote
			}

		default:
			start := i
			for i < len(runes) && !unicode.IsSpace(runes[i]) && !isOperator(runes[i]) && !isQuote(runes[i]) {
				i++
			}
			tokens = append(tokens, Token{Kind: Word, Text: string(runes[start:i])})
		}
	}

	return tokens
}
