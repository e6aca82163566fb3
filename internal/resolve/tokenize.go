package resolve

import "strings"

// token is one piece of a tokenized template string: either literal
// text or a `${...}` placeholder (with Path holding the stripped inner
// expression).
type token struct {
	literal bool
	text    string // literal text, with `$$` unescaped to `$`
	path    string // trimmed inner expression, when !literal
}

// tokenize splits s into literal/placeholder tokens.
//
// The source engine does this with a regex using lookahead/lookbehind
// (`(?=(?<!\$)\$\{)|(?<=})`) that Go's RE2 engine cannot express, so
// this is a hand-scanned equivalent: a `$` followed by `$` is an
// escaped literal dollar; a `$` followed by `{` opens a placeholder
// that runs to its matching `}`.
func tokenize(s string) []token {
	var out []token
	var lit strings.Builder
	flushLit := func() {
		if lit.Len() > 0 {
			out = append(out, token{literal: true, text: lit.String()})
			lit.Reset()
		}
	}

	i := 0
	for i < len(s) {
		if s[i] == '$' && i+1 < len(s) && s[i+1] == '$' {
			lit.WriteByte('$')
			i += 2
			continue
		}
		if s[i] == '$' && i+1 < len(s) && s[i+1] == '{' {
			end := strings.IndexByte(s[i+2:], '}')
			if end < 0 {
				// unterminated placeholder: treat the rest as literal
				lit.WriteString(s[i:])
				i = len(s)
				break
			}
			flushLit()
			inner := strings.TrimSpace(s[i+2 : i+2+end])
			out = append(out, token{literal: false, path: inner})
			i = i + 2 + end + 1
			continue
		}
		lit.WriteByte(s[i])
		i++
	}
	flushLit()
	return out
}

// hasPlaceholder reports whether s contains at least one unescaped
// `${...}` token, used to short-circuit values with nothing to resolve.
func hasPlaceholder(s string) bool {
	for _, t := range tokenize(s) {
		if !t.literal {
			return true
		}
	}
	return false
}
