package bundler

import "strings"

// stripComments removes // line comments and /* */ block comments from
// JavaScript source while leaving string, template, and regex-free code
// intact. A small hand scanner is used instead of regexps so comment
// markers inside string literals survive.
func stripComments(source string) string {
	var b strings.Builder

	b.Grow(len(source))

	const (
		stateCode = iota
		stateLineComment
		stateBlockComment
		stateSingleQuote
		stateDoubleQuote
		stateTemplate
	)

	state := stateCode

	for i := 0; i < len(source); i++ {
		c := source[i]

		switch state {
		case stateCode:
			switch {
			case c == '/' && i+1 < len(source) && source[i+1] == '/':
				state = stateLineComment
				i++
			case c == '/' && i+1 < len(source) && source[i+1] == '*':
				state = stateBlockComment
				i++
			case c == '\'':
				state = stateSingleQuote
				b.WriteByte(c)
			case c == '"':
				state = stateDoubleQuote
				b.WriteByte(c)
			case c == '`':
				state = stateTemplate
				b.WriteByte(c)
			default:
				b.WriteByte(c)
			}

		case stateLineComment:
			if c == '\n' {
				state = stateCode
				b.WriteByte(c)
			}

		case stateBlockComment:
			if c == '*' && i+1 < len(source) && source[i+1] == '/' {
				state = stateCode
				i++
			}

		case stateSingleQuote:
			b.WriteByte(c)

			if c == '\\' && i+1 < len(source) {
				b.WriteByte(source[i+1])
				i++
			} else if c == '\'' {
				state = stateCode
			}

		case stateDoubleQuote:
			b.WriteByte(c)

			if c == '\\' && i+1 < len(source) {
				b.WriteByte(source[i+1])
				i++
			} else if c == '"' {
				state = stateCode
			}

		case stateTemplate:
			b.WriteByte(c)

			if c == '\\' && i+1 < len(source) {
				b.WriteByte(source[i+1])
				i++
			} else if c == '`' {
				state = stateCode
			}
		}
	}

	return collapseBlankLines(b.String())
}

// collapseBlankLines folds runs of blank lines left behind by removed
// comments into a single newline.
func collapseBlankLines(source string) string {
	lines := strings.Split(source, "\n")
	out := make([]string, 0, len(lines))

	blank := false

	for _, line := range lines {
		if strings.TrimSpace(line) == "" {
			if blank {
				continue
			}

			blank = true
			out = append(out, "")

			continue
		}

		blank = false
		out = append(out, line)
	}

	return strings.Join(out, "\n")
}
