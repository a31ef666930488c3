package trace

import (
	"errors"
	"strconv"
	"strings"
	"text/scanner"
	"unicode"
	"unicode/utf8"
)

type tokenKind uint8

const (
	tokEOF tokenKind = iota
	tokIdent
	tokInt
	tokFloat
	tokChar
	tokString
	tokOp
)

type token struct {
	kind tokenKind
	text string // source text; for strings and chars the decoded value
	line int
	col  int
	off  int // byte offset of the first character
	end  int // byte offset just past the last character
}

func (t token) String() string {
	switch t.kind {
	case tokEOF:
		return "end of input"
	case tokString:
		return strconv.Quote(t.text)
	default:
		return "'" + t.text + "'"
	}
}

// operators are matched longest first. '>' is never merged with a
// following '>' so that nested type arguments close one token at a time;
// the parser joins adjacent '>' tokens back into shift operators.
var operators = []string{
	"<<=", "...", "->", "::", "++", "--", "&&", "||",
	"==", "!=", "<=", ">=", "+=", "-=", "*=", "/=", "%=", "&=", "|=", "^=", "<<",
}

var (
	errUnterminated = errors.New("unterminated literal")
	errEscape       = errors.New("invalid escape sequence")
)

func lex(src string) (toks []token, err error) {
	var s scanner.Scanner
	s.Init(strings.NewReader(src))
	s.Mode = scanner.ScanIdents | scanner.ScanInts | scanner.ScanFloats | scanner.ScanComments | scanner.SkipComments
	s.IsIdentRune = func(ch rune, i int) bool {
		return ch == '_' || ch == '$' || unicode.IsLetter(ch) || (i > 0 && unicode.IsDigit(ch))
	}
	s.Error = func(s *scanner.Scanner, msg string) {
		if err == nil {
			pos := s.Position
			if !pos.IsValid() {
				pos = s.Pos()
			}
			err = &ParseError{Line: pos.Line, Column: pos.Column, Msg: msg}
		}
	}

	for {
		r := s.Scan()
		if err != nil {
			return nil, err
		}
		pos := s.Position
		tok := token{line: pos.Line, col: pos.Column, off: pos.Offset}
		fail := func(e error) error {
			return &ParseError{Line: pos.Line, Column: pos.Column, Msg: e.Error()}
		}

		switch r {
		case scanner.EOF:
			tok.kind, tok.end = tokEOF, len(src)
			return append(toks, tok), nil
		case scanner.Ident:
			tok.kind, tok.text = tokIdent, s.TokenText()
		case scanner.Int, scanner.Float:
			tok.kind, tok.text = tokInt, s.TokenText()
			if r == scanner.Float {
				tok.kind = tokFloat
			}
			if strings.ContainsRune("lLfFdD", s.Peek()) {
				tok.text += string(s.Next())
			}
		case '"':
			var raw string
			var lerr error
			if strings.HasPrefix(src[pos.Offset:], `"""`) {
				s.Next()
				s.Next()
				raw, lerr = scanTextBlock(&s)
			} else {
				raw, lerr = scanQuoted(&s, '"')
			}
			if lerr != nil {
				return nil, fail(lerr)
			}
			text, lerr := unescape(raw)
			if lerr != nil {
				return nil, fail(lerr)
			}
			tok.kind, tok.text = tokString, text
		case '\'':
			raw, lerr := scanQuoted(&s, '\'')
			if lerr != nil {
				return nil, fail(lerr)
			}
			text, lerr := unescape(raw)
			if lerr == nil && utf8.RuneCountInString(text) != 1 {
				lerr = errors.New("invalid character literal")
			}
			if lerr != nil {
				return nil, fail(lerr)
			}
			tok.kind, tok.text = tokChar, text
		default:
			tok.kind, tok.text = tokOp, string(r)
			rest := src[pos.Offset:]
			for _, op := range operators {
				if strings.HasPrefix(rest, op) {
					for range len(op) - 1 {
						s.Next()
					}
					tok.text = op
					break
				}
			}
		}
		tok.end = s.Pos().Offset
		toks = append(toks, tok)
	}
}

// scanQuoted reads up to the closing quote and returns the raw body with
// escapes left in place.
func scanQuoted(s *scanner.Scanner, quote rune) (string, error) {
	var b strings.Builder
	for {
		ch := s.Next()
		switch ch {
		case scanner.EOF, '\n':
			return "", errUnterminated
		case quote:
			return b.String(), nil
		case '\\':
			b.WriteRune(ch)
			ch = s.Next()
			if ch == scanner.EOF {
				return "", errUnterminated
			}
		}
		b.WriteRune(ch)
	}
}

// scanTextBlock reads a """ block whose opening delimiter has been
// consumed, and strips the common indentation.
func scanTextBlock(s *scanner.Scanner) (string, error) {
	for {
		ch := s.Next()
		if ch == '\n' {
			break
		}
		if ch == scanner.EOF || !unicode.IsSpace(ch) {
			return "", errors.New("text block must start on a new line")
		}
	}
	var b strings.Builder
	quotes := 0
	for quotes < 3 {
		ch := s.Next()
		switch ch {
		case scanner.EOF:
			return "", errUnterminated
		case '"':
			quotes++
			continue
		case '\\':
			b.WriteString(strings.Repeat(`"`, quotes))
			quotes = 0
			b.WriteRune(ch)
			ch = s.Next()
			if ch == scanner.EOF {
				return "", errUnterminated
			}
		}
		b.WriteString(strings.Repeat(`"`, quotes))
		quotes = 0
		b.WriteRune(ch)
	}
	return stripIndent(b.String()), nil
}

func stripIndent(body string) string {
	lines := strings.Split(body, "\n")
	indent := -1
	for i, l := range lines {
		last := i == len(lines)-1
		if strings.TrimSpace(l) == "" && !last {
			continue
		}
		n := len(l) - len(strings.TrimLeft(l, " \t"))
		if indent < 0 || n < indent {
			indent = n
		}
	}
	for i, l := range lines {
		if len(l) >= indent {
			l = l[indent:]
		} else {
			l = ""
		}
		lines[i] = strings.TrimRight(l, " \t")
	}
	return strings.Join(lines, "\n")
}

func unescape(raw string) (string, error) {
	if !strings.ContainsRune(raw, '\\') {
		return raw, nil
	}
	var b strings.Builder
	for i := 0; i < len(raw); i++ {
		c := raw[i]
		if c != '\\' {
			b.WriteByte(c)
			continue
		}
		i++
		if i >= len(raw) {
			return "", errEscape
		}
		switch c = raw[i]; c {
		case 'b':
			b.WriteByte('\b')
		case 't':
			b.WriteByte('\t')
		case 'n':
			b.WriteByte('\n')
		case 'f':
			b.WriteByte('\f')
		case 'r':
			b.WriteByte('\r')
		case 's':
			b.WriteByte(' ')
		case '"', '\'', '\\':
			b.WriteByte(c)
		case '\n':
			// line continuation inside a text block
		case 'u':
			for i < len(raw) && raw[i] == 'u' {
				i++
			}
			if i+4 > len(raw) {
				return "", errEscape
			}
			n, err := strconv.ParseUint(raw[i:i+4], 16, 32)
			if err != nil {
				return "", errEscape
			}
			b.WriteRune(rune(n))
			i += 3
		case '0', '1', '2', '3', '4', '5', '6', '7':
			max := 2
			if c <= '3' {
				max = 3
			}
			j := i
			for j < len(raw) && j-i < max && raw[j] >= '0' && raw[j] <= '7' {
				j++
			}
			n, _ := strconv.ParseUint(raw[i:j], 8, 32)
			b.WriteRune(rune(n))
			i = j - 1
		default:
			return "", errEscape
		}
	}
	return b.String(), nil
}
