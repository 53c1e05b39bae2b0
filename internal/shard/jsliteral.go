package shard

import (
	"fmt"
	"strconv"
	"strings"
	"unicode/utf8"
)

const bom = "\uFEFF"

// jsScanner reads the subset of JavaScript literal syntax doxygen emits for
// search data: nested arrays, single- or double-quoted strings with
// backslash escapes, numbers, null, true and false.
type jsScanner struct {
	src string
	pos int
}

func (s *jsScanner) errorf(format string, args ...any) error {
	return fmt.Errorf("offset %d: %s", s.pos, fmt.Sprintf(format, args...))
}

func (s *jsScanner) skipSpace() {
	for s.pos < len(s.src) {
		switch s.src[s.pos] {
		case ' ', '\t', '\n', '\r', '\f', '\v':
			s.pos++
		case '/':
			if !s.skipComment() {
				return
			}
		default:
			if strings.HasPrefix(s.src[s.pos:], bom) {
				s.pos += len(bom)
				continue
			}
			return
		}
	}
}

func (s *jsScanner) skipComment() bool {
	rest := s.src[s.pos:]
	switch {
	case strings.HasPrefix(rest, "//"):
		if i := strings.IndexByte(rest, '\n'); i >= 0 {
			s.pos += i + 1
		} else {
			s.pos = len(s.src)
		}
		return true
	case strings.HasPrefix(rest, "/*"):
		if i := strings.Index(rest[2:], "*/"); i >= 0 {
			s.pos += i + 4
		} else {
			s.pos = len(s.src)
		}
		return true
	}
	return false
}

// expect consumes lit after optional whitespace.
func (s *jsScanner) expect(lit string) error {
	s.skipSpace()
	if !strings.HasPrefix(s.src[s.pos:], lit) {
		return s.errorf("expected %q", lit)
	}
	s.pos += len(lit)
	return nil
}

func (s *jsScanner) value() (any, error) {
	s.skipSpace()
	if s.pos >= len(s.src) {
		return nil, s.errorf("unexpected end of input")
	}
	switch c := s.src[s.pos]; {
	case c == '[':
		return s.array()
	case c == '\'' || c == '"':
		return s.str()
	case c == '-' || (c >= '0' && c <= '9'):
		return s.number()
	default:
		for _, kw := range []struct {
			lit string
			val any
		}{{"null", nil}, {"true", true}, {"false", false}} {
			if strings.HasPrefix(s.src[s.pos:], kw.lit) {
				s.pos += len(kw.lit)
				return kw.val, nil
			}
		}
		return nil, s.errorf("unexpected character %q", c)
	}
}

func (s *jsScanner) array() ([]any, error) {
	s.pos++ // [
	var out []any
	for {
		s.skipSpace()
		if s.pos >= len(s.src) {
			return nil, s.errorf("unterminated array")
		}
		if s.src[s.pos] == ']' {
			s.pos++
			return out, nil
		}
		v, err := s.value()
		if err != nil {
			return nil, err
		}
		out = append(out, v)
		s.skipSpace()
		if s.pos >= len(s.src) {
			return nil, s.errorf("unterminated array")
		}
		switch s.src[s.pos] {
		case ',':
			s.pos++
		case ']':
		default:
			return nil, s.errorf("expected ',' or ']'")
		}
	}
}

func (s *jsScanner) str() (string, error) {
	quote := s.src[s.pos]
	s.pos++
	var b strings.Builder
	for s.pos < len(s.src) {
		c := s.src[s.pos]
		switch {
		case c == quote:
			s.pos++
			return b.String(), nil
		case c == '\n':
			return "", s.errorf("newline in string literal")
		case c != '\\':
			b.WriteByte(c)
			s.pos++
			continue
		}
		s.pos++
		if s.pos >= len(s.src) {
			break
		}
		esc := s.src[s.pos]
		s.pos++
		switch esc {
		case 'n':
			b.WriteByte('\n')
		case 't':
			b.WriteByte('\t')
		case 'r':
			b.WriteByte('\r')
		case 'b':
			b.WriteByte('\b')
		case 'f':
			b.WriteByte('\f')
		case 'v':
			b.WriteByte('\v')
		case '0':
			b.WriteByte(0)
		case 'x', 'u':
			n := 2
			if esc == 'u' {
				n = 4
			}
			if s.pos+n > len(s.src) {
				return "", s.errorf("short \\%c escape", esc)
			}
			code, err := strconv.ParseUint(s.src[s.pos:s.pos+n], 16, 32)
			if err != nil {
				return "", s.errorf("bad \\%c escape", esc)
			}
			s.pos += n
			r := rune(code)
			if !utf8.ValidRune(r) {
				r = utf8.RuneError
			}
			b.WriteRune(r)
		case '\n':
			// line continuation
		default:
			// \' \" \\ \/ and any other escaped character stand for themselves
			b.WriteByte(esc)
		}
	}
	return "", s.errorf("unterminated string")
}

func (s *jsScanner) number() (float64, error) {
	start := s.pos
	if s.src[s.pos] == '-' {
		s.pos++
	}
	for s.pos < len(s.src) {
		c := s.src[s.pos]
		if (c >= '0' && c <= '9') || c == '.' || c == 'e' || c == 'E' || c == '+' || c == '-' {
			s.pos++
			continue
		}
		break
	}
	f, err := strconv.ParseFloat(s.src[start:s.pos], 64)
	if err != nil {
		return 0, s.errorf("bad number %q", s.src[start:s.pos])
	}
	return f, nil
}

// parseSearchData extracts the array assigned by `var searchData = [...];`.
// A bare array literal is accepted as well.
func parseSearchData(src string) ([]any, error) {
	s := &jsScanner{src: src}
	s.skipSpace()
	if strings.HasPrefix(s.src[s.pos:], "var") {
		s.pos += len("var")
		s.skipSpace()
		start := s.pos
		for s.pos < len(s.src) && isIdentByte(s.src[s.pos]) {
			s.pos++
		}
		if s.pos == start {
			return nil, s.errorf("expected variable name")
		}
		if err := s.expect("="); err != nil {
			return nil, err
		}
	}
	s.skipSpace()
	if s.pos >= len(s.src) || s.src[s.pos] != '[' {
		return nil, s.errorf("expected array literal")
	}
	arr, err := s.array()
	if err != nil {
		return nil, err
	}
	s.skipSpace()
	if s.pos < len(s.src) && s.src[s.pos] == ';' {
		s.pos++
	}
	s.skipSpace()
	if s.pos != len(s.src) {
		return nil, s.errorf("trailing content after search data")
	}
	return arr, nil
}

func isIdentByte(c byte) bool {
	return c == '_' || c == '$' || (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') || (c >= '0' && c <= '9')
}
