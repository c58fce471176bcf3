package rule

import (
	"fmt"
	"strconv"
	"strings"
	"unicode"
)

type tokenKind int

const (
	tokEOF tokenKind = iota
	tokNumber
	tokString
	tokName
	tokOp
	tokLParen
	tokRParen
	tokComma
)

type token struct {
	kind tokenKind
	text string
	num  float64
	pos  int
}

// 关键字按运算符处理
var keywords = map[string]bool{
	"and": true,
	"or":  true,
	"not": true,
}

// 受支持的运算符，长的在前
var operators = []string{"**", "//", "<=", ">=", "==", "!=", "+", "-", "*", "/", "%", "<", ">"}

func tokenize(src string) ([]token, error) {
	var tokens []token
	runes := []rune(src)
	i := 0
	for i < len(runes) {
		r := runes[i]
		switch {
		case unicode.IsSpace(r):
			i++
		case r == '(':
			tokens = append(tokens, token{kind: tokLParen, text: "(", pos: i})
			i++
		case r == ')':
			tokens = append(tokens, token{kind: tokRParen, text: ")", pos: i})
			i++
		case r == ',':
			tokens = append(tokens, token{kind: tokComma, text: ",", pos: i})
			i++
		case r == '\'' || r == '"':
			s, next, err := scanString(runes, i)
			if err != nil {
				return nil, err
			}
			tokens = append(tokens, token{kind: tokString, text: s, pos: i})
			i = next
		case unicode.IsDigit(r) || (r == '.' && i+1 < len(runes) && unicode.IsDigit(runes[i+1])):
			n, text, next, err := scanNumber(runes, i)
			if err != nil {
				return nil, err
			}
			tokens = append(tokens, token{kind: tokNumber, text: text, num: n, pos: i})
			i = next
		case r == '_' || unicode.IsLetter(r):
			start := i
			for i < len(runes) && (runes[i] == '_' || unicode.IsLetter(runes[i]) || unicode.IsDigit(runes[i])) {
				i++
			}
			word := string(runes[start:i])
			if keywords[word] {
				tokens = append(tokens, token{kind: tokOp, text: word, pos: start})
			} else {
				tokens = append(tokens, token{kind: tokName, text: word, pos: start})
			}
		default:
			op := matchOperator(runes[i:])
			if op == "" {
				return nil, fmt.Errorf("invalid syntax: unexpected character %q at position %d", r, i)
			}
			tokens = append(tokens, token{kind: tokOp, text: op, pos: i})
			i += len([]rune(op))
		}
	}
	tokens = append(tokens, token{kind: tokEOF, pos: len(runes)})
	return tokens, nil
}

func matchOperator(rest []rune) string {
	s := string(rest[:min(2, len(rest))])
	for _, op := range operators {
		if strings.HasPrefix(s, op) {
			return op
		}
	}
	return ""
}

func scanString(runes []rune, start int) (string, int, error) {
	quote := runes[start]
	var b strings.Builder
	i := start + 1
	for i < len(runes) {
		r := runes[i]
		switch {
		case r == quote:
			return b.String(), i + 1, nil
		case r == '\\' && i+1 < len(runes):
			i++
			switch runes[i] {
			case 'n':
				b.WriteRune('\n')
			case 't':
				b.WriteRune('\t')
			default:
				b.WriteRune(runes[i])
			}
		case r == '\n':
			return "", 0, fmt.Errorf("invalid syntax: unterminated string at position %d", start)
		default:
			b.WriteRune(r)
		}
		i++
	}
	return "", 0, fmt.Errorf("invalid syntax: unterminated string at position %d", start)
}

func scanNumber(runes []rune, start int) (float64, string, int, error) {
	i := start
	for i < len(runes) && unicode.IsDigit(runes[i]) {
		i++
	}
	if i < len(runes) && runes[i] == '.' {
		i++
		for i < len(runes) && unicode.IsDigit(runes[i]) {
			i++
		}
	}
	if i < len(runes) && (runes[i] == 'e' || runes[i] == 'E') {
		j := i + 1
		if j < len(runes) && (runes[j] == '+' || runes[j] == '-') {
			j++
		}
		if j < len(runes) && unicode.IsDigit(runes[j]) {
			for j < len(runes) && unicode.IsDigit(runes[j]) {
				j++
			}
			i = j
		}
	}
	text := string(runes[start:i])
	if i < len(runes) && (runes[i] == '_' || unicode.IsLetter(runes[i])) {
		return 0, "", 0, fmt.Errorf("invalid syntax: malformed number at position %d", start)
	}
	n, err := strconv.ParseFloat(text, 64)
	if err != nil {
		return 0, "", 0, fmt.Errorf("invalid syntax: malformed number %q at position %d", text, start)
	}
	return n, text, i, nil
}
