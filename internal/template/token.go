/*
Copyright The Helm Authors.
Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package template

import (
	"strconv"
	"strings"

	"github.com/pkg/errors"
)

type tokenKind int

const (
	tkEOF tokenKind = iota
	tkIdent
	tkNumber
	tkString
	tkOp   // punctuation and symbolic operators: + - * / % == != < <= > >= | . , ( ) [ ] { } : =
	tkWord // keyword-like operator spelled as a word: and, or, not, in
)

type token struct {
	kind tokenKind
	text string
	num  float64
	isInt bool
}

// exprLexer tokenizes the content of a single "{{ }}"/"{% %}" region.
type exprLexer struct {
	src []rune
	pos int
}

func newExprLexer(src string) *exprLexer {
	return &exprLexer{src: []rune(src)}
}

var wordOperators = map[string]bool{
	"and": true, "or": true, "not": true, "in": true,
	"true": true, "false": true, "none": true, "null": true,
}

func (l *exprLexer) peekRune() rune {
	if l.pos >= len(l.src) {
		return 0
	}
	return l.src[l.pos]
}

func (l *exprLexer) tokens() ([]token, error) {
	var out []token
	for {
		l.skipSpace()
		if l.pos >= len(l.src) {
			out = append(out, token{kind: tkEOF})
			return out, nil
		}
		r := l.src[l.pos]
		switch {
		case r == '\'' || r == '"':
			s, err := l.readString(r)
			if err != nil {
				return nil, err
			}
			out = append(out, token{kind: tkString, text: s})
		case isDigit(r):
			out = append(out, l.readNumber())
		case isIdentStart(r):
			word := l.readIdent()
			if wordOperators[word] {
				out = append(out, token{kind: tkWord, text: word})
			} else {
				out = append(out, token{kind: tkIdent, text: word})
			}
		default:
			op, err := l.readOp()
			if err != nil {
				return nil, err
			}
			out = append(out, token{kind: tkOp, text: op})
		}
	}
}

func (l *exprLexer) skipSpace() {
	for l.pos < len(l.src) && (l.src[l.pos] == ' ' || l.src[l.pos] == '\t' || l.src[l.pos] == '\n' || l.src[l.pos] == '\r') {
		l.pos++
	}
}

func isDigit(r rune) bool { return r >= '0' && r <= '9' }
func isIdentStart(r rune) bool {
	return r == '_' || (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z')
}
func isIdentPart(r rune) bool { return isIdentStart(r) || isDigit(r) }

func (l *exprLexer) readIdent() string {
	start := l.pos
	for l.pos < len(l.src) && isIdentPart(l.src[l.pos]) {
		l.pos++
	}
	return string(l.src[start:l.pos])
}

func (l *exprLexer) readNumber() token {
	start := l.pos
	isFloat := false
	for l.pos < len(l.src) && (isDigit(l.src[l.pos]) || l.src[l.pos] == '.') {
		if l.src[l.pos] == '.' {
			isFloat = true
		}
		l.pos++
	}
	text := string(l.src[start:l.pos])
	f, _ := strconv.ParseFloat(text, 64)
	return token{kind: tkNumber, text: text, num: f, isInt: !isFloat}
}

func (l *exprLexer) readString(quote rune) (string, error) {
	l.pos++ // skip opening quote
	var b strings.Builder
	for {
		if l.pos >= len(l.src) {
			return "", errors.New("template: unterminated string literal")
		}
		r := l.src[l.pos]
		if r == '\\' && l.pos+1 < len(l.src) {
			l.pos++
			switch l.src[l.pos] {
			case 'n':
				b.WriteRune('\n')
			case 't':
				b.WriteRune('\t')
			default:
				b.WriteRune(l.src[l.pos])
			}
			l.pos++
			continue
		}
		if r == quote {
			l.pos++
			return b.String(), nil
		}
		b.WriteRune(r)
		l.pos++
	}
}

var twoCharOps = []string{"==", "!=", "<=", ">=", "//"}

func (l *exprLexer) readOp() (string, error) {
	if l.pos+1 < len(l.src) {
		two := string(l.src[l.pos : l.pos+2])
		for _, op := range twoCharOps {
			if two == op {
				l.pos += 2
				return two, nil
			}
		}
	}
	r := l.src[l.pos]
	switch r {
	case '+', '-', '*', '/', '%', '|', '.', ',', '(', ')', '[', ']', '{', '}', ':', '=', '<', '>', '~':
		l.pos++
		return string(r), nil
	}
	return "", errors.Errorf("template: unexpected character %q", string(r))
}
