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
	"strings"

	"github.com/pkg/errors"
)

// Parse lexes and parses a full template source into a node list.
func Parse(src string) ([]Node, error) {
	segments, err := lex(src)
	if err != nil {
		return nil, err
	}
	p := &parser{segments: segments}
	body, pos, err := p.parseBody(0)
	if err != nil {
		return nil, err
	}
	if pos != len(segments) {
		return nil, errors.New("template: unexpected closing tag with no matching opener")
	}
	return body, nil
}

type parser struct {
	segments []segment
}

// parseBody parses statements/text/output until it hits a statement whose
// keyword is one of elif/else/endif/endfor/endraw, or the segments run out.
// It returns the index of the segment that stopped it (still unconsumed)
// so the caller can inspect which closing keyword matched.
func (p *parser) parseBody(pos int) ([]Node, int, error) {
	var body []Node
	for pos < len(p.segments) {
		seg := p.segments[pos]
		switch seg.kind {
		case segText:
			body = append(body, textNode{value: seg.content})
			pos++
		case segOutput:
			expr, err := parseExpr(seg.content)
			if err != nil {
				return nil, 0, errors.Wrapf(err, "line %d", seg.lineOffset)
			}
			body = append(body, outputNode{expr: expr})
			pos++
		case segStatement:
			keyword, rest := splitKeyword(seg.content)
			switch keyword {
			case "if":
				node, next, err := p.parseIf(pos)
				if err != nil {
					return nil, 0, err
				}
				body = append(body, node)
				pos = next
			case "for":
				node, next, err := p.parseFor(pos)
				if err != nil {
					return nil, 0, err
				}
				body = append(body, node)
				pos = next
			case "set":
				node, err := parseSet(rest)
				if err != nil {
					return nil, 0, errors.Wrapf(err, "line %d", seg.lineOffset)
				}
				body = append(body, node)
				pos++
			case "raw":
				node, next, err := p.parseRaw(pos)
				if err != nil {
					return nil, 0, err
				}
				body = append(body, node)
				pos = next
			case "elif", "else", "endif", "endfor", "endraw":
				return body, pos, nil
			default:
				return nil, 0, errors.Errorf("template: unknown statement %q at line %d", keyword, seg.lineOffset)
			}
		default:
			pos++
		}
	}
	return body, pos, nil
}

func splitKeyword(content string) (keyword, rest string) {
	content = strings.TrimSpace(content)
	idx := strings.IndexAny(content, " \t")
	if idx < 0 {
		return content, ""
	}
	return content[:idx], strings.TrimSpace(content[idx+1:])
}

func (p *parser) parseIf(pos int) (Node, int, error) {
	_, rest := splitKeyword(p.segments[pos].content)
	cond, err := parseExpr(rest)
	if err != nil {
		return nil, 0, errors.Wrapf(err, "line %d", p.segments[pos].lineOffset)
	}
	pos++

	node := ifNode{}
	body, next, err := p.parseBody(pos)
	if err != nil {
		return nil, 0, err
	}
	node.branches = append(node.branches, ifBranch{cond: cond, body: body})
	pos = next

	for {
		if pos >= len(p.segments) {
			return nil, 0, errors.New("template: unterminated {% if %}")
		}
		keyword, rest := splitKeyword(p.segments[pos].content)
		switch keyword {
		case "elif":
			cond, err := parseExpr(rest)
			if err != nil {
				return nil, 0, err
			}
			pos++
			body, next, err := p.parseBody(pos)
			if err != nil {
				return nil, 0, err
			}
			node.branches = append(node.branches, ifBranch{cond: cond, body: body})
			pos = next
		case "else":
			pos++
			body, next, err := p.parseBody(pos)
			if err != nil {
				return nil, 0, err
			}
			node.elseBody = body
			pos = next
		case "endif":
			return node, pos + 1, nil
		default:
			return nil, 0, errors.Errorf("template: expected endif, got %q", keyword)
		}
	}
}

func (p *parser) parseFor(pos int) (Node, int, error) {
	_, rest := splitKeyword(p.segments[pos].content)
	inIdx := findTopLevelWord(rest, "in")
	if inIdx < 0 {
		return nil, 0, errors.Errorf("template: malformed for-loop %q", rest)
	}
	varsPart := strings.TrimSpace(rest[:inIdx])
	iterPart := strings.TrimSpace(rest[inIdx+2:])

	var keyVar, valVar string
	if comma := strings.Index(varsPart, ","); comma >= 0 {
		keyVar = strings.TrimSpace(varsPart[:comma])
		valVar = strings.TrimSpace(varsPart[comma+1:])
	} else {
		valVar = varsPart
	}

	iterable, err := parseExpr(iterPart)
	if err != nil {
		return nil, 0, err
	}
	pos++

	body, next, err := p.parseBody(pos)
	if err != nil {
		return nil, 0, err
	}
	pos = next

	node := forNode{keyVar: keyVar, valVar: valVar, iterable: iterable, body: body}

	if pos < len(p.segments) {
		keyword, _ := splitKeyword(p.segments[pos].content)
		if keyword == "else" {
			pos++
			elseBody, next, err := p.parseBody(pos)
			if err != nil {
				return nil, 0, err
			}
			node.elseBody = elseBody
			pos = next
		}
	}
	if pos >= len(p.segments) {
		return nil, 0, errors.New("template: unterminated {% for %}")
	}
	keyword, _ := splitKeyword(p.segments[pos].content)
	if keyword != "endfor" {
		return nil, 0, errors.Errorf("template: expected endfor, got %q", keyword)
	}
	return node, pos + 1, nil
}

func (p *parser) parseRaw(pos int) (Node, int, error) {
	pos++
	var b strings.Builder
	for pos < len(p.segments) {
		seg := p.segments[pos]
		if seg.kind == segStatement {
			keyword, _ := splitKeyword(seg.content)
			if keyword == "endraw" {
				return rawNode{value: b.String()}, pos + 1, nil
			}
		}
		switch seg.kind {
		case segText:
			b.WriteString(seg.content)
		case segOutput:
			b.WriteString("{{ " + seg.content + " }}")
		case segStatement:
			b.WriteString("{% " + seg.content + " %}")
		}
		pos++
	}
	return nil, 0, errors.New("template: unterminated {% raw %}")
}

func parseSet(rest string) (Node, error) {
	eq := findTopLevelWord(rest, "=")
	if eq < 0 {
		return nil, errors.Errorf("template: malformed set %q", rest)
	}
	name := strings.TrimSpace(rest[:eq])
	expr, err := parseExpr(rest[eq+1:])
	if err != nil {
		return nil, err
	}
	return setNode{name: name, expr: expr}, nil
}

// findTopLevelWord finds the first standalone occurrence of word (matched
// as a whole token, not a substring of an identifier) in s.
func findTopLevelWord(s, word string) int {
	l := newExprLexer(s)
	for {
		l.skipSpace()
		start := l.pos
		toks, err := l.tokensOne()
		if err != nil || toks.kind == tkEOF {
			return -1
		}
		if (toks.kind == tkWord || toks.kind == tkOp) && toks.text == word {
			return start
		}
	}
}

// tokensOne reads a single token, advancing the lexer position, skipping
// leading whitespace, mirroring the relevant part of tokens().
func (l *exprLexer) tokensOne() (token, error) {
	l.skipSpace()
	if l.pos >= len(l.src) {
		return token{kind: tkEOF}, nil
	}
	r := l.src[l.pos]
	switch {
	case r == '\'' || r == '"':
		s, err := l.readString(r)
		if err != nil {
			return token{}, err
		}
		return token{kind: tkString, text: s}, nil
	case isDigit(r):
		return l.readNumber(), nil
	case isIdentStart(r):
		word := l.readIdent()
		if wordOperators[word] {
			return token{kind: tkWord, text: word}, nil
		}
		return token{kind: tkIdent, text: word}, nil
	default:
		op, err := l.readOp()
		if err != nil {
			return token{}, err
		}
		return token{kind: tkOp, text: op}, nil
	}
}
