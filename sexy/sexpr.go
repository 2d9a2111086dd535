package sexy

import (
	"fmt"
	"strconv"
	"strings"
	"unicode"
)

// NodeType represents the type of a Node
type NodeType int

const (
	NodeSymbol NodeType = iota
	NodeString
	NodeInteger
	NodeEllipsis
	NodeList
	NodeMap
)

// Node represents any Sexy data structure
type Node struct {
	Type NodeType

	// Atoms
	Text string // NodeSymbol, NodeString, NodeInteger

	// Collections
	Items []*Node  // NodeList, NodeMap
	Keys  []string // NodeMap - parallel to Items

	// Metadata for NodeList - stored as parallel slices like maps
	MetaKeys  []string
	MetaItems []*Node
}

func (n *Node) String() string {
	switch n.Type {
	case NodeSymbol, NodeInteger:
		return n.Text
	case NodeString:
		return strconv.Quote(n.Text)
	case NodeEllipsis:
		return "..."
	case NodeList:
		var parts []string
		if len(n.MetaKeys) > 0 {
			parts = append(parts, "^"+mapString(n.MetaKeys, n.MetaItems))
		}
		for _, item := range n.Items {
			parts = append(parts, item.String())
		}
		return "(" + strings.Join(parts, " ") + ")"
	case NodeMap:
		return mapString(n.Keys, n.Items)
	}
	return fmt.Sprintf("UNKNOWN_NODE_TYPE_%d", n.Type)
}

func mapString(keys []string, items []*Node) string {
	parts := make([]string, 0, len(keys))
	for i, key := range keys {
		if i < len(items) {
			parts = append(parts, key+": "+items[i].String())
		}
	}
	return "{" + strings.Join(parts, ", ") + "}"
}

// Helper constructors for common node types
func NewSymbol(name string) *Node  { return &Node{Type: NodeSymbol, Text: name} }
func NewString(value string) *Node { return &Node{Type: NodeString, Text: value} }
func NewInteger(text string) *Node { return &Node{Type: NodeInteger, Text: text} }
func NewEllipsis() *Node           { return &Node{Type: NodeEllipsis} }

func NewList(items ...*Node) *Node { return &Node{Type: NodeList, Items: items} }

func NewMap(keys []string, items []*Node) *Node {
	return &Node{Type: NodeMap, Keys: keys, Items: items}
}

// Int returns an integer node written in decimal.
func Int(v int64) *Node { return NewInteger(strconv.FormatInt(v, 10)) }

// Hex returns an integer node written in hexadecimal.
func Hex(v uint64) *Node { return NewInteger(fmt.Sprintf("%#x", v)) }

// Uint parses the text of a NodeInteger. Hexadecimal (0x) and octal (0o)
// prefixes are accepted; negative values are returned in two's complement.
func (n *Node) Uint() (uint64, error) {
	if n.Type != NodeInteger {
		return 0, fmt.Errorf("expected integer but got %s", n)
	}
	if v, err := strconv.ParseInt(n.Text, 0, 64); err == nil {
		return uint64(v), nil
	}
	v, err := strconv.ParseUint(n.Text, 0, 64)
	if err != nil {
		return 0, fmt.Errorf("bad integer %s: %w", n.Text, err)
	}
	return v, nil
}

// Head returns the symbol a list starts with, or "".
func (n *Node) Head() string {
	if n.Type != NodeList || len(n.Items) == 0 || n.Items[0].Type != NodeSymbol {
		return ""
	}
	return n.Items[0].Text
}

// Args returns the items of a list after its head.
func (n *Node) Args() []*Node {
	if n.Type != NodeList || len(n.Items) == 0 {
		return nil
	}
	return n.Items[1:]
}

// Meta returns the metadata value stored under key.
func (n *Node) Meta(key string) (*Node, bool) {
	for i, k := range n.MetaKeys {
		if k == key {
			return n.MetaItems[i], true
		}
	}
	return nil, false
}

// SetMeta sets a metadata value on a list and returns the list.
func (n *Node) SetMeta(key string, value *Node) *Node {
	for i, k := range n.MetaKeys {
		if k == key {
			n.MetaItems[i] = value
			return n
		}
	}
	n.MetaKeys = append(n.MetaKeys, key)
	n.MetaItems = append(n.MetaItems, value)
	return n
}

// IsAtom checks if the node is an atomic value
func (n *Node) IsAtom() bool {
	return n.Type == NodeSymbol || n.Type == NodeString || n.Type == NodeInteger || n.Type == NodeEllipsis
}

type parser struct {
	lexer        *lexer
	currentToken token
	peekToken    token
}

// Parse parses the entire input and returns the top-level datum
func Parse(input string) (*Node, error) {
	nodes, err := ParseAll(input)
	if err != nil {
		return nil, err
	}
	if len(nodes) != 1 {
		return nil, fmt.Errorf("expected one datum but got %d", len(nodes))
	}
	return nodes[0], nil
}

// ParseAll parses a sequence of data.
func ParseAll(input string) ([]*Node, error) {
	p := &parser{lexer: newLexer(input)}
	p.nextToken()
	p.nextToken()

	var nodes []*Node
	for p.currentToken.Type != tokenEOF {
		node, err := p.parseDatum()
		if len(p.lexer.errors) > 0 {
			// Lexer errors take priority because they might cause confusing parser errors.
			return nil, fmt.Errorf("%s", p.lexer.errors[0])
		}
		if err != nil {
			return nil, err
		}
		nodes = append(nodes, node)
	}
	if len(p.lexer.errors) > 0 {
		return nil, fmt.Errorf("%s", p.lexer.errors[0])
	}
	return nodes, nil
}

func (p *parser) nextToken() {
	p.currentToken = p.peekToken
	p.peekToken = p.lexer.nextToken()
}

func (p *parser) parseDatum() (*Node, error) {
	tok := p.currentToken
	switch tok.Type {
	case tokenSymbol:
		p.nextToken()
		return NewSymbol(tok.Value), nil
	case tokenString:
		p.nextToken()
		return NewString(tok.Value), nil
	case tokenInteger:
		p.nextToken()
		return NewInteger(tok.Value), nil
	case tokenEllipsis:
		p.nextToken()
		return NewEllipsis(), nil
	case tokenLParen:
		return p.parseList()
	case tokenLBrace:
		return p.parseMap()
	}
	return nil, fmt.Errorf("offset %d: unexpected token: %s", tok.Position, tok.Type)
}

func (p *parser) parseList() (*Node, error) {
	list := NewList()
	p.nextToken() // consume '('

	for p.currentToken.Type != tokenRParen && p.currentToken.Type != tokenEOF {
		if p.currentToken.Type == tokenCaret {
			p.nextToken() // consume '^'
			if p.currentToken.Type != tokenLBrace {
				return nil, fmt.Errorf("expected '{' after '^' but got %s", p.currentToken.Type)
			}
			meta, err := p.parseMap()
			if err != nil {
				return nil, err
			}
			// later values win
			for i, key := range meta.Keys {
				list.SetMeta(key, meta.Items[i])
			}
			continue
		}
		item, err := p.parseDatum()
		if err != nil {
			return nil, err
		}
		list.Items = append(list.Items, item)
	}

	if p.currentToken.Type != tokenRParen {
		return nil, fmt.Errorf("expected ')' but got %s", p.currentToken.Type)
	}
	p.nextToken() // consume ')'
	return list, nil
}

func (p *parser) parseMap() (*Node, error) {
	p.nextToken() // consume '{'
	var keys []string
	var items []*Node

	for p.currentToken.Type != tokenRBrace && p.currentToken.Type != tokenEOF {
		if p.currentToken.Type != tokenSymbol {
			return nil, fmt.Errorf("expected symbol for map key but got %s", p.currentToken.Type)
		}
		keys = append(keys, p.currentToken.Value)
		p.nextToken()

		if p.currentToken.Type != tokenColon {
			return nil, fmt.Errorf("expected ':' after map key but got %s", p.currentToken.Type)
		}
		p.nextToken()

		value, err := p.parseDatum()
		if err != nil {
			return nil, err
		}
		items = append(items, value)

		if p.currentToken.Type == tokenComma {
			p.nextToken()
		} else if p.currentToken.Type != tokenRBrace {
			return nil, fmt.Errorf("expected ',' or '}' in map but got %s", p.currentToken.Type)
		}
	}

	if p.currentToken.Type != tokenRBrace {
		return nil, fmt.Errorf("expected '}' but got %s", p.currentToken.Type)
	}
	p.nextToken() // consume '}'
	return NewMap(keys, items), nil
}

type tokenType int

const (
	tokenEOF tokenType = iota
	tokenSymbol
	tokenString
	tokenInteger
	tokenEllipsis
	tokenLParen
	tokenRParen
	tokenLBrace
	tokenRBrace
	tokenColon
	tokenComma
	tokenCaret
)

var tokenNames = [...]string{
	tokenEOF:      "EOF",
	tokenSymbol:   "symbol",
	tokenString:   "string",
	tokenInteger:  "integer",
	tokenEllipsis: "ellipsis",
	tokenLParen:   "'('",
	tokenRParen:   "')'",
	tokenLBrace:   "'{'",
	tokenRBrace:   "'}'",
	tokenColon:    "':'",
	tokenComma:    "','",
	tokenCaret:    "'^'",
}

func (t tokenType) String() string {
	if int(t) < len(tokenNames) {
		return tokenNames[t]
	}
	return fmt.Sprintf("unknown token %d", int(t))
}

type token struct {
	Type     tokenType
	Value    string
	Position int
}

type lexer struct {
	input    string
	position int
	current  rune
	errors   []string
}

func newLexer(input string) *lexer {
	l := &lexer{input: input}
	l.readChar()
	return l
}

func (l *lexer) readChar() {
	if l.position >= len(l.input) {
		l.current = 0
	} else {
		l.current = rune(l.input[l.position])
	}
	l.position++
}

func (l *lexer) peekChar() rune {
	if l.position >= len(l.input) {
		return 0
	}
	return rune(l.input[l.position])
}

func (l *lexer) skipWhitespace() {
	for unicode.IsSpace(l.current) {
		l.readChar()
	}
}

func (l *lexer) skipComment() {
	for l.current != '\n' && l.current != '\r' && l.current != 0 {
		l.readChar()
	}
}

func (l *lexer) readWhile(ok func(rune) bool) string {
	start := l.position - 1
	for l.current != 0 && ok(l.current) {
		l.readChar()
	}
	return l.input[start : l.position-1]
}

func (l *lexer) readString() (string, error) {
	var sb strings.Builder
	l.readChar() // skip opening quote

	for l.current != '"' && l.current != 0 {
		if l.current == '\\' {
			l.readChar()
			switch l.current {
			case '"', '\\':
				sb.WriteRune(l.current)
			case 'n':
				sb.WriteByte('\n')
			case 't':
				sb.WriteByte('\t')
			default:
				return "", fmt.Errorf("invalid escape sequence: \\%c", l.current)
			}
		} else {
			sb.WriteByte(byte(l.current))
		}
		l.readChar()
	}

	if l.current != '"' {
		return "", fmt.Errorf("unterminated string")
	}
	l.readChar() // skip closing quote
	return sb.String(), nil
}

func (l *lexer) readInteger() string {
	start := l.position - 1
	if l.current == '+' || l.current == '-' {
		l.readChar()
	}
	if l.current == '0' && (l.peekChar() == 'x' || l.peekChar() == 'X' || l.peekChar() == 'o') {
		l.readChar()
		l.readChar()
		for unicode.Is(unicode.ASCII_Hex_Digit, l.current) {
			l.readChar()
		}
		return l.input[start : l.position-1]
	}
	for unicode.IsDigit(l.current) {
		l.readChar()
	}
	return l.input[start : l.position-1]
}

func (l *lexer) nextToken() token {
	for {
		l.skipWhitespace()

		pos := l.position - 1
		single := func(t tokenType) token {
			v := string(l.current)
			l.readChar()
			return token{Type: t, Value: v, Position: pos}
		}

		switch l.current {
		case 0:
			return token{Type: tokenEOF, Position: pos}
		case ';':
			l.skipComment()
			continue
		case '(':
			return single(tokenLParen)
		case ')':
			return single(tokenRParen)
		case '{':
			return single(tokenLBrace)
		case '}':
			return single(tokenRBrace)
		case ':':
			return single(tokenColon)
		case ',':
			return single(tokenComma)
		case '^':
			return single(tokenCaret)
		case '"':
			str, err := l.readString()
			if err != nil {
				l.errors = append(l.errors, err.Error())
				return token{Type: tokenEOF, Position: pos}
			}
			return token{Type: tokenString, Value: str, Position: pos}
		case '.':
			if l.peekChar() == '.' {
				l.readChar()
				if l.peekChar() == '.' {
					l.readChar()
					l.readChar()
					return token{Type: tokenEllipsis, Value: "...", Position: pos}
				}
			}
			// Single dot is a syntax error
			l.errors = append(l.errors, "unexpected character '.'")
			return token{Type: tokenEOF, Position: pos}
		}

		switch {
		case isSymbolStart(l.current):
			return token{Type: tokenSymbol, Value: l.readWhile(isSymbolChar), Position: pos}
		case unicode.IsDigit(l.current):
			return token{Type: tokenInteger, Value: l.readInteger(), Position: pos}
		case l.current == '+' || l.current == '-':
			if unicode.IsDigit(l.peekChar()) {
				return token{Type: tokenInteger, Value: l.readInteger(), Position: pos}
			}
			// Single + or - is a symbol
			return token{Type: tokenSymbol, Value: l.readWhile(isSymbolChar), Position: pos}
		}
		// Unknown character is a syntax error
		l.errors = append(l.errors, fmt.Sprintf("unexpected character '%c'", l.current))
		return token{Type: tokenEOF, Position: pos}
	}
}

func isSymbolStart(r rune) bool {
	return unicode.IsLetter(r) || r == '_'
}

func isSymbolChar(r rune) bool {
	return unicode.IsLetter(r) || unicode.IsDigit(r) || r == '-' || r == '_' || r == '+'
}
