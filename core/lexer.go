package core

import (
	"bufio"
	"bytes"
	"io"
)

// TokenType represents the type of token
type TokenType int

const (
	TokenEOF TokenType = iota
	TokenComment
	TokenKeyword     // true, false, null, obj, endobj, stream, endstream, xref, trailer, n, f
	TokenInteger     // 123
	TokenReal        // 3.14
	TokenString      // (hello)
	TokenHexString   // <48656C6C6F>
	TokenName        // /Type
	TokenArrayStart  // [
	TokenArrayEnd    // ]
	TokenDictStart   // <<
	TokenDictEnd     // >>
	TokenIndirectRef // R (after two numbers)
)

// Token represents a lexical token
type Token struct {
	Type  TokenType
	Value []byte
	Pos   int64 // Offset of the first byte relative to the lexer input
}

// Is reports whether the token is the given keyword.
func (t *Token) Is(keyword string) bool {
	return t != nil && t.Type == TokenKeyword && string(t.Value) == keyword
}

// Lexer performs lexical analysis of PDF content
type Lexer struct {
	reader *bufio.Reader
	pos    int64
}

// NewLexer creates a new lexer
func NewLexer(r io.Reader) *Lexer {
	return &Lexer{reader: bufio.NewReader(r)}
}

// Pos returns the offset of the next unread byte.
func (l *Lexer) Pos() int64 {
	return l.pos
}

// NextToken returns the next token from the input
func (l *Lexer) NextToken() (*Token, error) {
	if err := l.skipWhitespace(); err != nil && err != io.EOF {
		return nil, err
	}

	b, err := l.peek()
	if err == io.EOF {
		return &Token{Type: TokenEOF, Pos: l.pos}, nil
	}
	if err != nil {
		return nil, err
	}

	start := l.pos
	switch b {
	case '%':
		return l.readComment()
	case '[':
		l.readByte()
		return &Token{Type: TokenArrayStart, Value: []byte{'['}, Pos: start}, nil
	case ']':
		l.readByte()
		return &Token{Type: TokenArrayEnd, Value: []byte{']'}, Pos: start}, nil
	case '(':
		return l.readString()
	case '<':
		if next, err := l.reader.Peek(2); err == nil && next[1] == '<' {
			l.readByte()
			l.readByte()
			return &Token{Type: TokenDictStart, Value: []byte("<<"), Pos: start}, nil
		}
		return l.readHexString()
	case '>':
		if next, err := l.reader.Peek(2); err == nil && next[1] == '>' {
			l.readByte()
			l.readByte()
			return &Token{Type: TokenDictEnd, Value: []byte(">>"), Pos: start}, nil
		}
		return nil, FormatErrorf("unexpected '>' at position %d", l.pos)
	case '/':
		return l.readName()
	}

	if isDigit(b) || b == '-' || b == '+' || b == '.' {
		return l.readNumber()
	}
	if isAlpha(b) {
		return l.readKeyword()
	}

	return nil, FormatErrorf("unexpected character %q at position %d", b, l.pos)
}

func (l *Lexer) readByte() (byte, error) {
	b, err := l.reader.ReadByte()
	if err != nil {
		return 0, err
	}
	l.pos++
	return b, nil
}

func (l *Lexer) peek() (byte, error) {
	buf, err := l.reader.Peek(1)
	if err != nil {
		return 0, err
	}
	return buf[0], nil
}

// skipWhitespace skips all whitespace characters
// PDF whitespace: space (0x20), tab (0x09), LF (0x0A), CR (0x0D), FF (0x0C), null (0x00)
func (l *Lexer) skipWhitespace() error {
	for {
		b, err := l.peek()
		if err != nil {
			return err
		}
		if !isWhitespace(b) {
			return nil
		}
		l.readByte()
	}
}

// readComment reads a comment (% to end of line)
func (l *Lexer) readComment() (*Token, error) {
	start := l.pos
	var buf bytes.Buffer
	for {
		b, err := l.peek()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, err
		}
		if b == '\r' || b == '\n' {
			break
		}
		l.readByte()
		buf.WriteByte(b)
	}
	return &Token{Type: TokenComment, Value: buf.Bytes(), Pos: start}, nil
}

// readString reads a literal string (hello), resolving escapes
func (l *Lexer) readString() (*Token, error) {
	start := l.pos
	var buf bytes.Buffer

	l.readByte() // (
	depth := 1
	for depth > 0 {
		b, err := l.readByte()
		if err == io.EOF {
			return nil, FormatErrorf("unterminated string at position %d", start)
		}
		if err != nil {
			return nil, err
		}

		switch b {
		case '(':
			depth++
			buf.WriteByte(b)
		case ')':
			depth--
			if depth > 0 {
				buf.WriteByte(b)
			}
		case '\\':
			if err := l.readEscape(&buf); err != nil {
				return nil, err
			}
		default:
			buf.WriteByte(b)
		}
	}

	return &Token{Type: TokenString, Value: buf.Bytes(), Pos: start}, nil
}

func (l *Lexer) readEscape(buf *bytes.Buffer) error {
	next, err := l.readByte()
	if err != nil {
		return FormatErrorf("unterminated escape at position %d", l.pos)
	}
	switch next {
	case 'n':
		buf.WriteByte('\n')
	case 'r':
		buf.WriteByte('\r')
	case 't':
		buf.WriteByte('\t')
	case 'b':
		buf.WriteByte('\b')
	case 'f':
		buf.WriteByte('\f')
	case '\r':
		// line continuation, CR LF counts as one
		if p, err := l.peek(); err == nil && p == '\n' {
			l.readByte()
		}
	case '\n':
	case '0', '1', '2', '3', '4', '5', '6', '7':
		val := next - '0'
		for i := 0; i < 2; i++ {
			p, err := l.peek()
			if err != nil || !isOctalDigit(p) {
				break
			}
			l.readByte()
			val = val*8 + (p - '0')
		}
		buf.WriteByte(val)
	default:
		// \( \) \\ and unknown escapes keep the character
		buf.WriteByte(next)
	}
	return nil
}

// readHexString reads a hexadecimal string <48656C6C6F>
func (l *Lexer) readHexString() (*Token, error) {
	start := l.pos
	var buf bytes.Buffer

	l.readByte() // <
	for {
		b, err := l.readByte()
		if err == io.EOF {
			return nil, FormatErrorf("unterminated hex string at position %d", start)
		}
		if err != nil {
			return nil, err
		}
		if b == '>' {
			break
		}
		if isWhitespace(b) {
			continue
		}
		if !isHexDigit(b) {
			return nil, FormatErrorf("invalid hex digit %q at position %d", b, l.pos-1)
		}
		buf.WriteByte(b)
	}

	return &Token{Type: TokenHexString, Value: buf.Bytes(), Pos: start}, nil
}

// readName reads a name object /Type, resolving #xx escapes
func (l *Lexer) readName() (*Token, error) {
	start := l.pos
	var buf bytes.Buffer

	l.readByte() // /
	for {
		b, err := l.peek()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, err
		}
		if isWhitespace(b) || isDelimiter(b) {
			break
		}
		l.readByte()

		if b == '#' {
			if hex, err := l.reader.Peek(2); err == nil && isHexDigit(hex[0]) && isHexDigit(hex[1]) {
				l.readByte()
				l.readByte()
				buf.WriteByte(hexValue(hex[0])<<4 | hexValue(hex[1]))
				continue
			}
		}
		buf.WriteByte(b)
	}

	return &Token{Type: TokenName, Value: buf.Bytes(), Pos: start}, nil
}

// readNumber reads an integer or real number
func (l *Lexer) readNumber() (*Token, error) {
	start := l.pos
	var buf bytes.Buffer
	hasDecimal := false

scan:
	for {
		b, err := l.peek()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, err
		}

		switch {
		case b == '.' && !hasDecimal:
			hasDecimal = true
		case isDigit(b):
		case buf.Len() == 0 && (b == '-' || b == '+'):
		default:
			break scan
		}
		l.readByte()
		buf.WriteByte(b)
	}

	tokenType := TokenInteger
	if hasDecimal {
		tokenType = TokenReal
	}
	return &Token{Type: tokenType, Value: buf.Bytes(), Pos: start}, nil
}

// readKeyword reads a keyword (true, false, null, R, obj, endobj, etc.)
func (l *Lexer) readKeyword() (*Token, error) {
	start := l.pos
	var buf bytes.Buffer

	for {
		b, err := l.peek()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, err
		}
		if !isAlpha(b) && !isDigit(b) {
			break
		}
		l.readByte()
		buf.WriteByte(b)
	}

	value := buf.Bytes()
	if len(value) == 1 && value[0] == 'R' {
		return &Token{Type: TokenIndirectRef, Value: value, Pos: start}, nil
	}
	return &Token{Type: TokenKeyword, Value: value, Pos: start}, nil
}

// SkipStreamEOL consumes the end-of-line marker that follows the stream
// keyword: LF, CR LF, or (tolerated) a lone CR.
func (l *Lexer) SkipStreamEOL() error {
	// some writers put spaces before the EOL
	for {
		b, err := l.peek()
		if err != nil {
			return err
		}
		if b != ' ' && b != '\t' {
			break
		}
		l.readByte()
	}
	b, err := l.peek()
	if err != nil {
		return err
	}
	switch b {
	case '\n':
		l.readByte()
	case '\r':
		l.readByte()
		if next, err := l.peek(); err == nil && next == '\n' {
			l.readByte()
		}
	}
	return nil
}

// ReadBytes reads exactly n bytes from the underlying reader
func (l *Lexer) ReadBytes(n int) ([]byte, error) {
	data := make([]byte, n)
	read, err := io.ReadFull(l.reader, data)
	l.pos += int64(read)
	if err == io.EOF || err == io.ErrUnexpectedEOF {
		return data[:read], FormatErrorf("unexpected EOF: expected %d bytes, got %d", n, read)
	}
	if err != nil {
		return data[:read], err
	}
	return data, nil
}

// ReadUntilEndstream reads raw bytes up to (not including) the next
// "endstream" keyword, consuming the keyword. A single EOL immediately before
// the keyword is dropped. At most limit bytes are examined.
func (l *Lexer) ReadUntilEndstream(limit int64) ([]byte, error) {
	const marker = "endstream"
	var buf bytes.Buffer
	for int64(buf.Len()) <= limit {
		b, err := l.readByte()
		if err == io.EOF {
			return nil, FormatErrorf("missing endstream")
		}
		if err != nil {
			return nil, err
		}
		buf.WriteByte(b)
		if b == 'm' && bytes.HasSuffix(buf.Bytes(), []byte(marker)) {
			data := buf.Bytes()[:buf.Len()-len(marker)]
			data = bytes.TrimSuffix(data, []byte("\n"))
			data = bytes.TrimSuffix(data, []byte("\r"))
			return data, nil
		}
	}
	return nil, FormatErrorf("endstream not found within %d bytes", limit)
}

// Helper functions

func isWhitespace(b byte) bool {
	return b == ' ' || b == '\t' || b == '\n' || b == '\r' || b == '\f' || b == 0
}

func isDelimiter(b byte) bool {
	return b == '(' || b == ')' || b == '<' || b == '>' || b == '[' || b == ']' ||
		b == '{' || b == '}' || b == '/' || b == '%'
}

func isDigit(b byte) bool {
	return b >= '0' && b <= '9'
}

func isOctalDigit(b byte) bool {
	return b >= '0' && b <= '7'
}

func isHexDigit(b byte) bool {
	return (b >= '0' && b <= '9') || (b >= 'a' && b <= 'f') || (b >= 'A' && b <= 'F')
}

func isAlpha(b byte) bool {
	return (b >= 'a' && b <= 'z') || (b >= 'A' && b <= 'Z')
}

func hexValue(b byte) byte {
	switch {
	case b >= '0' && b <= '9':
		return b - '0'
	case b >= 'a' && b <= 'f':
		return b - 'a' + 10
	case b >= 'A' && b <= 'F':
		return b - 'A' + 10
	}
	return 0
}
