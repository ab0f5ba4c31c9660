// Package stream implements the line reader the script loader pulls
// logical lines from: a thin wrapper over a file or an in-memory
// string that joins backslash-continued physical lines and applies
// any registered token replacements before handing a line back.
//
// Grounded on vkrunner's stream.rs.
package stream

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"unicode/utf8"
)

// ErrTokenReplacementLoop is returned when the 1000th token
// replacement is reached while processing a single line — almost
// certainly a cycle in the replacement table (§4.5, §9).
var ErrTokenReplacementLoop = errors.New("stream: token replacements cause an infinite loop")

const maxReplacementsPerLine = 1000

// TokenReplacement is one literal-string substitution rule, applied
// repeatedly from the start of the rule list at every position in a
// line until no rule matches (§4.5).
type TokenReplacement struct {
	Token       string
	Replacement string
}

// Stream reads logical lines out of a file or string, handling `\`-continued
// physical lines and token substitution.
type Stream struct {
	reader            *bufio.Reader
	tokenReplacements []TokenReplacement

	lineNum     int
	nextLineNum int
	reachedEOF  bool
}

// NewFromFile opens filename and returns a Stream reading lines from it.
func NewFromFile(filename string, tokenReplacements []TokenReplacement) (*Stream, error) {
	f, err := os.Open(filename)
	if err != nil {
		return nil, err
	}
	return newStream(bufio.NewReader(f), tokenReplacements), nil
}

// NewFromString returns a Stream reading lines out of an in-memory string.
func NewFromString(source string, tokenReplacements []TokenReplacement) *Stream {
	return newStream(bufio.NewReader(strings.NewReader(source)), tokenReplacements)
}

func newStream(r *bufio.Reader, tokenReplacements []TokenReplacement) *Stream {
	return &Stream{
		reader:            r,
		tokenReplacements: tokenReplacements,
		nextLineNum:       1,
	}
}

// LineNum returns the 1-based line number in the source data where
// the last line returned by ReadLine started (the first physical line
// of a continuation run).
func (s *Stream) LineNum() int {
	return s.lineNum
}

// ReadLine reads one logical line (joining `\`-continued physical
// lines) and appends it to line, applying token replacements. It
// returns the number of bytes appended; 0 means end of stream.
func (s *Stream) ReadLine(line *strings.Builder) (int, error) {
	startLen := line.Len()
	s.lineNum = s.nextLineNum

	for !s.reachedEOF {
		chunk, err := s.reader.ReadString('\n')
		length := len(chunk)

		if length == 0 {
			if err != nil && err != io.EOF {
				return 0, err
			}
			s.reachedEOF = true
			break
		}

		line.WriteString(chunk)
		s.nextLineNum++

		if err == io.EOF {
			s.reachedEOF = true
		}

		if length >= 2 && strings.HasSuffix(chunk, "\\\n") {
			truncate(line, 2)
			continue
		}
		if length >= 3 && strings.HasSuffix(chunk, "\\\r\n") {
			truncate(line, 3)
			continue
		}
		break
	}

	if err := s.processTokenReplacements(line, startLen); err != nil {
		return 0, err
	}

	return line.Len() - startLen, nil
}

// truncate removes the last n bytes written to a strings.Builder by
// rebuilding it from its own contents (Builder has no native
// truncation primitive).
func truncate(b *strings.Builder, n int) {
	s := b.String()
	b.Reset()
	b.WriteString(s[:len(s)-n])
}

func (s *Stream) processTokenReplacements(line *strings.Builder, startPos int) error {
	if len(s.tokenReplacements) == 0 {
		return nil
	}

	text := line.String()
	count := 0
	pos := startPos

	for pos < len(text) {
	tokenLoop:
		for {
			for _, tr := range s.tokenReplacements {
				if strings.HasPrefix(text[pos:], tr.Token) {
					count++
					if count >= maxReplacementsPerLine {
						return ErrTokenReplacementLoop
					}
					text = text[:pos] + tr.Replacement + text[pos+len(tr.Token):]
					continue tokenLoop
				}
			}
			break tokenLoop
		}

		_, size := utf8.DecodeRuneInString(text[pos:])
		pos += size
	}

	line.Reset()
	line.WriteString(text)
	return nil
}

// Error pairs an I/O failure with the source line it occurred on.
// NewFromFile and ReadLine do not construct it: they return the
// underlying os/io error unwrapped.
type Error struct {
	Line int
	Err  error
}

func (e *Error) Error() string {
	return fmt.Sprintf("line %d: %s", e.Line, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }
