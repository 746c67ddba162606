package protocol

import (
	"bufio"
	"fmt"
	"io"
	"sync/atomic"
)

// Reader feeds lines from an io.Reader (the measurement process's stdout)
// into a Parser.
type Reader struct {
	reader io.Reader
	parser *Parser

	bytesRead atomic.Int64
	linesRead atomic.Int64
}

// NewReader creates a reader feeding p.
func NewReader(r io.Reader, p *Parser) *Reader {
	return &Reader{reader: r, parser: p}
}

// Run reads lines until EOF or until the parser reports a desync, whichever
// comes first. It returns the *DesyncError or a read error.
func (r *Reader) Run() error {
	scanner := bufio.NewScanner(r.reader)

	// Benchmarks may print long lines of their own.
	const maxLineSize = 64 * 1024
	scanner.Buffer(make([]byte, maxLineSize), 1024*1024)

	for scanner.Scan() {
		line := scanner.Text()
		r.bytesRead.Add(int64(len(line) + 1))
		r.linesRead.Add(1)
		if err := r.parser.Feed(line); err != nil {
			return err
		}
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("read measurement stream: %w", err)
	}
	return nil
}

// Stats returns bytes and lines read so far.
func (r *Reader) Stats() (bytesRead, linesRead int64) {
	return r.bytesRead.Load(), r.linesRead.Load()
}

// ParseStream parses a whole stream and returns the entries in order. On
// desync the entries parsed before the bad line are returned with the error.
func ParseStream(r io.Reader, cb ParserCallbacks) ([]Entry, error) {
	p := NewParser(cb)
	err := NewReader(r, p).Run()
	return p.Entries(), err
}
