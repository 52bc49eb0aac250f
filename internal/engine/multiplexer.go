package engine

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"sync/atomic"
)

// Stream tags which output stream a chunk came from.
type Stream string

const (
	StreamStdout Stream = "stdout"
	StreamStderr Stream = "stderr"
)

// Chunk is one line of child output. Immutable after creation. Seq records
// arrival order across both streams under a shared counter; only per-stream
// ordering is guaranteed — cross-stream interleaving reflects whichever
// reader observed its bytes first.
type Chunk struct {
	Stream Stream
	Line   string // line content without its terminator
	EOL    bool   // false only for a final partial line at stream close
	Seq    uint64
}

// drain reads one stream to end-of-stream, emitting one Chunk per complete
// line and a final partial-line chunk if the stream closes mid-line. Each
// stream gets its own drain goroutine — reading them sequentially can
// deadlock a child whose other pipe buffer fills while nobody drains it.
//
// A read error is treated as end-of-stream for this reader: it is returned
// for the caller to note, but never fails the execution by itself.
func drain(r io.Reader, stream Stream, seq *atomic.Uint64, emit func(Chunk)) error {
	br := bufio.NewReader(r)
	for {
		line, err := br.ReadString('\n')
		if len(line) > 0 {
			eol := line[len(line)-1] == '\n'
			if eol {
				line = line[:len(line)-1]
			}
			emit(Chunk{Stream: stream, Line: line, EOL: eol, Seq: seq.Add(1)})
		}
		if err != nil {
			if errors.Is(err, io.EOF) || errors.Is(err, fs.ErrClosed) {
				return nil
			}
			return fmt.Errorf("reading %s: %w", stream, err)
		}
	}
}

// batchSink accumulates chunks into two growing buffers, reconstructing the
// child's exact bytes (line terminators included, a trailing partial line
// left unterminated). Each buffer is written by exactly one reader
// goroutine, so no locking is needed.
type batchSink struct {
	limit  int
	stdout bytes.Buffer
	stderr bytes.Buffer
}

func newBatchSink(limit int) *batchSink {
	return &batchSink{limit: limit}
}

// consume appends a chunk to its stream's buffer. Output beyond the limit
// is silently discarded — capped, not an error.
func (s *batchSink) consume(c Chunk) {
	buf := &s.stdout
	if c.Stream == StreamStderr {
		buf = &s.stderr
	}
	remaining := s.limit - buf.Len()
	if remaining <= 0 {
		return
	}
	line := c.Line
	if c.EOL {
		line += "\n"
	}
	if len(line) > remaining {
		line = line[:remaining]
	}
	buf.WriteString(line)
}

func (s *batchSink) stdoutString() string { return s.stdout.String() }

func (s *batchSink) stderrString() string { return s.stderr.String() }
