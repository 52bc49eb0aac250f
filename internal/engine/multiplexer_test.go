package engine

import (
	"io"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
)

func TestDrain_SplitsLines(t *testing.T) {
	var seq atomic.Uint64
	var chunks []Chunk

	err := drain(strings.NewReader("one\ntwo\n"), StreamStdout, &seq, func(c Chunk) {
		chunks = append(chunks, c)
	})
	if err != nil {
		t.Fatalf("drain: %v", err)
	}

	if len(chunks) != 2 {
		t.Fatalf("got %d chunks, want 2", len(chunks))
	}
	if chunks[0].Line != "one" || !chunks[0].EOL {
		t.Errorf("chunk[0] = %+v, want complete line %q", chunks[0], "one")
	}
	if chunks[1].Line != "two" || !chunks[1].EOL {
		t.Errorf("chunk[1] = %+v, want complete line %q", chunks[1], "two")
	}
	if chunks[0].Seq >= chunks[1].Seq {
		t.Errorf("sequence not increasing: %d then %d", chunks[0].Seq, chunks[1].Seq)
	}
}

func TestDrain_EmitsTrailingPartialLine(t *testing.T) {
	var seq atomic.Uint64
	var chunks []Chunk

	err := drain(strings.NewReader("full\npartial"), StreamStderr, &seq, func(c Chunk) {
		chunks = append(chunks, c)
	})
	if err != nil {
		t.Fatalf("drain: %v", err)
	}

	if len(chunks) != 2 {
		t.Fatalf("got %d chunks, want 2", len(chunks))
	}
	last := chunks[1]
	if last.Line != "partial" || last.EOL {
		t.Errorf("trailing chunk = %+v, want partial line %q", last, "partial")
	}
	if last.Stream != StreamStderr {
		t.Errorf("Stream = %q, want %q", last.Stream, StreamStderr)
	}
}

func TestDrain_EmptyStream(t *testing.T) {
	var seq atomic.Uint64
	called := false

	err := drain(strings.NewReader(""), StreamStdout, &seq, func(Chunk) { called = true })
	if err != nil {
		t.Fatalf("drain: %v", err)
	}
	if called {
		t.Error("emit called for empty stream")
	}
}

type failingReader struct{}

func (failingReader) Read([]byte) (int, error) {
	return 0, io.ErrUnexpectedEOF
}

func TestDrain_ReadErrorReturned(t *testing.T) {
	var seq atomic.Uint64

	err := drain(failingReader{}, StreamStdout, &seq, func(Chunk) {})
	if err == nil {
		t.Fatal("drain returned nil for failing reader, want error")
	}
}

func TestBatchSink_ReconstructsBytes(t *testing.T) {
	s := newBatchSink(1 << 20)
	var seq atomic.Uint64

	_ = drain(strings.NewReader("a\nb\ntail"), StreamStdout, &seq, s.consume)
	_ = drain(strings.NewReader("e\n"), StreamStderr, &seq, s.consume)

	if got := s.stdoutString(); got != "a\nb\ntail" {
		t.Errorf("stdout = %q, want %q", got, "a\nb\ntail")
	}
	if got := s.stderrString(); got != "e\n" {
		t.Errorf("stderr = %q, want %q", got, "e\n")
	}
}

func TestBatchSink_CapsOutput(t *testing.T) {
	s := newBatchSink(4)

	s.consume(Chunk{Stream: StreamStdout, Line: "abcdef", EOL: true, Seq: 1})
	s.consume(Chunk{Stream: StreamStdout, Line: "more", EOL: true, Seq: 2})

	if got := s.stdoutString(); got != "abcd" {
		t.Errorf("stdout = %q, want %q", got, "abcd")
	}
}

func TestDrain_ConcurrentStreamsSharedCounter(t *testing.T) {
	// Both drains feed one counter; per-stream order must be preserved even
	// when chunks interleave.
	var seq atomic.Uint64
	var mu sync.Mutex
	byStream := map[Stream][]Chunk{}
	emit := func(c Chunk) {
		mu.Lock()
		byStream[c.Stream] = append(byStream[c.Stream], c)
		mu.Unlock()
	}

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		_ = drain(strings.NewReader("o1\no2\no3\n"), StreamStdout, &seq, emit)
	}()
	go func() {
		defer wg.Done()
		_ = drain(strings.NewReader("e1\ne2\ne3\n"), StreamStderr, &seq, emit)
	}()
	wg.Wait()

	for stream, chunks := range byStream {
		for i := 1; i < len(chunks); i++ {
			if chunks[i-1].Seq >= chunks[i].Seq {
				t.Errorf("%s sequence not increasing: %d then %d", stream, chunks[i-1].Seq, chunks[i].Seq)
			}
		}
	}
	if len(byStream[StreamStdout]) != 3 || len(byStream[StreamStderr]) != 3 {
		t.Errorf("chunk counts = %d/%d, want 3/3",
			len(byStream[StreamStdout]), len(byStream[StreamStderr]))
	}
}
