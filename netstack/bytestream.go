package netstack

////////////////////////////////////////////////////////////////////////////////
// ByteStream: a flow-controlled in-memory byte FIFO.
////////////////////////////////////////////////////////////////////////////////

// ByteStream is a finite-capacity FIFO of bytes with a writer side and a
// reader side. The writer may end the input; either side may flag an error
// (used to propagate connection resets). Short writes are normal, not errors.
//
// A ByteStream is owned by a single component and is not safe for concurrent
// use.
type ByteStream struct {
	buf     []byte // ring storage, len(buf) == capacity
	start   int    // index of the first buffered byte
	size    int    // number of buffered bytes
	written uint64 // total bytes ever accepted
	read    uint64 // total bytes ever popped
	closed  bool
	errored bool
}

// NewByteStream constructs a stream holding at most capacity bytes.
func NewByteStream(capacity int) *ByteStream {
	return &ByteStream{buf: make([]byte, capacity)}
}

// Write appends as much of data as fits and returns the accepted count.
func (s *ByteStream) Write(data []byte) int {
	n := len(data)
	if remaining := s.RemainingCapacity(); n > remaining {
		n = remaining
	}
	for i := 0; i < n; i++ {
		s.buf[(s.start+s.size+i)%len(s.buf)] = data[i]
	}
	s.size += n
	s.written += uint64(n)
	return n
}

// Peek returns a copy of the first min(n, buffered) bytes without consuming.
func (s *ByteStream) Peek(n int) []byte {
	if n > s.size {
		n = s.size
	}
	out := make([]byte, n)
	for i := 0; i < n; i++ {
		out[i] = s.buf[(s.start+i)%len(s.buf)]
	}
	return out
}

// Pop discards the first min(n, buffered) bytes and returns how many.
func (s *ByteStream) Pop(n int) int {
	if n > s.size {
		n = s.size
	}
	if n > 0 {
		s.start = (s.start + n) % len(s.buf)
	}
	s.size -= n
	s.read += uint64(n)
	return n
}

// Read peeks then pops.
func (s *ByteStream) Read(n int) []byte {
	out := s.Peek(n)
	s.Pop(len(out))
	return out
}

// EndInput marks the writer side closed. Buffered bytes stay readable.
func (s *ByteStream) EndInput() { s.closed = true }

// SetError flags the stream as errored.
func (s *ByteStream) SetError() { s.errored = true }

// InputEnded reports whether the writer side has closed the stream.
func (s *ByteStream) InputEnded() bool { return s.closed }

// Error reports whether the stream is flagged as errored.
func (s *ByteStream) Error() bool { return s.errored }

// Buffered returns the number of bytes written but not yet read.
func (s *ByteStream) Buffered() int { return s.size }

// RemainingCapacity returns how many more bytes Write would accept.
func (s *ByteStream) RemainingCapacity() int { return len(s.buf) - s.size }

// EOF holds once the input has ended and everything buffered was read.
func (s *ByteStream) EOF() bool { return s.closed && s.size == 0 }

// BytesWritten returns the total number of bytes ever accepted.
func (s *ByteStream) BytesWritten() uint64 { return s.written }

// BytesRead returns the total number of bytes ever popped.
func (s *ByteStream) BytesRead() uint64 { return s.read }
