package ir

// Word is the uniform integer type used for node identifiers, immediate
// values, type tags, and register/group identifiers throughout the IR.
type Word = int64

// Buffer is a byte vector that words are appended to in a variable-length
// zig-zag encoding. The encoding is self-delimiting in both directions:
// every byte of a word's encoding except the last one written has its
// high bit (0x80) set. Forward decoding stops at the first clear-bit byte;
// backward scanning walks back while the preceding byte has its bit set,
// which lands exactly on the word's first byte. Both directions recover
// the exact stored value.
type Buffer struct {
	b []byte
}

// Len returns the number of bytes currently stored.
func (buf *Buffer) Len() int { return len(buf.b) }

// Bytes returns the underlying byte slice. Callers must not retain it
// across further Appends, which may reallocate.
func (buf *Buffer) Bytes() []byte { return buf.b }

func zigzagEncode(v int64) uint64 {
	return uint64((v << 1) ^ (v >> 63))
}

func zigzagDecode(u uint64) int64 {
	return int64(u>>1) ^ -int64(u&1)
}

// Append writes v and returns the byte offset it was written at.
func (buf *Buffer) Append(v int64) int {
	pos := len(buf.b)
	u := zigzagEncode(v)
	for {
		b := byte(u & 0x7f)
		u >>= 7
		if u == 0 {
			buf.b = append(buf.b, b)
			break
		}
		buf.b = append(buf.b, b|0x80)
	}
	return pos
}

// ReadForward decodes the word starting at pos and returns the value and
// the position just past its encoding.
func (buf *Buffer) ReadForward(pos int) (int64, int) {
	var u uint64
	var shift uint
	p := pos
	for {
		b := buf.b[p]
		p++
		u |= uint64(b&0x7f) << shift
		if b&0x80 == 0 {
			break
		}
		shift += 7
	}
	return zigzagDecode(u), p
}

// ReadBackward locates the word whose encoding ends exactly at end (i.e.
// end is the offset one past its last byte) and returns its value and
// its start offset.
func (buf *Buffer) ReadBackward(end int) (int64, int) {
	start := end - 1
	for start > 0 && buf.b[start-1]&0x80 != 0 {
		start--
	}
	v, _ := buf.ReadForward(start)
	return v, start
}
