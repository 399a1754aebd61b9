package wire

import (
	"encoding/binary"
)

// Entry is the wire representation of a single log entry.
type Entry struct {
	Term    uint64
	Index   uint64
	Name    string
	Command []byte
}

// RequestVote is the RequestVote RPC payload.
type RequestVote struct {
	Term         uint64
	CandidateID  [IdentitySize]byte
	LastLogIndex uint64
	LastLogTerm  uint64
}

// RequestVoteResponse is the RequestVoteResponse RPC payload.
type RequestVoteResponse struct {
	Term        uint64
	VoteGranted bool
}

// AppendEntries is the AppendEntries RPC payload.
type AppendEntries struct {
	Term             uint64
	LeaderID         [IdentitySize]byte
	PrevLogIndex     uint64
	PrevLogTerm      uint64
	LeaderCommitIndex uint64
	Entries          []Entry
}

// AppendEntriesResponse is the AppendEntriesResponse RPC payload.
type AppendEntriesResponse struct {
	Term        uint64
	Index       uint64
	CommitIndex uint64
	OK          bool
}

func putUint64(b []byte, v uint64) { binary.BigEndian.PutUint64(b, v) }
func getUint64(b []byte) uint64    { return binary.BigEndian.Uint64(b) }

// EncodeRequestVote serializes a RequestVote payload.
func EncodeRequestVote(v RequestVote) []byte {
	buf := make([]byte, 8+IdentitySize+8+8)
	putUint64(buf[0:8], v.Term)
	copy(buf[8:8+IdentitySize], v.CandidateID[:])
	off := 8 + IdentitySize
	putUint64(buf[off:off+8], v.LastLogIndex)
	putUint64(buf[off+8:off+16], v.LastLogTerm)
	return buf
}

// DecodeRequestVote parses a RequestVote payload.
func DecodeRequestVote(b []byte) (RequestVote, error) {
	want := 8 + IdentitySize + 16
	if len(b) != want {
		return RequestVote{}, ErrShortFrame
	}
	var v RequestVote
	v.Term = getUint64(b[0:8])
	copy(v.CandidateID[:], b[8:8+IdentitySize])
	off := 8 + IdentitySize
	v.LastLogIndex = getUint64(b[off : off+8])
	v.LastLogTerm = getUint64(b[off+8 : off+16])
	return v, nil
}

// EncodeRequestVoteResponse serializes a RequestVoteResponse payload.
func EncodeRequestVoteResponse(v RequestVoteResponse) []byte {
	buf := make([]byte, 9)
	putUint64(buf[0:8], v.Term)
	if v.VoteGranted {
		buf[8] = 1
	}
	return buf
}

// DecodeRequestVoteResponse parses a RequestVoteResponse payload.
func DecodeRequestVoteResponse(b []byte) (RequestVoteResponse, error) {
	if len(b) != 9 {
		return RequestVoteResponse{}, ErrShortFrame
	}
	return RequestVoteResponse{Term: getUint64(b[0:8]), VoteGranted: b[8] != 0}, nil
}

// EncodeAppendEntriesResponse serializes an AppendEntriesResponse payload.
func EncodeAppendEntriesResponse(v AppendEntriesResponse) []byte {
	buf := make([]byte, 8+8+8+1)
	putUint64(buf[0:8], v.Term)
	putUint64(buf[8:16], v.Index)
	putUint64(buf[16:24], v.CommitIndex)
	if v.OK {
		buf[24] = 1
	}
	return buf
}

// DecodeAppendEntriesResponse parses an AppendEntriesResponse payload.
func DecodeAppendEntriesResponse(b []byte) (AppendEntriesResponse, error) {
	if len(b) != 25 {
		return AppendEntriesResponse{}, ErrShortFrame
	}
	return AppendEntriesResponse{
		Term:        getUint64(b[0:8]),
		Index:       getUint64(b[8:16]),
		CommitIndex: getUint64(b[16:24]),
		OK:          b[24] != 0,
	}, nil
}

func encodeEntry(e Entry) ([]byte, error) {
	if len(e.Name) > MaxNameSize {
		return nil, ErrFieldTooLarge
	}
	if len(e.Command) > MaxCommandSize {
		return nil, ErrFieldTooLarge
	}
	buf := make([]byte, 8+8+1+len(e.Name)+4+len(e.Command))
	putUint64(buf[0:8], e.Term)
	putUint64(buf[8:16], e.Index)
	off := 16
	buf[off] = byte(len(e.Name))
	off++
	off += copy(buf[off:], e.Name)
	binary.BigEndian.PutUint32(buf[off:off+4], uint32(len(e.Command)))
	off += 4
	copy(buf[off:], e.Command)
	return buf, nil
}

func decodeEntry(b []byte) (Entry, int, error) {
	if len(b) < 16+1 {
		return Entry{}, 0, ErrShortFrame
	}
	var e Entry
	e.Term = getUint64(b[0:8])
	e.Index = getUint64(b[8:16])
	off := 16
	nameLen := int(b[off])
	off++
	if nameLen > MaxNameSize || len(b) < off+nameLen+4 {
		return Entry{}, 0, ErrFieldTooLarge
	}
	e.Name = string(b[off : off+nameLen])
	off += nameLen
	cmdLen := int(binary.BigEndian.Uint32(b[off : off+4]))
	off += 4
	if cmdLen > MaxCommandSize || len(b) < off+cmdLen {
		return Entry{}, 0, ErrFieldTooLarge
	}
	e.Command = append([]byte(nil), b[off:off+cmdLen]...)
	off += cmdLen
	return e, off, nil
}

// EncodeAppendEntries serializes an AppendEntries payload. If compress is
// non-nil and the entries section is at least compress.MinSize() bytes,
// the entries are run through it and FlagCompressed is returned so the
// caller can set it on the frame header.
func EncodeAppendEntries(v AppendEntries, compress Compressor) ([]byte, Flag, error) {
	if len(v.Entries) > MaxEntriesPerMessage {
		return nil, 0, ErrTooManyEntries
	}

	head := make([]byte, 8+IdentitySize+8+8+8+2)
	putUint64(head[0:8], v.Term)
	copy(head[8:8+IdentitySize], v.LeaderID[:])
	off := 8 + IdentitySize
	putUint64(head[off:off+8], v.PrevLogIndex)
	putUint64(head[off+8:off+16], v.PrevLogTerm)
	putUint64(head[off+16:off+24], v.LeaderCommitIndex)
	binary.BigEndian.PutUint16(head[off+24:off+26], uint16(len(v.Entries)))

	var entryBytes []byte
	for _, e := range v.Entries {
		eb, err := encodeEntry(e)
		if err != nil {
			return nil, 0, err
		}
		entryBytes = append(entryBytes, eb...)
	}

	var flags Flag
	if compress != nil && len(entryBytes) >= compress.MinSize() {
		compressed := compress.Compress(entryBytes)
		entryBytes = compressed
		flags |= FlagCompressed
	}

	return append(head, entryBytes...), flags, nil
}

// DecodeAppendEntries parses an AppendEntries payload, decompressing the
// entries section first if decompress is provided and flagCompressed is set.
func DecodeAppendEntries(b []byte, flagCompressed bool, decompress Compressor) (AppendEntries, error) {
	fixedLen := 8 + IdentitySize + 8 + 8 + 8 + 2
	if len(b) < fixedLen {
		return AppendEntries{}, ErrShortFrame
	}
	var v AppendEntries
	v.Term = getUint64(b[0:8])
	copy(v.LeaderID[:], b[8:8+IdentitySize])
	off := 8 + IdentitySize
	v.PrevLogIndex = getUint64(b[off : off+8])
	v.PrevLogTerm = getUint64(b[off+8 : off+16])
	v.LeaderCommitIndex = getUint64(b[off+16 : off+24])
	count := binary.BigEndian.Uint16(b[off+24 : off+26])
	if int(count) > MaxEntriesPerMessage {
		return AppendEntries{}, ErrTooManyEntries
	}

	rest := b[fixedLen:]
	if flagCompressed {
		if decompress == nil {
			return AppendEntries{}, ErrFieldTooLarge
		}
		decoded, err := decompress.Decompress(rest)
		if err != nil {
			return AppendEntries{}, err
		}
		rest = decoded
	}

	v.Entries = make([]Entry, 0, count)
	for i := uint16(0); i < count; i++ {
		e, n, err := decodeEntry(rest)
		if err != nil {
			return AppendEntries{}, err
		}
		v.Entries = append(v.Entries, e)
		rest = rest[n:]
	}
	return v, nil
}
