package wire

import (
	"bytes"
	"testing"
)

func idOf(s string) [IdentitySize]byte {
	var id [IdentitySize]byte
	copy(id[:], s)
	return id
}

func TestWriteReadFrameRoundTrip(t *testing.T) {
	tests := []struct {
		name string
		kind Kind
	}{
		{"RequestVote", KindRequestVote},
		{"AppendEntries", KindAppendEntries},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			buf := new(bytes.Buffer)
			payload := []byte("hello raft")
			sender := idOf("node-a")

			if err := WriteFrame(buf, tt.kind, sender, 7654, 0, payload, nil); err != nil {
				t.Fatalf("WriteFrame: %v", err)
			}

			frame, err := ReadFrame(buf, nil)
			if err != nil {
				t.Fatalf("ReadFrame: %v", err)
			}
			if frame.Header.Kind != tt.kind {
				t.Errorf("kind = %v, want %v", frame.Header.Kind, tt.kind)
			}
			if frame.Header.SenderPort != 7654 {
				t.Errorf("port = %d, want 7654", frame.Header.SenderPort)
			}
			if frame.Header.SenderID != sender {
				t.Errorf("sender id mismatch")
			}
			if !bytes.Equal(frame.Payload, payload) {
				t.Errorf("payload = %q, want %q", frame.Payload, payload)
			}
		})
	}
}

func TestReadFrameBadSignature(t *testing.T) {
	buf := new(bytes.Buffer)
	buf.WriteString("XXXX")
	buf.Write(make([]byte, HeaderSize-4))
	if _, err := ReadFrame(buf, nil); err != ErrBadSignature {
		t.Fatalf("err = %v, want ErrBadSignature", err)
	}
}

func TestReadFrameBadVersion(t *testing.T) {
	buf := new(bytes.Buffer)
	sender := idOf("node-a")
	if err := WriteFrame(buf, KindRequestVote, sender, 1, 0, nil, nil); err != nil {
		t.Fatal(err)
	}
	raw := buf.Bytes()
	raw[4] = 0xFF // corrupt version high byte
	if _, err := ReadFrame(bytes.NewReader(raw), nil); err != ErrBadVersion {
		t.Fatalf("err = %v, want ErrBadVersion", err)
	}
}

func TestFrameMACRoundTrip(t *testing.T) {
	key := []byte("shared-secret-key-for-peer-auth!")
	buf := new(bytes.Buffer)
	sender := idOf("node-b")
	payload := []byte("authenticated payload")

	if err := WriteFrame(buf, KindAppendEntriesResp, sender, 1, 0, payload, key); err != nil {
		t.Fatalf("WriteFrame: %v", err)
	}

	frame, err := ReadFrame(buf, key)
	if err != nil {
		t.Fatalf("ReadFrame with correct key: %v", err)
	}
	if !bytes.Equal(frame.Payload, payload) {
		t.Errorf("payload mismatch after MAC verification")
	}
}

func TestFrameMACRejectsWrongKey(t *testing.T) {
	buf := new(bytes.Buffer)
	sender := idOf("node-b")
	if err := WriteFrame(buf, KindAppendEntriesResp, sender, 1, 0, []byte("x"), []byte("key-one-that-is-long-enough")); err != nil {
		t.Fatal(err)
	}
	if _, err := ReadFrame(buf, []byte("key-two-that-is-also-long-enough")); err != ErrFrameAuth {
		t.Fatalf("err = %v, want ErrFrameAuth", err)
	}
}

func TestRequestVoteRoundTrip(t *testing.T) {
	v := RequestVote{
		Term:         5,
		CandidateID:  idOf("candidate-x"),
		LastLogIndex: 42,
		LastLogTerm:  4,
	}
	got, err := DecodeRequestVote(EncodeRequestVote(v))
	if err != nil {
		t.Fatal(err)
	}
	if got != v {
		t.Errorf("got %+v, want %+v", got, v)
	}
}

func TestAppendEntriesRoundTripNoCompression(t *testing.T) {
	v := AppendEntries{
		Term:              3,
		LeaderID:          idOf("leader"),
		PrevLogIndex:      10,
		PrevLogTerm:       2,
		LeaderCommitIndex: 9,
		Entries: []Entry{
			{Term: 3, Index: 11, Name: "SET", Command: []byte("x=1")},
			{Term: 3, Index: 12, Name: "SET", Command: []byte("y=2")},
		},
	}
	encoded, flags, err := EncodeAppendEntries(v, nil)
	if err != nil {
		t.Fatal(err)
	}
	if flags&FlagCompressed != 0 {
		t.Fatalf("expected no compression flag")
	}
	got, err := DecodeAppendEntries(encoded, false, nil)
	if err != nil {
		t.Fatal(err)
	}
	if len(got.Entries) != 2 || got.Entries[1].Name != "SET" || string(got.Entries[1].Command) != "y=2" {
		t.Errorf("got %+v", got)
	}
}

func TestAppendEntriesTooManyEntries(t *testing.T) {
	entries := make([]Entry, MaxEntriesPerMessage+1)
	_, _, err := EncodeAppendEntries(AppendEntries{Entries: entries}, nil)
	if err != ErrTooManyEntries {
		t.Fatalf("err = %v, want ErrTooManyEntries", err)
	}
}

func TestCompressionRoundTrip(t *testing.T) {
	for _, algo := range []CompressionAlgorithm{CompressionSnappy, CompressionLZ4, CompressionZstd} {
		t.Run(algo.String(), func(t *testing.T) {
			c, err := NewCompressor(algo, 0)
			if err != nil {
				t.Fatal(err)
			}
			entries := make([]Entry, 5)
			for i := range entries {
				entries[i] = Entry{Term: 1, Index: uint64(i + 1), Name: "SET", Command: bytes.Repeat([]byte("payload-data"), 20)}
			}
			v := AppendEntries{Term: 1, Entries: entries}
			encoded, flags, err := EncodeAppendEntries(v, c)
			if err != nil {
				t.Fatal(err)
			}
			if flags&FlagCompressed == 0 {
				t.Fatalf("expected compression flag to be set")
			}
			got, err := DecodeAppendEntries(encoded, true, c)
			if err != nil {
				t.Fatal(err)
			}
			if len(got.Entries) != len(entries) {
				t.Fatalf("got %d entries, want %d", len(got.Entries), len(entries))
			}
			for i := range entries {
				if got.Entries[i].Term != entries[i].Term || got.Entries[i].Index != entries[i].Index ||
					got.Entries[i].Name != entries[i].Name || !bytes.Equal(got.Entries[i].Command, entries[i].Command) {
					t.Errorf("entry %d mismatch: got %+v want %+v", i, got.Entries[i], entries[i])
				}
			}
		})
	}
}

func TestParseCompressionAlgorithm(t *testing.T) {
	tests := map[string]CompressionAlgorithm{
		"":       CompressionNone,
		"none":   CompressionNone,
		"snappy": CompressionSnappy,
		"lz4":    CompressionLZ4,
		"zstd":   CompressionZstd,
	}
	for in, want := range tests {
		got, err := ParseCompressionAlgorithm(in)
		if err != nil {
			t.Fatalf("ParseCompressionAlgorithm(%q): %v", in, err)
		}
		if got != want {
			t.Errorf("ParseCompressionAlgorithm(%q) = %v, want %v", in, got, want)
		}
	}
	if _, err := ParseCompressionAlgorithm("bogus"); err == nil {
		t.Errorf("expected error for unknown algorithm")
	}
}
