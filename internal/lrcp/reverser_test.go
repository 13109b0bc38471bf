package lrcp_test

import (
	"bytes"
	"testing"

	"github.com/m-lab/protocol-challenges/internal/lrcp"
)

func TestReverserSingleLine(t *testing.T) {
	r := lrcp.NewReverser()
	out := r.Write([]byte("hello\n"))
	if !bytes.Equal(out, []byte("olleh\n")) {
		t.Errorf("Write(%q) = %q, want %q", "hello\n", out, "olleh\n")
	}
}

func TestReverserWithholdsPartialLine(t *testing.T) {
	r := lrcp.NewReverser()
	out := r.Write([]byte("hel"))
	if len(out) != 0 {
		t.Errorf("Write(partial) produced output %q before a newline", out)
	}
	out = r.Write([]byte("lo\n"))
	if !bytes.Equal(out, []byte("olleh\n")) {
		t.Errorf("Write(completion) = %q, want %q", out, "olleh\n")
	}
}

func TestReverserMultipleLinesInOneWrite(t *testing.T) {
	r := lrcp.NewReverser()
	out := r.Write([]byte("abc\ndef\n"))
	if !bytes.Equal(out, []byte("cba\nfed\n")) {
		t.Errorf("Write(two lines) = %q, want %q", out, "cba\nfed\n")
	}
}

func TestReverserArbitrarySplit(t *testing.T) {
	full := "the quick brown fox\njumps over\nthe lazy dog\n"
	want := "xof nworb kciuq eht\nrevo spmuj\ngod yzal eht\n"

	for split := 0; split <= len(full); split++ {
		r := lrcp.NewReverser()
		var got []byte
		got = append(got, r.Write([]byte(full[:split]))...)
		got = append(got, r.Write([]byte(full[split:]))...)
		if string(got) != want {
			t.Fatalf("split at %d: got %q, want %q", split, got, want)
		}
	}
}

func TestReverserEmptyLine(t *testing.T) {
	r := lrcp.NewReverser()
	out := r.Write([]byte("\n"))
	if !bytes.Equal(out, []byte("\n")) {
		t.Errorf("Write(empty line) = %q, want %q", out, "\n")
	}
}
