package wire

import (
	"errors"
	"testing"

	"clockmesh"
)

func TestEncodeDecode(t *testing.T) {
	msg := clockmesh.Message{Sender: 2, Clock: 41}

	line := Encode(msg)
	if string(line) != "2 41\n" {
		t.Fatalf("Encode() = %q, want %q", line, "2 41\n")
	}

	got, err := Decode("2 41")
	if err != nil {
		t.Fatalf("Decode() error: %v", err)
	}
	if got != msg {
		t.Errorf("Decode() = %+v, want %+v", got, msg)
	}
}

func TestDecodeMalformed(t *testing.T) {
	cases := []string{
		"",
		"1",
		"1 2 3",
		"x 2",
		"1 y",
		"1 -5",
	}
	for _, line := range cases {
		_, err := Decode(line)
		if err == nil {
			t.Errorf("Decode(%q) = nil error, want DecodeError", line)
			continue
		}
		var derr *DecodeError
		if !errors.As(err, &derr) {
			t.Errorf("Decode(%q) error type = %T, want *DecodeError", line, err)
		}
	}
}

func TestDecodeToleratesExtraWhitespace(t *testing.T) {
	got, err := Decode("  0   7  ")
	if err != nil {
		t.Fatalf("Decode() error: %v", err)
	}
	want := clockmesh.Message{Sender: 0, Clock: 7}
	if got != want {
		t.Errorf("Decode() = %+v, want %+v", got, want)
	}
}
