// Package wire implements the line-oriented text protocol spoken between
// machines: one message per line, "<senderId> <logicalClock>\n", UTF-8.
//
// The protocol carries no acknowledgments and no retransmission; ordering
// and delivery are the transport's job.
package wire

import (
	"fmt"
	"strconv"
	"strings"

	"clockmesh"
)

// DecodeError reports a malformed inbound line. The offending line is
// dropped and the connection stays open.
type DecodeError struct {
	Line   string
	Reason string
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("decode %q: %s", e.Line, e.Reason)
}

// Encode renders msg as one protocol line including the trailing newline.
func Encode(msg clockmesh.Message) []byte {
	return []byte(strconv.Itoa(int(msg.Sender)) + " " + strconv.FormatInt(msg.Clock, 10) + "\n")
}

// Decode parses one protocol line (without the trailing newline).
func Decode(line string) (clockmesh.Message, error) {
	fields := strings.Fields(line)
	if len(fields) != 2 {
		return clockmesh.Message{}, &DecodeError{Line: line, Reason: "want 2 fields"}
	}

	sender, err := strconv.Atoi(fields[0])
	if err != nil {
		return clockmesh.Message{}, &DecodeError{Line: line, Reason: "bad sender id"}
	}
	clock, err := strconv.ParseInt(fields[1], 10, 64)
	if err != nil {
		return clockmesh.Message{}, &DecodeError{Line: line, Reason: "bad clock value"}
	}
	if clock < 0 {
		return clockmesh.Message{}, &DecodeError{Line: line, Reason: "negative clock"}
	}

	return clockmesh.Message{Sender: clockmesh.MachineID(sender), Clock: clock}, nil
}
