package hl7v2

import (
	"fmt"
	"strings"
	"time"

	"github.com/ehr/notexport/internal/platform/escape"
)

// Message is a parsed HL7 v2 message.
type Message struct {
	Type         string    // MSH-9
	ControlID    string    // MSH-10
	Version      string    // MSH-12
	Timestamp    time.Time // MSH-7
	SendingApp   string    // MSH-3
	SendingFac   string    // MSH-4
	ReceivingApp string    // MSH-5
	ReceivingFac string    // MSH-6
	Segments     []Segment
}

// Segment is a single segment. Fields are indexed so that Fields[0] is the
// first field after the segment name. For MSH, Fields[0] is MSH-1 (the
// field separator) so that HL7 field numbering lines up everywhere.
type Segment struct {
	Name   string
	Fields []string
}

// Parse parses raw message bytes. \r, \n and \r\n are all accepted as
// segment terminators.
func Parse(raw []byte) (*Message, error) {
	if len(raw) == 0 {
		return nil, fmt.Errorf("hl7v2: message is empty")
	}

	text := strings.ReplaceAll(string(raw), "\r\n", "\r")
	text = strings.ReplaceAll(text, "\n", "\r")

	var lines []string
	for _, line := range strings.Split(text, "\r") {
		if line = strings.TrimSpace(line); line != "" {
			lines = append(lines, line)
		}
	}
	if len(lines) == 0 {
		return nil, fmt.Errorf("hl7v2: no segments found")
	}
	if !strings.HasPrefix(lines[0], "MSH") {
		return nil, fmt.Errorf("hl7v2: first segment must be MSH, got %q", lines[0][:min(3, len(lines[0]))])
	}

	msg := &Message{}
	for _, line := range lines {
		seg, err := parseSegment(line)
		if err != nil {
			return nil, fmt.Errorf("hl7v2: failed to parse segment: %w", err)
		}
		msg.Segments = append(msg.Segments, seg)
	}

	msh := msg.Segments[0]
	msg.SendingApp = msh.Field(3)
	msg.SendingFac = msh.Field(4)
	msg.ReceivingApp = msh.Field(5)
	msg.ReceivingFac = msh.Field(6)
	msg.Type = msh.Field(9)
	msg.ControlID = msh.Field(10)
	msg.Version = msh.Field(12)
	if ts := msh.Field(7); ts != "" {
		t, err := time.Parse(TimestampLayout, ts)
		if err != nil {
			return nil, fmt.Errorf("hl7v2: invalid MSH-7 timestamp %q: %w", ts, err)
		}
		msg.Timestamp = t
	}
	return msg, nil
}

func parseSegment(line string) (Segment, error) {
	if len(line) < 3 {
		return Segment{}, fmt.Errorf("segment too short: %q", line)
	}
	name := line[:3]
	if name == "MSH" {
		if len(line) < 8 || line[3] != '|' {
			return Segment{}, fmt.Errorf("malformed MSH segment")
		}
		// MSH-1 is the separator itself and MSH-2 the encoding characters.
		rest := strings.Split(line[4:], "|")
		return Segment{Name: name, Fields: append([]string{"|"}, rest...)}, nil
	}
	if len(line) == 3 {
		return Segment{Name: name}, nil
	}
	if line[3] != '|' {
		return Segment{}, fmt.Errorf("segment %q missing field separator", name)
	}
	return Segment{Name: name, Fields: strings.Split(line[4:], "|")}, nil
}

// Field returns the raw value of field n (1-based), or "" when absent.
func (s Segment) Field(n int) string {
	if n < 1 || n > len(s.Fields) {
		return ""
	}
	return s.Fields[n-1]
}

// Component returns component c (1-based) of field n, unescaped.
func (s Segment) Component(n, c int) string {
	parts := strings.Split(s.Field(n), "^")
	if c < 1 || c > len(parts) {
		return ""
	}
	return escape.UnescapeHL7(parts[c-1])
}

// Value returns field n unescaped.
func (s Segment) Value(n int) string {
	return escape.UnescapeHL7(s.Field(n))
}

// SegmentsByName returns every segment with the given name, in order.
func (m *Message) SegmentsByName(name string) []Segment {
	var out []Segment
	for _, s := range m.Segments {
		if s.Name == name {
			out = append(out, s)
		}
	}
	return out
}

// FirstSegment returns the first segment with the given name.
func (m *Message) FirstSegment(name string) (Segment, bool) {
	for _, s := range m.Segments {
		if s.Name == name {
			return s, true
		}
	}
	return Segment{}, false
}

// NoteText reassembles the OBX text lines of a note message.
func (m *Message) NoteText() string {
	var lines []string
	for _, obx := range m.SegmentsByName("OBX") {
		lines = append(lines, obx.Value(5))
	}
	return strings.Join(lines, "\n")
}
