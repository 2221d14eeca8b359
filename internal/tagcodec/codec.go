// Package tagcodec translates between a tag's on-device NDEF storage and
// the payload string that identifies a student.
package tagcodec

import (
	"errors"
	"fmt"

	ndef "github.com/hsanjuan/go-ndef"

	"schooltrack/internal/reader"
)

// Failure reasons surfaced by Decode. These are diagnostics, not errors: a
// tag that yields no payload is skipped, never fails the scan cycle.
const (
	ReasonNotNDEF      = "tag is not NDEF-compatible"
	ReasonEmpty        = "tag has no NDEF records"
	ReasonNoTextRecord = "no text record found on tag"
)

// Decode reads the tag's record set and extracts the first text record's
// content as the payload. A missing or unusable payload is reported through
// the reason string with an empty payload; codec-level problems never
// propagate as errors.
func Decode(t reader.Tag) (payload string, reason string) {
	raw, err := t.ReadNDEF()
	if err != nil {
		if errors.Is(err, reader.ErrNotNDEF) {
			return "", ReasonNotNDEF
		}
		return "", fmt.Sprintf("ndef read failed: %v", err)
	}
	if len(raw) == 0 {
		return "", ReasonEmpty
	}

	msg := &ndef.Message{}
	if _, err := msg.Unmarshal(raw); err != nil {
		return "", fmt.Sprintf("ndef parse failed: %v", err)
	}
	for _, rec := range msg.Records {
		if rec.TNF() != ndef.NFCForumWellKnownType || rec.Type() != "T" {
			continue
		}
		p, err := rec.Payload()
		if err != nil {
			return "", fmt.Sprintf("text payload decode failed: %v", err)
		}
		return p.String(), ""
	}
	return "", ReasonNoTextRecord
}

// Encode replaces the tag's entire record set with a single text record
// carrying the payload.
func Encode(t reader.Tag, payload string) error {
	msg := ndef.NewTextMessage(payload, "en")
	raw, err := msg.Marshal()
	if err != nil {
		return fmt.Errorf("ndef marshal: %w", err)
	}
	return t.WriteNDEF(raw)
}
