package reader

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/ebfe/scard"
)

// PCSC is a Device backed by a PC/SC reader (ACR122-class).
type PCSC struct {
	ctx    *scard.Context
	reader string
}

// OpenPCSC establishes a PC/SC context and binds to the first reader whose
// name contains nameFilter (any reader when empty).
func OpenPCSC(nameFilter string) (*PCSC, error) {
	ctx, err := scard.EstablishContext()
	if err != nil {
		return nil, fmt.Errorf("establish pcsc context: %w", err)
	}
	readers, err := ctx.ListReaders()
	if err != nil {
		_ = ctx.Release()
		return nil, fmt.Errorf("list readers: %w", err)
	}
	name := ""
	for _, r := range readers {
		if nameFilter == "" || strings.Contains(r, nameFilter) {
			name = r
			break
		}
	}
	if name == "" {
		_ = ctx.Release()
		return nil, ErrUnavailable
	}
	return &PCSC{ctx: ctx, reader: name}, nil
}

// WaitForTag blocks until a tag is presented or ctx ends. Presence is
// polled through GetStatusChange in short slices so cancellation is
// observed promptly.
func (d *PCSC) WaitForTag(ctx context.Context) (Tag, error) {
	states := []scard.ReaderState{{
		Reader:       d.reader,
		CurrentState: scard.StateUnaware,
	}}
	for {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		default:
		}

		err := d.ctx.GetStatusChange(states, 250*time.Millisecond)
		if err != nil && !errors.Is(err, scard.ErrTimeout) {
			return nil, fmt.Errorf("status change: %w", err)
		}
		states[0].CurrentState = states[0].EventState

		if states[0].EventState&scard.StatePresent == 0 {
			continue
		}
		card, err := d.ctx.Connect(d.reader, scard.ShareShared, scard.ProtocolAny)
		if err != nil {
			// Tag lifted between detection and connect; keep waiting.
			continue
		}
		tag := &pcscTag{card: card}
		if _, err := tag.uid(); err != nil {
			_ = card.Disconnect(scard.LeaveCard)
			return nil, fmt.Errorf("read uid: %w", err)
		}
		return tag, nil
	}
}

// Close releases the PC/SC context.
func (d *PCSC) Close() error {
	if d.ctx == nil {
		return nil
	}
	err := d.ctx.Release()
	d.ctx = nil
	return err
}

// pcscTag speaks the ACR122 pseudo-APDU set to a Type 2 tag (NTAG21x,
// Ultralight). The NDEF area is a TLV sequence in the user pages starting
// at page 4.
type pcscTag struct {
	card      *scard.Card
	cachedUID string
}

const (
	t2PageSize   = 4
	t2DataPage   = 4
	t2MaxPage    = 0xE2
	tlvNDEF      = 0x03
	tlvTerminate = 0xFE
)

func (t *pcscTag) UID() string {
	uid, err := t.uid()
	if err != nil {
		return ""
	}
	return uid
}

func (t *pcscTag) uid() (string, error) {
	if t.cachedUID != "" {
		return t.cachedUID, nil
	}
	// GET DATA: FF CA 00 00 00 returns the tag serial.
	resp, err := t.transmit([]byte{0xFF, 0xCA, 0x00, 0x00, 0x00})
	if err != nil {
		return "", err
	}
	t.cachedUID = hex.EncodeToString(resp)
	return t.cachedUID, nil
}

// ReadNDEF walks the user pages until the NDEF TLV is found and returns the
// contained message bytes.
func (t *pcscTag) ReadNDEF() ([]byte, error) {
	var area []byte
	for page := byte(t2DataPage); page < t2MaxPage; page += 4 {
		// READ BINARY reads 16 bytes (4 pages) per call.
		chunk, err := t.transmit([]byte{0xFF, 0xB0, 0x00, page, 0x10})
		if err != nil {
			if page == t2DataPage {
				return nil, ErrNotNDEF
			}
			break
		}
		area = append(area, chunk...)
		if done, msg := extractNDEF(area); done {
			return msg, nil
		}
	}
	if done, msg := extractNDEF(area); done {
		return msg, nil
	}
	return nil, ErrNotNDEF
}

// extractNDEF scans a TLV area for the NDEF message TLV. Returns true once
// the full message is available (or the area is conclusively not NDEF).
func extractNDEF(area []byte) (bool, []byte) {
	i := 0
	for i < len(area) {
		switch area[i] {
		case 0x00: // null TLV
			i++
		case tlvTerminate:
			return true, nil
		case tlvNDEF:
			if i+1 >= len(area) {
				return false, nil
			}
			length := int(area[i+1])
			start := i + 2
			if length == 0xFF {
				// three-byte length form
				if i+3 >= len(area) {
					return false, nil
				}
				length = int(area[i+2])<<8 | int(area[i+3])
				start = i + 4
			}
			if start+length > len(area) {
				return false, nil
			}
			return true, area[start : start+length]
		default:
			// Skip unknown TLV (lock control etc).
			if i+1 >= len(area) {
				return false, nil
			}
			i += 2 + int(area[i+1])
		}
	}
	return false, nil
}

// WriteNDEF replaces the tag's record area with the given message, wrapped
// in an NDEF TLV and a terminator.
func (t *pcscTag) WriteNDEF(msg []byte) error {
	var area []byte
	if len(msg) < 0xFF {
		area = append([]byte{tlvNDEF, byte(len(msg))}, msg...)
	} else {
		area = append([]byte{tlvNDEF, 0xFF, byte(len(msg) >> 8), byte(len(msg))}, msg...)
	}
	area = append(area, tlvTerminate)
	for len(area)%t2PageSize != 0 {
		area = append(area, 0x00)
	}

	page := byte(t2DataPage)
	for off := 0; off < len(area); off += t2PageSize {
		// UPDATE BINARY writes one 4-byte page per call.
		cmd := append([]byte{0xFF, 0xD6, 0x00, page, t2PageSize}, area[off:off+t2PageSize]...)
		if _, err := t.transmit(cmd); err != nil {
			return fmt.Errorf("write page %d: %w", page, err)
		}
		page++
	}
	return nil
}

func (t *pcscTag) Close() error {
	if t.card == nil {
		return nil
	}
	err := t.card.Disconnect(scard.LeaveCard)
	t.card = nil
	return err
}

// transmit sends an APDU and strips the status word, failing on anything
// but 90 00.
func (t *pcscTag) transmit(cmd []byte) ([]byte, error) {
	resp, err := t.card.Transmit(cmd)
	if err != nil {
		return nil, err
	}
	if len(resp) < 2 {
		return nil, errors.New("short apdu response")
	}
	sw1, sw2 := resp[len(resp)-2], resp[len(resp)-1]
	if sw1 != 0x90 || sw2 != 0x00 {
		return nil, fmt.Errorf("apdu status %02x%02x", sw1, sw2)
	}
	return resp[:len(resp)-2], nil
}
