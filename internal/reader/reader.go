// Package reader owns exclusive access to the physical NFC reader and
// presents it to the rest of the system through the Gateway.
package reader

import "context"

// Tag is a tag currently presented to the reader.
type Tag interface {
	// UID returns the tag's hardware identifier as lowercase hex. It is
	// used only for duplicate-presentation detection, never for identity
	// lookup.
	UID() string

	// ReadNDEF returns the raw NDEF message stored on the tag. A tag
	// without an NDEF area returns ErrNotNDEF.
	ReadNDEF() ([]byte, error)

	// WriteNDEF replaces the tag's record area with the given message.
	WriteNDEF(msg []byte) error

	// Close releases the tag.
	Close() error
}

// Device is a connected reader. Implementations block in WaitForTag until a
// tag is presented or the context ends.
type Device interface {
	WaitForTag(ctx context.Context) (Tag, error)
	Close() error
}

// Config selects and parameterizes a device implementation.
type Config struct {
	Type string // "pcsc", "mock", "none"
	Name string // reader name filter, pcsc only
}

// Open creates a Device based on the provided configuration.
func Open(cfg Config) (Device, error) {
	switch cfg.Type {
	case "mock":
		return NewMock(), nil
	case "none":
		return nil, ErrUnavailable
	default:
		return OpenPCSC(cfg.Name)
	}
}
