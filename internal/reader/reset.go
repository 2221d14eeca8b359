package reader

import (
	"errors"
	"time"

	"github.com/ebfe/scard"
	"github.com/google/gousb"
)

// ACR122 USB identifiers, used only for the low-level reset path.
const (
	acr122Vendor  = 0x072F
	acr122Product = 0x2200
)

// defaultResets returns the reset strategies for a config: a USB-level
// device reset first, then a PC/SC context bounce. Either succeeding is
// enough for the supervisor to attempt a reopen.
func defaultResets(cfg Config) []func() error {
	if cfg.Type == "mock" || cfg.Type == "none" {
		return nil
	}
	return []func() error{usbReset, pcscReset}
}

// usbReset re-enumerates the reader at the USB level, the equivalent of a
// replug. Succeeds trivially when no matching device is attached.
func usbReset() error {
	usb := gousb.NewContext()
	defer usb.Close()

	dev, err := usb.OpenDeviceWithVIDPID(gousb.ID(acr122Vendor), gousb.ID(acr122Product))
	if err != nil {
		return err
	}
	if dev == nil {
		return errors.New("no matching usb device")
	}
	defer dev.Close()
	if err := dev.Reset(); err != nil {
		return err
	}
	// Give the OS a moment to re-enumerate before callers reopen.
	time.Sleep(600 * time.Millisecond)
	return nil
}

// pcscReset bounces a PC/SC context, which forces the daemon to drop any
// stale handle on the reader.
func pcscReset() error {
	ctx, err := scard.EstablishContext()
	if err != nil {
		return err
	}
	defer ctx.Release()
	if _, err := ctx.ListReaders(); err != nil {
		return err
	}
	return nil
}
