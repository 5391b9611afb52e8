// Package pcsc talks to NFC readers over PC/SC. It is the only package
// that touches radio hardware.
package pcsc

import (
	"errors"
	"fmt"

	"github.com/ebfe/scard"
)

const (
	pageSize = 4

	// Capability container layout for NFC Forum Type 2 tags.
	ccPage  = 0x03
	ccMagic = 0xE1

	// Data area bounds. NTAG213 data ends at page 0x27; reads past the
	// end of smaller tags just fail and stop the loop.
	dataStartPage = 0x04
	dataEndPage   = 0x28
)

var (
	ErrShortResponse = errors.New("pcsc: short APDU response")
	ErrNotNDEF       = errors.New("pcsc: tag has no NDEF capability container")
	ErrNoData        = errors.New("pcsc: empty tag data area")
)

// uidAPDU is the ACR/PCSC pseudo-APDU FF CA 00 00 00 fetching the card UID.
func uidAPDU() []byte {
	return []byte{0xFF, 0xCA, 0x00, 0x00, 0x00}
}

// readPageAPDU reads one 4-byte page from a Type 2 tag.
func readPageAPDU(page byte) []byte {
	return []byte{0xFF, 0xB0, 0x00, page, pageSize}
}

// writePageAPDU writes one 4-byte page to a Type 2 tag.
func writePageAPDU(page byte, data []byte) []byte {
	return append([]byte{0xFF, 0xD6, 0x00, page, pageSize}, data...)
}

// transmit sends an APDU and strips the status word, failing on anything
// but SW 9000.
func transmit(card *scard.Card, apdu []byte) ([]byte, error) {
	resp, err := card.Transmit(apdu)
	if err != nil {
		return nil, err
	}
	if len(resp) < 2 {
		return nil, ErrShortResponse
	}
	sw1 := resp[len(resp)-2]
	sw2 := resp[len(resp)-1]
	if sw1 != 0x90 || sw2 != 0x00 {
		return nil, fmt.Errorf("pcsc: APDU failed: SW=%02X%02X", sw1, sw2)
	}
	return resp[:len(resp)-2], nil
}

// ndefCapable reports whether a capability container page marks the tag
// as NDEF-bearing.
func ndefCapable(cc []byte) bool {
	return len(cc) > 0 && cc[0] == ccMagic
}
