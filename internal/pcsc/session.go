package pcsc

import (
	"bytes"
	"fmt"

	"github.com/ebfe/scard"

	"github.com/mkrell/buildreg/internal/ndef"
)

// Session is one connected card. It implements scanner.TagSession and
// additionally supports page writes for the companion encoder.
type Session struct {
	card *scard.Card
}

// Identifier fetches the raw card UID.
func (s *Session) Identifier() ([]byte, error) {
	return transmit(s.card, uidAPDU())
}

// ReadPages gates on the capability container and then collects the data
// area page by page, stopping at the terminator TLV or the first read
// failure. A truncated tail is returned as-is; the parser copes.
func (s *Session) ReadPages() ([]byte, error) {
	cc, err := s.readPage(ccPage)
	if err != nil {
		return nil, fmt.Errorf("read capability container: %w", err)
	}
	if !ndefCapable(cc) {
		return nil, ErrNotNDEF
	}

	var out []byte
	for page := byte(dataStartPage); page < dataEndPage; page++ {
		b, err := s.readPage(page)
		if err != nil {
			break
		}
		out = append(out, b...)
		if bytes.IndexByte(b, ndef.TLVTerminator) >= 0 {
			break
		}
	}
	if len(out) == 0 {
		return nil, ErrNoData
	}
	return out, nil
}

// Release disconnects, leaving the card powered for removal detection.
func (s *Session) Release() error {
	return s.card.Disconnect(scard.LeaveCard)
}

func (s *Session) readPage(page byte) ([]byte, error) {
	return transmit(s.card, readPageAPDU(page))
}

func (s *Session) writePage(page byte, data []byte) error {
	if len(data) != pageSize {
		return fmt.Errorf("pcsc: page write must be %d bytes, got %d", pageSize, len(data))
	}
	_, err := transmit(s.card, writePageAPDU(page, data))
	return err
}

// Format initializes the capability container and clears the start of the
// data area so the tag presents as an empty Type 2 NDEF tag.
func (s *Session) Format() error {
	// Magic, version 1.0, data area size in 8-byte units, open access.
	cc := []byte{ccMagic, 0x10, 0x12, 0x00}
	if err := s.writePage(ccPage, cc); err != nil {
		return fmt.Errorf("write capability container: %w", err)
	}
	empty := []byte{ndef.TLVNull, ndef.TLVNull, ndef.TLVNull, ndef.TLVTerminator}
	if err := s.writePage(dataStartPage, empty); err != nil {
		return fmt.Errorf("clear data area: %w", err)
	}
	return nil
}

// WriteMessage lays a TLV-wrapped NDEF message into the data area from
// page 4, padded out to whole pages.
func (s *Session) WriteMessage(msg []byte) error {
	if pad := (pageSize - len(msg)%pageSize) % pageSize; pad > 0 {
		msg = append(msg, make([]byte, pad)...)
	}
	if len(msg) > (dataEndPage-dataStartPage)*pageSize {
		return fmt.Errorf("pcsc: message of %d bytes exceeds tag data area", len(msg))
	}
	page := byte(dataStartPage)
	for i := 0; i < len(msg); i += pageSize {
		if err := s.writePage(page, msg[i:i+pageSize]); err != nil {
			return fmt.Errorf("write page %d: %w", page, err)
		}
		page++
	}
	return nil
}
