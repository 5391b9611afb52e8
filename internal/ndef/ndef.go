package ndef

import "encoding/binary"

// TLV block types from the NFC Forum Type 2 Tag data area.
const (
	TLVNull       = 0x00
	TLVMessage    = 0x03
	TLVTerminator = 0xFE
)

// NDEF record header bits.
const (
	FlagMessageBegin = 0x80
	FlagMessageEnd   = 0x40
	FlagChunked      = 0x20
	FlagShortRecord  = 0x10
	FlagIDLength     = 0x08
)

// RecordType is the single-byte well-known type carried by building cards.
const RecordType = 'B'

// extendedLength marks the 3-byte TLV length form (0xFF + 2-byte big endian).
const extendedLength = 0xFF

type scanOutcome int

const (
	scanMiss scanOutcome = iota
	scanFound
	scanEmptyRecord
)

// BuildingType extracts the building type byte from a raw tag data area.
//
// The input is whatever the reader managed to pull off the tag: possibly
// empty, truncated mid-message, or corrupted. Every length field is
// bounds-checked before use and malformed input degrades to (0, false),
// never to a panic or out-of-bounds read. If the TLV envelope is damaged
// but a short record survived, a raw pattern scan recovers it.
func BuildingType(data []byte) (uint8, bool) {
	v, outcome := scanTLVStream(data)
	switch outcome {
	case scanFound:
		return v, true
	case scanEmptyRecord:
		// A 'B' record with an empty payload is a definite miss, not
		// building type zero.
		return 0, false
	}
	return rawRecordScan(data)
}

// scanTLVStream walks the TLV blocks looking for an NDEF message TLV and
// parses its records.
func scanTLVStream(data []byte) (uint8, scanOutcome) {
	i := 0
	for i < len(data) {
		switch data[i] {
		case TLVNull:
			i++
		case TLVTerminator:
			return 0, scanMiss
		case TLVMessage:
			start, end, ok := messageBounds(data, i)
			if !ok {
				return 0, scanMiss
			}
			return scanRecords(data, start, end)
		default:
			next, ok := skipBlock(data, i)
			if !ok {
				return 0, scanMiss
			}
			i = next
		}
	}
	return 0, scanMiss
}

// messageBounds reads the length field of the NDEF message TLV at i and
// returns the [start, end) bounds of the message body. A declared length
// running past the buffer is clamped: readers routinely truncate the tail
// of the data area and the surviving records are still parseable.
func messageBounds(data []byte, i int) (int, int, bool) {
	if i+1 >= len(data) {
		return 0, 0, false
	}
	length := int(data[i+1])
	start := i + 2
	if data[i+1] == extendedLength {
		if i+3 >= len(data) {
			return 0, 0, false
		}
		length = int(binary.BigEndian.Uint16(data[i+2 : i+4]))
		start = i + 4
	}
	if start >= len(data) {
		return 0, 0, false
	}
	end := start + length
	if end > len(data) {
		end = len(data)
	}
	return start, end, true
}

// skipBlock advances past a TLV block of unknown type using its declared
// length, short or extended form.
func skipBlock(data []byte, i int) (int, bool) {
	if i+1 >= len(data) {
		return 0, false
	}
	length := int(data[i+1])
	next := i + 2 + length
	if data[i+1] == extendedLength {
		if i+3 >= len(data) {
			return 0, false
		}
		length = int(binary.BigEndian.Uint16(data[i+2 : i+4]))
		next = i + 4 + length
	}
	if next > len(data) {
		return 0, false
	}
	return next, true
}

// scanRecords parses NDEF records within data[start:end] until the first
// record of type 'B', the message-end bit, or a field that would run past
// the message boundary.
func scanRecords(data []byte, start, end int) (uint8, scanOutcome) {
	p := start
	for p < end {
		header := data[p]
		p++
		short := header&FlagShortRecord != 0
		hasID := header&FlagIDLength != 0

		if p >= end {
			return 0, scanMiss
		}
		typeLen := int(data[p])
		p++

		var payloadLen int
		if short {
			if p >= end {
				return 0, scanMiss
			}
			payloadLen = int(data[p])
			p++
		} else {
			if p+4 > end {
				return 0, scanMiss
			}
			declared := uint64(binary.BigEndian.Uint32(data[p : p+4]))
			p += 4
			if declared > uint64(end-p) {
				return 0, scanMiss
			}
			payloadLen = int(declared)
		}

		idLen := 0
		if hasID {
			if p >= end {
				return 0, scanMiss
			}
			idLen = int(data[p])
			p++
		}

		if typeLen > end-p {
			return 0, scanMiss
		}
		typePos := p
		p += typeLen

		if idLen > end-p {
			return 0, scanMiss
		}
		p += idLen

		if payloadLen > end-p {
			return 0, scanMiss
		}

		if typeLen == 1 && data[typePos] == RecordType {
			if payloadLen >= 1 {
				return data[p], scanFound
			}
			return 0, scanEmptyRecord
		}

		p += payloadLen
		if header&FlagMessageEnd != 0 {
			break
		}
	}
	return 0, scanMiss
}

// rawRecordScan is the last-resort heuristic for buffers whose TLV
// envelope was cut off before the record itself: any byte with the
// short-record bit set, followed by type length 1, a non-zero payload
// length, and the 'B' type byte is taken as the record.
func rawRecordScan(data []byte) (uint8, bool) {
	for k := 0; k+4 < len(data); k++ {
		if data[k]&FlagShortRecord == 0 {
			continue
		}
		if data[k+1] == 1 && data[k+2] >= 1 && data[k+3] == RecordType {
			return data[k+4], true
		}
	}
	return 0, false
}

// EncodeRecord builds the minimal short record a building card carries:
// MB, ME and SR set, well-known TNF, type 'B', one payload byte.
func EncodeRecord(buildingType uint8) []byte {
	header := byte(FlagMessageBegin | FlagMessageEnd | FlagShortRecord | 0x01)
	return []byte{header, 0x01, 0x01, RecordType, buildingType}
}

// EncodeMessage wraps the building record in an NDEF message TLV followed
// by the terminator TLV, ready to be written to the tag data area.
func EncodeMessage(buildingType uint8) []byte {
	rec := EncodeRecord(buildingType)
	out := make([]byte, 0, len(rec)+3)
	out = append(out, TLVMessage, byte(len(rec)))
	out = append(out, rec...)
	return append(out, TLVTerminator)
}
