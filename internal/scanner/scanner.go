// Package scanner drives card scans into the registry.
package scanner

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"sync/atomic"

	"github.com/rs/zerolog"

	"github.com/mkrell/buildreg/internal/ndef"
	"github.com/mkrell/buildreg/internal/observability"
	"github.com/mkrell/buildreg/internal/registry"
)

var ErrEmptyIdentifier = errors.New("scanner: empty card identifier")

// TagSession is one presented card. The radio transport behind it is not
// the scanner's concern.
type TagSession interface {
	// Identifier returns the raw UID bytes of the present card.
	Identifier() ([]byte, error)
	// ReadPages returns the raw tag data area. It fails for tags of the
	// wrong family or with an unreadable capability container.
	ReadPages() ([]byte, error)
	// Release halts the card so the next one can be detected.
	Release() error
}

// TokenSource yields sessions as cards arrive at the reader.
type TokenSource interface {
	WaitForToken(ctx context.Context) (TagSession, error)
}

// FormatUID renders raw UID bytes as the registry key. The rendering is
// stable: the same card always yields the same string.
func FormatUID(uid []byte) string {
	return strings.ToUpper(hex.EncodeToString(uid))
}

const (
	modeAdd    = "add"
	modeDelete = "delete"

	resultAdded    = "added"
	resultRemoved  = "removed"
	resultRepeat   = "repeat"
	resultNotFound = "not_found"
)

// Scanner applies scanned cards to the registry according to the current
// mode: add mode registers unknown cards, delete mode removes known ones.
type Scanner struct {
	reg        *registry.Registry
	deleteMode atomic.Bool
	log        zerolog.Logger
}

func New(reg *registry.Registry, logger zerolog.Logger) *Scanner {
	return &Scanner{reg: reg, log: logger}
}

func (s *Scanner) SetDeleteMode(enabled bool) {
	s.deleteMode.Store(enabled)
	s.log.Info().Bool("enabled", enabled).Msg("delete mode")
}

func (s *Scanner) DeleteMode() bool {
	return s.deleteMode.Load()
}

// ScanToken processes one presented card and reports whether the registry
// changed. Repeat scans are routine, not errors: in add mode they refresh
// LastSeen, in delete mode a missing card is simply skipped.
func (s *Scanner) ScanToken(sess TagSession) (bool, error) {
	raw, err := sess.Identifier()
	if err != nil {
		return false, fmt.Errorf("read identifier: %w", err)
	}
	uid := FormatUID(raw)
	if uid == "" {
		return false, ErrEmptyIdentifier
	}

	buildingType := s.classify(uid, sess, raw)

	if s.deleteMode.Load() {
		return s.applyDelete(uid), nil
	}
	return s.applyAdd(uid, buildingType), nil
}

// classify extracts the building type from the tag data area, falling
// back to the first UID byte when the data area cannot be read at all
// (wrong tag family, unreadable capability container). The fallback is
// degraded but deterministic: the same card always classifies the same.
func (s *Scanner) classify(uid string, sess TagSession, raw []byte) uint8 {
	pages, err := sess.ReadPages()
	if err != nil {
		observability.RecordReadFallback()
		s.log.Debug().Str("uid", uid).Err(err).Msg("tag data unreadable, deriving type from uid")
		return raw[0]
	}
	v, ok := ndef.BuildingType(pages)
	if !ok {
		observability.RecordParseMiss()
		s.log.Debug().Str("uid", uid).Msg("no building record on tag, defaulting to 0")
		return 0
	}
	return v
}

func (s *Scanner) applyAdd(uid string, buildingType uint8) bool {
	if s.reg.Add(uid, buildingType) {
		observability.RecordScan(modeAdd, resultAdded)
		observability.SetRegistrySize(s.reg.Len())
		s.log.Info().Str("uid", uid).Uint8("type", buildingType).Msg("building added")
		return true
	}
	// Already registered: Add refreshed LastSeen, the stored type sticks.
	observability.RecordScan(modeAdd, resultRepeat)
	s.log.Debug().Str("uid", uid).Msg("building already registered")
	return false
}

func (s *Scanner) applyDelete(uid string) bool {
	if s.reg.Remove(uid) {
		observability.RecordScan(modeDelete, resultRemoved)
		observability.SetRegistrySize(s.reg.Len())
		s.log.Info().Str("uid", uid).Msg("building removed")
		return true
	}
	observability.RecordScan(modeDelete, resultNotFound)
	s.log.Debug().Str("uid", uid).Msg("building not found for deletion")
	return false
}

// Run drives the scan loop until ctx is done. Per-card failures are
// logged and the loop keeps going; only source-level failures end it.
func (s *Scanner) Run(ctx context.Context, src TokenSource) error {
	for {
		sess, err := src.WaitForToken(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return nil
			}
			return fmt.Errorf("wait for token: %w", err)
		}

		if _, err := s.ScanToken(sess); err != nil {
			s.log.Warn().Err(err).Msg("scan failed")
		}
		if err := sess.Release(); err != nil {
			s.log.Debug().Err(err).Msg("release failed")
		}
	}
}
