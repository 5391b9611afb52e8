package pcsc

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/ebfe/scard"
	"github.com/rs/zerolog"

	"github.com/mkrell/buildreg/internal/scanner"
)

var ErrNoReader = errors.New("pcsc: no matching reader found")

// Config selects the reader and the polling cadence.
type Config struct {
	// Reader is a case-insensitive substring of the reader name. Empty
	// picks the first reader.
	Reader string
	// PollInterval is the presence-poll cadence.
	PollInterval time.Duration
}

func DefaultConfig() Config {
	return Config{PollInterval: 250 * time.Millisecond}
}

// Source yields card sessions from one PC/SC reader. It implements
// scanner.TokenSource.
type Source struct {
	ctx    *scard.Context
	reader string
	poll   time.Duration
	log    zerolog.Logger

	// tokenSeen makes WaitForToken wait out the removal of the previous
	// card first, so one tap yields one session.
	tokenSeen bool
}

func Open(cfg Config, logger zerolog.Logger) (*Source, error) {
	sctx, err := scard.EstablishContext()
	if err != nil {
		return nil, fmt.Errorf("establish pcsc context: %w", err)
	}

	readers, err := sctx.ListReaders()
	if err != nil {
		_ = sctx.Release()
		return nil, fmt.Errorf("list readers: %w", err)
	}
	reader, ok := pickReader(readers, cfg.Reader)
	if !ok {
		_ = sctx.Release()
		return nil, fmt.Errorf("%w: hint %q, %d readers present", ErrNoReader, cfg.Reader, len(readers))
	}

	poll := cfg.PollInterval
	if poll <= 0 {
		poll = DefaultConfig().PollInterval
	}

	logger.Info().Str("reader", reader).Msg("using reader")
	return &Source{ctx: sctx, reader: reader, poll: poll, log: logger}, nil
}

func (s *Source) Close() error {
	return s.ctx.Release()
}

// WaitForToken blocks until a card is present and connected, or ctx ends.
func (s *Source) WaitForToken(ctx context.Context) (scanner.TagSession, error) {
	sess, err := s.WaitForCard(ctx)
	if err != nil {
		return nil, err
	}
	return sess, nil
}

// WaitForCard is WaitForToken with the concrete session type, for callers
// that need the write surface.
func (s *Source) WaitForCard(ctx context.Context) (*Session, error) {
	if s.tokenSeen {
		if err := s.waitPresence(ctx, false); err != nil {
			return nil, err
		}
	}
	if err := s.waitPresence(ctx, true); err != nil {
		return nil, err
	}

	card, err := s.connect(ctx)
	if err != nil {
		return nil, err
	}
	s.tokenSeen = true
	return &Session{card: card}, nil
}

// waitPresence polls reader state until a card is present (or absent,
// when want is false).
func (s *Source) waitPresence(ctx context.Context, want bool) error {
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		rs := []scard.ReaderState{{Reader: s.reader, CurrentState: scard.StateUnaware}}
		_ = s.ctx.GetStatusChange(rs, s.poll)
		present := rs[0].EventState&scard.StatePresent != 0
		if present == want {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(s.poll):
		}
	}
}

// connect retries briefly: readers report presence a beat before the
// card is ready for an exclusive connection.
func (s *Source) connect(ctx context.Context) (*scard.Card, error) {
	var lastErr error
	for i := 0; i < 10; i++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		card, err := s.ctx.Connect(s.reader, scard.ShareExclusive, scard.ProtocolAny)
		if err == nil {
			return card, nil
		}
		lastErr = err
		time.Sleep(100 * time.Millisecond)
	}
	return nil, fmt.Errorf("connect to card: %w", lastErr)
}

func pickReader(readers []string, hint string) (string, bool) {
	if len(readers) == 0 {
		return "", false
	}
	if hint == "" {
		return readers[0], true
	}
	needle := strings.ToLower(hint)
	for _, r := range readers {
		if strings.Contains(strings.ToLower(r), needle) {
			return r, true
		}
	}
	return "", false
}
