package scanner

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mkrell/buildreg/internal/logging"
	"github.com/mkrell/buildreg/internal/ndef"
	"github.com/mkrell/buildreg/internal/registry"
	"github.com/mkrell/buildreg/internal/testutil/testlog"
)

type fakeSession struct {
	uid      []byte
	pages    []byte
	readErr  error
	released int
}

func (f *fakeSession) Identifier() ([]byte, error) { return f.uid, nil }

func (f *fakeSession) ReadPages() ([]byte, error) {
	if f.readErr != nil {
		return nil, f.readErr
	}
	return f.pages, nil
}

func (f *fakeSession) Release() error {
	f.released++
	return nil
}

func newScanner(t *testing.T) (*Scanner, *registry.Registry) {
	t.Helper()
	reg := registry.New()
	return New(reg, logging.New(t.Name())), reg
}

func TestFormatUID(t *testing.T) {
	testlog.Start(t)
	assert.Equal(t, "04A1B2C3", FormatUID([]byte{0x04, 0xA1, 0xB2, 0xC3}))
	assert.Equal(t, "", FormatUID(nil))
	// Same bytes always render the same key.
	assert.Equal(t, FormatUID([]byte{0xDE, 0xAD}), FormatUID([]byte{0xDE, 0xAD}))
}

func TestScanAddsNewCard(t *testing.T) {
	testlog.Start(t)
	sc, reg := newScanner(t)
	sess := &fakeSession{uid: []byte{0x04, 0xA1}, pages: ndef.EncodeMessage(7)}

	changed, err := sc.ScanToken(sess)
	require.NoError(t, err)
	assert.True(t, changed)

	c, ok := reg.Get("04A1")
	require.True(t, ok)
	assert.Equal(t, uint8(7), c.BuildingType)
}

func TestScanRepeatKeepsStoredType(t *testing.T) {
	testlog.Start(t)
	sc, reg := newScanner(t)

	first := &fakeSession{uid: []byte{0x04, 0xA1}, pages: ndef.EncodeMessage(7)}
	changed, err := sc.ScanToken(first)
	require.NoError(t, err)
	require.True(t, changed)

	// The tag was rewritten between scans; the registry keeps the
	// classification from the first scan.
	second := &fakeSession{uid: []byte{0x04, 0xA1}, pages: ndef.EncodeMessage(9)}
	changed, err = sc.ScanToken(second)
	require.NoError(t, err)
	assert.False(t, changed)

	c, _ := reg.Get("04A1")
	assert.Equal(t, uint8(7), c.BuildingType)
}

func TestScanReadFailureFallsBackToUIDByte(t *testing.T) {
	testlog.Start(t)
	sc, reg := newScanner(t)
	sess := &fakeSession{uid: []byte{0x7B, 0x01}, readErr: errors.New("wrong tag family")}

	changed, err := sc.ScanToken(sess)
	require.NoError(t, err)
	assert.True(t, changed)

	c, ok := reg.Get("7B01")
	require.True(t, ok)
	assert.Equal(t, uint8(0x7B), c.BuildingType)
}

func TestScanParseMissDefaultsToZero(t *testing.T) {
	testlog.Start(t)
	sc, reg := newScanner(t)
	sess := &fakeSession{uid: []byte{0x04, 0xA1}, pages: []byte{0x00, 0x00, 0xFE}}

	changed, err := sc.ScanToken(sess)
	require.NoError(t, err)
	assert.True(t, changed)

	c, _ := reg.Get("04A1")
	assert.Equal(t, uint8(0), c.BuildingType)
}

func TestScanDeleteMode(t *testing.T) {
	testlog.Start(t)
	sc, reg := newScanner(t)
	require.True(t, reg.Add("04A1", 7))

	var removed []uint8
	reg.SetOnRemoved(func(buildingType uint8, _ string) {
		removed = append(removed, buildingType)
	})

	sc.SetDeleteMode(true)
	assert.True(t, sc.DeleteMode())

	sess := &fakeSession{uid: []byte{0x04, 0xA1}, pages: ndef.EncodeMessage(7)}
	changed, err := sc.ScanToken(sess)
	require.NoError(t, err)
	assert.True(t, changed)
	assert.False(t, reg.Has("04A1"))
	assert.Equal(t, []uint8{7}, removed)

	// Second scan of the same card: nothing to remove, no hook.
	changed, err = sc.ScanToken(sess)
	require.NoError(t, err)
	assert.False(t, changed)
	assert.Len(t, removed, 1)
}

func TestScanEmptyIdentifier(t *testing.T) {
	testlog.Start(t)
	sc, reg := newScanner(t)
	sess := &fakeSession{uid: nil, pages: ndef.EncodeMessage(7)}

	_, err := sc.ScanToken(sess)
	require.ErrorIs(t, err, ErrEmptyIdentifier)
	assert.Equal(t, 0, reg.Len())
}

type fakeSource struct {
	sessions []*fakeSession
	i        int
}

func (f *fakeSource) WaitForToken(ctx context.Context) (TagSession, error) {
	if f.i >= len(f.sessions) {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	s := f.sessions[f.i]
	f.i++
	return s, nil
}

func TestRunProcessesAndReleases(t *testing.T) {
	testlog.Start(t)
	sc, reg := newScanner(t)

	a := &fakeSession{uid: []byte{0x01}, pages: ndef.EncodeMessage(1)}
	b := &fakeSession{uid: []byte{0x02}, pages: ndef.EncodeMessage(2)}
	src := &fakeSource{sessions: []*fakeSession{a, b}}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- sc.Run(ctx, src) }()

	// Run drains the source then blocks on the canceled wait.
	for reg.Len() < 2 {
		select {
		case err := <-done:
			t.Fatalf("run ended early: %v", err)
		case <-time.After(time.Millisecond):
		}
	}
	cancel()
	require.NoError(t, <-done)

	assert.Equal(t, 1, a.released)
	assert.Equal(t, 1, b.released)
	assert.True(t, reg.Has("01"))
	assert.True(t, reg.Has("02"))
}
