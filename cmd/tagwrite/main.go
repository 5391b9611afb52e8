package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/mkrell/buildreg/internal/logging"
	"github.com/mkrell/buildreg/internal/ndef"
	"github.com/mkrell/buildreg/internal/pcsc"
	"github.com/mkrell/buildreg/internal/scanner"
)

func main() {
	buildingType := flag.Uint("type", 0, "building type to write (0-255)")
	format := flag.Bool("format", false, "initialize the capability container first")
	reader := flag.String("reader", "", "substring of the PC/SC reader name")
	noVerify := flag.Bool("no-verify", false, "skip the read-back check")
	flag.Parse()

	if err := run(*buildingType, *format, *reader, !*noVerify); err != nil {
		fmt.Fprintf(os.Stderr, "tagwrite: %v\n", err)
		os.Exit(1)
	}
}

func run(buildingType uint, format bool, reader string, verify bool) error {
	if buildingType > 0xFF {
		return fmt.Errorf("building type %d out of range 0-255", buildingType)
	}

	logging.ConfigureRuntime()
	logger := logging.New("tagwrite")

	src, err := pcsc.Open(pcsc.Config{Reader: reader}, logger)
	if err != nil {
		return err
	}
	defer src.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger.Info().Msg("place tag on reader")
	sess, err := src.WaitForCard(ctx)
	if err != nil {
		return err
	}
	defer sess.Release()

	uid, err := sess.Identifier()
	if err != nil {
		return fmt.Errorf("read identifier: %w", err)
	}
	logger.Info().Str("uid", scanner.FormatUID(uid)).Msg("tag detected")

	if format {
		if err := sess.Format(); err != nil {
			return err
		}
		logger.Info().Msg("tag formatted")
	}

	msg := ndef.EncodeMessage(uint8(buildingType))
	if err := sess.WriteMessage(msg); err != nil {
		return err
	}
	logger.Info().Uint("type", buildingType).Msg("building record written")

	if verify {
		pages, err := sess.ReadPages()
		if err != nil {
			return fmt.Errorf("verify read: %w", err)
		}
		got, ok := ndef.BuildingType(pages)
		if !ok || got != uint8(buildingType) {
			return fmt.Errorf("verify mismatch: got (%d, %t), want (%d, true)", got, ok, buildingType)
		}
		logger.Info().Msg("verified")
	}
	return nil
}
