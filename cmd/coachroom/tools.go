package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/antoniostano/coachroom/internal/audio"
	"github.com/antoniostano/coachroom/internal/capture"
	"github.com/antoniostano/coachroom/internal/catalog"
	"github.com/antoniostano/coachroom/internal/config"
	"github.com/antoniostano/coachroom/internal/pulsemic"
)

func listExperts(out io.Writer, cat *catalog.Catalog) error {
	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "COACHING OPTION\tICON")
	for _, o := range cat.Options {
		fmt.Fprintf(tw, "%s\t%s\n", o.Name, o.Icon)
	}
	fmt.Fprintln(tw, "\t")
	fmt.Fprintln(tw, "EXPERT\tCATEGORY\tAVATAR")
	for _, e := range cat.Experts {
		fmt.Fprintf(tw, "%s\t%s\t%s\n", e.Name, e.Category, e.Avatar)
	}
	return tw.Flush()
}

// micCheck runs one capture session against the local PulseAudio source and
// prints what the silence detector saw.
func micCheck(cfg config.Config, source string, d time.Duration, out string, logger *slog.Logger) error {
	rc := capture.DefaultRecorderConfig()
	rc.TimeSlice = cfg.RecorderTimeSlice
	rc.SampleRate = cfg.RecorderSampleRate
	rec := audio.NewRecording(rc.SampleRate, rc.Channels)

	s, err := capture.New(pulsemic.Platform{SourceID: source}, capture.Options{
		SilenceWindow: cfg.SilenceWindow,
		Recorder:      rc,
		Logger:        logger,
		Hooks: capture.Hooks{
			OnChunk: func(c capture.Chunk) { rec.Append(c.PCM) },
			OnSilence: func(ev capture.SilenceEvent) {
				fmt.Fprintf(os.Stdout, "user stopped talking (after chunk %d)\n", ev.Seq)
			},
		},
	})
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if _, err := s.Connect(ctx); err != nil {
		return fmt.Errorf("connect microphone: %w", err)
	}
	fmt.Fprintf(os.Stdout, "recording for %s, press Ctrl-C to stop early\n", d)

	select {
	case <-ctx.Done():
	case <-time.After(d):
	}

	summary, err := s.Disconnect(context.Background())
	if err != nil {
		logger.Warn("disconnect reported errors", "error", err)
	}
	fmt.Fprintf(os.Stdout, "chunks=%d bytes=%d silence_signals=%d duration=%s\n",
		summary.Chunks, summary.Bytes, summary.SilenceSignals, rec.Duration().Round(time.Millisecond))

	if out == "" {
		return nil
	}
	dir, name := filepath.Split(out)
	if dir == "" {
		dir = "."
	}
	path, err := rec.WriteFile(dir, strings.TrimSuffix(name, filepath.Ext(name)))
	if err != nil {
		return err
	}
	fmt.Fprintf(os.Stdout, "wrote %s\n", path)
	return nil
}
