package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/spacesedan/moodlens/config"
	"github.com/spacesedan/moodlens/internal/clients"
	"github.com/spacesedan/moodlens/internal/face"
	"github.com/spacesedan/moodlens/internal/models"
	"github.com/spf13/cobra"
)

type faceOptions struct {
	interval time.Duration
	duration time.Duration
}

func newFaceCmd(a *app) *cobra.Command {
	opts := faceOptions{}

	cmd := &cobra.Command{
		Use:   "face <snapshot>",
		Short: "Classify the facial emotion in a snapshot file on a fixed interval",
		Long: "Re-reads the snapshot image on every tick and prints the detected emotion.\n" +
			"Runs until interrupted, or for --duration when set.",
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmdFace(cmd.Context(), a.cfg, opts, args[0], cmd.OutOrStdout(), cmd.ErrOrStderr())
		},
	}
	cmd.Flags().DurationVarP(&opts.interval, "interval", "i", 0, "time between frames (overrides config)")
	cmd.Flags().DurationVarP(&opts.duration, "duration", "d", 0, "stop after this long; 0 runs until interrupted")
	return cmd
}

func cmdFace(ctx context.Context, cfg *config.Config, opts faceOptions, snapshot string, stdout, stderr io.Writer) error {
	if cfg.Vision.Endpoint == "" {
		return errors.New("face sessions need VISION_ENDPOINT")
	}

	interval := cfg.Face.Interval.Duration
	if opts.interval > 0 {
		interval = opts.interval
	}

	classifier := face.NewClassifier(clients.NewVisionClient(cfg.Vision), cfg.Vision.Confidence)
	session := face.NewSession(face.FileSource(snapshot), classifier, interval)
	session.OnDetection = func(detections []models.FaceDetection) {
		fmt.Fprintln(stdout, formatDetections(time.Now(), detections))
	}

	if opts.duration > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, opts.duration)
		defer cancel()
	}

	if err := session.Start(ctx); err != nil {
		fmt.Fprintln(stderr, face.UserMessage(err))
		return err
	}

	<-ctx.Done()
	if err := session.Stop(); err != nil {
		return fmt.Errorf("closing frame source: %w", err)
	}

	if skipped := session.Skipped(); skipped > 0 {
		fmt.Fprintf(stdout, "%d ticks skipped while a frame was still being analyzed\n", skipped)
	}
	return nil
}

func formatDetections(at time.Time, detections []models.FaceDetection) string {
	if len(detections) == 0 {
		return fmt.Sprintf("%s  no face detected", at.Format(time.TimeOnly))
	}
	d := detections[0]
	return fmt.Sprintf("%s  %-7s  %.0f%%  box=(%d,%d)-(%d,%d)",
		at.Format(time.TimeOnly), d.Emotion, d.Confidence*100,
		d.Box.XMin, d.Box.YMin, d.Box.XMax, d.Box.YMax)
}
