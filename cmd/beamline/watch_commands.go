package main

import (
	"errors"
	"fmt"
	"io"
	"sort"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"beamline/internal/api"
	"beamline/internal/stream"
)

func newWatchCommand(ctx *commandContext) *cobra.Command {
	watchCmd := &cobra.Command{
		Use:   "watch",
		Short: "Follow live telemetry feeds",
	}
	watchCmd.AddCommand(
		newWatchStatusCommand(ctx),
		newWatchMeasurementsCommand(ctx),
		newWatchFramesCommand(ctx),
		newWatchParametersCommand(ctx),
		newWatchDevicesCommand(ctx),
	)
	return watchCmd
}

func (c *commandContext) streamClient() (*stream.Client, error) {
	cfg, err := c.ensureConfig()
	if err != nil {
		return nil, err
	}
	return stream.NewClient(cfg.Paths.APIBind, cfg.Paths.APIToken)
}

// finishWatch maps the stream terminals to CLI results: a clean end prints a
// notice, a failure propagates.
func finishWatch(out io.Writer, err error) error {
	if err == nil || errors.Is(err, stream.ErrEnded) || errors.Is(err, stream.ErrClosed) {
		fmt.Fprintln(out, "Stream ended")
		return nil
	}
	return err
}

func newWatchStatusCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Follow periodic system status snapshots",
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := ctx.streamClient()
			if err != nil {
				return err
			}
			feed, err := client.StreamStatus(cmd.Context())
			if err != nil {
				return err
			}
			defer feed.Close()
			stdout := cmd.OutOrStdout()
			for {
				snap, err := feed.Next()
				if err != nil {
					return finishWatch(stdout, err)
				}
				fmt.Fprintf(stdout, "%s state=%s mem=%.1fMB%s\n",
					formatEventTime(snap.TimestampNS), snap.State, snap.MemoryMB, formatLiveValues(snap.LiveValues))
			}
		},
	}
}

func formatLiveValues(values map[string]float64) string {
	if len(values) == 0 {
		return ""
	}
	ids := make([]string, 0, len(values))
	for id := range values {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	var b strings.Builder
	for _, id := range ids {
		fmt.Fprintf(&b, " %s=%g", id, values[id])
	}
	return b.String()
}

func newWatchMeasurementsCommand(ctx *commandContext) *cobra.Command {
	var instruments []string
	cmd := &cobra.Command{
		Use:   "measurements",
		Short: "Follow instrument measurement samples",
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := ctx.streamClient()
			if err != nil {
				return err
			}
			feed, err := client.StreamMeasurements(cmd.Context(), instruments...)
			if err != nil {
				return err
			}
			defer feed.Close()
			stdout := cmd.OutOrStdout()
			for {
				sample, err := feed.Next()
				if err != nil {
					return finishWatch(stdout, err)
				}
				fmt.Fprintf(stdout, "%s %s %s\n",
					formatEventTime(sample.TimestampNS), sample.Instrument, formatPayload(sample.Payload))
			}
		},
	}
	cmd.Flags().StringSliceVar(&instruments, "instrument", nil, "Restrict to these instrument ids")
	return cmd
}

func formatPayload(payload api.MeasurementPayload) string {
	switch p := payload.(type) {
	case api.ScalarValue:
		return fmt.Sprintf("scalar=%g", float64(p))
	case api.ImageValue:
		return fmt.Sprintf("image=%d bytes", len(p))
	default:
		return "no value"
	}
}

func newWatchFramesCommand(ctx *commandContext) *cobra.Command {
	var devices []string
	var withPixels bool
	var maxFrames int
	cmd := &cobra.Command{
		Use:   "frames",
		Short: "Follow camera frames",
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := ctx.streamClient()
			if err != nil {
				return err
			}
			stdout := cmd.OutOrStdout()
			feed, err := client.StreamFrames(cmd.Context(), stream.FrameOptions{
				Devices:          devices,
				IncludePixelData: withPixels,
				MaxFrames:        maxFrames,
				OnFrame: func(frame api.Frame) {
					line := fmt.Sprintf("%s %s #%d %dx%d %s",
						formatEventTime(frame.TimestampNS), frame.DeviceID, frame.FrameNumber,
						frame.Width, frame.Height, frame.PixelFormat)
					if withPixels {
						if img, err := stream.DecodeFrame(frame); err == nil {
							min, max := imageRange(img.Values)
							line += fmt.Sprintf(" min=%g max=%g", min, max)
						}
					}
					fmt.Fprintln(stdout, line)
				},
			})
			if err != nil {
				return err
			}
			defer feed.Close()
			return finishWatch(stdout, feed.Watch(cmd.Context()))
		},
	}
	cmd.Flags().StringSliceVar(&devices, "device", nil, "Restrict to these camera ids")
	cmd.Flags().BoolVar(&withPixels, "pixel-data", false, "Request raw pixel bytes with each frame")
	cmd.Flags().IntVar(&maxFrames, "max-frames", 0, "Stop after this many frames (0 = unbounded)")
	return cmd
}

func imageRange(values []float64) (float64, float64) {
	if len(values) == 0 {
		return 0, 0
	}
	min, max := values[0], values[0]
	for _, v := range values[1:] {
		if v < min {
			min = v
		}
		if v > max {
			max = v
		}
	}
	return min, max
}

func newWatchParametersCommand(ctx *commandContext) *cobra.Command {
	var devices []string
	var names []string
	cmd := &cobra.Command{
		Use:   "parameters",
		Short: "Follow device parameter changes",
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := ctx.streamClient()
			if err != nil {
				return err
			}
			stdout := cmd.OutOrStdout()
			feed, err := client.StreamParameters(cmd.Context(), stream.ParameterOptions{
				Devices: devices,
				Names:   names,
				OnChange: func(change api.ParameterChange) {
					units := ""
					if change.Units != "" {
						units = " " + change.Units
					}
					fmt.Fprintf(stdout, "%s.%s: %s -> %s%s\n",
						change.DeviceID, change.Name, change.OldValue, change.NewValue, units)
				},
			})
			if err != nil {
				return err
			}
			defer feed.Close()
			return finishWatch(stdout, feed.Watch(cmd.Context()))
		},
	}
	cmd.Flags().StringSliceVar(&devices, "device", nil, "Restrict to these device ids")
	cmd.Flags().StringSliceVar(&names, "name", nil, "Restrict to these parameter names")
	return cmd
}

func newWatchDevicesCommand(ctx *commandContext) *cobra.Command {
	var devices []string
	var maxRate int
	var snapshot bool
	cmd := &cobra.Command{
		Use:   "devices",
		Short: "Follow device state updates",
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := ctx.streamClient()
			if err != nil {
				return err
			}
			stdout := cmd.OutOrStdout()
			feed, err := client.StreamDeviceState(cmd.Context(), stream.DeviceStateOptions{
				Devices:         devices,
				MaxRateHz:       maxRate,
				IncludeSnapshot: snapshot,
				OnUpdate: func(update api.DeviceStateUpdate) {
					tag := ""
					if update.IsSnapshot {
						tag = " [snapshot]"
					}
					fmt.Fprintf(stdout, "%s%s%s\n", update.DeviceID, tag, formatFields(update.Fields))
				},
			})
			if err != nil {
				return err
			}
			defer feed.Close()
			return finishWatch(stdout, feed.Watch(cmd.Context()))
		},
	}
	cmd.Flags().StringSliceVar(&devices, "device", nil, "Restrict to these device ids")
	cmd.Flags().IntVar(&maxRate, "max-rate-hz", 0, "Cap per-device update rate (0 = unlimited)")
	cmd.Flags().BoolVar(&snapshot, "snapshot", false, "Begin with a full state snapshot")
	return cmd
}

func formatFields(fields map[string]string) string {
	if len(fields) == 0 {
		return ""
	}
	names := make([]string, 0, len(fields))
	for name := range fields {
		names = append(names, name)
	}
	sort.Strings(names)
	var b strings.Builder
	for _, name := range names {
		fmt.Fprintf(&b, " %s=%s", name, fields[name])
	}
	return b.String()
}

func formatEventTime(ns int64) string {
	return time.Unix(0, ns).Format("15:04:05.000")
}
