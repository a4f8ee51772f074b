/*
Copyright © 2024 SUSE LLC
Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at
    http://www.apache.org/licenses/LICENSE-2.0
Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Masterminds/log-go"
	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/frametrace/frametrace-agent/pkg/control"
	"github.com/frametrace/frametrace-agent/pkg/segment"
	"github.com/frametrace/frametrace-agent/pkg/streamer"
	"github.com/frametrace/frametrace-agent/pkg/wire"
)

var readViper = newViper()

// readCmd subscribes to a target and prints the frames it receives.
var readCmd = &cobra.Command{
	Use:   "read <pid|all>",
	Short: "Print frames streamed for a process",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cmd.SilenceUsage = true

		target, err := streamer.ParseTarget(args[0])
		if err != nil {
			return fmt.Errorf("invalid target %q: %w", args[0], err)
		}
		out, err := newPrinter(cmd.OutOrStdout(), readViper.GetString("output"))
		if err != nil {
			return err
		}
		playback := readPlayback(readViper.GetBool("backpressured"), readViper.GetBool("reset-oldest"))

		ctx, cancel := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer cancel()

		client := control.NewClient(readViper.GetString("socket"))
		self := streamer.ClientID(os.Getpid())
		name, err := client.StartStreaming(ctx, self, target, playback)
		if err != nil {
			return fmt.Errorf("failed to start streaming %s: %w", target, err)
		}
		defer func() {
			// The signal context may already be done.
			stopCtx, stopCancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer stopCancel()
			if err := client.StopStreamingFor(stopCtx, self, target); err != nil {
				log.Errorf("failed to stop streaming %s: %s", target, err)
			}
		}()

		view, err := segment.Open(readViper.GetString("segment-dir"), name)
		if err != nil {
			return err
		}
		defer view.Close()
		log.Infof("reading %s: %s ring of %d frames",
			name, humanize.IBytes(wire.HeaderSize+view.MaxEntries()*wire.SlotSize), view.MaxEntries())

		return readFrames(ctx, view, out, readViper.GetInt("count"), readViper.GetDuration("poll-interval"))
	},
}

// readPlayback returns the flags a reader subscribes with. Only playback
// streams can be backpressured, so asking for backpressure selects playback.
func readPlayback(backpressured, resetOldest bool) wire.PlaybackFlags {
	return wire.PlaybackFlags{
		Playback:      backpressured,
		Backpressured: backpressured,
		ResetOldest:   resetOldest,
	}
}

// readFrames prints frames from view until count frames were printed, the
// producer goes away, or ctx is done. A count of zero never stops.
func readFrames(ctx context.Context, view *segment.View, out printer, count int, poll time.Duration) error {
	var slot wire.FrameSlot
	for printed := 0; count == 0 || printed < count; {
		err := view.Dequeue(&slot)
		switch {
		case err == nil:
			if err := out.print(summarize(&slot, view.QPCFrequency())); err != nil {
				return err
			}
			printed++
			continue
		case errors.Is(err, segment.ErrDataLoss):
			log.Warnf("frames were overwritten before they were read")
			continue
		case errors.Is(err, segment.ErrProcessGone):
			log.Infof("process is no longer streamed")
			return nil
		case !errors.Is(err, segment.ErrNoData):
			return err
		}

		select {
		case <-ctx.Done():
			return nil
		case <-time.After(poll):
		}
	}
	return nil
}

func init() {
	readCmd.Flags().String("socket", defaultSocket(), "control socket path")
	readCmd.Flags().String("segment-dir", segment.DefaultDir(), "directory holding shared segments")
	readCmd.Flags().StringP("output", "o", "yaml", "output format (yaml or json)")
	readCmd.Flags().Int("count", 0, "stop after this many frames (0 for no limit)")
	readCmd.Flags().Duration("poll-interval", 5*time.Millisecond, "wait between polls when no frame is pending")
	readCmd.Flags().Bool("backpressured", false, "make the producer wait for this reader (implies playback)")
	readCmd.Flags().Bool("reset-oldest", false, "drop the oldest frame rather than the newest when full")
	if err := readViper.BindPFlags(readCmd.Flags()); err != nil {
		log.Fatalf("failed to bind read flags: %s", err)
	}
	rootCmd.AddCommand(readCmd)
}
