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
	"net"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Masterminds/log-go"
	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/frametrace/frametrace-agent/pkg/control"
	"github.com/frametrace/frametrace-agent/pkg/procwatch"
	"github.com/frametrace/frametrace-agent/pkg/producer"
	"github.com/frametrace/frametrace-agent/pkg/segment"
	"github.com/frametrace/frametrace-agent/pkg/streamer"
)

var serveViper = newViper()

// serveCmd runs the streamer and its control socket.
var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the frame data streamer",
	RunE: func(cmd *cobra.Command, args []string) error {
		cmd.SilenceUsage = true

		size, err := streamer.SegmentSizeFromEnv()
		if err != nil {
			return err
		}
		s := streamer.New(streamer.Options{
			Prefix:              serveViper.GetString("nsm-prefix"),
			Dir:                 serveViper.GetString("segment-dir"),
			SegmentSize:         size,
			BackpressureTimeout: serveViper.GetDuration("backpressure-timeout"),
			QPCFrequency:        uint64(time.Second / time.Nanosecond),
		})
		log.Infof("new segments are %s", humanize.IBytes(size))

		ctx, cancel := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer cancel()

		return serve(ctx, s, serveViper.GetString("socket"))
	},
}

func serve(ctx context.Context, s *streamer.Streamer, socket string) error {
	if err := os.Remove(socket); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("removing stale socket %s: %w", socket, err)
	}
	listener, err := net.Listen("unix", socket)
	if err != nil {
		return fmt.Errorf("listening on %s: %w", socket, err)
	}
	server := control.NewServer(listener, s)

	group, ctx := errgroup.WithContext(ctx)
	group.Go(server.Serve)
	group.Go(func() error {
		<-ctx.Done()
		return server.Close()
	})
	group.Go(func() error {
		return procwatch.New(s, serveViper.GetDuration("watch-interval")).Run(ctx)
	})
	if serveViper.GetBool("synthetic") {
		p := producer.New(s, producer.Config{
			PID:           uint32(os.Getpid()),
			Application:   "frametrace-synthetic",
			FrameInterval: time.Second / time.Duration(max(1, serveViper.GetInt("synthetic-fps"))),
			Fans:          2,
		})
		log.Infof("presenting synthetic frames as pid %d", os.Getpid())
		group.Go(func() error { return p.Run(ctx) })
	}

	err = group.Wait()
	if stopErr := s.StopAllStreams(); stopErr != nil {
		log.Errorf("failed to stop streams: %s", stopErr)
	}
	if s.IsTimedOut() {
		log.Warnf("at least one backpressured write timed out")
	}
	return err
}

func init() {
	serveCmd.Flags().String("socket", defaultSocket(), "control socket path")
	serveCmd.Flags().String("nsm-prefix", segment.DefaultPrefix, "prefix of shared segment names")
	serveCmd.Flags().String("segment-dir", segment.DefaultDir(), "directory holding shared segments")
	serveCmd.Flags().Duration("backpressure-timeout", streamer.DefaultBackpressureTimeout, "longest wait for a slow consumer")
	serveCmd.Flags().Duration("watch-interval", time.Second, "interval between checks for exited processes")
	serveCmd.Flags().Bool("synthetic", false, "present generated frames for this process")
	serveCmd.Flags().Int("synthetic-fps", 60, "frame rate of generated frames")
	if err := serveViper.BindPFlags(serveCmd.Flags()); err != nil {
		log.Fatalf("failed to bind serve flags: %s", err)
	}
	rootCmd.AddCommand(serveCmd)
}
