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
	"strconv"
	"time"

	"github.com/Masterminds/log-go"
	"github.com/spf13/cobra"

	"github.com/frametrace/frametrace-agent/pkg/control"
)

var stopViper = newViper()

// stopCmd ends streams on a running producer.
var stopCmd = &cobra.Command{
	Use:   "stop [<client-or-pid>]",
	Short: "Stop streams by client or process id",
	Long: `Stop the streams of a client, or of a streamed process when the id
is not a known client. With --all every stream is stopped.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		all := stopViper.GetBool("all")
		if all == (len(args) == 1) {
			return errors.New("exactly one of an id or --all is required")
		}
		cmd.SilenceUsage = true

		ctx, cancel := context.WithTimeout(cmd.Context(), 10*time.Second)
		defer cancel()
		client := control.NewClient(stopViper.GetString("socket"))

		if all {
			return client.StopAllStreams(ctx)
		}
		id, err := strconv.ParseUint(args[0], 10, 32)
		if err != nil {
			return fmt.Errorf("invalid id %q: %w", args[0], err)
		}
		return client.StopStreaming(ctx, uint32(id))
	},
}

func init() {
	stopCmd.Flags().String("socket", defaultSocket(), "control socket path")
	stopCmd.Flags().Bool("all", false, "stop every stream")
	if err := stopViper.BindPFlags(stopCmd.Flags()); err != nil {
		log.Fatalf("failed to bind stop flags: %s", err)
	}
	rootCmd.AddCommand(stopCmd)
}
