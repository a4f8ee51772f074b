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
	"time"

	"github.com/Masterminds/log-go"
	"github.com/spf13/cobra"

	"github.com/frametrace/frametrace-agent/pkg/control"
)

var statsViper = newViper()

// statsCmd prints the streams of a running producer.
var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show the active streams",
	RunE: func(cmd *cobra.Command, args []string) error {
		cmd.SilenceUsage = true

		out, err := newPrinter(cmd.OutOrStdout(), statsViper.GetString("output"))
		if err != nil {
			return err
		}
		ctx, cancel := context.WithTimeout(cmd.Context(), 10*time.Second)
		defer cancel()

		streams, err := control.NewClient(statsViper.GetString("socket")).Stats(ctx)
		if err != nil {
			return err
		}
		return out.print(streams)
	},
}

func init() {
	statsCmd.Flags().String("socket", defaultSocket(), "control socket path")
	statsCmd.Flags().StringP("output", "o", "yaml", "output format (yaml or json)")
	if err := statsViper.BindPFlags(statsCmd.Flags()); err != nil {
		log.Fatalf("failed to bind stats flags: %s", err)
	}
	rootCmd.AddCommand(statsCmd)
}
