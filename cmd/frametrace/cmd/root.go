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

// Package cmd expresses the command-line interface.
package cmd

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/Masterminds/log-go"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

const envPrefix = "FRAMETRACE"

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "frametrace",
	Short: "Frame presentation telemetry streamer",
	Long: `frametrace distributes per-frame presentation records and GPU/CPU
telemetry to local consumer processes through named shared memory.`,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		logger := log.NewStandard()
		if viper.GetBool("debug") {
			logger.Level = log.DebugLevel
		}
		log.Current = logger
	},
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	cobra.CheckErr(rootCmd.Execute())
}

func init() {
	rootCmd.PersistentFlags().Bool("debug", false, "display debug output")
	cobra.OnInitialize(initConfig)
}

// initConfig reads in ENV variables if set.
func initConfig() {
	viper.SetEnvPrefix(envPrefix)
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()
	if err := viper.BindPFlags(rootCmd.PersistentFlags()); err != nil {
		log.Fatalf("failed to set up flags: %s", err)
	}
}

// newViper returns a viper instance for one subcommand, reading the same
// environment as the root.
func newViper() *viper.Viper {
	v := viper.New()
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()
	return v
}

func defaultSocket() string {
	return filepath.Join(os.TempDir(), "frametrace.sock")
}
