/*
Copyright © 2022 hit.zhangjie@gmail.com

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
	"fmt"
	"os"

	homedir "github.com/mitchellh/go-homedir"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var cfgFile string

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "wadbg",
	Short: "source-level debugger for WebAssembly over the Chrome DevTools Protocol",
	Long: `wadbg debugs WebAssembly modules running inside a Chrome compatible
runtime. It reads the DWARF info embedded in the module and translates
gdb style commands (breakpoints by file:line, stepping, variable
inspection) into DevTools protocol operations.`,
}

// Execute adds all child commands to the root command and sets flags
// appropriately.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is $HOME/.wadbg.yaml)")
	rootCmd.PersistentFlags().String("remote", "127.0.0.1:9222", "host:port of the CDP endpoint")
	rootCmd.PersistentFlags().String("server-root", "", "path prefix to strip from reported source files")
	rootCmd.PersistentFlags().String("web-root", "", "path prefix replacing server-root")

	viper.BindPFlag("remote", rootCmd.PersistentFlags().Lookup("remote"))
	viper.BindPFlag("server-root", rootCmd.PersistentFlags().Lookup("server-root"))
	viper.BindPFlag("web-root", rootCmd.PersistentFlags().Lookup("web-root"))
}

// initConfig reads in config file and ENV variables if set.
func initConfig() {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		home, err := homedir.Dir()
		if err != nil {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(1)
		}

		viper.AddConfigPath(home)
		viper.SetConfigName(".wadbg")
	}

	viper.SetEnvPrefix("wadbg")
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err == nil {
		fmt.Fprintln(os.Stderr, "using config file:", viper.ConfigFileUsed())
	}
}
