package main

import (
	"os"

	"github.com/spf13/cobra"
)

var (
	cfgFile string
	verbose bool
	version = "dev" // set by build flags
)

var rootCmd = &cobra.Command{
	Use:   "xblive",
	Short: "Passive discovery of Xbox 360 debug/JTAG consoles on the LAN",
	Long: `xblive listens for and periodically broadcasts for Xbox 360 debug
kits and JTAG consoles on directly-attached IPv4 /24 subnets, tracking
each console's liveness for the duration of the process.`,
	Version: version,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is ./xblive.yaml)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")

	rootCmd.AddCommand(scanCmd)
	rootCmd.AddCommand(keyCmd)
}

// Commands are defined in separate files:
// - scanCmd in scan.go
// - keyCmd in key.go

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
