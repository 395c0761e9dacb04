package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/jihwankim/xblive/pkg/cpukey"
)

var keyCmd = &cobra.Command{
	Use:   "key",
	Short: "Inspect and generate CPUKey values",
}

var keyParseCmd = &cobra.Command{
	Use:   "parse <hex>",
	Args:  cobra.ExactArgs(1),
	Short: "Parse and validate a 32-character hex CPUKey",
	RunE:  runKeyParse,
}

var keyRandomCmd = &cobra.Command{
	Use:   "random",
	Args:  cobra.NoArgs,
	Short: "Generate a random, valid CPUKey",
	RunE:  runKeyRandom,
}

func init() {
	keyCmd.AddCommand(keyParseCmd)
	keyCmd.AddCommand(keyRandomCmd)
}

func runKeyParse(cmd *cobra.Command, args []string) error {
	key, err := cpukey.Parse(args[0])
	if err != nil {
		return fmt.Errorf("invalid CPUKey: %w", err)
	}

	sum := key.Sum()
	fmt.Printf("hex:    %s\n", key.String())
	fmt.Printf("valid:  %t\n", key.IsValid())
	fmt.Printf("sha1:   %x\n", sum)
	return nil
}

func runKeyRandom(cmd *cobra.Command, args []string) error {
	key, err := cpukey.CreateRandom()
	if err != nil {
		return fmt.Errorf("failed to generate CPUKey: %w", err)
	}
	fmt.Println(key.String())
	return nil
}
