// root.go - idpoolctl's command tree
package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/id-pointer/id-pointer-pool-go/internal/config"
)

var (
	cfgFile string
	cfg     *config.Config
)

// rootCmd is idpoolctl's base command.
var rootCmd = &cobra.Command{
	Use:   "idpoolctl",
	Short: "Bounded connection pool server and diagnostics CLI",
	Long: `idpoolctl runs and inspects a bounded, asynchronous connection pool:
a capped population of long-lived connections to a set of remote
endpoints, arbitrated among concurrent callers with deterministic
ordering, timeout semantics, and clean shutdown.`,
}

// Execute runs the command tree, exiting the process on error.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig)
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file path (defaults built-in if omitted)")
	rootCmd.PersistentFlags().BoolP("verbose", "v", false, "enable verbose logging")
}

func initConfig() {
	var err error
	cfg, err = config.LoadConfig(cfgFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error loading config: %v\n", err)
		os.Exit(1)
	}
}
