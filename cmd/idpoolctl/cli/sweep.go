// sweep.go - one-shot CLI trigger for a running server's idle-pool
// eviction pass, over its diagnostics HTTP surface.
package cli

import (
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/spf13/cobra"
)

var (
	sweepListen    string
	sweepThreshold time.Duration
	sweepToken     string
)

var sweepCmd = &cobra.Command{
	Use:   "sweep",
	Short: "Trigger an idle-pool eviction pass against a running idpoolctl serve instance",
	RunE:  runSweep,
}

func init() {
	sweepCmd.Flags().StringVar(&sweepListen, "diagnostics-addr", "http://127.0.0.1:8080", "diagnostics server base URL")
	sweepCmd.Flags().DurationVar(&sweepThreshold, "idle-threshold", 0, "evict pools idle longer than this")
	sweepCmd.Flags().StringVar(&sweepToken, "token", "", "bearer token, if the server requires one")
	rootCmd.AddCommand(sweepCmd)
}

func runSweep(cmd *cobra.Command, args []string) error {
	url := fmt.Sprintf("%s/sweep?idle_threshold=%s", sweepListen, sweepThreshold)
	req, err := http.NewRequest(http.MethodPost, url, nil)
	if err != nil {
		return err
	}
	if sweepToken != "" {
		req.Header.Set("Authorization", "Bearer "+sweepToken)
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return fmt.Errorf("sweep request failed: %w", err)
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(resp.Body)
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("sweep request returned %s: %s", resp.Status, string(body))
	}

	fmt.Println(string(body))
	return nil
}
