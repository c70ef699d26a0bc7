package switchboard

import (
	"fmt"
	"net/http"
	"time"

	"github.com/spf13/cobra"

	"github.com/switchboard-dev/switchboard/pkg/config"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Check the health of the Switchboard backend",
	RunE:  runStatus,
}

func runStatus(cmd *cobra.Command, args []string) error {
	cfg := config.Current()
	url := fmt.Sprintf("http://127.0.0.1:%d/readyz", cfg.Gateway.Port)

	client := &http.Client{Timeout: 3 * time.Second}
	resp, err := client.Get(url)
	if err != nil {
		fmt.Println("status: backend is not running")
		return nil
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusOK {
		fmt.Println("status: backend is ready")
	} else {
		fmt.Printf("status: backend returned %s\n", resp.Status)
	}
	return nil
}
