package cli

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/spf13/cobra"
)

var pairAddr string

var pairCmd = &cobra.Command{
	Use:   "pair",
	Short: "Pair a mobile device with a running server",
}

var pairIssueCmd = &cobra.Command{
	Use:   "issue",
	Short: "Request a one-time pairing token from a running server",
	Long: `Calls a running amelia serve instance's pairing endpoint and prints
the short-lived token (and its QR deep link) a mobile client exchanges
for a device token within 60 seconds.`,
	RunE: runPairIssue,
}

func init() {
	pairIssueCmd.Flags().StringVar(&pairAddr, "addr", "http://localhost:8080", "base URL of the running amelia server")
	pairCmd.AddCommand(pairIssueCmd)
}

type generatePairResponse struct {
	PairToken string    `json:"pair_token"`
	QRURL     string    `json:"qr_url"`
	ExpiresAt time.Time `json:"expires_at"`
}

// runPairIssue is a thin HTTP client over POST /api/pair/generate: pairing
// tokens are minted and tracked server-side (internal/httpapi), so the CLI
// never touches the pairing store directly.
func runPairIssue(cmd *cobra.Command, args []string) error {
	client := &http.Client{Timeout: 10 * time.Second}
	resp, err := client.Post(pairAddr+"/api/pair/generate", "application/json", bytes.NewReader(nil))
	if err != nil {
		return fmt.Errorf("requesting pairing token: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("server returned %s", resp.Status)
	}

	var out generatePairResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return fmt.Errorf("decoding response: %w", err)
	}

	fmt.Printf("Pairing token: %s\n", out.PairToken)
	fmt.Printf("QR deep link:  %s\n", out.QRURL)
	fmt.Printf("Expires at:    %s\n", out.ExpiresAt.Format(time.RFC3339))
	return nil
}
