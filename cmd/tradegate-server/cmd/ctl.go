package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"tradegate.io/server/sdk"
)

var (
	ctlHosts         []string
	ctlSignalSecret  string
	ctlWebhookSecret string
	ctlSender        string
	ctlTimeout       time.Duration
	ctlLimit         int
)

var ctlCmd = &cobra.Command{
	Use:   "ctl",
	Short: "Talk to running tradegate hosts",
	Long: `Client commands against running hosts. List every host with --hosts;
signals and commands go to whichever host currently holds the lease.`,
}

var ctlStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the mode and control flags of every host",
	RunE:  runCtlStatus,
}

var ctlSignalCmd = &cobra.Command{
	Use:   "signal",
	Short: "Send a signed signal payload to the active host",
	RunE:  runCtlSignal,
}

var ctlCommandCmd = &cobra.Command{
	Use:   "command NAME [ARGS...]",
	Short: "Send an owner command to the active host",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runCtlCommand,
}

var ctlRecentCmd = &cobra.Command{
	Use:   "recent",
	Short: "List recent gate outcomes from the active host",
	RunE:  runCtlRecent,
}

func init() {
	rootCmd.AddCommand(ctlCmd)
	ctlCmd.AddCommand(ctlStatusCmd, ctlSignalCmd, ctlCommandCmd, ctlRecentCmd)

	pf := ctlCmd.PersistentFlags()
	pf.StringSliceVar(&ctlHosts, "hosts", splitHosts(getEnv("TRADEGATE_HOSTS", "http://localhost:8080")),
		"Comma-separated host base URLs (default $TRADEGATE_HOSTS)")
	pf.StringVar(&ctlSignalSecret, "signal-secret", getEnv("TRADEGATE_INTAKE_SECRET", ""),
		"Intake secret used to sign signals")
	pf.StringVar(&ctlWebhookSecret, "webhook-secret", getEnv("TRADEGATE_COMMANDS_WEBHOOK_SECRET", ""),
		"Webhook secret for commands and protected queries")
	pf.DurationVar(&ctlTimeout, "timeout", 15*time.Second, "Overall request timeout")

	ctlSignalCmd.Flags().StringVarP(&signFile, "file", "f", "-", "Payload file, - for stdin")
	ctlCommandCmd.Flags().StringVar(&ctlSender, "sender", getEnv("TRADEGATE_COMMANDS_OWNER_ID", ""),
		"Sender id (default $TRADEGATE_COMMANDS_OWNER_ID)")
	ctlRecentCmd.Flags().IntVar(&ctlLimit, "limit", 20, "Number of entries")
}

func splitHosts(s string) []string {
	var hosts []string
	for _, h := range strings.Split(s, ",") {
		if h = strings.TrimSpace(h); h != "" {
			hosts = append(hosts, h)
		}
	}
	return hosts
}

func newCtlClient() (*sdk.Client, error) {
	return sdk.NewClient(sdk.ClientConfig{
		BaseURLs:      append([]string(nil), ctlHosts...),
		SignalSecret:  ctlSignalSecret,
		WebhookSecret: ctlWebhookSecret,
		RetryAttempts: 2,
		RetryWaitMin:  250 * time.Millisecond,
		RetryWaitMax:  2 * time.Second,
		Timeout:       5 * time.Second,
	})
}

func printJSON(v interface{}) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func runCtlStatus(cmd *cobra.Command, args []string) error {
	client, err := newCtlClient()
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(cmd.Context(), ctlTimeout)
	defer cancel()

	active := 0
	for _, hs := range client.HostStatuses(ctx) {
		if hs.Err != nil {
			fmt.Printf("%-40s UNREACHABLE (%v)\n", hs.URL, hs.Err)
			continue
		}
		l, c := hs.Status.Lease, hs.Status.Control
		if l.Mode == "active" {
			active++
		}
		fmt.Printf("%-40s %-8s owner=%s kind=%s panic=%t signals=%t approve=%t holiday=%t weekend=%t freeze=%t\n",
			hs.URL, l.Mode, l.OwnerHostID, l.HostKind,
			c.PanicOn, c.SignalsOn, c.ApproveOn, c.HolidayHalt, c.WeekendOn, c.NewsFreezeOn)
	}

	if active > 1 {
		fmt.Printf("\n! %d hosts report active\n", active)
	}
	return nil
}

func runCtlSignal(cmd *cobra.Command, args []string) error {
	body, err := readPayload(signFile)
	if err != nil {
		return fmt.Errorf("failed to read payload: %w", err)
	}

	client, err := newCtlClient()
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(cmd.Context(), ctlTimeout)
	defer cancel()

	resp, err := client.SendSignal(ctx, body)
	if err != nil {
		return err
	}
	return printJSON(resp)
}

func runCtlCommand(cmd *cobra.Command, args []string) error {
	if ctlSender == "" {
		return fmt.Errorf("--sender is required")
	}

	client, err := newCtlClient()
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(cmd.Context(), ctlTimeout)
	defer cancel()

	resp, err := client.SendCommand(ctx, ctlSender, args[0], args[1:]...)
	if err != nil {
		return err
	}
	if err := printJSON(resp); err != nil {
		return err
	}
	if !resp.OK {
		return fmt.Errorf("command rejected: %s", resp.Reason)
	}
	return nil
}

func runCtlRecent(cmd *cobra.Command, args []string) error {
	client, err := newCtlClient()
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(cmd.Context(), ctlTimeout)
	defer cancel()

	entries, err := client.RecentSignals(ctx, ctlLimit)
	if err != nil {
		return err
	}

	for _, e := range entries {
		outcome := "accepted"
		switch {
		case e.Duplicate:
			outcome = "duplicate"
		case !e.Accepted:
			outcome = "blocked:" + e.Reason
		}
		fmt.Printf("%s  %-10s %-6s %-20s %s\n",
			e.ReceivedAt.Format(time.RFC3339), e.Symbol, e.Timeframe, outcome, e.HostID)
	}
	return nil
}
