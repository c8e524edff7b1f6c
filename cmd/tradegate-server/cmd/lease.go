package cmd

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
	"tradegate.io/server/internal/ha"
	"tradegate.io/server/internal/logging"
	"tradegate.io/server/internal/service"
	"tradegate.io/server/models"
)

var (
	leaseDBPath  string
	leaseHostID  string
	leaseForce   bool
	leaseVerbose bool
)

var leaseCmd = &cobra.Command{
	Use:   "lease",
	Short: "Inspect or release the shared lease",
}

var leaseShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the stored lease",
	RunE:  runLeaseShow,
}

var leaseReleaseCmd = &cobra.Command{
	Use:   "release",
	Short: "Mark the stored lease stale so the peer takes over",
	Long: `Write a demotion record for the current lease holder: same owner and
fencing token, mode passive, heartbeat older than the ttl.

Use this when the holder died without releasing. A running holder renews
the lease on its next heartbeat, so stop it first.`,
	RunE: runLeaseRelease,
}

func init() {
	rootCmd.AddCommand(leaseCmd)
	leaseCmd.AddCommand(leaseShowCmd, leaseReleaseCmd)

	leaseCmd.PersistentFlags().StringVar(&leaseDBPath, "db", getEnv("TRADEGATE_STORE_SQLITE_PATH", "./tradegate.db"),
		"Path to the shared SQLite database")
	leaseCmd.PersistentFlags().BoolVar(&leaseVerbose, "verbose", false, "Enable verbose output")
	leaseReleaseCmd.Flags().StringVar(&leaseHostID, "host-id", getEnv("TRADEGATE_HOST_ID", ""),
		"Release only if this host holds the lease")
	leaseReleaseCmd.Flags().BoolVar(&leaseForce, "force", false, "Release regardless of the holder")
}

func openLeaseStore() (*service.LeaseService, func(), error) {
	logger, err := logging.NewCLILogger(leaseVerbose)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create logger: %w", err)
	}

	db, err := OpenDatabase(leaseDBPath)
	if err != nil {
		logger.Sync()
		return nil, nil, err
	}

	closeFn := func() {
		db.Close()
		logger.Sync()
	}
	return service.NewLeaseService(db, logger), closeFn, nil
}

func runLeaseShow(cmd *cobra.Command, args []string) error {
	store, closeFn, err := openLeaseStore()
	if err != nil {
		return err
	}
	defer closeFn()

	ctx, cancel := context.WithTimeout(cmd.Context(), 5*time.Second)
	defer cancel()

	lease, err := store.Read(ctx)
	if err != nil {
		return fmt.Errorf("failed to read lease: %w", err)
	}
	if lease == nil {
		fmt.Println("No lease has been written yet")
		return nil
	}

	now := time.Now()
	fmt.Printf("Owner:          %s (%s)\n", lease.OwnerHostID, lease.HostKind)
	fmt.Printf("Mode:           %s\n", lease.Mode)
	fmt.Printf("Fencing token:  %d\n", lease.FencingToken)
	fmt.Printf("Last heartbeat: %s (%s ago)\n", lease.LastHeartbeat.Format(time.RFC3339), lease.Age(now).Truncate(time.Second))
	fmt.Printf("TTL:            %s\n", lease.TTL())
	if lease.IsStale(now) {
		fmt.Println("Status:         STALE (any host may take over)")
	} else {
		fmt.Println("Status:         fresh")
	}

	if leaseVerbose {
		out, _ := json.MarshalIndent(lease, "", "  ")
		fmt.Fprintln(os.Stderr, string(out))
	}
	return nil
}

func runLeaseRelease(cmd *cobra.Command, args []string) error {
	if leaseHostID == "" && !leaseForce {
		return fmt.Errorf("either --host-id or --force must be specified")
	}

	store, closeFn, err := openLeaseStore()
	if err != nil {
		return err
	}
	defer closeFn()

	ctx, cancel := context.WithTimeout(cmd.Context(), 5*time.Second)
	defer cancel()

	released, err := releaseLease(ctx, store, leaseHostID, leaseForce, time.Now())
	if errors.Is(err, errAlreadyReleased) {
		fmt.Printf("Lease held by %s is already stale and passive\n", released.OwnerHostID)
		return nil
	}
	if err != nil {
		return err
	}

	fmt.Printf("✓ Released lease of %s (fencing token %d)\n", released.OwnerHostID, released.FencingToken)
	return nil
}

var errAlreadyReleased = errors.New("lease already released")

// releaseLease writes the demotion record for the current holder.
//
// Parameters:
//   - store: Lease store to update
//   - hostID: Expected holder; ignored when force is set
//   - force: Release regardless of the holder
//   - now: Reference time for the backdated heartbeat
//
// Returns:
//   - The lease as it is stored afterwards
//   - errAlreadyReleased if nothing had to be written
func releaseLease(ctx context.Context, store ha.LeaseStore, hostID string, force bool, now time.Time) (*models.Lease, error) {
	current, err := store.Read(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to read lease: %w", err)
	}
	if current == nil {
		return nil, fmt.Errorf("no lease has been written yet")
	}
	if !force && current.OwnerHostID != hostID {
		return nil, fmt.Errorf("lease is held by %s, not %s (use --force to release anyway)", current.OwnerHostID, hostID)
	}
	if current.Mode == models.ModePassive && current.IsStale(now) {
		return current, errAlreadyReleased
	}

	demoted := ha.DemotionLease(current.OwnerHostID, current.HostKind, current.FencingToken, current.TTLSeconds, now)
	if err := store.Write(ctx, demoted); err != nil {
		return nil, fmt.Errorf("failed to write demotion record: %w", err)
	}
	return &demoted, nil
}
