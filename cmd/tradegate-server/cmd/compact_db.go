package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"tradegate.io/server/internal/logging"
)

var (
	compactDBPath  string
	compactAnalyze bool
	compactVerbose bool
)

var compactDBCmd = &cobra.Command{
	Use:   "compact-db",
	Short: "Compact and optimize the shared SQLite database",
	Long: `Run VACUUM (and optionally ANALYZE) on the shared database.

The lease row is rewritten every heartbeat and the signal journal is pruned
continuously, so the file accumulates free pages over time.`,
	RunE: runCompactDB,
}

func init() {
	rootCmd.AddCommand(compactDBCmd)

	compactDBCmd.Flags().StringVar(&compactDBPath, "db", getEnv("TRADEGATE_STORE_SQLITE_PATH", "./tradegate.db"),
		"Path to SQLite database")
	compactDBCmd.Flags().BoolVar(&compactAnalyze, "analyze", true, "Run ANALYZE after VACUUM")
	compactDBCmd.Flags().BoolVar(&compactVerbose, "verbose", false, "Enable verbose output")
}

func runCompactDB(cmd *cobra.Command, args []string) error {
	logger, err := logging.NewCLILogger(compactVerbose)
	if err != nil {
		return fmt.Errorf("failed to create logger: %w", err)
	}
	defer logger.Sync()

	db, err := OpenDatabase(compactDBPath)
	if err != nil {
		return err
	}
	defer db.Close()

	logger.Info("compacting database", zap.String("path", compactDBPath))

	var pageCount, pageSize int64
	if err := db.QueryRow("PRAGMA page_count").Scan(&pageCount); err != nil {
		return fmt.Errorf("failed to get page count: %w", err)
	}
	if err := db.QueryRow("PRAGMA page_size").Scan(&pageSize); err != nil {
		return fmt.Errorf("failed to get page size: %w", err)
	}

	sizeBefore := pageCount * pageSize
	fmt.Printf("Database size before: %.2f MB (%d pages x %d bytes)\n",
		float64(sizeBefore)/(1024*1024), pageCount, pageSize)

	fmt.Println("\nRunning VACUUM...")
	if _, err := db.Exec("VACUUM"); err != nil {
		return fmt.Errorf("VACUUM failed: %w", err)
	}

	if err := db.QueryRow("PRAGMA page_count").Scan(&pageCount); err != nil {
		return fmt.Errorf("failed to get page count: %w", err)
	}

	sizeAfter := pageCount * pageSize
	saved := sizeBefore - sizeAfter
	var percentSaved float64
	if sizeBefore > 0 {
		percentSaved = float64(saved) / float64(sizeBefore) * 100
	}

	fmt.Printf("\nDatabase size after:  %.2f MB (%d pages x %d bytes)\n",
		float64(sizeAfter)/(1024*1024), pageCount, pageSize)
	fmt.Printf("Space reclaimed:      %.2f MB (%.1f%%)\n",
		float64(saved)/(1024*1024), percentSaved)

	logger.Info("VACUUM completed",
		zap.Int64("size_before", sizeBefore),
		zap.Int64("size_after", sizeAfter),
	)

	if compactAnalyze {
		fmt.Println("\nRunning ANALYZE...")
		if _, err := db.Exec("ANALYZE"); err != nil {
			return fmt.Errorf("ANALYZE failed: %w", err)
		}
		fmt.Println("✓ ANALYZE completed")
	}

	fmt.Println("\nTable Statistics:")
	fmt.Println("=====================================")

	for _, table := range []string{"lease", "signal_log"} {
		var count int64
		if err := db.QueryRow(fmt.Sprintf("SELECT COUNT(*) FROM %s", table)).Scan(&count); err != nil {
			logger.Warn("failed to count table rows", zap.String("table", table), zap.Error(err))
			continue
		}
		fmt.Printf("  %-20s %d rows\n", table+":", count)
	}

	fmt.Println("\n✓ Database compaction completed successfully")
	return nil
}
