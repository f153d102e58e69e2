// Command ledgergen writes a synthetic bank statement and system ledger pair
// with a known number of planted matches.
package main

import (
	"flag"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"time"

	"ledger-reconciliation-service/internal/ledgergen"
	"ledger-reconciliation-service/internal/models"
	"ledger-reconciliation-service/internal/workflow"
)

func main() {
	defaults := ledgergen.DefaultOptions()

	var (
		kind       = flag.String("workflow", "a", "Workflow the pair is shaped for: a or b")
		matches    = flag.Int("matches", defaults.Matches, "Number of planted matches")
		bankOnly   = flag.Int("bank-only", defaults.BankOnly, "Number of bank records with no counterpart")
		systemOnly = flag.Int("system-only", defaults.SystemOnly, "Number of system records with no counterpart")
		maxOffset  = flag.Int("max-offset", defaults.MaxOffsetDays, "Largest day offset of a planted match")
		startDate  = flag.String("start-date", "2024-01-01", "First bank date (YYYY-MM-DD)")
		seed       = flag.Int64("seed", time.Now().UnixNano(), "Random seed for reproducible generation")
		outputDir  = flag.String("output-dir", "generated", "Output directory for bank.csv and system.csv")
	)
	flag.Parse()

	k, err := workflow.ParseKind(*kind)
	if err != nil {
		log.Fatalf("Invalid workflow: %v", err)
	}
	start, err := time.Parse("2006-01-02", *startDate)
	if err != nil {
		log.Fatalf("Invalid start date: %v", err)
	}

	pair, err := ledgergen.Generate(ledgergen.Options{
		Kind:          k,
		Matches:       *matches,
		BankOnly:      *bankOnly,
		SystemOnly:    *systemOnly,
		MaxOffsetDays: *maxOffset,
		Start:         models.NewDate(start.Year(), start.Month(), start.Day()),
		Seed:          *seed,
	})
	if err != nil {
		log.Fatalf("Failed to generate ledgers: %v", err)
	}

	if err := os.MkdirAll(*outputDir, 0755); err != nil {
		log.Fatalf("Failed to create output directory: %v", err)
	}

	bankPath := filepath.Join(*outputDir, "bank.csv")
	if err := writeFile(bankPath, func(f *os.File) error { return ledgergen.WriteBankCSV(f, pair.Bank) }); err != nil {
		log.Fatalf("Failed to write bank CSV: %v", err)
	}
	systemPath := filepath.Join(*outputDir, "system.csv")
	if err := writeFile(systemPath, func(f *os.File) error { return ledgergen.WriteSystemCSV(f, pair.System, k) }); err != nil {
		log.Fatalf("Failed to write system CSV: %v", err)
	}

	fmt.Printf("Generated %d bank records in %s\n", len(pair.Bank.Records), bankPath)
	fmt.Printf("Generated %d system records in %s\n", len(pair.System.Records), systemPath)
	fmt.Printf("Workflow: %s\n", k)
	fmt.Printf("Planted matches: %d\n", len(pair.Planted))
	fmt.Printf("Seed used: %d\n", *seed)
}

func writeFile(path string, write func(*os.File) error) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := write(f); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}
