package parsers

import (
	"context"
	"io"

	"golang.org/x/sync/errgroup"

	"ledger-reconciliation-service/internal/models"
	"ledger-reconciliation-service/pkg/logger"
)

// Source names a ledger file on disk or an uploaded stream. When Reader is
// set, Name only supplies the extension and the ledger source label.
type Source struct {
	Name   string
	Reader io.Reader
}

// FileSource returns a Source for the file at path.
func FileSource(path string) Source {
	return Source{Name: path}
}

// LoadResult holds both cleaned ledgers of one reconciliation run
type LoadResult struct {
	Bank        models.BankLedger
	System      models.SystemLedger
	BankStats   *ParseStats
	SystemStats *ParseStats
}

// LoadLedgers parses the bank and system ledgers concurrently. The first
// failure cancels the other parse and is returned.
func LoadLedgers(ctx context.Context, config *Config, bank, system Source, net NetAmountFunc) (*LoadResult, error) {
	bankParser, err := NewBankStatementParser(config)
	if err != nil {
		return nil, err
	}
	systemParser, err := NewSystemLedgerParser(config)
	if err != nil {
		return nil, err
	}

	log := logger.WithComponent("ledger_loader").WithFields(logger.Fields{
		"bank_file":   bank.Name,
		"system_file": system.Name,
	})
	log.Debug("Loading ledgers")

	result := &LoadResult{}
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		var err error
		if bank.Reader != nil {
			result.Bank, result.BankStats, err = bankParser.ParseReader(gctx, bank.Name, bank.Reader)
		} else {
			result.Bank, result.BankStats, err = bankParser.ParseFile(gctx, bank.Name)
		}
		return err
	})

	g.Go(func() error {
		var err error
		if system.Reader != nil {
			result.System, result.SystemStats, err = systemParser.ParseReader(gctx, system.Name, system.Reader, net)
		} else {
			result.System, result.SystemStats, err = systemParser.ParseFile(gctx, system.Name, net)
		}
		return err
	})

	if err := g.Wait(); err != nil {
		log.WithError(err).Error("Failed to load ledgers")
		return nil, err
	}

	log.WithFields(logger.Fields{
		"bank_records":   len(result.Bank.Records),
		"system_records": len(result.System.Records),
		"bank_variant":   result.Bank.Variant,
	}).Info("Ledgers loaded")

	return result, nil
}
