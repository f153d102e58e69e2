package config

import (
	"bytes"
	"fmt"
	"os"
	"strings"

	"github.com/robfig/cron/v3"
	"gopkg.in/yaml.v3"

	"ledger-reconciliation-service/internal/matcher"
	"ledger-reconciliation-service/internal/parsers"
	"ledger-reconciliation-service/internal/reconciler"
	"ledger-reconciliation-service/internal/reporter"
	"ledger-reconciliation-service/internal/workflow"
	"ledger-reconciliation-service/pkg/errors"
	"ledger-reconciliation-service/pkg/logger"
)

// ValidateToleranceDays checks the WorkflowA date window bound.
func ValidateToleranceDays(days int) error {
	return workflow.Options{ToleranceDays: days}.Validate()
}

// CreateEngineOptions creates the strategy options for a run
func CreateEngineOptions(toleranceDays int) (workflow.Options, error) {
	opts := workflow.DefaultOptions()
	opts.ToleranceDays = toleranceDays
	if err := opts.Validate(); err != nil {
		return workflow.Options{}, err
	}
	return opts, nil
}

// CreateNormalizerConfig creates the ledger parser configuration. delimiter
// is empty (sniff), a single character, or the word "tab".
func CreateNormalizerConfig(delimiter string, maxRows int) (*parsers.Config, error) {
	config := parsers.DefaultConfig()
	config.MaxRows = maxRows

	switch strings.ToLower(delimiter) {
	case "", "auto":
	case "tab", `\t`:
		config.Delimiter = '\t'
	default:
		runes := []rune(delimiter)
		if len(runes) != 1 {
			return nil, errors.ConfigurationError(errors.CodeInvalidConfig, "delimiter", delimiter, nil).
				WithSuggestion("Use a single character such as ',' or ';', or 'tab'")
		}
		config.Delimiter = runes[0]
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}
	return config, nil
}

// CreateServiceConfig creates the reconciliation service configuration
func CreateServiceConfig(parser *parsers.Config, toleranceDays, workers int) (*reconciler.Config, error) {
	config := reconciler.DefaultConfig()
	config.Parser = parser
	config.ToleranceDays = toleranceDays
	if workers > 0 {
		config.Matcher = matcher.DefaultConfig()
		config.Matcher.Workers = workers
	}
	if err := config.Validate(); err != nil {
		return nil, err
	}
	return config, nil
}

// CreateReportConfig creates a report configuration for the specified output format
func CreateReportConfig(format string, includeMatched bool, maxItems int) (*reporter.ReportConfig, error) {
	config := reporter.DefaultReportConfig()
	config.Format = reporter.OutputFormat(strings.ToLower(format))
	config.MaxListItems = maxItems

	switch config.Format {
	case reporter.FormatConsole:
		config.IncludeMatched = includeMatched
	case reporter.FormatJSON, reporter.FormatYAML:
		// Machine readable formats always carry the full partition.
		config.IncludeMatched = true
	}

	if err := config.Validate(); err != nil {
		return nil, errors.ConfigurationError(errors.CodeInvalidConfig, "format", format, err).
			WithSuggestion("Valid formats: console, json, yaml")
	}
	return config, nil
}

// CreateExportConfig creates the export configuration. An empty directory
// disables export and returns nil.
func CreateExportConfig(directory, prefix string, csv, workbook bool) (*reporter.ExportConfig, error) {
	if directory == "" {
		return nil, nil
	}

	info, err := os.Stat(directory)
	if err != nil {
		return nil, errors.FileError(errors.CodeDirectoryError, directory, err)
	}
	if !info.IsDir() {
		return nil, errors.FileError(errors.CodeDirectoryError, directory, fmt.Errorf("not a directory"))
	}

	config := &reporter.ExportConfig{
		Directory: directory,
		Prefix:    prefix,
		CSV:       csv,
		Workbook:  workbook,
	}
	if err := config.Validate(); err != nil {
		return nil, err
	}
	return config, nil
}

// CreateLoggerConfig creates the logger configuration. verbose switches to
// the debug level and caller reporting of logger.DebugConfig.
func CreateLoggerConfig(base *logger.Config, level, format string, verbose bool) (*logger.Config, error) {
	config := *base
	if level != "" {
		config.Level = logger.Level(strings.ToLower(level))
	}
	if format != "" {
		config.Format = logger.Format(strings.ToLower(format))
	}
	if verbose {
		debug := logger.DebugConfig()
		config.Level = debug.Level
		config.CallerInfo = debug.CallerInfo
	}
	if err := config.Validate(); err != nil {
		return nil, errors.ConfigurationError(errors.CodeInvalidConfig, "log", level+"/"+format, err)
	}
	return &config, nil
}

// Job is one scheduled reconciliation
type Job struct {
	Name          string `yaml:"name"`
	Cron          string `yaml:"cron"`
	BankFile      string `yaml:"bank_file"`
	SystemFile    string `yaml:"system_file"`
	Workflow      string `yaml:"workflow"`
	ToleranceDays *int   `yaml:"tolerance_days"`
	ExportDir     string `yaml:"export_dir"`
}

// Validate checks a job definition. Files are checked when the job fires,
// not at load time.
func (j *Job) Validate() error {
	if strings.TrimSpace(j.Name) == "" {
		return errors.ConfigurationError(errors.CodeMissingConfig, "jobs.name", j.Name, nil)
	}
	if _, err := cron.ParseStandard(j.Cron); err != nil {
		return errors.ConfigurationError(errors.CodeInvalidConfig, "jobs."+j.Name+".cron", j.Cron, err).
			WithSuggestion("Use a five field cron expression or a descriptor such as @daily")
	}
	if j.BankFile == "" {
		return errors.ConfigurationError(errors.CodeMissingConfig, "jobs."+j.Name+".bank_file", "", nil)
	}
	if j.SystemFile == "" {
		return errors.ConfigurationError(errors.CodeMissingConfig, "jobs."+j.Name+".system_file", "", nil)
	}
	if _, err := workflow.Resolve(j.Workflow); err != nil {
		return errors.ConfigurationError(errors.CodeInvalidConfig, "jobs."+j.Name+".workflow", j.Workflow, err)
	}
	if j.ToleranceDays != nil {
		if err := ValidateToleranceDays(*j.ToleranceDays); err != nil {
			return err
		}
	}
	return nil
}

type jobFile struct {
	Jobs []Job `yaml:"jobs"`
}

// LoadJobs reads and validates a YAML job file.
func LoadJobs(path string) ([]Job, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, errors.FileError(errors.CodeFileNotFound, path, err)
		}
		return nil, errors.FileError(errors.CodeFilePermission, path, err)
	}
	return ParseJobs(data)
}

// ParseJobs decodes a job file. Unknown keys are rejected.
func ParseJobs(data []byte) ([]Job, error) {
	var file jobFile
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&file); err != nil {
		return nil, errors.ConfigurationError(errors.CodeInvalidConfig, "jobs", nil, err).
			WithSuggestion("Check the YAML syntax of the job file")
	}
	if len(file.Jobs) == 0 {
		return nil, errors.ConfigurationError(errors.CodeMissingConfig, "jobs", nil, nil)
	}

	seen := make(map[string]bool, len(file.Jobs))
	for i := range file.Jobs {
		job := &file.Jobs[i]
		if err := job.Validate(); err != nil {
			return nil, err
		}
		if seen[job.Name] {
			return nil, errors.ConfigurationError(errors.CodeConfigConflict, "jobs.name", job.Name, nil).
				WithSuggestion("Give every job a unique name")
		}
		seen[job.Name] = true
	}
	return file.Jobs, nil
}
