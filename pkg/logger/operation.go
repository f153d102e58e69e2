package logger

import (
	"time"
)

// OperationLogger logs the steps of one named operation, such as a
// reconciliation run, with a shared set of fields and elapsed timing.
type OperationLogger struct {
	logger    Logger
	operation string
	fields    Fields
	startTime time.Time
	now       func() time.Time
}

// NewOperationLogger creates a new operation logger
func NewOperationLogger(operation string, logger Logger) *OperationLogger {
	if logger == nil {
		logger = GetGlobalLogger()
	}

	ol := &OperationLogger{
		logger:    logger.WithComponent("operation"),
		operation: operation,
		fields:    Fields{"operation": operation},
		now:       time.Now,
	}
	ol.startTime = ol.now()

	ol.logger.WithFields(ol.fields).Debug("Starting operation")
	return ol
}

// WithField adds a field to every subsequent entry of the operation
func (ol *OperationLogger) WithField(key string, value interface{}) *OperationLogger {
	ol.fields[key] = value
	return ol
}

// Step logs a step within the operation
func (ol *OperationLogger) Step(step string, fields Fields) {
	merged := ol.merge(fields)
	merged["step"] = step
	ol.logger.WithFields(merged).Info("Operation step")
}

// Warning logs a warning during the operation
func (ol *OperationLogger) Warning(message string) {
	ol.logger.WithFields(ol.merge(nil)).Warn(message)
}

// Success completes the operation successfully
func (ol *OperationLogger) Success(message string) {
	fields := ol.merge(Fields{"status": "success"})
	fields["duration"] = ol.Elapsed().String()
	ol.logger.WithFields(fields).Info(message)
}

// Error completes the operation with an error
func (ol *OperationLogger) Error(err error, message string) {
	fields := ol.merge(Fields{"status": "error"})
	fields["duration"] = ol.Elapsed().String()
	ol.logger.WithError(err).WithFields(fields).Error(message)
}

// Elapsed returns the time since the operation started
func (ol *OperationLogger) Elapsed() time.Duration {
	return ol.now().Sub(ol.startTime)
}

func (ol *OperationLogger) merge(extra Fields) Fields {
	out := make(Fields, len(ol.fields)+len(extra)+2)
	for k, v := range ol.fields {
		out[k] = v
	}
	for k, v := range extra {
		out[k] = v
	}
	return out
}

// TimedOperation executes fn and logs its outcome and duration
func TimedOperation(operation string, logger Logger, fn func() error) error {
	ol := NewOperationLogger(operation, logger)

	err := fn()
	if err != nil {
		ol.Error(err, "Operation failed")
	} else {
		ol.Success("Operation completed")
	}

	return err
}
