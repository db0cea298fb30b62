package dispatch

import (
	"context"

	"github.com/spoolworks/printfarm/job"
	"github.com/spoolworks/printfarm/logger"
)

// LoggingClient is a Client that accepts every transfer and start and only
// logs them. It stands in where no printer transport is wired up, e.g. the
// CLI against a fleet whose machines are driven manually.
type LoggingClient struct{}

func (LoggingClient) Transfer(_ context.Context, printerID string, j *job.Job) error {
	logger.Infow("Transfer recorded",
		logger.FieldJobID, j.ID,
		logger.FieldPrinterID, printerID)
	return nil
}

func (LoggingClient) Start(_ context.Context, printerID, jobID string) error {
	logger.Infow("Start recorded",
		logger.FieldJobID, jobID,
		logger.FieldPrinterID, printerID)
	return nil
}
