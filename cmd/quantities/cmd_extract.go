package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"quantity-pipeline/internal/config"
	"quantity-pipeline/internal/model"
	"quantity-pipeline/internal/modelfile"
	"quantity-pipeline/internal/pipeline"
	"quantity-pipeline/pkg/utils"
)

func runExtract(cmd *cobra.Command, args []string) error {
	ctx, cancel := commandContext(cmd.Context())
	defer cancel()

	reader, err := modelfile.Load(args[0])
	if err != nil {
		return err
	}
	mapping, err := loadMapping(mappingPath)
	if err != nil {
		return err
	}

	jobID := uuid.New().String()
	tr := pipeline.NewTracker(jobID, model.JobExtraction, nil)
	res, err := pipeline.Run(ctx, reader, mapping, pipeline.Options{RunOptions: runOptions(), Tracker: tr})
	if err != nil {
		return err
	}
	tr.Complete()

	em, err := exportManager(jobID)
	if err != nil {
		return err
	}
	if obsPath != "" {
		if r := em.ExportObservations(ctx, obsPath, res.Observations); !r.Success {
			return fmt.Errorf("write observations: %s", r.Error)
		}
	}
	if outPath == "" {
		return em.WriteTo(cmd.OutOrStdout(), "csv", res.Aggregated)
	}
	r := em.ExportAggregated(ctx, outPath, res.Aggregated)
	if !r.Success {
		return fmt.Errorf("write %s: %s", outPath, r.Error)
	}
	m := tr.Metrics()
	fmt.Fprintf(cmd.OutOrStdout(), "%s: %d elements (%d by rule, %d heuristic), %d rows, %d columns -> %s\n",
		reader.Name(), m.Elements, m.RuleDriven, m.Heuristic, len(res.Aggregated.Rows), len(res.Aggregated.Columns), outPath)
	return nil
}

// ------------------- Shared helpers -------------------

// commandContext is cancelled on interrupt and after the configured job timeout.
func commandContext(parent context.Context) (context.Context, context.CancelFunc) {
	if parent == nil {
		parent = context.Background()
	}
	ctx, stop := signal.NotifyContext(parent, os.Interrupt)
	ctx, cancel := context.WithTimeout(ctx, cfg.Timeout())
	return ctx, func() {
		cancel()
		stop()
	}
}

func loadMapping(path string) (model.Mapping, error) {
	if path == "" {
		return model.Mapping{}, nil
	}
	return config.LoadMapping(path)
}

// runOptions merges the command flags over the configuration.
func runOptions() model.RunOptions {
	opts := model.RunOptions{
		ConvertMMToM:     cfg.ConvertMMToM || convertMM,
		MillimeterFields: cfg.MillimeterFields,
		SkipUnmapped:     skipUnmapped,
		Workers:          cfg.Workers,
	}
	if workers > 0 {
		opts.Workers = workers
	}
	return opts
}

func exportManager(jobID string) (*pipeline.ExportManager, error) {
	loc := cfg.NumberLocale()
	if localeFlag != "" {
		parsed, err := utils.ParseLocale(localeFlag)
		if err != nil {
			return nil, err
		}
		loc = parsed
	}
	return pipeline.NewExportManager(jobID, loc), nil
}
