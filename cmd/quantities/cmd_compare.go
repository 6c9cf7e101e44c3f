package main

import (
	"fmt"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"quantity-pipeline/internal/model"
	"quantity-pipeline/internal/modelfile"
	"quantity-pipeline/internal/pipeline"
)

func runCompare(cmd *cobra.Command, args []string) error {
	ctx, cancel := commandContext(cmd.Context())
	defer cancel()

	readerA, err := modelfile.Load(args[0])
	if err != nil {
		return err
	}
	readerB, err := modelfile.Load(args[1])
	if err != nil {
		return err
	}
	mappingA, err := loadMapping(mappingPath)
	if err != nil {
		return err
	}
	mappingB := mappingA
	if mappingBPath != "" {
		if mappingB, err = loadMapping(mappingBPath); err != nil {
			return err
		}
	}

	jobID := uuid.New().String()
	tr := pipeline.NewTracker(jobID, model.JobComparison, nil)
	cmp, err := pipeline.CompareRun(ctx, readerA, readerB, mappingA, mappingB,
		pipeline.Options{RunOptions: runOptions(), Tracker: tr},
		model.CompareOptions{Fields: fields, IncludeUnchanged: unchanged})
	if err != nil {
		return err
	}
	tr.Complete()

	rows := cmp.Rows
	if mirror {
		rows = pipeline.Mirror(rows)
	}

	em, err := exportManager(jobID)
	if err != nil {
		return err
	}
	if outPath == "" {
		return em.WriteTo(cmd.OutOrStdout(), "csv", rows)
	}
	r := em.ExportComparison(ctx, outPath, rows)
	if !r.Success {
		return fmt.Errorf("write %s: %s", outPath, r.Error)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "%s vs %s: %d differences -> %s\n", readerA.Name(), readerB.Name(), len(rows), outPath)
	return nil
}
