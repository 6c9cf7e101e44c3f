package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"quantity-pipeline/internal/config"
	"quantity-pipeline/internal/model"
	"quantity-pipeline/internal/modelfile"
	"quantity-pipeline/internal/pipeline"
)

func runClasses(cmd *cobra.Command, args []string) error {
	reader, err := modelfile.Load(args[0])
	if err != nil {
		return err
	}
	tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "CLASS\tELEMENTS")
	for _, c := range reader.Classes() {
		fmt.Fprintf(tw, "%s\t%d\n", c.Class, c.Count)
	}
	return tw.Flush()
}

func runSeedMapping(cmd *cobra.Command, args []string) error {
	reader, err := modelfile.Load(args[0])
	if err != nil {
		return err
	}
	elements, err := reader.ElementsOf("")
	if err != nil {
		return err
	}
	records := make([]model.ElementRecord, len(elements))
	for i, el := range elements {
		records[i] = pipeline.Flatten(el)
	}

	scale := pipeline.DetectScale(reader)
	mapping := pipeline.SeedMapping(records, pipeline.NewCategorizer(model.Mapping{}, scale))
	if err := config.SaveMapping(seedOut, mapping); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "mapping for %d classes written to %s\n", len(mapping.Rules), seedOut)
	return nil
}
