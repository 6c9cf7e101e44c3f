package main

import "github.com/spf13/cobra"

// --- Global Command Variables ---
var (
	configPath   string
	verbose      bool
	mappingPath  string
	mappingBPath string
	outPath      string
	seedOut      string
	obsPath      string
	localeFlag   string
	convertMM    bool
	skipUnmapped bool
	workers      int
	fields       []string
	unchanged    bool
	mirror       bool

	rootCmd = &cobra.Command{
		Use:          "quantities",
		Short:        "Extract, aggregate and compare building element quantities",
		SilenceUsage: true,
	}

	// --- Extraction ---
	extractCmd = &cobra.Command{
		Use:   "extract [model dump]",
		Short: "Aggregate the quantities of one model into the wide table",
		Args:  cobra.ExactArgs(1),
		RunE:  runExtract, // Defined in cmd_extract.go
	}

	// --- Comparison ---
	compareCmd = &cobra.Command{
		Use:   "compare [model A] [model B]",
		Short: "Compare the quantities of two model snapshots",
		Args:  cobra.ExactArgs(2),
		RunE:  runCompare, // Defined in cmd_compare.go
	}

	// --- Inspection ---
	classesCmd = &cobra.Command{
		Use:   "classes [model dump]",
		Short: "List the element classes of a model with their counts",
		Args:  cobra.ExactArgs(1),
		RunE:  runClasses, // Defined in cmd_mapping.go
	}
	seedMappingCmd = &cobra.Command{
		Use:   "seed-mapping [model dump]",
		Short: "Write a starting mapping derived from the heuristic categorization",
		Args:  cobra.ExactArgs(1),
		RunE:  runSeedMapping, // Defined in cmd_mapping.go
	}
)

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "config.yaml", "Path to the configuration file")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Log at debug level")

	for _, cmd := range []*cobra.Command{extractCmd, compareCmd} {
		cmd.Flags().StringVarP(&mappingPath, "mapping", "m", "", "Mapping document (.json or .yaml); empty uses heuristics only")
		cmd.Flags().StringVarP(&outPath, "out", "o", "", "Output file (.csv, .json or .xlsx); empty writes CSV to stdout")
		cmd.Flags().StringVar(&localeFlag, "locale", "", "Number locale of the export, e.g. de or en")
		cmd.Flags().BoolVar(&convertMM, "convert-mm", false, "Convert millimeter columns to meters")
		cmd.Flags().BoolVar(&skipUnmapped, "skip-unmapped", false, "Drop elements of classes without a mapping rule")
		cmd.Flags().IntVarP(&workers, "workers", "w", 0, "Worker goroutines; 0 uses the configured count")
	}
	extractCmd.Flags().StringVar(&obsPath, "observations", "", "Also write the long-form table to this file")

	compareCmd.Flags().StringVar(&mappingBPath, "mapping-b", "", "Mapping for model B; defaults to --mapping")
	compareCmd.Flags().StringSliceVar(&fields, "fields", nil, "Compare only these fields")
	compareCmd.Flags().BoolVar(&unchanged, "include-unchanged", false, "Keep rows without a difference")
	compareCmd.Flags().BoolVar(&mirror, "mirror", false, "Report A against B instead of B against A")

	seedMappingCmd.Flags().StringVarP(&seedOut, "out", "o", "mapping.yaml", "Where to write the mapping (.json or .yaml)")

	rootCmd.AddCommand(extractCmd, compareCmd, classesCmd, seedMappingCmd)
}
