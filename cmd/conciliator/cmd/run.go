package cmd

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"creditnote-conciliator/cmd/conciliator/config"
	"creditnote-conciliator/internal/engine"
	"creditnote-conciliator/internal/exporter"
	"creditnote-conciliator/internal/loader"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// Flags for the run command
var (
	inputDir         string
	outputPath       string
	cardColumn       string
	operationColumn  string
	amountColumn     string
	mustRefundColumn string
	debtKeyword      string
	creditKeyword    string
	tolerance        float64
)

// runCmd represents the run command
var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the conciliation over a directory of note exports",
	Long: `Run scans the input directory for debt note and credit note workbooks,
matches both piles on the (card, operation) key, and writes the final
conciliation report.

File roles are assigned by filename keyword: files containing the debt
keyword form the debt pile, files containing the credit keyword form the
credit pile. Everything else is ignored.

Examples:
  # Conciliate the default directory
  conciliator run

  # Custom directory and output
  conciliator run --input-dir ./exports --output MONTHLY_REPORT.xlsx

  # Spanish column headers from a different ERP export
  conciliator run --card-column Tarjeta --operation-column "Numero Operacion"

  # Looser amount tolerance
  conciliator run --tolerance 0.05`,

	PreRunE: validateRunFlags,
	RunE:    runConciliation,
}

func init() {
	rootCmd.AddCommand(runCmd)

	defaults := loader.DefaultConfig()

	// Input flags
	runCmd.Flags().StringVarP(&inputDir, "input-dir", "i", defaults.InputDir, "directory holding the note workbooks")
	runCmd.Flags().StringVar(&debtKeyword, "debt-keyword", defaults.DebtKeyword, "filename keyword marking debt note files")
	runCmd.Flags().StringVar(&creditKeyword, "credit-keyword", defaults.CreditKeyword, "filename keyword marking credit note files")

	// Column mapping flags
	runCmd.Flags().StringVar(&cardColumn, "card-column", defaults.CardColumn, "header of the card number column")
	runCmd.Flags().StringVar(&operationColumn, "operation-column", defaults.OperationColumn, "header of the operation number column")
	runCmd.Flags().StringVar(&amountColumn, "amount-column", defaults.AmountColumn, "header of the amount column")
	runCmd.Flags().StringVar(&mustRefundColumn, "must-refund-column", defaults.MustRefundColumn, "header of the refund flag column")

	// Output flags
	runCmd.Flags().StringVarP(&outputPath, "output", "o", exporter.DefaultConfig().OutputPath, "report output path")

	// Matching configuration flags
	runCmd.Flags().Float64VarP(&tolerance, "tolerance", "t", 0.01, "amount difference treated as equal")

	// Bind flags to viper
	viper.BindPFlag("input-dir", runCmd.Flags().Lookup("input-dir"))
	viper.BindPFlag("debt-keyword", runCmd.Flags().Lookup("debt-keyword"))
	viper.BindPFlag("credit-keyword", runCmd.Flags().Lookup("credit-keyword"))
	viper.BindPFlag("card-column", runCmd.Flags().Lookup("card-column"))
	viper.BindPFlag("operation-column", runCmd.Flags().Lookup("operation-column"))
	viper.BindPFlag("amount-column", runCmd.Flags().Lookup("amount-column"))
	viper.BindPFlag("must-refund-column", runCmd.Flags().Lookup("must-refund-column"))
	viper.BindPFlag("output", runCmd.Flags().Lookup("output"))
	viper.BindPFlag("tolerance", runCmd.Flags().Lookup("tolerance"))
}

func validateRunFlags(cmd *cobra.Command, args []string) error {
	// Get values from viper (allows override from config file and env)
	inputDir = viper.GetString("input-dir")
	debtKeyword = viper.GetString("debt-keyword")
	creditKeyword = viper.GetString("credit-keyword")
	cardColumn = viper.GetString("card-column")
	operationColumn = viper.GetString("operation-column")
	amountColumn = viper.GetString("amount-column")
	mustRefundColumn = viper.GetString("must-refund-column")
	outputPath = viper.GetString("output")
	tolerance = viper.GetFloat64("tolerance")

	if inputDir == "" {
		return fmt.Errorf("input-dir is required")
	}
	info, err := os.Stat(inputDir)
	if os.IsNotExist(err) {
		return fmt.Errorf("input directory does not exist: %s", inputDir)
	}
	if err != nil {
		return fmt.Errorf("error accessing input directory: %w", err)
	}
	if !info.IsDir() {
		return fmt.Errorf("input-dir is a file, expected a directory: %s", inputDir)
	}

	if debtKeyword == "" || creditKeyword == "" {
		return fmt.Errorf("debt-keyword and credit-keyword cannot be empty")
	}
	if debtKeyword == creditKeyword {
		return fmt.Errorf("debt-keyword and credit-keyword must differ")
	}
	if cardColumn == "" || operationColumn == "" {
		return fmt.Errorf("card-column and operation-column cannot be empty")
	}
	if tolerance < 0 {
		return fmt.Errorf("tolerance cannot be negative")
	}

	if outputPath != "" {
		dir := filepath.Dir(outputPath)
		if dir != "." {
			if _, err := os.Stat(dir); os.IsNotExist(err) {
				return fmt.Errorf("output directory does not exist: %s", dir)
			}
		}
	}

	return nil
}

func runConciliation(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	if viper.GetBool("verbose") {
		fmt.Fprintf(os.Stderr, "Starting conciliation...\n")
		fmt.Fprintf(os.Stderr, "Input directory: %s\n", inputDir)
		fmt.Fprintf(os.Stderr, "Output file: %s\n", outputPath)
	}

	// Create configurations
	loaderConfig := config.CreateLoaderConfig()
	engineConfig := config.CreateEngineConfig(tolerance)
	exporterConfig := config.CreateExporterConfig(outputPath)

	l, err := loader.New(loaderConfig)
	if err != nil {
		return err
	}
	pipeline, err := engine.NewPipeline(l, nil, nil, engineConfig)
	if err != nil {
		return err
	}

	result, err := pipeline.Run(ctx)
	if err != nil {
		return err
	}

	if result.NoMatches {
		fmt.Println("No matches found between debt and credit notes. Nothing to report.")
		return nil
	}

	exp, err := exporter.New(exporterConfig)
	if err != nil {
		return err
	}
	if err := exp.Write(result); err != nil {
		return err
	}

	fmt.Printf("Report saved to: %s\n", outputPath)

	if viper.GetBool("verbose") {
		cls := result.Classification
		fmt.Fprintf(os.Stderr, "\nConciliation completed successfully.\n")
		fmt.Fprintf(os.Stderr, "Matched %d debt/credit pairs across %d debt and %d credit files.\n",
			len(result.Pairs), len(result.DebtPile.Files), len(result.CreditPile.Files))
		fmt.Fprintf(os.Stderr, "Pending claims: %d, unexpected refunds: %d, amount variances: %d.\n",
			len(cls.PendingClaims), len(cls.UnexpectedRefunds), len(result.Variances))
		fmt.Fprintf(os.Stderr, "Fully reconciled files: %d, net balanced rows: %d.\n",
			len(cls.ReconciledFiles), len(result.NetBalanced))
		if len(result.Warnings) > 0 {
			fmt.Fprintf(os.Stderr, "Quality warnings: %d (see log output).\n", len(result.Warnings))
		}
	}

	return nil
}
