// Package config builds component configurations from CLI flag values.
package config

import (
	"creditnote-conciliator/internal/engine"
	"creditnote-conciliator/internal/exporter"
	"creditnote-conciliator/internal/loader"

	"github.com/shopspring/decimal"
	"github.com/spf13/viper"
)

// CreateLoaderConfig creates a loader configuration from the bound flags
func CreateLoaderConfig() *loader.Config {
	config := loader.DefaultConfig()

	// Apply CLI overrides
	config.InputDir = viper.GetString("input-dir")
	config.DebtKeyword = viper.GetString("debt-keyword")
	config.CreditKeyword = viper.GetString("credit-keyword")
	config.CardColumn = viper.GetString("card-column")
	config.OperationColumn = viper.GetString("operation-column")
	config.AmountColumn = viper.GetString("amount-column")
	config.MustRefundColumn = viper.GetString("must-refund-column")

	return config
}

// CreateEngineConfig creates an engine configuration with the specified tolerance
func CreateEngineConfig(tolerance float64) *engine.Config {
	config := engine.DefaultConfig()
	config.Tolerance = decimal.NewFromFloat(tolerance)
	return config
}

// CreateExporterConfig creates an exporter configuration for the output path
func CreateExporterConfig(outputPath string) *exporter.Config {
	config := exporter.DefaultConfig()
	if outputPath != "" {
		config.OutputPath = outputPath
	}
	return config
}
