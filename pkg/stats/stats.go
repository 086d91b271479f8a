package stats

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"go-edge/pkg/config"
)

// PerformanceData holds timing and metadata for one processing run
type PerformanceData struct {
	Mode            string
	Operator        config.Operator
	ImagesProcessed int
	TotalTime       float64
	AverageTime     float64
	InputPaths      []string
	OutputPaths     []string
	Timestamp       time.Time

	// Mode-specific data
	TotalProcessTime *float64 // Time spent inside the operator
	Workers          *int
	TileSize         *int
}

// WritePerformanceResults writes one combined report into dir and returns its
// path. The file is named after prefix and the first result's timestamp.
func WritePerformanceResults(dir, prefix string, results []PerformanceData) (string, error) {
	if len(results) == 0 {
		return "", nil
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("failed to create %s: %w", dir, err)
	}

	timestamp := results[0].Timestamp.Format("2006-01-02_15-04-05")
	resultsFile := filepath.Join(dir, fmt.Sprintf("%s%s.txt", prefix, timestamp))

	file, err := os.Create(resultsFile)
	if err != nil {
		return "", fmt.Errorf("failed to create results file: %w", err)
	}
	defer file.Close()

	fmt.Fprintf(file, "=== Edge Detection Results ===\n")
	fmt.Fprintf(file, "Timestamp: %s\n\n", results[0].Timestamp.Format("2006-01-02 15:04:05"))

	for _, result := range results {
		fmt.Fprintf(file, "=== %s %s Results ===\n", result.Mode, result.Operator.Name)
		fmt.Fprintf(file, "Images processed: %d\n", result.ImagesProcessed)
		writeOperator(file, result.Operator)

		if result.TotalProcessTime != nil {
			fmt.Fprintf(file, "Total process time: %.2fs\n", *result.TotalProcessTime)
		}
		fmt.Fprintf(file, "Total execution time: %.2fs\n", result.TotalTime)
		fmt.Fprintf(file, "Average time per image: %.2fs\n", result.AverageTime)

		if result.Workers != nil {
			fmt.Fprintf(file, "Workers: %d\n", *result.Workers)
		}
		if result.TileSize != nil {
			fmt.Fprintf(file, "Tile size: %d\n", *result.TileSize)
		}

		fmt.Fprintf(file, "\nInput files:\n")
		for i, path := range result.InputPaths {
			fmt.Fprintf(file, "  %d. %s\n", i+1, path)
		}
		fmt.Fprintf(file, "\nOutput files:\n")
		for i, path := range result.OutputPaths {
			fmt.Fprintf(file, "  %d. %s\n", i+1, path)
		}
		fmt.Fprintf(file, "\n")
	}
	return resultsFile, file.Close()
}

func writeOperator(file *os.File, op config.Operator) {
	switch op.Name {
	case config.OpMean:
		fmt.Fprintf(file, "Kernel size: %d\n", op.Filter.KernelSize)
	case config.OpGauss:
		fmt.Fprintf(file, "Kernel size: %d\n", op.Filter.KernelSize)
		fmt.Fprintf(file, "Sigma: %g (%s)\n", op.Filter.Sigma, op.Filter.Normalization)
	case config.OpSobel:
		fmt.Fprintf(file, "Magnitude: %s\n", op.Edge.Magnitude)
	case config.OpCanny:
		fmt.Fprintf(file, "Thresholds: %d/%d\n", op.Edge.Low, op.Edge.High)
		fmt.Fprintf(file, "Magnitude: %s, hysteresis: %s\n", op.Edge.Magnitude, op.Edge.Hysteresis)
	}
}
