package main

import (
	"context"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/Skufu/cardiorisk/internal/assessment"
	"github.com/Skufu/cardiorisk/internal/batch"
	"github.com/Skufu/cardiorisk/internal/override"
	"github.com/Skufu/cardiorisk/internal/predict"
)

var (
	batchFile        string
	batchOut         string
	batchConcurrency int
)

var batchCmd = &cobra.Command{
	Use:   "batch",
	Short: "Assess every row of a CSV or XLSX file and write the results as CSV",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		rules, err := override.LoadRules(cfg.Rules.File)
		if err != nil {
			return err
		}
		opts := []predict.Option{predict.WithTimeout(cfg.Model.Timeout)}
		if cfg.Batch.RPS > 0 {
			opts = append(opts, predict.WithLimiter(rate.NewLimiter(rate.Limit(cfg.Batch.RPS), 1)))
		}
		pipeline := assessment.NewPipeline(predict.NewClient(cfg.Model.URL, opts...), rules)

		concurrency := batchConcurrency
		if concurrency <= 0 {
			concurrency = cfg.Batch.Concurrency
		}

		var out io.Writer = cmd.OutOrStdout()
		if batchOut != "" && batchOut != "-" {
			f, err := os.Create(batchOut)
			if err != nil {
				return eris.Wrapf(err, "create %s", batchOut)
			}
			defer f.Close()
			out = f
		}

		summary, err := runBatch(ctx, pipeline, batchFile, out, concurrency)
		if err != nil {
			return err
		}
		zap.L().Info("batch finished",
			zap.String("file", batchFile),
			zap.Int("total", summary.Total),
			zap.Int("succeeded", summary.Succeeded),
			zap.Int("failed", summary.Failed),
			zap.Int("upgraded", summary.Upgraded),
			zap.Float64("mean_confidence", summary.MeanConfidence),
		)
		return nil
	},
}

func init() {
	batchCmd.Flags().StringVar(&batchFile, "file", "", "CSV or XLSX file with one patient per row")
	batchCmd.Flags().StringVar(&batchOut, "out", "", "results CSV path (stdout when empty)")
	batchCmd.Flags().IntVar(&batchConcurrency, "concurrency", 0, "rows assessed at once (config default when 0)")
	_ = batchCmd.MarkFlagRequired("file")
	rootCmd.AddCommand(batchCmd)
}

func readRows(path string) ([]batch.Row, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, eris.Wrapf(err, "open %s", path)
	}
	defer f.Close()
	return batch.ParseFile(path, f)
}

func runBatch(ctx context.Context, a batch.Assessor, path string, out io.Writer, concurrency int) (batch.Summary, error) {
	rows, err := readRows(path)
	if err != nil {
		return batch.Summary{}, err
	}
	records := batch.NewRunner(a, batch.WithConcurrency(concurrency)).RunAll(ctx, rows)
	if err := batch.WriteCSV(out, records); err != nil {
		return batch.Summary{}, err
	}
	return batch.Summarize(records), nil
}
