package main

import (
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"optionsflow/internal/adapters/config"
	"optionsflow/internal/adapters/nasdaq"
	pgclient "optionsflow/internal/adapters/postgres"
	redisclient "optionsflow/internal/adapters/redis"
	"optionsflow/internal/domain/optionsflow"
	pgrepo "optionsflow/internal/repository/postgres"
	redisrepo "optionsflow/internal/repository/redis"
	derivworkers "optionsflow/internal/workers/derivatives"
	"optionsflow/pkg/errors"
	"optionsflow/pkg/logger"
)

func runAnalyze(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	if err := logger.Init(logLevel, "development"); err != nil {
		return errors.Wrap(err, "init logger")
	}
	defer logger.Sync()

	var sourceCfg config.ChainSourceConfig
	if err := config.LoadSection(&sourceCfg); err != nil {
		return err
	}

	tickers := optionsflow.NormalizeTickers(args)
	if fromRegistry {
		var redisCfg config.RedisConfig
		if err := config.LoadSection(&redisCfg); err != nil {
			return err
		}
		rdb, err := redisclient.NewClient(redisCfg)
		if err != nil {
			return errors.Wrap(err, "connect redis")
		}
		defer rdb.Close()

		registered, err := redisrepo.NewTickerRegistry(rdb.Client()).List(ctx)
		if err != nil {
			return err
		}
		tickers = optionsflow.NormalizeTickers(append(tickers, registered...))
	}
	if len(tickers) == 0 {
		return errors.New("no tickers: pass them as arguments or use --registry")
	}

	var history optionsflow.HistoryRepository
	if persist {
		var pgCfg config.PostgresConfig
		if err := config.LoadSection(&pgCfg); err != nil {
			return err
		}
		pg, err := pgclient.NewClient(pgCfg)
		if err != nil {
			return errors.Wrap(err, "connect postgres")
		}
		defer pg.Close()

		if err := pg.EnsureSchema(ctx); err != nil {
			return err
		}
		history = pgrepo.NewAnalysisHistoryRepository(pg.DB())
	}

	runner := derivworkers.NewAnalysisRunner(
		nasdaq.NewClient(sourceCfg),
		nil,
		history,
		derivworkers.RunnerConfig{MaxConcurrency: concurrency},
	)

	result := runner.RunTickers(ctx, tickers, persist)

	if err := writePayloads(cmd.OutOrStdout(), result); err != nil {
		return err
	}
	writeSummary(cmd.ErrOrStderr(), result)

	if result.Analyzed == 0 {
		return errors.Newf("all %d tickers failed", len(tickers))
	}
	return nil
}

func writePayloads(w io.Writer, result derivworkers.BatchResult) error {
	payloads := make([]*optionsflow.AnalysisPayload, 0, result.Analyzed)
	for _, r := range result.Results {
		if r.Err == nil {
			payloads = append(payloads, r.Payload)
		}
	}

	enc := json.NewEncoder(w)
	if pretty {
		enc.SetIndent("", "  ")
	}
	return errors.Wrap(enc.Encode(payloads), "encode payloads")
}

func writeSummary(w io.Writer, result derivworkers.BatchResult) {
	var volume int64
	for _, r := range result.Results {
		if r.Err != nil {
			fmt.Fprintf(w, "  %-6s failed: %v\n", r.Ticker, r.Err)
			continue
		}
		m := r.Payload.Metrics
		volume += m.TotalCallVolume + m.TotalPutVolume
		fmt.Fprintf(w, "  %-6s %-8s %-5s max pain $%s  P/C %.2f\n",
			r.Ticker,
			r.Payload.Analysis.ConsensusDirection,
			r.Payload.Analysis.Stance,
			humanize.FormatFloat("#,###.##", r.Payload.MaxPainPrice),
			m.PutCallRatio,
		)
	}

	line := fmt.Sprintf("analyzed %d of %d tickers, %s contracts traded, took %s",
		result.Analyzed, len(result.Results), humanize.Comma(volume), result.Duration.Round(time.Millisecond))
	if persist {
		line += fmt.Sprintf(", persisted=%t", result.Persisted)
	}
	fmt.Fprintln(w, line)
}
