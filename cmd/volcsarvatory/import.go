package main

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/urfave/cli/v2"

	"github.com/ASFHyP3/VolcSARvatory/pkg/aoi"
	"github.com/ASFHyP3/VolcSARvatory/pkg/clickhouse"
	"github.com/ASFHyP3/VolcSARvatory/pkg/data/clickhouse/burstindex"
	"github.com/ASFHyP3/VolcSARvatory/pkg/utils"
)

func importFrames(c *cli.Context) error {
	ctx := context.Background()
	sugar, err := utils.NewSugaredLogger("import-frames", c.Bool("verbose"))
	if err != nil {
		return fmt.Errorf("failed to create logger: %w", err)
	}
	defer sugar.Desugar().Sync() //nolint:errcheck // best-effort flush; ignore sync errors

	frames, err := readFrames(c.String("input"))
	if err != nil {
		return err
	}
	if len(frames) == 0 {
		sugar.Warn("no frames to import")
		return nil
	}

	chCfg, err := buildClickHouseConfig(c)
	if err != nil {
		return fmt.Errorf("failed to build ClickHouse config: %w", err)
	}

	chClient, err := clickhouse.New(chCfg, sugar)
	if err != nil {
		return fmt.Errorf("failed to create ClickHouse client: %w", err)
	}
	defer chClient.Close()

	repo, err := burstindex.NewRepository(ctx, chClient, chCfg.Cluster, chCfg.Database, c.String("frames-table"))
	if err != nil {
		return fmt.Errorf("failed to create frames repository: %w", err)
	}

	if err := repo.WriteFrames(ctx, frames); err != nil {
		return fmt.Errorf("failed to write frames: %w", err)
	}

	sugar.Infof("%d frames imported into %s", len(frames), c.String("frames-table"))
	return nil
}

func readFrames(path string) ([]aoi.Frame, error) {
	var r io.Reader = os.Stdin
	if path != "-" {
		f, err := os.Open(path)
		if err != nil {
			return nil, fmt.Errorf("failed to open frames file: %w", err)
		}
		defer f.Close()
		r = f
	}
	return aoi.ReadFramesCSV(r)
}
