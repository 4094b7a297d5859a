package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/urfave/cli/v2"

	"github.com/ASFHyP3/VolcSARvatory/pkg/clickhouse"
	"github.com/ASFHyP3/VolcSARvatory/pkg/data/clickhouse/groups"
	"github.com/ASFHyP3/VolcSARvatory/pkg/utils"
)

func remove(c *cli.Context) error {
	ctx := context.Background()
	sugar, err := utils.NewSugaredLogger("remove", c.Bool("verbose"))
	if err != nil {
		return fmt.Errorf("failed to create logger: %w", err)
	}
	defer sugar.Desugar().Sync() //nolint:errcheck // best-effort flush; ignore sync errors

	name := c.String("aoi")
	if name == "" {
		return errors.New("aoi name is required")
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

	repo, err := groups.NewRepository(ctx, chClient, chCfg.Cluster, chCfg.Database, groups.Tables{
		Groups: c.String("groups-table"),
		State:  c.String("state-table"),
	})
	if err != nil {
		return fmt.Errorf("failed to create groups repository: %w", err)
	}

	if err := repo.DeleteGroups(ctx, name); err != nil {
		return fmt.Errorf("failed to delete groups: %w", err)
	}

	sugar.Infof("groups successfully removed for aoi %s", name)
	return nil
}
