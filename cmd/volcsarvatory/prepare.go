package main

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/urfave/cli/v2"
	"go.uber.org/zap"

	"github.com/ASFHyP3/VolcSARvatory/internal/jobs"
	"github.com/ASFHyP3/VolcSARvatory/pkg/aoi"
	"github.com/ASFHyP3/VolcSARvatory/pkg/catalog"
	"github.com/ASFHyP3/VolcSARvatory/pkg/multiburst"
	"github.com/ASFHyP3/VolcSARvatory/pkg/utils"
)

func prepare(c *cli.Context) error {
	sugar, err := utils.NewSugaredLogger("prepare", c.Bool("verbose"))
	if err != nil {
		return fmt.Errorf("failed to create logger: %w", err)
	}
	defer sugar.Desugar().Sync() //nolint:errcheck // best-effort flush; ignore sync errors

	partitionCfg, err := buildPartitionConfig(c)
	if err != nil {
		return err
	}
	settings, err := prepareAOI(c.String("aoi-file"), c.String("aoi"))
	if err != nil {
		return err
	}

	ids, err := readIDs(c.String("input"), c.Args().Slice(), os.Stdin)
	if err != nil {
		return err
	}
	if len(ids) == 0 {
		return multiburst.ErrEmptyInput
	}
	sugar.Infow("config",
		"bursts", len(ids),
		"countLimit", partitionCfg.CountLimit,
		"sidePairs", partitionCfg.SidePairs.String(),
		"maxDepth", partitionCfg.MaxDepth,
		"qualify", c.Bool("qualify"),
		"aoi", settings.Name,
		"output", c.String("output"),
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if c.Bool("qualify") {
		client := catalog.NewClient(buildCatalogConfig(c), sugar, nil)
		ids, err = client.FilterQualified(ctx, ids)
		if err != nil {
			return fmt.Errorf("failed to qualify bursts: %w", err)
		}
		sugar.Infof("%d bursts qualify", len(ids))
		if len(ids) == 0 {
			return multiburst.ErrEmptyInput
		}
	}

	validator := multiburst.NewRetryValidator(
		multiburst.NewRuleValidator(partitionCfg.CountLimit), c.Duration("validator-retry-backoff"), sugar, nil,
	)
	partitioner, err := multiburst.NewPartitioner(sugar, validator, partitionCfg, nil)
	if err != nil {
		return fmt.Errorf("failed to create partitioner: %w", err)
	}
	gs, err := partitioner.Partition(ctx, ids)
	if err != nil {
		return fmt.Errorf("failed to partition: %w", err)
	}

	return writeDocument(sugar, c.String("output"), c.String("tiles-output"), settings, gs)
}

// prepareAOI returns the named AOI of aoiFile, or a zero AOI carrying only
// the name when no file is given.
func prepareAOI(aoiFile, name string) (aoi.AOI, error) {
	if aoiFile == "" {
		return aoi.AOI{Name: name}, nil
	}
	if name == "" {
		return aoi.AOI{}, errors.New("--aoi is required with --aoi-file")
	}
	defs, err := aoi.LoadDefinitions(aoiFile)
	if err != nil {
		return aoi.AOI{}, fmt.Errorf("failed to load aoi definitions: %w", err)
	}
	selected, err := selectAOIs(defs, []string{name})
	if err != nil {
		return aoi.AOI{}, err
	}
	return selected[0], nil
}

// writeDocument merges gs into the document at output, or prints a fresh
// document to stdout when output is empty.
func writeDocument(sugar *zap.SugaredLogger, output, tilesOutput string, a aoi.AOI, gs []*multiburst.Group) error {
	doc := jobs.Document{}
	if output != "" {
		existing, err := jobs.ReadDocument(output)
		if err != nil {
			return err
		}
		doc = existing
	}
	doc.Add(a, gs)
	if err := doc.Validate(); err != nil {
		return fmt.Errorf("invalid job document: %w", err)
	}

	if output == "" {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		if err := enc.Encode(doc); err != nil {
			return fmt.Errorf("failed to write job document: %w", err)
		}
	} else {
		if err := jobs.WriteJSON(output, doc); err != nil {
			return err
		}
		sugar.Infof("%d multi-bursts written to %s (%d total)", len(gs), output, len(doc))
	}

	if tilesOutput != "" {
		tiles := doc.Tiles()
		if err := jobs.WriteJSON(tilesOutput, tiles); err != nil {
			return err
		}
		sugar.Infof("%d tiles written to %s", len(tiles), tilesOutput)
	}
	return nil
}

// readIDs collects burst ids from args and from path, where "-" reads stdin.
// The file holds either a JSON list or one id per line.
func readIDs(path string, args []string, stdin io.Reader) ([]string, error) {
	ids := append([]string(nil), args...)
	if path == "" {
		return ids, nil
	}

	var data []byte
	var err error
	if path == "-" {
		data, err = io.ReadAll(stdin)
	} else {
		data, err = os.ReadFile(path)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read burst ids: %w", err)
	}

	trimmed := bytes.TrimSpace(data)
	if bytes.HasPrefix(trimmed, []byte("[")) {
		var list []string
		if err := json.Unmarshal(trimmed, &list); err != nil {
			return nil, fmt.Errorf("failed to decode burst ids: %w", err)
		}
		return append(ids, list...), nil
	}

	sc := bufio.NewScanner(bytes.NewReader(trimmed))
	for sc.Scan() {
		if line := strings.TrimSpace(sc.Text()); line != "" && !strings.HasPrefix(line, "#") {
			ids = append(ids, line)
		}
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("failed to read burst ids: %w", err)
	}
	return ids, nil
}
