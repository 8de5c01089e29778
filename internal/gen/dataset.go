package gen

import (
	"bufio"
	"fmt"
	"math/rand/v2"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"sync/atomic"

	"oidbs/internal/model"
)

// DatasetConfig controls dataset materialization for the gen operation.
type DatasetConfig struct {
	OutDir  string
	Workers int
	Rows    int64
	Format  string // "csv" or "json" (newline-delimited)
	// OutOfOrder shuffles records inside a fixed window before writing,
	// simulating late-arriving telemetry. The shuffle is seeded per shard,
	// so output stays reproducible.
	OutOfOrder    bool
	ShuffleWindow int
}

func (c DatasetConfig) withDefaults() DatasetConfig {
	if c.Workers <= 0 {
		c.Workers = 1
	}
	if c.Format == "" {
		c.Format = "csv"
	}
	if c.ShuffleWindow <= 0 {
		c.ShuffleWindow = 4096
	}
	return c
}

func (c DatasetConfig) validate() error {
	if c.OutDir == "" {
		return fmt.Errorf("dataset output dir is required")
	}
	if c.Rows <= 0 {
		return fmt.Errorf("dataset rows must be positive, got %d", c.Rows)
	}
	if c.Format != "csv" && c.Format != "json" {
		return fmt.Errorf("unsupported dataset format %q", c.Format)
	}
	return nil
}

// WriteDataset materializes cfg.Rows records of m as one shard file per
// worker under <out>/<model>/. Returns the total number of lines written.
func WriteDataset(m *model.Model, cfg DatasetConfig) (int64, error) {
	cfg = cfg.withDefaults()
	if err := cfg.validate(); err != nil {
		return 0, err
	}
	if !m.CanGenerate() {
		return 0, fmt.Errorf("model %s has no generation spec", m.Name)
	}
	dir := filepath.Join(cfg.OutDir, m.Name)
	if err := os.RemoveAll(dir); err != nil {
		return 0, err
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return 0, err
	}

	ranges := Partition(cfg.Rows, cfg.Workers)
	var total int64
	var wg sync.WaitGroup
	errs := make(chan error, cfg.Workers)
	for i, rng := range ranges {
		wg.Add(1)
		go func(shard int, r Range) {
			defer wg.Done()
			n, err := writeShard(m, cfg, dir, shard, r)
			if err != nil {
				errs <- fmt.Errorf("shard %06d: %w", shard, err)
				return
			}
			atomic.AddInt64(&total, n)
		}(i, rng)
	}
	wg.Wait()
	close(errs)
	if err := <-errs; err != nil {
		return 0, err
	}
	return atomic.LoadInt64(&total), nil
}

func shardName(shard int, format string) string {
	ext := ".csv"
	if format == "json" {
		ext = ".ndjson"
	}
	return fmt.Sprintf("%06d%s", shard, ext)
}

func writeShard(m *model.Model, cfg DatasetConfig, dir string, shard int, r Range) (int64, error) {
	f, err := os.OpenFile(filepath.Join(dir, shardName(shard, cfg.Format)),
		os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0644)
	if err != nil {
		return 0, err
	}
	defer f.Close()
	w := bufio.NewWriterSize(f, 1<<20)

	stream, err := Generate(m, r)
	if err != nil {
		return 0, err
	}

	shuffler := rand.New(rand.NewPCG(m.Spec.Seed, uint64(shard)))
	window := make([]string, 0, cfg.ShuffleWindow)
	flush := func() error {
		if cfg.OutOfOrder {
			shuffler.Shuffle(len(window), func(a, b int) {
				window[a], window[b] = window[b], window[a]
			})
		}
		for _, line := range window {
			if _, err := w.WriteString(line); err != nil {
				return err
			}
			if err := w.WriteByte('\n'); err != nil {
				return err
			}
		}
		window = window[:0]
		return nil
	}

	var lines int64
	var jsonBuf []byte
	for {
		rec, ok := stream.Next()
		if !ok {
			break
		}
		var line string
		if cfg.Format == "json" {
			jsonBuf = rec.AppendJSON(jsonBuf[:0], m.Columns)
			line = string(jsonBuf)
		} else {
			line = rec.CSV()
		}
		window = append(window, line)
		lines++
		if len(window) >= cfg.ShuffleWindow {
			if err := flush(); err != nil {
				return 0, err
			}
		}
	}
	if err := flush(); err != nil {
		return 0, err
	}
	if err := w.Flush(); err != nil {
		return 0, err
	}
	return lines, nil
}

// Shards lists a model's dataset shard files in shard order.
func Shards(dataDir, modelName string) ([]string, error) {
	dir := filepath.Join(dataDir, modelName)
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("read dataset dir: %w", err)
	}
	var files []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		files = append(files, filepath.Join(dir, e.Name()))
	}
	if len(files) == 0 {
		return nil, fmt.Errorf("no dataset shards under %s", dir)
	}
	sort.Strings(files)
	return files, nil
}
