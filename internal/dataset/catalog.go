package dataset

import (
	"bufio"
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"astro_insight/internal/core"
	"astro_insight/src/logger"

	"github.com/bytedance/sonic"
)

var supportedExts = map[string]bool{".csv": true, ".tsv": true, ".jsonl": true}

// Catalog is the read-only set of datasets found in a directory
type Catalog struct {
	dir      string
	mu       sync.RWMutex
	datasets []core.Dataset
}

// NewCatalog creates an empty catalog over dir; call Load to scan it
func NewCatalog(dir string) *Catalog {
	return &Catalog{dir: dir}
}

// Static builds a catalog from fixed descriptors
func Static(datasets ...core.Dataset) *Catalog {
	return &Catalog{datasets: append([]core.Dataset{}, datasets...)}
}

// Dir returns the scanned directory
func (c *Catalog) Dir() string {
	return c.dir
}

// Load rescans the directory. A missing directory yields an empty catalog.
func (c *Catalog) Load() error {
	if c.dir == "" {
		return nil
	}

	entries, err := os.ReadDir(c.dir)
	if os.IsNotExist(err) {
		logger.Warn().Str("dir", c.dir).Msg("Dataset directory does not exist")
		c.set(nil)
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to read dataset dir: %w", err)
	}

	var found []core.Dataset
	for _, entry := range entries {
		if entry.IsDir() || !supportedExts[strings.ToLower(filepath.Ext(entry.Name()))] {
			continue
		}
		path, err := filepath.Abs(filepath.Join(c.dir, entry.Name()))
		if err != nil {
			return err
		}
		columns, err := readColumns(path)
		if err != nil {
			logger.Warn().Err(err).Str("path", path).Msg("Skipping unreadable dataset")
			continue
		}
		found = append(found, core.Dataset{
			Name:    strings.TrimSuffix(entry.Name(), filepath.Ext(entry.Name())),
			Path:    path,
			Columns: columns,
		})
	}

	sort.Slice(found, func(i, j int) bool { return found[i].Name < found[j].Name })
	c.set(found)
	logger.Info().Str("dir", c.dir).Int("datasets", len(found)).Msg("Dataset catalog loaded")
	return nil
}

func (c *Catalog) set(datasets []core.Dataset) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.datasets = datasets
}

// Datasets returns a copy of every known dataset
func (c *Catalog) Datasets() []core.Dataset {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]core.Dataset, len(c.datasets))
	copy(out, c.datasets)
	return out
}

// Names returns the dataset names
func (c *Catalog) Names() []string {
	var names []string
	for _, d := range c.Datasets() {
		names = append(names, d.Name)
	}
	return names
}

// Filter returns the datasets whose names are listed, or all datasets when none match
func (c *Catalog) Filter(names []string) []core.Dataset {
	all := c.Datasets()
	if len(names) == 0 {
		return all
	}
	want := make(map[string]bool, len(names))
	for _, n := range names {
		want[strings.ToLower(n)] = true
	}
	var picked []core.Dataset
	for _, d := range all {
		if want[strings.ToLower(d.Name)] {
			picked = append(picked, d)
		}
	}
	if len(picked) == 0 {
		return all
	}
	return picked
}

// Summary renders a numbered list for selection prompts
func Summary(datasets []core.Dataset) string {
	var b strings.Builder
	for i, d := range datasets {
		cols := d.Columns
		more := ""
		if len(cols) > 10 {
			cols, more = cols[:10], fmt.Sprintf(" (+%d more)", len(d.Columns)-10)
		}
		fmt.Fprintf(&b, "%d. %s: columns %s%s\n", i, d.Name, strings.Join(cols, ", "), more)
	}
	return b.String()
}

func readColumns(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	switch strings.ToLower(filepath.Ext(path)) {
	case ".jsonl":
		scanner := bufio.NewScanner(f)
		scanner.Buffer(make([]byte, 64*1024), 4*1024*1024)
		if !scanner.Scan() {
			return nil, fmt.Errorf("empty jsonl file")
		}
		var record map[string]any
		if err := sonic.Unmarshal(scanner.Bytes(), &record); err != nil {
			return nil, fmt.Errorf("invalid first jsonl record: %w", err)
		}
		columns := make([]string, 0, len(record))
		for k := range record {
			columns = append(columns, k)
		}
		sort.Strings(columns)
		return columns, nil
	default:
		r := csv.NewReader(f)
		if strings.ToLower(filepath.Ext(path)) == ".tsv" {
			r.Comma = '\t'
		}
		header, err := r.Read()
		if err != nil {
			return nil, fmt.Errorf("failed to read header: %w", err)
		}
		for i := range header {
			header[i] = strings.TrimSpace(strings.TrimPrefix(header[i], "\ufeff"))
		}
		return header, nil
	}
}
