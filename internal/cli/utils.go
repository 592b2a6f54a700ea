// Package cli formats command output for the mirip CLI.
package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/hyperjump/mirip/internal/lifecycle"
	"github.com/hyperjump/mirip/internal/models"
	"github.com/hyperjump/mirip/pkg/utils"
)

// OutputFormat is the format for command output.
type OutputFormat string

const (
	// OutputText is human-readable text (default).
	OutputText OutputFormat = "text"
	// OutputCompact prints one line per result.
	OutputCompact OutputFormat = "compact"
	// OutputJSON is structured JSON for machine consumption.
	OutputJSON OutputFormat = "json"
)

// ParseOutputFormat validates a --output flag value.
func ParseOutputFormat(s string) (OutputFormat, error) {
	switch f := OutputFormat(strings.ToLower(strings.TrimSpace(s))); f {
	case OutputText, OutputCompact, OutputJSON:
		return f, nil
	case "":
		return OutputText, nil
	default:
		return "", fmt.Errorf("unknown output format %q; use text, compact, or json", s)
	}
}

// WriteSearchResults writes search results to w in the given format.
func WriteSearchResults(w io.Writer, response *models.SearchResponse, format OutputFormat) error {
	switch format {
	case OutputJSON:
		return writeJSON(w, response)
	case OutputCompact:
		for _, r := range response.Results {
			fmt.Fprintf(w, "%d\t%d\t%.4f\t%s\n", r.Rank, r.ID, r.Similarity, r.Product.Name())
		}
		return nil
	default:
		writeSearchResultsText(w, response)
		return nil
	}
}

func writeSearchResultsText(w io.Writer, response *models.SearchResponse) {
	fmt.Fprintf(w, "\nFound %d products for %q in %dms\n\n", response.Count, response.Query, response.QueryTime)
	for _, r := range response.Results {
		fmt.Fprintf(w, "─────────────────────────────────────────────────────────\n")
		fmt.Fprintf(w, "Rank: %d | ID: %d | Similarity: %.4f\n", r.Rank, r.ID, r.Similarity)
		if name := r.Product.Name(); name != "" {
			fmt.Fprintf(w, "Name: %s\n", name)
		}
		if desc := r.Product.Description(); desc != "" {
			fmt.Fprintf(w, "\n%s\n", utils.Truncate(desc, 200))
		}
		if urls := r.Product.ImageURLs(); len(urls) > 0 {
			fmt.Fprintf(w, "Image: %s\n", urls[0])
		}
		fmt.Fprintln(w)
	}
}

// WriteStatus writes the index status. diskUsage < 0 means unknown.
func WriteStatus(w io.Writer, st lifecycle.Status, diskUsage int64, config map[string]any, format OutputFormat) error {
	if format == OutputJSON {
		return writeJSON(w, map[string]any{
			"status":           st,
			"disk_usage_bytes": diskUsage,
			"config":           config,
		})
	}

	fmt.Fprintf(w, "state:              %s\n", st.State)
	if st.Error != "" {
		fmt.Fprintf(w, "error:              %s\n", st.Error)
	}
	fmt.Fprintf(w, "progress:           %d/%d   # records processed in the current or last build\n", st.Progress, st.Total)
	fmt.Fprintf(w, "index_size:         %d   # vectors in the published index\n", st.IndexSize)
	fmt.Fprintf(w, "dimensions:         %d\n", st.Dimensions)
	fmt.Fprintf(w, "index_type:         %s\n", st.IndexType)
	if diskUsage >= 0 {
		fmt.Fprintf(w, "disk_usage_bytes:   %d   # index + mapping on disk\n", diskUsage)
	}
	if b := st.LastBuild; b != nil {
		fmt.Fprintln(w)
		fmt.Fprintln(w, "# last build")
		writeBuildLine(w, b)
	}
	if len(config) > 0 {
		fmt.Fprintln(w)
		fmt.Fprintln(w, "# configuration")
		keys := make([]string, 0, len(config))
		for k := range config {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			fmt.Fprintf(w, "%-19s %v\n", k+":", config[k])
		}
	}
	return nil
}

// WriteBuilds writes a list of build reports.
func WriteBuilds(w io.Writer, builds []*lifecycle.BuildReport, format OutputFormat) error {
	if format == OutputJSON {
		return writeJSON(w, builds)
	}
	for _, b := range builds {
		writeBuildLine(w, b)
		if format == OutputText {
			for _, f := range b.Failures {
				fmt.Fprintf(w, "    failed %d: %s\n", f.ID, f.Error)
			}
		}
	}
	return nil
}

func writeBuildLine(w io.Writer, b *lifecycle.BuildReport) {
	line := fmt.Sprintf("%s  %-10s %-8s indexed=%d failed=%d skipped=%d total=%d persisted=%t took=%s",
		b.StartedAt.Format("2006-01-02 15:04:05"), b.Kind, b.Source,
		b.Indexed, b.Failed, b.Skipped, b.Total, b.Persisted, b.Duration)
	if b.Error != "" {
		line += " error=" + b.Error
	}
	fmt.Fprintln(w, line)
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
