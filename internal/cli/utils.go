// Package cli renders search results and records for the command line.
package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/li-xiu-qi/SmartlmageFinder/internal/models"
	"github.com/li-xiu-qi/SmartlmageFinder/pkg/utils"
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

// ParseOutputFormat parses a -format flag value.
func ParseOutputFormat(s string) (OutputFormat, error) {
	switch f := OutputFormat(strings.ToLower(strings.TrimSpace(s))); f {
	case "", OutputText:
		return OutputText, nil
	case OutputCompact, OutputJSON:
		return f, nil
	default:
		return "", fmt.Errorf("unknown output format %q (use text, compact or json)", s)
	}
}

// WriteJSON writes v as indented JSON.
func WriteJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// WriteSearchResults writes a search response to w in the given format.
func WriteSearchResults(w io.Writer, response *models.SearchResponse, format OutputFormat) error {
	switch format {
	case OutputJSON:
		return WriteJSON(w, response)
	case OutputCompact:
		for _, r := range response.Results {
			fmt.Fprintf(w, "%d\t%.4f\t%s\t%s\n", r.Rank, r.Score, r.UUID, TruncateWords(r.Title, 8))
		}
		return nil
	default:
		writeSearchResultsText(w, response)
		return nil
	}
}

func writeSearchResultsText(w io.Writer, response *models.SearchResponse) {
	fmt.Fprintf(w, "\nFound %d results in %dms (mode: %s)\n", response.Total, response.QueryTime, response.Mode)
	if response.Degraded {
		fmt.Fprintln(w, "Vector search unavailable, showing text matches only.")
	}
	for _, warn := range response.Warnings {
		fmt.Fprintf(w, "warning: %s\n", warn)
	}
	fmt.Fprintln(w)
	for _, result := range response.Results {
		writeOneResult(w, result)
	}
}

func writeOneResult(w io.Writer, result *models.SearchResult) {
	fmt.Fprintf(w, "─────────────────────────────────────────────────────────\n")
	fmt.Fprintf(w, "Rank: %d | Score: %.4f%s\n", result.Rank, result.Score, formatComponents(result.Components))
	fmt.Fprintf(w, "UUID: %s\n", result.UUID)
	if result.Title != "" {
		fmt.Fprintf(w, "Title: %s\n", result.Title)
	}
	if result.Description != "" {
		fmt.Fprintf(w, "Description: %s\n", utils.Truncate(result.Description, 200))
	}
	if len(result.Tags) > 0 {
		fmt.Fprintf(w, "Tags: %s\n", strings.Join(result.Tags, ", "))
	}
	fmt.Fprintf(w, "File: %s\n", result.Filepath)
	fmt.Fprintln(w)
}

// formatComponents renders per-source scores as " (image: 0.8123, text: 1.0000)".
func formatComponents(c map[string]float64) string {
	if len(c) == 0 {
		return ""
	}
	keys := make([]string, 0, len(c))
	for k := range c {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, len(keys))
	for i, k := range keys {
		parts[i] = fmt.Sprintf("%s: %.4f", k, c[k])
	}
	return " (" + strings.Join(parts, ", ") + ")"
}

// WriteImage writes one record.
func WriteImage(w io.Writer, img *models.Image, format OutputFormat) error {
	if format == OutputJSON {
		return WriteJSON(w, img)
	}
	if format == OutputCompact {
		fmt.Fprintf(w, "%s\t%s\t%s\n", img.UUID, img.Filepath, img.Title)
		return nil
	}
	fmt.Fprintf(w, "UUID:        %s\n", img.UUID)
	fmt.Fprintf(w, "Title:       %s\n", img.Title)
	if img.Description != "" {
		fmt.Fprintf(w, "Description: %s\n", img.Description)
	}
	fmt.Fprintf(w, "File:        %s (%s, %s)\n", img.Filepath, img.FileType, HumanBytes(img.FileSize))
	if img.Width > 0 {
		fmt.Fprintf(w, "Size:        %dx%d\n", img.Width, img.Height)
	}
	if len(img.Tags) > 0 {
		fmt.Fprintf(w, "Tags:        %s\n", strings.Join(img.Tags, ", "))
	}
	return nil
}

// HumanBytes formats n as B, KB, MB or GB.
func HumanBytes(n int64) string {
	const unit = 1024
	if n < unit {
		return fmt.Sprintf("%d B", n)
	}
	div, exp := int64(unit), 0
	for m := n / unit; m >= unit && exp < 2; m /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %cB", float64(n)/float64(div), "KMG"[exp])
}

// TruncateWords returns up to maxWords from the space-separated string.
func TruncateWords(s string, maxWords int) string {
	words := strings.Fields(s)
	if len(words) <= maxWords {
		return s
	}
	return strings.Join(words[:maxWords], " ") + "..."
}
