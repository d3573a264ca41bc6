// Package reporting renders a finished scan into its output format.
package reporting

import (
	"fmt"
	"io"
	"os"

	jsoniter "github.com/json-iterator/go"

	"github.com/xkilldash9x/scripthound/api/schemas"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// Reporter writes a completed scan report to its destination.
type Reporter interface {
	Write(report *schemas.ScanReport) error
	// Close finalizes the report and releases any underlying file handle.
	Close() error
}

// nopWriteCloser wraps an io.Writer with a no-op Close method.
type nopWriteCloser struct {
	io.Writer
}

func (nwc *nopWriteCloser) Close() error { return nil }

// New creates a reporter for the given format, writing to outputPath or
// stdout when the path is empty.
func New(format, outputPath string) (Reporter, error) {
	var writer io.WriteCloser
	if outputPath == "" || outputPath == "stdout" {
		writer = &nopWriteCloser{os.Stdout}
	} else {
		f, err := os.Create(outputPath)
		if err != nil {
			return nil, fmt.Errorf("failed to create output file %s: %w", outputPath, err)
		}
		writer = f
	}

	switch format {
	case "json":
		return &jsonReporter{w: writer}, nil
	case "text":
		return &textReporter{w: writer}, nil
	default:
		writer.Close()
		return nil, fmt.Errorf("unsupported report format %q", format)
	}
}

type jsonReporter struct {
	w io.WriteCloser
}

func (r *jsonReporter) Write(report *schemas.ScanReport) error {
	enc := json.NewEncoder(r.w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(report); err != nil {
		return fmt.Errorf("encoding scan report: %w", err)
	}
	return nil
}

func (r *jsonReporter) Close() error { return r.w.Close() }

type textReporter struct {
	w io.WriteCloser
}

func (r *textReporter) Write(report *schemas.ScanReport) error {
	fmt.Fprintf(r.w, "Scan %s\n", report.ScanID)
	fmt.Fprintf(r.w, "Targets: %v\n", report.Targets)
	fmt.Fprintf(r.w, "Scripts analyzed: %d\n", len(report.Analyses))
	fmt.Fprintf(r.w, "Findings: %d\n\n", report.TotalFindings())

	for _, analysis := range report.Analyses {
		fmt.Fprintf(r.w, "== %s\n", analysis.SourceURL)
		if analysis.Error != "" {
			fmt.Fprintf(r.w, "   error: %s\n", analysis.Error)
			continue
		}
		for _, site := range analysis.CallSites {
			fmt.Fprintf(r.w, "   [call] %s %s", site.Method, site.URL)
			if site.Enclosing != "" {
				fmt.Fprintf(r.w, " (in %s)", site.Enclosing)
			}
			fmt.Fprintln(r.w)
		}
		for _, finding := range analysis.Findings {
			fmt.Fprintf(r.w, "   [%s] %s: %s\n", finding.Severity, finding.VulnerabilityName, finding.Description)
		}
	}
	return nil
}

func (r *textReporter) Close() error { return r.w.Close() }
