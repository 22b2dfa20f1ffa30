// Package cli formats API results for the kotae command line.
package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/hyperjump/kotae/internal/models"
	"github.com/hyperjump/kotae/pkg/utils"
)

// OutputFormat is the format for command output.
type OutputFormat string

const (
	// OutputText is human-readable text (default).
	OutputText OutputFormat = "text"
	// OutputJSON is structured JSON for machine consumption.
	OutputJSON OutputFormat = "json"
)

// ParseOutputFormat accepts "text" or "json"; anything else is an error.
func ParseOutputFormat(s string) (OutputFormat, error) {
	switch OutputFormat(s) {
	case OutputText, "":
		return OutputText, nil
	case OutputJSON:
		return OutputJSON, nil
	}
	return "", fmt.Errorf("invalid output format %q (use text or json)", s)
}

func writeJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// WriteAnswer writes the answer to a question.
func WriteAnswer(w io.Writer, resp *models.QueryResponse, format OutputFormat) error {
	if format == OutputJSON {
		return writeJSON(w, resp)
	}
	_, err := fmt.Fprintln(w, resp.Response)
	return err
}

// WriteUpload writes the outcome of an ingestion.
func WriteUpload(w io.Writer, resp *models.UploadResponse, format OutputFormat) error {
	if format == OutputJSON {
		return writeJSON(w, resp)
	}
	_, err := fmt.Fprintf(w, "%s (document %s, %d chunks)\n", resp.Message, resp.DocumentID, resp.Chunks)
	return err
}

// WriteHistory writes the conversation, oldest turn first.
func WriteHistory(w io.Writer, resp *models.HistoryResponse, format OutputFormat) error {
	if format == OutputJSON {
		return writeJSON(w, resp)
	}
	if len(resp.History) == 0 {
		_, err := fmt.Fprintln(w, "No conversation yet.")
		return err
	}
	for i, turn := range resp.History {
		fmt.Fprintf(w, "[%d] Q: %s\n    A: %s\n", i+1, turn.Question, turn.Answer)
	}
	return nil
}

// WriteDocuments writes stored uploads as a table.
func WriteDocuments(w io.Writer, docs []*models.StoredDocument, format OutputFormat) error {
	if format == OutputJSON {
		if docs == nil {
			docs = []*models.StoredDocument{}
		}
		return writeJSON(w, map[string]interface{}{"documents": docs})
	}
	if len(docs) == 0 {
		_, err := fmt.Fprintln(w, "No documents stored.")
		return err
	}
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tFILENAME\tSIZE\tUPLOADED")
	for _, d := range docs {
		fmt.Fprintf(tw, "%s\t%s\t%d\t%s\n",
			d.ID, utils.Truncate(d.Filename, 40), d.Size, d.CreatedAt.Format("2006-01-02 15:04:05"))
	}
	return tw.Flush()
}

// WriteStatus writes a status summary.
func WriteStatus(w io.Writer, st *models.StatusResponse, format OutputFormat) error {
	if format == OutputJSON {
		return writeJSON(w, st)
	}
	fmt.Fprintf(w, "Documents:      %d\n", st.Documents)
	fmt.Fprintf(w, "Index records:  %d\n", st.Records)
	fmt.Fprintf(w, "Turns:          %d\n", st.Turns)
	fmt.Fprintf(w, "Index:          %s (%s, %d dimensions)\n", st.IndexName, st.VectorBackend, st.Dimensions)
	_, err := fmt.Fprintf(w, "Disk usage:     %s\n", FormatBytes(st.DiskUsage))
	return err
}

// FormatBytes renders n with a binary unit suffix.
func FormatBytes(n int64) string {
	const unit = 1024
	if n < unit {
		return fmt.Sprintf("%d B", n)
	}
	div, exp := int64(unit), 0
	for m := n / unit; m >= unit; m /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %ciB", float64(n)/float64(div), "KMGTPE"[exp])
}
