package capture

import (
	"encoding/json"
	"os"
	"path/filepath"

	"github.com/feedguardian/evidencer/models"
)

// recordFilename is the evidence record within each target directory.
const recordFilename = "evidence.json"

// writeRecord serializes the record as human-readable UTF-8 JSON: two-space
// indent, struct field order, and no HTML escaping so non-ASCII product
// names and currency symbols survive verbatim.
func writeRecord(outdir string, rec *models.EvidenceRecord) error {
	f, err := os.Create(filepath.Join(outdir, recordFilename))
	if err != nil {
		return err
	}
	defer f.Close()

	enc := json.NewEncoder(f)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	return enc.Encode(rec)
}
