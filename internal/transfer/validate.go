package transfer

import (
	"fmt"
	"path/filepath"
	"strings"

	"smartlauncher/internal/config"
	"smartlauncher/internal/serializer"
)

const pdfMIME = "application/pdf"

func isPDF(src serializer.Source) bool {
	mimeType := strings.ToLower(strings.TrimSpace(src.Type()))
	if i := strings.IndexByte(mimeType, ';'); i >= 0 {
		mimeType = strings.TrimSpace(mimeType[:i])
	}
	if mimeType == pdfMIME {
		return true
	}
	return strings.EqualFold(filepath.Ext(src.Name()), ".pdf")
}

// validate applies the configured policy. Under the strict policy one bad file
// rejects the whole batch; best-effort drops bad files and fails only when
// nothing is left.
func (m *Manager) validate(files []serializer.Source) ([]serializer.Source, error) {
	if len(files) == 0 {
		return nil, &ValidationError{Reason: "No files selected for transfer"}
	}

	var (
		valid   []serializer.Source
		empty   []string
		badType []string
	)
	for _, f := range files {
		switch {
		case f.Size() <= 0:
			empty = append(empty, f.Name())
		case !isPDF(f):
			badType = append(badType, f.Name())
		default:
			valid = append(valid, f)
		}
	}

	if m.cfg.Policy != config.PolicyBestEffort {
		if len(empty) > 0 {
			return nil, &ValidationError{Reason: "Invalid files detected (empty)", Files: empty}
		}
		if len(badType) > 0 {
			return nil, &ValidationError{Reason: "Unsupported file type, only PDF is accepted", Files: badType}
		}
	}
	if len(valid) == 0 {
		return nil, &ValidationError{Reason: "No valid files to transfer", Files: append(empty, badType...)}
	}

	var total int64
	for _, f := range valid {
		total += f.Size()
	}
	if total > m.cfg.MaxBatchBytes {
		return nil, &ValidationError{
			Reason: fmt.Sprintf("Total file size (%.1fMB) exceeds limit (%.1fMB)", mb(total), mb(m.cfg.MaxBatchBytes)),
		}
	}
	return valid, nil
}

func mb(n int64) float64 { return float64(n) / (1 << 20) }
