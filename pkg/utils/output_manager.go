package utils

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"
)

// ErrInvalidFileName is returned for names that would leave the job directory.
var ErrInvalidFileName = errors.New("invalid file name")

// OutputManager lays out export files below one directory per job.
type OutputManager struct {
	BaseOutputDir string
}

// OutputFile describes one file written for a job.
type OutputFile struct {
	Name        string    `json:"name"`
	Type        string    `json:"type"`
	Size        int64     `json:"size"`
	DownloadURL string    `json:"download_url"`
	ModifiedAt  time.Time `json:"modified_at"`
}

func NewOutputManager(baseOutputDir string) *OutputManager {
	return &OutputManager{BaseOutputDir: baseOutputDir}
}

// JobDir returns the directory of jobID without creating it.
func (om *OutputManager) JobDir(jobID string) string {
	return filepath.Join(om.BaseOutputDir, filepath.Base(jobID))
}

// FilePath creates the job directory and returns where fileName goes in it.
func (om *OutputManager) FilePath(jobID, fileName string) (string, error) {
	name, err := cleanName(fileName)
	if err != nil {
		return "", err
	}
	dir := om.JobDir(jobID)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create job output directory: %w", err)
	}
	return filepath.Join(dir, name), nil
}

// Lookup returns the path of an existing job file.
func (om *OutputManager) Lookup(jobID, fileName string) (string, error) {
	name, err := cleanName(fileName)
	if err != nil {
		return "", err
	}
	path := filepath.Join(om.JobDir(jobID), name)
	if _, err := os.Stat(path); err != nil {
		return "", err
	}
	return path, nil
}

// DownloadURL is the API path serving fileName of jobID.
func (om *OutputManager) DownloadURL(jobID, fileName string) string {
	return fmt.Sprintf("/api/v1/jobs/%s/files/%s", jobID, filepath.Base(fileName))
}

// FileType maps an extension to the export type name.
func FileType(fileName string) string {
	switch strings.ToLower(filepath.Ext(fileName)) {
	case ".csv":
		return "csv"
	case ".json":
		return "json"
	case ".xlsx":
		return "xlsx"
	default:
		return "unknown"
	}
}

// ContentType returns the MIME type served for fileName.
func ContentType(fileName string) string {
	switch FileType(fileName) {
	case "csv":
		return "text/csv; charset=utf-8"
	case "json":
		return "application/json"
	case "xlsx":
		return "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
	default:
		return "application/octet-stream"
	}
}

// ListFiles returns the files of jobID sorted by name; a missing directory
// yields none.
func (om *OutputManager) ListFiles(jobID string) ([]OutputFile, error) {
	entries, err := os.ReadDir(om.JobDir(jobID))
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("list job files: %w", err)
	}
	var files []OutputFile
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		files = append(files, OutputFile{
			Name:        e.Name(),
			Type:        FileType(e.Name()),
			Size:        info.Size(),
			DownloadURL: om.DownloadURL(jobID, e.Name()),
			ModifiedAt:  info.ModTime().UTC(),
		})
	}
	sort.Slice(files, func(i, j int) bool { return files[i].Name < files[j].Name })
	return files, nil
}

// RemoveJobDir deletes every file of jobID.
func (om *OutputManager) RemoveJobDir(jobID string) error {
	return os.RemoveAll(om.JobDir(jobID))
}

// EnsureOutputDirExists ensures the base output directory exists
func (om *OutputManager) EnsureOutputDirExists() error {
	return os.MkdirAll(om.BaseOutputDir, 0o755)
}

func cleanName(fileName string) (string, error) {
	name := filepath.Base(fileName)
	if name == "." || name == ".." || name == string(filepath.Separator) || strings.TrimSpace(name) == "" {
		return "", fmt.Errorf("%w: %q", ErrInvalidFileName, fileName)
	}
	return name, nil
}
