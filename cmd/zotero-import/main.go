package main

import (
	"context"
	"encoding/csv"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/kterao/paperbase/internal/logger"
)

// zoteroItem is one row of a Zotero CSV export with a resolvable attachment.
type zoteroItem struct {
	Title      string
	Authors    []string
	Journal    string
	Year       *int
	DOI        string
	Abstract   string
	Attachment string
}

type uploadResponse struct {
	DocID string `json:"doc_id"`
	JobID string `json:"job_id"`
}

type jobResponse struct {
	Status   string `json:"status"`
	Progress int    `json:"progress"`
	Error    string `json:"error"`
}

type importer struct {
	client *resty.Client
	log    *logger.Logger
	wait   bool
}

func main() {
	appLogger := logger.New(&logger.Config{
		Level:       "info",
		Format:      "json",
		ServiceName: "paperbase-zotero-import",
	})
	logger.SetDefault(appLogger)

	exportDir := flag.String("export", "", "Path to Zotero export directory")
	csvPath := flag.String("csv", "", "Path to Zotero CSV file (defaults to <export>/zotero.csv)")
	apiURL := flag.String("api", "http://localhost:8080", "Base URL of the paperbase API")
	wait := flag.Bool("wait", false, "Wait for each document's processing job to finish")
	limit := flag.Int("limit", 0, "Maximum number of items to import (0 = all)")
	flag.Parse()

	if *exportDir == "" {
		appLogger.Fatal("Missing required -export flag")
	}
	if *csvPath == "" {
		*csvPath = filepath.Join(*exportDir, "zotero.csv")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigChan
		appLogger.Info("Received shutdown signal, canceling...")
		cancel()
	}()

	items, err := readZoteroCSV(*csvPath, *exportDir)
	if err != nil {
		appLogger.WithError(err).Fatal("Failed to read Zotero export")
	}
	if *limit > 0 && len(items) > *limit {
		items = items[:*limit]
	}

	appLogger.WithField(logger.FieldCount, len(items)).Info("Starting Zotero import")

	imp := &importer{
		client: resty.New().SetBaseURL(*apiURL).SetTimeout(5 * time.Minute),
		log:    appLogger,
		wait:   *wait,
	}

	imported, failed := 0, 0
	for _, item := range items {
		if ctx.Err() != nil {
			break
		}
		if err := imp.importItem(ctx, item); err != nil {
			failed++
			appLogger.WithError(err).WithField("file", item.Attachment).Error("Import failed")
			continue
		}
		imported++
	}

	appLogger.WithFields(logger.Fields{
		"imported": imported,
		"failed":   failed,
	}).Info("Zotero import completed")
}

// importItem uploads the attachment, then attaches the Zotero record as
// caller-provided metadata so the pipeline's extraction step will not
// overwrite it.
func (i *importer) importItem(ctx context.Context, item zoteroItem) error {
	file, err := os.Open(item.Attachment)
	if err != nil {
		return fmt.Errorf("failed to open attachment: %w", err)
	}
	defer file.Close()

	var uploaded uploadResponse
	resp, err := i.client.R().
		SetContext(ctx).
		SetFileReader("file", filepath.Base(item.Attachment), file).
		SetResult(&uploaded).
		Post("/api/v1/documents")
	if err != nil {
		return fmt.Errorf("upload failed: %w", err)
	}
	if resp.StatusCode() != 202 {
		return fmt.Errorf("upload failed: status %d", resp.StatusCode())
	}

	i.log.WithFields(logger.Fields{
		logger.FieldDocID: uploaded.DocID,
		logger.FieldJobID: uploaded.JobID,
		"title":           item.Title,
	}).Info("Uploaded document")

	meta := map[string]interface{}{
		"title":   nilIfEmpty(item.Title),
		"authors": item.Authors,
		"journal": nilIfEmpty(item.Journal),
		"year":    item.Year,
		"doi":     nilIfEmpty(item.DOI),
	}
	if item.Abstract != "" {
		meta["abstract"] = item.Abstract
	}

	resp, err = i.client.R().
		SetContext(ctx).
		SetBody(meta).
		Put("/api/v1/documents/" + uploaded.DocID + "/metadata")
	if err != nil {
		return fmt.Errorf("metadata update failed: %w", err)
	}
	if resp.StatusCode() != 200 {
		return fmt.Errorf("metadata update failed: status %d", resp.StatusCode())
	}

	if i.wait {
		return i.waitForJob(ctx, uploaded.JobID)
	}
	return nil
}

// waitForJob polls the job status endpoint until the job leaves the queue.
func (i *importer) waitForJob(ctx context.Context, jobID string) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(3 * time.Second):
		}

		var job jobResponse
		resp, err := i.client.R().
			SetContext(ctx).
			SetResult(&job).
			Get("/api/v1/jobs/" + jobID)
		if err != nil {
			return fmt.Errorf("job poll failed: %w", err)
		}
		if resp.StatusCode() != 200 {
			return fmt.Errorf("job poll failed: status %d", resp.StatusCode())
		}

		switch job.Status {
		case "completed":
			return nil
		case "failed":
			return fmt.Errorf("processing failed: %s", job.Error)
		}
	}
}

// readZoteroCSV parses a Zotero CSV export and resolves attachment paths
// relative to the export directory. Items without a usable PDF attachment
// are skipped.
func readZoteroCSV(csvPath, exportDir string) ([]zoteroItem, error) {
	f, err := os.Open(csvPath)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	reader := csv.NewReader(f)
	reader.FieldsPerRecord = -1

	header, err := reader.Read()
	if err != nil {
		return nil, fmt.Errorf("failed to read CSV header: %w", err)
	}

	col := make(map[string]int, len(header))
	for idx, name := range header {
		col[strings.ToLower(strings.TrimSpace(name))] = idx
	}

	field := func(record []string, name string) string {
		idx, ok := col[name]
		if !ok || idx >= len(record) {
			return ""
		}
		return strings.TrimSpace(record[idx])
	}

	var items []zoteroItem
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read CSV record: %w", err)
		}

		attachment := resolveAttachment(field(record, "file attachments"), exportDir)
		if attachment == "" {
			continue
		}

		item := zoteroItem{
			Title:      field(record, "title"),
			Journal:    field(record, "publication title"),
			DOI:        field(record, "doi"),
			Abstract:   field(record, "abstract note"),
			Attachment: attachment,
		}

		// Zotero separates multiple authors with semicolons.
		for _, author := range strings.Split(field(record, "author"), ";") {
			author = strings.TrimSpace(author)
			if author != "" {
				item.Authors = append(item.Authors, author)
			}
		}

		if year := field(record, "publication year"); year != "" {
			if y, err := strconv.Atoi(year); err == nil {
				item.Year = &y
			}
		}

		items = append(items, item)
	}

	return items, nil
}

// resolveAttachment picks the first PDF from a semicolon-separated
// attachment list and makes it absolute against the export directory.
func resolveAttachment(raw, exportDir string) string {
	for _, candidate := range strings.Split(raw, ";") {
		candidate = strings.TrimSpace(candidate)
		if candidate == "" || !strings.EqualFold(filepath.Ext(candidate), ".pdf") {
			continue
		}
		if !filepath.IsAbs(candidate) {
			candidate = filepath.Join(exportDir, candidate)
		}
		if _, err := os.Stat(candidate); err == nil {
			return candidate
		}
	}
	return ""
}

func nilIfEmpty(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}
