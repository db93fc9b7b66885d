// package formatter renders the feed and the task registry for export (CSV, Markdown, plain text) and the terminal
package formatter

import (
	"bytes"
	"context"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"

	"github.com/desertthunder/vgen/internal/models"
)

// FeedExport is a snapshot of the feed for writing to disk.
type FeedExport struct {
	Title      string                  `json:"title"`
	ExportedAt time.Time               `json:"exported_at"`
	Videos     []models.PublishedVideo `json:"videos"`
}

// NewFeedExport wraps videos with a title and the current time.
func NewFeedExport(title string, videos []models.PublishedVideo) *FeedExport {
	if title == "" {
		title = "vgen feed"
	}
	return &FeedExport{Title: title, ExportedAt: time.Now().UTC(), Videos: videos}
}

// FormatDuration renders seconds as m:ss, or "?" when unknown.
func FormatDuration(seconds *float64) string {
	if seconds == nil || *seconds < 0 {
		return "?"
	}
	total := int(math.Round(*seconds))
	return fmt.Sprintf("%d:%02d", total/60, total%60)
}

var knownRatios = []struct {
	label string
	value float64
}{
	{"16:9", 16.0 / 9.0},
	{"9:16", 9.0 / 16.0},
	{"1:1", 1},
	{"4:3", 4.0 / 3.0},
	{"3:4", 3.0 / 4.0},
	{"21:9", 21.0 / 9.0},
}

// FormatAspectRatio names a ratio when it is within 1% of a common one, otherwise prints it with two decimals.
func FormatAspectRatio(r float64) string {
	if r <= 0 {
		return "?"
	}
	for _, k := range knownRatios {
		if math.Abs(r-k.value)/k.value < 0.01 {
			return k.label
		}
	}
	return strconv.FormatFloat(r, 'f', 2, 64)
}

// ExportToCSV converts a FeedExport to CSV format with columns: ID, Title, Uploader, Source, Duration, Aspect, Likes, Tags, Video URL
func ExportToCSV(export *FeedExport) ([]byte, error) {
	var buf bytes.Buffer
	writer := csv.NewWriter(&buf)

	headers := []string{"ID", "Title", "Uploader", "Source", "Duration", "Aspect", "Likes", "Tags", "Video URL"}
	if err := writer.Write(headers); err != nil {
		return nil, fmt.Errorf("failed to write CSV headers: %w", err)
	}

	for _, v := range export.Videos {
		record := []string{
			v.ID,
			v.Title,
			v.UploaderName(),
			string(v.Source),
			FormatDuration(v.Duration),
			FormatAspectRatio(v.AspectRatio),
			strconv.Itoa(v.LikeCount),
			strings.Join(v.Tags, " "),
			v.VideoURL,
		}
		if err := writer.Write(record); err != nil {
			return nil, fmt.Errorf("failed to write CSV record: %w", err)
		}
	}

	writer.Flush()
	if err := writer.Error(); err != nil {
		return nil, fmt.Errorf("CSV writer error: %w", err)
	}

	return buf.Bytes(), nil
}

// ExportToMarkdown converts a FeedExport to Markdown format with an optional cover image
func ExportToMarkdown(export *FeedExport, imageFilename string) ([]byte, error) {
	var buf bytes.Buffer

	buf.WriteString(fmt.Sprintf("# %s\n\n", export.Title))

	if imageFilename != "" {
		buf.WriteString(fmt.Sprintf("![Cover](%s)\n\n", imageFilename))
	}

	buf.WriteString(fmt.Sprintf("**Videos**: %d\n", len(export.Videos)))
	buf.WriteString(fmt.Sprintf("**Exported**: %s\n\n", export.ExportedAt.Format(time.RFC3339)))

	buf.WriteString("## Videos\n\n")
	for i, v := range export.Videos {
		tags := ""
		if len(v.Tags) > 0 {
			tags = " #" + strings.Join(v.Tags, " #")
		}
		buf.WriteString(fmt.Sprintf("%d. [%s](%s) by %s [%s, %s]%s\n",
			i+1, v.Title, v.VideoURL, v.UploaderName(), FormatDuration(v.Duration), FormatAspectRatio(v.AspectRatio), tags))
		if v.Description != "" {
			buf.WriteString(fmt.Sprintf("   %s\n", v.Description))
		}
	}

	return buf.Bytes(), nil
}

// ExportToText converts a FeedExport to plain text format
func ExportToText(export *FeedExport) ([]byte, error) {
	var buf bytes.Buffer

	buf.WriteString(fmt.Sprintf("Feed: %s\n", export.Title))
	buf.WriteString(fmt.Sprintf("Videos: %d\n\n", len(export.Videos)))

	for i, v := range export.Videos {
		buf.WriteString(fmt.Sprintf("%d. %s - %s (%s)\n", i+1, v.UploaderName(), v.Title, FormatDuration(v.Duration)))
	}

	return buf.Bytes(), nil
}

// DownloadImage downloads an image from the given URL and returns the raw bytes
func DownloadImage(ctx context.Context, url string) ([]byte, error) {
	if url == "" {
		return nil, fmt.Errorf("empty URL provided")
	}

	client := &http.Client{
		Timeout: 30 * time.Second,
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build image request: %w", err)
	}

	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to download image: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("failed to download image: status %d", resp.StatusCode)
	}

	imageData, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read image data: %w", err)
	}

	return imageData, nil
}

// ToMetadataJSON generates a JSON summary of the export (title, time, count) without the videos
func ToMetadataJSON(export *FeedExport) ([]byte, error) {
	return json.MarshalIndent(struct {
		Title      string    `json:"title"`
		ExportedAt time.Time `json:"exported_at"`
		Count      int       `json:"count"`
	}{export.Title, export.ExportedAt, len(export.Videos)}, "", "  ")
}

// ExportToJSON renders the whole export, videos included
func ExportToJSON(export *FeedExport) ([]byte, error) {
	return json.MarshalIndent(export, "", "  ")
}

// CSVExportResult contains the paths of files created by WriteCSVExport
type CSVExportResult struct {
	VideosFile   string
	MetadataFile string
}

// WriteCSVExport exports the feed to CSV format with accompanying metadata JSON file.
//
// Defaults to "feed" as the base filename & creates {base}_videos.csv and {base}_metadata.json
func WriteCSVExport(export *FeedExport, baseFilepath string) (*CSVExportResult, error) {
	if baseFilepath == "" {
		baseFilepath = "feed"
	}

	csvData, err := ExportToCSV(export)
	if err != nil {
		return nil, fmt.Errorf("failed to generate CSV: %w", err)
	}

	videosFile := baseFilepath + "_videos.csv"
	if err := os.WriteFile(videosFile, csvData, 0644); err != nil {
		return nil, fmt.Errorf("failed to write CSV file: %w", err)
	}

	metadataJSON, err := ToMetadataJSON(export)
	if err != nil {
		return nil, fmt.Errorf("failed to generate metadata JSON: %w", err)
	}

	metadataFile := baseFilepath + "_metadata.json"
	if err := os.WriteFile(metadataFile, metadataJSON, 0644); err != nil {
		return nil, fmt.Errorf("failed to write metadata file: %w", err)
	}

	return &CSVExportResult{
		VideosFile:   videosFile,
		MetadataFile: metadataFile,
	}, nil
}

// MarkdownExportResult contains information about files created by WriteMarkdownExport
type MarkdownExportResult struct {
	Directory  string
	Files      []string
	CoverImage string
}

// WriteMarkdownExport exports the feed to Markdown format in a dedicated directory.
//
// Directory name defaults to "feed".
// The imageURL parameter is optional - if provided, attempts to download it as the cover image.
// Creates a directory structure: {dir}/README.md and optionally {dir}/cover.jpg
func WriteMarkdownExport(ctx context.Context, export *FeedExport, outputDir string, imageURL string) (*MarkdownExportResult, error) {
	if outputDir == "" {
		outputDir = "feed"
	}

	if err := os.MkdirAll(outputDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create directory: %w", err)
	}

	result := &MarkdownExportResult{
		Directory: outputDir,
		Files:     []string{},
	}

	var coverImageFilename string
	if imageURL != "" {
		imageData, err := DownloadImage(ctx, imageURL)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Warning: failed to download cover image: %v\n", err)
		} else {
			coverImageFilename = "cover.jpg"
			coverImagePath := filepath.Join(outputDir, coverImageFilename)
			if err := os.WriteFile(coverImagePath, imageData, 0644); err != nil {
				fmt.Fprintf(os.Stderr, "Warning: failed to save cover image: %v\n", err)
				coverImageFilename = ""
			} else {
				result.CoverImage = coverImagePath
				result.Files = append(result.Files, coverImagePath)
			}
		}
	}

	mdData, err := ExportToMarkdown(export, coverImageFilename)
	if err != nil {
		return nil, fmt.Errorf("failed to generate Markdown: %w", err)
	}

	mdFile := filepath.Join(outputDir, "README.md")
	if err := os.WriteFile(mdFile, mdData, 0644); err != nil {
		return nil, fmt.Errorf("failed to write Markdown file: %w", err)
	}

	result.Files = append(result.Files, mdFile)

	return result, nil
}

// WriteTextExport exports the feed to plain text format.
//
// Defaults to feed.txt as the filename.
func WriteTextExport(export *FeedExport, path string) (string, error) {
	if path == "" {
		path = "feed.txt"
	}

	textData, err := ExportToText(export)
	if err != nil {
		return "", fmt.Errorf("failed to generate text: %w", err)
	}

	if err := os.WriteFile(path, textData, 0644); err != nil {
		return "", fmt.Errorf("failed to write text file: %w", err)
	}

	return path, nil
}

// WriteJSONExport exports the feed as JSON. Defaults to feed.json as the filename.
func WriteJSONExport(export *FeedExport, path string) (string, error) {
	if path == "" {
		path = "feed.json"
	}

	data, err := ExportToJSON(export)
	if err != nil {
		return "", fmt.Errorf("failed to generate JSON: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return "", fmt.Errorf("failed to write JSON file: %w", err)
	}

	return path, nil
}

var headerStyle = lipgloss.NewStyle().Bold(true).Padding(0, 1)
var cellStyle = lipgloss.NewStyle().Padding(0, 1)

func renderTable(headers []string, rows [][]string) string {
	return table.New().
		Border(lipgloss.NormalBorder()).
		Headers(headers...).
		Rows(rows...).
		StyleFunc(func(row, col int) lipgloss.Style {
			if row == table.HeaderRow {
				return headerStyle
			}
			return cellStyle
		}).
		String()
}

// TaskTable renders tracked tasks as a bordered table. The previewed task is marked with '*'.
func TaskTable(tasks []models.TrackedTask, previewID string) string {
	rows := make([][]string, 0, len(tasks))
	for _, t := range tasks {
		id := t.TaskID
		if id == previewID {
			id = "*" + id
		}
		status := string(t.Status)
		if t.Loading {
			status += "…"
		}
		detail := t.VideoURL
		if t.Status == models.StatusFailed {
			detail = t.Error
		}
		rows = append(rows, []string{id, status, t.CreatedAt.Local().Format("Jan 02 15:04"), detail})
	}
	return renderTable([]string{"Task", "Status", "Created", "Result"}, rows)
}

// FeedTable renders feed entries as a bordered table.
func FeedTable(videos []models.PublishedVideo) string {
	rows := make([][]string, 0, len(videos))
	for _, v := range videos {
		liked := ""
		if v.Liked {
			liked = "♥"
		}
		uploader := v.UploaderName()
		if !v.Hydrated {
			uploader += " (pending)"
		}
		rows = append(rows, []string{
			v.ID,
			v.Title,
			uploader,
			FormatDuration(v.Duration),
			FormatAspectRatio(v.AspectRatio),
			strconv.Itoa(v.LikeCount) + liked,
		})
	}
	return renderTable([]string{"ID", "Title", "Uploader", "Length", "Aspect", "Likes"}, rows)
}
