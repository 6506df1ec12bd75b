// package formatter provides functions to export album rating data to various formats (CSV, Markdown, plain text)
package formatter

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"io"
	"net/http"
	"os"
	"strconv"
	"time"

	"github.com/mkbell/discme/internal/models"
	"github.com/mkbell/discme/internal/shared"
)

// AlbumExport bundles an album, its tracks, and the user's ratings for export.
type AlbumExport struct {
	Album   models.Album
	Tracks  []models.Track
	Ratings map[string]int
	Session *models.RatingSession
}

func ratingString(export *AlbumExport, trackID string) string {
	if value, ok := export.Ratings[trackID]; ok {
		return strconv.Itoa(value)
	}
	return ""
}

// ExportToCSV converts an AlbumExport to CSV format with columns: Track, ID, Title, Artist, Duration, Rating
func ExportToCSV(export *AlbumExport) ([]byte, error) {
	var buf bytes.Buffer
	writer := csv.NewWriter(&buf)

	headers := []string{"Track", "ID", "Title", "Artist", "Duration", "Rating"}
	if err := writer.Write(headers); err != nil {
		return nil, fmt.Errorf("failed to write CSV headers: %w", err)
	}

	for _, track := range export.Tracks {
		record := []string{
			strconv.Itoa(track.TrackNumber),
			track.ID,
			track.Name,
			track.ArtistName,
			shared.FormatDuration(track.DurationMS),
			ratingString(export, track.ID),
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

// ExportToMarkdown converts an AlbumExport to Markdown format with optional cover image
func ExportToMarkdown(export *AlbumExport, imageFilename string) ([]byte, error) {
	var buf bytes.Buffer

	buf.WriteString(fmt.Sprintf("# %s\n\n", export.Album.Name))

	if imageFilename != "" {
		buf.WriteString(fmt.Sprintf("![Cover](%s)\n\n", imageFilename))
	}

	buf.WriteString(fmt.Sprintf("**Artist**: %s\n", export.Album.ArtistName))
	if export.Album.ReleaseDate != "" {
		buf.WriteString(fmt.Sprintf("**Released**: %s\n", export.Album.ReleaseDate))
	}
	buf.WriteString(fmt.Sprintf("**Tracks**: %d\n", len(export.Tracks)))

	if export.Session != nil {
		buf.WriteString(fmt.Sprintf("**Progress**: %d/%d (%.1f%%)\n",
			export.Session.RatedTracks(), export.Session.TotalTracks(), export.Session.CompletionPercentage()))
		if avg := export.Session.AverageRating(); avg != nil {
			buf.WriteString(fmt.Sprintf("**Average rating**: %.2f\n", *avg))
		}
	}
	buf.WriteString("\n## Tracks\n\n")

	for _, track := range export.Tracks {
		duration := shared.FormatDuration(track.DurationMS)
		ratingPart := ""
		if value, ok := export.Ratings[track.ID]; ok {
			ratingPart = fmt.Sprintf(" — rated %d/10", value)
		}
		buf.WriteString(fmt.Sprintf("%d. %s [%s]%s\n", track.TrackNumber, track.Name, duration, ratingPart))
	}

	return buf.Bytes(), nil
}

// ExportToText converts an AlbumExport to plain text format
func ExportToText(export *AlbumExport) ([]byte, error) {
	var buf bytes.Buffer

	buf.WriteString(fmt.Sprintf("Album: %s\n", export.Album.Name))
	buf.WriteString(fmt.Sprintf("Artist: %s\n", export.Album.ArtistName))
	buf.WriteString(fmt.Sprintf("Tracks: %d\n\n", len(export.Tracks)))

	for _, track := range export.Tracks {
		line := fmt.Sprintf("%d. %s", track.TrackNumber, track.Name)
		if value, ok := export.Ratings[track.ID]; ok {
			line += fmt.Sprintf(" (%d/10)", value)
		}
		buf.WriteString(line + "\n")
	}

	return buf.Bytes(), nil
}

// DownloadImage downloads an image from the given URL and returns the raw bytes
func DownloadImage(url string) ([]byte, error) {
	if url == "" {
		return nil, fmt.Errorf("empty URL provided")
	}

	client := &http.Client{
		Timeout: 30 * time.Second,
	}

	resp, err := client.Get(url)
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

// ToMetadataJSON generates a JSON representation of album metadata (without tracks)
func ToMetadataJSON(album models.Album) ([]byte, error) {
	return shared.MarshalJSON(album, true)
}

// CSVExportResult contains the paths of files created by WriteCSVExport
type CSVExportResult struct {
	TracksFile   string
	MetadataFile string
}

// WriteCSVExport exports an album to CSV format with accompanying metadata JSON file.
//
// Defaults to the album ID as the base filename & creates {base}_tracks.csv and {base}_metadata.json
func WriteCSVExport(export *AlbumExport, baseFilepath string) (*CSVExportResult, error) {
	if baseFilepath == "" {
		baseFilepath = export.Album.ID
	}

	csvData, err := ExportToCSV(export)
	if err != nil {
		return nil, fmt.Errorf("failed to generate CSV: %w", err)
	}

	tracksFile := baseFilepath + "_tracks.csv"
	if err := os.WriteFile(tracksFile, csvData, 0644); err != nil {
		return nil, fmt.Errorf("failed to write CSV file: %w", err)
	}

	metadataJSON, err := ToMetadataJSON(export.Album)
	if err != nil {
		return nil, fmt.Errorf("failed to generate metadata JSON: %w", err)
	}

	metadataFile := baseFilepath + "_metadata.json"
	if err := os.WriteFile(metadataFile, metadataJSON, 0644); err != nil {
		return nil, fmt.Errorf("failed to write metadata file: %w", err)
	}

	return &CSVExportResult{
		TracksFile:   tracksFile,
		MetadataFile: metadataFile,
	}, nil
}

// MarkdownExportResult contains information about files created by WriteMarkdownExport
type MarkdownExportResult struct {
	Directory  string
	Files      []string
	CoverImage string
}

// WriteMarkdownExport exports an album to Markdown format in a dedicated directory.
//
// Directory name defaults to the album ID.
// The imageURL parameter is optional - if provided, attempts to download the cover image.
// Creates a directory structure: {dir}/README.md and optionally {dir}/cover.jpg
func WriteMarkdownExport(export *AlbumExport, outputDir string, imageURL string) (*MarkdownExportResult, error) {
	if outputDir == "" {
		outputDir = export.Album.ID
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
		imageData, err := DownloadImage(imageURL)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Warning: failed to download cover image: %v\n", err)
		} else {
			coverImageFilename = "cover.jpg"
			coverImagePath := fmt.Sprintf("%s/%s", outputDir, coverImageFilename)
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

	mdFile := fmt.Sprintf("%s/README.md", outputDir)
	if err := os.WriteFile(mdFile, mdData, 0644); err != nil {
		return nil, fmt.Errorf("failed to write Markdown file: %w", err)
	}

	result.Files = append(result.Files, mdFile)

	return result, nil
}

// WriteTextExport exports an album to plain text format.
//
// Defaults to {album.ID}_tracks.txt as the filename.
func WriteTextExport(export *AlbumExport, filepath string) (string, error) {
	if filepath == "" {
		filepath = fmt.Sprintf("%s_tracks.txt", export.Album.ID)
	}

	textData, err := ExportToText(export)
	if err != nil {
		return "", fmt.Errorf("failed to generate text: %w", err)
	}

	if err := os.WriteFile(filepath, textData, 0644); err != nil {
		return "", fmt.Errorf("failed to write text file: %w", err)
	}

	return filepath, nil
}
