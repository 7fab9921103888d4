package backend

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
)

// Report is a medical report analysis.
type Report struct {
	ID            ID       `json:"id"`
	Title         string   `json:"title"`
	FileNames     []string `json:"file_names"`
	Analysis      string   `json:"analysis"`
	Warnings      []string `json:"warnings"`
	CreatedAt     string   `json:"created_at"`
	ExtractedText string   `json:"extracted_text,omitempty"`
}

// ListReports returns the user's most recent report analyses.
func (c *Client) ListReports(ctx context.Context) ([]Report, error) {
	var data struct {
		Reports []Report `json:"reports"`
	}
	err := c.do(ctx, http.MethodGet, "reports/", nil, &data)
	return data.Reports, err
}

// Report returns one analysis including the extracted text.
func (c *Client) Report(ctx context.Context, id string) (Report, error) {
	var data struct {
		Report Report `json:"report"`
	}
	err := c.do(ctx, http.MethodGet, fmt.Sprintf("reports/%s/", url.PathEscape(id)), nil, &data)
	return data.Report, err
}

// DeleteReport removes an analysis.
func (c *Client) DeleteReport(ctx context.Context, id string) error {
	return c.do(ctx, http.MethodDelete, fmt.Sprintf("reports/%s/", url.PathEscape(id)), nil, nil)
}

// AnalyzeReports uploads report files as multipart "files" fields and returns
// the stored analysis. title may be empty.
func (c *Client) AnalyzeReports(ctx context.Context, title string, paths []string) (Report, error) {
	if len(paths) == 0 {
		return Report{}, errors.New("at least one report file is required")
	}

	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	for _, p := range paths {
		if err := addFile(w, p); err != nil {
			return Report{}, err
		}
	}
	if title != "" {
		if err := w.WriteField("title", title); err != nil {
			return Report{}, err
		}
	}
	if err := w.Close(); err != nil {
		return Report{}, err
	}

	var data struct {
		Report Report `json:"report"`
	}
	if err := c.send(ctx, http.MethodPost, "reports/analyze/", &buf, w.FormDataContentType(), &data); err != nil {
		return Report{}, err
	}
	return data.Report, nil
}

func addFile(w *multipart.Writer, path string) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	part, err := w.CreateFormFile("files", filepath.Base(path))
	if err != nil {
		return err
	}
	_, err = io.Copy(part, f)
	return err
}
