package extract

import (
	"archive/zip"
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/xuri/excelize/v2"
)

func writeFile(t *testing.T, dir, name string, content []byte) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, content, 0o600); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestProcess_plainText(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "notes.txt", []byte("Hello world\nLine 2"))

	e := NewDefaultExtractor()
	got, err := e.Process(path)
	if err != nil {
		t.Fatalf("Process: %v", err)
	}
	if got.Content != "Hello world\nLine 2" {
		t.Errorf("content = %q", got.Content)
	}
	if got.Title != "notes" {
		t.Errorf("title = %q", got.Title)
	}
	if got.FileType != "text" {
		t.Errorf("file type = %q", got.FileType)
	}
}

func TestProcess_markdownInvalidUTF8Repaired(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "broken.md", []byte("hello\x80world"))

	e := NewDefaultExtractor()
	got, err := e.Process(path)
	if err != nil {
		t.Fatalf("Process: %v", err)
	}
	if got.Content != "hello�world" {
		t.Errorf("content = %q", got.Content)
	}
}

func TestProcess_emptyFileIsExtractEmpty(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "blank.txt", []byte("   \n\t"))

	_, err := NewDefaultExtractor().Process(path)
	var extractErr *ExtractError
	if err == nil {
		t.Fatal("expected an error for a blank file")
	}
	if !asExtractError(err, &extractErr) || extractErr.Kind != ExtractEmpty {
		t.Fatalf("expected ExtractEmpty, got %v", err)
	}
}

func TestProcess_missingFileIsUnreadable(t *testing.T) {
	_, err := NewDefaultExtractor().Process(filepath.Join(t.TempDir(), "missing.txt"))
	var extractErr *ExtractError
	if !asExtractError(err, &extractErr) || extractErr.Kind != ExtractUnreadable {
		t.Fatalf("expected ExtractUnreadable, got %v", err)
	}
}

func TestProcess_excel(t *testing.T) {
	f := excelize.NewFile()
	defer f.Close()
	f.SetCellValue("Sheet1", "A1", "Title")
	f.SetCellValue("Sheet1", "A2", "Value 1")
	f.SetCellValue("Sheet1", "B2", "Value 2")
	var buf bytes.Buffer
	if _, err := f.WriteTo(&buf); err != nil {
		t.Fatalf("WriteTo: %v", err)
	}

	dir := t.TempDir()
	path := writeFile(t, dir, "sheet.xlsx", buf.Bytes())

	got, err := NewDefaultExtractor().Process(path)
	if err != nil {
		t.Fatalf("Process: %v", err)
	}
	if got.Content != "Title\nValue 1\tValue 2" {
		t.Errorf("content = %q", got.Content)
	}
	if got.FileType != "excel" {
		t.Errorf("file type = %q", got.FileType)
	}
}

func TestProcess_docxExtractsRunText(t *testing.T) {
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)

	ct, _ := zw.Create("[Content_Types].xml")
	ct.Write([]byte(`<?xml version="1.0"?><Types><Override PartName="/word/document.xml" ContentType="application/vnd.openxmlformats-officedocument.wordprocessingml.document.main+xml"/></Types>`))

	doc, _ := zw.Create("word/document.xml")
	doc.Write([]byte(`<?xml version="1.0"?><w:document><w:body><w:p><w:r><w:t>Hello</w:t></w:r><w:r><w:t xml:space="preserve"> world</w:t></w:r></w:p></w:body></w:document>`))

	if err := zw.Close(); err != nil {
		t.Fatal(err)
	}

	dir := t.TempDir()
	path := writeFile(t, dir, "report.docx", buf.Bytes())

	got, err := NewDefaultExtractor().Process(path)
	if err != nil {
		t.Fatalf("Process: %v", err)
	}
	if got.Content != "Hello world" {
		t.Errorf("content = %q", got.Content)
	}
	if got.FileType != "word" {
		t.Errorf("file type = %q", got.FileType)
	}
}

func asExtractError(err error, target **ExtractError) bool {
	ee, ok := err.(*ExtractError)
	if !ok {
		return false
	}
	*target = ee
	return true
}
