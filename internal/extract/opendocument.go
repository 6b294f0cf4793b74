package extract

import (
	"archive/zip"
	"bytes"
	"fmt"
	"regexp"
	"strings"
)

const openDocumentContentPath = "content.xml"

// OpenDocument (ODF) text elements live in text:p / text:span / text:h,
// each matched only in its non-nested form (no attempt to handle nested spans).
var (
	odfTextP    = regexp.MustCompile(`<text:p[^>]*>([^<]*)</text:p>`)
	odfTextSpan = regexp.MustCompile(`<text:span[^>]*>([^<]*)</text:span>`)
	odfTextH    = regexp.MustCompile(`<text:h[^>]*>([^<]*)</text:h>`)
)

// extractOpenDocument reads content.xml from an ODF zip package (.odp, .ods)
// and concatenates text from paragraph and span elements, plus heading
// elements when includeHeadings is set (.odp only; .ods skips headings).
func extractOpenDocument(content []byte, includeHeadings bool) (string, error) {
	zr, err := zip.NewReader(bytes.NewReader(content), int64(len(content)))
	if err != nil {
		return "", fmt.Errorf("not a zip package: %w", err)
	}
	var contentXML []byte
	for _, f := range zr.File {
		if f.Name != openDocumentContentPath {
			continue
		}
		rc, err := f.Open()
		if err != nil {
			return "", fmt.Errorf("open %s: %w", f.Name, err)
		}
		var buf bytes.Buffer
		if _, err := buf.ReadFrom(rc); err != nil {
			_ = rc.Close()
			return "", fmt.Errorf("read %s: %w", f.Name, err)
		}
		_ = rc.Close()
		contentXML = buf.Bytes()
		break
	}
	if contentXML == nil {
		return "", fmt.Errorf("%s not found in package", openDocumentContentPath)
	}
	s := string(contentXML)
	var b strings.Builder
	appendMatches := func(parts [][]string) {
		for _, p := range parts {
			if b.Len() > 0 {
				b.WriteByte(' ')
			}
			b.WriteString(strings.TrimSpace(p[1]))
		}
	}
	appendMatches(odfTextP.FindAllStringSubmatch(s, -1))
	appendMatches(odfTextSpan.FindAllStringSubmatch(s, -1))
	if includeHeadings {
		appendMatches(odfTextH.FindAllStringSubmatch(s, -1))
	}
	return strings.TrimSpace(b.String()), nil
}

func extractOdp(content []byte) (string, error) { return extractOpenDocument(content, true) }
func extractOds(content []byte) (string, error) { return extractOpenDocument(content, false) }
