package artifact

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"html/template"
	"path"
	"strings"
	"time"

	"github.com/gomarkdown/markdown"
	mdhtml "github.com/gomarkdown/markdown/html"
	"github.com/gomarkdown/markdown/parser"
	"github.com/microcosm-cc/bluemonday"

	"github.com/kuitang/uiverify/internal/errs"
)

// Failure is the diagnostic attached to a failed cell.
type Failure struct {
	Code      errs.Code `json:"code"`
	Message   string    `json:"message"`
	Cause     string    `json:"cause,omitempty"`
	Step      int       `json:"step"` // -1 for run setup
	StepName  string    `json:"step_name,omitempty"`
	Selector  string    `json:"selector,omitempty"`
	LastURL   string    `json:"last_url,omitempty"`
	LastValue string    `json:"last_value,omitempty"`
}

// CellReport is the summary of one matrix cell.
type CellReport struct {
	RunID     string    `json:"run_id"`
	Cell      string    `json:"cell"`
	Role      string    `json:"role"`
	Locale    string    `json:"locale"`
	Viewport  string    `json:"viewport"`
	Status    string    `json:"status"`
	Started   time.Time `json:"started"`
	Finished  time.Time `json:"finished"`
	Artifacts []string  `json:"artifacts,omitempty"`
	// Observed lists what each passing assertion saw, in step order.
	Observed []string `json:"observed,omitempty"`
	Failure  *Failure `json:"failure,omitempty"`
}

// Summary aggregates one scenario execution.
type Summary struct {
	Scenario    string       `json:"scenario"`
	Description string       `json:"description,omitempty"`
	Started     time.Time    `json:"started"`
	Finished    time.Time    `json:"finished"`
	Total       int          `json:"total"`
	Passed      int          `json:"passed"`
	Failed      int          `json:"failed"`
	Cells       []CellReport `json:"cells"`
}

const statusPassed = "passed"

// NewSummary counts cells and spans their start and finish times.
func NewSummary(scenarioID, description string, cells []CellReport) Summary {
	s := Summary{Scenario: scenarioID, Description: description, Total: len(cells), Cells: cells}
	for _, c := range cells {
		if c.Status == statusPassed {
			s.Passed++
		} else {
			s.Failed++
		}
		if s.Started.IsZero() || (!c.Started.IsZero() && c.Started.Before(s.Started)) {
			s.Started = c.Started
		}
		if c.Finished.After(s.Finished) {
			s.Finished = c.Finished
		}
	}
	return s
}

// OK reports whether every cell passed.
func (s Summary) OK() bool { return s.Failed == 0 }

// Markdown renders the summary as a markdown document.
func (s Summary) Markdown() string {
	var b strings.Builder
	fmt.Fprintf(&b, "# Scenario %s\n\n", escape(s.Scenario))
	if s.Description != "" {
		fmt.Fprintf(&b, "%s\n\n", escape(s.Description))
	}
	fmt.Fprintf(&b, "**Result:** %d/%d cells passed", s.Passed, s.Total)
	if !s.Started.IsZero() {
		fmt.Fprintf(&b, " in %s", s.Finished.Sub(s.Started).Round(time.Millisecond))
	}
	b.WriteString("\n\n")

	b.WriteString("| Cell | Status | Duration | Artifacts |\n|---|---|---|---|\n")
	for _, c := range s.Cells {
		mark := "✅"
		if c.Status != statusPassed {
			mark = "❌"
		}
		links := make([]string, 0, len(c.Artifacts))
		for _, a := range c.Artifacts {
			links = append(links, fmt.Sprintf("[%s](%s)", escape(path.Base(a)), strings.ReplaceAll(a, " ", "%20")))
		}
		fmt.Fprintf(&b, "| %s | %s %s | %s | %s |\n",
			escape(c.Cell), mark, escape(c.Status),
			c.Finished.Sub(c.Started).Round(time.Millisecond), strings.Join(links, " "))
	}

	var failed []CellReport
	for _, c := range s.Cells {
		if c.Failure != nil {
			failed = append(failed, c)
		}
	}
	if len(failed) > 0 {
		b.WriteString("\n## Failures\n")
		for _, c := range failed {
			f := c.Failure
			fmt.Fprintf(&b, "\n### %s\n\n", escape(c.Cell))
			fmt.Fprintf(&b, "- **Code:** %s\n", escape(string(f.Code)))
			if f.Step >= 0 {
				fmt.Fprintf(&b, "- **Step:** %d %s\n", f.Step+1, escape(f.StepName))
			} else {
				fmt.Fprintf(&b, "- **Step:** setup %s\n", escape(f.StepName))
			}
			fmt.Fprintf(&b, "- **Message:** %s\n", escape(f.Message))
			if f.Cause != "" {
				fmt.Fprintf(&b, "- **Cause:** %s\n", escape(f.Cause))
			}
			if f.Selector != "" {
				fmt.Fprintf(&b, "- **Selector:** %s\n", escape(f.Selector))
			}
			if f.LastURL != "" {
				fmt.Fprintf(&b, "- **Last URL:** %s\n", escape(f.LastURL))
			}
			if f.LastValue != "" {
				fmt.Fprintf(&b, "- **Last value:** %s\n", escape(f.LastValue))
			}
		}
	}
	return b.String()
}

var markdownEscaper = strings.NewReplacer(
	`\`, `\\`, "`", "\\`", "*", `\*`, "_", `\_`, "[", `\[`, "]", `\]`,
	"<", "&lt;", ">", "&gt;", "|", `\|`, "#", `\#`, "\n", " ", "\r", " ",
)

// escape neutralizes markdown syntax in page-derived text.
func escape(s string) string {
	return markdownEscaper.Replace(s)
}

const reportTemplate = `<!DOCTYPE html>
<html lang="en">
<head>
    <meta charset="UTF-8">
    <meta name="viewport" content="width=device-width, initial-scale=1.0">
    <title>{{.Title}}</title>
    <style>
        body {
            font-family: -apple-system, BlinkMacSystemFont, 'Segoe UI', Roboto, 'Helvetica Neue', Arial, sans-serif;
            line-height: 1.5;
            max-width: 1100px;
            margin: 0 auto;
            padding: 2rem 1rem;
        }
        table { width: 100%; border-collapse: collapse; margin: 1em 0; }
        th, td { border: 1px solid #e0e0e0; padding: 0.4em 0.8em; text-align: left; }
        th { background-color: #f5f5f5; }
    </style>
</head>
<body>
    <article>
        {{.Content}}
    </article>
</body>
</html>`

var reportTmpl = template.Must(template.New("report").Parse(reportTemplate))

// RenderHTML converts report markdown into a sanitized standalone HTML page.
func RenderHTML(md, title string) ([]byte, error) {
	p := parser.NewWithExtensions(parser.CommonExtensions | parser.AutoHeadingIDs | parser.NoEmptyLineBeforeBlock)
	doc := p.Parse([]byte(md))
	renderer := mdhtml.NewRenderer(mdhtml.RendererOptions{Flags: mdhtml.CommonFlags | mdhtml.HrefTargetBlank})
	body := bluemonday.UGCPolicy().SanitizeBytes(markdown.Render(doc, renderer))

	var buf bytes.Buffer
	if err := reportTmpl.Execute(&buf, struct {
		Title   string
		Content template.HTML
	}{Title: title, Content: template.HTML(body)}); err != nil {
		return nil, fmt.Errorf("artifact: render report: %w", err)
	}
	return buf.Bytes(), nil
}

// WriteReport stores summary.json, summary.md and summary.html under the
// scenario's artifact prefix and returns their locations.
func WriteReport(ctx context.Context, sink Sink, s Summary) ([]string, error) {
	js, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("artifact: encode summary: %w", err)
	}
	md := s.Markdown()
	page, err := RenderHTML(md, "uiverify: "+s.Scenario)
	if err != nil {
		return nil, err
	}

	prefix := Sanitize(s.Scenario)
	files := []struct {
		name, contentType string
		data              []byte
	}{
		{"summary.json", "application/json", js},
		{"summary.md", "text/markdown; charset=utf-8", []byte(md)},
		{"summary.html", "text/html; charset=utf-8", page},
	}
	locs := make([]string, 0, len(files))
	for _, f := range files {
		loc, err := sink.Put(ctx, path.Join(prefix, f.name), f.data, f.contentType)
		if err != nil {
			return locs, errs.Wrapf(errs.ArtifactWrite, err, "write %s", f.name)
		}
		locs = append(locs, loc)
	}
	return locs, nil
}
