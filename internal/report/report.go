// Package report renders evaluations as Markdown and HTML.
package report

import (
	"bytes"
	"context"
	"fmt"
	"html/template"
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"

	appI18n "github.com/pavelanni/bandcoach/internal/i18n"
	"github.com/pavelanni/bandcoach/internal/model"
)

var md = goldmark.New(goldmark.WithExtensions(extension.GFM))

var page = template.Must(template.New("page").Parse(`<!DOCTYPE html>
<html lang="{{.Lang}}">
<head>
<meta charset="utf-8">
<meta name="viewport" content="width=device-width, initial-scale=1">
<title>{{.Title}}</title>
<style>
body{font-family:system-ui,sans-serif;max-width:48rem;margin:2rem auto;padding:0 1rem;line-height:1.5}
table{border-collapse:collapse}td,th{border:1px solid #ccc;padding:.25rem .5rem}
blockquote{border-left:4px solid #ccc;margin:0;padding-left:1rem;color:#555}
</style>
</head>
<body>
{{.Body}}
</body>
</html>
`))

func taskLabel(ctx context.Context, t model.TaskType) string {
	if t == model.TaskType1 {
		return appI18n.T(ctx, "TaskLabel1")
	}
	return appI18n.T(ctx, "TaskLabel2")
}

func band(f float64) string {
	return fmt.Sprintf("%.1f", f)
}

// escape keeps user text from being read as Markdown structure.
func escape(s string) string {
	r := strings.NewReplacer("<", "&lt;", ">", "&gt;")
	return r.Replace(s)
}

func quote(sb *strings.Builder, s string) {
	for _, line := range strings.Split(strings.TrimSpace(s), "\n") {
		sb.WriteString("> " + escape(line) + "\n")
	}
	sb.WriteString("\n")
}

func list(sb *strings.Builder, items []string) {
	for _, it := range items {
		sb.WriteString("- " + escape(it) + "\n")
	}
	sb.WriteString("\n")
}

// Markdown renders one submission in the context's language.
func Markdown(ctx context.Context, sub model.Submission) string {
	e := sub.Evaluation
	var sb strings.Builder

	fmt.Fprintf(&sb, "# %s\n\n", appI18n.Td(ctx, "ReportTitle", map[string]any{"Task": taskLabel(ctx, sub.TaskType)}))
	fmt.Fprintf(&sb, "**%s:** %s  \n", appI18n.T(ctx, "ReportDate"), sub.CreatedAt.Format("2006-01-02 15:04"))
	fmt.Fprintf(&sb, "**%s:** %s  \n", appI18n.T(ctx, "ReportOverall"), band(e.OverallBand))
	if e.CEFRLevel != "" {
		fmt.Fprintf(&sb, "**%s:** %s  \n", appI18n.T(ctx, "ReportCEFR"), escape(e.CEFRLevel))
	}
	fmt.Fprintf(&sb, "**%s**\n\n", appI18n.Tp(ctx, "WordsCount", e.WordCount))

	if e.MentorNote != "" {
		fmt.Fprintf(&sb, "## %s\n\n", appI18n.T(ctx, "ReportMentor"))
		quote(&sb, e.MentorNote)
	}

	fmt.Fprintf(&sb, "## %s\n\n", appI18n.T(ctx, "ReportQuestion"))
	quote(&sb, sub.Prompt)

	fmt.Fprintf(&sb, "## %s\n\n", appI18n.T(ctx, "ReportCriteria"))
	criteria := []struct {
		id string
		c  model.Criterion
	}{
		{"CriterionTaskResponse", e.TaskResponse},
		{"CriterionCoherenceCohesion", e.CoherenceCohesion},
		{"CriterionLexicalResource", e.LexicalResource},
		{"CriterionGrammaticalRange", e.GrammaticalRange},
	}
	for _, c := range criteria {
		fmt.Fprintf(&sb, "### %s: %s\n\n%s\n\n", appI18n.T(ctx, c.id), band(c.c.Score), escape(c.c.Feedback))
		if len(c.c.Strengths) > 0 {
			fmt.Fprintf(&sb, "*%s*\n\n", appI18n.T(ctx, "ReportStrengths"))
			list(&sb, c.c.Strengths)
		}
		if len(c.c.Weaknesses) > 0 {
			fmt.Fprintf(&sb, "*%s*\n\n", appI18n.T(ctx, "ReportWeaknesses"))
			list(&sb, c.c.Weaknesses)
		}
	}

	if e.DetailedAnalysis != "" {
		fmt.Fprintf(&sb, "## %s\n\n%s\n\n", appI18n.T(ctx, "ReportAnalysis"), escape(e.DetailedAnalysis))
	}
	if len(e.KeyImprovements) > 0 {
		fmt.Fprintf(&sb, "## %s\n\n", appI18n.T(ctx, "ReportImprovements"))
		list(&sb, e.KeyImprovements)
	}
	if len(e.VocabularyHighlights) > 0 {
		fmt.Fprintf(&sb, "## %s\n\n| | | |\n|---|---|---|\n", appI18n.T(ctx, "ReportVocabulary"))
		for _, v := range e.VocabularyHighlights {
			fmt.Fprintf(&sb, "| %s | %s | %s |\n", cell(v.Word), cell(v.Suggestion), cell(v.Reason))
		}
		sb.WriteString("\n")
	}
	if len(e.DetailedErrors) > 0 {
		fmt.Fprintf(&sb, "## %s\n\n| | | | |\n|---|---|---|---|\n", appI18n.T(ctx, "ReportErrors"))
		for _, d := range e.DetailedErrors {
			fmt.Fprintf(&sb, "| ~~%s~~ | %s | %s | %s |\n", cell(d.Original), cell(d.Correction), cell(d.Explanation), cell(d.Type))
		}
		sb.WriteString("\n")
	}

	fmt.Fprintf(&sb, "## %s\n\n", appI18n.T(ctx, "ReportEssay"))
	quote(&sb, sub.Essay)
	fmt.Fprintf(&sb, "## %s\n\n", appI18n.T(ctx, "ReportCorrected"))
	quote(&sb, e.CorrectedText)
	return sb.String()
}

func cell(s string) string {
	s = strings.ReplaceAll(escape(s), "|", "\\|")
	return strings.ReplaceAll(s, "\n", " ")
}

// HistoryMarkdown renders an exported history, newest first.
func HistoryMarkdown(ctx context.Context, h model.HistoryExport, subs []model.Submission) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "# %s\n\n", appI18n.T(ctx, "ExportTitle"))
	fmt.Fprintf(&sb, "**%s:** %s  \n", appI18n.T(ctx, "ReportDate"), h.ExportedAt.Format("2006-01-02 15:04"))
	fmt.Fprintf(&sb, "**%s:** %s\n\n", appI18n.T(ctx, "ExportAverage"), band(h.AverageBand))
	for _, sub := range subs {
		sb.WriteString("---\n\n")
		// Demote headings so each submission nests under the export title.
		for _, line := range strings.Split(Markdown(ctx, sub), "\n") {
			if strings.HasPrefix(line, "#") {
				line = "#" + line
			}
			sb.WriteString(line + "\n")
		}
	}
	return sb.String()
}

// HTML converts Markdown to a standalone page.
func HTML(ctx context.Context, title, markdown string) ([]byte, error) {
	var body bytes.Buffer
	if err := md.Convert([]byte(markdown), &body); err != nil {
		return nil, fmt.Errorf("convert markdown: %w", err)
	}
	var out bytes.Buffer
	err := page.Execute(&out, struct {
		Lang  string
		Title string
		Body  template.HTML
	}{appI18n.LangFromContext(ctx), title, template.HTML(body.String())})
	if err != nil {
		return nil, fmt.Errorf("render page: %w", err)
	}
	return out.Bytes(), nil
}
