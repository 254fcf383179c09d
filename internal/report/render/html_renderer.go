package render

import (
	"bytes"
	"context"
	"fmt"
	"html/template"
	"time"
)

const reportHTMLTemplate = `<!doctype html>
<html lang="en">
<head>
  <meta charset="utf-8" />
  <title>{{.Workspace.Name}} {{.Period.Label}} report</title>
  <style>
    * { box-sizing: border-box; }
    body {
      margin: 0;
      padding: 32px;
      font-family: "Helvetica Neue", Arial, sans-serif;
      color: #111827;
      background: #ffffff;
    }
    .report {
      max-width: 820px;
      margin: 0 auto;
    }
    .header {
      border-bottom: 2px solid #111827;
      padding-bottom: 16px;
      margin-bottom: 24px;
    }
    .header .label {
      color: #6b7280;
      text-transform: uppercase;
      letter-spacing: 0.04em;
      font-size: 11px;
    }
    .section {
      margin-bottom: 24px;
    }
    .section h2 {
      font-size: 14px;
      text-transform: uppercase;
      letter-spacing: 0.04em;
      color: #6b7280;
      margin: 0 0 8px;
    }
    table {
      width: 100%;
      border-collapse: collapse;
      font-size: 14px;
    }
    th, td {
      padding: 10px;
      border-bottom: 1px solid #e5e7eb;
      text-align: left;
    }
    th {
      text-transform: uppercase;
      font-size: 11px;
      letter-spacing: 0.04em;
      color: #6b7280;
    }
    .empty {
      padding: 24px;
      text-align: center;
      color: #6b7280;
      border: 1px dashed #e5e7eb;
    }
  </style>
</head>
<body>
  <div class="report">
    <div class="header">
      <div class="label">{{.Period.Label}} report</div>
      <div><strong>{{.Workspace.Name}}</strong></div>
      <div>{{formatDate .Period.Start}} to {{formatDate .Period.End}} ({{.Workspace.Timezone}})</div>
    </div>

    <div class="section">
      <h2>Totals</h2>
      {{if .Totals}}
      <table>
        <thead>
          <tr>
            <th>Metric</th>
            <th>Value</th>
            <th>Aggregation</th>
          </tr>
        </thead>
        <tbody>
          {{range .Totals}}
          <tr>
            <td>{{.Name}}</td>
            <td>{{.Value}}</td>
            <td>{{.Aggregation}}</td>
          </tr>
          {{end}}
        </tbody>
      </table>
      {{else}}
      <div class="empty">No metric data was recorded for this period.</div>
      {{end}}
    </div>

    {{range .Connections}}
    <div class="section">
      <h2>{{.Name}}</h2>
      <table>
        <thead>
          <tr>
            <th>Metric</th>
            <th>Value</th>
          </tr>
        </thead>
        <tbody>
          {{range .Rows}}
          <tr>
            <td>{{.Name}}</td>
            <td>{{.Value}}</td>
          </tr>
          {{end}}
        </tbody>
      </table>
    </div>
    {{end}}
  </div>
</body>
</html>
`

type HTMLRenderer struct {
	tpl *template.Template
}

func NewHTMLRenderer() Renderer {
	funcs := template.FuncMap{
		"formatDate": formatDate,
	}
	return &HTMLRenderer{
		tpl: template.Must(template.New("report").Funcs(funcs).Parse(reportHTMLTemplate)),
	}
}

func (r *HTMLRenderer) Render(ctx context.Context, input RenderInput) (Artifact, error) {
	if err := ctx.Err(); err != nil {
		return Artifact{}, err
	}
	if input.Workspace.Name == "" {
		input.Workspace.Name = "Workspace"
	}
	if input.Workspace.Timezone == "" {
		input.Workspace.Timezone = "UTC"
	}

	var buf bytes.Buffer
	if err := r.tpl.Execute(&buf, input); err != nil {
		return Artifact{}, err
	}
	return Artifact{
		ContentType: "text/html; charset=utf-8",
		Subject: fmt.Sprintf("%s %s report, %s",
			input.Workspace.Name,
			input.Period.Label,
			formatDate(input.Period.Start),
		),
		Body: buf.String(),
	}, nil
}

func formatDate(value time.Time) string {
	if value.IsZero() {
		return "-"
	}
	return value.Format("2006-01-02")
}

// FormatMetricValue renders a metric number without trailing noise;
// whole numbers lose the decimal part.
func FormatMetricValue(value float64) string {
	if value == float64(int64(value)) {
		return fmt.Sprintf("%d", int64(value))
	}
	return fmt.Sprintf("%.2f", value)
}
