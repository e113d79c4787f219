package report

import "html/template"

var reportTemplate = template.Must(template.New("report").Parse(`<!DOCTYPE html>
<html lang="en">
<head>
<meta charset="utf-8"/>
<title>Migration Report - {{.Database}}</title>
<style>
body { font-family: Arial, sans-serif; background: #f7f9fc; color: #263238; margin: 0; padding: 20px; }
header { background: #1E88E5; color: white; padding: 20px; border-radius: 8px; }
.summary { display: grid; grid-template-columns: repeat(auto-fit, minmax(220px, 1fr)); gap: 16px; margin: 20px 0; }
.card { background: white; border-radius: 8px; padding: 16px; box-shadow: 0 2px 6px rgba(0,0,0,0.08); }
.card h3 { margin-top: 0; font-size: 1.05rem; color: #546E7A; }
.card p { margin: 0; font-size: 1.2rem; font-weight: bold; }
section { margin-bottom: 32px; }
section h2 { color: #1E88E5; }
.log-entries { list-style: none; padding: 0; margin: 0; background: white; border-radius: 8px; box-shadow: 0 2px 6px rgba(0,0,0,0.08); }
.log-entry { display: flex; gap: 16px; padding: 12px 16px; border-bottom: 1px solid #ECEFF1; align-items: baseline; }
.log-entry:last-child { border-bottom: none; }
.log-entry.error { color: #C62828; font-weight: bold; }
.log-entry.warning { color: #EF6C00; }
.timestamp { min-width: 80px; font-weight: bold; color: #455A64; }
.comparison { width: 100%; border-collapse: collapse; background: white; border-radius: 8px; overflow: hidden; box-shadow: 0 2px 6px rgba(0,0,0,0.08); }
.comparison th, .comparison td { padding: 12px 16px; border-bottom: 1px solid #ECEFF1; text-align: left; }
.comparison th { background: #E3F2FD; color: #1E88E5; font-size: 0.95rem; text-transform: uppercase; }
.comparison tr:last-child td { border-bottom: none; }
.empty { font-style: italic; color: #78909C; }
</style>
</head>
<body>
<header>
  <h1>Migration Report - {{.Database}}</h1>
  <p>Generated at {{.GeneratedAt}}</p>
</header>
<section>
  <h2>Summary</h2>
  <div class="summary">
    <div class="card">
      <h3>Source database size</h3>
      <p>{{.SourceSize}}</p>
    </div>
    <div class="card">
      <h3>Destination database size</h3>
      <p>{{.DestSize}}</p>
    </div>
    <div class="card">
      <h3>Total migration time</h3>
      <p>{{.Duration}}</p>
    </div>
  </div>
</section>
<section>
  <h2>Migration Log</h2>
  <ul class="log-entries">
{{- range .Entries}}
    <li class="log-entry {{.Level}}"><span class="timestamp">{{.Time}}</span><span class="message">{{.Message}}</span></li>
{{- end}}
  </ul>
</section>
<section>
  <h2>Constraints pending restoration</h2>
{{- if .Pending}}
  <table class="comparison">
    <thead><tr><th>Table</th><th>Constraint</th></tr></thead>
    <tbody>
{{- range .Pending}}
      <tr><td>{{.Table}}</td><td>{{.Constraint}}</td></tr>
{{- end}}
    </tbody>
  </table>
{{- else}}
  <p class="empty">All constraints were restored.</p>
{{- end}}
</section>
<section>
  <h2>Post-migration comparison</h2>
{{- if .Comparison}}
  <table class="comparison">
    <thead><tr><th>Category</th><th>In model, missing in destination</th><th>In destination, missing in model</th></tr></thead>
    <tbody>
{{- range .Comparison}}
      <tr><td>{{.Category}}</td><td>{{.Missing}}</td><td>{{.Extra}}</td></tr>
{{- end}}
    </tbody>
  </table>
{{- else}}
  <p class="empty">No differences found between the destination and the model.</p>
{{- end}}
</section>
</body>
</html>
`))
