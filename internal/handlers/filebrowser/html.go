package filebrowser

import (
	"bytes"
	"html/template"
	"time"

	"github.com/dustin/go-humanize"

	"example.com/fileshare/internal/http1"
	"example.com/fileshare/internal/volumes"
)

// nameWidth is the number of runes of a name shown before truncation.
const nameWidth = 30

// HTMLAssembler is the default Assembler.
type HTMLAssembler struct {
	tmpl *template.Template
}

// NewHTMLAssembler parses the built-in templates.
func NewHTMLAssembler() *HTMLAssembler {
	funcs := template.FuncMap{
		"size": func(n int64) string {
			if n < 0 {
				n = 0
			}
			return humanize.Bytes(uint64(n))
		},
		"usize":    humanize.Bytes,
		"ago":      humanize.Time,
		"stamp":    func(t time.Time) string { return t.Format("02.01.2006 15:04") },
		"truncate": func(s string) string { return TruncateName(s, nameWidth) },
		"browse":   BrowseURL,
		"raw":      RawURL,
		"download": DownloadURL,
		"preview":  PreviewURL,
		"escape":   http1.Escape,
		"archive":  func() string { return "/download" },
		"isKind":   func(k FileKind, want string) bool { return kindNames[k] == want },
	}
	return &HTMLAssembler{tmpl: template.Must(template.New("pages").Funcs(funcs).Parse(pageTemplates))}
}

var kindNames = map[FileKind]string{
	KindOther:        "other",
	KindImage:        "image",
	KindVideo:        "video",
	KindAudio:        "audio",
	KindPDF:          "pdf",
	KindDocument:     "document",
	KindSpreadsheet:  "spreadsheet",
	KindPresentation: "presentation",
	KindText:         "text",
}

func (a *HTMLAssembler) render(name string, data interface{}) ([]byte, error) {
	var buf bytes.Buffer
	if err := a.tmpl.ExecuteTemplate(&buf, name, data); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func (a *HTMLAssembler) Volumes(vols []volumes.Volume) ([]byte, error) {
	return a.render("volumes", vols)
}

func (a *HTMLAssembler) Directory(listing DirectoryListing) ([]byte, error) {
	return a.render("directory", listing)
}

func (a *HTMLAssembler) Preview(preview FilePreview) ([]byte, error) {
	return a.render("preview", preview)
}

const pageTemplates = `
{{define "head"}}<!DOCTYPE html>
<html><head><meta charset="UTF-8"><meta name="viewport" content="width=device-width, initial-scale=1.0">
<title>{{.}}</title>
<style>
body { font-family: Arial, sans-serif; margin: 0; padding: 20px; background: #fff; color: #333; }
a { color: #1a73e8; text-decoration: none; }
.breadcrumbs { margin-bottom: 15px; overflow: hidden; text-overflow: ellipsis; white-space: nowrap; }
.actions { margin-bottom: 10px; }
.file-list { display: flex; flex-wrap: wrap; gap: 10px; }
.file-item { background: #f0f0f0; border-radius: 5px; padding: 10px; width: calc(33.33% - 20px); box-sizing: border-box; position: relative; }
.file-item input { position: absolute; top: 10px; right: 10px; }
.item-icon { font-size: 2em; }
.item-text { overflow: hidden; text-overflow: ellipsis; white-space: nowrap; }
.item-size { font-size: 0.9em; color: gray; margin-top: 5px; }
.download-btn { display: inline-block; margin-top: 10px; padding: 10px 15px; background: #1a73e8; color: #fff; border-radius: 5px; }
img.preview, video.preview { max-width: 100%; height: auto; border-radius: 5px; }
audio.preview { width: 100%; }
pre { background: #f6f6f6; padding: 10px; overflow: auto; }
@media (max-width: 800px) { .file-item { width: calc(50% - 20px); } }
</style></head><body>{{end}}

{{define "crumbs"}}<div class="breadcrumbs"><a href="/">Home</a>{{range .}} / <a href="{{browse .Path}}">{{.Name}}</a>{{end}}</div>{{end}}

{{define "archiveForm"}}<form class="actions" method="POST" action="{{archive}}" onsubmit="return collectSelected(this)">
<input type="hidden" name="files" value="">
<button type="submit">⬇️ Download selected files</button>
</form>
<script>
function collectSelected(form) {
  var picked = [];
  document.querySelectorAll('input.file-checkbox:checked').forEach(function (c) { picked.push(c.value); });
  if (picked.length === 0) { return false; }
  form.elements.files.value = picked.join(',');
  return true;
}
</script>{{end}}

{{define "volumes"}}{{template "head" "Volumes"}}
<div class="breadcrumbs"><a href="/">Home</a></div>
<div class="file-list">
{{range .}}<div class="file-item">
<div class="item-icon">💽</div>
<div class="item-text" title="{{.DisplayName}}"><a href="{{browse .Path}}">{{truncate .DisplayName}}</a></div>
{{if .TotalBytes}}<div class="item-size">{{usize .FreeBytes}} free of {{usize .TotalBytes}}</div>{{end}}
</div>
{{else}}<p>No volumes are available.</p>
{{end}}</div>
</body></html>{{end}}

{{define "directory"}}{{template "head" .Path}}
{{template "crumbs" .Crumbs}}
{{template "archiveForm"}}
<div class="file-list">
{{if not .AtRoot}}<div class="file-item">
<div class="item-icon">⬅️</div>
<div class="item-text"><a href="{{browse .Parent}}">Back</a></div>
</div>{{end}}
{{range .Entries}}{{if .IsDir}}<div class="file-item">
<div class="item-icon">📁</div>
<div class="item-text" title="{{.Name}}"><a href="{{browse .Path}}">{{truncate .Name}}</a></div>
<div class="item-size" title="{{stamp .ModTime}}">{{ago .ModTime}}</div>
</div>
{{else}}<div class="file-item">
<input type="checkbox" class="file-checkbox" value="{{escape .Path}}">
<div class="item-icon">{{.Kind.Icon}}</div>
<div class="item-text" title="{{.Name}}"><a href="{{preview .Path}}">{{truncate .Name}}</a></div>
<div class="item-size" title="{{stamp .ModTime}}">{{size .Size}} • {{ago .ModTime}}</div>
</div>
{{end}}{{end}}</div>
</body></html>{{end}}

{{define "preview"}}{{template "head" .Name}}
{{template "crumbs" .Crumbs}}
<p><a href="{{browse .Dir}}">⬅️ Back to folder</a></p>
{{if isKind .Kind "image"}}<img class="preview" src="{{raw .Path}}" alt="{{.Name}}">
{{else if isKind .Kind "video"}}<video class="preview" controls><source src="{{raw .Path}}" type="{{.MimeType}}">Your browser cannot play this video.</video>
{{else if isKind .Kind "audio"}}<audio class="preview" controls><source src="{{raw .Path}}" type="{{.MimeType}}">Your browser cannot play this audio.</audio>
{{else if isKind .Kind "pdf"}}<embed src="{{raw .Path}}" type="application/pdf" width="100%" height="600px">
{{else if isKind .Kind "text"}}<pre>{{.Text}}</pre>{{if .Truncated}}<p>Only the beginning of the file is shown.</p>{{end}}
{{else}}<p>No preview is available for this file.</p>
{{end}}
<div class="file-metadata">
<p>Name: {{.Name}}</p>
<p>Size: {{size .Size}}</p>
<p>Modified: {{stamp .ModTime}} ({{ago .ModTime}})</p>
</div>
<a class="download-btn" href="{{download .Path}}">⬇️ Download</a>
</body></html>{{end}}
`
