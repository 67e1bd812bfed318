// Package notify renders alarms into desktop notifications and delivers
// them over D-Bus.
package notify

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"text/template"
	"time"

	"github.com/adrg/xdg"

	"calremind/internal/alarm"
)

// TemplateData represents the data available to notification templates.
type TemplateData struct {
	Summary      string
	Message      string
	CalendarName string
	StartTime    string
	DueTime      string
	AlertOffset  string
	UID          string
}

// Renderer renders alarm bodies from templates. Templates are looked up
// in the XDG config templates directory and cached after first load.
type Renderer struct {
	templateName    string
	templates       map[string]*template.Template
	defaultTemplate *template.Template
}

// NewRenderer creates a renderer using the named template, falling back
// to the built-in default when the name is empty or loading fails.
func NewRenderer(templateName string) *Renderer {
	return &Renderer{
		templateName:    templateName,
		templates:       make(map[string]*template.Template),
		defaultTemplate: createDefaultTemplate(),
	}
}

// Render produces the notification title and body for an alarm.
func (r *Renderer) Render(a alarm.Alarm) (string, string) {
	data := TemplateData{
		Summary:      a.Summary,
		Message:      a.Message,
		CalendarName: a.CalendarName,
		StartTime:    a.Start.In(time.Local).Format("15:04"),
		DueTime:      a.DueDate.In(time.Local).Format("15:04"),
		AlertOffset:  formatDuration(a.Offset),
		UID:          a.UID,
	}

	tmpl, err := r.getTemplate()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load template %s, using default: %v\n", r.templateName, err)
		tmpl = r.defaultTemplate
	}

	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		fmt.Fprintf(os.Stderr, "Template execution failed, using default: %v\n", err)
		buf.Reset()
		if err := r.defaultTemplate.Execute(&buf, data); err != nil {
			// Static template, cannot fail.
			return a.Message, ""
		}
	}

	return a.Message, buf.String()
}

// getTemplate retrieves or loads the configured template.
func (r *Renderer) getTemplate() (*template.Template, error) {
	if r.templateName == "" {
		return r.defaultTemplate, nil
	}

	if tmpl, exists := r.templates[r.templateName]; exists {
		return tmpl, nil
	}

	templatePath, err := xdg.SearchConfigFile(filepath.Join("calremind", "templates", r.templateName))
	if err != nil {
		templatePath = filepath.Join("templates", r.templateName)
	}

	tmpl, err := LoadTemplate(templatePath)
	if err != nil {
		return nil, fmt.Errorf("failed to load template %s: %w", r.templateName, err)
	}

	r.templates[r.templateName] = tmpl
	return tmpl, nil
}

// LoadTemplate loads a template from a file path.
func LoadTemplate(path string) (*template.Template, error) {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil, fmt.Errorf("template file does not exist: %s", path)
	}

	content, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read template file %s: %w", path, err)
	}

	tmpl, err := template.New(filepath.Base(path)).Parse(string(content))
	if err != nil {
		return nil, fmt.Errorf("failed to parse template %s: %w", path, err)
	}

	return tmpl, nil
}

func createDefaultTemplate() *template.Template {
	defaultTemplateText := `{{.Message}}{{if .CalendarName}} [{{.CalendarName}}]{{end}}
Starts: {{.StartTime}}{{if .AlertOffset}} ({{.AlertOffset}} warning){{end}}`

	tmpl, err := template.New("default").Parse(defaultTemplateText)
	if err != nil {
		// This should never happen with our static template
		panic(fmt.Sprintf("Failed to create default template: %v", err))
	}

	return tmpl
}

// CreateDefaultTemplates creates default template files in the user's
// config directory.
func CreateDefaultTemplates() error {
	templatesDir, err := xdg.ConfigFile("calremind/templates")
	if err != nil {
		return fmt.Errorf("failed to get templates directory: %w", err)
	}

	if err := os.MkdirAll(templatesDir, 0755); err != nil {
		return fmt.Errorf("failed to create templates directory: %w", err)
	}

	templates := map[string]string{
		"default.tpl": `{{.Message}}{{if .CalendarName}} [{{.CalendarName}}]{{end}}
Starts: {{.StartTime}}{{if .AlertOffset}} ({{.AlertOffset}} warning){{end}}`,

		"detailed.tpl": `{{.Message}}
{{.StartTime}} in {{.CalendarName}}
{{.AlertOffset}} warning`,

		"minimal.tpl": `{{.Message}} at {{.StartTime}}`,
	}

	for filename, content := range templates {
		templatePath := filepath.Join(templatesDir, filename)

		// Only create if doesn't exist
		if _, err := os.Stat(templatePath); os.IsNotExist(err) {
			if err := os.WriteFile(templatePath, []byte(content), 0644); err != nil {
				return fmt.Errorf("failed to create template %s: %w", filename, err)
			}
		}
	}

	return nil
}

// formatDuration formats a duration in a human-readable way.
func formatDuration(d time.Duration) string {
	if d <= 0 {
		return ""
	}
	if d < time.Minute {
		return fmt.Sprintf("%d seconds", int(d.Seconds()))
	}
	if d < time.Hour {
		minutes := int(d.Minutes())
		if minutes == 1 {
			return "1 minute"
		}
		return fmt.Sprintf("%d minutes", minutes)
	}
	if d < 24*time.Hour {
		hours := int(d.Hours())
		if hours == 1 {
			return "1 hour"
		}
		return fmt.Sprintf("%d hours", hours)
	}
	days := int(d.Hours() / 24)
	if days == 1 {
		return "1 day"
	}
	return fmt.Sprintf("%d days", days)
}
