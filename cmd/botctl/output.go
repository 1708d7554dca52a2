package main

import (
	"encoding/json"
	"fmt"
	"strings"
	"text/tabwriter"

	"whatsbot/pkg/botapi"
	"whatsbot/pkg/format"
)

const contentPreviewLen = 60

// emit prints v as indented JSON when --json is set, otherwise calls text.
func (a *app) emit(v any, text func() error) error {
	if a.jsonOutput {
		enc := json.NewEncoder(a.out)
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	}
	return text()
}

func (a *app) printf(layout string, args ...any) {
	_, _ = fmt.Fprintf(a.out, layout, args...)
}

// table writes aligned columns. The caller must Flush.
func (a *app) table(headers ...string) *tabwriter.Writer {
	w := tabwriter.NewWriter(a.out, 0, 4, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, strings.Join(headers, "\t"))
	return w
}

func row(w *tabwriter.Writer, cols ...string) {
	_, _ = fmt.Fprintln(w, strings.Join(cols, "\t"))
}

func yesNo(b bool) string {
	if b {
		return "sí"
	}
	return "no"
}

func orDash(s string) string {
	if strings.TrimSpace(s) == "" {
		return "-"
	}
	return s
}

func (a *app) printContact(c *botapi.Contact) {
	w := tabwriter.NewWriter(a.out, 0, 4, 2, ' ', 0)
	row(w, "ID:", c.ID)
	row(w, "Nombre:", orDash(c.Name))
	row(w, "Teléfono:", format.FormatPhoneNumber(c.PhoneNumber))
	row(w, "Email:", orDash(c.Email))
	row(w, "Estado:", string(c.Status))
	row(w, "IA:", yesNo(c.AIEnabled))
	row(w, "Etiquetas:", orDash(strings.Join(c.Tags, ", ")))
	row(w, "Mensajes:", a.format.Int(int64(c.MessageCount)))
	row(w, "Última actividad:", a.relative(c.LastMessageAt))
	row(w, "Creado:", a.format.DateTimeString(c.CreatedAt))
	if c.Notes != "" {
		row(w, "Notas:", c.Notes)
	}
	_ = w.Flush()
}

func (a *app) printAIConfig(cfg *botapi.AIConfig) {
	scope := "global"
	if !cfg.IsGlobal() {
		scope = "contacto " + cfg.ContactID
	}
	w := tabwriter.NewWriter(a.out, 0, 4, 2, ' ', 0)
	row(w, "ID:", cfg.ID)
	row(w, "Ámbito:", scope)
	row(w, "Activa:", yesNo(cfg.Enabled))
	row(w, "Retraso:", fmt.Sprintf("%d-%ds", cfg.ResponseDelayMin, cfg.ResponseDelayMax))
	row(w, "Temperatura:", a.format.Number(cfg.Temperature))
	row(w, "Tokens máx.:", a.format.Int(int64(cfg.MaxTokens)))
	row(w, "Prompt:", orDash(format.TruncateText(cfg.SystemPrompt, contentPreviewLen)))
	_ = w.Flush()
}

func (a *app) relative(timestamp string) string {
	if timestamp == "" {
		return "-"
	}
	return a.format.RelativeTime(timestamp)
}
