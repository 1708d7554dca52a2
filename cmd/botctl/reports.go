package main

import (
	"fmt"
	"math"
	"strings"

	"whatsbot/internal/backend"
	"whatsbot/internal/dashboard"
	"whatsbot/pkg/botapi"

	"github.com/spf13/cobra"
)

const barWidth = 30

func newAnalyticsCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "analytics",
		Short: "Show message and contact statistics",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := a.context(cmd)
			defer cancel()

			data, err := a.backend.GetAnalytics(ctx)
			if err != nil {
				return err
			}
			return a.emit(data, func() error {
				a.printStats(dashboard.BuildStatsGrid(*data))
				a.printf("\n")
				a.printActivity(dashboard.BuildActivityChart(data.DailyStats))
				a.printf("\n")
				return a.printTopContacts(dashboard.BuildTopContacts(data.TopContacts))
			})
		},
	}
}

func newDashboardCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "dashboard",
		Short: "Print every dashboard panel",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := a.context(cmd)
			defer cancel()

			cache := backend.NewCache(a.cfg, a.logger, a.registry)
			defer cache.Close()

			svc := dashboard.NewService(a.backend, cache, dashboard.WithLogger(a.logger))
			snap := svc.Snapshot(ctx)
			return a.emit(snap, func() error {
				return a.printSnapshot(snap)
			})
		},
	}
}

func newBroadcastCmd(a *app) *cobra.Command {
	var contactIDs []string
	var message string

	cmd := &cobra.Command{
		Use:   "broadcast",
		Short: "Send one message to several contacts",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := a.context(cmd)
			defer cancel()

			result, err := a.backend.Broadcast(ctx, contactIDs, message)
			if err != nil {
				return err
			}
			return a.emit(result, func() error {
				a.printf("Enviados: %d, fallidos: %d\n", result.Successful, result.Failed)
				for _, e := range result.Errors {
					a.printf("  - %s\n", e)
				}
				return nil
			})
		},
	}
	cmd.Flags().StringSliceVar(&contactIDs, "contacts", nil, "Comma-separated contact ids (required)")
	cmd.Flags().StringVarP(&message, "message", "m", "", "Message text (required)")
	_ = cmd.MarkFlagRequired("contacts")
	_ = cmd.MarkFlagRequired("message")
	return cmd
}

func newTestAICmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "test-ai CONTACT_ID MESSAGE...",
		Short: "Preview the AI reply to a message without sending it",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := a.context(cmd)
			defer cancel()

			reply, err := a.backend.TestAIResponse(ctx, args[0], strings.Join(args[1:], " "))
			if err != nil {
				return err
			}
			return a.emit(reply, func() error {
				a.printf("Contacto: %s\n", reply.ContactName)
				a.printf("Mensaje:  %s\n", reply.OriginalMessage)
				a.printf("IA:       %s\n", reply.AIResponse)
				return nil
			})
		},
	}
}

func newHealthCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "health",
		Short: "Check the backend health endpoint",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := a.context(cmd)
			defer cancel()

			status, err := a.backend.Health(ctx)
			if err != nil {
				return err
			}
			if err := a.emit(status, func() error {
				a.printHealth(status)
				return nil
			}); err != nil {
				return err
			}
			if !status.Healthy() {
				return fmt.Errorf("backend reports status %q", status.Status)
			}
			return nil
		},
	}
}

func (a *app) printHealth(status *botapi.HealthStatus) {
	a.printf("Estado:  %s\n", status.Status)
	if status.Message != "" {
		a.printf("Mensaje: %s\n", status.Message)
	}
	if status.Version != "" {
		a.printf("Versión: %s\n", status.Version)
	}
}

func (a *app) printStats(cards []dashboard.StatCard) {
	w := a.table("MÉTRICA", "VALOR", "DETALLE")
	for _, c := range cards {
		row(w, c.Title, c.Value, orDash(c.Detail))
	}
	_ = w.Flush()
}

func (a *app) printActivity(chart dashboard.ActivityChart) {
	if chart.Caption != "" {
		a.printf("%s\n", chart.Caption)
	}
	if chart.Empty {
		a.printf("%s\n", chart.Message)
		return
	}
	for _, p := range chart.Points {
		a.printf("%-8s %s %d\n", p.Label, bar(p.HeightPercent, p.Count), p.Count)
	}
}

func (a *app) printTopContacts(panel dashboard.TopContactsPanel) error {
	if panel.Empty {
		a.printf("%s\n", panel.Message)
		return nil
	}
	w := a.table("#", "NOMBRE", "TELÉFONO", "MENSAJES")
	for _, r := range panel.Rows {
		row(w, r.Rank, r.Name, r.Phone, r.Messages)
	}
	return w.Flush()
}

func (a *app) printRecent(panel dashboard.RecentContactsPanel) error {
	if panel.Empty {
		a.printf("%s\n", panel.Message)
		return nil
	}
	w := a.table("NOMBRE", "TELÉFONO", "ESTADO", "MENSAJES", "ÚLTIMA ACTIVIDAD")
	for _, r := range panel.Rows {
		row(w, r.Name, r.Phone, r.Status, r.Messages, r.LastActivity)
	}
	return w.Flush()
}

func (a *app) printSnapshot(snap dashboard.Snapshot) error {
	section := func(title string, perr *dashboard.PanelError, body func() error) error {
		a.printf("== %s ==\n", title)
		if perr != nil {
			a.printf("%s: %s\n\n", perr.Title, perr.Message)
			return nil
		}
		if err := body(); err != nil {
			return err
		}
		a.printf("\n")
		return nil
	}

	steps := []struct {
		title string
		err   *dashboard.PanelError
		body  func() error
	}{
		{"Resumen", snap.Stats.Error, func() error { a.printStats(snap.Stats.Data); return nil }},
		{"Actividad", snap.Activity.Error, func() error { a.printActivity(snap.Activity.Data); return nil }},
		{"Contactos más activos", snap.TopContacts.Error, func() error { return a.printTopContacts(snap.TopContacts.Data) }},
		{"Contactos recientes", snap.Recent.Error, func() error { return a.printRecent(snap.Recent.Data) }},
		{"Estado de la IA", snap.AI.Error, func() error {
			ai := snap.AI.Data
			a.printf("%s\n", ai.StatusLabel)
			if ai.Configured {
				a.printf("Temperatura %s, tokens %s, retraso %s\n", ai.Temperature, ai.MaxTokens, ai.ResponseDelay)
			}
			return nil
		}},
		{"Entrenamiento", snap.Training.Error, func() error {
			t := snap.Training.Data
			a.printf("%d entradas (%d activas), %s palabras\n", t.Total, t.Active, t.TotalWords)
			for _, c := range t.Categories {
				a.printf("  %s: %d\n", c.Category, c.Count)
			}
			return nil
		}},
	}
	for _, s := range steps {
		if err := section(s.title, s.err, s.body); err != nil {
			return err
		}
	}
	return nil
}

// bar renders a horizontal bar; any non-zero count gets at least one cell.
func bar(percent float64, count int) string {
	n := int(math.Round(percent / 100 * barWidth))
	if n == 0 && count > 0 {
		n = 1
	}
	return strings.Repeat("█", n) + strings.Repeat("·", barWidth-n)
}
