package main

import (
	"strings"

	"whatsbot/internal/constants"
	"whatsbot/pkg/botapi"
	"whatsbot/pkg/format"

	"github.com/spf13/cobra"
)

func newContactsCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "contacts",
		Short: "Contact operations",
	}
	cmd.AddCommand(
		newContactsListCmd(a),
		newContactsGetCmd(a),
		newContactsCreateCmd(a),
		newContactsUpdateCmd(a),
		newContactsDeleteCmd(a),
		newContactsMessagesCmd(a),
		newContactsSendCmd(a),
		newContactsAIConfigCmd(a),
		newContactsSummariesCmd(a),
	)
	return cmd
}

func newContactsListCmd(a *app) *cobra.Command {
	var skip, limit int
	var status string

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List contacts",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := a.context(cmd)
			defer cancel()

			contacts, err := a.backend.ListContacts(ctx, botapi.ListContactsParams{
				Skip:   skip,
				Limit:  limit,
				Status: botapi.ContactStatus(status),
			})
			if err != nil {
				return err
			}

			return a.emit(contacts, func() error {
				if len(contacts) == 0 {
					a.printf("No hay contactos\n")
					return nil
				}
				w := a.table("ID", "NOMBRE", "TELÉFONO", "ESTADO", "IA", "MENSAJES", "ÚLTIMA ACTIVIDAD")
				for _, c := range contacts {
					row(w, c.ID, orDash(c.Name), format.FormatPhoneNumber(c.PhoneNumber), string(c.Status),
						yesNo(c.AIEnabled), a.format.Int(int64(c.MessageCount)), a.relative(c.LastMessageAt))
				}
				return w.Flush()
			})
		},
	}
	cmd.Flags().IntVar(&skip, "skip", 0, "Number of contacts to skip")
	cmd.Flags().IntVar(&limit, "limit", constants.DefaultPageLimit, "Maximum number of contacts")
	cmd.Flags().StringVar(&status, "status", "", "Filter by status (active, paused, blocked)")
	return cmd
}

func newContactsGetCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "get CONTACT_ID",
		Short: "Show one contact",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := a.context(cmd)
			defer cancel()

			contact, err := a.backend.GetContact(ctx, args[0])
			if err != nil {
				return err
			}
			return a.emit(contact, func() error {
				a.printContact(contact)
				return nil
			})
		},
	}
}

func newContactsCreateCmd(a *app) *cobra.Command {
	var in botapi.ContactInput
	var status string

	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create a contact",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := a.context(cmd)
			defer cancel()

			in.Status = botapi.ContactStatus(status)
			if in.Tags == nil {
				in.Tags = []string{}
			}
			contact, err := a.backend.CreateContact(ctx, in)
			if err != nil {
				return err
			}
			return a.emit(contact, func() error {
				a.printf("Contacto creado\n")
				a.printContact(contact)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&in.PhoneNumber, "phone", "", "Phone number in international format (required)")
	cmd.Flags().StringVar(&in.Name, "name", "", "Display name")
	cmd.Flags().StringVar(&in.Email, "email", "", "Email address")
	cmd.Flags().StringVar(&in.Notes, "notes", "", "Free-form notes")
	cmd.Flags().StringVar(&status, "status", string(botapi.StatusActive), "Initial status")
	cmd.Flags().BoolVar(&in.AIEnabled, "ai-enabled", true, "Let the bot answer this contact")
	cmd.Flags().StringSliceVar(&in.Tags, "tags", nil, "Comma-separated tags")
	_ = cmd.MarkFlagRequired("phone")
	return cmd
}

func newContactsUpdateCmd(a *app) *cobra.Command {
	var name, email, notes, status string
	var aiEnabled bool
	var tags []string

	cmd := &cobra.Command{
		Use:   "update CONTACT_ID",
		Short: "Update fields of a contact; only the given flags change",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			flags := cmd.Flags()
			var update botapi.ContactUpdate
			if flags.Changed("name") {
				update.Name = &name
			}
			if flags.Changed("email") {
				update.Email = &email
			}
			if flags.Changed("notes") {
				update.Notes = &notes
			}
			if flags.Changed("status") {
				s := botapi.ContactStatus(status)
				update.Status = &s
			}
			if flags.Changed("ai-enabled") {
				update.AIEnabled = &aiEnabled
			}
			if flags.Changed("tags") {
				update.Tags = tags
			}

			ctx, cancel := a.context(cmd)
			defer cancel()

			contact, err := a.backend.UpdateContact(ctx, args[0], update)
			if err != nil {
				return err
			}
			return a.emit(contact, func() error {
				a.printf("Contacto actualizado\n")
				a.printContact(contact)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&name, "name", "", "Display name")
	cmd.Flags().StringVar(&email, "email", "", "Email address")
	cmd.Flags().StringVar(&notes, "notes", "", "Free-form notes")
	cmd.Flags().StringVar(&status, "status", "", "Status (active, paused, blocked)")
	cmd.Flags().BoolVar(&aiEnabled, "ai-enabled", true, "Let the bot answer this contact")
	cmd.Flags().StringSliceVar(&tags, "tags", nil, "Comma-separated tags")
	return cmd
}

func newContactsDeleteCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "delete CONTACT_ID",
		Short: "Delete a contact",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := a.context(cmd)
			defer cancel()

			if err := a.backend.DeleteContact(ctx, args[0]); err != nil {
				return err
			}
			return a.emit(botapi.StatusMessage{Message: "Contacto eliminado"}, func() error {
				a.printf("Contacto %s eliminado\n", args[0])
				return nil
			})
		},
	}
}

func newContactsMessagesCmd(a *app) *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "messages CONTACT_ID",
		Short: "Show the message history of a contact",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := a.context(cmd)
			defer cancel()

			messages, err := a.backend.ListMessages(ctx, args[0], limit)
			if err != nil {
				return err
			}
			return a.emit(messages, func() error {
				if len(messages) == 0 {
					a.printf("No hay mensajes\n")
					return nil
				}
				w := a.table("FECHA", "DIRECCIÓN", "TIPO", "CONTENIDO")
				for _, m := range messages {
					row(w, a.format.DateTimeString(m.CreatedAt), directionLabel(m.Direction), string(m.MessageType),
						format.TruncateText(oneLine(m.Content), contentPreviewLen))
				}
				return w.Flush()
			})
		},
	}
	cmd.Flags().IntVar(&limit, "limit", constants.DefaultMessagesLimit, "Maximum number of messages")
	return cmd
}

func newContactsSendCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "send CONTACT_ID MESSAGE...",
		Short: "Send a message to a contact",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := a.context(cmd)
			defer cancel()

			content := strings.Join(args[1:], " ")
			if err := a.backend.SendMessage(ctx, args[0], content); err != nil {
				return err
			}
			return a.emit(botapi.StatusMessage{Message: "Mensaje enviado"}, func() error {
				a.printf("Mensaje enviado a %s\n", args[0])
				return nil
			})
		},
	}
}

func newContactsAIConfigCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "ai-config CONTACT_ID",
		Short: "Show the AI configuration override of a contact",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := a.context(cmd)
			defer cancel()

			cfg, err := a.backend.GetContactAIConfig(ctx, args[0])
			if err != nil {
				return err
			}
			return a.emit(cfg, func() error {
				if cfg == nil {
					a.printf("El contacto %s usa la configuración global\n", args[0])
					return nil
				}
				a.printAIConfig(cfg)
				return nil
			})
		},
	}
}

func newContactsSummariesCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "summaries CONTACT_ID",
		Short: "Show the conversation summaries of a contact",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := a.context(cmd)
			defer cancel()

			summaries, err := a.backend.ListSummaries(ctx, args[0])
			if err != nil {
				return err
			}
			return a.emit(summaries, func() error {
				if len(summaries) == 0 {
					a.printf("No hay resúmenes\n")
					return nil
				}
				for i, s := range summaries {
					a.printf("%s  %s\n", a.format.DateTimeString(s.CreatedAt), orDash(s.Sentiment))
					a.printf("  %s\n", s.Summary)
					if len(s.KeyTopics) > 0 {
						a.printf("  Temas: %s\n", strings.Join(s.KeyTopics, ", "))
					}
					if i < len(summaries)-1 {
						a.printf("\n")
					}
				}
				return nil
			})
		},
	}
}

func directionLabel(d botapi.Direction) string {
	if d == botapi.DirectionOutgoing {
		return "→ enviado"
	}
	return "← recibido"
}

func oneLine(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
