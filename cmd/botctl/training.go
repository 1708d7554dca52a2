package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"whatsbot/internal/constants"
	"whatsbot/internal/security"
	"whatsbot/pkg/botapi"
	"whatsbot/pkg/format"

	"github.com/spf13/cobra"
)

func newTrainingCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "training",
		Short: "Training data operations",
	}
	cmd.AddCommand(
		newTrainingListCmd(a),
		newTrainingCreateCmd(a),
		newTrainingDeleteCmd(a),
		newTrainingUploadCmd(a),
	)
	return cmd
}

func newTrainingListCmd(a *app) *cobra.Command {
	var skip, limit int

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List training data",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := a.context(cmd)
			defer cancel()

			items, err := a.backend.ListTrainingData(ctx, botapi.PageParams{Skip: skip, Limit: limit})
			if err != nil {
				return err
			}
			return a.emit(items, func() error {
				if len(items) == 0 {
					a.printf("No hay datos de entrenamiento\n")
					return nil
				}
				w := a.table("ID", "TÍTULO", "CATEGORÍA", "ACTIVO", "PALABRAS", "CREADO")
				for _, item := range items {
					row(w, item.ID, format.TruncateText(item.Title, 40), item.Category, yesNo(item.Active),
						a.format.Int(int64(item.WordCount)), a.format.DateString(item.CreatedAt))
				}
				return w.Flush()
			})
		},
	}
	cmd.Flags().IntVar(&skip, "skip", 0, "Number of entries to skip")
	cmd.Flags().IntVar(&limit, "limit", constants.DefaultPageLimit, "Maximum number of entries")
	return cmd
}

func newTrainingCreateCmd(a *app) *cobra.Command {
	var in botapi.TrainingDataInput
	var contentFile string

	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create a training entry",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if contentFile != "" {
				if in.Content != "" {
					return fmt.Errorf("--content and --content-file are mutually exclusive")
				}
				data, err := readLocalFile(contentFile)
				if err != nil {
					return err
				}
				in.Content = string(data)
			}
			if in.Tags == nil {
				in.Tags = []string{}
			}

			ctx, cancel := a.context(cmd)
			defer cancel()

			item, err := a.backend.CreateTrainingData(ctx, in)
			if err != nil {
				return err
			}
			return a.emit(item, func() error {
				a.printf("Entrada %s creada: %s (%s palabras)\n", item.ID, item.Title, a.format.Int(int64(item.WordCount)))
				return nil
			})
		},
	}
	flags := cmd.Flags()
	flags.StringVar(&in.Title, "title", "", "Entry title (required)")
	flags.StringVar(&in.Content, "content", "", "Entry text")
	flags.StringVar(&contentFile, "content-file", "", "Read the entry text from a file")
	flags.StringVar(&in.Category, "category", botapi.DefaultCategory, "Category")
	flags.StringSliceVar(&in.Tags, "tags", nil, "Comma-separated tags")
	flags.BoolVar(&in.Active, "active", true, "Use the entry when answering")
	_ = cmd.MarkFlagRequired("title")
	return cmd
}

func newTrainingDeleteCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "delete TRAINING_ID",
		Short: "Delete a training entry",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := a.context(cmd)
			defer cancel()

			if err := a.backend.DeleteTrainingData(ctx, args[0]); err != nil {
				return err
			}
			return a.emit(botapi.StatusMessage{Message: "Entrada eliminada"}, func() error {
				a.printf("Entrada %s eliminada\n", args[0])
				return nil
			})
		},
	}
}

func newTrainingUploadCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "upload FILE",
		Short: "Upload a text file (.txt, .md, .csv, .json) as training data",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := args[0]
			if err := security.ValidateFilePath(path); err != nil {
				return err
			}
			f, err := os.Open(path) // #nosec G304 - path validated above
			if err != nil {
				return err
			}
			defer f.Close()

			info, err := f.Stat()
			if err != nil {
				return err
			}

			ctx, cancel := a.context(cmd)
			defer cancel()

			name := filepath.Base(path)
			if err := a.backend.UploadTrainingFile(ctx, name, f); err != nil {
				return err
			}
			return a.emit(botapi.StatusMessage{Message: "Archivo subido"}, func() error {
				a.printf("Archivo %s (%s) subido\n", name, format.FormatFileSize(info.Size()))
				return nil
			})
		},
	}
}

func readLocalFile(path string) ([]byte, error) {
	if err := security.ValidateFilePath(path); err != nil {
		return nil, err
	}
	data, err := os.ReadFile(path) // #nosec G304 - path validated above
	if err != nil {
		return nil, err
	}
	return []byte(strings.TrimSpace(string(data))), nil
}
