package main

import (
	"whatsbot/pkg/botapi"

	"github.com/spf13/cobra"
)

func newAIConfigCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "ai-config",
		Short: "AI response configuration",
	}
	cmd.AddCommand(newAIConfigGetCmd(a), newAIConfigCreateCmd(a), newAIConfigUpdateCmd(a))
	return cmd
}

func newAIConfigGetCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "get",
		Short: "Show the global AI configuration",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := a.context(cmd)
			defer cancel()

			cfg, err := a.backend.GetAIConfig(ctx)
			if err != nil {
				return err
			}
			return a.emit(cfg, func() error {
				if cfg == nil {
					a.printf("IA sin configurar\n")
					return nil
				}
				a.printAIConfig(cfg)
				return nil
			})
		},
	}
}

func newAIConfigCreateCmd(a *app) *cobra.Command {
	in := botapi.DefaultAIConfigInput()

	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create an AI configuration, global or for one contact",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := a.context(cmd)
			defer cancel()

			cfg, err := a.backend.CreateAIConfig(ctx, in)
			if err != nil {
				return err
			}
			return a.emit(cfg, func() error {
				a.printf("Configuración creada\n")
				a.printAIConfig(cfg)
				return nil
			})
		},
	}
	flags := cmd.Flags()
	flags.StringVar(&in.ContactID, "contact", "", "Contact the configuration applies to; global when empty")
	flags.IntVar(&in.ResponseDelayMin, "delay-min", in.ResponseDelayMin, "Minimum response delay in seconds")
	flags.IntVar(&in.ResponseDelayMax, "delay-max", in.ResponseDelayMax, "Maximum response delay in seconds")
	flags.Float64Var(&in.Temperature, "temperature", in.Temperature, "Sampling temperature (0-2)")
	flags.IntVar(&in.MaxTokens, "max-tokens", in.MaxTokens, "Maximum tokens per response")
	flags.StringVar(&in.SystemPrompt, "system-prompt", "", "System prompt")
	flags.BoolVar(&in.Enabled, "enabled", in.Enabled, "Enable AI responses")
	return cmd
}

func newAIConfigUpdateCmd(a *app) *cobra.Command {
	var delayMin, delayMax, maxTokens int
	var temperature float64
	var prompt string
	var enabled bool

	cmd := &cobra.Command{
		Use:   "update CONFIG_ID",
		Short: "Update an AI configuration; only the given flags change",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			flags := cmd.Flags()
			var update botapi.AIConfigUpdate
			if flags.Changed("delay-min") {
				update.ResponseDelayMin = &delayMin
			}
			if flags.Changed("delay-max") {
				update.ResponseDelayMax = &delayMax
			}
			if flags.Changed("temperature") {
				update.Temperature = &temperature
			}
			if flags.Changed("max-tokens") {
				update.MaxTokens = &maxTokens
			}
			if flags.Changed("system-prompt") {
				update.SystemPrompt = &prompt
			}
			if flags.Changed("enabled") {
				update.Enabled = &enabled
			}

			ctx, cancel := a.context(cmd)
			defer cancel()

			cfg, err := a.backend.UpdateAIConfig(ctx, args[0], update)
			if err != nil {
				return err
			}
			return a.emit(cfg, func() error {
				a.printf("Configuración actualizada\n")
				a.printAIConfig(cfg)
				return nil
			})
		},
	}
	flags := cmd.Flags()
	flags.IntVar(&delayMin, "delay-min", 0, "Minimum response delay in seconds")
	flags.IntVar(&delayMax, "delay-max", 0, "Maximum response delay in seconds")
	flags.Float64Var(&temperature, "temperature", 0, "Sampling temperature (0-2)")
	flags.IntVar(&maxTokens, "max-tokens", 0, "Maximum tokens per response")
	flags.StringVar(&prompt, "system-prompt", "", "System prompt")
	flags.BoolVar(&enabled, "enabled", true, "Enable AI responses")
	return cmd
}
