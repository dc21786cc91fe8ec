package main

import (
	"fmt"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/codesweep/codesweep/internal/analyzers"
	"github.com/codesweep/codesweep/internal/plugin"
)

var pluginsCmd = &cobra.Command{
	Use:   "plugins",
	Short: "List the registered analysis plugins",
	RunE: func(cmd *cobra.Command, args []string) error {
		registry := plugin.NewRegistry()
		if err := analyzers.RegisterAll(registry); err != nil {
			return err
		}

		cyan := color.New(color.FgCyan).SprintFunc()
		gray := color.New(color.FgHiBlack).SprintFunc()

		for _, id := range registry.StaticIdentifiers() {
			p, _ := registry.Get(id)
			langs := "any language"
			if supported := p.SupportedLanguages(); len(supported) > 0 {
				langs = fmt.Sprintf("%v", supported)
			}
			fmt.Printf("%s %s  %s\n", cyan(id), gray("v"+p.Version()),
				gray(fmt.Sprintf("%s, %s", p.Speed(), langs)))
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(pluginsCmd)
}
