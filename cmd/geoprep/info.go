package main

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/tingold/geoprep"
	"github.com/tingold/geoprep/region"
)

func newTable(headers ...string) *table.Table {
	return table.New().
		Border(lipgloss.NormalBorder()).
		Headers(headers...)
}

func (a *app) regionsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "regions",
		Short: "List the named regions accepted by reproject",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			var (
				r   *region.Registry
				err error
			)
			if a.cfg.RegionsFile != "" {
				r, err = region.Load(a.cfg.RegionsFile)
			} else {
				r, err = region.Default()
			}
			if err != nil {
				return err
			}

			t := newTable("NAME", "EPSG", "DESCRIPTION")
			for _, e := range r.Entries() {
				t.Row(e.Name, strconv.Itoa(e.EPSG), e.Description)
			}
			fmt.Fprintln(cmd.OutOrStdout(), t)
			return nil
		},
	}
}

func (a *app) enginesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "engines",
		Short: "Show which geometry engines are available",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			r := geoprep.DefaultEngines()
			selected := ""
			if e, err := r.Select(a.cfg.Engine); err == nil {
				selected = e.Name()
			}

			status := r.Status()
			t := newTable("ENGINE", "STATUS", "")
			for _, name := range r.Names() {
				state := "available"
				if err := status[name]; err != nil {
					state = err.Error()
				}
				mark := ""
				if name == selected {
					mark = "selected"
				}
				t.Row(name, state, mark)
			}
			fmt.Fprintln(cmd.OutOrStdout(), t)
			if selected == "" {
				return fmt.Errorf("%w: %q", geoprep.ErrEngineNotFound, a.cfg.Engine)
			}
			return nil
		},
	}
}

func (a *app) formatsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "formats",
		Short: "List the dataset formats and their file extensions",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			t := newTable("FORMAT", "EXTENSIONS", "LAYERS", "RESERVED")
			for _, c := range geoprep.DefaultStore().Codecs() {
				layers := "single"
				if c.MultiLayer() {
					layers = "multi"
				}
				t.Row(c.Name(), strings.Join(c.Extensions(), " "), layers, strings.Join(c.ReservedFields(), " "))
			}
			fmt.Fprintln(cmd.OutOrStdout(), t)
			return nil
		},
	}
}

func (a *app) configCmd() *cobra.Command {
	var save string
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Print the effective configuration",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if save != "" {
				if err := a.cfg.Save(save); err != nil {
					return err
				}
				a.logger.Info("Configuration saved", zap.String("path", save))
			}
			data, err := yaml.Marshal(a.cfg)
			if err != nil {
				return err
			}
			_, err = cmd.OutOrStdout().Write(data)
			return err
		},
	}
	cmd.Flags().StringVar(&save, "save", "", "also write the configuration to this file")
	return cmd
}
