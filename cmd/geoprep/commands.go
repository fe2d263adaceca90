package main

import (
	"fmt"
	"sort"

	"github.com/spf13/cobra"

	"github.com/tingold/geoprep"
	"github.com/tingold/geoprep/dataset"
)

func (a *app) cleanCmd() *cobra.Command {
	var (
		exclude []string
		dryRun  bool
	)
	cmd := &cobra.Command{
		Use:   "clean <dataset>",
		Short: "Sanitize field names in place",
		Long: `Lower-cases field names, replaces characters other than letters, digits
and underscores with underscores and collapses repeated underscores.
Reserved names such as OBJECTID and Shape are left alone, as are the
names passed with --exclude. Nothing is renamed if any two names would
collide.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := a.pipeline()
			if err != nil {
				return err
			}
			h := dataset.Path(args[0])
			if dryRun {
				plan, err := p.PlanFieldNames(h, exclude...)
				if err != nil {
					return err
				}
				printPlan(cmd, plan)
				return nil
			}
			out, err := p.CleanFieldNames(h, exclude...)
			if err != nil {
				return err
			}
			printHandle(cmd, out.Path)
			return nil
		},
	}
	cmd.Flags().StringSliceVarP(&exclude, "exclude", "x", nil, "field names to keep unchanged")
	cmd.Flags().BoolVarP(&dryRun, "dry-run", "n", false, "print the renames without applying them")
	return cmd
}

func printPlan(cmd *cobra.Command, plan map[string]map[string]string) {
	w := cmd.OutOrStdout()
	layers := make([]string, 0, len(plan))
	for name := range plan {
		layers = append(layers, name)
	}
	sort.Strings(layers)
	for _, layer := range layers {
		m := plan[layer]
		if len(m) == 0 {
			fmt.Fprintf(w, "%s: no changes\n", layer)
			continue
		}
		fmt.Fprintf(w, "%s:\n", layer)
		from := make([]string, 0, len(m))
		for k := range m {
			from = append(from, k)
		}
		sort.Strings(from)
		for _, k := range from {
			fmt.Fprintf(w, "  %s -> %s\n", k, m[k])
		}
	}
}

func (a *app) reprojectCmd() *cobra.Command {
	var inPlace bool
	cmd := &cobra.Command{
		Use:   "reproject <dataset> <region>",
		Short: "Reproject every layer to a named region or EPSG code",
		Long: `Transforms the coordinates of every layer to the target system. The
target is a region name from "geoprep regions", an EPSG code such as
4326 or EPSG:4326. The result is written to <stem>_reprojected<ext>
unless --in-place is given.`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := a.pipeline()
			if err != nil {
				return err
			}
			out, err := p.StandardizeProjection(dataset.Path(args[0]), args[1], inPlace)
			if err != nil {
				return err
			}
			printHandle(cmd, out.Path)
			return nil
		},
	}
	cmd.Flags().BoolVarP(&inPlace, "in-place", "i", false, "modify the input dataset")
	return cmd
}

func (a *app) repairCmd() *cobra.Command {
	var inPlace bool
	cmd := &cobra.Command{
		Use:   "repair <dataset>",
		Short: "Repair invalid geometries",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := a.pipeline()
			if err != nil {
				return err
			}
			out, err := p.RepairGeometry(dataset.Path(args[0]), inPlace)
			if err != nil {
				return err
			}
			printHandle(cmd, out.Path)
			return nil
		},
	}
	cmd.Flags().BoolVarP(&inPlace, "in-place", "i", false, "modify the input dataset")
	return cmd
}

func (a *app) to2DCmd() *cobra.Command {
	var inPlace bool
	cmd := &cobra.Command{
		Use:   "to2d <dataset>",
		Short: "Drop Z and M ordinates",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := a.pipeline()
			if err != nil {
				return err
			}
			out, err := p.Ensure2D(dataset.Path(args[0]), inPlace)
			if err != nil {
				return err
			}
			printHandle(cmd, out.Path)
			return nil
		},
	}
	cmd.Flags().BoolVarP(&inPlace, "in-place", "i", false, "modify the input dataset")
	return cmd
}

func (a *app) sinuosityCmd() *cobra.Command {
	var field string
	cmd := &cobra.Command{
		Use:   "sinuosity <dataset>",
		Short: "Store line length over endpoint distance in a field",
		Long: `Adds a real field holding the sinuosity of every single-line feature:
its length divided by the straight distance between its endpoints. Closed
lines get 1. Other geometries are left null. Lengths are measured in the
units of the dataset's coordinate system, so reproject geographic data
first.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := a.pipeline()
			if err != nil {
				return err
			}
			out, err := p.CalculateSinuosity(dataset.Path(args[0]), field)
			if err != nil {
				return err
			}
			printHandle(cmd, out.Path)
			return nil
		},
	}
	cmd.Flags().StringVarP(&field, "field", "f", geoprep.DefaultSinuosityField, "name of the output field")
	return cmd
}

func (a *app) runCmd() *cobra.Command {
	var (
		steps   []string
		inPlace bool
	)
	cmd := &cobra.Command{
		Use:   "run <dataset>",
		Short: "Run several operations in order",
		Long: `Runs the given steps one after the other, each on the output of the
previous one. Steps:

  clean[:field,...]    sanitize field names, keeping the listed fields
  reproject:<region>   reproject to a region or EPSG code
  repair               repair invalid geometries
  to2d                 drop Z and M ordinates
  sinuosity[:field]    compute sinuosity

The run stops at the first failing step.`,
		Example: `  geoprep run rivers.gpkg --step clean --step reproject:NAD83_CONUS_ALBERS --step sinuosity`,
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(steps) == 0 {
				return fmt.Errorf("%w: no --step given", geoprep.ErrInvalidConfiguration)
			}
			parsed := make([]geoprep.Step, len(steps))
			for i, s := range steps {
				step, err := geoprep.ParseStep(s, inPlace)
				if err != nil {
					return err
				}
				parsed[i] = step
			}

			p, err := a.pipeline()
			if err != nil {
				return err
			}
			out, err := p.Run(dataset.Path(args[0]), parsed...)
			if err != nil {
				return err
			}
			printHandle(cmd, out.Path)
			return nil
		},
	}
	cmd.Flags().StringArrayVarP(&steps, "step", "s", nil, "step to run, repeatable")
	cmd.Flags().BoolVarP(&inPlace, "in-place", "i", false, "modify datasets in place instead of writing suffixed copies")
	return cmd
}
