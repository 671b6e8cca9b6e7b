package cmd

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"
)

var cubesCmd = &cobra.Command{
	Use:   "cubes",
	Short: "Browse the cube catalog",
}

var cubesListCmd = &cobra.Command{
	Use:   "list",
	Short: "List the cubes the server can answer questions about",
	RunE:  runCubesList,
}

var cubesGetCmd = &cobra.Command{
	Use:   "get [name]",
	Short: "Show one cube's dimensions and measures",
	Args:  cobra.ExactArgs(1),
	RunE:  runCubesGet,
}

func init() {
	cubesCmd.AddCommand(cubesListCmd)
	cubesCmd.AddCommand(cubesGetCmd)
}

func runCubesList(cmd *cobra.Command, args []string) error {
	client := newClient()

	list, err := client.ListCubes(context.Background())
	if err != nil {
		return fmt.Errorf("failed to list cubes: %w", err)
	}

	if outputJSON {
		return PrintJSON(list)
	}

	headers := []string{"NAME", "DIMENSIONS", "MEASURES", "DESCRIPTION"}
	var rows [][]string
	for _, c := range list.Cubes {
		rows = append(rows, []string{
			c.Name,
			strconv.Itoa(c.Dimensions),
			strconv.Itoa(c.Measures),
			Truncate(c.Description, 60),
		})
	}
	PrintTable(headers, rows)

	return nil
}

func runCubesGet(cmd *cobra.Command, args []string) error {
	client := newClient()

	cube, err := client.GetCube(context.Background(), args[0])
	if err != nil {
		return fmt.Errorf("failed to get cube: %w", err)
	}

	if outputJSON {
		return PrintJSON(cube)
	}

	fmt.Printf("Cube: %s\n", cube.Name)
	if cube.Description != "" {
		fmt.Printf("Description: %s\n", cube.Description)
	}

	fmt.Println("\nDimensions:")
	for _, d := range cube.Dimensions {
		for _, h := range d.Hierarchies {
			levels := make([]string, 0, len(h.Levels))
			for _, l := range h.Levels {
				levels = append(levels, l.Name)
			}
			if len(d.Hierarchies) > 1 {
				fmt.Printf("  %s / %s: %s\n", d.Name, h.Name, strings.Join(levels, " > "))
			} else {
				fmt.Printf("  %s: %s\n", d.Name, strings.Join(levels, " > "))
			}
		}
	}

	fmt.Println("\nMeasures:")
	for _, m := range cube.Measures {
		if detail := m.Annotations["details"]; detail != "" {
			fmt.Printf("  %s (%s)\n", m.Name, Truncate(detail, 70))
		} else {
			fmt.Printf("  %s\n", m.Name)
		}
	}

	return nil
}
