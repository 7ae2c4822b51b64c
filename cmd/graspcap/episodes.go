package main

import (
	"context"
	"fmt"
	"os"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"

	"github.com/gwillem/graspcap/pkg/catalog"
)

type EpisodesCommand struct {
	ObjectType string `long:"type" description:"Only this object type"`
	ActionTag  string `long:"tag" description:"Only this action tag"`
	Limit      int    `short:"n" long:"limit" default:"20" description:"Maximum rows"`
}

func (c *EpisodesCommand) Execute(args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if _, err := os.Stat(cfg.Recording.Catalog); err != nil {
		fmt.Println("No episodes captured yet.")
		return nil
	}

	cat, err := catalog.Open(cfg.Recording.Catalog)
	if err != nil {
		return err
	}
	defer cat.Close()

	ctx := context.Background()
	entries, err := cat.List(ctx, catalog.Filter{ObjectType: c.ObjectType, ActionTag: c.ActionTag, Limit: c.Limit})
	if err != nil {
		return err
	}
	total, err := cat.Count(ctx, c.ObjectType, c.ActionTag)
	if err != nil {
		return err
	}

	headerCell := lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("12")).Padding(0, 1)
	cell := lipgloss.NewStyle().Padding(0, 1)

	rows := make([][]string, 0, len(entries))
	for _, e := range entries {
		rows = append(rows, []string{
			e.SavedAt.Local().Format("2006-01-02 15:04:05"),
			e.ObjectType,
			e.ActionTag,
			e.Object,
			fmt.Sprintf("%d", e.Frames),
			e.Path,
		})
	}

	t := table.New().
		Border(lipgloss.RoundedBorder()).
		BorderStyle(dimStyle).
		Headers("Saved", "Type", "Tag", "Object", "Frames", "File").
		Rows(rows...).
		StyleFunc(func(row, col int) lipgloss.Style {
			if row == table.HeaderRow {
				return headerCell
			}
			return cell
		})

	fmt.Println(t.Render())
	fmt.Println(dimStyle.Render(fmt.Sprintf("%d of %d episodes", len(entries), total)))
	return nil
}
