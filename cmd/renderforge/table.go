package main

import (
	"strconv"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"

	"renderforge/internal/queue"
)

const timestampLayout = "2006-01-02 15:04:05"

// jobsTable renders the queue listing. Numeric columns are right-aligned
// and long output paths wrap instead of widening the table.
func jobsTable(jobs []*queue.Job, colorize bool) string {
	tw := table.NewWriter()
	tw.SetStyle(table.StyleRounded)
	tw.AppendHeader(table.Row{"ID", "Composition", "Status", "Progress", "Output", "Updated"})

	for _, job := range jobs {
		status := string(job.Status)
		if colorize {
			status = colorizeStatus(job.Status)
		}
		tw.AppendRow(table.Row{
			strconv.FormatInt(job.ID, 10),
			job.CompositionID,
			status,
			formatProgress(job.Progress),
			job.OutputPath,
			job.UpdatedAt.Local().Format(timestampLayout),
		})
	}

	tw.SetColumnConfigs([]table.ColumnConfig{
		{Number: 1, Align: text.AlignRight, AlignHeader: text.AlignLeft},
		{Number: 4, Align: text.AlignRight, AlignHeader: text.AlignLeft},
		{Number: 5, WidthMax: 60},
	})
	return tw.Render()
}
