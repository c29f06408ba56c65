package main

import (
	"fmt"
	"strconv"

	"github.com/dustin/go-humanize"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"

	"github.com/bdougie/motionvec/internal/analyzer"
	"github.com/bdougie/motionvec/internal/models"
)

var statsHeaders = []string{"Frame", "Vectors", "Static", "Moving", "Iterations", "Status"}

func renderStats(result *analyzer.Result) string {
	tw := table.NewWriter()
	tw.SetStyle(table.StyleRounded)

	header := make(table.Row, len(statsHeaders))
	for i, h := range statsHeaders {
		header[i] = h
	}
	tw.AppendHeader(header)

	var vectors, moving int
	for _, f := range result.Frames {
		static := f.Vectors - models.Mask(f.Moving).Count()
		tw.AppendRow(table.Row{
			strconv.Itoa(f.Frame),
			humanize.Comma(int64(f.Vectors)),
			humanize.Comma(int64(static)),
			humanize.Comma(int64(f.Vectors - static)),
			strconv.Itoa(f.Iterations),
			string(f.Status),
		})
		vectors += f.Vectors
		moving += f.Vectors - static
	}
	tw.AppendFooter(table.Row{
		fmt.Sprintf("%d frames", len(result.Frames)),
		humanize.Comma(int64(vectors)),
		humanize.Comma(int64(vectors - moving)),
		humanize.Comma(int64(moving)),
		"",
		fmt.Sprintf("%d degenerate", result.Degenerate()),
	})

	configs := make([]table.ColumnConfig, 0, len(statsHeaders))
	for i := range statsHeaders {
		align := text.AlignRight
		if i == len(statsHeaders)-1 {
			align = text.AlignLeft
		}
		configs = append(configs, table.ColumnConfig{
			Number:      i + 1,
			Align:       align,
			AlignHeader: text.AlignLeft,
		})
	}
	tw.SetColumnConfigs(configs)

	return tw.Render()
}
