package main

import (
	"os"
	"strconv"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
	"github.com/mattn/go-isatty"

	"glyphnet/training"
	"glyphnet/vision/dataset"
)

// renderConfusionTable formats the confusion matrix with true classes as
// rows and predicted classes as columns.
func renderConfusionTable(cm *training.ConfusionMatrix, index *dataset.LabelIndex) string {
	tw := table.NewWriter()
	tw.SetStyle(table.StyleRounded)

	header := make(table.Row, cm.NumClasses+1)
	header[0] = "true \\ predicted"
	for j := 0; j < cm.NumClasses; j++ {
		header[j+1] = index.Name(j)
	}
	tw.AppendHeader(header)

	for i := 0; i < cm.NumClasses; i++ {
		row := make(table.Row, cm.NumClasses+1)
		row[0] = index.Name(i)
		for j := 0; j < cm.NumClasses; j++ {
			row[j+1] = strconv.Itoa(cm.Matrix[i][j])
		}
		tw.AppendRow(row)
	}

	configs := make([]table.ColumnConfig, 0, cm.NumClasses+1)
	for j := 0; j <= cm.NumClasses; j++ {
		align := text.AlignRight
		if j == 0 {
			align = text.AlignLeft
		}
		configs = append(configs, table.ColumnConfig{
			Number:      j + 1,
			Align:       align,
			AlignHeader: text.AlignLeft,
		})
	}
	tw.SetColumnConfigs(configs)

	return tw.Render()
}

func stdoutIsTerminal() bool {
	fd := os.Stdout.Fd()
	return isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd)
}
