// Package report summarizes analysis runs as plain-text tables.
package report

import (
	"fmt"
	"strconv"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
	"github.com/spacesedan/moodlens/internal/models"
)

const maxCommentWidth = 60

// Share is one bucket of a run summary.
type Share struct {
	Sentiment models.Sentiment
	Count     int
	Percent   float64
}

// Summarize counts results per bucket. Every bucket is present, even at zero.
func Summarize(results []models.SentimentResult) map[models.Sentiment]int {
	counts := make(map[models.Sentiment]int, len(models.Sentiments))
	for _, s := range models.Sentiments {
		counts[s] = 0
	}
	for _, r := range results {
		counts[models.ParseSentiment(string(r.Sentiment))]++
	}
	return counts
}

// Shares lists the buckets in display order with their share of total.
// A zero total yields zero percentages.
func Shares(counts map[models.Sentiment]int, total int) []Share {
	shares := make([]Share, 0, len(models.Sentiments))
	for _, s := range models.Sentiments {
		share := Share{Sentiment: s, Count: counts[s]}
		if total > 0 {
			share.Percent = float64(counts[s]) * 100 / float64(total)
		}
		shares = append(shares, share)
	}
	return shares
}

func SummaryTable(counts map[models.Sentiment]int, total int) string {
	rows := make([][]string, 0, len(models.Sentiments)+1)
	for _, share := range Shares(counts, total) {
		rows = append(rows, []string{
			string(share.Sentiment),
			strconv.Itoa(share.Count),
			fmt.Sprintf("%.1f%%", share.Percent),
		})
	}
	rows = append(rows, []string{"total", strconv.Itoa(total), ""})
	return renderTable([]string{"Sentiment", "Count", "Share"}, rows, []text.Align{text.AlignLeft, text.AlignRight, text.AlignRight})
}

func ResultsTable(results []models.SentimentResult) string {
	rows := make([][]string, 0, len(results))
	for i, r := range results {
		rows = append(rows, []string{strconv.Itoa(i + 1), truncate(r.Comment, maxCommentWidth), string(r.Sentiment)})
	}
	return renderTable([]string{"#", "Comment", "Sentiment"}, rows, []text.Align{text.AlignRight, text.AlignLeft, text.AlignLeft})
}

func RunsTable(runs []models.Run) string {
	rows := make([][]string, 0, len(runs))
	for _, run := range runs {
		status := "ok"
		if run.Error != "" {
			status = "partial"
		}
		rows = append(rows, []string{
			run.ID,
			run.CreatedAt.Local().Format(time.DateTime),
			run.Mode,
			run.Backend,
			strconv.Itoa(run.Total),
			strconv.Itoa(run.Counts[models.SentimentPositive]),
			strconv.Itoa(run.Counts[models.SentimentNegative]),
			strconv.Itoa(run.Counts[models.SentimentNeutral]),
			status,
		})
	}
	return renderTable(
		[]string{"ID", "Created", "Mode", "Backend", "Total", "Pos", "Neg", "Neu", "Status"},
		rows,
		[]text.Align{text.AlignLeft, text.AlignLeft, text.AlignLeft, text.AlignLeft, text.AlignRight, text.AlignRight, text.AlignRight, text.AlignRight, text.AlignLeft},
	)
}

func renderTable(headers []string, rows [][]string, aligns []text.Align) string {
	columns := len(headers)
	if columns == 0 {
		return ""
	}

	tw := table.NewWriter()
	tw.SetStyle(table.StyleRounded)

	header := make(table.Row, columns)
	for i := range headers {
		header[i] = headers[i]
	}
	tw.AppendHeader(header)

	for _, row := range rows {
		r := make(table.Row, columns)
		for i := 0; i < columns; i++ {
			if i < len(row) {
				r[i] = row[i]
			} else {
				r[i] = ""
			}
		}
		tw.AppendRow(r)
	}

	configs := make([]table.ColumnConfig, 0, columns)
	for i := 0; i < columns; i++ {
		align := text.AlignLeft
		if i < len(aligns) {
			align = aligns[i]
		}
		configs = append(configs, table.ColumnConfig{Number: i + 1, Align: align, AlignHeader: text.AlignLeft})
	}
	tw.SetColumnConfigs(configs)

	return tw.Render()
}

func truncate(s string, width int) string {
	runes := []rune(s)
	if len(runes) <= width {
		return s
	}
	return string(runes[:width-1]) + "…"
}
