package main

import (
	"fmt"
	"io"
	"os"
	"strconv"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
	"github.com/mattn/go-isatty"

	"github.com/hpungsan/memomind/internal/artifact"
	"github.com/hpungsan/memomind/internal/document"
)

type columnAlignment int

const (
	alignLeft columnAlignment = iota
	alignRight
)

func renderTable(headers []string, rows [][]string, aligns []columnAlignment) string {
	columns := len(headers)
	if columns == 0 {
		return ""
	}

	tw := table.NewWriter()
	tw.SetStyle(table.StyleRounded)

	header := make(table.Row, columns)
	for i := range columns {
		header[i] = headers[i]
	}
	tw.AppendHeader(header)

	for _, row := range rows {
		r := make(table.Row, columns)
		for i := range columns {
			if i < len(row) {
				r[i] = row[i]
			} else {
				r[i] = ""
			}
		}
		tw.AppendRow(r)
	}

	configs := make([]table.ColumnConfig, 0, columns)
	for i := range columns {
		align := text.AlignLeft
		if i < len(aligns) && aligns[i] == alignRight {
			align = text.AlignRight
		}
		configs = append(configs, table.ColumnConfig{
			Number:      i + 1,
			Align:       align,
			AlignHeader: text.AlignLeft,
			WidthMax:    60,
		})
	}
	tw.SetColumnConfigs(configs)

	return tw.Render()
}

// summaryTable renders a saved-content listing.
func summaryTable(kind document.Kind, items []document.Summary) string {
	if len(items) == 0 {
		return fmt.Sprintf("No saved %s.", kind)
	}
	headers := []string{"ITEM ID", "NAME", "TITLE", "COUNT", "CREATED"}
	rows := make([][]string, 0, len(items))
	for _, it := range items {
		title := it.Title
		if title == "" {
			title = it.Subject
		}
		count := ""
		switch kind {
		case document.KindMCQs:
			count = strconv.Itoa(it.TotalQuestions)
		case document.KindFlashcards:
			count = strconv.Itoa(it.TotalCards)
		}
		rows = append(rows, []string{it.ItemID, it.ItemName, title, count, it.CreatedAt})
	}
	return renderTable(headers, rows, []columnAlignment{alignLeft, alignLeft, alignLeft, alignRight, alignLeft})
}

// printDocument writes a human-readable rendering of doc. pdf, when set, is
// the compiled notes PDF.
func printDocument(w io.Writer, doc document.Document, pdf *artifact.Ref) error {
	switch doc.Kind {
	case document.KindNotes:
		if doc.Notes != nil {
			fmt.Fprint(w, doc.Notes.Markdown())
		}
		if pdf != nil {
			where := pdf.URL
			if pdf.Path != "" {
				where = "available with --out (" + pdf.Filename + ")"
			}
			fmt.Fprintf(w, "\nPDF: %s\n", where)
		}
	case document.KindMCQs:
		printMCQs(w, doc.MCQ)
	case document.KindFlashcards:
		printDeck(w, doc.Flashcards)
	}
	return nil
}

func printMCQs(w io.Writer, set *document.MCQSet) {
	if set == nil || len(set.Questions) == 0 {
		fmt.Fprintln(w, "No questions.")
		return
	}
	fmt.Fprintf(w, "%s (%d questions)\n", set.Subject, set.TotalQuestions)
	for i, q := range set.Questions {
		fmt.Fprintf(w, "\n%d. %s\n", i+1, q.Question)
		for j, opt := range q.Options {
			mark := " "
			if j == q.Answer {
				mark = "*"
			}
			fmt.Fprintf(w, "  %s %c) %s\n", mark, 'a'+j, opt)
		}
		if q.Explanation != "" {
			fmt.Fprintf(w, "    %s\n", q.Explanation)
		}
	}
}

func printDeck(w io.Writer, deck *document.Deck) {
	if deck == nil || len(deck.Flashcards) == 0 {
		fmt.Fprintln(w, "No flashcards.")
		return
	}
	rows := make([][]string, 0, len(deck.Flashcards))
	for i, c := range deck.Flashcards {
		rows = append(rows, []string{strconv.Itoa(i + 1), c.Question, c.Answer, c.Category})
	}
	fmt.Fprintf(w, "%s (%d cards)\n", deck.Title, deck.TotalCards)
	fmt.Fprintln(w, renderTable([]string{"#", "QUESTION", "ANSWER", "CATEGORY"}, rows, []columnAlignment{alignRight}))
}

// stderrIsTerminal reports whether progress output can be drawn.
func stderrIsTerminal() bool {
	fd := os.Stderr.Fd()
	return isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd)
}
