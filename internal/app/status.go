package app

import (
	"fmt"
	"io"
	"strconv"

	"github.com/olekukonko/tablewriter"

	"evidencebot/internal/domain"
	"evidencebot/internal/evidence"
)

func renderStatus(w io.Writer, counts evidence.Counts, files []evidence.File, runs []domain.RunRecord) error {
	fmt.Fprintf(w, "Evidence: %d sucessos, %d falhas, %d total\n\n", counts.Successes, counts.Failures, counts.Total)

	if len(files) > 0 {
		table := tablewriter.NewWriter(w)
		table.Header("Ticket", "Status", "Arquivo", "Tamanho")
		for _, f := range files {
			if err := table.Append([]string{f.TicketKey, f.Status, f.Filename, strconv.FormatInt(f.Size, 10)}); err != nil {
				return err
			}
		}
		if err := table.Render(); err != nil {
			return err
		}
		fmt.Fprintln(w)
	}

	if len(runs) == 0 {
		fmt.Fprintln(w, "No runs recorded.")
		return nil
	}
	table := tablewriter.NewWriter(w)
	table.Header("Run", "Arquivo", "Início", "Entradas", "Sucessos", "Falhas", "Erros")
	for _, r := range runs {
		row := []string{
			shortID(r.ID),
			r.Source,
			r.StartedAt.Local().Format("2006-01-02 15:04"),
			strconv.Itoa(r.Entries),
			strconv.Itoa(r.Passed),
			strconv.Itoa(r.Failed),
			strconv.Itoa(r.Errors),
		}
		if err := table.Append(row); err != nil {
			return err
		}
	}
	return table.Render()
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
