package ui

import (
	"fmt"
	"io"
	"strings"

	"github.com/efiop/dvc/internal/rwlock"
)

// LockRow is one line of lock status output.
type LockRow struct {
	Path  string `json:"path"`
	Mode  string `json:"mode"`
	PIDs  []int  `json:"pids"`
	Alive bool   `json:"alive"`
}

// LockRows flattens state into rows ordered by path. Rows listed in stale
// are marked as not alive.
func LockRows(state rwlock.State, stale []rwlock.StaleEntry) []LockRow {
	dead := make(map[string]bool, len(stale))
	for _, s := range stale {
		dead[s.Path] = true
	}

	rows := make([]LockRow, 0, len(state))
	for _, path := range state.Paths() {
		entry := state[path]
		if entry.Empty() {
			continue
		}
		rows = append(rows, LockRow{
			Path:  path,
			Mode:  entry.Mode(),
			PIDs:  entry.Holders(),
			Alive: !dead[path],
		})
	}
	return rows
}

// RenderLocks writes rows as a table, or a short notice when there are none.
func RenderLocks(out io.Writer, rows []LockRow) error {
	s := NewStyles(out)
	if len(rows) == 0 {
		_, err := fmt.Fprintln(out, s.Muted.Render("No path locks held."))
		return err
	}

	t := NewTable(out, "PATH", "MODE", "PIDS", "STATE")
	stale := 0
	for _, row := range rows {
		state := s.Success.Render("held")
		if !row.Alive {
			state = s.Warning.Render("stale")
			stale++
		}
		t.Row(row.Path, row.Mode, joinPIDs(row.PIDs), state)
	}
	if err := t.Flush(); err != nil {
		return err
	}

	if stale > 0 {
		_, err := fmt.Fprintf(out, "\n%s\n", s.Warning.Render(
			fmt.Sprintf("%d stale lock(s); run `dvc lock clear <path>` once the holders are confirmed gone.", stale)))
		return err
	}
	return nil
}

func joinPIDs(pids []int) string {
	parts := make([]string, len(pids))
	for i, pid := range pids {
		parts[i] = fmt.Sprint(pid)
	}
	return strings.Join(parts, ",")
}
