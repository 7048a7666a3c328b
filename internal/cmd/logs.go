package cmd

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/efiop/dvc/internal/logging"
	"github.com/efiop/dvc/internal/ui"
)

var logsCmd = &cobra.Command{
	Use:   "logs",
	Short: "View the repository log",
	Long: `View and filter .dvc/tmp/dvc.log.

The log is only written when logging.enabled is set in the config.

Examples:
  # Show the last 50 entries
  dvc logs

  # Show only lock conflicts and failures
  dvc logs --level warn

  # Search for a path
  dvc logs --grep "data/foo"`,
	Args: cobra.NoArgs,
	RunE: runLogs,
}

var (
	logsTail  int
	logsLevel string
	logsSince string
	logsGrep  string
)

func init() {
	rootCmd.AddCommand(logsCmd)

	logsCmd.Flags().IntVarP(&logsTail, "tail", "n", 50, "Number of entries to show (0 for all)")
	logsCmd.Flags().StringVar(&logsLevel, "level", "", "Filter by minimum level (debug/info/warn/error)")
	logsCmd.Flags().StringVar(&logsSince, "since", "", "Show entries since duration ago (e.g., 1h, 30m)")
	logsCmd.Flags().StringVar(&logsGrep, "grep", "", "Filter entries matching pattern (regex)")
}

// logEntry represents a parsed JSON log line
type logEntry struct {
	Time    time.Time      `json:"time"`
	Level   string         `json:"level"`
	Msg     string         `json:"msg"`
	Command string         `json:"command,omitempty"`
	PID     int            `json:"pid,omitempty"`
	Stage   string         `json:"stage,omitempty"`
	Extra   map[string]any `json:"-"`
}

// UnmarshalJSON captures fields beyond the known ones in Extra.
func (e *logEntry) UnmarshalJSON(data []byte) error {
	type Alias logEntry
	aux := &struct {
		*Alias
	}{
		Alias: (*Alias)(e),
	}
	if err := json.Unmarshal(data, aux); err != nil {
		return err
	}

	var all map[string]any
	if err := json.Unmarshal(data, &all); err != nil {
		return err
	}
	for _, known := range []string{"time", "level", "msg", "command", "pid", "stage"} {
		delete(all, known)
	}
	if len(all) > 0 {
		e.Extra = all
	}
	return nil
}

// logFilter holds the parsed filter flags.
type logFilter struct {
	minLevel int
	since    time.Time
	grep     *regexp.Regexp
}

// levelPriority returns the priority of a log level for filtering
func levelPriority(level string) int {
	switch strings.ToUpper(level) {
	case logging.LevelDebug:
		return 0
	case logging.LevelInfo:
		return 1
	case logging.LevelWarn:
		return 2
	case logging.LevelError:
		return 3
	default:
		return -1
	}
}

func (f logFilter) passes(entry *logEntry) bool {
	if f.minLevel >= 0 && levelPriority(entry.Level) < f.minLevel {
		return false
	}
	if !f.since.IsZero() && entry.Time.Before(f.since) {
		return false
	}
	if f.grep != nil {
		searchText := entry.Msg + " " + entry.Stage
		for _, v := range entry.Extra {
			searchText += " " + fmt.Sprintf("%v", v)
		}
		if !f.grep.MatchString(searchText) {
			return false
		}
	}
	return true
}

func formatLogEntry(s ui.Styles, entry *logEntry) string {
	var sb strings.Builder

	sb.WriteString(s.Muted.Render("[" + entry.Time.Format("15:04:05.000") + "]"))
	sb.WriteString(" ")

	level := "[" + strings.ToUpper(entry.Level) + "]"
	switch strings.ToUpper(entry.Level) {
	case logging.LevelWarn:
		level = s.Warning.Render(level)
	case logging.LevelError:
		level = s.Error.Render(level)
	case logging.LevelDebug:
		level = s.Muted.Render(level)
	}
	sb.WriteString(level)
	sb.WriteString(" ")
	sb.WriteString(entry.Msg)

	if entry.PID != 0 {
		sb.WriteString(s.Muted.Render(fmt.Sprintf(" pid=%d", entry.PID)))
	}
	if entry.Stage != "" {
		sb.WriteString(s.Muted.Render(" stage=" + entry.Stage))
	}

	keys := make([]string, 0, len(entry.Extra))
	for k := range entry.Extra {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		sb.WriteString(fmt.Sprintf(" %s=%v", k, entry.Extra[k]))
	}

	return sb.String()
}

func runLogs(cmd *cobra.Command, args []string) error {
	r, err := findRepo(cmd)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	logPath := filepath.Join(r.TmpDir(), logging.LogFileName)
	if _, err := os.Stat(logPath); os.IsNotExist(err) {
		_, _ = fmt.Fprintln(out, "No log found. Set logging.enabled: true to record one.")
		return nil
	}

	filter := logFilter{minLevel: -1}
	if logsLevel != "" {
		filter.minLevel = levelPriority(logging.ParseLevel(logsLevel))
	}
	if logsSince != "" {
		d, err := time.ParseDuration(logsSince)
		if err != nil {
			return fmt.Errorf("invalid duration format: %w", err)
		}
		filter.since = time.Now().Add(-d)
	}
	if logsGrep != "" {
		filter.grep, err = regexp.Compile(logsGrep)
		if err != nil {
			return fmt.Errorf("invalid grep pattern: %w", err)
		}
	}

	return displayLogs(out, logPath, logsTail, filter)
}

// displayLogs reads the log file and writes the filtered tail to out.
func displayLogs(out io.Writer, logPath string, tail int, filter logFilter) error {
	file, err := os.Open(logPath)
	if err != nil {
		return fmt.Errorf("failed to open log file: %w", err)
	}
	defer file.Close()

	styles := ui.NewStyles(out)
	var entries []string
	scanner := bufio.NewScanner(file)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	for scanner.Scan() {
		line := scanner.Text()
		if line == "" {
			continue
		}

		var entry logEntry
		if err := json.Unmarshal([]byte(line), &entry); err != nil {
			entries = append(entries, line)
			continue
		}
		if !filter.passes(&entry) {
			continue
		}
		entries = append(entries, formatLogEntry(styles, &entry))
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("error reading log file: %w", err)
	}

	if tail > 0 && len(entries) > tail {
		entries = entries[len(entries)-tail:]
	}
	for _, entry := range entries {
		_, _ = fmt.Fprintln(out, entry)
	}
	if len(entries) == 0 {
		_, _ = fmt.Fprintln(out, "No matching log entries found.")
	}
	return nil
}
