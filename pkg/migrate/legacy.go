// Package migrate converts configuration files of the legacy TGMiner client
// into the tgminer format.
package migrate

import (
	"bufio"
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/tinyland-inc/tgminer/pkg/config"
)

// Options controls a legacy config migration.
type Options struct {
	LegacyPath string // legacy TGMiner config.json
	OutputPath string // default: config.DefaultPath
	DryRun     bool
	Force      bool
}

// Result summarizes a migration.
type Result struct {
	OutputPath string
	BackupPath string
	Config     *config.Config
	Warnings   []string
}

// legacyConfig holds the keys the legacy client understood. Pointers
// separate absent keys from zero values.
type legacyConfig struct {
	APIKey *struct {
		ID   int64  `json:"id"`
		Hash string `json:"hash"`
	} `json:"api_key"`
	SessionPath       *string           `json:"session_path"`
	DataDir           *string           `json:"data_dir"`
	ChatStdout        *bool             `json:"chat_stdout"`
	WriteRawLogs      *bool             `json:"write_raw_logs"`
	TimestampFormat   *string           `json:"timestamp_format"`
	LogDirectChats    *bool             `json:"log_direct_chats"`
	LogGroupChats     *bool             `json:"log_group_chats"`
	DownloadPhotos    *bool             `json:"download_photos"`
	DownloadDocuments *bool             `json:"download_documents"`
	DocnameFilter     *string           `json:"docname_filter"`
	UpdatesWorkers    *int              `json:"updates_workers"`
	DownloadWorkers   *int              `json:"download_workers"`
	GroupFilters      map[string]string `json:"group_filters"`
	DirectChatFilters map[string]string `json:"direct_chat_filters"`
	UserFilters       map[string]string `json:"user_filters"`
}

// Run converts opts.LegacyPath and writes the result to opts.OutputPath,
// or prints it to out on a dry run. An existing output file is only
// replaced with Force, after it is copied to <output>.bak.
func Run(opts Options, out io.Writer) (*Result, error) {
	if opts.LegacyPath == "" {
		return nil, fmt.Errorf("legacy config path is required")
	}
	outputPath := opts.OutputPath
	if outputPath == "" {
		outputPath = config.DefaultPath
	}

	data, err := os.ReadFile(opts.LegacyPath)
	if err != nil {
		return nil, fmt.Errorf("reading legacy config: %w", err)
	}

	cfg, warnings, err := Convert(data)
	if err != nil {
		return nil, fmt.Errorf("converting %s: %w", opts.LegacyPath, err)
	}
	result := &Result{OutputPath: outputPath, Config: cfg, Warnings: warnings}

	if opts.DryRun {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return result, enc.Encode(cfg)
	}

	if existing, err := os.ReadFile(outputPath); err == nil {
		if !opts.Force {
			return nil, fmt.Errorf("output file already exists: %s (use --force to overwrite)", outputPath)
		}
		result.BackupPath = outputPath + ".bak"
		if err := os.WriteFile(result.BackupPath, existing, 0o600); err != nil {
			return nil, fmt.Errorf("backing up %s: %w", outputPath, err)
		}
	}

	if err := config.SaveConfig(outputPath, cfg); err != nil {
		return nil, fmt.Errorf("writing %s: %w", outputPath, err)
	}
	return result, nil
}

// Convert maps a legacy config document onto config.DefaultConfig. Settings
// with no tgminer equivalent are reported as warnings. The result is
// validated.
func Convert(data []byte) (*config.Config, []string, error) {
	var legacy legacyConfig
	if err := json.Unmarshal(stripComments(data), &legacy); err != nil {
		return nil, nil, fmt.Errorf("%w: parse legacy config: %v", config.ErrConfig, err)
	}

	cfg := config.DefaultConfig()
	var warnings []string
	warn := func(format string, args ...any) {
		warnings = append(warnings, fmt.Sprintf(format, args...))
	}

	if legacy.APIKey != nil {
		warn("api_key (app id %d) is not used; set telegram.token to a bot token", legacy.APIKey.ID)
	}
	if legacy.SessionPath != nil {
		warn("session_path %q is not used; bot sessions are not stored", *legacy.SessionPath)
	}
	if legacy.DownloadWorkers != nil {
		warn("download_workers is not used; media is fetched by the event workers")
	}

	if legacy.DataDir != nil {
		cfg.DataDir = *legacy.DataDir
	}
	setBool(&cfg.ChatStdout, legacy.ChatStdout)
	setBool(&cfg.WriteRawLogs, legacy.WriteRawLogs)
	setBool(&cfg.LogDirectChats, legacy.LogDirectChats)
	setBool(&cfg.LogGroupChats, legacy.LogGroupChats)
	setBool(&cfg.Media.Photo.Download, legacy.DownloadPhotos)
	setBool(&cfg.Media.Document.Download, legacy.DownloadDocuments)
	rewritten := 0
	prefix := func(p string) string {
		out := prefixPattern(p)
		if out != p {
			rewritten++
		}
		return out
	}

	if legacy.DocnameFilter != nil {
		cfg.Media.Document.NameFilter = prefix(*legacy.DocnameFilter)
	}
	if legacy.UpdatesWorkers != nil && *legacy.UpdatesWorkers > 0 {
		cfg.Workers = *legacy.UpdatesWorkers
	}

	if legacy.TimestampFormat != nil {
		layout, err := ConvertTimestampFormat(*legacy.TimestampFormat)
		if err != nil {
			warn("timestamp_format %q kept at default: %v", *legacy.TimestampFormat, err)
		} else {
			cfg.TimestampFormat = layout
		}
	}

	cfg.GroupFilters = prefixPatterns(legacy.GroupFilters, prefix)
	cfg.DirectChatFilters = prefixPatterns(legacy.DirectChatFilters, prefix)
	cfg.UserFilters = prefixPatterns(legacy.UserFilters, prefix)
	if rewritten > 0 {
		warn("%d filter pattern(s) given a trailing .* to keep matching at the start of the value; tgminer patterns must match the whole value", rewritten)
	}

	if err := cfg.Validate(); err != nil {
		return nil, warnings, err
	}
	return cfg, warnings, nil
}

// prefixPattern turns a pattern the legacy client matched at the start of a
// value into one that matches the whole value.
func prefixPattern(p string) string {
	if p == "" || (strings.HasSuffix(p, ".*") && !strings.HasSuffix(p, `\.*`)) {
		return p
	}
	return "(?:" + p + ").*"
}

func prefixPatterns(m map[string]string, prefix func(string) string) map[string]string {
	if m == nil {
		return nil
	}
	out := make(map[string]string, len(m))
	for field, p := range m {
		out[field] = prefix(p)
	}
	return out
}

func setBool(dst, src *bool) {
	if src != nil {
		*dst = *src
	}
}

// stripComments drops whole-line comments starting with //, # or ;.
func stripComments(data []byte) []byte {
	var out bytes.Buffer
	sc := bufio.NewScanner(bytes.NewReader(data))
	sc.Buffer(make([]byte, 0, 64*1024), len(data)+1)
	for sc.Scan() {
		line := sc.Text()
		trimmed := strings.TrimSpace(line)
		if strings.HasPrefix(trimmed, "//") || strings.HasPrefix(trimmed, "#") || strings.HasPrefix(trimmed, ";") {
			continue
		}
		out.WriteString(line)
		out.WriteByte('\n')
	}
	return out.Bytes()
}

// PrintSummary reports where the converted config went and what could not
// be carried over.
func PrintSummary(w io.Writer, r *Result) {
	fmt.Fprintf(w, "Config written to %s\n", r.OutputPath)
	if r.BackupPath != "" {
		fmt.Fprintf(w, "Previous file saved as %s\n", r.BackupPath)
	}
	if len(r.Warnings) > 0 {
		fmt.Fprintln(w, "\nWarnings:")
		for _, warning := range r.Warnings {
			fmt.Fprintf(w, "  - %s\n", warning)
		}
	}
}
