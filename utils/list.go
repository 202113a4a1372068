package utils

import (
	"fmt"
	"io"
	"strings"
	"time"

	"deploykit/templates"
	"deploykit/types"
)

// TabWriteTemplates writes one line per template.
func TabWriteTemplates(w io.Writer, specs []templates.Spec) error {
	numBytes, err := fmt.Fprintln(w, "Name\tLocal\tRemote\tOwner\tMode\tReload")
	if err != nil || numBytes == 0 {
		return err
	}
	for _, s := range specs {
		numBytes, err = fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\n", s.Name, s.LocalPath, s.RemotePath,
			dash(s.Owner), dash(s.Mode), dash(s.ReloadCommand))
		if err != nil || numBytes == 0 {
			return err
		}
	}
	return nil
}

// TabWriteRecords writes the last deploy of every host, age relative to now.
func TabWriteRecords(w io.Writer, records []types.Record, now time.Time) error {
	numBytes, err := fmt.Fprintln(w, "Host\tTool\tCommit\tTemplates\tRequirements\tBackup\tAge")
	if err != nil || numBytes == 0 {
		return err
	}
	for _, r := range records {
		reqs := "unchanged"
		if r.RequirementsReinstalled {
			reqs = "reinstalled"
		}
		numBytes, err = fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%t\t%s\n", r.Host, r.DeployTool,
			dash(shortCommit(r.Commit)), dash(strings.Join(r.TemplatesChanged, ",")), reqs, r.Backup,
			age(now.Sub(r.DeployedAt)))
		if err != nil || numBytes == 0 {
			return err
		}
	}
	return nil
}

func age(d time.Duration) string {
	switch {
	case d.Hours() < 1:
		return fmt.Sprintf("%.0fm", d.Minutes())
	case d.Hours()/24 < 1:
		return fmt.Sprintf("%.1fh", d.Hours())
	default:
		return fmt.Sprintf("%.2fd", d.Hours()/24)
	}
}

func shortCommit(commit string) string {
	if len(commit) > 7 {
		return commit[:7]
	}
	return commit
}

func dash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
