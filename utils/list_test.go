package utils

import (
	"bytes"
	"testing"
	"text/tabwriter"
	"time"

	"github.com/stretchr/testify/assert"

	"deploykit/templates"
	"deploykit/types"
)

func TestTabWriteTemplates(t *testing.T) {
	output := "Name\tLocal\t\t\tRemote\t\t\t\t\tOwner\tMode\tReload\n" +
		"cron\tdeploy/crontab\t\t/etc/cron.d/myproj\t\t\troot\t600\t-\n" +
		"nginx\tdeploy/nginx.conf\t/etc/nginx/sites-enabled/myproj.conf\t-\t-\tservice nginx restart\n"

	buf := &bytes.Buffer{}
	w := tabwriter.NewWriter(buf, 0, 8, 1, '\t', 0)
	specs := []templates.Spec{
		{Name: "cron", LocalPath: "deploy/crontab", RemotePath: "/etc/cron.d/myproj", Owner: "root", Mode: "600"},
		{Name: "nginx", LocalPath: "deploy/nginx.conf", RemotePath: "/etc/nginx/sites-enabled/myproj.conf", ReloadCommand: "service nginx restart"},
	}
	assert.NoError(t, TabWriteTemplates(w, specs))
	assert.NoError(t, w.Flush())
	assert.Equal(t, output, buf.String())
}

func TestTabWriteRecords(t *testing.T) {
	now := time.Date(2024, 5, 3, 12, 0, 0, 0, time.UTC)
	buf := &bytes.Buffer{}
	records := []types.Record{
		{
			Host:                    "10.0.0.1",
			DeployTool:              "git",
			Commit:                  "0123456789abcdef",
			TemplatesChanged:        []string{"cron", "nginx"},
			RequirementsReinstalled: true,
			Backup:                  true,
			DeployedAt:              now.Add(-30 * time.Minute),
		},
		{Host: "10.0.0.2", DeployTool: "rsync", DeployedAt: now.Add(-5 * time.Hour)},
		{Host: "10.0.0.3", DeployTool: "rsync", DeployedAt: now.Add(-48 * time.Hour)},
	}
	assert.NoError(t, TabWriteRecords(buf, records, now))
	assert.Equal(t, "Host\tTool\tCommit\tTemplates\tRequirements\tBackup\tAge\n"+
		"10.0.0.1\tgit\t0123456\tcron,nginx\treinstalled\ttrue\t30m\n"+
		"10.0.0.2\trsync\t-\t-\tunchanged\tfalse\t5.0h\n"+
		"10.0.0.3\trsync\t-\t-\tunchanged\tfalse\t2.00d\n", buf.String())
}
