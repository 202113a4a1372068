package deploy

import (
	"context"
	"fmt"
	"strings"

	"github.com/kballard/go-shellquote"

	"deploykit/remote"
)

const djangoSetup = "import os; os.environ['DJANGO_SETTINGS_MODULE']='settings';"

// Apt installs one or more system packages.
func (d *Deployer) Apt(ctx context.Context, packages string) (string, error) {
	return d.Remote.Sudo(ctx, "apt-get install -y -q "+packages)
}

// Pip installs Python packages within the virtualenv.
func (d *Deployer) Pip(ctx context.Context, packages string) (string, error) {
	return d.Remote.Run(ctx, "pip install "+packages, remote.WithScope(d.virtualenv()))
}

// Postgres runs command as the postgres user. psql invocations are not echoed since they
// may carry credentials.
func (d *Deployer) Postgres(ctx context.Context, command string) (string, error) {
	opts := []remote.Option{remote.AsUser("postgres")}
	if strings.HasPrefix(command, "psql") {
		opts = append(opts, remote.Quiet())
	}
	return d.Remote.Sudo(ctx, command, opts...)
}

// Psql runs sql against the project's database, echoing the statement when show is set.
func (d *Deployer) Psql(ctx context.Context, sql string, show bool) (string, error) {
	out, err := d.Postgres(ctx, "psql -c "+shellquote.Join(sql))
	if err != nil {
		return out, err
	}
	if show {
		d.Printer.Command(sql)
	}
	return out, nil
}

// Backup dumps the project's database to filename on the server.
func (d *Deployer) Backup(ctx context.Context, filename string) (string, error) {
	return d.Postgres(ctx, fmt.Sprintf("pg_dump -Fc %s > %s", d.Config.ProjectName, shellquote.Join(filename)))
}

// Restore loads the dump at filename into the project's database.
func (d *Deployer) Restore(ctx context.Context, filename string) (string, error) {
	return d.Postgres(ctx, fmt.Sprintf("pg_restore -c -d %s %s", d.Config.ProjectName, shellquote.Join(filename)))
}

// Python runs code in the project's virtualenv with Django settings loaded, echoing the
// code itself rather than the wrapping command when show is set.
func (d *Deployer) Python(ctx context.Context, code string, show bool) (string, error) {
	command := "python -c " + shellquote.Join(djangoSetup+code)
	out, err := d.Remote.Run(ctx, command, remote.Quiet(), remote.WithScope(d.project()))
	if err != nil {
		return out, err
	}
	if show {
		d.Printer.Command(code)
	}
	return out, nil
}

// Static returns the live STATIC_ROOT directory.
func (d *Deployer) Static(ctx context.Context) (string, error) {
	out, err := d.Python(ctx, "from django.conf import settings;print(settings.STATIC_ROOT)", false)
	if err != nil {
		return "", err
	}
	lines := strings.Split(out, "\n")
	return strings.TrimSpace(lines[len(lines)-1]), nil
}

// Manage runs a Django management command.
func (d *Deployer) Manage(ctx context.Context, command string) (string, error) {
	return d.Remote.Run(ctx, d.Config.Manage+" "+command)
}

// shadow replaces the quoted secret in text with asterisks of the same length.
func shadow(text, secret string) string {
	if secret == "" {
		return text
	}
	return strings.ReplaceAll(text, "'"+secret+"'", "'"+strings.Repeat("*", len(secret))+"'")
}

// sqlString escapes s for use inside a single-quoted SQL literal.
func sqlString(s string) string {
	return strings.ReplaceAll(s, "'", "''")
}

// pyString escapes s for use inside a single-quoted Python literal.
func pyString(s string) string {
	return strings.NewReplacer(`\`, `\\`, `'`, `\'`).Replace(s)
}
