package types

import (
	"errors"
	"time"
)

// Record describes one successful deploy of a project to a host.
type Record struct {
	// Project is the project name the deploy was made for
	Project string `json:"project"`
	// Host is the address the deploy ran against
	Host string `json:"host"`
	// DeployedAt is when the deploy finished
	DeployedAt time.Time `json:"deployedAt"`
	// DeployTool is the tool the code was shipped with, rsync or git
	DeployTool string `json:"deployTool"`
	// Commit is the local HEAD at deploy time, empty outside a git checkout
	Commit string `json:"commit,omitempty"`
	// TemplatesChanged lists the templates that were uploaded by the deploy
	TemplatesChanged []string `json:"templatesChanged,omitempty"`
	// RequirementsReinstalled is set when the Python requirements were reinstalled
	RequirementsReinstalled bool `json:"requirementsReinstalled"`
	// Backup is set when last.db, last.tar and last.commit were refreshed
	Backup bool `json:"backup"`
}

// ErrNoRecord is returned by backends when a host has never been deployed to.
var ErrNoRecord = errors.New("no deploy record")
