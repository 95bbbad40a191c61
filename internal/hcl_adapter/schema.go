package hcl_adapter

import "github.com/hashicorp/hcl/v2"

// fileRoot is a struct used to decode all possible top-level blocks from any file.
type fileRoot struct {
	Configs []*configBlock `hcl:"config,block"`
	Remain  hcl.Body       `hcl:",remain"`
}

type configBlock struct {
	Name        string            `hcl:"name,label"`
	Description string            `hcl:"description,optional"`
	Concrete    bool              `hcl:"concrete,optional"`
	Components  []*componentBlock `hcl:"component,block"`
	Run         *runBlock         `hcl:"run,block"`
}

// componentBlock keeps every substitutable attribute as an expression; they
// are evaluated in dependency order once the directories and artifact map
// are known.
type componentBlock struct {
	Name      string         `hcl:"name,label"`
	Repos     []*repoBlock   `hcl:"repo,block"`
	SourceDir hcl.Expression `hcl:"sourcedir,optional"`
	BuildDir  hcl.Expression `hcl:"builddir,optional"`
	Params    hcl.Expression `hcl:"params,optional"`
	Prebuild  hcl.Expression `hcl:"prebuild,optional"`
	Build     hcl.Expression `hcl:"build,optional"`
	Postbuild hcl.Expression `hcl:"postbuild,optional"`
	Clean     hcl.Expression `hcl:"clean,optional"`
	DependsOn []string       `hcl:"depends_on,optional"`
	Artifacts hcl.Expression `hcl:"artifacts,optional"`
}

type repoBlock struct {
	Dir      string `hcl:"dir,label"`
	Remote   string `hcl:"remote"`
	Revision string `hcl:"revision,optional"`
}

type runBlock struct {
	Name      hcl.Expression   `hcl:"name,optional"`
	RunVars   []*rtvarBlock    `hcl:"rtvar,block"`
	Params    hcl.Expression   `hcl:"params,optional"`
	Prerun    hcl.Expression   `hcl:"prerun,optional"`
	Run       hcl.Expression   `hcl:"run,optional"`
	Terminals []*terminalBlock `hcl:"terminal,block"`
}

type rtvarBlock struct {
	Name    string         `hcl:"name,label"`
	Type    string         `hcl:"type,optional"`
	Default hcl.Expression `hcl:"default,optional"`
}

type terminalBlock struct {
	Name      string         `hcl:"name,label"`
	Friendly  string         `hcl:"friendly,optional"`
	Type      string         `hcl:"type"`
	PortRegex string         `hcl:"port_regex,optional"`
	Bridge    hcl.Expression `hcl:"bridge,optional"`
}
