package main

import (
	"flag"
	"fmt"
	"os"
	"sort"
	"strings"
	"text/tabwriter"

	"gopkg.in/yaml.v3"

	"github.com/marko911/chainkit/internal/adapter"
	"github.com/marko911/chainkit/internal/config"
)

func adaptersCmd(subcmd string, args []string) {
	switch subcmd {
	case "list":
		adaptersList(args)
	case "describe":
		adaptersDescribe(args)
	default:
		fmt.Printf("Unknown adapters command: %s\n", subcmd)
		os.Exit(1)
	}
}

func adaptersList(args []string) {
	fs := flag.NewFlagSet("adapters list", flag.ExitOnError)
	cf := addCommonFlags(fs)
	module := fs.String("module", "", "only list this module kind")
	fs.Parse(args)

	a, err := newApp(cf, config.Overrides{})
	if err != nil {
		fatal("%v", err)
	}

	kinds := a.registry.Modules()
	if *module != "" {
		kinds = []adapter.ModuleKind{adapter.ModuleKind(*module)}
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "MODULE\tNAME\tTYPE\tENVIRONMENTS\tAVAILABLE\tFEATURES")
	fmt.Fprintln(w, "------\t----\t----\t------------\t---------\t--------")
	for _, kind := range kinds {
		for _, md := range a.registry.List(kind) {
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%t\t%s\n",
				kind, md.Name, md.AdapterType, environments(md.Environment),
				adapter.Matches(md.Environment, a.cfg.Env()), strings.Join(md.Features, ","))
		}
	}
	w.Flush()

	if len(a.cfg.Adapters) > 0 {
		aliases := make([]string, 0, len(a.cfg.Adapters))
		for alias := range a.cfg.Adapters {
			aliases = append(aliases, alias)
		}
		sort.Strings(aliases)

		fmt.Println()
		w = tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "PRESET\tMODULE\tADAPTER")
		fmt.Fprintln(w, "------\t------\t-------")
		for _, alias := range aliases {
			p := a.cfg.Adapters[alias]
			fmt.Fprintf(w, "%s\t%s\t%s\n", alias, p.Module, p.Name)
		}
		w.Flush()
	}
}

func environments(env *adapter.EnvironmentRequirements) string {
	if env == nil {
		return "any"
	}
	out := make([]string, len(env.SupportedEnvironments))
	for i, e := range env.SupportedEnvironments {
		out[i] = string(e)
	}
	return strings.Join(out, ",")
}

// adapterView is the printable form of adapter.Metadata.
type adapterView struct {
	Name         string                `yaml:"name"`
	Module       string                `yaml:"module"`
	Type         string                `yaml:"type"`
	Environments []string              `yaml:"environments"`
	Limitations  []string              `yaml:"limitations,omitempty"`
	Available    bool                  `yaml:"available"`
	Requirements []adapter.Requirement `yaml:"requirements"`
	ErrorCodes   map[string]string     `yaml:"errorCodes,omitempty"`
	Features     []string              `yaml:"features,omitempty"`
}

func adaptersDescribe(args []string) {
	fs := flag.NewFlagSet("adapters describe", flag.ExitOnError)
	cf := addCommonFlags(fs)
	fs.Parse(args)

	if fs.NArg() < 2 {
		fmt.Println("Usage: adapterctl adapters describe <module> <name>")
		os.Exit(1)
	}

	a, err := newApp(cf, config.Overrides{})
	if err != nil {
		fatal("%v", err)
	}

	kind, name := adapter.ModuleKind(fs.Arg(0)), fs.Arg(1)
	md, ok := a.registry.Lookup(kind, name)
	if !ok {
		fatal("%v", &adapter.Error{Kind: adapter.KindUnknownAdapter, Module: kind, Adapter: name})
	}

	view := adapterView{
		Name:         md.Name,
		Module:       string(md.Module),
		Type:         md.AdapterType,
		Environments: strings.Split(environments(md.Environment), ","),
		Available:    adapter.Matches(md.Environment, a.cfg.Env()),
		Requirements: md.Requirements,
		ErrorCodes:   md.ErrorMap,
		Features:     md.Features,
	}
	if md.Environment != nil {
		view.Limitations = md.Environment.Limitations
	}

	enc := yaml.NewEncoder(os.Stdout)
	enc.SetIndent(2)
	if err := enc.Encode(view); err != nil {
		fatal("encode: %v", err)
	}
	enc.Close()
}
