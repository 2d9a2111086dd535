package main

import (
	"flag"
	"fmt"
	"os"
	"strings"

	"github.com/strager/ctree"
)

func showUsage() {
	fmt.Fprintf(os.Stderr, `ctree - inspect and annotate decompiled function trees

Usage:
    ctree <command> [arguments]

Commands:
    dump <file>     Print the pseudocode of a function
    check <file>    Verify the tree of a function
    walk <file>     List the items of a function with their addresses
    shell <file>    Annotate a function interactively
    help            Show this help message

Functions are read in the s-expression form written by "ctree dump -sexpr".
Saved annotations are applied when store_dir is set in the configuration.

Examples:
    ctree dump sub_401000.ct
    ctree check -config work/ctree.yaml sub_401000.ct
    ctree shell sub_401000.ct

Use "ctree <command> -h" for more information about a command.
`)
}

// commonFlags registers the flags every command takes.
func commonFlags(fs *flag.FlagSet) *string {
	return fs.String("config", "ctree.yaml", "Configuration file")
}

func parseCommand(fs *flag.FlagSet, args []string, usage, doc string) {
	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: ctree %s\n", usage)
		fmt.Fprintf(os.Stderr, "%s\n\n", doc)
		fmt.Fprintf(os.Stderr, "Flags:\n")
		fs.PrintDefaults()
	}
	if err := fs.Parse(args); err != nil {
		os.Exit(1)
	}
	if fs.NArg() != 1 {
		fmt.Fprintf(os.Stderr, "Error: expected exactly one file argument\n")
		fs.Usage()
		os.Exit(1)
	}
}

// loadFunc reads a function file and applies the saved annotations.
func loadFunc(configPath, filename string) (*ctree.Cfunc, config) {
	cfg, err := loadConfig(configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error reading configuration: %v\n", err)
		os.Exit(1)
	}
	types, err := cfg.types()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error in configuration: %v\n", err)
		os.Exit(1)
	}
	src, err := os.ReadFile(filename)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error reading file %s: %v\n", filename, err)
		os.Exit(1)
	}
	cf, err := ctree.ParseFunc(string(src), types)
	if err != nil {
		fmt.Fprintf(os.Stderr, "%s: %v\n", filename, err)
		os.Exit(1)
	}
	if s := cfg.store(); s != nil {
		if err := cf.RestoreAnnotations(s); err != nil {
			fmt.Fprintf(os.Stderr, "Warning: annotations of %#x ignored: %v\n", cf.EntryEA, err)
		}
	}
	return cf, cfg
}

func dumpCommand(args []string) {
	fs := flag.NewFlagSet("dump", flag.ExitOnError)
	configPath := commonFlags(fs)
	sexpr := fs.Bool("sexpr", false, "Print the s-expression form instead of pseudocode")
	parseCommand(fs, args, "dump [-sexpr] <file>", "Print the pseudocode of a function")

	cf, _ := loadFunc(*configPath, fs.Arg(0))
	defer cf.Release()
	if *sexpr {
		fmt.Println(ctree.DumpFunc(cf))
		return
	}
	for _, line := range cf.Pseudocode() {
		fmt.Println(line)
	}
}

func checkCommand(args []string) {
	fs := flag.NewFlagSet("check", flag.ExitOnError)
	configPath := commonFlags(fs)
	allowUnused := fs.Bool("allow-unused-labels", false, "Accept labels no goto refers to")
	parseCommand(fs, args, "check [-allow-unused-labels] <file>", "Verify the tree of a function")

	filename := fs.Arg(0)
	cf, _ := loadFunc(*configPath, filename)
	defer cf.Release()

	failed := false
	if err := cf.Verify(*allowUnused); err != nil {
		fmt.Printf("%s: %v\n", filename, err)
		failed = true
	}
	if cf.HasOrphanCmts() {
		for _, loc := range cf.UserCmts.Keys() {
			if len(cf.FindByEA(loc.EA)) == 0 {
				fmt.Printf("%s: orphan comment at %s\n", filename, loc)
			}
		}
		failed = true
	}
	if failed {
		os.Exit(1)
	}
	fmt.Printf("%s: no errors found\n", filename)
}

func walkCommand(args []string) {
	fs := flag.NewFlagSet("walk", flag.ExitOnError)
	configPath := commonFlags(fs)
	insnsOnly := fs.Bool("s", false, "List statements only")
	parseCommand(fs, args, "walk [-s] <file>", "List the items of a function with their addresses")

	cf, _ := loadFunc(*configPath, fs.Arg(0))
	defer cf.Release()

	flags := ctree.CvParents
	if *insnsOnly {
		flags |= ctree.CvInsnsOnly
	}
	show := func(w *ctree.Walker, it ctree.Item) {
		ea := "-"
		if h := ctree.HeaderOf(it); h.EA != ctree.BadAddr {
			ea = fmt.Sprintf("%#x", h.EA)
		}
		fmt.Printf("%s%s %s\n", strings.Repeat("  ", len(w.Parents())), it.Op(), ea)
	}
	ctree.Walk(cf.Body, flags, ctree.VisitorFuncs{
		Insn: func(w *ctree.Walker, i *ctree.Insn) int {
			show(w, i)
			return 0
		},
		Expr: func(w *ctree.Walker, e *ctree.Expr) int {
			show(w, e)
			return 0
		},
	})
}

func shellCommand(args []string) {
	fs := flag.NewFlagSet("shell", flag.ExitOnError)
	configPath := commonFlags(fs)
	parseCommand(fs, args, "shell <file>", "Annotate a function interactively")

	cf, cfg := loadFunc(*configPath, fs.Arg(0))
	defer cf.Release()
	if err := runShell(cf, cfg); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func main() {
	if len(os.Args) < 2 {
		showUsage()
		os.Exit(1)
	}

	command := os.Args[1]
	args := os.Args[2:]

	switch command {
	case "dump":
		dumpCommand(args)
	case "check":
		checkCommand(args)
	case "walk":
		walkCommand(args)
	case "shell":
		shellCommand(args)
	case "help", "-h", "--help":
		showUsage()
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n\n", command)
		showUsage()
		os.Exit(1)
	}
}
