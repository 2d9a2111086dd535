package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/peterh/liner"
	"github.com/strager/ctree"
)

const shellHelp = `Commands:
    show                          print the pseudocode
    dump                          print the s-expression form
    cmt <ea> <itp> [text]         set or delete a comment
    label <n> [name]              name a label
    numform <ea> <opnum> <radix>  display literals as hex, dec, oct, bin or char
    collapse <ea> <kind>          toggle the collapsed form of an item
    union <ea> <m,...>            select union members
    rename <var> <name>           rename a variable
    save                          store the annotations
    quit                          leave the shell
`

var errUsage = errors.New("wrong number of arguments")

// session holds the function being annotated by the shell.
type session struct {
	cf    *ctree.Cfunc
	store ctree.Store
	dirty bool
}

func runShell(cf *ctree.Cfunc, cfg config) error {
	s := &session{cf: cf, store: cfg.store()}

	line := liner.NewLiner()
	defer line.Close()
	line.SetCtrlCAborts(true)
	if cfg.History != "" {
		if f, err := os.Open(cfg.History); err == nil {
			line.ReadHistory(f)
			f.Close()
		}
		defer func() {
			if f, err := os.Create(cfg.History); err == nil {
				line.WriteHistory(f)
				f.Close()
			}
		}()
	}

	s.exec("show", os.Stdout)
	for {
		input, err := line.Prompt("ctree> ")
		if err == liner.ErrPromptAborted || err == io.EOF {
			break
		}
		if err != nil {
			return err
		}
		if strings.TrimSpace(input) == "" {
			continue
		}
		line.AppendHistory(input)
		quit, err := s.exec(input, os.Stdout)
		if err != nil {
			fmt.Fprintf(os.Stdout, "error: %v\n", err)
		}
		if quit {
			break
		}
	}
	if s.dirty {
		fmt.Fprintln(os.Stdout, "warning: unsaved annotations discarded")
	}
	return nil
}

// exec runs one shell command, writing its output to w.
func (s *session) exec(input string, w io.Writer) (quit bool, err error) {
	fields := strings.Fields(input)
	if len(fields) == 0 {
		return false, nil
	}
	cmd, args := fields[0], fields[1:]
	switch cmd {
	case "show":
		for _, l := range s.cf.Pseudocode() {
			fmt.Fprintln(w, l)
		}
	case "dump":
		fmt.Fprintln(w, ctree.DumpFunc(s.cf))
	case "help", "?":
		fmt.Fprint(w, shellHelp)
	case "cmt":
		err = s.comment(input, args)
	case "label":
		err = s.label(args)
	case "numform":
		err = s.numform(args)
	case "collapse":
		err = s.collapse(args)
	case "union":
		err = s.union(args)
	case "rename":
		err = s.rename(args)
	case "save":
		err = s.save()
		if err == nil {
			fmt.Fprintln(w, "saved")
		}
	case "quit", "exit":
		return true, nil
	default:
		return false, fmt.Errorf("unknown command %q, try help", cmd)
	}
	if err != nil {
		return false, fmt.Errorf("%s: %w", cmd, err)
	}
	return false, nil
}

func parseEA(s string) (uint64, error) {
	ea, err := strconv.ParseUint(s, 0, 64)
	if err != nil {
		return 0, fmt.Errorf("bad address %q", s)
	}
	return ea, nil
}

func (s *session) comment(input string, args []string) error {
	if len(args) < 2 {
		return errUsage
	}
	ea, err := parseEA(args[0])
	if err != nil {
		return err
	}
	itp, err := ctree.ParseItemPreciser(args[1])
	if err != nil {
		return err
	}
	// the text keeps its inner spacing
	text := ""
	if len(args) > 2 {
		rest := input[strings.Index(input, args[1])+len(args[1]):]
		text = strings.TrimSpace(rest)
	}
	s.cf.SetUserCmt(ctree.TreeLoc{EA: ea, Itp: itp}, text)
	s.dirty = true
	return nil
}

func (s *session) label(args []string) error {
	if len(args) < 1 || len(args) > 2 {
		return errUsage
	}
	n, err := strconv.Atoi(args[0])
	if err != nil || n < 0 {
		return fmt.Errorf("bad label %q", args[0])
	}
	if s.cf.FindLabel(n) == nil {
		return fmt.Errorf("no label %d", n)
	}
	name := ""
	if len(args) == 2 {
		name = args[1]
	}
	s.cf.SetUserLabel(n, name)
	s.dirty = true
	return nil
}

var radixFlags = map[string]uint32{
	"hex":  ctree.NumHex,
	"dec":  ctree.NumDec,
	"oct":  ctree.NumOct,
	"bin":  ctree.NumBin,
	"char": ctree.NumChar,
}

// numform records the format of an operand and applies it to the literals
// printed for the instruction at once.
func (s *session) numform(args []string) error {
	if len(args) != 3 {
		return errUsage
	}
	ea, err := parseEA(args[0])
	if err != nil {
		return err
	}
	opnum, err := strconv.Atoi(args[1])
	if err != nil {
		return fmt.Errorf("bad operand number %q", args[1])
	}
	flags, ok := radixFlags[args[2]]
	if !ok {
		return fmt.Errorf("unknown radix %q", args[2])
	}
	nf := ctree.NumberFormat{Flags: flags, OpNum: opnum, Props: ctree.NfFixed}
	found := 0
	s.cf.Mutate(func(cf *ctree.Cfunc) error {
		for _, it := range cf.FindByEA(ea) {
			if e := ctree.AsExpr(it); e != nil && e.Op() == ctree.ExprNum {
				e.Num().Format = nf
				found++
			}
		}
		return nil
	})
	if found == 0 {
		return fmt.Errorf("no literal at %#x", ea)
	}
	s.cf.Numforms.Set(ctree.OperandLocator{EA: ea, OpNum: opnum}, nf)
	s.dirty = true
	return nil
}

func (s *session) collapse(args []string) error {
	if len(args) != 2 {
		return errUsage
	}
	ea, err := parseEA(args[0])
	if err != nil {
		return err
	}
	op, ok := ctree.CtypeByName(args[1])
	if !ok || ctree.IsExpr(op) {
		return fmt.Errorf("unknown statement kind %q", args[1])
	}
	loc := ctree.ItemLocator{EA: ea, Op: op}
	found := false
	for _, it := range s.cf.FindByEA(ea) {
		if it.Op() == op {
			found = true
		}
	}
	if !found {
		return fmt.Errorf("no %s at %#x", op, ea)
	}
	s.cf.SetUserIflags(loc, s.cf.GetUserIflags(loc)^ctree.CitCollapsed)
	s.dirty = true
	return nil
}

func (s *session) union(args []string) error {
	if len(args) != 2 {
		return errUsage
	}
	ea, err := parseEA(args[0])
	if err != nil {
		return err
	}
	var path []int
	for _, f := range strings.Split(args[1], ",") {
		m, err := strconv.Atoi(f)
		if err != nil || m < 0 {
			return fmt.Errorf("bad member %q", f)
		}
		path = append(path, m)
	}
	found := false
	for _, it := range s.cf.FindByEA(ea) {
		if e := ctree.AsExpr(it); e != nil && isUnionAccess(e) {
			found = true
		}
	}
	if !found {
		return fmt.Errorf("no union access at %#x", ea)
	}
	s.cf.SetUserUnionSelection(ea, path)
	s.cf.Mutate(func(cf *ctree.Cfunc) error {
		cf.ApplyUserUnions()
		return nil
	})
	s.dirty = true
	return nil
}

func isUnionAccess(e *ctree.Expr) bool {
	switch e.Op() {
	case ctree.ExprMemref:
		return e.X().Type.IsUnion()
	case ctree.ExprMemptr:
		udt, _ := e.X().Type.Pointed()
		return udt.IsUnion()
	}
	return false
}

func (s *session) rename(args []string) error {
	if len(args) != 2 {
		return errUsage
	}
	idx := s.cf.Vars.ByName(args[0])
	if idx < 0 {
		return fmt.Errorf("no variable %s", args[0])
	}
	if s.cf.Vars.ByName(args[1]) >= 0 {
		return fmt.Errorf("%s is already used", args[1])
	}
	s.cf.Mutate(func(cf *ctree.Cfunc) error {
		cf.Vars[idx].SetUserName(args[1])
		return nil
	})
	s.dirty = true
	return nil
}

func (s *session) save() error {
	if s.store == nil {
		return errors.New("store_dir is not configured")
	}
	if err := errors.Join(s.cf.SaveAnnotations(s.store), s.cf.SaveUserLvars(s.store)); err != nil {
		return err
	}
	s.dirty = false
	return nil
}
