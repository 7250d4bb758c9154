package main

import (
	"bufio"
	"errors"
	"flag"
	"fmt"
	"os"
	"strings"

	"github.com/cexll/agentexec-go/pkg/shellclass"
)

func classifyCommand(argv []string, streams ioStreams) error {
	set := flag.NewFlagSet("classify", flag.ContinueOnError)
	set.SetOutput(streams.err)
	unwrap := set.Bool("unwrap", false, "Also print the command after shell-wrapper stripping.")
	set.Usage = func() {
		fmt.Fprintln(streams.err, "Usage: agentexec classify [flags] \"command\" ...")
		fmt.Fprintln(streams.err, "\nReads commands from stdin, one per line, when no arguments are given.")
		fmt.Fprintln(streams.err, "\nFlags:")
		set.PrintDefaults()
	}
	if err := set.Parse(argv); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return nil
		}
		return err
	}

	emit := func(command string) {
		command = strings.TrimSpace(command)
		if command == "" {
			return
		}
		if *unwrap {
			fmt.Fprintf(streams.out, "%s\t%s\n", shellclass.Classify(command), shellclass.UnwrapShell(command))
			return
		}
		fmt.Fprintf(streams.out, "%s\t%s\n", shellclass.Classify(command), command)
	}

	if args := set.Args(); len(args) > 0 {
		for _, command := range args {
			emit(command)
		}
		return nil
	}
	scanner := bufio.NewScanner(os.Stdin)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		emit(scanner.Text())
	}
	return scanner.Err()
}
