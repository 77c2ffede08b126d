// Copyright 2026 The histpack Authors. All rights reserved.
// Use of this source code is governed by the MIT License
// that can be found in the LICENSE file.

// histpack is a maintenance tool for history pack stores.
//
//	histpack ls <dir>                      list packs, newest first
//	histpack info <pack>                   sections of one pack
//	histpack ancestors <dir> <file> <node> ancestry query
//	histpack repack <dir>                  fold all packs into one
package main

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/spf13/pflag"

	"github.com/filehist/histpack"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	var verbose bool

	flagSet := pflag.NewFlagSet("histpack", pflag.ContinueOnError)
	flagSet.BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")
	flagSet.Usage = func() { printHelp(flagSet) }

	if err := flagSet.Parse(os.Args[1:]); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return nil
		}
		return err
	}

	level := slog.LevelWarn
	if verbose {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))

	args := flagSet.Args()
	if len(args) == 0 {
		printHelp(flagSet)
		return errors.New("missing command")
	}

	switch cmd, rest := args[0], args[1:]; cmd {
	case "ls":
		return runLs(rest, logger)
	case "info":
		return runInfo(rest)
	case "ancestors":
		return runAncestors(rest, logger)
	case "repack":
		return runRepack(rest, logger)
	default:
		printHelp(flagSet)
		return fmt.Errorf("unknown command %q", cmd)
	}
}

func printHelp(flagSet *pflag.FlagSet) {
	fmt.Fprintf(os.Stderr, `usage: histpack [flags] <command>

commands:
  ls <dir>                        list packs in a store, newest first
  info <pack-stem-or-file>        list the file sections of one pack
  ancestors <dir> <file> <node>   print recorded ancestors of a revision
  repack <dir>                    fold all packs in a store into one

flags:
%s`, flagSet.FlagUsages())
}

func runLs(args []string, logger *slog.Logger) error {
	if len(args) != 1 {
		return errors.New("ls wants exactly one store directory")
	}
	store, err := histpack.NewStore(args[0], histpack.WithLogger(logger))
	if err != nil {
		return err
	}
	defer store.Close()

	for _, pack := range store.Packs() {
		revs := 0
		files := make(map[string]struct{})
		err := pack.ForEach(func(name string, node histpack.Node, rev histpack.Revision) error {
			files[name] = struct{}{}
			revs++
			return nil
		})
		if err != nil {
			return err
		}
		fmt.Printf("%s\t%d files\t%d revisions\n", pack.Path(), len(files), revs)
	}
	return nil
}

func runInfo(args []string) error {
	if len(args) != 1 {
		return errors.New("info wants exactly one pack")
	}
	stem := strings.TrimSuffix(strings.TrimSuffix(args[0], histpack.PackSuffix), histpack.IndexSuffix)
	pack, err := histpack.OpenPack(stem)
	if err != nil {
		return err
	}
	defer func() {
		_ = pack.Close()
	}()

	current := ""
	return pack.ForEach(func(name string, node histpack.Node, rev histpack.Revision) error {
		if name != current {
			fmt.Printf("%s\n", name)
			current = name
		}
		line := fmt.Sprintf("  %s  p1=%s p2=%s link=%s", node, rev.P1, rev.P2, rev.Linknode)
		if rev.Copyfrom != "" {
			line += fmt.Sprintf(" copyfrom=%s", rev.Copyfrom)
		}
		fmt.Println(line)
		return nil
	})
}

func runAncestors(args []string, logger *slog.Logger) error {
	if len(args) != 3 {
		return errors.New("ancestors wants <dir> <file> <hex node>")
	}
	node, err := histpack.NodeFromHex(args[2])
	if err != nil {
		return err
	}
	store, err := histpack.NewStore(args[0], histpack.WithLogger(logger))
	if err != nil {
		return err
	}
	defer store.Close()

	ancestors, err := store.GetAncestors(args[1], node)
	if err != nil {
		return err
	}
	for node, rev := range ancestors {
		line := fmt.Sprintf("%s  p1=%s p2=%s link=%s", node, rev.P1, rev.P2, rev.Linknode)
		if rev.Copyfrom != "" {
			line += fmt.Sprintf(" copyfrom=%s", rev.Copyfrom)
		}
		fmt.Println(line)
	}
	return nil
}

func runRepack(args []string, logger *slog.Logger) error {
	if len(args) != 1 {
		return errors.New("repack wants exactly one store directory")
	}
	stem, err := histpack.Repack(args[0], histpack.WithLogger(logger))
	if err != nil {
		return err
	}
	if stem == "" {
		fmt.Println("nothing to repack")
		return nil
	}
	fmt.Println(stem)
	return nil
}
