// Command squashfs-info prints a summary of a SquashFS archive's
// superblock and, optionally, its root directory listing.
package main

import (
	"flag"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/sirupsen/logrus"

	"github.com/kofj/go-squashfs/backend/file"
	"github.com/kofj/go-squashfs/filesystem/squashfs"
)

func main() {
	listFlag := flag.Bool("l", false, "also list the root directory")
	verboseFlag := flag.Bool("v", false, "enable debug logging")
	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "usage: %s [-l] [-v] <squashfs-file>\n", os.Args[0])
		flag.PrintDefaults()
	}
	flag.Parse()
	if flag.NArg() != 1 {
		flag.Usage()
		os.Exit(2)
	}

	if *verboseFlag {
		logger := logrus.New()
		logger.SetLevel(logrus.DebugLevel)
		squashfs.SetLogger(logger)
	}

	if err := run(flag.Arg(0), *listFlag); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(path string, list bool) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()
	info, err := f.Stat()
	if err != nil {
		return fmt.Errorf("stat %s: %w", path, err)
	}

	fs, err := squashfs.Read(file.New(f, true), info.Size(), 0, 0)
	if err != nil {
		return fmt.Errorf("read %s: %w", path, err)
	}

	printSuperblock(fs)
	if list {
		return printRoot(fs)
	}
	return nil
}

func printSuperblock(fs *squashfs.FileSystem) {
	i := fs.Info()
	w := tabwriter.NewWriter(os.Stdout, 0, 2, 2, ' ', 0)
	fmt.Fprintf(w, "version:\t%d.%d\n", i.VersionMajor, i.VersionMinor)
	fmt.Fprintf(w, "compression:\t%s\n", i.Compression)
	fmt.Fprintf(w, "block size:\t%d\n", i.Blocksize)
	fmt.Fprintf(w, "inodes:\t%d\n", i.Inodes)
	fmt.Fprintf(w, "fragments:\t%d\n", i.FragmentCount)
	fmt.Fprintf(w, "ids:\t%d\n", i.IDCount)
	fmt.Fprintf(w, "size:\t%d\n", i.Size)
	fmt.Fprintf(w, "modified:\t%s\n", i.ModTime)
	fmt.Fprintf(w, "exportable:\t%v\n", i.Exportable)
	fmt.Fprintf(w, "dedup:\t%v\n", i.DuplicatesRemoved)
	fmt.Fprintf(w, "session:\t%s\n", fs.SessionID())
	w.Flush()
}

func printRoot(fs *squashfs.FileSystem) error {
	entries, err := fs.ReadDir(".")
	if err != nil {
		return fmt.Errorf("read root directory: %w", err)
	}
	w := tabwriter.NewWriter(os.Stdout, 0, 2, 2, ' ', 0)
	fmt.Fprintln(w, "\nname\tdir\tsize")
	for _, e := range entries {
		info, err := e.Info()
		if err != nil {
			return err
		}
		fmt.Fprintf(w, "%s\t%v\t%d\n", e.Name(), e.IsDir(), info.Size())
	}
	return w.Flush()
}
