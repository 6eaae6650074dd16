// Mirror CLI - scans packages for bindable descriptors and inspects
// usage profiles recorded by the accessor runtime.
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/tliron/commonlog"
	_ "github.com/tliron/commonlog/simple"

	"github.com/chazu/mirror/manifest"
	"github.com/chazu/mirror/profile"
	"github.com/chazu/mirror/scan"
)

func main() {
	scanPkg := flag.String("scan", "", "Scan a Go package and print its descriptor manifest as JSON")
	only := flag.String("only", "", "Comma-separated names to include in the scan")
	profilePath := flag.String("profile", "", "Print a usage profile snapshot")
	historyPath := flag.String("history", "", "Query a usage history database for hot keys")
	minFlag := flag.Uint64("min", 0, "Minimum invocations for a hot key (default from mirror.toml)")
	runsFlag := flag.Int("runs", 0, "Minimum runs a key must be hot in (default from mirror.toml)")
	verbosity := flag.Int("v", -1, "Log verbosity (overrides mirror.toml)")

	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: mirror [options]\n\n")
		fmt.Fprintf(os.Stderr, "Inspects bindable Go APIs and accessor usage profiles.\n\n")
		fmt.Fprintf(os.Stderr, "Options:\n")
		flag.PrintDefaults()
		fmt.Fprintf(os.Stderr, "\nExamples:\n")
		fmt.Fprintf(os.Stderr, "  mirror -scan strings                  # Descriptor manifest of the strings package\n")
		fmt.Fprintf(os.Stderr, "  mirror -scan strings -only Contains   # Restrict to named members\n")
		fmt.Fprintf(os.Stderr, "  mirror -profile usage.profile         # Dump one run's snapshot\n")
		fmt.Fprintf(os.Stderr, "  mirror -history history.db -min 200   # Keys hot across recorded runs\n")
	}
	flag.Parse()

	// Configuration comes from the nearest mirror.toml, if any.
	m, err := manifest.FindAndLoad(".")
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	if m == nil {
		m = manifest.Default()
	}

	v := m.Logging.Verbosity
	if *verbosity >= 0 {
		v = *verbosity
	}
	commonlog.Configure(v, nil)

	min := m.Warmup.MinInvocations
	if *minFlag > 0 {
		min = *minFlag
	}
	runs := m.Warmup.MinRuns
	if *runsFlag > 0 {
		runs = *runsFlag
	}

	switch {
	case *scanPkg != "":
		err = runScan(*scanPkg, *only)
	case *profilePath != "":
		err = runProfile(*profilePath, min)
	case *historyPath != "":
		err = runHistory(*historyPath, min, runs)
	default:
		flag.Usage()
		os.Exit(2)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// runScan prints a package's descriptor manifest as indented JSON.
func runScan(pkg, only string) error {
	var filter map[string]bool
	if only != "" {
		filter = make(map[string]bool)
		for _, name := range strings.Split(only, ",") {
			filter[strings.TrimSpace(name)] = true
		}
	}

	man, err := scan.Package(pkg, filter)
	if err != nil {
		return err
	}
	out, err := json.MarshalIndent(man, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(out))
	return nil
}

// runProfile dumps one snapshot, promoted entries marked with *.
func runProfile(path string, min uint64) error {
	s, err := profile.Load(path)
	if err != nil {
		return err
	}

	created := time.Unix(s.CreatedAt, 0).Format(time.RFC3339)
	fmt.Printf("snapshot v%d, created %s, %d entries\n", s.Version, created, len(s.Entries))
	for _, e := range s.Entries {
		marker := " "
		if e.Promoted {
			marker = "*"
		}
		fmt.Printf("%s %-48s %-12s %d\n", marker, e.Key, e.Kind, e.Invocations)
	}

	hot := s.HotKeys(min)
	fmt.Printf("\n%d hot keys (min %d invocations):\n", len(hot), min)
	for _, k := range hot {
		fmt.Printf("  %s\n", k)
	}
	return nil
}

// runHistory reports keys that stayed hot across recorded runs.
func runHistory(path string, min uint64, minRuns int) error {
	st, err := profile.OpenStore(path)
	if err != nil {
		return err
	}
	defer st.Close()

	n, err := st.Runs()
	if err != nil {
		return err
	}
	keys, err := st.HotKeys(min, minRuns)
	if err != nil {
		return err
	}

	fmt.Printf("%d runs recorded; %d keys hot in at least %d runs (min %d invocations):\n",
		n, len(keys), minRuns, min)
	for _, k := range keys {
		fmt.Printf("  %s\n", k)
	}
	return nil
}
