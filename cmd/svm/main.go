// SLang VM CLI - runs, disassembles, assembles, and interactively loads
// SLang bytecode images.
package main

import (
	"bytes"
	"flag"
	"fmt"
	"os"

	"github.com/tliron/commonlog"
	_ "github.com/tliron/commonlog/simple"

	"github.com/chazu/svm/asm"
	"github.com/chazu/svm/manifest"
	"github.com/chazu/svm/vm"
	"github.com/chazu/svm/vm/dist"
)

var log = commonlog.GetLogger("svm")

func main() {
	runPath := flag.String("r", "", "Run an obfuscated binary image")
	disPath := flag.String("d", "", "Disassemble a binary image to stdout")
	interact := flag.Bool("i", false, "Load instructions interactively from stdin")
	asmPath := flag.String("a", "", "Assemble textual source (requires -o)")
	outPath := flag.String("o", "", "Output path for -a")
	key := flag.String("p", "", "Obfuscation key")
	verbose := flag.Bool("v", false, "Verbose execution trace")
	snapPath := flag.String("c", "", "With -a: also write a CBOR snapshot of the decoded image")
	profPath := flag.String("profile", "", "With -r: write opcode execution counts to a SQLite database")

	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: svm -r|-d|-a <path> | -i [options]\n\n")
		fmt.Fprintf(os.Stderr, "Exactly one mode flag per invocation.\n\n")
		fmt.Fprintf(os.Stderr, "Options:\n")
		flag.PrintDefaults()
		fmt.Fprintf(os.Stderr, "\nExamples:\n")
		fmt.Fprintf(os.Stderr, "  svm -r prog.slb -p secret      # Run an obfuscated image\n")
		fmt.Fprintf(os.Stderr, "  svm -d prog.slb                # Disassemble to stdout\n")
		fmt.Fprintf(os.Stderr, "  svm -i -v                      # Interactive mode with trace\n")
		fmt.Fprintf(os.Stderr, "  svm -a prog.txt -o prog.slb    # Assemble textual source\n")
	}
	flag.Parse()

	// An svm.toml in the working directory supplies defaults; explicit
	// flags win.
	set := make(map[string]bool)
	flag.Visit(func(f *flag.Flag) { set[f.Name] = true })
	if manifest.Exists(".") {
		mf, err := manifest.Load(".")
		if err != nil {
			fmt.Fprintf(os.Stderr, "Warning: %v\n", err)
		} else {
			if !set["p"] {
				*key = mf.Image.Key
			}
			if !set["o"] {
				*outPath = mf.Image.Output
			}
			if !set["v"] {
				*verbose = mf.Run.Verbose
			}
			if !set["profile"] {
				*profPath = mf.Run.Profile
			}
		}
	}

	verbosity := 0
	if *verbose {
		verbosity = 1
	}
	commonlog.Configure(verbosity, nil)

	modes := 0
	for _, on := range []bool{*runPath != "", *disPath != "", *interact, *asmPath != ""} {
		if on {
			modes++
		}
	}
	if modes != 1 {
		flag.Usage()
		os.Exit(1)
	}

	var err error
	switch {
	case *runPath != "":
		err = runImage(*runPath, *key, *verbose, *profPath)
	case *disPath != "":
		err = disassemble(*disPath, *key)
	case *interact:
		err = interactive(*verbose)
	case *asmPath != "":
		if *outPath == "" {
			fmt.Fprintln(os.Stderr, "Error: -a requires -o <output>")
			os.Exit(1)
		}
		err = assemble(*asmPath, *outPath, *key, *snapPath)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// runImage decrypts, loads, and dispatches a binary image. An image whose
// magic does not match after decryption is rejected without executing
// anything and without output.
func runImage(path, key string, verbose bool, profPath string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	body, err := vm.StripMagic(vm.Obfuscate(data, key))
	if err != nil {
		log.Debugf("rejected %s: %v", path, err)
		return nil
	}

	m := vm.NewMachine()
	m.SetVerbose(verbose)
	var prof *vm.Profiler
	if profPath != "" {
		prof = vm.NewProfiler()
		m.AttachProfiler(prof)
	}

	if err := vm.LoadBinary(bytes.NewReader(body), m); err != nil {
		return fmt.Errorf("loading %s: %w", path, err)
	}
	m.Dispatch()
	m.Close()

	if prof != nil {
		if err := vm.SaveProfile(profPath, prof); err != nil {
			return err
		}
		log.Infof("wrote profile for %d instructions to %s", prof.Total(), profPath)
	}
	return nil
}

// interactive loads mnemonic records from stdin; a -1 line dispatches the
// instructions accumulated so far.
func interactive(verbose bool) error {
	m := vm.NewMachine()
	m.SetVerbose(verbose)
	if err := vm.LoadText(os.Stdin, m, true); err != nil {
		return err
	}
	m.Close()
	return nil
}

// disassemble prints the textual form of a binary image to stdout.
func disassemble(path, key string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	return asm.Disassemble(data, key, os.Stdout)
}

// assemble converts textual source to a binary image, optionally writing a
// CBOR snapshot of the decoded program alongside it.
func assemble(srcPath, outPath, key, snapPath string) error {
	src, err := os.Open(srcPath)
	if err != nil {
		return err
	}
	defer src.Close()

	image, err := asm.Assemble(src, key)
	if err != nil {
		return fmt.Errorf("assembling %s: %w", srcPath, err)
	}
	if err := os.WriteFile(outPath, image, 0o644); err != nil {
		return err
	}
	log.Infof("wrote %d bytes to %s", len(image), outPath)

	if snapPath == "" {
		return nil
	}

	// Decode the image we just produced and snapshot the program.
	body, err := vm.StripMagic(vm.Obfuscate(image, key))
	if err != nil {
		return err
	}
	m := vm.NewMachine()
	if err := vm.LoadBinary(bytes.NewReader(body), m); err != nil {
		return err
	}
	img := dist.FromProgram(m.Program())
	data, err := dist.MarshalImage(img)
	if err != nil {
		return err
	}
	m.Close()
	if err := os.WriteFile(snapPath, data, 0o644); err != nil {
		return err
	}
	log.Infof("wrote snapshot to %s", snapPath)
	return nil
}
