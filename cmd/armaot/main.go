package main

import (
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/schollz/progressbar/v3"
	"golang.org/x/term"

	"github.com/tinyrange/armaot/internal/compiler"
	"github.com/tinyrange/armaot/internal/config"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "armaot: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	configPath := flag.String("config", "", "Configuration file (default: $ARMAOT_CONFIG or ./armaot.yaml)")
	root := flag.String("root", "main", "Native routine the image starts")
	entry := flag.String("entry", "_start", "Name of the generated entry method")
	output := flag.String("o", "image.bin", "Output image")
	mapPath := flag.String("map", "", "Write a YAML link map to this file")
	symbols := flag.Bool("symbols", false, "Print the imported routines")
	initDir := flag.String("init", "", "Write a default armaot.yaml into this directory and exit")
	debug := flag.Bool("debug", false, "Enable debug logging")
	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: %s [flags]\n\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "Link native ARM routines and a generated entry point into a flat or ELF image.\n\n")
		fmt.Fprintf(os.Stderr, "Examples:\n")
		fmt.Fprintf(os.Stderr, "  %s -init .\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "  %s -root app_main -o app.elf -map app.map.yaml\n\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "Flags:\n")
		flag.PrintDefaults()
	}
	flag.Parse()

	if *initDir != "" {
		if err := config.WriteTemplate(*initDir, config.Default()); err != nil {
			return err
		}
		fmt.Printf("wrote %s\n", filepath.Join(*initDir, config.Filename))
		return nil
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	level := slog.LevelInfo
	if *debug || cfg.Debug {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)

	opts := []compiler.Option{compiler.WithLogger(logger)}
	var bar *progressbar.ProgressBar
	if level != slog.LevelDebug && term.IsTerminal(int(os.Stderr.Fd())) {
		bar = progressbar.NewOptions(-1,
			progressbar.OptionSetWriter(os.Stderr),
			progressbar.OptionSetDescription("scanning objects"),
			progressbar.OptionSpinnerType(14),
			progressbar.OptionClearOnFinish(),
		)
		opts = append(opts, compiler.WithScanHook(func(path string) {
			bar.Describe("scanning " + filepath.Base(path))
			bar.Add(1)
		}))
	}

	d, err := compiler.New(cfg, opts...)
	if err != nil {
		return err
	}
	prog, err := entryProgram(*entry, *root)
	if err != nil {
		return err
	}

	runErr := d.Run(prog)
	if bar != nil {
		bar.Finish()
	}
	if runErr != nil {
		return runErr
	}

	if err := writeFile(*output, d.WriteImage); err != nil {
		return err
	}
	if *mapPath != "" {
		if err := writeFile(*mapPath, d.Builder().WriteLinkMap); err != nil {
			return err
		}
	}

	b := d.Builder()
	logger.Info("wrote image",
		"path", *output,
		"format", cfg.Image.Format,
		"base", fmt.Sprintf("%#x", b.Base()),
		"size", b.End()-b.Base())

	if *symbols {
		return printRoutines(os.Stdout, d.Imported(), terminalWidth())
	}
	return nil
}

func writeFile(path string, write func(w io.Writer) error) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create %s: %w", path, err)
	}
	if err := write(f); err != nil {
		f.Close()
		return fmt.Errorf("write %s: %w", path, err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("close %s: %w", path, err)
	}
	return nil
}

func terminalWidth() int {
	fd := int(os.Stdout.Fd())
	if !term.IsTerminal(fd) {
		return 0
	}
	w, _, err := term.GetSize(fd)
	if err != nil {
		return 0
	}
	return w
}
