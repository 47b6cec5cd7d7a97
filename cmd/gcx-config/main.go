package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"os"

	"github.com/orizon-lang/gcx/internal/heap"
)

// fileConfig is the on-disk representation of a heap.Config: sizes are
// kept as K/M/G-suffixed strings so a hand-edited config file reads the
// same way -Xmx/-Xms do on the command line.
type fileConfig struct {
	MaxMemory  string `json:"max_memory"`
	InitMemory string `json:"init_memory"`

	MinYoungGenPercent float64 `json:"min_young_gen_percent"`
	HeapAlignment      string  `json:"heap_alignment"`

	TraceCardTableRSet   bool `json:"trace_card_table_rset"`
	TraceEvacVisitedCell bool `json:"trace_evac_visited_cell"`
}

func fromConfig(c heap.Config) fileConfig {
	return fileConfig{
		MaxMemory:            sizeString(c.MaxMemory),
		InitMemory:           sizeString(c.InitMemory),
		MinYoungGenPercent:   c.MinYoungGenPercent,
		HeapAlignment:        sizeString(c.HeapAlignment),
		TraceCardTableRSet:   c.TraceCardTableRSet,
		TraceEvacVisitedCell: c.TraceEvacVisitedCell,
	}
}

func (fc fileConfig) toConfig() (heap.Config, error) {
	maxMem, err := heap.ParseSize(fc.MaxMemory)
	if err != nil {
		return heap.Config{}, err
	}

	initMem, err := heap.ParseSize(fc.InitMemory)
	if err != nil {
		return heap.Config{}, err
	}

	align, err := heap.ParseSize(fc.HeapAlignment)
	if err != nil {
		return heap.Config{}, err
	}

	return heap.Config{
		MaxMemory:            maxMem,
		InitMemory:           initMem,
		MinYoungGenPercent:   fc.MinYoungGenPercent,
		HeapAlignment:        align,
		TraceCardTableRSet:   fc.TraceCardTableRSet,
		TraceEvacVisitedCell: fc.TraceEvacVisitedCell,
	}, nil
}

func sizeString(size heap.RegionSize) string {
	switch {
	case size != 0 && size%(1<<30) == 0:
		return fmt.Sprintf("%dG", size/(1<<30))
	case size != 0 && size%(1<<20) == 0:
		return fmt.Sprintf("%dM", size/(1<<20))
	case size != 0 && size%(1<<10) == 0:
		return fmt.Sprintf("%dK", size/(1<<10))
	default:
		return fmt.Sprintf("%d", size)
	}
}

func main() {
	var (
		showHelp   bool
		jsonOutput bool
		configFile string
		doInit     bool
		validate   bool
		show       bool

		xmx   string
		xms   string
		yPct  float64
		align string
	)

	flag.BoolVar(&showHelp, "help", false, "show help information")
	flag.BoolVar(&jsonOutput, "json", false, "output in JSON format")
	flag.StringVar(&configFile, "config", "gcx.json", "heap configuration file path")
	flag.BoolVar(&doInit, "init", false, "write a new configuration file with the collector's defaults")
	flag.BoolVar(&validate, "validate", false, "validate a configuration file")
	flag.BoolVar(&show, "show", false, "show the resolved configuration")
	flag.StringVar(&xmx, "Xmx", "", "with -init, override the default max heap size (e.g. 512M)")
	flag.StringVar(&xms, "Xms", "", "with -init, override the default initial heap size")
	flag.Float64Var(&yPct, "XX:MinYoungGenPercent", 0, "with -init, override the default young-gen floor percentage")
	flag.StringVar(&align, "XX:HeapAlignment", "", "with -init, override the default region alignment")

	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: %s [OPTIONS]\n\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "gcx heap configuration manager.\n\n")
		fmt.Fprintf(os.Stderr, "OPTIONS:\n")
		flag.PrintDefaults()
		fmt.Fprintf(os.Stderr, "\nEXAMPLES:\n")
		fmt.Fprintf(os.Stderr, "  %s -init -Xmx=1G -Xms=256M   # write a new config\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "  %s -show                     # show the resolved config\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "  %s -validate                 # validate a config file\n", os.Args[0])
	}

	flag.Parse()

	if showHelp {
		flag.Usage()
		os.Exit(0)
	}

	switch {
	case doInit:
		if err := initConfig(configFile, xmx, xms, yPct, align); err != nil {
			exitWithError("failed to initialize config: %v", err)
		}

		fmt.Printf("configuration initialized: %s\n", configFile)
	case validate:
		if err := validateConfig(configFile); err != nil {
			exitWithError("configuration validation failed: %v", err)
		}

		fmt.Printf("configuration is valid: %s\n", configFile)
	case show:
		cfg, err := loadConfig(configFile)
		if err != nil {
			exitWithError("failed to load config: %v", err)
		}

		if jsonOutput {
			data, _ := json.MarshalIndent(fromConfig(cfg), "", "  ")
			fmt.Println(string(data))
		} else {
			showConfigHuman(cfg)
		}
	default:
		flag.Usage()
		os.Exit(1)
	}
}

func exitWithError(format string, args ...interface{}) {
	fmt.Fprintf(os.Stderr, "error: "+format+"\n", args...)
	os.Exit(1)
}

func initConfig(configFile, xmx, xms string, yPct float64, align string) error {
	if _, err := os.Stat(configFile); err == nil {
		return fmt.Errorf("configuration file already exists: %s", configFile)
	}

	cfg := heap.DefaultConfig()

	if xmx != "" {
		size, err := heap.ParseSize(xmx)
		if err != nil {
			return err
		}

		cfg.MaxMemory = size
	}

	if xms != "" {
		size, err := heap.ParseSize(xms)
		if err != nil {
			return err
		}

		cfg.InitMemory = size
	}

	if yPct != 0 {
		cfg.MinYoungGenPercent = yPct
	}

	if align != "" {
		size, err := heap.ParseSize(align)
		if err != nil {
			return err
		}

		cfg.HeapAlignment = size
	}

	if err := cfg.Validate(); err != nil {
		return err
	}

	return saveConfig(configFile, cfg)
}

func loadConfig(configFile string) (heap.Config, error) {
	data, err := os.ReadFile(configFile)
	if err != nil {
		return heap.Config{}, err
	}

	var fc fileConfig
	if err := json.Unmarshal(data, &fc); err != nil {
		return heap.Config{}, err
	}

	return fc.toConfig()
}

func saveConfig(configFile string, cfg heap.Config) error {
	data, err := json.MarshalIndent(fromConfig(cfg), "", "  ")
	if err != nil {
		return err
	}

	return os.WriteFile(configFile, data, 0644)
}

func validateConfig(configFile string) error {
	cfg, err := loadConfig(configFile)
	if err != nil {
		return err
	}

	return cfg.Validate()
}

func showConfigHuman(cfg heap.Config) {
	fmt.Println("Heap Configuration:")
	fmt.Printf("  -Xmx (max memory):             %s\n", sizeString(cfg.MaxMemory))
	fmt.Printf("  -Xms (init memory):            %s\n", sizeString(cfg.InitMemory))
	fmt.Printf("  -XX:MinYoungGenPercent:        %v\n", cfg.MinYoungGenPercent)
	fmt.Printf("  -XX:HeapAlignment:             %s\n", sizeString(cfg.HeapAlignment))
	fmt.Printf("  -XX:TraceCardTableRSet:        %t\n", cfg.TraceCardTableRSet)
	fmt.Printf("  -XX:TraceEvacVisitedCell:      %t\n", cfg.TraceEvacVisitedCell)
}
