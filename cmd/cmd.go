package cmd

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/jmorganca/marlin/envconfig"
	"github.com/jmorganca/marlin/format"
	"github.com/jmorganca/marlin/kernels"
	"github.com/jmorganca/marlin/marlin"
	"github.com/jmorganca/marlin/version"
	"github.com/jmorganca/marlin/weights"
)

// quantizationConfig mirrors the quantization_config block of a checkpoint's
// config.json.
type quantizationConfig struct {
	Bits        int    `json:"bits"`
	GroupSize   int    `json:"group_size"`
	DescAct     bool   `json:"desc_act"`
	Sym         bool   `json:"sym"`
	QuantMethod string `json:"quant_method"`
}

type modelConfig struct {
	QuantizationConfig *quantizationConfig `json:"quantization_config"`
}

func loaderFromConfig(dir string) (*marlin.Loader, error) {
	b, err := os.ReadFile(dir + "/config.json")
	if err != nil {
		return nil, err
	}

	var config modelConfig
	if err := json.Unmarshal(b, &config); err != nil {
		return nil, err
	}

	qc := config.QuantizationConfig
	if qc == nil {
		return nil, fmt.Errorf("no quantization_config in %s/config.json", dir)
	}

	method := marlin.GPTQ
	if qc.QuantMethod == "awq" {
		method = marlin.AWQ
	}

	return &marlin.Loader{
		Bits:      qc.Bits,
		GroupSize: qc.GroupSize,
		DescAct:   qc.DescAct,
		Method:    method,
		Sym:       qc.Sym,
	}, nil
}

// quantizedPrefixes lists every layer prefix in the store that carries a
// packed quantized weight.
func quantizedPrefixes(store *weights.Store) []string {
	var prefixes []string
	for _, name := range store.Names() {
		if p, ok := strings.CutSuffix(name, ".qweight"); ok {
			prefixes = append(prefixes, p)
		}
	}
	return prefixes
}

func inspect(dir string) error {
	store, err := weights.Open(os.DirFS(dir))
	if err != nil {
		return err
	}

	var total int64
	for _, name := range store.Names() {
		t, err := store.Tensor(name)
		if err != nil {
			return err
		}
		size := int64(t.Elems()) * dtypeSize(t.DType)
		total += size
		fmt.Printf("%-60s %-5s %-16v %s\n", name, t.DType, t.Shape, format.HumanBytes(size))
	}

	fmt.Printf("\n%d tensors, %s", len(store.Names()), format.HumanBytes(total))
	if prefixes := quantizedPrefixes(store); len(prefixes) > 0 {
		fmt.Printf(", %s quantized weights", format.HumanNumber(uint64(len(prefixes))))
	}
	fmt.Println()

	return nil
}

func dtypeSize(dtype string) int64 {
	switch dtype {
	case "F16", "BF16":
		return 2
	default:
		return 4
	}
}

func repackAll(dir string) error {
	loader, err := loaderFromConfig(dir)
	if err != nil {
		return err
	}

	store, err := weights.Open(os.DirFS(dir))
	if err != nil {
		return err
	}

	if err := loader.DiscoverParams(store); err != nil {
		return err
	}

	prefixes := quantizedPrefixes(store)
	if len(prefixes) == 0 {
		return fmt.Errorf("no quantized weights found in %s", dir)
	}

	slog.Info("repacking for marlin", "method", loader.Method, "bits", loader.Bits,
		"group_size", loader.GroupSize, "weights", len(prefixes))

	start := time.Now()

	results := make([]string, len(prefixes))
	var g errgroup.Group
	g.SetLimit(envconfig.NumParallel)
	for i, prefix := range prefixes {
		i, prefix := i, prefix
		g.Go(func() error {
			w, err := loader.Weights(store, prefix)
			if err != nil {
				return fmt.Errorf("%s: %w", prefix, err)
			}

			results[i] = fmt.Sprintf("%-60s %6d x %-6d %d-bit full_k=%v %s",
				prefix, w.InFeatures(), w.OutFeatures(), w.Bits, w.IsFullK,
				format.HumanBytes(4*int64(len(w.QWeight.Data))))
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return err
	}

	sort.Strings(results)
	for _, line := range results {
		fmt.Println(line)
	}
	fmt.Printf("\nrepacked %d weights in %s (tile size %d)\n", len(prefixes),
		time.Since(start).Round(time.Millisecond), kernels.TileSize)

	return nil
}

func NewCLI() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "marlin",
		Short: "Repack GPTQ and AWQ quantized weights for Marlin kernels",
		CompletionOptions: cobra.CompletionOptions{
			DisableDefaultCmd: true,
		},
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			cmd.SilenceUsage = true
			if envconfig.Debug {
				slog.SetLogLoggerLevel(slog.LevelDebug)
			}
		},
	}

	cobra.EnableCommandSorting = false

	inspectCmd := &cobra.Command{
		Use:   "inspect DIR",
		Short: "List the tensors of a safetensors checkpoint",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return inspect(args[0])
		},
	}

	repackCmd := &cobra.Command{
		Use:   "repack DIR",
		Short: "Repack every quantized weight of a checkpoint and report the result",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return repackAll(args[0])
		},
	}

	versionCmd := &cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Println(version.Version)
		},
	}

	rootCmd.AddCommand(
		inspectCmd,
		repackCmd,
		versionCmd,
	)

	return rootCmd
}
