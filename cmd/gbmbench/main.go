// Command gbmbench trains a GBM model over .npy feature columns and a
// target column, logging per-round diagnostics and optionally rendering
// the first round's first tree to SVG. Mirrors the
// extra_boost_main mode-dispatch CLI: a flag selects a mode, a JSON
// config names the files for that mode.
package main

import (
	"encoding/json"
	"flag"
	"log"
	"os"

	"github.com/goccy/go-graphviz"

	"github.com/ebooster/gbmcore/boost"
	"github.com/ebooster/gbmcore/distribution"
	"github.com/ebooster/gbmcore/frame"
)

// HandleError panics on a non-nil error. Reserved for this CLI boundary;
// the library packages never panic.
func HandleError(err error) {
	if err != nil {
		log.Panic(err)
	}
}

func decodeConfig(srcConfig string, out interface{}) {
	file, err := os.Open(srcConfig)
	HandleError(err)
	defer func() { HandleError(file.Close()) }()
	HandleError(json.NewDecoder(file).Decode(out))
}

// TrainConfig names the data files and hyperparameters for one training
// run.
type TrainConfig struct {
	FeatureFiles       []string `json:"feature_files"`
	TargetFile         string   `json:"target_file"`
	Distribution       string   `json:"distribution"`
	NTrees             int      `json:"n_trees"`
	MaxDepth           int      `json:"max_depth"`
	LearnRate          float64  `json:"learn_rate"`
	LearnRateAnnealing float64  `json:"learn_rate_annealing"`
	NBins              int      `json:"nbins"`
	NBinsTopLevel      int      `json:"nbins_top_level"`
	MinRows            float64  `json:"min_rows"`
	SampleRate         float64  `json:"sample_rate"`
	ColSampleRate      float64  `json:"col_sample_rate"`
	MaxAbsLeafnodePred float64  `json:"max_abs_leafnode_pred"`
	Seed               int64    `json:"seed"`
	NClasses           int      `json:"n_classes"`
	RenderTreeSVG      string   `json:"render_tree_svg"`
}

func train(srcConfig string) {
	var cfg TrainConfig
	decodeConfig(srcConfig, &cfg)

	fr, err := frame.LoadNumericColumnsNPY(cfg.FeatureFiles, 4096)
	HandleError(err)

	targetFrame, err := frame.LoadNumericColumnsNPY([]string{cfg.TargetFile}, 4096)
	HandleError(err)
	y := make([]float64, fr.NumRows())
	for c := 0; c < targetFrame.NumChunks(); c++ {
		chunk, err := targetFrame.GetChunk(0, c)
		HandleError(err)
		copy(y[targetFrame.ChunkStart(c):], chunk)
	}

	params := boost.GBMParams{
		Distribution:        distribution.Family(cfg.Distribution),
		NTrees:              cfg.NTrees,
		MaxDepth:            cfg.MaxDepth,
		LearnRate:           cfg.LearnRate,
		LearnRateAnnealing:  cfg.LearnRateAnnealing,
		NBins:               cfg.NBins,
		NBinsTopLevel:       cfg.NBinsTopLevel,
		NBinsCats:           cfg.NBins,
		MinRows:             cfg.MinRows,
		SampleRate:          cfg.SampleRate,
		ColSampleRate:       cfg.ColSampleRate,
		MaxAbsLeafnodePred:  cfg.MaxAbsLeafnodePred,
		Seed:                cfg.Seed,
		ColBlockSz:          2,
		SharedHisto:         true,
		MinThreads:          4,
	}
	k := cfg.NClasses
	if k < 1 {
		k = 1
	}

	drv, err := boost.NewDriver(params, k)
	HandleError(err)

	featureCols := make([]int, fr.NumCols())
	for i := range featureCols {
		featureCols[i] = i
	}

	log.Printf("gbmbench: training %d trees over %d rows, %d features", params.NTrees, fr.NumRows(), fr.NumCols())
	ensemble, err := drv.Train(fr, y, nil, featureCols, nil, nil)
	HandleError(err)
	log.Printf("gbmbench: trained %d rounds, init_f=%.6g", len(ensemble.Trees), ensemble.InitF)

	if cfg.RenderTreeSVG != "" && len(ensemble.Trees) > 0 && ensemble.Trees[0][0] != nil {
		gv, graph, err := ensemble.Trees[0][0].DrawGraph()
		HandleError(err)
		HandleError(gv.RenderFilename(graph, graphviz.SVG, cfg.RenderTreeSVG))
		log.Printf("gbmbench: rendered first tree to %s", cfg.RenderTreeSVG)
	}
}

func main() {
	runMode := flag.String("mode", "train", "currently only 'train' is supported")
	config := flag.String("config", "gbmbench_config.json", "JSON config file for the selected mode")
	flag.Parse()

	switch *runMode {
	case "train":
		train(*config)
	default:
		log.Fatalf("gbmbench: unknown mode %q", *runMode)
	}
}
