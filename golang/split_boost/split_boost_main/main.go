package main

import (
	"encoding/json"
	"flag"
	"os"
	"runtime"
	"runtime/pprof"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/sbinet/npyio"
	"github.com/tarstars/greedy_split_boosting/golang/split_boost/sbl"
)

func decodeConfig(srcConfig string, out interface{}) {
	file, err := os.Open(srcConfig)
	sbl.HandleError(err)
	defer func() { sbl.HandleError(file.Close()) }()

	decoder := json.NewDecoder(file)
	decoder.DisallowUnknownFields()
	sbl.HandleError(decoder.Decode(out))
}

type GrowConfig struct {
	FileNameFeatures string `json:"filename_features"`
	FileNameTarget   string `json:"filename_target"`
	FileNameWeights  string `json:"filename_weights"`
	FileNameTree     string `json:"filename_tree"`
	FileNameFitted   string `json:"filename_fitted"`
	FileNameLeaves   string `json:"filename_leaves"`
	Classes          []int  `json:"classes"`
	Monotone         []int8 `json:"monotone"`
	Seed             uint64 `json:"seed"`
	MinNumObs        int    `json:"min_num_obs"`
	NumFeatures      int    `json:"num_features"`
	MaxSplits        int    `json:"max_splits"`
	ThreadsNum       int    `json:"threads_num"`
}

func grow(srcConfig string) {
	growConfig := GrowConfig{MinNumObs: 10, ThreadsNum: 1}
	decodeConfig(srcConfig, &growConfig)

	var monotone []sbl.Monotonicity
	for _, code := range growConfig.Monotone {
		monotone = append(monotone, sbl.Monotonicity(code))
	}

	dmatrix, err := sbl.ReadDMatrix(
		growConfig.FileNameFeatures,
		growConfig.FileNameTarget,
		growConfig.FileNameWeights,
		sbl.DMatrixParams{Classes: growConfig.Classes, Monotone: monotone, Seed: growConfig.Seed},
	)
	sbl.HandleError(err)

	result, err := sbl.GrowTree(dmatrix, nil, sbl.GrowParams{
		MaxSplits: growConfig.MaxSplits,
		Search: sbl.SearchParams{
			MinNumObs:   growConfig.MinNumObs,
			NumFeatures: growConfig.NumFeatures,
			Workers:     growConfig.ThreadsNum,
		},
	})
	sbl.HandleError(err)

	for ind, improvement := range result.Improvements {
		log.Info().Int("split", ind+1).Float64("improvement", improvement).Msg("improvement")
	}

	sbl.HandleError(result.Tree.Save(growConfig.FileNameTree))

	if growConfig.FileNameFitted != "" {
		dst, err := os.Create(growConfig.FileNameFitted)
		sbl.HandleError(err)
		defer func() { sbl.HandleError(dst.Close()) }()
		sbl.HandleError(npyio.Write(dst, result.Fitted()))
	}

	if growConfig.FileNameLeaves != "" {
		leaves := make([]int64, len(result.NodeAssign))
		for obs := range leaves {
			leaves[obs] = int64(result.LeafOf(obs))
		}
		dst, err := os.Create(growConfig.FileNameLeaves)
		sbl.HandleError(err)
		defer func() { sbl.HandleError(dst.Close()) }()
		sbl.HandleError(npyio.Write(dst, leaves))
	}
}

type GraphConfig struct {
	FileNameTree   string `json:"filename_tree"`
	FigureType     string `json:"figure_type"`
	FileNameFigure string `json:"filename_figure"`
}

func graph(srcConfig string) {
	var graphConfig GraphConfig
	decodeConfig(srcConfig, &graphConfig)

	tree, err := sbl.LoadTree(graphConfig.FileNameTree)
	sbl.HandleError(err)
	sbl.HandleError(tree.RenderTree(graphConfig.FileNameFigure, graphConfig.FigureType))
}

func main() {
	runMode := flag.String("mode", "grow", "you can select either 'grow' or 'graph' modes")
	config := flag.String("config", "split_config.json", "a config file for the run of the program")
	logLevel := flag.String("log-level", "info", "one of debug, info, warn, error")
	memprofile := flag.String("memprofile", "", "write memory profile to `file`")

	flag.Parse()

	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	level, err := zerolog.ParseLevel(*logLevel)
	sbl.HandleError(err)
	zerolog.SetGlobalLevel(level)

	modes := map[string]func(string){
		"grow":  grow,
		"graph": graph,
	}
	run, ok := modes[*runMode]
	if !ok {
		log.Fatal().Str("mode", *runMode).Msg("unknown mode")
	}
	run(*config)

	if *memprofile != "" {
		f, err := os.Create(*memprofile)
		sbl.HandleError(err)
		defer func() { sbl.HandleError(f.Close()) }()
		runtime.GC()
		if err := pprof.WriteHeapProfile(f); err != nil {
			log.Fatal().Err(err).Msg("could not write memory profile")
		}
	}
}
