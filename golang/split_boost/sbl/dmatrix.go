package sbl

import (
	"math"
	"math/rand/v2"
	"os"
	"sort"

	"github.com/cockroachdb/errors"
	"github.com/rs/zerolog/log"
	"github.com/sbinet/npyio"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat/sampleuv"
	"gorgonia.org/tensor"
)

//Dataset is the read-only view of the training data consumed by the split search.
//A feature value is missing when it is NaN. OrderBuffer is feature-major: the segment
//[f*NumObs(), (f+1)*NumObs()) lists all observations sorted by the value of feature f,
//ties broken by observation index and missing values last.
type Dataset interface {
	NumObs() int
	NumFeatures() int
	FeatureValue(obs, feature int) float64
	Response(obs int) float64
	Weight(obs int) float64
	InBag(obs int) bool
	//FeatureClass is 0 for a continuous feature and the number of categories otherwise.
	FeatureClass(feature int) int
	Monotonicity(feature int) Monotonicity
	OrderBuffer() []int
	//RandomOrder returns a random permutation of feature indices.
	RandomOrder() []int
}

//DMatrixParams describes the features of a DMatrix and the per-observation weights.
//Nil slices mean continuous unconstrained features, unit weights and a full bag.
type DMatrixParams struct {
	Classes  []int
	Monotone []Monotonicity
	Weights  []float64
	Bag      []bool
	Seed     uint64
}

//DMatrix is an in-memory Dataset. Categorical values are coded 0..class-1.
type DMatrix struct {
	Features *mat.Dense
	Target   []float64

	weights  []float64
	bag      []bool
	classes  []int
	monotone []Monotonicity

	order *tensor.Dense
	src   *rand.PCG
}

//NewDMatrix validates the inputs and presorts every feature.
func NewDMatrix(features *mat.Dense, target []float64, params DMatrixParams) (*DMatrix, error) {
	h, w := features.Dims()
	if h == 0 || w == 0 {
		return nil, errors.Newf("empty feature matrix %dx%d", h, w)
	}
	if len(target) != h {
		return nil, newDimensionError("NewDMatrix", "target", h, len(target))
	}

	dm := &DMatrix{
		Features: features,
		Target:   target,
		weights:  params.Weights,
		bag:      params.Bag,
		classes:  params.Classes,
		monotone: params.Monotone,
		src:      rand.NewPCG(params.Seed, params.Seed^0x9e3779b97f4a7c15),
	}

	if dm.weights == nil {
		dm.weights = make([]float64, h)
		for ind := range dm.weights {
			dm.weights[ind] = 1
		}
	}
	if len(dm.weights) != h {
		return nil, newDimensionError("NewDMatrix", "weights", h, len(dm.weights))
	}
	for obs, weight := range dm.weights {
		if weight < 0 || math.IsNaN(weight) {
			return nil, errors.Newf("weight of observation %d is %g", obs, weight)
		}
	}

	if dm.bag == nil {
		dm.bag = make([]bool, h)
		for ind := range dm.bag {
			dm.bag[ind] = true
		}
	}
	if len(dm.bag) != h {
		return nil, newDimensionError("NewDMatrix", "bag", h, len(dm.bag))
	}

	if dm.classes == nil {
		dm.classes = make([]int, w)
	}
	if len(dm.classes) != w {
		return nil, newDimensionError("NewDMatrix", "classes", w, len(dm.classes))
	}
	if dm.monotone == nil {
		dm.monotone = make([]Monotonicity, w)
	}
	if len(dm.monotone) != w {
		return nil, newDimensionError("NewDMatrix", "monotone", w, len(dm.monotone))
	}
	for feature, monotonicity := range dm.monotone {
		if !monotonicity.valid() {
			return nil, errors.Newf("monotonicity of feature %d is %d", feature, monotonicity)
		}
	}

	if err := dm.validateCategories(); err != nil {
		return nil, err
	}

	dm.order = presort(features)
	log.Debug().Int("observations", h).Int("features", w).Msg("dmatrix presorted")
	return dm, nil
}

func (dm *DMatrix) validateCategories() error {
	h, _ := dm.Features.Dims()
	for feature, class := range dm.classes {
		if class < 0 {
			return errors.Newf("class of feature %d is %d", feature, class)
		}
		if class == 0 {
			continue
		}
		for obs := 0; obs < h; obs++ {
			x := dm.Features.At(obs, feature)
			if math.IsNaN(x) {
				continue
			}
			if x != math.Trunc(x) || x < 0 || x >= float64(class) {
				return errors.Newf("feature %d of observation %d has category code %g outside [0, %d)", feature, obs, x, class)
			}
		}
	}
	return nil
}

//presort builds the feature-major order buffer as a features×observations tensor.
func presort(features *mat.Dense) *tensor.Dense {
	h, w := features.Dims()
	buffer := make([]int, w*h)
	column := make([]float64, h)

	for feature := 0; feature < w; feature++ {
		mat.Col(column, feature, features)
		indices := buffer[feature*h : (feature+1)*h]
		for ind := range indices {
			indices[ind] = ind
		}
		sort.SliceStable(indices, func(i, j int) bool {
			ai, aj := column[indices[i]], column[indices[j]]
			if math.IsNaN(ai) {
				return false
			}
			return math.IsNaN(aj) || ai < aj
		})
	}

	return tensor.New(tensor.WithShape(w, h), tensor.WithBacking(buffer))
}

func (dm *DMatrix) NumObs() int {
	h, _ := dm.Features.Dims()
	return h
}

func (dm *DMatrix) NumFeatures() int {
	_, w := dm.Features.Dims()
	return w
}

func (dm *DMatrix) FeatureValue(obs, feature int) float64 {
	return dm.Features.At(obs, feature)
}

func (dm *DMatrix) Response(obs int) float64 {
	return dm.Target[obs]
}

func (dm *DMatrix) Weight(obs int) float64 {
	return dm.weights[obs]
}

func (dm *DMatrix) InBag(obs int) bool {
	return dm.bag[obs]
}

func (dm *DMatrix) FeatureClass(feature int) int {
	return dm.classes[feature]
}

func (dm *DMatrix) Monotonicity(feature int) Monotonicity {
	return dm.monotone[feature]
}

func (dm *DMatrix) OrderBuffer() []int {
	return dm.order.Data().([]int)
}

//RandomOrder draws a permutation of all feature indices from the seeded source.
func (dm *DMatrix) RandomOrder() []int {
	w := dm.NumFeatures()
	if w == 0 {
		return nil
	}
	perm := make([]int, w)
	sampleuv.WithoutReplacement(perm, w, dm.src)
	return perm
}

//SetBag replaces the bagging mask used for the next tree.
func (dm *DMatrix) SetBag(bag []bool) error {
	if len(bag) != dm.NumObs() {
		return newDimensionError("SetBag", "bag", dm.NumObs(), len(bag))
	}
	copy(dm.bag, bag)
	return nil
}

//ReadNpy reads the content of npy file
func ReadNpy(fileName string) (*mat.Dense, error) {
	denseMat := &mat.Dense{}
	if err := readNpyInto(fileName, denseMat); err != nil {
		return nil, err
	}
	return denseMat, nil
}

//ReadVector reads the flattened content of npy file.
func ReadVector(fileName string) ([]float64, error) {
	var data []float64
	if err := readNpyInto(fileName, &data); err != nil {
		return nil, err
	}
	return data, nil
}

func readNpyInto(fileName string, ptr interface{}) error {
	f, err := os.Open(fileName)
	if err != nil {
		return errors.Wrapf(err, "open %s", fileName)
	}
	defer f.Close()

	r, err := npyio.NewReader(f)
	if err != nil {
		return errors.Wrapf(err, "read npy header of %s", fileName)
	}
	return errors.Wrapf(r.Read(ptr), "read npy data of %s", fileName)
}

//ReadDMatrix reads the features, the response and optionally the weights of a data set.
func ReadDMatrix(fileNameFeatures, fileNameTarget, fileNameWeights string, params DMatrixParams) (*DMatrix, error) {
	log.Info().Str("file", fileNameFeatures).Msg("load features")
	features, err := ReadNpy(fileNameFeatures)
	if err != nil {
		return nil, err
	}
	log.Info().Str("file", fileNameTarget).Msg("load target")
	target, err := ReadVector(fileNameTarget)
	if err != nil {
		return nil, err
	}
	if fileNameWeights != "" {
		log.Info().Str("file", fileNameWeights).Msg("load weights")
		if params.Weights, err = ReadVector(fileNameWeights); err != nil {
			return nil, err
		}
	}
	return NewDMatrix(features, target, params)
}
