package datasets

import (
	"bufio"
	"encoding/json"
	"os"

	"github.com/pkg/errors"

	"github.com/lucasbrambrink/deepvariant/pkg/model"
	"github.com/lucasbrambrink/deepvariant/pkg/nprand"
)

// maxLineBytes bounds a single JSONL example line.
const maxLineBytes = 4 << 20

type jsonlExample struct {
	Features []float64 `json:"features"`
	Label    int       `json:"label"`
}

// JSONL is an in-memory dataset loaded from a JSON-lines examples file, one
// example per line. Examples are shuffled once at load with the run seed.
type JSONL struct {
	name     string
	features [][]float64
	labels   []int
}

// OpenJSONL loads the examples file named by the config. Every example must
// match the expected feature width; the declared num_examples must match the
// file so steps-per-epoch arithmetic stays truthful.
func OpenJSONL(config *model.DatasetConfig, featureWidth int, seed uint32) (*JSONL, error) {
	f, err := os.Open(config.Path)
	if err != nil {
		return nil, errors.Wrapf(err, "opening examples %s", config.Path)
	}
	defer f.Close()

	ds := &JSONL{name: config.Name}
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 64<<10), maxLineBytes)
	line := 0
	for scanner.Scan() {
		line++
		if len(scanner.Bytes()) == 0 {
			continue
		}
		var ex jsonlExample
		if err := json.Unmarshal(scanner.Bytes(), &ex); err != nil {
			return nil, errors.Wrapf(err, "parsing %s line %d", config.Path, line)
		}
		if len(ex.Features) != featureWidth {
			return nil, errors.Errorf("%s line %d has %d features, expected %d",
				config.Path, line, len(ex.Features), featureWidth)
		}
		ds.features = append(ds.features, ex.Features)
		ds.labels = append(ds.labels, ex.Label)
	}
	if err := scanner.Err(); err != nil {
		return nil, errors.Wrapf(err, "reading examples %s", config.Path)
	}
	if len(ds.features) != config.NumExamples {
		return nil, errors.Errorf("%s holds %d examples, config declares %d",
			config.Path, len(ds.features), config.NumExamples)
	}

	ds.shuffle(seed)
	return ds, nil
}

func (ds *JSONL) shuffle(seed uint32) {
	rng := nprand.New(seed)
	rng.Shuffle(len(ds.features), func(i, j int) {
		ds.features[i], ds.features[j] = ds.features[j], ds.features[i]
		ds.labels[i], ds.labels[j] = ds.labels[j], ds.labels[i]
	})
}

// Name implements the model.Dataset interface.
func (ds *JSONL) Name() string { return ds.name }

// NumExamples implements the model.Dataset interface.
func (ds *JSONL) NumExamples() int { return len(ds.features) }

// Batch implements the model.Dataset interface, wrapping around the shuffled
// examples so the sequence repeats epoch after epoch.
func (ds *JSONL) Batch(index, size int) (model.Batch, error) {
	if err := checkBatchArgs(index, size, len(ds.features)); err != nil {
		return model.Batch{}, errors.Wrapf(err, "dataset %s", ds.name)
	}
	batch := model.Batch{
		Features: make([][]float64, 0, size),
		Labels:   make([]int, 0, size),
	}
	for _, i := range wrapIndex(index*size, size, len(ds.features)) {
		batch.Features = append(batch.Features, ds.features[i])
		batch.Labels = append(batch.Labels, ds.labels[i])
	}
	return batch, nil
}
