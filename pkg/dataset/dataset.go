package dataset

import (
	"github.com/apache/arrow-go/v18/arrow"

	"github.com/ajitpratap0/trainprep/pkg/catalog"
	"github.com/ajitpratap0/trainprep/pkg/errors"
	"github.com/ajitpratap0/trainprep/pkg/sample"
)

// Dataset is the result of a successful load
type Dataset struct {
	// Samples in container enumeration order
	Samples []*sample.Sample
	// Catalog whose FeatureList orders every sample's columns
	Catalog *catalog.Catalog
}

// Names returns the sample names in order
func (d *Dataset) Names() []string {
	out := make([]string, len(d.Samples))
	for i, s := range d.Samples {
		out[i] = s.Name()
	}
	return out
}

// Labels returns the class labels in sample order
func (d *Dataset) Labels() []int {
	out := make([]int, len(d.Samples))
	for i, s := range d.Samples {
		out[i] = s.ClassLabel()
	}
	return out
}

// Sample looks up a sample by name
func (d *Dataset) Sample(name string) (*sample.Sample, bool) {
	for _, s := range d.Samples {
		if s.Name() == name {
			return s, true
		}
	}
	return nil, false
}

// NumEvents is the total number of events across samples
func (d *Dataset) NumEvents() int {
	n := 0
	for _, s := range d.Samples {
		n += s.NumEvents()
	}
	return n
}

// Release releases every sample
func (d *Dataset) Release() {
	for _, s := range d.Samples {
		s.Release()
	}
}

// checkFields rejects record fields that have no scaling entry
func checkFields(fields []arrow.Field, cat *catalog.Catalog) error {
	known := make(map[string]struct{})
	for _, name := range cat.RawFeatureList() {
		known[name] = struct{}{}
	}
	for _, f := range fields {
		if _, ok := known[f.Name]; !ok {
			return errors.Newf(errors.ErrorTypeSchemaMismatch,
				"field %q has no scaling entry", f.Name).
				WithDetail("feature", f.Name)
		}
	}
	return nil
}
