// Package trainprep prepares the inputs of a classifier training job from
// pre-processed event containers.
//
// A container holds one scaling table with the mean, scale and variance of
// every feature, and a samples group with one sub-group per physics
// process. Each sample group carries an integer class label and an event
// table whose columns are named after the features.
//
// # Architecture
//
// Loading runs in three stages:
//
// 1. Catalog: the scaling table becomes a catalog.Catalog holding the raw
// feature list, the trainable list with bookkeeping columns (eventweight)
// removed, and the aligned mean, scale and variance vectors.
//
// 2. Conversion: every event table is checked against the catalog and turned
// into a row-major float64 tensor whose columns follow the trainable order.
//
// 3. Assembly: each tensor is paired with its sample name and class label in
// a sample.Sample, and the samples are collected into a dataset.Dataset.
//
// # Quick Start
//
//	import (
//	    "context"
//	    "github.com/ajitpratap0/trainprep/pkg/config"
//	    "github.com/ajitpratap0/trainprep/pkg/dataset"
//	)
//
//	cfg := config.NewConfig("train-v3")
//	loader := dataset.NewLoader(dataset.WithConfig(cfg))
//
//	ds, err := loader.Load(context.Background(), "inputs/train.zip")
//	if err != nil {
//	    return err
//	}
//	defer ds.Release()
//
//	for _, s := range ds.Samples {
//	    fmt.Println(s.Name(), s.ClassLabel(), s.Shape())
//	}
//
// # Key Packages
//
//	pkg/catalog          - Scaling statistics and the trainable feature list
//	pkg/convert          - Arrow records to float64 tensors
//	pkg/sample           - Labelled event matrices
//	pkg/dataset          - Container loading
//	pkg/container        - Hierarchical container interfaces and an in-memory implementation
//	pkg/container/archive - Zip-backed containers with Arrow, Parquet or Avro tables
//	pkg/fetch            - Staging of s3:// and gs:// inputs
//	pkg/export           - .npy matrices and a JSON manifest
//	pkg/config           - Configuration
//	pkg/errors           - Structured error kinds
//	pkg/logger           - Structured logging
//	pkg/metrics          - Prometheus metrics
//	pkg/observability    - OpenTelemetry tracing
//
// # Errors
//
// Every failure carries an errors.ErrorType. Structural problems with the
// container (missing file, missing group or table) are told apart from
// per-sample failures (type mismatch, invalid label, schema mismatch) with
// errors.IsStructural and errors.IsType.
//
// # Configuration
//
// The container layout, the excluded features and the observability stack
// are driven by config.Config. YAML files support ${VAR_NAME} substitution
// and the trainprep command reads TRAINPREP_* environment overrides.
package trainprep
