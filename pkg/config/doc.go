// Package config provides configuration management for trainprep.
//
// # Key Features
//
// - Config: single structure shared by the loader, the CLI and observability
// - Structured sections: Layout, Features, Observability, Export, Remote
// - Environment variable substitution with ${VAR_NAME} and ${VAR_NAME:-default}
// - Defaults that reproduce the layout written by the pre-processing stage
//
// # Usage
//
//	cfg, err := config.LoadConfig("trainprep.yaml")
//	if err != nil {
//		log.Fatal(err)
//	}
//
//	loader := dataset.NewLoader(dataset.WithConfig(cfg))
//
// # YAML Layout
//
//	name: train-v3
//	layout:
//	  scaling_group: scaling
//	  scaling_table: scaling_data
//	  samples_group: samples
//	  features_table: train_features
//	  label_attribute: training_label
//	features:
//	  ignore: [eventweight]
//	  strict: true
//	observability:
//	  log_level: ${LOG_LEVEL:-info}
//	remote:
//	  region: eu-west-1
//
// Fields omitted from the file keep their NewConfig defaults.
package config
