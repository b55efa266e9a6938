// Package archive implements the single-file container format read by the
// dataset loader.
//
// An archive is a ZIP file whose entries encode the group hierarchy:
//
//	scaling/                          group (directory entry)
//	scaling/scaling_data.parquet      table, format chosen by extension
//	samples/
//	samples/signal/
//	samples/signal/.attrs.json        group attributes as a JSON object
//	samples/signal/train_features.arrow
//
// Groups enumerate in the order their entries first appear. Tables may be
// Arrow IPC files, Parquet or Avro object container files, and members may
// be stored, deflated or zstd-compressed. Stored members are decoded
// straight from the memory-mapped file.
package archive
