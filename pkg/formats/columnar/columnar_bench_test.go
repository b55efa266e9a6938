package columnar

import (
	"bytes"
	"fmt"
	"testing"

	"github.com/apache/arrow-go/v18/arrow/memory"
)

// Benchmark write performance
func BenchmarkColumnarWrite(b *testing.B) {
	cases := []struct {
		format       Format
		compressions []string
	}{
		{Arrow, []string{"none", "lz4", "zstd"}},
		{Parquet, []string{"none", "snappy", "zstd"}},
		{Avro, []string{"null", "deflate", "snappy"}},
	}

	mem := memory.NewGoAllocator()

	for _, tc := range cases {
		for _, count := range []int{1000, 100000} {
			rec := generateEventRecord(mem, count)

			for _, compression := range tc.compressions {
				b.Run(fmt.Sprintf("%s/%d/%s", tc.format, count, compression), func(b *testing.B) {
					b.ResetTimer()

					for i := 0; i < b.N; i++ {
						var buf bytes.Buffer
						writer, err := NewWriter(&buf, &WriterConfig{
							Format:      tc.format,
							Schema:      rec.Schema(),
							Compression: compression,
							BatchSize:   1000,
							EnableStats: true,
						})
						if err != nil {
							b.Fatal(err)
						}
						if err := writer.Write(rec); err != nil {
							b.Fatal(err)
						}
						if err := writer.Close(); err != nil {
							b.Fatal(err)
						}

						b.SetBytes(int64(buf.Len()))
					}
				})
			}
			rec.Release()
		}
	}
}

// Benchmark read performance
func BenchmarkColumnarRead(b *testing.B) {
	const rowCount = 10000
	mem := memory.NewGoAllocator()
	rec := generateEventRecord(mem, rowCount)
	defer rec.Release()

	for _, format := range []Format{Arrow, Parquet, Avro} {
		data := encode(b, rec, &WriterConfig{Format: format, Schema: rec.Schema(), BatchSize: 1000})

		b.Run(string(format), func(b *testing.B) {
			b.SetBytes(int64(len(data)))
			b.ResetTimer()

			for i := 0; i < b.N; i++ {
				reader, err := NewReader(bytes.NewReader(data), &ReaderConfig{Format: format, BatchSize: 1000})
				if err != nil {
					b.Fatal(err)
				}

				out, err := ReadAll(reader, mem)
				if err != nil {
					b.Fatal(err)
				}
				if out.NumRows() != rowCount {
					b.Fatalf("expected %d rows, got %d", rowCount, out.NumRows())
				}
				out.Release()

				if err := reader.Close(); err != nil {
					b.Fatal(err)
				}
			}
		})
	}
}
