/*
Copyright The Helm Authors.
Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

// Package driver implements the Release Store's storage backends: a
// release record is JSON-encoded, compressed, base64-encoded, then
// placed into a driver-native object's value field (a Secret's data or a
// ConfigMap's data). Oversized records are split across chunk objects;
// codec.go holds the encode/decode/chunking logic those drivers share.
// The File driver writes gzip-compressed JSON to disk without base64 or
// chunking.
package driver

import (
	"bytes"
	"compress/gzip"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"

	"github.com/klauspost/compress/zstd"
	"github.com/pkg/errors"

	"sherpack.sh/sherpack/pkg/release"
)

// Compression names a codec.go compression algorithm.
type Compression string

const (
	CompressionNone Compression = "none"
	CompressionGzip Compression = "gzip"
	CompressionZstd Compression = "zstd"
)

// DefaultCompression matches the spec's default (zstd level 3).
const DefaultCompression = CompressionZstd

// chunkThreshold is the driver hard limit a base64-encoded payload may
// reach before the record is split into chunk objects.
const chunkThreshold = 1 << 20 // ~1 MiB

// chunkSize bounds each individual chunk object's size.
const chunkSize = 700 * 1024 // ~700 KiB

// Label keys applied to every persisted storage object.
const (
	LabelManagedBy    = "app.kubernetes.io/managed-by"
	LabelReleaseName  = "sherpack.io/release-name"
	LabelReleaseVer   = "sherpack.io/release-version"
	LabelReleaseNS    = "sherpack.io/release-namespace"
	LabelChunked      = "sherpack.io/chunked"
	LabelChunkIndex   = "sherpack.io/chunk-index"
	LabelChunkParent  = "sherpack.io/chunk-parent"
	ManagedByValue    = "sherpack"
)

// StorageKey is the canonical key a release record is stored under.
func StorageKey(name string, version int) string {
	return fmt.Sprintf("sh.sherpack.release.v1.%s.v%d", name, version)
}

// ChunkKey is the key an individual chunk object of base is stored under.
func ChunkKey(base string, i int) string {
	return fmt.Sprintf("%s.chunk.%d", base, i)
}

// BaseLabels returns the mandatory labels every persisted release object
// (index or chunk) must carry.
func BaseLabels(rel *release.Release) map[string]string {
	return map[string]string{
		LabelManagedBy:   ManagedByValue,
		LabelReleaseName: rel.Name,
		LabelReleaseVer:  fmt.Sprintf("%d", rel.Version),
		LabelReleaseNS:   rel.Namespace,
	}
}

// Record is the decoded form of a release, ready for JSON encoding.
type Record struct {
	Name      string                 `json:"name"`
	Namespace string                 `json:"namespace"`
	Version   int                    `json:"version"`
	Status    release.Status         `json:"status"`
	Manifest  string                 `json:"manifest"`
	Values    map[string]interface{} `json:"values,omitempty"`
	Chart     *release.ChartMeta     `json:"chart,omitempty"`
	Info      *release.Info          `json:"info,omitempty"`
}

// Index describes a chunked record's index object: everything a reader
// needs to reassemble, verify, and decode the chunks.
type Index struct {
	Format      string      `json:"format"`
	TotalSize   int         `json:"total_size"`
	ChunkCount  int         `json:"chunk_count"`
	ChunkSize   int         `json:"chunk_size"`
	Checksum    string      `json:"checksum"`
	Compression Compression `json:"compression"`
}

// Encoded is the result of Encode: either a single inline payload, or an
// Index plus the chunk payloads to store alongside it.
type Encoded struct {
	Inline string   // non-empty when the record fit in one object
	Index  *Index   // non-nil when the record was chunked
	Chunks []string // chunk payloads, parallel to Index.ChunkCount
}

// Encode serializes a Release to JSON, compresses it, and base64-encodes
// the result, splitting into chunks when the encoded payload exceeds the
// driver hard limit.
func Encode(rel *release.Release, compression Compression) (*Encoded, error) {
	record := toRecord(rel)
	raw, err := json.Marshal(record)
	if err != nil {
		return nil, errors.Wrap(err, "storage: failed to marshal release record")
	}

	compressed, err := compress(raw, compression)
	if err != nil {
		return nil, err
	}
	payload := base64.StdEncoding.EncodeToString(compressed)

	if len(payload) <= chunkThreshold {
		return &Encoded{Inline: payload}, nil
	}

	sum := sha256.Sum256([]byte(payload))
	var chunks []string
	for start := 0; start < len(payload); start += chunkSize {
		end := start + chunkSize
		if end > len(payload) {
			end = len(payload)
		}
		chunks = append(chunks, payload[start:end])
	}
	return &Encoded{
		Chunks: chunks,
		Index: &Index{
			Format:      "chunked",
			TotalSize:   len(payload),
			ChunkCount:  len(chunks),
			ChunkSize:   chunkSize,
			Checksum:    hex.EncodeToString(sum[:]),
			Compression: compression,
		},
	}, nil
}

// Decode reverses Encode: concatenated chunk payloads (or the inline
// payload) are verified against idx (when non-nil), base64-decoded,
// decompressed, and unmarshaled back into a Release.
func Decode(payload string, idx *Index, fallbackCompression Compression) (*release.Release, error) {
	compression := fallbackCompression
	if idx != nil {
		compression = idx.Compression
		sum := sha256.Sum256([]byte(payload))
		if hex.EncodeToString(sum[:]) != idx.Checksum {
			return nil, errors.New("storage: chunk checksum mismatch, record is corrupt")
		}
		if len(payload) != idx.TotalSize {
			return nil, errors.Errorf("storage: chunked payload size %d does not match index total_size %d", len(payload), idx.TotalSize)
		}
	}

	compressed, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		return nil, errors.Wrap(err, "storage: failed to base64-decode release payload")
	}
	raw, err := decompress(compressed, compression)
	if err != nil {
		return nil, err
	}
	var record Record
	if err := json.Unmarshal(raw, &record); err != nil {
		return nil, errors.Wrap(err, "storage: failed to unmarshal release record")
	}
	return fromRecord(&record), nil
}

// ConcatenateChunks joins chunk payloads sorted by index into the single
// payload string Decode expects.
func ConcatenateChunks(chunks map[int]string, count int) (string, error) {
	var buf bytes.Buffer
	for i := 0; i < count; i++ {
		c, ok := chunks[i]
		if !ok {
			return "", errors.Errorf("storage: missing chunk %d of %d, record is incomplete", i, count)
		}
		buf.WriteString(c)
	}
	return buf.String(), nil
}

func compress(data []byte, c Compression) ([]byte, error) {
	switch c {
	case CompressionNone:
		return data, nil
	case CompressionGzip:
		var buf bytes.Buffer
		w := gzip.NewWriter(&buf)
		if _, err := w.Write(data); err != nil {
			return nil, errors.Wrap(err, "storage: gzip compression failed")
		}
		if err := w.Close(); err != nil {
			return nil, errors.Wrap(err, "storage: gzip compression failed")
		}
		return buf.Bytes(), nil
	case CompressionZstd, "":
		enc, err := zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
		if err != nil {
			return nil, errors.Wrap(err, "storage: zstd encoder init failed")
		}
		defer enc.Close()
		return enc.EncodeAll(data, nil), nil
	default:
		return nil, errors.Errorf("storage: unknown compression %q", c)
	}
}

func decompress(data []byte, c Compression) ([]byte, error) {
	switch c {
	case CompressionNone:
		return data, nil
	case CompressionGzip:
		r, err := gzip.NewReader(bytes.NewReader(data))
		if err != nil {
			return nil, errors.Wrap(err, "storage: gzip decompression failed")
		}
		defer r.Close()
		return io.ReadAll(r)
	case CompressionZstd, "":
		dec, err := zstd.NewReader(nil)
		if err != nil {
			return nil, errors.Wrap(err, "storage: zstd decoder init failed")
		}
		defer dec.Close()
		return dec.DecodeAll(data, nil)
	default:
		return nil, errors.Errorf("storage: unknown compression %q", c)
	}
}

func toRecord(rel *release.Release) *Record {
	return &Record{
		Name:      rel.Name,
		Namespace: rel.Namespace,
		Version:   rel.Version,
		Status:    rel.Info.Status,
		Manifest:  rel.Manifest,
		Values:    rel.Values,
		Chart:     rel.Chart,
		Info:      rel.Info,
	}
}

func fromRecord(r *Record) *release.Release {
	info := r.Info
	if info == nil {
		info = &release.Info{Status: r.Status}
	}
	return &release.Release{
		Name:      r.Name,
		Namespace: r.Namespace,
		Version:   r.Version,
		Manifest:  r.Manifest,
		Values:    r.Values,
		Chart:     r.Chart,
		Info:      info,
	}
}
