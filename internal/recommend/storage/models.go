// Wayfarer - Experience Recommendation Engine
// Copyright 2026 Wayfarer Labs
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/wayfarerhq/wayfarer

package storage

import (
	"bytes"
	"compress/gzip"
	"crypto/sha256"
	"encoding/gob"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/goccy/go-json"
)

// ErrNotFound is returned when no artifact exists for the requested name.
var ErrNotFound = errors.New("storage: model artifact not found")

// ErrCorrupted is returned when a stored artifact fails checksum
// verification.
var ErrCorrupted = errors.New("storage: model artifact corrupted")

// Metadata describes one stored artifact pair. A JSON copy is written next
// to the binary file so operators can inspect what is deployed without
// decoding gob.
type Metadata struct {
	// Algorithm is the model identifier ("sgd" or "als").
	Algorithm string `json:"algorithm"`

	// Version increases monotonically per algorithm.
	Version int `json:"version"`

	// TrainedAt is when training finished.
	TrainedAt time.Time `json:"trained_at"`

	// SavedAt is when the artifact was written.
	SavedAt time.Time `json:"saved_at"`

	// Users, Items and Rows echo the training table shape.
	Users int `json:"users"`
	Items int `json:"items"`
	Rows  int `json:"rows"`

	// Hyperparameters is the JSON form of the training configuration the
	// artifact was produced with.
	Hyperparameters json.RawMessage `json:"hyperparameters,omitempty"`

	// Metrics holds training and evaluation figures keyed like
	// "precision@10" or "train_rmse".
	Metrics map[string]float64 `json:"metrics,omitempty"`

	// ModelChecksum and EncoderChecksum are SHA-256 hex digests of the
	// uncompressed blobs.
	ModelChecksum   string `json:"model_checksum"`
	EncoderChecksum string `json:"encoder_checksum"`

	// SizeBytes is the compressed on-disk size of both blobs.
	SizeBytes int64 `json:"size_bytes"`

	// TrainingDurationMS is how long training took.
	TrainingDurationMS int64 `json:"training_duration_ms"`
}

// Artifact is a loaded model/encoder blob pair with its metadata. The two
// blobs always come from the same training run; the store never returns a
// mixed pair.
type Artifact struct {
	Metadata Metadata
	Model    []byte
	Encoders []byte
}

// storedFile is the gob on-disk format. Both blobs travel in one file so a
// partial deploy cannot split the pair.
type storedFile struct {
	Metadata           Metadata
	CompressedModel    []byte
	CompressedEncoders []byte
}

// Store persists model artifacts under a base directory, one versioned file
// per save plus a JSON metadata sidecar. Writes go through a temp file and
// rename, so readers never observe a half-written artifact.
type Store struct {
	baseDir string

	mu       sync.RWMutex
	versions map[string]int
}

// NewStore opens (creating if needed) an artifact store rooted at baseDir
// and indexes any artifacts already present.
func NewStore(baseDir string) (*Store, error) {
	if err := os.MkdirAll(baseDir, 0o750); err != nil {
		return nil, fmt.Errorf("create storage directory: %w", err)
	}
	s := &Store{
		baseDir:  baseDir,
		versions: make(map[string]int),
	}
	if err := s.scan(); err != nil {
		return nil, fmt.Errorf("scan existing artifacts: %w", err)
	}
	return s, nil
}

func (s *Store) scan() error {
	entries, err := os.ReadDir(s.baseDir)
	if err != nil {
		return err
	}
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		name, version, ok := parseArtifactFilename(entry.Name())
		if !ok {
			continue
		}
		if current, seen := s.versions[name]; !seen || version > current {
			s.versions[name] = version
		}
	}
	return nil
}

// parseArtifactFilename splits "sgd_v3.bin" into ("sgd", 3, true).
func parseArtifactFilename(filename string) (string, int, bool) {
	base, found := strings.CutSuffix(filename, ".bin")
	if !found {
		return "", 0, false
	}
	idx := strings.LastIndex(base, "_v")
	if idx < 1 {
		return "", 0, false
	}
	version, err := strconv.Atoi(base[idx+2:])
	if err != nil || version < 1 {
		return "", 0, false
	}
	return base[:idx], version, true
}

// Save writes a new artifact version for the algorithm and returns its
// completed metadata. The version is assigned by the store.
func (s *Store) Save(a Artifact) (Metadata, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	meta := a.Metadata
	meta.Version = s.versions[meta.Algorithm] + 1
	meta.SavedAt = time.Now().UTC()
	meta.ModelChecksum = checksum(a.Model)
	meta.EncoderChecksum = checksum(a.Encoders)

	compressedModel, err := compress(a.Model)
	if err != nil {
		return Metadata{}, fmt.Errorf("compress model blob: %w", err)
	}
	compressedEncoders, err := compress(a.Encoders)
	if err != nil {
		return Metadata{}, fmt.Errorf("compress encoder blob: %w", err)
	}
	meta.SizeBytes = int64(len(compressedModel) + len(compressedEncoders))

	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(storedFile{
		Metadata:           meta,
		CompressedModel:    compressedModel,
		CompressedEncoders: compressedEncoders,
	}); err != nil {
		return Metadata{}, fmt.Errorf("encode artifact file: %w", err)
	}

	path := s.artifactPath(meta.Algorithm, meta.Version)
	if err := writeAtomic(path, buf.Bytes()); err != nil {
		return Metadata{}, fmt.Errorf("write artifact: %w", err)
	}

	// Metadata sidecar is best-effort human convenience; the binary file
	// carries the authoritative copy.
	if sidecar, err := json.MarshalIndent(meta, "", "  "); err == nil {
		_ = writeAtomic(s.sidecarPath(meta.Algorithm, meta.Version), sidecar)
	}

	s.versions[meta.Algorithm] = meta.Version
	return meta, nil
}

// Load reads an artifact by algorithm and version. Version 0 loads the
// latest. Both blobs are checksum-verified before being returned.
func (s *Store) Load(algorithm string, version int) (Artifact, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if version == 0 {
		var ok bool
		version, ok = s.versions[algorithm]
		if !ok {
			return Artifact{}, fmt.Errorf("%w: %s", ErrNotFound, algorithm)
		}
	}

	f, err := os.Open(s.artifactPath(algorithm, version))
	if err != nil {
		if os.IsNotExist(err) {
			return Artifact{}, fmt.Errorf("%w: %s v%d", ErrNotFound, algorithm, version)
		}
		return Artifact{}, fmt.Errorf("open artifact: %w", err)
	}
	defer func() { _ = f.Close() }()

	var sf storedFile
	if err := gob.NewDecoder(f).Decode(&sf); err != nil {
		return Artifact{}, fmt.Errorf("decode artifact file: %w", err)
	}

	model, err := decompress(sf.CompressedModel)
	if err != nil {
		return Artifact{}, fmt.Errorf("decompress model blob: %w", err)
	}
	encoders, err := decompress(sf.CompressedEncoders)
	if err != nil {
		return Artifact{}, fmt.Errorf("decompress encoder blob: %w", err)
	}

	if got := checksum(model); got != sf.Metadata.ModelChecksum {
		return Artifact{}, fmt.Errorf("%w: model checksum %s, expected %s",
			ErrCorrupted, got, sf.Metadata.ModelChecksum)
	}
	if got := checksum(encoders); got != sf.Metadata.EncoderChecksum {
		return Artifact{}, fmt.Errorf("%w: encoder checksum %s, expected %s",
			ErrCorrupted, got, sf.Metadata.EncoderChecksum)
	}

	return Artifact{Metadata: sf.Metadata, Model: model, Encoders: encoders}, nil
}

// LatestVersion reports the newest stored version for an algorithm.
func (s *Store) LatestVersion(algorithm string) (int, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.versions[algorithm]
	return v, ok
}

// List returns metadata for the latest artifact of every algorithm.
func (s *Store) List() ([]Metadata, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var metas []Metadata
	for algorithm, version := range s.versions {
		f, err := os.Open(s.artifactPath(algorithm, version))
		if err != nil {
			continue
		}
		var sf storedFile
		err = gob.NewDecoder(f).Decode(&sf)
		_ = f.Close()
		if err != nil {
			continue
		}
		metas = append(metas, sf.Metadata)
	}
	return metas, nil
}

// Prune deletes all but the newest keep versions of an algorithm.
func (s *Store) Prune(algorithm string, keep int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if keep < 1 {
		keep = 1
	}
	latest, ok := s.versions[algorithm]
	if !ok {
		return nil
	}
	entries, err := os.ReadDir(s.baseDir)
	if err != nil {
		return fmt.Errorf("read storage directory: %w", err)
	}
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		name, version, parsed := parseArtifactFilename(entry.Name())
		if !parsed || name != algorithm {
			continue
		}
		if version <= latest-keep {
			_ = os.Remove(s.artifactPath(algorithm, version))
			_ = os.Remove(s.sidecarPath(algorithm, version))
		}
	}
	return nil
}

func (s *Store) artifactPath(algorithm string, version int) string {
	return filepath.Join(s.baseDir, fmt.Sprintf("%s_v%d.bin", algorithm, version))
}

func (s *Store) sidecarPath(algorithm string, version int) string {
	return filepath.Join(s.baseDir, fmt.Sprintf("%s_v%d.json", algorithm, version))
}

// writeAtomic writes data to path via a temp file in the same directory
// followed by a rename.
func writeAtomic(path string, data []byte) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), filepath.Base(path)+".tmp-*")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
		return err
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpName)
		return err
	}
	if err := os.Rename(tmpName, path); err != nil {
		_ = os.Remove(tmpName)
		return err
	}
	return nil
}

func checksum(data []byte) string {
	h := sha256.Sum256(data)
	return hex.EncodeToString(h[:])
}

func compress(data []byte) ([]byte, error) {
	var buf bytes.Buffer
	gw := gzip.NewWriter(&buf)
	if _, err := gw.Write(data); err != nil {
		return nil, err
	}
	if err := gw.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func decompress(data []byte) ([]byte, error) {
	gr, err := gzip.NewReader(bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	defer func() { _ = gr.Close() }()
	return io.ReadAll(gr)
}
