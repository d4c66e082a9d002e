package repository

import (
	"archive/tar"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"sort"
	"strconv"
	"strings"

	"github.com/klauspost/compress/zstd"

	"codearena/internal/common/storage"
	"codearena/internal/judge/model"
	appErr "codearena/pkg/errors"
)

const (
	defaultDataPackMaxBytes = 256 << 20
	inputSuffix             = ".in"
	outputSuffix            = ".out"
)

// DataPackLoader reads test cases from a zstd compressed tar in object
// storage. Entries are named NNN.in and NNN.out; cases are ordered by NNN.
type DataPackLoader struct {
	storage  storage.ObjectStorage
	bucket   string
	maxBytes int64
}

func NewDataPackLoader(objectStorage storage.ObjectStorage, bucket string, maxBytes int64) *DataPackLoader {
	if maxBytes <= 0 {
		maxBytes = defaultDataPackMaxBytes
	}
	return &DataPackLoader{storage: objectStorage, bucket: bucket, maxBytes: maxBytes}
}

func (l *DataPackLoader) Load(ctx context.Context, key string) ([]model.TestCase, error) {
	if key == "" {
		return nil, appErr.ValidationError("data_pack_key", "required")
	}
	obj, err := l.storage.GetObject(ctx, l.bucket, key)
	if err != nil {
		if errors.Is(err, storage.ErrObjectNotFound) {
			return nil, appErr.Newf(appErr.TestCaseNotFound, "data pack %s not found", key)
		}
		return nil, appErr.Wrapf(err, appErr.StorageError, "fetch data pack failed")
	}
	defer obj.Close()
	return DecodeDataPack(io.LimitReader(obj, l.maxBytes))
}

// DecodeDataPack parses a zstd compressed tar of NNN.in/NNN.out pairs.
func DecodeDataPack(r io.Reader) ([]model.TestCase, error) {
	zr, err := zstd.NewReader(r)
	if err != nil {
		return nil, appErr.Wrapf(err, appErr.DataPackInvalid, "create zstd reader failed")
	}
	defer zr.Close()

	inputs := make(map[int]string)
	outputs := make(map[int]string)
	tr := tar.NewReader(zr)
	for {
		hdr, err := tr.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, appErr.Wrapf(err, appErr.DataPackInvalid, "read tar entry failed")
		}
		if hdr.Typeflag != tar.TypeReg {
			continue
		}
		name := path.Base(hdr.Name)
		var target map[int]string
		var stem string
		switch {
		case strings.HasSuffix(name, inputSuffix):
			target, stem = inputs, strings.TrimSuffix(name, inputSuffix)
		case strings.HasSuffix(name, outputSuffix):
			target, stem = outputs, strings.TrimSuffix(name, outputSuffix)
		default:
			continue
		}
		index, err := strconv.Atoi(stem)
		if err != nil {
			return nil, appErr.Newf(appErr.DataPackInvalid, "unexpected data pack entry %q", hdr.Name)
		}
		data, err := io.ReadAll(tr)
		if err != nil {
			return nil, appErr.Wrapf(err, appErr.DataPackInvalid, "read %s failed", hdr.Name)
		}
		target[index] = string(data)
	}

	indexes := make([]int, 0, len(inputs))
	for index := range inputs {
		if _, ok := outputs[index]; !ok {
			return nil, appErr.Newf(appErr.DataPackInvalid, "case %d has no expected output", index)
		}
		indexes = append(indexes, index)
	}
	if len(indexes) != len(outputs) {
		return nil, appErr.New(appErr.DataPackInvalid).WithMessage("data pack has outputs without inputs")
	}
	if len(indexes) == 0 {
		return nil, appErr.New(appErr.DataPackInvalid).WithMessage("data pack is empty")
	}
	sort.Ints(indexes)

	cases := make([]model.TestCase, 0, len(indexes))
	for _, index := range indexes {
		cases = append(cases, model.TestCase{Input: inputs[index], ExpectedOutput: outputs[index]})
	}
	return cases, nil
}

// EncodeDataPack writes cases in the layout DecodeDataPack reads, numbered from 1.
func EncodeDataPack(cases []model.TestCase) ([]byte, error) {
	var buf bytes.Buffer
	zw, err := zstd.NewWriter(&buf)
	if err != nil {
		return nil, fmt.Errorf("create zstd writer failed: %w", err)
	}
	tw := tar.NewWriter(zw)
	for i, tc := range cases {
		stem := fmt.Sprintf("%03d", i+1)
		if err := writeTarFile(tw, stem+inputSuffix, tc.Input); err != nil {
			return nil, err
		}
		if err := writeTarFile(tw, stem+outputSuffix, tc.ExpectedOutput); err != nil {
			return nil, err
		}
	}
	if err := tw.Close(); err != nil {
		return nil, fmt.Errorf("close tar writer failed: %w", err)
	}
	if err := zw.Close(); err != nil {
		return nil, fmt.Errorf("close zstd writer failed: %w", err)
	}
	return buf.Bytes(), nil
}

func writeTarFile(tw *tar.Writer, name, content string) error {
	hdr := &tar.Header{Name: name, Mode: 0o644, Size: int64(len(content)), Typeflag: tar.TypeReg}
	if err := tw.WriteHeader(hdr); err != nil {
		return fmt.Errorf("write tar header %s failed: %w", name, err)
	}
	if _, err := io.WriteString(tw, content); err != nil {
		return fmt.Errorf("write tar entry %s failed: %w", name, err)
	}
	return nil
}
