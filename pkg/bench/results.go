// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package bench

import (
	"encoding/json"
	"io"
	"os"

	"github.com/gomlx/dgemm/pkg/support/fsutil"
	"github.com/pkg/errors"
	"k8s.io/klog/v2"
)

// CreateResultsWriter creates a channel to write Result to the given file, one JSON object per line.
// The file is created if needed, and appended to otherwise.
//
// It creates an errReport channel to report an error (or nil) back at the very end.
// If any error occurs, it stops writing, and will report the error back once resultsWriter is closed.
func CreateResultsWriter(filePath string) (resultsWriter chan<- Result, errReport <-chan error) {
	resultsChan := make(chan Result, 16)
	resultsWriter = resultsChan
	errChan := make(chan error, 1)
	errReport = errChan
	go func() {
		var f *os.File
		var enc *json.Encoder
		filePath, err := fsutil.PrepareOutputFile(filePath)
		if err == nil {
			f, err = os.OpenFile(filePath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0664)
			if err != nil {
				err = errors.Wrapf(err, "failed to open results file %q for append", filePath)
			} else {
				enc = json.NewEncoder(f)
			}
		}
		if err != nil {
			klog.Errorf("Error: %v", err)
		}
		for result := range resultsChan {
			if err != nil {
				// Drain the channel, so writers don't block.
				continue
			}
			err = enc.Encode(result)
			if err != nil {
				err = errors.Wrapf(err, "failed to encode results of case %s", result.Case)
				klog.Errorf("Error: %v", err)
			}
		}
		if f != nil {
			if err == nil {
				err = f.Close()
			} else {
				_ = f.Close()
			}
		}
		errChan <- err
	}()
	return
}

// LoadResults parses all results saved in the given file by CreateResultsWriter.
func LoadResults(filePath string) ([]Result, error) {
	filePath, err := fsutil.ReplaceTildeInDir(filePath)
	if err != nil {
		return nil, err
	}
	f, err := os.Open(filePath)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to read results file %q", filePath)
	}
	defer func() { _ = f.Close() }()

	dec := json.NewDecoder(f)
	var results []Result
	for {
		var result Result
		err := dec.Decode(&result)
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, errors.Wrapf(err, "error while decoding results file %q", filePath)
		}
		results = append(results, result)
	}
	return results, nil
}
