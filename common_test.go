// Copyright ©2022 Evolution. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Tests for reusable parts of vmaftools application and subcommand infrastructure.
package main

import (
	"os"
	"path"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func Test_fileExists(t *testing.T) {
	tempDir := t.TempDir()
	regularFile := path.Join(tempDir, "regular")
	require.NoError(t, os.WriteFile(regularFile, []byte("x"), 0o644))

	tests := map[string]struct {
		given string
		want  bool
	}{
		"Regular file exists": {
			given: regularFile,
			want:  true,
		},
		"Directory is not a regular file": {
			given: tempDir,
			want:  false,
		},
		"Missing path does not exist": {
			given: path.Join(tempDir, "missing"),
			want:  false,
		},
		"Empty path does not exist": {
			given: "",
			want:  false,
		},
	}

	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			assert.Equal(t, tc.want, fileExists(tc.given))
		})
	}
}

func Test_AppError(t *testing.T) {
	err := &AppError{msg: "some failure", exitCode: 2}
	assert.Equal(t, "some failure", err.Error())
	assert.Equal(t, 2, err.ExitCode())
}
