// Copyright (C) 2021  Ambassador Labs
//
// SPDX-License-Identifier: Apache-2.0

package pep425_test

import (
	"strconv"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/datawire/editwheel/pkg/python/pep425"
)

func TestParseTag(t *testing.T) {
	type TestCase struct {
		Input     string
		OutputVal pep425.Tag
		OutputErr string
	}
	testcases := []TestCase{
		{"py3-none-any", pep425.Tag{"py3", "none", "any"}, ""},
		{"cp39-cp39-manylinux_2_17_x86_64.manylinux2014_x86_64",
			pep425.Tag{"cp39", "cp39", "manylinux_2_17_x86_64.manylinux2014_x86_64"}, ""},
		{"py3-none", pep425.Tag{}, `pep425.ParseTag: invalid tag "py3-none": expected 3 dash-separated parts, got 2`},
		{"py3-none-any-x", pep425.Tag{}, `pep425.ParseTag: invalid tag "py3-none-any-x": expected 3 dash-separated parts, got 4`},
		{"py3--any", pep425.Tag{}, `pep425.ParseTag: invalid tag "py3--any": empty component`},
	}
	t.Parallel()
	for i, tc := range testcases {
		tc := tc
		t.Run(strconv.Itoa(i), func(t *testing.T) {
			t.Parallel()
			tag, err := pep425.ParseTag(tc.Input)
			if tc.OutputErr != "" {
				assert.EqualError(t, err, tc.OutputErr)
			} else {
				require.NoError(t, err)
				assert.Equal(t, tc.OutputVal, tag)
				assert.Equal(t, tc.Input, tag.String())
			}
		})
	}
}

func TestCompress(t *testing.T) {
	t.Parallel()
	assert.Equal(t, pep425.Tag{}, pep425.Compress(nil))
	assert.Equal(t,
		pep425.Tag{"py2.py3", "none", "any"},
		pep425.Compress([]pep425.Tag{
			{"py2", "none", "any"},
			{"py3", "none", "any"},
		}))
	assert.Equal(t,
		pep425.Tag{"cp39", "cp39", "manylinux_2_17_x86_64.manylinux2014_x86_64"},
		pep425.Compress([]pep425.Tag{
			{"cp39", "cp39", "manylinux_2_17_x86_64"},
			{"cp39", "cp39", "manylinux2014_x86_64"},
		}))

	tag := pep425.Tag{"py2.py3", "none", "linux_x86_64.linux_i686"}
	assert.Equal(t, tag, pep425.Compress(tag.Decompress()))
}
