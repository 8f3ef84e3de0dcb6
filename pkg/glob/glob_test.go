// Copyright (C) 2022  Ambassador Labs
//
// SPDX-License-Identifier: Apache-2.0

package glob_test

import (
	"errors"
	"path"
	"strconv"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/datawire/editwheel/pkg/glob"
	"github.com/datawire/editwheel/pkg/testutil"
)

func TestMatch(t *testing.T) {
	type TestCase struct {
		Pattern string
		Name    string
		Match   bool
	}
	testcases := []TestCase{
		{"*.so", "foo.so", true},
		{"*.so", "pkg/foo.so", false},
		{"*.so", "foo.so.1", false},
		{"**/*.so", "foo.so", true},
		{"**/*.so", "pkg/foo.so", true},
		{"**/*.so", "pkg/sub/foo.so", true},
		{"**/*.so", "pkg/sub/foo.txt", false},
		{"pkg/**", "pkg/a/b/c", true},
		{"pkg/**", "other/a", false},
		{"pkg/**/lib*.so", "pkg/libx.so", true},
		{"pkg/**/lib*.so", "pkg/a/b/libx.so", true},
		{"?.py", "a.py", true},
		{"?.py", "ab.py", false},
		{"?.py", "/.py", false},
		{"lib[abc].so", "libb.so", true},
		{"lib[abc].so", "libd.so", false},
		{"lib[a-c].so", "libb.so", true},
		{"lib[!a-c].so", "libd.so", true},
		{"lib[!a-c].so", "liba.so", false},
		{"lib[^a-c].so", "libd.so", true},
		{"lib{a,b}.so", "libb.so", true},
		{"lib{a,b}.so", "libc.so", false},
		{"{pkg,lib}/**/*.so", "lib/x/y.so", true},
		{`\*`, "*", true},
		{`\*`, "a", false},
		{"file.txt", "file.txt", true},
		{"file.txt", "fileXtxt", false},
		{"File.txt", "file.txt", false},
		{"numpy.libs/*.so*", "numpy.libs/libgfortran-2e0d59d6.so.5.0.0", true},
		{"(x)+", "(x)+", true},
	}
	t.Parallel()
	for i, tc := range testcases {
		tc := tc
		t.Run(strconv.Itoa(i), func(t *testing.T) {
			t.Parallel()
			pat, err := glob.Compile(tc.Pattern)
			require.NoError(t, err)
			assert.Equal(t, tc.Match, pat.Match(tc.Name), "pattern=%q name=%q", tc.Pattern, tc.Name)
			assert.Equal(t, tc.Pattern, pat.String())
		})
	}
}

func TestCompileErrors(t *testing.T) {
	t.Parallel()
	for _, pattern := range []string{
		"",
		"lib[abc",
		"lib[",
		`trailing\`,
		"lib{a,b",
	} {
		_, err := glob.Compile(pattern)
		assert.Error(t, err, "pattern=%q", pattern)
		assert.True(t, errors.Is(err, glob.ErrInvalidPattern), "pattern=%q", pattern)
	}
}

func TestFilter(t *testing.T) {
	t.Parallel()
	names := []string{
		"demo/__init__.py",
		"demo/_native.so",
		"demo/sub/_other.so",
		"demo-1.0.0.dist-info/RECORD",
	}
	assert.Equal(t,
		[]string{"demo/_native.so", "demo/sub/_other.so"},
		glob.MustCompile("**/*.so").Filter(names))
	assert.Nil(t, glob.MustCompile("*.dll").Filter(names))
}

func TestStarMatchesPathMatch(t *testing.T) {
	t.Parallel()
	for _, pattern := range []string{"*", "*.so", "lib*", "a*b*c", "dir/*"} {
		pattern := pattern
		pat := glob.MustCompile(pattern)
		testutil.QuickCheckEqual(t,
			func(name string) bool {
				return pat.Match(name)
			},
			func(name string) bool {
				ok, err := path.Match(pattern, name)
				return err == nil && ok
			},
			testutil.QuickConfig{},
			[]interface{}{"libfoo.so"},
			[]interface{}{"dir/abc"},
			[]interface{}{"dir/a/b"},
			[]interface{}{"axbyc"},
		)
	}
}
