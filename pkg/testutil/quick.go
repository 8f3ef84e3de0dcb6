// Copyright (C) 2021-2022  Ambassador Labs
//
// SPDX-License-Identifier: Apache-2.0

package testutil

import (
	"errors"
	"fmt"
	"reflect"
	"testing"
	"testing/quick"

	"github.com/stretchr/testify/assert"
)

type QuickConfig = quick.Config

// QuickCheckEqual is like testing/quick.CheckEqual, but after the random inputs it also feeds
// fn1 and fn2 each of the fixed argument lists in staticCases, so that known edge cases are
// always covered.
func QuickCheckEqual(t *testing.T, fn1, fn2 interface{}, cfg QuickConfig, staticCases ...[]interface{}) {
	t.Helper()
	err := quick.CheckEqual(fn1, fn2, &cfg)
	assert.NoError(t, err)
	var setupErr quick.SetupError
	if errors.As(err, &setupErr) {
		return
	}

	fn1Val, fn2Val := reflect.ValueOf(fn1), reflect.ValueOf(fn2)
	for i, staticCase := range staticCases {
		args, err := staticArgs(fn1Val.Type(), staticCase)
		if err != nil {
			t.Errorf("static#%d: %v", i, err)
			continue
		}
		out1 := interfaces(fn1Val.Call(args))
		out2 := interfaces(fn2Val.Call(args))
		if reflect.DeepEqual(out1, out2) {
			continue
		}
		assert.NoError(t, fmt.Errorf("static%w", &quick.CheckEqualError{
			CheckError: quick.CheckError{Count: i + 1, In: staticCase},
			Out1:       out1,
			Out2:       out2,
		}))
	}
}

func staticArgs(fnType reflect.Type, vals []interface{}) ([]reflect.Value, error) {
	if len(vals) != fnType.NumIn() {
		return nil, fmt.Errorf("have %d args, but the function takes %d", len(vals), fnType.NumIn())
	}
	ret := make([]reflect.Value, len(vals))
	for i, val := range vals {
		ret[i] = reflect.ValueOf(val)
		if !ret[i].Type().AssignableTo(fnType.In(i)) {
			return nil, fmt.Errorf("arg %d: %v is not assignable to %v", i, ret[i].Type(), fnType.In(i))
		}
	}
	return ret, nil
}

func interfaces(vals []reflect.Value) []interface{} {
	ret := make([]interface{}, len(vals))
	for i, val := range vals {
		ret[i] = val.Interface()
	}
	return ret
}
