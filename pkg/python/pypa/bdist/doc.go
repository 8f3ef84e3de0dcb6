// Copyright (C) 2021-2022  Ambassador Labs
//
// SPDX-License-Identifier: Apache-2.0

// Package bdist edits PyPA Binary distributions (AKA PEP 427 -- The Wheel Binary Package Format
// 1.0) in place: the METADATA and WHEEL files of the ".dist-info" directory, and the library
// search paths of bundled ELF shared objects.  The RECORD file is kept consistent with whatever
// changes.
//
// https://www.python.org/dev/peps/pep-0427/
// https://packaging.python.org/specifications/binary-distribution-format/
//
// Other useful references:
//  - site-packages/pip/_internal/utils/wheel.py
//  - site-packages/wheel/wheelfile.py
package bdist
