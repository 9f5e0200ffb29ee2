// Copyright 2025 The Conduit Authors. All rights reserved.
// Use of this source code is governed by the license
// that can be found in the LICENSE file.
package util

import "fmt"

// Wrapf wraps *errp with a message formatted from format and args, if *errp
// is non-nil. It is intended to be used with defer to annotate the error
// return of a function:
//
//	func f() (err error) {
//		defer util.Wrapf(&err, "f(%d)", x)
//		...
//	}
func Wrapf(errp *error, format string, args ...any) {
	if *errp == nil {
		return
	}
	*errp = fmt.Errorf(format+": %w", append(args, *errp)...)
}
