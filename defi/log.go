// Copyright (c) 2013-2017 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package defi

import "github.com/bigbangcore/bigbang/logger"

var log = logger.Get("DEFI")
