// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package halgpu

import (
	"github.com/gogpu/gputypes"

	"github.com/gogpu/framecore/backend"
)

func init() {
	backend.Register(backend.Vulkan, Factory(gputypes.BackendVulkan, Options{}))
	backend.Register(backend.Noop, Factory(gputypes.BackendEmpty, Options{}))
}
