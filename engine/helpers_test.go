// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package engine_test

import (
	"github.com/gogpu/framecore/resource"
	"github.com/gogpu/gputypes"
)

func resourceDesc() resource.Desc {
	return resource.Desc{
		Kind:        resource.KindBuffer,
		Label:       "uniforms",
		Size:        256,
		BufferUsage: gputypes.BufferUsageUniform | gputypes.BufferUsageCopyDst,
	}
}
