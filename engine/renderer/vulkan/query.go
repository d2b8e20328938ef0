package vulkan

import (
	"fmt"
	"unsafe"

	vk "github.com/goki/vulkan"

	"github.com/spaghettifunk/anima-gpu/engine/core"
	"github.com/spaghettifunk/anima-gpu/engine/renderer/metadata"
)

type queryPool struct {
	handle vk.QueryPool
	count  uint32
}

func (b *Backend) CreateQueryPool(count uint32) (metadata.NativeHandle, error) {
	createInfo := vk.QueryPoolCreateInfo{
		SType:      vk.StructureTypeQueryPoolCreateInfo,
		QueryType:  vk.QueryTypeTimestamp,
		QueryCount: count,
	}
	pool := &queryPool{count: count}
	if err := check("vkCreateQueryPool", vk.CreateQueryPool(b.context.device.logical, &createInfo, b.context.allocator, &pool.handle)); err != nil {
		return metadata.NullNativeHandle, err
	}
	return b.queryPools.add(pool), nil
}

// GetQueryResults reads count 64 bit timestamps, waiting for them to be available.
func (b *Backend) GetQueryResults(pool metadata.NativeHandle, first, count uint32, results []uint64) error {
	q, ok := b.queryPools.get(pool)
	if !ok {
		return fmt.Errorf("%w: query pool %d", core.ErrInvalidHandle, pool)
	}
	if count == 0 {
		return nil
	}
	if first+count > q.count || uint32(len(results)) < count {
		return fmt.Errorf("query range %d+%d out of bounds", first, count)
	}
	flags := vk.QueryResultFlags(vk.QueryResult64Bit) | vk.QueryResultFlags(vk.QueryResultWaitBit)
	result := vk.GetQueryPoolResults(b.context.device.logical, q.handle, first, count,
		uint(count*8), unsafe.Pointer(&results[0]), 8, flags)
	return resultError("vkGetQueryPoolResults", result)
}

func (b *Backend) DestroyQueryPool(pool metadata.NativeHandle) {
	q, ok := b.queryPools.remove(pool)
	if !ok {
		core.LogWarn("destroying unknown query pool %d", pool)
		return
	}
	vk.DestroyQueryPool(b.context.device.logical, q.handle, b.context.allocator)
}
