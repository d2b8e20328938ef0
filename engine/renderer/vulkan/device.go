package vulkan

import (
	"fmt"
	"runtime"

	vk "github.com/goki/vulkan"

	"github.com/spaghettifunk/anima-gpu/engine/core"
)

const portabilitySubset = "VK_KHR_portability_subset"

type vulkanDevice struct {
	physical vk.PhysicalDevice
	logical  vk.Device

	graphicsQueueIndex uint32
	presentQueueIndex  uint32
	transferQueueIndex uint32
	timestampBits      uint32

	graphicsQueue vk.Queue
	presentQueue  vk.Queue
	transferQueue vk.Queue

	properties vk.PhysicalDeviceProperties
	limits     vk.PhysicalDeviceLimits
	features   vk.PhysicalDeviceFeatures
	memory     vk.PhysicalDeviceMemoryProperties

	swapchainSupport swapchainSupport
	depthFormat      vk.Format
}

type swapchainSupport struct {
	capabilities vk.SurfaceCapabilities
	formats      []vk.SurfaceFormat
	presentModes []vk.PresentMode
}

type deviceRequirements struct {
	graphics          bool
	present           bool
	transfer          bool
	samplerAnisotropy bool
	discreteGPU       bool
	extensions        []string
}

type queueFamilies struct {
	graphics, present, transfer int
	timestampBits               uint32
}

// createDevice picks a physical device, creates the logical device and fetches its queues.
func createDevice(context *vulkanContext) (*vulkanDevice, error) {
	device, err := selectPhysicalDevice(context)
	if err != nil {
		return nil, err
	}
	context.device = device

	core.LogInfo("Creating logical device...")

	indices := []uint32{device.graphicsQueueIndex}
	if device.presentQueueIndex != device.graphicsQueueIndex {
		indices = append(indices, device.presentQueueIndex)
	}
	if device.transferQueueIndex != device.graphicsQueueIndex && device.transferQueueIndex != device.presentQueueIndex {
		indices = append(indices, device.transferQueueIndex)
	}
	queueCreateInfos := make([]vk.DeviceQueueCreateInfo, len(indices))
	for i, index := range indices {
		queueCreateInfos[i] = vk.DeviceQueueCreateInfo{
			SType:            vk.StructureTypeDeviceQueueCreateInfo,
			QueueFamilyIndex: index,
			QueueCount:       1,
			PQueuePriorities: []float32{1.0},
		}
	}

	features := vk.PhysicalDeviceFeatures{
		SamplerAnisotropy: device.features.SamplerAnisotropy,
		FillModeNonSolid:  device.features.FillModeNonSolid,
	}

	extensions := []string{vk.KhrSwapchainExtensionName}
	if hasDeviceExtension(device.physical, portabilitySubset) {
		core.LogInfo("Adding required extension '%s'.", portabilitySubset)
		extensions = append(extensions, portabilitySubset)
	}

	createInfo := vk.DeviceCreateInfo{
		SType:                   vk.StructureTypeDeviceCreateInfo,
		QueueCreateInfoCount:    uint32(len(queueCreateInfos)),
		PQueueCreateInfos:       queueCreateInfos,
		PEnabledFeatures:        []vk.PhysicalDeviceFeatures{features},
		EnabledExtensionCount:   uint32(len(extensions)),
		PpEnabledExtensionNames: safeStrings(extensions),
	}
	var logical vk.Device
	if err := check("vkCreateDevice", vk.CreateDevice(device.physical, &createInfo, context.allocator, &logical)); err != nil {
		return nil, err
	}
	device.logical = logical
	core.LogInfo("Logical device created.")

	vk.GetDeviceQueue(logical, device.graphicsQueueIndex, 0, &device.graphicsQueue)
	vk.GetDeviceQueue(logical, device.presentQueueIndex, 0, &device.presentQueue)
	vk.GetDeviceQueue(logical, device.transferQueueIndex, 0, &device.transferQueue)
	core.LogInfo("Queues obtained.")

	if !device.detectDepthFormat() {
		return nil, fmt.Errorf("no supported depth format")
	}
	return device, nil
}

func (d *vulkanDevice) destroy(context *vulkanContext) {
	d.graphicsQueue = nil
	d.presentQueue = nil
	d.transferQueue = nil

	if d.logical != nil {
		core.LogInfo("Destroying logical device...")
		vk.DestroyDevice(d.logical, context.allocator)
		d.logical = nil
	}
	d.physical = nil
	d.swapchainSupport = swapchainSupport{}
}

func hasDeviceExtension(physical vk.PhysicalDevice, name string) bool {
	var count uint32
	if vk.EnumerateDeviceExtensionProperties(physical, "", &count, nil) != vk.Success || count == 0 {
		return false
	}
	available := make([]vk.ExtensionProperties, count)
	if vk.EnumerateDeviceExtensionProperties(physical, "", &count, available) != vk.Success {
		return false
	}
	for i := range available {
		available[i].Deref()
		if cString(available[i].ExtensionName[:]) == name {
			return true
		}
	}
	return false
}

// querySwapchainSupport refreshes the surface capabilities, formats and present modes.
func querySwapchainSupport(physical vk.PhysicalDevice, surface vk.Surface) (swapchainSupport, error) {
	var support swapchainSupport
	if err := resultError("vkGetPhysicalDeviceSurfaceCapabilitiesKHR",
		vk.GetPhysicalDeviceSurfaceCapabilities(physical, surface, &support.capabilities)); err != nil {
		return support, err
	}
	support.capabilities.Deref()
	support.capabilities.CurrentExtent.Deref()
	support.capabilities.MinImageExtent.Deref()
	support.capabilities.MaxImageExtent.Deref()

	var formatCount uint32
	if err := resultError("vkGetPhysicalDeviceSurfaceFormatsKHR",
		vk.GetPhysicalDeviceSurfaceFormats(physical, surface, &formatCount, nil)); err != nil {
		return support, err
	}
	if formatCount > 0 {
		support.formats = make([]vk.SurfaceFormat, formatCount)
		if err := resultError("vkGetPhysicalDeviceSurfaceFormatsKHR",
			vk.GetPhysicalDeviceSurfaceFormats(physical, surface, &formatCount, support.formats)); err != nil {
			return support, err
		}
		for i := range support.formats {
			support.formats[i].Deref()
		}
	}

	var modeCount uint32
	if err := resultError("vkGetPhysicalDeviceSurfacePresentModesKHR",
		vk.GetPhysicalDeviceSurfacePresentModes(physical, surface, &modeCount, nil)); err != nil {
		return support, err
	}
	if modeCount > 0 {
		support.presentModes = make([]vk.PresentMode, modeCount)
		if err := resultError("vkGetPhysicalDeviceSurfacePresentModesKHR",
			vk.GetPhysicalDeviceSurfacePresentModes(physical, surface, &modeCount, support.presentModes)); err != nil {
			return support, err
		}
	}
	return support, nil
}

func (d *vulkanDevice) detectDepthFormat() bool {
	candidates := []vk.Format{
		vk.FormatD32Sfloat,
		vk.FormatD32SfloatS8Uint,
		vk.FormatD24UnormS8Uint,
	}
	flags := vk.FormatFeatureFlags(vk.FormatFeatureDepthStencilAttachmentBit)
	for _, candidate := range candidates {
		var properties vk.FormatProperties
		vk.GetPhysicalDeviceFormatProperties(d.physical, candidate, &properties)
		properties.Deref()
		if properties.LinearTilingFeatures&flags == flags || properties.OptimalTilingFeatures&flags == flags {
			d.depthFormat = candidate
			return true
		}
	}
	d.depthFormat = vk.FormatUndefined
	return false
}

func selectPhysicalDevice(context *vulkanContext) (*vulkanDevice, error) {
	var count uint32
	if err := check("vkEnumeratePhysicalDevices", vk.EnumeratePhysicalDevices(context.instance, &count, nil)); err != nil {
		return nil, err
	}
	if count == 0 {
		return nil, fmt.Errorf("no devices which support Vulkan were found")
	}
	physicalDevices := make([]vk.PhysicalDevice, count)
	if err := check("vkEnumeratePhysicalDevices", vk.EnumeratePhysicalDevices(context.instance, &count, physicalDevices)); err != nil {
		return nil, err
	}

	requirements := deviceRequirements{
		graphics:          true,
		present:           true,
		transfer:          true,
		samplerAnisotropy: true,
		discreteGPU:       true,
		extensions:        []string{vk.KhrSwapchainExtensionName},
	}
	if runtime.GOOS == "darwin" {
		requirements.discreteGPU = false
	}

	// a second pass accepts integrated GPUs when no discrete one qualifies
	for pass := 0; pass < 2; pass++ {
		for _, physical := range physicalDevices {
			device := &vulkanDevice{physical: physical}
			vk.GetPhysicalDeviceProperties(physical, &device.properties)
			device.properties.Deref()
			device.limits = device.properties.Limits
			device.limits.Deref()
			vk.GetPhysicalDeviceFeatures(physical, &device.features)
			device.features.Deref()
			vk.GetPhysicalDeviceMemoryProperties(physical, &device.memory)
			device.memory.Deref()

			queues, ok := meetsRequirements(device, context.surface, &requirements)
			if !ok {
				continue
			}
			device.graphicsQueueIndex = uint32(queues.graphics)
			device.presentQueueIndex = uint32(queues.present)
			device.transferQueueIndex = uint32(queues.transfer)
			device.timestampBits = queues.timestampBits
			logDeviceInfo(device)
			return device, nil
		}
		if !requirements.discreteGPU {
			break
		}
		core.LogWarn("no discrete GPU meets the requirements, trying any GPU")
		requirements.discreteGPU = false
	}
	return nil, fmt.Errorf("no physical devices were found which meet the requirements")
}

func meetsRequirements(device *vulkanDevice, surface vk.Surface, requirements *deviceRequirements) (queueFamilies, bool) {
	queues := queueFamilies{graphics: -1, present: -1, transfer: -1}
	name := cString(device.properties.DeviceName[:])

	if requirements.discreteGPU && device.properties.DeviceType != vk.PhysicalDeviceTypeDiscreteGpu {
		core.LogInfo("Device '%s' is not a discrete GPU, and one is required. Skipping.", name)
		return queues, false
	}

	var familyCount uint32
	vk.GetPhysicalDeviceQueueFamilyProperties(device.physical, &familyCount, nil)
	families := make([]vk.QueueFamilyProperties, familyCount)
	vk.GetPhysicalDeviceQueueFamilyProperties(device.physical, &familyCount, families)

	minTransferScore := 255
	for i := range families {
		families[i].Deref()
		flags := families[i].QueueFlags
		score := 0

		if flags&vk.QueueFlags(vk.QueueGraphicsBit) != 0 && queues.graphics < 0 {
			queues.graphics = i
			queues.timestampBits = families[i].TimestampValidBits
			score++
		}
		if flags&vk.QueueFlags(vk.QueueComputeBit) != 0 {
			score++
		}
		// the lowest score is the most likely to be a dedicated transfer queue
		if flags&vk.QueueFlags(vk.QueueTransferBit) != 0 && score <= minTransferScore {
			minTransferScore = score
			queues.transfer = i
		}

		var supportsPresent vk.Bool32
		if vk.GetPhysicalDeviceSurfaceSupport(device.physical, uint32(i), surface, &supportsPresent) != vk.Success {
			return queues, false
		}
		if supportsPresent == vk.True && (queues.present < 0 || i == queues.graphics) {
			queues.present = i
		}
	}

	core.LogInfo("Graphics | Present | Transfer | Name")
	core.LogInfo("%8d | %7d | %8d | %s", queues.graphics, queues.present, queues.transfer, name)

	if (requirements.graphics && queues.graphics < 0) ||
		(requirements.present && queues.present < 0) ||
		(requirements.transfer && queues.transfer < 0) {
		core.LogInfo("Device '%s' lacks a required queue. Skipping.", name)
		return queues, false
	}

	support, err := querySwapchainSupport(device.physical, surface)
	if err != nil || len(support.formats) == 0 || len(support.presentModes) == 0 {
		core.LogInfo("Required swapchain support not present on '%s'. Skipping.", name)
		return queues, false
	}
	device.swapchainSupport = support

	for _, extension := range requirements.extensions {
		if !hasDeviceExtension(device.physical, extension) {
			core.LogInfo("Required extension not found: '%s'. Skipping.", extension)
			return queues, false
		}
	}

	if requirements.samplerAnisotropy && device.features.SamplerAnisotropy != vk.True {
		core.LogInfo("Device '%s' does not support samplerAnisotropy. Skipping.", name)
		return queues, false
	}
	return queues, true
}

func logDeviceInfo(device *vulkanDevice) {
	props := device.properties
	core.LogInfo("Selected device: '%s'.", cString(props.DeviceName[:]))
	switch props.DeviceType {
	case vk.PhysicalDeviceTypeIntegratedGpu:
		core.LogInfo("GPU type is Integrated.")
	case vk.PhysicalDeviceTypeDiscreteGpu:
		core.LogInfo("GPU type is Discrete.")
	case vk.PhysicalDeviceTypeVirtualGpu:
		core.LogInfo("GPU type is Virtual.")
	case vk.PhysicalDeviceTypeCpu:
		core.LogInfo("GPU type is CPU.")
	default:
		core.LogInfo("GPU type is Unknown.")
	}
	driver := vk.Version(props.DriverVersion)
	api := vk.Version(props.ApiVersion)
	core.LogInfo("GPU Driver version: %d.%d.%d", driver.Major(), driver.Minor(), driver.Patch())
	core.LogInfo("Vulkan API version: %d.%d.%d", api.Major(), api.Minor(), api.Patch())

	for i := uint32(0); i < device.memory.MemoryHeapCount; i++ {
		heap := device.memory.MemoryHeaps[i]
		heap.Deref()
		gib := float64(heap.Size) / 1024.0 / 1024.0 / 1024.0
		if heap.Flags&vk.MemoryHeapFlags(vk.MemoryHeapDeviceLocalBit) != 0 {
			core.LogInfo("Local GPU memory: %.2f GiB", gib)
		} else {
			core.LogInfo("Shared System memory: %.2f GiB", gib)
		}
	}
}
