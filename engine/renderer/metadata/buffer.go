package metadata

/**
 * @brief How often the contents of a buffer change, which decides where
 * its memory lives.
 */
type ResourceUsageType int

const (
	/** @brief Written once at creation, lives in device-local memory. */
	ResourceUsageImmutable ResourceUsageType = iota
	/** @brief Rewritten every frame, host visible. Uniform buffers become views into the per-frame ring. */
	ResourceUsageDynamic
	/** @brief Rewritten often by the host, host visible. */
	ResourceUsageStream
)

/** @brief Bit flags describing how a buffer is bound. */
type BufferType uint32

const (
	BufferTypeVertex      BufferType = 0x1
	BufferTypeIndex       BufferType = 0x2
	BufferTypeUniform     BufferType = 0x4
	BufferTypeStorage     BufferType = 0x8
	BufferTypeIndirect    BufferType = 0x10
	BufferTypeTransferSrc BufferType = 0x20
	BufferTypeTransferDst BufferType = 0x40
)

func (t BufferType) Has(flag BufferType) bool {
	return t&flag == flag
}

type IndexType int

const (
	IndexTypeUint16 IndexType = iota
	IndexTypeUint32
)

/**
 * @brief Everything needed to create a buffer.
 */
type BufferCreation struct {
	Type  BufferType
	Usage ResourceUsageType
	/** @brief The size in bytes. */
	Size uint32
	/** @brief Copied into the buffer at creation when not nil. */
	InitialData []byte
	/** @brief Debug name. */
	Name string
}

/** @brief Read back of a live buffer. */
type BufferDescription struct {
	NativeHandle NativeHandle
	Name         string
	Type         BufferType
	Usage        ResourceUsageType
	Size         uint32
	/** @brief The ring buffer this buffer lives in, InvalidBuffer for standalone buffers. */
	ParentHandle BufferHandle
	/** @brief The offset inside the parent, updated on every map of a dynamic buffer. */
	GlobalOffset uint32
}

/** @brief Range of a buffer to map. A zero Size maps the whole buffer. */
type MapBufferParameters struct {
	Buffer BufferHandle
	Offset uint32
	Size   uint32
}
