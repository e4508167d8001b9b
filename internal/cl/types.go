package cl

import "fmt"

// DeviceType describes the class of a compute device.
type DeviceType string

const (
	DeviceTypeGPU         DeviceType = "GPU"
	DeviceTypeCPU         DeviceType = "CPU"
	DeviceTypeAccelerator DeviceType = "Accelerator"
	DeviceTypeDefault     DeviceType = "Default"
	DeviceTypeUnknown     DeviceType = "Unknown"
)

// DeviceInfo captures metadata about a compute device.
type DeviceInfo struct {
	Name             string
	Vendor           string
	Version          string
	Type             DeviceType
	MaxComputeUnits  uint32
	MaxWorkGroupSize int
	ImageSupport     bool
	Image2DMaxWidth  int
	Image2DMaxHeight int
}

// PlatformInfo captures metadata about a platform and its devices.
type PlatformInfo struct {
	Name    string
	Vendor  string
	Version string
	Devices []DeviceInfo
}

// ChannelOrder is the component layout of an image element.
type ChannelOrder int

const (
	ChannelOrderR    ChannelOrder = 0x10B0
	ChannelOrderRGBA ChannelOrder = 0x10B5
	ChannelOrderBGRA ChannelOrder = 0x10B6
	ChannelOrderARGB ChannelOrder = 0x10B7
)

var channelOrderNames = map[ChannelOrder]string{
	ChannelOrderR:    "R",
	ChannelOrderRGBA: "RGBA",
	ChannelOrderBGRA: "BGRA",
	ChannelOrderARGB: "ARGB",
}

func (o ChannelOrder) String() string {
	if name, ok := channelOrderNames[o]; ok {
		return name
	}
	return fmt.Sprintf("Unknown(%x)", int(o))
}

// ChannelDataType is the storage type of a single image channel.
type ChannelDataType int

const (
	ChannelDataTypeUNormInt8  ChannelDataType = 0x10D2
	ChannelDataTypeUNormInt16 ChannelDataType = 0x10D3
	ChannelDataTypeFloat      ChannelDataType = 0x10DE
)

var channelDataTypeNames = map[ChannelDataType]string{
	ChannelDataTypeUNormInt8:  "UNormInt8",
	ChannelDataTypeUNormInt16: "UNormInt16",
	ChannelDataTypeFloat:      "Float",
}

func (t ChannelDataType) String() string {
	if name, ok := channelDataTypeNames[t]; ok {
		return name
	}
	return fmt.Sprintf("Unknown(%x)", int(t))
}

// ImageFormat pairs a channel order with a channel data type.
type ImageFormat struct {
	ChannelOrder    ChannelOrder
	ChannelDataType ChannelDataType
}

// FormatRGBA8 is four 8-bit normalized channels in R,G,B,A order.
var FormatRGBA8 = ImageFormat{ChannelOrder: ChannelOrderRGBA, ChannelDataType: ChannelDataTypeUNormInt8}

func (f ImageFormat) String() string {
	return f.ChannelOrder.String() + "/" + f.ChannelDataType.String()
}

// MemFlags describes how a kernel may access a memory object.
type MemFlags int

const (
	MemReadWrite MemFlags = 1 << 0
	MemWriteOnly MemFlags = 1 << 1
	MemReadOnly  MemFlags = 1 << 2
	// MemCopyHostPtr initializes the object from the supplied host buffer.
	MemCopyHostPtr MemFlags = 1 << 5
)

// AddressingMode resolves out-of-range image coordinates.
type AddressingMode int

const (
	AddressNone AddressingMode = iota
	AddressClampToEdge
	AddressClamp
	AddressRepeat
)

// FilterMode selects texel interpolation.
type FilterMode int

const (
	FilterNearest FilterMode = iota
	FilterLinear
)

// SamplerDesc describes how a kernel reads an image.
type SamplerDesc struct {
	NormalizedCoords bool
	Addressing       AddressingMode
	Filter           FilterMode
}
