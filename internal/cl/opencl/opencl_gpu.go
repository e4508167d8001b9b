//go:build gpu

package opencl

/*
#cgo LDFLAGS: -lOpenCL
#define CL_TARGET_OPENCL_VERSION 120
#define CL_USE_DEPRECATED_OPENCL_1_2_APIS
#include <stdlib.h>
#include <string.h>
#include <CL/cl.h>

static cl_mem ifl_create_image2d(cl_context ctx, cl_mem_flags flags,
		cl_channel_order order, cl_channel_type type,
		size_t width, size_t height, void *host, cl_int *status) {
	cl_image_format format;
	cl_image_desc desc;
	format.image_channel_order = order;
	format.image_channel_data_type = type;
	memset(&desc, 0, sizeof(desc));
	desc.image_type = CL_MEM_OBJECT_IMAGE2D;
	desc.image_width = width;
	desc.image_height = height;
	return clCreateImage(ctx, flags, &format, &desc, host, status);
}

static cl_int ifl_event_status(cl_event ev, cl_int *exec) {
	return clGetEventInfo(ev, CL_EVENT_COMMAND_EXECUTION_STATUS, sizeof(cl_int), exec, NULL);
}
*/
import "C"

import (
	"strings"
	"sync"
	"unsafe"

	"github.com/cwbudde/imagefilter2d/internal/cl"
)

// Driver talks to the system OpenCL ICD loader.
type Driver struct{}

// New returns the OpenCL driver. It fails only when the ICD loader cannot be
// queried at all; a system without platforms yields an empty list.
func New() (cl.Driver, error) {
	var count C.cl_uint
	status := C.clGetPlatformIDs(0, nil, &count)
	if status != C.CL_SUCCESS && cl.Status(status) != cl.PlatformNotFound {
		return nil, statusError("clGetPlatformIDs", status)
	}
	return &Driver{}, nil
}

// Name implements cl.Driver.
func (d *Driver) Name() string {
	return "opencl"
}

// Platforms implements cl.Driver.
func (d *Driver) Platforms() ([]cl.Platform, error) {
	var count C.cl_uint
	status := C.clGetPlatformIDs(0, nil, &count)
	if cl.Status(status) == cl.PlatformNotFound {
		return nil, nil
	}
	if status != C.CL_SUCCESS {
		return nil, statusError("clGetPlatformIDs(count)", status)
	}
	if count == 0 {
		return nil, nil
	}

	ids := make([]C.cl_platform_id, int(count))
	status = C.clGetPlatformIDs(count, &ids[0], nil)
	if status != C.CL_SUCCESS {
		return nil, statusError("clGetPlatformIDs(list)", status)
	}

	out := make([]cl.Platform, 0, len(ids))
	for _, id := range ids {
		p, err := newPlatform(id)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, nil
}

type platform struct {
	id   C.cl_platform_id
	info cl.PlatformInfo
}

func newPlatform(id C.cl_platform_id) (*platform, error) {
	name, err := getPlatformString(id, C.CL_PLATFORM_NAME)
	if err != nil {
		return nil, err
	}
	vendor, err := getPlatformString(id, C.CL_PLATFORM_VENDOR)
	if err != nil {
		return nil, err
	}
	version, err := getPlatformString(id, C.CL_PLATFORM_VERSION)
	if err != nil {
		return nil, err
	}

	p := &platform{id: id, info: cl.PlatformInfo{Name: name, Vendor: vendor, Version: version}}
	devices, err := p.Devices(cl.DeviceTypeUnknown)
	if err != nil && cl.StatusOf(err) != cl.DeviceNotFound {
		return nil, err
	}
	for _, d := range devices {
		p.info.Devices = append(p.info.Devices, d.Info())
	}
	return p, nil
}

func (p *platform) Info() cl.PlatformInfo {
	return p.info
}

// Devices lists devices of class t. DeviceTypeUnknown lists every device.
func (p *platform) Devices(t cl.DeviceType) ([]cl.Device, error) {
	class := deviceClass(t)

	var count C.cl_uint
	status := C.clGetDeviceIDs(p.id, class, 0, nil, &count)
	if status != C.CL_SUCCESS {
		return nil, statusError("clGetDeviceIDs(count)", status)
	}
	if count == 0 {
		return nil, cl.NewStatusError("clGetDeviceIDs", cl.DeviceNotFound)
	}

	ids := make([]C.cl_device_id, int(count))
	status = C.clGetDeviceIDs(p.id, class, count, &ids[0], nil)
	if status != C.CL_SUCCESS {
		return nil, statusError("clGetDeviceIDs(list)", status)
	}

	out := make([]cl.Device, 0, len(ids))
	for _, id := range ids {
		info, err := buildDeviceInfo(id)
		if err != nil {
			return nil, err
		}
		out = append(out, &device{id: id, info: info})
	}
	return out, nil
}

type device struct {
	id   C.cl_device_id
	info cl.DeviceInfo
}

func (d *device) Info() cl.DeviceInfo {
	return d.info
}

func (d *device) CreateContext() (cl.Context, error) {
	var status C.cl_int
	id := d.id
	ctx := C.clCreateContext(nil, 1, &id, nil, nil, &status)
	if status != C.CL_SUCCESS {
		return nil, statusError("clCreateContext", status)
	}
	return &context{id: ctx, device: d}, nil
}

type releaser interface {
	Release()
}

type context struct {
	id     C.cl_context
	device *device

	mu       sync.Mutex
	owned    []releaser
	released bool
}

func (c *context) own(r releaser) {
	c.mu.Lock()
	c.owned = append(c.owned, r)
	c.mu.Unlock()
}

// forget drops r from the owned list once it has been released directly.
func (c *context) forget(r releaser) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for i, o := range c.owned {
		if o == r {
			c.owned = append(c.owned[:i], c.owned[i+1:]...)
			return
		}
	}
}

func (c *context) Device() cl.Device {
	return c.device
}

func (c *context) CreateCommandQueue() (cl.CommandQueue, error) {
	var status C.cl_int
	q := C.clCreateCommandQueue(c.id, c.device.id, 0, &status)
	if status != C.CL_SUCCESS {
		return nil, statusError("clCreateCommandQueue", status)
	}
	out := &queue{id: q}
	c.own(out)
	return out, nil
}

func (c *context) BuildProgram(source string) (cl.Program, error) {
	csrc := C.CString(source)
	defer C.free(unsafe.Pointer(csrc))
	length := C.size_t(len(source))

	var status C.cl_int
	prog := C.clCreateProgramWithSource(c.id, 1, &csrc, &length, &status)
	if status != C.CL_SUCCESS {
		return nil, statusError("clCreateProgramWithSource", status)
	}

	dev := c.device.id
	status = C.clBuildProgram(prog, 1, &dev, nil, nil, nil)
	if status != C.CL_SUCCESS {
		log := buildLog(prog, dev)
		C.clReleaseProgram(prog)
		return nil, &cl.BuildFailure{Err: statusError("clBuildProgram", status), Log: log}
	}

	out := &program{id: prog, ctx: c}
	c.own(out)
	return out, nil
}

func buildLog(prog C.cl_program, dev C.cl_device_id) string {
	var size C.size_t
	if C.clGetProgramBuildInfo(prog, dev, C.CL_PROGRAM_BUILD_LOG, 0, nil, &size) != C.CL_SUCCESS || size == 0 {
		return ""
	}
	buf := make([]byte, int(size))
	if C.clGetProgramBuildInfo(prog, dev, C.CL_PROGRAM_BUILD_LOG, size, unsafe.Pointer(&buf[0]), nil) != C.CL_SUCCESS {
		return ""
	}
	return trimNull(buf)
}

func (c *context) SupportedImageFormats(flags cl.MemFlags) ([]cl.ImageFormat, error) {
	var count C.cl_uint
	status := C.clGetSupportedImageFormats(c.id, C.cl_mem_flags(flags), C.CL_MEM_OBJECT_IMAGE2D, 0, nil, &count)
	if status != C.CL_SUCCESS {
		return nil, statusError("clGetSupportedImageFormats(count)", status)
	}
	if count == 0 {
		return nil, nil
	}

	formats := make([]C.cl_image_format, int(count))
	status = C.clGetSupportedImageFormats(c.id, C.cl_mem_flags(flags), C.CL_MEM_OBJECT_IMAGE2D, count, &formats[0], nil)
	if status != C.CL_SUCCESS {
		return nil, statusError("clGetSupportedImageFormats(list)", status)
	}

	out := make([]cl.ImageFormat, len(formats))
	for i, f := range formats {
		out[i] = cl.ImageFormat{
			ChannelOrder:    cl.ChannelOrder(f.image_channel_order),
			ChannelDataType: cl.ChannelDataType(f.image_channel_data_type),
		}
	}
	return out, nil
}

func (c *context) CreateImage2D(flags cl.MemFlags, format cl.ImageFormat, width, height int, host []byte) (cl.Image, error) {
	var hostPtr unsafe.Pointer
	if len(host) > 0 {
		hostPtr = unsafe.Pointer(&host[0])
	}

	var status C.cl_int
	mem := C.ifl_create_image2d(c.id, C.cl_mem_flags(flags),
		C.cl_channel_order(format.ChannelOrder), C.cl_channel_type(format.ChannelDataType),
		C.size_t(width), C.size_t(height), hostPtr, &status)
	if status != C.CL_SUCCESS {
		return nil, statusError("clCreateImage", status)
	}

	img := &image{id: mem, ctx: c, flags: flags, format: format, width: width, height: height}
	c.own(img)
	return img, nil
}

func (c *context) CreateSampler(desc cl.SamplerDesc) (cl.Sampler, error) {
	normalized := C.cl_bool(C.CL_FALSE)
	if desc.NormalizedCoords {
		normalized = C.CL_TRUE
	}

	addressing := C.cl_addressing_mode(C.CL_ADDRESS_NONE)
	switch desc.Addressing {
	case cl.AddressClampToEdge:
		addressing = C.CL_ADDRESS_CLAMP_TO_EDGE
	case cl.AddressClamp:
		addressing = C.CL_ADDRESS_CLAMP
	case cl.AddressRepeat:
		addressing = C.CL_ADDRESS_REPEAT
	}

	filter := C.cl_filter_mode(C.CL_FILTER_NEAREST)
	if desc.Filter == cl.FilterLinear {
		filter = C.CL_FILTER_LINEAR
	}

	var status C.cl_int
	s := C.clCreateSampler(c.id, normalized, addressing, filter, &status)
	if status != C.CL_SUCCESS {
		return nil, statusError("clCreateSampler", status)
	}
	out := &sampler{id: s, desc: desc}
	c.own(out)
	return out, nil
}

func (c *context) Release() {
	c.mu.Lock()
	if c.released {
		c.mu.Unlock()
		return
	}
	c.released = true
	owned := c.owned
	c.owned = nil
	c.mu.Unlock()

	for _, r := range owned {
		if q, ok := r.(*queue); ok {
			q.Release()
		}
	}
	for i := len(owned) - 1; i >= 0; i-- {
		owned[i].Release()
	}
	C.clReleaseContext(c.id)
}

type program struct {
	id   C.cl_program
	ctx  *context
	once sync.Once
}

func (p *program) CreateKernel(name string) (cl.Kernel, error) {
	cname := C.CString(name)
	defer C.free(unsafe.Pointer(cname))

	var status C.cl_int
	k := C.clCreateKernel(p.id, cname, &status)
	if status != C.CL_SUCCESS {
		return nil, statusError("clCreateKernel", status)
	}
	out := &kernel{id: k, name: name}
	p.ctx.own(out)
	return out, nil
}

func (p *program) Release() {
	p.once.Do(func() { C.clReleaseProgram(p.id) })
}

type kernel struct {
	id   C.cl_kernel
	name string
	once sync.Once
}

func (k *kernel) Name() string {
	return k.name
}

func (k *kernel) SetArgs(args ...any) error {
	for i, arg := range args {
		idx := C.cl_uint(i)
		var status C.cl_int
		switch v := arg.(type) {
		case *image:
			mem := v.id
			status = C.clSetKernelArg(k.id, idx, C.size_t(unsafe.Sizeof(mem)), unsafe.Pointer(&mem))
		case *sampler:
			s := v.id
			status = C.clSetKernelArg(k.id, idx, C.size_t(unsafe.Sizeof(s)), unsafe.Pointer(&s))
		case int32:
			n := C.cl_int(v)
			status = C.clSetKernelArg(k.id, idx, C.size_t(unsafe.Sizeof(n)), unsafe.Pointer(&n))
		default:
			return cl.NewStatusError("clSetKernelArg", cl.InvalidArgValue)
		}
		if status != C.CL_SUCCESS {
			return statusError("clSetKernelArg", status)
		}
	}
	return nil
}

func (k *kernel) Release() {
	k.once.Do(func() { C.clReleaseKernel(k.id) })
}

type queue struct {
	id   C.cl_command_queue
	once sync.Once
}

func (q *queue) EnqueueNDRangeKernel(k cl.Kernel, global, local [2]int) (cl.Event, error) {
	ck, ok := k.(*kernel)
	if !ok {
		return nil, cl.NewStatusError("clEnqueueNDRangeKernel", cl.InvalidKernel)
	}
	g := [2]C.size_t{C.size_t(global[0]), C.size_t(global[1])}
	l := [2]C.size_t{C.size_t(local[0]), C.size_t(local[1])}

	var ev C.cl_event
	status := C.clEnqueueNDRangeKernel(q.id, ck.id, 2, nil, &g[0], &l[0], 0, nil, &ev)
	if status != C.CL_SUCCESS {
		return nil, statusError("clEnqueueNDRangeKernel", status)
	}
	return &event{id: ev}, nil
}

// EnqueueReadImage always blocks: the destination is Go memory, which the
// device must not retain past the call.
func (q *queue) EnqueueReadImage(img cl.Image, _ bool, origin, region [3]int, dst []byte) (cl.Event, error) {
	ci, ok := img.(*image)
	if !ok {
		return nil, cl.NewStatusError("clEnqueueReadImage", cl.InvalidMemObject)
	}
	if len(dst) == 0 {
		return nil, cl.NewStatusError("clEnqueueReadImage", cl.InvalidValue)
	}
	o := [3]C.size_t{C.size_t(origin[0]), C.size_t(origin[1]), C.size_t(origin[2])}
	r := [3]C.size_t{C.size_t(region[0]), C.size_t(region[1]), C.size_t(region[2])}

	var ev C.cl_event
	status := C.clEnqueueReadImage(q.id, ci.id, C.CL_TRUE, &o[0], &r[0], 0, 0, unsafe.Pointer(&dst[0]), 0, nil, &ev)
	if status != C.CL_SUCCESS {
		return nil, statusError("clEnqueueReadImage", status)
	}
	out := &event{id: ev}
	if err := out.Wait(); err != nil {
		return out, err
	}
	return out, nil
}

func (q *queue) Finish() error {
	if status := C.clFinish(q.id); status != C.CL_SUCCESS {
		return statusError("clFinish", status)
	}
	return nil
}

func (q *queue) Release() {
	q.once.Do(func() {
		C.clFinish(q.id)
		C.clReleaseCommandQueue(q.id)
	})
}

type event struct {
	id   C.cl_event
	once sync.Once
}

func (e *event) Wait() error {
	ev := e.id
	if status := C.clWaitForEvents(1, &ev); status != C.CL_SUCCESS && cl.Status(status) != cl.ExecStatusErrorForEventsInWaitList {
		return statusError("clWaitForEvents", status)
	}
	var exec C.cl_int
	if status := C.ifl_event_status(ev, &exec); status != C.CL_SUCCESS {
		return statusError("clGetEventInfo", status)
	}
	// A negative execution status is the error code the command failed with.
	if exec < 0 {
		return statusError("command execution", exec)
	}
	return nil
}

func (e *event) Release() {
	e.once.Do(func() { C.clReleaseEvent(e.id) })
}

type image struct {
	id     C.cl_mem
	ctx    *context
	flags  cl.MemFlags
	format cl.ImageFormat
	width  int
	height int
	once   sync.Once
}

func (i *image) Width() int             { return i.width }
func (i *image) Height() int            { return i.height }
func (i *image) Format() cl.ImageFormat { return i.format }
func (i *image) Flags() cl.MemFlags     { return i.flags }

func (i *image) Release() {
	i.once.Do(func() {
		i.ctx.forget(i)
		C.clReleaseMemObject(i.id)
	})
}

type sampler struct {
	id   C.cl_sampler
	desc cl.SamplerDesc
	once sync.Once
}

func (s *sampler) Desc() cl.SamplerDesc { return s.desc }

func (s *sampler) Release() {
	s.once.Do(func() { C.clReleaseSampler(s.id) })
}

func buildDeviceInfo(id C.cl_device_id) (cl.DeviceInfo, error) {
	name, err := getDeviceString(id, C.CL_DEVICE_NAME)
	if err != nil {
		return cl.DeviceInfo{}, err
	}
	vendor, err := getDeviceString(id, C.CL_DEVICE_VENDOR)
	if err != nil {
		return cl.DeviceInfo{}, err
	}
	version, err := getDeviceString(id, C.CL_DEVICE_VERSION)
	if err != nil {
		return cl.DeviceInfo{}, err
	}

	var rawType C.cl_device_type
	if err := getDeviceValue(id, C.CL_DEVICE_TYPE, unsafe.Pointer(&rawType), unsafe.Sizeof(rawType)); err != nil {
		return cl.DeviceInfo{}, err
	}
	var computeUnits C.cl_uint
	if err := getDeviceValue(id, C.CL_DEVICE_MAX_COMPUTE_UNITS, unsafe.Pointer(&computeUnits), unsafe.Sizeof(computeUnits)); err != nil {
		return cl.DeviceInfo{}, err
	}
	var maxGroup C.size_t
	if err := getDeviceValue(id, C.CL_DEVICE_MAX_WORK_GROUP_SIZE, unsafe.Pointer(&maxGroup), unsafe.Sizeof(maxGroup)); err != nil {
		return cl.DeviceInfo{}, err
	}
	var imageSupport C.cl_bool
	if err := getDeviceValue(id, C.CL_DEVICE_IMAGE_SUPPORT, unsafe.Pointer(&imageSupport), unsafe.Sizeof(imageSupport)); err != nil {
		return cl.DeviceInfo{}, err
	}

	info := cl.DeviceInfo{
		Name:             name,
		Vendor:           vendor,
		Version:          version,
		Type:             mapDeviceType(rawType),
		MaxComputeUnits:  uint32(computeUnits),
		MaxWorkGroupSize: int(maxGroup),
		ImageSupport:     imageSupport == C.CL_TRUE,
	}
	if info.ImageSupport {
		var w, h C.size_t
		if err := getDeviceValue(id, C.CL_DEVICE_IMAGE2D_MAX_WIDTH, unsafe.Pointer(&w), unsafe.Sizeof(w)); err != nil {
			return cl.DeviceInfo{}, err
		}
		if err := getDeviceValue(id, C.CL_DEVICE_IMAGE2D_MAX_HEIGHT, unsafe.Pointer(&h), unsafe.Sizeof(h)); err != nil {
			return cl.DeviceInfo{}, err
		}
		info.Image2DMaxWidth, info.Image2DMaxHeight = int(w), int(h)
	}
	return info, nil
}

func getDeviceValue(id C.cl_device_id, param C.cl_device_info, ptr unsafe.Pointer, size uintptr) error {
	status := C.clGetDeviceInfo(id, param, C.size_t(size), ptr, nil)
	if status != C.CL_SUCCESS {
		return statusError("clGetDeviceInfo", status)
	}
	return nil
}

func getPlatformString(id C.cl_platform_id, param C.cl_platform_info) (string, error) {
	var size C.size_t
	status := C.clGetPlatformInfo(id, param, 0, nil, &size)
	if status != C.CL_SUCCESS {
		return "", statusError("clGetPlatformInfo(size)", status)
	}
	if size == 0 {
		return "", nil
	}

	buf := make([]byte, int(size))
	status = C.clGetPlatformInfo(id, param, size, unsafe.Pointer(&buf[0]), nil)
	if status != C.CL_SUCCESS {
		return "", statusError("clGetPlatformInfo(value)", status)
	}
	return trimNull(buf), nil
}

func getDeviceString(id C.cl_device_id, param C.cl_device_info) (string, error) {
	var size C.size_t
	status := C.clGetDeviceInfo(id, param, 0, nil, &size)
	if status != C.CL_SUCCESS {
		return "", statusError("clGetDeviceInfo(size)", status)
	}
	if size == 0 {
		return "", nil
	}

	buf := make([]byte, int(size))
	status = C.clGetDeviceInfo(id, param, size, unsafe.Pointer(&buf[0]), nil)
	if status != C.CL_SUCCESS {
		return "", statusError("clGetDeviceInfo(value)", status)
	}
	return trimNull(buf), nil
}

func deviceClass(t cl.DeviceType) C.cl_device_type {
	switch t {
	case cl.DeviceTypeGPU:
		return C.CL_DEVICE_TYPE_GPU
	case cl.DeviceTypeCPU:
		return C.CL_DEVICE_TYPE_CPU
	case cl.DeviceTypeAccelerator:
		return C.CL_DEVICE_TYPE_ACCELERATOR
	case cl.DeviceTypeDefault:
		return C.CL_DEVICE_TYPE_DEFAULT
	default:
		return C.CL_DEVICE_TYPE_ALL
	}
}

func mapDeviceType(dt C.cl_device_type) cl.DeviceType {
	switch {
	case dt&C.CL_DEVICE_TYPE_GPU != 0:
		return cl.DeviceTypeGPU
	case dt&C.CL_DEVICE_TYPE_CPU != 0:
		return cl.DeviceTypeCPU
	case dt&C.CL_DEVICE_TYPE_ACCELERATOR != 0:
		return cl.DeviceTypeAccelerator
	case dt&C.CL_DEVICE_TYPE_DEFAULT != 0:
		return cl.DeviceTypeDefault
	default:
		return cl.DeviceTypeUnknown
	}
}

func statusError(op string, status C.cl_int) error {
	return cl.NewStatusError(op, cl.Status(status))
}

func trimNull(buf []byte) string {
	return strings.TrimRight(string(buf), "\x00")
}
