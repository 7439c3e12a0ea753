package compute

// KernelImage is a minimal WebAssembly module exporting
//
//	(memory (export "memory") 1)
//	(func (export "sum") (param $ptr i32) (param $len i32) (result i64))
//
// sum adds len little-endian i32 values starting at byte offset ptr into an
// i64 accumulator.
var KernelImage = []byte{
	0x00, 0x61, 0x73, 0x6d, 0x01, 0x00, 0x00, 0x00,

	// type section: (i32, i32) -> i64
	0x01, 0x07, 0x01, 0x60, 0x02, 0x7f, 0x7f, 0x01, 0x7e,

	// function section
	0x03, 0x02, 0x01, 0x00,

	// memory section: min 1 page, no max
	0x05, 0x03, 0x01, 0x00, 0x01,

	// export section
	0x07, 0x10, 0x02,
	0x06, 'm', 'e', 'm', 'o', 'r', 'y', 0x02, 0x00,
	0x03, 's', 'u', 'm', 0x00, 0x00,

	// code section
	0x0a, 0x34, 0x01, 0x32,
	0x02, 0x01, 0x7e, 0x01, 0x7f, // locals: acc i64, end i32
	0x20, 0x00, 0x20, 0x01, 0x41, 0x02, 0x74, 0x6a, 0x21, 0x03, // end = ptr + len<<2
	0x02, 0x40, 0x03, 0x40,
	0x20, 0x00, 0x20, 0x03, 0x4f, 0x0d, 0x01, // br_if ptr >= end
	0x20, 0x02, 0x20, 0x00, 0x34, 0x02, 0x00, 0x7c, 0x21, 0x02, // acc += i64.load32_s(ptr)
	0x20, 0x00, 0x41, 0x04, 0x6a, 0x21, 0x00, // ptr += 4
	0x0c, 0x00,
	0x0b, 0x0b,
	0x20, 0x02, 0x0b,
}

var wasmMagic = []byte{0x00, 0x61, 0x73, 0x6d}

// CheckHeader reports whether image starts with the WebAssembly magic and
// binary version 1.
func CheckHeader(image []byte) bool {
	if len(image) < 8 {
		return false
	}
	for i, b := range wasmMagic {
		if image[i] != b {
			return false
		}
	}
	return image[4] == 1 && image[5] == 0 && image[6] == 0 && image[7] == 0
}
