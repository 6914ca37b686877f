// Package can holds the shared CAN/CAN-FD types used by the frame codec and
// the POECanable reassembly engine.
package can

// Masks for the 11-bit standard and 29-bit extended CAN identifier spaces.
const (
	SFFMask = 0x7FF
	EFFMask = 0x1FFFFFFF
)

// FullId is the bit-field decomposition of a 29-bit extended CAN ID used by
// the POECanable protocol to carry a small addressing/routing header inline
// with the identifier itself.
//
//	bit 28     is_full_packet
//	bits 27-26 header_code
//	bits 25-16 argument_code
//	bits 15-8  target_id
//	bits 7-0   return_id
type FullId struct {
	IsFullPacket bool
	HeaderCode   uint8
	ArgumentCode uint16
	TargetID     uint8
	ReturnID     uint8
}

// MainID is the extended-frame reassembly key: bits 27-16 (header_code and
// argument_code combined). Standard frames are keyed by their raw 11-bit ID
// instead (see framecodec.Frame.MainID).
func (f FullId) MainID() uint16 {
	return uint16(f.HeaderCode)<<10 | f.ArgumentCode
}

// DecomposeFullId extracts the FullId bit-fields from a 29-bit extended
// identifier (flags already stripped).
func DecomposeFullId(id uint32) FullId {
	return FullId{
		IsFullPacket: id&(1<<28) != 0,
		HeaderCode:   uint8((id >> 26) & 0x3),
		ArgumentCode: uint16((id >> 16) & 0x3FF),
		TargetID:     uint8((id >> 8) & 0xFF),
		ReturnID:     uint8(id & 0xFF),
	}
}

// ComposeFullId builds a 29-bit extended identifier from its bit-fields.
func ComposeFullId(f FullId) uint32 {
	var id uint32
	if f.IsFullPacket {
		id |= 1 << 28
	}
	id |= uint32(f.HeaderCode&0x3) << 26
	id |= uint32(f.ArgumentCode&0x3FF) << 16
	id |= uint32(f.TargetID) << 8
	id |= uint32(f.ReturnID)
	return id
}
