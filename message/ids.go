package message

import "fmt"

// Identifier types. On the wire their width comes from the VM's IDSizes reply; in memory
// they are always widened to 64 bits.
type (
	ObjectID        uint64
	ReferenceTypeID uint64
	MethodID        uint64
	FieldID         uint64
	FrameID         uint64
)

// IDSizes holds the per-VM width in bytes of each identifier kind, in reply order.
type IDSizes struct {
	FieldIDSize         int32
	MethodIDSize        int32
	ObjectIDSize        int32
	ReferenceTypeIDSize int32
	FrameIDSize         int32
}

// DefaultIDSizes is what HotSpot reports on 64-bit platforms.
var DefaultIDSizes = IDSizes{
	FieldIDSize:         8,
	MethodIDSize:        8,
	ObjectIDSize:        8,
	ReferenceTypeIDSize: 8,
	FrameIDSize:         8,
}

func (i ObjectID) String() string        { return fmt.Sprintf("ObjectID<%d>", uint64(i)) }
func (i ReferenceTypeID) String() string { return fmt.Sprintf("ReferenceTypeID<%d>", uint64(i)) }
func (i MethodID) String() string        { return fmt.Sprintf("MethodID<%d>", uint64(i)) }
func (i FieldID) String() string         { return fmt.Sprintf("FieldID<%d>", uint64(i)) }
func (i FrameID) String() string         { return fmt.Sprintf("FrameID<%d>", uint64(i)) }
