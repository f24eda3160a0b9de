package ir

// Local storage allocation. Every Local and anonymous temporary gets one
// stack slot with a fixed offset for the whole activation; slots never
// alias. The frame size doubles as the stack-footprint input to the
// inliner's size budget.

// Slot is the assigned storage of one Local.
type Slot struct {
	Local  LocalID
	Offset int
	Size   int
}

// Frame is the stack layout of one function activation.
type Frame struct {
	Slots []Slot
	Size  int
}

// ComputeFrame lays out the function's locals in declaration order at
// word-aligned offsets.
func ComputeFrame(f *Function) Frame {
	frame := Frame{Slots: make([]Slot, 0, len(f.Locals))}

	offset := 0
	for i, l := range f.Locals {
		size := f.Types.SizeOf(l.Type)
		frame.Slots = append(frame.Slots, Slot{Local: LocalID(i), Offset: offset, Size: size})
		offset += wordAlign(size)
	}
	frame.Size = offset

	return frame
}

// SlotOf returns the slot assigned to a local.
func (fr *Frame) SlotOf(l LocalID) (Slot, bool) {
	for _, s := range fr.Slots {
		if s.Local == l {
			return s, true
		}
	}
	return Slot{}, false
}
