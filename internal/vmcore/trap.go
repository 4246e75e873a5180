package vmcore

// Trap is the closed error taxonomy from spec §7. Every trap is local and
// synchronous: it aborts only the Step call that produced it.
type Trap int

const (
	None Trap = iota
	DecodeFault
	TypeFault
	BoundsFault
	StackFault
	DivisionFault
	SecurityFault
	ShapeFault
	TrapInstruction
)

var trapNames = [...]string{
	"None",
	"DecodeFault",
	"TypeFault",
	"BoundsFault",
	"StackFault",
	"DivisionFault",
	"SecurityFault",
	"ShapeFault",
	"TrapInstruction",
}

func (t Trap) String() string {
	if int(t) >= 0 && int(t) < len(trapNames) {
		return trapNames[t]
	}
	return "UnknownTrap"
}
