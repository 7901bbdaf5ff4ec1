package ir

import "fmt"

// CommandKind discriminates the closed set of block commands.
type CommandKind uint8

const (
	CmdInvoke CommandKind = iota + 1
	CmdTransferOwnership
	CmdSplitValue
	CmdMergeValues
	CmdBuildCollection
	CmdPublish
	CmdUpgrade
	CmdAcquireReceived
)

// String returns the wire name used in persisted traces.
func (k CommandKind) String() string {
	switch k {
	case CmdInvoke:
		return "MoveCall"
	case CmdTransferOwnership:
		return "TransferObjects"
	case CmdSplitValue:
		return "SplitCoins"
	case CmdMergeValues:
		return "MergeCoins"
	case CmdBuildCollection:
		return "MakeMoveVec"
	case CmdPublish:
		return "Publish"
	case CmdUpgrade:
		return "Upgrade"
	case CmdAcquireReceived:
		return "Receive"
	default:
		return fmt.Sprintf("CommandKind(%d)", k)
	}
}

// Command is one step of a block. The set of implementations is closed;
// consumers switch on the concrete type and must handle every case.
type Command interface {
	Kind() CommandKind
	// References lists every argument the command reads, in order.
	References() []Argument
	// Outputs is the number of values the command produces.
	Outputs() int
	command()
}

// Invoke calls a function of a published package.
type Invoke struct {
	Package   Address
	Module    string
	Function  string
	TypeArgs  []TypeTag
	Arguments []Argument
	Returns   int // declared number of return values
}

// TransferOwnership hands every object to the recipient address.
type TransferOwnership struct {
	Objects   []Argument
	Recipient Argument
}

// SplitValue carves one new value per amount off the source.
type SplitValue struct {
	Source  Argument
	Amounts []Argument
}

// MergeValues folds the sources into the destination, consuming them.
type MergeValues struct {
	Destination Argument
	Sources     []Argument
}

// BuildCollection builds a vector from homogeneous elements.
type BuildCollection struct {
	ElementType *TypeTag
	Elements    []Argument
}

// Publish publishes a new package from compiled modules.
type Publish struct {
	Modules      [][]byte
	Dependencies []ObjectID
}

// Upgrade replaces a package using an authorization ticket.
type Upgrade struct {
	Modules      [][]byte
	Dependencies []ObjectID
	Package      ObjectID
	Ticket       Argument
}

// AcquireReceived claims an object previously sent to an object address.
type AcquireReceived struct {
	ObjectID ObjectID
	Type     *TypeTag
}

func (Invoke) Kind() CommandKind            { return CmdInvoke }
func (TransferOwnership) Kind() CommandKind { return CmdTransferOwnership }
func (SplitValue) Kind() CommandKind        { return CmdSplitValue }
func (MergeValues) Kind() CommandKind       { return CmdMergeValues }
func (BuildCollection) Kind() CommandKind   { return CmdBuildCollection }
func (Publish) Kind() CommandKind           { return CmdPublish }
func (Upgrade) Kind() CommandKind           { return CmdUpgrade }
func (AcquireReceived) Kind() CommandKind   { return CmdAcquireReceived }

func (c Invoke) References() []Argument { return c.Arguments }

func (c TransferOwnership) References() []Argument {
	refs := make([]Argument, 0, len(c.Objects)+1)
	refs = append(refs, c.Objects...)
	return append(refs, c.Recipient)
}

func (c SplitValue) References() []Argument {
	return append([]Argument{c.Source}, c.Amounts...)
}

func (c MergeValues) References() []Argument {
	return append([]Argument{c.Destination}, c.Sources...)
}

func (c BuildCollection) References() []Argument { return c.Elements }
func (Publish) References() []Argument           { return nil }
func (c Upgrade) References() []Argument         { return []Argument{c.Ticket} }
func (AcquireReceived) References() []Argument   { return nil }

func (c Invoke) Outputs() int          { return c.Returns }
func (TransferOwnership) Outputs() int { return 0 }
func (c SplitValue) Outputs() int      { return len(c.Amounts) }
func (MergeValues) Outputs() int       { return 0 }
func (BuildCollection) Outputs() int   { return 1 }
func (Publish) Outputs() int           { return 1 }
func (Upgrade) Outputs() int           { return 1 }
func (AcquireReceived) Outputs() int   { return 1 }

func (Invoke) command()            {}
func (TransferOwnership) command() {}
func (SplitValue) command()        {}
func (MergeValues) command()       {}
func (BuildCollection) command()   {}
func (Publish) command()           {}
func (Upgrade) command()           {}
func (AcquireReceived) command()   {}

// Target renders "package::module::function".
func (c Invoke) Target() string {
	return fmt.Sprintf("%s::%s::%s", c.Package.ShortString(), c.Module, c.Function)
}
