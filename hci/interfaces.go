package hci

import (
	"github.com/rigado/btstack/hci/cmd"
	"github.com/rigado/btstack/hci/evt"
	"github.com/rigado/btstack/module"
)

// CommandInterface is a scoped view of the command pipeline handed to one
// client module. It admits only the opcodes that belong to the client's
// concern; anything else is a programming error.
type CommandInterface struct {
	name    string
	layer   *HciLayer
	allowed map[int]bool
}

func (ci *CommandInterface) check(c cmd.Command) {
	assertf(ci.allowed[c.OpCode()], "opcode 0x%04X not allowed on %s interface", c.OpCode(), ci.name)
}

// EnqueueCommand submits a command expecting Command Complete.
func (ci *CommandInterface) EnqueueCommand(c cmd.Command, onComplete func(evt.CommandComplete, error), replyOn *module.Handler) {
	ci.check(c)
	ci.layer.EnqueueCommand(c, onComplete, replyOn)
}

// EnqueueCommandStatus submits a command expecting Command Status.
func (ci *CommandInterface) EnqueueCommandStatus(c cmd.Command, onStatus func(evt.CommandStatus, error), replyOn *module.Handler) {
	ci.check(c)
	ci.layer.EnqueueCommandStatus(c, onStatus, replyOn)
}

func opcodes(cc ...cmd.Command) map[int]bool {
	m := make(map[int]bool, len(cc))
	for _, c := range cc {
		m[c.OpCode()] = true
	}
	return m
}

// GetAclConnectionInterface scopes the pipeline to ACL connection
// management commands.
func (h *HciLayer) GetAclConnectionInterface() *CommandInterface {
	return &CommandInterface{
		name:  "acl connection",
		layer: h,
		allowed: opcodes(
			&cmd.CreateConnection{},
			&cmd.CreateConnectionCancel{},
			&cmd.AcceptConnectionRequest{},
			&cmd.RejectConnectionRequest{},
			&cmd.Disconnect{},
			&cmd.LECreateConnection{},
			&cmd.LECreateConnectionCancel{},
		),
	}
}

// GetClassicSecurityInterface scopes the pipeline to BR/EDR security
// commands.
func (h *HciLayer) GetClassicSecurityInterface() *CommandInterface {
	return &CommandInterface{
		name:  "classic security",
		layer: h,
		allowed: opcodes(
			&cmd.AuthenticationRequested{},
			&cmd.SetConnectionEncryption{},
			&cmd.LinkKeyRequestReply{},
			&cmd.LinkKeyRequestNegativeReply{},
		),
	}
}

// GetLeSecurityInterface scopes the pipeline to LE encryption commands.
func (h *HciLayer) GetLeSecurityInterface() *CommandInterface {
	return &CommandInterface{
		name:  "le security",
		layer: h,
		allowed: opcodes(
			&cmd.LEStartEncryption{},
			&cmd.LELongTermKeyRequestReply{},
			&cmd.LELongTermKeyRequestNegativeReply{},
		),
	}
}

// GetLeAdvertisingInterface scopes the pipeline to advertising commands.
func (h *HciLayer) GetLeAdvertisingInterface() *CommandInterface {
	return &CommandInterface{
		name:  "le advertising",
		layer: h,
		allowed: opcodes(
			&cmd.LESetAdvertisingParameters{},
			&cmd.LESetAdvertisingData{},
			&cmd.LESetAdvertisingEnable{},
		),
	}
}

// GetLeScanningInterface scopes the pipeline to scanning commands.
func (h *HciLayer) GetLeScanningInterface() *CommandInterface {
	return &CommandInterface{
		name:  "le scanning",
		layer: h,
		allowed: opcodes(
			&cmd.LESetScanParameters{},
			&cmd.LESetScanEnable{},
		),
	}
}
